package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"go.uber.org/zap"

	"github.com/garyjia/dealflow/internal/application/port"
)

const metaSuffix = ".meta.json"

var keySegment = regexp.MustCompile(`^[a-zA-Z0-9][a-zA-Z0-9._\-]*$`)

// ErrInvalidKey is returned for keys that are empty, absolute or escape the base directory
var ErrInvalidKey = errors.New("invalid object key")

// LocalObjectStore implements port.ObjectStore on the local filesystem. Each
// object is a file under baseDir with a JSON sidecar holding its content type
// and metadata.
type LocalObjectStore struct {
	baseDir string
	logger  *zap.Logger
}

type objectMeta struct {
	ContentType string            `json:"content_type"`
	Metadata    map[string]string `json:"metadata,omitempty"`
}

// NewLocalObjectStore creates a new LocalObjectStore
func NewLocalObjectStore(baseDir string, logger *zap.Logger) *LocalObjectStore {
	return &LocalObjectStore{
		baseDir: baseDir,
		logger:  logger,
	}
}

// Put writes data at key, replacing any existing object, and returns the key
func (s *LocalObjectStore) Put(ctx context.Context, key string, data []byte, contentType string, metadata map[string]string) (string, error) {
	fullPath, err := s.resolve(key)
	if err != nil {
		return "", err
	}

	if err := os.MkdirAll(filepath.Dir(fullPath), 0o755); err != nil {
		s.logger.Error("Failed to create parent directories", zap.String("key", key), zap.Error(err))
		return "", fmt.Errorf("failed to create directories: %w", err)
	}

	meta, err := json.Marshal(objectMeta{ContentType: contentType, Metadata: metadata})
	if err != nil {
		return "", fmt.Errorf("failed to encode object metadata: %w", err)
	}

	if err := writeFileAtomic(fullPath, data); err != nil {
		s.logger.Error("Failed to write object", zap.String("key", key), zap.Error(err))
		return "", fmt.Errorf("failed to write object: %w", err)
	}
	if err := writeFileAtomic(fullPath+metaSuffix, meta); err != nil {
		_ = os.Remove(fullPath)
		s.logger.Error("Failed to write object metadata", zap.String("key", key), zap.Error(err))
		return "", fmt.Errorf("failed to write object metadata: %w", err)
	}

	s.logger.Debug("Object stored", zap.String("key", key), zap.Int("size", len(data)))
	return key, nil
}

// Get reads the object at key
func (s *LocalObjectStore) Get(ctx context.Context, key string) ([]byte, error) {
	fullPath, err := s.resolve(key)
	if err != nil {
		return nil, err
	}

	data, err := os.ReadFile(fullPath)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, port.ErrObjectNotFound
	}
	if err != nil {
		s.logger.Error("Failed to read object", zap.String("key", key), zap.Error(err))
		return nil, fmt.Errorf("failed to read object: %w", err)
	}
	return data, nil
}

// ContentType returns the content type recorded when the object was stored
func (s *LocalObjectStore) ContentType(ctx context.Context, key string) (string, error) {
	fullPath, err := s.resolve(key)
	if err != nil {
		return "", err
	}

	raw, err := os.ReadFile(fullPath + metaSuffix)
	if errors.Is(err, fs.ErrNotExist) {
		return "", port.ErrObjectNotFound
	}
	if err != nil {
		return "", fmt.Errorf("failed to read object metadata: %w", err)
	}

	var meta objectMeta
	if err := json.Unmarshal(raw, &meta); err != nil {
		return "", fmt.Errorf("failed to decode object metadata: %w", err)
	}
	return meta.ContentType, nil
}

// Delete removes the object and prunes directories left empty. A missing
// object yields port.ErrObjectNotFound.
func (s *LocalObjectStore) Delete(ctx context.Context, key string) error {
	fullPath, err := s.resolve(key)
	if err != nil {
		return err
	}

	err = os.Remove(fullPath)
	if errors.Is(err, fs.ErrNotExist) {
		return port.ErrObjectNotFound
	}
	if err != nil {
		s.logger.Error("Failed to delete object", zap.String("key", key), zap.Error(err))
		return fmt.Errorf("failed to delete object: %w", err)
	}

	if err := os.Remove(fullPath + metaSuffix); err != nil && !errors.Is(err, fs.ErrNotExist) {
		s.logger.Error("Failed to delete object metadata", zap.String("key", key), zap.Error(err))
	}

	s.pruneEmptyDirs(filepath.Dir(fullPath))
	s.logger.Debug("Object deleted", zap.String("key", key))
	return nil
}

// resolve maps a slash-separated key to a path inside baseDir
func (s *LocalObjectStore) resolve(key string) (string, error) {
	if key == "" || strings.HasPrefix(key, "/") {
		return "", fmt.Errorf("%w: %q", ErrInvalidKey, key)
	}
	for _, segment := range strings.Split(key, "/") {
		if !keySegment.MatchString(segment) || segment == ".." || strings.HasSuffix(segment, metaSuffix) {
			return "", fmt.Errorf("%w: %q", ErrInvalidKey, key)
		}
	}

	absBase, err := filepath.Abs(s.baseDir)
	if err != nil {
		return "", fmt.Errorf("failed to resolve base path: %w", err)
	}
	fullPath := filepath.Join(absBase, filepath.FromSlash(key))
	if !strings.HasPrefix(fullPath, absBase+string(filepath.Separator)) {
		return "", fmt.Errorf("%w: %q escapes base directory", ErrInvalidKey, key)
	}
	return fullPath, nil
}

func (s *LocalObjectStore) pruneEmptyDirs(dir string) {
	absBase, err := filepath.Abs(s.baseDir)
	if err != nil {
		return
	}
	for dir != absBase && strings.HasPrefix(dir, absBase+string(filepath.Separator)) {
		// os.Remove refuses non-empty directories, which ends the walk
		if err := os.Remove(dir); err != nil {
			return
		}
		dir = filepath.Dir(dir)
	}
}

func writeFileAtomic(path string, data []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), ".tmp-*")
	if err != nil {
		return err
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return err
	}
	if err := os.Chmod(tmp.Name(), 0o644); err != nil {
		os.Remove(tmp.Name())
		return err
	}
	return os.Rename(tmp.Name(), path)
}

var _ port.ObjectStore = (*LocalObjectStore)(nil)
