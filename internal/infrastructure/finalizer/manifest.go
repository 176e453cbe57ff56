// Package finalizer hands fully signed documents to the rendering pipeline.
// Rendering itself happens elsewhere; this package records a sealed manifest
// of the collected signatures that the renderer picks up.
package finalizer

import (
	"context"
	"encoding/json"
	"fmt"
	"path"
	"sort"
	"time"

	"go.uber.org/zap"

	"github.com/garyjia/dealflow/internal/application/port"
)

// Manifest lists the signatures that make up a fully signed document
type Manifest struct {
	TenantID    string            `json:"tenant_id"`
	DealID      string            `json:"deal_id"`
	DocumentID  string            `json:"document_id"`
	Roles       []string          `json:"roles"`
	Signatures  map[string]string `json:"signatures"`
	FinalizedAt time.Time         `json:"finalized_at"`
}

// ManifestFinalizer writes one manifest per fully signed document to the object store
type ManifestFinalizer struct {
	objects port.ObjectStore
	logger  *zap.Logger
	now     func() time.Time
}

// NewManifestFinalizer creates a finalizer backed by the given object store
func NewManifestFinalizer(objects port.ObjectStore, logger *zap.Logger) *ManifestFinalizer {
	return &ManifestFinalizer{
		objects: objects,
		logger:  logger,
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// ManifestKey is the object key of a document's manifest
func ManifestKey(tenantID, dealID, documentID string) string {
	return path.Join("finalized", tenantID, dealID, documentID+".json")
}

// Finalize stores the manifest. Writing it again for the same document overwrites the previous one.
func (f *ManifestFinalizer) Finalize(ctx context.Context, req port.FinalizeRequest) error {
	if req.TenantID == "" || req.DealID == "" || req.DocumentID == "" {
		return fmt.Errorf("incomplete finalize request for document %q", req.DocumentID)
	}

	manifest := Manifest{
		TenantID:    req.TenantID,
		DealID:      req.DealID,
		DocumentID:  req.DocumentID,
		Roles:       make([]string, 0, len(req.Signatures)),
		Signatures:  make(map[string]string, len(req.Signatures)),
		FinalizedAt: f.now(),
	}
	for role, signatureID := range req.Signatures {
		manifest.Roles = append(manifest.Roles, role.String())
		manifest.Signatures[role.String()] = signatureID
	}
	sort.Strings(manifest.Roles)

	data, err := json.Marshal(manifest)
	if err != nil {
		return fmt.Errorf("failed to encode manifest: %w", err)
	}

	key, err := f.objects.Put(ctx, ManifestKey(req.TenantID, req.DealID, req.DocumentID), data, "application/json", map[string]string{
		"deal_id":     req.DealID,
		"document_id": req.DocumentID,
	})
	if err != nil {
		f.logger.Error("Failed to store finalization manifest",
			zap.String("document_id", req.DocumentID),
			zap.Error(err))
		return fmt.Errorf("failed to store manifest: %w", err)
	}

	f.logger.Info("Document finalized",
		zap.String("tenant_id", req.TenantID),
		zap.String("deal_id", req.DealID),
		zap.String("document_id", req.DocumentID),
		zap.Strings("roles", manifest.Roles),
		zap.String("manifest_key", key))
	return nil
}
