package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/garyjia/dealflow/internal/application/port"
	"github.com/garyjia/dealflow/internal/domain/entity"
	"github.com/garyjia/dealflow/internal/infrastructure/persistence/sqlite"
)

// DocumentRepository implements port.DocumentRepository
type DocumentRepository struct {
	db     *sqlite.DB
	logger *zap.Logger
}

// NewDocumentRepository creates a new document repository
func NewDocumentRepository(db *sqlite.DB, logger *zap.Logger) port.DocumentRepository {
	return &DocumentRepository{
		db:     db,
		logger: logger,
	}
}

const documentColumns = `id, tenant_id, deal_id, name, status, required_signatures,
	signatures_collected, version, created_at, updated_at, fully_signed_at`

// Create stores a new document
func (r *DocumentRepository) Create(ctx context.Context, doc *entity.Document) error {
	required, collected, err := encodeSignatures(doc)
	if err != nil {
		return err
	}

	now := time.Now().UTC()
	if doc.CreatedAt.IsZero() {
		doc.CreatedAt = now
	}
	if doc.UpdatedAt.IsZero() {
		doc.UpdatedAt = doc.CreatedAt
	}
	if doc.Version == 0 {
		doc.Version = 1
	}
	if doc.Status == "" {
		doc.Status = entity.DocumentStatusReady
	}

	query := `INSERT INTO documents (` + documentColumns + `) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	_, err = r.db.Executor(ctx).ExecContext(ctx, query,
		doc.ID,
		doc.TenantID,
		doc.DealID,
		doc.Name,
		doc.Status,
		required,
		collected,
		doc.Version,
		utc(doc.CreatedAt),
		utc(doc.UpdatedAt),
		nullTime(doc.FullySignedAt),
	)
	if err != nil {
		r.logger.Error("Failed to create document", zap.String("id", doc.ID), zap.Error(err))
		return fmt.Errorf("failed to create document: %w", err)
	}
	return nil
}

// GetByID retrieves a document by ID
func (r *DocumentRepository) GetByID(ctx context.Context, id string) (*entity.Document, error) {
	query := `SELECT ` + documentColumns + ` FROM documents WHERE id = ?`

	doc, err := scanDocument(r.db.Executor(ctx).QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, port.ErrNotFound
	}
	if err != nil {
		r.logger.Error("Failed to get document", zap.String("id", id), zap.Error(err))
		return nil, fmt.Errorf("failed to get document: %w", err)
	}
	return doc, nil
}

// ListByDeal retrieves every document of a deal
func (r *DocumentRepository) ListByDeal(ctx context.Context, dealID string) ([]*entity.Document, error) {
	query := `SELECT ` + documentColumns + ` FROM documents WHERE deal_id = ? ORDER BY created_at, id`

	rows, err := r.db.Executor(ctx).QueryContext(ctx, query, dealID)
	if err != nil {
		r.logger.Error("Failed to list documents", zap.String("deal_id", dealID), zap.Error(err))
		return nil, fmt.Errorf("failed to list documents: %w", err)
	}
	defer rows.Close()

	var docs []*entity.Document
	for rows.Next() {
		doc, err := scanDocument(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan document: %w", err)
		}
		docs = append(docs, doc)
	}
	return docs, rows.Err()
}

// UpdateSignatures writes the collected signatures with a version compare-and-set
func (r *DocumentRepository) UpdateSignatures(ctx context.Context, doc *entity.Document, expectedVersion int64) error {
	_, collected, err := encodeSignatures(doc)
	if err != nil {
		return err
	}

	updatedAt := doc.UpdatedAt
	if updatedAt.IsZero() {
		updatedAt = time.Now()
	}

	query := `
		UPDATE documents
		SET status = ?,
			signatures_collected = ?,
			fully_signed_at = ?,
			updated_at = ?,
			version = version + 1
		WHERE id = ? AND version = ?
	`
	result, err := r.db.Executor(ctx).ExecContext(ctx, query,
		doc.Status,
		collected,
		nullTime(doc.FullySignedAt),
		utc(updatedAt),
		doc.ID,
		expectedVersion,
	)
	if err != nil {
		r.logger.Error("Failed to update document signatures", zap.String("id", doc.ID), zap.Error(err))
		return fmt.Errorf("failed to update document: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if affected == 0 {
		if _, err := r.GetByID(ctx, doc.ID); err != nil {
			return err
		}
		return port.ErrVersionConflict
	}

	doc.Version = expectedVersion + 1
	return nil
}

func encodeSignatures(doc *entity.Document) (string, string, error) {
	required := doc.RequiredSignatures
	if required == nil {
		required = []entity.SignerRole{}
	}
	collected := doc.SignaturesCollected
	if collected == nil {
		collected = map[entity.SignerRole]string{}
	}

	requiredJSON, err := json.Marshal(required)
	if err != nil {
		return "", "", fmt.Errorf("failed to encode required signatures: %w", err)
	}
	collectedJSON, err := json.Marshal(collected)
	if err != nil {
		return "", "", fmt.Errorf("failed to encode collected signatures: %w", err)
	}
	return string(requiredJSON), string(collectedJSON), nil
}

func scanDocument(row rowScanner) (*entity.Document, error) {
	var doc entity.Document
	var required, collected string
	var fullySignedAt sql.NullTime

	err := row.Scan(
		&doc.ID,
		&doc.TenantID,
		&doc.DealID,
		&doc.Name,
		&doc.Status,
		&required,
		&collected,
		&doc.Version,
		&doc.CreatedAt,
		&doc.UpdatedAt,
		&fullySignedAt,
	)
	if err != nil {
		return nil, err
	}

	if err := json.Unmarshal([]byte(required), &doc.RequiredSignatures); err != nil {
		return nil, fmt.Errorf("failed to decode required signatures: %w", err)
	}
	if err := json.Unmarshal([]byte(collected), &doc.SignaturesCollected); err != nil {
		return nil, fmt.Errorf("failed to decode collected signatures: %w", err)
	}
	doc.FullySignedAt = timePtr(fullySignedAt)

	return &doc, nil
}

var _ port.DocumentRepository = (*DocumentRepository)(nil)
