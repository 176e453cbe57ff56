package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/mattn/go-sqlite3"
	"go.uber.org/zap"

	"github.com/garyjia/dealflow/internal/application/port"
	"github.com/garyjia/dealflow/internal/domain/entity"
	"github.com/garyjia/dealflow/internal/infrastructure/persistence/sqlite"
)

// SignatureRepository implements port.SignatureRepository
type SignatureRepository struct {
	db     *sqlite.DB
	logger *zap.Logger
}

// NewSignatureRepository creates a new signature repository
func NewSignatureRepository(db *sqlite.DB, logger *zap.Logger) port.SignatureRepository {
	return &SignatureRepository{
		db:     db,
		logger: logger,
	}
}

const signatureColumns = `id, tenant_id, deal_id, document_id, session_id, signer_role, signer_name,
	image_key, image_preview_key, preview_expires_at, content_type,
	ip_address, user_agent, geolocation, consent_given, consent_text, consent_timestamp,
	created_at, scheduled_deletion_at, deleted_at`

// Create stores a captured signature
func (r *SignatureRepository) Create(ctx context.Context, sig *entity.Signature) error {
	query := `INSERT INTO signatures (` + signatureColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	_, err := r.db.Executor(ctx).ExecContext(ctx, query,
		sig.ID,
		sig.TenantID,
		sig.DealID,
		sig.DocumentID,
		sig.SessionID,
		sig.SignerRole.String(),
		sig.SignerName,
		nullString(sig.ImageKey),
		nullString(sig.ImagePreviewKey),
		nullTime(sig.PreviewExpiresAt),
		sig.ContentType,
		sig.IPAddress,
		sig.UserAgent,
		sig.Geolocation,
		sig.ConsentGiven,
		sig.ConsentText,
		utc(sig.ConsentTimestamp),
		utc(sig.CreatedAt),
		utc(sig.ScheduledDeletionAt),
		nullTime(sig.DeletedAt),
	)
	if isUniqueViolation(err) {
		return fmt.Errorf("%w: live signature for session %s", port.ErrDuplicate, sig.SessionID)
	}
	if err != nil {
		r.logger.Error("Failed to create signature", zap.String("id", sig.ID), zap.Error(err))
		return fmt.Errorf("failed to create signature: %w", err)
	}
	return nil
}

// GetByID retrieves a signature by ID, tombstoned or not
func (r *SignatureRepository) GetByID(ctx context.Context, id string) (*entity.Signature, error) {
	query := `SELECT ` + signatureColumns + ` FROM signatures WHERE id = ?`

	sig, err := scanSignature(r.db.Executor(ctx).QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, port.ErrNotFound
	}
	if err != nil {
		r.logger.Error("Failed to get signature", zap.String("id", id), zap.Error(err))
		return nil, fmt.Errorf("failed to get signature: %w", err)
	}
	return sig, nil
}

// FindActive returns the newest non-deleted signature the role gave on the deal
func (r *SignatureRepository) FindActive(ctx context.Context, dealID string, role entity.SignerRole) (*entity.Signature, error) {
	query := `SELECT ` + signatureColumns + ` FROM signatures
		WHERE deal_id = ? AND signer_role = ? AND deleted_at IS NULL
		ORDER BY created_at DESC
		LIMIT 1`

	sig, err := scanSignature(r.db.Executor(ctx).QueryRowContext(ctx, query, dealID, role.String()))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, port.ErrNotFound
	}
	if err != nil {
		r.logger.Error("Failed to find active signature", zap.String("deal_id", dealID), zap.Error(err))
		return nil, fmt.Errorf("failed to find signature: %w", err)
	}
	return sig, nil
}

// ListPreviewsDue returns signatures still holding a preview whose window has closed
func (r *SignatureRepository) ListPreviewsDue(ctx context.Context, now time.Time, limit int) ([]*entity.Signature, error) {
	query := `SELECT ` + signatureColumns + ` FROM signatures
		WHERE image_preview_key IS NOT NULL AND preview_expires_at <= ?
		ORDER BY preview_expires_at
		LIMIT ?`
	return r.list(ctx, query, utc(now), limit)
}

// ListDueForDeletion returns signatures past their scheduled deletion that are
// still live or still reference an image blob
func (r *SignatureRepository) ListDueForDeletion(ctx context.Context, now time.Time, limit int) ([]*entity.Signature, error) {
	query := `SELECT ` + signatureColumns + ` FROM signatures
		WHERE (deleted_at IS NULL OR image_key IS NOT NULL) AND scheduled_deletion_at <= ?
		ORDER BY scheduled_deletion_at
		LIMIT ?`
	return r.list(ctx, query, utc(now), limit)
}

// ClearPreview drops the preview key if it is still set
func (r *SignatureRepository) ClearPreview(ctx context.Context, id string) (bool, error) {
	return r.conditionalUpdate(ctx, `
		UPDATE signatures SET image_preview_key = NULL
		WHERE id = ? AND image_preview_key IS NOT NULL
	`, id)
}

// Tombstone marks the signature deleted and clears its preview key if not already deleted
func (r *SignatureRepository) Tombstone(ctx context.Context, id string, at time.Time) (bool, error) {
	return r.conditionalUpdate(ctx, `
		UPDATE signatures SET deleted_at = ?, image_preview_key = NULL
		WHERE id = ? AND deleted_at IS NULL
	`, utc(at), id)
}

// ClearImage drops the image key after its blob has been deleted
func (r *SignatureRepository) ClearImage(ctx context.Context, id string) (bool, error) {
	return r.conditionalUpdate(ctx, `
		UPDATE signatures SET image_key = NULL
		WHERE id = ? AND image_key IS NOT NULL
	`, id)
}

func (r *SignatureRepository) conditionalUpdate(ctx context.Context, query string, args ...interface{}) (bool, error) {
	result, err := r.db.Executor(ctx).ExecContext(ctx, query, args...)
	if err != nil {
		r.logger.Error("Failed to update signature", zap.Error(err))
		return false, fmt.Errorf("failed to update signature: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return affected > 0, nil
}

func (r *SignatureRepository) list(ctx context.Context, query string, args ...interface{}) ([]*entity.Signature, error) {
	rows, err := r.db.Executor(ctx).QueryContext(ctx, query, args...)
	if err != nil {
		r.logger.Error("Failed to list signatures", zap.Error(err))
		return nil, fmt.Errorf("failed to list signatures: %w", err)
	}
	defer rows.Close()

	var sigs []*entity.Signature
	for rows.Next() {
		sig, err := scanSignature(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan signature: %w", err)
		}
		sigs = append(sigs, sig)
	}
	return sigs, rows.Err()
}

func isUniqueViolation(err error) bool {
	var sqliteErr sqlite3.Error
	return errors.As(err, &sqliteErr) && sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique
}

func scanSignature(row rowScanner) (*entity.Signature, error) {
	var sig entity.Signature
	var role string
	var imageKey, previewKey sql.NullString
	var previewExpires, deletedAt sql.NullTime

	err := row.Scan(
		&sig.ID,
		&sig.TenantID,
		&sig.DealID,
		&sig.DocumentID,
		&sig.SessionID,
		&role,
		&sig.SignerName,
		&imageKey,
		&previewKey,
		&previewExpires,
		&sig.ContentType,
		&sig.IPAddress,
		&sig.UserAgent,
		&sig.Geolocation,
		&sig.ConsentGiven,
		&sig.ConsentText,
		&sig.ConsentTimestamp,
		&sig.CreatedAt,
		&sig.ScheduledDeletionAt,
		&deletedAt,
	)
	if err != nil {
		return nil, err
	}

	sig.SignerRole = entity.SignerRole(role)
	sig.ImageKey = imageKey.String
	sig.ImagePreviewKey = previewKey.String
	sig.PreviewExpiresAt = timePtr(previewExpires)
	sig.DeletedAt = timePtr(deletedAt)
	return &sig, nil
}

var _ port.SignatureRepository = (*SignatureRepository)(nil)
