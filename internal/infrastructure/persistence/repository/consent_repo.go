package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/garyjia/dealflow/internal/application/port"
	"github.com/garyjia/dealflow/internal/domain/entity"
	"github.com/garyjia/dealflow/internal/infrastructure/persistence/sqlite"
)

// ConsentRepository implements port.ConsentRepository
type ConsentRepository struct {
	db     *sqlite.DB
	logger *zap.Logger
}

// NewConsentRepository creates a new consent repository
func NewConsentRepository(db *sqlite.DB, logger *zap.Logger) port.ConsentRepository {
	return &ConsentRepository{
		db:     db,
		logger: logger,
	}
}

const consentColumns = `id, tenant_id, deal_id, document_id, session_id, signature_id, signer_role, signer_name,
	consent_text, consent_version, ip_address, user_agent, given_at, revoked_at`

// Create stores a consent record
func (r *ConsentRepository) Create(ctx context.Context, record *entity.ConsentRecord) error {
	query := `INSERT INTO consent_records (` + consentColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	_, err := r.db.Executor(ctx).ExecContext(ctx, query,
		record.ID,
		record.TenantID,
		record.DealID,
		record.DocumentID,
		record.SessionID,
		record.SignatureID,
		record.SignerRole.String(),
		record.SignerName,
		record.ConsentText,
		record.ConsentVersion,
		record.IPAddress,
		record.UserAgent,
		utc(record.GivenAt),
		nullTime(record.RevokedAt),
	)
	if err != nil {
		r.logger.Error("Failed to create consent record", zap.String("id", record.ID), zap.Error(err))
		return fmt.Errorf("failed to create consent record: %w", err)
	}
	return nil
}

// GetByID retrieves a consent record by ID
func (r *ConsentRepository) GetByID(ctx context.Context, id string) (*entity.ConsentRecord, error) {
	query := `SELECT ` + consentColumns + ` FROM consent_records WHERE id = ?`

	record, err := scanConsent(r.db.Executor(ctx).QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, port.ErrNotFound
	}
	if err != nil {
		r.logger.Error("Failed to get consent record", zap.String("id", id), zap.Error(err))
		return nil, fmt.Errorf("failed to get consent record: %w", err)
	}
	return record, nil
}

// ListByDeal retrieves every consent record of a deal
func (r *ConsentRepository) ListByDeal(ctx context.Context, dealID string) ([]*entity.ConsentRecord, error) {
	query := `SELECT ` + consentColumns + ` FROM consent_records WHERE deal_id = ? ORDER BY given_at, id`

	rows, err := r.db.Executor(ctx).QueryContext(ctx, query, dealID)
	if err != nil {
		r.logger.Error("Failed to list consent records", zap.String("deal_id", dealID), zap.Error(err))
		return nil, fmt.Errorf("failed to list consent records: %w", err)
	}
	defer rows.Close()

	var records []*entity.ConsentRecord
	for rows.Next() {
		record, err := scanConsent(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan consent record: %w", err)
		}
		records = append(records, record)
	}
	return records, rows.Err()
}

// Revoke sets revoked_at once
func (r *ConsentRepository) Revoke(ctx context.Context, id string, at time.Time) (bool, error) {
	result, err := r.db.Executor(ctx).ExecContext(ctx,
		`UPDATE consent_records SET revoked_at = ? WHERE id = ? AND revoked_at IS NULL`, utc(at), id)
	if err != nil {
		r.logger.Error("Failed to revoke consent", zap.String("id", id), zap.Error(err))
		return false, fmt.Errorf("failed to revoke consent: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return affected > 0, nil
}

func scanConsent(row rowScanner) (*entity.ConsentRecord, error) {
	var record entity.ConsentRecord
	var role string
	var revokedAt sql.NullTime

	err := row.Scan(
		&record.ID,
		&record.TenantID,
		&record.DealID,
		&record.DocumentID,
		&record.SessionID,
		&record.SignatureID,
		&role,
		&record.SignerName,
		&record.ConsentText,
		&record.ConsentVersion,
		&record.IPAddress,
		&record.UserAgent,
		&record.GivenAt,
		&revokedAt,
	)
	if err != nil {
		return nil, err
	}
	record.SignerRole = entity.SignerRole(role)
	record.RevokedAt = timePtr(revokedAt)
	return &record, nil
}

var _ port.ConsentRepository = (*ConsentRepository)(nil)
