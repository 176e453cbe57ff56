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
	"github.com/garyjia/dealflow/internal/domain/workflow"
	"github.com/garyjia/dealflow/internal/infrastructure/persistence/sqlite"
)

var indexColumns = map[port.Index]string{
	port.IndexTenant:  "tenant_id",
	port.IndexVehicle: "vehicle_id",
	port.IndexClient:  "client_id",
	port.IndexStatus:  "status",
}

// EntityStore implements port.EntityStore over the entities and status_history tables
type EntityStore struct {
	db     *sqlite.DB
	logger *zap.Logger
}

// NewEntityStore creates a new entity store
func NewEntityStore(db *sqlite.DB, logger *zap.Logger) port.EntityStore {
	return &EntityStore{
		db:     db,
		logger: logger,
	}
}

const entityColumns = `id, kind, tenant_id, status, vehicle_id, client_id, label, version, created_at, updated_at`

// Get loads an entity with its full status history
func (r *EntityStore) Get(ctx context.Context, kind workflow.Kind, id string) (*entity.Entity, error) {
	query := `SELECT ` + entityColumns + ` FROM entities WHERE id = ? AND kind = ?`

	e, err := scanEntity(r.db.Executor(ctx).QueryRowContext(ctx, query, id, string(kind)))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, port.ErrNotFound
	}
	if err != nil {
		r.logger.Error("Failed to get entity", zap.String("kind", string(kind)), zap.String("id", id), zap.Error(err))
		return nil, fmt.Errorf("failed to get entity: %w", err)
	}

	if e.StatusHistory, err = r.history(ctx, e.ID); err != nil {
		return nil, err
	}
	return e, nil
}

// Insert stores a new entity and any history it already carries
func (r *EntityStore) Insert(ctx context.Context, e *entity.Entity) error {
	now := time.Now().UTC()
	if e.CreatedAt.IsZero() {
		e.CreatedAt = now
	}
	if e.UpdatedAt.IsZero() {
		e.UpdatedAt = e.CreatedAt
	}
	if e.Version == 0 {
		e.Version = 1
	}

	return r.db.WithTransaction(ctx, func(ctx context.Context) error {
		query := `
			INSERT INTO entities (
				id, kind, tenant_id, status, vehicle_id, client_id, label,
				version, created_at, updated_at
			) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		`
		_, err := r.db.Executor(ctx).ExecContext(ctx, query,
			e.ID,
			string(e.Kind),
			e.TenantID,
			e.Status,
			e.VehicleID,
			e.ClientID,
			e.Label,
			e.Version,
			utc(e.CreatedAt),
			utc(e.UpdatedAt),
		)
		if err != nil {
			r.logger.Error("Failed to insert entity", zap.String("id", e.ID), zap.Error(err))
			return fmt.Errorf("failed to insert entity: %w", err)
		}

		for i := range e.StatusHistory {
			if err := r.appendHistory(ctx, e.ID, &e.StatusHistory[i]); err != nil {
				return err
			}
		}
		return nil
	})
}

// Patch applies the patch if the stored version still equals expectedVersion.
// The row update and the history append share one transaction.
func (r *EntityStore) Patch(ctx context.Context, kind workflow.Kind, id string, expectedVersion int64, patch port.EntityPatch) (*entity.Entity, error) {
	updatedAt := patch.UpdatedAt
	if updatedAt.IsZero() {
		updatedAt = time.Now()
	}

	var patched *entity.Entity
	err := r.db.WithTransaction(ctx, func(ctx context.Context) error {
		query := `
			UPDATE entities
			SET status = COALESCE(?, status),
				client_id = COALESCE(?, client_id),
				version = version + 1,
				updated_at = ?
			WHERE id = ? AND kind = ? AND version = ?
		`
		result, err := r.db.Executor(ctx).ExecContext(ctx, query,
			optionalString(patch.Status),
			optionalString(patch.ClientID),
			utc(updatedAt),
			id,
			string(kind),
			expectedVersion,
		)
		if err != nil {
			r.logger.Error("Failed to patch entity", zap.String("id", id), zap.Error(err))
			return fmt.Errorf("failed to patch entity: %w", err)
		}

		affected, err := result.RowsAffected()
		if err != nil {
			return fmt.Errorf("failed to get rows affected: %w", err)
		}
		if affected == 0 {
			return r.missOrConflict(ctx, kind, id)
		}

		if patch.AppendHistory != nil {
			if err := r.appendHistory(ctx, id, patch.AppendHistory); err != nil {
				return err
			}
		}

		patched, err = r.Get(ctx, kind, id)
		return err
	})
	if err != nil {
		return nil, err
	}
	return patched, nil
}

// QueryByIndex lists entities of a kind whose indexed column equals value
func (r *EntityStore) QueryByIndex(ctx context.Context, kind workflow.Kind, index port.Index, value string) ([]*entity.Entity, error) {
	column, ok := indexColumns[index]
	if !ok {
		return nil, fmt.Errorf("unknown index %q", index)
	}

	query := `SELECT ` + entityColumns + ` FROM entities WHERE kind = ? AND ` + column + ` = ? ORDER BY created_at, id`

	rows, err := r.db.Executor(ctx).QueryContext(ctx, query, string(kind), value)
	if err != nil {
		r.logger.Error("Failed to query entities", zap.String("index", string(index)), zap.Error(err))
		return nil, fmt.Errorf("failed to query entities: %w", err)
	}

	var entities []*entity.Entity
	for rows.Next() {
		e, err := scanEntity(rows)
		if err != nil {
			rows.Close()
			return nil, fmt.Errorf("failed to scan entity: %w", err)
		}
		entities = append(entities, e)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	// History is read after the cursor closes; a single pooled connection cannot serve both
	for _, e := range entities {
		if e.StatusHistory, err = r.history(ctx, e.ID); err != nil {
			return nil, err
		}
	}
	return entities, nil
}

func (r *EntityStore) missOrConflict(ctx context.Context, kind workflow.Kind, id string) error {
	var version int64
	err := r.db.Executor(ctx).QueryRowContext(ctx,
		`SELECT version FROM entities WHERE id = ? AND kind = ?`, id, string(kind)).Scan(&version)
	if errors.Is(err, sql.ErrNoRows) {
		return port.ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("failed to read entity version: %w", err)
	}
	return port.ErrVersionConflict
}

func (r *EntityStore) appendHistory(ctx context.Context, entityID string, change *entity.StatusChange) error {
	query := `
		INSERT INTO status_history (
			entity_id, previous_status, new_status, changed_by, reason, changed_at
		) VALUES (?, ?, ?, ?, ?, ?)
	`
	_, err := r.db.Executor(ctx).ExecContext(ctx, query,
		entityID,
		change.PreviousStatus,
		change.NewStatus,
		change.ChangedBy,
		change.Reason,
		utc(change.ChangedAt),
	)
	if err != nil {
		r.logger.Error("Failed to append status history", zap.String("entity_id", entityID), zap.Error(err))
		return fmt.Errorf("failed to append status history: %w", err)
	}
	return nil
}

func (r *EntityStore) history(ctx context.Context, entityID string) ([]entity.StatusChange, error) {
	query := `
		SELECT previous_status, new_status, changed_by, reason, changed_at
		FROM status_history
		WHERE entity_id = ?
		ORDER BY id ASC
	`

	rows, err := r.db.Executor(ctx).QueryContext(ctx, query, entityID)
	if err != nil {
		return nil, fmt.Errorf("failed to get status history: %w", err)
	}
	defer rows.Close()

	var changes []entity.StatusChange
	for rows.Next() {
		var c entity.StatusChange
		if err := rows.Scan(&c.PreviousStatus, &c.NewStatus, &c.ChangedBy, &c.Reason, &c.ChangedAt); err != nil {
			return nil, fmt.Errorf("failed to scan status history: %w", err)
		}
		changes = append(changes, c)
	}
	return changes, rows.Err()
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanEntity(row rowScanner) (*entity.Entity, error) {
	var e entity.Entity
	var kind string
	err := row.Scan(
		&e.ID,
		&kind,
		&e.TenantID,
		&e.Status,
		&e.VehicleID,
		&e.ClientID,
		&e.Label,
		&e.Version,
		&e.CreatedAt,
		&e.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	e.Kind = workflow.Kind(kind)
	return &e, nil
}

var _ port.EntityStore = (*EntityStore)(nil)
