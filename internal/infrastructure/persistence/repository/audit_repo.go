package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/garyjia/dealflow/internal/application/port"
	"github.com/garyjia/dealflow/internal/domain/event"
	"github.com/garyjia/dealflow/internal/infrastructure/persistence/sqlite"
)

// AuditRepository stores audit events in audit_log and implements port.AuditSink
type AuditRepository struct {
	db     *sqlite.DB
	logger *zap.Logger
}

// NewAuditRepository creates a new audit repository
func NewAuditRepository(db *sqlite.DB, logger *zap.Logger) *AuditRepository {
	return &AuditRepository{
		db:     db,
		logger: logger,
	}
}

const auditColumns = `id, event_type, tenant_id, entity_kind, entity_id, actor_id, correlation_id, payload, created_at`

// Record appends an event to the audit log
func (r *AuditRepository) Record(ctx context.Context, evt *event.Event) error {
	payload := evt.Payload
	if payload == nil {
		payload = map[string]interface{}{}
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to encode audit payload: %w", err)
	}

	ts := evt.Timestamp
	if ts.IsZero() {
		ts = time.Now()
	}

	query := `INSERT INTO audit_log (` + auditColumns + `) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`
	_, err = r.db.Executor(ctx).ExecContext(ctx, query,
		evt.ID,
		evt.Type.String(),
		evt.TenantID,
		evt.EntityKind,
		evt.EntityID,
		evt.ActorID,
		evt.CorrelationID,
		string(data),
		utc(ts),
	)
	if err != nil {
		r.logger.Error("Failed to record audit event",
			zap.String("event_id", evt.ID),
			zap.String("event_type", evt.Type.String()),
			zap.Error(err))
		return fmt.Errorf("failed to record audit event: %w", err)
	}
	return nil
}

// ListByEntity returns the audit trail of one entity, oldest first
func (r *AuditRepository) ListByEntity(ctx context.Context, entityKind, entityID string) ([]*event.Event, error) {
	query := `SELECT ` + auditColumns + ` FROM audit_log
		WHERE entity_kind = ? AND entity_id = ?
		ORDER BY created_at, rowid`
	return r.list(ctx, query, entityKind, entityID)
}

// ListByCorrelation returns every event caused by one root action, oldest first
func (r *AuditRepository) ListByCorrelation(ctx context.Context, correlationID string) ([]*event.Event, error) {
	query := `SELECT ` + auditColumns + ` FROM audit_log
		WHERE correlation_id = ?
		ORDER BY created_at, rowid`
	return r.list(ctx, query, correlationID)
}

func (r *AuditRepository) list(ctx context.Context, query string, args ...interface{}) ([]*event.Event, error) {
	rows, err := r.db.Executor(ctx).QueryContext(ctx, query, args...)
	if err != nil {
		r.logger.Error("Failed to list audit events", zap.Error(err))
		return nil, fmt.Errorf("failed to list audit events: %w", err)
	}
	defer rows.Close()

	var events []*event.Event
	for rows.Next() {
		var evt event.Event
		var eventType, payload string
		err := rows.Scan(
			&evt.ID,
			&eventType,
			&evt.TenantID,
			&evt.EntityKind,
			&evt.EntityID,
			&evt.ActorID,
			&evt.CorrelationID,
			&payload,
			&evt.Timestamp,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan audit event: %w", err)
		}
		evt.Type = event.Type(eventType)
		if err := json.Unmarshal([]byte(payload), &evt.Payload); err != nil {
			return nil, fmt.Errorf("failed to decode audit payload: %w", err)
		}
		events = append(events, &evt)
	}
	return events, rows.Err()
}

var _ port.AuditSink = (*AuditRepository)(nil)
