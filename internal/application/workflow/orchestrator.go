package workflow

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/garyjia/dealflow/internal/application/dispatcher"
	"github.com/garyjia/dealflow/internal/application/port"
	"github.com/garyjia/dealflow/internal/domain/entity"
	"github.com/garyjia/dealflow/internal/domain/event"
	domainwf "github.com/garyjia/dealflow/internal/domain/workflow"
)

const defaultMaxAttempts = 3

// Transition outcomes reported to metrics
const (
	OutcomeChanged  = "changed"
	OutcomeNoop     = "noop"
	OutcomeRejected = "rejected"
	OutcomeFailed   = "failed"
)

// Orchestrator validates and applies status transitions, then runs cascades
type Orchestrator interface {
	Transition(ctx context.Context, req TransitionRequest) (*TransitionResult, error)
}

// TransitionRequest asks to move one entity to a new status
type TransitionRequest struct {
	Kind      domainwf.Kind
	EntityID  string
	NewStatus string
	Actor     entity.Actor
	Reason    string
}

// TransitionResult describes a completed transition request
type TransitionResult struct {
	Entity         *entity.Entity   `json:"entity"`
	PreviousStatus string           `json:"previous_status"`
	NewStatus      string           `json:"new_status"`
	Changed        bool             `json:"changed"`
	Cascades       []CascadeOutcome `json:"cascades,omitempty"`
}

// Logger interface for minimal logging dependency
type Logger interface {
	Info(msg string, keysAndValues ...interface{})
	Error(msg string, keysAndValues ...interface{})
}

// Recorder receives transition and cascade counts
type Recorder interface {
	TransitionObserved(kind, outcome string)
	CascadeObserved(kind, outcome string)
}

type orchestrator struct {
	store       port.EntityStore
	txManager   port.TransactionManager
	audit       port.AuditSink
	dispatcher  dispatcher.Dispatcher
	logger      Logger
	recorder    Recorder
	hooks       map[domainwf.Kind][]CascadeHook
	now         func() time.Time
	maxAttempts int
}

// Option configures the orchestrator
type Option func(*orchestrator)

// WithTransactionManager runs each status write inside a transaction
func WithTransactionManager(tm port.TransactionManager) Option {
	return func(o *orchestrator) {
		o.txManager = tm
	}
}

// WithAuditSink records an audit event per applied transition
func WithAuditSink(sink port.AuditSink) Option {
	return func(o *orchestrator) {
		o.audit = sink
	}
}

// WithDispatcher sets the event dispatcher for emitting events
func WithDispatcher(d dispatcher.Dispatcher) Option {
	return func(o *orchestrator) {
		o.dispatcher = d
	}
}

// WithLogger sets the logger
func WithLogger(l Logger) Option {
	return func(o *orchestrator) {
		o.logger = l
	}
}

// WithRecorder sets the metrics recorder
func WithRecorder(r Recorder) Option {
	return func(o *orchestrator) {
		o.recorder = r
	}
}

// WithHooks replaces the cascade hooks registered for a kind
func WithHooks(kind domainwf.Kind, hooks ...CascadeHook) Option {
	return func(o *orchestrator) {
		o.hooks[kind] = hooks
	}
}

// WithClock overrides the time source
func WithClock(now func() time.Time) Option {
	return func(o *orchestrator) {
		o.now = now
	}
}

// WithMaxAttempts sets how many times a write is retried after losing a version race
func WithMaxAttempts(n int) Option {
	return func(o *orchestrator) {
		if n > 0 {
			o.maxAttempts = n
		}
	}
}

// NewOrchestrator creates an orchestrator with the deal cascade hooks registered
func NewOrchestrator(store port.EntityStore, opts ...Option) Orchestrator {
	o := &orchestrator{
		store:       store,
		logger:      nopLogger{},
		recorder:    nopRecorder{},
		hooks:       map[domainwf.Kind][]CascadeHook{domainwf.KindDeal: DealHooks()},
		now:         func() time.Time { return time.Now().UTC() },
		maxAttempts: defaultMaxAttempts,
	}

	for _, opt := range opts {
		opt(o)
	}

	return o
}

func (o *orchestrator) Transition(ctx context.Context, req TransitionRequest) (*TransitionResult, error) {
	result, err := o.transition(ctx, req)
	if err != nil {
		outcome := OutcomeFailed
		if errors.Is(err, ErrInvalidTransition) || errors.Is(err, ErrUnauthorized) {
			outcome = OutcomeRejected
		}
		o.recorder.TransitionObserved(req.Kind.String(), outcome)
		return nil, err
	}

	if !result.Changed {
		o.recorder.TransitionObserved(req.Kind.String(), OutcomeNoop)
		return result, nil
	}
	o.recorder.TransitionObserved(req.Kind.String(), OutcomeChanged)

	root := o.emit(ctx, event.TypeStatusChanged, result.Entity, req.Actor.ID, "", map[string]interface{}{
		"previous_status": result.PreviousStatus,
		"new_status":      result.NewStatus,
		"reason":          req.Reason,
	})

	result.Cascades = o.runHooks(ctx, req.Kind, result, root)

	return result, nil
}

func (o *orchestrator) transition(ctx context.Context, req TransitionRequest) (*TransitionResult, error) {
	if err := domainwf.ValidateStatus(req.Kind, req.NewStatus); err != nil {
		return nil, &TransitionError{Kind: req.Kind, EntityID: req.EntityID, To: req.NewStatus, Cause: err}
	}

	for attempt := 1; attempt <= o.maxAttempts; attempt++ {
		current, err := o.load(ctx, req.Kind, req.EntityID)
		if err != nil {
			return nil, err
		}

		if !req.Actor.CanAccess(current.TenantID) {
			return nil, fmt.Errorf("%w: %s %s", ErrUnauthorized, req.Kind, req.EntityID)
		}

		if current.Status == req.NewStatus {
			return &TransitionResult{
				Entity:         current,
				PreviousStatus: current.Status,
				NewStatus:      current.Status,
			}, nil
		}

		if !domainwf.CanTransition(req.Kind, current.Status, req.NewStatus) {
			return nil, &TransitionError{Kind: req.Kind, EntityID: req.EntityID, From: current.Status, To: req.NewStatus}
		}

		updated, err := o.apply(ctx, current, req.NewStatus, nil, req.Actor.ID, req.Reason)
		if errors.Is(err, port.ErrVersionConflict) {
			o.logger.Info("Version conflict, retrying transition",
				"kind", req.Kind,
				"entity_id", req.EntityID,
				"attempt", attempt,
			)
			continue
		}
		if err != nil {
			return nil, err
		}

		o.logger.Info("Entity transitioned",
			"kind", req.Kind,
			"entity_id", req.EntityID,
			"previous_status", current.Status,
			"new_status", req.NewStatus,
			"actor", req.Actor.ID,
		)

		return &TransitionResult{
			Entity:         updated,
			PreviousStatus: current.Status,
			NewStatus:      updated.Status,
			Changed:        true,
		}, nil
	}

	return nil, fmt.Errorf("%w: %s %s after %d attempts", ErrConcurrentModification, req.Kind, req.EntityID, o.maxAttempts)
}

func (o *orchestrator) load(ctx context.Context, kind domainwf.Kind, id string) (*entity.Entity, error) {
	e, err := o.store.Get(ctx, kind, id)
	if errors.Is(err, port.ErrNotFound) {
		return nil, fmt.Errorf("%w: %s %s", ErrEntityNotFound, kind, id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load %s %s: %w", kind, id, err)
	}
	return e, nil
}

// apply writes the new status, an optional client reference change and one history
// entry as a single compare-and-set on the loaded version
func (o *orchestrator) apply(ctx context.Context, current *entity.Entity, newStatus string, clientID *string, actorID, reason string) (*entity.Entity, error) {
	now := o.now()
	patch := port.EntityPatch{
		Status:   &newStatus,
		ClientID: clientID,
		AppendHistory: &entity.StatusChange{
			PreviousStatus: current.Status,
			NewStatus:      newStatus,
			ChangedAt:      now,
			ChangedBy:      actorID,
			Reason:         reason,
		},
		UpdatedAt: now,
	}

	var updated *entity.Entity
	write := func(txCtx context.Context) error {
		var err error
		updated, err = o.store.Patch(txCtx, current.Kind, current.ID, current.Version, patch)
		return err
	}

	var err error
	if o.txManager != nil {
		err = o.txManager.WithTransaction(ctx, write)
	} else {
		err = write(ctx)
	}
	if err != nil {
		if errors.Is(err, port.ErrVersionConflict) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to persist %s %s: %w", current.Kind, current.ID, err)
	}

	return updated, nil
}

// emit records an audit event and fans it out. Audit failures never fail the caller.
func (o *orchestrator) emit(ctx context.Context, typ event.Type, subject *entity.Entity, actorID, correlationID string, payload map[string]interface{}) *event.Event {
	evt := event.NewEvent(typ, subject.TenantID, subject.Kind.String(), subject.ID, actorID, payload).
		WithCorrelation(correlationID).
		WithTimestamp(o.now())

	if o.audit != nil {
		if err := o.audit.Record(ctx, evt); err != nil {
			o.logger.Error("Failed to record audit event",
				"event_type", evt.Type,
				"entity_id", subject.ID,
				"error", err,
			)
		}
	}

	if o.dispatcher != nil {
		o.dispatcher.DispatchAsync(ctx, evt)
	}

	return evt
}

type nopLogger struct{}

func (nopLogger) Info(string, ...interface{})  {}
func (nopLogger) Error(string, ...interface{}) {}

type nopRecorder struct{}

func (nopRecorder) TransitionObserved(string, string) {}
func (nopRecorder) CascadeObserved(string, string)    {}
