package signing

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/garyjia/dealflow/internal/application/dispatcher"
	"github.com/garyjia/dealflow/internal/application/port"
	"github.com/garyjia/dealflow/internal/application/workflow"
	"github.com/garyjia/dealflow/internal/domain/entity"
	"github.com/garyjia/dealflow/internal/domain/event"
)

// SessionManager creates, inspects and cancels signing sessions
type SessionManager interface {
	CreateSession(ctx context.Context, req CreateSessionRequest) (*CreatedSession, error)
	GetSession(ctx context.Context, token string) (*SessionView, error)
	CancelSession(ctx context.Context, token string, actor entity.Actor) error
	ListSessions(ctx context.Context, dealID string, actor entity.Actor) ([]SessionSummary, error)
	RevokeConsent(ctx context.Context, consentID string, actor entity.Actor) (*entity.ConsentRecord, error)
}

// SubmissionHandler accepts a signature for a session token
type SubmissionHandler interface {
	SubmitSignature(ctx context.Context, req SubmitRequest) (*SubmitResult, error)
}

// Service is the complete signing workflow
type Service interface {
	SessionManager
	SubmissionHandler
}

// Logger interface for minimal logging dependency
type Logger interface {
	Info(msg string, keysAndValues ...interface{})
	Error(msg string, keysAndValues ...interface{})
}

// Recorder receives submission outcomes
type Recorder interface {
	SubmissionObserved(outcome string)
}

// Stores groups the persistence collaborators of the signing workflow
type Stores struct {
	Entities   port.EntityStore
	Documents  port.DocumentRepository
	Signatures port.SignatureRepository
	Consents   port.ConsentRepository
	Sessions   port.SessionStore
	Objects    port.ObjectStore
}

// Config holds the time windows and consent text of the signing workflow
type Config struct {
	SessionWindow   time.Duration
	PreviewWindow   time.Duration
	RetentionWindow time.Duration
	ConsentText     string
	ConsentVersion  string
}

// DefaultConfig returns the standard windows and consent text
func DefaultConfig() Config {
	return Config{
		SessionWindow:   entity.DefaultSessionWindow,
		PreviewWindow:   entity.DefaultPreviewWindow,
		RetentionWindow: entity.DefaultRetentionWindow,
		ConsentText:     entity.ConsentText,
		ConsentVersion:  entity.ConsentVersion,
	}
}

type service struct {
	stores       Stores
	orchestrator workflow.Orchestrator
	audit        port.AuditSink
	dispatcher   dispatcher.Dispatcher
	logger       Logger
	recorder     Recorder
	config       Config
	now          func() time.Time
	newID        func() string
	newToken     func() (string, error)
}

// Option configures the signing service
type Option func(*service)

// WithConfig overrides the default windows and consent text; zero fields keep their defaults
func WithConfig(cfg Config) Option {
	return func(s *service) {
		if cfg.SessionWindow > 0 {
			s.config.SessionWindow = cfg.SessionWindow
		}
		if cfg.PreviewWindow > 0 {
			s.config.PreviewWindow = cfg.PreviewWindow
		}
		if cfg.RetentionWindow > 0 {
			s.config.RetentionWindow = cfg.RetentionWindow
		}
		if cfg.ConsentText != "" {
			s.config.ConsentText = cfg.ConsentText
		}
		if cfg.ConsentVersion != "" {
			s.config.ConsentVersion = cfg.ConsentVersion
		}
	}
}

// WithAuditSink records audit events for session and signature changes
func WithAuditSink(sink port.AuditSink) Option {
	return func(s *service) {
		s.audit = sink
	}
}

// WithDispatcher sets the dispatcher used to trigger finalization
func WithDispatcher(d dispatcher.Dispatcher) Option {
	return func(s *service) {
		s.dispatcher = d
	}
}

// WithRecorder sets the metrics recorder
func WithRecorder(r Recorder) Option {
	return func(s *service) {
		s.recorder = r
	}
}

// WithClock overrides the time source
func WithClock(now func() time.Time) Option {
	return func(s *service) {
		s.now = now
	}
}

// WithTokenSource overrides token generation
func WithTokenSource(fn func() (string, error)) Option {
	return func(s *service) {
		s.newToken = fn
	}
}

// NewService creates the signing service
func NewService(stores Stores, orchestrator workflow.Orchestrator, logger Logger, opts ...Option) Service {
	s := &service{
		stores:       stores,
		orchestrator: orchestrator,
		logger:       logger,
		recorder:     nopRecorder{},
		config:       DefaultConfig(),
		now:          func() time.Time { return time.Now().UTC() },
		newID:        uuid.NewString,
		newToken:     NewToken,
	}

	for _, opt := range opts {
		opt(s)
	}

	return s
}

func (s *service) record(ctx context.Context, evt *event.Event) {
	if s.audit == nil {
		return
	}
	if err := s.audit.Record(ctx, evt.WithTimestamp(s.now())); err != nil {
		s.logger.Error("Failed to record audit event",
			"event_type", evt.Type,
			"entity_id", evt.EntityID,
			"error", err,
		)
	}
}

type nopRecorder struct{}

func (nopRecorder) SubmissionObserved(string) {}
