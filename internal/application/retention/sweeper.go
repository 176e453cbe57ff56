package retention

import (
	"context"
	"errors"
	"time"

	"github.com/garyjia/dealflow/internal/application/port"
	"github.com/garyjia/dealflow/internal/domain/entity"
	"github.com/garyjia/dealflow/internal/domain/event"
)

// Sweep pass names reported to metrics
const (
	PassSessions   = "sessions"
	PassPreviews   = "previews"
	PassDeletions  = "deletions"
	PassBlobErrors = "blob_delete_failures"
)

const defaultBatchSize = 500

// SweepSummary counts what one sweep changed
type SweepSummary struct {
	SessionsExpired    int `json:"sessions_expired"`
	PreviewsCleared    int `json:"previews_cleared"`
	SignaturesDeleted  int `json:"signatures_deleted"`
	BlobDeleteFailures int `json:"blob_delete_failures"`
}

// Sweeper expires stale sessions and enforces the preview and retention windows
type Sweeper interface {
	Sweep(ctx context.Context, now time.Time) (*SweepSummary, error)
}

// Logger interface for minimal logging dependency
type Logger interface {
	Info(msg string, keysAndValues ...interface{})
	Error(msg string, keysAndValues ...interface{})
}

// Recorder receives per-pass action counts
type Recorder interface {
	SweepObserved(pass string, count int)
}

type sweeper struct {
	sessions   port.SessionStore
	signatures port.SignatureRepository
	objects    port.ObjectStore
	audit      port.AuditSink
	logger     Logger
	recorder   Recorder
	grace      time.Duration
	batchSize  int
}

// Option configures the sweeper
type Option func(*sweeper)

// WithGrace sets how long past expiry a pending session is left alone
func WithGrace(d time.Duration) Option {
	return func(s *sweeper) {
		if d >= 0 {
			s.grace = d
		}
	}
}

// WithBatchSize caps the records fetched per pass
func WithBatchSize(n int) Option {
	return func(s *sweeper) {
		if n > 0 {
			s.batchSize = n
		}
	}
}

// WithRecorder sets the metrics recorder
func WithRecorder(r Recorder) Option {
	return func(s *sweeper) {
		s.recorder = r
	}
}

// WithAuditSink records a sweep_completed event whenever a sweep changed something
func WithAuditSink(sink port.AuditSink) Option {
	return func(s *sweeper) {
		s.audit = sink
	}
}

// NewSweeper creates a retention sweeper
func NewSweeper(sessions port.SessionStore, signatures port.SignatureRepository, objects port.ObjectStore, logger Logger, opts ...Option) Sweeper {
	s := &sweeper{
		sessions:   sessions,
		signatures: signatures,
		objects:    objects,
		logger:     logger,
		recorder:   nopRecorder{},
		grace:      entity.DefaultSweepGrace,
		batchSize:  defaultBatchSize,
	}

	for _, opt := range opts {
		opt(s)
	}

	return s
}

// Sweep runs the three passes. A failing pass does not stop the others; their
// errors are joined.
func (s *sweeper) Sweep(ctx context.Context, now time.Time) (*SweepSummary, error) {
	summary := &SweepSummary{}

	errSessions := s.expireSessions(ctx, now, summary)
	errPreviews := s.clearPreviews(ctx, now, summary)
	errDeletions := s.deleteSignatures(ctx, now, summary)

	s.recorder.SweepObserved(PassSessions, summary.SessionsExpired)
	s.recorder.SweepObserved(PassPreviews, summary.PreviewsCleared)
	s.recorder.SweepObserved(PassDeletions, summary.SignaturesDeleted)
	s.recorder.SweepObserved(PassBlobErrors, summary.BlobDeleteFailures)

	if summary.SessionsExpired+summary.PreviewsCleared+summary.SignaturesDeleted+summary.BlobDeleteFailures > 0 {
		s.logger.Info("Retention sweep completed",
			"sessions_expired", summary.SessionsExpired,
			"previews_cleared", summary.PreviewsCleared,
			"signatures_deleted", summary.SignaturesDeleted,
			"blob_delete_failures", summary.BlobDeleteFailures,
		)
		s.recordSweep(ctx, now, summary)
	}

	return summary, errors.Join(errSessions, errPreviews, errDeletions)
}

func (s *sweeper) expireSessions(ctx context.Context, now time.Time, summary *SweepSummary) error {
	stale, err := s.sessions.ListExpiredPending(ctx, now.Add(-s.grace), s.batchSize)
	if err != nil {
		s.logger.Error("Failed to list expired sessions", "error", err)
		return err
	}

	for _, session := range stale {
		ok, err := s.sessions.Transition(ctx, session.Token, entity.SessionStatusPending, entity.SessionTransition{
			NewStatus: entity.SessionStatusExpired,
			At:        now,
		})
		if err != nil {
			s.logger.Error("Failed to expire session", "session_id", session.ID, "error", err)
			continue
		}
		if ok {
			summary.SessionsExpired++
		}
	}
	return nil
}

func (s *sweeper) clearPreviews(ctx context.Context, now time.Time, summary *SweepSummary) error {
	due, err := s.signatures.ListPreviewsDue(ctx, now, s.batchSize)
	if err != nil {
		s.logger.Error("Failed to list expired previews", "error", err)
		return err
	}

	for _, sig := range due {
		if sig.ImagePreviewKey != "" {
			if err := s.objects.Delete(ctx, sig.ImagePreviewKey); err != nil && !errors.Is(err, port.ErrObjectNotFound) {
				s.logger.Error("Failed to delete preview object",
					"signature_id", sig.ID,
					"key", sig.ImagePreviewKey,
					"error", err,
				)
			}
		}

		changed, err := s.signatures.ClearPreview(ctx, sig.ID)
		if err != nil {
			s.logger.Error("Failed to clear preview key", "signature_id", sig.ID, "error", err)
			continue
		}
		if changed {
			summary.PreviewsCleared++
		}
	}
	return nil
}

func (s *sweeper) deleteSignatures(ctx context.Context, now time.Time, summary *SweepSummary) error {
	due, err := s.signatures.ListDueForDeletion(ctx, now, s.batchSize)
	if err != nil {
		s.logger.Error("Failed to list signatures due for deletion", "error", err)
		return err
	}

	for _, sig := range due {
		imageGone := s.deleteBlobs(ctx, sig)

		// A storage failure does not hold back the tombstone; only the image key
		// survives so the blob delete is retried on the next sweep.
		if !sig.IsDeleted() {
			changed, err := s.signatures.Tombstone(ctx, sig.ID, now)
			if err != nil {
				s.logger.Error("Failed to tombstone signature", "signature_id", sig.ID, "error", err)
			} else if changed {
				summary.SignaturesDeleted++
			}
		}

		if !imageGone {
			summary.BlobDeleteFailures++
			continue
		}
		if sig.ImageKey != "" {
			if _, err := s.signatures.ClearImage(ctx, sig.ID); err != nil {
				s.logger.Error("Failed to clear signature image key", "signature_id", sig.ID, "error", err)
			}
		}
	}
	return nil
}

// deleteBlobs removes the retained image and any leftover preview. Missing
// objects count as deleted. The image failure decides the outcome.
func (s *sweeper) deleteBlobs(ctx context.Context, sig *entity.Signature) bool {
	if sig.ImagePreviewKey != "" {
		if err := s.objects.Delete(ctx, sig.ImagePreviewKey); err != nil && !errors.Is(err, port.ErrObjectNotFound) {
			s.logger.Error("Failed to delete preview object", "signature_id", sig.ID, "error", err)
		}
	}

	if sig.ImageKey == "" {
		return true
	}
	err := s.objects.Delete(ctx, sig.ImageKey)
	if err == nil || errors.Is(err, port.ErrObjectNotFound) {
		return true
	}

	s.logger.Error("Failed to delete signature image, will retry next sweep",
		"signature_id", sig.ID,
		"key", sig.ImageKey,
		"error", err,
	)
	return false
}

func (s *sweeper) recordSweep(ctx context.Context, now time.Time, summary *SweepSummary) {
	if s.audit == nil {
		return
	}
	evt := event.NewEvent(event.TypeSweepCompleted, "", "retention", "sweep", entity.SystemActorID, map[string]interface{}{
		"sessions_expired":     summary.SessionsExpired,
		"previews_cleared":     summary.PreviewsCleared,
		"signatures_deleted":   summary.SignaturesDeleted,
		"blob_delete_failures": summary.BlobDeleteFailures,
	}).WithTimestamp(now)
	if err := s.audit.Record(ctx, evt); err != nil {
		s.logger.Error("Failed to record sweep audit event", "error", err)
	}
}

type nopRecorder struct{}

func (nopRecorder) SweepObserved(string, int) {}
