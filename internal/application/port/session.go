package port

import (
	"context"
	"time"

	"github.com/garyjia/dealflow/internal/domain/entity"
)

// SessionStore persists signing sessions keyed by their bearer token
type SessionStore interface {
	Create(ctx context.Context, session *entity.SigningSession) error

	// GetByToken returns ErrNotFound for unknown tokens
	GetByToken(ctx context.Context, token string) (*entity.SigningSession, error)

	// ListPending returns pending sessions for the triple, oldest first
	ListPending(ctx context.Context, dealID, documentID string, role entity.SignerRole) ([]*entity.SigningSession, error)

	// ListByDeal returns every session of the deal, oldest first
	ListByDeal(ctx context.Context, dealID string) ([]*entity.SigningSession, error)

	// ListExpiredPending returns pending sessions whose expiry is before cutoff
	ListExpiredPending(ctx context.Context, cutoff time.Time, limit int) ([]*entity.SigningSession, error)

	// Transition moves the session out of status from. It returns false without
	// error when the stored status is no longer from.
	Transition(ctx context.Context, token, from string, t entity.SessionTransition) (bool, error)

	Ping(ctx context.Context) error
}
