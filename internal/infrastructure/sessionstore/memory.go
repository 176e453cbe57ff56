package sessionstore

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/garyjia/dealflow/internal/application/port"
	"github.com/garyjia/dealflow/internal/domain/entity"
)

// ErrDuplicateToken is returned when a session is created with a token already in use
var ErrDuplicateToken = errors.New("session token already exists")

// MemoryStore keeps sessions in process memory. It suits single-instance
// deployments and tests; sessions do not survive a restart.
type MemoryStore struct {
	mu       sync.RWMutex
	sessions map[string]*entity.SigningSession
}

// NewMemoryStore creates an empty in-memory session store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		sessions: make(map[string]*entity.SigningSession),
	}
}

// Create stores a copy of the session; a reused token fails with ErrDuplicateToken
func (m *MemoryStore) Create(ctx context.Context, session *entity.SigningSession) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.sessions[session.Token]; exists {
		return ErrDuplicateToken
	}
	cp := *session
	m.sessions[session.Token] = &cp
	return nil
}

// GetByToken returns a copy of the session, or port.ErrNotFound
func (m *MemoryStore) GetByToken(ctx context.Context, token string) (*entity.SigningSession, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	s, ok := m.sessions[token]
	if !ok {
		return nil, port.ErrNotFound
	}
	cp := *s
	return &cp, nil
}

// ListPending returns the pending sessions for a deal, document and role, oldest first
func (m *MemoryStore) ListPending(ctx context.Context, dealID, documentID string, role entity.SignerRole) ([]*entity.SigningSession, error) {
	return m.filter(func(s *entity.SigningSession) bool {
		return s.IsPending() && s.DealID == dealID && s.DocumentID == documentID && s.SignerRole == role
	}, 0), nil
}

// ListByDeal returns every session of the deal, oldest first
func (m *MemoryStore) ListByDeal(ctx context.Context, dealID string) ([]*entity.SigningSession, error) {
	return m.filter(func(s *entity.SigningSession) bool {
		return s.DealID == dealID
	}, 0), nil
}

// ListExpiredPending returns up to limit pending sessions that expired before cutoff
func (m *MemoryStore) ListExpiredPending(ctx context.Context, cutoff time.Time, limit int) ([]*entity.SigningSession, error) {
	out := m.filter(func(s *entity.SigningSession) bool {
		return s.IsPending() && s.ExpiresAt.Before(cutoff)
	}, 0)
	sort.SliceStable(out, func(i, j int) bool { return out[i].ExpiresAt.Before(out[j].ExpiresAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// Transition applies t only while the session is still in status from
func (m *MemoryStore) Transition(ctx context.Context, token, from string, t entity.SessionTransition) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.sessions[token]
	if !ok {
		return false, port.ErrNotFound
	}
	if s.Status != from {
		return false, nil
	}
	t.Apply(s)
	return true, nil
}

// Ping always succeeds
func (m *MemoryStore) Ping(ctx context.Context) error {
	return nil
}

func (m *MemoryStore) filter(match func(*entity.SigningSession) bool, limit int) []*entity.SigningSession {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []*entity.SigningSession
	for _, s := range m.sessions {
		if match(s) {
			cp := *s
			out = append(out, &cp)
		}
	}
	sortByCreation(out)
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}

// sortByCreation orders sessions oldest first, breaking ties by ID
func sortByCreation(sessions []*entity.SigningSession) {
	sort.Slice(sessions, func(i, j int) bool {
		if !sessions[i].CreatedAt.Equal(sessions[j].CreatedAt) {
			return sessions[i].CreatedAt.Before(sessions[j].CreatedAt)
		}
		return sessions[i].ID < sessions[j].ID
	})
}

var _ port.SessionStore = (*MemoryStore)(nil)
