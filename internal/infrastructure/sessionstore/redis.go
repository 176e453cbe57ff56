package sessionstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"time"

	backend "github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/garyjia/dealflow/internal/application/port"
	"github.com/garyjia/dealflow/internal/domain/entity"
)

const (
	defaultPrefix     = "dealflow:"
	transitionRetries = 5
)

// RedisStore implements port.SessionStore on Redis. Each session is a JSON
// string keyed by its token. Sorted sets index pending sessions per
// (deal, document, role), all sessions per deal, and pending sessions by expiry.
type RedisStore struct {
	client *backend.Client
	logger *zap.Logger
	prefix string
	ttl    time.Duration
}

// Option configures the Redis store
type Option func(*RedisStore)

// WithPrefix sets the key prefix
func WithPrefix(prefix string) Option {
	return func(s *RedisStore) {
		s.prefix = prefix
	}
}

// WithTTL sets how long a session record is kept after creation. Zero keeps it forever.
func WithTTL(ttl time.Duration) Option {
	return func(s *RedisStore) {
		s.ttl = ttl
	}
}

// NewRedisStore creates a store over an existing client
func NewRedisStore(client *backend.Client, logger *zap.Logger, opts ...Option) *RedisStore {
	store := &RedisStore{
		client: client,
		logger: logger,
		prefix: defaultPrefix,
		ttl:    entity.DefaultRetentionWindow,
	}

	for _, opt := range opts {
		opt(store)
	}

	return store
}

func (s *RedisStore) sessionKey(token string) string {
	return s.prefix + "session:" + token
}

func (s *RedisStore) pendingKey(dealID, documentID string, role entity.SignerRole) string {
	return fmt.Sprintf("%spending:%s:%s:%s", s.prefix, dealID, documentID, role)
}

func (s *RedisStore) dealKey(dealID string) string {
	return s.prefix + "deal:" + dealID
}

func (s *RedisStore) expiryKey() string {
	return s.prefix + "pending-expiry"
}

// Create writes the session record with a TTL and indexes it by deal and expiry
func (s *RedisStore) Create(ctx context.Context, session *entity.SigningSession) error {
	data, err := json.Marshal(session)
	if err != nil {
		return fmt.Errorf("failed to marshal session: %w", err)
	}

	created, err := s.client.SetNX(ctx, s.sessionKey(session.Token), data, s.ttl).Result()
	if err != nil {
		return fmt.Errorf("failed to store session: %w", err)
	}
	if !created {
		return ErrDuplicateToken
	}

	_, err = s.client.TxPipelined(ctx, func(pipe backend.Pipeliner) error {
		created := float64(session.CreatedAt.UnixMilli())
		pipe.ZAdd(ctx, s.dealKey(session.DealID), backend.Z{Score: created, Member: session.Token})
		if session.IsPending() {
			pipe.ZAdd(ctx, s.pendingKey(session.DealID, session.DocumentID, session.SignerRole), backend.Z{Score: created, Member: session.Token})
			pipe.ZAdd(ctx, s.expiryKey(), backend.Z{Score: float64(session.ExpiresAt.UnixMilli()), Member: session.Token})
		}
		return nil
	})
	if err != nil {
		s.logger.Error("Failed to index session", zap.String("session_id", session.ID), zap.Error(err))
		return fmt.Errorf("failed to index session: %w", err)
	}
	return nil
}

// GetByToken returns the session, or port.ErrNotFound once the record is gone
func (s *RedisStore) GetByToken(ctx context.Context, token string) (*entity.SigningSession, error) {
	val, err := s.client.Get(ctx, s.sessionKey(token)).Result()
	if errors.Is(err, backend.Nil) {
		return nil, port.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get session: %w", err)
	}
	return decodeSession(val)
}

// ListPending returns the pending sessions for a deal, document and role, oldest first
func (s *RedisStore) ListPending(ctx context.Context, dealID, documentID string, role entity.SignerRole) ([]*entity.SigningSession, error) {
	tokens, err := s.client.ZRange(ctx, s.pendingKey(dealID, documentID, role), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list pending sessions: %w", err)
	}
	sessions, err := s.load(ctx, tokens)
	if err != nil {
		return nil, err
	}
	return pendingOnly(sessions), nil
}

// ListByDeal returns the sessions of the deal still held in Redis, oldest first
func (s *RedisStore) ListByDeal(ctx context.Context, dealID string) ([]*entity.SigningSession, error) {
	tokens, err := s.client.ZRange(ctx, s.dealKey(dealID), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list deal sessions: %w", err)
	}
	return s.load(ctx, tokens)
}

// ListExpiredPending returns up to limit pending sessions that expired before cutoff
func (s *RedisStore) ListExpiredPending(ctx context.Context, cutoff time.Time, limit int) ([]*entity.SigningSession, error) {
	tokens, err := s.client.ZRangeByScore(ctx, s.expiryKey(), &backend.ZRangeBy{
		Min:   "-inf",
		Max:   strconv.FormatInt(cutoff.UnixMilli(), 10),
		Count: int64(limit),
	}).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list expired sessions: %w", err)
	}

	sessions, err := s.load(ctx, tokens)
	if err != nil {
		return nil, err
	}

	out := make([]*entity.SigningSession, 0, len(sessions))
	for _, session := range pendingOnly(sessions) {
		if session.ExpiresAt.Before(cutoff) {
			out = append(out, session)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].ExpiresAt.Before(out[j].ExpiresAt) })
	return out, nil
}

// Transition is a compare-and-set on the session's status using WATCH/MULTI.
// A concurrent write to the key aborts the transaction and the read is retried.
func (s *RedisStore) Transition(ctx context.Context, token, from string, t entity.SessionTransition) (bool, error) {
	key := s.sessionKey(token)
	var changed bool

	txf := func(tx *backend.Tx) error {
		changed = false

		val, err := tx.Get(ctx, key).Result()
		if errors.Is(err, backend.Nil) {
			return port.ErrNotFound
		}
		if err != nil {
			return err
		}

		session, err := decodeSession(val)
		if err != nil {
			return err
		}
		if session.Status != from {
			return nil
		}

		t.Apply(session)
		data, err := json.Marshal(session)
		if err != nil {
			return fmt.Errorf("failed to marshal session: %w", err)
		}

		_, err = tx.TxPipelined(ctx, func(pipe backend.Pipeliner) error {
			pipe.SetArgs(ctx, key, data, backend.SetArgs{KeepTTL: true})
			if !session.IsPending() {
				pipe.ZRem(ctx, s.pendingKey(session.DealID, session.DocumentID, session.SignerRole), token)
				pipe.ZRem(ctx, s.expiryKey(), token)
			}
			return nil
		})
		if err == nil {
			changed = true
		}
		return err
	}

	for attempt := 0; attempt < transitionRetries; attempt++ {
		err := s.client.Watch(ctx, txf, key)
		if errors.Is(err, backend.TxFailedErr) {
			continue
		}
		if err != nil {
			if !errors.Is(err, port.ErrNotFound) {
				s.logger.Error("Failed to transition session", zap.Error(err))
			}
			return false, err
		}
		return changed, nil
	}

	return false, fmt.Errorf("session transition contended after %d attempts", transitionRetries)
}

// Ping checks the Redis connection
func (s *RedisStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

// Close closes the underlying client
func (s *RedisStore) Close() error {
	return s.client.Close()
}

// load fetches sessions by token. Tokens whose record has expired out of Redis are skipped.
func (s *RedisStore) load(ctx context.Context, tokens []string) ([]*entity.SigningSession, error) {
	if len(tokens) == 0 {
		return nil, nil
	}

	keys := make([]string, len(tokens))
	for i, token := range tokens {
		keys[i] = s.sessionKey(token)
	}

	values, err := s.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to load sessions: %w", err)
	}

	sessions := make([]*entity.SigningSession, 0, len(values))
	for _, v := range values {
		str, ok := v.(string)
		if !ok {
			continue
		}
		session, err := decodeSession(str)
		if err != nil {
			return nil, err
		}
		sessions = append(sessions, session)
	}
	sortByCreation(sessions)
	return sessions, nil
}

func decodeSession(val string) (*entity.SigningSession, error) {
	var session entity.SigningSession
	if err := json.Unmarshal([]byte(val), &session); err != nil {
		return nil, fmt.Errorf("failed to unmarshal session: %w", err)
	}
	return &session, nil
}

func pendingOnly(sessions []*entity.SigningSession) []*entity.SigningSession {
	out := sessions[:0]
	for _, session := range sessions {
		if session.IsPending() {
			out = append(out, session)
		}
	}
	return out
}

var _ port.SessionStore = (*RedisStore)(nil)
