package retention

import (
	"context"
	"errors"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/garyjia/dealflow/internal/application/port"
	"github.com/garyjia/dealflow/internal/domain/entity"
	"github.com/garyjia/dealflow/internal/domain/event"
)

var now = time.Date(2024, 7, 1, 12, 0, 0, 0, time.UTC)

type mockSessionStore struct {
	mu       sync.Mutex
	sessions map[string]*entity.SigningSession
	listErr  error
}

func (m *mockSessionStore) Create(ctx context.Context, s *entity.SigningSession) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sessions[s.Token] = s
	return nil
}

func (m *mockSessionStore) GetByToken(ctx context.Context, token string) (*entity.SigningSession, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[token]
	if !ok {
		return nil, port.ErrNotFound
	}
	cp := *s
	return &cp, nil
}

func (m *mockSessionStore) ListPending(ctx context.Context, dealID, documentID string, role entity.SignerRole) ([]*entity.SigningSession, error) {
	return nil, nil
}

func (m *mockSessionStore) ListByDeal(ctx context.Context, dealID string) ([]*entity.SigningSession, error) {
	return nil, nil
}

func (m *mockSessionStore) ListExpiredPending(ctx context.Context, cutoff time.Time, limit int) ([]*entity.SigningSession, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.listErr != nil {
		return nil, m.listErr
	}
	var out []*entity.SigningSession
	for _, s := range m.sessions {
		if s.IsPending() && s.ExpiresAt.Before(cutoff) {
			cp := *s
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ExpiresAt.Before(out[j].ExpiresAt) })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *mockSessionStore) Transition(ctx context.Context, token, from string, t entity.SessionTransition) (bool, error) {
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

func (m *mockSessionStore) Ping(ctx context.Context) error { return nil }

type mockSignatureRepo struct {
	mu   sync.Mutex
	sigs map[string]*entity.Signature
}

func (m *mockSignatureRepo) Create(ctx context.Context, sig *entity.Signature) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sigs[sig.ID] = sig
	return nil
}

func (m *mockSignatureRepo) GetByID(ctx context.Context, id string) (*entity.Signature, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sigs[id]
	if !ok {
		return nil, port.ErrNotFound
	}
	cp := *s
	return &cp, nil
}

func (m *mockSignatureRepo) FindActive(ctx context.Context, dealID string, role entity.SignerRole) (*entity.Signature, error) {
	return nil, port.ErrNotFound
}

func (m *mockSignatureRepo) ListPreviewsDue(ctx context.Context, at time.Time, limit int) ([]*entity.Signature, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*entity.Signature
	for _, s := range m.sigs {
		if s.ImagePreviewKey != "" && s.PreviewExpiresAt != nil && !s.PreviewExpiresAt.After(at) {
			cp := *s
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (m *mockSignatureRepo) ListDueForDeletion(ctx context.Context, at time.Time, limit int) ([]*entity.Signature, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*entity.Signature
	for _, s := range m.sigs {
		if (s.DeletedAt == nil || s.ImageKey != "") && !s.ScheduledDeletionAt.After(at) {
			cp := *s
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (m *mockSignatureRepo) ClearPreview(ctx context.Context, id string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sigs[id]
	if !ok || s.ImagePreviewKey == "" {
		return false, nil
	}
	s.ImagePreviewKey = ""
	return true, nil
}

func (m *mockSignatureRepo) Tombstone(ctx context.Context, id string, at time.Time) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sigs[id]
	if !ok || s.DeletedAt != nil {
		return false, nil
	}
	s.DeletedAt = &at
	s.ImagePreviewKey = ""
	return true, nil
}

func (m *mockSignatureRepo) ClearImage(ctx context.Context, id string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sigs[id]
	if !ok || s.ImageKey == "" {
		return false, nil
	}
	s.ImageKey = ""
	return true, nil
}

type mockObjectStore struct {
	mu        sync.Mutex
	objects   map[string][]byte
	deleteErr map[string]error
}

func (m *mockObjectStore) Put(ctx context.Context, key string, data []byte, contentType string, metadata map[string]string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.objects[key] = data
	return key, nil
}

func (m *mockObjectStore) Get(ctx context.Context, key string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.objects[key]
	if !ok {
		return nil, port.ErrObjectNotFound
	}
	return d, nil
}

func (m *mockObjectStore) Delete(ctx context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.deleteErr[key]; err != nil {
		return err
	}
	if _, ok := m.objects[key]; !ok {
		return port.ErrObjectNotFound
	}
	delete(m.objects, key)
	return nil
}

type mockRecorder struct {
	mu     sync.Mutex
	counts map[string]int
}

func (m *mockRecorder) SweepObserved(pass string, count int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.counts[pass] += count
}

type mockAuditSink struct {
	mu     sync.Mutex
	events []*event.Event
}

func (m *mockAuditSink) Record(ctx context.Context, evt *event.Event) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, evt)
	return nil
}

type mockLogger struct {
	mu     sync.Mutex
	errors []string
}

func (m *mockLogger) Info(msg string, keysAndValues ...interface{}) {}

func (m *mockLogger) Error(msg string, keysAndValues ...interface{}) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.errors = append(m.errors, msg)
}

type fixture struct {
	sessions   *mockSessionStore
	signatures *mockSignatureRepo
	objects    *mockObjectStore
	recorder   *mockRecorder
	audit      *mockAuditSink
	logger     *mockLogger
	sweeper    Sweeper
}

func newFixture() *fixture {
	f := &fixture{
		sessions:   &mockSessionStore{sessions: map[string]*entity.SigningSession{}},
		signatures: &mockSignatureRepo{sigs: map[string]*entity.Signature{}},
		objects:    &mockObjectStore{objects: map[string][]byte{}, deleteErr: map[string]error{}},
		recorder:   &mockRecorder{counts: map[string]int{}},
		audit:      &mockAuditSink{},
		logger:     &mockLogger{},
	}
	f.sweeper = NewSweeper(f.sessions, f.signatures, f.objects, f.logger,
		WithRecorder(f.recorder),
		WithAuditSink(f.audit),
	)
	return f
}

func (f *fixture) addSession(token string, expiresAt time.Time, status string) {
	f.sessions.sessions[token] = &entity.SigningSession{ID: "s-" + token, Token: token, Status: status, ExpiresAt: expiresAt}
}

func (f *fixture) addSignature(id string, previewExpires, deleteAt time.Time) *entity.Signature {
	sig := &entity.Signature{
		ID:                  id,
		ImageKey:            "signatures/" + id + ".png",
		ImagePreviewKey:     "previews/" + id + ".png",
		PreviewExpiresAt:    &previewExpires,
		ScheduledDeletionAt: deleteAt,
	}
	f.signatures.sigs[id] = sig
	f.objects.objects[sig.ImageKey] = []byte("img")
	f.objects.objects[sig.ImagePreviewKey] = []byte("img")
	return sig
}

func TestSweep_ExpiresSessionsPastGrace(t *testing.T) {
	f := newFixture()
	f.addSession("stale", now.Add(-2*time.Minute), entity.SessionStatusPending)
	f.addSession("within-grace", now.Add(-30*time.Second), entity.SessionStatusPending)
	f.addSession("live", now.Add(10*time.Minute), entity.SessionStatusPending)
	f.addSession("signed", now.Add(-time.Hour), entity.SessionStatusSigned)

	summary, err := f.sweeper.Sweep(context.Background(), now)
	require.NoError(t, err)

	assert.Equal(t, 1, summary.SessionsExpired)
	assert.Equal(t, entity.SessionStatusExpired, f.sessions.sessions["stale"].Status)
	assert.Equal(t, entity.SessionStatusPending, f.sessions.sessions["within-grace"].Status)
	assert.Equal(t, entity.SessionStatusPending, f.sessions.sessions["live"].Status)
	assert.Equal(t, entity.SessionStatusSigned, f.sessions.sessions["signed"].Status)
	assert.Equal(t, 1, f.recorder.counts[PassSessions])
}

func TestSweep_ClearsDuePreviews(t *testing.T) {
	f := newFixture()
	due := f.addSignature("due", now, now.Add(720*time.Hour))
	fresh := f.addSignature("fresh", now.Add(time.Hour), now.Add(720*time.Hour))

	summary, err := f.sweeper.Sweep(context.Background(), now)
	require.NoError(t, err)

	assert.Equal(t, 1, summary.PreviewsCleared)
	assert.Empty(t, f.signatures.sigs["due"].ImagePreviewKey)
	assert.NotContains(t, f.objects.objects, "previews/due.png")
	assert.Contains(t, f.objects.objects, due.ImageKey)
	assert.Equal(t, fresh.ImagePreviewKey, f.signatures.sigs["fresh"].ImagePreviewKey)
}

func TestSweep_PreviewObjectFailureStillClearsKey(t *testing.T) {
	f := newFixture()
	f.addSignature("due", now.Add(-time.Minute), now.Add(720*time.Hour))
	f.objects.deleteErr["previews/due.png"] = errors.New("bucket unavailable")

	summary, err := f.sweeper.Sweep(context.Background(), now)
	require.NoError(t, err)

	assert.Equal(t, 1, summary.PreviewsCleared)
	assert.Empty(t, f.signatures.sigs["due"].ImagePreviewKey)
	assert.Contains(t, f.logger.errors, "Failed to delete preview object")
}

func TestSweep_DeletesSignaturesPastRetention(t *testing.T) {
	f := newFixture()
	f.addSignature("old", now.Add(-719*time.Hour), now.Add(-time.Second))
	f.addSignature("young", now.Add(time.Hour), now.Add(time.Hour))

	// the image of a second old signature is already gone
	gone := f.addSignature("gone", now.Add(-800*time.Hour), now)
	delete(f.objects.objects, gone.ImageKey)

	summary, err := f.sweeper.Sweep(context.Background(), now)
	require.NoError(t, err)

	assert.Equal(t, 2, summary.SignaturesDeleted)
	assert.Equal(t, 0, summary.BlobDeleteFailures)
	for _, id := range []string{"old", "gone"} {
		sig := f.signatures.sigs[id]
		require.NotNil(t, sig.DeletedAt, id)
		assert.Equal(t, now, *sig.DeletedAt)
		assert.Empty(t, sig.ImageKey)
		assert.Empty(t, sig.ImagePreviewKey)
	}
	assert.Nil(t, f.signatures.sigs["young"].DeletedAt)
	assert.Len(t, f.objects.objects, 2)
}

func TestSweep_BlobFailureStillTombstonesAndRetriesBlob(t *testing.T) {
	f := newFixture()
	sig := f.addSignature("stuck", now.Add(-time.Hour), now.Add(-time.Minute))
	f.objects.deleteErr[sig.ImageKey] = errors.New("permission denied")

	summary, err := f.sweeper.Sweep(context.Background(), now)
	require.NoError(t, err)

	assert.Equal(t, 1, summary.SignaturesDeleted)
	assert.Equal(t, 1, summary.BlobDeleteFailures)
	stuck := f.signatures.sigs["stuck"]
	require.NotNil(t, stuck.DeletedAt)
	assert.Equal(t, now, *stuck.DeletedAt)
	assert.Empty(t, stuck.ImagePreviewKey)
	assert.Equal(t, sig.ImageKey, stuck.ImageKey, "image key kept while the blob remains")

	// every sweep retries the blob once without tombstoning again
	for i := 1; i <= 2; i++ {
		summary, err = f.sweeper.Sweep(context.Background(), now.Add(time.Duration(i)*time.Minute))
		require.NoError(t, err)
		assert.Equal(t, 0, summary.SignaturesDeleted)
		assert.Equal(t, 1, summary.BlobDeleteFailures)
		assert.Equal(t, now, *f.signatures.sigs["stuck"].DeletedAt)
	}

	delete(f.objects.deleteErr, sig.ImageKey)
	summary, err = f.sweeper.Sweep(context.Background(), now.Add(time.Hour))
	require.NoError(t, err)
	assert.Equal(t, 0, summary.BlobDeleteFailures)
	assert.Empty(t, f.signatures.sigs["stuck"].ImageKey)
	assert.NotContains(t, f.objects.objects, sig.ImageKey)

	summary, err = f.sweeper.Sweep(context.Background(), now.Add(2*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, &SweepSummary{}, summary)
}

func TestSweep_IsIdempotent(t *testing.T) {
	f := newFixture()
	f.addSession("stale", now.Add(-time.Hour), entity.SessionStatusPending)
	f.addSignature("old", now.Add(-time.Hour), now.Add(-time.Minute))

	first, err := f.sweeper.Sweep(context.Background(), now)
	require.NoError(t, err)
	assert.Equal(t, 1, first.SessionsExpired)
	assert.Equal(t, 1, first.SignaturesDeleted)

	second, err := f.sweeper.Sweep(context.Background(), now)
	require.NoError(t, err)
	assert.Equal(t, &SweepSummary{}, second)
	assert.Len(t, f.audit.events, 1)
	assert.Equal(t, event.TypeSweepCompleted, f.audit.events[0].Type)
}

func TestSweep_FailingPassDoesNotStopOthers(t *testing.T) {
	f := newFixture()
	f.sessions.listErr = errors.New("redis down")
	f.addSignature("old", now.Add(-time.Hour), now.Add(-time.Minute))

	summary, err := f.sweeper.Sweep(context.Background(), now)

	require.Error(t, err)
	assert.Contains(t, err.Error(), "redis down")
	assert.Equal(t, 1, summary.SignaturesDeleted)
}

func TestSweep_ConcurrentRunsCountEachChangeOnce(t *testing.T) {
	f := newFixture()
	for _, token := range []string{"a", "b", "c", "d"} {
		f.addSession(token, now.Add(-time.Hour), entity.SessionStatusPending)
	}

	var wg sync.WaitGroup
	var mu sync.Mutex
	total := 0
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			summary, err := f.sweeper.Sweep(context.Background(), now)
			if err == nil {
				mu.Lock()
				total += summary.SessionsExpired
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 4, total)
}

func TestSweep_WithGraceZero(t *testing.T) {
	f := newFixture()
	f.addSession("just-expired", now.Add(-time.Second), entity.SessionStatusPending)
	sw := NewSweeper(f.sessions, f.signatures, f.objects, f.logger, WithGrace(0))

	summary, err := sw.Sweep(context.Background(), now)
	require.NoError(t, err)
	assert.Equal(t, 1, summary.SessionsExpired)
}
