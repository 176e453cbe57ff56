package signing

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/garyjia/dealflow/internal/application/dispatcher"
	"github.com/garyjia/dealflow/internal/application/port"
	"github.com/garyjia/dealflow/internal/application/workflow"
	"github.com/garyjia/dealflow/internal/domain/entity"
	"github.com/garyjia/dealflow/internal/domain/event"
	domainwf "github.com/garyjia/dealflow/internal/domain/workflow"
)

type mockEntityStore struct {
	mu       sync.Mutex
	entities map[string]*entity.Entity
}

func (m *mockEntityStore) Get(ctx context.Context, kind domainwf.Kind, id string) (*entity.Entity, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.entities[id]
	if !ok || e.Kind != kind {
		return nil, port.ErrNotFound
	}
	cp := *e
	return &cp, nil
}

func (m *mockEntityStore) Insert(ctx context.Context, e *entity.Entity) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entities[e.ID] = e
	return nil
}

func (m *mockEntityStore) Patch(ctx context.Context, kind domainwf.Kind, id string, expectedVersion int64, patch port.EntityPatch) (*entity.Entity, error) {
	return nil, port.ErrNotFound
}

func (m *mockEntityStore) QueryByIndex(ctx context.Context, kind domainwf.Kind, index port.Index, value string) ([]*entity.Entity, error) {
	return nil, nil
}

type mockDocumentRepo struct {
	mu       sync.Mutex
	docs     map[string]*entity.Document
	conflict int
}

func copyDoc(d *entity.Document) *entity.Document {
	cp := *d
	cp.SignaturesCollected = make(map[entity.SignerRole]string, len(d.SignaturesCollected))
	for k, v := range d.SignaturesCollected {
		cp.SignaturesCollected[k] = v
	}
	return &cp
}

func (m *mockDocumentRepo) Create(ctx context.Context, doc *entity.Document) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.docs[doc.ID] = copyDoc(doc)
	return nil
}

func (m *mockDocumentRepo) GetByID(ctx context.Context, id string) (*entity.Document, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.docs[id]
	if !ok {
		return nil, port.ErrNotFound
	}
	return copyDoc(d), nil
}

func (m *mockDocumentRepo) ListByDeal(ctx context.Context, dealID string) ([]*entity.Document, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*entity.Document
	for _, d := range m.docs {
		if d.DealID == dealID {
			out = append(out, copyDoc(d))
		}
	}
	return out, nil
}

func (m *mockDocumentRepo) UpdateSignatures(ctx context.Context, doc *entity.Document, expectedVersion int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	stored := m.docs[doc.ID]
	if m.conflict > 0 {
		m.conflict--
		stored.Version++
		return port.ErrVersionConflict
	}
	if stored.Version != expectedVersion {
		return port.ErrVersionConflict
	}
	doc.Version = expectedVersion + 1
	m.docs[doc.ID] = copyDoc(doc)
	return nil
}

type mockSignatureRepo struct {
	mu   sync.Mutex
	sigs map[string]*entity.Signature
}

func (m *mockSignatureRepo) Create(ctx context.Context, sig *entity.Signature) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, s := range m.sigs {
		if s.SessionID == sig.SessionID && s.DeletedAt == nil {
			return port.ErrDuplicate
		}
	}
	cp := *sig
	m.sigs[sig.ID] = &cp
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
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, s := range m.sigs {
		if s.DealID == dealID && s.SignerRole == role && s.DeletedAt == nil {
			cp := *s
			return &cp, nil
		}
	}
	return nil, port.ErrNotFound
}

func (m *mockSignatureRepo) ListPreviewsDue(ctx context.Context, now time.Time, limit int) ([]*entity.Signature, error) {
	return nil, nil
}

func (m *mockSignatureRepo) ListDueForDeletion(ctx context.Context, now time.Time, limit int) ([]*entity.Signature, error) {
	return nil, nil
}

func (m *mockSignatureRepo) ClearPreview(ctx context.Context, id string) (bool, error) {
	return false, nil
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

func (m *mockSignatureRepo) active() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, s := range m.sigs {
		if s.DeletedAt == nil {
			n++
		}
	}
	return n
}

type mockConsentRepo struct {
	mu       sync.Mutex
	consents map[string]*entity.ConsentRecord
}

func (m *mockConsentRepo) Create(ctx context.Context, record *entity.ConsentRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *record
	m.consents[record.ID] = &cp
	return nil
}

func (m *mockConsentRepo) GetByID(ctx context.Context, id string) (*entity.ConsentRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.consents[id]
	if !ok {
		return nil, port.ErrNotFound
	}
	cp := *c
	return &cp, nil
}

func (m *mockConsentRepo) ListByDeal(ctx context.Context, dealID string) ([]*entity.ConsentRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*entity.ConsentRecord
	for _, c := range m.consents {
		if c.DealID == dealID {
			cp := *c
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (m *mockConsentRepo) Revoke(ctx context.Context, id string, at time.Time) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.consents[id]
	if !ok || c.RevokedAt != nil {
		return false, nil
	}
	c.RevokedAt = &at
	return true, nil
}

type mockSessionStore struct {
	mu       sync.Mutex
	sessions map[string]*entity.SigningSession
	// loseRace makes the next Transition to signed fail its compare-and-set
	loseRace bool
	// winnerSignature, when set, is the signature the winning writer recorded
	winnerSignature string
}

func (m *mockSessionStore) Create(ctx context.Context, session *entity.SigningSession) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *session
	m.sessions[session.Token] = &cp
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

func (m *mockSessionStore) list(match func(*entity.SigningSession) bool) []*entity.SigningSession {
	var out []*entity.SigningSession
	for _, s := range m.sessions {
		if match(s) {
			cp := *s
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out
}

func (m *mockSessionStore) ListPending(ctx context.Context, dealID, documentID string, role entity.SignerRole) ([]*entity.SigningSession, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.list(func(s *entity.SigningSession) bool {
		return s.IsPending() && s.DealID == dealID && s.DocumentID == documentID && s.SignerRole == role
	}), nil
}

func (m *mockSessionStore) ListByDeal(ctx context.Context, dealID string) ([]*entity.SigningSession, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.list(func(s *entity.SigningSession) bool { return s.DealID == dealID }), nil
}

func (m *mockSessionStore) ListExpiredPending(ctx context.Context, cutoff time.Time, limit int) ([]*entity.SigningSession, error) {
	return nil, nil
}

func (m *mockSessionStore) Transition(ctx context.Context, token, from string, t entity.SessionTransition) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[token]
	if !ok {
		return false, port.ErrNotFound
	}
	if m.loseRace && t.NewStatus == entity.SessionStatusSigned {
		m.loseRace = false
		s.Status = entity.SessionStatusCancelled
		if m.winnerSignature != "" {
			s.Status = entity.SessionStatusSigned
			s.SignatureID = m.winnerSignature
		}
		return false, nil
	}
	if s.Status != from {
		return false, nil
	}
	t.Apply(s)
	return true, nil
}

func (m *mockSessionStore) Ping(ctx context.Context) error { return nil }

type mockObjectStore struct {
	mu      sync.Mutex
	objects map[string][]byte
	putErr  error
}

func (m *mockObjectStore) Put(ctx context.Context, key string, data []byte, contentType string, metadata map[string]string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.putErr != nil {
		return "", m.putErr
	}
	m.objects[key] = data
	return key, nil
}

func (m *mockObjectStore) Get(ctx context.Context, key string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	data, ok := m.objects[key]
	if !ok {
		return nil, port.ErrObjectNotFound
	}
	return data, nil
}

func (m *mockObjectStore) Delete(ctx context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.objects[key]; !ok {
		return port.ErrObjectNotFound
	}
	delete(m.objects, key)
	return nil
}

func (m *mockObjectStore) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.objects)
}

type mockOrchestrator struct {
	mu       sync.Mutex
	requests []workflow.TransitionRequest
	err      error
}

func (m *mockOrchestrator) Transition(ctx context.Context, req workflow.TransitionRequest) (*workflow.TransitionResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.requests = append(m.requests, req)
	if m.err != nil {
		return nil, m.err
	}
	return &workflow.TransitionResult{NewStatus: req.NewStatus, Changed: true}, nil
}

type mockDispatcher struct {
	mu     sync.Mutex
	events []*event.Event
}

func (m *mockDispatcher) Subscribe(eventType event.Type, name string, handler dispatcher.Handler) {}
func (m *mockDispatcher) SubscribeAll(name string, handler dispatcher.Handler)                    {}
func (m *mockDispatcher) Unsubscribe(eventType event.Type, name string)                           {}
func (m *mockDispatcher) Dispatch(ctx context.Context, evt *event.Event) error                    { return nil }
func (m *mockDispatcher) ListHandlers(eventType event.Type) []dispatcher.HandlerInfo              { return nil }
func (m *mockDispatcher) Close() error                                                            { return nil }

func (m *mockDispatcher) DispatchAsync(ctx context.Context, evt *event.Event) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, evt)
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

func (m *mockAuditSink) types() []event.Type {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]event.Type, len(m.events))
	for i, e := range m.events {
		out[i] = e.Type
	}
	return out
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

type mockFinalizer struct {
	requests []port.FinalizeRequest
}

func (m *mockFinalizer) Finalize(ctx context.Context, req port.FinalizeRequest) error {
	m.requests = append(m.requests, req)
	return nil
}
