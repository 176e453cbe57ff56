package signing

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/garyjia/dealflow/internal/domain/entity"
	"github.com/garyjia/dealflow/internal/domain/event"
	domainwf "github.com/garyjia/dealflow/internal/domain/workflow"
)

const tenant = "dealer-1"

var t0 = time.Date(2024, 6, 1, 9, 0, 0, 0, time.UTC)

var pngData = "data:image/png;base64," + base64.StdEncoding.EncodeToString([]byte("\x89PNG\r\n\x1a\nsignature"))

type testClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *testClock) now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *testClock) advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

type harness struct {
	clock        *testClock
	entities     *mockEntityStore
	documents    *mockDocumentRepo
	signatures   *mockSignatureRepo
	consents     *mockConsentRepo
	sessions     *mockSessionStore
	objects      *mockObjectStore
	orchestrator *mockOrchestrator
	dispatcher   *mockDispatcher
	audit        *mockAuditSink
	logger       *mockLogger
	svc          Service
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	h := &harness{
		clock: &testClock{t: t0},
		entities: &mockEntityStore{entities: map[string]*entity.Entity{
			"deal-1": {ID: "deal-1", Kind: domainwf.KindDeal, TenantID: tenant, Status: "AWAITING_SIGNATURES", Label: "D-1001", Version: 1},
			"deal-2": {ID: "deal-2", Kind: domainwf.KindDeal, TenantID: tenant, Status: "DRAFT", Version: 1},
		}},
		documents: &mockDocumentRepo{docs: map[string]*entity.Document{
			"doc-1": {
				ID: "doc-1", TenantID: tenant, DealID: "deal-1", Name: "Bill of Sale", Status: entity.DocumentStatusReady,
				RequiredSignatures: []entity.SignerRole{entity.SignerBuyer, entity.SignerSeller}, Version: 1,
			},
		}},
		signatures:   &mockSignatureRepo{sigs: map[string]*entity.Signature{}},
		consents:     &mockConsentRepo{consents: map[string]*entity.ConsentRecord{}},
		sessions:     &mockSessionStore{sessions: map[string]*entity.SigningSession{}},
		objects:      &mockObjectStore{objects: map[string][]byte{}},
		orchestrator: &mockOrchestrator{},
		dispatcher:   &mockDispatcher{},
		audit:        &mockAuditSink{},
		logger:       &mockLogger{},
	}

	h.svc = NewService(Stores{
		Entities:   h.entities,
		Documents:  h.documents,
		Signatures: h.signatures,
		Consents:   h.consents,
		Sessions:   h.sessions,
		Objects:    h.objects,
	}, h.orchestrator, h.logger,
		WithClock(h.clock.now),
		WithAuditSink(h.audit),
		WithDispatcher(h.dispatcher),
	)
	return h
}

func clerk() entity.Actor {
	return entity.Actor{ID: "clerk-1", TenantID: tenant, Role: entity.RoleUser}
}

func (h *harness) create(t *testing.T, role entity.SignerRole) *CreatedSession {
	t.Helper()
	created, err := h.svc.CreateSession(context.Background(), CreateSessionRequest{
		DealID:      "deal-1",
		DocumentID:  "doc-1",
		SignerRole:  role,
		SignerName:  "Jane Buyer",
		SignerEmail: "jane@example.com",
		Actor:       clerk(),
	})
	require.NoError(t, err)
	return created
}

func (h *harness) submit(token string) (*SubmitResult, error) {
	return h.svc.SubmitSignature(context.Background(), SubmitRequest{
		Token:        token,
		ImageData:    pngData,
		ConsentGiven: true,
		IPAddress:    "203.0.113.7",
		UserAgent:    "Mozilla/5.0",
	})
}

func TestCreateSession(t *testing.T) {
	h := newHarness(t)

	created := h.create(t, entity.SignerBuyer)

	assert.Len(t, created.Token, 64)
	assert.Equal(t, t0.Add(15*time.Minute), created.ExpiresAt)

	stored, err := h.sessions.GetByToken(context.Background(), created.Token)
	require.NoError(t, err)
	assert.Equal(t, entity.SessionStatusPending, stored.Status)
	assert.Equal(t, "clerk-1", stored.CreatedBy)
	assert.Equal(t, entity.ConsentVersion, stored.ConsentVersion)
	assert.Equal(t, tenant, stored.TenantID)
	assert.Equal(t, []event.Type{event.TypeSessionCreated}, h.audit.types())
}

func TestCreateSession_Rejections(t *testing.T) {
	tests := []struct {
		name    string
		req     CreateSessionRequest
		wantErr error
	}{
		{
			name:    "unknown role",
			req:     CreateSessionRequest{DealID: "deal-1", DocumentID: "doc-1", SignerRole: "witness", SignerName: "X", Actor: clerk()},
			wantErr: ErrInvalidRequest,
		},
		{
			name:    "blank signer name",
			req:     CreateSessionRequest{DealID: "deal-1", DocumentID: "doc-1", SignerRole: entity.SignerBuyer, SignerName: "  ", Actor: clerk()},
			wantErr: ErrInvalidRequest,
		},
		{
			name:    "missing deal",
			req:     CreateSessionRequest{DealID: "deal-404", DocumentID: "doc-1", SignerRole: entity.SignerBuyer, SignerName: "X", Actor: clerk()},
			wantErr: ErrDealNotFound,
		},
		{
			name:    "document of another deal",
			req:     CreateSessionRequest{DealID: "deal-2", DocumentID: "doc-1", SignerRole: entity.SignerBuyer, SignerName: "X", Actor: clerk()},
			wantErr: ErrDocumentNotFound,
		},
		{
			name: "actor of another tenant",
			req: CreateSessionRequest{DealID: "deal-1", DocumentID: "doc-1", SignerRole: entity.SignerBuyer, SignerName: "X",
				Actor: entity.Actor{ID: "u", TenantID: "dealer-2", Role: entity.RoleAdmin}},
			wantErr: ErrUnauthorized,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t)
			_, err := h.svc.CreateSession(context.Background(), tt.req)
			assert.True(t, errors.Is(err, tt.wantErr), "got %v, want %v", err, tt.wantErr)
			assert.Empty(t, h.sessions.sessions)
		})
	}
}

func TestCreateSession_CancelsPendingSibling(t *testing.T) {
	h := newHarness(t)

	first := h.create(t, entity.SignerBuyer)
	h.clock.advance(time.Minute)
	second := h.create(t, entity.SignerBuyer)

	view, err := h.svc.GetSession(context.Background(), first.Token)
	require.NoError(t, err)
	assert.Equal(t, entity.SessionStatusCancelled, view.Status)

	_, err = h.submit(first.Token)
	var stateErr *SessionStateError
	require.True(t, errors.As(err, &stateErr))
	assert.Equal(t, entity.SessionStatusCancelled, stateErr.Status)
	assert.True(t, errors.Is(err, ErrSessionNotPending))

	_, err = h.submit(second.Token)
	assert.NoError(t, err)
}

func TestCreateSession_AlreadySigned(t *testing.T) {
	h := newHarness(t)
	created := h.create(t, entity.SignerBuyer)
	_, err := h.submit(created.Token)
	require.NoError(t, err)

	_, err = h.svc.CreateSession(context.Background(), CreateSessionRequest{
		DealID: "deal-1", DocumentID: "doc-1", SignerRole: entity.SignerBuyer, SignerName: "Jane", Actor: clerk(),
	})
	assert.True(t, errors.Is(err, ErrAlreadySigned))

	// A different role on the same document is still open
	h.create(t, entity.SignerSeller)
}

func TestCreateSession_RoleSignedOnAnotherDocument(t *testing.T) {
	h := newHarness(t)
	h.documents.docs["doc-2"] = &entity.Document{
		ID: "doc-2", TenantID: tenant, DealID: "deal-1", Name: "Odometer Statement", Status: entity.DocumentStatusReady,
		RequiredSignatures: []entity.SignerRole{entity.SignerBuyer, entity.SignerSeller}, Version: 1,
	}
	created := h.create(t, entity.SignerBuyer)
	_, err := h.submit(created.Token)
	require.NoError(t, err)

	_, err = h.svc.CreateSession(context.Background(), CreateSessionRequest{
		DealID: "deal-1", DocumentID: "doc-2", SignerRole: entity.SignerBuyer, SignerName: "Jane", Actor: clerk(),
	})
	assert.True(t, errors.Is(err, ErrAlreadySigned))

	_, err = h.svc.CreateSession(context.Background(), CreateSessionRequest{
		DealID: "deal-1", DocumentID: "doc-2", SignerRole: entity.SignerSeller, SignerName: "Sam", Actor: clerk(),
	})
	assert.NoError(t, err)
}

func TestGetSession_View(t *testing.T) {
	h := newHarness(t)
	created := h.create(t, entity.SignerBuyer)

	view, err := h.svc.GetSession(context.Background(), created.Token)
	require.NoError(t, err)

	assert.Equal(t, entity.SessionStatusPending, view.Status)
	assert.Equal(t, entity.SignerBuyer, view.SignerRole)
	assert.Equal(t, "Jane Buyer", view.SignerName)
	assert.Equal(t, "Bill of Sale", view.DocumentName)
	assert.Equal(t, "D-1001", view.DealLabel)
	assert.Equal(t, tenant, view.DealershipID)
	assert.Equal(t, entity.ConsentText, view.ConsentText)

	h.clock.advance(15 * time.Minute)
	view, err = h.svc.GetSession(context.Background(), created.Token)
	require.NoError(t, err)
	assert.Equal(t, entity.SessionStatusExpired, view.Status)

	_, err = h.svc.GetSession(context.Background(), strings.Repeat("0", 64))
	assert.True(t, errors.Is(err, ErrSessionNotFound))
	_, err = h.svc.GetSession(context.Background(), "../../etc/passwd")
	assert.True(t, errors.Is(err, ErrSessionNotFound))
}

func TestSubmitSignature_ExpiredSession(t *testing.T) {
	h := newHarness(t)
	created := h.create(t, entity.SignerBuyer)

	h.clock.advance(16 * time.Minute)
	_, err := h.submit(created.Token)

	assert.True(t, errors.Is(err, ErrSessionExpired))
	stored, _ := h.sessions.GetByToken(context.Background(), created.Token)
	assert.Equal(t, entity.SessionStatusExpired, stored.Status)
	assert.NotNil(t, stored.ExpiredAt)
	assert.Equal(t, 0, h.objects.count())
	assert.Equal(t, 0, h.signatures.active())
}

func TestSubmitSignature_ConsentRequired(t *testing.T) {
	h := newHarness(t)
	created := h.create(t, entity.SignerBuyer)

	_, err := h.svc.SubmitSignature(context.Background(), SubmitRequest{
		Token:        created.Token,
		ImageData:    pngData,
		ConsentGiven: false,
	})

	assert.True(t, errors.Is(err, ErrConsentRequired))
	assert.Equal(t, 0, h.objects.count())
	assert.Equal(t, 0, h.signatures.active())
	stored, _ := h.sessions.GetByToken(context.Background(), created.Token)
	assert.Equal(t, entity.SessionStatusPending, stored.Status)
}

func TestSubmitSignature_InvalidPayload(t *testing.T) {
	h := newHarness(t)
	created := h.create(t, entity.SignerBuyer)

	_, err := h.svc.SubmitSignature(context.Background(), SubmitRequest{
		Token:        created.Token,
		ImageData:    "data:image/gif;base64,R0lGODlh",
		ConsentGiven: true,
	})

	assert.True(t, errors.Is(err, ErrInvalidSignaturePayload))
	assert.Equal(t, 0, h.objects.count())
}

func TestSubmitSignature_FullFlow(t *testing.T) {
	h := newHarness(t)
	finalizer := &mockFinalizer{}

	buyer := h.create(t, entity.SignerBuyer)
	seller := h.create(t, entity.SignerSeller)

	res, err := h.submit(buyer.Token)
	require.NoError(t, err)
	assert.False(t, res.DocumentFullySigned)
	assert.False(t, res.DealAdvanced)
	assert.Empty(t, h.orchestrator.requests)

	doc, _ := h.documents.GetByID(context.Background(), "doc-1")
	assert.Equal(t, entity.DocumentStatusPartiallySigned, doc.Status)

	h.clock.advance(2 * time.Minute)
	res, err = h.submit(seller.Token)
	require.NoError(t, err)
	assert.True(t, res.DocumentFullySigned)
	assert.True(t, res.DealAdvanced)

	doc, _ = h.documents.GetByID(context.Background(), "doc-1")
	assert.Equal(t, entity.DocumentStatusFullySigned, doc.Status)
	assert.Equal(t, res.SignatureID, doc.SignaturesCollected[entity.SignerSeller])

	require.Len(t, h.orchestrator.requests, 1)
	req := h.orchestrator.requests[0]
	assert.Equal(t, "deal-1", req.EntityID)
	assert.Equal(t, "COMPLETED", req.NewStatus)
	assert.True(t, req.Actor.IsSystem())
	assert.Equal(t, tenant, req.Actor.TenantID)

	require.Len(t, h.dispatcher.events, 1)
	finalizeEvt := h.dispatcher.events[0]
	assert.Equal(t, event.TypeDocumentSigned, finalizeEvt.Type)
	require.NoError(t, FinalizeHandler(finalizer)(context.Background(), finalizeEvt))
	require.Len(t, finalizer.requests, 1)
	assert.Equal(t, "doc-1", finalizer.requests[0].DocumentID)
	assert.Equal(t, res.SignatureID, finalizer.requests[0].Signatures[entity.SignerSeller])

	sig, err := h.signatures.GetByID(context.Background(), res.SignatureID)
	require.NoError(t, err)
	now := t0.Add(2 * time.Minute)
	assert.Equal(t, now.Add(30*24*time.Hour), sig.ScheduledDeletionAt)
	assert.Equal(t, now.Add(24*time.Hour), *sig.PreviewExpiresAt)
	assert.Equal(t, fmt.Sprintf("signatures/%s/deal-1/seller/%d.png", tenant, now.UnixNano()), sig.ImageKey)
	assert.Equal(t, fmt.Sprintf("previews/%s/deal-1/seller/%d.png", tenant, now.UnixNano()), sig.ImagePreviewKey)
	assert.Equal(t, "203.0.113.7", sig.IPAddress)
	assert.True(t, sig.ConsentGiven)
	assert.Equal(t, 4, h.objects.count())

	stored, _ := h.sessions.GetByToken(context.Background(), seller.Token)
	assert.Equal(t, entity.SessionStatusSigned, stored.Status)
	assert.Equal(t, res.SignatureID, stored.SignatureID)
	assert.Equal(t, "Mozilla/5.0", stored.SignerUserAgent)

	consents, _ := h.consents.ListByDeal(context.Background(), "deal-1")
	assert.Len(t, consents, 2)

	_, err = h.submit(seller.Token)
	var stateErr *SessionStateError
	require.True(t, errors.As(err, &stateErr))
	assert.Equal(t, entity.SessionStatusSigned, stateErr.Status)
}

func TestSubmitSignature_DealCompletionFailureIsNotSurfaced(t *testing.T) {
	h := newHarness(t)
	h.orchestrator.err = errors.New("cannot move deal")
	h.documents.docs["doc-1"].RequiredSignatures = []entity.SignerRole{entity.SignerBuyer}

	created := h.create(t, entity.SignerBuyer)
	res, err := h.submit(created.Token)

	require.NoError(t, err)
	assert.True(t, res.DocumentFullySigned)
	assert.False(t, res.DealAdvanced)
	assert.Contains(t, h.logger.errors, "Failed to complete deal after signing")
}

func TestSubmitSignature_WaitsForEveryDealDocument(t *testing.T) {
	h := newHarness(t)
	h.documents.docs["doc-1"].RequiredSignatures = []entity.SignerRole{entity.SignerBuyer}
	h.documents.docs["doc-2"] = &entity.Document{
		ID: "doc-2", TenantID: tenant, DealID: "deal-1", Name: "Odometer Statement",
		RequiredSignatures: []entity.SignerRole{entity.SignerBuyer}, Version: 1,
	}

	created := h.create(t, entity.SignerBuyer)
	res, err := h.submit(created.Token)

	require.NoError(t, err)
	assert.True(t, res.DocumentFullySigned)
	assert.False(t, res.DealAdvanced)
	assert.Empty(t, h.orchestrator.requests)
}

func TestSubmitSignature_DocumentWithoutRequiredRolesDoesNotBlockDeal(t *testing.T) {
	h := newHarness(t)
	h.documents.docs["doc-1"].RequiredSignatures = []entity.SignerRole{entity.SignerBuyer}
	h.documents.docs["doc-2"] = &entity.Document{
		ID: "doc-2", TenantID: tenant, DealID: "deal-1", Name: "Buyer's Guide", Version: 1,
	}

	created := h.create(t, entity.SignerBuyer)
	res, err := h.submit(created.Token)

	require.NoError(t, err)
	assert.True(t, res.DealAdvanced)
	require.Len(t, h.orchestrator.requests, 1)
	assert.Equal(t, domainwf.DealCompleted.String(), h.orchestrator.requests[0].NewStatus)
	doc2, _ := h.documents.GetByID(context.Background(), "doc-2")
	assert.False(t, doc2.IsFullySigned())
}

func TestSubmitSignature_SupersededSession(t *testing.T) {
	h := newHarness(t)
	older := &entity.SigningSession{
		ID: "s-old", Token: strings.Repeat("a", 64), TenantID: tenant, DealID: "deal-1", DocumentID: "doc-1",
		SignerRole: entity.SignerBuyer, Status: entity.SessionStatusPending, CreatedAt: t0, ExpiresAt: t0.Add(15 * time.Minute),
	}
	newer := *older
	newer.ID, newer.Token, newer.CreatedAt = "s-new", strings.Repeat("b", 64), t0.Add(time.Second)
	require.NoError(t, h.sessions.Create(context.Background(), older))
	require.NoError(t, h.sessions.Create(context.Background(), &newer))

	view, err := h.svc.GetSession(context.Background(), older.Token)
	require.NoError(t, err)
	assert.Equal(t, entity.SessionStatusSuperseded, view.Status)

	_, err = h.submit(older.Token)
	assert.True(t, errors.Is(err, ErrSessionNotPending))
	assert.Equal(t, 0, h.objects.count())

	_, err = h.submit(newer.Token)
	assert.NoError(t, err)
}

func TestSubmitSignature_LostRaceDiscardsSignature(t *testing.T) {
	h := newHarness(t)
	created := h.create(t, entity.SignerBuyer)
	h.sessions.loseRace = true

	_, err := h.submit(created.Token)

	assert.True(t, errors.Is(err, ErrSessionNotPending))
	assert.Equal(t, 0, h.signatures.active())
	assert.Equal(t, 0, h.objects.count())
	assert.Empty(t, h.consents.consents)
	doc, _ := h.documents.GetByID(context.Background(), "doc-1")
	assert.Empty(t, doc.SignaturesCollected)
}

func TestSubmitSignature_RetryReusesStoredSignature(t *testing.T) {
	h := newHarness(t)
	created := h.create(t, entity.SignerBuyer)
	stored, err := h.sessions.GetByToken(context.Background(), created.Token)
	require.NoError(t, err)

	// an earlier attempt stored the row and blob but never marked the session signed
	h.objects.objects["signatures/earlier.png"] = []byte("png")
	require.NoError(t, h.signatures.Create(context.Background(), &entity.Signature{
		ID: "sig-earlier", TenantID: tenant, DealID: "deal-1", DocumentID: "doc-1", SessionID: stored.ID,
		SignerRole: entity.SignerBuyer, ImageKey: "signatures/earlier.png", CreatedAt: t0,
	}))

	res, err := h.submit(created.Token)

	require.NoError(t, err)
	assert.Equal(t, "sig-earlier", res.SignatureID)
	assert.Equal(t, 1, h.signatures.active())
	assert.Equal(t, 1, h.objects.count())
	after, _ := h.sessions.GetByToken(context.Background(), created.Token)
	assert.Equal(t, entity.SessionStatusSigned, after.Status)
	assert.Equal(t, "sig-earlier", after.SignatureID)
	doc, _ := h.documents.GetByID(context.Background(), "doc-1")
	assert.Equal(t, "sig-earlier", doc.SignaturesCollected[entity.SignerBuyer])
}

func TestSubmitSignature_RoleSignedByAnotherSession(t *testing.T) {
	h := newHarness(t)
	created := h.create(t, entity.SignerBuyer)
	require.NoError(t, h.signatures.Create(context.Background(), &entity.Signature{
		ID: "sig-other", TenantID: tenant, DealID: "deal-1", DocumentID: "doc-1", SessionID: "s-other",
		SignerRole: entity.SignerBuyer, CreatedAt: t0,
	}))

	_, err := h.submit(created.Token)

	assert.True(t, errors.Is(err, ErrAlreadySigned))
	assert.True(t, isRejection(err))
	assert.Equal(t, 1, h.signatures.active())
	assert.Equal(t, 0, h.objects.count())
	after, _ := h.sessions.GetByToken(context.Background(), created.Token)
	assert.Equal(t, entity.SessionStatusPending, after.Status)
}

func TestSubmitSignature_LostRaceKeepsWinnersSignature(t *testing.T) {
	h := newHarness(t)
	created := h.create(t, entity.SignerBuyer)
	stored, err := h.sessions.GetByToken(context.Background(), created.Token)
	require.NoError(t, err)
	require.NoError(t, h.signatures.Create(context.Background(), &entity.Signature{
		ID: "sig-earlier", TenantID: tenant, DealID: "deal-1", DocumentID: "doc-1", SessionID: stored.ID,
		SignerRole: entity.SignerBuyer, CreatedAt: t0,
	}))
	h.sessions.loseRace = true
	h.sessions.winnerSignature = "sig-earlier"

	_, err = h.submit(created.Token)

	var stateErr *SessionStateError
	require.True(t, errors.As(err, &stateErr))
	assert.Equal(t, entity.SessionStatusSigned, stateErr.Status)
	sig, err := h.signatures.GetByID(context.Background(), "sig-earlier")
	require.NoError(t, err)
	assert.Nil(t, sig.DeletedAt)
}

func TestSubmitSignature_DocumentConflictIsRetried(t *testing.T) {
	h := newHarness(t)
	h.documents.conflict = 2
	created := h.create(t, entity.SignerBuyer)

	_, err := h.submit(created.Token)
	require.NoError(t, err)

	doc, _ := h.documents.GetByID(context.Background(), "doc-1")
	assert.Contains(t, doc.SignaturesCollected, entity.SignerBuyer)
}

func TestSubmitSignature_StorageFailureLeavesSessionPending(t *testing.T) {
	h := newHarness(t)
	created := h.create(t, entity.SignerBuyer)
	h.objects.putErr = errors.New("bucket unavailable")

	_, err := h.submit(created.Token)

	require.Error(t, err)
	assert.False(t, isRejection(err))
	stored, _ := h.sessions.GetByToken(context.Background(), created.Token)
	assert.Equal(t, entity.SessionStatusPending, stored.Status)
	assert.Equal(t, 0, h.signatures.active())
}

func TestCancelSession(t *testing.T) {
	h := newHarness(t)
	created := h.create(t, entity.SignerBuyer)

	colleague := entity.Actor{ID: "clerk-2", TenantID: tenant, Role: entity.RoleUser}
	assert.True(t, errors.Is(h.svc.CancelSession(context.Background(), created.Token, colleague), ErrForbidden))

	require.NoError(t, h.svc.CancelSession(context.Background(), created.Token, clerk()))

	err := h.svc.CancelSession(context.Background(), created.Token, clerk())
	var stateErr *SessionStateError
	require.True(t, errors.As(err, &stateErr))
	assert.Equal(t, entity.SessionStatusCancelled, stateErr.Status)

	_, err = h.submit(created.Token)
	assert.True(t, errors.Is(err, ErrSessionNotPending))
}

func TestCancelSession_Expired(t *testing.T) {
	h := newHarness(t)
	created := h.create(t, entity.SignerBuyer)
	h.clock.advance(16 * time.Minute)

	err := h.svc.CancelSession(context.Background(), created.Token, clerk())

	var stateErr *SessionStateError
	require.True(t, errors.As(err, &stateErr))
	assert.Equal(t, entity.SessionStatusExpired, stateErr.Status)
	stored, _ := h.sessions.GetByToken(context.Background(), created.Token)
	assert.Equal(t, entity.SessionStatusExpired, stored.Status)
}

func TestListSessions(t *testing.T) {
	h := newHarness(t)
	h.create(t, entity.SignerBuyer)
	h.clock.advance(time.Minute)
	h.create(t, entity.SignerSeller)
	h.clock.advance(14 * time.Minute)

	list, err := h.svc.ListSessions(context.Background(), "deal-1", clerk())
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, entity.SignerBuyer, list[0].SignerRole)
	assert.Equal(t, entity.SessionStatusExpired, list[0].Status)
	assert.Equal(t, entity.SessionStatusPending, list[1].Status)

	_, err = h.svc.ListSessions(context.Background(), "deal-1", entity.Actor{ID: "x", TenantID: "dealer-9"})
	assert.True(t, errors.Is(err, ErrUnauthorized))
}

func TestRevokeConsent(t *testing.T) {
	h := newHarness(t)
	created := h.create(t, entity.SignerBuyer)
	_, err := h.submit(created.Token)
	require.NoError(t, err)

	consents, _ := h.consents.ListByDeal(context.Background(), "deal-1")
	require.Len(t, consents, 1)
	id := consents[0].ID

	_, err = h.svc.RevokeConsent(context.Background(), id, entity.Actor{ID: "x", TenantID: "dealer-9"})
	assert.True(t, errors.Is(err, ErrUnauthorized))

	h.clock.advance(time.Hour)
	record, err := h.svc.RevokeConsent(context.Background(), id, clerk())
	require.NoError(t, err)
	require.NotNil(t, record.RevokedAt)
	assert.Equal(t, t0.Add(time.Hour), *record.RevokedAt)

	h.clock.advance(time.Hour)
	again, err := h.svc.RevokeConsent(context.Background(), id, clerk())
	require.NoError(t, err)
	assert.Equal(t, t0.Add(time.Hour), *again.RevokedAt)

	_, err = h.svc.RevokeConsent(context.Background(), "missing", clerk())
	assert.True(t, errors.Is(err, ErrConsentNotFound))
}
