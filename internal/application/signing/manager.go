package signing

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/garyjia/dealflow/internal/application/port"
	"github.com/garyjia/dealflow/internal/domain/entity"
	"github.com/garyjia/dealflow/internal/domain/event"
	domainwf "github.com/garyjia/dealflow/internal/domain/workflow"
)

// CreateSessionRequest asks for a new signing session for one party
type CreateSessionRequest struct {
	DealID      string
	DocumentID  string
	SignerRole  entity.SignerRole
	SignerName  string
	SignerEmail string
	Actor       entity.Actor
}

// CreatedSession is returned to the back-office caller, who delivers the token to the signer
type CreatedSession struct {
	SessionID string    `json:"session_id"`
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
}

func (s *service) CreateSession(ctx context.Context, req CreateSessionRequest) (*CreatedSession, error) {
	if !req.SignerRole.IsValid() {
		return nil, fmt.Errorf("%w: unknown signer role %q", ErrInvalidRequest, req.SignerRole)
	}
	name := strings.TrimSpace(req.SignerName)
	if name == "" {
		return nil, fmt.Errorf("%w: signer name is required", ErrInvalidRequest)
	}

	deal, err := s.loadDeal(ctx, req.DealID, req.Actor)
	if err != nil {
		return nil, err
	}

	doc, err := s.stores.Documents.GetByID(ctx, req.DocumentID)
	if errors.Is(err, port.ErrNotFound) || (err == nil && doc.DealID != deal.ID) {
		return nil, fmt.Errorf("%w: %s", ErrDocumentNotFound, req.DocumentID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load document: %w", err)
	}

	_, err = s.stores.Signatures.FindActive(ctx, deal.ID, req.SignerRole)
	if err == nil {
		return nil, fmt.Errorf("%w: %s on deal %s", ErrAlreadySigned, req.SignerRole, deal.ID)
	}
	if !errors.Is(err, port.ErrNotFound) {
		return nil, fmt.Errorf("failed to check existing signature: %w", err)
	}

	now := s.now()
	if err := s.cancelPending(ctx, deal.ID, doc.ID, req.SignerRole, now); err != nil {
		return nil, err
	}

	token, err := s.newToken()
	if err != nil {
		return nil, err
	}

	session := &entity.SigningSession{
		ID:             s.newID(),
		Token:          token,
		TenantID:       deal.TenantID,
		DealID:         deal.ID,
		DocumentID:     doc.ID,
		SignerRole:     req.SignerRole,
		SignerName:     name,
		SignerEmail:    strings.TrimSpace(req.SignerEmail),
		Status:         entity.SessionStatusPending,
		ConsentText:    s.config.ConsentText,
		ConsentVersion: s.config.ConsentVersion,
		ExpiresAt:      now.Add(s.config.SessionWindow),
		CreatedBy:      req.Actor.ID,
		CreatedAt:      now,
	}

	if err := s.stores.Sessions.Create(ctx, session); err != nil {
		return nil, fmt.Errorf("failed to store signing session: %w", err)
	}

	s.logger.Info("Signing session created",
		"session_id", session.ID,
		"deal_id", deal.ID,
		"document_id", doc.ID,
		"signer_role", req.SignerRole,
		"expires_at", session.ExpiresAt,
	)

	s.record(ctx, event.NewEvent(event.TypeSessionCreated, deal.TenantID, "document", doc.ID, req.Actor.ID, map[string]interface{}{
		"session_id":  session.ID,
		"deal_id":     deal.ID,
		"signer_role": req.SignerRole.String(),
		"expires_at":  session.ExpiresAt,
	}))

	return &CreatedSession{SessionID: session.ID, Token: token, ExpiresAt: session.ExpiresAt}, nil
}

// cancelPending cancels every pending session for the triple so the new one is the only live link
func (s *service) cancelPending(ctx context.Context, dealID, documentID string, role entity.SignerRole, now time.Time) error {
	pending, err := s.stores.Sessions.ListPending(ctx, dealID, documentID, role)
	if err != nil {
		return fmt.Errorf("failed to list pending sessions: %w", err)
	}

	for _, p := range pending {
		ok, err := s.stores.Sessions.Transition(ctx, p.Token, entity.SessionStatusPending, entity.SessionTransition{
			NewStatus: entity.SessionStatusCancelled,
			At:        now,
		})
		if err != nil {
			return fmt.Errorf("failed to cancel superseded session %s: %w", p.ID, err)
		}
		if ok {
			s.logger.Info("Superseded signing session cancelled", "session_id", p.ID, "signer_role", role)
		}
	}
	return nil
}

func (s *service) GetSession(ctx context.Context, token string) (*SessionView, error) {
	session, err := s.loadSession(ctx, token)
	if err != nil {
		return nil, err
	}

	status, err := s.effectiveStatus(ctx, session)
	if err != nil {
		return nil, err
	}

	view := &SessionView{
		Status:         status,
		SignerRole:     session.SignerRole,
		SignerName:     session.SignerName,
		ExpiresAt:      session.ExpiresAt,
		ConsentText:    session.ConsentText,
		ConsentVersion: session.ConsentVersion,
		DealershipID:   session.TenantID,
	}

	if doc, err := s.stores.Documents.GetByID(ctx, session.DocumentID); err == nil {
		view.DocumentName = doc.Name
	}
	if deal, err := s.stores.Entities.Get(ctx, domainwf.KindDeal, session.DealID); err == nil {
		view.DealLabel = deal.Label
	}

	return view, nil
}

func (s *service) CancelSession(ctx context.Context, token string, actor entity.Actor) error {
	session, err := s.loadSession(ctx, token)
	if err != nil {
		return err
	}

	if !actor.CanAccess(session.TenantID) || session.CreatedBy != actor.ID {
		return ErrForbidden
	}
	if !session.IsPending() {
		return &SessionStateError{Status: session.Status}
	}

	now := s.now()
	if session.IsExpiredAt(now) {
		s.expire(ctx, session, now)
		return &SessionStateError{Status: entity.SessionStatusExpired}
	}

	ok, err := s.stores.Sessions.Transition(ctx, token, entity.SessionStatusPending, entity.SessionTransition{
		NewStatus: entity.SessionStatusCancelled,
		At:        now,
	})
	if err != nil {
		return fmt.Errorf("failed to cancel session: %w", err)
	}
	if !ok {
		return s.stateError(ctx, token)
	}

	s.logger.Info("Signing session cancelled", "session_id", session.ID, "actor", actor.ID)
	s.record(ctx, event.NewEvent(event.TypeSessionCancelled, session.TenantID, "document", session.DocumentID, actor.ID, map[string]interface{}{
		"session_id":  session.ID,
		"deal_id":     session.DealID,
		"signer_role": session.SignerRole.String(),
	}))

	return nil
}

func (s *service) ListSessions(ctx context.Context, dealID string, actor entity.Actor) ([]SessionSummary, error) {
	if _, err := s.loadDeal(ctx, dealID, actor); err != nil {
		return nil, err
	}

	sessions, err := s.stores.Sessions.ListByDeal(ctx, dealID)
	if err != nil {
		return nil, fmt.Errorf("failed to list sessions: %w", err)
	}

	now := s.now()
	out := make([]SessionSummary, 0, len(sessions))
	for _, session := range sessions {
		status := session.Status
		if session.IsExpiredAt(now) {
			status = entity.SessionStatusExpired
		}
		out = append(out, summarize(session, status))
	}
	return out, nil
}

func (s *service) RevokeConsent(ctx context.Context, consentID string, actor entity.Actor) (*entity.ConsentRecord, error) {
	record, err := s.stores.Consents.GetByID(ctx, consentID)
	if errors.Is(err, port.ErrNotFound) {
		return nil, fmt.Errorf("%w: %s", ErrConsentNotFound, consentID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load consent record: %w", err)
	}
	if !actor.CanAccess(record.TenantID) {
		return nil, ErrUnauthorized
	}
	if record.IsRevoked() {
		return record, nil
	}

	now := s.now()
	changed, err := s.stores.Consents.Revoke(ctx, consentID, now)
	if err != nil {
		return nil, fmt.Errorf("failed to revoke consent: %w", err)
	}
	if changed {
		record.RevokedAt = &now
		s.logger.Info("Consent revoked", "consent_id", consentID, "actor", actor.ID)
		s.record(ctx, event.NewEvent(event.TypeConsentRevoked, record.TenantID, "consent", record.ID, actor.ID, map[string]interface{}{
			"deal_id":      record.DealID,
			"signature_id": record.SignatureID,
		}))
		return record, nil
	}

	return s.stores.Consents.GetByID(ctx, consentID)
}

func (s *service) loadDeal(ctx context.Context, dealID string, actor entity.Actor) (*entity.Entity, error) {
	deal, err := s.stores.Entities.Get(ctx, domainwf.KindDeal, dealID)
	if errors.Is(err, port.ErrNotFound) {
		return nil, fmt.Errorf("%w: %s", ErrDealNotFound, dealID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load deal: %w", err)
	}
	if !actor.CanAccess(deal.TenantID) {
		return nil, ErrUnauthorized
	}
	return deal, nil
}

func (s *service) loadSession(ctx context.Context, token string) (*entity.SigningSession, error) {
	if !validToken(token) {
		return nil, ErrSessionNotFound
	}
	session, err := s.stores.Sessions.GetByToken(ctx, token)
	if errors.Is(err, port.ErrNotFound) {
		return nil, ErrSessionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load session: %w", err)
	}
	return session, nil
}

// effectiveStatus is the stored status, except that a pending session past its
// expiry reads as expired and one replaced by a newer pending session reads as superseded
func (s *service) effectiveStatus(ctx context.Context, session *entity.SigningSession) (string, error) {
	if !session.IsPending() {
		return session.Status, nil
	}
	if session.IsExpiredAt(s.now()) {
		return entity.SessionStatusExpired, nil
	}
	superseded, err := s.isSuperseded(ctx, session)
	if err != nil {
		return "", err
	}
	if superseded {
		return entity.SessionStatusSuperseded, nil
	}
	return entity.SessionStatusPending, nil
}

// isSuperseded reports whether a newer pending session exists for the same deal, document and role
func (s *service) isSuperseded(ctx context.Context, session *entity.SigningSession) (bool, error) {
	pending, err := s.stores.Sessions.ListPending(ctx, session.DealID, session.DocumentID, session.SignerRole)
	if err != nil {
		return false, fmt.Errorf("failed to list pending sessions: %w", err)
	}
	for _, other := range pending {
		if other.ID == session.ID {
			continue
		}
		if other.CreatedAt.After(session.CreatedAt) ||
			(other.CreatedAt.Equal(session.CreatedAt) && other.ID > session.ID) {
			return true, nil
		}
	}
	return false, nil
}

// stateError re-reads a session after a lost compare-and-set to report its actual status
func (s *service) stateError(ctx context.Context, token string) error {
	current, err := s.stores.Sessions.GetByToken(ctx, token)
	if err != nil {
		return ErrSessionNotPending
	}
	return &SessionStateError{Status: current.Status}
}
