package signing

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/garyjia/dealflow/internal/application/dispatcher"
	"github.com/garyjia/dealflow/internal/application/port"
	"github.com/garyjia/dealflow/internal/application/workflow"
	"github.com/garyjia/dealflow/internal/domain/entity"
	"github.com/garyjia/dealflow/internal/domain/event"
	domainwf "github.com/garyjia/dealflow/internal/domain/workflow"
)

const documentAttachAttempts = 3

// Submission outcomes reported to metrics
const (
	OutcomeAccepted = "accepted"
	OutcomeRejected = "rejected"
	OutcomeFailed   = "failed"
)

// SubmitRequest carries a signer's submission for a session token
type SubmitRequest struct {
	Token        string
	ImageData    string
	ConsentGiven bool
	IPAddress    string
	UserAgent    string
	Geolocation  string
}

// SubmitResult describes an accepted signature
type SubmitResult struct {
	SignatureID         string `json:"signature_id"`
	DocumentFullySigned bool   `json:"document_fully_signed"`
	DealAdvanced        bool   `json:"deal_advanced"`
}

func (s *service) SubmitSignature(ctx context.Context, req SubmitRequest) (*SubmitResult, error) {
	result, err := s.submit(ctx, req)
	switch {
	case err == nil:
		s.recorder.SubmissionObserved(OutcomeAccepted)
	case isRejection(err):
		s.recorder.SubmissionObserved(OutcomeRejected)
	default:
		s.recorder.SubmissionObserved(OutcomeFailed)
	}
	return result, err
}

func isRejection(err error) bool {
	for _, target := range []error{ErrSessionNotFound, ErrSessionNotPending, ErrSessionExpired, ErrConsentRequired, ErrInvalidSignaturePayload, ErrAlreadySigned} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

func (s *service) submit(ctx context.Context, req SubmitRequest) (*SubmitResult, error) {
	session, err := s.loadSession(ctx, req.Token)
	if err != nil {
		return nil, err
	}

	if !session.IsPending() {
		return nil, &SessionStateError{Status: session.Status}
	}

	now := s.now()
	if session.IsExpiredAt(now) {
		s.expire(ctx, session, now)
		return nil, ErrSessionExpired
	}

	superseded, err := s.isSuperseded(ctx, session)
	if err != nil {
		return nil, err
	}
	if superseded {
		return nil, &SessionStateError{Status: entity.SessionStatusSuperseded}
	}

	if !req.ConsentGiven {
		return nil, ErrConsentRequired
	}

	image, err := ParseSignatureImage(req.ImageData)
	if err != nil {
		return nil, err
	}

	sig, err := s.signatureFor(ctx, session)
	if err != nil {
		return nil, err
	}
	if sig == nil {
		if sig, err = s.createSignature(ctx, session, image, req, now); err != nil {
			return nil, err
		}
	}

	consentAt := now
	won, err := s.stores.Sessions.Transition(ctx, session.Token, entity.SessionStatusPending, entity.SessionTransition{
		NewStatus:        entity.SessionStatusSigned,
		At:               now,
		SignatureID:      sig.ID,
		SignerIP:         req.IPAddress,
		SignerUserAgent:  req.UserAgent,
		Geolocation:      req.Geolocation,
		ConsentTimestamp: &consentAt,
	})
	if err != nil || !won {
		s.release(ctx, session.Token, sig, now)
		if err != nil {
			return nil, fmt.Errorf("failed to mark session signed: %w", err)
		}
		s.logger.Info("Lost signing race", "session_id", session.ID, "signature_id", sig.ID)
		return nil, s.stateError(ctx, session.Token)
	}
	s.logger.Info("Signature captured",
		"session_id", session.ID,
		"signature_id", sig.ID,
		"deal_id", session.DealID,
		"document_id", session.DocumentID,
		"signer_role", session.SignerRole,
	)

	consent := &entity.ConsentRecord{
		ID:             s.newID(),
		TenantID:       session.TenantID,
		DealID:         session.DealID,
		DocumentID:     session.DocumentID,
		SessionID:      session.ID,
		SignatureID:    sig.ID,
		SignerRole:     session.SignerRole,
		SignerName:     session.SignerName,
		ConsentText:    session.ConsentText,
		ConsentVersion: session.ConsentVersion,
		IPAddress:      req.IPAddress,
		UserAgent:      req.UserAgent,
		GivenAt:        now,
	}
	if err := s.stores.Consents.Create(ctx, consent); err != nil {
		s.logger.Error("Failed to store consent record",
			"session_id", session.ID,
			"signature_id", sig.ID,
			"error", err,
		)
	}

	result := &SubmitResult{SignatureID: sig.ID}

	doc, err := s.attachToDocument(ctx, session, sig.ID, now)
	if err != nil {
		s.logger.Error("Failed to attach signature to document",
			"document_id", session.DocumentID,
			"signature_id", sig.ID,
			"error", err,
		)
	} else if doc.IsFullySigned() {
		result.DocumentFullySigned = true
		s.documentFullySigned(ctx, doc)
		result.DealAdvanced = s.advanceDeal(ctx, session)
	}

	s.record(ctx, event.NewEvent(event.TypeSignatureSubmitted, session.TenantID, "document", session.DocumentID, entity.SystemActorID, map[string]interface{}{
		"session_id":            session.ID,
		"signature_id":          sig.ID,
		"consent_id":            consent.ID,
		"deal_id":               session.DealID,
		"signer_role":           session.SignerRole.String(),
		"ip_address":            req.IPAddress,
		"document_fully_signed": result.DocumentFullySigned,
	}))

	return result, nil
}

// expire marks a timed-out session expired; losing the race to another writer is fine
func (s *service) expire(ctx context.Context, session *entity.SigningSession, now time.Time) {
	_, err := s.stores.Sessions.Transition(ctx, session.Token, entity.SessionStatusPending, entity.SessionTransition{
		NewStatus: entity.SessionStatusExpired,
		At:        now,
	})
	if err != nil {
		s.logger.Error("Failed to mark session expired", "session_id", session.ID, "error", err)
	}
}

// storeImage writes the retained image and its short-lived preview copy
func (s *service) storeImage(ctx context.Context, session *entity.SigningSession, image *SignatureImage, now time.Time) (string, string, error) {
	name := fmt.Sprintf("%s/%s/%s/%d.%s", session.TenantID, session.DealID, session.SignerRole, now.UnixNano(), image.Ext)
	meta := map[string]string{
		"session_id":  session.ID,
		"signer_role": session.SignerRole.String(),
	}

	imageKey, err := s.stores.Objects.Put(ctx, "signatures/"+name, image.Data, image.ContentType, meta)
	if err != nil {
		return "", "", fmt.Errorf("failed to store signature image: %w", err)
	}

	previewKey, err := s.stores.Objects.Put(ctx, "previews/"+name, image.Data, image.ContentType, meta)
	if err != nil {
		s.deleteObjects(ctx, imageKey)
		return "", "", fmt.Errorf("failed to store signature preview: %w", err)
	}

	return imageKey, previewKey, nil
}

// signatureFor returns the live signature an earlier attempt on this session
// left behind, or nil when the role has not signed the deal yet
func (s *service) signatureFor(ctx context.Context, session *entity.SigningSession) (*entity.Signature, error) {
	existing, err := s.stores.Signatures.FindActive(ctx, session.DealID, session.SignerRole)
	if errors.Is(err, port.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to check existing signature: %w", err)
	}
	if existing.SessionID != session.ID {
		return nil, fmt.Errorf("%w: %s on deal %s", ErrAlreadySigned, session.SignerRole, session.DealID)
	}
	s.logger.Info("Reusing stored signature", "session_id", session.ID, "signature_id", existing.ID)
	return existing, nil
}

// createSignature stores the image blobs and the signature row
func (s *service) createSignature(ctx context.Context, session *entity.SigningSession, image *SignatureImage, req SubmitRequest, now time.Time) (*entity.Signature, error) {
	imageKey, previewKey, err := s.storeImage(ctx, session, image, now)
	if err != nil {
		return nil, err
	}

	previewExpires := now.Add(s.config.PreviewWindow)
	sig := &entity.Signature{
		ID:                  s.newID(),
		TenantID:            session.TenantID,
		DealID:              session.DealID,
		DocumentID:          session.DocumentID,
		SessionID:           session.ID,
		SignerRole:          session.SignerRole,
		SignerName:          session.SignerName,
		ImageKey:            imageKey,
		ImagePreviewKey:     previewKey,
		PreviewExpiresAt:    &previewExpires,
		ContentType:         image.ContentType,
		IPAddress:           req.IPAddress,
		UserAgent:           req.UserAgent,
		Geolocation:         req.Geolocation,
		ConsentGiven:        true,
		ConsentText:         session.ConsentText,
		ConsentTimestamp:    now,
		CreatedAt:           now,
		ScheduledDeletionAt: now.Add(s.config.RetentionWindow),
	}

	if err := s.stores.Signatures.Create(ctx, sig); err != nil {
		s.deleteObjects(ctx, imageKey, previewKey)
		if errors.Is(err, port.ErrDuplicate) {
			return nil, fmt.Errorf("%w: concurrent submission for session %s", ErrSessionNotPending, session.ID)
		}
		return nil, fmt.Errorf("failed to store signature: %w", err)
	}
	return sig, nil
}

// release discards a signature the session did not end up referencing
func (s *service) release(ctx context.Context, token string, sig *entity.Signature, now time.Time) {
	if current, err := s.stores.Sessions.GetByToken(ctx, token); err == nil && current.SignatureID == sig.ID {
		return
	}
	if _, err := s.stores.Signatures.Tombstone(ctx, sig.ID, now); err != nil {
		s.logger.Error("Failed to tombstone discarded signature", "signature_id", sig.ID, "error", err)
	}
	if !s.deleteObjects(ctx, sig.ImageKey, sig.ImagePreviewKey) || sig.ImageKey == "" {
		return
	}
	if _, err := s.stores.Signatures.ClearImage(ctx, sig.ID); err != nil {
		s.logger.Error("Failed to clear discarded signature image", "signature_id", sig.ID, "error", err)
	}
}

// deleteObjects removes the given blobs and reports whether all of them are gone
func (s *service) deleteObjects(ctx context.Context, keys ...string) bool {
	gone := true
	for _, key := range keys {
		if key == "" {
			continue
		}
		if err := s.stores.Objects.Delete(ctx, key); err != nil && !errors.Is(err, port.ErrObjectNotFound) {
			s.logger.Error("Failed to delete signature object", "key", key, "error", err)
			gone = false
		}
	}
	return gone
}

// attachToDocument records the signature on its document with compare-and-set, re-reading on conflict
func (s *service) attachToDocument(ctx context.Context, session *entity.SigningSession, signatureID string, now time.Time) (*entity.Document, error) {
	for attempt := 1; attempt <= documentAttachAttempts; attempt++ {
		doc, err := s.stores.Documents.GetByID(ctx, session.DocumentID)
		if err != nil {
			return nil, err
		}
		if doc.SignaturesCollected[session.SignerRole] == signatureID {
			return doc, nil
		}

		expected := doc.Version
		doc.Collect(session.SignerRole, signatureID, now)
		err = s.stores.Documents.UpdateSignatures(ctx, doc, expected)
		if errors.Is(err, port.ErrVersionConflict) {
			continue
		}
		if err != nil {
			return nil, err
		}
		return doc, nil
	}
	return nil, ErrConcurrentDocument
}

// documentFullySigned hands the document to the finalizer asynchronously
func (s *service) documentFullySigned(ctx context.Context, doc *entity.Document) {
	s.logger.Info("Document fully signed", "document_id", doc.ID, "deal_id", doc.DealID)

	if s.dispatcher == nil {
		return
	}

	signatures := make(map[string]interface{}, len(doc.SignaturesCollected))
	for role, id := range doc.SignaturesCollected {
		signatures[role.String()] = id
	}

	evt := event.NewEvent(event.TypeDocumentSigned, doc.TenantID, "document", doc.ID, entity.SystemActorID, map[string]interface{}{
		"deal_id":    doc.DealID,
		"signatures": signatures,
	})
	s.record(ctx, evt)
	s.dispatcher.DispatchAsync(ctx, evt)
}

// advanceDeal completes the deal once every document of it that needs signatures is fully signed
func (s *service) advanceDeal(ctx context.Context, session *entity.SigningSession) bool {
	docs, err := s.stores.Documents.ListByDeal(ctx, session.DealID)
	if err != nil {
		s.logger.Error("Failed to list deal documents", "deal_id", session.DealID, "error", err)
		return false
	}
	for _, d := range docs {
		if len(d.RequiredSignatures) > 0 && !d.IsFullySigned() {
			return false
		}
	}

	result, err := s.orchestrator.Transition(ctx, workflow.TransitionRequest{
		Kind:      domainwf.KindDeal,
		EntityID:  session.DealID,
		NewStatus: domainwf.DealCompleted.String(),
		Actor:     entity.SystemActor(session.TenantID),
		Reason:    "all documents fully signed",
	})
	if err != nil {
		s.logger.Error("Failed to complete deal after signing",
			"deal_id", session.DealID,
			"error", err,
		)
		return false
	}
	return result.Changed
}

// FinalizeHandler adapts a Finalizer to the document.fully_signed event
func FinalizeHandler(f port.Finalizer) dispatcher.Handler {
	return func(ctx context.Context, evt *event.Event) error {
		req := port.FinalizeRequest{
			TenantID:   evt.TenantID,
			DealID:     evt.GetPayloadString("deal_id"),
			DocumentID: evt.EntityID,
			Signatures: make(map[entity.SignerRole]string),
		}
		if sigs, ok := evt.Payload["signatures"].(map[string]interface{}); ok {
			for role, id := range sigs {
				if s, ok := id.(string); ok {
					req.Signatures[entity.SignerRole(role)] = s
				}
			}
		}
		return f.Finalize(ctx, req)
	}
}
