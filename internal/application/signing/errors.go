package signing

import (
	"errors"
	"fmt"
)

var (
	ErrSessionNotFound         = errors.New("signing session not found")
	ErrSessionNotPending       = errors.New("signing session is not pending")
	ErrSessionExpired          = errors.New("signing session expired")
	ErrConsentRequired         = errors.New("electronic signature consent is required")
	ErrInvalidSignaturePayload = errors.New("invalid signature payload")

	ErrAlreadySigned      = errors.New("role has already signed this deal")
	ErrForbidden          = errors.New("only the creator may cancel a signing session")
	ErrUnauthorized       = errors.New("unauthorized")
	ErrDealNotFound       = errors.New("deal not found")
	ErrDocumentNotFound   = errors.New("document not found")
	ErrConsentNotFound    = errors.New("consent record not found")
	ErrInvalidRequest     = errors.New("invalid request")
	ErrConcurrentDocument = errors.New("document modified concurrently")
)

// SessionStateError reports the actual status of a session that is not pending
type SessionStateError struct {
	Status string
}

func (e *SessionStateError) Error() string {
	return fmt.Sprintf("signing session is %s", e.Status)
}

func (e *SessionStateError) Unwrap() error {
	return ErrSessionNotPending
}
