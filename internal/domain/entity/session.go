package entity

import "time"

// SigningSession is a single-use, time-boxed capability allowing one named party
// to sign one document of one deal
type SigningSession struct {
	ID          string     `json:"id"`
	Token       string     `json:"token"`
	TenantID    string     `json:"tenant_id"`
	DealID      string     `json:"deal_id"`
	DocumentID  string     `json:"document_id"`
	SignerRole  SignerRole `json:"signer_role"`
	SignerName  string     `json:"signer_name"`
	SignerEmail string     `json:"signer_email,omitempty"`
	Status      string     `json:"status"`

	ConsentText    string `json:"consent_text"`
	ConsentVersion string `json:"consent_version"`
	ConsentGiven   bool   `json:"consent_given"`

	ExpiresAt time.Time `json:"expires_at"`
	CreatedBy string    `json:"created_by"`
	CreatedAt time.Time `json:"created_at"`

	// Legal record, written when the session is signed
	SignedAt         *time.Time `json:"signed_at,omitempty"`
	SignerIP         string     `json:"signer_ip,omitempty"`
	SignerUserAgent  string     `json:"signer_user_agent,omitempty"`
	Geolocation      string     `json:"geolocation,omitempty"`
	ConsentTimestamp *time.Time `json:"consent_timestamp,omitempty"`
	SignatureID      string     `json:"signature_id,omitempty"`

	CancelledAt *time.Time `json:"cancelled_at,omitempty"`
	ExpiredAt   *time.Time `json:"expired_at,omitempty"`
}

// IsPending reports whether the session is still stored as pending
func (s *SigningSession) IsPending() bool {
	return s.Status == SessionStatusPending
}

// IsExpiredAt reports whether a pending session has run out of time at now
func (s *SigningSession) IsExpiredAt(now time.Time) bool {
	return s.IsPending() && !now.Before(s.ExpiresAt)
}

// SessionTransition describes a compare-and-set move out of the pending status
type SessionTransition struct {
	NewStatus string
	At        time.Time

	// Set when NewStatus is signed
	SignatureID      string
	SignerIP         string
	SignerUserAgent  string
	Geolocation      string
	ConsentTimestamp *time.Time
}

// Apply writes the transition onto the session
func (t SessionTransition) Apply(s *SigningSession) {
	at := t.At
	s.Status = t.NewStatus
	switch t.NewStatus {
	case SessionStatusSigned:
		s.SignedAt = &at
		s.ConsentGiven = true
		s.SignatureID = t.SignatureID
		s.SignerIP = t.SignerIP
		s.SignerUserAgent = t.SignerUserAgent
		s.Geolocation = t.Geolocation
		s.ConsentTimestamp = t.ConsentTimestamp
	case SessionStatusCancelled:
		s.CancelledAt = &at
	case SessionStatusExpired:
		s.ExpiredAt = &at
	}
}
