package entity

import "time"

// SignerRole identifies which party a signing session collects a signature from
type SignerRole string

// Signer role constants
const (
	SignerBuyer   SignerRole = "buyer"
	SignerCoBuyer SignerRole = "co_buyer"
	SignerSeller  SignerRole = "seller"
	SignerNotary  SignerRole = "notary"
)

// IsValid returns true if the role is a known signer role
func (r SignerRole) IsValid() bool {
	switch r {
	case SignerBuyer, SignerCoBuyer, SignerSeller, SignerNotary:
		return true
	default:
		return false
	}
}

// String returns the string representation of the role
func (r SignerRole) String() string {
	return string(r)
}

// Session status constants
const (
	SessionStatusPending   = "pending"
	SessionStatusSigned    = "signed"
	SessionStatusCancelled = "cancelled"
	SessionStatusExpired   = "expired"

	// SessionStatusSuperseded is never stored; it is reported for a pending session
	// that a newer pending session for the same signer has replaced
	SessionStatusSuperseded = "superseded"
)

// Document status constants
const (
	DocumentStatusDraft           = "draft"
	DocumentStatusReady           = "ready"
	DocumentStatusPartiallySigned = "partially_signed"
	DocumentStatusFullySigned     = "fully_signed"
)

// Content types accepted for signature images
const (
	ContentTypePNG = "image/png"
	ContentTypeSVG = "image/svg+xml"
)

// Default time windows
const (
	DefaultSessionWindow   = 15 * time.Minute
	DefaultPreviewWindow   = 24 * time.Hour
	DefaultRetentionWindow = 30 * 24 * time.Hour
	DefaultSweepGrace      = time.Minute
)

// Consent text shown to the signer. The version is stored with every consent record.
const (
	ConsentVersion = "2024-01"
	ConsentText    = "I agree to sign this document electronically. I understand that my electronic " +
		"signature has the same legal effect as a handwritten signature, and I consent to " +
		"the use of electronic records for this transaction."
)
