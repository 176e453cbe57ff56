package event

// Type identifies the type of domain event
type Type string

const (
	TypeStatusChanged      Type = "entity.status_changed"
	TypeCascadeApplied     Type = "entity.cascade_applied"
	TypeSessionCreated     Type = "signing.session_created"
	TypeSessionCancelled   Type = "signing.session_cancelled"
	TypeSignatureSubmitted Type = "signature.submitted"
	TypeDocumentSigned     Type = "document.fully_signed"
	TypeConsentRevoked     Type = "consent.revoked"
	TypeSweepCompleted     Type = "retention.sweep_completed"
)

// String returns the string representation of the event type
func (t Type) String() string {
	return string(t)
}

// IsValid checks if the event type is one of the defined constants
func (t Type) IsValid() bool {
	switch t {
	case TypeStatusChanged,
		TypeCascadeApplied,
		TypeSessionCreated,
		TypeSessionCancelled,
		TypeSignatureSubmitted,
		TypeDocumentSigned,
		TypeConsentRevoked,
		TypeSweepCompleted:
		return true
	default:
		return false
	}
}
