package signing

import (
	"time"

	"github.com/garyjia/dealflow/internal/domain/entity"
)

// SessionView is what an unauthenticated signer may see about their session
type SessionView struct {
	Status         string            `json:"status"`
	SignerRole     entity.SignerRole `json:"signer_role"`
	SignerName     string            `json:"signer_name"`
	ExpiresAt      time.Time         `json:"expires_at"`
	ConsentText    string            `json:"consent_text"`
	ConsentVersion string            `json:"consent_version"`
	DocumentName   string            `json:"document_name"`
	DealLabel      string            `json:"deal_label"`
	DealershipID   string            `json:"dealership_id"`
}

// SessionSummary is the back-office listing entry of a session. It never carries the token.
type SessionSummary struct {
	ID          string            `json:"id"`
	DocumentID  string            `json:"document_id"`
	SignerRole  entity.SignerRole `json:"signer_role"`
	SignerName  string            `json:"signer_name"`
	SignerEmail string            `json:"signer_email,omitempty"`
	Status      string            `json:"status"`
	ExpiresAt   time.Time         `json:"expires_at"`
	CreatedBy   string            `json:"created_by"`
	CreatedAt   time.Time         `json:"created_at"`
	SignedAt    *time.Time        `json:"signed_at,omitempty"`
	SignatureID string            `json:"signature_id,omitempty"`
}

func summarize(s *entity.SigningSession, status string) SessionSummary {
	return SessionSummary{
		ID:          s.ID,
		DocumentID:  s.DocumentID,
		SignerRole:  s.SignerRole,
		SignerName:  s.SignerName,
		SignerEmail: s.SignerEmail,
		Status:      status,
		ExpiresAt:   s.ExpiresAt,
		CreatedBy:   s.CreatedBy,
		CreatedAt:   s.CreatedAt,
		SignedAt:    s.SignedAt,
		SignatureID: s.SignatureID,
	}
}
