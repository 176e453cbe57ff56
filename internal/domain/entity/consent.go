package entity

import "time"

// ConsentRecord is the durable record of a signer's electronic-signature consent.
// It outlives the session and the signature image.
type ConsentRecord struct {
	ID             string     `json:"id"`
	TenantID       string     `json:"tenant_id"`
	DealID         string     `json:"deal_id"`
	DocumentID     string     `json:"document_id"`
	SessionID      string     `json:"session_id"`
	SignatureID    string     `json:"signature_id"`
	SignerRole     SignerRole `json:"signer_role"`
	SignerName     string     `json:"signer_name"`
	ConsentText    string     `json:"consent_text"`
	ConsentVersion string     `json:"consent_version"`
	IPAddress      string     `json:"ip_address"`
	UserAgent      string     `json:"user_agent"`
	GivenAt        time.Time  `json:"given_at"`
	RevokedAt      *time.Time `json:"revoked_at,omitempty"`
}

// IsRevoked reports whether the signer has withdrawn consent
func (c *ConsentRecord) IsRevoked() bool {
	return c.RevokedAt != nil
}
