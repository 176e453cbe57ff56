package entity

import "time"

// Document is a deal document that collects signatures from a set of required roles
type Document struct {
	ID                  string                `json:"id"`
	TenantID            string                `json:"tenant_id"`
	DealID              string                `json:"deal_id"`
	Name                string                `json:"name"`
	Status              string                `json:"status"`
	RequiredSignatures  []SignerRole          `json:"required_signatures"`
	SignaturesCollected map[SignerRole]string `json:"signatures_collected"`
	Version             int64                 `json:"version"`
	CreatedAt           time.Time             `json:"created_at"`
	UpdatedAt           time.Time             `json:"updated_at"`
	FullySignedAt       *time.Time            `json:"fully_signed_at,omitempty"`
}

// MissingRoles returns the required roles that have no signature yet
func (d *Document) MissingRoles() []SignerRole {
	var missing []SignerRole
	for _, role := range d.RequiredSignatures {
		if _, ok := d.SignaturesCollected[role]; !ok {
			missing = append(missing, role)
		}
	}
	return missing
}

// IsFullySigned reports whether every required role has signed.
// A document with no required roles is never fully signed.
func (d *Document) IsFullySigned() bool {
	return len(d.RequiredSignatures) > 0 && len(d.MissingRoles()) == 0
}

// Collect records a signature for a role and recomputes the document status
func (d *Document) Collect(role SignerRole, signatureID string, at time.Time) {
	if d.SignaturesCollected == nil {
		d.SignaturesCollected = make(map[SignerRole]string)
	}
	d.SignaturesCollected[role] = signatureID
	d.UpdatedAt = at

	if d.IsFullySigned() {
		if d.Status != DocumentStatusFullySigned {
			d.FullySignedAt = &at
		}
		d.Status = DocumentStatusFullySigned
		return
	}
	d.Status = DocumentStatusPartiallySigned
}
