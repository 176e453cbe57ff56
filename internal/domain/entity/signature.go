package entity

import "time"

// Signature is a captured signature image plus the legal context of its capture
type Signature struct {
	ID         string     `json:"id"`
	TenantID   string     `json:"tenant_id"`
	DealID     string     `json:"deal_id"`
	DocumentID string     `json:"document_id"`
	SessionID  string     `json:"session_id"`
	SignerRole SignerRole `json:"signer_role"`
	SignerName string     `json:"signer_name"`

	ImageKey         string     `json:"image_key,omitempty"`
	ImagePreviewKey  string     `json:"image_preview_key,omitempty"`
	PreviewExpiresAt *time.Time `json:"preview_expires_at,omitempty"`
	ContentType      string     `json:"content_type"`

	IPAddress        string    `json:"ip_address"`
	UserAgent        string    `json:"user_agent"`
	Geolocation      string    `json:"geolocation,omitempty"`
	ConsentGiven     bool      `json:"consent_given"`
	ConsentText      string    `json:"consent_text"`
	ConsentTimestamp time.Time `json:"consent_timestamp"`

	CreatedAt           time.Time  `json:"created_at"`
	ScheduledDeletionAt time.Time  `json:"scheduled_deletion_at"`
	DeletedAt           *time.Time `json:"deleted_at,omitempty"`
}

// IsDeleted reports whether the signature has been tombstoned
func (s *Signature) IsDeleted() bool {
	return s.DeletedAt != nil
}
