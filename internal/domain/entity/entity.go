package entity

import (
	"time"

	"github.com/garyjia/dealflow/internal/domain/workflow"
)

// Entity is a deal, vehicle or client record as seen by the workflow engine.
// Only the fields the engine reads or writes are modelled.
type Entity struct {
	ID            string         `json:"id"`
	Kind          workflow.Kind  `json:"kind"`
	TenantID      string         `json:"tenant_id"`
	Status        string         `json:"status"`
	StatusHistory []StatusChange `json:"status_history"`

	// VehicleID is set on deals
	VehicleID string `json:"vehicle_id,omitempty"`
	// ClientID is set on deals, and on vehicles once sold to a client
	ClientID string `json:"client_id,omitempty"`
	Label    string `json:"label,omitempty"`

	Version   int64     `json:"version"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// StatusChange is one append-only history entry
type StatusChange struct {
	PreviousStatus string    `json:"previous_status"`
	NewStatus      string    `json:"new_status"`
	ChangedAt      time.Time `json:"changed_at"`
	ChangedBy      string    `json:"changed_by"`
	Reason         string    `json:"reason,omitempty"`
}

// LastChange returns the most recent history entry, or nil for an entity that never moved
func (e *Entity) LastChange() *StatusChange {
	if len(e.StatusHistory) == 0 {
		return nil
	}
	return &e.StatusHistory[len(e.StatusHistory)-1]
}
