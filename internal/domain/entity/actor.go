package entity

// Role constants for authenticated actors
const (
	RoleUser   = "user"
	RoleAdmin  = "admin"
	RoleSystem = "system"
)

// SystemActorID is recorded as ChangedBy for engine-initiated transitions
const SystemActorID = "system"

// Actor is the authenticated caller resolved by the identity provider
type Actor struct {
	ID       string `json:"id"`
	TenantID string `json:"tenant_id"`
	Role     string `json:"role"`
}

// SystemActor returns the actor used for transitions the engine performs on its own,
// scoped to the tenant of the record that triggered them
func SystemActor(tenantID string) Actor {
	return Actor{ID: SystemActorID, TenantID: tenantID, Role: RoleSystem}
}

// IsSystem reports whether the actor is the engine itself
func (a Actor) IsSystem() bool {
	return a.Role == RoleSystem
}

// IsAdmin reports whether the actor may run maintenance operations
func (a Actor) IsAdmin() bool {
	return a.Role == RoleAdmin || a.Role == RoleSystem
}

// CanAccess reports whether the actor may touch records of the given tenant
func (a Actor) CanAccess(tenantID string) bool {
	return tenantID != "" && a.TenantID == tenantID
}
