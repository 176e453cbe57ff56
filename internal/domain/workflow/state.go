package workflow

import "fmt"

// Kind identifies an entity kind with its own status enumeration and transition table
type Kind string

const (
	KindDeal    Kind = "deal"
	KindVehicle Kind = "vehicle"
	KindClient  Kind = "client"
)

// String returns the string representation of the kind
func (k Kind) String() string {
	return string(k)
}

// IsValid returns true if the kind is one of the known entity kinds
func (k Kind) IsValid() bool {
	switch k {
	case KindDeal, KindVehicle, KindClient:
		return true
	default:
		return false
	}
}

// Status is the constraint satisfied by every per-kind status enumeration
type Status interface {
	~string
	IsValid() bool
}

// DealStatus represents a state in the deal lifecycle
type DealStatus string

const (
	DealDraft              DealStatus = "DRAFT"
	DealPendingApproval    DealStatus = "PENDING_APPROVAL"
	DealApproved           DealStatus = "APPROVED"
	DealDocumentsGenerated DealStatus = "DOCUMENTS_GENERATED"
	DealAwaitingSignatures DealStatus = "AWAITING_SIGNATURES"
	DealCompleted          DealStatus = "COMPLETED"
	DealDelivered          DealStatus = "DELIVERED"
	DealFinalized          DealStatus = "FINALIZED"
	DealOnHold             DealStatus = "ON_HOLD"
	DealCancelled          DealStatus = "CANCELLED"
	DealVoid               DealStatus = "VOID"
	DealArchived           DealStatus = "ARCHIVED"
)

var validDealStatuses = map[DealStatus]bool{
	DealDraft:              true,
	DealPendingApproval:    true,
	DealApproved:           true,
	DealDocumentsGenerated: true,
	DealAwaitingSignatures: true,
	DealCompleted:          true,
	DealDelivered:          true,
	DealFinalized:          true,
	DealOnHold:             true,
	DealCancelled:          true,
	DealVoid:               true,
	DealArchived:           true,
}

// String returns the string representation of the status
func (s DealStatus) String() string {
	return string(s)
}

// IsValid returns true if the status is a declared deal status
func (s DealStatus) IsValid() bool {
	return validDealStatuses[s]
}

// IsCompletion reports whether reaching this status completes the sale
func (s DealStatus) IsCompletion() bool {
	return s == DealCompleted
}

// IsCancellation reports whether reaching this status unwinds the sale
func (s DealStatus) IsCancellation() bool {
	return s == DealCancelled || s == DealVoid
}

// VehicleStatus represents a state in the vehicle inventory lifecycle
type VehicleStatus string

const (
	VehicleAvailable   VehicleStatus = "AVAILABLE"
	VehicleReserved    VehicleStatus = "RESERVED"
	VehiclePendingSale VehicleStatus = "PENDING_SALE"
	VehicleSold        VehicleStatus = "SOLD"
	VehicleDelivered   VehicleStatus = "DELIVERED"
	VehicleInService   VehicleStatus = "IN_SERVICE"
	VehicleArchived    VehicleStatus = "ARCHIVED"
)

var validVehicleStatuses = map[VehicleStatus]bool{
	VehicleAvailable:   true,
	VehicleReserved:    true,
	VehiclePendingSale: true,
	VehicleSold:        true,
	VehicleDelivered:   true,
	VehicleInService:   true,
	VehicleArchived:    true,
}

// String returns the string representation of the status
func (s VehicleStatus) String() string {
	return string(s)
}

// IsValid returns true if the status is a declared vehicle status
func (s VehicleStatus) IsValid() bool {
	return validVehicleStatuses[s]
}

// ClientStatus represents a state in the lead-to-customer funnel
type ClientStatus string

const (
	ClientLead         ClientStatus = "LEAD"
	ClientContacted    ClientStatus = "CONTACTED"
	ClientQualified    ClientStatus = "QUALIFIED"
	ClientNegotiating  ClientStatus = "NEGOTIATING"
	ClientCustomer     ClientStatus = "CUSTOMER"
	ClientInactive     ClientStatus = "INACTIVE"
	ClientLost         ClientStatus = "LOST"
	ClientDoNotContact ClientStatus = "DO_NOT_CONTACT"
)

var validClientStatuses = map[ClientStatus]bool{
	ClientLead:         true,
	ClientContacted:    true,
	ClientQualified:    true,
	ClientNegotiating:  true,
	ClientCustomer:     true,
	ClientInactive:     true,
	ClientLost:         true,
	ClientDoNotContact: true,
}

// String returns the string representation of the status
func (s ClientStatus) String() string {
	return string(s)
}

// IsValid returns true if the status is a declared client status
func (s ClientStatus) IsValid() bool {
	return validClientStatuses[s]
}

// IsLeadStage reports whether the client is still somewhere in the sales funnel
func (s ClientStatus) IsLeadStage() bool {
	switch s {
	case ClientLead, ClientContacted, ClientQualified, ClientNegotiating:
		return true
	default:
		return false
	}
}

// InitialStatus returns the status a freshly created entity of the given kind starts in
func InitialStatus(kind Kind) string {
	switch kind {
	case KindDeal:
		return DealDraft.String()
	case KindVehicle:
		return VehicleAvailable.String()
	case KindClient:
		return ClientLead.String()
	default:
		return ""
	}
}

// ParseDealStatus converts a raw string into a DealStatus
func ParseDealStatus(s string) (DealStatus, error) {
	status := DealStatus(s)
	if !status.IsValid() {
		return "", fmt.Errorf("%w: %q is not a deal status", ErrInvalidState, s)
	}
	return status, nil
}

// ParseVehicleStatus converts a raw string into a VehicleStatus
func ParseVehicleStatus(s string) (VehicleStatus, error) {
	status := VehicleStatus(s)
	if !status.IsValid() {
		return "", fmt.Errorf("%w: %q is not a vehicle status", ErrInvalidState, s)
	}
	return status, nil
}

// ParseClientStatus converts a raw string into a ClientStatus
func ParseClientStatus(s string) (ClientStatus, error) {
	status := ClientStatus(s)
	if !status.IsValid() {
		return "", fmt.Errorf("%w: %q is not a client status", ErrInvalidState, s)
	}
	return status, nil
}
