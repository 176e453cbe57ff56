package workflow

import "fmt"

var (
	// DealTransitions is the legal edge set of the deal lifecycle
	DealTransitions Table[DealStatus]

	// VehicleTransitions is the legal edge set of vehicle inventory
	VehicleTransitions Table[VehicleStatus]

	// ClientTransitions is the legal edge set of the client funnel
	ClientTransitions Table[ClientStatus]
)

// The builders validate states through the status maps in state.go, which
// must be populated first, so the tables are built in init.
func init() {
	DealTransitions = buildDealTable()
	VehicleTransitions = buildVehicleTable()
	ClientTransitions = buildClientTable()
}

func buildDealTable() Table[DealStatus] {
	b := NewBuilder[DealStatus]()

	b.Configure(DealDraft).
		Permit(DealPendingApproval, DealOnHold, DealCancelled)

	b.Configure(DealPendingApproval).
		Permit(DealApproved, DealDraft, DealOnHold, DealCancelled)

	b.Configure(DealApproved).
		Permit(DealDocumentsGenerated, DealOnHold, DealCancelled)

	b.Configure(DealDocumentsGenerated).
		Permit(DealAwaitingSignatures, DealApproved, DealOnHold, DealCancelled)

	b.Configure(DealAwaitingSignatures).
		Permit(DealCompleted, DealDocumentsGenerated, DealOnHold, DealCancelled)

	b.Configure(DealOnHold).
		Permit(DealDraft, DealPendingApproval, DealApproved, DealDocumentsGenerated, DealAwaitingSignatures, DealCancelled)

	b.Configure(DealCompleted).
		Permit(DealDelivered, DealVoid)

	b.Configure(DealDelivered).
		Permit(DealFinalized, DealVoid)

	b.Configure(DealFinalized).
		Permit(DealArchived)

	return b.Terminal(DealCancelled, DealVoid, DealArchived).Build()
}

func buildVehicleTable() Table[VehicleStatus] {
	b := NewBuilder[VehicleStatus]()

	b.Configure(VehicleAvailable).
		Permit(VehicleReserved, VehiclePendingSale, VehicleInService, VehicleArchived)

	b.Configure(VehicleReserved).
		Permit(VehicleAvailable, VehiclePendingSale, VehicleSold)

	b.Configure(VehiclePendingSale).
		Permit(VehicleAvailable, VehicleReserved, VehicleSold)

	b.Configure(VehicleSold).
		Permit(VehicleDelivered, VehicleArchived)

	b.Configure(VehicleDelivered).
		Permit(VehicleArchived)

	b.Configure(VehicleInService).
		Permit(VehicleAvailable, VehicleArchived)

	return b.Terminal(VehicleArchived).Build()
}

func buildClientTable() Table[ClientStatus] {
	b := NewBuilder[ClientStatus]()

	b.Configure(ClientLead).
		Permit(ClientContacted, ClientQualified, ClientNegotiating, ClientCustomer, ClientLost, ClientDoNotContact)

	b.Configure(ClientContacted).
		Permit(ClientQualified, ClientNegotiating, ClientCustomer, ClientLost, ClientDoNotContact)

	b.Configure(ClientQualified).
		Permit(ClientNegotiating, ClientCustomer, ClientLost, ClientDoNotContact)

	b.Configure(ClientNegotiating).
		Permit(ClientCustomer, ClientQualified, ClientLost, ClientDoNotContact)

	b.Configure(ClientCustomer).
		Permit(ClientInactive, ClientDoNotContact)

	b.Configure(ClientInactive).
		Permit(ClientCustomer, ClientContacted, ClientDoNotContact)

	b.Configure(ClientLost).
		Permit(ClientLead, ClientContacted, ClientDoNotContact)

	return b.Terminal(ClientDoNotContact).Build()
}

// CanTransition reports whether an entity of the given kind may move from one
// status to another. Unknown kinds and statuses fail closed.
func CanTransition(kind Kind, from, to string) bool {
	switch kind {
	case KindDeal:
		return DealTransitions.Allows(DealStatus(from), DealStatus(to))
	case KindVehicle:
		return VehicleTransitions.Allows(VehicleStatus(from), VehicleStatus(to))
	case KindClient:
		return ClientTransitions.Allows(ClientStatus(from), ClientStatus(to))
	default:
		return false
	}
}

// ValidateStatus returns ErrInvalidState if status is not in the kind's enumeration
func ValidateStatus(kind Kind, status string) error {
	var ok bool
	switch kind {
	case KindDeal:
		ok = DealStatus(status).IsValid()
	case KindVehicle:
		ok = VehicleStatus(status).IsValid()
	case KindClient:
		ok = ClientStatus(status).IsValid()
	default:
		return fmt.Errorf("%w: %s", ErrUnknownKind, kind)
	}
	if !ok {
		return fmt.Errorf("%w: %s is not a %s status", ErrInvalidState, status, kind)
	}
	return nil
}

// Targets lists the statuses directly reachable from status for the given kind
func Targets(kind Kind, status string) []string {
	switch kind {
	case KindDeal:
		return toStrings(DealTransitions.Targets(DealStatus(status)))
	case KindVehicle:
		return toStrings(VehicleTransitions.Targets(VehicleStatus(status)))
	case KindClient:
		return toStrings(ClientTransitions.Targets(ClientStatus(status)))
	default:
		return nil
	}
}

// IsTerminal reports whether status can never be exited
func IsTerminal(kind Kind, status string) bool {
	return len(Targets(kind, status)) == 0
}

func toStrings[S Status](in []S) []string {
	out := make([]string, len(in))
	for i, s := range in {
		out[i] = string(s)
	}
	return out
}
