package workflow

import (
	"context"
	"errors"
	"fmt"

	"github.com/garyjia/dealflow/internal/application/port"
	"github.com/garyjia/dealflow/internal/domain/entity"
	"github.com/garyjia/dealflow/internal/domain/event"
	domainwf "github.com/garyjia/dealflow/internal/domain/workflow"
)

// Cascade outcomes
const (
	CascadeApplied = "applied"
	CascadeSkipped = "skipped"
	CascadeFailed  = "failed"
)

// CascadeStep is a secondary transition requested by a hook
type CascadeStep struct {
	Kind      domainwf.Kind
	EntityID  string
	NewStatus string
	// Eligible restricts the step to targets currently in one of these statuses; empty means any
	Eligible []string
	// ClientID, when set, replaces the target's client reference; "" clears it
	ClientID *string
	Reason   string
}

// CascadeHook derives secondary transitions from a committed primary transition
type CascadeHook struct {
	Name    string
	Trigger func(previous, next string) bool
	Steps   func(primary *entity.Entity) []CascadeStep
}

// CascadeOutcome reports what a cascade step did
type CascadeOutcome struct {
	Hook     string        `json:"hook"`
	Kind     domainwf.Kind `json:"kind"`
	EntityID string        `json:"entity_id"`
	From     string        `json:"from,omitempty"`
	To       string        `json:"to"`
	Outcome  string        `json:"outcome"`
	Reason   string        `json:"reason,omitempty"`
}

// DealHooks returns the cascades run after a deal transition: completing a deal
// sells its vehicle and converts its client, cancelling or voiding it releases a
// vehicle that was pending sale
func DealHooks() []CascadeHook {
	return []CascadeHook{
		{
			Name: "deal_completed",
			Trigger: func(_, next string) bool {
				return domainwf.DealStatus(next).IsCompletion()
			},
			Steps: func(deal *entity.Entity) []CascadeStep {
				var steps []CascadeStep
				if deal.VehicleID != "" {
					step := CascadeStep{
						Kind:      domainwf.KindVehicle,
						EntityID:  deal.VehicleID,
						NewStatus: domainwf.VehicleSold.String(),
						Reason:    fmt.Sprintf("deal %s completed", deal.ID),
					}
					if deal.ClientID != "" {
						clientID := deal.ClientID
						step.ClientID = &clientID
					}
					steps = append(steps, step)
				}
				if deal.ClientID != "" {
					steps = append(steps, CascadeStep{
						Kind:      domainwf.KindClient,
						EntityID:  deal.ClientID,
						NewStatus: domainwf.ClientCustomer.String(),
						Eligible:  leadStages(),
						Reason:    fmt.Sprintf("deal %s completed", deal.ID),
					})
				}
				return steps
			},
		},
		{
			Name: "deal_cancelled",
			Trigger: func(_, next string) bool {
				return domainwf.DealStatus(next).IsCancellation()
			},
			Steps: func(deal *entity.Entity) []CascadeStep {
				if deal.VehicleID == "" {
					return nil
				}
				detach := ""
				return []CascadeStep{{
					Kind:      domainwf.KindVehicle,
					EntityID:  deal.VehicleID,
					NewStatus: domainwf.VehicleAvailable.String(),
					Eligible:  []string{domainwf.VehiclePendingSale.String()},
					ClientID:  &detach,
					Reason:    fmt.Sprintf("deal %s %s", deal.ID, deal.Status),
				}}
			},
		},
	}
}

func leadStages() []string {
	return []string{
		domainwf.ClientLead.String(),
		domainwf.ClientContacted.String(),
		domainwf.ClientQualified.String(),
		domainwf.ClientNegotiating.String(),
	}
}

// runHooks runs every triggered hook of the primary kind. Nothing here can fail
// the primary transition.
func (o *orchestrator) runHooks(ctx context.Context, kind domainwf.Kind, result *TransitionResult, root *event.Event) []CascadeOutcome {
	var outcomes []CascadeOutcome
	for _, hook := range o.hooks[kind] {
		outcomes = append(outcomes, o.runHook(ctx, hook, result, root)...)
	}
	return outcomes
}

func (o *orchestrator) runHook(ctx context.Context, hook CascadeHook, result *TransitionResult, root *event.Event) (outcomes []CascadeOutcome) {
	defer func() {
		if r := recover(); r != nil {
			o.logger.Error("Cascade hook panic recovered",
				"hook", hook.Name,
				"entity_id", result.Entity.ID,
				"panic", r,
			)
			outcomes = append(outcomes, CascadeOutcome{
				Hook:     hook.Name,
				EntityID: result.Entity.ID,
				Outcome:  CascadeFailed,
				Reason:   fmt.Sprintf("panic: %v", r),
			})
		}
	}()

	if hook.Trigger == nil || !hook.Trigger(result.PreviousStatus, result.NewStatus) {
		return nil
	}

	for _, step := range hook.Steps(result.Entity) {
		out := o.applyStep(ctx, hook.Name, result.Entity, step, root)
		o.recorder.CascadeObserved(step.Kind.String(), out.Outcome)

		if out.Outcome == CascadeFailed {
			o.logger.Error("Cascade step failed",
				"hook", hook.Name,
				"kind", step.Kind,
				"entity_id", step.EntityID,
				"reason", out.Reason,
			)
		} else {
			o.logger.Info("Cascade step finished",
				"hook", hook.Name,
				"kind", step.Kind,
				"entity_id", step.EntityID,
				"outcome", out.Outcome,
				"reason", out.Reason,
			)
		}
		outcomes = append(outcomes, out)
	}

	return outcomes
}

// applyStep validates one cascade step against the target's current state and
// applies it as the system actor, retrying lost version races
func (o *orchestrator) applyStep(ctx context.Context, hook string, primary *entity.Entity, step CascadeStep, root *event.Event) CascadeOutcome {
	out := CascadeOutcome{Hook: hook, Kind: step.Kind, EntityID: step.EntityID, To: step.NewStatus}
	actor := entity.SystemActor(primary.TenantID)

	for attempt := 1; attempt <= o.maxAttempts; attempt++ {
		target, err := o.load(ctx, step.Kind, step.EntityID)
		if errors.Is(err, ErrEntityNotFound) {
			return skip(out, "target not found")
		}
		if err != nil {
			out.Outcome, out.Reason = CascadeFailed, err.Error()
			return out
		}
		out.From = target.Status

		switch {
		case !actor.CanAccess(target.TenantID):
			return skip(out, "target belongs to another tenant")
		case target.Status == step.NewStatus:
			return skip(out, "already "+step.NewStatus)
		case len(step.Eligible) > 0 && !contains(step.Eligible, target.Status):
			return skip(out, fmt.Sprintf("status %s not eligible", target.Status))
		case !domainwf.CanTransition(step.Kind, target.Status, step.NewStatus):
			return skip(out, fmt.Sprintf("transition %s -> %s not allowed", target.Status, step.NewStatus))
		}

		updated, err := o.apply(ctx, target, step.NewStatus, step.ClientID, actor.ID, step.Reason)
		if errors.Is(err, port.ErrVersionConflict) {
			continue
		}
		if err != nil {
			out.Outcome, out.Reason = CascadeFailed, err.Error()
			return out
		}

		out.Outcome = CascadeApplied
		o.emit(ctx, event.TypeCascadeApplied, updated, actor.ID, root.CorrelationID, map[string]interface{}{
			"hook":            hook,
			"previous_status": target.Status,
			"new_status":      updated.Status,
			"source_kind":     primary.Kind.String(),
			"source_id":       primary.ID,
		})
		return out
	}

	out.Outcome, out.Reason = CascadeFailed, ErrConcurrentModification.Error()
	return out
}

func skip(out CascadeOutcome, reason string) CascadeOutcome {
	out.Outcome = CascadeSkipped
	out.Reason = reason
	return out
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
