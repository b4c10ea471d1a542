package models

import (
	"errors"
	"fmt"
)

// The package order lifecycle:
//
//	DRAFT → CREATED → INITIATED → IN_REVIEW → CONFIRM → IN_PROGRESS → CLOSE → COMPLETED
//
// Manual/assisted orders may skip directly from CREATED to CONFIRM.
// CLOSE and COMPLETED are terminal (COMPLETED re-entry is an idempotent no-op).
var orderTransitions = map[PackageOrderStatus][]PackageOrderStatus{
	PackageOrderStatusDraft:      {PackageOrderStatusCreated},
	PackageOrderStatusCreated:    {PackageOrderStatusInitiated, PackageOrderStatusConfirm},
	PackageOrderStatusInitiated:  {PackageOrderStatusInReview},
	PackageOrderStatusInReview:   {PackageOrderStatusConfirm},
	PackageOrderStatusConfirm:    {PackageOrderStatusInProgress},
	PackageOrderStatusInProgress: {PackageOrderStatusClose},
	PackageOrderStatusClose:      {PackageOrderStatusCompleted},
}

// CanTransition reports whether from→to is part of the lifecycle. The
// CREATED→CONFIRM skip is only legal for manual orders, which callers check
// separately (GuardTransition).
func CanTransition(from, to PackageOrderStatus) bool {
	for _, next := range orderTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// TransitionCaller describes who is requesting a transition, for the shared
// authorization guard on agent-gated steps.
type TransitionCaller struct {
	UserId  int
	Role    UserRole
	IsAdmin bool
}

// AgentClaimAllowed implements first-claim semantics: the caller must be the
// already-assigned agent, or the slot must be unassigned, or the caller is an
// admin.
func AgentClaimAllowed(assignedAgentId int, caller TransitionCaller) bool {
	if caller.IsAdmin {
		return true
	}
	if assignedAgentId == 0 {
		return true
	}
	return assignedAgentId == caller.UserId
}

// GuardTransition validates a requested transition against the order's
// current state. A violated condition is a rejection, not a crash.
func GuardTransition(order *PackageOrder, to PackageOrderStatus, caller TransitionCaller) error {
	if order == nil {
		return errors.New("order is required")
	}

	// idempotent completion: re-completing a completed order is a no-op
	if to == PackageOrderStatusCompleted && order.Status == PackageOrderStatusCompleted {
		return nil
	}

	if !CanTransition(order.Status, to) {
		return fmt.Errorf("cannot move order from %s to %s", order.Status, to)
	}

	switch to {
	case PackageOrderStatusConfirm:
		if order.Status == PackageOrderStatusCreated {
			// skip path is reserved for manual/assisted orders
			if order.IsManualOrder == nil || !*order.IsManualOrder {
				return errors.New("only manual orders can be confirmed directly")
			}
		}
	case PackageOrderStatusInitiated:
		if !AgentClaimAllowed(order.SalesAgentId, caller) {
			return errors.New("order already claimed by another sales agent")
		}
	case PackageOrderStatusClose:
		if order.ShipmentStatus == nil || !*order.ShipmentStatus {
			return errors.New("shipment must be completed before closing")
		}
		if !caller.IsAdmin && order.SalesAgentId != caller.UserId {
			return errors.New("only the assigned sales agent can close the order")
		}
	}
	return nil
}

// PricedLine is the slice of an item relevant to the review consistency pass.
type PricedLine struct {
	ItemId         int
	ConsumerDemand int
	HasPrice       bool
}

// ReviewConsistent requires every demanded line to carry a price before the
// order can enter review.
func ReviewConsistent(lines []PricedLine) error {
	for _, l := range lines {
		if l.ConsumerDemand > 0 && !l.HasPrice {
			return fmt.Errorf("item %d has demand but no price", l.ItemId)
		}
	}
	return nil
}

// IsTerminal reports the lifecycle end state. Closed orders still advance to
// COMPLETED; completed orders go nowhere.
func IsTerminal(s PackageOrderStatus) bool {
	return s == PackageOrderStatusCompleted
}
