package models

import "testing"

func boolPtr(b bool) *bool { return &b }

func TestCanTransition(t *testing.T) {
	cases := []struct {
		from, to PackageOrderStatus
		want     bool
	}{
		{PackageOrderStatusDraft, PackageOrderStatusCreated, true},
		{PackageOrderStatusCreated, PackageOrderStatusInitiated, true},
		{PackageOrderStatusCreated, PackageOrderStatusConfirm, true},
		{PackageOrderStatusInitiated, PackageOrderStatusInReview, true},
		{PackageOrderStatusInReview, PackageOrderStatusConfirm, true},
		{PackageOrderStatusConfirm, PackageOrderStatusInProgress, true},
		{PackageOrderStatusInProgress, PackageOrderStatusClose, true},
		{PackageOrderStatusClose, PackageOrderStatusCompleted, true},
		// no skipping forward
		{PackageOrderStatusDraft, PackageOrderStatusConfirm, false},
		{PackageOrderStatusCreated, PackageOrderStatusInProgress, false},
		{PackageOrderStatusInitiated, PackageOrderStatusConfirm, false},
		// no going back
		{PackageOrderStatusConfirm, PackageOrderStatusInReview, false},
		{PackageOrderStatusClose, PackageOrderStatusInProgress, false},
		// completed is the end
		{PackageOrderStatusCompleted, PackageOrderStatusDraft, false},
		{PackageOrderStatusCompleted, PackageOrderStatusCompleted, false},
	}
	for _, c := range cases {
		if got := CanTransition(c.from, c.to); got != c.want {
			t.Errorf("CanTransition(%s, %s) = %v, want %v", c.from, c.to, got, c.want)
		}
	}
}

func TestGuardTransition_NilOrder(t *testing.T) {
	if err := GuardTransition(nil, PackageOrderStatusCreated, TransitionCaller{}); err == nil {
		t.Fatal("expected error for nil order")
	}
}

func TestGuardTransition_ManualSkip(t *testing.T) {
	admin := TransitionCaller{UserId: 1, IsAdmin: true}

	order := &PackageOrder{Status: PackageOrderStatusCreated}
	if err := GuardTransition(order, PackageOrderStatusConfirm, admin); err == nil {
		t.Error("non-manual order must not skip to CONFIRM")
	}

	order.IsManualOrder = boolPtr(false)
	if err := GuardTransition(order, PackageOrderStatusConfirm, admin); err == nil {
		t.Error("explicitly non-manual order must not skip to CONFIRM")
	}

	order.IsManualOrder = boolPtr(true)
	if err := GuardTransition(order, PackageOrderStatusConfirm, admin); err != nil {
		t.Errorf("manual order should skip to CONFIRM: %v", err)
	}

	// regular path into CONFIRM has no manual requirement
	reviewed := &PackageOrder{Status: PackageOrderStatusInReview}
	if err := GuardTransition(reviewed, PackageOrderStatusConfirm, admin); err != nil {
		t.Errorf("IN_REVIEW -> CONFIRM should pass: %v", err)
	}
}

func TestGuardTransition_AgentClaim(t *testing.T) {
	unclaimed := &PackageOrder{Status: PackageOrderStatusCreated}
	agent := TransitionCaller{UserId: 7, Role: UserRoleSalesAgent}

	if err := GuardTransition(unclaimed, PackageOrderStatusInitiated, agent); err != nil {
		t.Errorf("unclaimed order should accept first agent: %v", err)
	}

	claimed := &PackageOrder{Status: PackageOrderStatusCreated, SalesAgentId: 3}
	if err := GuardTransition(claimed, PackageOrderStatusInitiated, agent); err == nil {
		t.Error("order claimed by another agent must reject")
	}
	if err := GuardTransition(claimed, PackageOrderStatusInitiated, TransitionCaller{UserId: 3}); err != nil {
		t.Errorf("assigned agent should re-enter: %v", err)
	}
	if err := GuardTransition(claimed, PackageOrderStatusInitiated, TransitionCaller{UserId: 99, IsAdmin: true}); err != nil {
		t.Errorf("admin overrides claim: %v", err)
	}
}

func TestGuardTransition_Close(t *testing.T) {
	agent := TransitionCaller{UserId: 7}

	order := &PackageOrder{Status: PackageOrderStatusInProgress, SalesAgentId: 7}
	if err := GuardTransition(order, PackageOrderStatusClose, agent); err == nil {
		t.Error("unshipped order must not close")
	}

	order.ShipmentStatus = boolPtr(false)
	if err := GuardTransition(order, PackageOrderStatusClose, agent); err == nil {
		t.Error("unshipped order must not close")
	}

	order.ShipmentStatus = boolPtr(true)
	if err := GuardTransition(order, PackageOrderStatusClose, agent); err != nil {
		t.Errorf("shipped order closed by its agent should pass: %v", err)
	}

	other := TransitionCaller{UserId: 8}
	if err := GuardTransition(order, PackageOrderStatusClose, other); err == nil {
		t.Error("another agent must not close the order")
	}
	if err := GuardTransition(order, PackageOrderStatusClose, TransitionCaller{UserId: 8, IsAdmin: true}); err != nil {
		t.Errorf("admin should close any shipped order: %v", err)
	}
}

func TestGuardTransition_IdempotentComplete(t *testing.T) {
	done := &PackageOrder{Status: PackageOrderStatusCompleted}
	if err := GuardTransition(done, PackageOrderStatusCompleted, TransitionCaller{}); err != nil {
		t.Errorf("re-completing a completed order is a no-op: %v", err)
	}
	// but completion still needs a closed order otherwise
	open := &PackageOrder{Status: PackageOrderStatusInProgress}
	if err := GuardTransition(open, PackageOrderStatusCompleted, TransitionCaller{}); err == nil {
		t.Error("IN_PROGRESS order must not complete directly")
	}
}

func TestAgentClaimAllowed(t *testing.T) {
	if !AgentClaimAllowed(0, TransitionCaller{UserId: 5}) {
		t.Error("unassigned slot should allow any caller")
	}
	if !AgentClaimAllowed(5, TransitionCaller{UserId: 5}) {
		t.Error("assigned agent should be allowed")
	}
	if AgentClaimAllowed(5, TransitionCaller{UserId: 6}) {
		t.Error("different agent must be rejected")
	}
	if !AgentClaimAllowed(5, TransitionCaller{UserId: 6, IsAdmin: true}) {
		t.Error("admin must always be allowed")
	}
}

func TestReviewConsistent(t *testing.T) {
	ok := []PricedLine{
		{ItemId: 1, ConsumerDemand: 3, HasPrice: true},
		{ItemId: 2, ConsumerDemand: 0, HasPrice: false},
	}
	if err := ReviewConsistent(ok); err != nil {
		t.Errorf("priced demand should pass: %v", err)
	}

	bad := []PricedLine{
		{ItemId: 1, ConsumerDemand: 3, HasPrice: true},
		{ItemId: 4, ConsumerDemand: 2, HasPrice: false},
	}
	if err := ReviewConsistent(bad); err == nil {
		t.Error("unpriced demand must fail review")
	}

	if err := ReviewConsistent(nil); err != nil {
		t.Errorf("empty order trivially consistent: %v", err)
	}
}

func TestIsTerminal(t *testing.T) {
	if !IsTerminal(PackageOrderStatusCompleted) {
		t.Error("COMPLETED is terminal")
	}
	for _, s := range []PackageOrderStatus{
		PackageOrderStatusDraft, PackageOrderStatusCreated, PackageOrderStatusInitiated,
		PackageOrderStatusInReview, PackageOrderStatusConfirm, PackageOrderStatusInProgress,
		PackageOrderStatusClose,
	} {
		if IsTerminal(s) {
			t.Errorf("%s must not be terminal", s)
		}
	}
}
