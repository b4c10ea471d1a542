package models

import "testing"

func TestClaimsFrozen(t *testing.T) {
	t.Setenv("STRICT_ORDER_IMMUTABLE", "")

	if !claimsFrozen(&PackageOrder{Status: PackageOrderStatusCompleted}) {
		t.Fatal("completed orders must always reject claim edits")
	}
	if claimsFrozen(&PackageOrder{Status: PackageOrderStatusClose}) {
		t.Fatal("closed orders stay editable while strict immutability is off")
	}
	if claimsFrozen(&PackageOrder{Status: PackageOrderStatusInProgress}) {
		t.Fatal("in-progress orders must stay editable")
	}
}

func TestClaimsFrozen_StrictModeFreezesClosedOrders(t *testing.T) {
	t.Setenv("STRICT_ORDER_IMMUTABLE", "true")

	if !claimsFrozen(&PackageOrder{Status: PackageOrderStatusClose}) {
		t.Fatal("strict immutability must freeze closed orders")
	}
	if !claimsFrozen(&PackageOrder{Status: PackageOrderStatusCompleted}) {
		t.Fatal("completed orders must stay frozen")
	}
	if claimsFrozen(&PackageOrder{Status: PackageOrderStatusConfirm}) {
		t.Fatal("strict immutability must not freeze orders before close")
	}
}
