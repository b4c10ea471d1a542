package workflow

import (
	"testing"
	"time"

	"bitbucket.org/klosetlabs/kloset_backend/models"
)

func TestGroupReceivedByProduct(t *testing.T) {
	lines := []models.ReceivedLine{
		{ProductId: 1, BrandId: 10, Size: "M", ReceivedQuantity: 2, SellingPrice: d("100")},
		{ProductId: 2, BrandId: 11, Size: "S", ReceivedQuantity: 1, SellingPrice: d("80")},
		{ProductId: 1, BrandId: 10, Size: "M", ReceivedQuantity: 1, SellingPrice: d("100")},
		{ProductId: 1, BrandId: 10, Size: "L", ReceivedQuantity: 3, SellingPrice: d("110")},
	}
	groups := GroupReceivedByProduct(lines)
	if len(groups) != 2 {
		t.Fatalf("expected 2 product groups, got %d", len(groups))
	}
	first := groups[0]
	if first.ProductId != 1 || first.TotalUnits != 6 {
		t.Errorf("unexpected first group: %+v", first)
	}
	if len(first.Sizes) != 2 {
		t.Fatalf("expected 2 size buckets, got %+v", first.Sizes)
	}
	if first.Sizes[0].Size != "M" || first.Sizes[0].Qty != 3 {
		t.Errorf("repeated (product, size) pairs must merge: %+v", first.Sizes[0])
	}
	if first.Sizes[1].Size != "L" || first.Sizes[1].Qty != 3 {
		t.Errorf("unexpected second bucket: %+v", first.Sizes[1])
	}
	if groups[1].ProductId != 2 || groups[1].TotalUnits != 1 {
		t.Errorf("unexpected second group: %+v", groups[1])
	}
}

func TestGroupReceivedByProduct_Empty(t *testing.T) {
	if groups := GroupReceivedByProduct(nil); len(groups) != 0 {
		t.Fatalf("expected no groups, got %+v", groups)
	}
}

func TestBuildConsumerUnits_OneRowPerReceivedUnit(t *testing.T) {
	receipt := time.Date(2026, 3, 14, 0, 0, 0, 0, time.UTC)
	sq := SizeQty{Size: "M", Qty: 3, Price: d("150")}

	units := buildConsumerUnits("store-1", 7, 42, 99, 5, sq, receipt)
	if len(units) != sq.Qty {
		t.Fatalf("expected %d unit rows, got %d", sq.Qty, len(units))
	}
	for i, u := range units {
		if u.StoreId != "store-1" || u.ConsumerProductId != 42 || u.ConsumerProductVariantId != 99 {
			t.Errorf("unit %d carries wrong ledger ids: %+v", i, u)
		}
		if u.ConsumerId != 5 || u.PackageOrderId != 7 {
			t.Errorf("unit %d carries wrong ownership: %+v", i, u)
		}
		if u.Option1Value != "M" || !u.Price.Equal(d("150")) {
			t.Errorf("unit %d carries wrong size/price: %+v", i, u)
		}
		if u.AcceptedOn == nil || !u.AcceptedOn.Equal(receipt) {
			t.Errorf("unit %d must be stamped with the receipt date, got %v", i, u.AcceptedOn)
		}
	}
}

func TestBuildConsumerUnits_ZeroQuantity(t *testing.T) {
	units := buildConsumerUnits("store-1", 7, 42, 99, 5, SizeQty{Size: "S"}, time.Now())
	if len(units) != 0 {
		t.Fatalf("expected no rows for an unreceived size, got %d", len(units))
	}
}

// A completed order must land as N unit rows per received unit and a single
// aggregate bucket per (product, size), even when claim lines repeat sizes.
func TestGroupReceivedByProduct_UnitExpansion(t *testing.T) {
	lines := []models.ReceivedLine{
		{ProductId: 1, BrandId: 10, Size: "M", ReceivedQuantity: 2, SellingPrice: d("100")},
		{ProductId: 1, BrandId: 10, Size: "M", ReceivedQuantity: 1, SellingPrice: d("100")},
		{ProductId: 1, BrandId: 10, Size: "L", ReceivedQuantity: 0, SellingPrice: d("110")},
	}
	receipt := time.Date(2026, 3, 14, 0, 0, 0, 0, time.UTC)

	groups := GroupReceivedByProduct(lines)
	if len(groups) != 1 {
		t.Fatalf("expected 1 product group, got %d", len(groups))
	}
	seen := make(map[string]bool)
	for _, sq := range groups[0].Sizes {
		if seen[sq.Size] {
			t.Fatalf("size %q appears in more than one bucket", sq.Size)
		}
		seen[sq.Size] = true
		units := buildConsumerUnits("store-1", 7, 42, 99, 5, sq, receipt)
		if len(units) != sq.Qty {
			t.Fatalf("size %q: expected %d unit rows, got %d", sq.Size, sq.Qty, len(units))
		}
	}
	if !seen["M"] || !seen["L"] {
		t.Fatalf("expected buckets for M and L, got %v", seen)
	}
}
