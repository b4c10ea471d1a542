package workflow

import (
	"testing"

	"bitbucket.org/klosetlabs/kloset_backend/models"
	"github.com/shopspring/decimal"
)

func d(s string) decimal.Decimal {
	v, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return v
}

func TestFlattenDemand_DropsZeroAndTrimsSizes(t *testing.T) {
	rows := []models.DemandRow{
		{ProductId: 1, Size: " M ", SelectedCapacity: 2, SellingPrice: d("100"), BrandId: 10},
		{ProductId: 1, Size: "L", SelectedCapacity: 0, SellingPrice: d("100"), BrandId: 10},
		{ProductId: 2, Size: "S", SelectedCapacity: -1, SellingPrice: d("50"), BrandId: 11},
		{ProductId: 2, Size: "S", SelectedCapacity: 1, SellingPrice: d("50"), BrandId: 11},
	}
	entries := FlattenDemand(rows)
	if len(entries) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(entries))
	}
	if entries[0].Size != "M" {
		t.Errorf("expected trimmed size %q, got %q", "M", entries[0].Size)
	}
	if entries[0].RequestedQty != 2 || entries[1].RequestedQty != 1 {
		t.Errorf("unexpected quantities: %+v", entries)
	}
}

func TestGroupDemand_MergesByPoolKeepingOrder(t *testing.T) {
	entries := []DemandEntry{
		{ProductId: 1, Size: "M", RequestedQty: 2, BrandId: 10},
		{ProductId: 2, Size: "S", RequestedQty: 1, BrandId: 10},
		{ProductId: 1, Size: "M", RequestedQty: 3, BrandId: 11},
	}
	groups := GroupDemand(entries)
	if len(groups) != 2 {
		t.Fatalf("expected 2 groups, got %d", len(groups))
	}
	if groups[0].Key != (GroupKey{ProductId: 1, Size: "M"}) {
		t.Errorf("first group should follow first appearance, got %+v", groups[0].Key)
	}
	if groups[0].Total != 5 {
		t.Errorf("expected pooled total 5, got %d", groups[0].Total)
	}
	if len(groups[0].Entries) != 2 {
		t.Errorf("expected both brand entries kept, got %d", len(groups[0].Entries))
	}
}

func TestAllocateFIFO_OldestFirst(t *testing.T) {
	group := &DemandGroup{
		Key:     GroupKey{ProductId: 1, Size: "M"},
		Entries: []DemandEntry{{ProductId: 1, Size: "M", RequestedQty: 2, SellingPrice: d("100"), BrandId: 10}},
		Total:   2,
	}
	// deliberately out of order
	candidates := []StockUnit{
		{VariantId: 30, UnitId: 3, ItemId: 300},
		{VariantId: 10, UnitId: 1, ItemId: 100},
		{VariantId: 20, UnitId: 2, ItemId: 200},
	}
	res := AllocateFIFO(group, candidates, OldestFirst)
	if len(res.Consumed) != 2 {
		t.Fatalf("expected 2 consumed units, got %d", len(res.Consumed))
	}
	if res.Consumed[0].VariantId != 10 || res.Consumed[1].VariantId != 20 {
		t.Errorf("expected oldest units first, got %+v", res.Consumed)
	}
	if res.Shortfall != 0 {
		t.Errorf("expected no shortfall, got %d", res.Shortfall)
	}
}

func TestAllocateFIFO_ShortfallIsSilent(t *testing.T) {
	group := &DemandGroup{
		Key:     GroupKey{ProductId: 1, Size: "M"},
		Entries: []DemandEntry{{ProductId: 1, Size: "M", RequestedQty: 5, SellingPrice: d("100"), BrandId: 10}},
		Total:   5,
	}
	candidates := []StockUnit{{VariantId: 1, UnitId: 1, ItemId: 1}, {VariantId: 2, UnitId: 2, ItemId: 2}}
	res := AllocateFIFO(group, candidates, nil)
	if len(res.Consumed) != 2 {
		t.Fatalf("expected 2 consumed units, got %d", len(res.Consumed))
	}
	if res.Shortfall != 3 {
		t.Errorf("expected shortfall 3, got %d", res.Shortfall)
	}
	if len(res.BrandClaims) != 1 || res.BrandClaims[0].Qty != 2 {
		t.Errorf("brand claim should reflect consumed only, got %+v", res.BrandClaims)
	}
}

func TestAllocateFIFO_MultiBrandClaims(t *testing.T) {
	group := &DemandGroup{
		Key: GroupKey{ProductId: 1, Size: "M"},
		Entries: []DemandEntry{
			{ProductId: 1, Size: "M", RequestedQty: 2, SellingPrice: d("120"), BrandId: 10},
			{ProductId: 1, Size: "M", RequestedQty: 2, SellingPrice: d("90"), BrandId: 11},
		},
		Total: 4,
	}
	candidates := []StockUnit{
		{VariantId: 1, UnitId: 1, ItemId: 1},
		{VariantId: 2, UnitId: 2, ItemId: 2},
		{VariantId: 3, UnitId: 3, ItemId: 3},
	}
	res := AllocateFIFO(group, candidates, OldestFirst)
	if len(res.Consumed) != 3 {
		t.Fatalf("expected 3 consumed units, got %d", len(res.Consumed))
	}
	// first entry claims units 1-2 at its price, second gets unit 3 at its own
	if !res.Consumed[0].SellingPrice.Equal(d("120")) || !res.Consumed[2].SellingPrice.Equal(d("90")) {
		t.Errorf("consumed units should keep their demand line's price: %+v", res.Consumed)
	}
	if len(res.BrandClaims) != 2 {
		t.Fatalf("expected 2 brand claims, got %+v", res.BrandClaims)
	}
	if res.BrandClaims[0].BrandId != 10 || res.BrandClaims[0].Qty != 2 {
		t.Errorf("unexpected first claim: %+v", res.BrandClaims[0])
	}
	if res.BrandClaims[1].BrandId != 11 || res.BrandClaims[1].Qty != 1 {
		t.Errorf("unexpected second claim: %+v", res.BrandClaims[1])
	}
	if res.Shortfall != 1 {
		t.Errorf("expected shortfall 1, got %d", res.Shortfall)
	}
}

func TestPriceSoldUnits_ConsignmentFeeDeducted(t *testing.T) {
	units := []ConsumedUnit{
		{StockUnit: StockUnit{UnitId: 7}, SellingPrice: d("200"), BrandId: 10},
	}
	updates := PriceSoldUnits(units, d("15"), false)
	if len(updates) != 1 {
		t.Fatalf("expected 1 update, got %d", len(updates))
	}
	u := updates[0]
	if !u.OwnedPrice.Equal(d("200")) || !u.OwnedPayout.Equal(d("200")) {
		t.Errorf("owned track must be flat: %+v", u)
	}
	if !u.ConsignmentPrice.Equal(d("200")) {
		t.Errorf("consignment price must keep selling price, got %s", u.ConsignmentPrice)
	}
	if !u.ConsignmentPayout.Equal(d("170")) {
		t.Errorf("expected payout 170 after 15%% fee, got %s", u.ConsignmentPayout)
	}
}

func TestPriceSoldUnits_DiscountStoreKeepsPayout(t *testing.T) {
	units := []ConsumedUnit{
		{StockUnit: StockUnit{UnitId: 7}, SellingPrice: d("200"), BrandId: 10},
	}
	updates := PriceSoldUnits(units, d("15"), true)
	if !updates[0].ConsignmentPayout.Equal(d("200")) {
		t.Errorf("discount store must not deduct the fee, got %s", updates[0].ConsignmentPayout)
	}
}
