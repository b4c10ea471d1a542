package workflow

import (
	"sort"
	"strings"

	"bitbucket.org/klosetlabs/kloset_backend/models"
	"github.com/shopspring/decimal"
)

// Allocation is the pure core of sale reconciliation: flatten demand lines,
// group them per physical (product, size) pool, then consume candidate stock
// units oldest-first. Everything here is deterministic and side-effect free
// so it can be exercised without a database.

type DemandEntry struct {
	ProductId    int
	Size         string
	RequestedQty int
	SellingPrice decimal.Decimal
	BrandId      int
}

// FlattenDemand converts loaded demand rows into allocation entries,
// dropping lines nothing was asked for.
func FlattenDemand(rows []models.DemandRow) []DemandEntry {
	entries := make([]DemandEntry, 0, len(rows))
	for _, r := range rows {
		if r.SelectedCapacity <= 0 {
			continue
		}
		entries = append(entries, DemandEntry{
			ProductId:    r.ProductId,
			Size:         strings.TrimSpace(r.Size),
			RequestedQty: r.SelectedCapacity,
			SellingPrice: r.SellingPrice,
			BrandId:      r.BrandId,
		})
	}
	return entries
}

type GroupKey struct {
	ProductId int
	Size      string
}

// DemandGroup is one (product, size) pool with the brand claims against it,
// in their original demand order.
type DemandGroup struct {
	Key     GroupKey
	Entries []DemandEntry
	Total   int
}

// GroupDemand buckets entries by (productId, size). Multiple brands may
// claim the same pool; each keeps its own entry so per-brand consumption can
// be reported back after allocation. Group order follows first appearance.
func GroupDemand(entries []DemandEntry) []*DemandGroup {
	index := make(map[GroupKey]*DemandGroup)
	var groups []*DemandGroup
	for _, e := range entries {
		key := GroupKey{ProductId: e.ProductId, Size: e.Size}
		g, ok := index[key]
		if !ok {
			g = &DemandGroup{Key: key}
			index[key] = g
			groups = append(groups, g)
		}
		g.Entries = append(g.Entries, e)
		g.Total += e.RequestedQty
	}
	return groups
}

// StockUnit is one claimable physical unit (the owned-track variant row id
// plus the shared unit and backing inventory ids).
type StockUnit struct {
	VariantId int
	UnitId    int
	ItemId    int
}

// StockPolicy orders candidate units before consumption.
type StockPolicy func(a, b StockUnit) bool

// OldestFirst sells the longest-held stock first: ascending variant id.
func OldestFirst(a, b StockUnit) bool {
	return a.VariantId < b.VariantId
}

// ConsumedUnit records one allocated unit together with the selling price of
// the demand line that claimed it.
type ConsumedUnit struct {
	StockUnit
	SellingPrice decimal.Decimal
	BrandId      int
}

type BrandClaim struct {
	BrandId int
	Qty     int
}

// AllocationResult is the outcome of allocating one demand group.
type AllocationResult struct {
	Consumed    []ConsumedUnit
	BrandClaims []BrandClaim
	Shortfall   int
}

// AllocateFIFO walks a group's entries in demand order and takes
// min(requested, remaining) candidates off the front of the sorted candidate
// list. Running out of candidates is not an error: the shortfall is recorded
// and the caller proceeds with whatever was claimable.
func AllocateFIFO(group *DemandGroup, candidates []StockUnit, policy StockPolicy) AllocationResult {
	if policy == nil {
		policy = OldestFirst
	}
	pool := make([]StockUnit, len(candidates))
	copy(pool, candidates)
	sort.SliceStable(pool, func(i, j int) bool { return policy(pool[i], pool[j]) })

	var result AllocationResult
	claims := make(map[int]int)
	var claimOrder []int

	cursor := 0
	for _, entry := range group.Entries {
		take := entry.RequestedQty
		if available := len(pool) - cursor; take > available {
			take = available
		}
		for i := 0; i < take; i++ {
			result.Consumed = append(result.Consumed, ConsumedUnit{
				StockUnit:    pool[cursor],
				SellingPrice: entry.SellingPrice,
				BrandId:      entry.BrandId,
			})
			cursor++
		}
		if _, seen := claims[entry.BrandId]; !seen {
			claimOrder = append(claimOrder, entry.BrandId)
		}
		claims[entry.BrandId] += take
		result.Shortfall += entry.RequestedQty - take
	}
	for _, brandId := range claimOrder {
		result.BrandClaims = append(result.BrandClaims, BrandClaim{BrandId: brandId, Qty: claims[brandId]})
	}
	return result
}

// PriceSoldUnits produces the dual-track price writes for a batch of
// consumed units. The owned track gets price = payout = selling price. The
// consignment track keeps the selling price but the payout drops by the
// consignment fee percentage, unless the store absorbs the fee itself
// (isDiscount). The fee is read once from the batch's first unit.
func PriceSoldUnits(units []ConsumedUnit, fee decimal.Decimal, isDiscount bool) []models.SoldVariantUpdate {
	hundred := decimal.NewFromInt(100)
	updates := make([]models.SoldVariantUpdate, 0, len(units))
	for _, u := range units {
		consignmentPayout := u.SellingPrice
		if !isDiscount {
			consignmentPayout = u.SellingPrice.Sub(u.SellingPrice.Mul(fee).Div(hundred))
		}
		updates = append(updates, models.SoldVariantUpdate{
			UnitId:            u.UnitId,
			OwnedPrice:        u.SellingPrice,
			OwnedPayout:       u.SellingPrice,
			ConsignmentPrice:  u.SellingPrice,
			ConsignmentPayout: consignmentPayout,
		})
	}
	return updates
}
