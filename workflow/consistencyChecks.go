package workflow

import (
	"context"
	"fmt"

	"bitbucket.org/klosetlabs/kloset_backend/models"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// ConsistencyIssue is one mismatch found by RunStockConsistencyChecks.
type ConsistencyIssue struct {
	Check  string `json:"check"`
	Entity string `json:"entity"`
	ID     int    `json:"id"`
	Detail string `json:"detail"`
}

// RunStockConsistencyChecks scans a store for stock-state drift: half-sold
// unit pairs, sold units whose inventory row was never stamped, and demand
// rows whose claims exceed capacity. It only reports; nothing is mutated.
// Intended to run on a schedule or via the resync tool.
func RunStockConsistencyChecks(ctx context.Context, db *gorm.DB, logger *logrus.Logger, storeId string) ([]ConsistencyIssue, error) {
	var issues []ConsistencyIssue

	// Unit pairs where one pricing track is sold and the other is not.
	type unitRow struct {
		UnitId int
	}
	var halfSold []unitRow
	if err := db.WithContext(ctx).Raw(`
		SELECT v.unit_id
		FROM variants v
		JOIN variants s
		  ON s.store_id = v.store_id AND s.unit_id = v.unit_id AND s.id <> v.id
		WHERE v.store_id = ?
		  AND v.status = ? AND s.status <> ?
		GROUP BY v.unit_id`,
		storeId, models.VariantStatusSold, models.VariantStatusSold).
		Scan(&halfSold).Error; err != nil {
		return nil, err
	}
	for _, r := range halfSold {
		issues = append(issues, ConsistencyIssue{
			Check:  "unit_pair_sold_state",
			Entity: "variant_unit",
			ID:     r.UnitId,
			Detail: "pricing-track rows disagree on sold state",
		})
	}

	// Sold units whose inventory item was never stamped.
	type invRow struct {
		ItemId int
	}
	var unstamped []invRow
	if err := db.WithContext(ctx).Raw(`
		SELECT DISTINCT v.item_id
		FROM variants v
		JOIN inventory_items i ON i.id = v.item_id AND i.store_id = v.store_id
		WHERE v.store_id = ? AND v.status = ? AND i.sold_on IS NULL`,
		storeId, models.VariantStatusSold).
		Scan(&unstamped).Error; err != nil {
		return nil, err
	}
	for _, r := range unstamped {
		issues = append(issues, ConsistencyIssue{
			Check:  "inventory_sold_stamp",
			Entity: "inventory_item",
			ID:     r.ItemId,
			Detail: "has sold units but sold_on is unset",
		})
	}

	// Demand rows claiming more than their synced capacity. Checked on both
	// model sets since access packages share the row shape.
	for _, set := range []models.PackageModelSet{models.DraftModelSet{}, models.AccessModelSet{}} {
		type qtyRow struct {
			ID               int
			MaxCapacity      int
			SelectedCapacity int
			ReceivedQuantity int
		}
		var bad []qtyRow
		if err := db.WithContext(ctx).Table(set.QtyTable()).
			Select("id, max_capacity, selected_capacity, received_quantity").
			Where("store_id = ?", storeId).
			Where("selected_capacity > max_capacity OR received_quantity > selected_capacity").
			Scan(&bad).Error; err != nil {
			return nil, err
		}
		for _, r := range bad {
			issues = append(issues, ConsistencyIssue{
				Check:  "qty_capacity_bounds",
				Entity: set.QtyTable(),
				ID:     r.ID,
				Detail: fmt.Sprintf("max=%d selected=%d received=%d", r.MaxCapacity, r.SelectedCapacity, r.ReceivedQuantity),
			})
		}
	}

	if logger != nil {
		logger.WithFields(logrus.Fields{
			"field":    "StockConsistencyChecks",
			"store_id": storeId,
			"issues":   len(issues),
		}).Info("stock consistency checks completed")
	}
	return issues, nil
}
