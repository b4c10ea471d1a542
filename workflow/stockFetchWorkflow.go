package workflow

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"bitbucket.org/klosetlabs/kloset_backend/config"
	"bitbucket.org/klosetlabs/kloset_backend/models"
	"bitbucket.org/klosetlabs/kloset_backend/utils"
)

// FetchStockForItem expands an open order's candidate pool with newly
// available stock for the requested sizes, without running reconciliation.
// Capacity only grows here; shrinkage is exclusively the quantity
// synchronizer's job.
func FetchStockForItem(ctx context.Context, orderId, itemId int, sizes []string) error {
	db := config.GetDB()
	storeId, ok := utils.GetStoreIdFromContext(ctx)
	if !ok || storeId == "" {
		return errors.New("store id is required")
	}

	order, err := models.GetPackageOrder(ctx, orderId)
	if err != nil {
		return err
	}
	if models.IsTerminal(order.Status) {
		return errors.New("order is no longer open")
	}
	set := models.ModelSetFor(order)

	var item models.PackageBrandItem
	if err := db.WithContext(ctx).Table(set.ItemTable()).
		Where("id = ? AND store_id = ?", itemId, storeId).
		Take(&item).Error; err != nil {
		return utils.ErrorRecordNotFound
	}

	liveBySize, err := models.GetLiveVariantsBySize(ctx, storeId, item.ProductId, sizes)
	if err != nil {
		return err
	}

	tx := db.WithContext(ctx).Begin()

	existingIds, err := models.GetExistingCapacityVariantIds(tx, set, itemId)
	if err != nil {
		tx.Rollback()
		return err
	}
	known := make(map[int]bool, len(existingIds))
	for _, id := range existingIds {
		known[id] = true
	}

	var newRows []models.PackageBrandItemCapacity
	for _, aggs := range liveBySize {
		for _, agg := range aggs {
			if known[agg.ID] {
				continue
			}
			newRows = append(newRows, models.PackageBrandItemCapacity{
				StoreId:            storeId,
				PackageBrandItemId: itemId,
				VariantId:          agg.ID,
				Quantity:           agg.Quantity,
			})
		}
	}
	if err := models.InsertCapacityRows(tx, set, newRows); err != nil {
		tx.Rollback()
		return err
	}

	// grow-only: maxCapacity becomes the larger of observed stock and the
	// already-selected claim
	for _, size := range sizes {
		trimmed := strings.TrimSpace(size)
		observed := 0
		for _, agg := range liveBySize[trimmed] {
			observed += agg.Quantity
		}
		var row models.PackageBrandItemQty
		err := tx.Table(set.QtyTable()).
			Where("package_brand_item_id = ? AND TRIM(size) = ?", itemId, trimmed).
			Take(&row).Error
		if err != nil {
			continue
		}
		newMax := observed
		if row.SelectedCapacity > newMax {
			newMax = row.SelectedCapacity
		}
		if newMax <= row.MaxCapacity {
			continue
		}
		if err := tx.Table(set.QtyTable()).
			Where("id = ?", row.ID).
			Update("max_capacity", newMax).Error; err != nil {
			tx.Rollback()
			return err
		}
	}

	if err := tx.Commit().Error; err != nil {
		return err
	}

	logger := config.GetLogger()
	logger.WithField("store_id", storeId).
		WithField("order_id", orderId).
		WithField("item_id", itemId).
		Debug(fmt.Sprintf("stock fetch added %d capacity rows", len(newRows)))
	return nil
}
