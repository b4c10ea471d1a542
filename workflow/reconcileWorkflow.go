package workflow

import (
	"context"
	"time"

	"bitbucket.org/klosetlabs/kloset_backend/config"
	"bitbucket.org/klosetlabs/kloset_backend/models"
	"bitbucket.org/klosetlabs/kloset_backend/utils"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// ReconcilePackageOrder converts every received demand line of an order into
// concrete sold units, reprices both account tracks, marks backing inventory
// sold, shrinks other open orders' capacity and records storefront delist
// events. Runs entirely inside the caller's transaction; the caller holds
// the store posting lock.
func ReconcilePackageOrder(ctx context.Context, tx *gorm.DB, order *models.PackageOrder, confirmationDate time.Time) error {
	storeId := order.StoreId
	set := models.ModelSetFor(order)

	rows, err := models.LoadSelectedDemand(tx, set, storeId, order.ID, true)
	if err != nil {
		return err
	}
	entries := FlattenDemand(rows)
	if len(entries) == 0 {
		return nil
	}
	groups := GroupDemand(entries)

	isDiscount, err := models.StoreHasDiscount(ctx, storeId)
	if err != nil {
		return err
	}
	lockRows := config.VariantRowLocking()

	// sold inventory ids grouped per catalog product for the delist pass
	soldInventoryByProduct := make(map[int][]int)
	var productOrder []int
	total := decimal.Zero

	for _, group := range groups {
		candidates, err := models.GetCandidateVariants(tx, storeId, group.Key.ProductId, group.Key.Size, lockRows)
		if err != nil {
			return err
		}
		units := make([]StockUnit, 0, len(candidates))
		for _, c := range candidates {
			units = append(units, StockUnit{VariantId: c.ID, UnitId: c.UnitId, ItemId: c.ItemId})
		}

		result := AllocateFIFO(group, units, OldestFirst)
		if len(result.Consumed) == 0 {
			continue
		}

		// fee comes from the first consumed unit of the batch
		fee, err := models.GetConsignmentFee(tx, storeId, result.Consumed[0].UnitId)
		if err != nil {
			return err
		}
		updates := PriceSoldUnits(result.Consumed, fee, isDiscount)
		if err := models.MarkVariantsSold(tx, storeId, order.ID, updates); err != nil {
			return err
		}

		inventoryIds := make([]int, 0, len(result.Consumed))
		seen := make(map[int]bool)
		for _, u := range result.Consumed {
			total = total.Add(u.SellingPrice)
			if u.ItemId == 0 || seen[u.ItemId] {
				continue
			}
			seen[u.ItemId] = true
			inventoryIds = append(inventoryIds, u.ItemId)
		}
		if err := models.MarkInventoriesSold(tx, storeId, inventoryIds, confirmationDate); err != nil {
			return err
		}
		if _, tracked := soldInventoryByProduct[group.Key.ProductId]; !tracked {
			productOrder = append(productOrder, group.Key.ProductId)
		}
		soldInventoryByProduct[group.Key.ProductId] = append(soldInventoryByProduct[group.Key.ProductId], inventoryIds...)

		for _, claim := range result.BrandClaims {
			if claim.Qty == 0 {
				continue
			}
			brandId := claim.BrandId
			if err := SyncSiblingQuantities(ctx, tx, set, storeId, group.Key.ProductId, group.Key.Size,
				claim.Qty, order.ID, &brandId); err != nil {
				return err
			}
		}
	}

	// storefront cleanup happens after commit: record one delist event per
	// product, executed by the shop-sync worker
	for _, productId := range productOrder {
		items, err := models.GetInventoriesByIds(tx, storeId, soldInventoryByProduct[productId])
		if err != nil {
			return err
		}
		listingIds := make([]string, 0, len(items))
		for _, item := range items {
			if item.ListingId != "" {
				listingIds = append(listingIds, item.ListingId)
			}
		}
		if len(listingIds) == 0 {
			continue
		}
		payload := models.ShopSyncPayload{
			StoreId:    storeId,
			ProductId:  productId,
			ListingIds: listingIds,
			Scope:      string(models.InventoryScopeStore),
		}
		if err := models.PublishOrderEvent(ctx, tx, storeId, models.EventShopSyncDelist,
			productId, models.OrderReferenceTypeShopSync, models.PubSubMessageActionDelete, nil, payload); err != nil {
			return err
		}
	}

	if err := tx.Model(&models.PackageOrder{}).
		Where("id = ?", order.ID).
		Update("total_amount", total).Error; err != nil {
		return err
	}
	order.TotalAmount = total
	return nil
}

// ConfirmOrder moves the order to CONFIRM. Consumer-driven orders reconcile
// here, inside the transition's transaction; manual/assisted orders defer
// reconciliation to StartOrderProgress.
func ConfirmOrder(ctx context.Context, orderId int, confirmationDate time.Time) (*models.PackageOrder, error) {
	storeId, _ := utils.GetStoreIdFromContext(ctx)
	if err := utils.StoreLock(ctx, storeId, "reconcile", "workflow", "ConfirmOrder"); err != nil {
		return nil, err
	}
	return models.TransitionPackageOrder(ctx, orderId, models.PackageOrderStatusConfirm,
		func(tx *gorm.DB, order *models.PackageOrder) error {
			if order.IsManualOrder != nil && *order.IsManualOrder {
				return nil
			}
			if err := AcquireStorePostingLock(tx, storeId); err != nil {
				return err
			}
			defer ReleaseStorePostingLock(tx, storeId)
			return ReconcilePackageOrder(ctx, tx, order, confirmationDate)
		})
}

// StartOrderProgress moves CONFIRM → IN_PROGRESS. Manual/assisted orders run
// reconciliation at this step instead.
func StartOrderProgress(ctx context.Context, orderId int, confirmationDate time.Time) (*models.PackageOrder, error) {
	storeId, _ := utils.GetStoreIdFromContext(ctx)
	if err := utils.StoreLock(ctx, storeId, "reconcile", "workflow", "StartOrderProgress"); err != nil {
		return nil, err
	}
	return models.TransitionPackageOrder(ctx, orderId, models.PackageOrderStatusInProgress,
		func(tx *gorm.DB, order *models.PackageOrder) error {
			if order.IsManualOrder == nil || !*order.IsManualOrder {
				return nil
			}
			if err := AcquireStorePostingLock(tx, storeId); err != nil {
				return err
			}
			defer ReleaseStorePostingLock(tx, storeId)
			return ReconcilePackageOrder(ctx, tx, order, confirmationDate)
		})
}
