package workflow

import (
	"context"

	"bitbucket.org/klosetlabs/kloset_backend/config"
	"bitbucket.org/klosetlabs/kloset_backend/models"
	"gorm.io/gorm"
)

// The quantity synchronizer keeps every other open order's claimable
// capacity truthful after a sale: the sold quantity shrinks sibling
// maxCapacity, and no claim may exceed the recomputed live stock.

// SiblingQty is the clamp input for one sibling size row.
type SiblingQty struct {
	MaxCapacity      int
	SelectedCapacity int
	ConsumerDemand   int
}

// ClampSiblingQty applies the depletion math:
// maxCapacity drops by the quantity sold (floored at zero), and
// selectedCapacity / consumerDemand are capped at the true remaining stock.
func ClampSiblingQty(q SiblingQty, quantitySold, remainingStock int) SiblingQty {
	q.MaxCapacity -= quantitySold
	if q.MaxCapacity < 0 {
		q.MaxCapacity = 0
	}
	if q.SelectedCapacity > remainingStock {
		q.SelectedCapacity = remainingStock
	}
	if q.ConsumerDemand > remainingStock {
		q.ConsumerDemand = remainingStock
	}
	return q
}

// SyncSiblingQuantities shrinks every other open order's capacity for
// (productId, size), optionally scoped to one brand's sub-claim. Runs inside
// the reconciliation transaction. Emits one quantity-updated event per
// touched order.
func SyncSiblingQuantities(ctx context.Context, tx *gorm.DB, set models.PackageModelSet,
	storeId string, productId int, size string, quantitySold int, excludeOrderId int, brandId *int) error {

	remaining, err := models.CountAvailableStock(tx, storeId, productId, size)
	if err != nil {
		return err
	}

	rows, err := models.GetOpenQtyRows(tx, set, storeId, productId, size, excludeOrderId, brandId)
	if err != nil {
		return err
	}

	touchedOrders := make(map[int]bool)
	for _, row := range rows {
		clamped := ClampSiblingQty(SiblingQty{
			MaxCapacity:      row.MaxCapacity,
			SelectedCapacity: row.SelectedCapacity,
			ConsumerDemand:   row.ConsumerDemand,
		}, quantitySold, remaining)

		if clamped.MaxCapacity == row.MaxCapacity &&
			clamped.SelectedCapacity == row.SelectedCapacity &&
			clamped.ConsumerDemand == row.ConsumerDemand {
			continue
		}
		if err := models.ApplyQtyClamp(tx, set, row.QtyId, row.ItemId,
			clamped.MaxCapacity, clamped.SelectedCapacity, clamped.ConsumerDemand); err != nil {
			return err
		}
		touchedOrders[row.OrderId] = true
	}

	for orderId := range touchedOrders {
		if err := models.PublishOrderEvent(ctx, tx, storeId, models.EventOrderQuantityUpdated,
			orderId, models.OrderReferenceTypeOrder, models.PubSubMessageActionUpdate, nil,
			map[string]interface{}{
				"product_id":      productId,
				"size":            size,
				"quantity_sold":   quantitySold,
				"remaining_stock": remaining,
			}); err != nil {
			return err
		}
	}

	logger := config.GetLogger()
	logger.WithField("store_id", storeId).
		WithField("product_id", productId).
		WithField("size", size).
		WithField("orders_adjusted", len(touchedOrders)).
		Debug("sibling quantities synchronized")
	return nil
}
