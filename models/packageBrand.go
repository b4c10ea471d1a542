package models

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"bitbucket.org/klosetlabs/kloset_backend/config"
	"bitbucket.org/klosetlabs/kloset_backend/utils"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// PackageBrand groups one catalog brand's items within an order. Selected
// marks whether the grouping is part of the finalized order or just browsed.
type PackageBrand struct {
	ID             int       `gorm:"primary_key" json:"id"`
	StoreId        string    `gorm:"index;not null" json:"store_id"`
	PackageOrderId int       `gorm:"index;not null" json:"package_order_id"`
	BrandId        int       `gorm:"index;not null" json:"brand_id"`
	Selected       *bool     `gorm:"default:false" json:"selected"`
	CreatedAt      time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt      time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

// PackageBrandItem is one product line in a brand grouping.
type PackageBrandItem struct {
	ID             int              `gorm:"primary_key" json:"id"`
	StoreId        string           `gorm:"index;not null" json:"store_id"`
	PackageBrandId int              `gorm:"index;not null" json:"package_brand_id"`
	ProductId      int              `gorm:"index;not null" json:"product_id"`
	Price          *decimal.Decimal `gorm:"type:decimal(20,8)" json:"price"`
	// ConsumerDemand is the total requested quantity summed across sizes.
	ConsumerDemand int `gorm:"not null;default:0" json:"consumer_demand"`
	// IsItemReceived is tri-state: null (pending) / received / not received.
	IsItemReceived *bool     `json:"is_item_received"`
	CreatedAt      time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt      time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

// PackageBrandItemQty is one (item, size) demand row.
type PackageBrandItemQty struct {
	ID                 int    `gorm:"primary_key" json:"id"`
	StoreId            string `gorm:"index;not null" json:"store_id"`
	PackageBrandItemId int    `gorm:"index;not null" json:"package_brand_item_id"`
	Size               string `gorm:"size:50;not null" json:"size"`
	// MaxCapacity is the last-synced available stock for this size.
	MaxCapacity int `gorm:"not null;default:0" json:"max_capacity"`
	// SelectedCapacity is the consumer-requested quantity, clamped ≤ MaxCapacity.
	SelectedCapacity int       `gorm:"not null;default:0" json:"selected_capacity"`
	Shortage         int       `gorm:"not null;default:0" json:"shortage"`
	ReceivedQuantity int       `gorm:"not null;default:0" json:"received_quantity"`
	CreatedAt        time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt        time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

// PackageBrandItemCapacity links an item to the concrete variant ids backing
// it (the candidate pool consumed at sale time).
type PackageBrandItemCapacity struct {
	ID                 int       `gorm:"primary_key" json:"id"`
	StoreId            string    `gorm:"index;not null" json:"store_id"`
	PackageBrandItemId int       `gorm:"not null;index:uniq_item_variant,unique" json:"package_brand_item_id"`
	VariantId          int       `gorm:"not null;index:uniq_item_variant,unique" json:"variant_id"`
	Quantity           int       `gorm:"not null;default:1" json:"quantity"`
	CreatedAt          time.Time `gorm:"autoCreateTime" json:"created_at"`
}

/* demand loading (reconciliation step 1) */

// DemandRow is one flattened (brand, item, size) demand line.
type DemandRow struct {
	QtyId            int
	ItemId           int
	BrandId          int
	PackageBrandId   int
	ProductId        int
	Size             string
	SelectedCapacity int
	SellingPrice     decimal.Decimal
}

// LoadSelectedDemand walks selected brands → received items → size rows with
// selectedCapacity > 0 and flattens them for allocation. Row order follows
// brand id, item id, qty id so allocation order is deterministic.
func LoadSelectedDemand(tx *gorm.DB, set PackageModelSet, storeId string, orderId int, requireReceived bool) ([]DemandRow, error) {
	var rows []DemandRow
	q := tx.Table(set.QtyTable()+" AS q").
		Select(`q.id AS qty_id, i.id AS item_id, b.brand_id AS brand_id, b.id AS package_brand_id,
			i.product_id AS product_id, q.size AS size, q.selected_capacity AS selected_capacity,
			i.price AS selling_price`).
		Joins(fmt.Sprintf("JOIN %s AS i ON i.id = q.package_brand_item_id", set.ItemTable())).
		Joins(fmt.Sprintf("JOIN %s AS b ON b.id = i.package_brand_id", set.BrandTable())).
		Where("b.package_order_id = ? AND b.store_id = ?", orderId, storeId).
		Where("b.selected = ?", true).
		Where("q.selected_capacity > 0").
		Order("b.id ASC, i.id ASC, q.id ASC")
	if requireReceived {
		q = q.Where("i.is_item_received = ?", true)
	}
	if err := q.Scan(&rows).Error; err != nil {
		return nil, err
	}
	for i := range rows {
		rows[i].Size = strings.TrimSpace(rows[i].Size)
	}
	return rows, nil
}

/* quantity + price mutations */

type QtyInput struct {
	QtyId            int `json:"qty_id" binding:"required"`
	SelectedCapacity int `json:"selected_capacity"`
}

type SetItemQuantitiesInput struct {
	OrderId int        `json:"order_id" binding:"required"`
	ItemId  int        `json:"item_id" binding:"required"`
	Qtys    []QtyInput `json:"qtys" binding:"required,dive"`
}

// ErrStaleCapacity signals the client to refresh before retrying (a sibling
// sale shrank capacity between the client's read and this write).
var ErrStaleCapacity = errors.New("capacity changed, please refresh")

// claimsFrozen reports whether an order's claims reject edits: completed
// orders always, closed orders when strict immutability is switched on
// (corrections then go through a new order).
func claimsFrozen(order *PackageOrder) bool {
	if IsTerminal(order.Status) {
		return true
	}
	return config.StrictOrderImmutability() && order.Status == PackageOrderStatusClose
}

// SetItemQuantities records consumer-requested quantities for an item's size
// rows. Each request is clamped ≤ the row's current maxCapacity; a request
// exceeding it rejects with ErrStaleCapacity rather than silently writing.
func SetItemQuantities(ctx context.Context, input SetItemQuantitiesInput) error {
	db := config.GetDB()
	storeId, ok := utils.GetStoreIdFromContext(ctx)
	if !ok || storeId == "" {
		return errors.New("store id is required")
	}

	order, err := GetPackageOrder(ctx, input.OrderId)
	if err != nil {
		return err
	}
	if claimsFrozen(order) {
		return utils.ErrorOrderImmutable
	}
	set := ModelSetFor(order)

	tx := db.WithContext(ctx).Begin()
	defer func() {
		if r := recover(); r != nil {
			tx.Rollback()
		}
	}()

	total := 0
	for _, in := range input.Qtys {
		var row PackageBrandItemQty
		if err := tx.Table(set.QtyTable()).
			Where("id = ? AND package_brand_item_id = ? AND store_id = ?", in.QtyId, input.ItemId, storeId).
			Take(&row).Error; err != nil {
			tx.Rollback()
			return utils.ErrorRecordNotFound
		}
		if in.SelectedCapacity > row.MaxCapacity {
			tx.Rollback()
			return ErrStaleCapacity
		}
		if in.SelectedCapacity < 0 {
			tx.Rollback()
			return errors.New("quantity cannot be negative")
		}
		if err := tx.Table(set.QtyTable()).
			Where("id = ?", in.QtyId).
			Update("selected_capacity", in.SelectedCapacity).Error; err != nil {
			tx.Rollback()
			return err
		}
		total += in.SelectedCapacity
	}

	// resum the parent item's consumer demand across all its sizes
	var demand *int
	if err := tx.Table(set.QtyTable()).
		Select("SUM(selected_capacity)").
		Where("package_brand_item_id = ?", input.ItemId).
		Scan(&demand).Error; err != nil {
		tx.Rollback()
		return err
	}
	if demand == nil {
		demand = &total
	}
	if err := tx.Table(set.ItemTable()).
		Where("id = ?", input.ItemId).
		Update("consumer_demand", *demand).Error; err != nil {
		tx.Rollback()
		return err
	}

	if err := PublishOrderEvent(ctx, tx, storeId, EventOrderQuantityUpdated,
		input.OrderId, OrderReferenceTypeOrder, PubSubMessageActionUpdate, nil, input); err != nil {
		tx.Rollback()
		return err
	}

	return tx.Commit().Error
}

type PriceInput struct {
	ItemId int             `json:"item_id" binding:"required"`
	Price  decimal.Decimal `json:"price" binding:"required"`
}

type SetItemPricesInput struct {
	OrderId int          `json:"order_id" binding:"required"`
	Prices  []PriceInput `json:"prices" binding:"required,dive"`
}

// SetItemPrices writes negotiated prices onto item lines. Agent-gated: the
// caller must hold the order's sales-agent claim (or admin override).
func SetItemPrices(ctx context.Context, input SetItemPricesInput) error {
	db := config.GetDB()
	storeId, ok := utils.GetStoreIdFromContext(ctx)
	if !ok || storeId == "" {
		return errors.New("store id is required")
	}

	order, err := GetPackageOrder(ctx, input.OrderId)
	if err != nil {
		return err
	}
	if claimsFrozen(order) {
		return utils.ErrorOrderImmutable
	}
	caller := callerFromContext(ctx)
	if !AgentClaimAllowed(order.SalesAgentId, caller) {
		return errors.New("order is claimed by another sales agent")
	}
	set := ModelSetFor(order)

	tx := db.WithContext(ctx).Begin()
	for _, in := range input.Prices {
		if in.Price.IsNegative() {
			tx.Rollback()
			return errors.New("price cannot be negative")
		}
		result := tx.Table(set.ItemTable()).
			Where("id = ? AND store_id = ?", in.ItemId, storeId).
			Update("price", in.Price)
		if result.Error != nil {
			tx.Rollback()
			return result.Error
		}
		if result.RowsAffected == 0 {
			tx.Rollback()
			return utils.ErrorRecordNotFound
		}
	}

	if err := createOrderHistory(tx, "*PRICE*", input.OrderId, "package_orders", nil, input,
		fmt.Sprintf("prices set on %d items", len(input.Prices))); err != nil {
		tx.Rollback()
		return err
	}

	return tx.Commit().Error
}

type ReceivedInput struct {
	QtyId            int `json:"qty_id" binding:"required"`
	ReceivedQuantity int `json:"received_quantity"`
}

type RecordReceivedInput struct {
	OrderId  int             `json:"order_id" binding:"required"`
	ItemId   int             `json:"item_id" binding:"required"`
	Received []ReceivedInput `json:"received" binding:"required,dive"`
}

// RecordReceivedQuantities enters goods receipt ahead of completion: sets
// receivedQuantity and shortage (= selected − received) per size row, and
// resolves the item's tri-state received flag.
func RecordReceivedQuantities(ctx context.Context, input RecordReceivedInput) error {
	db := config.GetDB()
	storeId, ok := utils.GetStoreIdFromContext(ctx)
	if !ok || storeId == "" {
		return errors.New("store id is required")
	}

	order, err := GetPackageOrder(ctx, input.OrderId)
	if err != nil {
		return err
	}
	if order.Status != PackageOrderStatusInProgress && order.Status != PackageOrderStatusConfirm {
		return errors.New("order is not receivable in its current status")
	}
	set := ModelSetFor(order)

	tx := db.WithContext(ctx).Begin()
	anyReceived := false
	for _, in := range input.Received {
		var row PackageBrandItemQty
		if err := tx.Table(set.QtyTable()).
			Where("id = ? AND package_brand_item_id = ? AND store_id = ?", in.QtyId, input.ItemId, storeId).
			Take(&row).Error; err != nil {
			tx.Rollback()
			return utils.ErrorRecordNotFound
		}
		if in.ReceivedQuantity < 0 || in.ReceivedQuantity > row.SelectedCapacity {
			tx.Rollback()
			return errors.New("received quantity out of range")
		}
		shortage := row.SelectedCapacity - in.ReceivedQuantity
		if err := tx.Table(set.QtyTable()).
			Where("id = ?", in.QtyId).
			Updates(map[string]interface{}{
				"received_quantity": in.ReceivedQuantity,
				"shortage":          shortage,
			}).Error; err != nil {
			tx.Rollback()
			return err
		}
		if in.ReceivedQuantity > 0 {
			anyReceived = true
		}
	}

	if err := tx.Table(set.ItemTable()).
		Where("id = ?", input.ItemId).
		Update("is_item_received", anyReceived).Error; err != nil {
		tx.Rollback()
		return err
	}

	if err := createOrderHistory(tx, "*RECEIVE*", input.OrderId, "package_orders", nil, input,
		fmt.Sprintf("received quantities entered for item %d", input.ItemId)); err != nil {
		tx.Rollback()
		return err
	}

	return tx.Commit().Error
}

/* synchronizer + stock fetch accessors */

// OpenQtyRow is a capacity row belonging to a still-open sibling order.
type OpenQtyRow struct {
	QtyId            int
	ItemId           int
	OrderId          int
	MaxCapacity      int
	SelectedCapacity int
	ConsumerDemand   int
}

// GetOpenQtyRows finds every (item, size) row claiming a (productId, size)
// pool across open orders, excluding one order, optionally scoped to a brand.
func GetOpenQtyRows(tx *gorm.DB, set PackageModelSet, storeId string, productId int, size string, excludeOrderId int, brandId *int) ([]OpenQtyRow, error) {
	q := tx.Table(set.QtyTable()+" AS q").
		Select(`q.id AS qty_id, i.id AS item_id, b.package_order_id AS order_id,
			q.max_capacity AS max_capacity, q.selected_capacity AS selected_capacity,
			i.consumer_demand AS consumer_demand`).
		Joins(fmt.Sprintf("JOIN %s AS i ON i.id = q.package_brand_item_id", set.ItemTable())).
		Joins(fmt.Sprintf("JOIN %s AS b ON b.id = i.package_brand_id", set.BrandTable())).
		Joins("JOIN package_orders AS o ON o.id = b.package_order_id").
		Where("b.store_id = ?", storeId).
		Where("i.product_id = ?", productId).
		Where("TRIM(q.size) = ?", strings.TrimSpace(size)).
		Where("o.status IN ?", OpenOrderStatuses).
		Where("b.package_order_id <> ?", excludeOrderId)
	if brandId != nil {
		q = q.Where("b.brand_id = ?", *brandId)
	}
	var rows []OpenQtyRow
	if err := q.Scan(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

// ApplyQtyClamp persists a synchronizer clamp onto one row and its item.
func ApplyQtyClamp(tx *gorm.DB, set PackageModelSet, qtyId, itemId, maxCapacity, selectedCapacity, consumerDemand int) error {
	if err := tx.Table(set.QtyTable()).
		Where("id = ?", qtyId).
		Updates(map[string]interface{}{
			"max_capacity":      maxCapacity,
			"selected_capacity": selectedCapacity,
		}).Error; err != nil {
		return err
	}
	return tx.Table(set.ItemTable()).
		Where("id = ?", itemId).
		Update("consumer_demand", consumerDemand).Error
}

// GetExistingCapacityVariantIds lists the variant ids already backing an item.
func GetExistingCapacityVariantIds(tx *gorm.DB, set PackageModelSet, itemId int) ([]int, error) {
	var ids []int
	err := tx.Table(set.CapacityTable()).
		Where("package_brand_item_id = ?", itemId).
		Pluck("variant_id", &ids).Error
	return ids, err
}

// InsertCapacityRows bulk-inserts candidate-pool rows, ignoring duplicates
// (unique (item_id, variant_id)).
func InsertCapacityRows(tx *gorm.DB, set PackageModelSet, rows []PackageBrandItemCapacity) error {
	if len(rows) == 0 {
		return nil
	}
	for i := range rows {
		if err := tx.Table(set.CapacityTable()).Create(&rows[i]).Error; err != nil {
			if isDuplicateKeyError(err) {
				continue
			}
			return err
		}
	}
	return nil
}
