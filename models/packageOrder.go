package models

import (
	"context"
	"errors"
	"fmt"
	"time"

	"bitbucket.org/klosetlabs/kloset_backend/config"
	"bitbucket.org/klosetlabs/kloset_backend/utils"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// PackageOrder is the consumer-facing order container. Orders are never
// physically deleted, only status-advanced.
type PackageOrder struct {
	ID      int    `gorm:"primary_key" json:"id"`
	StoreId string `gorm:"index;not null" json:"store_id"`
	// OrderNumber is the human-readable store-scoped code, e.g. KO-000042.
	OrderNumber      string             `gorm:"size:50;index" json:"order_number"`
	SequenceNo       int64              `gorm:"index" json:"sequence_no"`
	Status           PackageOrderStatus `gorm:"type:enum('DRAFT','CREATED','INITIATED','IN_REVIEW','CONFIRM','IN_PROGRESS','CLOSE','COMPLETED','ACCESS');default:DRAFT;index" json:"status"`
	PaymentStatus    PaymentStatus      `gorm:"type:enum('UNPAID','PARTIAL','PAID');default:UNPAID" json:"payment_status"`
	ShipmentStatus   *bool              `gorm:"default:false" json:"shipment_status"`
	IsManualOrder    *bool              `gorm:"default:false" json:"is_manual_order"`
	SalesAgentId     int                `gorm:"index" json:"sales_agent_id"`
	LogisticsAgentId int                `gorm:"index" json:"logistics_agent_id"`
	TotalAmount      decimal.Decimal    `gorm:"type:decimal(20,8)" json:"total_amount"`
	ReceivedAmount   decimal.Decimal    `gorm:"type:decimal(20,8)" json:"received_amount"`
	StatusChangedAt  *time.Time         `json:"status_changed_at"`
	CreatedAt        time.Time          `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt        time.Time          `gorm:"autoUpdateTime" json:"updated_at"`
}

type NewPackageOrder struct {
	ConsumerIds   []int `json:"consumer_ids" binding:"required"`
	BrandIds      []int `json:"brand_ids"`
	IsManualOrder *bool `json:"is_manual_order"`
	IsDraft       *bool `json:"is_draft"`
	IsAccess      *bool `json:"is_access"`
}

const orderNumberPrefix = "KO"

// CreatePackageOrder creates the order container with its consumer junctions
// and one brand grouping per requested brand.
func CreatePackageOrder(ctx context.Context, input NewPackageOrder) (*PackageOrder, error) {
	db := config.GetDB()
	storeId, ok := utils.GetStoreIdFromContext(ctx)
	if !ok || storeId == "" {
		return nil, errors.New("store id is required")
	}
	if len(input.ConsumerIds) == 0 {
		return nil, errors.New("at least one consumer is required")
	}
	if err := utils.ValidateResourcesId[Consumer](ctx, storeId, input.ConsumerIds); err != nil {
		return nil, errors.New("consumer not found")
	}
	if len(input.BrandIds) > 0 {
		if err := utils.ValidateResourcesId[Brand](ctx, storeId, input.BrandIds); err != nil {
			return nil, errors.New("brand not found")
		}
	}

	seqNo, err := utils.GetSequence[PackageOrder](ctx, storeId)
	if err != nil {
		return nil, err
	}

	status := PackageOrderStatusCreated
	if input.IsDraft != nil && *input.IsDraft {
		status = PackageOrderStatusDraft
	}
	if input.IsAccess != nil && *input.IsAccess {
		status = PackageOrderStatusAccess
	}

	order := PackageOrder{
		StoreId:       storeId,
		OrderNumber:   fmt.Sprintf("%s-%06d", orderNumberPrefix, seqNo),
		SequenceNo:    seqNo,
		Status:        status,
		PaymentStatus: PaymentStatusUnpaid,
		IsManualOrder: input.IsManualOrder,
	}
	if order.IsManualOrder == nil {
		order.IsManualOrder = utils.NewFalse()
	}

	tx := db.WithContext(ctx).Begin()
	if err := tx.Create(&order).Error; err != nil {
		tx.Rollback()
		return nil, err
	}
	for _, consumerId := range utils.UniqueSlice(input.ConsumerIds) {
		junction := OrderConsumer{PackageOrderId: order.ID, ConsumerId: consumerId}
		if err := tx.Create(&junction).Error; err != nil {
			tx.Rollback()
			return nil, err
		}
	}
	set := ModelSetFor(&order)
	for _, brandId := range utils.UniqueSlice(input.BrandIds) {
		brand := PackageBrand{
			StoreId:        storeId,
			PackageOrderId: order.ID,
			BrandId:        brandId,
			Selected:       utils.NewFalse(),
		}
		if err := tx.Table(set.BrandTable()).Create(&brand).Error; err != nil {
			tx.Rollback()
			return nil, err
		}
	}

	if err := createOrderHistory(tx, "*CREATE*", order.ID, "package_orders", nil, order,
		"package order "+order.OrderNumber+" created"); err != nil {
		tx.Rollback()
		return nil, err
	}
	if err := PublishOrderEvent(ctx, tx, storeId, EventOrderStatusChanged,
		order.ID, OrderReferenceTypeOrder, PubSubMessageActionCreate, nil, order); err != nil {
		tx.Rollback()
		return nil, err
	}

	return &order, tx.Commit().Error
}

// GetPackageOrder fetches an order within the caller's store scope.
func GetPackageOrder(ctx context.Context, id int) (*PackageOrder, error) {
	storeId, ok := utils.GetStoreIdFromContext(ctx)
	if !ok || storeId == "" {
		return nil, errors.New("store id is required")
	}
	return utils.FetchModel[PackageOrder](ctx, storeId, id)
}

// TransitionHook runs inside the transition's transaction after the status
// write, with the freshly updated order. Reconciliation plugs in here.
type TransitionHook func(tx *gorm.DB, order *PackageOrder) error

// TransitionPackageOrder is the single entry point for lifecycle moves: it
// locks the order row, applies the guards, writes status + timestamp, the
// audit row and the status-changed event, then runs the hook in the same
// transaction.
func TransitionPackageOrder(ctx context.Context, orderId int, to PackageOrderStatus, hook TransitionHook) (*PackageOrder, error) {
	db := config.GetDB()
	storeId, ok := utils.GetStoreIdFromContext(ctx)
	if !ok || storeId == "" {
		return nil, errors.New("store id is required")
	}
	caller := callerFromContext(ctx)

	tx := db.WithContext(ctx).Begin()
	defer func() {
		if r := recover(); r != nil {
			tx.Rollback()
			panic(r)
		}
	}()

	var order PackageOrder
	if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("store_id = ?", storeId).
		First(&order, orderId).Error; err != nil {
		tx.Rollback()
		return nil, utils.ErrorRecordNotFound
	}

	// idempotent completion short-circuit (no side effects re-run)
	if to == PackageOrderStatusCompleted && order.Status == PackageOrderStatusCompleted {
		tx.Rollback()
		return &order, nil
	}

	if err := GuardTransition(&order, to, caller); err != nil {
		tx.Rollback()
		return nil, err
	}

	before := order
	now := time.Now().UTC()
	updates := map[string]interface{}{
		"status":            to,
		"status_changed_at": now,
	}
	// sticky first claim: initiating sets the sales agent once
	if to == PackageOrderStatusInitiated && order.SalesAgentId == 0 {
		updates["sales_agent_id"] = caller.UserId
		order.SalesAgentId = caller.UserId
	}
	if err := tx.Model(&PackageOrder{}).Where("id = ?", order.ID).Updates(updates).Error; err != nil {
		tx.Rollback()
		return nil, err
	}
	order.Status = to
	order.StatusChangedAt = &now

	if err := createOrderHistory(tx, "*STATUS*", order.ID, "package_orders", before, order,
		fmt.Sprintf("order %s moved %s → %s", order.OrderNumber, before.Status, to)); err != nil {
		tx.Rollback()
		return nil, err
	}
	if err := PublishOrderEvent(ctx, tx, storeId, EventOrderStatusChanged,
		order.ID, OrderReferenceTypeOrder, PubSubMessageActionUpdate, before, order); err != nil {
		tx.Rollback()
		return nil, err
	}

	if hook != nil {
		if err := hook(tx, &order); err != nil {
			tx.Rollback()
			return nil, err
		}
	}

	if err := tx.Commit().Error; err != nil {
		return nil, err
	}
	return &order, nil
}

// FinalizeDraft moves DRAFT → CREATED. The draft must belong to the
// requesting consumer.
func FinalizeDraft(ctx context.Context, orderId int) (*PackageOrder, error) {
	db := config.GetDB()
	storeId, ok := utils.GetStoreIdFromContext(ctx)
	if !ok || storeId == "" {
		return nil, errors.New("store id is required")
	}
	caller := callerFromContext(ctx)

	if !caller.IsAdmin {
		var count int64
		err := db.WithContext(ctx).Model(&OrderConsumer{}).
			Joins("JOIN consumers ON consumers.id = order_consumers.consumer_id").
			Where("order_consumers.package_order_id = ? AND consumers.user_id = ?", orderId, caller.UserId).
			Count(&count).Error
		if err != nil {
			return nil, err
		}
		if count == 0 {
			return nil, errors.New("draft does not belong to this consumer")
		}
	}

	return TransitionPackageOrder(ctx, orderId, PackageOrderStatusCreated, nil)
}

// InitiateOrder moves CREATED → INITIATED with sticky agent claim.
func InitiateOrder(ctx context.Context, orderId int) (*PackageOrder, error) {
	return TransitionPackageOrder(ctx, orderId, PackageOrderStatusInitiated, nil)
}

// MoveOrderToReview moves INITIATED → IN_REVIEW after the price-consistency
// pass: every demanded line must be priced.
func MoveOrderToReview(ctx context.Context, orderId int) (*PackageOrder, error) {
	db := config.GetDB()
	storeId, ok := utils.GetStoreIdFromContext(ctx)
	if !ok || storeId == "" {
		return nil, errors.New("store id is required")
	}

	order, err := GetPackageOrder(ctx, orderId)
	if err != nil {
		return nil, err
	}
	set := ModelSetFor(order)

	var items []PackageBrandItem
	if err := db.WithContext(ctx).Table(set.ItemTable()+" AS i").
		Joins(fmt.Sprintf("JOIN %s AS b ON b.id = i.package_brand_id", set.BrandTable())).
		Where("b.package_order_id = ? AND b.store_id = ? AND b.selected = ?", orderId, storeId, true).
		Select("i.*").
		Scan(&items).Error; err != nil {
		return nil, err
	}
	lines := make([]PricedLine, 0, len(items))
	for _, it := range items {
		lines = append(lines, PricedLine{
			ItemId:         it.ID,
			ConsumerDemand: it.ConsumerDemand,
			HasPrice:       it.Price != nil,
		})
	}
	if err := ReviewConsistent(lines); err != nil {
		return nil, err
	}

	return TransitionPackageOrder(ctx, orderId, PackageOrderStatusInReview, nil)
}

// CloseOrder moves IN_PROGRESS → CLOSE (shipment + assigned agent guards).
func CloseOrder(ctx context.Context, orderId int) (*PackageOrder, error) {
	return TransitionPackageOrder(ctx, orderId, PackageOrderStatusClose, nil)
}

// UpdatePaymentStatus sets the payment flag and tracks received amount.
func UpdatePaymentStatus(ctx context.Context, orderId int, status PaymentStatus, receivedAmount decimal.Decimal) (*PackageOrder, error) {
	db := config.GetDB()
	storeId, ok := utils.GetStoreIdFromContext(ctx)
	if !ok || storeId == "" {
		return nil, errors.New("store id is required")
	}
	order, err := GetPackageOrder(ctx, orderId)
	if err != nil {
		return nil, err
	}
	if receivedAmount.IsNegative() {
		return nil, errors.New("received amount cannot be negative")
	}

	tx := db.WithContext(ctx).Begin()
	if err := tx.Model(&PackageOrder{}).
		Where("id = ? AND store_id = ?", orderId, storeId).
		Updates(map[string]interface{}{
			"payment_status":  status,
			"received_amount": receivedAmount,
		}).Error; err != nil {
		tx.Rollback()
		return nil, err
	}
	if err := createOrderHistory(tx, "*PAYMENT*", orderId, "package_orders", order.PaymentStatus, status,
		fmt.Sprintf("payment status set to %s", status)); err != nil {
		tx.Rollback()
		return nil, err
	}
	if err := tx.Commit().Error; err != nil {
		return nil, err
	}
	order.PaymentStatus = status
	order.ReceivedAmount = receivedAmount
	return order, nil
}

// UpdateShipmentStatus flips the shipment flag (prerequisite of closing).
func UpdateShipmentStatus(ctx context.Context, orderId int, shipped bool) (*PackageOrder, error) {
	db := config.GetDB()
	storeId, ok := utils.GetStoreIdFromContext(ctx)
	if !ok || storeId == "" {
		return nil, errors.New("store id is required")
	}
	order, err := GetPackageOrder(ctx, orderId)
	if err != nil {
		return nil, err
	}

	tx := db.WithContext(ctx).Begin()
	if err := tx.Model(&PackageOrder{}).
		Where("id = ? AND store_id = ?", orderId, storeId).
		Update("shipment_status", shipped).Error; err != nil {
		tx.Rollback()
		return nil, err
	}
	if err := createOrderHistory(tx, "*SHIPMENT*", orderId, "package_orders", order.ShipmentStatus, shipped,
		fmt.Sprintf("shipment status set to %t", shipped)); err != nil {
		tx.Rollback()
		return nil, err
	}
	if err := tx.Commit().Error; err != nil {
		return nil, err
	}
	order.ShipmentStatus = &shipped
	return order, nil
}

// ListPackageOrders pages a store's orders, optionally filtered by status.
func ListPackageOrders(ctx context.Context, status *PackageOrderStatus, limit, offset int) ([]*PackageOrder, error) {
	db := config.GetDB()
	storeId, ok := utils.GetStoreIdFromContext(ctx)
	if !ok || storeId == "" {
		return nil, errors.New("store id is required")
	}
	if limit <= 0 || limit > 100 {
		limit = config.SearchLimit
	}
	q := db.WithContext(ctx).Where("store_id = ?", storeId).
		Order("id DESC").Limit(limit).Offset(offset)
	if status != nil {
		q = q.Where("status = ?", *status)
	}
	var orders []*PackageOrder
	if err := q.Find(&orders).Error; err != nil {
		return nil, err
	}
	return orders, nil
}
