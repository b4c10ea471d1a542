package models

import "errors"

type PackageOrderStatus string

const (
	PackageOrderStatusDraft      PackageOrderStatus = "DRAFT"
	PackageOrderStatusCreated    PackageOrderStatus = "CREATED"
	PackageOrderStatusInitiated  PackageOrderStatus = "INITIATED"
	PackageOrderStatusInReview   PackageOrderStatus = "IN_REVIEW"
	PackageOrderStatusConfirm    PackageOrderStatus = "CONFIRM"
	PackageOrderStatusInProgress PackageOrderStatus = "IN_PROGRESS"
	PackageOrderStatusClose      PackageOrderStatus = "CLOSE"
	PackageOrderStatusCompleted  PackageOrderStatus = "COMPLETED"
	// ACCESS packages are catalog-browsing containers; they never enter the
	// sale lifecycle but share the brand/item/qty row shapes.
	PackageOrderStatusAccess PackageOrderStatus = "ACCESS"
)

func (s PackageOrderStatus) Valid() bool {
	switch s {
	case PackageOrderStatusDraft, PackageOrderStatusCreated, PackageOrderStatusInitiated,
		PackageOrderStatusInReview, PackageOrderStatusConfirm, PackageOrderStatusInProgress,
		PackageOrderStatusClose, PackageOrderStatusCompleted, PackageOrderStatusAccess:
		return true
	}
	return false
}

func ParsePackageOrderStatus(s string) (PackageOrderStatus, error) {
	v := PackageOrderStatus(s)
	if !v.Valid() {
		return "", errors.New("invalid package order status")
	}
	return v, nil
}

// OpenOrderStatuses is the "still open" set: orders in these states are
// eligible to have their capacity claims re-clamped after a sale.
var OpenOrderStatuses = []PackageOrderStatus{
	PackageOrderStatusDraft,
	PackageOrderStatusCreated,
	PackageOrderStatusInitiated,
	PackageOrderStatusInReview,
	PackageOrderStatusConfirm,
}

type PaymentStatus string

const (
	PaymentStatusUnpaid  PaymentStatus = "UNPAID"
	PaymentStatusPartial PaymentStatus = "PARTIAL"
	PaymentStatusPaid    PaymentStatus = "PAID"
)

type UserRole string

const (
	UserRoleAdmin          UserRole = "ADMIN"
	UserRoleSalesAgent     UserRole = "SALES_AGENT"
	UserRoleLogisticsAgent UserRole = "LOGISTICS_AGENT"
	UserRoleConsumer       UserRole = "CONSUMER"
)

// Variant status values. Each variant row is one physical unit for most flows.
const (
	VariantStatusActive  = 1
	VariantStatusSold    = 2
	VariantStatusTrashed = 0
)

// Variant pricing tracks. Every physical unit carries a row on both tracks.
const (
	AccountTypeConsignment = 0
	AccountTypeOwned       = 1
)

type InventoryScope string

const (
	InventoryScopeStore InventoryScope = "store"
	InventoryScopeWeb   InventoryScope = "web"
)

type ShopifyStatus string

const (
	ShopifyStatusListed   ShopifyStatus = "Listed"
	ShopifyStatusSold     ShopifyStatus = "Sold"
	ShopifyStatusUnlisted ShopifyStatus = "Unlisted"
)

// OrderReferenceType identifies the entity behind an outbox event.
type OrderReferenceType string

const (
	OrderReferenceTypeOrder     OrderReferenceType = "PO"
	OrderReferenceTypeBrandItem OrderReferenceType = "PBI"
	OrderReferenceTypeInventory OrderReferenceType = "IV"
	OrderReferenceTypeShopSync  OrderReferenceType = "SS"
)

type PubSubMessageAction string

const (
	PubSubMessageActionCreate PubSubMessageAction = "C"
	PubSubMessageActionUpdate PubSubMessageAction = "U"
	PubSubMessageActionDelete PubSubMessageAction = "D"
)

// Named notification events emitted through the outbox.
const (
	EventOrderStatusChanged   = "order.status_changed"
	EventOrderQuantityUpdated = "order.quantity_updated"
	EventInventorySold        = "inventory.sold"
	EventShopSyncDelist       = "shopsync.delist"
	EventShopSyncDesyncWeb    = "shopsync.desync_web"
)
