package models

import (
	"context"
	"errors"
	"strings"
	"time"

	"bitbucket.org/klosetlabs/kloset_backend/config"
	"bitbucket.org/klosetlabs/kloset_backend/utils"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Variant is one physical unit of stock on one pricing track. Every unit is
// represented by two rows sharing a unit_id: the consignment row
// (account_type 0) and the owned row (account_type 1). Candidate selection
// and quantity accounting run on the owned track; sold-state and pricing
// updates are applied to both rows of the unit.
type Variant struct {
	ID        int    `gorm:"primary_key" json:"id"`
	StoreId   string `gorm:"index;not null" json:"store_id"`
	ProductId int    `gorm:"index;not null;index:idx_variant_pool,priority:1" json:"product_id"`
	// ItemId links to the catalog-level Inventory record; many units share one.
	ItemId int `gorm:"index;not null" json:"item_id"`
	// UnitId is the physical-unit key shared by the two pricing-track rows.
	UnitId       int    `gorm:"index;not null" json:"unit_id"`
	Option1Value string `gorm:"size:50;index:idx_variant_pool,priority:2" json:"option1_value"`
	// Status: 1 active, 2 sold, 0 trashed.
	Status      int             `gorm:"not null;default:1;index;index:idx_variant_pool,priority:3" json:"status"`
	Quantity    int             `gorm:"not null;default:1" json:"quantity"`
	AccountType int             `gorm:"not null;default:1" json:"account_type"`
	Price       decimal.Decimal `gorm:"type:decimal(20,8)" json:"price"`
	Cost        decimal.Decimal `gorm:"type:decimal(20,8)" json:"cost"`
	Payout      decimal.Decimal `gorm:"type:decimal(20,8)" json:"payout"`
	// Fee is the consignment percentage deducted from payouts on track 0.
	Fee             decimal.Decimal `gorm:"type:decimal(10,4)" json:"fee"`
	IsConsumerOrder *bool           `gorm:"default:false" json:"is_consumer_order"`
	OrderId         *int            `gorm:"index" json:"order_id"`
	CreatedAt       time.Time       `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt       time.Time       `gorm:"autoUpdateTime" json:"updated_at"`
}

/* Stock Ledger Accessor */

// CountAvailableStock sums live quantity for a (productId, size) pool on the
// owned track. Single source of truth for "how many do we have".
func CountAvailableStock(tx *gorm.DB, storeId string, productId int, size string) (int, error) {
	var total *int
	err := tx.Model(&Variant{}).
		Select("SUM(quantity)").
		Where("store_id = ? AND product_id = ? AND status = ? AND account_type = ?",
			storeId, productId, VariantStatusActive, AccountTypeOwned).
		Where("TRIM(option1_value) = ?", strings.TrimSpace(size)).
		Scan(&total).Error
	if err != nil {
		return 0, err
	}
	if total == nil {
		return 0, nil
	}
	return *total, nil
}

// GetCandidateVariants loads live owned-track units for a (productId, size)
// pool ordered by ascending id (oldest stock first). With lock=true the rows
// are taken FOR UPDATE so concurrent reconciliations cannot claim the same
// unit.
func GetCandidateVariants(tx *gorm.DB, storeId string, productId int, size string, lock bool) ([]*Variant, error) {
	q := tx.Model(&Variant{}).
		Where("store_id = ? AND product_id = ? AND status = ? AND account_type = ?",
			storeId, productId, VariantStatusActive, AccountTypeOwned).
		Where("TRIM(option1_value) = ?", strings.TrimSpace(size)).
		Order("id ASC")
	if lock {
		q = q.Clauses(clause.Locking{Strength: "UPDATE"})
	}
	var candidates []*Variant
	if err := q.Find(&candidates).Error; err != nil {
		return nil, err
	}
	return candidates, nil
}

// SoldVariantUpdate carries the per-track pricing applied to a consumed unit.
type SoldVariantUpdate struct {
	UnitId int
	// track 1: price = payout = selling price (flat)
	OwnedPrice  decimal.Decimal
	OwnedPayout decimal.Decimal
	// track 0: price = selling price; payout = selling price minus fee
	// (or unmodified for is_discount stores)
	ConsignmentPrice  decimal.Decimal
	ConsignmentPayout decimal.Decimal
}

// MarkVariantsSold flips both pricing-track rows of each consumed unit to
// sold, zeroes their quantity and stamps order linkage and prices.
func MarkVariantsSold(tx *gorm.DB, storeId string, orderId int, updates []SoldVariantUpdate) error {
	for _, u := range updates {
		if err := tx.Model(&Variant{}).
			Where("store_id = ? AND unit_id = ? AND account_type = ?", storeId, u.UnitId, AccountTypeOwned).
			Updates(map[string]interface{}{
				"status":            VariantStatusSold,
				"quantity":          0,
				"is_consumer_order": true,
				"order_id":          orderId,
				"price":             u.OwnedPrice,
				"payout":            u.OwnedPayout,
			}).Error; err != nil {
			return err
		}
		if err := tx.Model(&Variant{}).
			Where("store_id = ? AND unit_id = ? AND account_type = ?", storeId, u.UnitId, AccountTypeConsignment).
			Updates(map[string]interface{}{
				"status":            VariantStatusSold,
				"quantity":          0,
				"is_consumer_order": true,
				"order_id":          orderId,
				"price":             u.ConsignmentPrice,
				"payout":            u.ConsignmentPayout,
			}).Error; err != nil {
			return err
		}
	}
	return nil
}

// GetConsignmentFee reads the track-0 fee for a unit. Reconciliation takes
// the fee from the first consumed unit of a batch.
func GetConsignmentFee(tx *gorm.DB, storeId string, unitId int) (decimal.Decimal, error) {
	var fee decimal.Decimal
	err := tx.Model(&Variant{}).
		Where("store_id = ? AND unit_id = ? AND account_type = ?", storeId, unitId, AccountTypeConsignment).
		Select("fee").
		Scan(&fee).Error
	return fee, err
}

// LiveVariantAgg summarizes live units per size for capacity expansion.
type LiveVariantAgg struct {
	ID       int
	Quantity int
}

// GetLiveVariantsBySize groups live owned-track units of a product by trimmed
// size, keeping per-variant {id, quantity} pairs (stock fetcher input).
func GetLiveVariantsBySize(ctx context.Context, storeId string, productId int, sizes []string) (map[string][]LiveVariantAgg, error) {
	db := config.GetDB()
	trimmed := make([]string, 0, len(sizes))
	for _, s := range sizes {
		trimmed = append(trimmed, strings.TrimSpace(s))
	}

	var variants []*Variant
	q := db.WithContext(ctx).Model(&Variant{}).
		Where("store_id = ? AND product_id = ? AND status = ? AND account_type = ?",
			storeId, productId, VariantStatusActive, AccountTypeOwned).
		Order("id ASC")
	if len(trimmed) > 0 {
		q = q.Where("TRIM(option1_value) IN ?", trimmed)
	}
	if err := q.Find(&variants).Error; err != nil {
		return nil, err
	}

	bySize := make(map[string][]LiveVariantAgg)
	for _, v := range variants {
		size := strings.TrimSpace(v.Option1Value)
		bySize[size] = append(bySize[size], LiveVariantAgg{ID: v.ID, Quantity: v.Quantity})
	}
	return bySize, nil
}

// ValidateVariantOwnership checks that every unit belongs to the store.
func ValidateVariantOwnership(ctx context.Context, storeId string, variantIds []int) error {
	if len(variantIds) == 0 {
		return nil
	}
	count, err := utils.ResourceCountWhere[Variant](ctx, storeId, "id IN ?", utils.UniqueSlice(variantIds))
	if err != nil {
		return err
	}
	if count != int64(len(utils.UniqueSlice(variantIds))) {
		return errors.New("variant not found")
	}
	return nil
}
