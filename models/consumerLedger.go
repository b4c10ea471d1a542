package models

import (
	"context"
	"time"

	"bitbucket.org/klosetlabs/kloset_backend/config"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// The consumer ledger mirrors what a completed order delivered to each
// consumer: one catalog row per sku, aggregate rows per size, and one
// inventory row per physical unit. Rows are written by the completion
// fan-out and are last-writer-wins on re-delivery.

type ConsumerProduct struct {
	ID        int       `gorm:"primary_key" json:"id"`
	StoreId   string    `gorm:"index;not null" json:"store_id"`
	Sku       string    `gorm:"size:100;uniqueIndex:uniq_consumer_product_sku,priority:2" json:"sku"`
	StoreKey  string    `gorm:"column:store_key;size:36;uniqueIndex:uniq_consumer_product_sku,priority:1" json:"-"`
	Name      string    `gorm:"size:255" json:"name"`
	BrandName string    `gorm:"size:255" json:"brand_name"`
	Image     string    `gorm:"size:500" json:"image"`
	Color     string    `gorm:"size:100" json:"color"`
	Category  string    `gorm:"size:100" json:"category"`
	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

// ConsumerProductUser links a ledger product to the consumers that received
// units of it.
type ConsumerProductUser struct {
	ID                int `gorm:"primary_key" json:"id"`
	ConsumerProductId int `gorm:"uniqueIndex:uniq_consumer_product_user,priority:1;not null" json:"consumer_product_id"`
	ConsumerId        int `gorm:"uniqueIndex:uniq_consumer_product_user,priority:2;not null" json:"consumer_id"`
}

// ConsumerProductVariant is the per-size aggregate of delivered quantity.
type ConsumerProductVariant struct {
	ID                int             `gorm:"primary_key" json:"id"`
	StoreId           string          `gorm:"index;not null" json:"store_id"`
	ConsumerProductId int             `gorm:"uniqueIndex:uniq_consumer_variant,priority:1;not null" json:"consumer_product_id"`
	Option1Value      string          `gorm:"size:50;uniqueIndex:uniq_consumer_variant,priority:2" json:"option1_value"`
	Quantity          int             `json:"quantity"`
	Price             decimal.Decimal `gorm:"type:decimal(20,8)" json:"price"`
	// PurchaseDate is the receipt date of the delivery that last wrote this row.
	PurchaseDate *time.Time `json:"purchase_date"`
	CreatedAt    time.Time  `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt    time.Time  `gorm:"autoUpdateTime" json:"updated_at"`
}

// ConsumerInventory is one delivered physical unit with its provenance.
type ConsumerInventory struct {
	ID                       int             `gorm:"primary_key" json:"id"`
	StoreId                  string          `gorm:"index;not null" json:"store_id"`
	ConsumerProductId        int             `gorm:"index;not null" json:"consumer_product_id"`
	ConsumerProductVariantId int             `gorm:"index;not null" json:"consumer_product_variant_id"`
	ConsumerId               int             `gorm:"index" json:"consumer_id"`
	PackageOrderId           int             `gorm:"index" json:"package_order_id"`
	SourceVariantId          int             `gorm:"index" json:"source_variant_id"`
	Option1Value             string          `gorm:"size:50" json:"option1_value"`
	Status                   string          `gorm:"size:20;default:Active" json:"status"`
	Price                    decimal.Decimal `gorm:"type:decimal(20,8)" json:"price"`
	// AcceptedOn is the receipt date the unit was handed over to the consumer.
	AcceptedOn *time.Time `json:"accepted_on"`
	CreatedAt  time.Time  `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt  time.Time  `gorm:"autoUpdateTime" json:"updated_at"`
}

// UpsertConsumerProduct finds or creates the ledger product for a sku and
// refreshes its catalog attributes. Idempotent per (store, sku).
func UpsertConsumerProduct(tx *gorm.DB, storeId string, product *Product, brandName string) (*ConsumerProduct, error) {
	var cp ConsumerProduct
	err := tx.Where("store_key = ? AND sku = ?", storeId, product.Sku).First(&cp).Error
	if err != nil {
		if err != gorm.ErrRecordNotFound {
			return nil, err
		}
		cp = ConsumerProduct{
			StoreId:  storeId,
			StoreKey: storeId,
			Sku:      product.Sku,
		}
	}
	cp.Name = product.Name
	cp.BrandName = brandName
	cp.Image = product.Image
	cp.Color = product.Color
	cp.Category = product.Category
	if cp.ID == 0 {
		if err := tx.Create(&cp).Error; err != nil {
			if isDuplicateKeyError(err) {
				// concurrent upsert won the race, reload
				if err := tx.Where("store_key = ? AND sku = ?", storeId, product.Sku).First(&cp).Error; err != nil {
					return nil, err
				}
				return &cp, nil
			}
			return nil, err
		}
		return &cp, nil
	}
	return &cp, tx.Save(&cp).Error
}

// LinkConsumerProductUser attaches a consumer to a ledger product, ignoring
// an existing link.
func LinkConsumerProductUser(tx *gorm.DB, consumerProductId, consumerId int) error {
	link := ConsumerProductUser{ConsumerProductId: consumerProductId, ConsumerId: consumerId}
	if err := tx.Create(&link).Error; err != nil && !isDuplicateKeyError(err) {
		return err
	}
	return nil
}

// UpsertConsumerVariant sets the per-size aggregate row. Quantities and
// prices from a later delivery overwrite earlier values.
func UpsertConsumerVariant(tx *gorm.DB, storeId string, consumerProductId int, size string, quantity int, price decimal.Decimal, purchaseDate time.Time) (*ConsumerProductVariant, error) {
	var cv ConsumerProductVariant
	err := tx.Where("consumer_product_id = ? AND option1_value = ?", consumerProductId, size).First(&cv).Error
	if err != nil {
		if err != gorm.ErrRecordNotFound {
			return nil, err
		}
		cv = ConsumerProductVariant{
			StoreId:           storeId,
			ConsumerProductId: consumerProductId,
			Option1Value:      size,
		}
	}
	cv.Quantity = quantity
	cv.Price = price
	cv.PurchaseDate = &purchaseDate
	if cv.ID == 0 {
		if err := tx.Create(&cv).Error; err != nil {
			if isDuplicateKeyError(err) {
				if err := tx.Where("consumer_product_id = ? AND option1_value = ?", consumerProductId, size).First(&cv).Error; err != nil {
					return nil, err
				}
				cv.Quantity = quantity
				cv.Price = price
				cv.PurchaseDate = &purchaseDate
				return &cv, tx.Save(&cv).Error
			}
			return nil, err
		}
		return &cv, nil
	}
	return &cv, tx.Save(&cv).Error
}

// CreateConsumerInventory writes one delivered-unit row.
func CreateConsumerInventory(tx *gorm.DB, row *ConsumerInventory) error {
	if row.Status == "" {
		row.Status = "Active"
	}
	return tx.Create(row).Error
}

// ListConsumerInventory pages a consumer's delivered units in a store.
func ListConsumerInventory(ctx context.Context, storeId string, consumerId int, limit, offset int) ([]*ConsumerInventory, error) {
	db := config.GetDB()
	if limit <= 0 || limit > 100 {
		limit = config.SearchLimit
	}
	var rows []*ConsumerInventory
	err := db.WithContext(ctx).
		Where("store_id = ? AND consumer_id = ?", storeId, consumerId).
		Order("id DESC").Limit(limit).Offset(offset).
		Find(&rows).Error
	return rows, err
}
