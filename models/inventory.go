package models

import (
	"time"

	"gorm.io/gorm"
)

// InventoryItem is the catalog-level stock record behind variants. It carries
// the external-storefront linkage; sale state is stamped here once any of its
// units is consumed.
type InventoryItem struct {
	ID        int            `gorm:"primary_key" json:"id"`
	StoreId   string         `gorm:"index;not null" json:"store_id"`
	ProductId int            `gorm:"index;not null" json:"product_id"`
	Scope     InventoryScope `gorm:"type:enum('store','web');default:store" json:"scope"`
	// ListingId is the external storefront listing backing this record.
	ListingId     string        `gorm:"size:100;index" json:"listing_id"`
	ShopifyStatus ShopifyStatus `gorm:"type:enum('Listed','Sold','Unlisted');default:Listed" json:"shopify_status"`
	SoldOn        *time.Time    `json:"sold_on"`
	CreatedAt     time.Time     `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt     time.Time     `gorm:"autoUpdateTime" json:"updated_at"`
}

func (InventoryItem) TableName() string { return "inventory_items" }

// MarkInventoriesSold stamps soldOn/shopifyStatus on the given inventory rows,
// skipping rows already marked (guards against double-processing).
func MarkInventoriesSold(tx *gorm.DB, storeId string, inventoryIds []int, soldOn time.Time) error {
	if len(inventoryIds) == 0 {
		return nil
	}
	return tx.Model(&InventoryItem{}).
		Where("store_id = ? AND id IN ?", storeId, inventoryIds).
		Where("sold_on IS NULL AND shopify_status <> ?", ShopifyStatusSold).
		Updates(map[string]interface{}{
			"sold_on":        soldOn,
			"shopify_status": ShopifyStatusSold,
		}).Error
}

// GetInventoriesByIds loads inventory rows keyed by id.
func GetInventoriesByIds(tx *gorm.DB, storeId string, ids []int) (map[int]*InventoryItem, error) {
	var rows []*InventoryItem
	if err := tx.
		Where("store_id = ? AND id IN ?", storeId, ids).
		Find(&rows).Error; err != nil {
		return nil, err
	}
	byId := make(map[int]*InventoryItem, len(rows))
	for _, r := range rows {
		byId[r.ID] = r
	}
	return byId, nil
}

// GetWebScopeSiblings returns web-scope inventory rows of a product (the
// secondary listings desynced once a product's store stock is exhausted).
func GetWebScopeSiblings(tx *gorm.DB, storeId string, productId int) ([]*InventoryItem, error) {
	var rows []*InventoryItem
	err := tx.
		Where("store_id = ? AND product_id = ? AND scope = ?", storeId, productId, InventoryScopeWeb).
		Find(&rows).Error
	return rows, err
}
