package models

import (
	"context"
	"errors"
	"strings"
	"time"

	"bitbucket.org/klosetlabs/kloset_backend/config"
	"bitbucket.org/klosetlabs/kloset_backend/utils"
)

// Product is a catalog entry. Physical stock lives in Variant rows.
type Product struct {
	ID          int       `gorm:"primary_key" json:"id"`
	StoreId     string    `gorm:"index;not null" json:"store_id"`
	BrandId     int       `gorm:"index;not null" json:"brand_id"`
	Sku         string    `gorm:"index;size:100;not null" json:"sku"`
	Name        string    `gorm:"index;size:255;not null" json:"name" binding:"required"`
	Image       string    `json:"image"`
	Color       string    `gorm:"size:50" json:"color"`
	Category    string    `gorm:"size:100" json:"category"`
	Description string    `gorm:"type:text" json:"description"`
	Template    string    `gorm:"size:100" json:"template"`
	IsActive    *bool     `gorm:"not null;default:true" json:"is_active"`
	CreatedAt   time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt   time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

type NewProduct struct {
	BrandId     int    `json:"brand_id" binding:"required"`
	Sku         string `json:"sku" binding:"required"`
	Name        string `json:"name" binding:"required"`
	Image       string `json:"image"`
	Color       string `json:"color"`
	Category    string `json:"category"`
	Description string `json:"description"`
	Template    string `json:"template"`
}

func CreateProduct(ctx context.Context, input NewProduct) (*Product, error) {
	db := config.GetDB()

	storeId, ok := utils.GetStoreIdFromContext(ctx)
	if !ok || storeId == "" {
		return nil, errors.New("store id is required")
	}
	if err := utils.ValidateResourceId[Brand](ctx, storeId, input.BrandId); err != nil {
		return nil, errors.New("brand not found")
	}
	input.Sku = strings.TrimSpace(input.Sku)
	if err := utils.ValidateUnique[Product](ctx, storeId, "sku", input.Sku, 0); err != nil {
		return nil, err
	}

	product := Product{
		StoreId:     storeId,
		BrandId:     input.BrandId,
		Sku:         input.Sku,
		Name:        input.Name,
		Image:       input.Image,
		Color:       input.Color,
		Category:    input.Category,
		Description: input.Description,
		Template:    input.Template,
		IsActive:    utils.NewTrue(),
	}
	if err := db.WithContext(ctx).Create(&product).Error; err != nil {
		return nil, err
	}
	if err := utils.RemoveRedisList[Product](storeId); err != nil {
		return nil, err
	}
	return &product, nil
}

func GetProduct(ctx context.Context, id int) (*Product, error) {
	storeId, ok := utils.GetStoreIdFromContext(ctx)
	if !ok || storeId == "" {
		return nil, errors.New("store id is required")
	}

	result, err := utils.RetrieveRedis[Product](id)
	if err != nil {
		return nil, err
	}
	if result == nil {
		result, err = utils.FetchModel[Product](ctx, storeId, id)
		if err != nil {
			return nil, err
		}
		if err := utils.StoreRedis[Product](result, id); err != nil {
			return nil, err
		}
	} else if result.StoreId != storeId {
		return nil, errors.New("cannot access resource owned by other store")
	}
	return result, nil
}

// GetProductsByIds loads products in bulk, store-scoped.
func GetProductsByIds(ctx context.Context, storeId string, ids []int) (map[int]*Product, error) {
	db := config.GetDB()
	var products []*Product
	if err := db.WithContext(ctx).
		Where("store_id = ? AND id IN ?", storeId, utils.UniqueSlice(ids)).
		Find(&products).Error; err != nil {
		return nil, err
	}
	byId := make(map[int]*Product, len(products))
	for _, p := range products {
		byId[p.ID] = p
	}
	return byId, nil
}
