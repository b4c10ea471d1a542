package models

import (
	"context"
	"errors"
	"time"

	"bitbucket.org/klosetlabs/kloset_backend/config"
	"bitbucket.org/klosetlabs/kloset_backend/utils"
)

type Brand struct {
	ID        int       `gorm:"primary_key" json:"id"`
	StoreId   string    `gorm:"index;not null" json:"store_id"`
	Name      string    `gorm:"index;size:100;not null" json:"name" binding:"required"`
	LogoUrl   string    `json:"logo_url"`
	IsActive  *bool     `gorm:"not null;default:true" json:"is_active"`
	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

type NewBrand struct {
	Name    string `json:"name" binding:"required"`
	LogoUrl string `json:"logo_url"`
}

func CreateBrand(ctx context.Context, input NewBrand) (*Brand, error) {
	db := config.GetDB()

	storeId, ok := utils.GetStoreIdFromContext(ctx)
	if !ok || storeId == "" {
		return nil, errors.New("store id is required")
	}
	if err := utils.ValidateUnique[Brand](ctx, storeId, "name", input.Name, 0); err != nil {
		return nil, err
	}

	brand := Brand{
		StoreId:  storeId,
		Name:     input.Name,
		LogoUrl:  input.LogoUrl,
		IsActive: utils.NewTrue(),
	}
	if err := db.WithContext(ctx).Create(&brand).Error; err != nil {
		return nil, err
	}
	if err := utils.RemoveRedisList[Brand](storeId); err != nil {
		return nil, err
	}
	return &brand, nil
}

func GetBrand(ctx context.Context, id int) (*Brand, error) {
	storeId, ok := utils.GetStoreIdFromContext(ctx)
	if !ok || storeId == "" {
		return nil, errors.New("store id is required")
	}
	return utils.FetchModel[Brand](ctx, storeId, id)
}

func ListBrands(ctx context.Context) ([]*Brand, error) {
	storeId, ok := utils.GetStoreIdFromContext(ctx)
	if !ok || storeId == "" {
		return nil, errors.New("store id is required")
	}

	// redis first, then db, cache result
	results, err := utils.RetrieveRedisList[Brand](storeId)
	if err != nil {
		return nil, err
	}
	if results == nil {
		results, err = utils.FetchAllModels[Brand](ctx, storeId)
		if err != nil {
			return nil, err
		}
		if err := utils.StoreRedisList[Brand](results, storeId); err != nil {
			return nil, err
		}
	}
	return results, nil
}
