package models

import (
	"context"
	"errors"
	"fmt"
	"time"

	"bitbucket.org/klosetlabs/kloset_backend/config"
	"bitbucket.org/klosetlabs/kloset_backend/utils"
	"github.com/google/uuid"
)

// Store is the tenant. Every scoped table carries its id as store_id.
type Store struct {
	ID          string    `gorm:"primary_key;size:64" json:"id"`
	LogoUrl     string    `json:"logo_url"`
	Name        string    `gorm:"index;size:100;not null" json:"name" binding:"required"`
	ContactName string    `gorm:"size:100" json:"contact_name"`
	Email       string    `gorm:"size:255" json:"email"`
	Phone       string    `gorm:"size:20" json:"phone"`
	Address     string    `gorm:"type:text" json:"address"`
	Timezone    string    `gorm:"size:50" json:"timezone"`
	// IsDiscount stores sell at the quoted price without deducting the
	// consignment fee from payouts.
	IsDiscount *bool     `gorm:"not null;default:false" json:"is_discount"`
	IsActive   *bool     `gorm:"not null;default:true" json:"is_active"`
	CreatedAt  time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt  time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

type NewStore struct {
	LogoUrl     string `json:"logo_url"`
	Name        string `json:"name" binding:"required"`
	ContactName string `json:"contact_name"`
	Email       string `json:"email" binding:"required"`
	Phone       string `json:"phone"`
	Address     string `json:"address"`
	Timezone    string `json:"timezone"`
	IsDiscount  *bool  `json:"is_discount"`
}

func (store *Store) StoreRedis() error {
	return config.SetRedisObject("Store:"+fmt.Sprint(store.ID), store, 0)
}

func (store *Store) RemoveRedis() error {
	return config.RemoveRedisKey("Store:" + fmt.Sprint(store.ID))
}

func CreateStore(ctx context.Context, input NewStore) (*Store, error) {
	db := config.GetDB()

	if input.Phone != "" {
		if err := utils.ValidatePhoneNumber(input.Phone, utils.CountryCode); err != nil {
			return nil, errors.New("invalid phone number")
		}
	}
	if input.Email != "" && !utils.IsValidEmail(input.Email) {
		return nil, errors.New("invalid email")
	}

	store := Store{
		ID:          uuid.NewString(),
		LogoUrl:     input.LogoUrl,
		Name:        input.Name,
		ContactName: input.ContactName,
		Email:       input.Email,
		Phone:       input.Phone,
		Address:     input.Address,
		Timezone:    input.Timezone,
		IsDiscount:  input.IsDiscount,
		IsActive:    utils.NewTrue(),
	}
	if store.IsDiscount == nil {
		store.IsDiscount = utils.NewFalse()
	}
	if err := db.WithContext(ctx).Create(&store).Error; err != nil {
		return nil, err
	}
	if err := store.StoreRedis(); err != nil {
		return nil, err
	}
	return &store, nil
}

// GetStore reads redis first, then db, and caches the result.
func GetStore(ctx context.Context, storeId string) (*Store, error) {
	var store Store
	exists, err := config.GetRedisObject("Store:"+storeId, &store)
	if err != nil {
		return nil, err
	}
	if exists {
		return &store, nil
	}

	db := config.GetDB()
	if err := db.WithContext(ctx).Where("id = ?", storeId).First(&store).Error; err != nil {
		return nil, utils.ErrorRecordNotFound
	}
	if err := store.StoreRedis(); err != nil {
		return nil, err
	}
	return &store, nil
}

// StoreHasDiscount resolves the payout rule input for reconciliation pricing.
func StoreHasDiscount(ctx context.Context, storeId string) (bool, error) {
	store, err := GetStore(ctx, storeId)
	if err != nil {
		return false, err
	}
	return store.IsDiscount != nil && *store.IsDiscount, nil
}
