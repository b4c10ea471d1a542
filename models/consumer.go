package models

import (
	"context"
	"errors"
	"time"

	"bitbucket.org/klosetlabs/kloset_backend/config"
	"bitbucket.org/klosetlabs/kloset_backend/utils"
)

// Consumer is the receiving party of a package order. A consumer may belong
// to several orders and an order may serve several consumers (shared package).
type Consumer struct {
	ID        int       `gorm:"primary_key" json:"id"`
	StoreId   string    `gorm:"index;not null" json:"store_id"`
	UserId    int       `gorm:"index" json:"user_id"`
	Name      string    `gorm:"size:100;not null" json:"name" binding:"required"`
	Email     string    `gorm:"size:100" json:"email"`
	Phone     string    `gorm:"size:20" json:"phone"`
	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

type NewConsumer struct {
	Name  string `json:"name" binding:"required"`
	Email string `json:"email"`
	Phone string `json:"phone"`
}

// OrderConsumer is the many-to-many junction between orders and consumers.
type OrderConsumer struct {
	ID             int `gorm:"primary_key" json:"id"`
	PackageOrderId int `gorm:"not null;index:uniq_order_consumer,unique" json:"package_order_id"`
	ConsumerId     int `gorm:"not null;index:uniq_order_consumer,unique" json:"consumer_id"`
}

func CreateConsumer(ctx context.Context, input NewConsumer) (*Consumer, error) {
	db := config.GetDB()

	storeId, ok := utils.GetStoreIdFromContext(ctx)
	if !ok || storeId == "" {
		return nil, errors.New("store id is required")
	}
	if input.Phone != "" {
		if err := utils.ValidatePhoneNumber(input.Phone, utils.CountryCode); err != nil {
			return nil, errors.New("invalid phone number")
		}
	}
	if input.Email != "" && !utils.IsValidEmail(input.Email) {
		return nil, errors.New("invalid email")
	}

	userId, _ := utils.GetUserIdFromContext(ctx)
	consumer := Consumer{
		StoreId: storeId,
		UserId:  userId,
		Name:    input.Name,
		Email:   input.Email,
		Phone:   input.Phone,
	}
	if err := db.WithContext(ctx).Create(&consumer).Error; err != nil {
		return nil, err
	}
	return &consumer, nil
}

func GetConsumer(ctx context.Context, id int) (*Consumer, error) {
	storeId, ok := utils.GetStoreIdFromContext(ctx)
	if !ok || storeId == "" {
		return nil, errors.New("store id is required")
	}
	return utils.FetchModel[Consumer](ctx, storeId, id)
}

// GetOrderConsumerIds lists consumer ids attached to an order.
func GetOrderConsumerIds(ctx context.Context, orderId int) ([]int, error) {
	db := config.GetDB()
	var ids []int
	err := db.WithContext(ctx).Model(&OrderConsumer{}).
		Where("package_order_id = ?", orderId).
		Pluck("consumer_id", &ids).Error
	return ids, err
}
