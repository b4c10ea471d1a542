package models

import (
	"encoding/json"
	"errors"
	"time"

	"bitbucket.org/klosetlabs/kloset_backend/utils"
	"gorm.io/gorm"
)

// OrderHistory is an append-only audit row written for every mutation of an
// order that matters (status transitions, quantity/price edits, receiving).
type OrderHistory struct {
	ID            int       `gorm:"primary_key" json:"id"`
	StoreId       string    `gorm:"index;not null" json:"store_id"`
	ActionType    string    `gorm:"size:20;not null" json:"action_type" binding:"required"`
	Before        string    `gorm:"type:text" json:"before"`
	After         string    `gorm:"type:text" json:"after"`
	Description   string    `gorm:"type:text;not null" json:"description"`
	ReferenceID   int       `gorm:"index" json:"reference_id"`
	ReferenceType string    `gorm:"size:255" json:"reference_type"`
	UserId        int       `gorm:"index;not null" json:"user_id"`
	UserName      string    `gorm:"size:100" json:"user_name"`
	CreatedAt     time.Time `gorm:"autoCreateTime" json:"created_at"`
}

func createOrderHistory(tx *gorm.DB,
	actionType string,
	referenceId int,
	referenceType string,
	before interface{},
	after interface{},
	description string) (err error) {

	var history OrderHistory

	b, _ := json.Marshal(before)
	a, _ := json.Marshal(after)

	ctx := tx.Statement.Context
	storeId, ok := utils.GetStoreIdFromContext(ctx)
	if !ok || storeId == "" {
		return errors.New("store id is required")
	}
	userId, ok := utils.GetUserIdFromContext(ctx)
	if !ok {
		return errors.New("user id is required")
	}
	userName, _ := utils.GetUserNameFromContext(ctx)

	history.StoreId = storeId
	history.ActionType = actionType
	history.Before = string(b)
	history.After = string(a)
	history.Description = description
	history.ReferenceID = referenceId
	history.ReferenceType = referenceType
	history.UserId = userId
	history.UserName = userName

	return tx.Create(&history).Error
}
