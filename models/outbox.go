package models

import (
	"context"
	"encoding/json"
	"time"

	"bitbucket.org/klosetlabs/kloset_backend/config"
	"bitbucket.org/klosetlabs/kloset_backend/utils"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Outbox publish statuses for OrderEventRecord.PublishStatus.
const (
	OutboxPublishStatusPending    = "PENDING"
	OutboxPublishStatusProcessing = "PROCESSING"
	OutboxPublishStatusSent       = "SENT"
	OutboxPublishStatusFailed     = "FAILED"
	OutboxPublishStatusDead       = "DEAD"
)

// Consumer-side processing statuses for OrderEventRecord.ProcessingStatus.
const (
	OutboxProcessStatusPending    = "PENDING"
	OutboxProcessStatusProcessing = "PROCESSING"
	OutboxProcessStatusSucceeded  = "SUCCEEDED"
	OutboxProcessStatusFailed     = "FAILED"
	OutboxProcessStatusDead       = "DEAD"
)

// OrderEventRecord is the transactional outbox row: events are written inside
// the caller's DB transaction and delivered after commit by the dispatcher
// (notification channel) or the shop-sync worker (storefront cleanup).
type OrderEventRecord struct {
	ID                  int                 `gorm:"primary_key;index:idx_outbox_dispatch,priority:3" json:"id"`
	StoreId             string              `gorm:"size:64;not null;index" json:"store_id"`
	TransactionDateTime time.Time           `gorm:"index;not null" json:"transaction_date_time"`
	ReferenceId         int                 `json:"reference_id"`
	ReferenceType       OrderReferenceType  `gorm:"type:enum('PO','PBI','IV','SS')" json:"reference_type"`
	EventName           string              `gorm:"size:100;not null;index" json:"event_name"`
	Action              PubSubMessageAction `gorm:"type:enum('C','U','D')" json:"action"`
	OldObj              []byte              `gorm:"type:blob" json:"old_obj"`
	NewObj              []byte              `gorm:"type:blob" json:"new_obj"`
	// Publish metadata (delivery happens after commit via dispatcher).
	PublishStatus    string     `gorm:"size:20;index;not null;default:'PENDING';index:idx_outbox_dispatch,priority:1" json:"publish_status"` // PENDING|PROCESSING|SENT|FAILED|DEAD
	PublishedAt      *time.Time `gorm:"index" json:"published_at"`
	PubSubMessageId  *string    `gorm:"size:255" json:"pubsub_message_id"`
	PublishAttempts  int        `gorm:"not null;default:0" json:"publish_attempts"`
	NextAttemptAt    *time.Time `gorm:"index;index:idx_outbox_dispatch,priority:2" json:"next_attempt_at"`
	LockedAt         *time.Time `gorm:"index" json:"locked_at"`
	LockedBy         *string    `gorm:"size:100" json:"locked_by"`
	LastPublishError *string    `gorm:"type:text" json:"last_publish_error"`
	// Processing metadata (consumer side; also used by the direct processor
	// when Pub/Sub is not configured).
	IsProcessed          bool       `gorm:"not null;default:0;index" json:"is_processed"`
	ProcessingStatus     string     `gorm:"size:20;index;not null;default:'PENDING'" json:"processing_status"` // PENDING|PROCESSING|SUCCEEDED|FAILED|DEAD
	ProcessAttempts      int        `gorm:"not null;default:0" json:"process_attempts"`
	NextProcessAttemptAt *time.Time `gorm:"index" json:"next_process_attempt_at"`
	ProcessedAt          *time.Time `json:"processed_at"`
	LastProcessError     *string    `gorm:"type:text" json:"last_process_error"`
	CorrelationId        string     `gorm:"size:64;index" json:"correlation_id"`
	CreatedAt        time.Time  `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt        time.Time  `gorm:"autoUpdateTime" json:"updated_at"`
}

func ConvertToPubSubMessage(record OrderEventRecord) config.PubSubMessage {
	return config.PubSubMessage{
		ID:                  record.ID,
		StoreId:             record.StoreId,
		TransactionDateTime: record.TransactionDateTime,
		ReferenceId:         record.ReferenceId,
		ReferenceType:       string(record.ReferenceType),
		Action:              record.EventName,
		OldObj:              record.OldObj,
		NewObj:              record.NewObj,
		CorrelationId:       record.CorrelationId,
	}
}

// PublishOrderEvent writes an event row inside the caller's transaction. It
// does NOT talk to Pub/Sub; the dispatcher picks the row up after commit.
func PublishOrderEvent(ctx context.Context, tx *gorm.DB, storeId string, eventName string,
	refId int, refType OrderReferenceType, action PubSubMessageAction, oldObj, newObj interface{}) error {

	var oldBytes, newBytes []byte
	var err error
	if newObj != nil {
		newBytes, err = json.Marshal(newObj)
		if err != nil {
			return err
		}
	}
	if oldObj != nil {
		oldBytes, err = json.Marshal(oldObj)
		if err != nil {
			return err
		}
	}

	record := OrderEventRecord{
		StoreId:             storeId,
		TransactionDateTime: time.Now().UTC(),
		ReferenceId:         refId,
		ReferenceType:       refType,
		EventName:           eventName,
		Action:              action,
		OldObj:              oldBytes,
		NewObj:              newBytes,
		PublishStatus:       OutboxPublishStatusPending,
		CorrelationId:       correlationIdFromContextOrNew(ctx),
	}
	return tx.Create(&record).Error
}

func correlationIdFromContextOrNew(ctx context.Context) string {
	if ctx != nil {
		if v, ok := utils.GetCorrelationIdFromContext(ctx); ok && v != "" {
			return v
		}
	}
	return uuid.NewString()
}

// ShopSyncPayload is the body of shopsync.* outbox events, consumed by the
// shop-sync worker after commit.
type ShopSyncPayload struct {
	StoreId    string   `json:"store_id"`
	ProductId  int      `json:"product_id"`
	ListingIds []string `json:"listing_ids"`
	Scope      string   `json:"scope"`
}
