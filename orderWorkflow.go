package main

import (
	"context"
	"encoding/json"
	"os"
	"strconv"
	"sync"

	"cloud.google.com/go/pubsub"
	"bitbucket.org/klosetlabs/kloset_backend/config"
	"bitbucket.org/klosetlabs/kloset_backend/mailer"
	"bitbucket.org/klosetlabs/kloset_backend/models"
	"bitbucket.org/klosetlabs/kloset_backend/shopsync"
	"bitbucket.org/klosetlabs/kloset_backend/utils"
	"bitbucket.org/klosetlabs/kloset_backend/workflow"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

var (
	storeMutexMap = make(map[string]*sync.Mutex)
	globalMutex   = &sync.Mutex{}
)

func RunOrderEventWorkflow() error {
	logger := config.GetLogger()
	ctx := context.Background()
	client, err := config.GetClient(ctx)
	if err != nil {
		return err
	}
	topic, err := config.CreateTopicIfNotExists(client, os.Getenv("PUBSUB_TOPIC"))
	if err != nil {
		return err
	}
	sub, err := config.CreateSubscriptionIfNotExists(client, os.Getenv("PUBSUB_SUBSCRIPTION"), topic)
	if err != nil {
		return err
	}
	// Specify the number of concurrent processes
	sub.ReceiveSettings.MaxOutstandingMessages = 10

	// Create a callback function to handle messages.
	callback := func(ctx context.Context, msg *pubsub.Message) {
		m := config.PubSubMessage{}
		err := json.Unmarshal(msg.Data, &m)
		if err != nil {
			config.LogError(logger, "orderWorkflow.go", "RunOrderEventWorkflow", "Unmarshaling pubsub message", msg.Data, err)
			return
		}

		// Get or create the mutex for the current StoreId
		globalMutex.Lock()
		mutex, exists := storeMutexMap[m.StoreId]
		if !exists {
			mutex = &sync.Mutex{}
			storeMutexMap[m.StoreId] = mutex
		}
		globalMutex.Unlock()

		// Lock the specific store mutex
		mutex.Lock()
		defer mutex.Unlock()

		ctx = utils.SetStoreIdInContext(ctx, m.StoreId)
		ctx = utils.SetUserIdInContext(ctx, 0)
		ctx = utils.SetUserNameInContext(ctx, "System")
		if err := ProcessMessage(ctx, logger, m); err != nil {
			logger.WithFields(logrus.Fields{
				"field":          "OrderEventWorkflow",
				"store_id":       m.StoreId,
				"event_name":     m.Action,
				"reference_type": m.ReferenceType,
				"reference_id":   m.ReferenceId,
				"message_id":     msg.ID,
			}).Error("pubsub processing failed: " + err.Error())
			msg.Nack()
			return
		}
		msg.Ack()
	}

	// Receive messages.
	go func() {
		err := sub.Receive(ctx, callback)

		if err != nil {
			config.LogError(logger, "orderWorkflow.go", "RunOrderEventWorkflow", "Failed to receive messages", nil, err)
		}
	}()

	return nil
}

func ProcessMessage(ctx context.Context, logger *logrus.Logger, m config.PubSubMessage) error {
	markOutboxProcessing(ctx, m.ID)
	db := config.GetDB()
	err := db.Transaction(func(tx *gorm.DB) error {
		// Enforce strict per-store ordering across instances. Shop-sync
		// events skip the lock: they only talk to the storefront API.
		if workflow.PostingLockRequired(m.ReferenceType) {
			if err := workflow.AcquireStorePostingLock(tx.WithContext(ctx), m.StoreId); err != nil {
				return err
			}
			defer workflow.ReleaseStorePostingLock(tx.WithContext(ctx), m.StoreId)
		}

		handlerName := m.Action
		messageId := strconv.Itoa(m.ID)

		skip, err := workflow.BeginIdempotency(tx.WithContext(ctx), m.StoreId, handlerName, messageId)
		if err != nil {
			return err
		}
		if skip {
			return nil
		}

		if err := ProcessEvent(tx.WithContext(ctx), logger, m); err != nil {
			_ = workflow.MarkIdempotencyFailed(tx.WithContext(ctx), m.StoreId, handlerName, messageId, err)
			return err
		}
		if err := workflow.MarkIdempotencySucceeded(tx.WithContext(ctx), m.StoreId, handlerName, messageId); err != nil {
			return err
		}
		return nil
	})
	if err != nil {
		if dead := markOutboxProcessFailure(ctx, logger, m, err); dead {
			notifyDeadEvent(ctx, logger, m)
		}
		return err
	}
	markOutboxProcessSuccess(ctx, logger, m)
	return nil
}

func ProcessEvent(tx *gorm.DB, logger *logrus.Logger, msg config.PubSubMessage) error {
	switch msg.Action {
	case models.EventShopSyncDelist, models.EventShopSyncDesyncWeb:
		return shopsync.ProcessEvent(tx.Statement.Context, msg)
	case models.EventOrderStatusChanged:
		return notifyOrderStatusChanged(tx, logger, msg)
	case models.EventOrderQuantityUpdated, models.EventInventorySold:
		// UI-facing notifications only, nothing durable to do here
		return nil
	}
	return nil
}

const statusMailTemplate = `Order {{.OrderNumber}} is now {{.Status}}.

Store: {{.StoreName}}
`

func notifyOrderStatusChanged(tx *gorm.DB, logger *logrus.Logger, msg config.PubSubMessage) error {
	var order models.PackageOrder
	if err := json.Unmarshal(msg.NewObj, &order); err != nil {
		return err
	}
	ctx := tx.Statement.Context

	store, err := models.GetStore(ctx, msg.StoreId)
	if err != nil {
		return err
	}
	if store.Email == "" {
		return nil
	}
	mailer.Send("Order "+order.OrderNumber+" update", statusMailTemplate, map[string]interface{}{
		"OrderNumber": order.OrderNumber,
		"Status":      string(order.Status),
		"StoreName":   store.Name,
	}, []string{store.Email})
	return nil
}

// notifyDeadEvent alerts operators when an event exhausts its processing
// retries; listings may need manual cleanup at that point.
func notifyDeadEvent(ctx context.Context, logger *logrus.Logger, msg config.PubSubMessage) {
	supportEmail := os.Getenv("SUPPORT_EMAIL")
	if supportEmail == "" {
		return
	}
	mailer.Send("Order event moved to DEAD", `Event {{.EventName}} for store {{.StoreId}} (record {{.RecordId}}) exhausted its retries and needs manual attention.`,
		map[string]interface{}{
			"EventName": msg.Action,
			"StoreId":   msg.StoreId,
			"RecordId":  msg.ID,
		}, []string{supportEmail})
}
