package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"bitbucket.org/klosetlabs/kloset_backend/config"
	"bitbucket.org/klosetlabs/kloset_backend/models"
	"bitbucket.org/klosetlabs/kloset_backend/utils"
	"bitbucket.org/klosetlabs/kloset_backend/workflow"
	"github.com/bsm/redislock"
	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
)

type PubSubPushEnvelope struct {
	Message struct {
		Data []byte `json:"data,omitempty"`
		ID   string `json:"id"`
	} `json:"message"`
	Subscription string `json:"subscription"`
}

func pathID(c *gin.Context, name string) (int, bool) {
	id, err := strconv.Atoi(c.Param(name))
	if err != nil || id <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": name + " must be a positive integer"})
		return 0, false
	}
	return id, true
}

func respondErr(c *gin.Context, err error) {
	c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
}

func respondData(c *gin.Context, data interface{}) {
	c.JSON(http.StatusOK, gin.H{"data": data})
}

/* auth */

type loginRequest struct {
	Username string `json:"username" binding:"required"`
	Password string `json:"password" binding:"required"`
}

func loginHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req loginRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
			return
		}
		info, err := models.Login(c.Request.Context(), req.Username, req.Password)
		if err != nil {
			c.JSON(http.StatusUnauthorized, gin.H{"error": err.Error()})
			return
		}
		respondData(c, info)
	}
}

func logoutHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		ok, err := models.Logout(c.Request.Context())
		if err != nil {
			respondErr(c, err)
			return
		}
		respondData(c, gin.H{"logged_out": ok})
	}
}

/* stores */

func createStoreHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var input models.NewStore
		if err := c.ShouldBindJSON(&input); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
			return
		}
		store, err := models.CreateStore(c.Request.Context(), input)
		if err != nil {
			respondErr(c, err)
			return
		}
		respondData(c, store)
	}
}

func getStoreHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		store, err := models.GetStore(c.Request.Context(), c.Param("storeId"))
		if err != nil {
			c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
			return
		}
		respondData(c, store)
	}
}

/* users */

func createUserHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var input models.NewUser
		if err := c.ShouldBindJSON(&input); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
			return
		}
		user, err := models.CreateUser(c.Request.Context(), input)
		if err != nil {
			respondErr(c, err)
			return
		}
		respondData(c, user)
	}
}

func getUserHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := pathID(c, "id")
		if !ok {
			return
		}
		user, err := models.GetUser(c.Request.Context(), id)
		if err != nil {
			c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
			return
		}
		respondData(c, user)
	}
}

type toggleActiveRequest struct {
	IsActive *bool `json:"is_active" binding:"required"`
}

func toggleUserActiveHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := pathID(c, "id")
		if !ok {
			return
		}
		var req toggleActiveRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "is_active is required"})
			return
		}
		user, err := models.ToggleUserActive(c.Request.Context(), id, *req.IsActive)
		if err != nil {
			respondErr(c, err)
			return
		}
		respondData(c, user)
	}
}

/* consumers */

func createConsumerHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var input models.NewConsumer
		if err := c.ShouldBindJSON(&input); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
			return
		}
		consumer, err := models.CreateConsumer(c.Request.Context(), input)
		if err != nil {
			respondErr(c, err)
			return
		}
		respondData(c, consumer)
	}
}

func getConsumerHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := pathID(c, "id")
		if !ok {
			return
		}
		consumer, err := models.GetConsumer(c.Request.Context(), id)
		if err != nil {
			c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
			return
		}
		respondData(c, consumer)
	}
}

/* brands */

func createBrandHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var input models.NewBrand
		if err := c.ShouldBindJSON(&input); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
			return
		}
		brand, err := models.CreateBrand(c.Request.Context(), input)
		if err != nil {
			respondErr(c, err)
			return
		}
		respondData(c, brand)
	}
}

func listBrandsHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		brands, err := models.ListBrands(c.Request.Context())
		if err != nil {
			respondErr(c, err)
			return
		}
		respondData(c, brands)
	}
}

func getBrandHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := pathID(c, "id")
		if !ok {
			return
		}
		brand, err := models.GetBrand(c.Request.Context(), id)
		if err != nil {
			c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
			return
		}
		respondData(c, brand)
	}
}

/* products */

func createProductHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var input models.NewProduct
		if err := c.ShouldBindJSON(&input); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
			return
		}
		product, err := models.CreateProduct(c.Request.Context(), input)
		if err != nil {
			respondErr(c, err)
			return
		}
		respondData(c, product)
	}
}

func getProductHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := pathID(c, "id")
		if !ok {
			return
		}
		product, err := models.GetProduct(c.Request.Context(), id)
		if err != nil {
			c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
			return
		}
		respondData(c, product)
	}
}

/* package orders */

func createOrderHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var input models.NewPackageOrder
		if err := c.ShouldBindJSON(&input); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
			return
		}
		order, err := models.CreatePackageOrder(c.Request.Context(), input)
		if err != nil {
			respondErr(c, err)
			return
		}
		respondData(c, order)
	}
}

func getOrderHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := pathID(c, "id")
		if !ok {
			return
		}
		order, err := models.GetPackageOrder(c.Request.Context(), id)
		if err != nil {
			c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
			return
		}
		respondData(c, order)
	}
}

func listOrdersHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var status *models.PackageOrderStatus
		if s := c.Query("status"); s != "" {
			parsed, err := models.ParsePackageOrderStatus(s)
			if err != nil {
				respondErr(c, err)
				return
			}
			status = &parsed
		}
		limit, _ := strconv.Atoi(c.DefaultQuery("limit", "0"))
		offset, _ := strconv.Atoi(c.DefaultQuery("offset", "0"))
		orders, err := models.ListPackageOrders(c.Request.Context(), status, limit, offset)
		if err != nil {
			respondErr(c, err)
			return
		}
		respondData(c, orders)
	}
}

// simpleTransition wraps the transitions that take no extra payload.
func simpleTransition(fn func(ctx context.Context, orderId int) (*models.PackageOrder, error)) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := pathID(c, "id")
		if !ok {
			return
		}
		order, err := fn(c.Request.Context(), id)
		if err != nil {
			respondErr(c, err)
			return
		}
		respondData(c, order)
	}
}

type confirmOrderRequest struct {
	ConfirmationDate *time.Time `json:"confirmation_date"`
}

func confirmOrderHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := pathID(c, "id")
		if !ok {
			return
		}
		var req confirmOrderRequest
		if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
			return
		}
		when := time.Now().UTC()
		if req.ConfirmationDate != nil {
			when = *req.ConfirmationDate
		}
		order, err := workflow.ConfirmOrder(c.Request.Context(), id, when)
		if err != nil {
			respondErr(c, err)
			return
		}
		respondData(c, order)
	}
}

func startProgressHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := pathID(c, "id")
		if !ok {
			return
		}
		var req confirmOrderRequest
		if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
			return
		}
		when := time.Now().UTC()
		if req.ConfirmationDate != nil {
			when = *req.ConfirmationDate
		}
		order, err := workflow.StartOrderProgress(c.Request.Context(), id, when)
		if err != nil {
			respondErr(c, err)
			return
		}
		respondData(c, order)
	}
}

type completeOrderRequest struct {
	ReceiptDate   *time.Time `json:"receipt_date"`
	TargetStoreId string     `json:"target_store_id"`
}

func completeOrderHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := pathID(c, "id")
		if !ok {
			return
		}
		var req completeOrderRequest
		if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
			return
		}
		when := time.Now().UTC()
		if req.ReceiptDate != nil {
			when = *req.ReceiptDate
		}
		order, err := workflow.CompleteOrder(c.Request.Context(), id, when, req.TargetStoreId)
		if err != nil {
			respondErr(c, err)
			return
		}
		respondData(c, order)
	}
}

type paymentStatusRequest struct {
	Status         models.PaymentStatus `json:"status" binding:"required"`
	ReceivedAmount decimal.Decimal      `json:"received_amount"`
}

func updatePaymentStatusHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := pathID(c, "id")
		if !ok {
			return
		}
		var req paymentStatusRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
			return
		}
		order, err := models.UpdatePaymentStatus(c.Request.Context(), id, req.Status, req.ReceivedAmount)
		if err != nil {
			respondErr(c, err)
			return
		}
		respondData(c, order)
	}
}

type shipmentStatusRequest struct {
	Shipped *bool `json:"shipped" binding:"required"`
}

func updateShipmentStatusHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := pathID(c, "id")
		if !ok {
			return
		}
		var req shipmentStatusRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "shipped is required"})
			return
		}
		order, err := models.UpdateShipmentStatus(c.Request.Context(), id, *req.Shipped)
		if err != nil {
			respondErr(c, err)
			return
		}
		respondData(c, order)
	}
}

/* item quantity / price / receipt mutations */

func setItemQuantitiesHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var input models.SetItemQuantitiesInput
		if err := c.ShouldBindJSON(&input); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
			return
		}
		if err := models.SetItemQuantities(c.Request.Context(), input); err != nil {
			if errors.Is(err, models.ErrStaleCapacity) {
				c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
				return
			}
			respondErr(c, err)
			return
		}
		respondData(c, gin.H{"updated": true})
	}
}

func setItemPricesHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var input models.SetItemPricesInput
		if err := c.ShouldBindJSON(&input); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
			return
		}
		if err := models.SetItemPrices(c.Request.Context(), input); err != nil {
			respondErr(c, err)
			return
		}
		respondData(c, gin.H{"updated": true})
	}
}

func recordReceivedHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var input models.RecordReceivedInput
		if err := c.ShouldBindJSON(&input); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
			return
		}
		if err := models.RecordReceivedQuantities(c.Request.Context(), input); err != nil {
			respondErr(c, err)
			return
		}
		respondData(c, gin.H{"updated": true})
	}
}

type stockFetchRequest struct {
	Sizes []string `json:"sizes" binding:"required"`
}

func fetchStockHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		orderId, ok := pathID(c, "id")
		if !ok {
			return
		}
		itemId, ok := pathID(c, "itemId")
		if !ok {
			return
		}
		var req stockFetchRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "sizes are required"})
			return
		}
		if err := workflow.FetchStockForItem(c.Request.Context(), orderId, itemId, req.Sizes); err != nil {
			respondErr(c, err)
			return
		}
		respondData(c, gin.H{"fetched": true})
	}
}

/* consumer ledger */

func listConsumerInventoryHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := c.Request.Context()
		storeId, ok := utils.GetStoreIdFromContext(ctx)
		if !ok || storeId == "" {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			return
		}
		consumerId, err := strconv.Atoi(c.Query("consumer_id"))
		if err != nil || consumerId <= 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "consumer_id must be a positive integer"})
			return
		}
		limit, _ := strconv.Atoi(c.DefaultQuery("limit", "0"))
		offset, _ := strconv.Atoi(c.DefaultQuery("offset", "0"))
		rows, err := models.ListConsumerInventory(ctx, storeId, consumerId, limit, offset)
		if err != nil {
			respondErr(c, err)
			return
		}
		respondData(c, rows)
	}
}

/* reports */

func soldInventoryReportHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := c.Request.Context()
		storeId, ok := utils.GetStoreIdFromContext(ctx)
		if !ok || storeId == "" {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			return
		}
		from, err := time.Parse("2006-01-02", c.Query("from"))
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "from must be YYYY-MM-DD"})
			return
		}
		to, err := time.Parse("2006-01-02", c.Query("to"))
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "to must be YYYY-MM-DD"})
			return
		}
		// include the whole "to" day
		to = to.Add(24*time.Hour - time.Nanosecond)
		if err := models.ExportSoldInventoryXLSX(ctx, c.Writer, storeId, from, to); err != nil {
			respondErr(c, err)
			return
		}
	}
}

/* pubsub push (order workflow events) */

func orderPubSubHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var envelope PubSubPushEnvelope
		logger := config.GetLogger()

		// Redis lock is a best-effort optimization.
		// Reliability must not depend on Redis: we also serialize posting via
		// MySQL advisory locks in ProcessMessage().
		redisLock := config.GetRedisLock()

		body, err := io.ReadAll(c.Request.Body)
		if err != nil {
			config.LogError(logger, "handlers.go", "orderPubSubHandler", "io.ReadAll", nil, err)
			// Malformed request body: ack/drop to avoid infinite retries.
			c.Status(http.StatusNoContent)
			return
		}

		// byte slice unmarshalling handles base64 decoding.
		if err := json.Unmarshal(body, &envelope); err != nil {
			config.LogError(logger, "handlers.go", "orderPubSubHandler", "Unmarshal body", body, err)
			c.Status(http.StatusNoContent)
			return
		}

		var m config.PubSubMessage
		if err := json.Unmarshal(envelope.Message.Data, &m); err != nil {
			config.LogError(logger, "handlers.go", "orderPubSubHandler", "Unmarshal pubsub message", envelope.Message.Data, err)
			c.Status(http.StatusNoContent)
			return
		}

		// Basic validation to avoid retry loops on poisoned messages.
		if m.StoreId == "" || m.ReferenceType == "" {
			config.LogError(logger, "handlers.go", "orderPubSubHandler", "Invalid pubsub message (missing required fields)", m, fmt.Errorf("store_id/reference_type required"))
			c.Status(http.StatusNoContent)
			return
		}

		correlationID := m.CorrelationId
		if correlationID == "" {
			correlationID = envelope.Message.ID
		}

		// Best-effort: try to obtain a lock for the store to avoid long
		// in-request blocking. If Redis is unavailable / lock cannot be
		// obtained, continue anyway; ProcessMessage() serializes safely.
		var lock *redislock.Lock
		if redisLock == nil {
			logger.WithFields(logrus.Fields{
				"field":          "orderPubSubHandler",
				"store_id":       m.StoreId,
				"reference_type": m.ReferenceType,
				"reference_id":   m.ReferenceId,
				"message_id":     envelope.Message.ID,
			}).Warn("redis lock not ready; proceeding without redis lock")
		} else {
			lock, err = redisLock.Obtain(c.Request.Context(), fmt.Sprintf("lock:%s", m.StoreId), 30*time.Second, nil)
			if err == redislock.ErrNotObtained {
				logger.WithFields(logrus.Fields{
					"field":          "orderPubSubHandler",
					"store_id":       m.StoreId,
					"reference_type": m.ReferenceType,
					"reference_id":   m.ReferenceId,
					"message_id":     envelope.Message.ID,
				}).Warn("could not obtain redis lock; proceeding without redis lock")
				lock = nil
			} else if err != nil {
				logger.WithFields(logrus.Fields{
					"field":          "orderPubSubHandler",
					"store_id":       m.StoreId,
					"reference_type": m.ReferenceType,
					"reference_id":   m.ReferenceId,
					"message_id":     envelope.Message.ID,
				}).Warn("error obtaining redis lock; proceeding without redis lock: " + err.Error())
				lock = nil
			}
		}
		defer func() {
			if lock == nil {
				return
			}
			if releaseErr := lock.Release(c.Request.Context()); releaseErr != nil {
				logger.WithFields(logrus.Fields{
					"field":        "orderPubSubHandler",
					"store_id":     m.StoreId,
					"reference_id": m.ReferenceId,
					"message_id":   envelope.Message.ID,
				}).Warn("failed to release redis lock: " + releaseErr.Error())
			}
		}()

		ctx := utils.SetStoreIdInContext(c.Request.Context(), m.StoreId)
		ctx = utils.SetUserIdInContext(ctx, 0)
		ctx = utils.SetUserNameInContext(ctx, "System")
		ctx = utils.SetCorrelationIdInContext(ctx, correlationID)
		if err := ProcessMessage(ctx, logger, m); err != nil {
			logger.WithFields(logrus.Fields{
				"field":          "orderPubSubHandler",
				"store_id":       m.StoreId,
				"reference_type": m.ReferenceType,
				"reference_id":   m.ReferenceId,
				"message_id":     envelope.Message.ID,
				"correlation_id": correlationID,
			}).Error("pubsub processing failed: " + err.Error())
			// Non-2xx tells Pub/Sub to retry (and potentially route to DLQ).
			c.Status(http.StatusInternalServerError)
			return
		}

		c.Status(http.StatusNoContent)
	}
}

/* ops tooling */

type outboxReplayRequest struct {
	StoreId  string `json:"store_id"`
	RecordId int    `json:"record_id"`
}

// outboxReplayHandler re-arms a DEAD/FAILED outbox record for immediate
// redelivery. Admin only.
func outboxReplayHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := c.Request.Context()
		if isAdmin, _ := utils.GetIsAdminFromContext(ctx); !isAdmin {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			return
		}

		var req outboxReplayRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
			return
		}
		if req.StoreId == "" || req.RecordId <= 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "store_id and record_id are required"})
			return
		}

		db := config.GetDB()
		if db == nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": "db is nil"})
			return
		}
		now := time.Now().UTC()
		if err := db.WithContext(ctx).
			Model(&models.OrderEventRecord{}).
			Where("id = ? AND store_id = ?", req.RecordId, req.StoreId).
			Updates(map[string]interface{}{
				"publish_status":     models.OutboxPublishStatusFailed,
				"next_attempt_at":    &now,
				"locked_at":          nil,
				"locked_by":          nil,
				"last_publish_error": nil,
			}).Error; err != nil {
			respondErr(c, err)
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"store_id":        req.StoreId,
			"record_id":       req.RecordId,
			"publish_status":  models.OutboxPublishStatusFailed,
			"next_attempt_at": now.Format(time.RFC3339Nano),
		})
	}
}
