package workflow

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"bitbucket.org/klosetlabs/kloset_backend/config"
	"bitbucket.org/klosetlabs/kloset_backend/models"
	"bitbucket.org/klosetlabs/kloset_backend/shopsync"
	"bitbucket.org/klosetlabs/kloset_backend/utils"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

const completionFanoutHandler = "order_completion_fanout"

// SizeQty is one aggregated (size, quantity, price) bucket within a product.
type SizeQty struct {
	Size  string
	Qty   int
	Price decimal.Decimal
}

// ProductGroup is one distinct catalog product's received stock.
type ProductGroup struct {
	ProductId  int
	BrandId    int
	Sizes      []SizeQty
	TotalUnits int
}

// GroupReceivedByProduct merges received lines into per-product buckets,
// summing quantities for repeated (product, size) pairs. Pure; order follows
// first appearance.
func GroupReceivedByProduct(lines []models.ReceivedLine) []ProductGroup {
	index := make(map[int]int)
	var groups []ProductGroup
	for _, line := range lines {
		gi, ok := index[line.ProductId]
		if !ok {
			gi = len(groups)
			index[line.ProductId] = gi
			groups = append(groups, ProductGroup{ProductId: line.ProductId, BrandId: line.BrandId})
		}
		g := &groups[gi]
		merged := false
		for si := range g.Sizes {
			if g.Sizes[si].Size == line.Size {
				g.Sizes[si].Qty += line.ReceivedQuantity
				merged = true
				break
			}
		}
		if !merged {
			g.Sizes = append(g.Sizes, SizeQty{Size: line.Size, Qty: line.ReceivedQuantity, Price: line.SellingPrice})
		}
		g.TotalUnits += line.ReceivedQuantity
	}
	return groups
}

// CompleteOrder moves CLOSE → COMPLETED. Completion is idempotent and the
// fan-out runs at most once, guarded by a durable idempotency key; delivery
// itself is detached from the caller's response path.
func CompleteOrder(ctx context.Context, orderId int, receiptDate time.Time, targetStoreId string) (*models.PackageOrder, error) {
	storeId, _ := utils.GetStoreIdFromContext(ctx)

	shouldFanout := false
	order, err := models.TransitionPackageOrder(ctx, orderId, models.PackageOrderStatusCompleted,
		func(tx *gorm.DB, o *models.PackageOrder) error {
			skip, err := BeginIdempotency(tx, storeId, completionFanoutHandler, fmt.Sprint(orderId))
			if err != nil {
				return err
			}
			shouldFanout = !skip
			return nil
		})
	if err != nil {
		return nil, err
	}
	if !shouldFanout {
		return order, nil
	}

	role, _ := utils.GetRoleFromContext(ctx)
	userId, _ := utils.GetUserIdFromContext(ctx)
	token, _ := utils.GetTokenFromContext(ctx)

	// fire and continue: the caller is not blocked on downstream delivery
	go func() {
		logger := config.GetLogger()
		bgCtx := utils.SetStoreIdInContext(context.Background(), storeId)
		db := config.GetDB()

		err := DistributeCompletedOrder(bgCtx, orderId, receiptDate, targetStoreId, role, userId, token)
		if err != nil {
			config.LogError(logger, "workflow", "CompleteOrder", "completion fan-out failed", orderId, err)
			_ = MarkIdempotencyFailed(db, storeId, completionFanoutHandler, fmt.Sprint(orderId), err)
			return
		}
		_ = MarkIdempotencySucceeded(db, storeId, completionFanoutHandler, fmt.Sprint(orderId))
	}()

	return order, nil
}

// DistributeCompletedOrder materializes an order's received stock for its
// recipient: a remote store intake (Branch A) when targetStoreId is set,
// otherwise the local consumer ledger (Branch B).
func DistributeCompletedOrder(ctx context.Context, orderId int, receiptDate time.Time,
	targetStoreId, role string, userId int, token string) error {

	db := config.GetDB()
	storeId, _ := utils.GetStoreIdFromContext(ctx)

	order, err := models.GetPackageOrder(ctx, orderId)
	if err != nil {
		return err
	}
	set := models.ModelSetFor(order)

	lines, err := models.LoadReceivedLines(db.WithContext(ctx), set, storeId, orderId)
	if err != nil {
		return err
	}
	groups := GroupReceivedByProduct(lines)
	if len(groups) == 0 {
		return nil
	}

	productIds := make([]int, 0, len(groups))
	for _, g := range groups {
		productIds = append(productIds, g.ProductId)
	}
	products, err := models.GetProductsByIds(ctx, storeId, productIds)
	if err != nil {
		return err
	}
	brandNames := make(map[int]string)
	for _, g := range groups {
		if _, ok := brandNames[g.BrandId]; ok {
			continue
		}
		brand, err := models.GetBrand(ctx, g.BrandId)
		if err != nil {
			return err
		}
		brandNames[g.BrandId] = brand.Name
	}

	if targetStoreId != "" {
		return distributeToRemoteStore(ctx, groups, products, brandNames, receiptDate, targetStoreId, role, userId, token)
	}
	return distributeToConsumer(ctx, order, groups, products, brandNames, receiptDate)
}

func distributeToRemoteStore(ctx context.Context, groups []ProductGroup,
	products map[int]*models.Product, brandNames map[int]string,
	receiptDate time.Time, targetStoreId, role string, userId int, token string) error {

	entries := make([]shopsync.IntakeEntry, 0, len(groups))
	for _, g := range groups {
		product, ok := products[g.ProductId]
		if !ok {
			continue
		}
		entry := shopsync.IntakeEntry{
			Sku:       product.Sku,
			Name:      product.Name,
			BrandName: brandNames[g.BrandId],
			Image:     product.Image,
			Color:     product.Color,
			Category:  product.Category,
		}
		for _, sq := range g.Sizes {
			entry.Variants = append(entry.Variants, shopsync.IntakeVariant{
				Size:         sq.Size,
				Quantity:     sq.Qty,
				Price:        json.Number(sq.Price.String()),
				PurchaseDate: receiptDate.Format("2006-01-02"),
			})
		}
		entries = append(entries, entry)
	}
	return shopsync.SendStoreIntake(ctx, targetStoreId, role, userId, token, entries)
}

// buildConsumerUnits expands one per-size aggregate into its unit rows:
// exactly one row per received unit, each stamped with the receipt date.
func buildConsumerUnits(storeId string, orderId, consumerProductId, variantId, consumerId int,
	sq SizeQty, acceptedOn time.Time) []models.ConsumerInventory {

	units := make([]models.ConsumerInventory, 0, sq.Qty)
	for i := 0; i < sq.Qty; i++ {
		accepted := acceptedOn
		units = append(units, models.ConsumerInventory{
			StoreId:                  storeId,
			ConsumerProductId:        consumerProductId,
			ConsumerProductVariantId: variantId,
			ConsumerId:               consumerId,
			PackageOrderId:           orderId,
			Option1Value:             sq.Size,
			Price:                    sq.Price,
			AcceptedOn:               &accepted,
		})
	}
	return units
}

func distributeToConsumer(ctx context.Context, order *models.PackageOrder, groups []ProductGroup,
	products map[int]*models.Product, brandNames map[int]string, receiptDate time.Time) error {

	db := config.GetDB()
	storeId := order.StoreId

	consumerIds, err := models.GetOrderConsumerIds(ctx, order.ID)
	if err != nil {
		return err
	}
	primaryConsumerId := 0
	if len(consumerIds) > 0 {
		primaryConsumerId = consumerIds[0]
	}

	tx := db.WithContext(ctx).Begin()
	for _, g := range groups {
		product, ok := products[g.ProductId]
		if !ok {
			continue
		}
		cp, err := models.UpsertConsumerProduct(tx, storeId, product, brandNames[g.BrandId])
		if err != nil {
			tx.Rollback()
			return err
		}
		for _, consumerId := range consumerIds {
			if err := models.LinkConsumerProductUser(tx, cp.ID, consumerId); err != nil {
				tx.Rollback()
				return err
			}
		}
		for _, sq := range g.Sizes {
			cv, err := models.UpsertConsumerVariant(tx, storeId, cp.ID, sq.Size, sq.Qty, sq.Price, receiptDate)
			if err != nil {
				tx.Rollback()
				return err
			}
			units := buildConsumerUnits(storeId, order.ID, cp.ID, cv.ID, primaryConsumerId, sq, receiptDate)
			for i := range units {
				if err := models.CreateConsumerInventory(tx, &units[i]); err != nil {
					tx.Rollback()
					return err
				}
			}
		}
	}
	return tx.Commit().Error
}
