package models_test

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"regexp"
	"strings"
	"testing"
	"time"

	"bitbucket.org/klosetlabs/kloset_backend/config"
	"bitbucket.org/klosetlabs/kloset_backend/models"
	"bitbucket.org/klosetlabs/kloset_backend/utils"
	"bitbucket.org/klosetlabs/kloset_backend/workflow"
	"github.com/shopspring/decimal"
)

// Regression: confirming a consumer order must consume the oldest owned
// units first, reprice both pricing tracks, stamp the backing inventory,
// shrink every other open order's claim on the same pool, and record the
// storefront delist event — all in one transaction.
func TestReconciliation_EndToEnd(t *testing.T) {
	if strings.TrimSpace(os.Getenv("INTEGRATION_TESTS")) == "" {
		t.Skip("set INTEGRATION_TESTS=1 to run integration tests (requires docker)")
	}

	ctx := context.Background()

	redisName, redisPort := startRedisContainer(t)
	t.Cleanup(func() { _ = dockerRmForce(redisName) })

	mysqlName, mysqlPort := startMySQLContainer(t)
	t.Cleanup(func() { _ = dockerRmForce(mysqlName) })

	t.Setenv("REDIS_ADDRESS", fmt.Sprintf("127.0.0.1:%s", redisPort))
	t.Setenv("DB_USER", "root")
	t.Setenv("DB_PASSWORD", "testpw")
	t.Setenv("DB_HOST", "127.0.0.1")
	t.Setenv("DB_PORT", mysqlPort)
	t.Setenv("DB_NAME", "kloset_test")

	config.ConnectDatabaseWithRetry()
	config.ConnectRedisWithRetry()
	models.MigrateTable()

	ctx = utils.SetUserIdInContext(ctx, 1)
	ctx = utils.SetUserNameInContext(ctx, "Test")
	ctx = utils.SetRoleInContext(ctx, string(models.UserRoleAdmin))
	ctx = utils.SetIsAdminInContext(ctx, true)

	store, err := models.CreateStore(ctx, models.NewStore{
		Name:  "Kloset Test Store",
		Email: "owner@kloset.test",
	})
	if err != nil {
		t.Fatalf("CreateStore: %v", err)
	}
	ctx = utils.SetStoreIdInContext(ctx, store.ID)

	consumer, err := models.CreateConsumer(ctx, models.NewConsumer{Name: "First Consumer"})
	if err != nil {
		t.Fatalf("CreateConsumer: %v", err)
	}
	brand, err := models.CreateBrand(ctx, models.NewBrand{Name: "Amber"})
	if err != nil {
		t.Fatalf("CreateBrand: %v", err)
	}
	product, err := models.CreateProduct(ctx, models.NewProduct{
		BrandId: brand.ID,
		Sku:     "AMB-001",
		Name:    "Amber Jacket",
	})
	if err != nil {
		t.Fatalf("CreateProduct: %v", err)
	}

	db := config.GetDB()

	// two catalog inventory records; units 1–2 back the first, unit 3 the second
	inv1 := models.InventoryItem{StoreId: store.ID, ProductId: product.ID, Scope: models.InventoryScopeStore, ListingId: "listing-1"}
	inv2 := models.InventoryItem{StoreId: store.ID, ProductId: product.ID, Scope: models.InventoryScopeStore, ListingId: "listing-2"}
	if err := db.WithContext(ctx).Create(&inv1).Error; err != nil {
		t.Fatalf("seed inventory 1: %v", err)
	}
	if err := db.WithContext(ctx).Create(&inv2).Error; err != nil {
		t.Fatalf("seed inventory 2: %v", err)
	}

	fee := decimal.NewFromInt(20)
	invFor := map[int]int{1: inv1.ID, 2: inv1.ID, 3: inv2.ID}
	for unit := 1; unit <= 3; unit++ {
		owned := models.Variant{
			StoreId: store.ID, ProductId: product.ID, ItemId: invFor[unit],
			UnitId: unit, Option1Value: "M",
			Status: models.VariantStatusActive, Quantity: 1,
			AccountType: models.AccountTypeOwned,
			Cost:        decimal.NewFromInt(80),
		}
		if err := db.WithContext(ctx).Create(&owned).Error; err != nil {
			t.Fatalf("seed owned variant %d: %v", unit, err)
		}
		consign := models.Variant{
			StoreId: store.ID, ProductId: product.ID, ItemId: invFor[unit],
			UnitId: unit, Option1Value: "M",
			Status: models.VariantStatusActive, Quantity: 1,
			AccountType: models.AccountTypeConsignment,
			Fee:         fee,
		}
		if err := db.WithContext(ctx).Create(&consign).Error; err != nil {
			t.Fatalf("seed consignment variant %d: %v", unit, err)
		}
	}

	price := decimal.NewFromInt(150)
	seedOrder := func(selected int) (*models.PackageOrder, int) {
		order, err := models.CreatePackageOrder(ctx, models.NewPackageOrder{
			ConsumerIds: []int{consumer.ID},
			BrandIds:    []int{brand.ID},
		})
		if err != nil {
			t.Fatalf("CreatePackageOrder: %v", err)
		}
		set := models.ModelSetFor(order)

		var pb models.PackageBrand
		if err := db.WithContext(ctx).Table(set.BrandTable()).
			Where("package_order_id = ?", order.ID).Take(&pb).Error; err != nil {
			t.Fatalf("fetch package brand: %v", err)
		}
		if err := db.WithContext(ctx).Table(set.BrandTable()).
			Where("id = ?", pb.ID).Update("selected", true).Error; err != nil {
			t.Fatalf("select brand: %v", err)
		}

		item := models.PackageBrandItem{
			StoreId: store.ID, PackageBrandId: pb.ID, ProductId: product.ID,
			Price: &price, ConsumerDemand: selected, IsItemReceived: utils.NewTrue(),
		}
		if err := db.WithContext(ctx).Table(set.ItemTable()).Create(&item).Error; err != nil {
			t.Fatalf("seed item: %v", err)
		}
		qty := models.PackageBrandItemQty{
			StoreId: store.ID, PackageBrandItemId: item.ID, Size: "M",
			MaxCapacity: 3, SelectedCapacity: selected,
		}
		if err := db.WithContext(ctx).Table(set.QtyTable()).Create(&qty).Error; err != nil {
			t.Fatalf("seed qty row: %v", err)
		}
		return order, qty.ID
	}

	order1, qty1Id := seedOrder(2)
	order2, qty2Id := seedOrder(3)

	if _, err := models.InitiateOrder(ctx, order1.ID); err != nil {
		t.Fatalf("InitiateOrder: %v", err)
	}
	if _, err := models.MoveOrderToReview(ctx, order1.ID); err != nil {
		t.Fatalf("MoveOrderToReview: %v", err)
	}
	confirmed, err := workflow.ConfirmOrder(ctx, order1.ID, time.Now().UTC())
	if err != nil {
		t.Fatalf("ConfirmOrder: %v", err)
	}
	if confirmed.Status != models.PackageOrderStatusConfirm {
		t.Fatalf("expected status CONFIRM; got %s", confirmed.Status)
	}

	// FIFO: the two oldest units sold on both tracks, the third untouched
	var owned []models.Variant
	if err := db.WithContext(ctx).
		Where("product_id = ? AND account_type = ?", product.ID, models.AccountTypeOwned).
		Order("unit_id ASC").Find(&owned).Error; err != nil {
		t.Fatalf("fetch owned variants: %v", err)
	}
	if len(owned) != 3 {
		t.Fatalf("expected 3 owned rows; got %d", len(owned))
	}
	for _, v := range owned[:2] {
		if v.Status != models.VariantStatusSold || v.Quantity != 0 {
			t.Fatalf("unit %d owned row not sold: status=%d qty=%d", v.UnitId, v.Status, v.Quantity)
		}
		if v.Price.Cmp(price) != 0 || v.Payout.Cmp(price) != 0 {
			t.Fatalf("unit %d owned pricing: price=%s payout=%s", v.UnitId, v.Price, v.Payout)
		}
		if v.OrderId == nil || *v.OrderId != order1.ID {
			t.Fatalf("unit %d owned row not linked to order", v.UnitId)
		}
	}
	if owned[2].Status != models.VariantStatusActive {
		t.Fatalf("unit 3 must stay active; got status %d", owned[2].Status)
	}

	// consignment payout = selling − selling×fee/100 = 150 − 30 = 120
	wantPayout := decimal.NewFromInt(120)
	var consign []models.Variant
	if err := db.WithContext(ctx).
		Where("product_id = ? AND account_type = ? AND status = ?",
			product.ID, models.AccountTypeConsignment, models.VariantStatusSold).
		Order("unit_id ASC").Find(&consign).Error; err != nil {
		t.Fatalf("fetch consignment variants: %v", err)
	}
	if len(consign) != 2 {
		t.Fatalf("expected 2 sold consignment rows; got %d", len(consign))
	}
	for _, v := range consign {
		if v.Payout.Cmp(wantPayout) != 0 {
			t.Fatalf("unit %d consignment payout=%s, want %s", v.UnitId, v.Payout, wantPayout)
		}
	}

	// inventory stamping: only the record whose units were consumed
	var inv1Row, inv2Row models.InventoryItem
	if err := db.WithContext(ctx).First(&inv1Row, inv1.ID).Error; err != nil {
		t.Fatalf("reload inventory 1: %v", err)
	}
	if err := db.WithContext(ctx).First(&inv2Row, inv2.ID).Error; err != nil {
		t.Fatalf("reload inventory 2: %v", err)
	}
	if inv1Row.SoldOn == nil || inv1Row.ShopifyStatus != models.ShopifyStatusSold {
		t.Fatalf("inventory 1 must be stamped sold")
	}
	if inv2Row.SoldOn != nil {
		t.Fatalf("inventory 2 must stay unsold")
	}

	if confirmed.TotalAmount.Cmp(decimal.NewFromInt(300)) != 0 {
		t.Fatalf("expected total 300; got %s", confirmed.TotalAmount)
	}

	// sibling clamp: 2 sold out of 3, so order2's row shrinks to the 1 left
	set2 := models.ModelSetFor(order2)
	var qty2 models.PackageBrandItemQty
	if err := db.WithContext(ctx).Table(set2.QtyTable()).First(&qty2, qty2Id).Error; err != nil {
		t.Fatalf("reload sibling qty: %v", err)
	}
	if qty2.MaxCapacity != 1 || qty2.SelectedCapacity != 1 {
		t.Fatalf("sibling clamp: max=%d selected=%d, want 1/1", qty2.MaxCapacity, qty2.SelectedCapacity)
	}

	// one delist event recorded for the consumed product
	var delists int64
	if err := db.WithContext(ctx).Model(&models.OrderEventRecord{}).
		Where("store_id = ? AND event_name = ?", store.ID, models.EventShopSyncDelist).
		Count(&delists).Error; err != nil {
		t.Fatalf("count delist events: %v", err)
	}
	if delists != 1 {
		t.Fatalf("expected 1 delist event; got %d", delists)
	}

	// drift detector agrees the books are clean
	issues, err := workflow.RunStockConsistencyChecks(ctx, db, config.GetLogger(), store.ID)
	if err != nil {
		t.Fatalf("RunStockConsistencyChecks: %v", err)
	}
	if len(issues) != 0 {
		t.Fatalf("unexpected consistency issues: %+v", issues)
	}

	// completion: received units land in the consumer ledger as one aggregate
	// row per size plus one unit row per received piece, all carrying the
	// receipt date
	set1 := models.ModelSetFor(order1)
	var qty1 models.PackageBrandItemQty
	if err := db.WithContext(ctx).Table(set1.QtyTable()).First(&qty1, qty1Id).Error; err != nil {
		t.Fatalf("reload qty row: %v", err)
	}
	if err := models.RecordReceivedQuantities(ctx, models.RecordReceivedInput{
		OrderId:  order1.ID,
		ItemId:   qty1.PackageBrandItemId,
		Received: []models.ReceivedInput{{QtyId: qty1Id, ReceivedQuantity: 2}},
	}); err != nil {
		t.Fatalf("RecordReceivedQuantities: %v", err)
	}
	if _, err := workflow.StartOrderProgress(ctx, order1.ID, time.Now().UTC()); err != nil {
		t.Fatalf("StartOrderProgress: %v", err)
	}
	if _, err := models.UpdateShipmentStatus(ctx, order1.ID, true); err != nil {
		t.Fatalf("UpdateShipmentStatus: %v", err)
	}
	if _, err := models.CloseOrder(ctx, order1.ID); err != nil {
		t.Fatalf("CloseOrder: %v", err)
	}

	receiptDate := time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC)
	completed, err := workflow.CompleteOrder(ctx, order1.ID, receiptDate, "")
	if err != nil {
		t.Fatalf("CompleteOrder: %v", err)
	}
	if completed.Status != models.PackageOrderStatusCompleted {
		t.Fatalf("expected status COMPLETED; got %s", completed.Status)
	}

	// delivery runs detached from the completion call; wait for it to land
	var units []models.ConsumerInventory
	deadline := time.Now().Add(15 * time.Second)
	for time.Now().Before(deadline) {
		if err := db.WithContext(ctx).
			Where("package_order_id = ?", order1.ID).Find(&units).Error; err != nil {
			t.Fatalf("fetch consumer units: %v", err)
		}
		if len(units) >= 2 {
			break
		}
		time.Sleep(250 * time.Millisecond)
	}
	if len(units) != 2 {
		t.Fatalf("expected 2 consumer unit rows; got %d", len(units))
	}
	for _, u := range units {
		if u.Option1Value != "M" || u.ConsumerId != consumer.ID {
			t.Fatalf("unexpected unit row: %+v", u)
		}
		if u.AcceptedOn == nil || u.AcceptedOn.UTC().Format("2006-01-02") != "2026-02-01" {
			t.Fatalf("unit row must carry the receipt date, got %v", u.AcceptedOn)
		}
	}

	var variants []models.ConsumerProductVariant
	if err := db.WithContext(ctx).
		Where("store_id = ?", store.ID).Find(&variants).Error; err != nil {
		t.Fatalf("fetch consumer variants: %v", err)
	}
	if len(variants) != 1 {
		t.Fatalf("expected a single aggregate row per size; got %d", len(variants))
	}
	if variants[0].Option1Value != "M" || variants[0].Quantity != 2 {
		t.Fatalf("unexpected aggregate row: %+v", variants[0])
	}
	if variants[0].PurchaseDate == nil || variants[0].PurchaseDate.UTC().Format("2006-01-02") != "2026-02-01" {
		t.Fatalf("aggregate row must carry the receipt date, got %v", variants[0].PurchaseDate)
	}

	// re-completing is a no-op: no second fan-out, no duplicate unit rows
	if _, err := workflow.CompleteOrder(ctx, order1.ID, receiptDate, ""); err != nil {
		t.Fatalf("idempotent CompleteOrder: %v", err)
	}
	time.Sleep(500 * time.Millisecond)
	var unitCount int64
	if err := db.WithContext(ctx).Model(&models.ConsumerInventory{}).
		Where("package_order_id = ?", order1.ID).Count(&unitCount).Error; err != nil {
		t.Fatalf("recount consumer units: %v", err)
	}
	if unitCount != 2 {
		t.Fatalf("re-completion must not duplicate unit rows; got %d", unitCount)
	}
}

func startRedisContainer(t *testing.T) (containerName, hostPort string) {
	t.Helper()
	name := fmt.Sprintf("kloset-test-redis-%d", time.Now().UnixNano())
	out, err := dockerRun(
		"run", "-d", "--name", name,
		"-p", "127.0.0.1:0:6379",
		"redis:7-alpine",
	)
	if err != nil {
		t.Fatalf("start redis container: %v\n%s", err, out)
	}
	port, err := dockerHostPort(name, "6379/tcp")
	if err != nil {
		t.Fatalf("redis docker port: %v", err)
	}
	deadline := time.Now().Add(60 * time.Second)
	for time.Now().Before(deadline) {
		_, err := dockerRun("exec", name, "redis-cli", "ping")
		if err == nil {
			return name, port
		}
		time.Sleep(250 * time.Millisecond)
	}
	t.Fatalf("redis did not become ready")
	return "", ""
}

func startMySQLContainer(t *testing.T) (containerName, hostPort string) {
	t.Helper()
	name := fmt.Sprintf("kloset-test-mysql-%d", time.Now().UnixNano())
	out, err := dockerRun(
		"run", "-d", "--name", name,
		"-e", "MYSQL_ROOT_PASSWORD=testpw",
		"-e", "MYSQL_DATABASE=kloset_test",
		"-p", "127.0.0.1:0:3306",
		"mysql:8.0",
		"--default-authentication-plugin=mysql_native_password",
	)
	if err != nil {
		t.Fatalf("start mysql container: %v\n%s", err, out)
	}
	port, err := dockerHostPort(name, "3306/tcp")
	if err != nil {
		t.Fatalf("mysql docker port: %v", err)
	}
	deadline := time.Now().Add(120 * time.Second)
	for time.Now().Before(deadline) {
		_, err := dockerRun("exec", name, "mysqladmin", "ping", "-h", "127.0.0.1", "-ptestpw", "--silent")
		if err == nil {
			return name, port
		}
		time.Sleep(500 * time.Millisecond)
	}
	t.Fatalf("mysql did not become ready")
	return "", ""
}

func dockerHostPort(container, portProto string) (string, error) {
	out, err := dockerRun("port", container, portProto)
	if err != nil {
		return "", fmt.Errorf("docker port: %w: %s", err, out)
	}
	re := regexp.MustCompile(`:(\d+)`)
	m := re.FindStringSubmatch(out)
	if len(m) != 2 {
		return "", fmt.Errorf("unexpected docker port output: %q", out)
	}
	return m[1], nil
}

func dockerRmForce(container string) error {
	if strings.TrimSpace(container) == "" {
		return nil
	}
	_, err := dockerRun("rm", "-f", container)
	return err
}

func dockerRun(args ...string) (string, error) {
	cmd := exec.Command("docker", args...)
	b, err := cmd.CombinedOutput()
	return string(b), err
}
