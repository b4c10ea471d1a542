package shopsync

import (
	"context"
	"encoding/json"
	"testing"

	"bitbucket.org/klosetlabs/kloset_backend/config"
	"bitbucket.org/klosetlabs/kloset_backend/models"
)

func delistMessage(t *testing.T, scope string) config.PubSubMessage {
	t.Helper()
	body, err := json.Marshal(models.ShopSyncPayload{
		StoreId:    "store-1",
		ProductId:  7,
		ListingIds: []string{"listing-1"},
		Scope:      scope,
	})
	if err != nil {
		t.Fatalf("marshal payload: %v", err)
	}
	return config.PubSubMessage{
		StoreId: "store-1",
		Action:  models.EventShopSyncDelist,
		NewObj:  body,
	}
}

func resetSharedClient() {
	sharedClientMu.Lock()
	if sharedClient != nil {
		sharedClient.Close()
		sharedClient = nil
	}
	sharedClientMu.Unlock()
}

func TestProcessEvent_DisabledScopeDropsEvent(t *testing.T) {
	resetSharedClient()
	t.Setenv("SHOP_SYNC_SCOPES", "")
	// no base URL either: a disabled scope must short-circuit before the
	// storefront client is ever needed
	t.Setenv("SHOPFRONT_API_BASE_URL", "")

	msg := delistMessage(t, string(models.InventoryScopeStore))
	if err := ProcessEvent(context.Background(), msg); err != nil {
		t.Fatalf("disabled scope must ack and drop the event, got %v", err)
	}
}

func TestProcessEvent_EnabledScopeNeedsClient(t *testing.T) {
	resetSharedClient()
	t.Setenv("SHOP_SYNC_SCOPES", "store")
	t.Setenv("SHOPFRONT_API_BASE_URL", "")

	msg := delistMessage(t, string(models.InventoryScopeStore))
	if err := ProcessEvent(context.Background(), msg); err == nil {
		t.Fatal("expected missing base URL error once the scope is enabled")
	}
}

func TestProcessEvent_ScopeMatchIsCaseInsensitive(t *testing.T) {
	resetSharedClient()
	t.Setenv("SHOP_SYNC_SCOPES", "web, Store")
	t.Setenv("SHOPFRONT_API_BASE_URL", "")

	msg := delistMessage(t, "store")
	if err := ProcessEvent(context.Background(), msg); err == nil {
		t.Fatal("mixed-case scope list must still enable the scope")
	}
}

func TestProcessEvent_IgnoresForeignActions(t *testing.T) {
	msg := config.PubSubMessage{Action: "order.created"}
	if err := ProcessEvent(context.Background(), msg); err != nil {
		t.Fatalf("non shop-sync actions must be skipped, got %v", err)
	}
}
