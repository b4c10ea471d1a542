package shopsync

import (
	"context"
	"encoding/json"
	"strings"

	"bitbucket.org/klosetlabs/kloset_backend/config"
	"bitbucket.org/klosetlabs/kloset_backend/models"
)

// ProcessEvent routes one storefront-sync event. Redelivery is safe: every
// remote operation treats "already gone" as success.
func ProcessEvent(ctx context.Context, msg config.PubSubMessage) error {
	if !strings.HasPrefix(msg.Action, "shopsync.") {
		return nil
	}
	var payload models.ShopSyncPayload
	if err := json.Unmarshal(msg.NewObj, &payload); err != nil {
		return err
	}
	if payload.StoreId == "" {
		payload.StoreId = msg.StoreId
	}

	switch msg.Action {
	case models.EventShopSyncDelist:
		if !config.ShopSyncEnabledFor(payload.Scope) {
			logScopeDisabled(msg.Action, payload.Scope)
			return nil
		}
		return processDelist(ctx, payload)
	case models.EventShopSyncDesyncWeb:
		if !config.ShopSyncEnabledFor(string(models.InventoryScopeWeb)) {
			logScopeDisabled(msg.Action, string(models.InventoryScopeWeb))
			return nil
		}
		return processWebDesync(ctx, payload)
	default:
		return nil
	}
}

// sync being off for a scope is a configuration choice, not an error; the
// event is acked and dropped
func logScopeDisabled(action, scope string) {
	config.GetLogger().
		WithField("action", action).
		WithField("scope", scope).
		Debug("shop sync disabled for scope, skipping")
}

// processDelist deletes the sold listings for one catalog product. When every
// listing is confirmed gone it also desyncs the product's web-scope mirrors,
// best-effort.
func processDelist(ctx context.Context, payload models.ShopSyncPayload) error {
	logger := config.GetLogger()
	client, err := getShopClient()
	if err != nil {
		return err
	}

	allGone := true
	for _, listingId := range payload.ListingIds {
		gone, err := client.DeleteListing(ctx, listingId)
		if err != nil {
			config.LogError(logger, "shopsync", "processDelist", "delete listing failed", listingId, err)
			allGone = false
			continue
		}
		if !gone {
			allGone = false
		}
	}
	if !allGone {
		return nil
	}
	if !config.ShopSyncEnabledFor(string(models.InventoryScopeWeb)) {
		logScopeDisabled(models.EventShopSyncDesyncWeb, string(models.InventoryScopeWeb))
		return nil
	}
	return processWebDesync(ctx, payload)
}

// processWebDesync removes the web-scope mirrors of a product's listings.
// Failures are logged, never raised: storefront listings are not the source
// of truth for stock.
func processWebDesync(ctx context.Context, payload models.ShopSyncPayload) error {
	logger := config.GetLogger()
	client, err := getShopClient()
	if err != nil {
		return err
	}
	db := config.GetDB().WithContext(ctx)

	siblings, err := models.GetWebScopeSiblings(db, payload.StoreId, payload.ProductId)
	if err != nil {
		return err
	}
	for _, item := range siblings {
		if item.ListingId == "" {
			continue
		}
		if err := client.DesyncWebListing(ctx, item.ListingId); err != nil {
			config.LogError(logger, "shopsync", "processWebDesync", "web desync failed", item.ListingId, err)
			continue
		}
		if err := db.Model(&models.InventoryItem{}).
			Where("id = ?", item.ID).
			Update("shopify_status", models.ShopifyStatusUnlisted).Error; err != nil {
			config.LogError(logger, "shopsync", "processWebDesync", "status update failed", item.ID, err)
		}
	}
	return nil
}
