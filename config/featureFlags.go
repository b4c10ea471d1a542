package config

import (
	"os"
	"strings"
)

// VariantRowLocking enables SELECT ... FOR UPDATE on candidate listing variants
// during sale reconciliation, on top of the per-store posting lock. Keep it on
// in production; the flag exists so local SQLite-ish tooling can opt out.
//
// Set via env:
// - VARIANT_ROW_LOCKING=false to disable (default: enabled)
func VariantRowLocking() bool {
	v := strings.ToLower(strings.TrimSpace(os.Getenv("VARIANT_ROW_LOCKING")))
	if v == "" {
		return true
	}
	return v == "1" || v == "true" || v == "yes" || v == "y"
}

// StrictOrderImmutability extends the edit freeze to closed orders:
// COMPLETED orders always reject claim/price edits; with this flag on, CLOSE
// does too, and corrections go through a new order.
//
// Set via env:
// - STRICT_ORDER_IMMUTABLE=true
func StrictOrderImmutability() bool {
	v := strings.ToLower(strings.TrimSpace(os.Getenv("STRICT_ORDER_IMMUTABLE")))
	return v == "1" || v == "true" || v == "yes" || v == "y"
}

// ShopSyncEnabledFor enables the storefront delist/desync calls per scope.
//
// Set via env:
// - SHOP_SYNC_SCOPES="STORE,WEB"
//
// Scope keys are case-insensitive. Empty means sync is disabled everywhere,
// which is what local dev wants.
func ShopSyncEnabledFor(scope string) bool {
	scope = strings.ToUpper(strings.TrimSpace(scope))
	if scope == "" {
		return false
	}
	raw := os.Getenv("SHOP_SYNC_SCOPES")
	if strings.TrimSpace(raw) == "" {
		return false
	}
	for _, part := range strings.Split(raw, ",") {
		if strings.ToUpper(strings.TrimSpace(part)) == scope {
			return true
		}
	}
	return false
}
