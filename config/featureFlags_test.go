package config

import "testing"

func TestVariantRowLocking_DefaultsOn(t *testing.T) {
	t.Setenv("VARIANT_ROW_LOCKING", "")
	if !VariantRowLocking() {
		t.Fatal("row locking must default to enabled")
	}
	t.Setenv("VARIANT_ROW_LOCKING", "false")
	if VariantRowLocking() {
		t.Fatal("VARIANT_ROW_LOCKING=false must disable row locking")
	}
}

func TestStrictOrderImmutability_DefaultsOff(t *testing.T) {
	t.Setenv("STRICT_ORDER_IMMUTABLE", "")
	if StrictOrderImmutability() {
		t.Fatal("strict immutability must default to off")
	}
	t.Setenv("STRICT_ORDER_IMMUTABLE", "yes")
	if !StrictOrderImmutability() {
		t.Fatal("STRICT_ORDER_IMMUTABLE=yes must enable strict immutability")
	}
}

func TestShopSyncEnabledFor(t *testing.T) {
	t.Setenv("SHOP_SYNC_SCOPES", "")
	if ShopSyncEnabledFor("STORE") {
		t.Fatal("empty scope list must disable sync everywhere")
	}

	t.Setenv("SHOP_SYNC_SCOPES", "store, Web")
	if !ShopSyncEnabledFor("STORE") || !ShopSyncEnabledFor("web") {
		t.Fatal("listed scopes must match case-insensitively")
	}
	if ShopSyncEnabledFor("OUTLET") {
		t.Fatal("unlisted scopes must stay disabled")
	}
	if ShopSyncEnabledFor("") {
		t.Fatal("an empty scope must never be enabled")
	}
}
