package models

import (
	"log"

	"bitbucket.org/klosetlabs/kloset_backend/config"
)

func MigrateTable() {
	db := config.GetDB()

	err := db.AutoMigrate(
		&Store{}, &User{}, &Consumer{}, &OrderConsumer{},
		&Brand{}, &Product{}, &Variant{}, &InventoryItem{},
		&PackageOrder{},
		&PackageBrand{}, &PackageBrandItem{}, &PackageBrandItemQty{}, &PackageBrandItemCapacity{},
		&AccessPackageBrand{}, &AccessPackageBrandItem{}, &AccessPackageBrandItemQty{}, &AccessPackageBrandItemCapacity{},
		&ConsumerProduct{}, &ConsumerProductUser{}, &ConsumerProductVariant{}, &ConsumerInventory{},
		&OrderHistory{},
		&OrderEventRecord{},
		&IdempotencyKey{},
	)
	if err != nil {
		log.Fatal(err)
	}
}
