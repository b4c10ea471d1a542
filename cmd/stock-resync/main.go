// stock-resync scans a store for stock-state drift (half-sold unit pairs,
// unstamped inventory rows, demand rows exceeding capacity) and, with -fix,
// re-clamps the out-of-bounds demand rows.
//
// Usage:
//   go run ./cmd/stock-resync -store <store-id> [-fix]
package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"bitbucket.org/klosetlabs/kloset_backend/config"
	"bitbucket.org/klosetlabs/kloset_backend/models"
	"bitbucket.org/klosetlabs/kloset_backend/utils"
	"bitbucket.org/klosetlabs/kloset_backend/workflow"
	"gorm.io/gorm"
)

func main() {
	storeId := flag.String("store", "", "store id to scan (required)")
	fix := flag.Bool("fix", false, "re-clamp demand rows that exceed capacity")
	flag.Parse()

	if *storeId == "" {
		fmt.Fprintln(os.Stderr, "-store is required")
		os.Exit(2)
	}

	config.ConnectDatabaseWithRetry()
	db := config.GetDB()
	if db == nil {
		fmt.Fprintln(os.Stderr, "database not initialized (config.GetDB returned nil). Set DB_* env vars.")
		os.Exit(1)
	}
	logger := config.GetLogger()

	ctx := utils.SetStoreIdInContext(context.Background(), *storeId)
	ctx = utils.SetUserIdInContext(ctx, 0)
	ctx = utils.SetUserNameInContext(ctx, "StockResync")

	issues, err := workflow.RunStockConsistencyChecks(ctx, db, logger, *storeId)
	if err != nil {
		fmt.Fprintf(os.Stderr, "consistency checks failed: %v\n", err)
		os.Exit(1)
	}
	for _, issue := range issues {
		fmt.Printf("%s\t%s\t%d\t%s\n", issue.Check, issue.Entity, issue.ID, issue.Detail)
	}
	if len(issues) == 0 {
		fmt.Println("no issues found")
		return
	}

	if !*fix {
		fmt.Printf("%d issue(s); rerun with -fix to re-clamp capacity bounds\n", len(issues))
		return
	}

	fixed := 0
	err = db.Transaction(func(tx *gorm.DB) error {
		if err := workflow.AcquireStorePostingLock(tx, *storeId); err != nil {
			return err
		}
		defer workflow.ReleaseStorePostingLock(tx, *storeId)

		for _, set := range []models.PackageModelSet{models.DraftModelSet{}, models.AccessModelSet{}} {
			for _, issue := range issues {
				if issue.Check != "qty_capacity_bounds" || issue.Entity != set.QtyTable() {
					continue
				}
				var row struct {
					ID                 int
					PackageBrandItemId int
					MaxCapacity        int
					SelectedCapacity   int
				}
				if err := tx.Table(set.QtyTable()).
					Select("id, package_brand_item_id, max_capacity, selected_capacity").
					Where("id = ? AND store_id = ?", issue.ID, *storeId).
					Take(&row).Error; err != nil {
					return err
				}
				selected := row.SelectedCapacity
				if selected > row.MaxCapacity {
					selected = row.MaxCapacity
				}
				if err := tx.Table(set.QtyTable()).
					Where("id = ?", row.ID).
					Update("selected_capacity", selected).Error; err != nil {
					return err
				}
				// Item demand is the sum across its size rows.
				if err := tx.Table(set.ItemTable()).
					Where("id = ?", row.PackageBrandItemId).
					Update("consumer_demand", tx.Table(set.QtyTable()).
						Select("COALESCE(SUM(selected_capacity), 0)").
						Where("package_brand_item_id = ?", row.PackageBrandItemId)).Error; err != nil {
					return err
				}
				fixed++
			}
		}
		return nil
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "fix pass failed: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("re-clamped %d demand row(s)\n", fixed)
}
