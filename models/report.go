package models

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"bitbucket.org/klosetlabs/kloset_backend/config"
	"github.com/shopspring/decimal"
	"github.com/xuri/excelize/v2"
)

type SoldInventoryRow struct {
	OrderNumber  string          `json:"order_number"`
	Sku          string          `json:"sku"`
	ProductName  string          `json:"product_name"`
	BrandName    string          `json:"brand_name"`
	Option1Value string          `json:"option1_value"`
	AccountType  int             `json:"account_type"`
	Price        decimal.Decimal `json:"price"`
	Payout       decimal.Decimal `json:"payout"`
	SoldOn       *time.Time      `json:"sold_on"`
}

func getSoldInventoryReport(ctx context.Context, storeId string, from, to time.Time) ([]*SoldInventoryRow, error) {

	sql := `
SELECT
    po.order_number,
    products.sku,
    products.name AS product_name,
    brands.name AS brand_name,
    v.option1_value,
    v.account_type,
    v.price,
    v.payout,
    inventory_items.sold_on
FROM
    variants AS v
    JOIN products ON products.id = v.product_id
    LEFT JOIN brands ON brands.id = products.brand_id
    LEFT JOIN inventory_items ON inventory_items.id = v.item_id
    LEFT JOIN package_orders AS po ON po.id = v.order_id
WHERE
    v.store_id = ?
    AND v.status = ?
    AND v.updated_at BETWEEN ? AND ?
ORDER BY
    v.updated_at;
`

	var records []*SoldInventoryRow
	db := config.GetDB()
	if err := db.WithContext(ctx).Raw(sql, storeId, VariantStatusSold, from, to).Scan(&records).Error; err != nil {
		return nil, err
	}

	return records, nil
}

// ExportSoldInventoryXLSX streams the sold-unit report for a store as a
// spreadsheet attachment.
func ExportSoldInventoryXLSX(ctx context.Context, w http.ResponseWriter, storeId string, from, to time.Time) error {

	f := excelize.NewFile()
	_, err := f.NewSheet("Sheet1")
	if err != nil {
		return err
	}
	data, err := getSoldInventoryReport(ctx, storeId, from, to)
	if err != nil {
		return err
	}

	// Add headers
	f.SetCellValue("Sheet1", "A1", "OrderNumber")
	f.SetCellValue("Sheet1", "B1", "Sku")
	f.SetCellValue("Sheet1", "C1", "Product")
	f.SetCellValue("Sheet1", "D1", "Brand")
	f.SetCellValue("Sheet1", "E1", "Size")
	f.SetCellValue("Sheet1", "F1", "AccountType")
	f.SetCellValue("Sheet1", "G1", "Price")
	f.SetCellValue("Sheet1", "H1", "Payout")
	f.SetCellValue("Sheet1", "I1", "SoldOn")

	// Add data
	for i, d := range data {
		row := fmt.Sprint(i + 2)
		f.SetCellValue("Sheet1", "A"+row, d.OrderNumber)
		f.SetCellValue("Sheet1", "B"+row, d.Sku)
		f.SetCellValue("Sheet1", "C"+row, d.ProductName)
		f.SetCellValue("Sheet1", "D"+row, d.BrandName)
		f.SetCellValue("Sheet1", "E"+row, d.Option1Value)
		f.SetCellValue("Sheet1", "F"+row, d.AccountType)
		f.SetCellValue("Sheet1", "G"+row, d.Price.InexactFloat64())
		f.SetCellValue("Sheet1", "H"+row, d.Payout.InexactFloat64())
		if d.SoldOn != nil {
			f.SetCellValue("Sheet1", "I"+row, d.SoldOn.Format("2006-01-02 15:04:05"))
		}
	}

	w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	w.Header().Set("Content-Disposition", "attachment; filename=sold_inventory.xlsx")
	return f.Write(w)
}
