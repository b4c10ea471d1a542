package models

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// ReceivedLine is one (item, size) line with goods actually received,
// the source material for completion fan-out.
type ReceivedLine struct {
	QtyId            int
	ItemId           int
	BrandId          int
	ProductId        int
	Size             string
	ReceivedQuantity int
	SellingPrice     decimal.Decimal
}

// LoadReceivedLines returns every received (item, size) line of an order
// with receivedQuantity > 0, in deterministic brand/item/qty order.
func LoadReceivedLines(tx *gorm.DB, set PackageModelSet, storeId string, orderId int) ([]ReceivedLine, error) {
	var rows []ReceivedLine
	err := tx.Table(set.QtyTable()+" AS q").
		Select(`q.id AS qty_id, i.id AS item_id, b.brand_id AS brand_id,
			i.product_id AS product_id, q.size AS size,
			q.received_quantity AS received_quantity, i.price AS selling_price`).
		Joins(fmt.Sprintf("JOIN %s AS i ON i.id = q.package_brand_item_id", set.ItemTable())).
		Joins(fmt.Sprintf("JOIN %s AS b ON b.id = i.package_brand_id", set.BrandTable())).
		Where("b.store_id = ?", storeId).
		Where("b.package_order_id = ?", orderId).
		Where("b.selected = ?", true).
		Where("i.is_item_received = ?", true).
		Where("q.received_quantity > 0").
		Order("b.id, i.id, q.id").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	for i := range rows {
		rows[i].Size = strings.TrimSpace(rows[i].Size)
	}
	return rows, nil
}
