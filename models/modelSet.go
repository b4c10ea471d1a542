package models

// PackageModelSet names the tables backing an order's brand/item/qty/capacity
// rows. Draft/open packages and ACCESS catalog packages share row shapes but
// live in separate tables; the set is chosen once at operation entry from the
// order itself and passed down, never re-branched mid-operation.
type PackageModelSet interface {
	BrandTable() string
	ItemTable() string
	QtyTable() string
	CapacityTable() string
}

type DraftModelSet struct{}

func (DraftModelSet) BrandTable() string    { return "package_brands" }
func (DraftModelSet) ItemTable() string     { return "package_brand_items" }
func (DraftModelSet) QtyTable() string      { return "package_brand_item_qties" }
func (DraftModelSet) CapacityTable() string { return "package_brand_item_capacities" }

type AccessModelSet struct{}

func (AccessModelSet) BrandTable() string    { return "access_package_brands" }
func (AccessModelSet) ItemTable() string     { return "access_package_brand_items" }
func (AccessModelSet) QtyTable() string      { return "access_package_brand_item_qties" }
func (AccessModelSet) CapacityTable() string { return "access_package_brand_item_capacities" }

// ModelSetFor selects the table set from the order's status.
func ModelSetFor(order *PackageOrder) PackageModelSet {
	if order != nil && order.Status == PackageOrderStatusAccess {
		return AccessModelSet{}
	}
	return DraftModelSet{}
}

// Access-table mirrors for migration. Same shapes, different tables.

type AccessPackageBrand PackageBrand

func (AccessPackageBrand) TableName() string { return "access_package_brands" }

type AccessPackageBrandItem PackageBrandItem

func (AccessPackageBrandItem) TableName() string { return "access_package_brand_items" }

type AccessPackageBrandItemQty PackageBrandItemQty

func (AccessPackageBrandItemQty) TableName() string { return "access_package_brand_item_qties" }

type AccessPackageBrandItemCapacity PackageBrandItemCapacity

func (AccessPackageBrandItemCapacity) TableName() string {
	return "access_package_brand_item_capacities"
}
