package workflow

import (
	"bitbucket.org/klosetlabs/kloset_backend/models"
)

// PostingLockRequired reports whether events of the given reference type must
// run under the store posting lock. Order, brand-item and inventory events
// mutate rows the reconciliation pass also touches; shop-sync events only call
// the storefront API and flip listing flags, so they can run unserialized.
func PostingLockRequired(referenceType string) bool {
	switch models.OrderReferenceType(referenceType) {
	case models.OrderReferenceTypeOrder,
		models.OrderReferenceTypeBrandItem,
		models.OrderReferenceTypeInventory:
		return true
	case models.OrderReferenceTypeShopSync:
		return false
	}
	// Unknown types get the lock; over-serializing is safe.
	return true
}
