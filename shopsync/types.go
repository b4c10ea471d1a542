package shopsync

import "encoding/json"

// IntakeVariant is one (size, quantity) line of a remote intake payload.
type IntakeVariant struct {
	Size         string          `json:"size"`
	Quantity     int             `json:"quantity"`
	Price        json.Number     `json:"price"`
	PurchaseDate string          `json:"purchase_date"`
}

// IntakeEntry is one distinct-SKU payload posted to the remote
// store-inventory-intake endpoint.
type IntakeEntry struct {
	Sku          string          `json:"sku"`
	Name         string          `json:"name"`
	BrandName    string          `json:"brand_name"`
	Image        string          `json:"image"`
	Color        string          `json:"color"`
	Category     string          `json:"category"`
	Variants     []IntakeVariant `json:"variants"`
}

// PubSubPushEnvelope is the Google Pub/Sub push delivery wrapper.
type PubSubPushEnvelope struct {
	Message struct {
		Data      []byte `json:"data"`
		MessageId string `json:"messageId"`
	} `json:"message"`
	Subscription string `json:"subscription"`
}
