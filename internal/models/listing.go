package models

import "github.com/shopspring/decimal"

// Listing is the dashboard view of the inventory: every product, newest
// first, with aggregate totals.
type Listing struct {
	Products   []Product       `json:"products"`
	TotalStock int             `json:"totalStock"`
	TotalValue decimal.Decimal `json:"totalValue"`
}

// NewListing builds a Listing from products already in display order.
func NewListing(products []Product) *Listing {
	listing := &Listing{
		Products:   products,
		TotalValue: decimal.Zero,
	}
	if listing.Products == nil {
		listing.Products = []Product{}
	}
	for _, p := range products {
		listing.TotalStock += p.Stock
		listing.TotalValue = listing.TotalValue.Add(p.InventoryValue())
	}
	return listing
}
