package service

import "github.com/shopspring/decimal"

var (
	ShippingFlat = decimal.NewFromInt(10)
	TaxRate      = decimal.RequireFromString("0.10")
)

// Quote is the amount charged for an order: items, flat shipping and tax.
type Quote struct {
	ItemTotal decimal.Decimal
	Shipping  decimal.Decimal
	Tax       decimal.Decimal
	Total     decimal.Decimal
}

func QuoteFor(itemTotal decimal.Decimal) Quote {
	itemTotal = itemTotal.Round(2)
	tax := itemTotal.Mul(TaxRate).Round(2)
	return Quote{
		ItemTotal: itemTotal,
		Shipping:  ShippingFlat,
		Tax:       tax,
		Total:     itemTotal.Add(ShippingFlat).Add(tax),
	}
}

type PricingPolicy string

const (
	// PricingClient trusts the unit price sent by the client.
	PricingClient PricingPolicy = "client"
	// PricingCatalog re-prices every line from the product row.
	PricingCatalog PricingPolicy = "catalog"
)

func ParsePricingPolicy(s string) (PricingPolicy, bool) {
	switch PricingPolicy(s) {
	case "", PricingClient:
		return PricingClient, true
	case PricingCatalog:
		return PricingCatalog, true
	}
	return "", false
}
