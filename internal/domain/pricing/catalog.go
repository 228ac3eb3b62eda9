// Package pricing holds the immutable product price table.
package pricing

import (
	"fmt"
	"sort"

	"github.com/shopspring/decimal"

	"careera-payments/internal/domain"
	"careera-payments/internal/domain/model"
)

// Entry is one configured price.
type Entry struct {
	Product  model.ProductType
	Currency model.Currency
	Cycle    model.BillingCycle
	Amount   decimal.Decimal
}

type key struct {
	product  model.ProductType
	currency model.Currency
	cycle    model.BillingCycle
}

// Catalog is built once at startup and never mutated afterwards.
// It is safe for concurrent use.
type Catalog struct {
	prices map[key]decimal.Decimal
	// currencies priced off another currency's table
	aliases map[model.Currency]model.Currency
}

// New builds a catalog from entries. Duplicate triples are rejected.
func New(entries []Entry, aliases map[model.Currency]model.Currency) (*Catalog, error) {
	c := &Catalog{
		prices:  make(map[key]decimal.Decimal, len(entries)),
		aliases: make(map[model.Currency]model.Currency, len(aliases)),
	}
	for _, e := range entries {
		if !e.Product.IsValid() || !e.Currency.IsValid() || !e.Cycle.IsValid() || e.Amount.IsNegative() {
			return nil, fmt.Errorf("pricing entry %v/%s/%v: %w", e.Product, e.Currency, e.Cycle, domain.ErrInvalidArgument)
		}
		k := key{e.Product, e.Currency, e.Cycle}
		if _, dup := c.prices[k]; dup {
			return nil, fmt.Errorf("pricing entry %v/%s/%v: %w", e.Product, e.Currency, e.Cycle, domain.ErrAlreadyExists)
		}
		c.prices[k] = e.Amount
	}
	for from, to := range aliases {
		c.aliases[from] = to
	}
	return c, nil
}

func (c *Catalog) table(currency model.Currency) model.Currency {
	if to, ok := c.aliases[currency]; ok {
		return to
	}
	return currency
}

// GetPrice looks up the exact triple. There is no fallback price.
func (c *Catalog) GetPrice(product model.ProductType, currency model.Currency, cycle model.BillingCycle) (decimal.Decimal, error) {
	amount, ok := c.prices[key{product, c.table(currency), cycle}]
	if !ok {
		return decimal.Zero, fmt.Errorf("%v/%s/%v: %w", product, currency, cycle, domain.ErrPriceNotConfigured)
	}
	return amount, nil
}

// GetYearlyDiscountPercentage compares twelve monthly payments against the
// yearly price, rounded to a whole percent. ok is false when either tier is missing.
func (c *Catalog) GetYearlyDiscountPercentage(product model.ProductType, currency model.Currency) (int, bool) {
	monthly, err := c.GetPrice(product, currency, model.BillingMonthly)
	if err != nil {
		return 0, false
	}
	yearly, err := c.GetPrice(product, currency, model.BillingYearly)
	if err != nil {
		return 0, false
	}
	annual := monthly.Mul(decimal.NewFromInt(12))
	if annual.IsZero() {
		return 0, false
	}
	pct := annual.Sub(yearly).Div(annual).Mul(decimal.NewFromInt(100)).Round(0)
	return int(pct.IntPart()), true
}

// AvailableBillingCycles lists the cycles priced for a product, in enum order.
func (c *Catalog) AvailableBillingCycles(product model.ProductType, currency model.Currency) []model.BillingCycle {
	var out []model.BillingCycle
	t := c.table(currency)
	for k := range c.prices {
		if k.product == product && k.currency == t {
			out = append(out, k.cycle)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Supports reports whether any price exists for the currency.
func (c *Catalog) Supports(currency model.Currency) bool {
	t := c.table(currency)
	for k := range c.prices {
		if k.currency == t {
			return true
		}
	}
	return false
}
