package pricing

import (
	"github.com/shopspring/decimal"

	"careera-payments/internal/domain/model"
)

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

// DefaultEntries is the production price list.
func DefaultEntries() []Entry {
	type row struct {
		product model.ProductType
		cycle   model.BillingCycle
		usd     string
		egp     string
	}
	rows := []row{
		{model.ProductInterviewerSubscription, model.BillingMonthly, "9.99", "299.99"},
		{model.ProductInterviewerSubscription, model.BillingYearly, "99.99", "2999.99"},
		{model.ProductCVBuilderSubscription, model.BillingMonthly, "6.99", "199.99"},
		{model.ProductCVBuilderSubscription, model.BillingYearly, "69.99", "1999.99"},
		{model.ProductBundleSubscription, model.BillingMonthly, "13.99", "30"},
		{model.ProductBundleSubscription, model.BillingYearly, "139.99", "300"},
		{model.ProductInterviewerLifetime, model.BillingLifetime, "199.99", "5999.99"},
		{model.ProductCVBuilderLifetime, model.BillingLifetime, "149.99", "4499.99"},
		{model.ProductBundleLifetime, model.BillingLifetime, "299.99", "8999.99"},
		{model.ProductSingleInterview, model.BillingPayPerUse, "4.99", "149.99"},
		{model.ProductSingleCV, model.BillingPayPerUse, "2.99", "89.99"},
	}
	out := make([]Entry, 0, len(rows)*2)
	for _, r := range rows {
		out = append(out,
			Entry{Product: r.product, Currency: model.CurrencyUSD, Cycle: r.cycle, Amount: d(r.usd)},
			Entry{Product: r.product, Currency: model.CurrencyEGP, Cycle: r.cycle, Amount: d(r.egp)},
		)
	}
	return out
}

// DefaultAliases prices EUR and GBP off the USD table and SAR off the EGP table.
func DefaultAliases() map[model.Currency]model.Currency {
	return map[model.Currency]model.Currency{
		model.CurrencyEUR: model.CurrencyUSD,
		model.CurrencyGBP: model.CurrencyUSD,
		model.CurrencySAR: model.CurrencyEGP,
	}
}

// Default returns the catalog built from DefaultEntries.
func Default() *Catalog {
	c, err := New(DefaultEntries(), DefaultAliases())
	if err != nil {
		panic("pricing: invalid default table: " + err.Error())
	}
	return c
}
