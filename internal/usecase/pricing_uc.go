package usecase

import (
	"fmt"

	"github.com/shopspring/decimal"

	"careera-payments/internal/domain"
	"careera-payments/internal/domain/model"
)

const premiumDisplayName = "Careera Premium"

// PricingUseCase projects the price catalog for the pricing page.
type PricingUseCase interface {
	GetPricing(product model.ProductType, currency model.Currency) (*ProductPricing, error)
}

// PriceCatalog is the read side of pricing.Catalog.
type PriceCatalog interface {
	PriceLookup
	GetYearlyDiscountPercentage(product model.ProductType, currency model.Currency) (int, bool)
	AvailableBillingCycles(product model.ProductType, currency model.Currency) []model.BillingCycle
	Supports(currency model.Currency) bool
}

type PricingTier struct {
	BillingCycle       model.BillingCycle `json:"billingCycle"`
	Amount             decimal.Decimal    `json:"amount"`
	Currency           model.Currency     `json:"currency"`
	DisplayAmount      string             `json:"displayAmount"`
	DiscountPercentage *int               `json:"discountPercentage,omitempty"`
	DiscountLabel      string             `json:"discountLabel,omitempty"`
}

type ProductPricing struct {
	ProductType model.ProductType `json:"productType"`
	DisplayName string            `json:"displayName"`
	Tiers       []PricingTier     `json:"tiers"`
	Features    []string          `json:"features,omitempty"`
}

var _ PricingUseCase = (*pricingUC)(nil)

type pricingUC struct {
	catalog PriceCatalog
}

func NewPricingUseCase(catalog PriceCatalog) *pricingUC {
	return &pricingUC{catalog: catalog}
}

func (p *pricingUC) GetPricing(product model.ProductType, currency model.Currency) (*ProductPricing, error) {
	if !product.IsValid() || !currency.IsValid() {
		return nil, fmt.Errorf("%w: product type and currency", domain.ErrValidation)
	}
	cycles := p.catalog.AvailableBillingCycles(product, currency)
	if len(cycles) == 0 {
		return nil, fmt.Errorf("%v/%s: %w", product, currency, domain.ErrPriceNotConfigured)
	}

	out := &ProductPricing{ProductType: product, DisplayName: product.String()}
	if product == model.ProductBundleSubscription {
		out.DisplayName = premiumDisplayName
		out.Features = []string{
			"Access to AI Interviewer (realistic mock interviews)",
			"Job Description Parser to analyze a JD and match it to your CV",
		}
	}
	for _, c := range cycles {
		amount, err := p.catalog.GetPrice(product, currency, c)
		if err != nil {
			return nil, err
		}
		tier := PricingTier{
			BillingCycle:  c,
			Amount:        amount,
			Currency:      currency,
			DisplayAmount: model.FormatAmount(amount, currency),
		}
		if c == model.BillingYearly {
			if pct, ok := p.catalog.GetYearlyDiscountPercentage(product, currency); ok && pct > 0 {
				tier.DiscountPercentage = &pct
				tier.DiscountLabel = fmt.Sprintf("Save %d%%", pct)
			}
		}
		out.Tiers = append(out.Tiers, tier)
	}
	return out, nil
}
