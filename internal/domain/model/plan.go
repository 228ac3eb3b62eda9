package model

import (
	"time"

	"github.com/shopspring/decimal"

	"careera-payments/internal/domain"
)

const (
	DefaultPlanName           = "Default Plan"
	DefaultPlanDurationMonths = 1
)

// SubscriptionPlan is a static catalog row.
type SubscriptionPlan struct {
	ID             int64
	Name           string
	Price          decimal.Decimal
	Currency       Currency
	DurationMonths int
	IsActive       bool
	CreatedAt      time.Time
}

func (p *SubscriptionPlan) IsZero() bool { return p == nil || p.ID == 0 }

// NewSubscriptionPlan validates and constructs an unsaved plan.
func NewSubscriptionPlan(name string, price decimal.Decimal, currency Currency, durationMonths int) (*SubscriptionPlan, error) {
	if name == "" || durationMonths <= 0 || price.IsNegative() || !currency.IsValid() {
		return nil, domain.ErrInvalidArgument
	}
	return &SubscriptionPlan{
		Name:           name,
		Price:          price,
		Currency:       currency,
		DurationMonths: durationMonths,
		IsActive:       true,
		CreatedAt:      time.Now(),
	}, nil
}

// NewDefaultPlan is the zero-cost bootstrap plan used when the catalog is empty.
func NewDefaultPlan() *SubscriptionPlan {
	p, _ := NewSubscriptionPlan(DefaultPlanName, decimal.Zero, CurrencyUSD, DefaultPlanDurationMonths)
	return p
}
