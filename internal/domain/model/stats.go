package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// PaymentStats aggregates transactions created since a point in time.
type PaymentStats struct {
	Since             time.Time
	TotalTransactions int
	// Revenue sums Completed transactions per currency.
	Revenue      map[Currency]decimal.Decimal
	ByStatus     map[PaymentStatus]int
	ByProvider   map[PaymentProvider]int
	ByProduct    map[ProductType]int
	DailyRevenue []DailyRevenue
}

type DailyRevenue struct {
	Day      time.Time
	Currency Currency
	Amount   decimal.Decimal
	Count    int
}

func NewPaymentStats(since time.Time) *PaymentStats {
	return &PaymentStats{
		Since:      since,
		Revenue:    map[Currency]decimal.Decimal{},
		ByStatus:   map[PaymentStatus]int{},
		ByProvider: map[PaymentProvider]int{},
		ByProduct:  map[ProductType]int{},
	}
}

// SuccessRate is the share of Completed among all counted transactions, 0..100.
func (s *PaymentStats) SuccessRate() float64 {
	if s.TotalTransactions == 0 {
		return 0
	}
	return float64(s.ByStatus[PaymentStatusCompleted]) * 100 / float64(s.TotalTransactions)
}
