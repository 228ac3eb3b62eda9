package model

import (
	"time"

	"careera-payments/internal/domain"
)

// UserSubscription is the single entitlement row a user holds.
type UserSubscription struct {
	ID        int64
	UserID    int64
	PlanID    int64
	StartDate time.Time
	EndDate   time.Time
	IsActive  bool
	CreatedAt time.Time
	UpdatedAt time.Time
}

// NewUserSubscription starts a subscription now for plan.DurationMonths.
func NewUserSubscription(userID int64, plan *SubscriptionPlan, now time.Time) (*UserSubscription, error) {
	if userID <= 0 || plan.IsZero() {
		return nil, domain.ErrInvalidArgument
	}
	return &UserSubscription{
		UserID:    userID,
		PlanID:    plan.ID,
		StartDate: now,
		EndDate:   now.AddDate(0, plan.DurationMonths, 0),
		IsActive:  true,
		CreatedAt: now,
		UpdatedAt: now,
	}, nil
}

// Extend pushes EndDate by plan.DurationMonths. A lapsed subscription restarts
// from now, an active one extends from its current end.
func (s *UserSubscription) Extend(plan *SubscriptionPlan, now time.Time) error {
	if plan.IsZero() {
		return domain.ErrInvalidArgument
	}
	from := s.EndDate
	if now.After(from) {
		from = now
		s.StartDate = now
	}
	s.EndDate = from.AddDate(0, plan.DurationMonths, 0)
	s.PlanID = plan.ID
	s.IsActive = true
	s.UpdatedAt = now
	return nil
}
