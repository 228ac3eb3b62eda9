// File: internal/usecase/subscription_uc.go
package usecase

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"careera-payments/internal/domain"
	"careera-payments/internal/domain/model"
	"careera-payments/internal/domain/ports/repository"
	"careera-payments/internal/infra/logging"
	"careera-payments/internal/infra/metrics"
)

// Compile-time check
var _ SubscriptionActivator = (*subscriptionActivator)(nil)

type subscriptionActivator struct {
	users repository.UserRepository
	roles repository.RoleRepository
	plans repository.SubscriptionPlanRepository
	subs  repository.SubscriptionRepository
	tm    repository.TransactionManager
	now   func() time.Time

	log *zerolog.Logger
}

func NewSubscriptionActivator(
	users repository.UserRepository,
	roles repository.RoleRepository,
	plans repository.SubscriptionPlanRepository,
	subs repository.SubscriptionRepository,
	tm repository.TransactionManager,
	logger *zerolog.Logger,
) *subscriptionActivator {
	return &subscriptionActivator{users: users, roles: roles, plans: plans, subs: subs, tm: tm, now: time.Now, log: logger}
}

// Activate upgrades the payer's role, then creates or extends their subscription
// on the default plan. The role step is best-effort: its failure is logged and
// counted but the subscription is still granted.
func (a *subscriptionActivator) Activate(ctx context.Context, tx repository.Tx, t *model.PaymentTransaction) (int64, error) {
	defer logging.TraceDuration(a.log, "SubscriptionActivator.Activate")()
	log := logging.With(logging.WithUserID(ctx, t.UserID), a.log)
	now := a.now().UTC()

	if err := a.assignPremiumRole(ctx, tx, t.UserID); err != nil {
		metrics.IncRoleAssignFailure()
		log.Error().Err(err).Int64("transaction_id", t.ID).Msg("premium role not assigned, subscription still granted")
	}

	plan, err := a.defaultPlan(ctx, tx)
	if err != nil {
		return 0, fmt.Errorf("%w: resolve plan: %v", domain.ErrSubscriptionActivation, err)
	}

	sub, err := a.subs.FindByUser(ctx, tx, t.UserID)
	kind := "extended"
	switch {
	case errors.Is(err, domain.ErrNotFound):
		kind = "created"
		sub, err = model.NewUserSubscription(t.UserID, plan, now)
		if err != nil {
			return 0, fmt.Errorf("%w: %v", domain.ErrSubscriptionActivation, err)
		}
	case err != nil:
		return 0, fmt.Errorf("%w: load subscription: %v", domain.ErrSubscriptionActivation, err)
	default:
		if err := sub.Extend(plan, now); err != nil {
			return 0, fmt.Errorf("%w: %v", domain.ErrSubscriptionActivation, err)
		}
	}

	if err := a.subs.Save(ctx, tx, sub); err != nil {
		return 0, fmt.Errorf("%w: save subscription: %v", domain.ErrSubscriptionActivation, err)
	}
	metrics.IncSubscriptionActivation(kind)
	log.Info().
		Int64("subscription_id", sub.ID).
		Int64("plan_id", plan.ID).
		Time("end_date", sub.EndDate).
		Str("kind", kind).
		Msg("subscription activated")
	return sub.ID, nil
}

func (a *subscriptionActivator) assignPremiumRole(ctx context.Context, tx repository.Tx, userID int64) error {
	return a.tm.Savepoint(ctx, tx, func(ctx context.Context, tx repository.Tx) error {
		role, err := a.roles.FindByName(ctx, tx, model.PremiumRoleName)
		if errors.Is(err, domain.ErrNotFound) {
			role = &model.Role{Name: model.PremiumRoleName}
			err = a.roles.Create(ctx, tx, role)
		}
		if err != nil {
			return fmt.Errorf("resolve role: %w", err)
		}
		return a.users.UpdateRole(ctx, tx, userID, role.ID)
	})
}

// defaultPlan prefers the plan named DefaultPlanName, then the first active plan,
// and bootstraps one when the catalog is empty.
func (a *subscriptionActivator) defaultPlan(ctx context.Context, tx repository.Tx) (*model.SubscriptionPlan, error) {
	plans, err := a.plans.ListAll(ctx, tx)
	if err != nil {
		return nil, err
	}
	for _, p := range plans {
		if p.Name == model.DefaultPlanName {
			return p, nil
		}
	}
	if len(plans) > 0 {
		return plans[0], nil
	}
	p := model.NewDefaultPlan()
	if err := a.plans.Save(ctx, tx, p); err != nil {
		return nil, err
	}
	a.log.Info().Int64("plan_id", p.ID).Msg("bootstrapped default subscription plan")
	return p, nil
}
