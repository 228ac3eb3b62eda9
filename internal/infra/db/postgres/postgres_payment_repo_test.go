//go:build integration

package postgres

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"careera-payments/internal/domain"
	"careera-payments/internal/domain/model"
)

func newTestPayment(userID int64, ref string, amount string, created time.Time) *model.PaymentTransaction {
	return &model.PaymentTransaction{
		ProviderReference: ref,
		UserID:            userID,
		Provider:          model.ProviderStripe,
		Amount:            decimal.RequireFromString(amount),
		Currency:          model.CurrencyUSD,
		ProductType:       model.ProductBundleSubscription,
		BillingCycle:      model.BillingMonthly,
		Status:            model.PaymentStatusPending,
		PaymentMethod:     model.MethodUnknown,
		CheckoutURL:       "https://checkout.stripe.test/" + ref,
		ProviderMetadata:  map[string]string{"plan": "premium"},
		IdempotencyKey:    "idem-" + ref,
		CreatedAt:         created,
		UpdatedAt:         created,
	}
}

func TestPaymentRepo_Integration(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode.")
	}
	ctx := context.Background()
	repo := NewPaymentRepo(testPool)
	now := time.Now().UTC().Truncate(time.Microsecond)

	t.Run("should create and find by id and reference", func(t *testing.T) {
		cleanup(t)
		u := seedUser(t, "pay@careera.test")
		p := newTestPayment(u.ID, "cs_test_1", "14.99", now)

		if err := repo.Create(ctx, nil, p); err != nil {
			t.Fatalf("Create failed: %v", err)
		}
		byID, err := repo.FindByID(ctx, nil, p.ID)
		if err != nil {
			t.Fatalf("FindByID failed: %v", err)
		}
		byRef, err := repo.FindByReference(ctx, nil, "cs_test_1")
		if err != nil {
			t.Fatalf("FindByReference failed: %v", err)
		}
		if byID.ID != byRef.ID {
			t.Errorf("lookups disagree: %d vs %d", byID.ID, byRef.ID)
		}
		if !byID.Amount.Equal(decimal.RequireFromString("14.99")) || byID.Status != model.PaymentStatusPending {
			t.Errorf("unexpected transaction %+v", byID)
		}
		if byID.ProviderMetadata["plan"] != "premium" {
			t.Errorf("metadata not round-tripped: %v", byID.ProviderMetadata)
		}
	})

	t.Run("should reject a duplicate provider reference", func(t *testing.T) {
		cleanup(t)
		u := seedUser(t, "dup@careera.test")
		if err := repo.Create(ctx, nil, newTestPayment(u.ID, "cs_dup", "10", now)); err != nil {
			t.Fatalf("first create: %v", err)
		}
		err := repo.Create(ctx, nil, newTestPayment(u.ID, "cs_dup", "10", now))
		if !errors.Is(err, domain.ErrAlreadyExists) {
			t.Errorf("expected ErrAlreadyExists, got %v", err)
		}
	})

	t.Run("UpdateIfStatusIn should complete a payment only once", func(t *testing.T) {
		cleanup(t)
		u := seedUser(t, "cas@careera.test")
		p := newTestPayment(u.ID, "cs_cas", "10", now)
		if err := repo.Create(ctx, nil, p); err != nil {
			t.Fatalf("create: %v", err)
		}

		first := *p
		first.MarkCompleted(now)
		first.PaymentMethod = model.MethodCreditCard
		ok, err := repo.UpdateIfStatusIn(ctx, nil, &first, model.OpenPaymentStatuses)
		if err != nil || !ok {
			t.Fatalf("first update: ok=%v err=%v", ok, err)
		}

		second := *p
		second.MarkFailed("late failure", "card_declined", now)
		ok, err = repo.UpdateIfStatusIn(ctx, nil, &second, model.OpenPaymentStatuses)
		if err != nil {
			t.Fatalf("second update: %v", err)
		}
		if ok {
			t.Error("expected the second update to lose the race")
		}

		got, _ := repo.FindByID(ctx, nil, p.ID)
		if got.Status != model.PaymentStatusCompleted || got.PaymentMethod != model.MethodCreditCard || got.CompletedAt == nil {
			t.Errorf("unexpected final state %+v", got)
		}
	})

	t.Run("SetSubscription should stamp only once", func(t *testing.T) {
		cleanup(t)
		u := seedUser(t, "stamp@careera.test")
		plan := seedPlan(t, "Monthly", 1)
		p := newTestPayment(u.ID, "cs_stamp", "10", now)
		if err := repo.Create(ctx, nil, p); err != nil {
			t.Fatalf("create: %v", err)
		}
		subs := NewSubscriptionRepo(testPool)
		s1, _ := model.NewUserSubscription(u.ID, plan, now)
		if err := subs.Save(ctx, nil, s1); err != nil {
			t.Fatalf("save subscription: %v", err)
		}
		other := seedUser(t, "other@careera.test")
		s2, _ := model.NewUserSubscription(other.ID, plan, now)
		if err := subs.Save(ctx, nil, s2); err != nil {
			t.Fatalf("save subscription: %v", err)
		}

		if err := repo.SetSubscription(ctx, nil, p.ID, s1.ID); err != nil {
			t.Fatalf("first stamp: %v", err)
		}
		if err := repo.SetSubscription(ctx, nil, p.ID, s2.ID); err != nil {
			t.Fatalf("second stamp: %v", err)
		}
		got, _ := repo.FindByID(ctx, nil, p.ID)
		if got.SubscriptionID == nil || *got.SubscriptionID != s1.ID {
			t.Errorf("expected subscription %d, got %v", s1.ID, got.SubscriptionID)
		}
	})

	t.Run("ListByUser should page newest first with a total", func(t *testing.T) {
		cleanup(t)
		u := seedUser(t, "hist@careera.test")
		other := seedUser(t, "else@careera.test")
		for i := 0; i < 5; i++ {
			p := newTestPayment(u.ID, fmt.Sprintf("cs_h%d", i), "5", now.Add(time.Duration(i)*time.Minute))
			if err := repo.Create(ctx, nil, p); err != nil {
				t.Fatalf("create: %v", err)
			}
		}
		if err := repo.Create(ctx, nil, newTestPayment(other.ID, "cs_other", "5", now)); err != nil {
			t.Fatalf("create: %v", err)
		}

		items, total, err := repo.ListByUser(ctx, nil, u.ID, 2, 2)
		if err != nil {
			t.Fatalf("ListByUser failed: %v", err)
		}
		if total != 5 {
			t.Errorf("expected total 5, got %d", total)
		}
		if len(items) != 2 || items[0].ProviderReference != "cs_h2" || items[1].ProviderReference != "cs_h1" {
			t.Errorf("unexpected page %v", items)
		}
	})

	t.Run("ListOpenOlderThan should return only stale open payments", func(t *testing.T) {
		cleanup(t)
		u := seedUser(t, "stale@careera.test")
		stale := newTestPayment(u.ID, "cs_stale", "5", now.Add(-time.Hour))
		fresh := newTestPayment(u.ID, "cs_fresh", "5", now)
		done := newTestPayment(u.ID, "cs_done", "5", now.Add(-time.Hour))
		done.MarkCompleted(now.Add(-time.Hour))
		for _, p := range []*model.PaymentTransaction{stale, fresh, done} {
			if err := repo.Create(ctx, nil, p); err != nil {
				t.Fatalf("create %s: %v", p.ProviderReference, err)
			}
		}

		got, err := repo.ListOpenOlderThan(ctx, nil, now.Add(-15*time.Minute), 10)
		if err != nil {
			t.Fatalf("ListOpenOlderThan failed: %v", err)
		}
		if len(got) != 1 || got[0].ID != stale.ID {
			t.Errorf("expected only the stale payment, got %v", got)
		}
	})

	t.Run("Stats should count all and sum only completed revenue", func(t *testing.T) {
		cleanup(t)
		u := seedUser(t, "stats@careera.test")
		paid := newTestPayment(u.ID, "cs_s1", "20.00", now)
		paid.MarkCompleted(now)
		paid2 := newTestPayment(u.ID, "cs_s2", "9.50", now)
		paid2.MarkCompleted(now)
		failed := newTestPayment(u.ID, "cs_s3", "99", now)
		failed.MarkFailed("declined", "card_declined", now)
		old := newTestPayment(u.ID, "cs_s4", "50", now.AddDate(0, 0, -40))
		old.MarkCompleted(now.AddDate(0, 0, -40))
		for _, p := range []*model.PaymentTransaction{paid, paid2, failed, old} {
			if err := repo.Create(ctx, nil, p); err != nil {
				t.Fatalf("create %s: %v", p.ProviderReference, err)
			}
		}

		st, err := repo.Stats(ctx, nil, now.AddDate(0, 0, -30))
		if err != nil {
			t.Fatalf("Stats failed: %v", err)
		}
		if st.TotalTransactions != 3 {
			t.Errorf("expected 3 transactions, got %d", st.TotalTransactions)
		}
		if !st.Revenue[model.CurrencyUSD].Equal(decimal.RequireFromString("29.50")) {
			t.Errorf("expected revenue 29.50, got %s", st.Revenue[model.CurrencyUSD])
		}
		if st.ByStatus[model.PaymentStatusFailed] != 1 || st.ByProvider[model.ProviderStripe] != 3 {
			t.Errorf("unexpected breakdown %+v", st)
		}
		if len(st.DailyRevenue) != 1 || st.DailyRevenue[0].Count != 2 {
			t.Errorf("unexpected daily revenue %+v", st.DailyRevenue)
		}
	})
}

func TestRefundRepo_Integration(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode.")
	}
	ctx := context.Background()
	payments := NewPaymentRepo(testPool)
	refunds := NewRefundRepo(testPool)
	now := time.Now().UTC().Truncate(time.Microsecond)

	t.Run("should create, review and record the outcome", func(t *testing.T) {
		cleanup(t)
		u := seedUser(t, "refund@careera.test")
		p := newTestPayment(u.ID, "cs_refund", "30", now)
		p.MarkCompleted(now)
		if err := payments.Create(ctx, nil, p); err != nil {
			t.Fatalf("create payment: %v", err)
		}

		r, err := model.NewRefundRequest(p, decimal.RequireFromString("12.50"), "changed my mind", u.ID, now)
		if err != nil {
			t.Fatalf("NewRefundRequest: %v", err)
		}
		if err := refunds.Create(ctx, nil, r); err != nil {
			t.Fatalf("Create failed: %v", err)
		}

		if err := r.Approve(u.ID, "ok", now); err != nil {
			t.Fatalf("Approve: %v", err)
		}
		r.MarkProcessed("re_123", now)
		if err := refunds.Update(ctx, nil, r); err != nil {
			t.Fatalf("Update failed: %v", err)
		}

		got, err := refunds.FindByID(ctx, nil, r.ID)
		if err != nil {
			t.Fatalf("FindByID failed: %v", err)
		}
		if got.Status != model.RefundStatusProcessed || got.ProviderRefundReference != "re_123" {
			t.Errorf("unexpected refund %+v", got)
		}
		if !got.RefundAmount.Equal(decimal.RequireFromString("12.50")) || got.ReviewedByAdminID == nil {
			t.Errorf("unexpected refund %+v", got)
		}
	})

	t.Run("should report a missing refund", func(t *testing.T) {
		cleanup(t)
		if _, err := refunds.FindByID(ctx, nil, 77); !errors.Is(err, domain.ErrNotFound) {
			t.Errorf("expected ErrNotFound, got %v", err)
		}
		if err := refunds.Update(ctx, nil, &model.RefundRequest{ID: 77}); !errors.Is(err, domain.ErrNotFound) {
			t.Errorf("expected ErrNotFound, got %v", err)
		}
	})
}
