//go:build !integration

package payment

import (
	"errors"
	"testing"

	"careera-payments/internal/domain"
	"careera-payments/internal/domain/model"
)

func TestStrategyRegistry(t *testing.T) {
	paymob := NewSandboxStrategy(model.ProviderPaymob, "")
	stripe := NewSandboxStrategy(model.ProviderStripe, "")
	r := NewStrategyRegistry(paymob, nil, stripe)

	t.Run("should resolve a registered provider", func(t *testing.T) {
		s, err := r.GetStrategy(model.ProviderStripe)
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if s.Provider() != model.ProviderStripe {
			t.Errorf("expected stripe strategy, got %s", s.Provider())
		}
	})

	t.Run("should reject an unregistered provider", func(t *testing.T) {
		_, err := r.GetStrategy(model.ProviderPayPal)
		if !errors.Is(err, domain.ErrUnsupportedProvider) {
			t.Fatalf("expected ErrUnsupportedProvider, got %v", err)
		}
		if r.IsProviderSupported(model.ProviderPayPal) {
			t.Error("paypal should not be supported")
		}
	})

	t.Run("should list providers in tag order", func(t *testing.T) {
		got := r.ListSupportedProviders()
		if len(got) != 2 || got[0] != model.ProviderStripe || got[1] != model.ProviderPaymob {
			t.Errorf("unexpected providers %v", got)
		}
	})
}
