package payment

import (
	"fmt"
	"sort"

	"careera-payments/internal/domain"
	"careera-payments/internal/domain/model"
	"careera-payments/internal/domain/ports/adapter"
)

var _ adapter.StrategyResolver = (*StrategyRegistry)(nil)

// StrategyRegistry resolves a strategy by provider tag. It is filled once at
// startup and only read afterwards.
type StrategyRegistry struct {
	strategies map[model.PaymentProvider]adapter.PaymentProviderStrategy
}

func NewStrategyRegistry(strategies ...adapter.PaymentProviderStrategy) *StrategyRegistry {
	r := &StrategyRegistry{strategies: make(map[model.PaymentProvider]adapter.PaymentProviderStrategy, len(strategies))}
	for _, s := range strategies {
		if s != nil {
			r.strategies[s.Provider()] = s
		}
	}
	return r
}

func (r *StrategyRegistry) GetStrategy(p model.PaymentProvider) (adapter.PaymentProviderStrategy, error) {
	s, ok := r.strategies[p]
	if !ok {
		return nil, fmt.Errorf("%w: %s", domain.ErrUnsupportedProvider, p)
	}
	return s, nil
}

func (r *StrategyRegistry) IsProviderSupported(p model.PaymentProvider) bool {
	_, ok := r.strategies[p]
	return ok
}

func (r *StrategyRegistry) ListSupportedProviders() []model.PaymentProvider {
	out := make([]model.PaymentProvider, 0, len(r.strategies))
	for p := range r.strategies {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
