package payment

import (
	"strconv"

	"careera-payments/internal/domain/model"
)

var productNames = map[model.ProductType]string{
	model.ProductInterviewerSubscription: "AI Interviewer Pro",
	model.ProductCVBuilderSubscription:   "Smart CV Builder",
	model.ProductBundleSubscription:      "Career Pro Bundle",
	model.ProductInterviewerLifetime:     "AI Interviewer - Lifetime",
	model.ProductCVBuilderLifetime:       "CV Builder - Lifetime",
	model.ProductBundleLifetime:          "Career Bundle - Lifetime",
	model.ProductSingleInterview:         "Single Interview Session",
	model.ProductSingleCV:                "Single CV Generation",
}

func productName(p model.ProductType) string {
	if n, ok := productNames[p]; ok {
		return n
	}
	return "Careera Premium"
}

func productDescription(p model.ProductType, cycle model.BillingCycle) string {
	switch cycle {
	case model.BillingMonthly:
		return productName(p) + " (monthly)"
	case model.BillingYearly:
		return productName(p) + " (yearly)"
	default:
		return productName(p)
	}
}

// sessionMetadata is attached to every provider session so a webhook can be
// traced back without a database lookup.
func sessionMetadata(userID int64, p model.ProductType, cycle model.BillingCycle, key string, extra map[string]string) map[string]string {
	m := copyMeta(extra)
	m["user_id"] = itoa(userID)
	m["product_type"] = p.String()
	m["billing_cycle"] = cycle.String()
	if key != "" {
		m["idempotency_key"] = key
	}
	return m
}

func itoa(v int64) string { return strconv.FormatInt(v, 10) }
