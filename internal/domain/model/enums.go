package model

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// ProductType identifies what the user is paying for.
type ProductType int

const (
	ProductInterviewerSubscription ProductType = 1
	ProductCVBuilderSubscription   ProductType = 2
	ProductBundleSubscription      ProductType = 3
	ProductInterviewerLifetime     ProductType = 4
	ProductCVBuilderLifetime       ProductType = 5
	ProductBundleLifetime          ProductType = 6
	ProductSingleInterview         ProductType = 10
	ProductSingleCV                ProductType = 11
)

var productTypeNames = map[ProductType]string{
	ProductInterviewerSubscription: "InterviewerSubscription",
	ProductCVBuilderSubscription:   "CVBuilderSubscription",
	ProductBundleSubscription:      "BundleSubscription",
	ProductInterviewerLifetime:     "InterviewerLifetime",
	ProductCVBuilderLifetime:       "CVBuilderLifetime",
	ProductBundleLifetime:          "BundleLifetime",
	ProductSingleInterview:         "SingleInterview",
	ProductSingleCV:                "SingleCV",
}

func (p ProductType) String() string { return enumName(productTypeNames, p) }
func (p ProductType) IsValid() bool  { _, ok := productTypeNames[p]; return ok }

func (p ProductType) MarshalJSON() ([]byte, error) { return json.Marshal(p.String()) }
func (p *ProductType) UnmarshalJSON(b []byte) error {
	return unmarshalEnum(b, productTypeNames, p, "product type")
}

// ParseProductType accepts either the name or the numeric value.
func ParseProductType(s string) (ProductType, error) {
	return parseEnum(s, productTypeNames, "product type")
}

// BillingCycle decides between recurring and one-shot provider sessions.
type BillingCycle int

const (
	BillingMonthly   BillingCycle = 1
	BillingYearly    BillingCycle = 2
	BillingLifetime  BillingCycle = 3
	BillingPayPerUse BillingCycle = 4
)

var billingCycleNames = map[BillingCycle]string{
	BillingMonthly:   "Monthly",
	BillingYearly:    "Yearly",
	BillingLifetime:  "Lifetime",
	BillingPayPerUse: "PayPerUse",
}

func (c BillingCycle) String() string { return enumName(billingCycleNames, c) }
func (c BillingCycle) IsValid() bool  { _, ok := billingCycleNames[c]; return ok }

// IsRecurring reports whether the provider session runs in subscription mode.
func (c BillingCycle) IsRecurring() bool { return c == BillingMonthly || c == BillingYearly }

func (c BillingCycle) MarshalJSON() ([]byte, error) { return json.Marshal(c.String()) }
func (c *BillingCycle) UnmarshalJSON(b []byte) error {
	return unmarshalEnum(b, billingCycleNames, c, "billing cycle")
}

func ParseBillingCycle(s string) (BillingCycle, error) {
	return parseEnum(s, billingCycleNames, "billing cycle")
}

// PaymentProvider tags a provider strategy.
type PaymentProvider int

const (
	ProviderStripe PaymentProvider = 1
	ProviderPayPal PaymentProvider = 2
	ProviderPaymob PaymentProvider = 3
)

var providerNames = map[PaymentProvider]string{
	ProviderStripe: "Stripe",
	ProviderPayPal: "PayPal",
	ProviderPaymob: "Paymob",
}

func (p PaymentProvider) String() string { return enumName(providerNames, p) }
func (p PaymentProvider) IsValid() bool  { _, ok := providerNames[p]; return ok }

func (p PaymentProvider) MarshalJSON() ([]byte, error) { return json.Marshal(p.String()) }
func (p *PaymentProvider) UnmarshalJSON(b []byte) error {
	return unmarshalEnum(b, providerNames, p, "payment provider")
}

// ParsePaymentProvider is case-insensitive so that URL segments like "stripe" resolve.
func ParsePaymentProvider(s string) (PaymentProvider, error) {
	return parseEnum(s, providerNames, "payment provider")
}

// PaymentMethod is what the payer actually used, as reported by the provider.
type PaymentMethod int

const (
	MethodCreditCard   PaymentMethod = 1
	MethodDebitCard    PaymentMethod = 2
	MethodPayPalWallet PaymentMethod = 3
	MethodMobileWallet PaymentMethod = 4
	MethodBankTransfer PaymentMethod = 5
	MethodApplePay     PaymentMethod = 6
	MethodGooglePay    PaymentMethod = 7
	MethodUnknown      PaymentMethod = 99
)

var paymentMethodNames = map[PaymentMethod]string{
	MethodCreditCard:   "CreditCard",
	MethodDebitCard:    "DebitCard",
	MethodPayPalWallet: "PayPalWallet",
	MethodMobileWallet: "MobileWallet",
	MethodBankTransfer: "BankTransfer",
	MethodApplePay:     "ApplePay",
	MethodGooglePay:    "GooglePay",
	MethodUnknown:      "Unknown",
}

func (m PaymentMethod) String() string { return enumName(paymentMethodNames, m) }

func (m PaymentMethod) MarshalJSON() ([]byte, error) { return json.Marshal(m.String()) }
func (m *PaymentMethod) UnmarshalJSON(b []byte) error {
	return unmarshalEnum(b, paymentMethodNames, m, "payment method")
}

// Currency is an ISO 4217 code.
type Currency string

const (
	CurrencyUSD Currency = "USD"
	CurrencyEUR Currency = "EUR"
	CurrencyGBP Currency = "GBP"
	CurrencyEGP Currency = "EGP"
	CurrencySAR Currency = "SAR"
)

func (c Currency) IsValid() bool {
	switch c {
	case CurrencyUSD, CurrencyEUR, CurrencyGBP, CurrencyEGP, CurrencySAR:
		return true
	}
	return false
}

func ParseCurrency(s string) (Currency, error) {
	c := Currency(strings.ToUpper(strings.TrimSpace(s)))
	if !c.IsValid() {
		return "", fmt.Errorf("unknown currency %q", s)
	}
	return c, nil
}

func enumName[T ~int](names map[T]string, v T) string {
	if n, ok := names[v]; ok {
		return n
	}
	return "Unknown(" + strconv.Itoa(int(v)) + ")"
}

func parseEnum[T ~int](s string, names map[T]string, kind string) (T, error) {
	s = strings.TrimSpace(s)
	if n, err := strconv.Atoi(s); err == nil {
		if _, ok := names[T(n)]; ok {
			return T(n), nil
		}
		return 0, fmt.Errorf("unknown %s %d", kind, n)
	}
	for v, name := range names {
		if strings.EqualFold(name, s) {
			return v, nil
		}
	}
	return 0, fmt.Errorf("unknown %s %q", kind, s)
}

func unmarshalEnum[T ~int](b []byte, names map[T]string, dst *T, kind string) error {
	var raw interface{}
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}
	var s string
	switch v := raw.(type) {
	case string:
		s = v
	case float64:
		s = strconv.Itoa(int(v))
	default:
		return fmt.Errorf("invalid %s %s", kind, string(b))
	}
	parsed, err := parseEnum(s, names, kind)
	if err != nil {
		return err
	}
	*dst = parsed
	return nil
}
