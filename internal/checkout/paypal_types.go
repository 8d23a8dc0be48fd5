package checkout

import (
	"strconv"
	"strings"
)

// PayPal status vocabulary. These literals come off the wire verbatim.
const (
	paypalStatusCreated         = "CREATED"
	paypalStatusApproved        = "APPROVED"
	paypalStatusCompleted       = "COMPLETED"
	paypalStatusApprovalPending = "APPROVAL_PENDING"
	paypalStatusActive          = "ACTIVE"

	paypalSubscriptionPrefix = "I-"
)

// IsPayPalSubscriptionID reports whether an id follows PayPal's subscription
// id convention. Subscription ids start with "I-"; order ids never do. The
// convention is undocumented, so the check lives behind this one predicate
// and nothing else inspects id shapes.
func IsPayPalSubscriptionID(id string) bool {
	return strings.HasPrefix(id, paypalSubscriptionPrefix)
}

// PayPalAmount is the currency/value pair used throughout the PayPal API.
type PayPalAmount struct {
	CurrencyCode string `json:"currency_code"`
	Value        string `json:"value"`
}

// PayPalLink is a HATEOAS link from a PayPal response.
type PayPalLink struct {
	Href   string `json:"href"`
	Rel    string `json:"rel"`
	Method string `json:"method,omitempty"`
}

func approveLink(links []PayPalLink) string {
	for _, link := range links {
		if link.Rel == "approve" {
			return link.Href
		}
	}
	return ""
}

// PayPalItem is a single order line item.
type PayPalItem struct {
	Name       string       `json:"name"`
	UnitAmount PayPalAmount `json:"unit_amount"`
	Quantity   string       `json:"quantity"`
}

// PayPalBreakdown itemises an order amount.
type PayPalBreakdown struct {
	ItemTotal PayPalAmount `json:"item_total"`
}

// PayPalOrderAmount is an order total with its breakdown.
type PayPalOrderAmount struct {
	CurrencyCode string           `json:"currency_code"`
	Value        string           `json:"value"`
	Breakdown    *PayPalBreakdown `json:"breakdown,omitempty"`
}

// PayPalPurchaseUnit groups an order's amount and items.
type PayPalPurchaseUnit struct {
	Amount PayPalOrderAmount `json:"amount"`
	Items  []PayPalItem      `json:"items,omitempty"`
}

// PayPalOrder is the order resource, shared between create requests and
// detail responses.
type PayPalOrder struct {
	ID            string               `json:"id,omitempty"`
	Intent        string               `json:"intent,omitempty"`
	Status        string               `json:"status,omitempty"`
	PurchaseUnits []PayPalPurchaseUnit `json:"purchase_units,omitempty"`
	Links         []PayPalLink         `json:"links,omitempty"`
}

// ApproveURL returns the hyperlink the user must visit to approve the order.
func (o *PayPalOrder) ApproveURL() string { return approveLink(o.Links) }

// Product returns the first line item's name.
func (o *PayPalOrder) Product() string {
	if item, ok := o.item(); ok {
		return item.Name
	}
	return ""
}

// UnitPrice returns the first line item's unit price as a decimal string.
func (o *PayPalOrder) UnitPrice() string {
	if item, ok := o.item(); ok {
		return item.UnitAmount.Value
	}
	return ""
}

// Quantity returns the first line item's quantity.
func (o *PayPalOrder) Quantity() int {
	item, ok := o.item()
	if !ok {
		return 0
	}
	n, err := strconv.Atoi(item.Quantity)
	if err != nil {
		return 0
	}
	return n
}

// Total returns the order total as a decimal string.
func (o *PayPalOrder) Total() string {
	if len(o.PurchaseUnits) == 0 {
		return ""
	}
	return o.PurchaseUnits[0].Amount.Value
}

// Currency returns the order currency code.
func (o *PayPalOrder) Currency() string {
	if len(o.PurchaseUnits) == 0 {
		return ""
	}
	return o.PurchaseUnits[0].Amount.CurrencyCode
}

func (o *PayPalOrder) item() (PayPalItem, bool) {
	if len(o.PurchaseUnits) == 0 || len(o.PurchaseUnits[0].Items) == 0 {
		return PayPalItem{}, false
	}
	return o.PurchaseUnits[0].Items[0], true
}

// PayPalProduct is the catalog product backing a billing plan.
type PayPalProduct struct {
	ID   string `json:"id,omitempty"`
	Name string `json:"name"`
	Type string `json:"type,omitempty"`
}

// PayPalFrequency describes a billing cycle cadence.
type PayPalFrequency struct {
	IntervalUnit  string `json:"interval_unit"`
	IntervalCount int    `json:"interval_count"`
}

// PayPalPricingScheme carries a billing cycle's fixed price.
type PayPalPricingScheme struct {
	FixedPrice PayPalAmount `json:"fixed_price"`
}

// PayPalBillingCycle is one cycle of a billing plan.
type PayPalBillingCycle struct {
	Frequency     PayPalFrequency     `json:"frequency"`
	TenureType    string              `json:"tenure_type"`
	Sequence      int                 `json:"sequence"`
	TotalCycles   int                 `json:"total_cycles"`
	PricingScheme PayPalPricingScheme `json:"pricing_scheme"`
}

// PayPalPaymentPreferences configures plan-level billing behavior.
type PayPalPaymentPreferences struct {
	AutoBillOutstanding     bool         `json:"auto_bill_outstanding"`
	SetupFee                PayPalAmount `json:"setup_fee"`
	SetupFeeFailureAction   string       `json:"setup_fee_failure_action"`
	PaymentFailureThreshold int          `json:"payment_failure_threshold"`
}

// PayPalPlan is the billing plan resource.
type PayPalPlan struct {
	ID                 string                    `json:"id,omitempty"`
	ProductID          string                    `json:"product_id,omitempty"`
	Name               string                    `json:"name,omitempty"`
	Status             string                    `json:"status,omitempty"`
	BillingCycles      []PayPalBillingCycle      `json:"billing_cycles,omitempty"`
	PaymentPreferences *PayPalPaymentPreferences `json:"payment_preferences,omitempty"`
}

// Price returns the plan's fixed price as a decimal string.
func (p *PayPalPlan) Price() string {
	if len(p.BillingCycles) == 0 {
		return ""
	}
	return p.BillingCycles[0].PricingScheme.FixedPrice.Value
}

// Period returns the plan's billing interval unit in canonical lowercase form.
func (p *PayPalPlan) Period() PaymentPeriod {
	if len(p.BillingCycles) == 0 {
		return ""
	}
	return PaymentPeriod(strings.ToLower(p.BillingCycles[0].Frequency.IntervalUnit))
}

// Intervals returns how many periods elapse between charges.
func (p *PayPalPlan) Intervals() int {
	if len(p.BillingCycles) == 0 {
		return 0
	}
	return p.BillingCycles[0].Frequency.IntervalCount
}

// Active reports whether the plan is currently billing.
func (p *PayPalPlan) Active() bool { return p.Status == paypalStatusActive }

// PayPalSubscription is the subscription resource.
type PayPalSubscription struct {
	ID     string       `json:"id,omitempty"`
	PlanID string       `json:"plan_id,omitempty"`
	Status string       `json:"status,omitempty"`
	Links  []PayPalLink `json:"links,omitempty"`
}

// ApproveURL returns the hyperlink the user must visit to approve the
// subscription.
func (s *PayPalSubscription) ApproveURL() string { return approveLink(s.Links) }

type payPalTokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	ExpiresIn   int64  `json:"expires_in"`
}

type payPalAppContext struct {
	ReturnURL string `json:"return_url"`
	CancelURL string `json:"cancel_url"`
}

type payPalSubscriptionRequest struct {
	PlanID             string           `json:"plan_id"`
	ApplicationContext payPalAppContext `json:"application_context"`
}

type payPalPricingSchemeUpdate struct {
	BillingCycleSequence int                 `json:"billing_cycle_sequence"`
	PricingScheme        PayPalPricingScheme `json:"pricing_scheme"`
}

type payPalPricingUpdateRequest struct {
	PricingSchemes []payPalPricingSchemeUpdate `json:"pricing_schemes"`
}
