package checkout

import (
	"context"
	"errors"
)

// Callback receives the outcome of an asynchronous checkout operation.
// On success the payload is a canonical record, a provider detail value, or a
// provider resource id; on failure it is the provider's raw error body.
// Operations never report failure by any other channel.
type Callback func(success bool, data any)

// PaymentPeriod is the unit of a recurring billing interval.
type PaymentPeriod string

const (
	PeriodDay   PaymentPeriod = "day"
	PeriodWeek  PaymentPeriod = "week"
	PeriodMonth PaymentPeriod = "month"
	PeriodYear  PaymentPeriod = "year"
)

// Valid reports whether the period is one of the supported units.
func (p PaymentPeriod) Valid() bool {
	switch p {
	case PeriodDay, PeriodWeek, PeriodMonth, PeriodYear:
		return true
	}
	return false
}

// Provider tags a concrete checkout client implementation.
type Provider string

const (
	ProviderPayPal Provider = "paypal"
	ProviderStripe Provider = "stripe"
)

// ErrConfirmUnsupported signals a manual confirmation attempt against a
// provider whose hosted checkout captures automatically. This is an
// integration bug, so it is raised as a panic rather than a callback failure.
var ErrConfirmUnsupported = errors.New("checkout: manual purchase confirmation is not supported by this provider")

// Item describes a one-time purchase line item. UnitPrice is a decimal
// string such as "4.99".
type Item struct {
	Name      string
	UnitPrice string
	Quantity  int
}

// PlanSpec describes a recurring plan to create. Price is charged every
// Intervals Periods.
type PlanSpec struct {
	Name      string
	Price     string
	Period    PaymentPeriod
	Intervals int
}

// OrderData is the canonical provider-agnostic view of a one-time purchase.
type OrderData struct {
	Product   string `json:"product"`
	UnitPrice string `json:"unit_price"`
	Total     string `json:"total"`
	Quantity  int    `json:"quantity"`
	Currency  string `json:"currency"`
}

// SubscriptionData is the canonical provider-agnostic view of a subscription.
type SubscriptionData struct {
	Plan      string        `json:"plan"`
	Price     string        `json:"price"`
	Period    PaymentPeriod `json:"period"`
	Intervals int           `json:"intervals"`
	Active    bool          `json:"active"`
	Status    string        `json:"status"`
}

// OrderDetail is the tagged raw result of GetOrderDetails. Exactly one of
// the provider fields is set, selected by Provider.
type OrderDetail struct {
	Provider Provider
	PayPal   *PayPalOrder
	Stripe   *StripeSession
}

// SubscriptionDetail is the tagged raw result of GetSubscriptionDetails.
// For PayPal the plan accompanies the subscription because plan-level
// operations need its id; for Stripe the session that created the
// subscription accompanies it.
type SubscriptionDetail struct {
	Provider           Provider
	PayPalSubscription *PayPalSubscription
	PayPalPlan         *PayPalPlan
	StripeSession      *StripeSession
	Stripe             *StripeSubscription
}

// InternalID returns the provider-side id that mutating subscription
// operations require: the plan id for PayPal, the subscription id for Stripe.
func (d SubscriptionDetail) InternalID() string {
	switch d.Provider {
	case ProviderPayPal:
		if d.PayPalPlan != nil {
			return d.PayPalPlan.ID
		}
	case ProviderStripe:
		if d.Stripe != nil {
			return d.Stripe.ID
		}
	}
	return ""
}

// ApprovalSurface tracks the waiting surface shown to the user while an
// approval is pending. Hiding or expiring the surface abandons the wait.
type ApprovalSurface interface {
	Show(ctx context.Context, id string) error
	Displayed(ctx context.Context, id string) bool
	Hide(ctx context.Context, id string) error
}

// URLOpener hands the provider's approval URL to the user.
type URLOpener interface {
	Open(ctx context.Context, url string) error
}

// RedirectWriter materialises the hosted-checkout hand-off document for
// providers that cannot be opened by URL directly. Write returns the
// location to open; Remove is called once polling concludes.
type RedirectWriter interface {
	Write(sessionID, publishableKey string) (string, error)
	Remove(sessionID string) error
}

// Messages is UI copy surfaced alongside checkout flows. The core only
// passes it through; presentation is the embedding application's concern.
type Messages struct {
	OrderTitle       string `json:"order_title"`
	OrderMessage     string `json:"order_message"`
	WaitTitle        string `json:"wait_title"`
	WaitMessage      string `json:"wait_message"`
	ConfirmTitle     string `json:"confirm_title"`
	ConfirmMessage   string `json:"confirm_message"`
	CompleteTitle    string `json:"complete_title"`
	CompleteMessage  string `json:"complete_message"`
	SubscribeTitle   string `json:"subscribe_title"`
	SubscribeMessage string `json:"subscribe_message"`
}

// DefaultMessages returns the stock UI copy.
func DefaultMessages() Messages {
	return Messages{
		OrderTitle:       "Checkout",
		OrderMessage:     "Creating your order...",
		WaitTitle:        "Waiting",
		WaitMessage:      "Complete your purchase in the opened window.",
		ConfirmTitle:     "Confirming",
		ConfirmMessage:   "Confirming your payment...",
		CompleteTitle:    "Complete",
		CompleteMessage:  "Thank you for your purchase!",
		SubscribeTitle:   "Subscribed",
		SubscribeMessage: "Your subscription is now active.",
	}
}

// Client is the provider-facing checkout contract. Every operation is
// asynchronous: it returns immediately and reports through the callback.
// WaitForApproval may never report at all when the wait is abandoned.
type Client interface {
	Provider() Provider
	MessageConfig() *Messages

	CreateOrder(ctx context.Context, item Item, cb Callback)
	WaitForApproval(ctx context.Context, id string, cb Callback)
	ConfirmPurchase(ctx context.Context, orderID string, cb Callback)
	GetOrderDetails(ctx context.Context, orderID string, cb Callback)

	CreateSubscription(ctx context.Context, plan PlanSpec, cb Callback)
	ActivateSubscription(ctx context.Context, id string, cb Callback)
	DeactivateSubscription(ctx context.Context, id string, cb Callback)
	UpdateSubscriptionPricing(ctx context.Context, id, price string, cb Callback)
	GetSubscriptionDetails(ctx context.Context, id string, cb Callback)
}
