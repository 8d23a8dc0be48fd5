package checkout

import "strconv"

// Stripe checkout session modes.
const (
	stripeModePayment      = "payment"
	stripeModeSubscription = "subscription"

	stripeStatusActive = "active"
	stripePauseVoid    = "void"
)

// StripeProduct is the product resource backing a price.
type StripeProduct struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// StripeRecurring describes a price's billing cadence.
type StripeRecurring struct {
	Interval      string `json:"interval"`
	IntervalCount int    `json:"interval_count"`
}

// StripePrice is the price resource. UnitAmount is in minor currency units.
type StripePrice struct {
	ID         string           `json:"id"`
	Nickname   string           `json:"nickname"`
	UnitAmount int64            `json:"unit_amount"`
	Currency   string           `json:"currency"`
	Product    string           `json:"product"`
	Recurring  *StripeRecurring `json:"recurring"`
}

// StripeSessionMetadata echoes the order parameters on the session so later
// detail fetches can reconstruct the order without extra round trips.
type StripeSessionMetadata struct {
	Product   string `json:"product"`
	Quantity  string `json:"quantity"`
	UnitPrice string `json:"unit_price"`
}

// StripeSession is the hosted checkout session resource.
type StripeSession struct {
	ID           string                `json:"id"`
	Mode         string                `json:"mode"`
	URL          string                `json:"url"`
	Customer     string                `json:"customer"`
	Subscription string                `json:"subscription"`
	Currency     string                `json:"currency"`
	AmountTotal  int64                 `json:"amount_total"`
	Metadata     StripeSessionMetadata `json:"metadata"`
}

// Approved reports whether a customer has completed the hosted checkout.
func (s *StripeSession) Approved() bool { return s.Customer != "" }

// Quantity returns the echoed line item quantity.
func (s *StripeSession) Quantity() int {
	n, err := strconv.Atoi(s.Metadata.Quantity)
	if err != nil {
		return 0
	}
	return n
}

// StripePauseCollection marks a subscription's billing as paused.
type StripePauseCollection struct {
	Behavior string `json:"behavior"`
}

// StripeSubscriptionItem is one line of a subscription.
type StripeSubscriptionItem struct {
	ID    string      `json:"id"`
	Price StripePrice `json:"price"`
}

// StripeSubscription is the subscription resource.
type StripeSubscription struct {
	ID              string                 `json:"id"`
	Status          string                 `json:"status"`
	PauseCollection *StripePauseCollection `json:"pause_collection"`
	Items           struct {
		Data []StripeSubscriptionItem `json:"data"`
	} `json:"items"`
}

// Active reports whether the subscription is billing and not paused.
func (s *StripeSubscription) Active() bool {
	return s.Status == stripeStatusActive && s.PauseCollection == nil
}

// PrimaryItem returns the subscription's first line item.
func (s *StripeSubscription) PrimaryItem() (StripeSubscriptionItem, bool) {
	if len(s.Items.Data) == 0 {
		return StripeSubscriptionItem{}, false
	}
	return s.Items.Data[0], true
}
