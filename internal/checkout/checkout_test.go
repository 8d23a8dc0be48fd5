package checkout

import (
	"context"
	"sync"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

// scriptedClient is a programmable Client for orchestrator tests. Each
// operation records the ids it received and replies synchronously.
type scriptedClient struct {
	provider Provider
	messages Messages

	mu        sync.Mutex
	calls     []string
	confirmed []string
	activated []string
	repriced  []string

	createOrderResult any
	createSubResult   any
	approvalResult    any
	approvalSilent    bool
	subDetail         SubscriptionDetail
	subDetailErr      string
	orderDetail       OrderDetail
	failCreate        bool
}

func (c *scriptedClient) record(op string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls = append(c.calls, op)
}

func (c *scriptedClient) called(op string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, call := range c.calls {
		if call == op {
			return true
		}
	}
	return false
}

func (c *scriptedClient) Provider() Provider       { return c.provider }
func (c *scriptedClient) MessageConfig() *Messages { return &c.messages }

func (c *scriptedClient) CreateOrder(ctx context.Context, item Item, cb Callback) {
	c.record("create_order")
	if c.failCreate {
		cb(false, `{"error":"create rejected"}`)
		return
	}
	cb(true, c.createOrderResult)
}

func (c *scriptedClient) WaitForApproval(ctx context.Context, id string, cb Callback) {
	c.record("wait_for_approval")
	if c.approvalSilent {
		return
	}
	cb(true, c.approvalResult)
}

func (c *scriptedClient) ConfirmPurchase(ctx context.Context, orderID string, cb Callback) {
	c.record("confirm_purchase")
	c.mu.Lock()
	c.confirmed = append(c.confirmed, orderID)
	c.mu.Unlock()
	cb(true, orderID)
}

func (c *scriptedClient) GetOrderDetails(ctx context.Context, orderID string, cb Callback) {
	c.record("get_order_details")
	cb(true, c.orderDetail)
}

func (c *scriptedClient) CreateSubscription(ctx context.Context, plan PlanSpec, cb Callback) {
	c.record("create_subscription")
	cb(true, c.createSubResult)
}

func (c *scriptedClient) ActivateSubscription(ctx context.Context, id string, cb Callback) {
	c.record("activate_subscription")
	c.mu.Lock()
	c.activated = append(c.activated, id)
	c.mu.Unlock()
	cb(true, id)
}

func (c *scriptedClient) DeactivateSubscription(ctx context.Context, id string, cb Callback) {
	c.record("deactivate_subscription")
	c.mu.Lock()
	c.activated = append(c.activated, id)
	c.mu.Unlock()
	cb(true, id)
}

func (c *scriptedClient) UpdateSubscriptionPricing(ctx context.Context, id, price string, cb Callback) {
	c.record("update_pricing")
	c.mu.Lock()
	c.repriced = append(c.repriced, id+"@"+price)
	c.mu.Unlock()
	cb(true, id)
}

func (c *scriptedClient) GetSubscriptionDetails(ctx context.Context, id string, cb Callback) {
	c.record("get_subscription_details")
	if c.subDetailErr != "" {
		cb(false, c.subDetailErr)
		return
	}
	cb(true, c.subDetail)
}

func TestBuyConfirmsPayPalOrders(t *testing.T) {
	client := &scriptedClient{
		provider:          ProviderPayPal,
		createOrderResult: &PayPalOrder{ID: "ORD-1", Status: paypalStatusCreated},
		approvalResult:    &PayPalOrder{ID: "ORD-1", Status: paypalStatusApproved},
	}
	orc := NewOrchestrator(client, zerolog.Nop())

	var stages []string
	cb, wait := awaitCallback(t)
	orc.Buy(context.Background(), Item{Name: "Widget", UnitPrice: "4.99", Quantity: 2},
		func(stage, ref string) { stages = append(stages, stage+":"+ref) }, cb)

	ok, data := wait()
	require.True(t, ok)
	require.Equal(t, "ORD-1", data)
	require.True(t, client.called("confirm_purchase"))
	require.Equal(t, []string{"created:ORD-1", "approved:ORD-1", "completed:ORD-1"}, stages)
}

func TestBuySkipsConfirmForStripe(t *testing.T) {
	client := &scriptedClient{
		provider:          ProviderStripe,
		createOrderResult: &StripeSession{ID: "cs_1"},
		approvalResult:    &StripeSession{ID: "cs_1", Customer: "cus_1"},
	}
	orc := NewOrchestrator(client, zerolog.Nop())

	cb, wait := awaitCallback(t)
	orc.Buy(context.Background(), Item{Name: "Widget", UnitPrice: "4.99", Quantity: 1}, nil, cb)

	ok, data := wait()
	require.True(t, ok)
	require.Equal(t, "cs_1", data)
	require.False(t, client.called("confirm_purchase"))
}

func TestBuyFailurePassesRawBodyThrough(t *testing.T) {
	client := &scriptedClient{provider: ProviderPayPal, failCreate: true}
	orc := NewOrchestrator(client, zerolog.Nop())

	cb, wait := awaitCallback(t)
	orc.Buy(context.Background(), Item{Name: "Widget", UnitPrice: "4.99", Quantity: 1}, nil, cb)

	ok, data := wait()
	require.False(t, ok)
	require.Equal(t, `{"error":"create rejected"}`, data)
	require.False(t, client.called("wait_for_approval"))
}

func TestBuyAbandonedWaitStaysSilent(t *testing.T) {
	client := &scriptedClient{
		provider:          ProviderPayPal,
		createOrderResult: &PayPalOrder{ID: "ORD-1"},
		approvalSilent:    true,
	}
	orc := NewOrchestrator(client, zerolog.Nop())

	fired := make(chan struct{}, 1)
	orc.Buy(context.Background(), Item{Name: "Widget", UnitPrice: "4.99", Quantity: 1}, nil,
		func(bool, any) { fired <- struct{}{} })

	select {
	case <-fired:
		t.Fatal("callback fired for an abandoned checkout")
	default:
	}
	require.False(t, client.called("confirm_purchase"))
}

func TestSubscribeReportsReference(t *testing.T) {
	client := &scriptedClient{
		provider:        ProviderPayPal,
		createSubResult: &PayPalSubscription{ID: "I-SUB1", Status: paypalStatusApprovalPending},
		approvalResult:  &PayPalSubscription{ID: "I-SUB1", Status: paypalStatusActive},
	}
	orc := NewOrchestrator(client, zerolog.Nop())

	cb, wait := awaitCallback(t)
	orc.Subscribe(context.Background(), PlanSpec{Name: "Gold", Price: "9.99", Period: PeriodMonth, Intervals: 1}, nil, cb)

	ok, data := wait()
	require.True(t, ok)
	require.Equal(t, "I-SUB1", data)
	require.False(t, client.called("confirm_purchase"))
}

// Mutating operations must act on the id the detail fetch reveals, never on
// the id the caller holds.
func TestActivateResolvesProviderInternalID(t *testing.T) {
	client := &scriptedClient{
		provider: ProviderPayPal,
		subDetail: SubscriptionDetail{
			Provider:           ProviderPayPal,
			PayPalSubscription: &PayPalSubscription{ID: "I-SUB1", PlanID: "P-1"},
			PayPalPlan:         &PayPalPlan{ID: "P-1", Name: "Gold"},
		},
	}
	orc := NewOrchestrator(client, zerolog.Nop())

	cb, wait := awaitCallback(t)
	orc.ActivateSubscription(context.Background(), "I-SUB1", cb)
	ok, _ := wait()
	require.True(t, ok)
	require.True(t, client.called("get_subscription_details"))
	require.Equal(t, []string{"P-1"}, client.activated)
}

func TestUpdatePricingResolvesStripeSubscriptionID(t *testing.T) {
	client := &scriptedClient{
		provider: ProviderStripe,
		subDetail: SubscriptionDetail{
			Provider:      ProviderStripe,
			StripeSession: &StripeSession{ID: "cs_1", Subscription: "sub_1"},
			Stripe:        &StripeSubscription{ID: "sub_1", Status: stripeStatusActive},
		},
	}
	orc := NewOrchestrator(client, zerolog.Nop())

	cb, wait := awaitCallback(t)
	orc.UpdateSubscriptionPricing(context.Background(), "cs_1", "12.99", cb)
	ok, _ := wait()
	require.True(t, ok)
	require.Equal(t, []string{"sub_1@12.99"}, client.repriced)
}

func TestActivateFailsWhenDetailFetchFails(t *testing.T) {
	client := &scriptedClient{provider: ProviderStripe, subDetailErr: `{"error":"no such session"}`}
	orc := NewOrchestrator(client, zerolog.Nop())

	cb, wait := awaitCallback(t)
	orc.ActivateSubscription(context.Background(), "cs_missing", cb)
	ok, data := wait()
	require.False(t, ok)
	require.Equal(t, `{"error":"no such session"}`, data)
	require.False(t, client.called("activate_subscription"))
}

func TestOrderDataDerivationIsPure(t *testing.T) {
	paypal := OrderDetail{
		Provider: ProviderPayPal,
		PayPal: &PayPalOrder{
			ID:     "ORD-1",
			Status: paypalStatusCompleted,
			PurchaseUnits: []PayPalPurchaseUnit{{
				Amount: PayPalOrderAmount{
					CurrencyCode: "USD",
					Value:        "9.98",
					Breakdown:    &PayPalBreakdown{ItemTotal: PayPalAmount{CurrencyCode: "USD", Value: "9.98"}},
				},
				Items: []PayPalItem{{
					Name:       "Widget",
					Quantity:   "2",
					UnitAmount: PayPalAmount{CurrencyCode: "USD", Value: "4.99"},
				}},
			}},
		},
	}
	stripe := OrderDetail{
		Provider: ProviderStripe,
		Stripe: &StripeSession{
			ID:       "cs_1",
			Currency: "usd",
			Metadata: StripeSessionMetadata{Product: "Widget", Quantity: "2", UnitPrice: "4.99"},
		},
	}

	for _, detail := range []OrderDetail{paypal, stripe} {
		first, err := OrderDataFrom(detail)
		require.NoError(t, err)
		second, err := OrderDataFrom(detail)
		require.NoError(t, err)
		require.Equal(t, first, second)
		require.Equal(t, "Widget", first.Product)
		require.Equal(t, "4.99", first.UnitPrice)
		require.Equal(t, "9.98", first.Total)
		require.Equal(t, 2, first.Quantity)
		require.Equal(t, "USD", first.Currency)
	}
}

func TestSubscriptionDataDerivationIsPure(t *testing.T) {
	paypal := SubscriptionDetail{
		Provider:           ProviderPayPal,
		PayPalSubscription: &PayPalSubscription{ID: "I-SUB1", Status: paypalStatusActive},
		PayPalPlan: &PayPalPlan{
			ID:     "P-1",
			Name:   "Gold",
			Status: paypalStatusActive,
			BillingCycles: []PayPalBillingCycle{{
				TenureType: "REGULAR",
				Frequency:  PayPalFrequency{IntervalUnit: "MONTH", IntervalCount: 1},
				PricingScheme: PayPalPricingScheme{
					FixedPrice: PayPalAmount{CurrencyCode: "USD", Value: "9.99"},
				},
			}},
		},
	}
	stripe := SubscriptionDetail{
		Provider:      ProviderStripe,
		StripeSession: &StripeSession{ID: "cs_1", Subscription: "sub_1"},
		Stripe: func() *StripeSubscription {
			sub := &StripeSubscription{ID: "sub_1", Status: stripeStatusActive}
			sub.Items.Data = []StripeSubscriptionItem{{
				ID: "si_1",
				Price: StripePrice{
					Nickname:   "Gold",
					UnitAmount: 999,
					Recurring:  &StripeRecurring{Interval: "month", IntervalCount: 1},
				},
			}}
			return sub
		}(),
	}

	for _, detail := range []SubscriptionDetail{paypal, stripe} {
		first, err := SubscriptionDataFrom(detail)
		require.NoError(t, err)
		second, err := SubscriptionDataFrom(detail)
		require.NoError(t, err)
		require.Equal(t, first, second)
		require.Equal(t, "Gold", first.Plan)
		require.Equal(t, "9.99", first.Price)
		require.Equal(t, PeriodMonth, first.Period)
		require.Equal(t, 1, first.Intervals)
		require.True(t, first.Active)
	}
}

func TestDerivationRejectsMissingPayload(t *testing.T) {
	_, err := OrderDataFrom(OrderDetail{Provider: ProviderPayPal})
	require.Error(t, err)
	_, err = OrderDataFrom(OrderDetail{Provider: "unknown"})
	require.Error(t, err)
	_, err = SubscriptionDataFrom(SubscriptionDetail{Provider: ProviderStripe})
	require.Error(t, err)
}

func TestPausedStripeSubscriptionIsInactive(t *testing.T) {
	sub := &StripeSubscription{ID: "sub_1", Status: stripeStatusActive,
		PauseCollection: &StripePauseCollection{Behavior: stripePauseVoid}}
	sub.Items.Data = []StripeSubscriptionItem{{ID: "si_1", Price: StripePrice{Nickname: "Gold", UnitAmount: 999}}}

	record, err := SubscriptionDataFrom(SubscriptionDetail{Provider: ProviderStripe, Stripe: sub})
	require.NoError(t, err)
	require.False(t, record.Active)
	require.Equal(t, stripeStatusActive, record.Status)
}
