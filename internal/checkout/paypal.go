package checkout

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/harborpay/checkout/internal/transport"
)

// PayPalConfig carries credentials and endpoints for the PayPal adapter.
type PayPalConfig struct {
	BaseURL      string
	ClientID     string
	ClientSecret string
	CurrencyCode string
	SuccessURL   string
	CancelURL    string
	PollInterval time.Duration
}

// PayPalClient drives checkout flows against the PayPal JSON API. Orders
// follow create, approve, poll, capture; subscriptions chain product, plan,
// subscription before the same approval poll.
type PayPalClient struct {
	cfg       PayPalConfig
	transport *transport.Client
	surface   ApprovalSurface
	opener    URLOpener
	logger    zerolog.Logger
	messages  Messages

	mu          sync.Mutex
	token       string
	tokenExpiry time.Time
}

// NewPayPal constructs the PayPal adapter. surface and opener may be nil
// for headless use; polling then runs until approval or cancellation.
func NewPayPal(cfg PayPalConfig, tc *transport.Client, surface ApprovalSurface, opener URLOpener, logger zerolog.Logger) *PayPalClient {
	return &PayPalClient{
		cfg:       cfg,
		transport: tc,
		surface:   surface,
		opener:    opener,
		logger:    logger.With().Str("provider", string(ProviderPayPal)).Logger(),
		messages:  DefaultMessages(),
	}
}

// Provider returns the adapter's tag.
func (c *PayPalClient) Provider() Provider { return ProviderPayPal }

// MessageConfig exposes the mutable UI copy carried by this client.
func (c *PayPalClient) MessageConfig() *Messages { return &c.messages }

func (c *PayPalClient) endpoint(path string) string {
	return strings.TrimSuffix(c.cfg.BaseURL, "/") + "/" + path
}

// accessToken returns a cached bearer token, re-acquiring it shortly before
// expiry. PayPal tokens are shared by every call the adapter makes.
func (c *PayPalClient) accessToken(ctx context.Context) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.token != "" && time.Now().Before(c.tokenExpiry.Add(-30*time.Second)) {
		return c.token, nil
	}

	form := url.Values{}
	form.Set("grant_type", "client_credentials")
	header := http.Header{}
	creds := base64.StdEncoding.EncodeToString([]byte(c.cfg.ClientID + ":" + c.cfg.ClientSecret))
	header.Set("Authorization", "Basic "+creds)

	resp, err := c.transport.Do(ctx, transport.Request{
		Method: http.MethodPost,
		URL:    c.endpoint("v1/oauth2/token"),
		Form:   form,
		Header: header,
	})
	if err != nil {
		countTokenRefresh(ProviderPayPal, "error")
		return "", fmt.Errorf("paypal token: %w", err)
	}
	if !resp.Success() {
		countTokenRefresh(ProviderPayPal, "rejected")
		return "", fmt.Errorf("paypal token: %s", resp.Body)
	}
	var token payPalTokenResponse
	if err := json.Unmarshal([]byte(resp.Body), &token); err != nil {
		countTokenRefresh(ProviderPayPal, "error")
		return "", fmt.Errorf("paypal token: %w", err)
	}
	countTokenRefresh(ProviderPayPal, "ok")
	c.token = token.AccessToken
	c.tokenExpiry = time.Now().Add(time.Duration(token.ExpiresIn) * time.Second)
	c.logger.Debug().Time("expiry", c.tokenExpiry).Msg("paypal_token_acquired")
	return c.token, nil
}

func (c *PayPalClient) do(ctx context.Context, op, method, path string, body any) (transport.Response, error) {
	token, err := c.accessToken(ctx)
	if err != nil {
		return transport.Response{}, err
	}
	header := http.Header{}
	header.Set("Authorization", "Bearer "+token)
	start := time.Now()
	resp, err := c.transport.Do(ctx, transport.Request{
		Method: method,
		URL:    c.endpoint(path),
		JSON:   body,
		Header: header,
	})
	observeProviderRequest(ProviderPayPal, op, start)
	return resp, err
}

// CreateOrder creates a one-time purchase order, opens its approval link,
// and shows the waiting surface. The callback receives the created order.
func (c *PayPalClient) CreateOrder(ctx context.Context, item Item, cb Callback) {
	go c.createOrder(ctx, item, cb)
}

func (c *PayPalClient) createOrder(ctx context.Context, item Item, cb Callback) {
	total, err := MultiplyPrice(item.UnitPrice, item.Quantity)
	if err != nil {
		cb(false, err.Error())
		return
	}
	currency := c.cfg.CurrencyCode
	order := PayPalOrder{
		Intent: "CAPTURE",
		PurchaseUnits: []PayPalPurchaseUnit{{
			Amount: PayPalOrderAmount{
				CurrencyCode: currency,
				Value:        total,
				Breakdown: &PayPalBreakdown{
					ItemTotal: PayPalAmount{CurrencyCode: currency, Value: total},
				},
			},
			Items: []PayPalItem{{
				Name:       item.Name,
				UnitAmount: PayPalAmount{CurrencyCode: currency, Value: item.UnitPrice},
				Quantity:   strconv.Itoa(item.Quantity),
			}},
		}},
	}

	resp, err := c.do(ctx, "create_order", http.MethodPost, "v2/checkout/orders", order)
	if err != nil {
		cb(false, err.Error())
		return
	}
	if !resp.Success() {
		cb(false, resp.Body)
		return
	}
	var created PayPalOrder
	if err := json.Unmarshal([]byte(resp.Body), &created); err != nil {
		cb(false, resp.Body)
		return
	}
	if created.Status != paypalStatusCreated {
		cb(false, resp.Body)
		return
	}
	c.openApproval(ctx, created.ID, created.ApproveURL())
	cb(true, &created)
}

func (c *PayPalClient) openApproval(ctx context.Context, id, approveURL string) {
	if approveURL != "" && c.opener != nil {
		if err := c.opener.Open(ctx, approveURL); err != nil {
			c.logger.Warn().Err(err).Str("id", id).Msg("open_approval_url_failed")
		}
	}
	if c.surface != nil {
		if err := c.surface.Show(ctx, id); err != nil {
			c.logger.Warn().Err(err).Str("id", id).Msg("show_waiting_surface_failed")
		}
	}
}

// WaitForApproval polls the order or subscription until the user approves
// it. The callback never fires when the wait is abandoned.
func (c *PayPalClient) WaitForApproval(ctx context.Context, id string, cb Callback) {
	go c.waitForApproval(ctx, id, cb)
}

func (c *PayPalClient) waitForApproval(ctx context.Context, id string, cb Callback) {
	poller := Poller{
		Interval: c.cfg.PollInterval,
		Check: func(ctx context.Context) (bool, any, error) {
			return c.checkApproval(ctx, id)
		},
		StillWaiting: func(ctx context.Context) bool {
			return c.surface == nil || c.surface.Displayed(ctx, id)
		},
		OnSkip: countPollSkip,
	}
	payload, approved := poller.Run(ctx)
	if !approved {
		countPollTick(ProviderPayPal, "abandoned")
		countCheckoutAbandoned(ProviderPayPal)
		return
	}
	countPollTick(ProviderPayPal, "approved")
	if c.surface != nil {
		_ = c.surface.Hide(context.WithoutCancel(ctx), id)
	}
	cb(true, payload)
}

func (c *PayPalClient) checkApproval(ctx context.Context, id string) (bool, any, error) {
	if IsPayPalSubscriptionID(id) {
		resp, err := c.do(ctx, "get_subscription", http.MethodGet, "v1/billing/subscriptions/"+id, nil)
		if err != nil {
			return false, nil, err
		}
		if !resp.Success() {
			return false, nil, fmt.Errorf("paypal subscription poll: %s", resp.Body)
		}
		var sub PayPalSubscription
		if err := json.Unmarshal([]byte(resp.Body), &sub); err != nil {
			return false, nil, err
		}
		countPollTick(ProviderPayPal, "pending")
		return sub.Status == paypalStatusActive, &sub, nil
	}

	resp, err := c.do(ctx, "get_order", http.MethodGet, "v2/checkout/orders/"+id, nil)
	if err != nil {
		return false, nil, err
	}
	if !resp.Success() {
		return false, nil, fmt.Errorf("paypal order poll: %s", resp.Body)
	}
	var order PayPalOrder
	if err := json.Unmarshal([]byte(resp.Body), &order); err != nil {
		return false, nil, err
	}
	countPollTick(ProviderPayPal, "pending")
	return order.Status == paypalStatusApproved, &order, nil
}

// ConfirmPurchase captures an approved order. Subscription ids need no
// capture step and complete immediately.
func (c *PayPalClient) ConfirmPurchase(ctx context.Context, orderID string, cb Callback) {
	go c.confirmPurchase(ctx, orderID, cb)
}

func (c *PayPalClient) confirmPurchase(ctx context.Context, orderID string, cb Callback) {
	if IsPayPalSubscriptionID(orderID) {
		cb(true, orderID)
		return
	}
	resp, err := c.do(ctx, "capture_order", http.MethodPost, "v2/checkout/orders/"+orderID+"/capture", nil)
	if err != nil {
		cb(false, err.Error())
		return
	}
	if !resp.Success() {
		cb(false, resp.Body)
		return
	}
	var captured PayPalOrder
	if err := json.Unmarshal([]byte(resp.Body), &captured); err != nil {
		cb(false, resp.Body)
		return
	}
	if captured.Status != paypalStatusCompleted {
		cb(false, resp.Body)
		return
	}
	cb(true, captured.ID)
}

// GetOrderDetails fetches the order and reports it as a tagged detail.
func (c *PayPalClient) GetOrderDetails(ctx context.Context, orderID string, cb Callback) {
	go func() {
		resp, err := c.do(ctx, "get_order", http.MethodGet, "v2/checkout/orders/"+orderID, nil)
		if err != nil {
			cb(false, err.Error())
			return
		}
		if !resp.Success() {
			cb(false, resp.Body)
			return
		}
		var order PayPalOrder
		if err := json.Unmarshal([]byte(resp.Body), &order); err != nil {
			cb(false, resp.Body)
			return
		}
		cb(true, OrderDetail{Provider: ProviderPayPal, PayPal: &order})
	}()
}

// CreateSubscription chains product, plan, and subscription creation, then
// opens the approval link. Any step's failure short-circuits the chain with
// that step's raw response.
func (c *PayPalClient) CreateSubscription(ctx context.Context, plan PlanSpec, cb Callback) {
	go c.createSubscription(ctx, plan, cb)
}

func (c *PayPalClient) createSubscription(ctx context.Context, plan PlanSpec, cb Callback) {
	if !plan.Period.Valid() {
		cb(false, fmt.Sprintf("unsupported payment period %q", plan.Period))
		return
	}
	intervals := plan.Intervals
	if intervals <= 0 {
		intervals = 1
	}

	resp, err := c.do(ctx, "create_product", http.MethodPost, "v1/catalogs/products", PayPalProduct{
		Name: plan.Name,
		Type: "SERVICE",
	})
	if err != nil {
		cb(false, err.Error())
		return
	}
	if !resp.Success() {
		cb(false, resp.Body)
		return
	}
	var product PayPalProduct
	if err := json.Unmarshal([]byte(resp.Body), &product); err != nil {
		cb(false, resp.Body)
		return
	}

	currency := c.cfg.CurrencyCode
	planReq := PayPalPlan{
		ProductID: product.ID,
		Name:      plan.Name,
		BillingCycles: []PayPalBillingCycle{{
			Frequency: PayPalFrequency{
				IntervalUnit:  strings.ToUpper(string(plan.Period)),
				IntervalCount: intervals,
			},
			TenureType:  "REGULAR",
			Sequence:    1,
			TotalCycles: 0,
			PricingScheme: PayPalPricingScheme{
				FixedPrice: PayPalAmount{CurrencyCode: currency, Value: plan.Price},
			},
		}},
		PaymentPreferences: &PayPalPaymentPreferences{
			AutoBillOutstanding:     true,
			SetupFee:                PayPalAmount{CurrencyCode: currency, Value: "0"},
			SetupFeeFailureAction:   "CONTINUE",
			PaymentFailureThreshold: 2,
		},
	}
	resp, err = c.do(ctx, "create_plan", http.MethodPost, "v1/billing/plans", planReq)
	if err != nil {
		cb(false, err.Error())
		return
	}
	if !resp.Success() {
		cb(false, resp.Body)
		return
	}
	var createdPlan PayPalPlan
	if err := json.Unmarshal([]byte(resp.Body), &createdPlan); err != nil {
		cb(false, resp.Body)
		return
	}

	subReq := payPalSubscriptionRequest{
		PlanID: createdPlan.ID,
		ApplicationContext: payPalAppContext{
			ReturnURL: c.cfg.SuccessURL,
			CancelURL: c.cfg.CancelURL,
		},
	}
	resp, err = c.do(ctx, "create_subscription", http.MethodPost, "v1/billing/subscriptions", subReq)
	if err != nil {
		cb(false, err.Error())
		return
	}
	if !resp.Success() {
		cb(false, resp.Body)
		return
	}
	var sub PayPalSubscription
	if err := json.Unmarshal([]byte(resp.Body), &sub); err != nil {
		cb(false, resp.Body)
		return
	}
	if sub.Status != paypalStatusApprovalPending {
		cb(false, resp.Body)
		return
	}
	c.openApproval(ctx, sub.ID, sub.ApproveURL())
	cb(true, &sub)
}

// ActivateSubscription resumes billing on a plan.
func (c *PayPalClient) ActivateSubscription(ctx context.Context, planID string, cb Callback) {
	go c.togglePlan(ctx, planID, "activate", cb)
}

// DeactivateSubscription pauses billing on a plan.
func (c *PayPalClient) DeactivateSubscription(ctx context.Context, planID string, cb Callback) {
	go c.togglePlan(ctx, planID, "deactivate", cb)
}

func (c *PayPalClient) togglePlan(ctx context.Context, planID, action string, cb Callback) {
	resp, err := c.do(ctx, action+"_plan", http.MethodPost, "v1/billing/plans/"+planID+"/"+action, nil)
	if err != nil {
		cb(false, err.Error())
		return
	}
	if !resp.Success() {
		cb(false, resp.Body)
		return
	}
	cb(true, planID)
}

// UpdateSubscriptionPricing replaces the plan's fixed price for the first
// billing cycle.
func (c *PayPalClient) UpdateSubscriptionPricing(ctx context.Context, planID, price string, cb Callback) {
	go func() {
		body := payPalPricingUpdateRequest{
			PricingSchemes: []payPalPricingSchemeUpdate{{
				BillingCycleSequence: 1,
				PricingScheme: PayPalPricingScheme{
					FixedPrice: PayPalAmount{CurrencyCode: c.cfg.CurrencyCode, Value: price},
				},
			}},
		}
		resp, err := c.do(ctx, "update_pricing", http.MethodPost, "v1/billing/plans/"+planID+"/update-pricing-schemes", body)
		if err != nil {
			cb(false, err.Error())
			return
		}
		if !resp.Success() {
			cb(false, resp.Body)
			return
		}
		cb(true, planID)
	}()
}

// GetSubscriptionDetails fetches the subscription and its plan. The plan id
// is what plan-level operations need, so both travel in the detail.
func (c *PayPalClient) GetSubscriptionDetails(ctx context.Context, id string, cb Callback) {
	go c.getSubscriptionDetails(ctx, id, cb)
}

func (c *PayPalClient) getSubscriptionDetails(ctx context.Context, id string, cb Callback) {
	resp, err := c.do(ctx, "get_subscription", http.MethodGet, "v1/billing/subscriptions/"+id, nil)
	if err != nil {
		cb(false, err.Error())
		return
	}
	if !resp.Success() {
		cb(false, resp.Body)
		return
	}
	var sub PayPalSubscription
	if err := json.Unmarshal([]byte(resp.Body), &sub); err != nil {
		cb(false, resp.Body)
		return
	}

	resp, err = c.do(ctx, "get_plan", http.MethodGet, "v1/billing/plans/"+sub.PlanID, nil)
	if err != nil {
		cb(false, err.Error())
		return
	}
	if !resp.Success() {
		cb(false, resp.Body)
		return
	}
	var plan PayPalPlan
	if err := json.Unmarshal([]byte(resp.Body), &plan); err != nil {
		cb(false, resp.Body)
		return
	}
	cb(true, SubscriptionDetail{
		Provider:           ProviderPayPal,
		PayPalSubscription: &sub,
		PayPalPlan:         &plan,
	})
}
