package checkout

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/harborpay/checkout/internal/transport"
)

// StripeConfig carries credentials and endpoints for the Stripe adapter.
type StripeConfig struct {
	BaseURL        string
	SecretKey      string
	PublishableKey string
	CurrencyCode   string
	SuccessURL     string
	CancelURL      string
	PollInterval   time.Duration
}

// StripeClient drives checkout flows against the Stripe form-encoded API.
// One-time purchases and subscriptions share a single product, price,
// session chain; the hosted checkout page captures automatically.
type StripeClient struct {
	cfg       StripeConfig
	transport *transport.Client
	surface   ApprovalSurface
	opener    URLOpener
	redirect  RedirectWriter
	logger    zerolog.Logger
	messages  Messages
}

// NewStripe constructs the Stripe adapter. redirect may be nil, in which
// case the session's hosted URL is opened directly.
func NewStripe(cfg StripeConfig, tc *transport.Client, surface ApprovalSurface, opener URLOpener, redirect RedirectWriter, logger zerolog.Logger) *StripeClient {
	return &StripeClient{
		cfg:       cfg,
		transport: tc,
		surface:   surface,
		opener:    opener,
		redirect:  redirect,
		logger:    logger.With().Str("provider", string(ProviderStripe)).Logger(),
		messages:  DefaultMessages(),
	}
}

// Provider returns the adapter's tag.
func (c *StripeClient) Provider() Provider { return ProviderStripe }

// MessageConfig exposes the mutable UI copy carried by this client.
func (c *StripeClient) MessageConfig() *Messages { return &c.messages }

func (c *StripeClient) endpoint(path string) string {
	return strings.TrimSuffix(c.cfg.BaseURL, "/") + "/" + path
}

func (c *StripeClient) do(ctx context.Context, op, method, path string, form url.Values) (transport.Response, error) {
	header := http.Header{}
	header.Set("Authorization", "Bearer "+c.cfg.SecretKey)
	start := time.Now()
	resp, err := c.transport.Do(ctx, transport.Request{
		Method: method,
		URL:    c.endpoint(path),
		Form:   form,
		Header: header,
	})
	observeProviderRequest(ProviderStripe, op, start)
	return resp, err
}

// CreateOrder creates a one-time hosted checkout session for the item.
func (c *StripeClient) CreateOrder(ctx context.Context, item Item, cb Callback) {
	go c.createCheckout(ctx, item.Name, item.UnitPrice, item.Quantity, nil, cb)
}

// CreateSubscription creates a recurring hosted checkout session.
func (c *StripeClient) CreateSubscription(ctx context.Context, plan PlanSpec, cb Callback) {
	if !plan.Period.Valid() {
		go cb(false, fmt.Sprintf("unsupported payment period %q", plan.Period))
		return
	}
	intervals := plan.Intervals
	if intervals <= 0 {
		intervals = 1
	}
	recurring := &StripeRecurring{Interval: string(plan.Period), IntervalCount: intervals}
	go c.createCheckout(ctx, plan.Name, plan.Price, 1, recurring, cb)
}

// createCheckout is the shared product, price, session chain. A nil
// recurring descriptor selects a one-time price.
func (c *StripeClient) createCheckout(ctx context.Context, name, price string, quantity int, recurring *StripeRecurring, cb Callback) {
	cents, err := ParseCents(price)
	if err != nil {
		cb(false, err.Error())
		return
	}
	if quantity <= 0 {
		cb(false, fmt.Sprintf("quantity must be positive, got %d", quantity))
		return
	}

	form := url.Values{}
	form.Set("name", name)
	resp, err := c.do(ctx, "create_product", http.MethodPost, "v1/products", form)
	if err != nil {
		cb(false, err.Error())
		return
	}
	if !resp.Success() {
		cb(false, resp.Body)
		return
	}
	var product StripeProduct
	if err := json.Unmarshal([]byte(resp.Body), &product); err != nil {
		cb(false, resp.Body)
		return
	}

	form = url.Values{}
	form.Set("nickname", name)
	form.Set("unit_amount", strconv.FormatInt(cents, 10))
	form.Set("currency", strings.ToLower(c.cfg.CurrencyCode))
	form.Set("product", product.ID)
	if recurring != nil {
		form.Set("recurring[interval]", recurring.Interval)
		form.Set("recurring[interval_count]", strconv.Itoa(recurring.IntervalCount))
	}
	resp, err = c.do(ctx, "create_price", http.MethodPost, "v1/prices", form)
	if err != nil {
		cb(false, err.Error())
		return
	}
	if !resp.Success() {
		cb(false, resp.Body)
		return
	}
	var priceRes StripePrice
	if err := json.Unmarshal([]byte(resp.Body), &priceRes); err != nil {
		cb(false, resp.Body)
		return
	}

	mode := stripeModePayment
	if recurring != nil {
		mode = stripeModeSubscription
	}
	form = url.Values{}
	form.Set("mode", mode)
	form.Set("payment_method_types[0]", "card")
	form.Set("metadata[product]", name)
	form.Set("metadata[quantity]", strconv.Itoa(quantity))
	form.Set("metadata[unit_price]", price)
	form.Set("line_items[0][price]", priceRes.ID)
	form.Set("line_items[0][quantity]", strconv.Itoa(quantity))
	form.Set("success_url", c.cfg.SuccessURL)
	form.Set("cancel_url", c.cfg.CancelURL)
	resp, err = c.do(ctx, "create_session", http.MethodPost, "v1/checkout/sessions", form)
	if err != nil {
		cb(false, err.Error())
		return
	}
	if !resp.Success() {
		cb(false, resp.Body)
		return
	}
	var session StripeSession
	if err := json.Unmarshal([]byte(resp.Body), &session); err != nil {
		cb(false, resp.Body)
		return
	}

	c.openSession(ctx, &session)
	cb(true, &session)
}

// openSession hands the user to the hosted checkout page, preferring a
// generated redirect document over the raw session URL when a writer is
// configured.
func (c *StripeClient) openSession(ctx context.Context, session *StripeSession) {
	target := session.URL
	if c.redirect != nil {
		loc, err := c.redirect.Write(session.ID, c.cfg.PublishableKey)
		if err != nil {
			c.logger.Warn().Err(err).Str("session", session.ID).Msg("write_redirect_failed")
		} else {
			target = loc
		}
	}
	if target != "" && c.opener != nil {
		if err := c.opener.Open(ctx, target); err != nil {
			c.logger.Warn().Err(err).Str("session", session.ID).Msg("open_session_url_failed")
		}
	}
	if c.surface != nil {
		if err := c.surface.Show(ctx, session.ID); err != nil {
			c.logger.Warn().Err(err).Str("session", session.ID).Msg("show_waiting_surface_failed")
		}
	}
}

// WaitForApproval polls the session until a customer is assigned. The
// redirect document, if any, is removed once polling concludes either way.
func (c *StripeClient) WaitForApproval(ctx context.Context, id string, cb Callback) {
	go c.waitForApproval(ctx, id, cb)
}

func (c *StripeClient) waitForApproval(ctx context.Context, id string, cb Callback) {
	defer func() {
		if c.redirect != nil {
			if err := c.redirect.Remove(id); err != nil {
				c.logger.Warn().Err(err).Str("session", id).Msg("remove_redirect_failed")
			}
		}
	}()

	poller := Poller{
		Interval: c.cfg.PollInterval,
		Check: func(ctx context.Context) (bool, any, error) {
			return c.checkSession(ctx, id)
		},
		StillWaiting: func(ctx context.Context) bool {
			return c.surface == nil || c.surface.Displayed(ctx, id)
		},
		OnSkip: countPollSkip,
	}
	payload, approved := poller.Run(ctx)
	if !approved {
		countPollTick(ProviderStripe, "abandoned")
		countCheckoutAbandoned(ProviderStripe)
		return
	}
	countPollTick(ProviderStripe, "approved")
	if c.surface != nil {
		_ = c.surface.Hide(context.WithoutCancel(ctx), id)
	}
	cb(true, payload)
}

func (c *StripeClient) checkSession(ctx context.Context, id string) (bool, any, error) {
	resp, err := c.do(ctx, "get_session", http.MethodGet, "v1/checkout/sessions/"+id, nil)
	if err != nil {
		return false, nil, err
	}
	if !resp.Success() {
		return false, nil, fmt.Errorf("stripe session poll: %s", resp.Body)
	}
	var session StripeSession
	if err := json.Unmarshal([]byte(resp.Body), &session); err != nil {
		return false, nil, err
	}
	countPollTick(ProviderStripe, "pending")
	return session.Approved(), &session, nil
}

// ConfirmPurchase is unsupported: the hosted checkout page captures
// automatically. Calling it is an integration bug and panics.
func (c *StripeClient) ConfirmPurchase(ctx context.Context, orderID string, cb Callback) {
	panic(ErrConfirmUnsupported)
}

// GetOrderDetails fetches the session and reports it as a tagged detail.
func (c *StripeClient) GetOrderDetails(ctx context.Context, sessionID string, cb Callback) {
	go func() {
		session, raw, err := c.getSession(ctx, sessionID)
		if err != nil {
			cb(false, raw)
			return
		}
		cb(true, OrderDetail{Provider: ProviderStripe, Stripe: session})
	}()
}

func (c *StripeClient) getSession(ctx context.Context, id string) (*StripeSession, string, error) {
	resp, err := c.do(ctx, "get_session", http.MethodGet, "v1/checkout/sessions/"+id, nil)
	if err != nil {
		return nil, err.Error(), err
	}
	if !resp.Success() {
		return nil, resp.Body, fmt.Errorf("stripe session: %s", resp.Body)
	}
	var session StripeSession
	if err := json.Unmarshal([]byte(resp.Body), &session); err != nil {
		return nil, resp.Body, err
	}
	return &session, resp.Body, nil
}

// ActivateSubscription resumes billing by clearing pause_collection.
func (c *StripeClient) ActivateSubscription(ctx context.Context, subscriptionID string, cb Callback) {
	form := url.Values{}
	form.Set("pause_collection", "")
	go c.mutateSubscription(ctx, "activate_subscription", subscriptionID, form, cb)
}

// DeactivateSubscription pauses billing by voiding pause_collection.
func (c *StripeClient) DeactivateSubscription(ctx context.Context, subscriptionID string, cb Callback) {
	form := url.Values{}
	form.Set("pause_collection[behavior]", stripePauseVoid)
	go c.mutateSubscription(ctx, "deactivate_subscription", subscriptionID, form, cb)
}

func (c *StripeClient) mutateSubscription(ctx context.Context, op, id string, form url.Values, cb Callback) {
	resp, err := c.do(ctx, op, http.MethodPost, "v1/subscriptions/"+id, form)
	if err != nil {
		cb(false, err.Error())
		return
	}
	if !resp.Success() {
		cb(false, resp.Body)
		return
	}
	cb(true, id)
}

// UpdateSubscriptionPricing swaps the subscription's first item onto a new
// inline price with the same cadence.
func (c *StripeClient) UpdateSubscriptionPricing(ctx context.Context, subscriptionID, price string, cb Callback) {
	go c.updateSubscriptionPricing(ctx, subscriptionID, price, cb)
}

func (c *StripeClient) updateSubscriptionPricing(ctx context.Context, subscriptionID, price string, cb Callback) {
	cents, err := ParseCents(price)
	if err != nil {
		cb(false, err.Error())
		return
	}
	sub, raw, err := c.getSubscription(ctx, subscriptionID)
	if err != nil {
		cb(false, raw)
		return
	}
	item, ok := sub.PrimaryItem()
	if !ok {
		cb(false, raw)
		return
	}

	form := url.Values{}
	form.Set("items[0][id]", item.ID)
	form.Set("items[0][price_data][currency]", strings.ToLower(c.cfg.CurrencyCode))
	form.Set("items[0][price_data][product]", item.Price.Product)
	form.Set("items[0][price_data][unit_amount]", strconv.FormatInt(cents, 10))
	if item.Price.Recurring != nil {
		form.Set("items[0][price_data][recurring][interval]", item.Price.Recurring.Interval)
		form.Set("items[0][price_data][recurring][interval_count]", strconv.Itoa(item.Price.Recurring.IntervalCount))
	}
	c.mutateSubscription(ctx, "update_pricing", subscriptionID, form, cb)
}

func (c *StripeClient) getSubscription(ctx context.Context, id string) (*StripeSubscription, string, error) {
	resp, err := c.do(ctx, "get_subscription", http.MethodGet, "v1/subscriptions/"+id, nil)
	if err != nil {
		return nil, err.Error(), err
	}
	if !resp.Success() {
		return nil, resp.Body, fmt.Errorf("stripe subscription: %s", resp.Body)
	}
	var sub StripeSubscription
	if err := json.Unmarshal([]byte(resp.Body), &sub); err != nil {
		return nil, resp.Body, err
	}
	return &sub, resp.Body, nil
}

// GetSubscriptionDetails resolves the session's subscription and reports
// both as a tagged detail. The id users hold is the session id; the
// subscription id only exists once checkout completes.
func (c *StripeClient) GetSubscriptionDetails(ctx context.Context, sessionID string, cb Callback) {
	go c.getSubscriptionDetails(ctx, sessionID, cb)
}

func (c *StripeClient) getSubscriptionDetails(ctx context.Context, sessionID string, cb Callback) {
	session, raw, err := c.getSession(ctx, sessionID)
	if err != nil {
		cb(false, raw)
		return
	}
	if session.Subscription == "" {
		cb(false, raw)
		return
	}
	sub, raw, err := c.getSubscription(ctx, session.Subscription)
	if err != nil {
		cb(false, raw)
		return
	}
	cb(true, SubscriptionDetail{
		Provider:      ProviderStripe,
		StripeSession: session,
		Stripe:        sub,
	})
}
