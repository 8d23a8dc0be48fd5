package checkout

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/harborpay/checkout/internal/transport"
)

// fakeStripe emulates the Stripe endpoints the adapter touches, recording
// every submitted form.
type fakeStripe struct {
	mu       sync.Mutex
	srv      *httptest.Server
	forms    map[string]url.Values
	paths    []string
	customer string
	paused   bool
}

func newFakeStripe(t *testing.T) *fakeStripe {
	t.Helper()
	f := &fakeStripe{forms: map[string]url.Values{}}
	f.srv = httptest.NewServer(http.HandlerFunc(f.handle))
	t.Cleanup(f.srv.Close)
	return f
}

func (f *fakeStripe) handle(w http.ResponseWriter, r *http.Request) {
	_ = r.ParseForm()
	f.mu.Lock()
	key := r.Method + " " + r.URL.Path
	f.paths = append(f.paths, key)
	if len(r.PostForm) > 0 {
		f.forms[key] = r.PostForm
	}
	customer := f.customer
	paused := f.paused
	f.mu.Unlock()

	if !strings.HasPrefix(r.Header.Get("Authorization"), "Bearer sk_") {
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"error":{"message":"invalid api key"}}`))
		return
	}

	w.Header().Set("Content-Type", "application/json")
	switch {
	case r.Method == http.MethodPost && r.URL.Path == "/v1/products":
		_ = json.NewEncoder(w).Encode(StripeProduct{ID: "prod_1", Name: r.PostForm.Get("name")})

	case r.Method == http.MethodPost && r.URL.Path == "/v1/prices":
		_ = json.NewEncoder(w).Encode(StripePrice{ID: "price_1", Nickname: r.PostForm.Get("nickname")})

	case r.Method == http.MethodPost && r.URL.Path == "/v1/checkout/sessions":
		_ = json.NewEncoder(w).Encode(StripeSession{
			ID:   "cs_1",
			Mode: r.PostForm.Get("mode"),
			URL:  f.srv.URL + "/pay/cs_1",
			Metadata: StripeSessionMetadata{
				Product:   r.PostForm.Get("metadata[product]"),
				Quantity:  r.PostForm.Get("metadata[quantity]"),
				UnitPrice: r.PostForm.Get("metadata[unit_price]"),
			},
		})

	case r.Method == http.MethodGet && strings.HasPrefix(r.URL.Path, "/v1/checkout/sessions/"):
		session := StripeSession{
			ID:       "cs_1",
			Mode:     stripeModeSubscription,
			Customer: customer,
			Currency: "usd",
			Metadata: StripeSessionMetadata{Product: "Gold", Quantity: "1", UnitPrice: "9.99"},
		}
		if customer != "" {
			session.Subscription = "sub_1"
		}
		_ = json.NewEncoder(w).Encode(session)

	case strings.HasPrefix(r.URL.Path, "/v1/subscriptions/"):
		sub := StripeSubscription{ID: "sub_1", Status: stripeStatusActive}
		if paused {
			sub.PauseCollection = &StripePauseCollection{Behavior: stripePauseVoid}
		}
		sub.Items.Data = []StripeSubscriptionItem{{
			ID: "si_1",
			Price: StripePrice{
				ID:         "price_1",
				Nickname:   "Gold",
				UnitAmount: 999,
				Currency:   "usd",
				Product:    "prod_1",
				Recurring:  &StripeRecurring{Interval: "month", IntervalCount: 1},
			},
		}}
		_ = json.NewEncoder(w).Encode(sub)

	default:
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`{"error":{"message":"not found"}}`))
	}
}

func (f *fakeStripe) setCustomer(id string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.customer = id
}

func (f *fakeStripe) form(key string) url.Values {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.forms[key]
}

// fakeRedirect records the redirect document lifecycle.
type fakeRedirect struct {
	mu      sync.Mutex
	written []string
	removed []string
}

func (f *fakeRedirect) Write(sessionID, publishableKey string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.written = append(f.written, sessionID+"|"+publishableKey)
	return "/tmp/checkout-" + sessionID + ".html", nil
}

func (f *fakeRedirect) Remove(sessionID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.removed = append(f.removed, sessionID)
	return nil
}

func newStripeUnderTest(t *testing.T, f *fakeStripe, surface ApprovalSurface, opener URLOpener, redirect RedirectWriter) *StripeClient {
	t.Helper()
	return NewStripe(StripeConfig{
		BaseURL:        f.srv.URL,
		SecretKey:      "sk_test_123",
		PublishableKey: "pk_test_123",
		CurrencyCode:   "USD",
		SuccessURL:     "https://shop.example/success",
		CancelURL:      "https://shop.example/cancel",
		PollInterval:   5 * time.Millisecond,
	}, transport.New(time.Second, zerolog.Nop()), surface, opener, redirect, zerolog.Nop())
}

func TestStripeSubscriptionChain(t *testing.T) {
	f := newFakeStripe(t)
	surface := newMemorySurface()
	opener := &recordOpener{}
	client := newStripeUnderTest(t, f, surface, opener, nil)
	ctx := context.Background()

	cb, wait := awaitCallback(t)
	client.CreateSubscription(ctx, PlanSpec{Name: "Gold", Price: "9.99", Period: PeriodMonth, Intervals: 1}, cb)
	ok, data := wait()
	require.True(t, ok)
	session := data.(*StripeSession)
	require.Equal(t, "cs_1", session.ID)

	priceForm := f.form("POST /v1/prices")
	require.Equal(t, "999", priceForm.Get("unit_amount"))
	require.Equal(t, "usd", priceForm.Get("currency"))
	require.Equal(t, "prod_1", priceForm.Get("product"))
	require.Equal(t, "month", priceForm.Get("recurring[interval]"))
	require.Equal(t, "1", priceForm.Get("recurring[interval_count]"))

	sessionForm := f.form("POST /v1/checkout/sessions")
	require.Equal(t, stripeModeSubscription, sessionForm.Get("mode"))
	require.Equal(t, "card", sessionForm.Get("payment_method_types[0]"))
	require.Equal(t, "price_1", sessionForm.Get("line_items[0][price]"))
	require.Equal(t, "Gold", sessionForm.Get("metadata[product]"))
	require.Equal(t, "9.99", sessionForm.Get("metadata[unit_price]"))

	require.Equal(t, []string{f.srv.URL + "/pay/cs_1"}, opener.opened())
	require.True(t, surface.Displayed(ctx, "cs_1"))
}

func TestStripeOrderUsesPaymentMode(t *testing.T) {
	f := newFakeStripe(t)
	client := newStripeUnderTest(t, f, nil, nil, nil)

	cb, wait := awaitCallback(t)
	client.CreateOrder(context.Background(), Item{Name: "Widget", UnitPrice: "4.99", Quantity: 2}, cb)
	ok, _ := wait()
	require.True(t, ok)

	priceForm := f.form("POST /v1/prices")
	require.Equal(t, "499", priceForm.Get("unit_amount"))
	require.Empty(t, priceForm.Get("recurring[interval]"))

	sessionForm := f.form("POST /v1/checkout/sessions")
	require.Equal(t, stripeModePayment, sessionForm.Get("mode"))
	require.Equal(t, "2", sessionForm.Get("line_items[0][quantity]"))
	require.Equal(t, "2", sessionForm.Get("metadata[quantity]"))
}

func TestStripeApprovalOnCustomerAssignment(t *testing.T) {
	f := newFakeStripe(t)
	surface := newMemorySurface()
	redirect := &fakeRedirect{}
	client := newStripeUnderTest(t, f, surface, nil, redirect)
	ctx := context.Background()

	require.NoError(t, surface.Show(ctx, "cs_1"))
	f.setCustomer("cus_1")

	cb, wait := awaitCallback(t)
	client.WaitForApproval(ctx, "cs_1", cb)
	ok, data := wait()
	require.True(t, ok)
	session := data.(*StripeSession)
	require.Equal(t, "cs_1", session.ID)
	require.Equal(t, "sub_1", session.Subscription)

	require.Eventually(t, func() bool {
		redirect.mu.Lock()
		defer redirect.mu.Unlock()
		return len(redirect.removed) == 1 && redirect.removed[0] == "cs_1"
	}, time.Second, 5*time.Millisecond)
}

func TestStripeRedirectRemovedOnAbandonment(t *testing.T) {
	f := newFakeStripe(t)
	surface := newMemorySurface()
	redirect := &fakeRedirect{}
	client := newStripeUnderTest(t, f, surface, nil, redirect)
	ctx := context.Background()

	require.NoError(t, surface.Show(ctx, "cs_1"))

	fired := make(chan struct{}, 1)
	client.WaitForApproval(ctx, "cs_1", func(ok bool, data any) {
		fired <- struct{}{}
	})

	time.Sleep(25 * time.Millisecond)
	require.NoError(t, surface.Hide(ctx, "cs_1"))

	select {
	case <-fired:
		t.Fatal("callback fired after abandonment")
	case <-time.After(100 * time.Millisecond):
	}
	require.Eventually(t, func() bool {
		redirect.mu.Lock()
		defer redirect.mu.Unlock()
		return len(redirect.removed) == 1
	}, time.Second, 5*time.Millisecond)
}

func TestStripeRedirectDocumentPreferred(t *testing.T) {
	f := newFakeStripe(t)
	opener := &recordOpener{}
	redirect := &fakeRedirect{}
	client := newStripeUnderTest(t, f, nil, opener, redirect)

	cb, wait := awaitCallback(t)
	client.CreateOrder(context.Background(), Item{Name: "Widget", UnitPrice: "4.99", Quantity: 1}, cb)
	ok, _ := wait()
	require.True(t, ok)

	redirect.mu.Lock()
	written := append([]string(nil), redirect.written...)
	redirect.mu.Unlock()
	require.Equal(t, []string{"cs_1|pk_test_123"}, written)
	require.Equal(t, []string{"/tmp/checkout-cs_1.html"}, opener.opened())
}

func TestStripeConfirmPurchasePanics(t *testing.T) {
	f := newFakeStripe(t)
	client := newStripeUnderTest(t, f, nil, nil, nil)

	defer func() {
		recovered := recover()
		require.NotNil(t, recovered)
		err, ok := recovered.(error)
		require.True(t, ok)
		require.True(t, errors.Is(err, ErrConfirmUnsupported))
	}()
	client.ConfirmPurchase(context.Background(), "cs_1", func(bool, any) {})
	t.Fatal("expected panic")
}

func TestStripePauseAndResumeForms(t *testing.T) {
	f := newFakeStripe(t)
	client := newStripeUnderTest(t, f, nil, nil, nil)
	ctx := context.Background()

	cb, wait := awaitCallback(t)
	client.DeactivateSubscription(ctx, "sub_1", cb)
	ok, _ := wait()
	require.True(t, ok)
	form := f.form("POST /v1/subscriptions/sub_1")
	require.Equal(t, stripePauseVoid, form.Get("pause_collection[behavior]"))

	cb, wait = awaitCallback(t)
	client.ActivateSubscription(ctx, "sub_1", cb)
	ok, _ = wait()
	require.True(t, ok)
	form = f.form("POST /v1/subscriptions/sub_1")
	require.True(t, form.Has("pause_collection"))
	require.Empty(t, form.Get("pause_collection"))
}

func TestStripeUpdatePricingSwapsItemPrice(t *testing.T) {
	f := newFakeStripe(t)
	client := newStripeUnderTest(t, f, nil, nil, nil)

	cb, wait := awaitCallback(t)
	client.UpdateSubscriptionPricing(context.Background(), "sub_1", "12.99", cb)
	ok, _ := wait()
	require.True(t, ok)

	form := f.form("POST /v1/subscriptions/sub_1")
	require.Equal(t, "si_1", form.Get("items[0][id]"))
	require.Equal(t, "1299", form.Get("items[0][price_data][unit_amount]"))
	require.Equal(t, "usd", form.Get("items[0][price_data][currency]"))
	require.Equal(t, "prod_1", form.Get("items[0][price_data][product]"))
	require.Equal(t, "month", form.Get("items[0][price_data][recurring][interval]"))
}

func TestStripeSubscriptionDetailsResolvesSession(t *testing.T) {
	f := newFakeStripe(t)
	f.setCustomer("cus_1")
	client := newStripeUnderTest(t, f, nil, nil, nil)

	cb, wait := awaitCallback(t)
	client.GetSubscriptionDetails(context.Background(), "cs_1", cb)
	ok, data := wait()
	require.True(t, ok)
	detail := data.(SubscriptionDetail)
	require.Equal(t, ProviderStripe, detail.Provider)
	require.Equal(t, "sub_1", detail.InternalID())
	require.Equal(t, "cs_1", detail.StripeSession.ID)
}

func TestStripeSubscriptionDetailsWithoutSubscriptionFails(t *testing.T) {
	f := newFakeStripe(t)
	client := newStripeUnderTest(t, f, nil, nil, nil)

	cb, wait := awaitCallback(t)
	client.GetSubscriptionDetails(context.Background(), "cs_1", cb)
	ok, _ := wait()
	require.False(t, ok)
}
