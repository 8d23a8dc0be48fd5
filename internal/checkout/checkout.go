package checkout

import (
	"context"
	"fmt"
	"strings"

	"github.com/rs/zerolog"
)

// Progress stages reported by Buy and Subscribe.
const (
	StageCreated   = "created"
	StageApproved  = "approved"
	StageCompleted = "completed"
)

// checkoutRef is implemented by provider resources that identify an
// in-flight checkout.
type checkoutRef interface {
	CheckoutRef() string
}

// CheckoutRef returns the order id.
func (o *PayPalOrder) CheckoutRef() string { return o.ID }

// CheckoutRef returns the subscription id.
func (s *PayPalSubscription) CheckoutRef() string { return s.ID }

// CheckoutRef returns the session id.
func (s *StripeSession) CheckoutRef() string { return s.ID }

// Orchestrator is the provider-agnostic checkout facade. It owns exactly
// one client for its lifetime; swapping providers means constructing a new
// orchestrator. Canonical record derivation happens only here, switching on
// the detail variant tag, never on a concrete client type.
type Orchestrator struct {
	client Client
	logger zerolog.Logger
}

// NewOrchestrator wires the facade around one provider client.
func NewOrchestrator(client Client, logger zerolog.Logger) *Orchestrator {
	return &Orchestrator{
		client: client,
		logger: logger.With().Str("component", "orchestrator").Logger(),
	}
}

// Provider returns the active client's tag.
func (o *Orchestrator) Provider() Provider { return o.client.Provider() }

// Messages exposes the active client's UI copy.
func (o *Orchestrator) Messages() *Messages { return o.client.MessageConfig() }

// Buy drives the full one-time purchase flow: create, wait for approval,
// confirm where the provider needs it. progress may be nil; it is told the
// provider-side reference as soon as one exists. The final callback
// receives the completed order or session id. An abandoned wait reports
// nothing, matching the poller's silence.
func (o *Orchestrator) Buy(ctx context.Context, item Item, progress func(stage, ref string), cb Callback) {
	countCheckoutStarted(o.client.Provider(), "order")
	o.client.CreateOrder(ctx, item, func(ok bool, data any) {
		if !ok {
			countCheckoutCompleted(o.client.Provider(), "order", "failed")
			cb(false, data)
			return
		}
		ref := refOf(data)
		o.notify(progress, StageCreated, ref)
		o.client.WaitForApproval(ctx, ref, func(ok bool, data any) {
			if !ok {
				countCheckoutCompleted(o.client.Provider(), "order", "failed")
				cb(false, data)
				return
			}
			o.notify(progress, StageApproved, ref)
			o.finishOrder(ctx, ref, progress, cb)
		})
	})
}

// finishOrder finalizes an approved purchase. PayPal orders need an
// explicit capture; Stripe's hosted page already captured.
func (o *Orchestrator) finishOrder(ctx context.Context, ref string, progress func(stage, ref string), cb Callback) {
	done := func(ok bool, data any) {
		result := "failed"
		if ok {
			result = "ok"
			o.notify(progress, StageCompleted, ref)
		}
		countCheckoutCompleted(o.client.Provider(), "order", result)
		cb(ok, data)
	}
	switch o.client.Provider() {
	case ProviderPayPal:
		o.client.ConfirmPurchase(ctx, ref, done)
	default:
		done(true, ref)
	}
}

// Subscribe drives the full subscription flow: create the provider's
// resource chain, then wait for approval. No capture step exists for either
// provider's subscriptions.
func (o *Orchestrator) Subscribe(ctx context.Context, plan PlanSpec, progress func(stage, ref string), cb Callback) {
	countCheckoutStarted(o.client.Provider(), "subscription")
	o.client.CreateSubscription(ctx, plan, func(ok bool, data any) {
		if !ok {
			countCheckoutCompleted(o.client.Provider(), "subscription", "failed")
			cb(false, data)
			return
		}
		ref := refOf(data)
		o.notify(progress, StageCreated, ref)
		o.client.WaitForApproval(ctx, ref, func(ok bool, data any) {
			if !ok {
				countCheckoutCompleted(o.client.Provider(), "subscription", "failed")
				cb(false, data)
				return
			}
			o.notify(progress, StageApproved, ref)
			o.notify(progress, StageCompleted, ref)
			countCheckoutCompleted(o.client.Provider(), "subscription", "ok")
			cb(true, ref)
		})
	})
}

// GetOrderData fetches raw order details and derives the canonical record.
func (o *Orchestrator) GetOrderData(ctx context.Context, id string, cb Callback) {
	o.client.GetOrderDetails(ctx, id, func(ok bool, data any) {
		if !ok {
			cb(false, data)
			return
		}
		detail, isDetail := data.(OrderDetail)
		if !isDetail {
			cb(false, "unexpected order detail payload")
			return
		}
		record, err := OrderDataFrom(detail)
		if err != nil {
			cb(false, err.Error())
			return
		}
		cb(true, record)
	})
}

// GetSubscriptionData fetches raw subscription details and derives the
// canonical record.
func (o *Orchestrator) GetSubscriptionData(ctx context.Context, id string, cb Callback) {
	o.client.GetSubscriptionDetails(ctx, id, func(ok bool, data any) {
		if !ok {
			cb(false, data)
			return
		}
		detail, isDetail := data.(SubscriptionDetail)
		if !isDetail {
			cb(false, "unexpected subscription detail payload")
			return
		}
		record, err := SubscriptionDataFrom(detail)
		if err != nil {
			cb(false, err.Error())
			return
		}
		cb(true, record)
	})
}

// ActivateSubscription resumes billing. The id callers hold is the
// subscribe-result id, not the id the provider mutates, so a detail fetch
// resolves it first.
func (o *Orchestrator) ActivateSubscription(ctx context.Context, id string, cb Callback) {
	o.resolveInternalID(ctx, id, cb, func(internalID string) {
		o.client.ActivateSubscription(ctx, internalID, cb)
	})
}

// DeactivateSubscription pauses billing, resolving the provider-internal id
// the same way as activation.
func (o *Orchestrator) DeactivateSubscription(ctx context.Context, id string, cb Callback) {
	o.resolveInternalID(ctx, id, cb, func(internalID string) {
		o.client.DeactivateSubscription(ctx, internalID, cb)
	})
}

// UpdateSubscriptionPricing changes the recurring price, resolving the
// provider-internal id first.
func (o *Orchestrator) UpdateSubscriptionPricing(ctx context.Context, id, price string, cb Callback) {
	o.resolveInternalID(ctx, id, cb, func(internalID string) {
		o.client.UpdateSubscriptionPricing(ctx, internalID, price, cb)
	})
}

func (o *Orchestrator) resolveInternalID(ctx context.Context, id string, cb Callback, next func(string)) {
	o.client.GetSubscriptionDetails(ctx, id, func(ok bool, data any) {
		if !ok {
			cb(false, data)
			return
		}
		detail, isDetail := data.(SubscriptionDetail)
		if !isDetail {
			cb(false, "unexpected subscription detail payload")
			return
		}
		internal := detail.InternalID()
		if internal == "" {
			cb(false, "subscription detail missing provider id")
			return
		}
		next(internal)
	})
}

func (o *Orchestrator) notify(progress func(stage, ref string), stage, ref string) {
	o.logger.Debug().Str("stage", stage).Str("ref", ref).Msg("checkout_progress")
	if progress != nil {
		progress(stage, ref)
	}
}

func refOf(data any) string {
	if r, ok := data.(checkoutRef); ok {
		return r.CheckoutRef()
	}
	return ""
}

// OrderDataFrom derives the canonical order record from a tagged detail.
// The derivation is pure: the same detail always yields the same record.
func OrderDataFrom(detail OrderDetail) (OrderData, error) {
	switch detail.Provider {
	case ProviderPayPal:
		order := detail.PayPal
		if order == nil {
			return OrderData{}, fmt.Errorf("order detail missing paypal payload")
		}
		return OrderData{
			Product:   order.Product(),
			UnitPrice: order.UnitPrice(),
			Total:     order.Total(),
			Quantity:  order.Quantity(),
			Currency:  order.Currency(),
		}, nil
	case ProviderStripe:
		session := detail.Stripe
		if session == nil {
			return OrderData{}, fmt.Errorf("order detail missing stripe payload")
		}
		quantity := session.Quantity()
		total, err := MultiplyPrice(session.Metadata.UnitPrice, quantity)
		if err != nil {
			return OrderData{}, fmt.Errorf("derive order total: %w", err)
		}
		return OrderData{
			Product:   session.Metadata.Product,
			UnitPrice: session.Metadata.UnitPrice,
			Total:     total,
			Quantity:  quantity,
			Currency:  strings.ToUpper(session.Currency),
		}, nil
	}
	return OrderData{}, fmt.Errorf("order detail has unknown provider %q", detail.Provider)
}

// SubscriptionDataFrom derives the canonical subscription record from a
// tagged detail.
func SubscriptionDataFrom(detail SubscriptionDetail) (SubscriptionData, error) {
	switch detail.Provider {
	case ProviderPayPal:
		plan := detail.PayPalPlan
		if plan == nil || detail.PayPalSubscription == nil {
			return SubscriptionData{}, fmt.Errorf("subscription detail missing paypal payload")
		}
		return SubscriptionData{
			Plan:      plan.Name,
			Price:     plan.Price(),
			Period:    plan.Period(),
			Intervals: plan.Intervals(),
			Active:    plan.Active(),
			Status:    detail.PayPalSubscription.Status,
		}, nil
	case ProviderStripe:
		sub := detail.Stripe
		if sub == nil {
			return SubscriptionData{}, fmt.Errorf("subscription detail missing stripe payload")
		}
		item, ok := sub.PrimaryItem()
		if !ok {
			return SubscriptionData{}, fmt.Errorf("stripe subscription has no items")
		}
		record := SubscriptionData{
			Plan:      item.Price.Nickname,
			Price:     FormatCents(item.Price.UnitAmount),
			Active:    sub.Active(),
			Status:    sub.Status,
			Intervals: 1,
		}
		if item.Price.Recurring != nil {
			record.Period = PaymentPeriod(item.Price.Recurring.Interval)
			record.Intervals = item.Price.Recurring.IntervalCount
		}
		return record, nil
	}
	return SubscriptionData{}, fmt.Errorf("subscription detail has unknown provider %q", detail.Provider)
}
