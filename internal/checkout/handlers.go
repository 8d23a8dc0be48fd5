package checkout

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/harborpay/checkout/internal/common"
)

// Checkout record statuses beyond the progress stages.
const (
	StatusPending   = "pending"
	StatusFailed    = "failed"
	StatusAbandoned = "abandoned"
)

// ErrRecordNotFound is returned by stores for unknown checkout ids.
var ErrRecordNotFound = errors.New("checkout: record not found")

// Record tracks one in-flight or finished checkout flow. Records are
// ephemeral bookkeeping with a TTL, not transaction history.
type Record struct {
	ID        string    `json:"id"`
	Kind      string    `json:"kind"`
	Provider  Provider  `json:"provider"`
	Status    string    `json:"status"`
	Ref       string    `json:"ref,omitempty"`
	Result    string    `json:"result,omitempty"`
	Error     string    `json:"error,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Store persists checkout records for the lifetime of a flow.
type Store interface {
	Put(ctx context.Context, rec Record) error
	Get(ctx context.Context, id string) (Record, error)
	Delete(ctx context.Context, id string) error
}

// FlowLocker serialises checkout flows across replicas: at most one
// approval poll runs per checkout id.
type FlowLocker interface {
	Acquire(ctx context.Context, key string) (token string, ok bool, err error)
	Release(ctx context.Context, key, token string) error
}

// Handlers exposes the orchestrator over HTTP.
type Handlers struct {
	Orc      *Orchestrator
	Store    Store
	Surface  ApprovalSurface
	Locker   FlowLocker
	Timeout  time.Duration
	Logger   zerolog.Logger
	Validate *validator.Validate
}

// Routes mounts the checkout API.
func (h *Handlers) Routes() chi.Router {
	r := chi.NewRouter()
	r.Post("/orders", h.createOrder)
	r.Get("/orders/{id}", h.getOrderData)
	r.Post("/subscriptions", h.createSubscription)
	r.Get("/subscriptions/{id}", h.getSubscriptionData)
	r.Post("/subscriptions/{id}/activate", h.activateSubscription)
	r.Post("/subscriptions/{id}/deactivate", h.deactivateSubscription)
	r.Post("/subscriptions/{id}/pricing", h.updateSubscriptionPricing)
	r.Get("/checkouts/{id}", h.getCheckout)
	r.Delete("/checkouts/{id}", h.abandonCheckout)
	r.Get("/messages", h.getMessages)
	return r
}

type createOrderRequest struct {
	Product   string `json:"product" validate:"required"`
	UnitPrice string `json:"unit_price" validate:"required"`
	Quantity  int    `json:"quantity" validate:"required,min=1"`
}

type createSubscriptionRequest struct {
	Plan      string `json:"plan" validate:"required"`
	Price     string `json:"price" validate:"required"`
	Period    string `json:"period" validate:"required,oneof=day week month year"`
	Intervals int    `json:"intervals" validate:"min=0"`
}

type updatePricingRequest struct {
	Price string `json:"price" validate:"required"`
}

func (h *Handlers) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "invalid JSON body", nil)
		return false
	}
	if err := h.Validate.Struct(dst); err != nil {
		common.JSONError(w, http.StatusBadRequest, "VALIDATION", err.Error(), nil)
		return false
	}
	return true
}

func (h *Handlers) createOrder(w http.ResponseWriter, r *http.Request) {
	var req createOrderRequest
	if !h.decode(w, r, &req) {
		return
	}
	if _, err := ParseCents(req.UnitPrice); err != nil {
		common.JSONError(w, http.StatusBadRequest, "VALIDATION", err.Error(), nil)
		return
	}

	rec := h.newRecord("order")
	if err := h.Store.Put(r.Context(), rec); err != nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "could not record checkout", nil)
		return
	}
	item := Item{Name: req.Product, UnitPrice: req.UnitPrice, Quantity: req.Quantity}
	go h.runFlow(context.WithoutCancel(r.Context()), rec, func(ctx context.Context, progress func(stage, ref string), cb Callback) {
		h.Orc.Buy(ctx, item, progress, cb)
	})
	common.JSON(w, http.StatusAccepted, map[string]any{"checkout_id": rec.ID, "status": rec.Status})
}

func (h *Handlers) createSubscription(w http.ResponseWriter, r *http.Request) {
	var req createSubscriptionRequest
	if !h.decode(w, r, &req) {
		return
	}
	if _, err := ParseCents(req.Price); err != nil {
		common.JSONError(w, http.StatusBadRequest, "VALIDATION", err.Error(), nil)
		return
	}

	rec := h.newRecord("subscription")
	if err := h.Store.Put(r.Context(), rec); err != nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "could not record checkout", nil)
		return
	}
	plan := PlanSpec{Name: req.Plan, Price: req.Price, Period: PaymentPeriod(req.Period), Intervals: req.Intervals}
	go h.runFlow(context.WithoutCancel(r.Context()), rec, func(ctx context.Context, progress func(stage, ref string), cb Callback) {
		h.Orc.Subscribe(ctx, plan, progress, cb)
	})
	common.JSON(w, http.StatusAccepted, map[string]any{"checkout_id": rec.ID, "status": rec.Status})
}

func (h *Handlers) newRecord(kind string) Record {
	now := time.Now().UTC()
	return Record{
		ID:        uuid.NewString(),
		Kind:      kind,
		Provider:  h.Orc.Provider(),
		Status:    StatusPending,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// runFlow drives one background checkout. The flow lock expires by TTL when
// an abandoned wait means the completion callback never fires.
func (h *Handlers) runFlow(ctx context.Context, rec Record, flow func(ctx context.Context, progress func(stage, ref string), cb Callback)) {
	release := func() {}
	if h.Locker != nil {
		key := "checkout:" + rec.ID
		token, ok, err := h.Locker.Acquire(ctx, key)
		if err != nil {
			h.Logger.Warn().Err(err).Str("checkout_id", rec.ID).Msg("flow_lock_unavailable")
		} else if !ok {
			h.updateRecord(ctx, rec.ID, func(r *Record) {
				r.Status = StatusFailed
				r.Error = "checkout already in progress"
			})
			return
		} else {
			release = func() { _ = h.Locker.Release(context.WithoutCancel(ctx), key, token) }
		}
	}

	progress := func(stage, ref string) {
		h.updateRecord(ctx, rec.ID, func(r *Record) {
			r.Status = stage
			if ref != "" {
				r.Ref = ref
			}
		})
	}
	flow(ctx, progress, func(ok bool, data any) {
		defer release()
		h.updateRecord(ctx, rec.ID, func(r *Record) {
			if ok {
				r.Status = StageCompleted
				r.Result = fmt.Sprint(data)
			} else {
				r.Status = StatusFailed
				r.Error = fmt.Sprint(data)
			}
		})
	})
}

func (h *Handlers) updateRecord(ctx context.Context, id string, mutate func(*Record)) {
	rec, err := h.Store.Get(ctx, id)
	if err != nil {
		h.Logger.Warn().Err(err).Str("checkout_id", id).Msg("checkout_record_load_failed")
		return
	}
	mutate(&rec)
	rec.UpdatedAt = time.Now().UTC()
	if err := h.Store.Put(ctx, rec); err != nil {
		h.Logger.Warn().Err(err).Str("checkout_id", id).Msg("checkout_record_save_failed")
	}
}

func (h *Handlers) getCheckout(w http.ResponseWriter, r *http.Request) {
	rec, err := h.Store.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		if errors.Is(err, ErrRecordNotFound) {
			common.JSONError(w, http.StatusNotFound, "NOT_FOUND", "checkout not found", nil)
			return
		}
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "could not load checkout", nil)
		return
	}
	common.JSON(w, http.StatusOK, rec)
}

// abandonCheckout hides the waiting surface, which makes the poller exit
// silently on its next tick.
func (h *Handlers) abandonCheckout(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	rec, err := h.Store.Get(r.Context(), id)
	if err != nil {
		if errors.Is(err, ErrRecordNotFound) {
			common.JSONError(w, http.StatusNotFound, "NOT_FOUND", "checkout not found", nil)
			return
		}
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "could not load checkout", nil)
		return
	}
	if rec.Ref != "" && h.Surface != nil {
		if err := h.Surface.Hide(r.Context(), rec.Ref); err != nil {
			h.Logger.Warn().Err(err).Str("checkout_id", id).Msg("hide_waiting_surface_failed")
		}
	}
	rec.Status = StatusAbandoned
	rec.UpdatedAt = time.Now().UTC()
	if err := h.Store.Put(r.Context(), rec); err != nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "could not update checkout", nil)
		return
	}
	common.JSON(w, http.StatusOK, rec)
}

type callbackResult struct {
	ok   bool
	data any
}

// await bridges a callback-style operation into a synchronous handler
// response, bounded by the handler timeout.
func (h *Handlers) await(ctx context.Context, op func(ctx context.Context, cb Callback)) (callbackResult, bool) {
	timeout := h.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	results := make(chan callbackResult, 1)
	op(ctx, func(ok bool, data any) {
		results <- callbackResult{ok: ok, data: data}
	})
	select {
	case res := <-results:
		return res, true
	case <-ctx.Done():
		return callbackResult{}, false
	}
}

func (h *Handlers) respond(w http.ResponseWriter, res callbackResult, timedOut bool) {
	if !timedOut {
		common.JSONError(w, http.StatusGatewayTimeout, "TIMEOUT", "provider did not answer in time", nil)
		return
	}
	if !res.ok {
		common.JSONError(w, http.StatusBadGateway, "PROVIDER_ERROR", "provider rejected the request", res.data)
		return
	}
	common.JSON(w, http.StatusOK, res.data)
}

func (h *Handlers) getOrderData(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	res, done := h.await(r.Context(), func(ctx context.Context, cb Callback) {
		h.Orc.GetOrderData(ctx, id, cb)
	})
	h.respond(w, res, done)
}

func (h *Handlers) getSubscriptionData(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	res, done := h.await(r.Context(), func(ctx context.Context, cb Callback) {
		h.Orc.GetSubscriptionData(ctx, id, cb)
	})
	h.respond(w, res, done)
}

func (h *Handlers) activateSubscription(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	res, done := h.await(r.Context(), func(ctx context.Context, cb Callback) {
		h.Orc.ActivateSubscription(ctx, id, cb)
	})
	h.respond(w, res, done)
}

func (h *Handlers) deactivateSubscription(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	res, done := h.await(r.Context(), func(ctx context.Context, cb Callback) {
		h.Orc.DeactivateSubscription(ctx, id, cb)
	})
	h.respond(w, res, done)
}

func (h *Handlers) updateSubscriptionPricing(w http.ResponseWriter, r *http.Request) {
	var req updatePricingRequest
	if !h.decode(w, r, &req) {
		return
	}
	if _, err := ParseCents(req.Price); err != nil {
		common.JSONError(w, http.StatusBadRequest, "VALIDATION", err.Error(), nil)
		return
	}
	id := chi.URLParam(r, "id")
	res, done := h.await(r.Context(), func(ctx context.Context, cb Callback) {
		h.Orc.UpdateSubscriptionPricing(ctx, id, req.Price, cb)
	})
	h.respond(w, res, done)
}

func (h *Handlers) getMessages(w http.ResponseWriter, r *http.Request) {
	common.JSON(w, http.StatusOK, h.Orc.Messages())
}
