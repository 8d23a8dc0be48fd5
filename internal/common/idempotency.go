package common

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"net/http"
	"time"

	redis "github.com/redis/go-redis/v9"
)

// Idempotency rejects replays of write requests that carry the same
// Idempotency-Key header. Checkout creation spawns a background flow, so a
// double-submitted form would otherwise start two provider checkouts.
type Idempotency struct {
	R   *redis.Client
	TTL time.Duration
}

func idempotencyKey(header string) string {
	sum := sha256.Sum256([]byte(header))
	return "checkout:idem:" + hex.EncodeToString(sum[:])
}

// Middleware claims the key before the handler runs. Requests without the
// header pass through untouched.
func (i Idempotency) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		header := r.Header.Get("Idempotency-Key")
		if header == "" || i.R == nil {
			next.ServeHTTP(w, r)
			return
		}
		key := idempotencyKey(header)
		claimed, err := i.R.SetNX(r.Context(), key, "1", i.TTL).Result()
		if err != nil {
			JSONError(w, http.StatusInternalServerError, "INTERNAL", "idempotency store error", map[string]any{"error": err.Error()})
			return
		}
		if !claimed {
			JSONError(w, http.StatusConflict, "IDEMPOTENT_REPLAY", "duplicate request", nil)
			return
		}
		defer func() {
			// keep the claim alive even if the handler panics mid-flow
			_ = i.R.Expire(context.WithoutCancel(r.Context()), key, i.TTL).Err()
		}()
		next.ServeHTTP(w, r)
	})
}
