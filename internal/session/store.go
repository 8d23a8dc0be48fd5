package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	redis "github.com/redis/go-redis/v9"

	"github.com/harborpay/checkout/internal/checkout"
)

const (
	recordPrefix = "checkout:rec:"
	waitPrefix   = "checkout:wait:"
)

// Store keeps checkout records and waiting-surface markers in Redis. Both
// expire with the checkout TTL, so an untouched wait abandons itself.
type Store struct {
	r   *redis.Client
	ttl time.Duration
}

// New builds a Store around an existing Redis client.
func New(r *redis.Client, ttl time.Duration) *Store {
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &Store{r: r, ttl: ttl}
}

// Put stores a checkout record, refreshing its TTL.
func (s *Store) Put(ctx context.Context, rec checkout.Record) error {
	raw, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("encode checkout record: %w", err)
	}
	if err := s.r.Set(ctx, recordPrefix+rec.ID, raw, s.ttl).Err(); err != nil {
		return fmt.Errorf("store checkout record: %w", err)
	}
	return nil
}

// Get loads a checkout record by id.
func (s *Store) Get(ctx context.Context, id string) (checkout.Record, error) {
	raw, err := s.r.Get(ctx, recordPrefix+id).Bytes()
	if errors.Is(err, redis.Nil) {
		return checkout.Record{}, checkout.ErrRecordNotFound
	}
	if err != nil {
		return checkout.Record{}, fmt.Errorf("load checkout record: %w", err)
	}
	var rec checkout.Record
	if err := json.Unmarshal(raw, &rec); err != nil {
		return checkout.Record{}, fmt.Errorf("decode checkout record: %w", err)
	}
	return rec, nil
}

// Delete removes a checkout record.
func (s *Store) Delete(ctx context.Context, id string) error {
	if err := s.r.Del(ctx, recordPrefix+id).Err(); err != nil {
		return fmt.Errorf("delete checkout record: %w", err)
	}
	return nil
}

// Show marks the waiting surface for a provider reference as displayed.
func (s *Store) Show(ctx context.Context, id string) error {
	if err := s.r.Set(ctx, waitPrefix+id, "1", s.ttl).Err(); err != nil {
		return fmt.Errorf("show waiting surface: %w", err)
	}
	return nil
}

// Displayed reports whether the waiting surface is still up. A transient
// Redis error counts as still waiting so the poll is not abandoned by an
// outage.
func (s *Store) Displayed(ctx context.Context, id string) bool {
	n, err := s.r.Exists(ctx, waitPrefix+id).Result()
	if err != nil {
		return true
	}
	return n > 0
}

// Hide dismisses the waiting surface, abandoning any poll watching it.
func (s *Store) Hide(ctx context.Context, id string) error {
	if err := s.r.Del(ctx, waitPrefix+id).Err(); err != nil {
		return fmt.Errorf("hide waiting surface: %w", err)
	}
	return nil
}
