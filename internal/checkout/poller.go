package checkout

import (
	"context"
	"sync/atomic"
	"time"
)

// CheckFunc performs one approval check. approved reports whether the
// provider signalled approval; payload carries the provider response that
// decided it. A check error is not terminal, the next tick retries.
type CheckFunc func(ctx context.Context) (approved bool, payload any, err error)

// Poller repeatedly runs a status check until approval, abandonment, or
// cancellation. At most one check is in flight at any instant; ticks that
// fire during an outstanding check are skipped.
type Poller struct {
	Interval     time.Duration
	Check        CheckFunc
	StillWaiting func(ctx context.Context) bool
	OnSkip       func()
}

type pollResult struct {
	approved bool
	payload  any
	err      error
}

// Run blocks until the poll concludes. It returns the approving payload and
// true on approval. Abandonment and cancellation both return (nil, false):
// silence, not failure. A check completing after cancellation is discarded.
func (p Poller) Run(ctx context.Context) (any, bool) {
	interval := p.Interval
	if interval <= 0 {
		interval = time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	var inFlight atomic.Bool
	results := make(chan pollResult, 1)

	for {
		select {
		case <-ctx.Done():
			return nil, false
		case res := <-results:
			inFlight.Store(false)
			if res.err == nil && res.approved {
				return res.payload, true
			}
		case <-ticker.C:
			if !p.stillWaiting(ctx) {
				return nil, false
			}
			if !inFlight.CompareAndSwap(false, true) {
				if p.OnSkip != nil {
					p.OnSkip()
				}
				continue
			}
			go func() {
				approved, payload, err := p.Check(ctx)
				results <- pollResult{approved: approved, payload: payload, err: err}
			}()
		}
	}
}

func (p Poller) stillWaiting(ctx context.Context) bool {
	if p.StillWaiting == nil {
		return true
	}
	return p.StillWaiting(ctx)
}
