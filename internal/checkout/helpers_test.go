package checkout

import (
	"context"
	"sync"
	"testing"
	"time"
)

// memorySurface is an in-process ApprovalSurface for adapter tests.
type memorySurface struct {
	mu    sync.Mutex
	shown map[string]bool
}

func newMemorySurface() *memorySurface {
	return &memorySurface{shown: map[string]bool{}}
}

func (s *memorySurface) Show(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.shown[id] = true
	return nil
}

func (s *memorySurface) Displayed(ctx context.Context, id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.shown[id]
}

func (s *memorySurface) Hide(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.shown, id)
	return nil
}

// recordOpener captures opened URLs instead of launching anything.
type recordOpener struct {
	mu   sync.Mutex
	urls []string
}

func (o *recordOpener) Open(ctx context.Context, url string) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.urls = append(o.urls, url)
	return nil
}

func (o *recordOpener) opened() []string {
	o.mu.Lock()
	defer o.mu.Unlock()
	return append([]string(nil), o.urls...)
}

// awaitCallback bridges an async operation into a test assertion.
func awaitCallback(t *testing.T) (Callback, func() (bool, any)) {
	t.Helper()
	ch := make(chan callbackResult, 1)
	cb := func(ok bool, data any) {
		ch <- callbackResult{ok: ok, data: data}
	}
	wait := func() (bool, any) {
		t.Helper()
		select {
		case res := <-ch:
			return res.ok, res.data
		case <-time.After(3 * time.Second):
			t.Fatal("callback was not invoked")
			return false, nil
		}
	}
	return cb, wait
}
