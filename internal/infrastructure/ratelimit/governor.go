package ratelimit

import (
	"context"
	"net/http"
	"strings"
	"time"
)

// Window is the state of one fixed window after a hit.
type Window struct {
	Count   int
	ResetAt time.Time
	Allowed bool
}

// CounterStore keeps fixed-window counters. A hit on a full window is denied
// and does not move the counter.
type CounterStore interface {
	Hit(ctx context.Context, key string, limit int, window time.Duration, now time.Time) (Window, error)
}

type Decision struct {
	Allowed   bool
	Limit     int
	Remaining int
	ResetAt   time.Time
}

// RetryAfter is the wait until the window resets, rounded up to whole seconds.
func (d Decision) RetryAfter(now time.Time) time.Duration {
	wait := d.ResetAt.Sub(now)
	if wait <= 0 {
		return 0
	}
	return (wait + time.Second - 1) / time.Second * time.Second
}

type Governor struct {
	store CounterStore
	now   func() time.Time
}

func NewGovernor(store CounterStore, now func() time.Time) *Governor {
	if now == nil {
		now = time.Now
	}
	return &Governor{store: store, now: now}
}

func (g *Governor) Now() time.Time {
	return g.now()
}

func (g *Governor) Allow(ctx context.Context, key string, limit int, window time.Duration) (Decision, error) {
	w, err := g.store.Hit(ctx, key, limit, window, g.now())
	if err != nil {
		return Decision{}, err
	}
	return Decision{
		Allowed:   w.Allowed,
		Limit:     limit,
		Remaining: max(0, limit-w.Count),
		ResetAt:   w.ResetAt,
	}, nil
}

// ClientIdentifier keys anonymous callers by the first forwarded hop. The header is
// client controlled, so this only throttles honest clients. Every caller without
// forwarding headers shares "unknown"; authenticated routes append the user id.
func ClientIdentifier(r *http.Request) string {
	if xf := r.Header.Get("X-Forwarded-For"); xf != "" {
		for _, part := range strings.Split(xf, ",") {
			if ip := strings.TrimSpace(part); ip != "" {
				return ip
			}
		}
	}
	if ip := strings.TrimSpace(r.Header.Get("X-Real-IP")); ip != "" {
		return ip
	}
	return "unknown"
}
