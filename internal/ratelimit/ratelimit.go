// Package ratelimit implements per-domain minimum-interval pacing shared by
// every worker in the process. Acquire blocks the caller until at least the
// domain's configured delay has elapsed since the most recent successful
// acquire on that domain by any caller.
package ratelimit

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// Limiter paces requests per domain. The zero value is not usable; use New.
type Limiter struct {
	mu           sync.Mutex
	domains      map[string]*rate.Limiter
	defaultDelay time.Duration
	overrides    map[string]time.Duration
}

// New creates a Limiter with the given default minimum interval between
// requests to any one domain.
func New(defaultDelay time.Duration) *Limiter {
	return &Limiter{
		domains:      make(map[string]*rate.Limiter),
		defaultDelay: defaultDelay,
		overrides:    make(map[string]time.Duration),
	}
}

// SetDomainDelay overrides the minimum interval for one domain — used to
// apply a robots.txt Crawl-delay directive. The caller is responsible for
// taking max(defaultDelay, crawlDelay) before calling this; SetDomainDelay
// simply installs whatever delay it is given.
func (l *Limiter) SetDomainDelay(domain string, delay time.Duration) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.overrides[domain] = delay
	if existing, ok := l.domains[domain]; ok {
		existing.SetLimit(limitFor(delay))
	}
}

// Acquire blocks until at least delay(domain) seconds have elapsed since the
// most recent successful Acquire(domain) by any caller, or until ctx is
// cancelled. Reservation bookkeeping happens under the mutex; the actual
// sleep happens without holding it, so callers on different domains never
// block each other and monotonic time (via time.Timer under the hood of
// golang.org/x/time/rate) makes the interval immune to wall-clock jumps.
func (l *Limiter) Acquire(ctx context.Context, domain string) error {
	domainLimiter := l.limiterFor(domain)
	return domainLimiter.Wait(ctx)
}

func (l *Limiter) limiterFor(domain string) *rate.Limiter {
	l.mu.Lock()
	defer l.mu.Unlock()

	if existing, ok := l.domains[domain]; ok {
		return existing
	}

	delay := l.defaultDelay
	if override, ok := l.overrides[domain]; ok {
		delay = override
	}

	limiter := rate.NewLimiter(limitFor(delay), 1)
	// The first Acquire on a never-seen domain should not have to wait;
	// rate.NewLimiter starts with a full burst-1 token, so the first Wait
	// returns immediately and subsequent ones are spaced by delay.
	l.domains[domain] = limiter
	return limiter
}

// limitFor converts a minimum interval into a rate.Limit (events/sec).
// A zero or negative delay means "no pacing" (rate.Inf).
func limitFor(delay time.Duration) rate.Limit {
	if delay <= 0 {
		return rate.Inf
	}
	return rate.Every(delay)
}
