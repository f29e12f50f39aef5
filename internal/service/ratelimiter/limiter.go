// Package ratelimiter paces outbound probe traffic: a global concurrency
// cap across all providers plus a per-host token bucket. Polite pacing,
// not a bypass tool.
package ratelimiter

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"
	"golang.org/x/time/rate"

	"github.com/fairyhunter13/social-hunt/internal/adapter/observability"
	"github.com/fairyhunter13/social-hunt/internal/domain"
)

// Limiter guards outbound requests. Acquisition order is global first,
// then per-host; release returns only the global slot (host tokens
// replenish on their own).
type Limiter struct {
	global *semaphore.Weighted

	mu    sync.Mutex
	hosts map[string]*rate.Limiter

	rps            rate.Limit
	burst          int
	acquireTimeout time.Duration
}

// Option tweaks a Limiter.
type Option func(*Limiter)

// WithAcquireTimeout bounds how long Acquire may suspend the caller.
func WithAcquireTimeout(d time.Duration) Option {
	return func(l *Limiter) { l.acquireTimeout = d }
}

// New builds a Limiter with a global cap of maxConcurrency and per-host
// buckets replenished at rps with the given burst.
func New(maxConcurrency int, rps float64, burst int, opts ...Option) *Limiter {
	if maxConcurrency < 1 {
		maxConcurrency = 1
	}
	if burst < 1 {
		burst = 1
	}
	l := &Limiter{
		global:         semaphore.NewWeighted(int64(maxConcurrency)),
		hosts:          make(map[string]*rate.Limiter),
		rps:            rate.Limit(rps),
		burst:          burst,
		acquireTimeout: 90 * time.Second,
	}
	for _, o := range opts {
		o(l)
	}
	return l
}

// HostOf extracts the lowercased DNS name used as the bucket key.
func HostOf(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return ""
	}
	return strings.ToLower(u.Hostname())
}

func (l *Limiter) hostLimiter(host string) *rate.Limiter {
	l.mu.Lock()
	defer l.mu.Unlock()
	hl, ok := l.hosts[host]
	if !ok {
		hl = rate.NewLimiter(l.rps, l.burst)
		l.hosts[host] = hl
	}
	return hl
}

// Acquire suspends until both the global slot and a token for the URL's
// host are available, then returns a release func. It fails with
// domain.ErrTimeout once the acquire deadline passes and with
// domain.ErrCancelled when ctx is cancelled.
func (l *Limiter) Acquire(ctx context.Context, rawURL string) (func(), error) {
	start := time.Now()
	ctx, cancel := context.WithTimeout(ctx, l.acquireTimeout)
	defer cancel()

	if err := l.global.Acquire(ctx, 1); err != nil {
		return nil, l.wrap(ctx, err)
	}
	host := HostOf(rawURL)
	if host != "" {
		if err := l.hostLimiter(host).Wait(ctx); err != nil {
			l.global.Release(1)
			return nil, l.wrap(ctx, err)
		}
	}
	observability.RateLimitWaitDuration.Observe(time.Since(start).Seconds())
	var once sync.Once
	return func() { once.Do(func() { l.global.Release(1) }) }, nil
}

func (l *Limiter) wrap(ctx context.Context, err error) error {
	if ctx.Err() == context.DeadlineExceeded {
		return fmt.Errorf("%w: rate limit acquire", domain.ErrTimeout)
	}
	return fmt.Errorf("%w: rate limit acquire: %v", domain.ErrCancelled, err)
}
