// Package ratelimit paces outbound camera calls with one token bucket per
// resource. Acquire never rejects, it only delays; waits observe context
// cancellation. Buckets are created lazily with the configured defaults and
// start full, so a quiet resource can absorb a burst immediately.
package ratelimit

import (
	"context"
	"io"
	"log"
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/tphakala/pestguard-go/internal/errors"
	"github.com/tphakala/pestguard-go/internal/logging"
	"github.com/tphakala/pestguard-go/internal/observability/metrics"
)

// Package-level logger specific to rate limiting
var (
	logger          *slog.Logger
	serviceLevelVar = new(slog.LevelVar)
	closeLogger     func() error
)

func init() {
	var err error
	logFilePath := filepath.Join("logs", "ratelimit.log")
	serviceLevelVar.Set(slog.LevelInfo)

	logger, closeLogger, err = logging.NewFileLogger(logFilePath, "ratelimit", serviceLevelVar.Level())
	if err != nil {
		log.Printf("Failed to initialize ratelimit file logger at %s: %v. Service logging disabled.", logFilePath, err)
		fbHandler := slog.NewJSONHandler(io.Discard, &slog.HandlerOptions{Level: serviceLevelVar})
		logger = slog.New(fbHandler).With("service", "ratelimit")
		closeLogger = func() error { return nil }
	}
}

// Limiter holds one token bucket per resource identity.
type Limiter struct {
	mu       sync.Mutex
	buckets  map[string]*rate.Limiter
	rps      rate.Limit // default refill rate R
	burst    int        // default bucket capacity B
	metrics  *metrics.RateLimitMetrics
	slowWait time.Duration // waits at or above this are logged
}

// New creates a limiter with the given per-resource defaults. A burst below 1
// is raised to 1 so Acquire can always make progress.
func New(requestsPerSecond float64, burst int) *Limiter {
	if burst < 1 {
		burst = 1
	}
	return &Limiter{
		buckets:  make(map[string]*rate.Limiter),
		rps:      rate.Limit(requestsPerSecond),
		burst:    burst,
		slowWait: 5 * time.Second,
	}
}

// SetMetrics attaches observability metrics. Safe to leave unset.
func (l *Limiter) SetMetrics(m *metrics.RateLimitMetrics) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.metrics = m
}

// bucket returns the limiter for a resource, creating it on first use.
func (l *Limiter) bucket(resource string) *rate.Limiter {
	l.mu.Lock()
	defer l.mu.Unlock()

	b, ok := l.buckets[resource]
	if !ok {
		b = rate.NewLimiter(l.rps, l.burst)
		l.buckets[resource] = b
		if l.metrics != nil {
			l.metrics.SetResourceCount(len(l.buckets))
		}
		logger.Debug("Created token bucket", "resource", resource, "rate", float64(l.rps), "burst", l.burst)
	}
	return b
}

// Acquire takes one token for the resource, sleeping for the refill when the
// bucket is empty. It returns an error only when ctx is cancelled while
// waiting.
func (l *Limiter) Acquire(ctx context.Context, resource string) error {
	b := l.bucket(resource)

	start := time.Now()
	err := b.Wait(ctx)
	elapsed := time.Since(start)

	m := l.currentMetrics()
	switch {
	case err != nil:
		if m != nil {
			m.RecordAcquire("cancelled", elapsed.Seconds())
		}
		return errors.New(err).
			Component("ratelimit").
			Category(errors.CategoryCancellation).
			Context("resource", resource).
			Build()
	case elapsed >= time.Millisecond:
		if m != nil {
			m.RecordAcquire("delayed", elapsed.Seconds())
		}
		if elapsed >= l.slowWait {
			logger.Warn("Long rate limit wait", "resource", resource, "wait", elapsed)
		}
	default:
		if m != nil {
			m.RecordAcquire("immediate", elapsed.Seconds())
		}
	}
	return nil
}

func (l *Limiter) currentMetrics() *metrics.RateLimitMetrics {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.metrics
}

// Resources returns the identities with an allocated bucket, for diagnostics.
func (l *Limiter) Resources() []string {
	l.mu.Lock()
	defer l.mu.Unlock()

	names := make([]string, 0, len(l.buckets))
	for name := range l.buckets {
		names = append(names, name)
	}
	return names
}
