package channel

import (
	"context"
	"time"

	"github.com/keithlinneman/channelgw/internal/log"
)

// DefaultRefreshInterval is how often the refresher reloads the
// registry from the bucket.
const DefaultRefreshInterval = 30 * time.Second

// RefresherMetrics is implemented by the metrics package to observe
// refresh behavior.
type RefresherMetrics interface {
	IncRefreshes()
	IncRefreshErrors()
	SetChannelCount(n int)
	SetRefreshLastSuccess(unixSeconds float64)
	SetRefreshStale(stale bool)
}

// RefresherOptions configures the background registry refresher.
type RefresherOptions struct {
	Logger   log.Logger
	Loader   *Loader
	Registry *Registry
	Interval time.Duration

	// Metrics receives refresh observability signals. Optional.
	Metrics RefresherMetrics

	// StaleThreshold is how long since the last successful load
	// before a staleness warning is emitted. Zero defaults to 30
	// minutes.
	StaleThreshold time.Duration
}

// Refresher periodically reloads channel configuration and swaps it
// into the registry. A failed cycle keeps the previous snapshot:
// serving last known-good configuration indefinitely is preferred
// over serving errors, so there is no retry limit and no escalation.
type Refresher struct {
	loader   *Loader
	registry *Registry
	logger   log.Logger
	interval time.Duration
	metrics  RefresherMetrics

	staleThreshold time.Duration
	lastSuccessAt  time.Time
	staleLogged    bool

	refreshCount int64
	errorCount   int64
}

// NewRefresher creates a refresher. Call Run to start the loop; the
// caller is expected to have done one synchronous Load/Replace first,
// so the loop's first tick fires a full interval after startup rather
// than immediately re-fetching what was just loaded.
func NewRefresher(opts RefresherOptions) *Refresher {
	if opts.Logger == nil {
		opts.Logger = log.Nop()
	}
	interval := opts.Interval
	if interval <= 0 {
		interval = DefaultRefreshInterval
	}
	staleThreshold := opts.StaleThreshold
	if staleThreshold <= 0 {
		staleThreshold = 30 * time.Minute
	}
	return &Refresher{
		loader:         opts.Loader,
		registry:       opts.Registry,
		logger:         opts.Logger,
		interval:       interval,
		metrics:        opts.Metrics,
		staleThreshold: staleThreshold,
		lastSuccessAt:  time.Now(),
	}
}

// Run blocks until ctx is cancelled. Intended to be launched as:
// go refresher.Run(ctx)
func (r *Refresher) Run(ctx context.Context) error {
	r.logger.Info(ctx, "registry refresher starting", "interval", r.interval.String())

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			r.logger.Info(ctx, "registry refresher stopping",
				"reason", ctx.Err(),
				"refreshes", r.refreshCount,
				"errors", r.errorCount,
			)
			return ctx.Err()
		case <-ticker.C:
			r.refreshOnce(ctx)
		}
	}
}

// refreshOnce runs one load-and-swap cycle.
func (r *Refresher) refreshOnce(ctx context.Context) {
	r.refreshCount++
	if r.metrics != nil {
		r.metrics.IncRefreshes()
	}

	snap, err := r.loader.Load(ctx)
	if err != nil {
		r.errorCount++
		if r.metrics != nil {
			r.metrics.IncRefreshErrors()
		}
		r.logger.Error(ctx, err, "registry refresh failed, keeping current snapshot")

		if !r.staleLogged && time.Since(r.lastSuccessAt) > r.staleThreshold {
			r.logger.Warn(ctx, "registry is stale, serving last known-good configuration",
				"last_success", r.lastSuccessAt.Format(time.RFC3339),
			)
			r.staleLogged = true
			if r.metrics != nil {
				r.metrics.SetRefreshStale(true)
			}
		}
		return
	}

	r.registry.Replace(snap)

	now := time.Now()
	r.lastSuccessAt = now
	if r.staleLogged {
		r.logger.Info(ctx, "registry refresh recovered")
		r.staleLogged = false
	}
	if r.metrics != nil {
		r.metrics.SetChannelCount(snap.Len())
		r.metrics.SetRefreshLastSuccess(float64(now.Unix()))
		r.metrics.SetRefreshStale(false)
	}

	r.logger.Debug(ctx, "registry refreshed", "channels", snap.Len())
}
