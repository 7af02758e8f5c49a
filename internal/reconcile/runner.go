package reconcile

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/ignite/session-reconciler/internal/pkg/distlock"
	"github.com/ignite/session-reconciler/internal/pkg/logger"
	"github.com/redis/go-redis/v9"
)

// cacheKey holds the latest report as JSON so every API replica serves the
// same answer without hitting Postgres.
const cacheKey = "session-reconciler:report:latest"

// ErrRunInProgress is returned when another instance holds the run lock.
var ErrRunInProgress = errors.New("a reconciliation run is already in progress")

// RunnerConfig tunes the periodic reconciliation loop.
type RunnerConfig struct {
	Interval time.Duration // how often to reconcile
	Window   time.Duration // how far back each run looks
	CacheTTL time.Duration // how long the Redis copy stays fresh
}

// Runner schedules reconciliation runs and fans the finished report out to
// the repository, the Redis cache, and an in-memory copy for fast reads.
type Runner struct {
	engine *Engine
	repo   Repository
	cache  *redis.Client     // optional
	lock   distlock.DistLock // optional
	cfg    RunnerConfig

	mu   sync.RWMutex
	last *Report
}

// NewRunner creates a runner. cache and lock may be nil; the runner then
// skips caching and cross-instance exclusion respectively.
func NewRunner(engine *Engine, repo Repository, cache *redis.Client, lock distlock.DistLock, cfg RunnerConfig) *Runner {
	if cfg.Interval <= 0 {
		cfg.Interval = time.Hour
	}
	if cfg.Window <= 0 {
		cfg.Window = 7 * 24 * time.Hour
	}
	if cfg.CacheTTL <= 0 {
		cfg.CacheTTL = 2 * cfg.Interval
	}
	return &Runner{engine: engine, repo: repo, cache: cache, lock: lock, cfg: cfg}
}

// Start begins the reconciliation loop. It runs once immediately, then on
// every tick until the context is cancelled.
func (r *Runner) Start(ctx context.Context) {
	if _, err := r.RunOnce(ctx); err != nil && !errors.Is(err, ErrRunInProgress) {
		logger.Error("initial reconciliation failed", "error", err.Error())
	}

	ticker := time.NewTicker(r.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := r.RunOnce(ctx); err != nil && !errors.Is(err, ErrRunInProgress) {
				logger.Error("reconciliation failed", "error", err.Error())
			}
		}
	}
}

// RunOnce executes a single reconciliation over the configured lookback
// window ending at the current UTC midnight.
func (r *Runner) RunOnce(ctx context.Context) (*Report, error) {
	if r.lock != nil {
		acquired, err := r.lock.Acquire(ctx)
		if err != nil {
			return nil, err
		}
		if !acquired {
			return nil, ErrRunInProgress
		}
		defer func() {
			if err := r.lock.Release(context.WithoutCancel(ctx)); err != nil {
				logger.Warn("run lock release failed", "error", err.Error())
			}
		}()
	}

	end := time.Now().UTC().Truncate(24 * time.Hour)
	start := end.Add(-r.cfg.Window)

	report, err := r.engine.Run(ctx, start, end)
	if err != nil {
		return nil, err
	}

	r.mu.Lock()
	r.last = report
	r.mu.Unlock()

	if r.repo != nil {
		if err := r.repo.Insert(ctx, report); err != nil {
			logger.Warn("report not persisted", "error", err.Error())
		}
	}
	r.cacheReport(ctx, report)

	return report, nil
}

// Latest returns the freshest available report: the in-memory copy first,
// then the Redis cache, then the repository. Returns ErrNoReport when no
// run has ever completed.
func (r *Runner) Latest(ctx context.Context) (*Report, error) {
	r.mu.RLock()
	last := r.last
	r.mu.RUnlock()
	if last != nil {
		return last, nil
	}

	if r.cache != nil {
		raw, err := r.cache.Get(ctx, cacheKey).Bytes()
		if err == nil {
			var report Report
			if err := json.Unmarshal(raw, &report); err == nil {
				return &report, nil
			}
			logger.Warn("cached report unreadable, falling back to repository")
		}
	}

	if r.repo != nil {
		report, err := r.repo.Latest(ctx)
		if err == nil {
			return report, nil
		}
		if !errors.Is(err, ErrNoReport) {
			return nil, err
		}
	}

	return nil, ErrNoReport
}

func (r *Runner) cacheReport(ctx context.Context, report *Report) {
	if r.cache == nil {
		return
	}
	raw, err := json.Marshal(report)
	if err != nil {
		logger.Warn("report not cacheable", "error", err.Error())
		return
	}
	if err := r.cache.Set(ctx, cacheKey, raw, r.cfg.CacheTTL).Err(); err != nil {
		logger.Warn("report not cached", "error", err.Error())
	}
}
