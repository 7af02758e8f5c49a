package reconcile_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/ignite/session-reconciler/internal/domain"
	"github.com/ignite/session-reconciler/internal/pkg/distlock"
	"github.com/ignite/session-reconciler/internal/reconcile"
	"github.com/redis/go-redis/v9"
)

type memRepo struct {
	mu      sync.Mutex
	reports []*reconcile.Report
}

func (m *memRepo) Insert(_ context.Context, report *reconcile.Report) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.reports = append(m.reports, report)
	return nil
}

func (m *memRepo) Latest(_ context.Context) (*reconcile.Report, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.reports) == 0 {
		return nil, reconcile.ErrNoReport
	}
	return m.reports[len(m.reports)-1], nil
}

func (m *memRepo) List(_ context.Context, limit int) ([]reconcile.RunSummary, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []reconcile.RunSummary
	for i := len(m.reports) - 1; i >= 0 && len(out) < limit; i-- {
		r := m.reports[i]
		out = append(out, reconcile.RunSummary{
			ID:        r.ID.String(),
			Period:    r.Period,
			MatchRate: r.MatchRate,
		})
	}
	return out, nil
}

func testEngine() *reconcile.Engine {
	day := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	source := &memSource{events: []domain.Event{
		pageview("a", day, "google", "cpc"),
	}}
	baseline := &memBaseline{byVisitor: map[string]int64{"a": 1}}
	return reconcile.NewEngine(source, baseline, reconcile.EngineConfig{})
}

func testRedis(t *testing.T) *redis.Client {
	t.Helper()
	mr := miniredis.RunT(t)
	return redis.NewClient(&redis.Options{Addr: mr.Addr()})
}

// =============================================================================
// Runner tests
// =============================================================================

func TestRunnerRunOnce(t *testing.T) {
	repo := &memRepo{}
	cache := testRedis(t)
	runner := reconcile.NewRunner(testEngine(), repo, cache, nil, reconcile.RunnerConfig{})

	report, err := runner.RunOnce(context.Background())
	if err != nil {
		t.Fatalf("RunOnce: %v", err)
	}
	if report.RecomputedSessions != 1 {
		t.Errorf("RecomputedSessions = %d, want 1", report.RecomputedSessions)
	}

	// The run should be persisted and cached.
	if len(repo.reports) != 1 {
		t.Fatalf("repo holds %d reports, want 1", len(repo.reports))
	}
	if repo.reports[0].ID != report.ID {
		t.Errorf("persisted report ID = %s, want %s", repo.reports[0].ID, report.ID)
	}

	latest, err := runner.Latest(context.Background())
	if err != nil {
		t.Fatalf("Latest: %v", err)
	}
	if latest.ID != report.ID {
		t.Errorf("Latest ID = %s, want %s", latest.ID, report.ID)
	}
}

func TestRunnerLatestFromCache(t *testing.T) {
	repo := &memRepo{}
	cache := testRedis(t)

	// First runner completes a run and caches it.
	first := reconcile.NewRunner(testEngine(), repo, cache, nil, reconcile.RunnerConfig{})
	report, err := first.RunOnce(context.Background())
	if err != nil {
		t.Fatalf("RunOnce: %v", err)
	}

	// A fresh runner with no in-memory copy and no repository should still
	// resolve the latest report through Redis.
	second := reconcile.NewRunner(testEngine(), nil, cache, nil, reconcile.RunnerConfig{})
	latest, err := second.Latest(context.Background())
	if err != nil {
		t.Fatalf("Latest: %v", err)
	}
	if latest.ID != report.ID {
		t.Errorf("Latest ID = %s, want %s", latest.ID, report.ID)
	}
}

func TestRunnerLatestFromRepository(t *testing.T) {
	repo := &memRepo{}

	first := reconcile.NewRunner(testEngine(), repo, nil, nil, reconcile.RunnerConfig{})
	report, err := first.RunOnce(context.Background())
	if err != nil {
		t.Fatalf("RunOnce: %v", err)
	}

	second := reconcile.NewRunner(testEngine(), repo, nil, nil, reconcile.RunnerConfig{})
	latest, err := second.Latest(context.Background())
	if err != nil {
		t.Fatalf("Latest: %v", err)
	}
	if latest.ID != report.ID {
		t.Errorf("Latest ID = %s, want %s", latest.ID, report.ID)
	}
}

func TestRunnerLatestNoReport(t *testing.T) {
	runner := reconcile.NewRunner(testEngine(), &memRepo{}, nil, nil, reconcile.RunnerConfig{})
	if _, err := runner.Latest(context.Background()); !errors.Is(err, reconcile.ErrNoReport) {
		t.Errorf("Latest error = %v, want ErrNoReport", err)
	}
}

func TestRunnerRunOnceLockHeld(t *testing.T) {
	cache := testRedis(t)
	ctx := context.Background()

	holder := distlock.NewRedisLock(cache, distlock.RunLockKey, time.Minute)
	acquired, err := holder.Acquire(ctx)
	if err != nil || !acquired {
		t.Fatalf("setup lock: acquired=%v err=%v", acquired, err)
	}

	lock := distlock.NewRunLock(cache, nil, time.Minute)
	runner := reconcile.NewRunner(testEngine(), &memRepo{}, cache, lock, reconcile.RunnerConfig{})
	if _, err := runner.RunOnce(ctx); !errors.Is(err, reconcile.ErrRunInProgress) {
		t.Errorf("RunOnce error = %v, want ErrRunInProgress", err)
	}

	// Once the holder releases, the run proceeds.
	if err := holder.Release(ctx); err != nil {
		t.Fatalf("release: %v", err)
	}
	if _, err := runner.RunOnce(ctx); err != nil {
		t.Errorf("RunOnce after release: %v", err)
	}
}
