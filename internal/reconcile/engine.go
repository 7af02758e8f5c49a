package reconcile

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/ignite/session-reconciler/internal/attribution"
	"github.com/ignite/session-reconciler/internal/domain"
	"github.com/ignite/session-reconciler/internal/pkg/logger"
	"github.com/ignite/session-reconciler/internal/session"
	"github.com/ignite/session-reconciler/internal/warehouse"
	"github.com/ignite/session-reconciler/internal/worker"
)

// maxVisitorDiscrepancies caps how many per-visitor mismatches a report
// carries; the daily rows already tell the aggregate story.
const maxVisitorDiscrepancies = 50

// EventSource is the tracking pipeline's event log.
type EventSource interface {
	FetchEvents(ctx context.Context, start, end time.Time) ([]domain.Event, error)
	InsertAuditRows(ctx context.Context, rows []domain.SessionAuditRow) error
}

// Baseline supplies the analytics tool's session counts.
type Baseline interface {
	GetDailySessionCounts(ctx context.Context, start, end time.Time) ([]warehouse.DailySessions, error)
	GetVisitorSessionCounts(ctx context.Context, start, end time.Time) (map[string]int64, error)
}

// EngineConfig tunes one reconciliation run.
type EngineConfig struct {
	InactivityGap  time.Duration
	RecencyHorizon time.Duration
	NumWorkers     int
	WriteAudit     bool
}

// Engine runs a full reconciliation pass.
type Engine struct {
	source   EventSource
	baseline Baseline
	pool     *worker.VisitorPool
	cfg      EngineConfig
}

// NewEngine creates a reconciliation engine.
func NewEngine(source EventSource, baseline Baseline, cfg EngineConfig) *Engine {
	pool := worker.NewVisitorPool(
		cfg.NumWorkers,
		session.NewResegmenter(cfg.InactivityGap),
		attribution.NewAttributor(cfg.RecencyHorizon),
	)
	return &Engine{source: source, baseline: baseline, pool: pool, cfg: cfg}
}

// Run reconciles the window [start, end) and returns the report.
func (e *Engine) Run(ctx context.Context, start, end time.Time) (*Report, error) {
	startedAt := time.Now()

	events, err := e.source.FetchEvents(ctx, start, end)
	if err != nil {
		return nil, fmt.Errorf("fetch events: %w", err)
	}

	grouped := session.GroupByVisitor(events)
	results, err := e.pool.Process(ctx, grouped)
	if err != nil {
		return nil, fmt.Errorf("resegment: %w", err)
	}

	report := &Report{
		ID:          uuid.New(),
		Period:      start.Format("2006-01-02") + " to " + end.Format("2006-01-02"),
		Start:       start,
		End:         end,
		Visitors:    int64(len(results)),
		Events:      int64(len(events)),
		GeneratedAt: time.Now(),
	}

	// Recomputed side: a session counts toward the UTC day of its start.
	recomputedDaily := make(map[string]int64)
	recomputedByVisitor := make(map[string]int64, len(results))
	var allLabels []attribution.Label
	var auditRows []domain.SessionAuditRow

	for visitorID, res := range results {
		report.RecomputedSessions += int64(res.Sessions())
		recomputedByVisitor[visitorID] = int64(res.Sessions())
		for _, s := range res.Starts {
			recomputedDaily[s.DeviceAt.UTC().Format("2006-01-02")]++
		}
		allLabels = append(allLabels, res.Labels...)
		if e.cfg.WriteAudit {
			for i, ev := range res.Events {
				auditRows = append(auditRows, domain.SessionAuditRow{
					VisitorID:       visitorID,
					DeviceAt:        ev.DeviceAt,
					OriginalSession: ev.OriginalSession,
					NewSession:      res.Indices[i],
				})
			}
		}
	}

	report.TopSources, report.TopMediums = attribution.Summarize(allLabels)

	// Tool side.
	toolDaily, err := e.baseline.GetDailySessionCounts(ctx, start, end)
	if err != nil {
		return nil, fmt.Errorf("fetch baseline daily counts: %w", err)
	}
	toolByVisitor, err := e.baseline.GetVisitorSessionCounts(ctx, start, end)
	if err != nil {
		return nil, fmt.Errorf("fetch baseline visitor counts: %w", err)
	}

	e.diffDaily(report, toolDaily, recomputedDaily)
	e.diffVisitors(report, toolByVisitor, recomputedByVisitor)

	if e.cfg.WriteAudit {
		if err := e.source.InsertAuditRows(ctx, auditRows); err != nil {
			// The report is still valid without the audit trail.
			logger.Warn("audit rows not written", "error", err.Error())
		}
	}

	report.DurationMs = time.Since(startedAt).Milliseconds()
	logger.Info("reconciliation finished",
		"period", report.Period,
		"tool_sessions", report.ToolSessions,
		"recomputed_sessions", report.RecomputedSessions,
		"match_rate", fmt.Sprintf("%.1f", report.MatchRate),
	)
	return report, nil
}

func (e *Engine) diffDaily(report *Report, toolDaily []warehouse.DailySessions, recomputedDaily map[string]int64) {
	toolByDate := make(map[string]int64, len(toolDaily))
	for _, d := range toolDaily {
		toolByDate[d.Date] = d.Sessions
		report.ToolSessions += d.Sessions
	}

	dates := make(map[string]struct{}, len(toolByDate)+len(recomputedDaily))
	for d := range toolByDate {
		dates[d] = struct{}{}
	}
	for d := range recomputedDaily {
		dates[d] = struct{}{}
	}

	sorted := make([]string, 0, len(dates))
	for d := range dates {
		sorted = append(sorted, d)
	}
	sort.Strings(sorted)

	matched := 0
	for _, date := range sorted {
		row := DailyRow{
			Date:               date,
			ToolSessions:       toolByDate[date],
			RecomputedSessions: recomputedDaily[date],
		}
		row.Difference = row.RecomputedSessions - row.ToolSessions
		report.DailyRows = append(report.DailyRows, row)

		if row.Difference == 0 {
			matched++
			continue
		}
		report.Discrepancies = append(report.Discrepancies, Discrepancy{
			Type:            DiscrepancyDailyCount,
			Scope:           date,
			ToolValue:       row.ToolSessions,
			RecomputedValue: row.RecomputedSessions,
			Difference:      row.Difference,
			Description:     "daily session count differs between tool and recomputation",
		})
	}

	if len(sorted) > 0 {
		report.MatchRate = float64(matched) / float64(len(sorted)) * 100
	}
}

func (e *Engine) diffVisitors(report *Report, tool, recomputed map[string]int64) {
	visitors := make(map[string]struct{}, len(tool)+len(recomputed))
	for v := range tool {
		visitors[v] = struct{}{}
	}
	for v := range recomputed {
		visitors[v] = struct{}{}
	}

	var mismatched []Discrepancy
	for v := range visitors {
		if tool[v] == recomputed[v] {
			continue
		}
		mismatched = append(mismatched, Discrepancy{
			Type:            DiscrepancyVisitorCount,
			Scope:           v,
			ToolValue:       tool[v],
			RecomputedValue: recomputed[v],
			Difference:      recomputed[v] - tool[v],
			Description:     "visitor session count differs between tool and recomputation",
		})
	}

	// Largest absolute differences first; scope breaks ties deterministically.
	sort.Slice(mismatched, func(i, j int) bool {
		di, dj := abs(mismatched[i].Difference), abs(mismatched[j].Difference)
		if di != dj {
			return di > dj
		}
		return mismatched[i].Scope < mismatched[j].Scope
	})
	if len(mismatched) > maxVisitorDiscrepancies {
		mismatched = mismatched[:maxVisitorDiscrepancies]
	}
	report.Discrepancies = append(report.Discrepancies, mismatched...)
}

func abs(n int64) int64 {
	if n < 0 {
		return -n
	}
	return n
}
