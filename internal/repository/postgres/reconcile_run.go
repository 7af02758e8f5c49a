package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/ignite/session-reconciler/internal/reconcile"
)

// ReconcileRunRepo implements reconcile.Repository against PostgreSQL.
// Summary columns are queryable; the full report travels as a JSON payload.
type ReconcileRunRepo struct{ db *sql.DB }

// NewReconcileRunRepo creates a Postgres-backed run repository.
func NewReconcileRunRepo(db *sql.DB) *ReconcileRunRepo { return &ReconcileRunRepo{db: db} }

func (r *ReconcileRunRepo) Insert(ctx context.Context, report *reconcile.Report) error {
	payload, err := json.Marshal(report)
	if err != nil {
		return fmt.Errorf("marshal report: %w", err)
	}

	_, err = r.db.ExecContext(ctx, `
		INSERT INTO reconcile_runs (
			id, period, window_start, window_end,
			tool_sessions, recomputed_sessions, visitors, events,
			match_rate, discrepancy_count, duration_ms, payload, generated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
	`,
		report.ID, report.Period, report.Start, report.End,
		report.ToolSessions, report.RecomputedSessions, report.Visitors, report.Events,
		report.MatchRate, len(report.Discrepancies), report.DurationMs, payload, report.GeneratedAt,
	)
	if err != nil {
		return fmt.Errorf("insert reconcile run: %w", err)
	}
	return nil
}

func (r *ReconcileRunRepo) Latest(ctx context.Context) (*reconcile.Report, error) {
	var payload []byte
	err := r.db.QueryRowContext(ctx, `
		SELECT payload FROM reconcile_runs
		ORDER BY generated_at DESC
		LIMIT 1
	`).Scan(&payload)
	if err == sql.ErrNoRows {
		return nil, reconcile.ErrNoReport
	}
	if err != nil {
		return nil, fmt.Errorf("latest reconcile run: %w", err)
	}

	report := &reconcile.Report{}
	if err := json.Unmarshal(payload, report); err != nil {
		return nil, fmt.Errorf("decode reconcile run: %w", err)
	}
	return report, nil
}

func (r *ReconcileRunRepo) List(ctx context.Context, limit int) ([]reconcile.RunSummary, error) {
	if limit <= 0 {
		limit = 50
	}

	rows, err := r.db.QueryContext(ctx, `
		SELECT id, period, tool_sessions, recomputed_sessions, match_rate, generated_at
		FROM reconcile_runs
		ORDER BY generated_at DESC
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("list reconcile runs: %w", err)
	}
	defer rows.Close()

	var out []reconcile.RunSummary
	for rows.Next() {
		var s reconcile.RunSummary
		var generatedAt time.Time
		if err := rows.Scan(&s.ID, &s.Period, &s.ToolSessions,
			&s.RecomputedSessions, &s.MatchRate, &generatedAt); err != nil {
			return nil, fmt.Errorf("scan reconcile run: %w", err)
		}
		s.GeneratedAt = generatedAt.UTC().Format(time.RFC3339)
		out = append(out, s)
	}
	return out, rows.Err()
}
