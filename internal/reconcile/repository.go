package reconcile

import (
	"context"
	"errors"
)

// ErrNoReport is returned when no reconciliation run has completed yet.
var ErrNoReport = errors.New("no reconciliation report available")

// Repository defines the persistence contract for reconciliation runs.
// Implementations must be safe for concurrent use.
type Repository interface {
	// Insert persists a finished report.
	Insert(ctx context.Context, report *Report) error

	// Latest returns the most recently generated report.
	// Returns ErrNoReport if none exists.
	Latest(ctx context.Context) (*Report, error)

	// List returns report summaries, newest first.
	List(ctx context.Context, limit int) ([]RunSummary, error)
}

// RunSummary is the lightweight listing row for past runs.
type RunSummary struct {
	ID                 string  `json:"id"`
	Period             string  `json:"period"`
	ToolSessions       int64   `json:"tool_sessions"`
	RecomputedSessions int64   `json:"recomputed_sessions"`
	MatchRate          float64 `json:"match_rate"`
	GeneratedAt        string  `json:"generated_at"`
}
