package reconcile

import (
	"time"

	"github.com/google/uuid"
	"github.com/ignite/session-reconciler/internal/attribution"
)

// Report summarizes one reconciliation run over a collection window.
type Report struct {
	ID     uuid.UUID `json:"id"`
	Period string    `json:"period"`
	Start  time.Time `json:"start"`
	End    time.Time `json:"end"`

	ToolSessions       int64 `json:"tool_sessions"`
	RecomputedSessions int64 `json:"recomputed_sessions"`
	Visitors           int64 `json:"visitors"`
	Events             int64 `json:"events"`

	DailyRows     []DailyRow    `json:"daily_rows"`
	Discrepancies []Discrepancy `json:"discrepancies"`
	MatchRate     float64       `json:"match_rate"`

	TopSources []attribution.FrequencyRow `json:"top_sources"`
	TopMediums []attribution.FrequencyRow `json:"top_mediums"`

	GeneratedAt time.Time `json:"generated_at"`
	DurationMs  int64     `json:"duration_ms"`
}

// DailyRow holds both sides' session counts for one day.
type DailyRow struct {
	Date               string `json:"date"`
	ToolSessions       int64  `json:"tool_sessions"`
	RecomputedSessions int64  `json:"recomputed_sessions"`
	Difference         int64  `json:"difference"`
}

// Discrepancy describes one mismatch between the two sides.
type Discrepancy struct {
	Type            string `json:"type"`   // "daily_count_mismatch", "visitor_count_mismatch"
	Scope           string `json:"scope"`  // date or visitor id
	ToolValue       int64  `json:"tool_value"`
	RecomputedValue int64  `json:"recomputed_value"`
	Difference      int64  `json:"difference"`
	Description     string `json:"description"`
}

// Discrepancy types.
const (
	DiscrepancyDailyCount   = "daily_count_mismatch"
	DiscrepancyVisitorCount = "visitor_count_mismatch"
)
