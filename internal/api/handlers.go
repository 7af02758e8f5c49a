package api

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/ignite/session-reconciler/internal/attribution"
	"github.com/ignite/session-reconciler/internal/domain"
	"github.com/ignite/session-reconciler/internal/pkg/httputil"
	"github.com/ignite/session-reconciler/internal/reconcile"
	"github.com/ignite/session-reconciler/internal/session"
)

// ReportService is the slice of the runner the handlers need.
type ReportService interface {
	Latest(ctx context.Context) (*reconcile.Report, error)
	RunOnce(ctx context.Context) (*reconcile.Report, error)
}

// VisitorEventSource fetches one visitor's raw events for the debug endpoint.
type VisitorEventSource interface {
	FetchVisitorEvents(ctx context.Context, visitorID string, limit int) ([]domain.Event, error)
}

// Handlers holds the dependencies shared by all endpoints.
type Handlers struct {
	reports ReportService
	repo    reconcile.Repository
	events  VisitorEventSource
	reseg   *session.Resegmenter
	attr    *attribution.Attributor
}

// NewHandlers creates the handler set. repo and events may be nil; the
// corresponding endpoints then return 404. gap and horizon must match the
// engine's settings so the debug endpoint reproduces the reported
// boundaries; non-positive values fall back to the package defaults.
func NewHandlers(reports ReportService, repo reconcile.Repository, events VisitorEventSource, gap, horizon time.Duration) *Handlers {
	return &Handlers{
		reports: reports,
		repo:    repo,
		events:  events,
		reseg:   session.NewResegmenter(gap),
		attr:    attribution.NewAttributor(horizon),
	}
}

// HealthCheck reports liveness.
func (h *Handlers) HealthCheck(w http.ResponseWriter, r *http.Request) {
	httputil.OK(w, map[string]string{"status": "ok"})
}

// GetLatestReport returns the most recent reconciliation report.
func (h *Handlers) GetLatestReport(w http.ResponseWriter, r *http.Request) {
	report, err := h.reports.Latest(r.Context())
	if err != nil {
		if errors.Is(err, reconcile.ErrNoReport) {
			httputil.NotFound(w, "no reconciliation run has completed yet")
			return
		}
		httputil.InternalError(w, err)
		return
	}
	httputil.OK(w, report)
}

// TriggerRun starts a reconciliation run and returns the finished report.
func (h *Handlers) TriggerRun(w http.ResponseWriter, r *http.Request) {
	report, err := h.reports.RunOnce(r.Context())
	if err != nil {
		if errors.Is(err, reconcile.ErrRunInProgress) {
			httputil.Error(w, http.StatusConflict, "a reconciliation run is already in progress")
			return
		}
		httputil.InternalError(w, err)
		return
	}
	httputil.OK(w, report)
}

// ListRuns returns past run summaries, newest first.
func (h *Handlers) ListRuns(w http.ResponseWriter, r *http.Request) {
	if h.repo == nil {
		httputil.NotFound(w, "run history is not configured")
		return
	}

	limit := 20
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 || n > 500 {
			httputil.BadRequest(w, "limit must be a positive integer up to 500")
			return
		}
		limit = n
	}

	runs, err := h.repo.List(r.Context(), limit)
	if err != nil {
		httputil.InternalError(w, err)
		return
	}
	if runs == nil {
		runs = []reconcile.RunSummary{}
	}
	httputil.OK(w, map[string]interface{}{"runs": runs})
}

// GetAttributionSummary returns the latest report's frequency tables.
func (h *Handlers) GetAttributionSummary(w http.ResponseWriter, r *http.Request) {
	report, err := h.reports.Latest(r.Context())
	if err != nil {
		if errors.Is(err, reconcile.ErrNoReport) {
			httputil.NotFound(w, "no reconciliation run has completed yet")
			return
		}
		httputil.InternalError(w, err)
		return
	}
	httputil.OK(w, map[string]interface{}{
		"period":      report.Period,
		"top_sources": report.TopSources,
		"top_mediums": report.TopMediums,
	})
}

// visitorSessionsResponse is the debug view of one visitor's timeline.
type visitorSessionsResponse struct {
	VisitorID string                `json:"visitor_id"`
	Events    int                   `json:"events"`
	Sessions  int                   `json:"sessions"`
	Timeline  []visitorTimelineRow  `json:"timeline"`
	Starts    []domain.SessionStart `json:"starts"`
	Labels    []attribution.Label   `json:"labels"`
}

type visitorTimelineRow struct {
	DeviceAt        string `json:"device_at"`
	OriginalSession int    `json:"original_session"`
	NewSession      int    `json:"new_session"`
	PageReferrer    string `json:"page_referrer,omitempty"`
	MarketingSource string `json:"marketing_source,omitempty"`
	MarketingMedium string `json:"marketing_medium,omitempty"`
}

// GetVisitorSessions recomputes one visitor's sessions on the fly so an
// operator can see exactly where the boundaries fall.
func (h *Handlers) GetVisitorSessions(w http.ResponseWriter, r *http.Request) {
	if h.events == nil {
		httputil.NotFound(w, "event store is not configured")
		return
	}
	visitorID := chi.URLParam(r, "id")
	if visitorID == "" {
		httputil.BadRequest(w, "visitor id is required")
		return
	}

	events, err := h.events.FetchVisitorEvents(r.Context(), visitorID, 0)
	if err != nil {
		httputil.InternalError(w, err)
		return
	}
	if len(events) == 0 {
		httputil.NotFound(w, "no events for visitor")
		return
	}

	indices, err := h.reseg.Resegment(events)
	if err != nil {
		httputil.BadRequest(w, err.Error())
		return
	}
	starts := session.SessionStarts(events, indices)
	labels, err := h.attr.Attribute(starts)
	if err != nil {
		httputil.InternalError(w, err)
		return
	}

	resp := visitorSessionsResponse{
		VisitorID: visitorID,
		Events:    len(events),
		Sessions:  len(starts),
		Starts:    starts,
		Labels:    labels,
	}
	for i, ev := range events {
		resp.Timeline = append(resp.Timeline, visitorTimelineRow{
			DeviceAt:        ev.DeviceAt.UTC().Format("2006-01-02T15:04:05Z"),
			OriginalSession: ev.OriginalSession,
			NewSession:      indices[i],
			PageReferrer:    ev.PageReferrer,
			MarketingSource: ev.MarketingSource,
			MarketingMedium: ev.MarketingMedium,
		})
	}
	httputil.OK(w, resp)
}
