package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/ignite/session-reconciler/internal/attribution"
	"github.com/ignite/session-reconciler/internal/domain"
	"github.com/ignite/session-reconciler/internal/reconcile"
)

type fakeReports struct {
	report *reconcile.Report
	err    error
	runErr error
}

func (f *fakeReports) Latest(_ context.Context) (*reconcile.Report, error) {
	return f.report, f.err
}

func (f *fakeReports) RunOnce(_ context.Context) (*reconcile.Report, error) {
	if f.runErr != nil {
		return nil, f.runErr
	}
	return f.report, nil
}

type fakeRepo struct {
	runs []reconcile.RunSummary
}

func (f *fakeRepo) Insert(_ context.Context, _ *reconcile.Report) error { return nil }
func (f *fakeRepo) Latest(_ context.Context) (*reconcile.Report, error) {
	return nil, reconcile.ErrNoReport
}
func (f *fakeRepo) List(_ context.Context, limit int) ([]reconcile.RunSummary, error) {
	if limit < len(f.runs) {
		return f.runs[:limit], nil
	}
	return f.runs, nil
}

type fakeEvents struct {
	events []domain.Event
}

func (f *fakeEvents) FetchVisitorEvents(_ context.Context, _ string, _ int) ([]domain.Event, error) {
	return f.events, nil
}

func testServer(reports ReportService, repo reconcile.Repository, events VisitorEventSource) *httptest.Server {
	h := NewHandlers(reports, repo, events, 0, 0)
	return httptest.NewServer(SetupRoutes(h, nil))
}

func doGet(t *testing.T, url string) (*http.Response, map[string]json.RawMessage) {
	t.Helper()
	resp, err := http.Get(url)
	if err != nil {
		t.Fatalf("GET %s: %v", url, err)
	}
	t.Cleanup(func() { resp.Body.Close() })
	var body map[string]json.RawMessage
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	return resp, body
}

// =============================================================================
// Endpoint tests
// =============================================================================

func TestHealthCheck(t *testing.T) {
	ts := testServer(&fakeReports{}, nil, nil)
	defer ts.Close()

	resp, body := doGet(t, ts.URL+"/health")
	if resp.StatusCode != http.StatusOK {
		t.Errorf("status = %d, want 200", resp.StatusCode)
	}
	if string(body["status"]) != `"ok"` {
		t.Errorf("status body = %s", body["status"])
	}
}

func TestGetLatestReport(t *testing.T) {
	report := &reconcile.Report{ID: uuid.New(), Period: "2026-03-01 to 2026-03-08", MatchRate: 92.5}
	ts := testServer(&fakeReports{report: report}, nil, nil)
	defer ts.Close()

	resp, body := doGet(t, ts.URL+"/api/report/latest")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	if string(body["period"]) != `"2026-03-01 to 2026-03-08"` {
		t.Errorf("period = %s", body["period"])
	}
}

func TestGetLatestReportNone(t *testing.T) {
	ts := testServer(&fakeReports{err: reconcile.ErrNoReport}, nil, nil)
	defer ts.Close()

	resp, _ := doGet(t, ts.URL+"/api/report/latest")
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("status = %d, want 404", resp.StatusCode)
	}
}

func TestTriggerRun(t *testing.T) {
	report := &reconcile.Report{ID: uuid.New()}
	ts := testServer(&fakeReports{report: report}, nil, nil)
	defer ts.Close()

	resp, err := http.Post(ts.URL+"/api/report/run", "application/json", nil)
	if err != nil {
		t.Fatalf("POST: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("status = %d, want 200", resp.StatusCode)
	}
}

func TestTriggerRunConflict(t *testing.T) {
	ts := testServer(&fakeReports{runErr: reconcile.ErrRunInProgress}, nil, nil)
	defer ts.Close()

	resp, err := http.Post(ts.URL+"/api/report/run", "application/json", nil)
	if err != nil {
		t.Fatalf("POST: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusConflict {
		t.Errorf("status = %d, want 409", resp.StatusCode)
	}
}

func TestListRuns(t *testing.T) {
	repo := &fakeRepo{runs: []reconcile.RunSummary{
		{ID: uuid.NewString(), Period: "2026-03-01 to 2026-03-08", MatchRate: 85.7},
	}}
	ts := testServer(&fakeReports{}, repo, nil)
	defer ts.Close()

	resp, body := doGet(t, ts.URL+"/api/report/runs")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	var runs []reconcile.RunSummary
	if err := json.Unmarshal(body["runs"], &runs); err != nil {
		t.Fatalf("decode runs: %v", err)
	}
	if len(runs) != 1 || runs[0].MatchRate != 85.7 {
		t.Errorf("runs = %+v", runs)
	}
}

func TestListRunsBadLimit(t *testing.T) {
	ts := testServer(&fakeReports{}, &fakeRepo{}, nil)
	defer ts.Close()

	resp, _ := doGet(t, ts.URL+"/api/report/runs?limit=abc")
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", resp.StatusCode)
	}
}

func TestGetAttributionSummary(t *testing.T) {
	report := &reconcile.Report{
		Period:     "2026-03-01 to 2026-03-08",
		TopSources: []attribution.FrequencyRow{{Label: "mkt-google", Count: 42}},
	}
	ts := testServer(&fakeReports{report: report}, nil, nil)
	defer ts.Close()

	resp, body := doGet(t, ts.URL+"/api/attribution/summary")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	var sources []attribution.FrequencyRow
	if err := json.Unmarshal(body["top_sources"], &sources); err != nil {
		t.Fatalf("decode top_sources: %v", err)
	}
	if len(sources) != 1 || sources[0].Label != "mkt-google" {
		t.Errorf("top_sources = %+v", sources)
	}
}

func TestGetVisitorSessions(t *testing.T) {
	base := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	events := &fakeEvents{events: []domain.Event{
		{VisitorID: "v1", OriginalSession: 1, DeviceAt: base, CollectedAt: base},
		{VisitorID: "v1", OriginalSession: 1, DeviceAt: base.Add(time.Hour), CollectedAt: base.Add(time.Hour)},
	}}
	ts := testServer(&fakeReports{}, nil, events)
	defer ts.Close()

	resp, body := doGet(t, ts.URL+"/api/visitors/v1/sessions")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	if string(body["sessions"]) != "2" {
		t.Errorf("sessions = %s, want 2", body["sessions"])
	}

	var timeline []visitorTimelineRow
	if err := json.Unmarshal(body["timeline"], &timeline); err != nil {
		t.Fatalf("decode timeline: %v", err)
	}
	if len(timeline) != 2 {
		t.Fatalf("timeline len = %d, want 2", len(timeline))
	}
	if timeline[0].NewSession != 1 || timeline[1].NewSession != 2 {
		t.Errorf("new sessions = %d, %d, want 1, 2", timeline[0].NewSession, timeline[1].NewSession)
	}
}

func TestGetVisitorSessionsUsesConfiguredGap(t *testing.T) {
	// Two events 10 minutes apart: one session under the default gap, two
	// under a 5-minute gap. The debug endpoint must honor the configured
	// value so its timeline matches the engine's reports.
	base := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	events := &fakeEvents{events: []domain.Event{
		{VisitorID: "v1", OriginalSession: 1, DeviceAt: base, CollectedAt: base},
		{VisitorID: "v1", OriginalSession: 1, DeviceAt: base.Add(10 * time.Minute), CollectedAt: base.Add(10 * time.Minute)},
	}}

	h := NewHandlers(&fakeReports{}, nil, events, 5*time.Minute, 0)
	ts := httptest.NewServer(SetupRoutes(h, nil))
	defer ts.Close()

	resp, body := doGet(t, ts.URL+"/api/visitors/v1/sessions")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	if string(body["sessions"]) != "2" {
		t.Errorf("sessions = %s, want 2 with a 5-minute gap", body["sessions"])
	}
}

func TestGetVisitorSessionsNoEvents(t *testing.T) {
	ts := testServer(&fakeReports{}, nil, &fakeEvents{})
	defer ts.Close()

	resp, _ := doGet(t, ts.URL+"/api/visitors/unknown/sessions")
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("status = %d, want 404", resp.StatusCode)
	}
}
