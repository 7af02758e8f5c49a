package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/ignite/session-reconciler/internal/reconcile"
)

func TestReconcileRunRepoInsert(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	defer db.Close()

	report := &reconcile.Report{
		ID:                 uuid.New(),
		Period:             "2026-03-01 to 2026-03-08",
		ToolSessions:       100,
		RecomputedSessions: 97,
		MatchRate:          85.7,
		GeneratedAt:        time.Now(),
	}

	mock.ExpectExec("INSERT INTO reconcile_runs").
		WithArgs(report.ID, report.Period, report.Start, report.End,
			report.ToolSessions, report.RecomputedSessions, report.Visitors, report.Events,
			report.MatchRate, 0, report.DurationMs, sqlmock.AnyArg(), report.GeneratedAt).
		WillReturnResult(sqlmock.NewResult(0, 1))

	repo := NewReconcileRunRepo(db)
	if err := repo.Insert(context.Background(), report); err != nil {
		t.Fatalf("Insert: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}

func TestReconcileRunRepoLatest(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	defer db.Close()

	want := &reconcile.Report{ID: uuid.New(), Period: "2026-03-01 to 2026-03-08", MatchRate: 92.5}
	payload, _ := json.Marshal(want)

	mock.ExpectQuery("SELECT payload FROM reconcile_runs").
		WillReturnRows(sqlmock.NewRows([]string{"payload"}).AddRow(payload))

	repo := NewReconcileRunRepo(db)
	got, err := repo.Latest(context.Background())
	if err != nil {
		t.Fatalf("Latest: %v", err)
	}
	if got.ID != want.ID {
		t.Errorf("ID = %s, want %s", got.ID, want.ID)
	}
	if got.MatchRate != want.MatchRate {
		t.Errorf("MatchRate = %.1f, want %.1f", got.MatchRate, want.MatchRate)
	}
}

func TestReconcileRunRepoLatestEmpty(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	defer db.Close()

	mock.ExpectQuery("SELECT payload FROM reconcile_runs").
		WillReturnRows(sqlmock.NewRows([]string{"payload"}))

	repo := NewReconcileRunRepo(db)
	if _, err := repo.Latest(context.Background()); !errors.Is(err, reconcile.ErrNoReport) {
		t.Errorf("Latest error = %v, want ErrNoReport", err)
	}
}

func TestReconcileRunRepoList(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	defer db.Close()

	now := time.Date(2026, 3, 8, 6, 0, 0, 0, time.UTC)
	rows := sqlmock.NewRows([]string{
		"id", "period", "tool_sessions", "recomputed_sessions", "match_rate", "generated_at",
	}).
		AddRow(uuid.NewString(), "2026-03-01 to 2026-03-08", 100, 97, 85.7, now).
		AddRow(uuid.NewString(), "2026-02-22 to 2026-03-01", 90, 90, 100.0, now.Add(-7*24*time.Hour))

	mock.ExpectQuery("SELECT id, period, tool_sessions").
		WithArgs(10).
		WillReturnRows(rows)

	repo := NewReconcileRunRepo(db)
	got, err := repo.List(context.Background(), 10)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("List len = %d, want 2", len(got))
	}
	if got[0].MatchRate != 85.7 {
		t.Errorf("MatchRate = %.1f, want 85.7", got[0].MatchRate)
	}
	if got[0].GeneratedAt != "2026-03-08T06:00:00Z" {
		t.Errorf("GeneratedAt = %s", got[0].GeneratedAt)
	}
}
