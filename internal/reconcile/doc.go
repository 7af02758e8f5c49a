// Package reconcile compares session counts between the tracking pipeline
// and the third-party analytics tool.
//
// The engine pulls raw events from the pipeline's event store, re-derives
// session boundaries with internal/session, and diffs the recomputed counts
// against the session totals the analytics tool reports into the warehouse.
// The result is a ReconciliationReport: per-day rows, discrepancies, a match
// rate, and attribution frequency tables for the recomputed sessions.
//
// The runner wraps the engine in a periodic loop guarded by a distributed
// lock, persists finished reports, and keeps the latest one cached in Redis
// for the API.
package reconcile
