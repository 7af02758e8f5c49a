// Package session implements session re-segmentation over per-visitor event
// streams.
//
// The tracker's own session numbering is cookie-based and diverges from what
// the third-party analytics tool reports. This package re-derives session
// boundaries from the raw events using two rules: a 30-minute inactivity gap
// and a change of traffic-source provenance (the "representative referrer"
// in force at each event). The computation is a single left-to-right scan
// per visitor with a few accumulator variables and no external state.
//
// Events for different visitors are independent; callers may scan visitors
// in parallel (see internal/worker) but must never reorder events within a
// visitor.
package session
