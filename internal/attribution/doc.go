// Package attribution assigns a traffic-source label to each derived
// session.
//
// It consumes the per-visitor session-start events produced by
// internal/session and resolves (source, medium) with a strict precedence:
// explicit campaign parameters first, then the classified referrer, then a
// carry-forward of the visitor's last explicit campaign when it is recent
// enough, and finally "direct". Aggregated frequency tables over the
// resolved labels feed the reconciliation report.
package attribution
