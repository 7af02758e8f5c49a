package domain

import "time"

// SessionStart is the representative first event of a derived session. The
// attributor consumes these in session-index order, one run per visitor.
type SessionStart struct {
	VisitorID    string    `json:"visitor_id"`
	SessionIndex int       `json:"session_index"`
	DeviceAt     time.Time `json:"device_at"`

	MarketingSource string `json:"mkt_source"`
	MarketingMedium string `json:"mkt_medium"`
	ReferrerSource  string `json:"refr_source"`
	ReferrerMedium  string `json:"refr_medium"`
}

// SessionAuditRow is one recomputed (event, session index) assignment,
// written back to the event store for later inspection.
type SessionAuditRow struct {
	VisitorID       string    `json:"visitor_id"`
	DeviceAt        time.Time `json:"device_at"`
	OriginalSession int       `json:"original_session"`
	NewSession      int       `json:"new_session"`
}
