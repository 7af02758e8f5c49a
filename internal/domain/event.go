package domain

import "time"

// ReferrerMediumInternal is the referrer classification assigned by the
// tracker to navigation within the site's own domains. Internal referrers
// never open a new traffic-source partition.
const ReferrerMediumInternal = "internal"

// Event is a single pageview (or other atomic) event as recorded by the
// tracking pipeline. Events carry the session index the third-party
// analytics tool stamped on them at collection time; the reconciler derives
// its own indices and compares the two.
type Event struct {
	VisitorID       string    `json:"visitor_id" db:"visitor_id"`
	OriginalSession int       `json:"original_session" db:"original_session_idx"`
	CollectedAt     time.Time `json:"collected_at" db:"collected_at"`
	DeviceAt        time.Time `json:"device_at" db:"device_at"`

	// Raw referrer descriptor.
	PageReferrer      string `json:"page_referrer" db:"page_referrer"`
	MarketingMedium   string `json:"mkt_medium" db:"mkt_medium"`
	MarketingSource   string `json:"mkt_source" db:"mkt_source"`
	MarketingTerm     string `json:"mkt_term" db:"mkt_term"`
	MarketingContent  string `json:"mkt_content" db:"mkt_content"`
	MarketingCampaign string `json:"mkt_campaign" db:"mkt_campaign"`

	// Referrer classification as derived by the tracker's enrichment
	// (e.g. "google"/"search", "facebook"/"social", ""/"internal").
	ReferrerSource string `json:"refr_source" db:"refr_source"`
	ReferrerMedium string `json:"refr_medium" db:"refr_medium"`
}

// CompositeSignature concatenates the raw referrer with the five marketing
// fields. A change in any of them signals a change of traffic provenance.
// Absent fields contribute the empty string, so an event with no referrer
// data at all yields "".
func (e Event) CompositeSignature() string {
	return e.PageReferrer + e.MarketingMedium + e.MarketingSource +
		e.MarketingTerm + e.MarketingContent + e.MarketingCampaign
}

// HasExternalReferrer reports whether the event carries referrer data that
// should open a new traffic-source partition. Empty signatures and
// internal-medium referrers both count as "no external referrer".
func (e Event) HasExternalReferrer() bool {
	return e.CompositeSignature() != "" && e.ReferrerMedium != ReferrerMediumInternal
}
