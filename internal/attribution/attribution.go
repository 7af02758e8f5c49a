package attribution

import (
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/ignite/session-reconciler/internal/domain"
)

// DefaultRecencyHorizon bounds carry-forward attribution: a session more
// than 183 days after its campaign partition's first touch is no longer
// credited to that campaign. The comparison is strict: elapsed time equal
// to the horizon already falls through to "direct".
const DefaultRecencyHorizon = 15811200 * time.Second // 183 days

// Label prefixes distinguish how a session was attributed.
const (
	prefixMarketing = "mkt-"
	prefixReferrer  = "refr-"
	labelDirect     = "direct"
)

// ErrUnorderedStarts is returned when session starts are not in ascending
// session-index order for a visitor.
var ErrUnorderedStarts = errors.New("session starts are not in session-index order")

// Label is the resolved (source, medium) attribution of one session.
type Label struct {
	Source string `json:"source"`
	Medium string `json:"medium"`
}

// Attributor resolves session attribution labels.
type Attributor struct {
	horizon time.Duration
}

// NewAttributor creates an attributor with the given carry-forward recency
// horizon. A non-positive horizon falls back to DefaultRecencyHorizon.
func NewAttributor(horizon time.Duration) *Attributor {
	if horizon <= 0 {
		horizon = DefaultRecencyHorizon
	}
	return &Attributor{horizon: horizon}
}

// Attribute resolves one label per session start for a single visitor.
// starts must be ordered by session index ascending.
//
// Precedence per start:
//  1. explicit marketing source        -> mkt-source / mkt-medium
//  2. classified referrer source       -> refr-source / refr-medium
//  3. carry-forward within the horizon -> mkt-carried source / medium
//  4. otherwise                        -> direct / direct
//
// The carry-forward value is the (timestamp, source, medium) of the first
// event of the enclosing campaign partition; partitions begin at every
// session start carrying an explicit marketing source, so sessions before
// the visitor's first campaign touch have nothing to inherit.
func (a *Attributor) Attribute(starts []domain.SessionStart) ([]Label, error) {
	labels := make([]Label, len(starts))

	var carry struct {
		at     time.Time
		source string
		medium string
		set    bool
	}

	lastIdx := 0
	for i, s := range starts {
		if s.SessionIndex <= lastIdx {
			return nil, fmt.Errorf("visitor %s session %d after %d: %w",
				s.VisitorID, s.SessionIndex, lastIdx, ErrUnorderedStarts)
		}
		lastIdx = s.SessionIndex

		if s.MarketingSource != "" {
			carry.at = s.DeviceAt
			carry.source = s.MarketingSource
			carry.medium = s.MarketingMedium
			carry.set = true
		}

		switch {
		case s.MarketingSource != "":
			labels[i] = Label{
				Source: prefixMarketing + s.MarketingSource,
				Medium: prefixMarketing + s.MarketingMedium,
			}
		case s.ReferrerSource != "":
			labels[i] = Label{
				Source: prefixReferrer + s.ReferrerSource,
				Medium: prefixReferrer + s.ReferrerMedium,
			}
		case carry.set && s.DeviceAt.Sub(carry.at) < a.horizon:
			labels[i] = Label{
				Source: prefixMarketing + carry.source,
				Medium: prefixMarketing + carry.medium,
			}
		default:
			labels[i] = Label{Source: labelDirect, Medium: labelDirect}
		}
	}

	return labels, nil
}

// FrequencyRow is one entry of an attribution frequency table.
type FrequencyRow struct {
	Label string `json:"label"`
	Count int64  `json:"count"`
}

// Summarize builds independent frequency tables over source labels and
// medium labels, each ordered by descending count with ties broken by label
// for deterministic output.
func Summarize(labels []Label) (sources, mediums []FrequencyRow) {
	srcCounts := make(map[string]int64)
	medCounts := make(map[string]int64)
	for _, l := range labels {
		srcCounts[l.Source]++
		medCounts[l.Medium]++
	}
	return toRows(srcCounts), toRows(medCounts)
}

func toRows(counts map[string]int64) []FrequencyRow {
	rows := make([]FrequencyRow, 0, len(counts))
	for label, n := range counts {
		rows = append(rows, FrequencyRow{Label: label, Count: n})
	}
	sort.Slice(rows, func(i, j int) bool {
		if rows[i].Count != rows[j].Count {
			return rows[i].Count > rows[j].Count
		}
		return rows[i].Label < rows[j].Label
	})
	return rows
}
