package session

import (
	"sort"
	"time"

	"github.com/ignite/session-reconciler/internal/domain"
)

// DefaultInactivityGap is the elapsed time at which two consecutive events
// stop being part of the same session. The boundary is strict: a gap of
// exactly 30 minutes already starts a new session.
const DefaultInactivityGap = 1800 * time.Second

// Resegmenter derives new session indices for per-visitor event streams.
// The zero value is not usable; use NewResegmenter.
type Resegmenter struct {
	gap time.Duration
}

// NewResegmenter creates a re-segmenter with the given inactivity gap.
// A non-positive gap falls back to DefaultInactivityGap.
func NewResegmenter(gap time.Duration) *Resegmenter {
	if gap <= 0 {
		gap = DefaultInactivityGap
	}
	return &Resegmenter{gap: gap}
}

// Resegment assigns a new session index to every event of a single visitor.
// Events must be sorted by device timestamp ascending (equal timestamps are
// allowed and count as zero elapsed time). Indices start at 1 and increase
// by one at each session boundary; the first event is always a boundary.
//
// A pair of consecutive events stays in the same session only when the
// elapsed device time is strictly under the inactivity gap AND the
// representative referrer in force did not change. The representative
// referrer is the composite signature of the most recent external-referrer
// event; events without an external referrer inherit it, and a visitor whose
// stream starts without one carries the empty representative (empty equals
// empty).
func (r *Resegmenter) Resegment(events []domain.Event) ([]int, error) {
	if len(events) == 0 {
		return nil, nil
	}

	indices := make([]int, len(events))
	visitorID := events[0].VisitorID

	var (
		idx     int
		lastRep string
		lastAt  time.Time
	)

	for i, e := range events {
		if e.VisitorID == "" {
			return nil, inputErr(i, e.VisitorID, e.DeviceAt, ErrMissingVisitorID)
		}
		if e.DeviceAt.IsZero() {
			return nil, inputErr(i, e.VisitorID, e.DeviceAt, ErrMissingTimestamp)
		}
		if e.VisitorID != visitorID {
			return nil, inputErr(i, e.VisitorID, e.DeviceAt, ErrMixedVisitors)
		}
		if i > 0 && e.DeviceAt.Before(lastAt) {
			return nil, inputErr(i, e.VisitorID, e.DeviceAt, ErrInputOrder)
		}

		rep := lastRep
		if e.HasExternalReferrer() {
			rep = e.CompositeSignature()
		}

		if i == 0 || e.DeviceAt.Sub(lastAt) >= r.gap || rep != lastRep {
			idx++
		}
		indices[i] = idx

		lastRep = rep
		lastAt = e.DeviceAt
	}

	return indices, nil
}

// SessionStarts extracts the first event of each derived session. indices
// must be the slice returned by Resegment for the same events.
func SessionStarts(events []domain.Event, indices []int) []domain.SessionStart {
	var starts []domain.SessionStart
	prev := 0
	for i, e := range events {
		if indices[i] == prev {
			continue
		}
		prev = indices[i]
		starts = append(starts, domain.SessionStart{
			VisitorID:       e.VisitorID,
			SessionIndex:    indices[i],
			DeviceAt:        e.DeviceAt,
			MarketingSource: e.MarketingSource,
			MarketingMedium: e.MarketingMedium,
			ReferrerSource:  e.ReferrerSource,
			ReferrerMedium:  e.ReferrerMedium,
		})
	}
	return starts
}

// ResegmentAll groups a mixed event stream per visitor and scans each
// visitor serially. Callers that want parallelism across visitors use
// internal/worker instead; the per-visitor results are identical.
func (r *Resegmenter) ResegmentAll(events []domain.Event) (map[string][]int, error) {
	grouped := GroupByVisitor(events)
	indices := make(map[string][]int, len(grouped))
	for visitorID, bucket := range grouped {
		idx, err := r.Resegment(bucket)
		if err != nil {
			return nil, err
		}
		indices[visitorID] = idx
	}
	return indices, nil
}

// GroupByVisitor buckets a mixed event stream per visitor and sorts each
// bucket by device timestamp, breaking ties by collected timestamp. The sort
// is stable, so events that tie on both keys keep their input order and the
// scan stays deterministic.
func GroupByVisitor(events []domain.Event) map[string][]domain.Event {
	grouped := make(map[string][]domain.Event)
	for _, e := range events {
		grouped[e.VisitorID] = append(grouped[e.VisitorID], e)
	}
	for _, bucket := range grouped {
		sort.SliceStable(bucket, func(i, j int) bool {
			if !bucket[i].DeviceAt.Equal(bucket[j].DeviceAt) {
				return bucket[i].DeviceAt.Before(bucket[j].DeviceAt)
			}
			return bucket[i].CollectedAt.Before(bucket[j].CollectedAt)
		})
	}
	return grouped
}
