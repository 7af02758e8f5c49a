package eventstore

import (
	"context"
	"fmt"
	"time"

	"github.com/ignite/session-reconciler/internal/domain"
)

// FetchEvents returns all pageview events collected in [start, end), ordered
// by visitor id, device timestamp, collected timestamp. The ordering matches
// what the resegmentation scan needs, so callers only have to bucket per
// visitor, not re-sort.
func (c *Client) FetchEvents(ctx context.Context, start, end time.Time) ([]domain.Event, error) {
	query := fmt.Sprintf(`
		SELECT visitor_id, original_session_idx, collected_at, device_at,
		       page_referrer, mkt_medium, mkt_source, mkt_term, mkt_content, mkt_campaign,
		       refr_source, refr_medium
		FROM %s
		WHERE collected_at >= ? AND collected_at < ?
		ORDER BY visitor_id, device_at, collected_at
	`, c.config.Table)

	rows, err := c.conn.Query(ctx, query, start, end)
	if err != nil {
		return nil, fmt.Errorf("query events: %w", err)
	}
	defer rows.Close()

	var events []domain.Event
	for rows.Next() {
		var (
			e           domain.Event
			originalIdx int32
		)
		if err := rows.Scan(
			&e.VisitorID, &originalIdx, &e.CollectedAt, &e.DeviceAt,
			&e.PageReferrer, &e.MarketingMedium, &e.MarketingSource,
			&e.MarketingTerm, &e.MarketingContent, &e.MarketingCampaign,
			&e.ReferrerSource, &e.ReferrerMedium,
		); err != nil {
			return nil, fmt.Errorf("scan event row: %w", err)
		}
		e.OriginalSession = int(originalIdx)
		events = append(events, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate event rows: %w", err)
	}

	return events, nil
}

// FetchVisitorEvents returns one visitor's events in device-timestamp order,
// used by the per-visitor debug endpoint.
func (c *Client) FetchVisitorEvents(ctx context.Context, visitorID string, limit int) ([]domain.Event, error) {
	if limit <= 0 {
		limit = 1000
	}

	query := fmt.Sprintf(`
		SELECT visitor_id, original_session_idx, collected_at, device_at,
		       page_referrer, mkt_medium, mkt_source, mkt_term, mkt_content, mkt_campaign,
		       refr_source, refr_medium
		FROM %s
		WHERE visitor_id = ?
		ORDER BY device_at, collected_at
		LIMIT ?
	`, c.config.Table)

	rows, err := c.conn.Query(ctx, query, visitorID, limit)
	if err != nil {
		return nil, fmt.Errorf("query visitor events: %w", err)
	}
	defer rows.Close()

	var events []domain.Event
	for rows.Next() {
		var (
			e           domain.Event
			originalIdx int32
		)
		if err := rows.Scan(
			&e.VisitorID, &originalIdx, &e.CollectedAt, &e.DeviceAt,
			&e.PageReferrer, &e.MarketingMedium, &e.MarketingSource,
			&e.MarketingTerm, &e.MarketingContent, &e.MarketingCampaign,
			&e.ReferrerSource, &e.ReferrerMedium,
		); err != nil {
			return nil, fmt.Errorf("scan event row: %w", err)
		}
		e.OriginalSession = int(originalIdx)
		events = append(events, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate event rows: %w", err)
	}

	return events, nil
}

// InsertAuditRows batch-inserts recomputed session assignments into the
// audit table so analysts can diff old vs new numbering per event.
func (c *Client) InsertAuditRows(ctx context.Context, rows []domain.SessionAuditRow) error {
	if len(rows) == 0 {
		return nil
	}

	batch, err := c.conn.PrepareBatch(ctx, `
		INSERT INTO session_index_audit (visitor_id, device_at, original_session_idx, new_session_idx)
	`)
	if err != nil {
		return fmt.Errorf("prepare audit batch: %w", err)
	}

	for _, r := range rows {
		if err := batch.Append(r.VisitorID, r.DeviceAt, int32(r.OriginalSession), int32(r.NewSession)); err != nil {
			return fmt.Errorf("append audit row (visitor=%s): %w", r.VisitorID, err)
		}
	}

	if err := batch.Send(); err != nil {
		return fmt.Errorf("send audit batch: %w", err)
	}
	return nil
}
