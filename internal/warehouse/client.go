// Package warehouse reads the session numbers the third-party analytics
// tool reports, from the Snowflake share the vendor loads them into. These
// counts are the baseline the reconciliation engine diffs against.
package warehouse

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/snowflakedb/gosnowflake" // Snowflake driver
)

// Client provides access to the analytics vendor's Snowflake share.
type Client struct {
	config Config
	db     *sql.DB
}

// NewClient creates a new warehouse client. Connection details come from
// the individual config fields, or from ConnectionString when set (the
// vendor console exports that form; see ParseConnectionString).
// DSN format: user:password@account/database/schema?warehouse=xxx
func NewClient(cfg Config) (*Client, error) {
	cfg = cfg.resolve()
	if cfg.Table == "" {
		cfg.Table = "TOOL_SESSIONS"
	}

	dsn := fmt.Sprintf("%s:%s@%s/%s/%s",
		cfg.User,
		cfg.Password,
		cfg.Account,
		cfg.Database,
		cfg.Schema,
	)
	if cfg.Warehouse != "" {
		dsn += "?warehouse=" + cfg.Warehouse
	}

	db, err := sql.Open("snowflake", dsn)
	if err != nil {
		return nil, fmt.Errorf("open snowflake connection: %w", err)
	}

	db.SetMaxOpenConns(5)
	db.SetMaxIdleConns(2)
	db.SetConnMaxLifetime(5 * time.Minute)

	return &Client{config: cfg, db: db}, nil
}

// NewClientWithDB wraps an existing database handle. Used by tests.
func NewClientWithDB(db *sql.DB, cfg Config) *Client {
	if cfg.Table == "" {
		cfg.Table = "TOOL_SESSIONS"
	}
	return &Client{config: cfg, db: db}
}

// Close closes the database connection.
func (c *Client) Close() error {
	if c.db != nil {
		return c.db.Close()
	}
	return nil
}

// Ping tests the database connection.
func (c *Client) Ping(ctx context.Context) error {
	return c.db.PingContext(ctx)
}

// GetDailySessionCounts returns the tool-reported session totals per day for
// sessions starting in [start, end).
func (c *Client) GetDailySessionCounts(ctx context.Context, start, end time.Time) ([]DailySessions, error) {
	query := fmt.Sprintf(`
		SELECT TO_VARCHAR(SESSION_DATE, 'YYYY-MM-DD') AS day, SUM(SESSION_COUNT) AS sessions
		FROM %s
		WHERE SESSION_DATE >= ? AND SESSION_DATE < ?
		GROUP BY day
		ORDER BY day
	`, c.config.Table)

	rows, err := c.db.QueryContext(ctx, query, start.Format("2006-01-02"), end.Format("2006-01-02"))
	if err != nil {
		return nil, fmt.Errorf("query daily session counts: %w", err)
	}
	defer rows.Close()

	var result []DailySessions
	for rows.Next() {
		var d DailySessions
		if err := rows.Scan(&d.Date, &d.Sessions); err != nil {
			return nil, fmt.Errorf("scan daily session row: %w", err)
		}
		result = append(result, d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate daily session rows: %w", err)
	}

	return result, nil
}

// GetVisitorSessionCounts returns the tool-reported session count per
// visitor for sessions starting in [start, end).
func (c *Client) GetVisitorSessionCounts(ctx context.Context, start, end time.Time) (map[string]int64, error) {
	query := fmt.Sprintf(`
		SELECT VISITOR_ID, SUM(SESSION_COUNT) AS sessions
		FROM %s
		WHERE SESSION_DATE >= ? AND SESSION_DATE < ?
		GROUP BY VISITOR_ID
	`, c.config.Table)

	rows, err := c.db.QueryContext(ctx, query, start.Format("2006-01-02"), end.Format("2006-01-02"))
	if err != nil {
		return nil, fmt.Errorf("query visitor session counts: %w", err)
	}
	defer rows.Close()

	result := make(map[string]int64)
	for rows.Next() {
		var v VisitorSessions
		if err := rows.Scan(&v.VisitorID, &v.Sessions); err != nil {
			return nil, fmt.Errorf("scan visitor session row: %w", err)
		}
		result[v.VisitorID] = v.Sessions
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate visitor session rows: %w", err)
	}

	return result, nil
}

// GetTotalSessionCount returns the tool-reported session total for the window.
func (c *Client) GetTotalSessionCount(ctx context.Context, start, end time.Time) (int64, error) {
	query := fmt.Sprintf(`
		SELECT COALESCE(SUM(SESSION_COUNT), 0)
		FROM %s
		WHERE SESSION_DATE >= ? AND SESSION_DATE < ?
	`, c.config.Table)

	var total int64
	err := c.db.QueryRowContext(ctx, query,
		start.Format("2006-01-02"), end.Format("2006-01-02")).Scan(&total)
	if err != nil {
		return 0, fmt.Errorf("query total session count: %w", err)
	}
	return total, nil
}
