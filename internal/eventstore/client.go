package eventstore

import (
	"context"
	"fmt"
	"time"

	"github.com/ClickHouse/clickhouse-go/v2"
)

// Config holds ClickHouse connection settings for the pipeline event log.
type Config struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Database string `yaml:"database"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
	Table    string `yaml:"table"`
	Enabled  bool   `yaml:"enabled"`
}

// Client provides access to the ClickHouse event log written by the
// tracking pipeline.
type Client struct {
	config Config
	conn   clickhouse.Conn
}

// NewClient opens a native-protocol ClickHouse connection.
func NewClient(cfg Config) (*Client, error) {
	if cfg.Table == "" {
		cfg.Table = "pageview_events"
	}

	conn, err := clickhouse.Open(&clickhouse.Options{
		Addr: []string{fmt.Sprintf("%s:%d", cfg.Host, cfg.Port)},
		Auth: clickhouse.Auth{
			Database: cfg.Database,
			Username: cfg.Username,
			Password: cfg.Password,
		},
		Compression: &clickhouse.Compression{
			Method: clickhouse.CompressionLZ4,
		},
		DialTimeout: 5 * time.Second,
	})
	if err != nil {
		return nil, fmt.Errorf("open clickhouse connection: %w", err)
	}

	return &Client{config: cfg, conn: conn}, nil
}

// Ping tests the connection.
func (c *Client) Ping(ctx context.Context) error {
	return c.conn.Ping(ctx)
}

// Close closes the connection.
func (c *Client) Close() error {
	if c.conn != nil {
		return c.conn.Close()
	}
	return nil
}
