package clickhouse

import (
	"context"
	"fmt"

	"github.com/ClickHouse/clickhouse-go/v2"
	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"
	"github.com/loykin/tablesync/internal/history"
)

// DefaultTable receives events when the DSN names no table.
const DefaultTable = "change_history"

// Sink sends events to ClickHouse using the official ClickHouse Go client.
type Sink struct {
	conn  driver.Conn
	table string
}

// New connects to the native protocol address and creates table if missing.
func New(addr, table string) (*Sink, error) {
	if table == "" {
		table = DefaultTable
	}
	conn, err := clickhouse.Open(&clickhouse.Options{
		Addr: []string{addr},
		Auth: clickhouse.Auth{
			Database: "default",
			Username: "default",
			Password: "",
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to ClickHouse: %w", err)
	}

	if err := conn.Ping(context.Background()); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("failed to ping ClickHouse: %w", err)
	}

	s := &Sink{conn: conn, table: table}
	if err := s.ensureSchema(context.Background()); err != nil {
		_ = conn.Close()
		return nil, err
	}
	return s, nil
}

func (s *Sink) ensureSchema(ctx context.Context) error {
	err := s.conn.Exec(ctx, fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %s (
			type String,
			occurred_at DateTime64(6),
			worker LowCardinality(String),
			table_name LowCardinality(String),
			idx UInt16,
			op LowCardinality(String),
			version UInt32,
			record_id UInt64,
			detail String
		) ENGINE = MergeTree()
		ORDER BY (table_name, idx, occurred_at)`, s.table))
	if err != nil {
		return fmt.Errorf("failed to create ClickHouse table %s: %w", s.table, err)
	}
	return nil
}

func (s *Sink) Close() error {
	if s.conn != nil {
		return s.conn.Close()
	}
	return nil
}

func (s *Sink) Send(ctx context.Context, e history.Event) error {
	query := fmt.Sprintf(`INSERT INTO %s (type, occurred_at, worker, table_name, idx, op, version, record_id, detail) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`, s.table)

	c := e.Change
	err := s.conn.Exec(ctx, query,
		string(e.Type),
		e.OccurredAt,
		c.Worker,
		c.Table,
		uint16(c.Index), // #nosec G115
		c.Op,
		c.Version,
		c.RecordID,
		c.Detail,
	)
	if err != nil {
		return fmt.Errorf("failed to insert event into ClickHouse: %w", err)
	}
	return nil
}
