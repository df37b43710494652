// Package audit journals every copilot request to ClickHouse. Writes are
// one-way: a failed insert is logged and never fails the request it records.
package audit

import (
	"context"
	"fmt"
	"time"

	"github.com/ClickHouse/clickhouse-go/v2"
	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"
	"github.com/sirupsen/logrus"
)

// Record is one request journal entry.
type Record struct {
	Timestamp        time.Time
	Username         string
	Question         string
	GeneratedSQL     string
	ExecutionSuccess bool
	ErrorMessage     string
	ResolvedLatestDS string
	RowCount         int
	ExecutionMS      int64
	VisualType       string
	RetryCount       int
	TablesUsed       []string
}

// Logger is the journaling port the pipeline writes to.
type Logger interface {
	Log(ctx context.Context, rec Record)
}

// Nop discards records. Used when no audit store is configured and in tests.
type Nop struct{}

func (Nop) Log(context.Context, Record) {}

// Config holds ClickHouse connection settings for the journal.
type Config struct {
	Addr     string
	Database string
	Username string
	Password string
}

// Store writes records to the chat_logs table.
type Store struct {
	conn   driver.Conn
	logger *logrus.Logger
}

func NewStore(ctx context.Context, cfg Config, logger *logrus.Logger) (*Store, error) {
	conn, err := clickhouse.Open(&clickhouse.Options{
		Addr: []string{cfg.Addr},
		Auth: clickhouse.Auth{
			Database: cfg.Database,
			Username: cfg.Username,
			Password: cfg.Password,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to ClickHouse: %w", err)
	}

	if err := conn.Ping(ctx); err != nil {
		return nil, fmt.Errorf("failed to ping ClickHouse: %w", err)
	}

	logger.WithField("addr", cfg.Addr).Info("connected to audit store")
	return &Store{conn: conn, logger: logger}, nil
}

func (s *Store) Close() error {
	return s.conn.Close()
}

func (s *Store) Log(ctx context.Context, rec Record) {
	if rec.Timestamp.IsZero() {
		rec.Timestamp = time.Now().UTC()
	}

	query := `
		INSERT INTO chat_logs (
			timestamp, username, user_question, generated_sql,
			execution_success, error_message, resolved_latest_ds,
			row_count, execution_ms, visual_type, correction_attempts, tables_used
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	err := s.conn.Exec(ctx, query,
		rec.Timestamp,
		rec.Username,
		rec.Question,
		rec.GeneratedSQL,
		rec.ExecutionSuccess,
		rec.ErrorMessage,
		rec.ResolvedLatestDS,
		uint32(rec.RowCount),
		uint64(rec.ExecutionMS),
		rec.VisualType,
		uint8(rec.RetryCount),
		rec.TablesUsed,
	)
	if err != nil {
		s.logger.WithError(err).Warn("failed to write audit record")
	}
}
