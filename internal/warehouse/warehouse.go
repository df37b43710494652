// Package warehouse is the single point of execution against the analytical
// store. Every query runs on its own pooled connection inside a read-only
// transaction with a statement timeout: a second enforcement layer beneath
// the AST guard.
package warehouse

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/sirupsen/logrus"
)

// Config holds warehouse connection settings.
type Config struct {
	URL              string        // postgres connection string
	MaxConns         int32         // bounded pool size
	StatementTimeout time.Duration // hard per-statement ceiling
	AnchorTable      string        // table probed for MAX(ds)
}

// Executor runs read-only SQL and returns tabular results.
type Executor interface {
	Query(ctx context.Context, sql string) (*Table, error)
}

// Pool wraps a bounded pgx pool with the read-only session discipline.
type Pool struct {
	pool   *pgxpool.Pool
	cfg    Config
	logger *logrus.Logger
}

func NewPool(ctx context.Context, cfg Config, logger *logrus.Logger) (*Pool, error) {
	poolCfg, err := pgxpool.ParseConfig(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("parse warehouse config: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}
	poolCfg.MaxConnLifetime = time.Hour
	poolCfg.MaxConnIdleTime = 30 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("create warehouse pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping warehouse: %w", err)
	}

	if cfg.StatementTimeout <= 0 {
		cfg.StatementTimeout = 15 * time.Second
	}
	if cfg.AnchorTable == "" {
		cfg.AnchorTable = "user_profile_360"
	}

	logger.WithField("anchor_table", cfg.AnchorTable).Info("connected to warehouse")
	return &Pool{pool: pool, cfg: cfg, logger: logger}, nil
}

func (p *Pool) Close() {
	p.pool.Close()
}

// Query executes one SELECT inside a read-only transaction with the
// configured statement timeout. The connection is acquired per call and
// released on every exit path; callers never hold one across retries.
func (p *Pool) Query(ctx context.Context, sql string) (*Table, error) {
	ctx, cancel := context.WithTimeout(ctx, p.cfg.StatementTimeout+5*time.Second)
	defer cancel()

	tx, err := p.pool.BeginTx(ctx, pgx.TxOptions{AccessMode: pgx.ReadOnly})
	if err != nil {
		return nil, fmt.Errorf("begin read-only tx: %w", err)
	}
	defer tx.Rollback(ctx) // read-only; rollback is the only sensible end

	timeout := fmt.Sprintf("SET LOCAL statement_timeout = '%dms'", p.cfg.StatementTimeout.Milliseconds())
	if _, err := tx.Exec(ctx, timeout); err != nil {
		return nil, fmt.Errorf("set statement timeout: %w", err)
	}

	rows, err := tx.Query(ctx, sql)
	if err != nil {
		return nil, fmt.Errorf("execute query: %w", err)
	}
	defer rows.Close()

	tbl, err := collectTable(rows)
	if err != nil {
		return nil, err
	}
	return tbl, nil
}

// LatestPartition probes the anchor table for its newest partition key.
// Implements partition.Prober.
func (p *Pool) LatestPartition(ctx context.Context) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	var ds *string
	sql := fmt.Sprintf("SELECT MAX(ds) FROM %s", p.cfg.AnchorTable)
	if err := p.pool.QueryRow(ctx, sql).Scan(&ds); err != nil {
		return "", fmt.Errorf("probe anchor table: %w", err)
	}
	if ds == nil || *ds == "" {
		return "", fmt.Errorf("anchor table %s is empty", p.cfg.AnchorTable)
	}
	return *ds, nil
}

func collectTable(rows pgx.Rows) (*Table, error) {
	fields := rows.FieldDescriptions()
	cols := make([]string, len(fields))
	for i, f := range fields {
		cols[i] = f.Name
	}

	tbl := &Table{Columns: cols}
	for rows.Next() {
		vals, err := rows.Values()
		if err != nil {
			return nil, fmt.Errorf("scan row: %w", err)
		}
		row := make([]any, len(vals))
		copy(row, vals)
		tbl.Rows = append(tbl.Rows, row)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration: %w", err)
	}
	return tbl, nil
}
