package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/brandintel/sentiment-platform/pkg/config"
	_ "github.com/lib/pq"
)

// runLockKey is the advisory lock key serialising pipeline runs against the
// same database. The delete-then-insert merge is not safe under concurrent
// writers, so only one run may hold it at a time.
const runLockKey = 0x5EB71

type Client struct {
	DB  *sql.DB
	cfg config.PostgresConfig
}

func New(cfg config.PostgresConfig) (*Client, error) {
	db, err := sql.Open("postgres", cfg.DSN())
	if err != nil {
		return nil, fmt.Errorf("opening postgres connection: %w", err)
	}

	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.ConnMaxLifetime)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		return nil, fmt.Errorf("pinging postgres: %w", err)
	}
	return &Client{DB: db, cfg: cfg}, nil
}

func (c *Client) Close() error {
	return c.DB.Close()
}

func (c *Client) InTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := c.DB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	if err := fn(tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			return fmt.Errorf("rolling back transaction after error %v: %w", rbErr, err)
		}
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing transaction: %w", err)
	}

	return nil
}

// RunLock wraps a session-scoped advisory lock held for the duration of a
// pipeline run.
type RunLock struct {
	conn *sql.Conn
}

// TryRunLock attempts to take the run lock without blocking. It returns
// (nil, false, nil) when another run already holds the lock.
func (c *Client) TryRunLock(ctx context.Context) (*RunLock, bool, error) {
	conn, err := c.DB.Conn(ctx)
	if err != nil {
		return nil, false, fmt.Errorf("acquiring connection for run lock: %w", err)
	}
	var acquired bool
	if err := conn.QueryRowContext(ctx, `SELECT pg_try_advisory_lock($1)`, runLockKey).Scan(&acquired); err != nil {
		conn.Close()
		return nil, false, fmt.Errorf("acquiring run lock: %w", err)
	}
	if !acquired {
		conn.Close()
		return nil, false, nil
	}
	return &RunLock{conn: conn}, true, nil
}

// Release frees the advisory lock and returns the connection to the pool.
func (l *RunLock) Release(ctx context.Context) error {
	_, err := l.conn.ExecContext(ctx, `SELECT pg_advisory_unlock($1)`, runLockKey)
	if closeErr := l.conn.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		return fmt.Errorf("releasing run lock: %w", err)
	}
	return nil
}
