package sponsor

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/mcdev12/majorityrules/go/internal/sqlutil"
)

const grantSchema = `
CREATE TABLE IF NOT EXISTS sponsor_grants (
    id          UUID PRIMARY KEY,
    sender      TEXT NOT NULL,
    target      TEXT NOT NULL,
    budget      BIGINT NOT NULL,
    issued_at   TIMESTAMPTZ NOT NULL,
    expires_at  TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS sponsor_grants_sender_issued_idx ON sponsor_grants (sender, issued_at);
`

// PostgresGrantStore keeps the grant audit trail in Postgres.
type PostgresGrantStore struct {
	db *sql.DB
}

func NewPostgresGrantStore(db *sql.DB) *PostgresGrantStore {
	return &PostgresGrantStore{db: db}
}

// EnsureSchema creates the grants table if it does not exist.
func (p *PostgresGrantStore) EnsureSchema(ctx context.Context) error {
	if _, err := p.db.ExecContext(ctx, grantSchema); err != nil {
		return fmt.Errorf("failed to create grant schema: %w", err)
	}
	return nil
}

type grantQueries struct {
	tx *sql.Tx
}

func newGrantQueries(tx *sql.Tx) *grantQueries {
	return &grantQueries{tx: tx}
}

// lockSender serialises quota checks for one sender until the tx ends.
func (q *grantQueries) lockSender(ctx context.Context, sender string) error {
	_, err := q.tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock(hashtext($1))`, sender)
	return err
}

func (q *grantQueries) countSince(ctx context.Context, sender string, since time.Time) (int, error) {
	var n int
	err := q.tx.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM sponsor_grants WHERE sender = $1 AND issued_at >= $2`,
		sender, since,
	).Scan(&n)
	return n, err
}

func (q *grantQueries) insert(ctx context.Context, rec GrantRecord) error {
	_, err := q.tx.ExecContext(ctx,
		`INSERT INTO sponsor_grants (id, sender, target, budget, issued_at, expires_at)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		rec.ID, rec.Sender, rec.Target, int64(rec.Budget), rec.IssuedAt, rec.ExpiresAt,
	)
	return err
}

func (p *PostgresGrantStore) Reserve(ctx context.Context, rec GrantRecord, limit int, since time.Time) error {
	return sqlutil.Run(ctx, p.db, newGrantQueries, func(q *grantQueries) error {
		if limit > 0 {
			if err := q.lockSender(ctx, rec.Sender); err != nil {
				return fmt.Errorf("failed to lock sender: %w", err)
			}
			count, err := q.countSince(ctx, rec.Sender, since)
			if err != nil {
				return fmt.Errorf("failed to count grants: %w", err)
			}
			if count >= limit {
				return ErrQuotaExceeded
			}
		}
		if err := q.insert(ctx, rec); err != nil {
			return fmt.Errorf("failed to record grant: %w", err)
		}
		return nil
	})
}
