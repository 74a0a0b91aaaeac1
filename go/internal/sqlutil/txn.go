package sqlutil

import (
	"context"
	"database/sql"
	"errors"

	"github.com/lib/pq"
)

// maxAttempts bounds retries of a transaction that lost a serialization race.
const maxAttempts = 3

// Run executes fn inside a *sql.Tx.
// If fn returns an error the tx rolls back, else it commits. Serialization
// and deadlock failures reported by Postgres are retried from the start.
func Run[T any](
	ctx context.Context,
	db *sql.DB,
	newQueries func(*sql.Tx) *T,
	fn func(q *T) error,
) error {
	var err error
	for attempt := 0; attempt < maxAttempts; attempt++ {
		err = runOnce(ctx, db, newQueries, fn)
		if !Retryable(err) {
			return err
		}
	}
	return err
}

func runOnce[T any](
	ctx context.Context,
	db *sql.DB,
	newQueries func(*sql.Tx) *T,
	fn func(q *T) error,
) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	q := newQueries(tx)
	if err := fn(q); err != nil {
		_ = tx.Rollback()
		return err
	}
	return tx.Commit()
}

// Retryable reports whether err is a transient Postgres conflict.
func Retryable(err error) bool {
	var pqErr *pq.Error
	if !errors.As(err, &pqErr) {
		return false
	}
	switch pqErr.Code {
	case "40001", "40P01":
		return true
	}
	return false
}
