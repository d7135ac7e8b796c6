package ratelimit

import (
	"context"
	"database/sql"
	"time"
)

// SQLStore is the atomic counter backing Checker. Each check runs in one
// immediate transaction so concurrent requests against the same identifier
// serialize on the database, not in this process.
type SQLStore struct {
	db *sql.DB
}

func NewSQLStore(db *sql.DB) *SQLStore {
	return &SQLStore{db: db}
}

func (s *SQLStore) Check(ctx context.Context, identifier string, maxRequests, windowSeconds int) (Result, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return Result{}, err
	}
	defer tx.Rollback()

	now := time.Now().Unix()

	var windowStart int64
	var count int
	err = tx.QueryRowContext(ctx,
		`SELECT window_start, count FROM rate_limit_counters WHERE identifier = ?`,
		identifier,
	).Scan(&windowStart, &count)

	switch {
	case err == sql.ErrNoRows:
		windowStart = now
		count = 0
	case err != nil:
		return Result{}, err
	}

	// A fully elapsed window resets the counter.
	if now >= windowStart+int64(windowSeconds) {
		windowStart = now
		count = 0
	}

	count++

	_, err = tx.ExecContext(ctx, `
		INSERT INTO rate_limit_counters (identifier, window_start, count)
		VALUES (?, ?, ?)
		ON CONFLICT(identifier) DO UPDATE SET window_start = excluded.window_start, count = excluded.count
	`, identifier, windowStart, count)
	if err != nil {
		return Result{}, err
	}

	if err := tx.Commit(); err != nil {
		return Result{}, err
	}

	return Result{
		Allowed:      count <= maxRequests,
		CurrentCount: count,
		LimitMax:     maxRequests,
		ResetAt:      time.Unix(windowStart+int64(windowSeconds), 0),
	}, nil
}
