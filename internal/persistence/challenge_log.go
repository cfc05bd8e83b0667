package persistence

import (
	"context"
	"database/sql"
	"time"
)

// PostgresChallengeLog records claimed challenges in ledger.challenges so
// replay protection survives restarts.
type PostgresChallengeLog struct {
	db      *sql.DB
	timeout time.Duration
}

func NewPostgresChallengeLog(db *sql.DB) *PostgresChallengeLog {
	return &PostgresChallengeLog{
		db:      db,
		timeout: 500 * time.Millisecond,
	}
}

// Claim inserts key and reports false when it already existed.
func (l *PostgresChallengeLog) Claim(key string) (bool, error) {
	ctx, cancel := context.WithTimeout(context.Background(), l.timeout)
	defer cancel()

	res, err := l.db.ExecContext(ctx, `
		INSERT INTO ledger.challenges (challenge_key)
		VALUES ($1)
		ON CONFLICT (challenge_key) DO NOTHING
	`, key)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

// Release deletes key.
func (l *PostgresChallengeLog) Release(key string) error {
	ctx, cancel := context.WithTimeout(context.Background(), l.timeout)
	defer cancel()

	_, err := l.db.ExecContext(ctx, `DELETE FROM ledger.challenges WHERE challenge_key = $1`, key)
	return err
}
