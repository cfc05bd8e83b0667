package persistence

import (
	"StarLedger/internal/ledger"
	"context"
	"database/sql"
	"fmt"
)

// PostgresStore is a BlockStore backed by ledger.blocks.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// LoadBlocks returns every stored block in height order.
func (s *PostgresStore) LoadBlocks(ctx context.Context) ([]ledger.Block, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT height, hash, body, time, previous_block_hash
		FROM ledger.blocks
		ORDER BY height ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("query blocks: %w", err)
	}
	defer rows.Close()

	var blocks []ledger.Block
	for rows.Next() {
		var b ledger.Block
		if err := rows.Scan(&b.Height, &b.Hash, &b.Body, &b.Time, &b.PreviousBlockHash); err != nil {
			return nil, fmt.Errorf("scan block: %w", err)
		}
		blocks = append(blocks, b)
	}
	return blocks, rows.Err()
}

// AppendBlock inserts one block. The height primary key rejects a second
// writer racing for the same position.
func (s *PostgresStore) AppendBlock(ctx context.Context, b ledger.Block) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO ledger.blocks (height, hash, body, time, previous_block_hash)
		VALUES ($1, $2, $3, $4, $5)
	`, b.Height, b.Hash, b.Body, b.Time, b.PreviousBlockHash)
	if err != nil {
		return fmt.Errorf("insert block %d: %w", b.Height, err)
	}
	return nil
}

// Ping reports whether the database is reachable.
func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}
