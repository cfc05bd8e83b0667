package persistence

import (
	"StarLedger/internal/ledger"
	"context"
	"database/sql"
	"fmt"
	"strings"
)

const blockColumns = 5

// BlockWriter writes batches of blocks to ledger.blocks using multi-row INSERT.
type BlockWriter struct {
	db *sql.DB
}

func NewBlockWriter(db *sql.DB) *BlockWriter {
	return &BlockWriter{db: db}
}

// WriteBlockBatch inserts blocks inside tx. Rows already present are skipped,
// so a batch may be retried or replayed safely.
func (w *BlockWriter) WriteBlockBatch(ctx context.Context, tx *sql.Tx, blocks []ledger.Block) error {
	if len(blocks) == 0 {
		return nil
	}

	query := `INSERT INTO ledger.blocks
		(height, hash, body, time, previous_block_hash)
		VALUES `

	values := make([]string, 0, len(blocks))
	args := make([]interface{}, 0, len(blocks)*blockColumns)

	for i, b := range blocks {
		base := i * blockColumns
		values = append(values, fmt.Sprintf(
			"($%d, $%d, $%d, $%d, $%d)",
			base+1, base+2, base+3, base+4, base+5,
		))
		args = append(args, b.Height, b.Hash, b.Body, b.Time, b.PreviousBlockHash)
	}

	query += strings.Join(values, ", ")
	query += " ON CONFLICT (height) DO NOTHING"

	_, err := tx.ExecContext(ctx, query, args...)
	return err
}
