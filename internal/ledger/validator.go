package ledger

import (
	"fmt"
	"time"
)

// IntegrityRecord describes one tamper finding. Findings are data: callers
// decide whether to alert, stop writing, or carry on.
type IntegrityRecord struct {
	Message string `json:"error"`
	Block   Block  `json:"block"`
}

// ValidateChain checks every block's own digest and, from height 1 on, its
// link to the predecessor. An empty result means the chain is intact.
func (l *Ledger) ValidateChain() []IntegrityRecord {
	start := time.Now()

	l.mu.RLock()
	records := l.validateLocked()
	l.mu.RUnlock()

	if l.metrics != nil {
		l.metrics.ValidationDuration.Observe(time.Since(start).Seconds())
		l.metrics.IntegrityErrors.Set(float64(len(records)))
	}
	return records
}

// validateLocked requires l.mu to be held.
func (l *Ledger) validateLocked() []IntegrityRecord {
	records := make([]IntegrityRecord, 0)

	for i, b := range l.chain {
		if !b.Validate() {
			records = append(records, IntegrityRecord{
				Message: fmt.Sprintf("block %d failed validation", b.Height),
				Block:   b,
			})
		}

		// Genesis has no predecessor to link against
		if i == 0 {
			continue
		}

		if b.PreviousBlockHash != l.chain[i-1].Hash {
			records = append(records, IntegrityRecord{
				Message: fmt.Sprintf("previous block %d has been tampered", i-1),
				Block:   b,
			})
		}
	}

	return records
}
