package ledger

import (
	"context"
	"time"
)

// BlockStore persists sealed blocks. AppendBlock is called under the ledger
// write lock before the block becomes visible; an error aborts the append.
type BlockStore interface {
	LoadBlocks(ctx context.Context) ([]Block, error)
	AppendBlock(ctx context.Context, b Block) error
}

// Observer is notified after a block has been appended. It runs under the
// ledger write lock and must not block.
type Observer interface {
	BlockAppended(b Block, kind PayloadKind)
}

// ReplayGuard remembers accepted challenges. Claim returns false when key was
// already claimed; Release forgets a key whose append did not go through.
type ReplayGuard interface {
	Claim(key string) bool
	Release(key string)
}

// SignatureVerifier checks a wallet signature over message for address.
type SignatureVerifier interface {
	Verify(message, address, signature string) bool
}

// Clock returns the current time in Unix seconds.
type Clock interface {
	Now() int64
}

// SystemClock reads the wall clock.
type SystemClock struct{}

func (SystemClock) Now() int64 { return time.Now().Unix() }

// FixedClock always returns the same instant. Useful for deterministic tests.
type FixedClock int64

func (c FixedClock) Now() int64 { return int64(c) }
