package persistence

import (
	"StarLedger/internal/ledger"
	"context"
	"encoding/json"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
)

type acceptAll struct{}

func (acceptAll) Verify(string, string, string) bool { return true }

func openTestLevelStore(t *testing.T) (*LevelStore, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "chain")
	store, err := OpenLevelStore(path, zerolog.Nop())
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	return store, path
}

func TestLevelStore_EmptyStore(t *testing.T) {
	store, _ := openTestLevelStore(t)
	defer store.Close()

	blocks, err := store.LoadBlocks(context.Background())
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(blocks) != 0 {
		t.Errorf("expected no blocks, got %d", len(blocks))
	}
	h, err := store.LatestHeight()
	if err != nil || h != -1 {
		t.Errorf("latest height: got %d, %v", h, err)
	}
}

func TestLevelStore_LedgerSurvivesReopen(t *testing.T) {
	ctx := context.Background()
	store, path := openTestLevelStore(t)

	l, err := ledger.New(ctx, ledger.Config{Clock: ledger.FixedClock(1_700_000_000), Verifier: acceptAll{}, Store: store})
	if err != nil {
		t.Fatalf("new ledger: %v", err)
	}
	// Enough blocks to cross a decimal digit boundary in the key
	for i := 0; i < 12; i++ {
		claim := ledger.StarClaim{Owner: "1Owner", Star: json.RawMessage(`{"ra":"1h"}`)}
		if _, err := l.AppendBlock(ctx, claim); err != nil {
			t.Fatalf("append %d: %v", i, err)
		}
	}
	want := l.Blocks()
	if err := store.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	reopened, err := OpenLevelStore(path, zerolog.Nop())
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer reopened.Close()

	restored, err := ledger.New(ctx, ledger.Config{Clock: ledger.FixedClock(1_700_000_500), Verifier: acceptAll{}, Store: reopened})
	if err != nil {
		t.Fatalf("restore ledger: %v", err)
	}
	got := restored.Blocks()
	if len(got) != len(want) {
		t.Fatalf("restored %d blocks, want %d", len(got), len(want))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("block %d differs after reopen", i)
		}
	}

	h, err := reopened.LatestHeight()
	if err != nil || h != 12 {
		t.Errorf("latest height: got %d, %v", h, err)
	}
	height, ok, err := reopened.HeightByHash(want[5].Hash)
	if err != nil || !ok || height != 5 {
		t.Errorf("hash index: got %d, %v, %v", height, ok, err)
	}
}

func TestLevelStore_RejectsDuplicateHeight(t *testing.T) {
	store, _ := openTestLevelStore(t)
	defer store.Close()

	b := ledger.Block{Hash: "aa", Height: 0, Body: "7b7d", Time: 1}
	if err := store.AppendBlock(context.Background(), b); err != nil {
		t.Fatalf("first append: %v", err)
	}
	b.Hash = "bb"
	if err := store.AppendBlock(context.Background(), b); err == nil {
		t.Fatal("expected duplicate height to be rejected")
	}
}
