package persistence

import (
	"StarLedger/internal/ledger"
	"StarLedger/internal/observability"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/rs/zerolog"
)

func TestMirrorWorker_FullChannelDrops(t *testing.T) {
	metrics := observability.NewMetrics(prometheus.NewRegistry())
	mw := NewMirrorWorker(nil, 1, 10, time.Second, metrics, zerolog.Nop())

	mw.BlockAppended(ledger.Block{Height: 1}, ledger.PayloadKindStar)
	mw.BlockAppended(ledger.Block{Height: 2}, ledger.PayloadKindStar)

	if got := testutil.ToFloat64(metrics.MirrorDrops); got != 1 {
		t.Errorf("drops: got %v, want 1", got)
	}
	if got := len(mw.input); got != 1 {
		t.Errorf("queued: got %d, want 1", got)
	}
}
