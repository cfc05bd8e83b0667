package replay

import (
	"StarLedger/internal/observability"
	"errors"
	"sync"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/rs/zerolog"
)

type memLog struct {
	mu   sync.Mutex
	keys map[string]bool
	err  error
}

func newMemLog() *memLog { return &memLog{keys: make(map[string]bool)} }

func (m *memLog) Claim(key string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return false, m.err
	}
	if m.keys[key] {
		return false, nil
	}
	m.keys[key] = true
	return true, nil
}

func (m *memLog) Release(key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.keys, key)
	return nil
}

func TestGuard_ClaimOnce(t *testing.T) {
	g, err := NewGuard(16, nil, nil, zerolog.Nop())
	if err != nil {
		t.Fatalf("new guard: %v", err)
	}

	if !g.Claim("a") {
		t.Fatal("first claim should succeed")
	}
	if g.Claim("a") {
		t.Fatal("second claim should fail")
	}
	if !g.Claim("b") {
		t.Fatal("other key should succeed")
	}
}

func TestGuard_Release(t *testing.T) {
	g, _ := NewGuard(16, nil, nil, zerolog.Nop())

	g.Claim("a")
	g.Release("a")
	if !g.Claim("a") {
		t.Fatal("released key should be claimable again")
	}
}

func TestGuard_EvictionFallsBackToDurable(t *testing.T) {
	durable := newMemLog()
	metrics := observability.NewMetrics(prometheus.NewRegistry())
	g, _ := NewGuard(2, durable, metrics, zerolog.Nop())

	g.Claim("a")
	g.Claim("b")
	g.Claim("c") // evicts "a" from memory

	if g.Len() != 2 {
		t.Errorf("in-memory size: got %d, want 2", g.Len())
	}
	if g.Claim("a") {
		t.Fatal("evicted key must still be rejected by the durable tier")
	}
	if got := testutil.ToFloat64(metrics.ReplayRejected.WithLabelValues("durable")); got != 1 {
		t.Errorf("durable rejections: got %v, want 1", got)
	}
}

func TestGuard_DurableOutageFailsOpen(t *testing.T) {
	durable := newMemLog()
	durable.err = errors.New("connection refused")
	metrics := observability.NewMetrics(prometheus.NewRegistry())
	g, _ := NewGuard(4, durable, metrics, zerolog.Nop())

	if !g.Claim("a") {
		t.Fatal("claim should succeed while the durable log is down")
	}
	if got := testutil.ToFloat64(metrics.ReplayErrors); got != 1 {
		t.Errorf("tier 2 errors: got %v, want 1", got)
	}
	if g.Claim("a") {
		t.Fatal("memory tier should still reject the repeat")
	}
}

func TestGuard_ConcurrentClaimsAdmitOne(t *testing.T) {
	g, _ := NewGuard(128, newMemLog(), nil, zerolog.Nop())

	const workers = 32
	var wg sync.WaitGroup
	var mu sync.Mutex
	wins := 0
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if g.Claim("same") {
				mu.Lock()
				wins++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	if wins != 1 {
		t.Errorf("winners: got %d, want 1", wins)
	}
}
