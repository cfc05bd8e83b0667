package ledger

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"testing"
)

type trustAll struct{}

func (trustAll) Verify(string, string, string) bool { return true }

func buildChain(t *testing.T, stars int) *Ledger {
	t.Helper()
	l, err := New(context.Background(), Config{Clock: FixedClock(1_700_000_000), Verifier: trustAll{}})
	if err != nil {
		t.Fatalf("new ledger: %v", err)
	}
	for i := 0; i < stars; i++ {
		claim := StarClaim{Owner: "1Owner", Star: json.RawMessage(fmt.Sprintf(`{"n":%d}`, i))}
		if _, err := l.AppendBlock(context.Background(), claim); err != nil {
			t.Fatalf("append %d: %v", i, err)
		}
	}
	return l
}

func TestComputeDigest_Golden(t *testing.T) {
	body, err := EncodePayload(GenesisMarker{Data: GenesisData})
	if err != nil {
		t.Fatalf("encode genesis: %v", err)
	}
	if want := "7b2264617461223a2247656e6573697320426c6f636b227d"; body != want {
		t.Fatalf("genesis body: got %s, want %s", body, want)
	}

	got := computeDigest(0, 1_700_000_000, SentinelPrevHash, body)
	if want := "49faac232c6f65be7f9d51a88bff1bcf7bd6dfecf1490c30037fefc605f7e90c"; got != want {
		t.Errorf("digest: got %s, want %s", got, want)
	}
}

func TestEncodePayload_PreservesStarVerbatim(t *testing.T) {
	claim := StarClaim{
		Owner: "1abc",
		Star:  json.RawMessage(`{"dec":"68° 52' 56.9","ra":"16h 29m 1.0s","story":"<found> & named"}`),
	}
	body, err := EncodePayload(claim)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	want := "7b226f776e6572223a2231616263222c2273746172223a7b22646563223a223638c2b0203532272035362e39222c227261223a223136682032396d20312e3073222c2273746f7279223a223c666f756e643e2026206e616d6564227d7d"
	if body != want {
		t.Errorf("body:\n got %s\nwant %s", body, want)
	}

	p, err := DecodePayload(body)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	decoded, ok := p.(StarClaim)
	if !ok {
		t.Fatalf("expected StarClaim, got %T", p)
	}
	if decoded.Owner != claim.Owner || string(decoded.Star) != string(claim.Star) {
		t.Errorf("round trip: got %+v", decoded)
	}
}

func TestEncodePayload_Rejects(t *testing.T) {
	tests := []struct {
		name string
		p    Payload
	}{
		{"no owner", StarClaim{Star: json.RawMessage(`{}`)}},
		{"no star", StarClaim{Owner: "1abc"}},
		{"invalid star", StarClaim{Owner: "1abc", Star: json.RawMessage(`{"ra":`)}},
		{"null star", StarClaim{Owner: "1abc", Star: json.RawMessage(`null`)}},
		{"padded null star", StarClaim{Owner: "1abc", Star: json.RawMessage(" null\n")}},
		{"array star", StarClaim{Owner: "1abc", Star: json.RawMessage(`[{"ra":"1h"}]`)}},
		{"string star", StarClaim{Owner: "1abc", Star: json.RawMessage(`"vega"`)}},
		{"number star", StarClaim{Owner: "1abc", Star: json.RawMessage(`42`)}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := EncodePayload(tt.p); !errors.Is(err, ErrMalformedPayload) {
				t.Errorf("expected ErrMalformedPayload, got %v", err)
			}
		})
	}
}

func TestDecodePayload_Rejects(t *testing.T) {
	for _, body := range []string{"zz", "7b7d", "6e6f74206a736f6e"} {
		if _, err := DecodePayload(body); !errors.Is(err, ErrMalformedPayload) {
			t.Errorf("body %s: expected ErrMalformedPayload, got %v", body, err)
		}
	}
}

func TestValidateChain_DetectsBodyTamper(t *testing.T) {
	l := buildChain(t, 3)

	l.chain[2].Body = l.chain[1].Body

	records := l.ValidateChain()
	if len(records) != 1 {
		t.Fatalf("records: got %d, want 1: %v", len(records), records)
	}
	if records[0].Block.Height != 2 {
		t.Errorf("record points at height %d", records[0].Block.Height)
	}
	if !strings.Contains(records[0].Message, "block 2") {
		t.Errorf("message: %s", records[0].Message)
	}
}

func TestValidateChain_DetectsRehashedBlock(t *testing.T) {
	l := buildChain(t, 3)

	// Tamper and recompute the hash: the block self-validates, the next link breaks
	l.chain[1].Body = l.chain[2].Body
	l.chain[1].Hash = l.chain[1].ComputeHash()

	records := l.ValidateChain()
	if len(records) != 1 {
		t.Fatalf("records: got %d, want 1: %v", len(records), records)
	}
	if records[0].Block.Height != 2 {
		t.Errorf("record points at height %d, want 2", records[0].Block.Height)
	}
	if records[0].Message != "previous block 1 has been tampered" {
		t.Errorf("message: %s", records[0].Message)
	}
}

func TestValidateChain_DetectsGenesisTamper(t *testing.T) {
	l := buildChain(t, 1)

	l.chain[0].Time++

	records := l.ValidateChain()
	if len(records) == 0 {
		t.Fatal("expected genesis tamper to be reported")
	}
	if records[0].Block.Height != 0 {
		t.Errorf("first record points at height %d", records[0].Block.Height)
	}
}

func TestAppendBlock_RefusesCorruptedChain(t *testing.T) {
	l := buildChain(t, 2)
	l.chain[1].Body = l.chain[2].Body

	_, err := l.AppendBlock(context.Background(), StarClaim{Owner: "1Owner", Star: json.RawMessage(`{}`)})
	if !errors.Is(err, ErrChainCorruption) {
		t.Fatalf("expected ErrChainCorruption, got %v", err)
	}
	var corruption *CorruptionError
	if !errors.As(err, &corruption) || len(corruption.Records) == 0 {
		t.Fatalf("expected CorruptionError with records, got %v", err)
	}
	if l.height != 2 || len(l.chain) != 3 {
		t.Errorf("chain mutated: height=%d len=%d", l.height, len(l.chain))
	}
}

func TestValidateChain_IntactChainIsEmpty(t *testing.T) {
	l := buildChain(t, 5)
	records := l.ValidateChain()
	if records == nil || len(records) != 0 {
		t.Errorf("expected empty non-nil result, got %v", records)
	}
}
