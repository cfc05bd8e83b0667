package server_test

import (
	"StarLedger/internal/btcmsg"
	"StarLedger/internal/ledger"
	"StarLedger/internal/server"
	"StarLedger/internal/testutil"
	"context"
	"encoding/json"
	"net"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"
)

func startBufconn(t *testing.T, f *fixture) *bufconn.Listener {
	t.Helper()
	lis := bufconn.Listen(1 << 20)
	ctx, cancel := context.WithCancel(context.Background())
	go f.srv.ServeGRPC(ctx, lis)
	t.Cleanup(cancel)
	return lis
}

func bufDialer(lis *bufconn.Listener) grpc.DialOption {
	return grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
		return lis.DialContext(ctx)
	})
}

func newGRPCClient(t *testing.T, f *fixture) *server.Client {
	t.Helper()
	lis := startBufconn(t, f)
	client, err := server.Dial("passthrough:///bufnet", bufDialer(lis))
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { client.Close() })
	return client
}

func TestGRPC_RegisterStarFlow(t *testing.T) {
	f := newFixture(t)
	client := newGRPCClient(t, f)
	wallet := testutil.NewWallet(t, "bob", btcmsg.P2SHP2WPKH)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	msg, err := client.RequestValidation(ctx, wallet.Address)
	if err != nil {
		t.Fatalf("request validation: %v", err)
	}

	block, err := client.SubmitStar(ctx, wallet.Address, msg, wallet.Sign(t, msg), json.RawMessage(`{"ra":"2h"}`))
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if block.Height != 1 || !block.Validate() {
		t.Errorf("block: got %+v", block)
	}

	h, err := client.Height(ctx)
	if err != nil || h != 1 {
		t.Errorf("height: got %d, %v", h, err)
	}

	byHeight, err := client.BlockByHeight(ctx, 1)
	if err != nil || byHeight != block {
		t.Errorf("by height: got %+v, %v", byHeight, err)
	}
	byHash, err := client.BlockByHash(ctx, block.Hash)
	if err != nil || byHash != block {
		t.Errorf("by hash: got %+v, %v", byHash, err)
	}

	stars, err := client.StarsByOwner(ctx, wallet.Address)
	if err != nil || len(stars) != 1 {
		t.Fatalf("stars: got %v, %v", stars, err)
	}

	report, err := client.ValidateChain(ctx)
	if err != nil || !report.Valid {
		t.Errorf("validate: got %+v, %v", report, err)
	}
}

func TestGRPC_ErrorCodes(t *testing.T) {
	f := newFixture(t)
	client := newGRPCClient(t, f)
	ctx := context.Background()

	_, err := client.BlockByHeight(ctx, 42)
	if status.Code(err) != codes.NotFound {
		t.Errorf("missing block: got %v, want NotFound", status.Code(err))
	}

	_, err = client.RequestValidation(ctx, "")
	if status.Code(err) != codes.InvalidArgument {
		t.Errorf("empty address: got %v, want InvalidArgument", status.Code(err))
	}

	alice := testutil.NewWallet(t, "alice", btcmsg.P2PKH)
	msg := f.ledger.RequestChallenge(alice.Address)
	f.clock.Advance(400)
	_, err = client.SubmitStar(ctx, alice.Address, msg, alice.Sign(t, msg), json.RawMessage(`{}`))
	if status.Code(err) != codes.FailedPrecondition {
		t.Errorf("expired: got %v, want FailedPrecondition", status.Code(err))
	}
}

func TestGRPC_CorruptionIsDataLoss(t *testing.T) {
	reg := &corruptRegistry{}
	srv, err := server.NewGRPCServer("", "", &server.ServerDeps{Registry: reg, Logger: zerolog.Nop()})
	if err != nil {
		t.Fatalf("new server: %v", err)
	}

	f := &fixture{srv: srv}
	client := newGRPCClient(t, f)

	_, err = client.SubmitStar(context.Background(), "1Alice", "m", "s", json.RawMessage(`{}`))
	if status.Code(err) != codes.DataLoss {
		t.Errorf("corruption: got %v, want DataLoss", status.Code(err))
	}
}

func TestGRPC_HealthService(t *testing.T) {
	f := newFixture(t)
	lis := startBufconn(t, f)

	conn, err := grpc.NewClient("passthrough:///bufnet",
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		bufDialer(lis),
	)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	resp, err := healthpb.NewHealthClient(conn).Check(context.Background(), &healthpb.HealthCheckRequest{Service: server.ServiceName})
	if err != nil {
		t.Fatalf("health check: %v", err)
	}
	if resp.Status != healthpb.HealthCheckResponse_SERVING {
		t.Errorf("status: got %v", resp.Status)
	}
}

type corruptRegistry struct{}

func (corruptRegistry) Height() int64                  { return 0 }
func (corruptRegistry) RequestChallenge(string) string { return "" }
func (corruptRegistry) SubmitStar(context.Context, string, string, string, json.RawMessage) (ledger.Block, error) {
	return ledger.Block{}, &ledger.CorruptionError{Records: []ledger.IntegrityRecord{{Message: "block 1 failed validation"}}}
}
func (corruptRegistry) BlockByHeight(int64) (ledger.Block, error) { return ledger.Block{}, ledger.ErrNotFound }
func (corruptRegistry) BlockByHash(string) (ledger.Block, error)  { return ledger.Block{}, ledger.ErrNotFound }
func (corruptRegistry) StarsByOwner(string) ([]ledger.StarClaim, error) {
	return []ledger.StarClaim{}, nil
}
func (corruptRegistry) ValidateChain() []ledger.IntegrityRecord { return nil }
