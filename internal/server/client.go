package server

import (
	"StarLedger/internal/ledger"
	"context"
	"encoding/json"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
)

// Client calls starledger.v1.StarRegistry over gRPC with the JSON codec.
type Client struct {
	conn *grpc.ClientConn
}

// Dial creates a client for target. Extra options are applied after the
// insecure transport and JSON content-subtype defaults.
func Dial(target string, opts ...grpc.DialOption) (*Client, error) {
	base := []grpc.DialOption{
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithDefaultCallOptions(grpc.CallContentSubtype(CodecName)),
	}
	conn, err := grpc.NewClient(target, append(base, opts...)...)
	if err != nil {
		return nil, err
	}
	return &Client{conn: conn}, nil
}

func (c *Client) Close() error { return c.conn.Close() }

func (c *Client) invoke(ctx context.Context, method string, in, out interface{}) error {
	return c.conn.Invoke(ctx, fullMethod(method), in, out)
}

func (c *Client) Height(ctx context.Context) (int64, error) {
	var resp GetHeightResponse
	if err := c.invoke(ctx, "GetHeight", &GetHeightRequest{}, &resp); err != nil {
		return 0, err
	}
	return resp.Height, nil
}

func (c *Client) RequestValidation(ctx context.Context, address string) (string, error) {
	var resp RequestValidationResponse
	if err := c.invoke(ctx, "RequestValidation", &RequestValidationRequest{Address: address}, &resp); err != nil {
		return "", err
	}
	return resp.Message, nil
}

func (c *Client) SubmitStar(ctx context.Context, address, message, signature string, star json.RawMessage) (ledger.Block, error) {
	var block ledger.Block
	req := &SubmitStarRequest{Address: address, Message: message, Signature: signature, Star: star}
	err := c.invoke(ctx, "SubmitStar", req, &block)
	return block, err
}

func (c *Client) BlockByHeight(ctx context.Context, height int64) (ledger.Block, error) {
	var block ledger.Block
	err := c.invoke(ctx, "GetBlockByHeight", &GetBlockByHeightRequest{Height: height}, &block)
	return block, err
}

func (c *Client) BlockByHash(ctx context.Context, hash string) (ledger.Block, error) {
	var block ledger.Block
	err := c.invoke(ctx, "GetBlockByHash", &GetBlockByHashRequest{Hash: hash}, &block)
	return block, err
}

func (c *Client) StarsByOwner(ctx context.Context, address string) ([]ledger.StarClaim, error) {
	var resp GetStarsByOwnerResponse
	if err := c.invoke(ctx, "GetStarsByOwner", &GetStarsByOwnerRequest{Address: address}, &resp); err != nil {
		return nil, err
	}
	return resp.Stars, nil
}

func (c *Client) ValidateChain(ctx context.Context) (*ValidateChainResponse, error) {
	var resp ValidateChainResponse
	if err := c.invoke(ctx, "ValidateChain", &ValidateChainRequest{}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}
