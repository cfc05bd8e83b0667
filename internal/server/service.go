package server

import (
	"StarLedger/internal/ledger"
	"context"
	"encoding/json"
	"errors"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// Registry is the ledger surface exposed over gRPC and HTTP.
type Registry interface {
	Height() int64
	RequestChallenge(address string) string
	SubmitStar(ctx context.Context, address, message, signature string, star json.RawMessage) (ledger.Block, error)
	BlockByHeight(height int64) (ledger.Block, error)
	BlockByHash(hash string) (ledger.Block, error)
	StarsByOwner(address string) ([]ledger.StarClaim, error)
	ValidateChain() []ledger.IntegrityRecord
}

// StarRegistryServer is the service implemented by registryService.
type StarRegistryServer interface {
	GetHeight(context.Context, *GetHeightRequest) (*GetHeightResponse, error)
	RequestValidation(context.Context, *RequestValidationRequest) (*RequestValidationResponse, error)
	SubmitStar(context.Context, *SubmitStarRequest) (*ledger.Block, error)
	GetBlockByHeight(context.Context, *GetBlockByHeightRequest) (*ledger.Block, error)
	GetBlockByHash(context.Context, *GetBlockByHashRequest) (*ledger.Block, error)
	GetStarsByOwner(context.Context, *GetStarsByOwnerRequest) (*GetStarsByOwnerResponse, error)
	ValidateChain(context.Context, *ValidateChainRequest) (*ValidateChainResponse, error)
}

// registryService adapts a Registry to StarRegistryServer. Errors leave it as
// gRPC statuses; the HTTP gateway turns those into HTTP codes.
type registryService struct {
	reg Registry
}

func (s *registryService) GetHeight(ctx context.Context, req *GetHeightRequest) (*GetHeightResponse, error) {
	return &GetHeightResponse{Height: s.reg.Height()}, nil
}

func (s *registryService) RequestValidation(ctx context.Context, req *RequestValidationRequest) (*RequestValidationResponse, error) {
	if req.Address == "" {
		return nil, status.Error(codes.InvalidArgument, "address is required")
	}
	return &RequestValidationResponse{Message: s.reg.RequestChallenge(req.Address)}, nil
}

func (s *registryService) SubmitStar(ctx context.Context, req *SubmitStarRequest) (*ledger.Block, error) {
	if req.Address == "" || req.Message == "" || req.Signature == "" {
		return nil, status.Error(codes.InvalidArgument, "address, message and signature are required")
	}
	if err := ledger.CheckStarData(req.Star); err != nil {
		return nil, status.Error(codes.InvalidArgument, "star must be a JSON object")
	}

	block, err := s.reg.SubmitStar(ctx, req.Address, req.Message, req.Signature, req.Star)
	if err != nil {
		return nil, toStatus(err)
	}
	return &block, nil
}

func (s *registryService) GetBlockByHeight(ctx context.Context, req *GetBlockByHeightRequest) (*ledger.Block, error) {
	block, err := s.reg.BlockByHeight(req.Height)
	if err != nil {
		return nil, toStatus(err)
	}
	return &block, nil
}

func (s *registryService) GetBlockByHash(ctx context.Context, req *GetBlockByHashRequest) (*ledger.Block, error) {
	if req.Hash == "" {
		return nil, status.Error(codes.InvalidArgument, "hash is required")
	}
	block, err := s.reg.BlockByHash(req.Hash)
	if err != nil {
		return nil, toStatus(err)
	}
	return &block, nil
}

func (s *registryService) GetStarsByOwner(ctx context.Context, req *GetStarsByOwnerRequest) (*GetStarsByOwnerResponse, error) {
	if req.Address == "" {
		return nil, status.Error(codes.InvalidArgument, "address is required")
	}
	stars, err := s.reg.StarsByOwner(req.Address)
	if err != nil {
		return nil, toStatus(err)
	}
	return &GetStarsByOwnerResponse{Stars: stars}, nil
}

func (s *registryService) ValidateChain(ctx context.Context, req *ValidateChainRequest) (*ValidateChainResponse, error) {
	records := s.reg.ValidateChain()
	return &ValidateChainResponse{Valid: len(records) == 0, Records: records}, nil
}

// toStatus maps ledger errors to gRPC status codes.
func toStatus(err error) error {
	var code codes.Code
	switch {
	case errors.Is(err, ledger.ErrNotFound):
		code = codes.NotFound
	case errors.Is(err, ledger.ErrInvalidChallenge), errors.Is(err, ledger.ErrMalformedPayload):
		code = codes.InvalidArgument
	case errors.Is(err, ledger.ErrExpiredChallenge):
		code = codes.FailedPrecondition
	case errors.Is(err, ledger.ErrVerificationFailed):
		code = codes.Unauthenticated
	case errors.Is(err, ledger.ErrChallengeReused):
		code = codes.AlreadyExists
	case errors.Is(err, ledger.ErrChainCorruption):
		code = codes.DataLoss
	case errors.Is(err, ledger.ErrPersist):
		code = codes.Unavailable
	case errors.Is(err, context.Canceled):
		code = codes.Canceled
	case errors.Is(err, context.DeadlineExceeded):
		code = codes.DeadlineExceeded
	default:
		code = codes.Internal
	}
	return status.Error(code, err.Error())
}
