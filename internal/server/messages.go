package server

import (
	"StarLedger/internal/ledger"
	"encoding/json"
)

// Request and response messages of starledger.v1.StarRegistry. The JSON
// field names match the HTTP API.

type GetHeightRequest struct{}

type GetHeightResponse struct {
	Height int64 `json:"height"`
}

type RequestValidationRequest struct {
	Address string `json:"address"`
}

type RequestValidationResponse struct {
	Message string `json:"message"`
}

type SubmitStarRequest struct {
	Address   string          `json:"address"`
	Message   string          `json:"message"`
	Signature string          `json:"signature"`
	Star      json.RawMessage `json:"star"`
}

type GetBlockByHeightRequest struct {
	Height int64 `json:"height"`
}

type GetBlockByHashRequest struct {
	Hash string `json:"hash"`
}

type GetStarsByOwnerRequest struct {
	Address string `json:"address"`
}

type GetStarsByOwnerResponse struct {
	Stars []ledger.StarClaim `json:"stars"`
}

type ValidateChainRequest struct{}

type ValidateChainResponse struct {
	Valid   bool                     `json:"valid"`
	Records []ledger.IntegrityRecord `json:"errors"`
}
