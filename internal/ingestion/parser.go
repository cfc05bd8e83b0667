package ingestion

import (
	"StarLedger/internal/ledger"
	"bytes"
	"encoding/json"
	"fmt"
)

// Submission is a star claim received from NATS. It carries the same fields
// as the HTTP /submitstar body.
type Submission struct {
	Address   string          `json:"address"`
	Message   string          `json:"message"`
	Signature string          `json:"signature"`
	Star      json.RawMessage `json:"star"`
}

// ParseSubmission decodes and checks a raw NATS payload. Challenge and
// signature semantics are left to the ledger.
func ParseSubmission(data []byte) (Submission, error) {
	var s Submission
	if err := json.Unmarshal(data, &s); err != nil {
		return Submission{}, fmt.Errorf("parse submission: %w", err)
	}

	if s.Address == "" {
		return Submission{}, fmt.Errorf("parse submission: address is required")
	}
	if s.Message == "" {
		return Submission{}, fmt.Errorf("parse submission: message is required")
	}
	if s.Signature == "" {
		return Submission{}, fmt.Errorf("parse submission: signature is required")
	}

	if err := ledger.CheckStarData(s.Star); err != nil {
		return Submission{}, fmt.Errorf("parse submission: %w", err)
	}
	s.Star = bytes.TrimSpace(s.Star)
	return s, nil
}
