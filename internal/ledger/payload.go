package ledger

import (
	"bytes"
	"encoding/hex"
	"encoding/json"
	"fmt"
)

// GenesisData is the marker carried by the first block of every chain.
const GenesisData = "Genesis Block"

// PayloadKind discriminates the payload variants a block can carry.
type PayloadKind int32

const (
	PayloadKindUnknown PayloadKind = iota
	PayloadKindGenesis
	PayloadKindStar
)

func (k PayloadKind) String() string {
	switch k {
	case PayloadKindGenesis:
		return "genesis"
	case PayloadKindStar:
		return "star"
	default:
		return "unknown"
	}
}

// Payload is the decoded content of a block body.
type Payload interface {
	Kind() PayloadKind
}

// GenesisMarker is the payload of the genesis block.
type GenesisMarker struct {
	Data string `json:"data"`
}

func (GenesisMarker) Kind() PayloadKind { return PayloadKindGenesis }

// StarClaim registers a star for an owner address. Star holds the caller's
// metadata verbatim so arbitrary fields survive the encode/decode round trip.
type StarClaim struct {
	Owner string          `json:"owner"`
	Star  json.RawMessage `json:"star"`
}

func (StarClaim) Kind() PayloadKind { return PayloadKindStar }

// wirePayload is the union of all variant fields as they appear at rest.
type wirePayload struct {
	Data  *string         `json:"data,omitempty"`
	Owner *string         `json:"owner,omitempty"`
	Star  json.RawMessage `json:"star,omitempty"`
}

// CheckStarData reports whether raw is usable star metadata: a JSON object.
// null, arrays and scalars are refused.
func CheckStarData(raw json.RawMessage) error {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 {
		return fmt.Errorf("%w: star claim without star data", ErrMalformedPayload)
	}
	if trimmed[0] != '{' || !json.Valid(trimmed) {
		return fmt.Errorf("%w: star data must be a JSON object", ErrMalformedPayload)
	}
	return nil
}

// EncodePayload serializes p to the hex(JSON) form stored in Block.Body.
func EncodePayload(p Payload) (string, error) {
	var w wirePayload
	switch v := p.(type) {
	case GenesisMarker:
		w.Data = &v.Data
	case StarClaim:
		if v.Owner == "" {
			return "", fmt.Errorf("%w: star claim without owner", ErrMalformedPayload)
		}
		if err := CheckStarData(v.Star); err != nil {
			return "", err
		}
		w.Owner = &v.Owner
		w.Star = v.Star
	default:
		return "", fmt.Errorf("%w: unsupported payload %T", ErrMalformedPayload, p)
	}

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(w); err != nil {
		return "", fmt.Errorf("%w: %v", ErrMalformedPayload, err)
	}
	return hex.EncodeToString(bytes.TrimSuffix(buf.Bytes(), []byte("\n"))), nil
}

// DecodePayload reverses EncodePayload.
func DecodePayload(body string) (Payload, error) {
	raw, err := hex.DecodeString(body)
	if err != nil {
		return nil, fmt.Errorf("%w: body is not hex: %v", ErrMalformedPayload, err)
	}

	var w wirePayload
	if err := json.Unmarshal(raw, &w); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedPayload, err)
	}

	switch {
	case w.Owner != nil:
		if len(w.Star) == 0 {
			return nil, fmt.Errorf("%w: star claim without star data", ErrMalformedPayload)
		}
		return StarClaim{Owner: *w.Owner, Star: w.Star}, nil
	case w.Data != nil:
		return GenesisMarker{Data: *w.Data}, nil
	default:
		return nil, fmt.Errorf("%w: unrecognized payload", ErrMalformedPayload)
	}
}
