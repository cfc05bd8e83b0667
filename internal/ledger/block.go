package ledger

import "fmt"

// Block is one sealed entry of the chain. Once appended it is never mutated;
// the ledger hands out copies.
type Block struct {
	Hash              string `json:"hash"`
	Height            int64  `json:"height"`
	Body              string `json:"body"`
	Time              int64  `json:"time"`
	PreviousBlockHash string `json:"previousBlockHash"`
}

// seal assigns position, time and linkage to an encoded body and computes its hash.
func seal(body string, height, timestamp int64, prevHash string) Block {
	b := Block{
		Height:            height,
		Body:              body,
		Time:              timestamp,
		PreviousBlockHash: prevHash,
	}
	b.Hash = b.ComputeHash()
	return b
}

// ComputeHash returns the digest of every field except Hash.
func (b Block) ComputeHash() string {
	return computeDigest(b.Height, b.Time, b.PreviousBlockHash, b.Body)
}

// Validate reports whether the stored hash still matches the block contents.
func (b Block) Validate() bool {
	return b.ComputeHash() == b.Hash
}

// Payload decodes the block body.
func (b Block) Payload() (Payload, error) {
	p, err := DecodePayload(b.Body)
	if err != nil {
		return nil, fmt.Errorf("block %d: %w", b.Height, err)
	}
	return p, nil
}

// StarClaim decodes the body and reports whether it is a star claim.
func (b Block) StarClaim() (StarClaim, bool, error) {
	p, err := b.Payload()
	if err != nil {
		return StarClaim{}, false, err
	}
	claim, ok := p.(StarClaim)
	return claim, ok, nil
}

// IsGenesis reports whether b sits at height 0 with the sentinel link.
func (b Block) IsGenesis() bool {
	return b.Height == 0 && b.PreviousBlockHash == SentinelPrevHash
}
