package ledger

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// ChallengeTag closes every ownership challenge message.
const ChallengeTag = "starRegistry"

// RequestChallenge returns the message a wallet must sign to prove control of
// address: "<address>:<unixSeconds>:starRegistry". Nothing is stored; the
// embedded timestamp is the only state the submission needs.
func (l *Ledger) RequestChallenge(address string) string {
	return fmt.Sprintf("%s:%d:%s", address, l.clock.Now(), ChallengeTag)
}

// ParseChallenge splits a challenge message into its address and timestamp.
func ParseChallenge(message string) (address string, issuedAt int64, err error) {
	parts := strings.Split(message, ":")
	if len(parts) != 3 {
		return "", 0, fmt.Errorf("%w: expected 3 fields, got %d", ErrInvalidChallenge, len(parts))
	}
	if parts[2] != ChallengeTag {
		return "", 0, fmt.Errorf("%w: unexpected tag %q", ErrInvalidChallenge, parts[2])
	}
	issuedAt, err = strconv.ParseInt(parts[1], 10, 64)
	if err != nil {
		return "", 0, fmt.Errorf("%w: bad timestamp %q", ErrInvalidChallenge, parts[1])
	}
	return parts[0], issuedAt, nil
}

// SubmitStar appends a star claim for address once the signed challenge is
// within its window and the signature verifies. Both checks run before any
// mutation; only the first failure is reported, expiry ahead of signature.
func (l *Ledger) SubmitStar(ctx context.Context, address, message, signature string, star json.RawMessage) (Block, error) {
	block, err := l.submitStar(ctx, address, message, signature, star)
	l.recordSubmission(err)
	if err != nil {
		l.log.Info().
			Str("address", address).
			Err(err).
			Msg("star submission rejected")
	}
	return block, err
}

func (l *Ledger) submitStar(ctx context.Context, address, message, signature string, star json.RawMessage) (Block, error) {
	// Step 1: parse the embedded timestamp
	challengedAddr, issuedAt, err := ParseChallenge(message)
	if err != nil {
		return Block{}, err
	}
	if challengedAddr != address {
		return Block{}, fmt.Errorf("%w: challenge was issued for %s", ErrInvalidChallenge, challengedAddr)
	}

	// Step 2: time window
	if err := l.checkWindow(issuedAt); err != nil {
		return Block{}, err
	}

	// Step 3: signature
	if !l.verifier.Verify(message, address, signature) {
		return Block{}, ErrVerificationFailed
	}

	// The window is a hard deadline, however long verification took
	if err := l.checkWindow(issuedAt); err != nil {
		return Block{}, err
	}
	if err := ctx.Err(); err != nil {
		return Block{}, err
	}

	// Step 4: one block per signed challenge, when enabled
	replayKey := ReplayKey(address, message)
	if l.replay != nil && !l.replay.Claim(replayKey) {
		return Block{}, ErrChallengeReused
	}

	block, err := l.AppendBlock(ctx, StarClaim{Owner: address, Star: star})
	if err != nil {
		if l.replay != nil {
			l.replay.Release(replayKey)
		}
		return Block{}, err
	}
	return block, nil
}

// ReplayKey identifies one signed challenge for the replay guard: the hex
// SHA-256 of address and message. It is fixed length and plain ASCII so any
// text column can hold it.
func ReplayKey(address, message string) string {
	sum := sha256.Sum256([]byte(address + "|" + message))
	return hex.EncodeToString(sum[:])
}

func (l *Ledger) checkWindow(issuedAt int64) error {
	elapsed := l.clock.Now() - issuedAt
	// No clock-skew allowance: RequestChallenge stamps the message with this
	// ledger's clock, so a timestamp ahead of it was not issued here.
	if elapsed < 0 {
		return fmt.Errorf("%w: issued %ds in the future", ErrInvalidChallenge, -elapsed)
	}
	if elapsed > l.window {
		return fmt.Errorf("%w: %ds elapsed, window is %ds", ErrExpiredChallenge, elapsed, l.window)
	}
	return nil
}

func (l *Ledger) recordSubmission(err error) {
	if l.metrics == nil {
		return
	}
	l.metrics.Submissions.WithLabelValues(SubmissionOutcome(err)).Inc()
}
