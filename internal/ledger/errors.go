package ledger

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrExpiredChallenge   = errors.New("challenge expired")
	ErrVerificationFailed = errors.New("signature verification failed")
	ErrInvalidChallenge   = errors.New("invalid challenge message")
	ErrChallengeReused    = errors.New("challenge already used")
	ErrNotFound           = errors.New("block not found")
	ErrChainCorruption    = errors.New("chain integrity violated")
	ErrMalformedPayload   = errors.New("malformed block payload")
	ErrPersist            = errors.New("block store write failed")
)

// CorruptionError is returned by AppendBlock when the stored chain already
// fails validation. It matches ErrChainCorruption under errors.Is.
type CorruptionError struct {
	Records []IntegrityRecord
}

func (e *CorruptionError) Error() string {
	msgs := make([]string, 0, len(e.Records))
	for _, r := range e.Records {
		msgs = append(msgs, r.Message)
	}
	return fmt.Sprintf("%s: %s", ErrChainCorruption, strings.Join(msgs, "; "))
}

func (e *CorruptionError) Is(target error) bool {
	return target == ErrChainCorruption
}

// SubmissionOutcome maps a SubmitStar result to a short label for metrics and logs.
func SubmissionOutcome(err error) string {
	switch {
	case err == nil:
		return "accepted"
	case errors.Is(err, ErrExpiredChallenge):
		return "expired"
	case errors.Is(err, ErrVerificationFailed):
		return "verification_failed"
	case errors.Is(err, ErrInvalidChallenge):
		return "invalid_challenge"
	case errors.Is(err, ErrChallengeReused):
		return "reused"
	case errors.Is(err, ErrChainCorruption):
		return "corruption"
	case errors.Is(err, ErrPersist):
		return "persist"
	case errors.Is(err, ErrMalformedPayload):
		return "malformed"
	default:
		return "error"
	}
}
