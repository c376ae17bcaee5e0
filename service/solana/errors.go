package solana

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/gagliardetto/solana-go/rpc"
)

// Error taxonomy for wallet operations. Per-item errors in a batch are
// captured on that item's result and never abort sibling items; the
// fatal categories below are the exceptions.
var (
	// ErrInsufficientTreasury means the treasury cannot fund further
	// writes. Systemic: every remaining sponsored write would fail, so
	// batch engines halt on it rather than continuing.
	ErrInsufficientTreasury = errors.New("insufficient treasury balance")

	// ErrCrossVerificationMismatch means independent balance checks
	// disagreed. The wallet is flagged for manual review and excluded
	// from any destructive action; it is never auto-acted on.
	ErrCrossVerificationMismatch = errors.New("cross-verification mismatch")

	// ErrPolicyViolation means an operation would break a fund-safety
	// policy, such as closing a funded token account. Always fatal for
	// the item it belongs to and never silently ignored.
	ErrPolicyViolation = errors.New("policy violation")

	// ErrTransactionRejected means the cluster rejected a submitted
	// transaction after the retry budget was exhausted.
	ErrTransactionRejected = errors.New("transaction rejected")
)

// ValidationError is returned for requests that fail local checks
// before any network call is made.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// IsNotFound reports whether err means the queried account does not
// exist on-chain. Nonexistence is not an error for our purposes: a
// missing token account is simply empty/clean.
func IsNotFound(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, rpc.ErrNotFound) {
		return true
	}
	msg := err.Error()
	return strings.Contains(msg, "could not find account") ||
		strings.Contains(msg, "Invalid param: could not find account")
}

// IsRetryable reports whether err is a transient RPC failure (network,
// timeout, rate limit, node unavailable) worth another bounded attempt.
// Validation failures, policy violations and treasury exhaustion are
// never retryable.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	if errors.Is(err, context.Canceled) ||
		errors.Is(err, ErrInsufficientTreasury) ||
		errors.Is(err, ErrPolicyViolation) ||
		errors.Is(err, ErrCrossVerificationMismatch) {
		return false
	}
	var validation *ValidationError
	if errors.As(err, &validation) {
		return false
	}
	msg := err.Error()
	for _, marker := range []string{
		"429",
		"timeout",
		"deadline exceeded",
		"connection refused",
		"connection reset",
		"temporarily unavailable",
		"Node is unhealthy",
		"Blockhash not found",
	} {
		if strings.Contains(msg, marker) {
			return true
		}
	}
	return false
}

// isRateLimited reports whether err is an HTTP 429 from the endpoint.
// Rate limits get a longer backoff than ordinary transient failures.
func isRateLimited(err error) bool {
	return err != nil && strings.Contains(err.Error(), "429")
}
