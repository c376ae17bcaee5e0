package solana

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/chipin/walletops/service/metrics"
	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"
)

// RPCClient is an interface for the Solana RPC operations we need.
// This allows us to mock the RPC layer in tests without hitting real Solana nodes.
type RPCClient interface {
	GetAccountInfo(ctx context.Context, account solana.PublicKey) (*rpc.GetAccountInfoResult, error)
	GetTokenAccountBalance(ctx context.Context, account solana.PublicKey) (*rpc.GetTokenAccountBalanceResult, error)
	GetBalance(ctx context.Context, account solana.PublicKey) (*rpc.GetBalanceResult, error)
	GetLatestBlockhash(ctx context.Context) (*rpc.GetLatestBlockhashResult, error)
	GetMinimumBalanceForRentExemption(ctx context.Context, dataSize uint64) (uint64, error)
	SendTransaction(ctx context.Context, tx *solana.Transaction) (solana.Signature, error)
	GetSignatureStatuses(ctx context.Context, sigs ...solana.Signature) (*rpc.GetSignatureStatusesResult, error)
}

// Client wraps an RPCClient with per-call timeouts, bounded
// exponential-backoff retries and metrics. Every RPC call is classified
// as success, retryable failure (network/timeout/rate-limit) or fatal
// failure; retry budgets are per-call, never per-batch.
type Client struct {
	rpc      RPCClient
	endpoint string // RPC endpoint identifier for metrics/logs (e.g. rpc host)
	logger   *slog.Logger
	metrics  *metrics.Metrics

	maxAttempts int
	retryBase   time.Duration
	callTimeout time.Duration
	confirmPoll time.Duration
}

// NewClient creates a new Client.
// The endpoint parameter labels metrics and logs (e.g. RPC hostname).
// If m is nil, no metrics are recorded.
func NewClient(rpcClient RPCClient, endpoint string, m *metrics.Metrics, logger *slog.Logger) *Client {
	return &Client{
		rpc:         rpcClient,
		endpoint:    endpoint,
		logger:      logger,
		metrics:     m,
		maxAttempts: 3,
		retryBase:   time.Second,
		callTimeout: 30 * time.Second,
		confirmPoll: 2 * time.Second,
	}
}

// Endpoint returns the endpoint identifier this client is labeled with.
func (c *Client) Endpoint() string {
	return c.endpoint
}

// withRetry runs fn with a per-attempt timeout and bounded exponential
// backoff. Rate limits (429) back off harder than ordinary transient
// failures. Non-retryable errors are returned immediately.
func (c *Client) withRetry(ctx context.Context, method string, fn func(ctx context.Context) error) error {
	var err error
	for attempt := 0; attempt < c.maxAttempts; attempt++ {
		callCtx, cancel := context.WithTimeout(ctx, c.callTimeout)
		start := time.Now()
		err = fn(callCtx)
		duration := time.Since(start).Seconds()
		cancel()

		status := "success"
		if err != nil && !IsNotFound(err) {
			status = "error"
		}
		if c.metrics != nil {
			c.metrics.RecordRPCCall(method, status, c.endpoint, duration)
		}

		if err == nil || IsNotFound(err) {
			return err
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if !IsRetryable(err) {
			return err
		}
		if attempt == c.maxAttempts-1 {
			break
		}

		var backoff time.Duration
		reason := "timeout_or_error"
		if isRateLimited(err) {
			backoff = time.Duration(2<<uint(attempt)) * c.retryBase // 2x, 4x, 8x
			reason = "rate_limit"
			if c.metrics != nil {
				c.metrics.RecordRateLimitHit(c.endpoint)
			}
		} else {
			backoff = time.Duration(1<<uint(attempt)) * c.retryBase // 1x, 2x, 4x
		}
		if c.metrics != nil {
			c.metrics.RecordRPCRetry(method, reason)
		}
		c.logger.WarnContext(ctx, "rpc call failed, retrying",
			"method", method,
			"endpoint", c.endpoint,
			"attempt", attempt+1,
			"backoff", backoff,
			"error", err,
		)

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoff):
		}
	}
	return fmt.Errorf("%s failed after %d attempts: %w", method, c.maxAttempts, err)
}

// AccountInfo fetches raw account info. A missing account is reported
// as exists=false with a nil error, never as a failure.
func (c *Client) AccountInfo(ctx context.Context, account solana.PublicKey) (*rpc.Account, bool, error) {
	var result *rpc.GetAccountInfoResult
	err := c.withRetry(ctx, "GetAccountInfo", func(ctx context.Context) error {
		var callErr error
		result, callErr = c.rpc.GetAccountInfo(ctx, account)
		return callErr
	})
	if IsNotFound(err) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	if result == nil || result.Value == nil {
		return nil, false, nil
	}
	return result.Value, true, nil
}

// TokenBalance fetches an SPL token account balance. A missing account
// is reported as exists=false with a nil error.
func (c *Client) TokenBalance(ctx context.Context, account solana.PublicKey) (*rpc.UiTokenAmount, bool, error) {
	var result *rpc.GetTokenAccountBalanceResult
	err := c.withRetry(ctx, "GetTokenAccountBalance", func(ctx context.Context) error {
		var callErr error
		result, callErr = c.rpc.GetTokenAccountBalance(ctx, account)
		return callErr
	})
	if IsNotFound(err) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	if result == nil || result.Value == nil {
		return nil, false, nil
	}
	return result.Value, true, nil
}

// SolBalance fetches an account's SOL balance in lamports.
func (c *Client) SolBalance(ctx context.Context, account solana.PublicKey) (uint64, error) {
	var result *rpc.GetBalanceResult
	err := c.withRetry(ctx, "GetBalance", func(ctx context.Context) error {
		var callErr error
		result, callErr = c.rpc.GetBalance(ctx, account)
		return callErr
	})
	if err != nil {
		return 0, err
	}
	return result.Value, nil
}

// LatestBlockhash fetches a recent blockhash for transaction assembly.
func (c *Client) LatestBlockhash(ctx context.Context) (solana.Hash, error) {
	var result *rpc.GetLatestBlockhashResult
	err := c.withRetry(ctx, "GetLatestBlockhash", func(ctx context.Context) error {
		var callErr error
		result, callErr = c.rpc.GetLatestBlockhash(ctx)
		return callErr
	})
	if err != nil {
		return solana.Hash{}, err
	}
	return result.Value.Blockhash, nil
}

// RentExemption returns the minimum lamports an account of the given
// size must hold to persist on-chain.
func (c *Client) RentExemption(ctx context.Context, dataSize uint64) (uint64, error) {
	var lamports uint64
	err := c.withRetry(ctx, "GetMinimumBalanceForRentExemption", func(ctx context.Context) error {
		var callErr error
		lamports, callErr = c.rpc.GetMinimumBalanceForRentExemption(ctx, dataSize)
		return callErr
	})
	return lamports, err
}

// Submit broadcasts a fully-signed transaction. Once broadcast it is
// never rolled back; idempotency checks substitute for rollback.
func (c *Client) Submit(ctx context.Context, tx *solana.Transaction) (solana.Signature, error) {
	var sig solana.Signature
	err := c.withRetry(ctx, "SendTransaction", func(ctx context.Context) error {
		var callErr error
		sig, callErr = c.rpc.SendTransaction(ctx, tx)
		return callErr
	})
	if err != nil {
		return solana.Signature{}, fmt.Errorf("%w: %s", ErrTransactionRejected, err)
	}
	return sig, nil
}

// WaitForConfirmation polls signature status until the transaction is
// confirmed or finalized, the cluster reports it failed, or ctx ends.
func (c *Client) WaitForConfirmation(ctx context.Context, sig solana.Signature) error {
	for {
		var result *rpc.GetSignatureStatusesResult
		err := c.withRetry(ctx, "GetSignatureStatuses", func(ctx context.Context) error {
			var callErr error
			result, callErr = c.rpc.GetSignatureStatuses(ctx, sig)
			return callErr
		})
		if err != nil {
			return err
		}
		if result != nil && len(result.Value) > 0 && result.Value[0] != nil {
			status := result.Value[0]
			if status.Err != nil {
				return fmt.Errorf("%w: transaction %s failed on-chain: %v", ErrTransactionRejected, sig, status.Err)
			}
			switch status.ConfirmationStatus {
			case rpc.ConfirmationStatusConfirmed, rpc.ConfirmationStatusFinalized:
				return nil
			}
		}
		select {
		case <-ctx.Done():
			return fmt.Errorf("waiting for confirmation of %s: %w", sig, ctx.Err())
		case <-time.After(c.confirmPoll):
		}
	}
}
