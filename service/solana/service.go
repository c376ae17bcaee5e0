package solana

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"sync"

	"github.com/chipin/walletops/service/metrics"
	"github.com/gagliardetto/solana-go"
)

// Service bundles the RPC client, the treasury signer and the mint into
// one explicitly-injected dependency for the account, balance, transfer
// and reclamation operations. The treasury key is a single shared
// resource: its use is serialized per outgoing transaction so the same
// blockhash is never double-spent, while read-only queries proceed in
// parallel.
type Service struct {
	client    *Client
	verifiers []*Client // additional endpoints for cross-RPC verification
	treasury  solana.PrivateKey
	mint      solana.PublicKey
	decimals  uint8
	threshold float64 // empty classification threshold, UI units
	logger    *slog.Logger
	metrics   *metrics.Metrics

	treasuryMu sync.Mutex
}

// ServiceConfig contains the dependencies and policy for a Service.
type ServiceConfig struct {
	Client *Client

	// VerificationClients are extra, independent RPC endpoints used by
	// cross-RPC balance verification. May be empty.
	VerificationClients []*Client

	// Treasury is the company fee-payer keypair. It signs every
	// sponsored transaction and receives reclaimed rent.
	Treasury solana.PrivateKey

	// Mint is the token being managed (USDC in production).
	Mint     solana.PublicKey
	Decimals uint8 // defaults to USDCDecimals

	// EmptyThresholdUI overrides DefaultEmptyThresholdUI when > 0.
	EmptyThresholdUI float64

	Metrics *metrics.Metrics // optional
	Logger  *slog.Logger
}

// NewService validates the configuration and creates a Service.
func NewService(cfg ServiceConfig) (*Service, error) {
	if cfg.Client == nil {
		return nil, fmt.Errorf("rpc client is required")
	}
	if len(cfg.Treasury) != solana.PrivateKeyLength {
		return nil, fmt.Errorf("treasury keypair must be %d bytes, got %d", solana.PrivateKeyLength, len(cfg.Treasury))
	}
	if cfg.Mint.IsZero() {
		return nil, fmt.Errorf("mint address is required")
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	decimals := cfg.Decimals
	if decimals == 0 {
		decimals = USDCDecimals
	}
	threshold := cfg.EmptyThresholdUI
	if threshold <= 0 {
		threshold = DefaultEmptyThresholdUI
	}
	return &Service{
		client:    cfg.Client,
		verifiers: cfg.VerificationClients,
		treasury:  cfg.Treasury,
		mint:      cfg.Mint,
		decimals:  decimals,
		threshold: threshold,
		logger:    cfg.Logger,
		metrics:   cfg.Metrics,
	}, nil
}

// TreasuryPublicKey returns the treasury's address.
func (s *Service) TreasuryPublicKey() solana.PublicKey {
	return s.treasury.PublicKey()
}

// Mint returns the managed token mint.
func (s *Service) Mint() solana.PublicKey {
	return s.mint
}

// checkTreasuryFunds verifies the treasury can cover required lamports
// of fees and rent. Failure is systemic: callers halt batch writes.
func (s *Service) checkTreasuryFunds(ctx context.Context, required uint64) error {
	balance, err := s.client.SolBalance(ctx, s.treasury.PublicKey())
	if err != nil {
		return fmt.Errorf("query treasury balance: %w", err)
	}
	if balance < required {
		return fmt.Errorf("%w: have %d lamports, need %d", ErrInsufficientTreasury, balance, required)
	}
	return nil
}

// submitAsTreasury assembles, signs and submits a transaction whose
// sole signer is the treasury. Serialized: one treasury transaction in
// flight at a time.
func (s *Service) submitAsTreasury(ctx context.Context, instructions []solana.Instruction) (solana.Signature, error) {
	s.treasuryMu.Lock()
	defer s.treasuryMu.Unlock()

	blockhash, err := s.client.LatestBlockhash(ctx)
	if err != nil {
		return solana.Signature{}, fmt.Errorf("fetch blockhash: %w", err)
	}

	tx, err := solana.NewTransaction(
		instructions,
		blockhash,
		solana.TransactionPayer(s.treasury.PublicKey()),
	)
	if err != nil {
		return solana.Signature{}, fmt.Errorf("assemble transaction: %w", err)
	}

	if _, err := tx.Sign(func(key solana.PublicKey) *solana.PrivateKey {
		if s.treasury.PublicKey().Equals(key) {
			return &s.treasury
		}
		return nil
	}); err != nil {
		return solana.Signature{}, fmt.Errorf("sign as treasury: %w", err)
	}

	sig, err := s.client.Submit(ctx, tx)
	if err != nil {
		return solana.Signature{}, err
	}
	if err := s.client.WaitForConfirmation(ctx, sig); err != nil {
		return sig, err
	}
	return sig, nil
}

// uiToRaw converts a UI amount to raw integer token units, rounding to
// the nearest unit. Truncation would shave a unit off amounts whose
// binary float64 form lands just under the exact product, 2.01 USDC
// becoming 2009999 raw instead of 2010000.
func (s *Service) uiToRaw(ui float64) uint64 {
	scale := float64(1)
	for i := uint8(0); i < s.decimals; i++ {
		scale *= 10
	}
	return uint64(math.Round(ui * scale))
}

// rawToUI converts raw integer token units to a UI amount.
func (s *Service) rawToUI(raw uint64) float64 {
	scale := float64(1)
	for i := uint8(0); i < s.decimals; i++ {
		scale *= 10
	}
	return float64(raw) / scale
}
