package solana

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/gagliardetto/solana-go"
	associatedtokenaccount "github.com/gagliardetto/solana-go/programs/associated-token-account"
)

// ResolveATA computes the associated token account address for an
// owner under the service's mint. Pure derivation, no network call.
// This is the only ATA derivation code path in the repository.
func (s *Service) ResolveATA(owner solana.PublicKey) (solana.PublicKey, error) {
	ata, _, err := solana.FindAssociatedTokenAddress(owner, s.mint)
	if err != nil {
		return solana.PublicKey{}, fmt.Errorf("derive associated token account for %s: %w", owner, err)
	}
	return ata, nil
}

// EnsureATA resolves the owner's associated token account and creates
// it with the treasury paying fees and rent if it does not exist.
// A present account costs nothing and returns Created=false.
func (s *Service) EnsureATA(ctx context.Context, owner solana.PublicKey) (*EnsureResult, error) {
	ata, err := s.ResolveATA(owner)
	if err != nil {
		return nil, err
	}
	result := &EnsureResult{Owner: owner, Address: ata}

	_, exists, err := s.client.AccountInfo(ctx, ata)
	if err != nil {
		return nil, fmt.Errorf("check existence of %s: %w", ata, err)
	}
	if exists {
		s.logger.DebugContext(ctx, "associated token account already exists",
			"owner", owner.String(),
			"ata", ata.String(),
		)
		return result, nil
	}

	rent, err := s.client.RentExemption(ctx, tokenAccountSize)
	if err != nil {
		return nil, fmt.Errorf("compute rent exemption: %w", err)
	}
	if err := s.checkTreasuryFunds(ctx, rent+feePerSignature); err != nil {
		return nil, err
	}

	createIx := associatedtokenaccount.NewCreateInstruction(
		s.treasury.PublicKey(), // payer
		owner,
		s.mint,
	).Build()

	sig, err := s.submitAsTreasury(ctx, []solana.Instruction{createIx})
	if err != nil {
		return nil, fmt.Errorf("create associated token account for %s: %w", owner, err)
	}

	result.Created = true
	result.Signature = sig
	if s.metrics != nil {
		s.metrics.RecordATACreated()
	}
	s.logger.InfoContext(ctx, "created associated token account",
		"owner", owner.String(),
		"ata", ata.String(),
		"signature", sig.String(),
	)
	return result, nil
}

// EnsureATABatch processes owners in order, continuing past per-owner
// failures. Each owner gets an outcome; one failure never aborts the
// batch, except treasury exhaustion, which dooms every remaining
// sponsored creation and halts the batch with the completed results.
// A small delay between creations respects RPC rate limits.
func (s *Service) EnsureATABatch(ctx context.Context, owners []solana.PublicKey, delay time.Duration) []EnsureResult {
	results := make([]EnsureResult, 0, len(owners))
	for i, owner := range owners {
		if ctx.Err() != nil {
			// Cancellation is batch-scoped: stop between items only.
			results = append(results, EnsureResult{Owner: owner, Err: ctx.Err()})
			continue
		}
		result, err := s.EnsureATA(ctx, owner)
		if err != nil {
			s.logger.WarnContext(ctx, "ensure associated token account failed",
				"owner", owner.String(),
				"error", err,
			)
			results = append(results, EnsureResult{Owner: owner, Err: err})
			if errors.Is(err, ErrInsufficientTreasury) {
				s.logger.WarnContext(ctx, "halting batch on treasury exhaustion",
					"attempted", len(results),
					"remaining", len(owners)-len(results),
				)
				break
			}
			continue
		}
		results = append(results, *result)

		if result.Created && delay > 0 && i < len(owners)-1 {
			select {
			case <-ctx.Done():
			case <-time.After(delay):
			}
		}
	}
	return results
}
