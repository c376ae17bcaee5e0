package solana

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/programs/token"
)

// BurnPolicy controls rent reclamation.
type BurnPolicy struct {
	// MinRentRecoveryLamports skips accounts whose recoverable rent is
	// below this floor; closing them would not be worth the fee.
	MinRentRecoveryLamports uint64

	// CrossVerify requires unanimous agreement across every configured
	// RPC endpoint before an account may be classified empty.
	CrossVerify bool

	// DryRun reports what would be reclaimed without submitting
	// anything.
	DryRun bool

	// Batch shape. Zero values fall back to the defaults below.
	BatchSize       int
	Concurrency     int
	InterBatchDelay time.Duration
}

const (
	defaultBurnBatchSize   = 10
	defaultBurnConcurrency = 4
)

// Burn closes one wallet's token account and sweeps its rent-exemption
// lamports back to the treasury.
//
// The account state machine is re-driven from scratch immediately
// before acting so a stale earlier verification can never justify a
// close: Unknown -> (verify) -> Empty | Funded | NonExistent. Only
// Empty proceeds to Closing -> Closed. Funded is a policy violation.
// NonExistent (or already closed) is already-clean: a zero-cost
// success, never a duplicate close and never a double credit.
func (s *Service) Burn(ctx context.Context, owner solana.PublicKey, policy BurnPolicy) (*RentReclamationRecord, error) {
	var snapshot *BalanceSnapshot
	var err error
	if policy.CrossVerify {
		snapshot, err = s.VerifyAcrossRPCs(ctx, owner)
	} else {
		snapshot, err = s.Verify(ctx, owner)
	}
	if err != nil {
		return nil, fmt.Errorf("verify %s before close: %w", owner, err)
	}

	record := &RentReclamationRecord{
		Owner:        owner,
		TokenAccount: snapshot.TokenAccount,
	}

	if !snapshot.Consistent {
		// Flag-and-skip: never act on a wallet the endpoints disagree on.
		record.Status = ReclamationStatusSkipped
		record.Reason = "cross_verification_mismatch"
		if s.metrics != nil {
			s.metrics.RecordBalanceMismatch()
		}
		return record, nil
	}

	switch snapshot.State {
	case AccountStateNonExistent, AccountStateClosed:
		record.Status = ReclamationStatusAlreadyClean
		return record, nil
	case AccountStateFunded:
		record.Status = ReclamationStatusFailed
		record.Reason = fmt.Sprintf("account holds %v tokens", snapshot.UIAmount)
		record.Err = fmt.Errorf("%w: refusing to close funded account %s", ErrPolicyViolation, snapshot.TokenAccount)
		return record, record.Err
	case AccountStateEmpty:
		// proceed
	default:
		return nil, fmt.Errorf("unexpected account state %q for %s", snapshot.State, snapshot.TokenAccount)
	}

	account, exists, err := s.client.AccountInfo(ctx, snapshot.TokenAccount)
	if err != nil {
		return nil, fmt.Errorf("read rent lamports of %s: %w", snapshot.TokenAccount, err)
	}
	if !exists {
		// Closed between verification and now. Still a clean no-op.
		record.Status = ReclamationStatusAlreadyClean
		return record, nil
	}
	rentLamports := account.Lamports

	if rentLamports < policy.MinRentRecoveryLamports {
		record.Status = ReclamationStatusSkipped
		record.Reason = fmt.Sprintf("recoverable rent %d below floor %d", rentLamports, policy.MinRentRecoveryLamports)
		return record, nil
	}

	if policy.DryRun {
		record.Status = ReclamationStatusSkipped
		record.Reason = "dry_run"
		record.LamportsRecovered = rentLamports
		s.logger.InfoContext(ctx, "dry-run: would close token account",
			"owner", owner.String(),
			"ata", snapshot.TokenAccount.String(),
			"lamports", rentLamports,
		)
		return record, nil
	}

	if err := s.checkTreasuryFunds(ctx, feePerSignature); err != nil {
		record.Status = ReclamationStatusFailed
		record.Err = err
		return record, err
	}

	// The treasury holds delegated close authority over app-created
	// accounts and receives the reclaimed lamports.
	closeIx := token.NewCloseAccountInstruction(
		snapshot.TokenAccount,
		s.treasury.PublicKey(), // destination for reclaimed rent
		s.treasury.PublicKey(), // close authority delegate
		nil,
	).Build()

	sig, err := s.submitAsTreasury(ctx, []solana.Instruction{closeIx})
	if err != nil {
		record.Status = ReclamationStatusFailed
		record.Err = err
		return record, err
	}

	record.Status = ReclamationStatusClosed
	record.Closed = true
	record.LamportsRecovered = rentLamports
	record.Signature = sig
	if s.metrics != nil {
		s.metrics.RecordAccountClosed(rentLamports)
	}
	s.logger.InfoContext(ctx, "closed token account and reclaimed rent",
		"owner", owner.String(),
		"ata", snapshot.TokenAccount.String(),
		"lamports_recovered", rentLamports,
		"signature", sig.String(),
	)
	return record, nil
}

// BurnBatch reclaims rent across candidate wallets with bounded
// concurrency, batch-sized chunks and an inter-batch delay as RPC
// courtesy. One wallet's failure never aborts the batch; only a
// systemic fault (treasury exhaustion) halts it, with the report
// summarizing what completed before the fault. Cancellation applies
// between items; in-flight submissions are never rolled back.
func (s *Service) BurnBatch(ctx context.Context, owners []solana.PublicKey, policy BurnPolicy) *BatchReport {
	batchSize := policy.BatchSize
	if batchSize <= 0 {
		batchSize = defaultBurnBatchSize
	}
	concurrency := policy.Concurrency
	if concurrency <= 0 {
		concurrency = defaultBurnConcurrency
	}

	report := &BatchReport{StartedAt: time.Now().UTC()}
	defer func() { report.FinishedAt = time.Now().UTC() }()

	for start := 0; start < len(owners); start += batchSize {
		if report.Halted || ctx.Err() != nil {
			break
		}
		end := min(start+batchSize, len(owners))
		chunk := owners[start:end]

		type indexed struct {
			i      int
			record *RentReclamationRecord
			err    error
		}
		results := make(chan indexed, len(chunk))
		sem := make(chan struct{}, concurrency)

		for i, owner := range chunk {
			sem <- struct{}{}
			go func(i int, owner solana.PublicKey) {
				defer func() { <-sem }()
				record, err := s.Burn(ctx, owner, policy)
				results <- indexed{i: i, record: record, err: err}
			}(i, owner)
		}

		// Merge after each worker completes; the report is never
		// mutated concurrently.
		chunkRecords := make([]*RentReclamationRecord, len(chunk))
		var halt error
		for range chunk {
			r := <-results
			if r.record == nil {
				r.record = &RentReclamationRecord{
					Owner:  chunk[r.i],
					Status: ReclamationStatusFailed,
					Err:    r.err,
				}
			}
			chunkRecords[r.i] = r.record
			if errors.Is(r.err, ErrInsufficientTreasury) {
				halt = r.err
			}
		}

		for _, record := range chunkRecords {
			report.Processed++
			report.Records = append(report.Records, *record)
			switch {
			case record.Err != nil:
				report.Errored++
			case record.Reason == "cross_verification_mismatch":
				report.Mismatched++
				report.Succeeded++
			default:
				report.Succeeded++
			}
			if record.Closed {
				report.Burned++
				report.TotalRecovered += record.LamportsRecovered
			}
		}

		if halt != nil {
			// Treasury exhaustion affects every remaining write.
			report.Halted = true
			report.HaltReason = halt.Error()
			s.logger.ErrorContext(ctx, "halting reclamation batch",
				"reason", halt.Error(),
				"processed", report.Processed,
				"remaining", len(owners)-end,
			)
			break
		}

		if policy.InterBatchDelay > 0 && end < len(owners) {
			select {
			case <-ctx.Done():
			case <-time.After(policy.InterBatchDelay):
			}
		}
	}

	if s.metrics != nil {
		s.metrics.RecordBurnBatch(report.Processed, report.Burned, report.Errored, time.Since(report.StartedAt).Seconds())
	}
	s.logger.InfoContext(ctx, "reclamation batch finished",
		"processed", report.Processed,
		"burned", report.Burned,
		"errored", report.Errored,
		"mismatched", report.Mismatched,
		"total_recovered", report.TotalRecovered,
		"halted", report.Halted,
	)
	return report
}
