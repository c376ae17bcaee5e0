package temporal

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	solanago "github.com/gagliardetto/solana-go"

	"github.com/chipin/walletops/service/db"
	"github.com/chipin/walletops/service/metrics"
	natspkg "github.com/chipin/walletops/service/nats"
	"github.com/chipin/walletops/service/solana"
)

// SweepWalletsInput contains the input parameters for a sweep run.
type SweepWalletsInput struct {
	Owners                  []string `json:"owners"`
	DryRun                  bool     `json:"dry_run"`
	CrossVerify             bool     `json:"cross_verify"`
	MinRentRecoveryLamports uint64   `json:"min_rent_recovery_lamports"`
	BatchSize               int      `json:"batch_size"`
	Concurrency             int      `json:"concurrency"`
}

// SweepWalletsResult contains the aggregate outcome of a sweep run.
type SweepWalletsResult struct {
	Processed      int                  `json:"processed"`
	Succeeded      int                  `json:"succeeded"`
	Burned         int                  `json:"burned"`
	Mismatched     int                  `json:"mismatched"`
	Errored        int                  `json:"errored"`
	TotalRecovered uint64               `json:"total_recovered"`
	Halted         bool                 `json:"halted"`
	HaltReason     string               `json:"halt_reason,omitempty"`
	SweepReportID  *int64               `json:"sweep_report_id,omitempty"`
	Records        []ReclamationOutcome `json:"records"`
	StartedAt      time.Time            `json:"started_at"`
	FinishedAt     time.Time            `json:"finished_at"`
	Error          *string              `json:"error,omitempty"`
}

// ReclamationOutcome is the serializable per-wallet result carried
// between activities.
type ReclamationOutcome struct {
	Owner             string `json:"owner"`
	TokenAccount      string `json:"token_account"`
	Status            string `json:"status"`
	Reason            string `json:"reason,omitempty"`
	LamportsRecovered uint64 `json:"lamports_recovered"`
	Signature         string `json:"signature,omitempty"`
	Error             string `json:"error,omitempty"`
}

// ReclaimBatchInput contains parameters for the ReclaimBatch activity.
type ReclaimBatchInput struct {
	Owners                  []string `json:"owners"`
	DryRun                  bool     `json:"dry_run"`
	CrossVerify             bool     `json:"cross_verify"`
	MinRentRecoveryLamports uint64   `json:"min_rent_recovery_lamports"`
	Concurrency             int      `json:"concurrency"`
}

// ReclaimBatchResult contains the result of reclaiming one batch of wallets.
type ReclaimBatchResult struct {
	Records        []ReclamationOutcome `json:"records"`
	Processed      int                  `json:"processed"`
	Succeeded      int                  `json:"succeeded"`
	Burned         int                  `json:"burned"`
	Mismatched     int                  `json:"mismatched"`
	Errored        int                  `json:"errored"`
	TotalRecovered uint64               `json:"total_recovered"`
	Halted         bool                 `json:"halted"`
	HaltReason     string               `json:"halt_reason,omitempty"`
}

// VerifyWalletInput contains parameters for the VerifyWallet activity.
type VerifyWalletInput struct {
	Owner       string `json:"owner"`
	CrossVerify bool   `json:"cross_verify"`
}

// VerifyWalletResult contains the result of verifying one wallet.
type VerifyWalletResult struct {
	Owner        string  `json:"owner"`
	TokenAccount string  `json:"token_account"`
	State        string  `json:"state"`
	UIAmount     float64 `json:"ui_amount"`
	RawAmount    uint64  `json:"raw_amount"`
	Consistent   bool    `json:"consistent"`
	CheckCount   int     `json:"check_count"`
}

// WriteSweepReportInput contains parameters for the WriteSweepReport activity.
type WriteSweepReportInput struct {
	Records        []ReclamationOutcome `json:"records"`
	Processed      int                  `json:"processed"`
	Succeeded      int                  `json:"succeeded"`
	Burned         int                  `json:"burned"`
	Mismatched     int                  `json:"mismatched"`
	Errored        int                  `json:"errored"`
	TotalRecovered uint64               `json:"total_recovered"`
	Halted         bool                 `json:"halted"`
	HaltReason     string               `json:"halt_reason,omitempty"`
	StartedAt      time.Time            `json:"started_at"`
	FinishedAt     time.Time            `json:"finished_at"`
}

// WriteSweepReportResult contains the persisted report id.
type WriteSweepReportResult struct {
	SweepReportID int64 `json:"sweep_report_id"`
}

// PublishReclamationsInput contains parameters for the PublishReclamations activity.
type PublishReclamationsInput struct {
	Records []ReclamationOutcome `json:"records"`
}

// SweeperInterface defines the on-chain operations needed by activities.
// This allows for easy mocking in tests.
type SweeperInterface interface {
	Verify(ctx context.Context, owner solanago.PublicKey) (*solana.BalanceSnapshot, error)
	VerifyAcrossRPCs(ctx context.Context, owner solanago.PublicKey) (*solana.BalanceSnapshot, error)
	BurnBatch(ctx context.Context, owners []solanago.PublicKey, policy solana.BurnPolicy) *solana.BatchReport
}

// LedgerInterface defines the audit ledger operations needed by activities.
// This allows for easy mocking in tests.
type LedgerInterface interface {
	CreateBalanceSnapshot(ctx context.Context, params db.CreateBalanceSnapshotParams) (*db.BalanceSnapshot, error)
	CreateSweepReport(ctx context.Context, params db.CreateSweepReportParams) (*db.SweepReport, error)
	CreateReclamation(ctx context.Context, params db.CreateReclamationParams) (*db.Reclamation, error)
}

// PublisherInterface defines the NATS publishing operations needed by activities.
// This allows for easy mocking in tests.
type PublisherInterface interface {
	PublishReclaimed(ctx context.Context, event *natspkg.ReclaimedEvent) error
	PublishReclaimedBatch(ctx context.Context, events []*natspkg.ReclaimedEvent) error
}

// Activities holds the dependencies needed by Temporal activities.
// All dependencies are explicit.
type Activities struct {
	sweeper   SweeperInterface
	ledger    LedgerInterface
	publisher PublisherInterface
	metrics   *metrics.Metrics
	logger    *slog.Logger
}

// NewActivities creates a new Activities instance with explicit dependencies.
// If metrics is nil, no metrics will be recorded.
func NewActivities(
	sweeper SweeperInterface,
	ledger LedgerInterface,
	publisher PublisherInterface,
	m *metrics.Metrics,
	logger *slog.Logger,
) *Activities {
	if logger == nil {
		logger = slog.Default()
	}
	return &Activities{
		sweeper:   sweeper,
		ledger:    ledger,
		publisher: publisher,
		metrics:   m,
		logger:    logger,
	}
}

// VerifyWallet verifies one wallet's token balance and persists the
// snapshot to the audit ledger.
func (a *Activities) VerifyWallet(ctx context.Context, input VerifyWalletInput) (*VerifyWalletResult, error) {
	start := time.Now()
	defer func() {
		if a.metrics != nil {
			a.metrics.RecordActivityDuration("VerifyWallet", time.Since(start).Seconds())
		}
	}()

	owner, err := solanago.PublicKeyFromBase58(input.Owner)
	if err != nil {
		return nil, fmt.Errorf("invalid owner address: %w", err)
	}

	var snapshot *solana.BalanceSnapshot
	if input.CrossVerify {
		snapshot, err = a.sweeper.VerifyAcrossRPCs(ctx, owner)
	} else {
		snapshot, err = a.sweeper.Verify(ctx, owner)
	}
	if err != nil {
		a.logger.ErrorContext(ctx, "failed to verify wallet",
			"owner", input.Owner,
			"error", err,
		)
		return nil, fmt.Errorf("failed to verify wallet: %w", err)
	}

	if _, err := a.ledger.CreateBalanceSnapshot(ctx, db.CreateBalanceSnapshotParams{
		Owner:        snapshot.Owner.String(),
		TokenAccount: snapshot.TokenAccount.String(),
		Mint:         snapshot.Mint.String(),
		State:        string(snapshot.State),
		UIAmount:     snapshot.UIAmount,
		RawAmount:    int64(snapshot.RawAmount),
		Consistent:   snapshot.Consistent,
		CheckCount:   int32(len(snapshot.Checks)),
		CheckedAt:    snapshot.CheckedAt,
	}); err != nil {
		// Verification itself succeeded; surface the ledger failure but
		// keep the on-chain answer in the error for operators.
		a.logger.ErrorContext(ctx, "failed to persist balance snapshot",
			"owner", input.Owner,
			"state", snapshot.State,
			"error", err,
		)
		return nil, fmt.Errorf("failed to persist balance snapshot: %w", err)
	}

	return &VerifyWalletResult{
		Owner:        snapshot.Owner.String(),
		TokenAccount: snapshot.TokenAccount.String(),
		State:        string(snapshot.State),
		UIAmount:     snapshot.UIAmount,
		RawAmount:    snapshot.RawAmount,
		Consistent:   snapshot.Consistent,
		CheckCount:   len(snapshot.Checks),
	}, nil
}

// ReclaimBatch reclaims rent from one batch of wallets.
func (a *Activities) ReclaimBatch(ctx context.Context, input ReclaimBatchInput) (*ReclaimBatchResult, error) {
	start := time.Now()
	defer func() {
		if a.metrics != nil {
			a.metrics.RecordActivityDuration("ReclaimBatch", time.Since(start).Seconds())
		}
	}()

	owners := make([]solanago.PublicKey, 0, len(input.Owners))
	for _, raw := range input.Owners {
		owner, err := solanago.PublicKeyFromBase58(raw)
		if err != nil {
			return nil, fmt.Errorf("invalid owner address %q: %w", raw, err)
		}
		owners = append(owners, owner)
	}

	policy := solana.BurnPolicy{
		MinRentRecoveryLamports: input.MinRentRecoveryLamports,
		CrossVerify:             input.CrossVerify,
		DryRun:                  input.DryRun,
		BatchSize:               len(owners),
		Concurrency:             input.Concurrency,
	}

	report := a.sweeper.BurnBatch(ctx, owners, policy)

	result := &ReclaimBatchResult{
		Processed:      report.Processed,
		Succeeded:      report.Succeeded,
		Burned:         report.Burned,
		Mismatched:     report.Mismatched,
		Errored:        report.Errored,
		TotalRecovered: report.TotalRecovered,
		Halted:         report.Halted,
		HaltReason:     report.HaltReason,
	}
	for i := range report.Records {
		result.Records = append(result.Records, outcomeFromRecord(&report.Records[i]))
	}

	a.logger.InfoContext(ctx, "reclaimed batch",
		"wallets", len(owners),
		"burned", report.Burned,
		"errored", report.Errored,
		"total_recovered", report.TotalRecovered,
		"halted", report.Halted,
	)

	return result, nil
}

// WriteSweepReport persists the sweep summary and its per-wallet
// outcomes to the audit ledger.
func (a *Activities) WriteSweepReport(ctx context.Context, input WriteSweepReportInput) (*WriteSweepReportResult, error) {
	start := time.Now()
	defer func() {
		if a.metrics != nil {
			a.metrics.RecordActivityDuration("WriteSweepReport", time.Since(start).Seconds())
		}
	}()

	var haltReason *string
	if input.HaltReason != "" {
		haltReason = &input.HaltReason
	}

	report, err := a.ledger.CreateSweepReport(ctx, db.CreateSweepReportParams{
		Processed:      int32(input.Processed),
		Succeeded:      int32(input.Succeeded),
		Burned:         int32(input.Burned),
		Mismatched:     int32(input.Mismatched),
		Errored:        int32(input.Errored),
		TotalRecovered: int64(input.TotalRecovered),
		Halted:         input.Halted,
		HaltReason:     haltReason,
		StartedAt:      input.StartedAt,
		FinishedAt:     input.FinishedAt,
	})
	if err != nil {
		a.logger.ErrorContext(ctx, "failed to write sweep report", "error", err)
		return nil, fmt.Errorf("failed to write sweep report: %w", err)
	}

	for _, outcome := range input.Records {
		params := db.CreateReclamationParams{
			SweepReportID:     &report.ID,
			Owner:             outcome.Owner,
			TokenAccount:      outcome.TokenAccount,
			Status:            outcome.Status,
			LamportsRecovered: int64(outcome.LamportsRecovered),
		}
		if outcome.Reason != "" {
			params.Reason = &outcome.Reason
		}
		if outcome.Signature != "" {
			params.Signature = &outcome.Signature
		}
		if outcome.Error != "" {
			params.ErrorText = &outcome.Error
		}
		if _, err := a.ledger.CreateReclamation(ctx, params); err != nil {
			a.logger.ErrorContext(ctx, "failed to write reclamation record",
				"owner", outcome.Owner,
				"sweep_report_id", report.ID,
				"error", err,
			)
			return nil, fmt.Errorf("failed to write reclamation record for %s: %w", outcome.Owner, err)
		}
	}

	a.logger.InfoContext(ctx, "wrote sweep report",
		"sweep_report_id", report.ID,
		"records", len(input.Records),
	)

	return &WriteSweepReportResult{SweepReportID: report.ID}, nil
}

// PublishReclamations publishes the sweep outcomes to NATS so
// downstream consumers learn which wallets were cleaned up.
func (a *Activities) PublishReclamations(ctx context.Context, input PublishReclamationsInput) error {
	start := time.Now()
	defer func() {
		if a.metrics != nil {
			a.metrics.RecordActivityDuration("PublishReclamations", time.Since(start).Seconds())
		}
	}()

	if a.publisher == nil || len(input.Records) == 0 {
		return nil
	}

	events := make([]*natspkg.ReclaimedEvent, 0, len(input.Records))
	for _, outcome := range input.Records {
		events = append(events, &natspkg.ReclaimedEvent{
			Owner:             outcome.Owner,
			TokenAccount:      outcome.TokenAccount,
			Status:            outcome.Status,
			Reason:            outcome.Reason,
			LamportsRecovered: int64(outcome.LamportsRecovered),
			Signature:         outcome.Signature,
			PublishedAt:       time.Now().UTC(),
		})
	}

	if err := a.publisher.PublishReclaimedBatch(ctx, events); err != nil {
		a.logger.ErrorContext(ctx, "failed to publish reclamation events",
			"count", len(events),
			"error", err,
		)
		return fmt.Errorf("failed to publish reclamation events: %w", err)
	}

	a.logger.DebugContext(ctx, "published reclamation events", "count", len(events))
	return nil
}

func outcomeFromRecord(record *solana.RentReclamationRecord) ReclamationOutcome {
	outcome := ReclamationOutcome{
		Owner:             record.Owner.String(),
		TokenAccount:      record.TokenAccount.String(),
		Status:            string(record.Status),
		Reason:            record.Reason,
		LamportsRecovered: record.LamportsRecovered,
	}
	if !record.Signature.IsZero() {
		outcome.Signature = record.Signature.String()
	}
	if record.Err != nil {
		outcome.Error = record.Err.Error()
	}
	return outcome
}
