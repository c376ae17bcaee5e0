package temporal

import (
	"fmt"
	"time"

	temporalsdk "go.temporal.io/sdk/temporal"
	"go.temporal.io/sdk/workflow"
)

var a *Activities // for type-safe activity invocation

const defaultSweepBatchSize = 10

// SweepWalletsWorkflow is the Temporal workflow that reclaims rent from
// a set of candidate wallets. It is triggered on demand by operators or
// by a Temporal schedule (e.g. a nightly sweep).
//
// The workflow performs these steps:
//  1. Reclaim rent batch by batch (ReclaimBatch activity); a treasury
//     exhaustion halt stops further batches but keeps what completed.
//  2. Persist the sweep report and per-wallet outcomes (WriteSweepReport).
//  3. Publish reclamation events to NATS (PublishReclamations, best-effort).
func SweepWalletsWorkflow(ctx workflow.Context, input SweepWalletsInput) (*SweepWalletsResult, error) {
	logger := workflow.GetLogger(ctx)
	logger.Info("SweepWalletsWorkflow started",
		"wallets", len(input.Owners),
		"dry_run", input.DryRun,
	)

	result := &SweepWalletsResult{
		StartedAt: workflow.Now(ctx).UTC(),
	}

	batchSize := input.BatchSize
	if batchSize <= 0 {
		batchSize = defaultSweepBatchSize
	}

	// Configure activity options
	activityOptions := workflow.ActivityOptions{
		StartToCloseTimeout: 300 * time.Second,
		RetryPolicy: &temporalsdk.RetryPolicy{
			InitialInterval:    time.Second,
			BackoffCoefficient: 2.0,
			MaximumInterval:    30 * time.Second,
			MaximumAttempts:    3,
		},
	}
	ctx = workflow.WithActivityOptions(ctx, activityOptions)

	// Step 1: reclaim batch by batch
	for start := 0; start < len(input.Owners); start += batchSize {
		end := min(start+batchSize, len(input.Owners))
		chunk := input.Owners[start:end]

		batchInput := ReclaimBatchInput{
			Owners:                  chunk,
			DryRun:                  input.DryRun,
			CrossVerify:             input.CrossVerify,
			MinRentRecoveryLamports: input.MinRentRecoveryLamports,
			Concurrency:             input.Concurrency,
		}

		var batchResult *ReclaimBatchResult
		err := workflow.ExecuteActivity(ctx, a.ReclaimBatch, batchInput).Get(ctx, &batchResult)
		if err != nil {
			logger.Error("failed to reclaim batch",
				"batch_start", start,
				"batch_size", len(chunk),
				"error", err,
			)
			errMsg := fmt.Sprintf("failed to reclaim batch: %v", err)
			result.Error = &errMsg
			result.FinishedAt = workflow.Now(ctx).UTC()
			return result, fmt.Errorf("failed to reclaim batch: %w", err)
		}

		result.Processed += batchResult.Processed
		result.Succeeded += batchResult.Succeeded
		result.Burned += batchResult.Burned
		result.Mismatched += batchResult.Mismatched
		result.Errored += batchResult.Errored
		result.TotalRecovered += batchResult.TotalRecovered
		result.Records = append(result.Records, batchResult.Records...)

		if batchResult.Halted {
			logger.Warn("sweep halted",
				"reason", batchResult.HaltReason,
				"processed", result.Processed,
				"remaining", len(input.Owners)-end,
			)
			result.Halted = true
			result.HaltReason = batchResult.HaltReason
			break
		}
	}

	result.FinishedAt = workflow.Now(ctx).UTC()

	logger.Info("sweep completed",
		"processed", result.Processed,
		"burned", result.Burned,
		"errored", result.Errored,
		"total_recovered", result.TotalRecovered,
		"halted", result.Halted,
	)

	// Step 2: persist the report
	writeInput := WriteSweepReportInput{
		Records:        result.Records,
		Processed:      result.Processed,
		Succeeded:      result.Succeeded,
		Burned:         result.Burned,
		Mismatched:     result.Mismatched,
		Errored:        result.Errored,
		TotalRecovered: result.TotalRecovered,
		Halted:         result.Halted,
		HaltReason:     result.HaltReason,
		StartedAt:      result.StartedAt,
		FinishedAt:     result.FinishedAt,
	}

	var writeResult *WriteSweepReportResult
	err := workflow.ExecuteActivity(ctx, a.WriteSweepReport, writeInput).Get(ctx, &writeResult)
	if err != nil {
		logger.Error("failed to write sweep report", "error", err)
		errMsg := fmt.Sprintf("failed to write sweep report: %v", err)
		result.Error = &errMsg
		return result, fmt.Errorf("failed to write sweep report: %w", err)
	}
	result.SweepReportID = &writeResult.SweepReportID

	// Step 3: publish events. Best-effort: the report is already
	// persisted, so a publish failure must not fail the sweep.
	publishInput := PublishReclamationsInput{Records: result.Records}
	if err := workflow.ExecuteActivity(ctx, a.PublishReclamations, publishInput).Get(ctx, nil); err != nil {
		logger.Warn("failed to publish reclamation events", "error", err)
	}

	logger.Info("SweepWalletsWorkflow completed successfully",
		"sweep_report_id", writeResult.SweepReportID,
		"processed", result.Processed,
		"burned", result.Burned,
	)

	return result, nil
}
