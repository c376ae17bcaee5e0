package main

import (
	"context"
	"fmt"
	"os"
	"time"

	solanago "github.com/gagliardetto/solana-go"
	"github.com/urfave/cli/v2"

	"github.com/chipin/walletops/service/db"
	"github.com/chipin/walletops/service/solana"
	"github.com/chipin/walletops/service/temporal"
)

// sweepFlags are shared by every command that shapes a sweep run.
func sweepFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:    "owners-file",
			Aliases: []string{"f"},
			Usage:   "File with one owner address per line (#-comments allowed)",
		},
		&cli.BoolFlag{
			Name:  "dry-run",
			Usage: "Report what would be reclaimed without submitting anything",
		},
		&cli.BoolFlag{
			Name:  "cross-rpc",
			Usage: "Require unanimous agreement across verification RPC endpoints",
		},
		&cli.Uint64Flag{
			Name:  "min-rent-recovery",
			Usage: "Skip accounts whose recoverable rent is below this many lamports",
		},
		&cli.IntFlag{
			Name:  "batch-size",
			Usage: "Wallets per batch (0 uses the default)",
		},
		&cli.IntFlag{
			Name:  "concurrency",
			Usage: "Concurrent closes per batch (0 uses the default)",
		},
	}
}

// sweepOwners merges positional arguments with --owners-file.
func sweepOwners(c *cli.Context) ([]string, error) {
	owners := append([]string{}, c.Args().Slice()...)
	for _, raw := range owners {
		if _, err := solanago.PublicKeyFromBase58(raw); err != nil {
			return nil, fmt.Errorf("invalid owner address %q: %w", raw, err)
		}
	}
	if file := c.String("owners-file"); file != "" {
		fromFile, err := readOwnersFile(file)
		if err != nil {
			return nil, err
		}
		owners = append(owners, fromFile...)
	}
	if len(owners) == 0 {
		return nil, fmt.Errorf("no wallets to sweep: pass owner addresses or --owners-file")
	}
	return owners, nil
}

func sweepCommands() *cli.Command {
	return &cli.Command{
		Name:  "sweep",
		Usage: "Rent reclamation commands",
		Subcommands: []*cli.Command{
			sweepRunCommand(),
			sweepStartCommand(),
		},
	}
}

func sweepRunCommand() *cli.Command {
	return &cli.Command{
		Name:      "run",
		Usage:     "Sweep wallets now, in this process",
		ArgsUsage: "[OWNER_ADDRESS...]",
		Flags: append(sweepFlags(),
			&cli.BoolFlag{
				Name:  "record",
				Usage: "Write the sweep report to the audit ledger",
			},
			&cli.DurationFlag{
				Name:  "inter-batch-delay",
				Usage: "Pause between batches",
			},
			&cli.DurationFlag{
				Name:  "min-age",
				Usage: "Only sweep wallets first verified at least this long ago (requires --database-url)",
			},
		),
		Action: func(c *cli.Context) error {
			raw, err := sweepOwners(c)
			if err != nil {
				return err
			}
			if minAge := c.Duration("min-age"); minAge > 0 {
				raw, err = filterByAge(c, raw, minAge)
				if err != nil {
					return err
				}
				if len(raw) == 0 {
					return fmt.Errorf("no wallets meet the minimum age of %s", minAge)
				}
			}
			owners := make([]solanago.PublicKey, len(raw))
			for i, r := range raw {
				owners[i] = solanago.MustPublicKeyFromBase58(r)
			}

			svc, err := getService(c)
			if err != nil {
				return err
			}

			report := svc.BurnBatch(context.Background(), owners, solana.BurnPolicy{
				MinRentRecoveryLamports: c.Uint64("min-rent-recovery"),
				CrossVerify:             c.Bool("cross-rpc"),
				DryRun:                  c.Bool("dry-run"),
				BatchSize:               c.Int("batch-size"),
				Concurrency:             c.Int("concurrency"),
				InterBatchDelay:         c.Duration("inter-batch-delay"),
			})

			if c.Bool("record") {
				if err := recordSweepReport(c, report); err != nil {
					cliLogger().Error("failed to record sweep report", "error", err)
				}
			}

			if err := outputJSON(c, report); err != nil {
				return err
			}
			if report.Halted {
				return fmt.Errorf("sweep halted: %s", report.HaltReason)
			}
			return nil
		},
	}
}

func sweepStartCommand() *cli.Command {
	return &cli.Command{
		Name:      "start",
		Usage:     "Start a durable sweep workflow on Temporal",
		ArgsUsage: "[OWNER_ADDRESS...]",
		Flags:     sweepFlags(),
		Action: func(c *cli.Context) error {
			owners, err := sweepOwners(c)
			if err != nil {
				return err
			}

			tc, err := getTemporalClient(c)
			if err != nil {
				return err
			}
			defer tc.Close()

			workflowID, err := tc.StartSweep(context.Background(), sweepInput(c, owners))
			if err != nil {
				return fmt.Errorf("failed to start sweep workflow: %w", err)
			}

			return outputJSON(c, map[string]interface{}{
				"workflow_id": workflowID,
				"wallets":     len(owners),
				"dry_run":     c.Bool("dry-run"),
			})
		},
	}
}

func scheduleCommands() *cli.Command {
	return &cli.Command{
		Name:  "schedule",
		Usage: "Recurring sweep schedule commands",
		Subcommands: []*cli.Command{
			scheduleCreateCommand(),
			scheduleDeleteCommand(),
		},
	}
}

func scheduleCreateCommand() *cli.Command {
	return &cli.Command{
		Name:      "create",
		Usage:     "Create or update a recurring sweep schedule",
		ArgsUsage: "SCHEDULE_NAME",
		Flags: append(sweepFlags(),
			&cli.DurationFlag{
				Name:    "interval",
				Aliases: []string{"i"},
				Value:   24 * time.Hour,
				Usage:   "How often the sweep runs",
			},
		),
		Action: func(c *cli.Context) error {
			if c.NArg() != 1 {
				return fmt.Errorf("requires exactly one argument: schedule name")
			}
			name := c.Args().First()

			owners, err := sweepOwners(c)
			if err != nil {
				return err
			}

			tc, err := getTemporalClient(c)
			if err != nil {
				return err
			}
			defer tc.Close()

			interval := c.Duration("interval")
			if err := tc.UpsertSweepSchedule(context.Background(), name, sweepInput(c, owners), interval); err != nil {
				return fmt.Errorf("failed to create sweep schedule: %w", err)
			}

			return outputJSON(c, map[string]interface{}{
				"schedule": name,
				"interval": interval.String(),
				"wallets":  len(owners),
				"dry_run":  c.Bool("dry-run"),
			})
		},
	}
}

func scheduleDeleteCommand() *cli.Command {
	return &cli.Command{
		Name:      "delete",
		Aliases:   []string{"rm"},
		Usage:     "Delete a recurring sweep schedule",
		ArgsUsage: "SCHEDULE_NAME",
		Action: func(c *cli.Context) error {
			if c.NArg() != 1 {
				return fmt.Errorf("requires exactly one argument: schedule name")
			}
			name := c.Args().First()

			tc, err := getTemporalClient(c)
			if err != nil {
				return err
			}
			defer tc.Close()

			if err := tc.DeleteSweepSchedule(context.Background(), name); err != nil {
				return fmt.Errorf("failed to delete sweep schedule: %w", err)
			}

			return outputJSON(c, map[string]interface{}{
				"schedule": name,
				"deleted":  true,
			})
		},
	}
}

// sweepInput translates the shared sweep flags into workflow input.
func sweepInput(c *cli.Context, owners []string) temporal.SweepWalletsInput {
	return temporal.SweepWalletsInput{
		Owners:                  owners,
		DryRun:                  c.Bool("dry-run"),
		CrossVerify:             c.Bool("cross-rpc"),
		MinRentRecoveryLamports: c.Uint64("min-rent-recovery"),
		BatchSize:               c.Int("batch-size"),
		Concurrency:             c.Int("concurrency"),
	}
}

// getTemporalClient connects to Temporal using the global flags.
func getTemporalClient(c *cli.Context) (*temporal.Client, error) {
	return temporal.NewClient(
		c.String("temporal-host"),
		c.String("temporal-namespace"),
		c.String("temporal-task-queue"),
		cliLogger(),
	)
}

// filterByAge drops wallets whose earliest ledger snapshot is younger
// than minAge, plus wallets the ledger has never seen. Freshly created
// wallets stay out of sweeps until their history is old enough to trust.
func filterByAge(c *cli.Context, owners []string, minAge time.Duration) ([]string, error) {
	store, closer, err := getStore(c)
	if err != nil {
		return nil, fmt.Errorf("--min-age needs the audit ledger: %w", err)
	}
	defer closer()

	ctx := context.Background()
	cutoff := time.Now().Add(-minAge)
	kept := make([]string, 0, len(owners))
	for _, owner := range owners {
		firstSeen, err := store.FirstSeenAt(ctx, owner)
		if err != nil {
			return nil, fmt.Errorf("failed to look up wallet age for %s: %w", owner, err)
		}
		if firstSeen == nil || firstSeen.After(cutoff) {
			continue
		}
		kept = append(kept, owner)
	}
	if skipped := len(owners) - len(kept); skipped > 0 {
		fmt.Fprintf(os.Stderr, "Skipping %d wallet(s) younger than %s\n", skipped, minAge)
	}
	return kept, nil
}

// recordSweepReport persists a locally-run sweep to the audit ledger,
// mirroring what the workflow's report activity writes.
func recordSweepReport(c *cli.Context, report *solana.BatchReport) error {
	store, closer, err := getStore(c)
	if err != nil {
		return err
	}
	defer closer()

	ctx := context.Background()
	var haltReason *string
	if report.HaltReason != "" {
		haltReason = &report.HaltReason
	}

	saved, err := store.CreateSweepReport(ctx, db.CreateSweepReportParams{
		Processed:      int32(report.Processed),
		Succeeded:      int32(report.Succeeded),
		Burned:         int32(report.Burned),
		Mismatched:     int32(report.Mismatched),
		Errored:        int32(report.Errored),
		TotalRecovered: int64(report.TotalRecovered),
		Halted:         report.Halted,
		HaltReason:     haltReason,
		StartedAt:      report.StartedAt,
		FinishedAt:     report.FinishedAt,
	})
	if err != nil {
		return err
	}

	for i := range report.Records {
		record := &report.Records[i]
		params := db.CreateReclamationParams{
			SweepReportID:     &saved.ID,
			Owner:             record.Owner.String(),
			TokenAccount:      record.TokenAccount.String(),
			Status:            string(record.Status),
			LamportsRecovered: int64(record.LamportsRecovered),
		}
		if record.Reason != "" {
			params.Reason = &record.Reason
		}
		if !record.Signature.IsZero() {
			sig := record.Signature.String()
			params.Signature = &sig
		}
		if record.Err != nil {
			errText := record.Err.Error()
			params.ErrorText = &errText
		}
		if _, err := store.CreateReclamation(ctx, params); err != nil {
			return err
		}
	}
	return nil
}
