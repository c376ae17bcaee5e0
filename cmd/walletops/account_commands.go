package main

import (
	"context"
	"fmt"
	"time"

	solanago "github.com/gagliardetto/solana-go"
	"github.com/urfave/cli/v2"
)

func ataCommands() *cli.Command {
	return &cli.Command{
		Name:  "ata",
		Usage: "Associated token account commands",
		Subcommands: []*cli.Command{
			ataResolveCommand(),
			ataEnsureCommand(),
		},
	}
}

func ataResolveCommand() *cli.Command {
	return &cli.Command{
		Name:      "resolve",
		Usage:     "Derive the associated token account address for an owner (offline)",
		ArgsUsage: "OWNER_ADDRESS",
		Action: func(c *cli.Context) error {
			if c.NArg() != 1 {
				return fmt.Errorf("requires exactly one argument: owner address")
			}

			owner, err := solanago.PublicKeyFromBase58(c.Args().First())
			if err != nil {
				return fmt.Errorf("invalid owner address: %w", err)
			}
			mint, err := mintFromFlags(c)
			if err != nil {
				return err
			}

			ata, _, err := solanago.FindAssociatedTokenAddress(owner, mint)
			if err != nil {
				return fmt.Errorf("failed to derive associated token account: %w", err)
			}

			return outputJSON(c, map[string]interface{}{
				"owner":         owner.String(),
				"mint":          mint.String(),
				"token_account": ata.String(),
			})
		},
	}
}

func ataEnsureCommand() *cli.Command {
	return &cli.Command{
		Name:      "ensure",
		Usage:     "Create the associated token accounts that are missing (treasury pays)",
		ArgsUsage: "OWNER_ADDRESS [OWNER_ADDRESS...]",
		Flags: []cli.Flag{
			&cli.DurationFlag{
				Name:  "delay",
				Value: 200 * time.Millisecond,
				Usage: "Pause between account creations to stay under RPC rate limits",
			},
		},
		Action: func(c *cli.Context) error {
			if c.NArg() < 1 {
				return fmt.Errorf("at least one owner address is required")
			}

			owners := make([]solanago.PublicKey, 0, c.NArg())
			for _, raw := range c.Args().Slice() {
				owner, err := solanago.PublicKeyFromBase58(raw)
				if err != nil {
					return fmt.Errorf("invalid owner address %q: %w", raw, err)
				}
				owners = append(owners, owner)
			}

			svc, err := getService(c)
			if err != nil {
				return err
			}

			results := svc.EnsureATABatch(context.Background(), owners, c.Duration("delay"))

			out := make([]map[string]interface{}, 0, len(results))
			failed := 0
			for _, r := range results {
				entry := map[string]interface{}{
					"owner":         r.Owner.String(),
					"token_account": r.Address.String(),
					"created":       r.Created,
				}
				if !r.Signature.IsZero() {
					entry["signature"] = r.Signature.String()
				}
				if r.Err != nil {
					entry["error"] = r.Err.Error()
					failed++
				}
				out = append(out, entry)
			}

			if err := outputJSON(c, out); err != nil {
				return err
			}
			if failed > 0 {
				return fmt.Errorf("%d of %d accounts failed", failed, len(results))
			}
			return nil
		},
	}
}

func balanceCommands() *cli.Command {
	return &cli.Command{
		Name:  "balance",
		Usage: "Balance verification commands",
		Subcommands: []*cli.Command{
			balanceVerifyCommand(),
		},
	}
}

func balanceVerifyCommand() *cli.Command {
	return &cli.Command{
		Name:      "verify",
		Usage:     "Verify an owner's token balance via independent query methods",
		ArgsUsage: "OWNER_ADDRESS",
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:  "cross-rpc",
				Usage: "Also verify against every configured verification RPC endpoint",
			},
		},
		Action: func(c *cli.Context) error {
			if c.NArg() != 1 {
				return fmt.Errorf("requires exactly one argument: owner address")
			}

			owner, err := solanago.PublicKeyFromBase58(c.Args().First())
			if err != nil {
				return fmt.Errorf("invalid owner address: %w", err)
			}

			svc, err := getService(c)
			if err != nil {
				return err
			}

			ctx := context.Background()
			verify := svc.Verify
			if c.Bool("cross-rpc") {
				verify = svc.VerifyAcrossRPCs
			}
			snapshot, err := verify(ctx, owner)
			if err != nil {
				return fmt.Errorf("failed to verify balance: %w", err)
			}

			return outputJSON(c, snapshot)
		},
	}
}
