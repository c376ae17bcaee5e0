package main

import (
	"fmt"
	"log"
	"os"

	"github.com/joho/godotenv"
	"github.com/urfave/cli/v2"
)

var (
	// Version information (set via ldflags during build)
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

func main() {
	// Best-effort: absent .env is fine, the environment wins.
	_ = godotenv.Load()

	app := &cli.App{
		Name:  "walletops",
		Usage: "Solana wallet operations CLI for chipin",
		Description: `A command-line tool for operating chipin's non-custodial Solana wallets.

Use this CLI to derive and recover wallet keys, manage associated token
accounts, verify balances across RPC providers, execute sponsored USDC
transfers, and reclaim rent from emptied wallets.`,
		Version: fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, date),
		Commands: []*cli.Command{
			walletCommands(),
			ataCommands(),
			balanceCommands(),
			transferCommands(),
			sweepCommands(),
			scheduleCommands(),
		},
		// Global flags available to all commands
		Flags: globalFlags(),
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatal(err)
	}
}

// globalFlags returns the flags shared by every command. The Temporal
// defaults mirror the worker configuration so a bare `sweep start`
// lands on the queue the worker polls.
func globalFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:    "rpc-url",
			Usage:   "Primary Solana RPC endpoint",
			EnvVars: []string{"SOLANA_RPC_URL"},
			Value:   "https://api.mainnet-beta.solana.com",
		},
		&cli.StringFlag{
			Name:    "verification-rpc-urls",
			Usage:   "Comma-separated additional RPC endpoints for cross-verification",
			EnvVars: []string{"VERIFICATION_RPC_URLS"},
		},
		&cli.StringFlag{
			Name:    "mint",
			Usage:   "Managed token mint address (USDC)",
			EnvVars: []string{"USDC_MINT_ADDRESS"},
		},
		&cli.StringFlag{
			Name:    "database-url",
			Usage:   "Audit ledger connection URL",
			EnvVars: []string{"DATABASE_URL"},
		},
		&cli.StringFlag{
			Name:    "nats-url",
			Usage:   "NATS server URL",
			EnvVars: []string{"NATS_URL"},
		},
		&cli.StringFlag{
			Name:    "temporal-host",
			Usage:   "Temporal server address",
			EnvVars: []string{"TEMPORAL_HOST"},
			Value:   "localhost:7233",
		},
		&cli.StringFlag{
			Name:    "temporal-namespace",
			Usage:   "Temporal namespace",
			EnvVars: []string{"TEMPORAL_NAMESPACE"},
			Value:   "default",
		},
		&cli.StringFlag{
			Name:    "temporal-task-queue",
			Usage:   "Temporal task queue",
			EnvVars: []string{"TEMPORAL_TASK_QUEUE"},
			Value:   "walletops-sweep",
		},
		&cli.StringFlag{
			Name:  "jq",
			Usage: "jq expression applied to JSON output",
		},
	}
}
