package main

import (
	"context"
	"fmt"
	"time"

	solanago "github.com/gagliardetto/solana-go"
	"github.com/urfave/cli/v2"

	"github.com/chipin/walletops/service/db"
	natspkg "github.com/chipin/walletops/service/nats"
	"github.com/chipin/walletops/service/solana"
	"github.com/chipin/walletops/service/wallet"
)

func transferCommands() *cli.Command {
	return &cli.Command{
		Name:  "transfer",
		Usage: "Sponsored USDC transfer commands",
		Subcommands: []*cli.Command{
			transferPreviewCommand(),
			transferExecuteCommand(),
		},
	}
}

func transferPreviewCommand() *cli.Command {
	return &cli.Command{
		Name:  "preview",
		Usage: "Preview a sponsored transfer without submitting anything",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:     "from",
				Usage:    "Sending owner's wallet address",
				Required: true,
			},
			&cli.StringFlag{
				Name:     "to",
				Usage:    "Recipient owner's wallet address",
				Required: true,
			},
			&cli.Float64Flag{
				Name:     "amount",
				Usage:    "Amount in UI units (e.g. 12.50 for 12.50 USDC)",
				Required: true,
			},
		},
		Action: func(c *cli.Context) error {
			from, err := solanago.PublicKeyFromBase58(c.String("from"))
			if err != nil {
				return fmt.Errorf("invalid from address: %w", err)
			}
			to, err := solanago.PublicKeyFromBase58(c.String("to"))
			if err != nil {
				return fmt.Errorf("invalid to address: %w", err)
			}

			svc, err := getService(c)
			if err != nil {
				return err
			}

			preview, err := svc.Preview(context.Background(), solana.TransferRequest{
				FromOwner: from,
				ToOwner:   to,
				UIAmount:  c.Float64("amount"),
			})
			if err != nil {
				return fmt.Errorf("failed to preview transfer: %w", err)
			}

			return outputJSON(c, preview)
		},
	}
}

func transferExecuteCommand() *cli.Command {
	return &cli.Command{
		Name:  "execute",
		Usage: "Execute a sponsored transfer: the owner authorizes, the treasury pays",
		Flags: []cli.Flag{
			mnemonicFileFlag(),
			&cli.StringFlag{
				Name:     "to",
				Usage:    "Recipient owner's wallet address",
				Required: true,
			},
			&cli.Float64Flag{
				Name:     "amount",
				Usage:    "Amount in UI units (e.g. 12.50 for 12.50 USDC)",
				Required: true,
			},
			&cli.StringFlag{
				Name:  "memo",
				Usage: "Optional memo attached to the transfer",
			},
			&cli.BoolFlag{
				Name:  "no-record",
				Usage: "Skip writing the transfer to the audit ledger",
			},
			&cli.BoolFlag{
				Name:  "no-publish",
				Usage: "Skip publishing the transfer event to NATS",
			},
		},
		Action: func(c *cli.Context) error {
			to, err := solanago.PublicKeyFromBase58(c.String("to"))
			if err != nil {
				return fmt.Errorf("invalid to address: %w", err)
			}

			m, err := readMnemonic(c)
			if err != nil {
				return err
			}
			defer m.Zero()

			keypair, err := wallet.Derive(m, wallet.DefaultPath)
			if err != nil {
				return fmt.Errorf("failed to derive owner keypair: %w", err)
			}
			defer keypair.Zero()

			svc, err := getService(c)
			if err != nil {
				return err
			}

			ctx := context.Background()
			amount := c.Float64("amount")
			st, err := svc.Build(ctx, solana.TransferRequest{
				FromOwner: keypair.PublicKey,
				ToOwner:   to,
				UIAmount:  amount,
				Memo:      c.String("memo"),
			})
			if err != nil {
				return fmt.Errorf("failed to build transfer: %w", err)
			}

			if err := st.SignAsOwner(keypair.PrivateKey); err != nil {
				return fmt.Errorf("failed to sign as owner: %w", err)
			}

			sig, err := svc.CosignAndSubmit(ctx, st)
			if err != nil {
				return fmt.Errorf("failed to submit transfer: %w", err)
			}

			feeLamports := int64(st.Preview.EstimatedFeesSOL * solana.LamportsPerSOL)
			record := recordTransfer(c, sig, st, feeLamports)
			published := publishTransfer(c, sig, st, amount, feeLamports)

			return outputJSON(c, map[string]interface{}{
				"signature":    sig.String(),
				"from":         st.FromOwner.String(),
				"to":           st.ToOwner.String(),
				"amount":       amount,
				"raw_amount":   st.Preview.RawAmount,
				"fee_lamports": feeLamports,
				"recorded":     record,
				"published":    published,
			})
		},
	}
}

// recordTransfer writes the submitted transfer to the audit ledger.
// The transfer is already on chain; a ledger failure is reported on
// stderr but does not fail the command.
func recordTransfer(c *cli.Context, sig solanago.Signature, st *solana.SponsoredTransaction, feeLamports int64) bool {
	if c.Bool("no-record") || c.String("database-url") == "" {
		return false
	}

	store, closer, err := getStore(c)
	if err != nil {
		cliLogger().Error("failed to open audit ledger", "error", err)
		return false
	}
	defer closer()

	params := db.CreateTransferParams{
		Signature:   sig.String(),
		FromOwner:   st.FromOwner.String(),
		ToOwner:     st.ToOwner.String(),
		Mint:        c.String("mint"),
		RawAmount:   int64(st.Preview.RawAmount),
		FeeLamports: feeLamports,
	}
	if memo := c.String("memo"); memo != "" {
		params.Memo = &memo
	}
	if _, err := store.CreateTransfer(context.Background(), params); err != nil {
		cliLogger().Error("failed to record transfer", "signature", sig.String(), "error", err)
		return false
	}
	return true
}

// publishTransfer emits the transfer event to NATS. Best-effort for the
// same reason as recordTransfer.
func publishTransfer(c *cli.Context, sig solanago.Signature, st *solana.SponsoredTransaction, amount float64, feeLamports int64) bool {
	if c.Bool("no-publish") || c.String("nats-url") == "" {
		return false
	}

	publisher, err := natspkg.NewPublisher(c.String("nats-url"), cliLogger(), nil)
	if err != nil {
		cliLogger().Error("failed to connect to NATS", "error", err)
		return false
	}
	defer publisher.Close()

	event := &natspkg.TransferredEvent{
		Signature:   sig.String(),
		FromOwner:   st.FromOwner.String(),
		ToOwner:     st.ToOwner.String(),
		Mint:        c.String("mint"),
		RawAmount:   int64(st.Preview.RawAmount),
		UIAmount:    amount,
		Memo:        c.String("memo"),
		FeeLamports: feeLamports,
		PublishedAt: time.Now().UTC(),
	}
	if err := publisher.PublishTransferred(context.Background(), event); err != nil {
		cliLogger().Error("failed to publish transfer event", "signature", sig.String(), "error", err)
		return false
	}
	return true
}
