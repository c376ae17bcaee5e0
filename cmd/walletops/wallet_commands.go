package main

import (
	"errors"
	"fmt"

	solanago "github.com/gagliardetto/solana-go"
	"github.com/urfave/cli/v2"

	"github.com/chipin/walletops/service/wallet"
)

func walletCommands() *cli.Command {
	return &cli.Command{
		Name:  "wallet",
		Usage: "Key derivation and recovery commands",
		Subcommands: []*cli.Command{
			walletDeriveCommand(),
			walletRecoverCommand(),
		},
	}
}

func walletDeriveCommand() *cli.Command {
	return &cli.Command{
		Name:  "derive",
		Usage: "Derive the wallet address for a recovery phrase",
		Flags: []cli.Flag{
			mnemonicFileFlag(),
			&cli.StringFlag{
				Name:    "path",
				Aliases: []string{"p"},
				Value:   wallet.DefaultPath.String(),
				Usage:   "Derivation path (hardened segments only)",
			},
		},
		Action: func(c *cli.Context) error {
			m, err := readMnemonic(c)
			if err != nil {
				return err
			}
			defer m.Zero()

			path, err := wallet.ParsePath(c.String("path"))
			if err != nil {
				return fmt.Errorf("invalid derivation path: %w", err)
			}

			keypair, err := wallet.Derive(m, path)
			if err != nil {
				return fmt.Errorf("failed to derive keypair: %w", err)
			}
			defer keypair.Zero()

			// Only the public half ever leaves this process.
			return outputJSON(c, map[string]interface{}{
				"address": keypair.PublicKey.String(),
				"path":    path.String(),
			})
		},
	}
}

func walletRecoverCommand() *cli.Command {
	return &cli.Command{
		Name:      "recover",
		Usage:     "Find which derivation path produces a known wallet address",
		ArgsUsage: "EXPECTED_ADDRESS",
		Flags: []cli.Flag{
			mnemonicFileFlag(),
		},
		Action: func(c *cli.Context) error {
			if c.NArg() != 1 {
				return fmt.Errorf("requires exactly one argument: expected wallet address")
			}

			expected, err := solanago.PublicKeyFromBase58(c.Args().First())
			if err != nil {
				return fmt.Errorf("invalid wallet address: %w", err)
			}

			m, err := readMnemonic(c)
			if err != nil {
				return err
			}
			defer m.Zero()

			result, err := wallet.RecoverByPath(m, expected, nil)
			if err != nil {
				var noMatch *wallet.NoMatchingPathError
				if errors.As(err, &noMatch) {
					paths := make([]string, len(noMatch.Attempted))
					for i, p := range noMatch.Attempted {
						paths[i] = p.String()
					}
					_ = outputJSON(c, map[string]interface{}{
						"address":   expected.String(),
						"recovered": false,
						"attempted": paths,
					})
				}
				return fmt.Errorf("recovery failed: %w", err)
			}
			defer result.Keypair.Zero()

			return outputJSON(c, map[string]interface{}{
				"address":   expected.String(),
				"recovered": true,
				"path":      result.Path.String(),
			})
		},
	}
}
