package main

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"strings"

	solanago "github.com/gagliardetto/solana-go"
	"github.com/itchyny/gojq"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/urfave/cli/v2"

	"github.com/chipin/walletops/service/config"
	"github.com/chipin/walletops/service/db"
	"github.com/chipin/walletops/service/solana"
	"github.com/chipin/walletops/service/wallet"
)

// cliLogger logs errors only; stdout is reserved for command output.
func cliLogger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelError,
	}))
}

// mintFromFlags parses the managed mint address from the global flag.
func mintFromFlags(c *cli.Context) (solanago.PublicKey, error) {
	raw := c.String("mint")
	if raw == "" {
		return solanago.PublicKey{}, fmt.Errorf("mint is required (set USDC_MINT_ADDRESS env var or use --mint)")
	}
	mint, err := solanago.PublicKeyFromBase58(raw)
	if err != nil {
		return solanago.PublicKey{}, fmt.Errorf("invalid mint address %q: %w", raw, err)
	}
	return mint, nil
}

// treasuryFromEnv loads the treasury signing key from the environment.
// Key material stays out of flags so it never shows up in process lists.
func treasuryFromEnv() (solanago.PrivateKey, error) {
	cfg := &config.Config{
		TreasuryKeypair:     os.Getenv("TREASURY_KEYPAIR"),
		TreasuryKeypairFile: os.Getenv("TREASURY_KEYPAIR_FILE"),
	}
	if cfg.TreasuryKeypair == "" && cfg.TreasuryKeypairFile == "" {
		return nil, fmt.Errorf("treasury keypair is required (set TREASURY_KEYPAIR or TREASURY_KEYPAIR_FILE)")
	}
	return cfg.TreasuryKey()
}

// getService builds the Solana service from global flags and the
// treasury key in the environment.
func getService(c *cli.Context) (*solana.Service, error) {
	mint, err := mintFromFlags(c)
	if err != nil {
		return nil, err
	}
	treasury, err := treasuryFromEnv()
	if err != nil {
		return nil, err
	}

	logger := cliLogger()
	rpcURL := c.String("rpc-url")
	primary := solana.NewClient(solana.NewRPCClient(rpcURL), rpcURL, nil, logger)

	var verifiers []*solana.Client
	for _, u := range strings.Split(c.String("verification-rpc-urls"), ",") {
		u = strings.TrimSpace(u)
		if u == "" {
			continue
		}
		verifiers = append(verifiers, solana.NewClient(solana.NewRPCClient(u), u, nil, logger))
	}

	return solana.NewService(solana.ServiceConfig{
		Client:              primary,
		VerificationClients: verifiers,
		Treasury:            treasury,
		Mint:                mint,
		Logger:              logger,
	})
}

// getStore connects to the audit ledger.
func getStore(c *cli.Context) (*db.Store, func(), error) {
	dbURL := c.String("database-url")
	if dbURL == "" {
		return nil, nil, fmt.Errorf("database-url is required (set DATABASE_URL env var or use --database-url)")
	}

	pool, err := pgxpool.New(context.Background(), dbURL)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	if err := pool.Ping(context.Background()); err != nil {
		pool.Close()
		return nil, nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return db.NewStore(pool, nil), func() { pool.Close() }, nil
}

// readMnemonic loads the recovery phrase. It is only ever read from the
// environment or a file, never from argv.
func readMnemonic(c *cli.Context) (*wallet.Mnemonic, error) {
	phrase := os.Getenv("MNEMONIC")
	if file := c.String("mnemonic-file"); file != "" {
		raw, err := os.ReadFile(file)
		if err != nil {
			return nil, fmt.Errorf("read mnemonic file: %w", err)
		}
		phrase = strings.TrimSpace(string(raw))
	}
	if phrase == "" {
		return nil, fmt.Errorf("mnemonic is required (set MNEMONIC env var or use --mnemonic-file)")
	}
	return wallet.NewMnemonic(phrase)
}

// mnemonicFileFlag is shared by every command that signs as an owner.
func mnemonicFileFlag() cli.Flag {
	return &cli.StringFlag{
		Name:  "mnemonic-file",
		Usage: "File holding the owner's recovery phrase (defaults to MNEMONIC env var)",
	}
}

// readOwnersFile parses one base58 owner address per line. Blank lines
// and #-comments are ignored.
func readOwnersFile(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open owners file: %w", err)
	}
	defer f.Close()

	var owners []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		if _, err := solanago.PublicKeyFromBase58(line); err != nil {
			return nil, fmt.Errorf("invalid owner address %q: %w", line, err)
		}
		owners = append(owners, line)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read owners file: %w", err)
	}
	return owners, nil
}

// outputJSON prints v as indented JSON, optionally filtered through the
// global --jq expression.
func outputJSON(c *cli.Context, v interface{}) error {
	expr := c.String("jq")
	if expr == "" {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	}

	results, err := applyJQ(v, expr)
	if err != nil {
		return err
	}
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	for _, r := range results {
		if err := enc.Encode(r); err != nil {
			return err
		}
	}
	return nil
}

// applyJQ round-trips v through JSON and runs the jq expression over
// it, returning every emitted value.
func applyJQ(v interface{}, expr string) ([]interface{}, error) {
	query, err := gojq.Parse(expr)
	if err != nil {
		return nil, fmt.Errorf("failed to parse jq expression %q: %w", expr, err)
	}
	code, err := gojq.Compile(query)
	if err != nil {
		return nil, fmt.Errorf("failed to compile jq expression %q: %w", expr, err)
	}

	raw, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal output: %w", err)
	}
	var decoded interface{}
	if err := json.Unmarshal(raw, &decoded); err != nil {
		return nil, fmt.Errorf("failed to decode output: %w", err)
	}

	var results []interface{}
	iter := code.Run(decoded)
	for {
		v, ok := iter.Next()
		if !ok {
			break
		}
		if err, isErr := v.(error); isErr {
			return nil, fmt.Errorf("jq evaluation failed: %w", err)
		}
		results = append(results, v)
	}
	return results, nil
}
