package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/gagliardetto/solana-go"
)

// Config holds all application configuration loaded from environment variables.
// All required fields are validated at startup to ensure fail-fast behavior.
type Config struct {
	// Server configuration
	MetricsAddr string
	LogLevel    string

	// Database configuration
	DatabaseURL string

	// NATS configuration
	NATSURL string

	// Solana configuration
	SolanaRPCURL string
	// VerificationRPCURLs are additional independent endpoints used to
	// cross-check balances before any account is closed.
	VerificationRPCURLs []string
	USDCMintAddress     string

	// Treasury signing key. Exactly one of the two must be set:
	// TreasuryKeypair holds the base58-encoded private key directly,
	// TreasuryKeypairFile points at a solana-cli JSON keypair file.
	TreasuryKeypair     string
	TreasuryKeypairFile string

	// Reclamation policy
	EmptyThresholdUI        float64
	MinRentRecoveryLamports uint64
	BurnBatchSize           int
	BurnConcurrency         int
	InterBatchDelay         time.Duration

	// Temporal configuration
	TemporalHost      string
	TemporalNamespace string
	TemporalTaskQueue string
}

// Load reads configuration from environment variables and validates all required fields.
// Returns an error if any required configuration is missing or invalid.
func Load() (*Config, error) {
	cfg := &Config{}
	var errs []error

	// Server configuration
	cfg.MetricsAddr = getEnvOrDefault("METRICS_ADDR", ":9090")
	cfg.LogLevel = getEnvOrDefault("LOG_LEVEL", "info")

	// Database configuration
	cfg.DatabaseURL = os.Getenv("DATABASE_URL")
	if cfg.DatabaseURL == "" {
		errs = append(errs, fmt.Errorf("DATABASE_URL is required"))
	}

	// NATS configuration
	cfg.NATSURL = getEnvOrDefault("NATS_URL", "nats://localhost:4222")

	// Solana configuration
	cfg.SolanaRPCURL = os.Getenv("SOLANA_RPC_URL")
	if cfg.SolanaRPCURL == "" {
		errs = append(errs, fmt.Errorf("SOLANA_RPC_URL is required"))
	}

	for _, u := range strings.Split(os.Getenv("SOLANA_VERIFICATION_RPC_URLS"), ",") {
		u = strings.TrimSpace(u)
		if u == "" {
			continue
		}
		if u == cfg.SolanaRPCURL {
			errs = append(errs, fmt.Errorf("SOLANA_VERIFICATION_RPC_URLS must not repeat SOLANA_RPC_URL (%s)", u))
			continue
		}
		cfg.VerificationRPCURLs = append(cfg.VerificationRPCURLs, u)
	}

	cfg.USDCMintAddress = os.Getenv("USDC_MINT_ADDRESS")
	if cfg.USDCMintAddress == "" {
		errs = append(errs, fmt.Errorf("USDC_MINT_ADDRESS is required"))
	} else if _, err := solana.PublicKeyFromBase58(cfg.USDCMintAddress); err != nil {
		errs = append(errs, fmt.Errorf("USDC_MINT_ADDRESS: %w", err))
	}

	// Treasury configuration
	cfg.TreasuryKeypair = os.Getenv("TREASURY_KEYPAIR")
	cfg.TreasuryKeypairFile = os.Getenv("TREASURY_KEYPAIR_FILE")
	switch {
	case cfg.TreasuryKeypair == "" && cfg.TreasuryKeypairFile == "":
		errs = append(errs, fmt.Errorf("one of TREASURY_KEYPAIR or TREASURY_KEYPAIR_FILE is required"))
	case cfg.TreasuryKeypair != "" && cfg.TreasuryKeypairFile != "":
		errs = append(errs, fmt.Errorf("TREASURY_KEYPAIR and TREASURY_KEYPAIR_FILE are mutually exclusive"))
	}

	// Reclamation policy
	threshold, err := parseFloat("EMPTY_THRESHOLD_UI", 0.001)
	if err != nil {
		errs = append(errs, err)
	} else {
		cfg.EmptyThresholdUI = threshold
	}

	minRent, err := parseInt("MIN_RENT_RECOVERY_LAMPORTS", 0)
	if err != nil {
		errs = append(errs, err)
	} else if minRent < 0 {
		errs = append(errs, fmt.Errorf("MIN_RENT_RECOVERY_LAMPORTS cannot be negative"))
	} else {
		cfg.MinRentRecoveryLamports = uint64(minRent)
	}

	cfg.BurnBatchSize, err = parseInt("BURN_BATCH_SIZE", 10)
	if err != nil {
		errs = append(errs, err)
	}

	cfg.BurnConcurrency, err = parseInt("BURN_CONCURRENCY", 4)
	if err != nil {
		errs = append(errs, err)
	}

	delay, err := parseDuration("INTER_BATCH_DELAY", "2s")
	if err != nil {
		errs = append(errs, err)
	} else {
		cfg.InterBatchDelay = delay
	}

	// Temporal configuration
	cfg.TemporalHost = getEnvOrDefault("TEMPORAL_HOST", "localhost:7233")
	cfg.TemporalNamespace = getEnvOrDefault("TEMPORAL_NAMESPACE", "default")
	cfg.TemporalTaskQueue = getEnvOrDefault("TEMPORAL_TASK_QUEUE", "walletops-sweep")

	if cfg.BurnBatchSize < 1 {
		errs = append(errs, fmt.Errorf("BURN_BATCH_SIZE must be at least 1"))
	}
	if cfg.BurnConcurrency < 1 {
		errs = append(errs, fmt.Errorf("BURN_CONCURRENCY must be at least 1"))
	}

	// Return all validation errors
	if len(errs) > 0 {
		return nil, fmt.Errorf("configuration validation failed: %v", errs)
	}

	return cfg, nil
}

// MustLoad is like Load but panics if configuration is invalid.
// Useful for worker initialization where misconfiguration should halt startup.
func MustLoad() *Config {
	cfg, err := Load()
	if err != nil {
		panic(fmt.Sprintf("failed to load configuration: %v", err))
	}
	return cfg
}

// Validate checks if the configuration is valid.
// This is useful for testing configuration without loading from env.
func (c *Config) Validate() error {
	var errs []error

	if c.DatabaseURL == "" {
		errs = append(errs, fmt.Errorf("DatabaseURL is required"))
	}

	if c.SolanaRPCURL == "" {
		errs = append(errs, fmt.Errorf("SolanaRPCURL is required"))
	}

	if c.USDCMintAddress == "" {
		errs = append(errs, fmt.Errorf("USDCMintAddress is required"))
	}

	if c.TreasuryKeypair == "" && c.TreasuryKeypairFile == "" {
		errs = append(errs, fmt.Errorf("one of TreasuryKeypair or TreasuryKeypairFile is required"))
	}

	if c.TreasuryKeypair != "" && c.TreasuryKeypairFile != "" {
		errs = append(errs, fmt.Errorf("TreasuryKeypair and TreasuryKeypairFile are mutually exclusive"))
	}

	for _, u := range c.VerificationRPCURLs {
		if u == c.SolanaRPCURL {
			errs = append(errs, fmt.Errorf("VerificationRPCURLs must not repeat SolanaRPCURL (%s)", u))
		}
	}

	if c.EmptyThresholdUI < 0 {
		errs = append(errs, fmt.Errorf("EmptyThresholdUI cannot be negative"))
	}

	if c.BurnBatchSize < 1 {
		errs = append(errs, fmt.Errorf("BurnBatchSize must be at least 1"))
	}

	if c.BurnConcurrency < 1 {
		errs = append(errs, fmt.Errorf("BurnConcurrency must be at least 1"))
	}

	if c.TemporalHost == "" {
		errs = append(errs, fmt.Errorf("TemporalHost is required"))
	}

	if c.TemporalNamespace == "" {
		errs = append(errs, fmt.Errorf("TemporalNamespace is required"))
	}

	if c.TemporalTaskQueue == "" {
		errs = append(errs, fmt.Errorf("TemporalTaskQueue is required"))
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration validation failed: %v", errs)
	}

	return nil
}

// TreasuryKey decodes the configured treasury signing key. Key material
// never appears in logs or error messages.
func (c *Config) TreasuryKey() (solana.PrivateKey, error) {
	if c.TreasuryKeypair != "" {
		key, err := solana.PrivateKeyFromBase58(c.TreasuryKeypair)
		if err != nil {
			return nil, fmt.Errorf("TREASURY_KEYPAIR: invalid base58 private key")
		}
		return key, nil
	}

	raw, err := os.ReadFile(c.TreasuryKeypairFile)
	if err != nil {
		return nil, fmt.Errorf("read treasury keypair file: %w", err)
	}
	var nums []int
	if err := json.Unmarshal(raw, &nums); err != nil {
		return nil, fmt.Errorf("treasury keypair file is not a JSON byte array")
	}
	if len(nums) != 64 {
		return nil, fmt.Errorf("treasury keypair file holds %d bytes, want 64", len(nums))
	}
	key := make([]byte, 64)
	for i, n := range nums {
		if n < 0 || n > 255 {
			return nil, fmt.Errorf("treasury keypair file has an out-of-range byte at index %d", i)
		}
		key[i] = byte(n)
	}
	return solana.PrivateKey(key), nil
}

// getEnvOrDefault returns the environment variable value or a default if not set.
func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// parseDuration parses a duration from an environment variable or uses a default.
func parseDuration(key, defaultValue string) (time.Duration, error) {
	value := getEnvOrDefault(key, defaultValue)
	duration, err := time.ParseDuration(value)
	if err != nil {
		return 0, fmt.Errorf("%s: invalid duration %q: %w", key, value, err)
	}
	return duration, nil
}

// parseInt parses an integer from an environment variable or uses a default.
func parseInt(key string, defaultValue int) (int, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	result, err := strconv.Atoi(value)
	if err != nil {
		return 0, fmt.Errorf("%s: invalid integer %q: %w", key, value, err)
	}
	return result, nil
}

// parseFloat parses a float from an environment variable or uses a default.
func parseFloat(key string, defaultValue float64) (float64, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	result, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return 0, fmt.Errorf("%s: invalid number %q: %w", key, value, err)
	}
	return result, nil
}
