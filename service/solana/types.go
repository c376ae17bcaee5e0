package solana

import (
	"time"

	"github.com/gagliardetto/solana-go"
)

// LamportsPerSOL is the number of lamports in one SOL.
const LamportsPerSOL = 1e9

// USDCDecimals is the decimal precision of the USDC mint.
const USDCDecimals = 6

// DefaultEmptyThresholdUI is the dust tolerance below which a token
// account is classified empty, in UI units. Applied uniformly no matter
// which query method produced the number.
const DefaultEmptyThresholdUI = 0.001

// tokenAccountSize is the serialized size of an SPL token account,
// used to compute its rent-exemption lamports.
const tokenAccountSize = 165

// feePerSignature is the base network fee in lamports per signature.
const feePerSignature = 5000

// AccountState is the lifecycle state of an associated token account.
type AccountState string

const (
	AccountStateUnknown     AccountState = "unknown"
	AccountStateNonExistent AccountState = "nonexistent"
	AccountStateEmpty       AccountState = "empty"
	AccountStateFunded      AccountState = "funded"
	AccountStateClosed      AccountState = "closed"
)

// BalanceCheck is the result of one independent balance query method.
type BalanceCheck struct {
	Method   string  `json:"method"`   // "account_info", "token_balance"
	Endpoint string  `json:"endpoint"` // RPC endpoint identifier
	Exists   bool    `json:"exists"`
	Raw      uint64  `json:"raw"`       // raw integer token units
	UIAmount float64 `json:"ui_amount"` // raw scaled by mint decimals
	Err      *string `json:"error,omitempty"`
}

// BalanceSnapshot is a per-wallet record of balances from N independent
// query methods, reconciled into a single verdict.
type BalanceSnapshot struct {
	Owner        solana.PublicKey `json:"owner"`
	TokenAccount solana.PublicKey `json:"token_account"`
	Mint         solana.PublicKey `json:"mint"`
	Checks       []BalanceCheck   `json:"checks"`
	State        AccountState     `json:"state"`
	UIAmount     float64          `json:"ui_amount"`
	RawAmount    uint64           `json:"raw_amount"`
	Consistent   bool             `json:"consistent"`
	CheckedAt    time.Time        `json:"checked_at"`
}

// Empty reports whether the snapshot classifies the account as empty
// (below the dust threshold) or nonexistent.
func (s *BalanceSnapshot) Empty() bool {
	return s.State == AccountStateEmpty || s.State == AccountStateNonExistent
}

// TransferRequest describes a sponsored USDC movement between two
// wallet owners. Amount is expressed in UI units and converted to raw
// integer units via the mint's decimal count.
type TransferRequest struct {
	FromOwner solana.PublicKey
	ToOwner   solana.PublicKey
	Mint      solana.PublicKey
	UIAmount  float64
	Memo      string
}

// TransferPreview is everything a caller needs to decide whether to
// proceed with a transfer, computed without mutating any state.
type TransferPreview struct {
	FromATA          solana.PublicKey `json:"from_ata"`
	ToATA            solana.PublicKey `json:"to_ata"`
	RawAmount        uint64           `json:"raw_amount"`
	NeedsATACreation bool             `json:"needs_ata_creation"`
	EstimatedFeesSOL float64          `json:"estimated_fees_sol"`
}

// EnsureResult is the outcome of resolving-or-creating one owner's
// associated token account.
type EnsureResult struct {
	Owner     solana.PublicKey `json:"owner"`
	Address   solana.PublicKey `json:"address"`
	Created   bool             `json:"created"`
	Signature solana.Signature `json:"signature,omitempty"`
	Err       error            `json:"-"`
}

// ReclamationStatus describes how a single burn attempt concluded.
type ReclamationStatus string

const (
	ReclamationStatusClosed       ReclamationStatus = "closed"
	ReclamationStatusAlreadyClean ReclamationStatus = "already_clean"
	ReclamationStatusSkipped      ReclamationStatus = "skipped" // below min recovery or inconsistent
	ReclamationStatusFailed       ReclamationStatus = "failed"
)

// RentReclamationRecord is the per-wallet outcome of a burn.
type RentReclamationRecord struct {
	Owner             solana.PublicKey  `json:"owner"`
	TokenAccount      solana.PublicKey  `json:"token_account"`
	Status            ReclamationStatus `json:"status"`
	Closed            bool              `json:"closed"`
	LamportsRecovered uint64            `json:"lamports_recovered"`
	Signature         solana.Signature  `json:"signature,omitempty"`
	Reason            string            `json:"reason,omitempty"`
	Err               error             `json:"-"`
}

// BatchReport aggregates the outcome of a batch operation. Counters are
// merged after each worker completes; no concurrent mutation.
type BatchReport struct {
	Processed      int                     `json:"processed"`
	Succeeded      int                     `json:"succeeded"`
	Burned         int                     `json:"burned"`
	Mismatched     int                     `json:"mismatched"`
	Errored        int                     `json:"errored"`
	TotalRecovered uint64                  `json:"total_recovered_lamports"`
	Halted         bool                    `json:"halted"`
	HaltReason     string                  `json:"halt_reason,omitempty"`
	Records        []RentReclamationRecord `json:"records,omitempty"`
	StartedAt      time.Time               `json:"started_at"`
	FinishedAt     time.Time               `json:"finished_at"`
}
