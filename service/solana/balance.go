package solana

import (
	"context"
	"encoding/binary"
	"fmt"
	"strconv"
	"time"

	"github.com/gagliardetto/solana-go"
)

// tokenAmountOffset is the byte offset of the u64 amount field in the
// SPL token account layout (mint 0..32, owner 32..64, amount 64..72).
const tokenAmountOffset = 64

// Verify determines the truth about a wallet's token balance by running
// two independent query methods against the primary endpoint and
// reconciling them: a raw account-info read (existence plus the amount
// decoded from the account bytes) and the token-balance RPC query.
//
// A nonexistent account reports zero from every method and is
// consistent by definition. Methods disagreeing on the integer amount
// (including non-zero vs zero) yield Consistent=false, which excludes
// the wallet from any destructive action pending manual review.
func (s *Service) Verify(ctx context.Context, owner solana.PublicKey) (*BalanceSnapshot, error) {
	ata, err := s.ResolveATA(owner)
	if err != nil {
		return nil, err
	}

	infoCheck, err := s.checkAccountInfo(ctx, s.client, ata)
	if err != nil {
		return nil, fmt.Errorf("account-info check for %s: %w", ata, err)
	}
	balanceCheck, err := s.checkTokenBalance(ctx, s.client, ata)
	if err != nil {
		return nil, fmt.Errorf("token-balance check for %s: %w", ata, err)
	}

	snapshot := s.reconcile(owner, ata, []BalanceCheck{infoCheck, balanceCheck})
	s.recordSnapshot(ctx, snapshot)
	return snapshot, nil
}

// VerifyAcrossRPCs runs Verify against the primary endpoint and then
// repeats the token-balance query against every configured verification
// endpoint. Unanimous agreement on the integer amount is required for
// Consistent=true; a single dissenting endpoint flags a mismatch.
func (s *Service) VerifyAcrossRPCs(ctx context.Context, owner solana.PublicKey) (*BalanceSnapshot, error) {
	ata, err := s.ResolveATA(owner)
	if err != nil {
		return nil, err
	}

	checks := make([]BalanceCheck, 0, 2+len(s.verifiers))

	infoCheck, err := s.checkAccountInfo(ctx, s.client, ata)
	if err != nil {
		return nil, fmt.Errorf("account-info check for %s: %w", ata, err)
	}
	checks = append(checks, infoCheck)

	balanceCheck, err := s.checkTokenBalance(ctx, s.client, ata)
	if err != nil {
		return nil, fmt.Errorf("token-balance check for %s: %w", ata, err)
	}
	checks = append(checks, balanceCheck)

	for _, verifier := range s.verifiers {
		check, err := s.checkTokenBalance(ctx, verifier, ata)
		if err != nil {
			return nil, fmt.Errorf("token-balance check for %s on %s: %w", ata, verifier.Endpoint(), err)
		}
		checks = append(checks, check)
	}

	snapshot := s.reconcile(owner, ata, checks)
	s.recordSnapshot(ctx, snapshot)
	return snapshot, nil
}

// checkAccountInfo probes raw account existence and decodes the token
// amount directly from the account bytes.
func (s *Service) checkAccountInfo(ctx context.Context, client *Client, ata solana.PublicKey) (BalanceCheck, error) {
	check := BalanceCheck{Method: "account_info", Endpoint: client.Endpoint()}

	account, exists, err := client.AccountInfo(ctx, ata)
	if err != nil {
		return check, err
	}
	if !exists {
		return check, nil
	}
	check.Exists = true

	data := account.Data.GetBinary()
	if len(data) < tokenAmountOffset+8 {
		return check, fmt.Errorf("token account %s data too short: %d bytes", ata, len(data))
	}
	check.Raw = binary.LittleEndian.Uint64(data[tokenAmountOffset : tokenAmountOffset+8])
	check.UIAmount = s.rawToUI(check.Raw)
	return check, nil
}

// checkTokenBalance runs the standard token-balance RPC query.
func (s *Service) checkTokenBalance(ctx context.Context, client *Client, ata solana.PublicKey) (BalanceCheck, error) {
	check := BalanceCheck{Method: "token_balance", Endpoint: client.Endpoint()}

	amount, exists, err := client.TokenBalance(ctx, ata)
	if err != nil {
		return check, err
	}
	if !exists {
		return check, nil
	}
	check.Exists = true

	raw, err := strconv.ParseUint(amount.Amount, 10, 64)
	if err != nil {
		return check, fmt.Errorf("parse token amount %q: %w", amount.Amount, err)
	}
	check.Raw = raw
	check.UIAmount = s.rawToUI(raw)
	return check, nil
}

// reconcile merges independent checks into one verdict. All methods
// must agree on existence and the integer amount to be consistent.
func (s *Service) reconcile(owner, ata solana.PublicKey, checks []BalanceCheck) *BalanceSnapshot {
	snapshot := &BalanceSnapshot{
		Owner:        owner,
		TokenAccount: ata,
		Mint:         s.mint,
		Checks:       checks,
		Consistent:   true,
		CheckedAt:    time.Now().UTC(),
	}

	first := checks[0]
	for _, check := range checks[1:] {
		if check.Exists != first.Exists || check.Raw != first.Raw {
			snapshot.Consistent = false
			break
		}
	}

	if !snapshot.Consistent {
		snapshot.State = AccountStateUnknown
		return snapshot
	}

	if !first.Exists {
		// Nonexistent: every method reports zero, consistent by definition.
		snapshot.State = AccountStateNonExistent
		return snapshot
	}

	snapshot.RawAmount = first.Raw
	snapshot.UIAmount = s.rawToUI(first.Raw)
	if snapshot.UIAmount < s.threshold {
		snapshot.State = AccountStateEmpty
	} else {
		snapshot.State = AccountStateFunded
	}
	return snapshot
}

func (s *Service) recordSnapshot(ctx context.Context, snapshot *BalanceSnapshot) {
	if s.metrics != nil {
		s.metrics.RecordBalanceCheck(string(snapshot.State), snapshot.Consistent)
	}
	if !snapshot.Consistent {
		s.logger.WarnContext(ctx, "balance checks disagree, excluding wallet from cleanup",
			"owner", snapshot.Owner.String(),
			"ata", snapshot.TokenAccount.String(),
			"checks", len(snapshot.Checks),
		)
		return
	}
	s.logger.DebugContext(ctx, "balance verified",
		"owner", snapshot.Owner.String(),
		"state", string(snapshot.State),
		"ui_amount", snapshot.UIAmount,
	)
}
