package solana

import (
	"context"
	"fmt"

	"github.com/gagliardetto/solana-go"
	associatedtokenaccount "github.com/gagliardetto/solana-go/programs/associated-token-account"
	"github.com/gagliardetto/solana-go/programs/token"
)

// SponsoredTransaction is a transfer transaction with exactly one
// fee-payer signer (the treasury) and one authorization signer (the
// sending owner). It is never broadcast until both signatures are
// present: the owner signs first via SignAsOwner, then the treasury
// cosigns and submits via CosignAndSubmit. The split guarantees the
// treasury only ever signs a transaction whose value-movement
// instructions are already in final, owner-approved form.
type SponsoredTransaction struct {
	Tx        *solana.Transaction
	FromOwner solana.PublicKey
	ToOwner   solana.PublicKey
	Preview   TransferPreview

	ownerSigned bool
}

// SignAsOwner applies the sending owner's authorization signature.
// The key must match the transaction's FromOwner.
func (t *SponsoredTransaction) SignAsOwner(key solana.PrivateKey) error {
	if !key.PublicKey().Equals(t.FromOwner) {
		return &ValidationError{Field: "signer", Reason: fmt.Sprintf("key %s is not the sending owner %s", key.PublicKey(), t.FromOwner)}
	}
	if _, err := t.Tx.PartialSign(func(pub solana.PublicKey) *solana.PrivateKey {
		if key.PublicKey().Equals(pub) {
			return &key
		}
		return nil
	}); err != nil {
		return fmt.Errorf("sign as owner: %w", err)
	}
	t.ownerSigned = true
	return nil
}

// validateTransfer applies local checks before any network call.
func (s *Service) validateTransfer(req TransferRequest) error {
	if req.UIAmount <= 0 {
		return &ValidationError{Field: "amount", Reason: fmt.Sprintf("must be positive, got %v", req.UIAmount)}
	}
	if req.FromOwner.IsZero() {
		return &ValidationError{Field: "from_owner", Reason: "required"}
	}
	if req.ToOwner.IsZero() {
		return &ValidationError{Field: "to_owner", Reason: "required"}
	}
	if req.FromOwner.Equals(req.ToOwner) {
		return &ValidationError{Field: "to_owner", Reason: "sender and recipient are the same wallet"}
	}
	if !req.Mint.IsZero() && !req.Mint.Equals(s.mint) {
		return &ValidationError{Field: "mint", Reason: fmt.Sprintf("%s is not the managed mint %s", req.Mint, s.mint)}
	}
	return nil
}

// Preview computes everything a caller needs to decide whether to
// proceed with a transfer, without mutating any state: both token
// account addresses, the raw amount, whether the recipient account must
// be created, and the sponsored fees in SOL.
func (s *Service) Preview(ctx context.Context, req TransferRequest) (*TransferPreview, error) {
	if err := s.validateTransfer(req); err != nil {
		return nil, err
	}

	fromATA, err := s.ResolveATA(req.FromOwner)
	if err != nil {
		return nil, err
	}
	toATA, err := s.ResolveATA(req.ToOwner)
	if err != nil {
		return nil, err
	}

	_, toExists, err := s.client.AccountInfo(ctx, toATA)
	if err != nil {
		return nil, fmt.Errorf("check recipient token account %s: %w", toATA, err)
	}

	// Two signatures: sending owner and treasury fee payer.
	feeLamports := uint64(2 * feePerSignature)
	if !toExists {
		rent, err := s.client.RentExemption(ctx, tokenAccountSize)
		if err != nil {
			return nil, fmt.Errorf("compute rent exemption: %w", err)
		}
		feeLamports += rent
	}

	return &TransferPreview{
		FromATA:          fromATA,
		ToATA:            toATA,
		RawAmount:        s.uiToRaw(req.UIAmount),
		NeedsATACreation: !toExists,
		EstimatedFeesSOL: float64(feeLamports) / LamportsPerSOL,
	}, nil
}

// Build constructs the unsigned sponsored transfer: an optional
// recipient account creation instruction, then the token transfer with
// the sending owner as authority, with the treasury as fee payer. The
// signer set is exactly {sending owner, treasury}. Build never
// broadcasts; submission is the caller-enforced two-step protocol.
func (s *Service) Build(ctx context.Context, req TransferRequest) (*SponsoredTransaction, error) {
	preview, err := s.Preview(ctx, req)
	if err != nil {
		return nil, err
	}

	var instructions []solana.Instruction
	if preview.NeedsATACreation {
		instructions = append(instructions, associatedtokenaccount.NewCreateInstruction(
			s.treasury.PublicKey(), // payer
			req.ToOwner,
			s.mint,
		).Build())
	}
	instructions = append(instructions, token.NewTransferInstruction(
		preview.RawAmount,
		preview.FromATA,
		preview.ToATA,
		req.FromOwner,
		nil,
	).Build())
	if req.Memo != "" {
		instructions = append(instructions, solana.NewInstruction(
			solana.MemoProgramID,
			solana.AccountMetaSlice{solana.Meta(req.FromOwner).SIGNER()},
			[]byte(req.Memo),
		))
	}

	blockhash, err := s.client.LatestBlockhash(ctx)
	if err != nil {
		return nil, fmt.Errorf("fetch blockhash: %w", err)
	}

	tx, err := solana.NewTransaction(
		instructions,
		blockhash,
		solana.TransactionPayer(s.treasury.PublicKey()),
	)
	if err != nil {
		return nil, fmt.Errorf("assemble sponsored transfer: %w", err)
	}

	s.logger.DebugContext(ctx, "built sponsored transfer",
		"from", req.FromOwner.String(),
		"to", req.ToOwner.String(),
		"raw_amount", preview.RawAmount,
		"needs_ata_creation", preview.NeedsATACreation,
	)

	return &SponsoredTransaction{
		Tx:        tx,
		FromOwner: req.FromOwner,
		ToOwner:   req.ToOwner,
		Preview:   *preview,
	}, nil
}

// CosignAndSubmit applies the treasury fee-payer signature and
// broadcasts. The owner must already have signed. Treasury signing is
// serialized with every other treasury transaction.
func (s *Service) CosignAndSubmit(ctx context.Context, st *SponsoredTransaction) (solana.Signature, error) {
	if !st.ownerSigned {
		return solana.Signature{}, &ValidationError{Field: "transaction", Reason: "owner signature must be applied before the treasury cosigns"}
	}

	s.treasuryMu.Lock()
	defer s.treasuryMu.Unlock()

	if err := s.checkTreasuryFunds(ctx, s.uiFeeLamports(st.Preview)); err != nil {
		return solana.Signature{}, err
	}

	if _, err := st.Tx.PartialSign(func(key solana.PublicKey) *solana.PrivateKey {
		if s.treasury.PublicKey().Equals(key) {
			return &s.treasury
		}
		return nil
	}); err != nil {
		return solana.Signature{}, fmt.Errorf("cosign as treasury: %w", err)
	}

	sig, err := s.client.Submit(ctx, st.Tx)
	if err != nil {
		return solana.Signature{}, err
	}
	if err := s.client.WaitForConfirmation(ctx, sig); err != nil {
		return sig, err
	}

	if s.metrics != nil {
		s.metrics.RecordTransferSubmitted()
	}
	s.logger.InfoContext(ctx, "sponsored transfer confirmed",
		"from", st.FromOwner.String(),
		"to", st.ToOwner.String(),
		"raw_amount", st.Preview.RawAmount,
		"signature", sig.String(),
	)
	return sig, nil
}

// uiFeeLamports converts the preview's fee estimate back to lamports
// for the treasury funds check.
func (s *Service) uiFeeLamports(p TransferPreview) uint64 {
	return uint64(p.EstimatedFeesSOL * LamportsPerSOL)
}
