package nats

import (
	"time"

	"github.com/chipin/walletops/service/solana"
)

// TransferredEvent is published to "walletops.transferred.{from_owner}"
// after a sponsored transfer is confirmed on-chain. Collaborating
// services (the expense ledger, notification fan-out) consume these to
// react without polling the chain.
type TransferredEvent struct {
	Signature string `json:"signature"`

	FromOwner string `json:"from_owner"`
	ToOwner   string `json:"to_owner"`
	Mint      string `json:"mint"`

	RawAmount int64   `json:"raw_amount"`
	UIAmount  float64 `json:"ui_amount"`
	Memo      string  `json:"memo,omitempty"`

	FeeLamports int64 `json:"fee_lamports"`

	PublishedAt time.Time `json:"published_at"`
}

// ReclaimedEvent is published to "walletops.reclaimed.{owner}" after a
// wallet's token account is closed and its rent swept to the treasury.
type ReclaimedEvent struct {
	Owner        string `json:"owner"`
	TokenAccount string `json:"token_account"`

	Status            string `json:"status"`
	Reason            string `json:"reason,omitempty"`
	LamportsRecovered int64  `json:"lamports_recovered"`
	Signature         string `json:"signature,omitempty"`

	PublishedAt time.Time `json:"published_at"`
}

// FromReclamationRecord converts a reclamation outcome to a ReclaimedEvent for publishing.
func FromReclamationRecord(record *solana.RentReclamationRecord) *ReclaimedEvent {
	event := &ReclaimedEvent{
		Owner:             record.Owner.String(),
		TokenAccount:      record.TokenAccount.String(),
		Status:            string(record.Status),
		Reason:            record.Reason,
		LamportsRecovered: int64(record.LamportsRecovered),
		PublishedAt:       time.Now().UTC(),
	}
	if !record.Signature.IsZero() {
		event.Signature = record.Signature.String()
	}
	return event
}
