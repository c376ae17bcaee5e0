package solana

import (
	"context"
	"testing"

	"github.com/gagliardetto/solana-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestVerify_NonexistentAccountIsConsistentZero(t *testing.T) {
	ctx := context.Background()
	f := newTestService(t)
	owner := solana.NewWallet().PublicKey()

	snapshot, err := f.svc.Verify(ctx, owner)
	require.NoError(t, err)

	assert.Equal(t, AccountStateNonExistent, snapshot.State)
	assert.True(t, snapshot.Consistent)
	assert.Zero(t, snapshot.RawAmount)
	assert.Zero(t, snapshot.UIAmount)
	assert.True(t, snapshot.Empty())
	assert.Len(t, snapshot.Checks, 2)
}

func TestVerify_EmptyThreshold(t *testing.T) {
	tests := []struct {
		name      string
		raw       uint64 // USDC raw units, 6 decimals
		wantState AccountState
		wantEmpty bool
	}{
		{"zero balance", 0, AccountStateEmpty, true},
		{"dust below threshold", 500, AccountStateEmpty, true}, // 0.0005
		{"above threshold", 2000, AccountStateFunded, false},   // 0.002
		{"exactly at threshold", 1000, AccountStateFunded, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := context.Background()
			f := newTestService(t)
			owner := solana.NewWallet().PublicKey()
			f.mock.setTokenAccount(f.ata(t, owner), 2039280, tt.raw)

			snapshot, err := f.svc.Verify(ctx, owner)
			require.NoError(t, err)
			assert.Equal(t, tt.wantState, snapshot.State)
			assert.Equal(t, tt.wantEmpty, snapshot.Empty())
			assert.True(t, snapshot.Consistent)
			assert.Equal(t, tt.raw, snapshot.RawAmount)
		})
	}
}

func TestVerify_MethodDisagreementFlagsMismatch(t *testing.T) {
	ctx := context.Background()
	f := newTestService(t)
	owner := solana.NewWallet().PublicKey()
	ata := f.ata(t, owner)

	// Account data says zero, token-balance query says 0.5.
	f.mock.setTokenAccount(ata, 2039280, 0)
	f.mock.tokenBalanceOverride[ata] = 500000

	snapshot, err := f.svc.Verify(ctx, owner)
	require.NoError(t, err)
	assert.False(t, snapshot.Consistent)
	assert.Equal(t, AccountStateUnknown, snapshot.State)
	assert.False(t, snapshot.Empty())
}

func TestVerifyAcrossRPCs_Unanimous(t *testing.T) {
	ctx := context.Background()
	second := newMockRPC()
	f := newTestService(t, second)
	owner := solana.NewWallet().PublicKey()
	ata := f.ata(t, owner)

	f.mock.setTokenAccount(ata, 2039280, 2000)
	second.setTokenAccount(ata, 2039280, 2000)

	snapshot, err := f.svc.VerifyAcrossRPCs(ctx, owner)
	require.NoError(t, err)
	assert.True(t, snapshot.Consistent)
	assert.Equal(t, AccountStateFunded, snapshot.State)
	assert.Len(t, snapshot.Checks, 3)
}

func TestVerifyAcrossRPCs_DissentingEndpoint(t *testing.T) {
	ctx := context.Background()
	second := newMockRPC()
	f := newTestService(t, second)
	owner := solana.NewWallet().PublicKey()
	ata := f.ata(t, owner)

	// Primary reports zero, the second endpoint reports 0.5.
	f.mock.setTokenAccount(ata, 2039280, 0)
	second.setTokenAccount(ata, 2039280, 500000)

	snapshot, err := f.svc.VerifyAcrossRPCs(ctx, owner)
	require.NoError(t, err)
	assert.False(t, snapshot.Consistent)
	assert.Equal(t, AccountStateUnknown, snapshot.State)
}
