package db

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBalanceSnapshots(t *testing.T) {
	SkipIfNoTestDB(t)

	store := NewTestStore(t)
	defer store.Close()
	defer store.Cleanup(t)

	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Microsecond)

	t.Run("create and list", func(t *testing.T) {
		params := CreateBalanceSnapshotParams{
			Owner:        "owner123",
			TokenAccount: "ata123",
			Mint:         "mint123",
			State:        "empty",
			UIAmount:     0.0005,
			RawAmount:    500,
			Consistent:   true,
			CheckCount:   2,
			CheckedAt:    now,
		}

		snapshot, err := store.CreateBalanceSnapshot(ctx, params)
		require.NoError(t, err)
		require.NotNil(t, snapshot)
		assert.NotZero(t, snapshot.ID)
		assert.Equal(t, "empty", snapshot.State)
		assert.Equal(t, int64(500), snapshot.RawAmount)
		assert.True(t, snapshot.Consistent)
		assert.WithinDuration(t, now, snapshot.CheckedAt, time.Microsecond)

		snapshots, err := store.ListBalanceSnapshots(ctx, "owner123", 10)
		require.NoError(t, err)
		require.Len(t, snapshots, 1)
		assert.Equal(t, snapshot.ID, snapshots[0].ID)
	})

	t.Run("newest first", func(t *testing.T) {
		for i := 0; i < 3; i++ {
			_, err := store.CreateBalanceSnapshot(ctx, CreateBalanceSnapshotParams{
				Owner:        "owner456",
				TokenAccount: "ata456",
				Mint:         "mint123",
				State:        "funded",
				RawAmount:    int64(1000 * (i + 1)),
				Consistent:   true,
				CheckCount:   2,
				CheckedAt:    now.Add(time.Duration(i) * time.Minute),
			})
			require.NoError(t, err)
		}

		snapshots, err := store.ListBalanceSnapshots(ctx, "owner456", 2)
		require.NoError(t, err)
		require.Len(t, snapshots, 2)
		assert.Equal(t, int64(3000), snapshots[0].RawAmount)
		assert.Equal(t, int64(2000), snapshots[1].RawAmount)
	})

	t.Run("first seen", func(t *testing.T) {
		earliest := now.Add(-48 * time.Hour)
		for _, checkedAt := range []time.Time{now, earliest, now.Add(-time.Hour)} {
			_, err := store.CreateBalanceSnapshot(ctx, CreateBalanceSnapshotParams{
				Owner:        "owner789",
				TokenAccount: "ata789",
				Mint:         "mint123",
				State:        "empty",
				Consistent:   true,
				CheckCount:   2,
				CheckedAt:    checkedAt,
			})
			require.NoError(t, err)
		}

		firstSeen, err := store.FirstSeenAt(ctx, "owner789")
		require.NoError(t, err)
		require.NotNil(t, firstSeen)
		assert.WithinDuration(t, earliest, *firstSeen, time.Microsecond)

		unseen, err := store.FirstSeenAt(ctx, "never-verified")
		require.NoError(t, err)
		assert.Nil(t, unseen)
	})
}

func TestTransfers(t *testing.T) {
	SkipIfNoTestDB(t)

	store := NewTestStore(t)
	defer store.Close()
	defer store.Cleanup(t)

	ctx := context.Background()

	t.Run("create and get", func(t *testing.T) {
		memo := "chipin:split:42"
		created, err := store.CreateTransfer(ctx, CreateTransferParams{
			Signature:   "sig-transfer-1",
			FromOwner:   "alice",
			ToOwner:     "bob",
			Mint:        "mint123",
			RawAmount:   1250000,
			Memo:        &memo,
			FeeLamports: 10000,
		})
		require.NoError(t, err)
		assert.NotZero(t, created.ID)

		got, err := store.GetTransfer(ctx, "sig-transfer-1")
		require.NoError(t, err)
		assert.Equal(t, "alice", got.FromOwner)
		assert.Equal(t, "bob", got.ToOwner)
		assert.Equal(t, int64(1250000), got.RawAmount)
		require.NotNil(t, got.Memo)
		assert.Equal(t, memo, *got.Memo)
	})

	t.Run("nil memo round-trips", func(t *testing.T) {
		_, err := store.CreateTransfer(ctx, CreateTransferParams{
			Signature: "sig-transfer-2",
			FromOwner: "alice",
			ToOwner:   "carol",
			Mint:      "mint123",
			RawAmount: 500000,
		})
		require.NoError(t, err)

		got, err := store.GetTransfer(ctx, "sig-transfer-2")
		require.NoError(t, err)
		assert.Nil(t, got.Memo)
	})

	t.Run("missing signature", func(t *testing.T) {
		_, err := store.GetTransfer(ctx, "no-such-sig")
		assert.ErrorIs(t, err, ErrNoRows)
	})

	t.Run("list by owner", func(t *testing.T) {
		transfers, err := store.ListTransfersByOwner(ctx, "alice", 10, 0)
		require.NoError(t, err)
		assert.Len(t, transfers, 2)
	})
}

func TestSweepReportsAndReclamations(t *testing.T) {
	SkipIfNoTestDB(t)

	store := NewTestStore(t)
	defer store.Close()
	defer store.Cleanup(t)

	ctx := context.Background()
	started := time.Now().UTC().Truncate(time.Microsecond)

	report, err := store.CreateSweepReport(ctx, CreateSweepReportParams{
		Processed:      3,
		Succeeded:      2,
		Burned:         1,
		Mismatched:     1,
		Errored:        1,
		TotalRecovered: 2039280,
		StartedAt:      started,
		FinishedAt:     started.Add(5 * time.Second),
	})
	require.NoError(t, err)
	require.NotZero(t, report.ID)
	assert.False(t, report.Halted)
	assert.Nil(t, report.HaltReason)

	sig := "sig-close-1"
	reason := "cross_verification_mismatch"
	errText := "refusing to close funded account"
	outcomes := []CreateReclamationParams{
		{SweepReportID: &report.ID, Owner: "w1", TokenAccount: "a1", Status: "closed", LamportsRecovered: 2039280, Signature: &sig},
		{SweepReportID: &report.ID, Owner: "w2", TokenAccount: "a2", Status: "skipped", Reason: &reason},
		{SweepReportID: &report.ID, Owner: "w3", TokenAccount: "a3", Status: "failed", ErrorText: &errText},
	}
	for _, o := range outcomes {
		_, err := store.CreateReclamation(ctx, o)
		require.NoError(t, err)
	}

	t.Run("list by sweep", func(t *testing.T) {
		recs, err := store.ListReclamationsBySweep(ctx, report.ID)
		require.NoError(t, err)
		require.Len(t, recs, 3)
		assert.Equal(t, "closed", recs[0].Status)
		require.NotNil(t, recs[1].Reason)
		assert.Equal(t, reason, *recs[1].Reason)
		require.NotNil(t, recs[2].ErrorText)
	})

	t.Run("list by owner", func(t *testing.T) {
		recs, err := store.ListReclamationsByOwner(ctx, "w1", 10)
		require.NoError(t, err)
		require.Len(t, recs, 1)
		assert.Equal(t, int64(2039280), recs[0].LamportsRecovered)
	})

	t.Run("total recovered counts only closes", func(t *testing.T) {
		total, err := store.TotalLamportsRecovered(ctx, started.Add(-time.Hour))
		require.NoError(t, err)
		assert.Equal(t, int64(2039280), total)
	})

	t.Run("get report", func(t *testing.T) {
		got, err := store.GetSweepReport(ctx, report.ID)
		require.NoError(t, err)
		assert.Equal(t, int32(3), got.Processed)
		assert.WithinDuration(t, started, got.StartedAt, time.Microsecond)
	})

	t.Run("halted report keeps reason", func(t *testing.T) {
		haltReason := "insufficient treasury balance"
		halted, err := store.CreateSweepReport(ctx, CreateSweepReportParams{
			Processed:  1,
			Errored:    1,
			Halted:     true,
			HaltReason: &haltReason,
			StartedAt:  started,
			FinishedAt: started.Add(time.Second),
		})
		require.NoError(t, err)
		require.NotNil(t, halted.HaltReason)
		assert.Equal(t, haltReason, *halted.HaltReason)

		reports, err := store.ListSweepReports(ctx, 10)
		require.NoError(t, err)
		assert.Len(t, reports, 2)
	})
}
