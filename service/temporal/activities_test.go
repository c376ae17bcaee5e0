package temporal

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	solanago "github.com/gagliardetto/solana-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/chipin/walletops/service/db"
	natspkg "github.com/chipin/walletops/service/nats"
	"github.com/chipin/walletops/service/solana"
)

// Mock Sweeper
type MockSweeper struct {
	mock.Mock
}

func (m *MockSweeper) Verify(ctx context.Context, owner solanago.PublicKey) (*solana.BalanceSnapshot, error) {
	args := m.Called(ctx, owner)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*solana.BalanceSnapshot), args.Error(1)
}

func (m *MockSweeper) VerifyAcrossRPCs(ctx context.Context, owner solanago.PublicKey) (*solana.BalanceSnapshot, error) {
	args := m.Called(ctx, owner)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*solana.BalanceSnapshot), args.Error(1)
}

func (m *MockSweeper) BurnBatch(ctx context.Context, owners []solanago.PublicKey, policy solana.BurnPolicy) *solana.BatchReport {
	args := m.Called(ctx, owners, policy)
	return args.Get(0).(*solana.BatchReport)
}

// Mock Ledger
type MockLedger struct {
	mock.Mock
}

func (m *MockLedger) CreateBalanceSnapshot(ctx context.Context, params db.CreateBalanceSnapshotParams) (*db.BalanceSnapshot, error) {
	args := m.Called(ctx, params)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*db.BalanceSnapshot), args.Error(1)
}

func (m *MockLedger) CreateSweepReport(ctx context.Context, params db.CreateSweepReportParams) (*db.SweepReport, error) {
	args := m.Called(ctx, params)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*db.SweepReport), args.Error(1)
}

func (m *MockLedger) CreateReclamation(ctx context.Context, params db.CreateReclamationParams) (*db.Reclamation, error) {
	args := m.Called(ctx, params)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*db.Reclamation), args.Error(1)
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestVerifyWallet(t *testing.T) {
	ctx := context.Background()
	owner := solanago.NewWallet().PublicKey()
	ata := solanago.NewWallet().PublicKey()
	mint := solanago.NewWallet().PublicKey()

	snapshot := &solana.BalanceSnapshot{
		Owner:        owner,
		TokenAccount: ata,
		Mint:         mint,
		Checks:       []solana.BalanceCheck{{}, {}},
		State:        solana.AccountStateEmpty,
		UIAmount:     0.0005,
		RawAmount:    500,
		Consistent:   true,
		CheckedAt:    time.Now().UTC(),
	}

	t.Run("verifies and persists snapshot", func(t *testing.T) {
		sweeper := new(MockSweeper)
		ledger := new(MockLedger)
		activities := NewActivities(sweeper, ledger, nil, nil, discardLogger())

		sweeper.On("Verify", mock.Anything, owner).Return(snapshot, nil)
		ledger.On("CreateBalanceSnapshot", mock.Anything, mock.MatchedBy(func(p db.CreateBalanceSnapshotParams) bool {
			return p.Owner == owner.String() && p.State == "empty" && p.RawAmount == 500 && p.CheckCount == 2
		})).Return(&db.BalanceSnapshot{ID: 1}, nil)

		result, err := activities.VerifyWallet(ctx, VerifyWalletInput{Owner: owner.String()})
		require.NoError(t, err)
		assert.Equal(t, "empty", result.State)
		assert.Equal(t, uint64(500), result.RawAmount)
		assert.True(t, result.Consistent)
		assert.Equal(t, 2, result.CheckCount)

		sweeper.AssertExpectations(t)
		ledger.AssertExpectations(t)
	})

	t.Run("cross verify uses every endpoint", func(t *testing.T) {
		sweeper := new(MockSweeper)
		ledger := new(MockLedger)
		activities := NewActivities(sweeper, ledger, nil, nil, discardLogger())

		sweeper.On("VerifyAcrossRPCs", mock.Anything, owner).Return(snapshot, nil)
		ledger.On("CreateBalanceSnapshot", mock.Anything, mock.Anything).Return(&db.BalanceSnapshot{ID: 2}, nil)

		_, err := activities.VerifyWallet(ctx, VerifyWalletInput{Owner: owner.String(), CrossVerify: true})
		require.NoError(t, err)
		sweeper.AssertExpectations(t)
	})

	t.Run("invalid address", func(t *testing.T) {
		activities := NewActivities(new(MockSweeper), new(MockLedger), nil, nil, discardLogger())

		_, err := activities.VerifyWallet(ctx, VerifyWalletInput{Owner: "not-an-address"})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "invalid owner address")
	})

	t.Run("ledger failure surfaces", func(t *testing.T) {
		sweeper := new(MockSweeper)
		ledger := new(MockLedger)
		activities := NewActivities(sweeper, ledger, nil, nil, discardLogger())

		sweeper.On("Verify", mock.Anything, owner).Return(snapshot, nil)
		ledger.On("CreateBalanceSnapshot", mock.Anything, mock.Anything).Return(nil, errors.New("db down"))

		_, err := activities.VerifyWallet(ctx, VerifyWalletInput{Owner: owner.String()})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "persist balance snapshot")
	})
}

func TestReclaimBatch(t *testing.T) {
	ctx := context.Background()
	owner1 := solanago.NewWallet().PublicKey()
	owner2 := solanago.NewWallet().PublicKey()
	ata1 := solanago.NewWallet().PublicKey()
	ata2 := solanago.NewWallet().PublicKey()

	t.Run("converts batch report", func(t *testing.T) {
		sweeper := new(MockSweeper)
		activities := NewActivities(sweeper, new(MockLedger), nil, nil, discardLogger())

		var sig solanago.Signature
		sig[0] = 1
		report := &solana.BatchReport{
			Processed:      2,
			Succeeded:      1,
			Burned:         1,
			Errored:        1,
			TotalRecovered: 2039280,
			Records: []solana.RentReclamationRecord{
				{Owner: owner1, TokenAccount: ata1, Status: solana.ReclamationStatusClosed, Closed: true, LamportsRecovered: 2039280, Signature: sig},
				{Owner: owner2, TokenAccount: ata2, Status: solana.ReclamationStatusFailed, Err: errors.New("refusing to close funded account")},
			},
		}

		sweeper.On("BurnBatch", mock.Anything, mock.Anything, mock.MatchedBy(func(p solana.BurnPolicy) bool {
			return p.BatchSize == 2 && p.DryRun
		})).Return(report)

		result, err := activities.ReclaimBatch(ctx, ReclaimBatchInput{
			Owners: []string{owner1.String(), owner2.String()},
			DryRun: true,
		})
		require.NoError(t, err)

		assert.Equal(t, 2, result.Processed)
		assert.Equal(t, 1, result.Burned)
		assert.Equal(t, uint64(2039280), result.TotalRecovered)
		require.Len(t, result.Records, 2)
		assert.Equal(t, sig.String(), result.Records[0].Signature)
		assert.Empty(t, result.Records[1].Signature)
		assert.Contains(t, result.Records[1].Error, "funded")
	})

	t.Run("halt propagates", func(t *testing.T) {
		sweeper := new(MockSweeper)
		activities := NewActivities(sweeper, new(MockLedger), nil, nil, discardLogger())

		sweeper.On("BurnBatch", mock.Anything, mock.Anything, mock.Anything).Return(&solana.BatchReport{
			Processed:  1,
			Errored:    1,
			Halted:     true,
			HaltReason: "insufficient treasury balance",
			Records:    []solana.RentReclamationRecord{{Owner: owner1, TokenAccount: ata1, Status: solana.ReclamationStatusFailed}},
		})

		result, err := activities.ReclaimBatch(ctx, ReclaimBatchInput{Owners: []string{owner1.String()}})
		require.NoError(t, err)
		assert.True(t, result.Halted)
		assert.Equal(t, "insufficient treasury balance", result.HaltReason)
	})

	t.Run("invalid address rejected before any burn", func(t *testing.T) {
		sweeper := new(MockSweeper)
		activities := NewActivities(sweeper, new(MockLedger), nil, nil, discardLogger())

		_, err := activities.ReclaimBatch(ctx, ReclaimBatchInput{Owners: []string{"nope"}})
		require.Error(t, err)
		sweeper.AssertNotCalled(t, "BurnBatch")
	})
}

func TestWriteSweepReport(t *testing.T) {
	ctx := context.Background()
	started := time.Now().UTC().Add(-time.Minute)

	t.Run("persists report and records", func(t *testing.T) {
		ledger := new(MockLedger)
		activities := NewActivities(new(MockSweeper), ledger, nil, nil, discardLogger())

		ledger.On("CreateSweepReport", mock.Anything, mock.MatchedBy(func(p db.CreateSweepReportParams) bool {
			return p.Processed == 2 && p.Burned == 1 && !p.Halted && p.HaltReason == nil
		})).Return(&db.SweepReport{ID: 42}, nil)

		ledger.On("CreateReclamation", mock.Anything, mock.MatchedBy(func(p db.CreateReclamationParams) bool {
			return p.SweepReportID != nil && *p.SweepReportID == 42
		})).Return(&db.Reclamation{}, nil).Twice()

		result, err := activities.WriteSweepReport(ctx, WriteSweepReportInput{
			Records: []ReclamationOutcome{
				{Owner: "w1", TokenAccount: "a1", Status: "closed", LamportsRecovered: 2039280, Signature: "sig1"},
				{Owner: "w2", TokenAccount: "a2", Status: "skipped", Reason: "dry_run"},
			},
			Processed:      2,
			Succeeded:      2,
			Burned:         1,
			TotalRecovered: 2039280,
			StartedAt:      started,
			FinishedAt:     time.Now().UTC(),
		})
		require.NoError(t, err)
		assert.Equal(t, int64(42), result.SweepReportID)
		ledger.AssertExpectations(t)
	})

	t.Run("report write failure", func(t *testing.T) {
		ledger := new(MockLedger)
		activities := NewActivities(new(MockSweeper), ledger, nil, nil, discardLogger())

		ledger.On("CreateSweepReport", mock.Anything, mock.Anything).Return(nil, errors.New("db down"))

		_, err := activities.WriteSweepReport(ctx, WriteSweepReportInput{StartedAt: started, FinishedAt: time.Now()})
		require.Error(t, err)
		ledger.AssertNotCalled(t, "CreateReclamation")
	})
}

func TestPublishReclamations(t *testing.T) {
	ctx := context.Background()

	t.Run("publishes one event per record", func(t *testing.T) {
		publisher := natspkg.NewMockPublisher()
		activities := NewActivities(new(MockSweeper), new(MockLedger), publisher, nil, discardLogger())

		err := activities.PublishReclamations(ctx, PublishReclamationsInput{
			Records: []ReclamationOutcome{
				{Owner: "w1", TokenAccount: "a1", Status: "closed", LamportsRecovered: 2039280, Signature: "sig1"},
				{Owner: "w2", TokenAccount: "a2", Status: "already_clean"},
			},
		})
		require.NoError(t, err)

		events := publisher.GetReclaimedEvents()
		require.Len(t, events, 2)
		assert.Equal(t, "w1", events[0].Owner)
		assert.Equal(t, int64(2039280), events[0].LamportsRecovered)
		assert.Equal(t, "already_clean", events[1].Status)
	})

	t.Run("no records is a no-op", func(t *testing.T) {
		publisher := natspkg.NewMockPublisher()
		activities := NewActivities(new(MockSweeper), new(MockLedger), publisher, nil, discardLogger())

		require.NoError(t, activities.PublishReclamations(ctx, PublishReclamationsInput{}))
		assert.Empty(t, publisher.GetReclaimedEvents())
	})

	t.Run("publish failure surfaces", func(t *testing.T) {
		publisher := natspkg.NewMockPublisher()
		publisher.SetPublishError(errors.New("nats down"))
		activities := NewActivities(new(MockSweeper), new(MockLedger), publisher, nil, discardLogger())

		err := activities.PublishReclamations(ctx, PublishReclamationsInput{
			Records: []ReclamationOutcome{{Owner: "w1", Status: "closed"}},
		})
		require.Error(t, err)
	})
}
