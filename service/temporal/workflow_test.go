package temporal

import (
	"context"
	"errors"
	"testing"

	solanago "github.com/gagliardetto/solana-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.temporal.io/sdk/testsuite"
)

func testOwners(n int) []string {
	owners := make([]string, n)
	for i := range owners {
		owners[i] = solanago.NewWallet().PublicKey().String()
	}
	return owners
}

func cleanBatchResult(n int) *ReclaimBatchResult {
	result := &ReclaimBatchResult{
		Processed:      n,
		Succeeded:      n,
		Burned:         n,
		TotalRecovered: uint64(n) * 2039280,
	}
	for i := 0; i < n; i++ {
		result.Records = append(result.Records, ReclamationOutcome{
			Owner:             solanago.NewWallet().PublicKey().String(),
			TokenAccount:      solanago.NewWallet().PublicKey().String(),
			Status:            "closed",
			LamportsRecovered: 2039280,
		})
	}
	return result
}

func TestSweepWalletsWorkflow(t *testing.T) {
	activities := &Activities{}
	reportID := int64(7)

	tests := []struct {
		name           string
		input          SweepWalletsInput
		mockActivities func(env *testsuite.TestWorkflowEnvironment)
		wantErr        string
		checkResult    func(t *testing.T, result *SweepWalletsResult)
	}{
		{
			name: "sweep accumulates across batches",
			input: SweepWalletsInput{
				Owners:    testOwners(15),
				BatchSize: 10,
			},
			mockActivities: func(env *testsuite.TestWorkflowEnvironment) {
				env.OnActivity(activities.ReclaimBatch, mock.Anything, mock.Anything).
					Return(cleanBatchResult(10), nil).Once()
				env.OnActivity(activities.ReclaimBatch, mock.Anything, mock.Anything).
					Return(cleanBatchResult(5), nil).Once()
				env.OnActivity(activities.WriteSweepReport, mock.Anything, mock.Anything).
					Return(&WriteSweepReportResult{SweepReportID: reportID}, nil).Once()
				env.OnActivity(activities.PublishReclamations, mock.Anything, mock.Anything).
					Return(nil).Once()
			},
			checkResult: func(t *testing.T, result *SweepWalletsResult) {
				assert.Equal(t, 15, result.Processed)
				assert.Equal(t, 15, result.Burned)
				assert.Equal(t, uint64(15*2039280), result.TotalRecovered)
				assert.Len(t, result.Records, 15)
				assert.False(t, result.Halted)
				require.NotNil(t, result.SweepReportID)
				assert.Equal(t, reportID, *result.SweepReportID)
			},
		},
		{
			name: "halt stops remaining batches but keeps the report",
			input: SweepWalletsInput{
				Owners:    testOwners(30),
				BatchSize: 10,
			},
			mockActivities: func(env *testsuite.TestWorkflowEnvironment) {
				halted := cleanBatchResult(10)
				halted.Halted = true
				halted.HaltReason = "insufficient treasury balance"
				// Only the first batch runs; Once() fails the test if the
				// workflow keeps going after the halt.
				env.OnActivity(activities.ReclaimBatch, mock.Anything, mock.Anything).
					Return(halted, nil).Once()
				env.OnActivity(activities.WriteSweepReport, mock.Anything, mock.Anything).
					Return(&WriteSweepReportResult{SweepReportID: reportID}, nil).Once()
				env.OnActivity(activities.PublishReclamations, mock.Anything, mock.Anything).
					Return(nil).Once()
			},
			checkResult: func(t *testing.T, result *SweepWalletsResult) {
				assert.Equal(t, 10, result.Processed)
				assert.True(t, result.Halted)
				assert.Equal(t, "insufficient treasury balance", result.HaltReason)
				require.NotNil(t, result.SweepReportID)
			},
		},
		{
			name: "reclaim failure fails the workflow",
			input: SweepWalletsInput{
				Owners: testOwners(3),
			},
			mockActivities: func(env *testsuite.TestWorkflowEnvironment) {
				env.OnActivity(activities.ReclaimBatch, mock.Anything, mock.Anything).
					Return(nil, errors.New("rpc unavailable"))
			},
			wantErr: "failed to reclaim batch",
		},
		{
			name: "report write failure fails the workflow",
			input: SweepWalletsInput{
				Owners: testOwners(3),
			},
			mockActivities: func(env *testsuite.TestWorkflowEnvironment) {
				env.OnActivity(activities.ReclaimBatch, mock.Anything, mock.Anything).
					Return(cleanBatchResult(3), nil).Once()
				env.OnActivity(activities.WriteSweepReport, mock.Anything, mock.Anything).
					Return(nil, errors.New("db down"))
			},
			wantErr: "failed to write sweep report",
		},
		{
			name: "publish failure does not fail the sweep",
			input: SweepWalletsInput{
				Owners: testOwners(3),
			},
			mockActivities: func(env *testsuite.TestWorkflowEnvironment) {
				env.OnActivity(activities.ReclaimBatch, mock.Anything, mock.Anything).
					Return(cleanBatchResult(3), nil).Once()
				env.OnActivity(activities.WriteSweepReport, mock.Anything, mock.Anything).
					Return(&WriteSweepReportResult{SweepReportID: reportID}, nil).Once()
				env.OnActivity(activities.PublishReclamations, mock.Anything, mock.Anything).
					Return(errors.New("nats down"))
			},
			checkResult: func(t *testing.T, result *SweepWalletsResult) {
				assert.Equal(t, 3, result.Processed)
				require.NotNil(t, result.SweepReportID)
				assert.Nil(t, result.Error)
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			testSuite := &testsuite.WorkflowTestSuite{}
			env := testSuite.NewTestWorkflowEnvironment()
			env.RegisterActivity(activities)

			tt.mockActivities(env)

			env.ExecuteWorkflow(SweepWalletsWorkflow, tt.input)

			require.True(t, env.IsWorkflowCompleted())

			if tt.wantErr != "" {
				err := env.GetWorkflowError()
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
				return
			}

			require.NoError(t, env.GetWorkflowError())
			var result SweepWalletsResult
			require.NoError(t, env.GetWorkflowResult(&result))
			if tt.checkResult != nil {
				tt.checkResult(t, &result)
			}
			env.AssertExpectations(t)
		})
	}
}

func TestSweepWalletsWorkflow_RetriesTransientFailures(t *testing.T) {
	activities := &Activities{}

	testSuite := &testsuite.WorkflowTestSuite{}
	env := testSuite.NewTestWorkflowEnvironment()
	env.RegisterActivity(activities)

	callCount := 0
	env.OnActivity(activities.ReclaimBatch, mock.Anything, mock.Anything).
		Return(func(ctx context.Context, input ReclaimBatchInput) (*ReclaimBatchResult, error) {
			callCount++
			if callCount < 3 {
				return nil, errors.New("rpc unavailable")
			}
			return cleanBatchResult(len(input.Owners)), nil
		})
	env.OnActivity(activities.WriteSweepReport, mock.Anything, mock.Anything).
		Return(&WriteSweepReportResult{SweepReportID: 1}, nil).Once()
	env.OnActivity(activities.PublishReclamations, mock.Anything, mock.Anything).
		Return(nil).Once()

	env.ExecuteWorkflow(SweepWalletsWorkflow, SweepWalletsInput{Owners: testOwners(2)})

	require.True(t, env.IsWorkflowCompleted())
	require.NoError(t, env.GetWorkflowError())
	assert.Equal(t, 3, callCount)

	var result SweepWalletsResult
	require.NoError(t, env.GetWorkflowResult(&result))
	assert.Equal(t, 2, result.Processed)
}
