package temporal

import (
	"context"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.temporal.io/sdk/testsuite"

	"github.com/payce-finance/payce/service/currency"
	"github.com/payce-finance/payce/service/intent"
	"github.com/payce-finance/payce/service/payment"
	"github.com/payce-finance/payce/service/status"
)

func testInput() DisbursementInput {
	return DisbursementInput{
		DisbursementID: "payceabc123",
		PayerAddress:   "7xKXtg2CW87d97TXJSDpbD5jBkheTqA83TZRuJosgAsU",
		Recipients: []DisbursementRecipient{
			{Address: "TokenkegQfeZyiNwAJbNbGKPFXCWuBvf9Ss623VQ5DA", Amount: "100"},
			{Address: "SysvarRent111111111111111111111111111111111", Amount: "50"},
		},
		Currency: "USDC",
		Network:  "solana",
	}
}

func TestDisbursementWorkflow(t *testing.T) {
	tests := []struct {
		name          string
		setup         func(env *testsuite.TestWorkflowEnvironment)
		expectedError bool
		validate      func(t *testing.T, result *DisbursementResult)
	}{
		{
			name: "all recipients paid",
			setup: func(env *testsuite.TestWorkflowEnvironment) {
				env.OnActivity(a.ValidateDisbursement, mock.Anything, mock.Anything).Return(
					&ValidateDisbursementResult{Family: "solana", Recipients: 2, TotalBaseUnits: "150000000"}, nil)
				env.OnActivity(a.ExecuteDisbursement, mock.Anything, mock.Anything).Return(
					&ExecuteDisbursementResult{
						Succeeded: 2,
						Results: []RecipientOutcome{
							{Address: "TokenkegQfeZyiNwAJbNbGKPFXCWuBvf9Ss623VQ5DA", Status: "success", Signature: "sig1"},
							{Address: "SysvarRent111111111111111111111111111111111", Status: "success", Signature: "sig2"},
						},
					}, nil)
			},
			validate: func(t *testing.T, result *DisbursementResult) {
				assert.Equal(t, 2, result.Total)
				assert.Equal(t, 2, result.Succeeded)
				assert.Equal(t, 0, result.Failed)
				assert.Nil(t, result.Error)
			},
		},
		{
			name: "partial failure is still a completed workflow",
			setup: func(env *testsuite.TestWorkflowEnvironment) {
				env.OnActivity(a.ValidateDisbursement, mock.Anything, mock.Anything).Return(
					&ValidateDisbursementResult{Family: "solana", Recipients: 2, TotalBaseUnits: "150000000"}, nil)
				env.OnActivity(a.ExecuteDisbursement, mock.Anything, mock.Anything).Return(
					&ExecuteDisbursementResult{
						Succeeded: 1,
						Failed:    1,
						Results: []RecipientOutcome{
							{Address: "TokenkegQfeZyiNwAJbNbGKPFXCWuBvf9Ss623VQ5DA", Status: "success", Signature: "sig1"},
							{Address: "SysvarRent111111111111111111111111111111111", Status: "failed", Error: "blockhash expired"},
						},
					}, nil)
			},
			validate: func(t *testing.T, result *DisbursementResult) {
				assert.Equal(t, 1, result.Succeeded)
				assert.Equal(t, 1, result.Failed)
				assert.Equal(t, "blockhash expired", result.Results[1].Error)
			},
		},
		{
			name: "validation failure skips execution",
			setup: func(env *testsuite.TestWorkflowEnvironment) {
				env.OnActivity(a.ValidateDisbursement, mock.Anything, mock.Anything).Return(
					nil, assert.AnError)
			},
			expectedError: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var suite testsuite.WorkflowTestSuite
			env := suite.NewTestWorkflowEnvironment()
			env.RegisterWorkflow(DisbursementWorkflow)
			env.RegisterActivity(a.ValidateDisbursement)
			env.RegisterActivity(a.ExecuteDisbursement)
			tt.setup(env)

			env.ExecuteWorkflow(DisbursementWorkflow, testInput())
			require.True(t, env.IsWorkflowCompleted())

			if tt.expectedError {
				assert.Error(t, env.GetWorkflowError())
				return
			}
			require.NoError(t, env.GetWorkflowError())

			var result DisbursementResult
			require.NoError(t, env.GetWorkflowResult(&result))
			tt.validate(t, &result)
		})
	}
}

// stubStrategy lets activity tests run without chain clients.
type stubStrategy struct {
	result *payment.BatchResult
	err    error
	seen   *intent.BatchIntent
}

func (s *stubStrategy) Execute(_ context.Context, batch *intent.BatchIntent, _ *status.Reporter, _ status.ProgressFunc) (*payment.BatchResult, error) {
	s.seen = batch
	if s.err != nil {
		return nil, s.err
	}
	return s.result, nil
}

func TestValidateDisbursement(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	act := NewActivities(map[currency.Family]payment.BatchStrategy{
		currency.FamilySolana: &stubStrategy{},
	}, nil, logger)

	t.Run("valid input", func(t *testing.T) {
		got, err := act.ValidateDisbursement(context.Background(), testInput())
		require.NoError(t, err)
		assert.Equal(t, "solana", got.Family)
		assert.Equal(t, 2, got.Recipients)
		assert.Equal(t, "150000000", got.TotalBaseUnits)
	})

	t.Run("unsupported currency", func(t *testing.T) {
		in := testInput()
		in.Currency = "DOGE"
		_, err := act.ValidateDisbursement(context.Background(), in)
		assert.Error(t, err)
	})

	t.Run("missing strategy for family", func(t *testing.T) {
		in := testInput()
		in.Currency = "USDC"
		in.Network = "base"
		in.PayerAddress = "0x1111111111111111111111111111111111111111"
		in.Recipients = []DisbursementRecipient{
			{Address: "0x2222222222222222222222222222222222222222", Amount: "10"},
		}
		_, err := act.ValidateDisbursement(context.Background(), in)
		assert.ErrorContains(t, err, "no batch strategy")
	})
}

func TestExecuteDisbursement(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	strategy := &stubStrategy{
		result: &payment.BatchResult{
			Total:     2,
			Succeeded: 2,
			Results: []payment.RecipientResult{
				{Address: "TokenkegQfeZyiNwAJbNbGKPFXCWuBvf9Ss623VQ5DA", Status: "success", Signature: "sig1"},
				{Address: "SysvarRent111111111111111111111111111111111", Status: "success", Signature: "sig2"},
			},
		},
	}
	act := NewActivities(map[currency.Family]payment.BatchStrategy{
		currency.FamilySolana: strategy,
	}, nil, logger)

	got, err := act.ExecuteDisbursement(context.Background(), testInput())
	require.NoError(t, err)
	assert.Equal(t, 2, got.Succeeded)
	assert.Len(t, got.Results, 2)

	// The strategy received the normalized batch, not raw strings.
	require.NotNil(t, strategy.seen)
	assert.Equal(t, "100000000", strategy.seen.Recipients[0].Amount.String())
}
