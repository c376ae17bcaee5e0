package solana

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"testing"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"
	"github.com/stretchr/testify/require"
)

// mockAccount is an on-chain token account as the mock RPC sees it.
type mockAccount struct {
	lamports uint64
	amount   uint64 // raw token units encoded in the account data
}

// mockRPCClient implements RPCClient for testing.
// It's behavior-focused: we set what it should return, not verify call sequences.
type mockRPCClient struct {
	mu sync.Mutex

	accounts      map[solana.PublicKey]*mockAccount
	solBalances   map[solana.PublicKey]uint64
	rentExemption uint64

	// tokenBalanceOverride makes the token-balance query diverge from
	// the account data, to simulate disagreeing methods/endpoints.
	tokenBalanceOverride map[solana.PublicKey]uint64

	// failuresLeft injects transient errors before calls succeed.
	failuresLeft int
	failErr      error

	sendErr error
	sent    []*solana.Transaction
}

func newMockRPC() *mockRPCClient {
	return &mockRPCClient{
		accounts:             make(map[solana.PublicKey]*mockAccount),
		solBalances:          make(map[solana.PublicKey]uint64),
		tokenBalanceOverride: make(map[solana.PublicKey]uint64),
		rentExemption:        2039280,
	}
}

// setTokenAccount registers an existing token account holding the given
// raw amount and rent lamports.
func (m *mockRPCClient) setTokenAccount(ata solana.PublicKey, lamports, amount uint64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.accounts[ata] = &mockAccount{lamports: lamports, amount: amount}
}

func (m *mockRPCClient) sentCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sent)
}

func (m *mockRPCClient) transientFailure() error {
	if m.failuresLeft > 0 {
		m.failuresLeft--
		if m.failErr != nil {
			return m.failErr
		}
		return errors.New("rpc: connection reset by peer")
	}
	return nil
}

// tokenAccountData encodes the SPL token account layout far enough for
// the amount field at offset 64.
func tokenAccountData(amount uint64) []byte {
	data := make([]byte, tokenAccountSize)
	binary.LittleEndian.PutUint64(data[tokenAmountOffset:], amount)
	return data
}

func (m *mockRPCClient) GetAccountInfo(ctx context.Context, account solana.PublicKey) (*rpc.GetAccountInfoResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.transientFailure(); err != nil {
		return nil, err
	}
	acct, ok := m.accounts[account]
	if !ok {
		return nil, rpc.ErrNotFound
	}
	return &rpc.GetAccountInfoResult{
		Value: &rpc.Account{
			Lamports: acct.lamports,
			Owner:    solana.TokenProgramID,
			Data:     rpc.DataBytesOrJSONFromBytes(tokenAccountData(acct.amount)),
		},
	}, nil
}

func (m *mockRPCClient) GetTokenAccountBalance(ctx context.Context, account solana.PublicKey) (*rpc.GetTokenAccountBalanceResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.transientFailure(); err != nil {
		return nil, err
	}
	amount, overridden := m.tokenBalanceOverride[account]
	if !overridden {
		acct, ok := m.accounts[account]
		if !ok {
			return nil, errors.New("could not find account")
		}
		amount = acct.amount
	}
	ui := float64(amount) / 1e6
	return &rpc.GetTokenAccountBalanceResult{
		Value: &rpc.UiTokenAmount{
			Amount:   fmt.Sprintf("%d", amount),
			Decimals: USDCDecimals,
			UiAmount: &ui,
		},
	}, nil
}

func (m *mockRPCClient) GetBalance(ctx context.Context, account solana.PublicKey) (*rpc.GetBalanceResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.transientFailure(); err != nil {
		return nil, err
	}
	return &rpc.GetBalanceResult{Value: m.solBalances[account]}, nil
}

func (m *mockRPCClient) GetLatestBlockhash(ctx context.Context) (*rpc.GetLatestBlockhashResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.transientFailure(); err != nil {
		return nil, err
	}
	return &rpc.GetLatestBlockhashResult{
		Value: &rpc.LatestBlockhashResult{
			Blockhash: solana.Hash{},
		},
	}, nil
}

func (m *mockRPCClient) GetMinimumBalanceForRentExemption(ctx context.Context, dataSize uint64) (uint64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.rentExemption, nil
}

func (m *mockRPCClient) SendTransaction(ctx context.Context, tx *solana.Transaction) (solana.Signature, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.sendErr != nil {
		return solana.Signature{}, m.sendErr
	}
	m.sent = append(m.sent, tx)
	var sig solana.Signature
	sig[0] = byte(len(m.sent))
	return sig, nil
}

func (m *mockRPCClient) GetSignatureStatuses(ctx context.Context, sigs ...solana.Signature) (*rpc.GetSignatureStatusesResult, error) {
	statuses := make([]*rpc.SignatureStatusesResult, len(sigs))
	for i := range sigs {
		statuses[i] = &rpc.SignatureStatusesResult{
			ConfirmationStatus: rpc.ConfirmationStatusFinalized,
		}
	}
	return &rpc.GetSignatureStatusesResult{Value: statuses}, nil
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// newTestClient wraps a mock with fast retry timing.
func newTestClient(mock RPCClient, endpoint string) *Client {
	c := NewClient(mock, endpoint, nil, testLogger())
	c.retryBase = 0
	c.confirmPoll = 0
	return c
}

// testFixture bundles a Service, its primary mock and the identities
// used across tests.
type testFixture struct {
	svc      *Service
	mock     *mockRPCClient
	treasury solana.PrivateKey
	mint     solana.PublicKey
}

func newTestService(t *testing.T, verifierMocks ...*mockRPCClient) *testFixture {
	t.Helper()

	mock := newMockRPC()
	treasury := solana.NewWallet().PrivateKey
	mint := solana.NewWallet().PublicKey()

	// The treasury is well funded unless a test says otherwise.
	mock.solBalances[treasury.PublicKey()] = 10 * LamportsPerSOL

	verifiers := make([]*Client, len(verifierMocks))
	for i, vm := range verifierMocks {
		verifiers[i] = newTestClient(vm, fmt.Sprintf("verifier-%d", i))
	}

	svc, err := NewService(ServiceConfig{
		Client:              newTestClient(mock, "primary"),
		VerificationClients: verifiers,
		Treasury:            treasury,
		Mint:                mint,
		Logger:              testLogger(),
	})
	require.NoError(t, err)

	return &testFixture{svc: svc, mock: mock, treasury: treasury, mint: mint}
}

// ata resolves the fixture mint's token account for an owner.
func (f *testFixture) ata(t *testing.T, owner solana.PublicKey) solana.PublicKey {
	t.Helper()
	ata, _, err := solana.FindAssociatedTokenAddress(owner, f.mint)
	require.NoError(t, err)
	return ata
}
