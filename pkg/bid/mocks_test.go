package bid

import (
	"context"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/mock"

	"github.com/chainsafe/earn-bid/pkg/approval"
	"github.com/chainsafe/earn-bid/pkg/ethereum"
	"github.com/chainsafe/earn-bid/pkg/wallet"
)

type fakeSession struct {
	mu      sync.Mutex
	active  bool
	address common.Address
}

func (s *fakeSession) IsActive() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.active
}

func (s *fakeSession) AccountAddress() common.Address {
	if !s.IsActive() {
		return common.Address{}
	}
	return s.address
}

func (s *fakeSession) Signer(context.Context) (*bind.TransactOpts, error) {
	if !s.IsActive() {
		return nil, wallet.ErrNoActiveSession
	}
	return &bind.TransactOpts{From: s.address}, nil
}

func (s *fakeSession) setActive(active bool) {
	s.mu.Lock()
	s.active = active
	s.mu.Unlock()
}

// MockGate is a mock implementation of Approver
type MockGate struct {
	CheckFunc   func(ctx context.Context, token, owner, spender common.Address) (approval.State, error)
	ApproveFunc func(ctx context.Context, token, spender common.Address) (ethereum.TxHandle, error)

	mu       sync.Mutex
	checks   int
	approves int
}

func (m *MockGate) Check(ctx context.Context, token, owner, spender common.Address) (approval.State, error) {
	m.mu.Lock()
	m.checks++
	m.mu.Unlock()
	if m.CheckFunc != nil {
		return m.CheckFunc(ctx, token, owner, spender)
	}
	return approval.State{Allowance: new(big.Int)}, nil
}

func (m *MockGate) Approve(ctx context.Context, token, spender common.Address) (ethereum.TxHandle, error) {
	m.mu.Lock()
	m.approves++
	m.mu.Unlock()
	if m.ApproveFunc != nil {
		return m.ApproveFunc(ctx, token, spender)
	}
	return &fakeTx{}, nil
}

func (m *MockGate) checkCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.checks
}

func (m *MockGate) approveCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.approves
}

// MockLedger is a mock implementation of Ledger
type MockLedger struct {
	MakeOfferFunc func(ctx context.Context, earn common.Address, contractID, amount *big.Int) (ethereum.TxHandle, error)

	mu     sync.Mutex
	offers int
}

func (m *MockLedger) MakeOffer(
	ctx context.Context,
	earn common.Address,
	contractID, amount *big.Int) (ethereum.TxHandle, error) {
	m.mu.Lock()
	m.offers++
	m.mu.Unlock()
	if m.MakeOfferFunc != nil {
		return m.MakeOfferFunc(ctx, earn, contractID, amount)
	}
	return &fakeTx{}, nil
}

func (m *MockLedger) offerCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.offers
}

// fakeTx resolves to err, after release is closed when set.
type fakeTx struct {
	hash    common.Hash
	err     error
	release chan struct{}
}

func (t *fakeTx) Hash() common.Hash { return t.hash }

func (t *fakeTx) Wait(ctx context.Context) error {
	if t.release != nil {
		select {
		case <-t.release:
		case <-ctx.Done():
			return &ethereum.TxError{Reason: ethereum.ReasonTimeout, TxHash: t.hash, Err: ctx.Err()}
		}
	}
	return t.err
}

type mockHost struct {
	mock.Mock
}

func (h *mockHost) OpenModal(spec ModalSpec) {
	h.Called(spec)
}

func (h *mockHost) CloseModal() {
	h.Called()
}
