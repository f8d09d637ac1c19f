package service

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"math/big"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	apperrors "github.com/chainsafe/earn-bid/pkg/app/errors"
	"github.com/chainsafe/earn-bid/pkg/approval"
	"github.com/chainsafe/earn-bid/pkg/bid"
	"github.com/chainsafe/earn-bid/pkg/config"
	"github.com/chainsafe/earn-bid/pkg/ethereum"
	"github.com/chainsafe/earn-bid/pkg/wallet"
)

var (
	earnAddr = common.HexToAddress("0x3000000000000000000000000000000000000003")
	userAddr = common.HexToAddress("0x2000000000000000000000000000000000000002")
)

const openBody = `{
	"earn_contract": {
		"token": "0x1000000000000000000000000000000000000001",
		"token_ticker": "USDC",
		"start_time": 1609459200,
		"contract_length": 86400,
		"base_redemption": "1000",
		"alta_redemption": "250"
	},
	"earn_contract_id": "0x42",
	"network": "ethereum"
}`

type keySession struct{}

func (keySession) IsActive() bool { return true }

func (keySession) AccountAddress() common.Address { return userAddr }

func (keySession) Signer(context.Context) (*bind.TransactOpts, error) {
	return &bind.TransactOpts{From: userAddr}, nil
}

type instantTx struct {
	hash    common.Hash
	err     error
	release chan struct{}
}

func (t *instantTx) Hash() common.Hash { return t.hash }

func (t *instantTx) Wait(ctx context.Context) error {
	if t.release != nil {
		select {
		case <-t.release:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return t.err
}

// fakeLedger implements both bid.Approver and bid.Ledger
type fakeLedger struct {
	mu        sync.Mutex
	allowance *big.Int
	readErr   error
	offerTx   *instantTx
	offers    []*big.Int
}

func (f *fakeLedger) Check(context.Context, common.Address, common.Address, common.Address) (approval.State, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.readErr != nil {
		return approval.State{}, errors.Join(approval.ErrLedgerRead, f.readErr)
	}
	a := new(big.Int)
	if f.allowance != nil {
		a.Set(f.allowance)
	}
	return approval.State{Approved: a.Sign() > 0, Allowance: a}, nil
}

func (f *fakeLedger) Approve(context.Context, common.Address, common.Address) (ethereum.TxHandle, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.allowance = approval.MaxAllowance()
	return &instantTx{hash: common.HexToHash("0xa1")}, nil
}

func (f *fakeLedger) MakeOffer(
	_ context.Context,
	_ common.Address,
	_, units *big.Int) (ethereum.TxHandle, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.offers = append(f.offers, units)
	if f.offerTx != nil {
		return f.offerTx, nil
	}
	return &instantTx{hash: common.HexToHash("0xb1")}, nil
}

type testEnv struct {
	handler http.Handler
	ledger  *fakeLedger
	wallet  *wallet.Manager
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	ledger := &fakeLedger{}
	mgr := wallet.NewManager(func() (wallet.Session, error) { return keySession{}, nil })
	svc := NewService(Config{
		EarnAddress:         earnAddr,
		ConfirmationTimeout: time.Second,
		Labels:              config.DefaultLabels(),
	}, mgr, ledger, ledger, zap.NewNop())

	r := chi.NewRouter()
	RegisterRoutes(r, NewLog(svc, zap.NewNop()), zap.NewNop())
	return &testEnv{handler: r, ledger: ledger, wallet: mgr}
}

func (e *testEnv) do(t *testing.T, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Buffer
	if body == "" {
		reader = &bytes.Buffer{}
	} else {
		reader = bytes.NewBufferString(body)
	}
	req := httptest.NewRequest(method, path, reader)
	rec := httptest.NewRecorder()
	e.handler.ServeHTTP(rec, req)
	return rec
}

func (e *testEnv) open(t *testing.T) *View {
	t.Helper()
	rec := e.do(t, http.MethodPost, "/bids", openBody)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	return decodeView(t, rec)
}

func (e *testEnv) get(t *testing.T, id string) *View {
	t.Helper()
	rec := e.do(t, http.MethodGet, "/bids/"+id, "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	return decodeView(t, rec)
}

// decodeView parses a JSON workflow response back into a View.
func decodeView(t *testing.T, rec *httptest.ResponseRecorder) *View {
	t.Helper()
	var raw struct {
		ID     string `json:"id"`
		Status struct {
			State  string `json:"state"`
			Reason string `json:"reason"`
		} `json:"status"`
		Affordance  string         `json:"affordance"`
		ActionLabel string         `json:"action_label"`
		Approved    bool           `json:"approved"`
		Amount      bid.AmountView `json:"amount"`
		TxHash      string         `json:"tx_hash"`
		Contract    struct {
			CloseDate string `json:"close_date"`
			Network   string `json:"network"`
		} `json:"contract"`
		Modal       *bid.ModalSpec `json:"modal"`
		ModalClosed bool           `json:"modal_closed"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &raw))

	v := &View{ID: raw.ID, Modal: raw.Modal, ModalClosed: raw.ModalClosed}
	v.Status.State = parseState(t, raw.Status.State)
	v.Status.Reason = raw.Status.Reason
	v.Affordance = parseAffordance(t, raw.Affordance)
	v.ActionLabel = raw.ActionLabel
	v.Approved = raw.Approved
	v.Amount = raw.Amount
	v.TxHash = raw.TxHash
	v.Contract.CloseDate = raw.Contract.CloseDate
	v.Contract.Network = raw.Contract.Network
	return v
}

func parseState(t *testing.T, s string) bid.State {
	for st := bid.StateIdle; st <= bid.StateFailed; st++ {
		if st.String() == s {
			return st
		}
	}
	t.Fatalf("unknown state %q", s)
	return bid.StateIdle
}

func parseAffordance(t *testing.T, s string) bid.Affordance {
	for a := bid.AffordanceNone; a <= bid.AffordanceSubmitBid; a++ {
		if a.String() == s {
			return a
		}
	}
	t.Fatalf("unknown affordance %q", s)
	return bid.AffordanceNone
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) (string, int) {
	t.Helper()
	var got struct {
		Error string `json:"error"`
		Code  int    `json:"code"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	return got.Error, got.Code
}

func TestBidHTTP_OpenInvalidJSON(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodPost, "/bids", "{invalid")

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	msg, code := decodeError(t, rec)
	assert.Equal(t, "invalid JSON", msg)
	assert.Equal(t, http.StatusBadRequest, code)
}

func TestBidHTTP_OpenMissingToken(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodPost, "/bids", `{"earn_contract_id": "0x1"}`)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	msg, _ := decodeError(t, rec)
	assert.Equal(t, "earn_contract.token is required", msg)
}

func TestBidHTTP_OpenWithoutWallet(t *testing.T) {
	env := newTestEnv(t)

	view := env.open(t)

	assert.NotEmpty(t, view.ID)
	assert.Equal(t, bid.StateIdle, view.Status.State)
	assert.Equal(t, bid.AffordanceConnectWallet, view.Affordance)
	assert.Equal(t, "Connect to Wallet", view.ActionLabel)
	assert.Equal(t, "01-02-2021", view.Contract.CloseDate)
	assert.Equal(t, "Ethereum", view.Contract.Network)
}

func TestBidHTTP_UnknownWorkflow(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodGet, "/bids/does-not-exist", "")

	assert.Equal(t, http.StatusNotFound, rec.Code)
	msg, _ := decodeError(t, rec)
	assert.Equal(t, "bid workflow not found", msg)
}

func TestBidHTTP_RequestWalletRecordsModal(t *testing.T) {
	env := newTestEnv(t)
	view := env.open(t)

	rec := env.do(t, http.MethodPost, "/bids/"+view.ID+"/connect", "")

	require.Equal(t, http.StatusOK, rec.Code)
	got := decodeView(t, rec)
	require.NotNil(t, got.Modal)
	assert.Equal(t, bid.ModalSpec{Title: "Select Wallet", Size: "md", Component: "select-wallet"}, *got.Modal)
}

func TestBidHTTP_SubmitWithoutWallet(t *testing.T) {
	env := newTestEnv(t)
	view := env.open(t)

	rec := env.do(t, http.MethodPost, "/bids/"+view.ID+"/submit", "")

	assert.Equal(t, http.StatusConflict, rec.Code)
	msg, _ := decodeError(t, rec)
	assert.Equal(t, "wallet not connected", msg)
	assert.Equal(t, bid.AffordanceConnectWallet, env.get(t, view.ID).Affordance)
	assert.Empty(t, env.ledger.offers)
}

func TestBidHTTP_WalletConnectRechecksApproval(t *testing.T) {
	env := newTestEnv(t)
	view := env.open(t)

	rec := env.do(t, http.MethodPost, "/wallet/connect", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"active":true`)

	assert.Equal(t, bid.AffordanceApprove, env.get(t, view.ID).Affordance)

	rec = env.do(t, http.MethodPost, "/wallet/disconnect", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"active":false`)
	assert.Equal(t, bid.AffordanceConnectWallet, env.get(t, view.ID).Affordance)
}

func TestBidHTTP_FullBid(t *testing.T) {
	env := newTestEnv(t)
	require.NoError(t, env.wallet.Connect())
	view := env.open(t)
	require.Equal(t, bid.AffordanceApprove, view.Affordance)

	rec := env.do(t, http.MethodPost, "/bids/"+view.ID+"/approve", "")
	require.Equal(t, http.StatusAccepted, rec.Code, rec.Body.String())
	require.Eventually(t, func() bool {
		return env.get(t, view.ID).Affordance == bid.AffordanceSubmitBid
	}, time.Second, 5*time.Millisecond)

	rec = env.do(t, http.MethodPut, "/bids/"+view.ID+"/amount", `{"amount": "10.5"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	rec = env.do(t, http.MethodPost, "/bids/"+view.ID+"/amount/commit", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "10500000000000000000", decodeView(t, rec).Amount.Committed)

	rec = env.do(t, http.MethodPost, "/bids/"+view.ID+"/submit", "")
	require.Equal(t, http.StatusAccepted, rec.Code, rec.Body.String())

	require.Eventually(t, func() bool {
		return env.get(t, view.ID).Status.State == bid.StateComplete
	}, time.Second, 5*time.Millisecond)

	final := env.get(t, view.ID)
	assert.True(t, final.ModalClosed)
	assert.Equal(t, bid.AffordanceNone, final.Affordance)
	assert.Equal(t, common.HexToHash("0xb1").Hex(), final.TxHash)

	rec = env.do(t, http.MethodPost, "/bids/"+view.ID+"/submit", "")
	assert.Equal(t, http.StatusConflict, rec.Code)
	env.ledger.mu.Lock()
	assert.Len(t, env.ledger.offers, 1)
	env.ledger.mu.Unlock()
}

func TestBidHTTP_SubmitInvalidAmount(t *testing.T) {
	env := newTestEnv(t)
	env.ledger.allowance = big.NewInt(1)
	require.NoError(t, env.wallet.Connect())
	view := env.open(t)

	rec := env.do(t, http.MethodPut, "/bids/"+view.ID+"/amount", `{"amount": "abc"}`)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = env.do(t, http.MethodPost, "/bids/"+view.ID+"/submit", "")

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	msg, _ := decodeError(t, rec)
	assert.Equal(t, "invalid amount", msg)
	got := env.get(t, view.ID)
	assert.True(t, got.Amount.Invalid)
	assert.Equal(t, bid.StateIdle, got.Status.State)
}

func TestBidHTTP_SubmitWhileInFlight(t *testing.T) {
	env := newTestEnv(t)
	env.ledger.allowance = big.NewInt(1)
	release := make(chan struct{})
	env.ledger.offerTx = &instantTx{hash: common.HexToHash("0xb2"), release: release}
	require.NoError(t, env.wallet.Connect())
	view := env.open(t)
	env.do(t, http.MethodPut, "/bids/"+view.ID+"/amount", `{"amount": "1"}`)

	rec := env.do(t, http.MethodPost, "/bids/"+view.ID+"/submit", "")
	require.Equal(t, http.StatusAccepted, rec.Code)
	assert.Equal(t, bid.StateAwaitingBid, decodeView(t, rec).Status.State)

	rec = env.do(t, http.MethodPost, "/bids/"+view.ID+"/submit", "")
	assert.Equal(t, http.StatusConflict, rec.Code)
	msg, _ := decodeError(t, rec)
	assert.Equal(t, "transaction in flight", msg)

	close(release)
	require.Eventually(t, func() bool {
		return env.get(t, view.ID).Status.State == bid.StateComplete
	}, time.Second, 5*time.Millisecond)
}

func TestBidHTTP_ConcurrentSubmitsAcceptOnlyOne(t *testing.T) {
	env := newTestEnv(t)
	env.ledger.allowance = big.NewInt(1)
	release := make(chan struct{})
	env.ledger.offerTx = &instantTx{hash: common.HexToHash("0xb3"), release: release}
	require.NoError(t, env.wallet.Connect())
	view := env.open(t)
	env.do(t, http.MethodPut, "/bids/"+view.ID+"/amount", `{"amount": "1"}`)

	const requests = 8
	codes := make(chan int, requests)
	var wg sync.WaitGroup
	for i := 0; i < requests; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			codes <- env.do(t, http.MethodPost, "/bids/"+view.ID+"/submit", "").Code
		}()
	}
	wg.Wait()
	close(codes)

	counts := map[int]int{}
	for code := range codes {
		counts[code]++
	}
	assert.Equal(t, map[int]int{http.StatusAccepted: 1, http.StatusConflict: requests - 1}, counts)

	close(release)
	require.Eventually(t, func() bool {
		return env.get(t, view.ID).Status.State == bid.StateComplete
	}, time.Second, 5*time.Millisecond)
	env.ledger.mu.Lock()
	assert.Len(t, env.ledger.offers, 1)
	env.ledger.mu.Unlock()
}

func TestBidHTTP_LedgerUnavailableOnOpen(t *testing.T) {
	env := newTestEnv(t)
	env.ledger.readErr = errors.New("rpc down")
	require.NoError(t, env.wallet.Connect())

	view := env.open(t)

	assert.False(t, view.Approved)
	assert.Equal(t, bid.AffordanceApprove, view.Affordance)
}

func TestBidHTTP_Close(t *testing.T) {
	env := newTestEnv(t)
	view := env.open(t)

	rec := env.do(t, http.MethodDelete, "/bids/"+view.ID, "")
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = env.do(t, http.MethodGet, "/bids/"+view.ID, "")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = env.do(t, http.MethodDelete, "/bids/"+view.ID, "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestToServiceError(t *testing.T) {
	tests := []struct {
		err     error
		cat     apperrors.Category
		message string
	}{
		{
			err:     &ethereum.TxError{Op: ethereum.OpMakeOffer, Reason: ethereum.ReasonReverted},
			cat:     apperrors.CategoryDependencyFailure,
			message: "transaction failed: reverted",
		},
		{err: errors.Join(approval.ErrLedgerRead, errors.New("eof")), cat: apperrors.CategoryDependencyFailure, message: "ledger unavailable"},
		{err: bid.ErrApprovalRequired, cat: apperrors.CategoryDataConflict, message: "token approval required"},
		{err: bid.ErrWorkflowComplete, cat: apperrors.CategoryDataConflict, message: "bid already complete"},
		{err: bid.ErrAmountChanged, cat: apperrors.CategoryDataConflict, message: "amount changed during submission"},
		{err: errors.New("surprise"), cat: apperrors.CategoryGeneralError, message: "Internal Server Error"},
	}

	for _, tt := range tests {
		t.Run(tt.message, func(t *testing.T) {
			var svcErr *apperrors.ServiceError
			require.True(t, errors.As(toServiceError(tt.err), &svcErr))
			assert.Equal(t, tt.cat, svcErr.Category)
			assert.Equal(t, tt.message, svcErr.Message)
		})
	}
}
