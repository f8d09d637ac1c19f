package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/chainsafe/earn-bid/internal/metrics"
	"github.com/chainsafe/earn-bid/pkg/amount"
	apperrors "github.com/chainsafe/earn-bid/pkg/app/errors"
	"github.com/chainsafe/earn-bid/pkg/approval"
	"github.com/chainsafe/earn-bid/pkg/bid"
	"github.com/chainsafe/earn-bid/pkg/config"
	"github.com/chainsafe/earn-bid/pkg/earn"
	"github.com/chainsafe/earn-bid/pkg/ethereum"
	"github.com/chainsafe/earn-bid/pkg/wallet"
)

var (
	ErrWorkflowNotFound = errors.New("bid workflow not found")
	ErrInvalidRequest   = errors.New("invalid bid request")
)

// Wallet is the connectable session shared by every workflow.
type Wallet interface {
	wallet.Session
	Connect() error
	Disconnect()
}

// OpenRequest opens a workflow for one earn contract.
type OpenRequest struct {
	EarnContract   earn.Contract `json:"earn_contract"`
	EarnContractID string        `json:"earn_contract_id"`
	Network        string        `json:"network"`
}

// View is a workflow snapshot plus the modal requests it made to the host.
type View struct {
	ID string `json:"id"`
	bid.Snapshot
	Modal       *bid.ModalSpec `json:"modal,omitempty"`
	ModalClosed bool           `json:"modal_closed"`
}

// WalletStatus reports the shared wallet session.
type WalletStatus struct {
	Active  bool   `json:"active"`
	Account string `json:"account,omitempty"`
}

// Service manages open bid workflows.
//
//go:generate mockery --name Service --output mocks --outpkg mocks --filename mock_service.go --with-expecter
type Service interface {
	Open(ctx context.Context, req *OpenRequest) (*View, error)
	Get(ctx context.Context, id string) (*View, error)
	SetAmount(ctx context.Context, id, raw string) (*View, error)
	CommitAmount(ctx context.Context, id string) (*View, error)
	RequestWallet(ctx context.Context, id string) (*View, error)
	Approve(ctx context.Context, id string) (*View, error)
	SubmitBid(ctx context.Context, id string) (*View, error)
	Close(ctx context.Context, id string) error
	ConnectWallet(ctx context.Context) (*WalletStatus, error)
	DisconnectWallet(ctx context.Context) (*WalletStatus, error)
}

// Config holds the settings shared by all workflows.
type Config struct {
	EarnAddress         common.Address
	ConfirmationTimeout time.Duration
	Labels              config.LabelsConfig
}

type bidService struct {
	cfg    Config
	wallet Wallet
	gate   bid.Approver
	ledger bid.Ledger
	logger *zap.Logger

	mu      sync.RWMutex
	entries map[string]*entry
}

// NewService creates a new bid workflow service
func NewService(cfg Config, w Wallet, gate bid.Approver, ledger bid.Ledger, logger *zap.Logger) Service {
	if cfg.ConfirmationTimeout <= 0 {
		cfg.ConfirmationTimeout = 10 * time.Minute
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &bidService{
		cfg:     cfg,
		wallet:  w,
		gate:    gate,
		ledger:  ledger,
		logger:  logger,
		entries: make(map[string]*entry),
	}
}

func (s *bidService) Open(ctx context.Context, req *OpenRequest) (*View, error) {
	if req == nil {
		return nil, apperrors.BadRequestError(ErrInvalidRequest, "request body required")
	}
	if req.EarnContract.TokenAddress == (common.Address{}) {
		return nil, apperrors.BadRequestError(ErrInvalidRequest, "earn_contract.token is required")
	}
	if req.EarnContractID == "" {
		return nil, apperrors.BadRequestError(ErrInvalidRequest, "earn_contract_id is required")
	}

	e := newEntry(uuid.NewString())
	wf, err := bid.NewWorkflow(
		bid.Target{
			Contract:   req.EarnContract,
			ContractID: req.EarnContractID,
			Network:    req.Network,
		},
		s.cfg.EarnAddress,
		s.wallet,
		s.gate,
		s.ledger,
		e,
		bid.WithLogger(s.logger.With(zap.String("workflow_id", e.id))),
		bid.WithLabels(s.cfg.Labels),
		bid.WithObserver(e.observe),
	)
	if err != nil {
		return nil, apperrors.GeneralError(err)
	}
	e.wf = wf

	s.mu.Lock()
	s.entries[e.id] = e
	s.mu.Unlock()
	metrics.OpenWorkflows.Inc()

	// a failed allowance read leaves the workflow open and not approved
	if err := wf.Mount(ctx); err != nil {
		s.logger.Warn("initial approval check failed", zap.String("workflow_id", e.id), zap.Error(err))
	}
	return e.view(), nil
}

func (s *bidService) Get(_ context.Context, id string) (*View, error) {
	e, err := s.lookup(id)
	if err != nil {
		return nil, err
	}
	return e.view(), nil
}

func (s *bidService) SetAmount(_ context.Context, id, raw string) (*View, error) {
	e, err := s.lookup(id)
	if err != nil {
		return nil, err
	}
	if err := e.wf.SetAmount(raw); err != nil {
		return nil, toServiceError(err)
	}
	return e.view(), nil
}

func (s *bidService) CommitAmount(_ context.Context, id string) (*View, error) {
	e, err := s.lookup(id)
	if err != nil {
		return nil, err
	}
	if err := e.wf.CommitAmount(); err != nil {
		return nil, toServiceError(err)
	}
	return e.view(), nil
}

func (s *bidService) RequestWallet(_ context.Context, id string) (*View, error) {
	e, err := s.lookup(id)
	if err != nil {
		return nil, err
	}
	if err := e.wf.ConnectWallet(); err != nil {
		return nil, toServiceError(err)
	}
	return e.view(), nil
}

func (s *bidService) Approve(ctx context.Context, id string) (*View, error) {
	e, err := s.lookup(id)
	if err != nil {
		return nil, err
	}
	if err := s.runUntilInFlight(ctx, e, e.wf.Approve); err != nil {
		return nil, toServiceError(err)
	}
	return e.view(), nil
}

func (s *bidService) SubmitBid(ctx context.Context, id string) (*View, error) {
	e, err := s.lookup(id)
	if err != nil {
		return nil, err
	}
	if err := s.runUntilInFlight(ctx, e, e.wf.SubmitBid); err != nil {
		return nil, toServiceError(err)
	}
	return e.view(), nil
}

func (s *bidService) Close(_ context.Context, id string) error {
	s.mu.Lock()
	_, ok := s.entries[id]
	delete(s.entries, id)
	s.mu.Unlock()
	if !ok {
		return apperrors.ResourceNotFoundError(ErrWorkflowNotFound, "bid workflow not found")
	}
	metrics.OpenWorkflows.Dec()
	return nil
}

func (s *bidService) ConnectWallet(ctx context.Context) (*WalletStatus, error) {
	if err := s.wallet.Connect(); err != nil {
		return nil, apperrors.ConflictError(err, "wallet connection failed")
	}
	s.recheckApprovals(ctx)
	return s.walletStatus(), nil
}

func (s *bidService) DisconnectWallet(_ context.Context) (*WalletStatus, error) {
	s.wallet.Disconnect()
	return s.walletStatus(), nil
}

// runUntilInFlight starts a blocking write in the background, bounded by the
// confirmation timeout. It returns once the transaction is in flight, or with
// the command's error if it finished first. Launches on one workflow are
// serialized so the in-flight transition observed is always this command's.
func (s *bidService) runUntilInFlight(ctx context.Context, e *entry, op func(context.Context) error) error {
	e.launch.Lock()
	defer e.launch.Unlock()

	started, stop := e.awaitInFlight()
	defer stop()
	done := make(chan error, 1)
	go func() {
		bgCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.cfg.ConfirmationTimeout)
		defer cancel()
		done <- op(bgCtx)
	}()

	select {
	case err := <-done:
		return err
	case <-started:
		select {
		case err := <-done:
			return err
		default:
			return nil
		}
	}
}

// recheckApprovals refreshes the allowance of every idle workflow after the
// wallet connects.
func (s *bidService) recheckApprovals(ctx context.Context) {
	s.mu.RLock()
	entries := make([]*entry, 0, len(s.entries))
	for _, e := range s.entries {
		entries = append(entries, e)
	}
	s.mu.RUnlock()

	for _, e := range entries {
		if err := e.wf.Mount(ctx); err != nil {
			s.logger.Debug("approval recheck skipped", zap.String("workflow_id", e.id), zap.Error(err))
		}
	}
}

func (s *bidService) walletStatus() *WalletStatus {
	st := &WalletStatus{Active: s.wallet.IsActive()}
	if st.Active {
		st.Account = s.wallet.AccountAddress().Hex()
	}
	return st
}

func (s *bidService) lookup(id string) (*entry, error) {
	s.mu.RLock()
	e, ok := s.entries[id]
	s.mu.RUnlock()
	if !ok {
		return nil, apperrors.ResourceNotFoundError(ErrWorkflowNotFound, "bid workflow not found")
	}
	return e, nil
}

func toServiceError(err error) error {
	switch {
	case errors.Is(err, amount.ErrInvalidAmount):
		return apperrors.BadRequestError(err, "invalid amount")
	case errors.Is(err, earn.ErrInvalidContractID):
		return apperrors.BadRequestError(err, "invalid earn contract id")
	case errors.Is(err, wallet.ErrNoActiveSession):
		return apperrors.ConflictError(err, "wallet not connected")
	case errors.Is(err, bid.ErrApprovalRequired):
		return apperrors.ConflictError(err, "token approval required")
	case errors.Is(err, bid.ErrTransactionInFlight):
		return apperrors.ConflictError(err, "transaction in flight")
	case errors.Is(err, bid.ErrAmountChanged):
		return apperrors.ConflictError(err, "amount changed during submission")
	case errors.Is(err, bid.ErrCheckInProgress):
		return apperrors.ConflictError(err, "approval check in progress")
	case errors.Is(err, bid.ErrWorkflowComplete):
		return apperrors.ConflictError(err, "bid already complete")
	case errors.Is(err, approval.ErrLedgerRead):
		return apperrors.DependencyFailureError(err, "ledger unavailable")
	case errors.Is(err, ethereum.ErrTransactionFailed):
		return apperrors.DependencyFailureError(err, fmt.Sprintf("transaction failed: %s", txReason(err)))
	default:
		return apperrors.GeneralError(err)
	}
}

func txReason(err error) string {
	var txErr *ethereum.TxError
	if errors.As(err, &txErr) {
		return txErr.Reason
	}
	return bid.ReasonUnknown
}

// entry is one open workflow and the host state it reports to.
type entry struct {
	id string
	wf *bid.Workflow

	// launch is held while a write is starting
	launch sync.Mutex

	mu          sync.Mutex
	modal       *bid.ModalSpec
	modalClosed bool
	waiters     []chan struct{}
}

func newEntry(id string) *entry {
	return &entry{id: id}
}

// OpenModal records the modal request for the client to render.
func (e *entry) OpenModal(spec bid.ModalSpec) {
	e.mu.Lock()
	e.modal = &spec
	e.mu.Unlock()
}

// CloseModal records that the interaction is finished.
func (e *entry) CloseModal() {
	e.mu.Lock()
	e.modal = nil
	e.modalClosed = true
	e.mu.Unlock()
}

func (e *entry) observe(st bid.Status) {
	if !st.State.InFlight() {
		return
	}
	e.mu.Lock()
	waiters := e.waiters
	e.waiters = nil
	e.mu.Unlock()
	for _, ch := range waiters {
		close(ch)
	}
}

// awaitInFlight returns a channel closed on the next in-flight transition and
// a func that unregisters it.
func (e *entry) awaitInFlight() (<-chan struct{}, func()) {
	ch := make(chan struct{})
	e.mu.Lock()
	e.waiters = append(e.waiters, ch)
	e.mu.Unlock()

	return ch, func() {
		e.mu.Lock()
		defer e.mu.Unlock()
		for i, w := range e.waiters {
			if w == ch {
				e.waiters = append(e.waiters[:i], e.waiters[i+1:]...)
				return
			}
		}
	}
}

func (e *entry) view() *View {
	v := &View{ID: e.id, Snapshot: e.wf.Snapshot()}
	e.mu.Lock()
	if e.modal != nil {
		m := *e.modal
		v.Modal = &m
	}
	v.ModalClosed = e.modalClosed
	e.mu.Unlock()
	return v
}
