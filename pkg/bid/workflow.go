// Package bid implements the approval and bid state machine for placing an
// offer on an earn contract.
package bid

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"github.com/chainsafe/earn-bid/internal/metrics"
	"github.com/chainsafe/earn-bid/pkg/amount"
	"github.com/chainsafe/earn-bid/pkg/approval"
	"github.com/chainsafe/earn-bid/pkg/config"
	"github.com/chainsafe/earn-bid/pkg/earn"
	"github.com/chainsafe/earn-bid/pkg/ethereum"
	"github.com/chainsafe/earn-bid/pkg/wallet"
)

const (
	walletModalSize      = "md"
	walletModalComponent = "select-wallet"
)

// Reason recorded when a write fails for anything other than a *ethereum.TxError.
const (
	ReasonNoSession = "no_session"
	ReasonUnknown   = "unknown"
)

// Approver checks and grants the token allowance.
type Approver interface {
	Check(ctx context.Context, token, owner, spender common.Address) (approval.State, error)
	Approve(ctx context.Context, token, spender common.Address) (ethereum.TxHandle, error)
}

// Ledger submits the bid.
type Ledger interface {
	MakeOffer(ctx context.Context, earnContract common.Address, contractID, amount *big.Int) (ethereum.TxHandle, error)
}

// Workflow drives a single bid from approval to confirmed offer. It is safe
// for concurrent use; the lock is never held while talking to the ledger.
type Workflow struct {
	target      Target
	earnAddress common.Address
	session     wallet.Session
	gate        Approver
	ledger      Ledger
	host        Host
	labels      config.LabelsConfig
	logger      *zap.Logger
	observer    func(Status)

	mu                sync.Mutex
	status            Status
	approved          bool
	allowance         *big.Int
	amount            Amount
	contractIDInvalid bool
	txHash            common.Hash
	lastErr           error
	modalClosed       bool
}

// NewWorkflow creates an Idle workflow. earnAddress is both the allowance
// spender and the contract receiving makeOffer.
func NewWorkflow(
	target Target,
	earnAddress common.Address,
	session wallet.Session,
	gate Approver,
	ledger Ledger,
	host Host,
	opts ...Option,
) (*Workflow, error) {
	if session == nil {
		return nil, fmt.Errorf("nil wallet session")
	}
	if gate == nil {
		return nil, fmt.Errorf("nil approval gate")
	}
	if ledger == nil {
		return nil, fmt.Errorf("nil ledger")
	}
	if host == nil {
		return nil, fmt.Errorf("nil host")
	}
	s := applyOptions(opts)
	return &Workflow{
		target:      target,
		earnAddress: earnAddress,
		session:     session,
		gate:        gate,
		ledger:      ledger,
		host:        host,
		labels:      s.labels,
		logger: s.logger.With(
			zap.String("contract_id", target.ContractID),
			zap.String("token", target.Contract.TokenAddress.Hex())),
		observer: s.observer,
		status:   Status{State: StateIdle},
	}, nil
}

// Mount runs the initial approval check when a wallet is connected.
func (w *Workflow) Mount(ctx context.Context) error {
	if !w.session.IsActive() {
		return nil
	}
	return w.CheckApproval(ctx)
}

// CheckApproval reads the allowance and records whether the earn contract may
// spend the user's tokens. A failed read leaves the workflow not approved.
func (w *Workflow) CheckApproval(ctx context.Context) error {
	w.mu.Lock()
	if w.status.State == StateCheckingApproval {
		w.mu.Unlock()
		return nil
	}
	if err := w.writableLocked(); err != nil {
		w.mu.Unlock()
		return err
	}
	if !w.session.IsActive() {
		w.mu.Unlock()
		return wallet.ErrNoActiveSession
	}
	prev := w.status
	w.transitionLocked(Status{State: StateCheckingApproval})
	w.mu.Unlock()

	state, err := w.gate.Check(ctx, w.target.Contract.TokenAddress, w.session.AccountAddress(), w.earnAddress)

	w.mu.Lock()
	w.approved = state.Approved
	w.allowance = state.Allowance
	w.lastErr = err
	w.transitionLocked(prev)
	w.mu.Unlock()

	w.notify()
	return err
}

// ConnectWallet asks the host to open the wallet selection modal.
func (w *Workflow) ConnectWallet() error {
	w.mu.Lock()
	if w.status.State == StateComplete {
		w.mu.Unlock()
		return ErrWorkflowComplete
	}
	spec := ModalSpec{
		Title:     w.labels.SelectWallet,
		Size:      walletModalSize,
		Component: walletModalComponent,
	}
	w.mu.Unlock()

	w.host.OpenModal(spec)
	return nil
}

// SetAmount replaces the raw amount input, discarding any committed value.
func (w *Workflow) SetAmount(raw string) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if err := w.amountEditableLocked(); err != nil {
		return err
	}
	w.amount.Set(raw)
	return nil
}

// CommitAmount converts the raw input into base units. The conversion runs
// outside the lock; if the input is edited meanwhile, the newer edit wins and
// nothing is stored.
func (w *Workflow) CommitAmount() error {
	w.mu.Lock()
	if err := w.amountEditableLocked(); err != nil {
		w.mu.Unlock()
		return err
	}
	raw := w.amount.raw
	w.mu.Unlock()

	units, convErr := amount.ToBaseUnits(raw)

	w.mu.Lock()
	defer w.mu.Unlock()
	if err := w.amountEditableLocked(); err != nil {
		return err
	}
	if w.amount.raw != raw {
		return convErr
	}
	if err := w.amount.store(units, convErr); err != nil {
		metrics.ValidationErrors.WithLabelValues("amount").Inc()
		return err
	}
	return nil
}

func (w *Workflow) amountEditableLocked() error {
	switch w.status.State {
	case StateComplete:
		return ErrWorkflowComplete
	case StateAwaitingBid:
		return ErrTransactionInFlight
	default:
		return nil
	}
}

// Approve grants the earn contract the maximal allowance and blocks until the
// approval is mined or ctx ends.
func (w *Workflow) Approve(ctx context.Context) error {
	w.mu.Lock()
	if err := w.writableLocked(); err != nil {
		w.mu.Unlock()
		return err
	}
	if !w.session.IsActive() {
		w.mu.Unlock()
		return wallet.ErrNoActiveSession
	}
	if w.approved {
		w.mu.Unlock()
		return nil
	}
	w.transitionLocked(Status{State: StateAwaitingApproval})
	w.mu.Unlock()
	w.notify()

	tx, err := w.gate.Approve(ctx, w.target.Contract.TokenAddress, w.earnAddress)
	if err == nil {
		w.recordTx(tx)
		err = tx.Wait(ctx)
	}

	w.mu.Lock()
	if err != nil {
		w.failLocked(err)
	} else {
		w.approved = true
		w.lastErr = nil
		w.transitionLocked(Status{State: StateIdle})
	}
	w.mu.Unlock()
	w.notify()

	if err != nil {
		w.logger.Warn("approval failed", zap.Error(err))
		return err
	}
	w.logger.Info("approval confirmed")
	return nil
}

// SubmitBid places the committed amount as an offer on the earn contract and
// blocks until it is mined or ctx ends. An uncommitted amount is committed
// first. Validation failures leave the state unchanged.
func (w *Workflow) SubmitBid(ctx context.Context) error {
	w.mu.Lock()
	raw, pending := w.amount.raw, w.amount.committed == nil
	w.mu.Unlock()

	var (
		units   *big.Int
		convErr error
	)
	if pending {
		units, convErr = amount.ToBaseUnits(raw)
	}

	w.mu.Lock()
	if err := w.writableLocked(); err != nil {
		w.mu.Unlock()
		return err
	}
	if !w.session.IsActive() {
		w.mu.Unlock()
		return wallet.ErrNoActiveSession
	}
	if !w.approved {
		w.mu.Unlock()
		return ErrApprovalRequired
	}

	if w.amount.committed == nil {
		if !pending || w.amount.raw != raw {
			// edited since the conversion above
			w.mu.Unlock()
			return ErrAmountChanged
		}
		if err := w.amount.store(units, convErr); err != nil {
			w.mu.Unlock()
			metrics.ValidationErrors.WithLabelValues("amount").Inc()
			return err
		}
	}
	units = w.amount.Committed()

	contractID, err := earn.ParseContractID(w.target.ContractID)
	if err != nil {
		w.contractIDInvalid = true
		w.mu.Unlock()
		metrics.ValidationErrors.WithLabelValues("contract_id").Inc()
		return err
	}
	w.contractIDInvalid = false
	w.transitionLocked(Status{State: StateAwaitingBid})
	w.mu.Unlock()
	w.notify()

	tx, err := w.ledger.MakeOffer(ctx, w.earnAddress, contractID, units)
	if err == nil {
		w.recordTx(tx)
		err = tx.Wait(ctx)
	}

	w.mu.Lock()
	closeModal := false
	if err != nil {
		w.failLocked(err)
	} else {
		w.lastErr = nil
		w.transitionLocked(Status{State: StateComplete})
		closeModal = !w.modalClosed
		w.modalClosed = true
	}
	w.mu.Unlock()
	w.notify()

	if err != nil {
		w.logger.Warn("bid failed", zap.Error(err))
		return err
	}
	w.logger.Info("bid confirmed",
		zap.String("contract_id", contractID.String()),
		zap.String("amount", units.String()))
	if closeModal {
		w.host.CloseModal()
	}
	return nil
}

// Status returns the current status.
func (w *Workflow) Status() Status {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.status
}

// Affordance returns the action the host may currently offer.
func (w *Workflow) Affordance() Affordance {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.affordanceLocked()
}

// Snapshot returns a consistent view of the workflow for rendering.
func (w *Workflow) Snapshot() Snapshot {
	w.mu.Lock()
	defer w.mu.Unlock()

	aff := w.affordanceLocked()
	snap := Snapshot{
		Status:      w.status,
		Affordance:  aff,
		ActionLabel: w.actionLabel(aff),
		Approved:    w.approved,
		Amount: AmountView{
			Raw:     w.amount.Raw(),
			Invalid: w.amount.Invalid(),
		},
		AmountLabel:       strings.TrimSpace(w.target.Contract.TokenTicker + " " + w.labels.BidAmount),
		ContractIDInvalid: w.contractIDInvalid,
		Contract:          w.target.Contract.Summarize(w.target.Network),
	}
	if c := w.amount.Committed(); c != nil {
		snap.Amount.Committed = c.String()
	}
	if w.allowance != nil {
		snap.Allowance = w.allowance.String()
	}
	if w.session.IsActive() {
		snap.Account = w.session.AccountAddress().Hex()
	}
	if w.txHash != (common.Hash{}) {
		snap.TxHash = w.txHash.Hex()
	}
	if w.lastErr != nil {
		snap.LastError = w.lastErr.Error()
	}
	return snap
}

func (w *Workflow) affordanceLocked() Affordance {
	switch {
	case w.status.State.InFlight(), w.status.State == StateComplete:
		return AffordanceNone
	case !w.session.IsActive():
		return AffordanceConnectWallet
	case !w.approved:
		return AffordanceApprove
	default:
		return AffordanceSubmitBid
	}
}

func (w *Workflow) actionLabel(a Affordance) string {
	switch a {
	case AffordanceConnectWallet:
		return w.labels.ConnectWallet
	case AffordanceApprove:
		return strings.TrimSpace(w.labels.Approve + " " + w.target.Contract.TokenTicker)
	case AffordanceSubmitBid:
		return w.labels.MakeBid
	default:
		return ""
	}
}

func (w *Workflow) writableLocked() error {
	switch {
	case w.status.State == StateComplete:
		return ErrWorkflowComplete
	case w.status.State.InFlight():
		return ErrTransactionInFlight
	case w.status.State == StateCheckingApproval:
		return ErrCheckInProgress
	default:
		return nil
	}
}

func (w *Workflow) transitionLocked(next Status) {
	if next.State != w.status.State {
		metrics.WorkflowTransitions.WithLabelValues(w.status.State.String(), next.State.String()).Inc()
		w.logger.Debug("workflow transition",
			zap.Stringer("from", w.status.State),
			zap.Stringer("to", next.State),
			zap.String("reason", next.Reason))
	}
	w.status = next
}

func (w *Workflow) failLocked(err error) {
	w.lastErr = err
	w.transitionLocked(Status{State: StateFailed, Reason: failureReason(err)})
}

func (w *Workflow) recordTx(tx ethereum.TxHandle) {
	w.mu.Lock()
	w.txHash = tx.Hash()
	w.mu.Unlock()
}

func (w *Workflow) notify() {
	if w.observer == nil {
		return
	}
	w.observer(w.Status())
}

func failureReason(err error) string {
	var txErr *ethereum.TxError
	switch {
	case errors.As(err, &txErr):
		return txErr.Reason
	case errors.Is(err, wallet.ErrNoActiveSession):
		return ReasonNoSession
	default:
		return ReasonUnknown
	}
}
