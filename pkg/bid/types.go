package bid

import (
	"errors"
	"math/big"

	"github.com/chainsafe/earn-bid/pkg/amount"
	"github.com/chainsafe/earn-bid/pkg/earn"
)

var (
	// ErrTransactionInFlight is returned for write commands issued while an
	// approval or bid transaction is awaiting confirmation.
	ErrTransactionInFlight = errors.New("transaction in flight")
	// ErrWorkflowComplete is returned for commands issued after the bid was confirmed.
	ErrWorkflowComplete = errors.New("bid workflow complete")
	// ErrCheckInProgress is returned for write commands issued while the
	// allowance is being read.
	ErrCheckInProgress = errors.New("approval check in progress")
	// ErrApprovalRequired is returned when a bid is submitted before the token is approved.
	ErrApprovalRequired = errors.New("token approval required")
	// ErrAmountChanged is returned when the amount is edited while a submission
	// is converting it.
	ErrAmountChanged = errors.New("amount changed during submission")
)

// State is the workflow position.
type State int

const (
	StateIdle State = iota
	StateCheckingApproval
	StateAwaitingApproval
	StateAwaitingBid
	StateComplete
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateCheckingApproval:
		return "checking_approval"
	case StateAwaitingApproval:
		return "awaiting_approval"
	case StateAwaitingBid:
		return "awaiting_bid"
	case StateComplete:
		return "complete"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// MarshalText renders the state name in JSON.
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// InFlight reports whether a write transaction is awaiting confirmation.
func (s State) InFlight() bool {
	return s == StateAwaitingApproval || s == StateAwaitingBid
}

// Status is the observable workflow status. Reason is set only for StateFailed.
type Status struct {
	State  State  `json:"state"`
	Reason string `json:"reason,omitempty"`
}

// Affordance is the single action the host may offer the user.
type Affordance int

const (
	AffordanceNone Affordance = iota
	AffordanceConnectWallet
	AffordanceApprove
	AffordanceSubmitBid
)

func (a Affordance) String() string {
	switch a {
	case AffordanceConnectWallet:
		return "connect_wallet"
	case AffordanceApprove:
		return "approve"
	case AffordanceSubmitBid:
		return "submit_bid"
	default:
		return "none"
	}
}

// MarshalText renders the affordance name in JSON.
func (a Affordance) MarshalText() ([]byte, error) {
	return []byte(a.String()), nil
}

// ModalSpec describes a modal the host should open.
type ModalSpec struct {
	Title     string `json:"title"`
	Size      string `json:"size"`
	Component string `json:"component"`
}

// Host receives modal requests from the workflow.
type Host interface {
	OpenModal(spec ModalSpec)
	CloseModal()
}

// Amount is the two-phase bid amount: raw input and, after a successful
// commit, its base-unit value. Editing the raw value discards the committed one.
type Amount struct {
	raw       string
	committed *big.Int
	invalid   bool
}

// Set replaces the raw input and clears any committed value.
func (a *Amount) Set(raw string) {
	a.raw = raw
	a.committed = nil
	a.invalid = false
}

// Commit converts the raw input. On failure the amount is flagged invalid.
func (a *Amount) Commit() error {
	units, err := amount.ToBaseUnits(a.raw)
	return a.store(units, err)
}

// store records the outcome of converting the current raw input.
func (a *Amount) store(units *big.Int, err error) error {
	if err != nil {
		a.committed = nil
		a.invalid = true
		return err
	}
	a.committed = units
	a.invalid = false
	return nil
}

// Raw returns the input as entered.
func (a Amount) Raw() string { return a.raw }

// Committed returns a copy of the committed base-unit value, or nil.
func (a Amount) Committed() *big.Int {
	if a.committed == nil {
		return nil
	}
	return new(big.Int).Set(a.committed)
}

// Invalid reports whether the last commit or submission rejected the amount.
func (a Amount) Invalid() bool { return a.invalid }

// Target identifies what is being bid on.
type Target struct {
	Contract earn.Contract
	// ContractID is the routed identifier, "0x" followed by the decimal id.
	ContractID string
	Network    string
}

// AmountView is the JSON form of Amount.
type AmountView struct {
	Raw       string `json:"raw"`
	Committed string `json:"committed,omitempty"`
	Invalid   bool   `json:"invalid"`
}

// Snapshot is a consistent read of everything the host renders.
type Snapshot struct {
	Status            Status       `json:"status"`
	Affordance        Affordance   `json:"affordance"`
	ActionLabel       string       `json:"action_label,omitempty"`
	Approved          bool         `json:"approved"`
	Allowance         string       `json:"allowance,omitempty"`
	Account           string       `json:"account,omitempty"`
	Amount            AmountView   `json:"amount"`
	AmountLabel       string       `json:"amount_label"`
	ContractIDInvalid bool         `json:"contract_id_invalid"`
	TxHash            string       `json:"tx_hash,omitempty"`
	LastError         string       `json:"last_error,omitempty"`
	Contract          earn.Summary `json:"contract"`
}
