package ethereum

import (
	"context"
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
)

// ErrTransactionFailed is matched by every *TxError.
var ErrTransactionFailed = errors.New("transaction failed")

// Failure reasons carried by TxError.
const (
	ReasonSubmit   = "submit"
	ReasonReverted = "reverted"
	ReasonTimeout  = "timeout"
	ReasonWait     = "wait"
)

// Operation names used for transactions, logs and metrics.
const (
	OpApprove   = "approve"
	OpMakeOffer = "makeOffer"
)

// TxError describes a write that could not be submitted or was not confirmed.
type TxError struct {
	Op     string
	Reason string
	TxHash common.Hash
	Err    error
}

func (e *TxError) Error() string {
	msg := fmt.Sprintf("%s transaction failed (%s)", e.Op, e.Reason)
	if e.TxHash != (common.Hash{}) {
		msg += " tx=" + e.TxHash.Hex()
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

// Unwrap returns the underlying error
func (e *TxError) Unwrap() error { return e.Err }

// Is reports true for ErrTransactionFailed.
func (e *TxError) Is(target error) bool { return target == ErrTransactionFailed }

// TxHandle is a submitted, not yet confirmed transaction.
type TxHandle interface {
	Hash() common.Hash
	// Wait blocks until the transaction is mined. A reverted receipt is an error.
	Wait(ctx context.Context) error
}
