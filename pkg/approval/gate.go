// Package approval decides whether the earn contract may spend the user's
// tokens and issues the ERC20 approval when it may not.
package approval

import (
	"context"
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"go.uber.org/zap"

	"github.com/chainsafe/earn-bid/pkg/ethereum"
)

// ErrLedgerRead is returned when the allowance could not be read.
var ErrLedgerRead = errors.New("ledger read failed")

// Ledger is the subset of the ledger client the gate needs.
type Ledger interface {
	Allowance(ctx context.Context, token, owner, spender common.Address) (*big.Int, error)
	Approve(ctx context.Context, token, spender common.Address, amount *big.Int) (ethereum.TxHandle, error)
}

// State is the result of an allowance check.
type State struct {
	Approved  bool
	Allowance *big.Int
}

// Covers reports whether the observed allowance is at least amount.
func (s State) Covers(amount *big.Int) bool {
	if s.Allowance == nil || amount == nil {
		return false
	}
	return s.Allowance.Cmp(amount) >= 0
}

// MaxAllowance returns 2^256-1, the amount granted by Approve.
func MaxAllowance() *big.Int {
	return new(uint256.Int).SetAllOne().ToBig()
}

// Gate checks and grants token allowances for a single spender.
type Gate struct {
	ledger Ledger
	logger *zap.Logger
}

// NewGate creates a gate over the given ledger.
func NewGate(ledger Ledger, opts ...Option) *Gate {
	s := applyOptions(opts)
	return &Gate{ledger: ledger, logger: s.logger}
}

// Check reads the allowance of spender over owner's token balance. Any read
// failure yields a not-approved state wrapped in ErrLedgerRead.
func (g *Gate) Check(ctx context.Context, token, owner, spender common.Address) (State, error) {
	allowance, err := g.ledger.Allowance(ctx, token, owner, spender)
	if err != nil {
		g.logger.Warn("allowance check failed",
			zap.String("token", token.Hex()),
			zap.String("owner", owner.Hex()),
			zap.Error(err))
		return State{}, fmt.Errorf("%w: %w", ErrLedgerRead, err)
	}
	if allowance == nil {
		allowance = new(big.Int)
	}

	state := State{Approved: allowance.Sign() > 0, Allowance: allowance}
	g.logger.Debug("allowance checked",
		zap.String("token", token.Hex()),
		zap.String("owner", owner.Hex()),
		zap.String("allowance", allowance.String()),
		zap.Bool("approved", state.Approved))
	return state, nil
}

// Approve grants spender the maximal allowance over token. The returned handle
// must be waited on before the approval is considered effective.
func (g *Gate) Approve(ctx context.Context, token, spender common.Address) (ethereum.TxHandle, error) {
	tx, err := g.ledger.Approve(ctx, token, spender, MaxAllowance())
	if err != nil {
		return nil, err
	}
	g.logger.Info("approval submitted",
		zap.String("token", token.Hex()),
		zap.String("spender", spender.Hex()),
		zap.String("tx_hash", tx.Hash().Hex()))
	return tx, nil
}
