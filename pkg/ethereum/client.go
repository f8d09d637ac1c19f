package ethereum

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"
	"go.uber.org/zap"

	"github.com/chainsafe/earn-bid/internal/metrics"
	"github.com/chainsafe/earn-bid/pkg/config"
	"github.com/chainsafe/earn-bid/pkg/ethereum/contracts"
	"github.com/chainsafe/earn-bid/pkg/wallet"
)

// Backend is the node connection used for calls, transactions and receipts.
// *ethclient.Client satisfies it.
type Backend interface {
	bind.ContractBackend
	bind.DeployBackend
}

// Client is the ledger facade over the ERC20 and earn contracts. Every
// operation requires an active wallet session.
type Client struct {
	backend Backend
	session wallet.Session
	logger  *zap.Logger
}

// Dial connects to the configured RPC endpoint and verifies the chain id.
func Dial(ctx context.Context, cfg *config.EthereumConfig, logger *zap.Logger) (*ethclient.Client, error) {
	client, err := ethclient.DialContext(ctx, cfg.RPCURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to Ethereum RPC: %w", err)
	}

	chainID, err := client.ChainID(ctx)
	if err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to get chain id: %w", err)
	}
	if chainID.Int64() != cfg.ChainID {
		client.Close()
		return nil, fmt.Errorf("chain id mismatch: rpc=%s config=%d", chainID, cfg.ChainID)
	}

	logger.Info("Connected to Ethereum",
		zap.Int64("chain_id", cfg.ChainID),
		zap.String("rpc_url", cfg.RPCURL),
		zap.String("earn_contract", cfg.EarnContract))

	return client, nil
}

// NewClient creates a ledger client for the given backend and wallet session.
func NewClient(backend Backend, session wallet.Session, logger *zap.Logger) *Client {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{
		backend: backend,
		session: session,
		logger:  logger,
	}
}

// Allowance reads the ERC20 allowance of spender over owner's tokens.
func (c *Client) Allowance(ctx context.Context, token, owner, spender common.Address) (*big.Int, error) {
	if !c.session.IsActive() {
		return nil, wallet.ErrNoActiveSession
	}

	erc20, err := contracts.NewERC20Caller(token, c.backend)
	if err != nil {
		return nil, fmt.Errorf("failed to load token contract: %w", err)
	}

	allowance, err := erc20.Allowance(&bind.CallOpts{Context: ctx, From: owner}, owner, spender)
	if err != nil {
		metrics.LedgerReads.WithLabelValues("allowance", "error").Inc()
		return nil, fmt.Errorf("failed to read allowance: %w", err)
	}
	metrics.LedgerReads.WithLabelValues("allowance", "ok").Inc()
	return allowance, nil
}

// Approve submits approve(spender, amount) on the token contract.
func (c *Client) Approve(ctx context.Context, token, spender common.Address, amount *big.Int) (TxHandle, error) {
	return c.transact(ctx, OpApprove, func(opts *bind.TransactOpts) (*types.Transaction, error) {
		erc20, err := contracts.NewERC20Transactor(token, c.backend)
		if err != nil {
			return nil, fmt.Errorf("failed to load token contract: %w", err)
		}
		return erc20.Approve(opts, spender, amount)
	})
}

// MakeOffer submits makeOffer(contractID, amount) on the earn contract.
func (c *Client) MakeOffer(ctx context.Context, earn common.Address, contractID, amount *big.Int) (TxHandle, error) {
	return c.transact(ctx, OpMakeOffer, func(opts *bind.TransactOpts) (*types.Transaction, error) {
		earnContract, err := contracts.NewEarnTransactor(earn, c.backend)
		if err != nil {
			return nil, fmt.Errorf("failed to load earn contract: %w", err)
		}
		return earnContract.MakeOffer(opts, contractID, amount)
	})
}

func (c *Client) transact(
	ctx context.Context,
	op string,
	send func(*bind.TransactOpts) (*types.Transaction, error),
) (TxHandle, error) {
	if !c.session.IsActive() {
		return nil, wallet.ErrNoActiveSession
	}

	opts, err := c.session.Signer(ctx)
	if err != nil {
		if errors.Is(err, wallet.ErrNoActiveSession) {
			return nil, err
		}
		return nil, &TxError{Op: op, Reason: ReasonSubmit, Err: err}
	}
	opts.Context = ctx

	tx, err := send(opts)
	if err != nil {
		metrics.TransactionsSent.WithLabelValues(op, "rejected").Inc()
		return nil, &TxError{Op: op, Reason: ReasonSubmit, Err: err}
	}

	metrics.TransactionsSent.WithLabelValues(op, "submitted").Inc()
	c.logger.Info("Transaction submitted",
		zap.String("op", op),
		zap.String("tx_hash", tx.Hash().Hex()),
		zap.String("from", opts.From.Hex()))

	return &Transaction{
		op:        op,
		tx:        tx,
		backend:   c.backend,
		logger:    c.logger,
		submitted: time.Now(),
	}, nil
}

// Transaction is the TxHandle returned by Client writes.
type Transaction struct {
	op        string
	tx        *types.Transaction
	backend   bind.DeployBackend
	logger    *zap.Logger
	submitted time.Time
}

// Hash returns the transaction hash.
func (t *Transaction) Hash() common.Hash { return t.tx.Hash() }

// Wait polls for the receipt until it is mined or ctx is done.
func (t *Transaction) Wait(ctx context.Context) error {
	receipt, err := bind.WaitMined(ctx, t.backend, t.tx)
	metrics.TransactionDuration.WithLabelValues(t.op).Observe(time.Since(t.submitted).Seconds())
	if err != nil {
		reason := ReasonWait
		if errors.Is(err, context.DeadlineExceeded) {
			reason = ReasonTimeout
		}
		metrics.TransactionsConfirmed.WithLabelValues(t.op, reason).Inc()
		return &TxError{Op: t.op, Reason: reason, TxHash: t.tx.Hash(), Err: err}
	}

	if receipt.Status != types.ReceiptStatusSuccessful {
		metrics.TransactionsConfirmed.WithLabelValues(t.op, ReasonReverted).Inc()
		return &TxError{Op: t.op, Reason: ReasonReverted, TxHash: t.tx.Hash()}
	}

	metrics.TransactionsConfirmed.WithLabelValues(t.op, "success").Inc()
	metrics.GasUsed.WithLabelValues(t.op).Observe(float64(receipt.GasUsed))
	t.logger.Info("Transaction confirmed",
		zap.String("op", t.op),
		zap.String("tx_hash", t.tx.Hash().Hex()),
		zap.String("block", receipt.BlockNumber.String()),
		zap.Uint64("gas_used", receipt.GasUsed))
	return nil
}
