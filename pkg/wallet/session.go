// Package wallet provides the wallet session consumed by the bid workflow:
// connection state, the active account and a transaction signer.
package wallet

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"sync"

	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"go.uber.org/zap"
)

// ErrNoActiveSession is returned when a signer is requested without a connected wallet.
var ErrNoActiveSession = errors.New("no active wallet session")

// Session exposes the connection state of a wallet.
type Session interface {
	IsActive() bool
	AccountAddress() common.Address
	// Signer returns transact options bound to ctx for the active account.
	Signer(ctx context.Context) (*bind.TransactOpts, error)
}

// NonceSource is the subset of an Ethereum client needed to prepare transactions.
type NonceSource interface {
	PendingNonceAt(ctx context.Context, account common.Address) (uint64, error)
	SuggestGasPrice(ctx context.Context) (*big.Int, error)
}

// KeyConfig holds signing parameters for a KeyedSession.
type KeyConfig struct {
	ChainID     int64
	GasLimit    uint64
	MaxGasPrice string // wei, empty means no cap
}

// KeyedSession is an always-active session backed by a local private key.
type KeyedSession struct {
	cfg        KeyConfig
	privateKey *ecdsa.PrivateKey
	address    common.Address
	backend    NonceSource
	logger     *zap.Logger
}

// NewKeyedSession loads a hex-encoded secp256k1 key (with or without 0x prefix).
func NewKeyedSession(privateKeyHex string, cfg KeyConfig, backend NonceSource, logger *zap.Logger) (*KeyedSession, error) {
	if backend == nil {
		return nil, errors.New("nil nonce source")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	privateKey, err := crypto.HexToECDSA(strings.TrimPrefix(strings.TrimSpace(privateKeyHex), "0x"))
	if err != nil {
		return nil, fmt.Errorf("failed to load private key: %w", err)
	}

	return &KeyedSession{
		cfg:        cfg,
		privateKey: privateKey,
		address:    crypto.PubkeyToAddress(privateKey.PublicKey),
		backend:    backend,
		logger:     logger,
	}, nil
}

// IsActive always reports true for a loaded key.
func (s *KeyedSession) IsActive() bool { return true }

// AccountAddress returns the address derived from the key.
func (s *KeyedSession) AccountAddress() common.Address { return s.address }

// Signer returns a transaction signer with nonce and gas settings resolved.
func (s *KeyedSession) Signer(ctx context.Context) (*bind.TransactOpts, error) {
	auth, err := bind.NewKeyedTransactorWithChainID(s.privateKey, big.NewInt(s.cfg.ChainID))
	if err != nil {
		return nil, fmt.Errorf("failed to create transactor: %w", err)
	}
	auth.Context = ctx

	nonce, err := s.backend.PendingNonceAt(ctx, s.address)
	if err != nil {
		return nil, fmt.Errorf("failed to get nonce: %w", err)
	}
	auth.Nonce = new(big.Int).SetUint64(nonce)
	auth.GasLimit = s.cfg.GasLimit

	if s.cfg.MaxGasPrice != "" {
		maxGasPrice, ok := new(big.Int).SetString(s.cfg.MaxGasPrice, 10)
		if !ok {
			return nil, fmt.Errorf("invalid max gas price %q", s.cfg.MaxGasPrice)
		}

		gasPrice, err := s.backend.SuggestGasPrice(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to suggest gas price: %w", err)
		}

		if gasPrice.Cmp(maxGasPrice) > 0 {
			s.logger.Warn("Suggested gas price exceeds maximum",
				zap.String("suggested", gasPrice.String()),
				zap.String("max", maxGasPrice.String()))
			auth.GasPrice = maxGasPrice
		} else {
			auth.GasPrice = gasPrice
		}
	}

	return auth, nil
}

// Manager is a Session whose underlying wallet can be connected and disconnected
// at runtime. The zero value is a disconnected session.
type Manager struct {
	mu      sync.RWMutex
	active  Session
	connect func() (Session, error)
}

// NewManager returns a disconnected Manager. connect is invoked by Connect to
// produce the wallet; it may be nil when no wallet is available to this process.
func NewManager(connect func() (Session, error)) *Manager {
	return &Manager{connect: connect}
}

// Connect activates the wallet. Connecting an already connected manager is a no-op.
func (m *Manager) Connect() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.active != nil {
		return nil
	}
	if m.connect == nil {
		return errors.New("no wallet configured")
	}
	s, err := m.connect()
	if err != nil {
		return fmt.Errorf("connect wallet: %w", err)
	}
	m.active = s
	return nil
}

// Disconnect drops the active wallet.
func (m *Manager) Disconnect() {
	m.mu.Lock()
	m.active = nil
	m.mu.Unlock()
}

func (m *Manager) current() Session {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.active
}

// IsActive reports whether a wallet is connected.
func (m *Manager) IsActive() bool {
	s := m.current()
	return s != nil && s.IsActive()
}

// AccountAddress returns the connected account or the zero address.
func (m *Manager) AccountAddress() common.Address {
	if s := m.current(); s != nil {
		return s.AccountAddress()
	}
	return common.Address{}
}

// Signer delegates to the connected wallet.
func (m *Manager) Signer(ctx context.Context) (*bind.TransactOpts, error) {
	s := m.current()
	if s == nil || !s.IsActive() {
		return nil, ErrNoActiveSession
	}
	return s.Signer(ctx)
}
