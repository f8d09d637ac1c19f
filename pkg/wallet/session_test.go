package wallet

import (
	"context"
	"encoding/hex"
	"errors"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fakeNonceSource struct {
	nonce    uint64
	gasPrice *big.Int
	err      error
}

func (f *fakeNonceSource) PendingNonceAt(context.Context, common.Address) (uint64, error) {
	return f.nonce, f.err
}

func (f *fakeNonceSource) SuggestGasPrice(context.Context) (*big.Int, error) {
	return f.gasPrice, nil
}

func newKeyHex(t *testing.T) (string, common.Address) {
	t.Helper()
	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	return "0x" + hex.EncodeToString(crypto.FromECDSA(key)), crypto.PubkeyToAddress(key.PublicKey)
}

func TestKeyedSession_Signer(t *testing.T) {
	keyHex, addr := newKeyHex(t)
	backend := &fakeNonceSource{nonce: 7, gasPrice: big.NewInt(50)}

	s, err := NewKeyedSession(keyHex, KeyConfig{ChainID: 1, GasLimit: 250000, MaxGasPrice: "40"}, backend, zap.NewNop())
	require.NoError(t, err)

	assert.True(t, s.IsActive())
	assert.Equal(t, addr, s.AccountAddress())

	opts, err := s.Signer(context.Background())
	require.NoError(t, err)
	assert.Equal(t, addr, opts.From)
	assert.Equal(t, uint64(7), opts.Nonce.Uint64())
	assert.Equal(t, uint64(250000), opts.GasLimit)
	assert.Equal(t, "40", opts.GasPrice.String(), "gas price should be capped")
}

func TestKeyedSession_SignerWithoutCapLeavesGasPriceUnset(t *testing.T) {
	keyHex, _ := newKeyHex(t)
	s, err := NewKeyedSession(keyHex, KeyConfig{ChainID: 1}, &fakeNonceSource{}, nil)
	require.NoError(t, err)

	opts, err := s.Signer(context.Background())
	require.NoError(t, err)
	assert.Nil(t, opts.GasPrice)
}

func TestKeyedSession_NonceError(t *testing.T) {
	keyHex, _ := newKeyHex(t)
	s, err := NewKeyedSession(keyHex, KeyConfig{ChainID: 1}, &fakeNonceSource{err: errors.New("rpc down")}, nil)
	require.NoError(t, err)

	_, err = s.Signer(context.Background())
	require.ErrorContains(t, err, "failed to get nonce")
}

func TestNewKeyedSession_InvalidKey(t *testing.T) {
	_, err := NewKeyedSession("not-a-key", KeyConfig{}, &fakeNonceSource{}, nil)
	require.Error(t, err)
}

func TestManager_ConnectDisconnect(t *testing.T) {
	keyHex, addr := newKeyHex(t)
	calls := 0
	m := NewManager(func() (Session, error) {
		calls++
		return NewKeyedSession(keyHex, KeyConfig{ChainID: 1}, &fakeNonceSource{}, nil)
	})

	assert.False(t, m.IsActive())
	assert.Equal(t, common.Address{}, m.AccountAddress())
	_, err := m.Signer(context.Background())
	require.ErrorIs(t, err, ErrNoActiveSession)

	require.NoError(t, m.Connect())
	require.NoError(t, m.Connect())
	assert.Equal(t, 1, calls)
	assert.True(t, m.IsActive())
	assert.Equal(t, addr, m.AccountAddress())

	m.Disconnect()
	assert.False(t, m.IsActive())
}

func TestManager_ConnectWithoutWallet(t *testing.T) {
	var m Manager
	require.Error(t, m.Connect())
	assert.False(t, m.IsActive())
}
