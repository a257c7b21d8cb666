package balance

import (
	"bytes"
	"context"
	"errors"
	"math/big"
	"testing"

	"github.com/AidanTHWong/wallet/pkg/provider"
	"github.com/AidanTHWong/wallet/pkg/provider/providertest"
	"github.com/AidanTHWong/wallet/pkg/shared"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/params"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newWallet(t *testing.T) (*provider.Wallet, common.Address, *providertest.Chain, *providertest.Chain) {
	t.Helper()
	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	eth := providertest.NewChain(shared.EthereumChainID)
	base := providertest.NewChain(shared.BaseChainID)
	networks := DefaultNetworks()

	local, err := provider.NewLocalWallet(context.Background(), provider.LocalOptions{
		Name:     "phantom",
		Key:      key,
		Networks: []shared.NetworkParams{networks[shared.Ethereum]},
		Dialer: providertest.Dialer(map[string]*providertest.Chain{
			networks[shared.Ethereum].RPCURLs[0]: eth,
			networks[shared.Base].RPCURLs[0]:     base,
		}),
	})
	require.NoError(t, err)
	w, err := local.Wallet()
	require.NoError(t, err)
	t.Cleanup(w.Close)
	return w, local.Address(), eth, base
}

func TestFetch(t *testing.T) {
	w, addr, eth, base := newWallet(t)
	eth.SetBalance(addr, big.NewInt(2*params.Ether))
	base.SetBalance(addr, big.NewInt(params.Ether/2))

	snap := Fetch(context.Background(), w, addr, DefaultNetworks(), nil)
	assert.Equal(t, "phantom", snap.Name)
	assert.Equal(t, addr, snap.Address)
	assert.Equal(t, big.NewInt(2*params.Ether), snap.ETH)
	assert.Equal(t, big.NewInt(params.Ether/2), snap.Base)
	assert.Nil(t, snap.Token)
	assert.True(t, snap.Connected())
}

func TestFetchChainFailureReadsAsZero(t *testing.T) {
	w, addr, eth, base := newWallet(t)
	eth.SetBalance(addr, big.NewInt(params.Ether))
	base.BalanceErr = errors.New("rpc down")

	snap := Fetch(context.Background(), w, addr, DefaultNetworks(), nil)
	assert.Equal(t, big.NewInt(params.Ether), snap.ETH)
	assert.Equal(t, 0, snap.Base.Sign())
}

func TestFetchToken(t *testing.T) {
	w, addr, eth, _ := newWallet(t)
	eth.Call = func(msg ethereum.CallMsg) ([]byte, error) {
		if msg.To == nil || *msg.To != USDCMainnet {
			return nil, errors.New("unexpected contract")
		}
		switch {
		case bytes.Equal(msg.Data[:4], erc20.Methods["decimals"].ID):
			return erc20.Methods["decimals"].Outputs.Pack(uint8(6))
		case bytes.Equal(msg.Data[:4], erc20.Methods["balanceOf"].ID):
			return erc20.Methods["balanceOf"].Outputs.Pack(big.NewInt(12_340_000))
		}
		return nil, errors.New("unexpected call")
	}

	snap := Fetch(context.Background(), w, addr, DefaultNetworks(), &Token{
		Symbol:  "USDC",
		Address: USDCMainnet,
		Chain:   shared.Ethereum,
	})
	require.NotNil(t, snap.Token)
	assert.Equal(t, uint8(6), snap.Token.Decimals)
	assert.Equal(t, big.NewInt(12_340_000), snap.Token.Amount)
	assert.Equal(t, "12.34", shared.FormatUnits(snap.Token.Amount, snap.Token.Decimals))
}

func TestFetchTokenFailureReadsAsZero(t *testing.T) {
	w, addr, _, _ := newWallet(t)

	snap := Fetch(context.Background(), w, addr, DefaultNetworks(), &Token{
		Symbol:  "USDC",
		Address: USDCMainnet,
		Chain:   shared.Ethereum,
	})
	require.NotNil(t, snap.Token)
	assert.Equal(t, 0, snap.Token.Amount.Sign())
}

func TestSum(t *testing.T) {
	a := Snapshot{ETH: big.NewInt(params.Ether), Base: big.NewInt(params.Ether / 4)}
	b := Snapshot{ETH: big.NewInt(params.Ether / 2)}

	totals := Sum(a, b)
	assert.Equal(t, "1.5000", shared.FormatFixed(totals.ETH, 4))
	assert.Equal(t, "0.2500", shared.FormatFixed(totals.Base, 4))
	assert.Equal(t, "1.7500", shared.FormatFixed(totals.Grand, 4))
}

func TestShortAddress(t *testing.T) {
	a := common.HexToAddress("0x1234567890abcdef1234567890abcdef12345678")
	assert.Equal(t, "0x1234...5678", ShortAddress(a))
}
