package main

import (
	"bytes"
	"math/big"
	"testing"

	"github.com/AidanTHWong/wallet/pkg/balance"
	"github.com/AidanTHWong/wallet/pkg/console"
	"github.com/AidanTHWong/wallet/pkg/shared"
	"github.com/AidanTHWong/wallet/pkg/transfer"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/params"
	"github.com/stretchr/testify/assert"
)

func TestFormatSnapshot(t *testing.T) {
	addr := common.HexToAddress("0x1234567890abcdef1234567890abcdef12345678")
	snap := balance.Snapshot{
		Name:    "metamask",
		Address: addr,
		ETH:     big.NewInt(params.Ether),
		Base:    big.NewInt(params.Ether / 8),
		Token:   &balance.TokenHolding{Symbol: "USDC", Amount: big.NewInt(2_500_000), Decimals: 6},
	}
	assert.Equal(t, "MetaMask 0x1234...5678  ETH chain: 1.0000 ETH  Base chain: 0.1250 ETH  USDC: 2.5", formatSnapshot(snap))
	assert.Equal(t, "Phantom: not connected", formatSnapshot(balance.Empty("phantom", common.Address{})))
}

func TestPrintState(t *testing.T) {
	snaps := []balance.Snapshot{balance.Empty("phantom", common.Address{}), balance.Empty("metamask", common.Address{})}
	var buf bytes.Buffer
	printState(&buf, console.State{Wallets: snaps, Totals: balance.Sum(snaps...), Message: "Connect both wallets first"})

	out := buf.String()
	assert.Contains(t, out, "Grand total: 0.0000 ETH\n")
	assert.Contains(t, out, "Connect both wallets first\n")
}

func TestFormatResult(t *testing.T) {
	hash := common.HexToHash("0xab")
	bridge := transfer.Result{Wallet: "phantom", Kind: transfer.KindBridge, Chain: shared.Base, Amount: big.NewInt(params.Ether / 2), TxHash: hash}
	send := transfer.Result{Wallet: "metamask", Kind: transfer.KindSend, Chain: shared.Ethereum, Amount: big.NewInt(params.Ether), TxHash: hash}

	assert.Contains(t, formatResult(bridge), "phantom    Base -> ETH 0.5 ETH")
	assert.Contains(t, formatResult(send), "metamask   ETH         1 ETH")
}
