// Package listener decodes the events bridge contracts emit when a transfer
// leaves its source chain.
package listener

import (
	"fmt"
	"math/big"
	"strings"

	"github.com/AidanTHWong/wallet/pkg/shared"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
)

const eventsABI = `[
	{"anonymous":false,"inputs":[
		{"indexed":true,"name":"from","type":"address"},
		{"indexed":true,"name":"to","type":"address"},
		{"indexed":true,"name":"version","type":"uint256"},
		{"indexed":false,"name":"opaqueData","type":"bytes"}
	],"name":"TransactionDeposited","type":"event"},
	{"anonymous":false,"inputs":[
		{"indexed":true,"name":"l1Token","type":"address"},
		{"indexed":true,"name":"l2Token","type":"address"},
		{"indexed":true,"name":"from","type":"address"},
		{"indexed":false,"name":"to","type":"address"},
		{"indexed":false,"name":"amount","type":"uint256"},
		{"indexed":false,"name":"extraData","type":"bytes"}
	],"name":"WithdrawalInitiated","type":"event"}
]`

var Events abi.ABI

func init() {
	parsed, err := abi.JSON(strings.NewReader(eventsABI))
	if err != nil {
		panic(err)
	}
	Events = parsed
}

// opaqueData is abi.encodePacked(mint, value, gasLimit, isCreation, data).
const opaqueHeaderLen = 32 + 32 + 8 + 1

type BridgeInitiatedEvent struct {
	From   common.Address
	To     common.Address
	Amount *big.Int
	Chain  shared.Chain
	TxHash common.Hash
	Block  uint64
}

// ObtainDeposit finds the TransactionDeposited event emitted by portal in receipt.
func ObtainDeposit(receipt *types.Receipt, portal common.Address) (BridgeInitiatedEvent, bool, error) {
	ev := Events.Events["TransactionDeposited"]
	for _, l := range receipt.Logs {
		if l.Address != portal || len(l.Topics) != 4 || l.Topics[0] != ev.ID {
			continue
		}
		values, err := ev.Inputs.NonIndexed().Unpack(l.Data)
		if err != nil {
			return BridgeInitiatedEvent{}, false, fmt.Errorf("failed to unpack TransactionDeposited: %w", err)
		}
		opaque, ok := values[0].([]byte)
		if !ok || len(opaque) < opaqueHeaderLen {
			return BridgeInitiatedEvent{}, false, fmt.Errorf("malformed TransactionDeposited opaque data")
		}
		return BridgeInitiatedEvent{
			From:   common.BytesToAddress(l.Topics[1].Bytes()),
			To:     common.BytesToAddress(l.Topics[2].Bytes()),
			Amount: new(big.Int).SetBytes(opaque[:32]),
			Chain:  shared.Ethereum,
			TxHash: l.TxHash,
			Block:  l.BlockNumber,
		}, true, nil
	}
	return BridgeInitiatedEvent{}, false, nil
}

// ObtainWithdrawal finds the WithdrawalInitiated event emitted by bridge in receipt.
func ObtainWithdrawal(receipt *types.Receipt, bridge common.Address) (BridgeInitiatedEvent, bool, error) {
	ev := Events.Events["WithdrawalInitiated"]
	for _, l := range receipt.Logs {
		if l.Address != bridge || len(l.Topics) != 4 || l.Topics[0] != ev.ID {
			continue
		}
		values, err := ev.Inputs.NonIndexed().Unpack(l.Data)
		if err != nil {
			return BridgeInitiatedEvent{}, false, fmt.Errorf("failed to unpack WithdrawalInitiated: %w", err)
		}
		to, okTo := values[0].(common.Address)
		amount, okAmount := values[1].(*big.Int)
		if !okTo || !okAmount {
			return BridgeInitiatedEvent{}, false, fmt.Errorf("malformed WithdrawalInitiated data")
		}
		return BridgeInitiatedEvent{
			From:   common.BytesToAddress(l.Topics[3].Bytes()),
			To:     to,
			Amount: amount,
			Chain:  shared.Base,
			TxHash: l.TxHash,
			Block:  l.BlockNumber,
		}, true, nil
	}
	return BridgeInitiatedEvent{}, false, nil
}
