package balance

import (
	"context"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
)

const erc20ABI = `[
	{"constant":true,"inputs":[{"name":"owner","type":"address"}],"name":"balanceOf","outputs":[{"name":"","type":"uint256"}],"stateMutability":"view","type":"function"},
	{"constant":true,"inputs":[],"name":"decimals","outputs":[{"name":"","type":"uint8"}],"stateMutability":"view","type":"function"}
]`

var erc20 = mustParseABI(erc20ABI)

// USDCMainnet is the USDC token contract on Ethereum mainnet.
var USDCMainnet = common.HexToAddress("0xA0b86991c6218b36c1d19D4a2e9Eb0cE3606eB48")

type Caller interface {
	CallContract(ctx context.Context, msg ethereum.CallMsg, blockNumber *big.Int) ([]byte, error)
}

func mustParseABI(def string) abi.ABI {
	parsed, err := abi.JSON(strings.NewReader(def))
	if err != nil {
		panic(err)
	}
	return parsed
}

// TokenBalance returns owner's balance of token together with the token's decimals.
func TokenBalance(ctx context.Context, caller Caller, token common.Address, owner common.Address) (*big.Int, uint8, error) {
	decimals, err := callToken(ctx, caller, token, "decimals")
	if err != nil {
		return nil, 0, err
	}
	dec, ok := decimals.(uint8)
	if !ok {
		return nil, 0, fmt.Errorf("unexpected decimals type %T", decimals)
	}

	raw, err := callToken(ctx, caller, token, "balanceOf", owner)
	if err != nil {
		return nil, 0, err
	}
	bal, ok := raw.(*big.Int)
	if !ok {
		return nil, 0, fmt.Errorf("unexpected balance type %T", raw)
	}
	return bal, dec, nil
}

func callToken(ctx context.Context, caller Caller, token common.Address, method string, args ...any) (any, error) {
	data, err := erc20.Pack(method, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to pack %s: %w", method, err)
	}
	out, err := caller.CallContract(ctx, ethereum.CallMsg{To: &token, Data: data}, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to call %s on %s: %w", method, token.Hex(), err)
	}
	values, err := erc20.Unpack(method, out)
	if err != nil {
		return nil, fmt.Errorf("failed to unpack %s: %w", method, err)
	}
	if len(values) != 1 {
		return nil, fmt.Errorf("unexpected %s output length %d", method, len(values))
	}
	return values[0], nil
}
