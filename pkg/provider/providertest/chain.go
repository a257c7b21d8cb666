// Package providertest provides an in-memory chain backend for exercising
// wallets without a node.
package providertest

import (
	"context"
	"fmt"
	"math/big"
	"sync"

	"github.com/AidanTHWong/wallet/pkg/provider"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
)

// Chain is a minimal chain: value transfers move balances, every accepted
// transaction is immediately included.
type Chain struct {
	mu       sync.Mutex
	id       *big.Int
	block    uint64
	balances map[common.Address]*big.Int
	nonces   map[common.Address]uint64
	receipts map[common.Hash]*types.Receipt
	sent     []*types.Transaction

	TipCap   *big.Int
	GasPrice *big.Int
	// SendErr, when set, is returned for every broadcast.
	SendErr error
	// Revert marks every included transaction as failed.
	Revert bool
	// BalanceErr, when set, is returned for every balance query.
	BalanceErr error
	// Call answers eth_call.
	Call func(msg ethereum.CallMsg) ([]byte, error)
	// Logs produces the receipt logs of an included transaction.
	Logs func(tx *types.Transaction, from common.Address) []*types.Log
}

func NewChain(id *big.Int) *Chain {
	return &Chain{
		id:       new(big.Int).Set(id),
		block:    100,
		balances: make(map[common.Address]*big.Int),
		nonces:   make(map[common.Address]uint64),
		receipts: make(map[common.Hash]*types.Receipt),
		TipCap:   big.NewInt(1_000_000_000),
		GasPrice: big.NewInt(20_000_000_000),
	}
}

// Dialer resolves rpc urls to in-memory chains.
func Dialer(byURL map[string]*Chain) provider.Dialer {
	return func(_ context.Context, url string) (provider.ChainBackend, error) {
		c, ok := byURL[url]
		if !ok {
			return nil, fmt.Errorf("no chain at %s", url)
		}
		return c, nil
	}
}

func (c *Chain) SetBalance(account common.Address, wei *big.Int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.balances[account] = new(big.Int).Set(wei)
}

func (c *Chain) Balance(account common.Address) *big.Int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.balanceLocked(account)
}

func (c *Chain) balanceLocked(account common.Address) *big.Int {
	if b, ok := c.balances[account]; ok {
		return new(big.Int).Set(b)
	}
	return new(big.Int)
}

// Sent returns the transactions accepted so far, in order.
func (c *Chain) Sent() []*types.Transaction {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]*types.Transaction(nil), c.sent...)
}

func (c *Chain) ChainID(context.Context) (*big.Int, error) {
	return new(big.Int).Set(c.id), nil
}

func (c *Chain) BlockNumber(context.Context) (uint64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.block, nil
}

func (c *Chain) PendingNonceAt(_ context.Context, account common.Address) (uint64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.nonces[account], nil
}

func (c *Chain) NonceAt(_ context.Context, account common.Address, _ *big.Int) (uint64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.nonces[account], nil
}

func (c *Chain) SuggestGasTipCap(context.Context) (*big.Int, error) {
	return new(big.Int).Set(c.TipCap), nil
}

func (c *Chain) SuggestGasPrice(context.Context) (*big.Int, error) {
	return new(big.Int).Set(c.GasPrice), nil
}

func (c *Chain) EstimateGas(context.Context, ethereum.CallMsg) (uint64, error) {
	return 100_000, nil
}

func (c *Chain) BalanceAt(_ context.Context, account common.Address, _ *big.Int) (*big.Int, error) {
	if c.BalanceErr != nil {
		return nil, c.BalanceErr
	}
	return c.Balance(account), nil
}

func (c *Chain) CallContract(_ context.Context, msg ethereum.CallMsg, _ *big.Int) ([]byte, error) {
	if c.Call == nil {
		return nil, fmt.Errorf("execution reverted")
	}
	return c.Call(msg)
}

func (c *Chain) SendTransaction(_ context.Context, tx *types.Transaction) error {
	if c.SendErr != nil {
		return c.SendErr
	}
	from, err := types.Sender(types.LatestSignerForChainID(c.id), tx)
	if err != nil {
		return fmt.Errorf("invalid sender: %w", err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if tx.Nonce() != c.nonces[from] {
		return fmt.Errorf("nonce too low")
	}
	balance := c.balanceLocked(from)
	if balance.Cmp(tx.Value()) < 0 {
		return fmt.Errorf("insufficient funds for transfer")
	}
	c.nonces[from]++
	c.block++
	status := types.ReceiptStatusSuccessful
	if c.Revert {
		status = types.ReceiptStatusFailed
	} else {
		c.balances[from] = balance.Sub(balance, tx.Value())
		if tx.To() != nil {
			to := c.balanceLocked(*tx.To())
			c.balances[*tx.To()] = to.Add(to, tx.Value())
		}
	}

	logs := []*types.Log{}
	if c.Logs != nil && status == types.ReceiptStatusSuccessful {
		for _, l := range c.Logs(tx, from) {
			l.TxHash = tx.Hash()
			l.BlockNumber = c.block
			if l.Topics == nil {
				l.Topics = []common.Hash{}
			}
			logs = append(logs, l)
		}
	}
	c.receipts[tx.Hash()] = &types.Receipt{
		Type:              tx.Type(),
		Status:            status,
		CumulativeGasUsed: tx.Gas(),
		GasUsed:           tx.Gas(),
		TxHash:            tx.Hash(),
		BlockNumber:       new(big.Int).SetUint64(c.block),
		Logs:              logs,
	}
	c.sent = append(c.sent, tx)
	return nil
}

func (c *Chain) TransactionReceipt(_ context.Context, hash common.Hash) (*types.Receipt, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	receipt, ok := c.receipts[hash]
	if !ok {
		return nil, ethereum.NotFound
	}
	return receipt, nil
}
