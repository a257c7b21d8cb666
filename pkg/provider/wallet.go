package provider

import (
	"context"
	"errors"
	"fmt"
	"math/big"

	"github.com/AidanTHWong/wallet/pkg/shared"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/ethereum/go-ethereum/rpc"
	"github.com/rs/zerolog/log"
)

var ErrNoAccounts = errors.New("no accounts found")

// TxArgs is the eth_sendTransaction parameter object.
type TxArgs struct {
	From  common.Address  `json:"from"`
	To    *common.Address `json:"to,omitempty"`
	Value *hexutil.Big    `json:"value,omitempty"`
	Gas   *hexutil.Uint64 `json:"gas,omitempty"`
	Data  hexutil.Bytes   `json:"data,omitempty"`
	Input hexutil.Bytes   `json:"input,omitempty"`
}

func (args TxArgs) data() []byte {
	if len(args.Input) > 0 {
		return args.Input
	}
	return args.Data
}

type SwitchChainParams struct {
	ChainID string `json:"chainId"`
}

// Wallet is a typed client for an EIP-1193 provider reached over JSON-RPC.
type Wallet struct {
	name    string
	client  *rpc.Client
	backend *ethclient.Client
}

func NewWallet(name string, client *rpc.Client) *Wallet {
	return &Wallet{
		name:    name,
		client:  client,
		backend: ethclient.NewClient(client),
	}
}

// Dial connects to a wallet exposing its provider over HTTP or WebSocket.
func Dial(ctx context.Context, name string, url string) (*Wallet, error) {
	client, err := rpc.DialContext(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("failed to dial wallet %s at %s: %w", name, url, err)
	}
	return NewWallet(name, client), nil
}

func (w *Wallet) Name() string {
	return w.name
}

// Backend reads chain state through the wallet's own connection, so every
// query targets whichever chain the wallet is currently switched to.
func (w *Wallet) Backend() *ethclient.Client {
	return w.backend
}

func (w *Wallet) Close() {
	w.client.Close()
}

func (w *Wallet) RequestAccounts(ctx context.Context) ([]common.Address, error) {
	var accounts []common.Address
	if err := w.client.CallContext(ctx, &accounts, "eth_requestAccounts"); err != nil {
		return nil, err
	}
	if len(accounts) == 0 {
		return nil, ErrNoAccounts
	}
	return accounts, nil
}

func (w *Wallet) Accounts(ctx context.Context) ([]common.Address, error) {
	var accounts []common.Address
	if err := w.client.CallContext(ctx, &accounts, "eth_accounts"); err != nil {
		return nil, err
	}
	return accounts, nil
}

func (w *Wallet) ChainID(ctx context.Context) (*big.Int, error) {
	var id hexutil.Big
	if err := w.client.CallContext(ctx, &id, "eth_chainId"); err != nil {
		return nil, err
	}
	return (*big.Int)(&id), nil
}

func (w *Wallet) SwitchChain(ctx context.Context, chainID *big.Int) error {
	return w.client.CallContext(ctx, nil, "wallet_switchEthereumChain",
		SwitchChainParams{ChainID: shared.HexChainID(chainID)})
}

func (w *Wallet) AddChain(ctx context.Context, params shared.NetworkParams) error {
	return w.client.CallContext(ctx, nil, "wallet_addEthereumChain", params)
}

// SwitchOrAddChain moves the wallet to the chain described by params. A wallet
// that does not know the chain is asked to add it, after which the switch is retried.
func (w *Wallet) SwitchOrAddChain(ctx context.Context, params shared.NetworkParams) error {
	target, err := params.ID()
	if err != nil {
		return err
	}
	if current, err := w.ChainID(ctx); err == nil && current.Cmp(target) == 0 {
		return nil
	}

	err = w.SwitchChain(ctx, target)
	if err == nil {
		return nil
	}
	if !IsUnrecognizedChain(err) {
		return err
	}

	log.Info().Str("wallet", w.name).Str("chain", params.ChainName).Msg("chain unknown to wallet, requesting addition")
	if err := w.AddChain(ctx, params); err != nil {
		return fmt.Errorf("failed to add %s network: %w", params.ChainName, err)
	}
	return w.SwitchChain(ctx, target)
}

func (w *Wallet) SendTransaction(ctx context.Context, args TxArgs) (common.Hash, error) {
	var hash common.Hash
	if err := w.client.CallContext(ctx, &hash, "eth_sendTransaction", args); err != nil {
		return common.Hash{}, err
	}
	return hash, nil
}
