package provider

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"fmt"
	"math/big"
	"sync"

	"github.com/AidanTHWong/wallet/pkg/shared"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/ethereum/go-ethereum/rpc"
	"github.com/rs/zerolog/log"
)

const defaultTransferGas = 21000

// ChainBackend is what a local wallet needs from a chain's RPC endpoint.
type ChainBackend interface {
	shared.TxBackend
	shared.ReceiptBackend
	BalanceAt(ctx context.Context, account common.Address, blockNumber *big.Int) (*big.Int, error)
	CallContract(ctx context.Context, msg ethereum.CallMsg, blockNumber *big.Int) ([]byte, error)
	EstimateGas(ctx context.Context, msg ethereum.CallMsg) (uint64, error)
	BlockNumber(ctx context.Context) (uint64, error)
}

type Dialer func(ctx context.Context, url string) (ChainBackend, error)

func DialChain(ctx context.Context, url string) (ChainBackend, error) {
	return ethclient.DialContext(ctx, url)
}

type ApprovalRequest struct {
	Wallet  string
	ChainID *big.Int
	From    common.Address
	To      *common.Address
	Value   *big.Int
	Gas     uint64
	Data    []byte
}

// Approver decides whether a transaction may be signed. Returning false is a
// user rejection.
type Approver func(ctx context.Context, req ApprovalRequest) (bool, error)

func AutoApprove(context.Context, ApprovalRequest) (bool, error) {
	return true, nil
}

type LocalOptions struct {
	Name string
	Key  *ecdsa.PrivateKey
	// Networks the wallet knows from the start. The first one is active.
	Networks []shared.NetworkParams
	Approver Approver
	Dialer   Dialer
}

type network struct {
	id      *big.Int
	params  shared.NetworkParams
	backend ChainBackend
}

// LocalWallet is a key-backed wallet that answers the same provider requests
// as a browser extension.
type LocalWallet struct {
	name    string
	key     *ecdsa.PrivateKey
	address common.Address
	approve Approver
	dial    Dialer

	mu       sync.Mutex
	networks map[string]*network
	current  *network
}

func NewLocalWallet(ctx context.Context, opts LocalOptions) (*LocalWallet, error) {
	if opts.Key == nil {
		return nil, fmt.Errorf("wallet %s: private key is required", opts.Name)
	}
	if len(opts.Networks) == 0 {
		return nil, fmt.Errorf("wallet %s: at least one network is required", opts.Name)
	}
	l := &LocalWallet{
		name:     opts.Name,
		key:      opts.Key,
		address:  addressFromKey(opts.Key),
		approve:  opts.Approver,
		dial:     opts.Dialer,
		networks: make(map[string]*network),
	}
	if l.approve == nil {
		l.approve = AutoApprove
	}
	if l.dial == nil {
		l.dial = DialChain
	}
	for _, params := range opts.Networks {
		n, err := l.connect(ctx, params)
		if err != nil {
			return nil, err
		}
		if l.current == nil {
			l.current = n
		}
	}
	log.Info().Str("wallet", l.name).Str("address", l.address.Hex()).Msg("local wallet ready")
	return l, nil
}

func (l *LocalWallet) Name() string {
	return l.name
}

func (l *LocalWallet) Address() common.Address {
	return l.address
}

// Client serves the wallet through an in-process rpc server.
func (l *LocalWallet) Client() (*rpc.Client, error) {
	server := rpc.NewServer()
	if err := server.RegisterName("eth", &ethAPI{w: l}); err != nil {
		return nil, fmt.Errorf("failed to register eth api: %w", err)
	}
	if err := server.RegisterName("wallet", &walletAPI{w: l}); err != nil {
		return nil, fmt.Errorf("failed to register wallet api: %w", err)
	}
	return rpc.DialInProc(server), nil
}

func (l *LocalWallet) Wallet() (*Wallet, error) {
	client, err := l.Client()
	if err != nil {
		return nil, err
	}
	return NewWallet(l.name, client), nil
}

// CancelPending replaces every pending transaction of the wallet on chainID.
func (l *LocalWallet) CancelPending(ctx context.Context, chainID *big.Int) error {
	l.mu.Lock()
	n, ok := l.networks[chainID.String()]
	l.mu.Unlock()
	if !ok {
		return newError(CodeUnrecognizedChain, "Unrecognized chain ID %s", shared.HexChainID(chainID))
	}
	return shared.CancelPendingTxes(ctx, l.key, n.backend)
}

func (l *LocalWallet) connect(ctx context.Context, params shared.NetworkParams) (*network, error) {
	if err := params.Validate(); err != nil {
		return nil, newError(CodeInvalidParams, "invalid network parameters: %s", err)
	}
	id, _ := params.ID()

	l.mu.Lock()
	if n, ok := l.networks[id.String()]; ok {
		l.mu.Unlock()
		return n, nil
	}
	l.mu.Unlock()

	backend, err := l.dial(ctx, params.RPCURLs[0])
	if err != nil {
		return nil, fmt.Errorf("failed to dial %s rpc: %w", params.ChainName, err)
	}
	remoteID, err := backend.ChainID(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get %s chain id: %w", params.ChainName, err)
	}
	if remoteID.Cmp(id) != 0 {
		return nil, newError(CodeInvalidParams, "rpc endpoint for %s reports chain id %s, expected %s",
			params.ChainName, remoteID, id)
	}
	log.Debug().Str("wallet", l.name).Str("chain", params.ChainName).Msg("network added")

	n := &network{id: id, params: params, backend: backend}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.networks[id.String()] = n
	return n, nil
}

func (l *LocalWallet) active() *network {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.current
}

func (l *LocalWallet) switchTo(chainID *big.Int) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	n, ok := l.networks[chainID.String()]
	if !ok {
		return newError(CodeUnrecognizedChain,
			"Unrecognized chain ID %q. Try adding the chain using wallet_addEthereumChain first.",
			shared.HexChainID(chainID))
	}
	l.current = n
	return nil
}

func (l *LocalWallet) sendTransaction(ctx context.Context, args TxArgs) (common.Hash, error) {
	if args.From != l.address {
		return common.Hash{}, newError(CodeUnauthorized, "account %s is not managed by wallet %s", args.From.Hex(), l.name)
	}
	n := l.active()
	value := new(big.Int)
	if args.Value != nil {
		value = args.Value.ToInt()
	}
	data := args.data()

	var gas uint64
	switch {
	case args.Gas != nil:
		gas = uint64(*args.Gas)
	case len(data) == 0:
		gas = defaultTransferGas
	default:
		estimated, err := n.backend.EstimateGas(ctx, ethereum.CallMsg{
			From: args.From, To: args.To, Value: value, Data: data,
		})
		if err != nil {
			return common.Hash{}, fmt.Errorf("failed to estimate gas: %w", err)
		}
		gas = estimated
	}

	opts, err := shared.CreateTransactOpts(ctx, l.key, n.id, n.backend, gas)
	if err != nil {
		return common.Hash{}, err
	}

	approved, err := l.approve(ctx, ApprovalRequest{
		Wallet:  l.name,
		ChainID: n.id,
		From:    args.From,
		To:      args.To,
		Value:   value,
		Gas:     gas,
		Data:    data,
	})
	if err != nil {
		return common.Hash{}, fmt.Errorf("approval failed: %w", err)
	}
	if !approved {
		rejected := newError(CodeUserRejected, "User rejected the request.")
		rejected.Data = actionRejected
		return common.Hash{}, rejected
	}

	tx := types.NewTx(&types.DynamicFeeTx{
		ChainID:   n.id,
		Nonce:     opts.Nonce.Uint64(),
		GasTipCap: opts.GasTipCap,
		GasFeeCap: opts.GasFeeCap,
		Gas:       opts.GasLimit,
		To:        args.To,
		Value:     value,
		Data:      data,
	})
	signedTx, err := opts.Signer(opts.From, tx)
	if err != nil {
		return common.Hash{}, fmt.Errorf("failed to sign transaction: %w", err)
	}
	if err := n.backend.SendTransaction(ctx, signedTx); err != nil {
		return common.Hash{}, err
	}
	log.Info().Str("wallet", l.name).Str("chain", n.params.ChainName).
		Str("hash", signedTx.Hash().Hex()).Msg("transaction broadcast")
	return signedTx.Hash(), nil
}

// ethAPI serves the eth_ namespace of a LocalWallet.
type ethAPI struct {
	w *LocalWallet
}

func (api *ethAPI) RequestAccounts(ctx context.Context) ([]common.Address, error) {
	return []common.Address{api.w.address}, nil
}

func (api *ethAPI) Accounts() []common.Address {
	return []common.Address{api.w.address}
}

func (api *ethAPI) ChainId() *hexutil.Big {
	return (*hexutil.Big)(api.w.active().id)
}

func (api *ethAPI) BlockNumber(ctx context.Context) (hexutil.Uint64, error) {
	num, err := api.w.active().backend.BlockNumber(ctx)
	return hexutil.Uint64(num), err
}

func (api *ethAPI) GetBalance(ctx context.Context, account common.Address, block string) (*hexutil.Big, error) {
	blockNum, err := parseBlock(block)
	if err != nil {
		return nil, err
	}
	balance, err := api.w.active().backend.BalanceAt(ctx, account, blockNum)
	if err != nil {
		return nil, err
	}
	return (*hexutil.Big)(balance), nil
}

type CallArgs struct {
	From  *common.Address `json:"from"`
	To    *common.Address `json:"to"`
	Gas   *hexutil.Uint64 `json:"gas"`
	Value *hexutil.Big    `json:"value"`
	Data  hexutil.Bytes   `json:"data"`
	Input hexutil.Bytes   `json:"input"`
}

func (api *ethAPI) Call(ctx context.Context, args CallArgs, block string) (hexutil.Bytes, error) {
	blockNum, err := parseBlock(block)
	if err != nil {
		return nil, err
	}
	msg := ethereum.CallMsg{To: args.To, Data: args.Input}
	if len(msg.Data) == 0 {
		msg.Data = args.Data
	}
	if args.From != nil {
		msg.From = *args.From
	}
	if args.Gas != nil {
		msg.Gas = uint64(*args.Gas)
	}
	if args.Value != nil {
		msg.Value = args.Value.ToInt()
	}
	return api.w.active().backend.CallContract(ctx, msg, blockNum)
}

func (api *ethAPI) GetTransactionReceipt(ctx context.Context, hash common.Hash) (*types.Receipt, error) {
	receipt, err := api.w.active().backend.TransactionReceipt(ctx, hash)
	if errors.Is(err, ethereum.NotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if receipt.Logs == nil {
		receipt.Logs = []*types.Log{}
	}
	return receipt, nil
}

func (api *ethAPI) SendTransaction(ctx context.Context, args TxArgs) (common.Hash, error) {
	return api.w.sendTransaction(ctx, args)
}

// walletAPI serves the wallet_ namespace of a LocalWallet.
type walletAPI struct {
	w *LocalWallet
}

func (api *walletAPI) SwitchEthereumChain(ctx context.Context, params SwitchChainParams) error {
	id, err := hexutil.DecodeBig(params.ChainID)
	if err != nil {
		return newError(CodeInvalidParams, "invalid chainId %q", params.ChainID)
	}
	if err := api.w.switchTo(id); err != nil {
		return err
	}
	log.Debug().Str("wallet", api.w.name).Str("chain_id", params.ChainID).Msg("switched chain")
	return nil
}

func (api *walletAPI) AddEthereumChain(ctx context.Context, params shared.NetworkParams) error {
	if _, err := api.w.connect(ctx, params); err != nil {
		var provErr *Error
		if errors.As(err, &provErr) {
			return provErr
		}
		return newError(CodeInternal, "%s", err)
	}
	return nil
}

func parseBlock(block string) (*big.Int, error) {
	switch block {
	case "", "latest", "pending", "safe", "finalized":
		return nil, nil
	}
	num, err := hexutil.DecodeBig(block)
	if err != nil {
		return nil, newError(CodeInvalidParams, "invalid block tag %q", block)
	}
	return num, nil
}
