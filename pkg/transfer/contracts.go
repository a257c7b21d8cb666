package transfer

import (
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
)

const (
	portalABIJSON = `[{"inputs":[
		{"name":"_to","type":"address"},
		{"name":"_value","type":"uint256"},
		{"name":"_gasLimit","type":"uint64"},
		{"name":"_isCreation","type":"bool"},
		{"name":"_data","type":"bytes"}
	],"name":"depositTransaction","outputs":[],"stateMutability":"payable","type":"function"}]`

	l2BridgeABIJSON = `[{"inputs":[
		{"name":"_l2Token","type":"address"},
		{"name":"_to","type":"address"},
		{"name":"_amount","type":"uint256"},
		{"name":"_minGasLimit","type":"uint32"},
		{"name":"_extraData","type":"bytes"}
	],"name":"withdrawTo","outputs":[],"stateMutability":"payable","type":"function"}]`
)

const (
	// Gas limit of the bridge transaction itself.
	BridgeGas = 300000
	SendGas   = 21000
	// Gas forwarded to the L2 side of a deposit.
	DepositGasLimit = 100000
	// Gas the L1 relay of a withdrawal must be given.
	WithdrawalMinGasLimit = 200000
)

var (
	DefaultPortal   = common.HexToAddress("0x49048044D57e1C92A77f79988d21Fa8fAF74E97e")
	DefaultL2Bridge = common.HexToAddress("0x4200000000000000000000000000000000000010")
	// LegacyERC20ETH is the token address the L2 bridge uses for native ether.
	LegacyERC20ETH = common.HexToAddress("0xDeadDeAddeAddEAddeadDEaDDEAdDeaDDeAD0000")
)

var (
	PortalABI   abi.ABI
	L2BridgeABI abi.ABI
)

func init() {
	var err error
	if PortalABI, err = abi.JSON(strings.NewReader(portalABIJSON)); err != nil {
		panic(err)
	}
	if L2BridgeABI, err = abi.JSON(strings.NewReader(l2BridgeABIJSON)); err != nil {
		panic(err)
	}
}

// Contracts are the bridge entry points on each side.
type Contracts struct {
	Portal   common.Address
	L2Bridge common.Address
}

func DefaultContracts() Contracts {
	return Contracts{Portal: DefaultPortal, L2Bridge: DefaultL2Bridge}
}

func depositCalldata(to common.Address, amount *big.Int) ([]byte, error) {
	data, err := PortalABI.Pack("depositTransaction", to, amount, uint64(DepositGasLimit), false, []byte{})
	if err != nil {
		return nil, fmt.Errorf("failed to pack depositTransaction: %w", err)
	}
	return data, nil
}

func withdrawCalldata(to common.Address, amount *big.Int) ([]byte, error) {
	data, err := L2BridgeABI.Pack("withdrawTo", LegacyERC20ETH, to, amount, uint32(WithdrawalMinGasLimit), []byte{})
	if err != nil {
		return nil, fmt.Errorf("failed to pack withdrawTo: %w", err)
	}
	return data, nil
}
