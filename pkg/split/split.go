// Package split divides a transfer amount between two wallets.
package split

import (
	"errors"
	"fmt"
	"math/big"
	"strconv"
	"strings"

	"github.com/AidanTHWong/wallet/pkg/shared"

	"github.com/shopspring/decimal"
)

var (
	ErrInvalidAmount  = errors.New("invalid amount")
	ErrInvalidPercent = errors.New("percentage must be between 0 and 100")
)

const DefaultPercent = 50

// ParseAmount converts a decimal ETH amount into wei.
func ParseAmount(s string) (*big.Int, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, fmt.Errorf("%w: empty", ErrInvalidAmount)
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return nil, fmt.Errorf("%w: %q", ErrInvalidAmount, s)
	}
	if d.IsNegative() {
		return nil, fmt.Errorf("%w: %q is negative", ErrInvalidAmount, s)
	}
	wei := d.Shift(shared.EtherDecimals)
	if !wei.Equal(wei.Truncate(0)) {
		return nil, fmt.Errorf("%w: %q has more than %d decimals", ErrInvalidAmount, s, shared.EtherDecimals)
	}
	return wei.BigInt(), nil
}

func ParsePercent(s string) (int, error) {
	p, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil {
		return 0, fmt.Errorf("%w: %q", ErrInvalidPercent, s)
	}
	return p, ValidatePercent(p)
}

func ValidatePercent(p int) error {
	if p < 0 || p > 100 {
		return fmt.Errorf("%w: got %d", ErrInvalidPercent, p)
	}
	return nil
}

// Split gives percent of total to the second wallet and the remainder to the
// first. The two parts always add up to total.
func Split(total *big.Int, percent int) (first *big.Int, second *big.Int, err error) {
	if err := ValidatePercent(percent); err != nil {
		return nil, nil, err
	}
	if total == nil || total.Sign() < 0 {
		return nil, nil, ErrInvalidAmount
	}
	second = new(big.Int).Mul(total, big.NewInt(int64(percent)))
	second.Quo(second, big.NewInt(100))
	first = new(big.Int).Sub(total, second)
	return first, second, nil
}

// Leg is the share of a transfer drawn from one wallet.
type Leg struct {
	Wallet    string
	Amount    *big.Int
	Available *big.Int
}

type InsufficientBalanceError struct {
	Wallet string
	Chain  shared.Chain
	Need   *big.Int
	Have   *big.Int
}

func (e *InsufficientBalanceError) Error() string {
	return fmt.Sprintf("Insufficient %s %s balance", DisplayName(e.Wallet), e.Chain)
}

// CheckBalances verifies every leg against its wallet's balance on chain and
// reports the first shortfall.
func CheckBalances(chain shared.Chain, legs ...Leg) error {
	for _, leg := range legs {
		available := leg.Available
		if available == nil {
			available = new(big.Int)
		}
		if leg.Amount.Cmp(available) > 0 {
			return &InsufficientBalanceError{
				Wallet: leg.Wallet,
				Chain:  chain,
				Need:   new(big.Int).Set(leg.Amount),
				Have:   new(big.Int).Set(available),
			}
		}
	}
	return nil
}

// DisplayName capitalises known wallet names the way their vendors spell them.
func DisplayName(name string) string {
	switch strings.ToLower(name) {
	case "metamask":
		return "MetaMask"
	case "phantom":
		return "Phantom"
	case "":
		return "wallet"
	}
	return strings.ToUpper(name[:1]) + name[1:]
}
