package shared

import (
	"math/big"

	"github.com/shopspring/decimal"
)

const EtherDecimals = 18

// ToDecimal converts an integer amount in the smallest unit into a decimal
// with the given number of decimals.
func ToDecimal(v *big.Int, decimals uint8) decimal.Decimal {
	if v == nil {
		return decimal.Zero
	}
	return decimal.NewFromBigInt(v, -int32(decimals))
}

func FormatUnits(v *big.Int, decimals uint8) string {
	return ToDecimal(v, decimals).String()
}

func FormatEther(wei *big.Int) string {
	return FormatUnits(wei, EtherDecimals)
}

// FormatFixed renders wei as ETH rounded to places decimals.
func FormatFixed(wei *big.Int, places int32) string {
	return ToDecimal(wei, EtherDecimals).StringFixed(places)
}
