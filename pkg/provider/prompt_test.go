package provider

import (
	"bytes"
	"context"
	"math/big"
	"strings"
	"testing"

	"github.com/AidanTHWong/wallet/pkg/shared"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPromptApprover(t *testing.T) {
	to := common.HexToAddress("0x4200000000000000000000000000000000000010")
	req := ApprovalRequest{
		Wallet:  "phantom",
		ChainID: shared.BaseChainID,
		To:      &to,
		Value:   big.NewInt(1_500_000_000_000_000_000),
		Gas:     300000,
	}

	var out bytes.Buffer
	approve := PromptApprover(strings.NewReader("y\nno\n"), &out)

	ok, err := approve(context.Background(), req)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Contains(t, out.String(), "send 1.5 ETH")
	assert.Contains(t, out.String(), "on Base")

	ok, err = approve(context.Background(), req)
	require.NoError(t, err)
	assert.False(t, ok)

	// EOF counts as a refusal.
	ok, err = approve(context.Background(), req)
	require.NoError(t, err)
	assert.False(t, ok)
}
