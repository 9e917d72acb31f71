package evm

import (
	"context"
	"encoding/hex"
	"math/big"
	"testing"

	ecommon "github.com/ethereum/go-ethereum/common"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"
)

func TestERC20TransferPacking(t *testing.T) {
	s, err := newSendService(nil, big.NewInt(1))
	require.NoError(t, err)

	to := ecommon.HexToAddress("0x2c7536E3605D9C16a7a3D7b1898e529396a65c23")
	data, err := s.erc20.Pack("transfer", to, big.NewInt(70_000_000))
	require.NoError(t, err)

	// ERC20 transfer selector.
	require.Equal(t, "a9059cbb", hex.EncodeToString(data[:4]))
	require.Len(t, data, 4+32+32)
	require.Equal(t, to.Bytes(), data[4+12:4+32])
}

func TestERC20BalanceOfPacking(t *testing.T) {
	s, err := newBalanceService(nil)
	require.NoError(t, err)

	owner := ecommon.HexToAddress("0x2c7536E3605D9C16a7a3D7b1898e529396a65c23")
	data, err := s.erc20.Pack("balanceOf", owner)
	require.NoError(t, err)
	require.Equal(t, "70a08231", hex.EncodeToString(data[:4]))
}

type fakeSmartAccount struct {
	available bool
	hash      string
	sent      int
}

func (f *fakeSmartAccount) Address() ecommon.Address { return ecommon.Address{} }

func (f *fakeSmartAccount) Available(ctx context.Context) (bool, error) {
	return f.available, nil
}

func (f *fakeSmartAccount) SendERC20WithTokenGas(ctx context.Context, token, to ecommon.Address, amount *big.Int) (string, error) {
	f.sent++
	return f.hash, nil
}

func TestSendUSDCPrefersSmartAccount(t *testing.T) {
	smart := &fakeSmartAccount{available: true, hash: "0xabc"}
	n := &Network{
		usdc:   ecommon.HexToAddress("0x1c7D4B196Cb0C7B01d743Fbc6116a902379C7238"),
		smart:  smart,
		logger: logrus.New().WithField("pkg", "evm"),
	}

	hash, err := n.SendUSDC(context.Background(), nil, ecommon.Address{}, big.NewInt(1))
	require.NoError(t, err)
	require.Equal(t, "0xabc", hash)
	require.Equal(t, 1, smart.sent)
}
