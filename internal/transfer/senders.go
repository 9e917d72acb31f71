package transfer

import (
	"context"
	"crypto/ecdsa"
	"fmt"

	ecommon "github.com/ethereum/go-ethereum/common"
	sdk "github.com/gagliardetto/solana-go"
	"github.com/shopspring/decimal"

	"github.com/aki-0517/metawallet/internal/evm"
	"github.com/aki-0517/metawallet/internal/solana"
	"github.com/aki-0517/metawallet/internal/types"
	"github.com/aki-0517/metawallet/internal/util"
)

type evmSender struct {
	network *evm.Network
	key     *ecdsa.PrivateKey
}

// NewEVMSender binds a session key to the EVM network's USDC transfer.
func NewEVMSender(network *evm.Network, key *ecdsa.PrivateKey) Sender {
	return &evmSender{network: network, key: key}
}

func (s *evmSender) Chain() types.Chain {
	return types.ChainEthereum
}

func (s *evmSender) Send(ctx context.Context, to string, amount decimal.Decimal) (string, error) {
	if s.key == nil {
		return "", ErrProviderUnavailable
	}
	if !ecommon.IsHexAddress(to) {
		return "", fmt.Errorf("invalid destination address: %s", to)
	}

	baseUnits, err := util.ToBaseUnits(amount.String(), util.USDCDecimals)
	if err != nil {
		return "", fmt.Errorf("failed to convert amount: %w", err)
	}

	return s.network.SendUSDC(ctx, s.key, ecommon.HexToAddress(to), baseUnits)
}

type solanaSender struct {
	network *solana.Network
	key     sdk.PrivateKey
}

// NewSolanaSender binds a session key to the Solana network's USDC
// transfer.
func NewSolanaSender(network *solana.Network, key sdk.PrivateKey) Sender {
	return &solanaSender{network: network, key: key}
}

func (s *solanaSender) Chain() types.Chain {
	return types.ChainSolana
}

func (s *solanaSender) Send(ctx context.Context, to string, amount decimal.Decimal) (string, error) {
	if len(s.key) == 0 {
		return "", ErrProviderUnavailable
	}

	dest, err := sdk.PublicKeyFromBase58(to)
	if err != nil {
		return "", fmt.Errorf("invalid destination address: %w", err)
	}

	baseUnits, err := util.ToBaseUnits(amount.String(), util.USDCDecimals)
	if err != nil {
		return "", fmt.Errorf("failed to convert amount: %w", err)
	}
	if !baseUnits.IsUint64() {
		return "", fmt.Errorf("amount %s out of range", amount)
	}

	return s.network.SendUSDC(ctx, s.key, dest, baseUnits.Uint64())
}
