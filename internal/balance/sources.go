package balance

import (
	"context"
	"fmt"

	ecommon "github.com/ethereum/go-ethereum/common"
	sdk "github.com/gagliardetto/solana-go"
	"github.com/shopspring/decimal"

	"github.com/aki-0517/metawallet/internal/evm"
	"github.com/aki-0517/metawallet/internal/solana"
	"github.com/aki-0517/metawallet/internal/types"
	"github.com/aki-0517/metawallet/internal/util"
)

type evmSource struct {
	network *evm.Network
}

// NewEVMSource adapts the EVM network to the aggregator.
func NewEVMSource(network *evm.Network) Source {
	return &evmSource{network: network}
}

func (s *evmSource) Chain() types.Chain {
	return types.ChainEthereum
}

func (s *evmSource) Fetch(ctx context.Context, address string) (Snapshot, error) {
	owner := ecommon.HexToAddress(address)

	native, err := s.network.Balance.GetNativeBalance(ctx, owner)
	if err != nil {
		return Snapshot{}, fmt.Errorf("failed to fetch native balance: %w", err)
	}

	usdc, err := s.network.Balance.GetERC20Balance(ctx, s.network.USDC(), owner)
	if err != nil {
		return Snapshot{}, fmt.Errorf("failed to fetch USDC balance: %w", err)
	}

	return Snapshot{
		Native: decimal.NewFromBigInt(native, -int32(util.NativeDecimals[types.ChainEthereum])),
		USDC:   decimal.NewFromBigInt(usdc, -util.USDCDecimals),
	}, nil
}

type solanaSource struct {
	network *solana.Network
}

// NewSolanaSource adapts the Solana network to the aggregator.
func NewSolanaSource(network *solana.Network) Source {
	return &solanaSource{network: network}
}

func (s *solanaSource) Chain() types.Chain {
	return types.ChainSolana
}

func (s *solanaSource) Fetch(ctx context.Context, address string) (Snapshot, error) {
	owner, err := sdk.PublicKeyFromBase58(address)
	if err != nil {
		return Snapshot{}, fmt.Errorf("invalid owner public key: %w", err)
	}

	native, err := s.network.Balance.GetNativeBalance(ctx, owner)
	if err != nil {
		return Snapshot{}, fmt.Errorf("failed to fetch native balance: %w", err)
	}

	usdc, err := s.network.Balance.GetTokenBalance(ctx, owner, s.network.USDCMint())
	if err != nil {
		return Snapshot{}, fmt.Errorf("failed to fetch USDC balance: %w", err)
	}

	return Snapshot{
		Native: decimal.New(int64(native), -int32(util.NativeDecimals[types.ChainSolana])),
		USDC:   decimal.New(int64(usdc), -util.USDCDecimals),
	}, nil
}
