package evm

import (
	"context"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	ecommon "github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/ethclient"
)

const erc20ABI = `[
	{"name":"balanceOf","type":"function","stateMutability":"view","inputs":[{"name":"account","type":"address"}],"outputs":[{"name":"balance","type":"uint256"}]},
	{"name":"decimals","type":"function","stateMutability":"view","inputs":[],"outputs":[{"name":"decimals","type":"uint8"}]},
	{"name":"transfer","type":"function","stateMutability":"nonpayable","inputs":[{"name":"to","type":"address"},{"name":"amount","type":"uint256"}],"outputs":[{"name":"success","type":"bool"}]}
]`

type balanceService struct {
	rpc   *ethclient.Client
	erc20 abi.ABI
}

func newBalanceService(rpc *ethclient.Client) (*balanceService, error) {
	parsed, err := abi.JSON(strings.NewReader(erc20ABI))
	if err != nil {
		return nil, fmt.Errorf("failed to parse ERC20 ABI: %w", err)
	}
	return &balanceService{rpc: rpc, erc20: parsed}, nil
}

func (s *balanceService) GetNativeBalance(ctx context.Context, address ecommon.Address) (*big.Int, error) {
	balance, err := s.rpc.BalanceAt(ctx, address, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to get native balance: %w", err)
	}
	return balance, nil
}

func (s *balanceService) GetERC20Balance(ctx context.Context, tokenAddress, ownerAddress ecommon.Address) (*big.Int, error) {
	data, err := s.erc20.Pack("balanceOf", ownerAddress)
	if err != nil {
		return nil, fmt.Errorf("failed to pack balanceOf: %w", err)
	}

	raw, err := s.rpc.CallContract(ctx, ethereum.CallMsg{To: &tokenAddress, Data: data}, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to get ERC20 balance: %w", err)
	}

	out, err := s.erc20.Unpack("balanceOf", raw)
	if err != nil || len(out) == 0 {
		return nil, fmt.Errorf("failed to unpack balanceOf result: %w", err)
	}
	balance, ok := out[0].(*big.Int)
	if !ok {
		return nil, fmt.Errorf("unexpected balanceOf result type")
	}
	return balance, nil
}

// GetDecimals fetches the decimals of an ERC20 token.
func (s *balanceService) GetDecimals(ctx context.Context, tokenAddress ecommon.Address) (uint8, error) {
	var zero ecommon.Address
	if tokenAddress == zero {
		return 0, fmt.Errorf("token address cannot be zero")
	}

	data, err := s.erc20.Pack("decimals")
	if err != nil {
		return 0, fmt.Errorf("failed to pack decimals: %w", err)
	}

	raw, err := s.rpc.CallContract(ctx, ethereum.CallMsg{To: &tokenAddress, Data: data}, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to get decimals for token %s: %w", tokenAddress.Hex(), err)
	}

	out, err := s.erc20.Unpack("decimals", raw)
	if err != nil || len(out) == 0 {
		return 0, fmt.Errorf("failed to unpack decimals result: %w", err)
	}
	decimals, ok := out[0].(uint8)
	if !ok {
		return 0, fmt.Errorf("unexpected decimals result type")
	}
	return decimals, nil
}
