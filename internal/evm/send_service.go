package evm

import (
	"context"
	"crypto/ecdsa"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	ecommon "github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"
)

// fallbackGasLimit is used when estimation fails; generous for an
// ERC20 transfer.
const fallbackGasLimit = 120_000

type sendService struct {
	rpc     *ethclient.Client
	chainID *big.Int
	erc20   abi.ABI
}

func newSendService(rpc *ethclient.Client, chainID *big.Int) (*sendService, error) {
	parsed, err := abi.JSON(strings.NewReader(erc20ABI))
	if err != nil {
		return nil, fmt.Errorf("failed to parse ERC20 ABI: %w", err)
	}
	return &sendService{rpc: rpc, chainID: chainID, erc20: parsed}, nil
}

// SendERC20 builds, signs, and submits a token transfer from the key's
// address. Returns the transaction hash as accepted by the RPC.
func (s *sendService) SendERC20(
	ctx context.Context,
	key *ecdsa.PrivateKey,
	token ecommon.Address,
	to ecommon.Address,
	amount *big.Int,
) (string, error) {
	data, err := s.erc20.Pack("transfer", to, amount)
	if err != nil {
		return "", fmt.Errorf("failed to pack transfer: %w", err)
	}
	return s.SubmitCall(ctx, key, token, big.NewInt(0), data)
}

// SubmitCall signs and submits an arbitrary contract call.
func (s *sendService) SubmitCall(
	ctx context.Context,
	key *ecdsa.PrivateKey,
	to ecommon.Address,
	value *big.Int,
	data []byte,
) (string, error) {
	from := crypto.PubkeyToAddress(key.PublicKey)

	nonce, err := s.rpc.PendingNonceAt(ctx, from)
	if err != nil {
		return "", fmt.Errorf("failed to get nonce: %w", err)
	}

	gasPrice, err := s.rpc.SuggestGasPrice(ctx)
	if err != nil {
		return "", fmt.Errorf("failed to get gas price: %w", err)
	}

	gasLimit, err := s.rpc.EstimateGas(ctx, ethereum.CallMsg{
		From:  from,
		To:    &to,
		Value: value,
		Data:  data,
	})
	if err != nil {
		gasLimit = fallbackGasLimit
	}

	tx := types.NewTx(&types.LegacyTx{
		Nonce:    nonce,
		To:       &to,
		Value:    value,
		Gas:      gasLimit,
		GasPrice: gasPrice,
		Data:     data,
	})

	signed, err := types.SignTx(tx, types.LatestSignerForChainID(s.chainID), key)
	if err != nil {
		return "", fmt.Errorf("failed to sign transaction: %w", err)
	}

	if err := s.rpc.SendTransaction(ctx, signed); err != nil {
		return "", fmt.Errorf("failed to broadcast transaction: %w", err)
	}

	return signed.Hash().Hex(), nil
}
