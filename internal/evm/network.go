package evm

import (
	"context"
	"crypto/ecdsa"
	"fmt"
	"math/big"
	"time"

	ecommon "github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/sirupsen/logrus"
)

// Config points at one EVM deployment.
type Config struct {
	RPCURL      string        `split_words:"true" required:"true"`
	USDCAddress string        `split_words:"true" required:"true"`
	// ReceiptInterval/ReceiptAttempts bound how long WaitReceipt polls.
	ReceiptInterval time.Duration `split_words:"true" default:"10s"`
	ReceiptAttempts int           `split_words:"true" default:"30"`
}

// Network is the EVM-side facade: balances, token transfers, receipt
// waits. Signing keys are session-scoped and passed per call.
type Network struct {
	rpc     *ethclient.Client
	chainID *big.Int
	usdc    ecommon.Address

	Balance *balanceService
	Send    *sendService

	receiptInterval time.Duration
	receiptAttempts int

	// smart is the optional smart-contract-account collaborator; nil
	// means EOA transfers only.
	smart  SmartAccountClient
	logger *logrus.Entry
}

func NewNetwork(ctx context.Context, cfg Config, smart SmartAccountClient, logger *logrus.Logger) (*Network, error) {
	rpc, err := ethclient.DialContext(ctx, cfg.RPCURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to RPC: %w", err)
	}

	chainID, err := rpc.ChainID(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get chain ID: %w", err)
	}

	balance, err := newBalanceService(rpc)
	if err != nil {
		return nil, err
	}
	send, err := newSendService(rpc, chainID)
	if err != nil {
		return nil, err
	}

	return &Network{
		rpc:             rpc,
		chainID:         chainID,
		usdc:            ecommon.HexToAddress(cfg.USDCAddress),
		Balance:         balance,
		Send:            send,
		receiptInterval: cfg.ReceiptInterval,
		receiptAttempts: cfg.ReceiptAttempts,
		smart:           smart,
		logger:          logger.WithField("pkg", "evm"),
	}, nil
}

func (n *Network) RPC() *ethclient.Client {
	return n.rpc
}

func (n *Network) USDC() ecommon.Address {
	return n.usdc
}

// SendUSDC moves amount base units of USDC to `to`. When a smart
// account with token-paid gas is available it is preferred; any smart
// path failure falls back to the plain EOA transfer rather than failing
// the operation.
func (n *Network) SendUSDC(ctx context.Context, key *ecdsa.PrivateKey, to ecommon.Address, amount *big.Int) (string, error) {
	if n.smart != nil {
		available, err := n.smart.Available(ctx)
		if err != nil {
			n.logger.WithError(err).Warn("smart account availability check failed, using EOA path")
		} else if available {
			hash, err := n.smart.SendERC20WithTokenGas(ctx, n.usdc, to, amount)
			if err == nil {
				return hash, nil
			}
			n.logger.WithError(err).Warn("smart account transfer failed, falling back to EOA path")
		}
	}

	hash, err := n.Send.SendERC20(ctx, key, n.usdc, to, amount)
	if err != nil {
		return "", fmt.Errorf("failed to send ERC20 transfer: %w", err)
	}
	return hash, nil
}

// KeyedSender binds a session key to the network so protocol clients
// (the name registrar, the bridge minter) can submit arbitrary calls.
type KeyedSender struct {
	n   *Network
	key *ecdsa.PrivateKey
}

func (n *Network) WithKey(key *ecdsa.PrivateKey) *KeyedSender {
	return &KeyedSender{n: n, key: key}
}

func (s *KeyedSender) SubmitCall(ctx context.Context, to ecommon.Address, value *big.Int, data []byte) (string, error) {
	return s.n.Send.SubmitCall(ctx, s.key, to, value, data)
}

func (s *KeyedSender) WaitMined(ctx context.Context, txHash string) error {
	receipt, err := s.n.WaitReceipt(ctx, txHash)
	if err != nil {
		return err
	}
	if receipt == nil {
		return fmt.Errorf("receipt wait timed out for %s", txHash)
	}
	return nil
}
