package evm

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum"
	ecommon "github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
)

// ErrTxReverted means the transaction mined but its execution failed.
var ErrTxReverted = errors.New("transaction reverted")

// WaitReceipt polls for the receipt of txHash at the configured
// interval, up to the configured attempt ceiling. A nil receipt with a
// nil error means the poll timed out: the transaction was accepted by
// the network and may still land, so callers must not treat it as
// failure.
func (n *Network) WaitReceipt(ctx context.Context, txHash string) (*types.Receipt, error) {
	return n.waitReceipt(ctx, txHash, n.receiptInterval, n.receiptAttempts)
}

func (n *Network) waitReceipt(
	ctx context.Context,
	txHash string,
	interval time.Duration,
	attempts int,
) (*types.Receipt, error) {
	hash := ecommon.HexToHash(txHash)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for i := 0; i < attempts; i++ {
		receipt, err := n.rpc.TransactionReceipt(ctx, hash)
		if err == nil && receipt != nil {
			if receipt.Status == types.ReceiptStatusFailed {
				return receipt, fmt.Errorf("%w: %s", ErrTxReverted, txHash)
			}
			return receipt, nil
		}
		if err != nil && !errors.Is(err, ethereum.NotFound) {
			n.logger.WithError(err).Debugf("receipt poll %d/%d for %s", i+1, attempts, txHash)
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
		}
	}

	n.logger.Warnf("receipt poll exhausted for %s, confirmation unknown", txHash)
	return nil, nil
}
