package bridge

import (
	"context"
	"crypto/ecdsa"
	"encoding/hex"
	"errors"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	ecommon "github.com/ethereum/go-ethereum/common"
	"github.com/sirupsen/logrus"

	"github.com/aki-0517/metawallet/internal/attestation"
	"github.com/aki-0517/metawallet/internal/evm"
)

const receiveMessageABI = `[
	{"name":"receiveMessage","type":"function","stateMutability":"nonpayable","inputs":[{"name":"message","type":"bytes"},{"name":"attestation","type":"bytes"}],"outputs":[{"name":"success","type":"bool"}]}
]`

// EVMMinter relays an attested burn message to the destination chain's
// message transmitter contract.
type EVMMinter struct {
	network     *evm.Network
	transmitter ecommon.Address
	abi         abi.ABI
	key         *ecdsa.PrivateKey
	logger      *logrus.Entry
}

func NewEVMMinter(
	network *evm.Network,
	transmitterAddress string,
	key *ecdsa.PrivateKey,
	logger *logrus.Logger,
) (*EVMMinter, error) {
	parsed, err := abi.JSON(strings.NewReader(receiveMessageABI))
	if err != nil {
		return nil, fmt.Errorf("failed to parse receiveMessage ABI: %w", err)
	}
	if transmitterAddress == "" {
		transmitterAddress = DefaultEVMMessageTransmitter
	}
	return &EVMMinter{
		network:     network,
		transmitter: ecommon.HexToAddress(transmitterAddress),
		abi:         parsed,
		key:         key,
		logger:      logger.WithField("pkg", "bridge"),
	}, nil
}

// Mint submits receiveMessage with the attested payload. confirmed is
// false when the receipt poll runs out before the transaction mines;
// the mint may still land, so that case is not an error.
func (m *EVMMinter) Mint(ctx context.Context, msg attestation.Message) (string, bool, error) {
	message, err := hex.DecodeString(strings.TrimPrefix(msg.Message, "0x"))
	if err != nil {
		return "", false, fmt.Errorf("invalid attestation message encoding: %w", err)
	}
	signature, err := hex.DecodeString(strings.TrimPrefix(msg.Attestation, "0x"))
	if err != nil {
		return "", false, fmt.Errorf("invalid attestation signature encoding: %w", err)
	}

	data, err := m.abi.Pack("receiveMessage", message, signature)
	if err != nil {
		return "", false, fmt.Errorf("failed to pack receiveMessage: %w", err)
	}

	txHash, err := m.network.Send.SubmitCall(ctx, m.key, m.transmitter, big.NewInt(0), data)
	if err != nil {
		return "", false, fmt.Errorf("failed to submit mint: %w", err)
	}

	receipt, err := m.network.WaitReceipt(ctx, txHash)
	if err != nil {
		if errors.Is(err, evm.ErrTxReverted) {
			return txHash, false, fmt.Errorf("%w: %s", ErrMintReverted, txHash)
		}
		return txHash, false, err
	}
	if receipt == nil {
		m.logger.Warnf("mint %s submitted, confirmation unknown", txHash)
		return txHash, false, nil
	}

	return txHash, true, nil
}
