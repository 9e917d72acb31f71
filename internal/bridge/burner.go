package bridge

import (
	"context"
	"fmt"

	sdk "github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/programs/system"
	"github.com/gagliardetto/solana-go/rpc"
	"github.com/sirupsen/logrus"

	"github.com/aki-0517/metawallet/internal/solana"
)

// SolanaBurner burns USDC through the token messenger program with the
// session key bound at construction.
type SolanaBurner struct {
	network *solana.Network
	proto   *protocol
	nonces  *NonceSource
	key     sdk.PrivateKey
	logger  *logrus.Entry
}

func NewSolanaBurner(
	network *solana.Network,
	cfg ProtocolConfig,
	nonces *NonceSource,
	key sdk.PrivateKey,
	logger *logrus.Logger,
) (*SolanaBurner, error) {
	proto, err := newProtocol(cfg)
	if err != nil {
		return nil, err
	}
	return &SolanaBurner{
		network: network,
		proto:   proto,
		nonces:  nonces,
		key:     key,
		logger:  logger.WithField("pkg", "bridge"),
	}, nil
}

// FeeEstimate quotes the fast-transfer fee ceiling for a burn of amount
// base units.
func (b *SolanaBurner) FeeEstimate(amount uint64) uint64 {
	return EstimateFee(amount, b.proto.cfg.MaxFee)
}

// Burn destroys amount base units of USDC, encoding the EVM destination
// in the burn message. Returns the burn transaction signature, which is
// also the attestation lookup key.
func (b *SolanaBurner) Burn(ctx context.Context, destination string, amount uint64) (string, error) {
	owner := b.key.PublicKey()

	mintRecipient, err := EVMAddressTo32(destination)
	if err != nil {
		return "", err
	}

	// Zero destinationCaller lets any address relay the mint.
	destinationCaller := make([]byte, 32)

	nonce := b.nonces.Next(owner.String())

	burnTokenAccount, err := b.network.Token.GetAssociatedTokenAddress(owner, b.network.USDCMint(), sdk.TokenProgramID)
	if err != nil {
		return "", fmt.Errorf("failed to get burn token account: %w", err)
	}

	burnInst, eventData, err := b.proto.buildDepositForBurn(
		burnParams{
			amount:               amount,
			destinationDomain:    b.proto.cfg.DestinationDomain,
			mintRecipient:        mintRecipient,
			destinationCaller:    destinationCaller,
			maxFee:               b.proto.cfg.MaxFee,
			minFinalityThreshold: b.proto.cfg.MinFinalityThreshold,
		},
		b.network.USDCMint(),
		owner,
		burnTokenAccount,
		nonce,
	)
	if err != nil {
		return "", fmt.Errorf("failed to build deposit-for-burn: %w", err)
	}

	lamports, err := b.network.RPC().GetMinimumBalanceForRentExemption(ctx, eventDataSpace, rpc.CommitmentFinalized)
	if err != nil {
		return "", fmt.Errorf("failed to get rent exemption: %w", err)
	}

	// Live transmitter deployments expect the event account to co-sign
	// this create with a fresh keypair; the derived address instead keeps
	// the account reproducible from the nonce.
	createEventInst := system.NewCreateAccountInstruction(
		lamports,
		eventDataSpace,
		b.proto.messageTransmitterProgram,
		owner,
		eventData,
	).Build()

	b.logger.WithFields(logrus.Fields{
		"amount":      amount,
		"destination": destination,
		"nonce":       nonce,
	}).Info("submitting burn")

	sig, err := b.network.Submit(ctx, b.key, nil, []sdk.Instruction{createEventInst, burnInst})
	if err != nil {
		return "", fmt.Errorf("failed to submit burn: %w", err)
	}
	return sig, nil
}
