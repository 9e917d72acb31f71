package bridge

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/aki-0517/metawallet/internal/attestation"
	"github.com/aki-0517/metawallet/internal/ledger"
	"github.com/aki-0517/metawallet/internal/types"
	"github.com/aki-0517/metawallet/internal/util"
)

var (
	ErrBurnFailed         = errors.New("burn failed")
	ErrAttestationTimeout = errors.New("attestation timed out")
	ErrMintReverted       = errors.New("mint reverted")
	ErrBridgeFailed       = errors.New("bridge failed")
)

// Phase tracks a bridge operation through its lifecycle. Failure is
// terminal for the attempt; a retry is a fresh operation with a fresh
// nonce.
type Phase string

const (
	PhaseBurnSubmitted       Phase = "burn-submitted"
	PhaseAttestationPending  Phase = "attestation-pending"
	PhaseAttestationComplete Phase = "attestation-complete"
	PhaseMintSubmitted       Phase = "mint-submitted"
	PhaseMintConfirmed       Phase = "mint-confirmed"
	PhaseFailed              Phase = "failed"
)

// Operation is one bridge attempt, identified by its burn transaction.
type Operation struct {
	ID          string `json:"id"`
	Phase       Phase  `json:"phase"`
	BurnTx      string `json:"burn_tx,omitempty"`
	MintTx      string `json:"mint_tx,omitempty"`
	Destination string `json:"destination"`
	Amount      uint64 `json:"amount"`
	// FeeEstimate is the fee ceiling the protocol may deduct from the
	// minted amount, in base units.
	FeeEstimate uint64 `json:"fee_estimate"`
}

// Burner submits the source-chain burn and returns its transaction
// identifier.
type Burner interface {
	Burn(ctx context.Context, destination string, amount uint64) (string, error)
	// FeeEstimate quotes the burn's fee ceiling for amount base units.
	FeeEstimate(amount uint64) uint64
}

// Minter relays the attested message on the destination chain.
// confirmed reports whether a successful receipt was observed.
type Minter interface {
	Mint(ctx context.Context, msg attestation.Message) (txRef string, confirmed bool, err error)
}

// Attestor serves attestations by burn transaction identifier.
// attestation.ErrNotReady is the in-progress answer.
type Attestor interface {
	Fetch(ctx context.Context, sourceDomain uint32, txRef string) (attestation.Message, error)
}

// Config bounds the attestation poll.
type Config struct {
	SourceDomain uint32        `split_words:"true" default:"5"`
	PollInterval time.Duration `split_words:"true" default:"5s"`
	PollAttempts int           `split_words:"true" default:"60"`
}

// Coordinator drives one burn, one attestation wait, one mint. It never
// mints before the attestation completes and never re-burns within an
// attempt.
type Coordinator struct {
	burner   Burner
	minter   Minter
	attestor Attestor
	ledger   *ledger.Ledger
	cfg      Config
	logger   *logrus.Entry
}

func NewCoordinator(
	burner Burner,
	minter Minter,
	attestor Attestor,
	led *ledger.Ledger,
	cfg Config,
	logger *logrus.Logger,
) *Coordinator {
	return &Coordinator{
		burner:   burner,
		minter:   minter,
		attestor: attestor,
		ledger:   led,
		cfg:      cfg,
		logger:   logger.WithField("pkg", "bridge"),
	}
}

// Request is one Solana to EVM bridge intent. SourceOwner and
// DestinationOwner are the session addresses the ledger entries belong
// to.
type Request struct {
	Destination      string
	Amount           uint64
	SourceOwner      string
	DestinationOwner string
}

// Bridge runs the full burn, attest, mint sequence. The returned
// operation always reflects how far the attempt got, including on
// error, so the caller can see whether money already moved.
func (c *Coordinator) Bridge(ctx context.Context, req Request) (*Operation, error) {
	op := &Operation{
		ID:          uuid.NewString(),
		Destination: req.Destination,
		Amount:      req.Amount,
		FeeEstimate: c.burner.FeeEstimate(req.Amount),
	}

	burnTx, err := c.burner.Burn(ctx, req.Destination, req.Amount)
	if err != nil {
		op.Phase = PhaseFailed
		return op, fmt.Errorf("%w: %v", ErrBurnFailed, err)
	}
	op.BurnTx = burnTx
	op.Phase = PhaseBurnSubmitted
	c.recordLeg(ctx, req.SourceOwner, types.ChainSolana, types.DirectionSent, req.Destination, req.Amount, burnTx)

	op.Phase = PhaseAttestationPending
	msg, err := c.awaitAttestation(ctx, burnTx)
	if err != nil {
		op.Phase = PhaseFailed
		return op, err
	}
	op.Phase = PhaseAttestationComplete

	mintTx, confirmed, err := c.minter.Mint(ctx, msg)
	op.MintTx = mintTx
	if err != nil {
		op.Phase = PhaseFailed
		if errors.Is(err, ErrMintReverted) {
			return op, err
		}
		return op, fmt.Errorf("%w: %v", ErrBridgeFailed, err)
	}

	op.Phase = PhaseMintSubmitted
	if confirmed {
		op.Phase = PhaseMintConfirmed
	}
	c.recordLeg(ctx, req.DestinationOwner, types.ChainEthereum, types.DirectionReceived, req.SourceOwner, req.Amount, mintTx)

	c.logger.WithFields(logrus.Fields{
		"burn_tx": burnTx,
		"mint_tx": mintTx,
		"phase":   op.Phase,
	}).Info("bridge attempt finished")

	return op, nil
}

// awaitAttestation polls until the service reports a complete
// attestation or the attempt ceiling is hit. Transient service errors
// count as attempts rather than aborting the wait.
func (c *Coordinator) awaitAttestation(ctx context.Context, burnTx string) (attestation.Message, error) {
	ticker := time.NewTicker(c.cfg.PollInterval)
	defer ticker.Stop()

	for attempt := 1; attempt <= c.cfg.PollAttempts; attempt++ {
		msg, err := c.attestor.Fetch(ctx, c.cfg.SourceDomain, burnTx)
		if err == nil {
			return msg, nil
		}
		if !errors.Is(err, attestation.ErrNotReady) {
			c.logger.WithError(err).Warnf("attestation fetch failed (%d/%d)", attempt, c.cfg.PollAttempts)
		} else {
			c.logger.Debugf("waiting for attestation (%d/%d)", attempt, c.cfg.PollAttempts)
		}

		select {
		case <-ctx.Done():
			return attestation.Message{}, ctx.Err()
		case <-ticker.C:
		}
	}

	return attestation.Message{}, fmt.Errorf("%w: %s", ErrAttestationTimeout, burnTx)
}

func (c *Coordinator) recordLeg(
	ctx context.Context,
	owner string,
	chain types.Chain,
	direction types.Direction,
	counterparty string,
	amount uint64,
	hash string,
) {
	if c.ledger == nil || owner == "" {
		return
	}

	record := types.StoredTransaction{
		ID:           uuid.NewString(),
		Direction:    direction,
		Counterparty: counterparty,
		Amount:       decimal.New(int64(amount), -util.USDCDecimals),
		Currency:     types.CurrencyUSDC,
		Chain:        chain,
		Status:       types.StatusCompleted,
		Timestamp:    time.Now().UnixMilli(),
		Hash:         hash,
	}
	if err := c.ledger.Record(ctx, owner, record); err != nil {
		c.logger.WithError(err).Warnf("failed to record bridge leg %s", hash)
	}
}
