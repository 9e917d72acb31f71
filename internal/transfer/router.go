package transfer

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/aki-0517/metawallet/internal/ledger"
	"github.com/aki-0517/metawallet/internal/naming"
	"github.com/aki-0517/metawallet/internal/types"
)

var (
	ErrInvalidAmount         = errors.New("amount must be positive")
	ErrNoResolvedDestination = errors.New("destination does not resolve on any usable chain")
	ErrProviderUnavailable   = errors.New("no signing context for this session")
)

// RejectedError carries a chain-specific transfer failure with the
// underlying reason preserved for user display.
type RejectedError struct {
	Chain  types.Chain
	Reason error
}

func (e *RejectedError) Error() string {
	return fmt.Sprintf("transfer rejected on %s: %v", e.Chain, e.Reason)
}

func (e *RejectedError) Unwrap() error {
	return e.Reason
}

// State is the lifecycle of one transfer request.
type State string

const (
	StateDraft          State = "draft"
	StateResolving      State = "resolving"
	StateReadyToConfirm State = "ready_to_confirm"
	StateSubmitting     State = "submitting"
	StateSettled        State = "settled"
	StateFailed         State = "failed"
)

// Sender executes one chain's USDC transfer with the session's signing
// context already bound.
type Sender interface {
	Chain() types.Chain
	Send(ctx context.Context, to string, amount decimal.Decimal) (string, error)
}

// Request is the user's transfer intent: a destination that is either a
// @username or a raw address, an amount, and a chain selection.
type Request struct {
	Destination string
	Amount      decimal.Decimal
	Selection   types.ChainSelection
}

// Transfer tracks one request through the state machine. Not safe for
// concurrent mutation; each request gets its own instance.
type Transfer struct {
	State        State
	Request      Request
	Destination  naming.ResolvedDestination
	Counterparty string
	Legs         []LegResult
}

// LegResult reports one chain leg's outcome so a partial multi-chain
// failure can name which legs moved money.
type LegResult struct {
	Chain  types.Chain     `json:"chain"`
	Amount decimal.Decimal `json:"amount"`
	TxRef  string          `json:"tx_ref,omitempty"`
	Err    error           `json:"-"`
}

// Router resolves destinations, splits amounts across chains, and
// dispatches the per-chain legs.
type Router struct {
	resolver *naming.Resolver
	senders  map[types.Chain]Sender
	ledger   *ledger.Ledger
	policy   Policy
	logger   *logrus.Entry
}

func NewRouter(
	resolver *naming.Resolver,
	senders []Sender,
	led *ledger.Ledger,
	policy Policy,
	logger *logrus.Logger,
) (*Router, error) {
	if err := policy.Validate(); err != nil {
		return nil, fmt.Errorf("invalid distribution policy: %w", err)
	}

	byChain := make(map[types.Chain]Sender, len(senders))
	for _, s := range senders {
		byChain[s.Chain()] = s
	}

	return &Router{
		resolver: resolver,
		senders:  byChain,
		ledger:   led,
		policy:   policy,
		logger:   logger.WithField("pkg", "transfer"),
	}, nil
}

// NewTransfer starts a request in Draft without touching the network.
func (r *Router) NewTransfer(req Request) *Transfer {
	return &Transfer{State: StateDraft, Request: req}
}

// IsUsername reports whether the destination field is username-shaped
// rather than a raw chain address.
func IsUsername(destination string) bool {
	d := strings.TrimSpace(destination)
	if strings.HasPrefix(d, "@") {
		return true
	}
	if strings.HasPrefix(d, "0x") {
		return false
	}
	// Raw Solana addresses are base58 and at least 32 characters;
	// anything short enough to be a username is treated as one.
	return len(d) <= 20
}

// Resolve moves a draft to ReadyToConfirm by resolving the destination.
// Raw addresses skip the registries and bind to the chain their format
// implies.
func (r *Router) Resolve(ctx context.Context, t *Transfer) error {
	if t.State != StateDraft {
		return fmt.Errorf("cannot resolve transfer in state %s", t.State)
	}
	if !t.Request.Amount.IsPositive() {
		t.State = StateFailed
		return ErrInvalidAmount
	}

	destination := strings.TrimSpace(t.Request.Destination)
	if destination == "" {
		t.State = StateFailed
		return ErrNoResolvedDestination
	}

	t.State = StateResolving

	if IsUsername(destination) {
		resolved, err := r.resolver.ResolveUsername(ctx, destination)
		if err != nil {
			t.State = StateFailed
			if errors.Is(err, naming.ErrUsernameNotFound) {
				return fmt.Errorf("%w: %s", ErrNoResolvedDestination, destination)
			}
			return err
		}
		t.Destination = resolved
		t.Counterparty = "@" + naming.Normalize(destination)
	} else if strings.HasPrefix(destination, "0x") {
		t.Destination = naming.ResolvedDestination{EVM: destination}
		t.Counterparty = destination
	} else {
		t.Destination = naming.ResolvedDestination{Solana: destination}
		t.Counterparty = destination
	}

	t.State = StateReadyToConfirm
	return nil
}

// Confirm computes the distribution and dispatches every leg
// concurrently. Legs fail independently; the returned results name
// which legs moved money. owners maps each chain to the session address
// the ledger entry belongs to.
func (r *Router) Confirm(ctx context.Context, t *Transfer, owners map[types.Chain]string) ([]LegResult, error) {
	if t.State != StateReadyToConfirm {
		return nil, fmt.Errorf("cannot confirm transfer in state %s", t.State)
	}

	legs, err := r.policy.Split(
		t.Request.Amount,
		t.Request.Selection,
		t.Destination.EVM,
		t.Destination.Solana,
	)
	if err != nil {
		t.State = StateFailed
		return nil, err
	}
	if len(legs) == 0 {
		t.State = StateFailed
		return nil, ErrNoResolvedDestination
	}

	for _, leg := range legs {
		if _, ok := r.senders[leg.Chain]; !ok {
			t.State = StateFailed
			return nil, fmt.Errorf("%w: no sender for %s", ErrProviderUnavailable, leg.Chain)
		}
	}

	t.State = StateSubmitting

	results := make([]LegResult, len(legs))
	var wg sync.WaitGroup
	for i, leg := range legs {
		wg.Add(1)
		go func(i int, leg Leg) {
			defer wg.Done()
			results[i] = r.dispatch(ctx, t, leg, owners[leg.Chain])
		}(i, leg)
	}
	wg.Wait()

	t.Legs = results
	t.State = StateSettled
	for _, res := range results {
		if res.Err != nil {
			t.State = StateFailed
			break
		}
	}

	return results, nil
}

func (r *Router) dispatch(ctx context.Context, t *Transfer, leg Leg, owner string) LegResult {
	result := LegResult{Chain: leg.Chain, Amount: leg.Amount}

	txRef, err := r.senders[leg.Chain].Send(ctx, leg.Address, leg.Amount)
	if err != nil {
		result.Err = &RejectedError{Chain: leg.Chain, Reason: err}
		r.logger.WithError(err).Warnf("%s leg failed for %s", leg.Chain, leg.Amount)
		return result
	}
	result.TxRef = txRef

	record := types.StoredTransaction{
		ID:           uuid.NewString(),
		Direction:    types.DirectionSent,
		Counterparty: t.Counterparty,
		Amount:       leg.Amount,
		Currency:     types.CurrencyUSDC,
		Chain:        leg.Chain,
		Status:       types.StatusCompleted,
		Timestamp:    time.Now().UnixMilli(),
		Hash:         txRef,
	}
	if err := r.ledger.Record(ctx, owner, record); err != nil {
		// The transfer already happened; a ledger write failure must not
		// flip the leg to failed.
		r.logger.WithError(err).Warnf("failed to record %s leg %s", leg.Chain, txRef)
	}

	return result
}
