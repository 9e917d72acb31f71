package balance

import (
	"context"
	"sync"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/aki-0517/metawallet/internal/types"
)

// Snapshot is one chain's view at a point in time. Amounts are
// human-readable units, not base units.
type Snapshot struct {
	Native decimal.Decimal `json:"native"`
	USDC   decimal.Decimal `json:"usdc"`
}

// Source fetches one chain's balances for an address on that chain.
type Source interface {
	Chain() types.Chain
	Fetch(ctx context.Context, address string) (Snapshot, error)
}

// Balances is the aggregated cross-chain view.
type Balances struct {
	PerChain  map[types.Chain]Snapshot `json:"per_chain"`
	TotalUSDC decimal.Decimal          `json:"total_usdc"`
}

// Aggregator fans out to each chain source concurrently and folds the
// results into a single view. A failing chain contributes zeros rather
// than failing the whole aggregation, so one degraded RPC never blanks
// the display.
type Aggregator struct {
	sources []Source
	logger  *logrus.Entry
}

func NewAggregator(sources []Source, logger *logrus.Logger) *Aggregator {
	return &Aggregator{
		sources: sources,
		logger:  logger.WithField("pkg", "balance"),
	}
}

// Fetch aggregates balances across all sources for the given per-chain
// addresses. Sources whose chain has no address are skipped.
func (a *Aggregator) Fetch(ctx context.Context, addresses map[types.Chain]string) (Balances, error) {
	out := Balances{
		PerChain:  make(map[types.Chain]Snapshot, len(a.sources)),
		TotalUSDC: decimal.Zero,
	}

	var mu sync.Mutex
	var wg sync.WaitGroup

	for _, src := range a.sources {
		address, ok := addresses[src.Chain()]
		if !ok || address == "" {
			continue
		}

		wg.Add(1)
		go func(src Source, address string) {
			defer wg.Done()

			snap, err := src.Fetch(ctx, address)
			if err != nil {
				a.logger.WithError(err).Warnf("balance fetch failed for %s, reporting zero", src.Chain())
				snap = Snapshot{Native: decimal.Zero, USDC: decimal.Zero}
			}

			mu.Lock()
			out.PerChain[src.Chain()] = snap
			out.TotalUSDC = out.TotalUSDC.Add(snap.USDC)
			mu.Unlock()
		}(src, address)
	}

	wg.Wait()
	return out, nil
}
