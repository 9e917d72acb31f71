package balance

import (
	"context"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/aki-0517/metawallet/internal/types"
)

// Watcher refreshes the aggregated view on an interval and on demand.
// Every fetch carries a sequence number taken when it starts; a fetch
// that finishes after a newer one has started is dropped, so displayed
// balances never move backwards to a stale read.
type Watcher struct {
	agg      *Aggregator
	interval time.Duration
	deliver  func(Balances)
	logger   *logrus.Entry

	mu      sync.Mutex
	started uint64
	applied uint64
}

func NewWatcher(agg *Aggregator, interval time.Duration, deliver func(Balances), logger *logrus.Logger) *Watcher {
	return &Watcher{
		agg:      agg,
		interval: interval,
		deliver:  deliver,
		logger:   logger.WithField("pkg", "balance"),
	}
}

// Run refreshes immediately, then on every tick until ctx is done.
func (w *Watcher) Run(ctx context.Context, addresses map[types.Chain]string) {
	w.Refresh(ctx, addresses)

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.Refresh(ctx, addresses)
		}
	}
}

// Refresh runs one fetch cycle now. Safe to call concurrently with the
// periodic loop; whichever fetch started last wins.
func (w *Watcher) Refresh(ctx context.Context, addresses map[types.Chain]string) {
	w.mu.Lock()
	w.started++
	seq := w.started
	w.mu.Unlock()

	balances, err := w.agg.Fetch(ctx, addresses)
	if err != nil {
		w.logger.WithError(err).Warn("balance refresh failed")
		return
	}

	// Deliver under the lock so results apply strictly in sequence
	// order.
	w.mu.Lock()
	defer w.mu.Unlock()
	if seq < w.started || seq <= w.applied {
		w.logger.Debug("dropping superseded balance refresh")
		return
	}
	w.applied = seq
	w.deliver(balances)
}
