package balance

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"

	"github.com/aki-0517/metawallet/internal/types"
)

type fakeSource struct {
	chain types.Chain
	snap  Snapshot
	err   error
	delay time.Duration

	mu    sync.Mutex
	calls int
}

func (f *fakeSource) Chain() types.Chain { return f.chain }

func (f *fakeSource) Fetch(ctx context.Context, address string) (Snapshot, error) {
	f.mu.Lock()
	f.calls++
	delay := f.delay
	f.mu.Unlock()

	if delay > 0 {
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return Snapshot{}, ctx.Err()
		}
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	return f.snap, f.err
}

func testAddresses() map[types.Chain]string {
	return map[types.Chain]string{
		types.ChainEthereum: "0x2c7536E3605D9C16a7a3D7b1898e529396a65c23",
		types.ChainSolana:   "9WzDXwBbmkg8ZTbNMqUxvQRAyrZzDsGYdLVL9zYtAWWM",
	}
}

func TestAggregatorSumsUSDCAcrossChains(t *testing.T) {
	eth := &fakeSource{chain: types.ChainEthereum, snap: Snapshot{
		Native: decimal.RequireFromString("0.5"),
		USDC:   decimal.RequireFromString("70"),
	}}
	sol := &fakeSource{chain: types.ChainSolana, snap: Snapshot{
		Native: decimal.RequireFromString("2"),
		USDC:   decimal.RequireFromString("30"),
	}}

	agg := NewAggregator([]Source{eth, sol}, logrus.New())
	out, err := agg.Fetch(context.Background(), testAddresses())
	require.NoError(t, err)

	require.True(t, out.TotalUSDC.Equal(decimal.RequireFromString("100")), out.TotalUSDC.String())
	require.True(t, out.PerChain[types.ChainEthereum].USDC.Equal(decimal.RequireFromString("70")))
	require.True(t, out.PerChain[types.ChainSolana].Native.Equal(decimal.RequireFromString("2")))
}

func TestAggregatorDegradedChainReportsZero(t *testing.T) {
	eth := &fakeSource{chain: types.ChainEthereum, err: errors.New("rpc down")}
	sol := &fakeSource{chain: types.ChainSolana, snap: Snapshot{
		USDC: decimal.RequireFromString("30"),
	}}

	agg := NewAggregator([]Source{eth, sol}, logrus.New())
	out, err := agg.Fetch(context.Background(), testAddresses())
	require.NoError(t, err)

	require.True(t, out.PerChain[types.ChainEthereum].USDC.IsZero())
	require.True(t, out.TotalUSDC.Equal(decimal.RequireFromString("30")), out.TotalUSDC.String())
}

func TestAggregatorSkipsChainsWithoutAddress(t *testing.T) {
	eth := &fakeSource{chain: types.ChainEthereum, snap: Snapshot{USDC: decimal.RequireFromString("5")}}
	sol := &fakeSource{chain: types.ChainSolana, snap: Snapshot{USDC: decimal.RequireFromString("7")}}

	agg := NewAggregator([]Source{eth, sol}, logrus.New())
	out, err := agg.Fetch(context.Background(), map[types.Chain]string{
		types.ChainSolana: "9WzDXwBbmkg8ZTbNMqUxvQRAyrZzDsGYdLVL9zYtAWWM",
	})
	require.NoError(t, err)

	require.Zero(t, eth.calls)
	require.True(t, out.TotalUSDC.Equal(decimal.RequireFromString("7")))
	_, present := out.PerChain[types.ChainEthereum]
	require.False(t, present)
}

func TestWatcherDropsSupersededRefresh(t *testing.T) {
	slow := &fakeSource{
		chain: types.ChainEthereum,
		snap:  Snapshot{USDC: decimal.RequireFromString("1")},
		delay: 50 * time.Millisecond,
	}
	agg := NewAggregator([]Source{slow}, logrus.New())

	var mu sync.Mutex
	var delivered []Balances
	w := NewWatcher(agg, time.Hour, func(b Balances) {
		mu.Lock()
		delivered = append(delivered, b)
		mu.Unlock()
	}, logrus.New())

	addrs := map[types.Chain]string{types.ChainEthereum: "0xabc"}

	// Start a slow refresh, then a second one before it finishes. The
	// first one is stale by the time it completes and must be dropped.
	done := make(chan struct{})
	go func() {
		w.Refresh(context.Background(), addrs)
		close(done)
	}()
	time.Sleep(10 * time.Millisecond)
	slow.mu.Lock()
	slow.delay = 0
	slow.snap = Snapshot{USDC: decimal.RequireFromString("2")}
	slow.mu.Unlock()
	w.Refresh(context.Background(), addrs)
	<-done

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, delivered, 1)
	require.True(t, delivered[0].TotalUSDC.Equal(decimal.RequireFromString("2")))
}

func TestWatcherRunDeliversPeriodically(t *testing.T) {
	src := &fakeSource{chain: types.ChainEthereum, snap: Snapshot{USDC: decimal.RequireFromString("9")}}
	agg := NewAggregator([]Source{src}, logrus.New())

	got := make(chan Balances, 16)
	w := NewWatcher(agg, 5*time.Millisecond, func(b Balances) { got <- b }, logrus.New())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go w.Run(ctx, map[types.Chain]string{types.ChainEthereum: "0xabc"})

	for i := 0; i < 3; i++ {
		select {
		case b := <-got:
			require.True(t, b.TotalUSDC.Equal(decimal.RequireFromString("9")))
		case <-time.After(time.Second):
			t.Fatal("watcher never delivered")
		}
	}
}
