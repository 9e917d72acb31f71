package transfer

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"

	"github.com/aki-0517/metawallet/internal/ledger"
	"github.com/aki-0517/metawallet/internal/localstore"
	"github.com/aki-0517/metawallet/internal/naming"
	"github.com/aki-0517/metawallet/internal/types"
)

const (
	testEVMAddress    = "0x2c7536E3605D9C16a7a3D7b1898e529396a65c23"
	testSolanaAddress = "9WzDXwBbmkg8ZTbNMqUxvQRAyrZzDsGYdLVL9zYtAWWM"
)

type fakeRegistry struct {
	owners map[string]string
}

func (f *fakeRegistry) CheckAvailable(ctx context.Context, name string) (bool, error) {
	_, taken := f.owners[name]
	return !taken, nil
}

func (f *fakeRegistry) Resolve(ctx context.Context, name string) (string, error) {
	return f.owners[name], nil
}

func (f *fakeRegistry) ReverseLookup(ctx context.Context, address string) (string, error) {
	return "", nil
}

type fakeSender struct {
	chain types.Chain
	err   error
	sent  []decimal.Decimal
	to    []string
}

func (f *fakeSender) Chain() types.Chain { return f.chain }

func (f *fakeSender) Send(ctx context.Context, to string, amount decimal.Decimal) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	f.sent = append(f.sent, amount)
	f.to = append(f.to, to)
	return fmt.Sprintf("%s-tx-%d", f.chain, len(f.sent)), nil
}

func testLedger(t *testing.T) *ledger.Ledger {
	t.Helper()
	mr := miniredis.RunT(t)
	kv := localstore.NewWithClient(redis.NewClient(&redis.Options{Addr: mr.Addr()}))
	return ledger.New(kv, logrus.New())
}

func testRouter(t *testing.T, evmReg, solReg naming.Registry, senders ...Sender) (*Router, *ledger.Ledger) {
	t.Helper()
	led := testLedger(t)
	resolver := naming.NewResolver(evmReg, solReg, logrus.New())
	r, err := NewRouter(resolver, senders, led, DefaultPolicy(), logrus.New())
	require.NoError(t, err)
	return r, led
}

func TestSplitConservesTotal(t *testing.T) {
	policy := DefaultPolicy()

	for _, amount := range []string{"100", "50", "0.01", "33.333333", "1", "0.000001", "999999.123456"} {
		total := decimal.RequireFromString(amount)
		legs, err := policy.Split(total, types.SelectAuto, testEVMAddress, testSolanaAddress)
		require.NoError(t, err, amount)

		sum := decimal.Zero
		for _, leg := range legs {
			sum = sum.Add(leg.Amount)
		}
		require.True(t, sum.Equal(total), "split of %s sums to %s", amount, sum)
	}
}

func TestSplitAutoWeighting(t *testing.T) {
	legs, err := DefaultPolicy().Split(decimal.RequireFromString("100"), types.SelectAuto, testEVMAddress, testSolanaAddress)
	require.NoError(t, err)
	require.Len(t, legs, 2)
	require.Equal(t, types.ChainEthereum, legs[0].Chain)
	require.True(t, legs[0].Amount.Equal(decimal.RequireFromString("70")))
	require.Equal(t, types.ChainSolana, legs[1].Chain)
	require.True(t, legs[1].Amount.Equal(decimal.RequireFromString("30")))
}

func TestSplitSingleChainDestinationGetsEverything(t *testing.T) {
	legs, err := DefaultPolicy().Split(decimal.RequireFromString("50"), types.SelectAuto, "", testSolanaAddress)
	require.NoError(t, err)
	require.Len(t, legs, 1)
	require.Equal(t, types.ChainSolana, legs[0].Chain)
	require.True(t, legs[0].Amount.Equal(decimal.RequireFromString("50")))
}

func TestSplitExplicitSelectionMissingAddress(t *testing.T) {
	legs, err := DefaultPolicy().Split(decimal.RequireFromString("50"), types.SelectEthereum, "", testSolanaAddress)
	require.NoError(t, err)
	require.Empty(t, legs)
}

func TestSplitRejectsNonPositiveAmount(t *testing.T) {
	for _, amount := range []string{"0", "-5"} {
		_, err := DefaultPolicy().Split(decimal.RequireFromString(amount), types.SelectAuto, testEVMAddress, testSolanaAddress)
		require.ErrorIs(t, err, ErrInvalidAmount)
	}
}

func TestAutoSendToDualChainUsername(t *testing.T) {
	evmReg := &fakeRegistry{owners: map[string]string{"alice.eth": testEVMAddress}}
	solReg := &fakeRegistry{owners: map[string]string{"alice.sol": testSolanaAddress}}
	evmSend := &fakeSender{chain: types.ChainEthereum}
	solSend := &fakeSender{chain: types.ChainSolana}
	r, led := testRouter(t, evmReg, solReg, evmSend, solSend)

	ctx := context.Background()
	tr := r.NewTransfer(Request{
		Destination: "@alice",
		Amount:      decimal.RequireFromString("100"),
		Selection:   types.SelectAuto,
	})

	require.NoError(t, r.Resolve(ctx, tr))
	require.Equal(t, StateReadyToConfirm, tr.State)
	require.Equal(t, "@alice", tr.Counterparty)

	owners := map[types.Chain]string{
		types.ChainEthereum: "0xSenderEVM",
		types.ChainSolana:   "SenderSol",
	}
	results, err := r.Confirm(ctx, tr, owners)
	require.NoError(t, err)
	require.Equal(t, StateSettled, tr.State)
	require.Len(t, results, 2)

	require.Len(t, evmSend.sent, 1)
	require.True(t, evmSend.sent[0].Equal(decimal.RequireFromString("70")))
	require.Len(t, solSend.sent, 1)
	require.True(t, solSend.sent[0].Equal(decimal.RequireFromString("30")))

	history, err := led.History(ctx, []string{"0xSenderEVM", "SenderSol"}, "")
	require.NoError(t, err)
	require.Len(t, history, 2)
	for _, tx := range history {
		require.Equal(t, types.DirectionSent, tx.Direction)
		require.Equal(t, "@alice", tx.Counterparty)
		require.Equal(t, types.StatusCompleted, tx.Status)
	}
}

func TestSendToSolanaOnlyUsername(t *testing.T) {
	evmReg := &fakeRegistry{owners: map[string]string{}}
	solReg := &fakeRegistry{owners: map[string]string{"bob.sol": testSolanaAddress}}
	evmSend := &fakeSender{chain: types.ChainEthereum}
	solSend := &fakeSender{chain: types.ChainSolana}
	r, led := testRouter(t, evmReg, solReg, evmSend, solSend)

	ctx := context.Background()
	tr := r.NewTransfer(Request{
		Destination: "@bob",
		Amount:      decimal.RequireFromString("50"),
		Selection:   types.SelectAuto,
	})

	require.NoError(t, r.Resolve(ctx, tr))
	results, err := r.Confirm(ctx, tr, map[types.Chain]string{types.ChainSolana: "SenderSol"})
	require.NoError(t, err)
	require.Len(t, results, 1)
	require.Equal(t, types.ChainSolana, results[0].Chain)
	require.True(t, results[0].Amount.Equal(decimal.RequireFromString("50")))

	require.Empty(t, evmSend.sent, "no EVM transfer may be attempted")
	require.Len(t, solSend.sent, 1)

	history, err := led.History(ctx, []string{"SenderSol"}, "")
	require.NoError(t, err)
	require.Len(t, history, 1)
	require.Equal(t, types.ChainSolana, history[0].Chain)
}

func TestResolveUnknownUsername(t *testing.T) {
	r, _ := testRouter(t,
		&fakeRegistry{owners: map[string]string{}},
		&fakeRegistry{owners: map[string]string{}},
		&fakeSender{chain: types.ChainEthereum},
	)

	tr := r.NewTransfer(Request{
		Destination: "@nobody",
		Amount:      decimal.RequireFromString("10"),
		Selection:   types.SelectAuto,
	})
	err := r.Resolve(context.Background(), tr)
	require.ErrorIs(t, err, ErrNoResolvedDestination)
	require.Equal(t, StateFailed, tr.State)
}

func TestResolveRejectsNonPositiveAmount(t *testing.T) {
	r, _ := testRouter(t, &fakeRegistry{}, &fakeRegistry{}, &fakeSender{chain: types.ChainEthereum})

	tr := r.NewTransfer(Request{
		Destination: "@alice",
		Amount:      decimal.Zero,
		Selection:   types.SelectAuto,
	})
	require.ErrorIs(t, r.Resolve(context.Background(), tr), ErrInvalidAmount)
}

func TestRawAddressSkipsRegistries(t *testing.T) {
	evmSend := &fakeSender{chain: types.ChainEthereum}
	r, _ := testRouter(t, &fakeRegistry{}, &fakeRegistry{}, evmSend)

	ctx := context.Background()
	tr := r.NewTransfer(Request{
		Destination: testEVMAddress,
		Amount:      decimal.RequireFromString("25"),
		Selection:   types.SelectEthereum,
	})

	require.NoError(t, r.Resolve(ctx, tr))
	require.Equal(t, testEVMAddress, tr.Destination.EVM)
	require.Empty(t, tr.Destination.Solana)
	require.Equal(t, testEVMAddress, tr.Counterparty)

	_, err := r.Confirm(ctx, tr, map[types.Chain]string{types.ChainEthereum: "0xSenderEVM"})
	require.NoError(t, err)
	require.Equal(t, []string{testEVMAddress}, evmSend.to)
}

func TestPartialFailureReportsPerLeg(t *testing.T) {
	evmReg := &fakeRegistry{owners: map[string]string{"alice.eth": testEVMAddress}}
	solReg := &fakeRegistry{owners: map[string]string{"alice.sol": testSolanaAddress}}
	evmSend := &fakeSender{chain: types.ChainEthereum, err: errors.New("insufficient funds")}
	solSend := &fakeSender{chain: types.ChainSolana}
	r, led := testRouter(t, evmReg, solReg, evmSend, solSend)

	ctx := context.Background()
	tr := r.NewTransfer(Request{
		Destination: "@alice",
		Amount:      decimal.RequireFromString("100"),
		Selection:   types.SelectAuto,
	})
	require.NoError(t, r.Resolve(ctx, tr))

	results, err := r.Confirm(ctx, tr, map[types.Chain]string{
		types.ChainEthereum: "0xSenderEVM",
		types.ChainSolana:   "SenderSol",
	})
	require.NoError(t, err)
	require.Equal(t, StateFailed, tr.State)

	var failed, succeeded int
	for _, res := range results {
		if res.Err != nil {
			failed++
			var rejected *RejectedError
			require.ErrorAs(t, res.Err, &rejected)
			require.Equal(t, types.ChainEthereum, rejected.Chain)
			require.Contains(t, rejected.Error(), "insufficient funds")
		} else {
			succeeded++
			require.Equal(t, types.ChainSolana, res.Chain)
		}
	}
	require.Equal(t, 1, failed)
	require.Equal(t, 1, succeeded)

	// The successful leg is in the ledger; the failed one is not.
	history, err := led.History(ctx, []string{"0xSenderEVM", "SenderSol"}, "")
	require.NoError(t, err)
	require.Len(t, history, 1)
	require.Equal(t, types.ChainSolana, history[0].Chain)
}

func TestConfirmWithoutSenderIsProviderUnavailable(t *testing.T) {
	evmReg := &fakeRegistry{owners: map[string]string{"alice.eth": testEVMAddress}}
	r, _ := testRouter(t, evmReg, &fakeRegistry{})

	ctx := context.Background()
	tr := r.NewTransfer(Request{
		Destination: "@alice",
		Amount:      decimal.RequireFromString("10"),
		Selection:   types.SelectEthereum,
	})
	require.NoError(t, r.Resolve(ctx, tr))

	_, err := r.Confirm(ctx, tr, nil)
	require.ErrorIs(t, err, ErrProviderUnavailable)
}

func TestIsUsername(t *testing.T) {
	require.True(t, IsUsername("@alice"))
	require.True(t, IsUsername("alice"))
	require.False(t, IsUsername(testEVMAddress))
	require.False(t, IsUsername(testSolanaAddress))
	require.False(t, IsUsername(strings.Repeat("a", 30)))
}
