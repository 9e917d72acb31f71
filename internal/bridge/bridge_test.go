package bridge

import (
	"context"
	"encoding/binary"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"

	"github.com/aki-0517/metawallet/internal/attestation"
)

type fakeBurner struct {
	tx  string
	err error
}

func (f *fakeBurner) Burn(ctx context.Context, destination string, amount uint64) (string, error) {
	return f.tx, f.err
}

func (f *fakeBurner) FeeEstimate(amount uint64) uint64 {
	return EstimateFee(amount, DefaultMaxFee)
}

type fakeMinter struct {
	tx        string
	confirmed bool
	err       error
	calls     atomic.Int64
}

func (f *fakeMinter) Mint(ctx context.Context, msg attestation.Message) (string, bool, error) {
	f.calls.Add(1)
	return f.tx, f.confirmed, f.err
}

type fakeAttestor struct {
	msg      attestation.Message
	err      error
	notReady int // answers ErrNotReady this many times first
	calls    atomic.Int64
}

func (f *fakeAttestor) Fetch(ctx context.Context, sourceDomain uint32, txRef string) (attestation.Message, error) {
	n := f.calls.Add(1)
	if int(n) <= f.notReady {
		return attestation.Message{}, attestation.ErrNotReady
	}
	if f.err != nil {
		return attestation.Message{}, f.err
	}
	return f.msg, nil
}

func fastConfig(attempts int) Config {
	return Config{
		SourceDomain: DefaultSolanaDomain,
		PollInterval: time.Millisecond,
		PollAttempts: attempts,
	}
}

func TestBridgeHappyPath(t *testing.T) {
	burner := &fakeBurner{tx: "burn-sig"}
	minter := &fakeMinter{tx: "0xmint", confirmed: true}
	attestor := &fakeAttestor{
		notReady: 3,
		msg:      attestation.Message{Message: "0xdead", Attestation: "0xbeef", Status: attestation.StatusComplete},
	}

	c := NewCoordinator(burner, minter, attestor, nil, fastConfig(60), logrus.New())
	op, err := c.Bridge(context.Background(), Request{Destination: "0xabc", Amount: 5_000_000})
	require.NoError(t, err)
	require.Equal(t, PhaseMintConfirmed, op.Phase)
	require.Equal(t, "burn-sig", op.BurnTx)
	require.Equal(t, "0xmint", op.MintTx)
	require.Equal(t, uint64(DefaultMaxFee), op.FeeEstimate)
	require.Equal(t, int64(1), minter.calls.Load())
}

func TestEstimateFee(t *testing.T) {
	// A tenth of a percent, capped at the protocol max fee.
	cases := []struct {
		amount uint64
		want   uint64
	}{
		{0, 0},
		{999, 0},
		{100_000, 100},
		{500_000, 500},
		{5_000_000, 500},
		{1_000_000_000, 500},
	}
	for _, tc := range cases {
		require.Equal(t, tc.want, EstimateFee(tc.amount, DefaultMaxFee), "amount %d", tc.amount)
	}

	// The cap follows the configured ceiling.
	require.Equal(t, uint64(1000), EstimateFee(5_000_000, 1000))
}

func TestBridgeNeverMintsWithoutCompleteAttestation(t *testing.T) {
	burner := &fakeBurner{tx: "burn-sig"}
	minter := &fakeMinter{tx: "0xmint", confirmed: true}
	// The attestor never reports completion.
	attestor := &fakeAttestor{notReady: 1 << 30}

	c := NewCoordinator(burner, minter, attestor, nil, fastConfig(20), logrus.New())
	op, err := c.Bridge(context.Background(), Request{Destination: "0xabc", Amount: 1})

	require.ErrorIs(t, err, ErrAttestationTimeout)
	require.Equal(t, PhaseFailed, op.Phase)
	require.Equal(t, "burn-sig", op.BurnTx, "burn already happened and must be reported")
	require.Zero(t, minter.calls.Load(), "mint must never run without a complete attestation")
}

func TestBridgeAttestationTimeoutAfterAttemptCeiling(t *testing.T) {
	attestor := &fakeAttestor{notReady: 1 << 30}
	c := NewCoordinator(&fakeBurner{tx: "sig"}, &fakeMinter{}, attestor, nil, fastConfig(10), logrus.New())

	_, err := c.Bridge(context.Background(), Request{Destination: "0xabc", Amount: 1})
	require.ErrorIs(t, err, ErrAttestationTimeout)
	require.Equal(t, int64(10), attestor.calls.Load())
}

func TestBridgeBurnFailure(t *testing.T) {
	burner := &fakeBurner{err: errors.New("insufficient balance")}
	minter := &fakeMinter{}
	c := NewCoordinator(burner, minter, &fakeAttestor{}, nil, fastConfig(5), logrus.New())

	op, err := c.Bridge(context.Background(), Request{Destination: "0xabc", Amount: 1})
	require.ErrorIs(t, err, ErrBurnFailed)
	require.Equal(t, PhaseFailed, op.Phase)
	require.Empty(t, op.BurnTx)
	require.Zero(t, minter.calls.Load())
}

func TestBridgeMintRevertIsTerminal(t *testing.T) {
	minter := &fakeMinter{tx: "0xmint", err: ErrMintReverted}
	attestor := &fakeAttestor{msg: attestation.Message{Message: "0x01", Attestation: "0x02"}}
	c := NewCoordinator(&fakeBurner{tx: "sig"}, minter, attestor, nil, fastConfig(5), logrus.New())

	op, err := c.Bridge(context.Background(), Request{Destination: "0xabc", Amount: 1})
	require.ErrorIs(t, err, ErrMintReverted)
	require.Equal(t, PhaseFailed, op.Phase)
	require.Equal(t, "sig", op.BurnTx)
}

func TestBridgeUnconfirmedMintIsNotFailure(t *testing.T) {
	minter := &fakeMinter{tx: "0xmint", confirmed: false}
	attestor := &fakeAttestor{msg: attestation.Message{Message: "0x01", Attestation: "0x02"}}
	c := NewCoordinator(&fakeBurner{tx: "sig"}, minter, attestor, nil, fastConfig(5), logrus.New())

	op, err := c.Bridge(context.Background(), Request{Destination: "0xabc", Amount: 1})
	require.NoError(t, err)
	require.Equal(t, PhaseMintSubmitted, op.Phase)
	require.Equal(t, "0xmint", op.MintTx)
}

func TestBridgeCancelReleasesPoll(t *testing.T) {
	attestor := &fakeAttestor{notReady: 1 << 30}
	c := NewCoordinator(&fakeBurner{tx: "sig"}, &fakeMinter{}, attestor, nil, Config{
		SourceDomain: DefaultSolanaDomain,
		PollInterval: time.Hour,
		PollAttempts: 60,
	}, logrus.New())

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()

	done := make(chan error, 1)
	go func() {
		_, err := c.Bridge(ctx, Request{Destination: "0xabc", Amount: 1})
		done <- err
	}()

	select {
	case err := <-done:
		require.ErrorIs(t, err, context.Canceled)
	case <-time.After(time.Second):
		t.Fatal("bridge did not release its poll on cancellation")
	}
}

func TestDepositForBurnSerialization(t *testing.T) {
	recipient := make([]byte, 32)
	recipient[31] = 0xAA
	caller := make([]byte, 32)

	data := serializeDepositForBurn(burnParams{
		amount:               7_000_000,
		destinationDomain:    DefaultEthereumDomain,
		mintRecipient:        recipient,
		destinationCaller:    caller,
		maxFee:               DefaultMaxFee,
		minFinalityThreshold: DefaultMinFinalityThreshold,
	})

	require.Len(t, data, 8+depositForBurnDataLen)
	require.Equal(t, depositForBurnDiscriminator, data[:8])
	require.Equal(t, uint64(7_000_000), binary.LittleEndian.Uint64(data[8:16]))
	require.Equal(t, uint32(DefaultEthereumDomain), binary.LittleEndian.Uint32(data[16:20]))
	require.Equal(t, recipient, data[20:52])
	require.Equal(t, caller, data[52:84])
	require.Equal(t, uint64(DefaultMaxFee), binary.LittleEndian.Uint64(data[84:92]))
	require.Equal(t, uint32(DefaultMinFinalityThreshold), binary.LittleEndian.Uint32(data[92:96]))
}

func TestEVMAddressTo32(t *testing.T) {
	out, err := EVMAddressTo32("0x2c7536E3605D9C16a7a3D7b1898e529396a65c23")
	require.NoError(t, err)
	require.Len(t, out, 32)
	require.Equal(t, make([]byte, 12), out[:12])
	require.Equal(t, byte(0x2c), out[12])
	require.Equal(t, byte(0x23), out[31])

	_, err = EVMAddressTo32("not-an-address")
	require.Error(t, err)
}

func TestNonceSourceMonotonicPerAccount(t *testing.T) {
	s := NewNonceSource()

	var prev uint64
	for i := 0; i < 100; i++ {
		n := s.Next("owner-a")
		require.Greater(t, n, prev)
		prev = n
	}

	// A different account has its own sequence.
	other := s.Next("owner-b")
	require.NotZero(t, other)
}
