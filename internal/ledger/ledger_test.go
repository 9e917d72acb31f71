package ledger

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"

	"github.com/aki-0517/metawallet/internal/localstore"
	"github.com/aki-0517/metawallet/internal/types"
)

func newTestLedger(t *testing.T) (*Ledger, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	logger := logrus.New()
	return New(localstore.NewWithClient(client), logger), mr
}

func tx(hash string, chain types.Chain, counterparty string, ts int64) types.StoredTransaction {
	return types.StoredTransaction{
		ID:           hash,
		Direction:    types.DirectionSent,
		Counterparty: counterparty,
		Amount:       decimal.NewFromInt(10),
		Currency:     types.CurrencyUSDC,
		Chain:        chain,
		Status:       types.StatusCompleted,
		Timestamp:    ts,
		Hash:         hash,
	}
}

func TestRecordAndHistory(t *testing.T) {
	l, _ := newTestLedger(t)
	ctx := context.Background()

	owner := "0xAbC0000000000000000000000000000000000001"
	require.NoError(t, l.Record(ctx, owner, tx("0x1", types.ChainEthereum, "@alice", 100)))
	require.NoError(t, l.Record(ctx, owner, tx("0x2", types.ChainEthereum, "@bob", 200)))

	// Owner key lookup is case-insensitive via lowercasing.
	history, err := l.History(ctx, []string{"0xabc0000000000000000000000000000000000001"}, "")
	require.NoError(t, err)
	require.Len(t, history, 2)
	require.Equal(t, "0x2", history[0].Hash, "descending timestamp order")
	require.Equal(t, "0x1", history[1].Hash)
}

func TestHistoryDedupIdempotent(t *testing.T) {
	l, _ := newTestLedger(t)
	ctx := context.Background()

	// The same hashes recorded under two owners must collapse to one
	// entry each, and merging a history with itself changes nothing.
	require.NoError(t, l.Record(ctx, "owner-a", tx("h1", types.ChainSolana, "@alice", 10)))
	require.NoError(t, l.Record(ctx, "owner-b", tx("h1", types.ChainSolana, "@alice", 10)))
	require.NoError(t, l.Record(ctx, "owner-a", tx("h2", types.ChainEthereum, "@bob", 20)))

	once, err := l.History(ctx, []string{"owner-a", "owner-b"}, "")
	require.NoError(t, err)
	require.Len(t, once, 2)

	twice, err := l.History(ctx, []string{"owner-a", "owner-b", "owner-a"}, "")
	require.NoError(t, err)
	require.Equal(t, once, twice)
}

func TestHistoryMergesLegacyStore(t *testing.T) {
	l, mr := newTestLedger(t)
	ctx := context.Background()

	owner := "0xAAA0000000000000000000000000000000000001"
	require.NoError(t, l.Record(ctx, owner, tx("0xnew", types.ChainEthereum, "@alice", 300)))

	legacy := []types.StoredTransaction{
		tx("0xlegacy", types.ChainEthereum, "@carol", 100),
		tx("0xnew", types.ChainEthereum, "@alice", 300),     // dup of namespaced entry
		tx("0xself", types.ChainEthereum, owner, 150),       // self-to-self noise
		tx("0xselfname", types.ChainEthereum, "@self", 160), // username ref, kept
	}
	raw, err := json.Marshal(legacy)
	require.NoError(t, err)
	require.NoError(t, mr.Set("metawallet_tx_history", string(raw)))

	history, err := l.History(ctx, []string{owner}, "")
	require.NoError(t, err)

	hashes := make([]string, 0, len(history))
	for _, tx := range history {
		hashes = append(hashes, tx.Hash)
	}
	require.Equal(t, []string{"0xnew", "0xselfname", "0xlegacy"}, hashes)
}

func TestHistoryDirectionFilter(t *testing.T) {
	l, _ := newTestLedger(t)
	ctx := context.Background()

	sent := tx("s1", types.ChainEthereum, "@alice", 10)
	received := tx("r1", types.ChainSolana, "@bob", 20)
	received.Direction = types.DirectionReceived

	require.NoError(t, l.Record(ctx, "o", sent))
	require.NoError(t, l.Record(ctx, "o", received))

	got, err := l.History(ctx, []string{"o"}, types.DirectionReceived)
	require.NoError(t, err)
	require.Len(t, got, 1)
	require.Equal(t, "r1", got[0].Hash)
}

func TestClearOnlyRemovesOwner(t *testing.T) {
	l, _ := newTestLedger(t)
	ctx := context.Background()

	require.NoError(t, l.Record(ctx, "a", tx("1", types.ChainEthereum, "@x", 1)))
	require.NoError(t, l.Record(ctx, "b", tx("2", types.ChainEthereum, "@y", 2)))
	require.NoError(t, l.Clear(ctx, "a"))

	history, err := l.History(ctx, []string{"a", "b"}, "")
	require.NoError(t, err)
	require.Len(t, history, 1)
	require.Equal(t, "2", history[0].Hash)
}

func TestRecordRejectsInvalid(t *testing.T) {
	l, _ := newTestLedger(t)
	ctx := context.Background()

	bad := tx("", types.ChainEthereum, "@alice", 1)
	require.Error(t, l.Record(ctx, "o", bad))

	wrongChain := tx("h", types.Chain("bitcoin"), "@alice", 1)
	require.Error(t, l.Record(ctx, "o", wrongChain))

	require.Error(t, l.Record(ctx, "", tx("h", types.ChainEthereum, "@alice", 1)))
}
