package ledger

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/aki-0517/metawallet/internal/localstore"
	"github.com/aki-0517/metawallet/internal/types"
)

const (
	// legacyKey is the pre-namespacing store. Read-merged for backward
	// compatibility, never written.
	legacyKey = "metawallet_tx_history"

	keyPrefix = "metawallet_tx_history_"
)

// Ledger is the append-only per-owner-address transaction history.
// Records are immutable once written; the only destructive operation
// is an explicit Clear.
type Ledger struct {
	kv     localstore.KV
	logger *logrus.Entry
}

func New(kv localstore.KV, logger *logrus.Logger) *Ledger {
	return &Ledger{
		kv:     kv,
		logger: logger.WithField("pkg", "ledger"),
	}
}

func ownerKey(owner string) string {
	return keyPrefix + strings.ToLower(owner)
}

// Record appends tx to the store for its owning address.
func (l *Ledger) Record(ctx context.Context, owner string, tx types.StoredTransaction) error {
	if owner == "" {
		return fmt.Errorf("owner address is required")
	}
	if err := tx.Validate(); err != nil {
		return fmt.Errorf("invalid transaction: %w", err)
	}

	key := ownerKey(owner)
	list, err := l.load(ctx, key)
	if err != nil {
		return err
	}

	list = append([]types.StoredTransaction{tx}, list...)

	raw, err := json.Marshal(list)
	if err != nil {
		return fmt.Errorf("failed to encode history: %w", err)
	}
	if err := l.kv.Set(ctx, key, string(raw)); err != nil {
		return fmt.Errorf("failed to store history: %w", err)
	}
	return nil
}

// History merges the histories of the given owner addresses plus the
// legacy unkeyed store, deduplicates by hash, and returns entries in
// descending timestamp order. filter narrows by direction when set.
func (l *Ledger) History(ctx context.Context, owners []string, filter types.Direction) ([]types.StoredTransaction, error) {
	seen := make(map[string]bool)
	var merged []types.StoredTransaction

	add := func(tx types.StoredTransaction) {
		if tx.Hash == "" || seen[tx.Hash] {
			return
		}
		seen[tx.Hash] = true
		merged = append(merged, tx)
	}

	for _, owner := range owners {
		list, err := l.load(ctx, ownerKey(owner))
		if err != nil {
			return nil, err
		}
		for _, tx := range list {
			add(tx)
		}
	}

	legacy, err := l.load(ctx, legacyKey)
	if err != nil {
		return nil, err
	}
	for _, tx := range legacy {
		if isSelfNoise(tx, owners) {
			continue
		}
		add(tx)
	}

	sort.SliceStable(merged, func(i, j int) bool {
		return merged[i].Timestamp > merged[j].Timestamp
	})

	if filter == "" {
		return merged, nil
	}

	filtered := merged[:0]
	for _, tx := range merged {
		if tx.Direction == filter {
			filtered = append(filtered, tx)
		}
	}
	return filtered, nil
}

// Clear removes the history of one owner. Legacy entries are left alone.
func (l *Ledger) Clear(ctx context.Context, owner string) error {
	if err := l.kv.Del(ctx, ownerKey(owner)); err != nil {
		return fmt.Errorf("failed to clear history: %w", err)
	}
	return nil
}

// isSelfNoise reports whether a legacy entry's counterparty is one of
// the owner's own addresses. Username references are always retained.
func isSelfNoise(tx types.StoredTransaction, owners []string) bool {
	if strings.HasPrefix(tx.Counterparty, "@") {
		return false
	}
	for _, owner := range owners {
		if strings.EqualFold(tx.Counterparty, owner) {
			return true
		}
	}
	return false
}

func (l *Ledger) load(ctx context.Context, key string) ([]types.StoredTransaction, error) {
	raw, err := l.kv.Get(ctx, key)
	if errors.Is(err, localstore.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load history: %w", err)
	}

	var list []types.StoredTransaction
	if err := json.Unmarshal([]byte(raw), &list); err != nil {
		// A corrupt store must not block the history view.
		l.logger.WithError(err).Warnf("discarding unreadable history at %s", key)
		return nil, nil
	}
	return list, nil
}
