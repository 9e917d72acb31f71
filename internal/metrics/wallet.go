package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	// Per-chain transfer outcomes
	walletTransfersTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "metawallet",
			Subsystem: "wallet",
			Name:      "transfers_total",
			Help:      "Total number of per-chain transfer legs",
		},
		[]string{"chain", "status"}, // success, error
	)

	// Bridge attempts by final phase
	walletBridgeOperationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "metawallet",
			Subsystem: "wallet",
			Name:      "bridge_operations_total",
			Help:      "Total number of bridge attempts by final phase",
		},
		[]string{"phase"},
	)

	walletBridgeDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "metawallet",
			Subsystem: "wallet",
			Name:      "bridge_duration_seconds",
			Help:      "End-to-end duration of bridge attempts",
			// Bridge attempts span minutes, not milliseconds.
			Buckets: []float64{5, 15, 30, 60, 120, 300, 600},
		},
	)

	// Username availability checks by joint outcome
	walletNameChecksTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "metawallet",
			Subsystem: "wallet",
			Name:      "name_checks_total",
			Help:      "Total number of dual-registry availability checks",
		},
		[]string{"result"}, // available, taken, error
	)

	walletBalanceRefreshesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "metawallet",
			Subsystem: "wallet",
			Name:      "balance_refreshes_total",
			Help:      "Total number of balance refresh cycles",
		},
		[]string{"status"}, // success, error
	)
)

// WalletMetrics provides methods to update wallet domain metrics.
type WalletMetrics struct{}

func NewWalletMetrics() *WalletMetrics {
	return &WalletMetrics{}
}

// RecordTransferLeg records one per-chain leg outcome.
func (wm *WalletMetrics) RecordTransferLeg(chain string, success bool) {
	walletTransfersTotal.WithLabelValues(chain, statusLabel(success)).Inc()
}

// RecordBridgeAttempt records a finished bridge attempt with its final
// phase and total duration.
func (wm *WalletMetrics) RecordBridgeAttempt(phase string, duration time.Duration) {
	walletBridgeOperationsTotal.WithLabelValues(phase).Inc()
	walletBridgeDuration.Observe(duration.Seconds())
}

// RecordNameCheck records the joint outcome of one availability check.
func (wm *WalletMetrics) RecordNameCheck(result string) {
	walletNameChecksTotal.WithLabelValues(result).Inc()
}

// RecordBalanceRefresh records one refresh cycle.
func (wm *WalletMetrics) RecordBalanceRefresh(success bool) {
	walletBalanceRefreshesTotal.WithLabelValues(statusLabel(success)).Inc()
}

func statusLabel(success bool) string {
	if success {
		return "success"
	}
	return "error"
}
