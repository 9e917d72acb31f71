package metrics

import (
	"errors"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/sirupsen/logrus"
)

// Service names accepted by RegisterMetrics.
const (
	ServiceHTTP   = "http"
	ServiceWallet = "wallet"
)

// RegisterMetrics registers metrics for the specified services.
func RegisterMetrics(services []string, logger *logrus.Logger) {
	// Always register Go and process metrics
	registerIfNotExists(collectors.NewGoCollector(), "go_collector", logger)
	registerIfNotExists(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}), "process_collector", logger)

	for _, service := range services {
		switch service {
		case ServiceHTTP:
			registerHTTPMetrics(logger)
		case ServiceWallet:
			registerWalletMetrics(logger)
		default:
			logger.Warnf("Unknown service type for metrics registration: %s", service)
		}
	}
}

// registerIfNotExists registers a collector if it's not already registered.
func registerIfNotExists(collector prometheus.Collector, name string, logger *logrus.Logger) {
	if err := prometheus.Register(collector); err != nil {
		var alreadyRegErr prometheus.AlreadyRegisteredError
		if errors.As(err, &alreadyRegErr) {
			logger.Debugf("%s already registered", name)
		} else {
			logger.Errorf("Failed to register %s: %v", name, err)
		}
	}
}

func registerHTTPMetrics(logger *logrus.Logger) {
	registerIfNotExists(httpRequestsTotal, "http_requests_total", logger)
	registerIfNotExists(httpRequestDuration, "http_request_duration", logger)
	registerIfNotExists(httpErrorsTotal, "http_errors_total", logger)
}

func registerWalletMetrics(logger *logrus.Logger) {
	registerIfNotExists(walletTransfersTotal, "wallet_transfers_total", logger)
	registerIfNotExists(walletBridgeOperationsTotal, "wallet_bridge_operations_total", logger)
	registerIfNotExists(walletBridgeDuration, "wallet_bridge_duration", logger)
	registerIfNotExists(walletNameChecksTotal, "wallet_name_checks_total", logger)
	registerIfNotExists(walletBalanceRefreshesTotal, "wallet_balance_refreshes_total", logger)
}
