package main

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/aki-0517/metawallet/internal/attestation"
	"github.com/aki-0517/metawallet/internal/balance"
	"github.com/aki-0517/metawallet/internal/bridge"
	"github.com/aki-0517/metawallet/internal/evm"
	"github.com/aki-0517/metawallet/internal/graceful"
	"github.com/aki-0517/metawallet/internal/ledger"
	"github.com/aki-0517/metawallet/internal/localstore"
	"github.com/aki-0517/metawallet/internal/logging"
	"github.com/aki-0517/metawallet/internal/metrics"
	"github.com/aki-0517/metawallet/internal/naming"
	"github.com/aki-0517/metawallet/internal/server"
	"github.com/aki-0517/metawallet/internal/session"
	"github.com/aki-0517/metawallet/internal/solana"
	"github.com/aki-0517/metawallet/internal/transfer"
)

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	cfg, err := newConfig()
	if err != nil {
		logrus.Fatalf("failed to load config: %v", err)
	}

	logger := logging.NewLogger(cfg.LogFormat)

	metricsServer := metrics.StartMetricsServer(cfg.Metrics, []string{metrics.ServiceHTTP, metrics.ServiceWallet}, logger)
	defer func() {
		if metricsServer != nil {
			if err := metricsServer.Stop(ctx); err != nil {
				logger.Errorf("failed to stop metrics server: %v", err)
			}
		}
	}()

	kv, err := localstore.New(ctx, cfg.Store)
	if err != nil {
		logger.Fatalf("failed to initialize store: %v", err)
	}

	var smartAccount evm.SmartAccountClient
	if cfg.Paymaster.BaseURL != "" {
		smartAccount, err = evm.NewPaymasterClient(cfg.Paymaster, logger)
		if err != nil {
			logger.Fatalf("failed to initialize paymaster client: %v", err)
		}
	}

	evmNetwork, err := evm.NewNetwork(ctx, cfg.Ethereum, smartAccount, logger)
	if err != nil {
		logger.Fatalf("failed to initialize EVM network: %v", err)
	}

	solNetwork, err := solana.NewNetwork(ctx, cfg.Solana, logger)
	if err != nil {
		logger.Fatalf("failed to initialize Solana network: %v", err)
	}

	ensRegistry, err := naming.NewENSRegistry(evmNetwork.RPC(), cfg.ENS)
	if err != nil {
		logger.Fatalf("failed to initialize ENS registry: %v", err)
	}
	snsRegistry, err := naming.NewSNSRegistry(solNetwork.RPC(), cfg.SNS)
	if err != nil {
		logger.Fatalf("failed to initialize SNS registry: %v", err)
	}
	resolver := naming.NewResolver(ensRegistry, snsRegistry, logger)

	registrarFactory, err := buildRegistrarFactory(cfg, evmNetwork, solNetwork, resolver, snsRegistry, logger)
	if err != nil {
		logger.Fatalf("failed to initialize registrars: %v", err)
	}

	weight, err := decimal.NewFromString(cfg.EVMWeight)
	if err != nil {
		logger.Fatalf("invalid EVM weight: %v", err)
	}

	led := ledger.New(kv, logger)
	sessions := session.NewManager(&session.StaticProvider{
		SecretHex: cfg.IdentitySecret,
		Profile:   session.Profile{Email: cfg.IdentityEmail},
	}, kv, logger)

	aggregator := balance.NewAggregator([]balance.Source{
		balance.NewEVMSource(evmNetwork),
		balance.NewSolanaSource(solNetwork),
	}, logger)

	srv := server.New(cfg.Server, server.Dependencies{
		Sessions:         sessions,
		Resolver:         resolver,
		RegistrarFactory: registrarFactory,
		Aggregator:       aggregator,
		RefreshInterval:  cfg.BalanceRefreshInterval,
		Ledger:           led,
		EVM:              evmNetwork,
		Solana:           solNetwork,
		Attestor:         attestation.NewClient(cfg.Attestation),
		BridgeCfg:        cfg.Bridge,
		ProtocolCfg:      cfg.Protocol,
		Nonces:           bridge.NewNonceSource(),
		Policy:           transfer.Policy{EVMWeight: weight},
		Wallet:           metrics.NewWalletMetrics(),
		Logger:           logger,
	})

	go func() {
		if err := srv.Start(); err != nil && err != http.ErrServerClosed {
			logger.Fatalf("server stopped: %v", err)
		}
	}()

	graceful.WaitAndCancel(cancel, logger)

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Errorf("failed to shut down server: %v", err)
	}
}

func buildRegistrarFactory(
	cfg config,
	evmNetwork *evm.Network,
	solNetwork *solana.Network,
	resolver *naming.Resolver,
	snsRegistry naming.Registry,
	logger *logrus.Logger,
) (func(*session.Session) (*naming.Registrars, error), error) {
	switch naming.RegistrarMode(cfg.RegistrarMode) {
	case naming.RegistrarModeMock:
		evmReg := naming.NewMockRegistrar(2*time.Second, true, logger)
		solReg := naming.NewMockRegistrar(2*time.Second, false, logger)
		registrars := naming.NewRegistrars(resolver, evmReg, solReg, logger)
		return func(*session.Session) (*naming.Registrars, error) {
			return registrars, nil
		}, nil

	case naming.RegistrarModeChain:
		return func(sess *session.Session) (*naming.Registrars, error) {
			evmReg := naming.NewENSRegistrar(
				evmNetwork.WithKey(sess.Wallet.EVMKey()),
				cfg.ENSRegistrar,
				logger,
			)
			solReg, err := naming.NewSNSRegistrar(
				solNetwork.WithKey(sess.Wallet.SolanaKey()),
				snsRegistry,
				cfg.SNSRegistrar,
				logger,
			)
			if err != nil {
				return nil, err
			}
			return naming.NewRegistrars(resolver, evmReg, solReg, logger), nil
		}, nil

	default:
		return nil, fmt.Errorf("unknown registrar mode: %s", cfg.RegistrarMode)
	}
}
