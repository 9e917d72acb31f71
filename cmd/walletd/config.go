package main

import (
	"fmt"
	"time"

	"github.com/kelseyhightower/envconfig"

	"github.com/aki-0517/metawallet/internal/attestation"
	"github.com/aki-0517/metawallet/internal/bridge"
	"github.com/aki-0517/metawallet/internal/evm"
	"github.com/aki-0517/metawallet/internal/localstore"
	"github.com/aki-0517/metawallet/internal/metrics"
	"github.com/aki-0517/metawallet/internal/naming"
	"github.com/aki-0517/metawallet/internal/server"
	"github.com/aki-0517/metawallet/internal/solana"
)

type config struct {
	LogFormat string `split_words:"true" default:"json"`

	Server  server.Config
	Metrics metrics.Config
	Store   localstore.Config

	Ethereum evm.Config
	Solana   solana.Config

	// Paymaster enables the smart-account path that pays gas in USDC;
	// empty base URL keeps plain EOA transfers only.
	Paymaster evm.PaymasterConfig

	ENS naming.ENSConfig
	SNS naming.SNSConfig

	// RegistrarMode selects the real on-chain registration path or the
	// simulated one for environments without registry deployments.
	RegistrarMode string `split_words:"true" default:"mock"`

	ENSRegistrar naming.ENSRegistrarConfig `split_words:"true"`
	SNSRegistrar naming.SNSRegistrarConfig `split_words:"true"`

	Attestation attestation.Config
	Bridge      bridge.Config
	Protocol    bridge.ProtocolConfig

	// EVMWeight is the auto-split share routed to the EVM chain.
	EVMWeight string `split_words:"true" default:"0.7"`

	// Identity is the operator-supplied login secret for the static
	// provider.
	IdentitySecret string `split_words:"true"`
	IdentityEmail  string `split_words:"true"`

	BalanceRefreshInterval time.Duration `split_words:"true" default:"10s"`
}

func newConfig() (config, error) {
	var cfg config
	err := envconfig.Process("", &cfg)
	if err != nil {
		return config{}, fmt.Errorf("failed to process env var: %w", err)
	}
	return cfg, nil
}
