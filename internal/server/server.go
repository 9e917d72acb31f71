// Package server exposes the wallet core over HTTP for local and
// integration use. It is a thin surface: every handler delegates to the
// session, naming, balance, transfer, and bridge components.
package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/sirupsen/logrus"

	"github.com/aki-0517/metawallet/internal/attestation"
	"github.com/aki-0517/metawallet/internal/balance"
	"github.com/aki-0517/metawallet/internal/bridge"
	"github.com/aki-0517/metawallet/internal/evm"
	"github.com/aki-0517/metawallet/internal/ledger"
	"github.com/aki-0517/metawallet/internal/metrics"
	"github.com/aki-0517/metawallet/internal/naming"
	"github.com/aki-0517/metawallet/internal/session"
	"github.com/aki-0517/metawallet/internal/solana"
	"github.com/aki-0517/metawallet/internal/transfer"
	"github.com/aki-0517/metawallet/internal/types"
)

// Config for the API listener.
type Config struct {
	Port string `default:"8080"`
}

// Dependencies is everything the handlers delegate to.
type Dependencies struct {
	Sessions *session.Manager
	Resolver *naming.Resolver
	// RegistrarFactory binds the session's signing keys into the
	// registration path; the mock path ignores them.
	RegistrarFactory func(sess *session.Session) (*naming.Registrars, error)
	Aggregator       *balance.Aggregator
	// RefreshInterval drives the background balance watcher started at
	// login.
	RefreshInterval time.Duration
	Ledger          *ledger.Ledger

	EVM    *evm.Network
	Solana *solana.Network

	Attestor    *attestation.Client
	BridgeCfg   bridge.Config
	ProtocolCfg bridge.ProtocolConfig
	Nonces      *bridge.NonceSource

	Policy transfer.Policy
	Wallet *metrics.WalletMetrics
	Logger *logrus.Logger
}

type Server struct {
	e    *echo.Echo
	cfg  Config
	deps Dependencies

	watcher *balance.Watcher

	mu        sync.Mutex
	watchStop context.CancelFunc
	latest    *balance.Balances
}

type requestValidator struct {
	validate *validator.Validate
}

func (v *requestValidator) Validate(i interface{}) error {
	if err := v.validate.Struct(i); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	return nil
}

func New(cfg Config, deps Dependencies) *Server {
	e := echo.New()
	e.HideBanner = true
	e.Validator = &requestValidator{validate: validator.New()}
	e.Use(middleware.Recover())
	e.Use(metrics.HTTPMiddleware())

	s := &Server{e: e, cfg: cfg, deps: deps}
	interval := deps.RefreshInterval
	if interval <= 0 {
		interval = 10 * time.Second
	}
	s.watcher = balance.NewWatcher(deps.Aggregator, interval, s.publishBalances, deps.Logger)

	e.POST("/auth/login", s.login)
	e.POST("/auth/logout", s.logout)
	e.GET("/session", s.currentSession)
	e.POST("/session/faucet-funded", s.markFaucetFunded)

	e.GET("/balances", s.balances)

	e.GET("/usernames/:name/availability", s.availability)
	e.POST("/usernames", s.register)
	e.GET("/usernames/:name/resolve", s.resolve)

	e.POST("/transfers", s.send)
	e.POST("/bridge", s.bridgeTransfer)

	e.GET("/history", s.history)

	return s
}

func (s *Server) Start() error {
	return s.e.Start(":" + s.cfg.Port)
}

func (s *Server) Shutdown(ctx context.Context) error {
	s.stopWatch()
	return s.e.Shutdown(ctx)
}

func (s *Server) publishBalances(b balance.Balances) {
	s.mu.Lock()
	s.latest = &b
	s.mu.Unlock()
	s.deps.Wallet.RecordBalanceRefresh(true)
}

// startWatch begins periodic balance refreshes for the session,
// replacing any watch left over from a previous login.
func (s *Server) startWatch(sess *session.Session) {
	s.stopWatch()

	ctx, cancel := context.WithCancel(context.Background())
	s.mu.Lock()
	s.watchStop = cancel
	s.mu.Unlock()

	go s.watcher.Run(ctx, map[types.Chain]string{
		types.ChainEthereum: sess.EVMAddress(),
		types.ChainSolana:   sess.SolanaAddress(),
	})
}

func (s *Server) stopWatch() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.watchStop != nil {
		s.watchStop()
		s.watchStop = nil
	}
	s.latest = nil
}

// httpError maps component errors onto status codes so the client can
// tell "bad input" from "not found" from "upstream broke".
func httpError(err error) *echo.HTTPError {
	switch {
	case errors.Is(err, session.ErrNotAuthenticated):
		return echo.NewHTTPError(http.StatusUnauthorized, err.Error())
	case errors.Is(err, naming.ErrInvalidUsername),
		errors.Is(err, transfer.ErrInvalidAmount):
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	case errors.Is(err, naming.ErrUsernameNotFound),
		errors.Is(err, transfer.ErrNoResolvedDestination):
		return echo.NewHTTPError(http.StatusNotFound, err.Error())
	case errors.Is(err, naming.ErrNameUnavailable):
		return echo.NewHTTPError(http.StatusConflict, err.Error())
	case errors.Is(err, bridge.ErrAttestationTimeout):
		return echo.NewHTTPError(http.StatusGatewayTimeout, err.Error())
	default:
		return echo.NewHTTPError(http.StatusBadGateway, err.Error())
	}
}

// sessionRouter binds the session's keys into a transfer router.
func (s *Server) sessionRouter(sess *session.Session) (*transfer.Router, error) {
	senders := []transfer.Sender{
		transfer.NewEVMSender(s.deps.EVM, sess.Wallet.EVMKey()),
		transfer.NewSolanaSender(s.deps.Solana, sess.Wallet.SolanaKey()),
	}
	return transfer.NewRouter(s.deps.Resolver, senders, s.deps.Ledger, s.deps.Policy, s.deps.Logger)
}

// sessionCoordinator binds the session's keys into a bridge coordinator.
func (s *Server) sessionCoordinator(sess *session.Session) (*bridge.Coordinator, error) {
	burner, err := bridge.NewSolanaBurner(
		s.deps.Solana,
		s.deps.ProtocolCfg,
		s.deps.Nonces,
		sess.Wallet.SolanaKey(),
		s.deps.Logger,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to build burner: %w", err)
	}

	minter, err := bridge.NewEVMMinter(
		s.deps.EVM,
		s.deps.ProtocolCfg.EVMMessageTransmitter,
		sess.Wallet.EVMKey(),
		s.deps.Logger,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to build minter: %w", err)
	}

	return bridge.NewCoordinator(burner, minter, s.deps.Attestor, s.deps.Ledger, s.deps.BridgeCfg, s.deps.Logger), nil
}
