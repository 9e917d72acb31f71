package session

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/aki-0517/metawallet/internal/keys"
	"github.com/aki-0517/metawallet/internal/localstore"
)

// Profile is the display profile the identity provider reports for the
// logged-in user.
type Profile struct {
	Email        string `json:"email,omitempty"`
	Name         string `json:"name,omitempty"`
	ProfileImage string `json:"profileImage,omitempty"`
	Verifier     string `json:"verifier,omitempty"`
	VerifierID   string `json:"verifierId,omitempty"`
}

// IdentityProvider is the external authentication/key-custody boundary.
// Login returns the hex-encoded private scalar the provider custodies
// for this user; an empty secret means the login was cancelled.
type IdentityProvider interface {
	Login(ctx context.Context) (secretHex string, profile Profile, err error)
	Logout(ctx context.Context) error
	UserInfo(ctx context.Context) (Profile, error)
}

var ErrNotAuthenticated = errors.New("no active session")

// Session is the explicit per-login state passed to core operations.
// Created at login, destroyed at logout, never persisted beyond the
// namespaced store keys written through the manager.
type Session struct {
	User   Profile
	Wallet *keys.Wallet

	// SmartAccountAddress is set when an EVM smart-contract account is
	// deployed for this wallet; empty means EOA only.
	SmartAccountAddress string

	Username     string
	FaucetFunded bool
}

func (s *Session) EVMAddress() string {
	return s.Wallet.EVMAddress().Hex()
}

func (s *Session) SolanaAddress() string {
	return s.Wallet.SolanaAddress().String()
}

// OwnedAddresses lists every address whose history belongs to this
// session, in ledger owner-key form.
func (s *Session) OwnedAddresses() []string {
	addrs := []string{s.EVMAddress(), s.SolanaAddress()}
	if s.SmartAccountAddress != "" {
		addrs = append(addrs, s.SmartAccountAddress)
	}
	return addrs
}

// Manager owns the session lifecycle against the identity provider.
// Safe for concurrent use; current is read by every request handler.
type Manager struct {
	provider IdentityProvider
	kv       localstore.KV
	logger   *logrus.Entry

	mu      sync.Mutex
	current *Session
}

func NewManager(provider IdentityProvider, kv localstore.KV, logger *logrus.Logger) *Manager {
	return &Manager{
		provider: provider,
		kv:       kv,
		logger:   logger.WithField("pkg", "session"),
	}
}

// Login authenticates against the identity provider and derives both
// chain keypairs from the returned secret. A provider failure or a
// missing secret is fatal to login.
func (m *Manager) Login(ctx context.Context) (*Session, error) {
	secret, profile, err := m.provider.Login(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", keys.ErrIdentityUnavailable, err)
	}
	if secret == "" {
		return nil, fmt.Errorf("%w: login cancelled", keys.ErrIdentityUnavailable)
	}

	wallet, err := keys.Derive(secret)
	if err != nil {
		return nil, fmt.Errorf("failed to derive wallet: %w", err)
	}

	sess := &Session{
		User:   profile,
		Wallet: wallet,
	}

	// Username is intentionally NOT restored here: registration is
	// forced every session. The faucet gate does survive re-login.
	funded, err := m.kv.Get(ctx, faucetKey(sess.EVMAddress()))
	if err == nil && funded == "true" {
		sess.FaucetFunded = true
	} else if err != nil && !errors.Is(err, localstore.ErrNotFound) {
		m.logger.WithError(err).Warn("failed to read faucet flag")
	}

	m.mu.Lock()
	m.current = sess
	m.mu.Unlock()

	m.logger.WithFields(logrus.Fields{
		"evm":    sess.EVMAddress(),
		"solana": sess.SolanaAddress(),
	}).Info("session established")

	return sess, nil
}

func (m *Manager) Logout(ctx context.Context) error {
	m.mu.Lock()
	current := m.current
	m.current = nil
	m.mu.Unlock()

	if current != nil {
		if err := m.kv.Del(ctx, usernameKey(current.EVMAddress())); err != nil {
			m.logger.WithError(err).Warn("failed to drop stored username")
		}
	}

	if err := m.provider.Logout(ctx); err != nil {
		return fmt.Errorf("failed to log out of identity provider: %w", err)
	}
	return nil
}

func (m *Manager) Current() (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.current == nil {
		return nil, ErrNotAuthenticated
	}
	return m.current, nil
}

// SetUsername records the chosen username on the session and persists
// it under the owner-namespaced key.
func (m *Manager) SetUsername(ctx context.Context, username string) error {
	m.mu.Lock()
	if m.current == nil {
		m.mu.Unlock()
		return ErrNotAuthenticated
	}
	m.current.Username = username
	owner := m.current.EVMAddress()
	m.mu.Unlock()

	if err := m.kv.Set(ctx, usernameKey(owner), username); err != nil {
		return fmt.Errorf("failed to persist username: %w", err)
	}
	return nil
}

// SetFaucetFunded flips the onboarding gate once test funds landed.
func (m *Manager) SetFaucetFunded(ctx context.Context) error {
	m.mu.Lock()
	if m.current == nil {
		m.mu.Unlock()
		return ErrNotAuthenticated
	}
	m.current.FaucetFunded = true
	owner := m.current.EVMAddress()
	m.mu.Unlock()

	if err := m.kv.Set(ctx, faucetKey(owner), "true"); err != nil {
		return fmt.Errorf("failed to persist faucet flag: %w", err)
	}
	return nil
}

func usernameKey(owner string) string {
	return "metawallet_username_" + strings.ToLower(owner)
}

func faucetKey(owner string) string {
	return "metawallet_faucet_funded_" + strings.ToLower(owner)
}
