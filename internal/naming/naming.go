// Package naming maps one human-readable username onto two independent
// name registries (ENS on the EVM side, SNS on Solana). The registries
// share no state: every judgement about a username is made by driving
// both in parallel and joining the results.
package naming

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/sirupsen/logrus"
)

var (
	ErrInvalidUsername  = errors.New("invalid username")
	ErrUsernameNotFound = errors.New("username not found on any network")
	ErrNameUnavailable  = errors.New("username is not available on all registries")
)

var usernameRe = regexp.MustCompile(`^[a-z0-9-]{3,20}$`)

// Registry is one chain's name service: owner lookup, forward and
// reverse resolution. Registration lives behind Registrar.
type Registry interface {
	// CheckAvailable reports whether name has no owner record. A lookup
	// failure other than "record not found" is an error; callers treat
	// it fail-closed.
	CheckAvailable(ctx context.Context, name string) (bool, error)
	// Resolve returns the owning address of a fully-qualified name, or
	// empty when the name has no owner.
	Resolve(ctx context.Context, name string) (string, error)
	// ReverseLookup returns the primary name of an address, or empty.
	ReverseLookup(ctx context.Context, address string) (string, error)
}

// ResolvedDestination is the per-chain address set a username resolves
// to. Either side may be empty; both empty is the not-found state.
type ResolvedDestination struct {
	EVM    string `json:"evm,omitempty"`
	Solana string `json:"solana,omitempty"`
}

func (d ResolvedDestination) Empty() bool {
	return d.EVM == "" && d.Solana == ""
}

// Availability is the join of the two independent availability checks.
type Availability struct {
	EVM    bool `json:"evm"`
	Solana bool `json:"solana"`
}

// Both is the registration gate: a name is registrable only when it is
// simultaneously free on both registries.
func (a Availability) Both() bool {
	return a.EVM && a.Solana
}

// Normalize lowercases the input and strips everything outside
// [a-z0-9-], mirroring what the registration form accepts.
func Normalize(input string) string {
	lower := strings.ToLower(strings.TrimSpace(strings.TrimPrefix(input, "@")))
	var b strings.Builder
	for _, r := range lower {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') || r == '-' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

func Validate(name string) error {
	if !usernameRe.MatchString(name) {
		return fmt.Errorf("%w: %q must be 3-20 characters of [a-z0-9-]", ErrInvalidUsername, name)
	}
	return nil
}

// Resolver joins the two registries under one username namespace.
type Resolver struct {
	evm    Registry
	sol    Registry
	evmTLD string
	solTLD string
	logger *logrus.Entry
}

func NewResolver(evm, sol Registry, logger *logrus.Logger) *Resolver {
	return &Resolver{
		evm:    evm,
		sol:    sol,
		evmTLD: ".eth",
		solTLD: ".sol",
		logger: logger.WithField("pkg", "naming"),
	}
}

// ResolveUsername resolves username on both registries concurrently.
// Lookup failures collapse to "no address on that chain"; only the
// both-absent case is an error.
func (r *Resolver) ResolveUsername(ctx context.Context, username string) (ResolvedDestination, error) {
	name := Normalize(username)
	if err := Validate(name); err != nil {
		return ResolvedDestination{}, err
	}

	type lookup struct {
		addr string
		err  error
	}
	evmCh := make(chan lookup, 1)
	solCh := make(chan lookup, 1)

	go func() {
		addr, err := r.evm.Resolve(ctx, name+r.evmTLD)
		evmCh <- lookup{addr: addr, err: err}
	}()
	go func() {
		addr, err := r.sol.Resolve(ctx, name+r.solTLD)
		solCh <- lookup{addr: addr, err: err}
	}()

	evmRes, solRes := <-evmCh, <-solCh

	var dest ResolvedDestination
	if evmRes.err != nil {
		// "not registered" and "registry unreachable" deliberately
		// collapse to absence here; see Resolve contract.
		r.logger.WithError(evmRes.err).Debugf("evm lookup failed for %s", name)
	} else {
		dest.EVM = evmRes.addr
	}
	if solRes.err != nil {
		r.logger.WithError(solRes.err).Debugf("solana lookup failed for %s", name)
	} else {
		dest.Solana = solRes.addr
	}

	if dest.Empty() {
		return dest, ErrUsernameNotFound
	}
	return dest, nil
}

// CheckBoth runs the two availability checks concurrently and waits for
// both before judging, so the gate always reflects one joint snapshot.
// Lookup errors map to unavailable on that chain (fail-closed).
func (r *Resolver) CheckBoth(ctx context.Context, username string) (Availability, error) {
	name := Normalize(username)
	if err := Validate(name); err != nil {
		return Availability{}, err
	}

	type check struct {
		free bool
		err  error
	}
	evmCh := make(chan check, 1)
	solCh := make(chan check, 1)

	go func() {
		free, err := r.evm.CheckAvailable(ctx, name+r.evmTLD)
		evmCh <- check{free: free, err: err}
	}()
	go func() {
		free, err := r.sol.CheckAvailable(ctx, name+r.solTLD)
		solCh <- check{free: free, err: err}
	}()

	evmRes, solRes := <-evmCh, <-solCh

	avail := Availability{EVM: evmRes.free, Solana: solRes.free}
	if evmRes.err != nil {
		avail.EVM = false
		r.logger.WithError(evmRes.err).Warnf("evm availability check failed for %s, treating as taken", name)
	}
	if solRes.err != nil {
		avail.Solana = false
		r.logger.WithError(solRes.err).Warnf("solana availability check failed for %s, treating as taken", name)
	}

	return avail, nil
}

// ReverseUsername finds the primary name of an address on the given
// registry side; empty when none is set.
func (r *Resolver) ReverseUsername(ctx context.Context, reg Registry, address string) string {
	name, err := reg.ReverseLookup(ctx, address)
	if err != nil {
		r.logger.WithError(err).Debugf("reverse lookup failed for %s", address)
		return ""
	}
	return strings.TrimSuffix(strings.TrimSuffix(name, r.evmTLD), r.solTLD)
}
