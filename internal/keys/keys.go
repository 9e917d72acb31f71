package keys

import (
	"crypto/ecdsa"
	"crypto/ed25519"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"

	ecommon "github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/gagliardetto/solana-go"
)

// ErrIdentityUnavailable means the authentication secret could not be
// retrieved or is unusable. Fatal to login: derivation never proceeds
// with a zero key.
var ErrIdentityUnavailable = errors.New("identity secret unavailable")

// Wallet holds the two chain keypairs derived from one authentication
// secret. Both derivations are deterministic so the same login always
// yields the same pair of addresses.
type Wallet struct {
	evmKey     *ecdsa.PrivateKey
	evmAddress ecommon.Address

	solanaKey     solana.PrivateKey
	solanaAddress solana.PublicKey
}

// Derive maps a hex-encoded secp256k1 private scalar to an EVM keypair
// (the secret used directly) and a Solana keypair (SHA-256 of the raw
// secret bytes used as an ed25519 seed).
func Derive(secretHex string) (*Wallet, error) {
	cleaned := strings.TrimPrefix(strings.TrimSpace(secretHex), "0x")
	if cleaned == "" {
		return nil, fmt.Errorf("%w: empty secret", ErrIdentityUnavailable)
	}

	raw, err := hex.DecodeString(cleaned)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to decode secret: %v", ErrIdentityUnavailable, err)
	}

	evmKey, err := crypto.ToECDSA(raw)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to build secp256k1 key: %v", ErrIdentityUnavailable, err)
	}

	seed := sha256.Sum256(raw)
	edKey := ed25519.NewKeyFromSeed(seed[:])
	solKey := solana.PrivateKey(edKey)

	return &Wallet{
		evmKey:        evmKey,
		evmAddress:    crypto.PubkeyToAddress(evmKey.PublicKey),
		solanaKey:     solKey,
		solanaAddress: solKey.PublicKey(),
	}, nil
}

func (w *Wallet) EVMKey() *ecdsa.PrivateKey {
	return w.evmKey
}

func (w *Wallet) EVMAddress() ecommon.Address {
	return w.evmAddress
}

func (w *Wallet) SolanaKey() solana.PrivateKey {
	return w.solanaKey
}

func (w *Wallet) SolanaAddress() solana.PublicKey {
	return w.solanaAddress
}
