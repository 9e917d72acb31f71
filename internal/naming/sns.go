package naming

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"errors"
	"fmt"
	"strings"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"
)

// SNSConfig points at an SPL name-service deployment.
type SNSConfig struct {
	ProgramID          string `split_words:"true" default:"namesLPneVptA9Z5rqUDD9tMTWEJwofgaYwp8cawRkX"`
	RootDomainAccount  string `split_words:"true" default:"58PwtjSDuFHuUkYjH9BYnnQKHfwo9reZhC2zMJv9JPkx"`
	ReverseLookupClass string `split_words:"true" default:"33m47vH6Eav6jr5Ry86XjhRft2jRBLDnDgPSHoquXi2Z"`
}

// snsHashPrefix is the SPL name-service domain-separation prefix.
const snsHashPrefix = "SPL Name Service"

// nameRegistryHeaderLen is parent(32) + owner(32) + class(32).
const nameRegistryHeaderLen = 96

type snsRegistry struct {
	rpcClient    *rpc.Client
	programID    solana.PublicKey
	rootDomain   solana.PublicKey
	reverseClass solana.PublicKey
}

func NewSNSRegistry(rpcClient *rpc.Client, cfg SNSConfig) (Registry, error) {
	programID, err := solana.PublicKeyFromBase58(cfg.ProgramID)
	if err != nil {
		return nil, fmt.Errorf("invalid name program id: %w", err)
	}
	rootDomain, err := solana.PublicKeyFromBase58(cfg.RootDomainAccount)
	if err != nil {
		return nil, fmt.Errorf("invalid root domain account: %w", err)
	}
	reverseClass, err := solana.PublicKeyFromBase58(cfg.ReverseLookupClass)
	if err != nil {
		return nil, fmt.Errorf("invalid reverse lookup class: %w", err)
	}

	return &snsRegistry{
		rpcClient:    rpcClient,
		programID:    programID,
		rootDomain:   rootDomain,
		reverseClass: reverseClass,
	}, nil
}

func hashName(name string) []byte {
	sum := sha256.Sum256([]byte(snsHashPrefix + name))
	return sum[:]
}

// deriveNameAccount derives the registry PDA for a hashed name under an
// optional class and parent.
func (s *snsRegistry) deriveNameAccount(hashedName []byte, class, parent solana.PublicKey) (solana.PublicKey, error) {
	addr, _, err := solana.FindProgramAddress(
		[][]byte{hashedName, class[:], parent[:]},
		s.programID,
	)
	if err != nil {
		return solana.PublicKey{}, fmt.Errorf("failed to derive name account: %w", err)
	}
	return addr, nil
}

// domainKey maps "name.sol" to its registry account under the .sol TLD.
func (s *snsRegistry) domainKey(name string) (solana.PublicKey, error) {
	label := strings.TrimSuffix(name, ".sol")
	return s.deriveNameAccount(hashName(label), solana.PublicKey{}, s.rootDomain)
}

// retrieveOwner reads the registry account and returns its owner, or
// a zero key when the account does not exist.
func (s *snsRegistry) retrieveOwner(ctx context.Context, account solana.PublicKey) (solana.PublicKey, bool, error) {
	info, err := s.rpcClient.GetAccountInfo(ctx, account)
	if err != nil {
		if errors.Is(err, rpc.ErrNotFound) {
			return solana.PublicKey{}, false, nil
		}
		return solana.PublicKey{}, false, fmt.Errorf("failed to get name account: %w", err)
	}
	if info.Value == nil {
		return solana.PublicKey{}, false, nil
	}

	data := info.Value.Data.GetBinary()
	if len(data) < nameRegistryHeaderLen {
		return solana.PublicKey{}, false, fmt.Errorf("name registry data too short: %d bytes", len(data))
	}

	return solana.PublicKeyFromBytes(data[32:64]), true, nil
}

func (s *snsRegistry) CheckAvailable(ctx context.Context, name string) (bool, error) {
	account, err := s.domainKey(name)
	if err != nil {
		return false, err
	}
	_, exists, err := s.retrieveOwner(ctx, account)
	if err != nil {
		return false, fmt.Errorf("failed to check %s: %w", name, err)
	}
	return !exists, nil
}

func (s *snsRegistry) Resolve(ctx context.Context, name string) (string, error) {
	account, err := s.domainKey(name)
	if err != nil {
		return "", err
	}
	owner, exists, err := s.retrieveOwner(ctx, account)
	if err != nil {
		return "", fmt.Errorf("failed to resolve %s: %w", name, err)
	}
	if !exists {
		return "", nil
	}
	return owner.String(), nil
}

// ReverseLookup resolves the reverse record of a registry account: a
// name account classed under the reverse-lookup key whose payload is a
// length-prefixed UTF-8 name.
func (s *snsRegistry) ReverseLookup(ctx context.Context, address string) (string, error) {
	key, err := solana.PublicKeyFromBase58(address)
	if err != nil {
		return "", fmt.Errorf("invalid address: %w", err)
	}

	reverseAccount, err := s.deriveNameAccount(hashName(key.String()), s.reverseClass, solana.PublicKey{})
	if err != nil {
		return "", err
	}

	info, err := s.rpcClient.GetAccountInfo(ctx, reverseAccount)
	if err != nil {
		if errors.Is(err, rpc.ErrNotFound) {
			return "", nil
		}
		return "", fmt.Errorf("failed to get reverse record: %w", err)
	}
	if info.Value == nil {
		return "", nil
	}

	data := info.Value.Data.GetBinary()
	if len(data) < nameRegistryHeaderLen+4 {
		return "", nil
	}
	payload := data[nameRegistryHeaderLen:]
	nameLen := binary.LittleEndian.Uint32(payload[:4])
	if int(nameLen) > len(payload)-4 {
		return "", fmt.Errorf("malformed reverse record for %s", address)
	}
	return string(payload[4 : 4+nameLen]), nil
}
