package naming

import (
	"context"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	ecommon "github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"
)

// ENSConfig points at a registry deployment. Addresses are injected so
// custom deployments with different contracts work unchanged.
type ENSConfig struct {
	RegistryAddress string `split_words:"true" default:"0x00000000000C2E074eC69A0dFb2997BA6C7d2e1e"`
}

const ensRegistryABI = `[
	{"name":"owner","type":"function","stateMutability":"view","inputs":[{"name":"node","type":"bytes32"}],"outputs":[{"name":"","type":"address"}]},
	{"name":"resolver","type":"function","stateMutability":"view","inputs":[{"name":"node","type":"bytes32"}],"outputs":[{"name":"","type":"address"}]}
]`

const ensResolverABI = `[
	{"name":"addr","type":"function","stateMutability":"view","inputs":[{"name":"node","type":"bytes32"}],"outputs":[{"name":"","type":"address"}]},
	{"name":"name","type":"function","stateMutability":"view","inputs":[{"name":"node","type":"bytes32"}],"outputs":[{"name":"","type":"string"}]}
]`

type ensRegistry struct {
	client      *ethclient.Client
	registry    ecommon.Address
	registryABI abi.ABI
	resolverABI abi.ABI
}

func NewENSRegistry(client *ethclient.Client, cfg ENSConfig) (Registry, error) {
	regABI, err := abi.JSON(strings.NewReader(ensRegistryABI))
	if err != nil {
		return nil, fmt.Errorf("failed to parse registry ABI: %w", err)
	}
	resABI, err := abi.JSON(strings.NewReader(ensResolverABI))
	if err != nil {
		return nil, fmt.Errorf("failed to parse resolver ABI: %w", err)
	}

	return &ensRegistry{
		client:      client,
		registry:    ecommon.HexToAddress(cfg.RegistryAddress),
		registryABI: regABI,
		resolverABI: resABI,
	}, nil
}

// Namehash computes the EIP-137 node of a dot-separated name.
func Namehash(name string) [32]byte {
	node := make([]byte, 32)
	if name != "" {
		labels := strings.Split(strings.ToLower(name), ".")
		for i := len(labels) - 1; i >= 0; i-- {
			labelHash := crypto.Keccak256([]byte(labels[i]))
			node = crypto.Keccak256(node, labelHash)
		}
	}
	var out [32]byte
	copy(out[:], node)
	return out
}

func (e *ensRegistry) CheckAvailable(ctx context.Context, name string) (bool, error) {
	owner, err := e.ownerOf(ctx, Namehash(name))
	if err != nil {
		return false, fmt.Errorf("failed to check owner of %s: %w", name, err)
	}
	return owner == (ecommon.Address{}), nil
}

func (e *ensRegistry) Resolve(ctx context.Context, name string) (string, error) {
	node := Namehash(name)

	resolverAddr, err := e.callAddress(ctx, e.registry, e.registryABI, "resolver", node)
	if err != nil {
		return "", fmt.Errorf("failed to look up resolver of %s: %w", name, err)
	}
	if resolverAddr == (ecommon.Address{}) {
		return "", nil
	}

	addr, err := e.callAddress(ctx, resolverAddr, e.resolverABI, "addr", node)
	if err != nil {
		return "", fmt.Errorf("failed to resolve %s: %w", name, err)
	}
	if addr == (ecommon.Address{}) {
		return "", nil
	}
	return addr.Hex(), nil
}

func (e *ensRegistry) ReverseLookup(ctx context.Context, address string) (string, error) {
	reverseName := strings.ToLower(strings.TrimPrefix(address, "0x")) + ".addr.reverse"
	node := Namehash(reverseName)

	resolverAddr, err := e.callAddress(ctx, e.registry, e.registryABI, "resolver", node)
	if err != nil {
		return "", fmt.Errorf("failed to look up reverse resolver: %w", err)
	}
	if resolverAddr == (ecommon.Address{}) {
		return "", nil
	}

	data, err := e.resolverABI.Pack("name", node)
	if err != nil {
		return "", fmt.Errorf("failed to pack name call: %w", err)
	}
	raw, err := e.client.CallContract(ctx, ethereum.CallMsg{To: &resolverAddr, Data: data}, nil)
	if err != nil {
		return "", fmt.Errorf("failed to call reverse resolver: %w", err)
	}

	out, err := e.resolverABI.Unpack("name", raw)
	if err != nil || len(out) == 0 {
		return "", fmt.Errorf("failed to unpack reverse name: %w", err)
	}
	name, _ := out[0].(string)
	return name, nil
}

func (e *ensRegistry) ownerOf(ctx context.Context, node [32]byte) (ecommon.Address, error) {
	return e.callAddress(ctx, e.registry, e.registryABI, "owner", node)
}

func (e *ensRegistry) callAddress(
	ctx context.Context,
	to ecommon.Address,
	contractABI abi.ABI,
	method string,
	node [32]byte,
) (ecommon.Address, error) {
	data, err := contractABI.Pack(method, node)
	if err != nil {
		return ecommon.Address{}, fmt.Errorf("failed to pack %s call: %w", method, err)
	}

	raw, err := e.client.CallContract(ctx, ethereum.CallMsg{To: &to, Data: data}, nil)
	if err != nil {
		return ecommon.Address{}, fmt.Errorf("failed to call %s: %w", method, err)
	}

	out, err := contractABI.Unpack(method, raw)
	if err != nil || len(out) == 0 {
		return ecommon.Address{}, fmt.Errorf("failed to unpack %s result: %w", method, err)
	}
	addr, ok := out[0].(ecommon.Address)
	if !ok {
		return ecommon.Address{}, fmt.Errorf("unexpected %s result type", method)
	}
	return addr, nil
}
