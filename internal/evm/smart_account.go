package evm

import (
	"context"
	"math/big"

	ecommon "github.com/ethereum/go-ethereum/common"
)

// SmartAccountClient abstracts a deployed smart contract account that
// can pay gas in the transferred token. Implementations wrap a bundler
// or paymaster service; the zero implementation is simply absent (nil).
type SmartAccountClient interface {
	// Address is the counterfactual or deployed account address.
	Address() ecommon.Address

	// Available reports whether the account is deployed and the gas
	// sponsor accepts operations right now.
	Available(ctx context.Context) (bool, error)

	// SendERC20WithTokenGas transfers amount base units of token to the
	// recipient, paying execution fees out of the token balance. Returns
	// the user operation or transaction hash.
	SendERC20WithTokenGas(ctx context.Context, token, to ecommon.Address, amount *big.Int) (string, error)
}
