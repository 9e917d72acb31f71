package transfer

import (
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/aki-0517/metawallet/internal/types"
	"github.com/aki-0517/metawallet/internal/util"
)

// Policy is the auto-split weighting. The weight is a fixed routing
// constant, not a balance-derived optimum, and is configurable per
// deployment.
type Policy struct {
	// EVMWeight is the fraction of an auto-mode transfer routed to the
	// EVM chain; the remainder goes to Solana.
	EVMWeight decimal.Decimal
}

// DefaultPolicy routes 70% to the EVM chain and 30% to Solana.
func DefaultPolicy() Policy {
	return Policy{EVMWeight: decimal.RequireFromString("0.7")}
}

func (p Policy) Validate() error {
	if p.EVMWeight.IsNegative() || p.EVMWeight.GreaterThan(decimal.NewFromInt(1)) {
		return fmt.Errorf("evm weight %s must be within [0, 1]", p.EVMWeight)
	}
	return nil
}

// Leg is one chain's share of a transfer.
type Leg struct {
	Chain   types.Chain
	Address string
	Amount  decimal.Decimal
}

// Split turns a total amount into per-chain legs. Only chains with a
// resolved address receive a leg; an explicit selection pointing at a
// chain without an address yields no legs. The leg amounts always sum
// exactly to the total: the EVM share is truncated to USDC precision
// and Solana carries the remainder.
func (p Policy) Split(
	total decimal.Decimal,
	selection types.ChainSelection,
	evmAddress, solanaAddress string,
) ([]Leg, error) {
	if !total.IsPositive() {
		return nil, fmt.Errorf("%w: %s", ErrInvalidAmount, total)
	}

	switch selection {
	case types.SelectEthereum:
		if evmAddress == "" {
			return nil, nil
		}
		return []Leg{{Chain: types.ChainEthereum, Address: evmAddress, Amount: total}}, nil

	case types.SelectSolana:
		if solanaAddress == "" {
			return nil, nil
		}
		return []Leg{{Chain: types.ChainSolana, Address: solanaAddress, Amount: total}}, nil

	case types.SelectAuto:
		switch {
		case evmAddress != "" && solanaAddress != "":
			evmShare := total.Mul(p.EVMWeight).Truncate(util.USDCDecimals)
			solShare := total.Sub(evmShare)
			legs := make([]Leg, 0, 2)
			if evmShare.IsPositive() {
				legs = append(legs, Leg{Chain: types.ChainEthereum, Address: evmAddress, Amount: evmShare})
			}
			if solShare.IsPositive() {
				legs = append(legs, Leg{Chain: types.ChainSolana, Address: solanaAddress, Amount: solShare})
			}
			return legs, nil
		case evmAddress != "":
			return []Leg{{Chain: types.ChainEthereum, Address: evmAddress, Amount: total}}, nil
		case solanaAddress != "":
			return []Leg{{Chain: types.ChainSolana, Address: solanaAddress, Amount: total}}, nil
		default:
			return nil, nil
		}

	default:
		return nil, fmt.Errorf("unknown chain selection: %s", selection)
	}
}
