package types

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// Chain identifies one of the two networks a session controls.
type Chain string

const (
	ChainEthereum Chain = "ethereum"
	ChainSolana   Chain = "solana"
)

func (c Chain) Valid() bool {
	return c == ChainEthereum || c == ChainSolana
}

func (c Chain) String() string {
	return string(c)
}

// ChainSelection is the user-facing routing choice for a transfer.
type ChainSelection string

const (
	SelectEthereum ChainSelection = "ethereum"
	SelectSolana   ChainSelection = "solana"
	SelectAuto     ChainSelection = "auto"
)

type Currency string

const (
	CurrencyUSDC Currency = "USDC"
	CurrencyUSDT Currency = "USDT"
)

type Direction string

const (
	DirectionSent     Direction = "sent"
	DirectionReceived Direction = "received"
)

type TxStatus string

const (
	StatusCompleted TxStatus = "completed"
	StatusPending   TxStatus = "pending"
	StatusFailed    TxStatus = "failed"
)

// StoredTransaction is one immutable ledger record. Hash is the on-chain
// transaction hash (EVM) or signature (Solana) and is the dedup key.
type StoredTransaction struct {
	ID           string          `json:"id"`
	Direction    Direction       `json:"type"`
	Counterparty string          `json:"counterparty"`
	Amount       decimal.Decimal `json:"amount"`
	Currency     Currency        `json:"currency"`
	Chain        Chain           `json:"chain"`
	Status       TxStatus        `json:"status"`
	Timestamp    int64           `json:"timestamp"`
	Hash         string          `json:"hash"`
}

func (t StoredTransaction) Validate() error {
	if t.Hash == "" {
		return fmt.Errorf("transaction has no hash")
	}
	if !t.Chain.Valid() {
		return fmt.Errorf("unknown chain: %s", t.Chain)
	}
	return nil
}
