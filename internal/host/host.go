// Package host holds the collaborators the engine consults outside its own
// state: account classification, signature checks, payment conversion and
// item metadata.
package host

import (
	"github.com/shopspring/decimal"

	"github.com/atmx/settlement-engine/internal/model"
	"github.com/atmx/settlement-engine/internal/store"
)

// AccountOracle classifies recipients.
type AccountOracle interface {
	IsSmartContract(addr model.Address) bool
}

// AddressOracle classifies by address layout.
type AddressOracle struct{}

// IsSmartContract implements AccountOracle.
func (AddressOracle) IsSmartContract(addr model.Address) bool { return addr.IsSmartContract() }

// Ledger is the slice of the token ledger the host collaborators need.
type Ledger interface {
	BalanceOf(tx *store.Tx, owner model.Address, token string, nonce uint64) (decimal.Decimal, error)
	Transfer(tx *store.Tx, from, to model.Address, p model.Payment) error
}
