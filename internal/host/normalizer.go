package host

import (
	"github.com/atmx/settlement-engine/internal/model"
	"github.com/atmx/settlement-engine/internal/store"
)

// Normalizer converts a payment held in custody into the target currency.
// On success it returns the converted payment and true; on failure it
// returns the original payment unchanged and false. A false result may leave
// partial transfers staged in tx, so callers must fail the transaction.
type Normalizer interface {
	Normalize(tx *store.Tx, p model.Payment, target string) (model.Payment, bool)
}

// WrapNormalizer swaps the native coin and its wrapped token 1:1 against a
// liquidity account.
type WrapNormalizer struct {
	ledger    Ledger
	native    string
	wrapped   string
	liquidity model.Address
	custody   model.Address
}

// NewWrapNormalizer returns a normalizer over the native/wrapped pair.
func NewWrapNormalizer(ledger Ledger, native, wrapped string, liquidity, custody model.Address) *WrapNormalizer {
	return &WrapNormalizer{
		ledger:    ledger,
		native:    native,
		wrapped:   wrapped,
		liquidity: liquidity,
		custody:   custody,
	}
}

// Supports reports whether from can be converted into to.
func (n *WrapNormalizer) Supports(from, to string) bool {
	if n.native == "" || n.wrapped == "" {
		return false
	}
	return (from == n.native && to == n.wrapped) || (from == n.wrapped && to == n.native)
}

// Normalize implements Normalizer.
func (n *WrapNormalizer) Normalize(tx *store.Tx, p model.Payment, target string) (model.Payment, bool) {
	if p.Token == target {
		return p, true
	}
	if !p.IsFungible() || !n.Supports(p.Token, target) || !p.Amount.IsPositive() {
		return p, false
	}

	available, err := n.ledger.BalanceOf(tx, n.liquidity, target, 0)
	if err != nil || available.LessThan(p.Amount) {
		return p, false
	}

	out := model.Payment{Token: target, Amount: p.Amount}
	if err := n.ledger.Transfer(tx, n.custody, n.liquidity, p); err != nil {
		return p, false
	}
	if err := n.ledger.Transfer(tx, n.liquidity, n.custody, out); err != nil {
		// the inbound leg stays staged; the caller's failed tx discards it
		return p, false
	}
	return out, true
}

// NoConversion never converts anything.
type NoConversion struct{}

// Normalize implements Normalizer.
func (NoConversion) Normalize(_ *store.Tx, p model.Payment, target string) (model.Payment, bool) {
	return p, p.Token == target
}
