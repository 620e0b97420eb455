// Package fees implements the multi-party sale split between marketplace,
// item creator, an optional collection extra fee and the seller.
//
// All arithmetic is integer arithmetic on shopspring/decimal values with
// truncating division, so every split adds back up to the gross price.
package fees

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/atmx/settlement-engine/internal/model"
)

const (
	// MaxCutPercentage is the highest marketplace cut an admin may set.
	MaxCutPercentage uint32 = 2_500

	// RoyaltyCap replaces a listing royalty that would push cut + royalty
	// to 100% or more.
	RoyaltyCap uint32 = 5_000
)

var (
	// ErrFeesTooHigh is returned when cut, royalty and extra fee sum to 100%
	// or more. The split is never clamped silently.
	ErrFeesTooHigh = errors.New("fees: cut, royalty and extra fee must total below 100%")

	// ErrInvalidPrice is returned for negative or fractional prices.
	ErrInvalidPrice = errors.New("fees: price must be a non-negative integer amount")
)

var basisPoints = decimal.NewFromInt(model.BasisPoints)

// Breakdown is the result of splitting one gross price.
//
// Creator + Marketplace + Extra + Seller == Price always holds. The reversed
// flags only change how a buyer's obligation is read: a reversed cut is paid
// by the buyer on top of Price instead of being deducted from the seller.
type Breakdown struct {
	Price           decimal.Decimal `json:"price"`
	Creator         decimal.Decimal `json:"creator"`
	Marketplace     decimal.Decimal `json:"marketplace"`
	Extra           decimal.Decimal `json:"extra"`
	Seller          decimal.Decimal `json:"seller"`
	ExtraRecipient  model.Address   `json:"extra_recipient"`
	ReversedCut     bool            `json:"reversed_cut"`
	ReversedRoyalty bool            `json:"reversed_royalty"`
}

// Percent returns amount × rate / 10000, truncated.
func Percent(amount decimal.Decimal, rate uint32) decimal.Decimal {
	if rate == 0 || amount.IsZero() {
		return decimal.Zero
	}
	q, _ := amount.Mul(decimal.NewFromInt(int64(rate))).QuoRem(basisPoints, 0)
	return q
}

// Split divides price between the parties. cfg may be nil when the
// collection has no fee policy.
func Split(price decimal.Decimal, royalty, cut uint32, cfg *model.CollectionConfig) (Breakdown, error) {
	if price.IsNegative() || !price.IsInteger() {
		return Breakdown{}, fmt.Errorf("%w: %s", ErrInvalidPrice, price)
	}

	var extraRate uint32
	var b Breakdown
	if cfg != nil {
		b.ReversedCut = cfg.ReverseCutFees
		b.ReversedRoyalty = cfg.ReverseRoyalties
		if !cfg.ExtraFee.Recipient.IsZero() {
			extraRate = cfg.ExtraFee.Rate
			b.ExtraRecipient = cfg.ExtraFee.Recipient
		}
	}

	total := uint64(cut) + uint64(royalty) + uint64(extraRate)
	if total >= model.BasisPoints {
		return Breakdown{}, fmt.Errorf("%w: cut=%d royalty=%d extra=%d", ErrFeesTooHigh, cut, royalty, extraRate)
	}

	b.Price = price
	b.Marketplace = Percent(price, cut)
	b.Creator = Percent(price, royalty)
	b.Extra = Percent(price, extraRate)
	b.Seller = price.Sub(b.Creator).Sub(b.Marketplace).Sub(b.Extra)
	return b, nil
}

// Obligation is what the buyer pays: the price plus every reversed cut.
func (b Breakdown) Obligation() decimal.Decimal {
	return b.Price.Add(b.reversedPortion())
}

// SellerNet is what the seller receives: the seller share plus every
// reversed cut, which the buyer funded.
func (b Breakdown) SellerNet() decimal.Decimal {
	return b.Seller.Add(b.reversedPortion())
}

// Deducted returns the breakdown with fee direction forced to the default,
// for settlements whose buyer funds are already fixed in custody.
func (b Breakdown) Deducted() Breakdown {
	b.ReversedCut = false
	b.ReversedRoyalty = false
	return b
}

func (b Breakdown) reversedPortion() decimal.Decimal {
	extra := decimal.Zero
	if b.ReversedCut {
		extra = extra.Add(b.Marketplace)
	}
	if b.ReversedRoyalty {
		extra = extra.Add(b.Creator)
	}
	return extra
}

// ResolveRoyalty picks the royalty snapshot for a new listing. With custom
// royalties enabled the listing override is clamped into the collection's
// bounds; otherwise the item's native royalty applies. A royalty that would
// bring cut + royalty to 100% is replaced by RoyaltyCap.
func ResolveRoyalty(override, native, cut uint32, cfg *model.CollectionConfig) uint32 {
	royalty := native
	if cfg != nil && cfg.CustomRoyalties {
		royalty = clamp(override, cfg.MinRoyalty, cfg.MaxRoyalty)
	}
	if uint64(cut)+uint64(royalty) >= model.BasisPoints {
		royalty = RoyaltyCap
	}
	return royalty
}

// ValidateConfig checks a collection policy before it is stored.
func ValidateConfig(cfg *model.CollectionConfig, cut uint32) error {
	if cfg == nil {
		return nil
	}
	if cfg.CustomRoyalties && cfg.MinRoyalty > cfg.MaxRoyalty {
		return fmt.Errorf("fees: min royalty %d above max royalty %d", cfg.MinRoyalty, cfg.MaxRoyalty)
	}
	if cfg.MaxRoyalty >= model.BasisPoints {
		return fmt.Errorf("%w: max royalty %d", ErrFeesTooHigh, cfg.MaxRoyalty)
	}
	if uint64(cfg.ExtraFee.Rate)+uint64(cut) >= model.BasisPoints {
		return fmt.Errorf("%w: extra fee %d", ErrFeesTooHigh, cfg.ExtraFee.Rate)
	}
	if cfg.ExtraFee.Rate > 0 && cfg.ExtraFee.Recipient.IsZero() {
		return errors.New("fees: extra fee requires a recipient")
	}
	return nil
}

func clamp(v, lo, hi uint32) uint32 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
