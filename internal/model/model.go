// Package model defines the core domain types shared across the settlement
// engine. All monetary values and item quantities use shopspring/decimal
// holding integers in smallest units.
package model

import (
	"encoding/hex"
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// BasisPoints is the denominator for every percentage in the engine.
const BasisPoints = 10_000

// AddressLength is the byte length of an account address.
const AddressLength = 32

// contractPrefixLen is the number of leading zero bytes that mark a
// smart-contract address.
const contractPrefixLen = 8

var ErrInvalidAddress = errors.New("model: invalid address")

// Address identifies an account. The zero address is the "nobody" sentinel
// used for empty winners and unset admins.
type Address [AddressLength]byte

// ZeroAddress is the unset address.
var ZeroAddress Address

// ParseAddress decodes a 64 character hex address.
func ParseAddress(s string) (Address, error) {
	var a Address
	raw, err := hex.DecodeString(strings.TrimPrefix(strings.TrimSpace(s), "0x"))
	if err != nil || len(raw) != AddressLength {
		return a, fmt.Errorf("%w: %q", ErrInvalidAddress, s)
	}
	copy(a[:], raw)
	return a, nil
}

// MustAddress is ParseAddress for constants and tests.
func MustAddress(s string) Address {
	a, err := ParseAddress(s)
	if err != nil {
		panic(err)
	}
	return a
}

func (a Address) IsZero() bool { return a == ZeroAddress }

// IsSmartContract reports whether the address belongs to a deployed
// contract: contract addresses start with eight zero bytes.
func (a Address) IsSmartContract() bool {
	if a.IsZero() {
		return false
	}
	for _, b := range a[:contractPrefixLen] {
		if b != 0 {
			return false
		}
	}
	return true
}

func (a Address) String() string { return hex.EncodeToString(a[:]) }

func (a Address) MarshalText() ([]byte, error) { return []byte(a.String()), nil }

func (a *Address) UnmarshalText(text []byte) error {
	parsed, err := ParseAddress(string(text))
	if err != nil {
		return err
	}
	*a = parsed
	return nil
}

// Payment is one token transfer attached to (or produced by) an operation.
// Nonce 0 denotes a fungible token.
type Payment struct {
	Token  string          `json:"token"`
	Nonce  uint64          `json:"nonce"`
	Amount decimal.Decimal `json:"amount"`
}

// IsFungible reports whether the payment carries a fungible currency.
func (p Payment) IsFungible() bool { return p.Nonce == 0 }

// AuctionType selects the listing's trading rules.
type AuctionType uint8

const (
	// FixedPrice sells units at MinPrice (== MaxPrice) each.
	FixedPrice AuctionType = iota + 1
	// BidNft is an ascending-bid auction for a single item.
	BidNft
	// BulkSft is an ascending-bid auction for the whole quantity as one lot.
	BulkSft
	// SftOnePerPayment sells semi-fungible units at a fixed unit price.
	SftOnePerPayment
)

var auctionTypeNames = map[AuctionType]string{
	FixedPrice:       "fixed_price",
	BidNft:           "bid_nft",
	BulkSft:          "bulk_sft",
	SftOnePerPayment: "sft_one_per_payment",
}

func (t AuctionType) Valid() bool {
	_, ok := auctionTypeNames[t]
	return ok
}

func (t AuctionType) String() string {
	if name, ok := auctionTypeNames[t]; ok {
		return name
	}
	return "unknown"
}

func (t AuctionType) MarshalText() ([]byte, error) {
	if !t.Valid() {
		return nil, fmt.Errorf("model: invalid auction type %d", t)
	}
	return []byte(t.String()), nil
}

func (t *AuctionType) UnmarshalText(text []byte) error {
	for k, v := range auctionTypeNames {
		if v == string(text) {
			*t = k
			return nil
		}
	}
	return fmt.Errorf("model: unknown auction type %q", text)
}

// IsFixedPriceLike reports whether the type is bought rather than bid on.
func (t AuctionType) IsFixedPriceLike() bool {
	return t == FixedPrice || t == SftOnePerPayment
}

// AcceptsBids reports whether the type runs an ascending bid.
func (t AuctionType) AcceptsBids() bool {
	return t == BidNft || t == BulkSft
}

// Auction is a live listing. Records are deleted on settlement; there are
// no tombstones.
type Auction struct {
	ID             uint64          `json:"id"`
	Collection     string          `json:"collection"`
	Nonce          uint64          `json:"nonce"`
	Quantity       decimal.Decimal `json:"quantity"`
	Type           AuctionType     `json:"type"`
	PaymentToken   string          `json:"payment_token"`
	PaymentNonce   uint64          `json:"payment_nonce"`
	MinPrice       decimal.Decimal `json:"min_price"`
	MaxPrice       decimal.Decimal `json:"max_price"` // zero = unset
	StartTime      int64           `json:"start_time"`
	Deadline       int64           `json:"deadline"` // 0 = none
	Owner          Address         `json:"owner"`
	CurrentBid     decimal.Decimal `json:"current_bid"`
	CurrentWinner  Address         `json:"current_winner"`
	CutPercentage  uint32          `json:"cut_percentage"`  // snapshot at listing
	CreatorRoyalty uint32          `json:"creator_royalty"` // snapshot at listing
	Creator        Address         `json:"creator"`
	CreatedAt      int64           `json:"created_at"`
}

// HasMaxPrice reports whether a buy-out price is configured.
func (a *Auction) HasMaxPrice() bool { return a.MaxPrice.IsPositive() }

// HasBid reports whether a bid is in progress.
func (a *Auction) HasBid() bool { return !a.CurrentWinner.IsZero() }

// IsFixedViaAuction is the "fixed price via auction" special case: a bulk
// lot with no deadline whose only admissible bid is the buy-out price.
func (a *Auction) IsFixedViaAuction() bool {
	return a.Type == BulkSft && a.Deadline == 0 && a.MinPrice.Equal(a.MaxPrice)
}

// Expired reports whether the deadline has passed at now.
func (a *Auction) Expired(now int64) bool {
	return a.Deadline != 0 && now > a.Deadline
}

// Item returns the listed item as a payment.
func (a *Auction) Item() Payment {
	return Payment{Token: a.Collection, Nonce: a.Nonce, Amount: a.Quantity}
}

// OfferStatus tracks a direct offer; every state other than Pending is terminal.
type OfferStatus uint8

const (
	OfferPending OfferStatus = iota
	OfferAccepted
	OfferDeclined
	OfferWithdraw
)

func (s OfferStatus) String() string {
	switch s {
	case OfferPending:
		return "pending"
	case OfferAccepted:
		return "accepted"
	case OfferDeclined:
		return "declined"
	case OfferWithdraw:
		return "withdraw"
	default:
		return "unknown"
	}
}

func (s OfferStatus) MarshalText() ([]byte, error) { return []byte(s.String()), nil }

func (s *OfferStatus) UnmarshalText(text []byte) error {
	for _, candidate := range []OfferStatus{OfferPending, OfferAccepted, OfferDeclined, OfferWithdraw} {
		if candidate.String() == string(text) {
			*s = candidate
			return nil
		}
	}
	return fmt.Errorf("model: unknown offer status %q", text)
}

// Offer is a standing bid on one specific item.
type Offer struct {
	ID            uint64          `json:"id"`
	Collection    string          `json:"collection"`
	Nonce         uint64          `json:"nonce"`
	Quantity      decimal.Decimal `json:"quantity"`
	PaymentToken  string          `json:"payment_token"`
	PaymentNonce  uint64          `json:"payment_nonce"`
	Price         decimal.Decimal `json:"price"`
	Deadline      int64           `json:"deadline"`
	CreatedAt     int64           `json:"created_at"`
	Owner         Address         `json:"owner"`
	Status        OfferStatus     `json:"status"`
	CutPercentage uint32          `json:"cut_percentage"`
	FromDeposit   bool            `json:"from_deposit"`
}

// GlobalOffer is a standing bid on any item(s) of a collection.
type GlobalOffer struct {
	ID           uint64          `json:"id"`
	Collection   string          `json:"collection"`
	Quantity     decimal.Decimal `json:"quantity"` // remaining
	PaymentToken string          `json:"payment_token"`
	PaymentNonce uint64          `json:"payment_nonce"`
	Price        decimal.Decimal `json:"price"` // per unit
	Owner        Address         `json:"owner"`
	Attributes   []byte          `json:"attributes,omitempty"`
	CreatedAt    int64           `json:"created_at"`
	FromDeposit  bool            `json:"from_deposit"`
}

// HasAttributeFilter reports whether acceptance needs a signed proof.
func (g *GlobalOffer) HasAttributeFilter() bool { return len(g.Attributes) > 0 }

// ExtraFee routes an additional cut of every sale in a collection.
type ExtraFee struct {
	Rate      uint32  `json:"rate"`
	Recipient Address `json:"recipient"`
}

// CollectionConfig overrides fee behaviour for a single collection.
type CollectionConfig struct {
	Collection       string   `json:"collection"`
	ReverseCutFees   bool     `json:"reverse_cut_fees"`
	ReverseRoyalties bool     `json:"reverse_royalties"`
	CustomRoyalties  bool     `json:"custom_royalties"`
	MinRoyalty       uint32   `json:"min_royalty"`
	MaxRoyalty       uint32   `json:"max_royalty"`
	ExtraFee         ExtraFee `json:"extra_fee"`
	Admin            Address  `json:"admin"`
}

// ItemMetadata is the on-ledger attribute set of one item.
type ItemMetadata struct {
	Collection string  `json:"collection"`
	Nonce      uint64  `json:"nonce"`
	Creator    Address `json:"creator"`
	Royalties  uint32  `json:"royalties"`
	Attributes []byte  `json:"attributes,omitempty"`
}

// ClaimableBalance is value held for a recipient that cannot take a push
// transfer.
type ClaimableBalance struct {
	Recipient Address         `json:"recipient"`
	Token     string          `json:"token"`
	Nonce     uint64          `json:"nonce"`
	Amount    decimal.Decimal `json:"amount"`
}

// DepositBalance is a pre-funded pool balance.
type DepositBalance struct {
	Owner  Address         `json:"owner"`
	Token  string          `json:"token"`
	Nonce  uint64          `json:"nonce"`
	Amount decimal.Decimal `json:"amount"`
}
