package marketplace

import (
	"errors"
	"fmt"

	"github.com/atmx/settlement-engine/internal/bank"
	"github.com/atmx/settlement-engine/internal/deposit"
	"github.com/atmx/settlement-engine/internal/escrow"
	"github.com/atmx/settlement-engine/internal/fees"
	"github.com/atmx/settlement-engine/internal/host"
	"github.com/atmx/settlement-engine/internal/limits"
	"github.com/atmx/settlement-engine/internal/store"
)

// Rejection categories. Every error returned by an operation matches
// exactly one of them with errors.Is.
var (
	ErrValidation        = errors.New("marketplace: rejected")
	ErrNotFound          = errors.New("marketplace: not found")
	ErrUnauthorized      = errors.New("marketplace: unauthorized")
	ErrInsufficientFunds = errors.New("marketplace: insufficient funds")
)

var (
	ErrPaymentCount        = fmt.Errorf("%w: unexpected number of attached payments", ErrValidation)
	ErrWrongPayment        = fmt.Errorf("%w: attached payment does not match", ErrValidation)
	ErrCurrencyNotAccepted = fmt.Errorf("%w: payment currency not accepted", ErrValidation)
	ErrFungibleItem        = fmt.Errorf("%w: fungible tokens cannot be traded as items", ErrValidation)
	ErrInvalidQuantity     = fmt.Errorf("%w: invalid quantity", ErrValidation)
	ErrInvalidPrice        = fmt.Errorf("%w: invalid price", ErrValidation)
	ErrInvalidDeadline     = fmt.Errorf("%w: invalid deadline", ErrValidation)
	ErrInvalidStartTime    = fmt.Errorf("%w: invalid start time", ErrValidation)
	ErrInvalidType         = fmt.Errorf("%w: invalid auction type", ErrValidation)
	ErrPriceMismatch       = fmt.Errorf("%w: fixed price listings need min price equal to max price", ErrValidation)
	ErrNotStarted          = fmt.Errorf("%w: auction has not started", ErrValidation)
	ErrExpired             = fmt.Errorf("%w: deadline has passed", ErrValidation)
	ErrOwnAuction          = fmt.Errorf("%w: owner cannot trade on own auction", ErrValidation)
	ErrOwnOffer            = fmt.Errorf("%w: owner cannot accept own offer", ErrValidation)
	ErrAlreadyWinner       = fmt.Errorf("%w: caller already holds the top bid", ErrValidation)
	ErrBidTooLow           = fmt.Errorf("%w: bid too low", ErrValidation)
	ErrBidAboveMax         = fmt.Errorf("%w: bid above max price", ErrValidation)
	ErrNoBidding           = fmt.Errorf("%w: auction type does not accept bids", ErrValidation)
	ErrNotFixedPrice       = fmt.Errorf("%w: auction is not a fixed price listing", ErrValidation)
	ErrBidInProgress       = fmt.Errorf("%w: a bid is in progress", ErrValidation)
	ErrCannotEnd           = fmt.Errorf("%w: auction cannot be ended yet", ErrValidation)
	ErrFrozen              = fmt.Errorf("%w: auction is frozen", ErrValidation)
	ErrDuplicateOffer      = fmt.Errorf("%w: a pending offer already exists for this item and currency", ErrValidation)
	ErrOfferNotPending     = fmt.Errorf("%w: offer is not pending", ErrValidation)
	ErrOfferExpired        = fmt.Errorf("%w: offer has expired", ErrValidation)
	ErrItemMismatch        = fmt.Errorf("%w: item does not match", ErrValidation)
	ErrInvalidSignature    = fmt.Errorf("%w: invalid signature", ErrValidation)
	ErrQuantityExceeded    = fmt.Errorf("%w: quantity exceeds what is available", ErrValidation)
	ErrSwapFailed          = fmt.Errorf("%w: payment could not be converted", ErrValidation)
	ErrInvalidRecipient    = fmt.Errorf("%w: invalid recipient", ErrValidation)

	ErrNotOwner = fmt.Errorf("%w: caller is not the owner", ErrUnauthorized)
	ErrNotAdmin = fmt.Errorf("%w: caller is not an admin", ErrUnauthorized)
)

// classify wraps collaborator errors into a rejection category so callers
// only need the four sentinels above.
func classify(err error) error {
	if err == nil {
		return nil
	}
	switch {
	case errors.Is(err, ErrValidation), errors.Is(err, ErrNotFound),
		errors.Is(err, ErrUnauthorized), errors.Is(err, ErrInsufficientFunds):
		return err
	case errors.Is(err, store.ErrNotFound), errors.Is(err, host.ErrUnknownItem):
		return fmt.Errorf("%w: %w", ErrNotFound, err)
	case errors.Is(err, bank.ErrInsufficientBalance), errors.Is(err, deposit.ErrInsufficientBalance):
		return fmt.Errorf("%w: %w", ErrInsufficientFunds, err)
	case errors.Is(err, escrow.ErrNothingToClaim):
		return fmt.Errorf("%w: %w", ErrNotFound, err)
	case errors.Is(err, fees.ErrFeesTooHigh), errors.Is(err, fees.ErrInvalidPrice),
		errors.Is(err, bank.ErrInvalidAmount), errors.Is(err, deposit.ErrInvalidAmount),
		errors.Is(err, deposit.ErrCurrencyNotAccepted),
		errors.Is(err, limits.ErrOwnerLimitExceeded), errors.Is(err, limits.ErrCollectionLimitExceeded):
		return fmt.Errorf("%w: %w", ErrValidation, err)
	}
	return err
}
