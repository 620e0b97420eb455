package marketplace

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/shopspring/decimal"

	"github.com/atmx/settlement-engine/internal/events"
	"github.com/atmx/settlement-engine/internal/fees"
	"github.com/atmx/settlement-engine/internal/model"
)

// Bid places an ascending bid with the attached payment. A bid equal to the
// max price ends the auction immediately.
func (e *Engine) Bid(ctx context.Context, call Call, auctionID uint64) (*Receipt, error) {
	return e.run(ctx, "bid", call, func(o *op) error {
		p, err := o.single()
		if err != nil {
			return err
		}
		a, err := e.liveAuction(o.tx, auctionID)
		if err != nil {
			return err
		}

		switch {
		case !a.Type.AcceptsBids():
			return fmt.Errorf("%w: %s", ErrNoBidding, a.Type)
		case a.Owner == o.caller():
			return ErrOwnAuction
		case o.now() < a.StartTime:
			return ErrNotStarted
		case a.Expired(o.now()):
			return ErrExpired
		case a.CurrentWinner == o.caller():
			return ErrAlreadyWinner
		}
		if err := e.receive(o); err != nil {
			return err
		}

		p, ok := e.normalize(o, p, a.PaymentToken, a.PaymentNonce)
		if !ok {
			return fmt.Errorf("%w: want %s-%d, got %s-%d", ErrWrongPayment, a.PaymentToken, a.PaymentNonce, p.Token, p.Nonce)
		}

		amount := p.Amount
		switch {
		case amount.LessThan(a.MinPrice):
			return fmt.Errorf("%w: %s below min price %s", ErrBidTooLow, amount, a.MinPrice)
		case amount.LessThanOrEqual(a.CurrentBid):
			return fmt.Errorf("%w: %s not above current bid %s", ErrBidTooLow, amount, a.CurrentBid)
		case a.HasMaxPrice() && amount.GreaterThan(a.MaxPrice):
			return fmt.Errorf("%w: %s above %s", ErrBidAboveMax, amount, a.MaxPrice)
		}

		if a.HasBid() {
			refund := model.Payment{Token: a.PaymentToken, Nonce: a.PaymentNonce, Amount: a.CurrentBid}
			if err := e.pay(o, a.CurrentWinner, refund); err != nil {
				return err
			}
		}
		a.CurrentBid = amount
		a.CurrentWinner = o.caller()
		o.receipt.IDs = append(o.receipt.IDs, a.ID)
		o.emit(events.TypeAuctionBid,
			"auction_id", u64(a.ID),
			"bidder", o.caller().String(),
			"amount", amount.String(),
		)

		if a.HasMaxPrice() && amount.Equal(a.MaxPrice) {
			return e.endAuction(o, a)
		}
		return o.tx.UpdateAuction(a)
	})
}

// End settles an auction. It is allowed once the deadline has passed, when
// the max price was reached, or by the owner of a bid-less "fixed price via
// auction" listing.
func (e *Engine) End(ctx context.Context, call Call, auctionID uint64) (*Receipt, error) {
	return e.run(ctx, "end", call, func(o *op) error {
		if err := o.expectPayments(0); err != nil {
			return err
		}
		a, err := e.liveAuction(o.tx, auctionID)
		if err != nil {
			return err
		}
		maxReached := a.HasMaxPrice() && a.HasBid() && a.CurrentBid.Equal(a.MaxPrice)
		ownerClose := !a.HasBid() && a.Owner == o.caller() && a.IsFixedViaAuction()
		if !a.Expired(o.now()) && !maxReached && !ownerClose {
			return fmt.Errorf("%w: auction %d", ErrCannotEnd, a.ID)
		}
		o.receipt.IDs = append(o.receipt.IDs, a.ID)
		return e.endAuction(o, a)
	})
}

func (e *Engine) endAuction(o *op, a *model.Auction) error {
	if a.HasBid() {
		cfg, err := o.tx.GetCollectionConfig(a.Collection)
		if err != nil {
			return err
		}
		b, err := fees.Split(a.CurrentBid, a.CreatorRoyalty, a.CutPercentage, cfg)
		if err != nil {
			return err
		}
		err = e.settle(o, Settlement{
			Kind:      "auction",
			AuctionID: a.ID,
			Buyer:     a.CurrentWinner,
			Seller:    a.Owner,
			Creator:   a.Creator,
			Token:     a.PaymentToken,
			Nonce:     a.PaymentNonce,
			Breakdown: b.Deducted(),
		}, false)
		if err != nil {
			return err
		}
		if err := e.pay(o, a.CurrentWinner, a.Item()); err != nil {
			return err
		}
		o.receipt.Status = "won"
	} else {
		if err := e.pay(o, a.Owner, a.Item()); err != nil {
			return err
		}
		o.receipt.Status = "returned"
	}

	e.removeAuction(o, a)
	o.emit(events.TypeAuctionEnded,
		"auction_id", u64(a.ID),
		"winner", a.CurrentWinner.String(),
		"amount", a.CurrentBid.String(),
		"outcome", o.receipt.Status,
	)
	slog.Info("auction ended",
		"id", a.ID,
		"outcome", o.receipt.Status,
		"winner", a.CurrentWinner.String(),
		"amount", a.CurrentBid.String(),
	)
	return nil
}

// Buy purchases quantity units of a fixed price listing for the caller.
func (e *Engine) Buy(ctx context.Context, call Call, auctionID uint64, quantity decimal.Decimal) (*Receipt, error) {
	return e.run(ctx, "buy", call, func(o *op) error {
		return e.buy(o, auctionID, quantity, o.caller(), false)
	})
}

// BuyFor purchases on behalf of recipient and attaches a free-form message
// to the receipt.
func (e *Engine) BuyFor(ctx context.Context, call Call, auctionID uint64, quantity decimal.Decimal, recipient model.Address, message string) (*Receipt, error) {
	return e.run(ctx, "buy_for", call, func(o *op) error {
		if recipient.IsZero() {
			return ErrInvalidRecipient
		}
		o.receipt.Message = message
		return e.buy(o, auctionID, quantity, recipient, false)
	})
}

// BuyWithSwap purchases with a payment in the wrapped/native counterpart of
// the listing currency, converting it first.
func (e *Engine) BuyWithSwap(ctx context.Context, call Call, auctionID uint64, quantity decimal.Decimal) (*Receipt, error) {
	return e.run(ctx, "buy_with_swap", call, func(o *op) error {
		return e.buy(o, auctionID, quantity, o.caller(), true)
	})
}

func (e *Engine) buy(o *op, auctionID uint64, quantity decimal.Decimal, recipient model.Address, swap bool) error {
	p, err := o.single()
	if err != nil {
		return err
	}
	a, err := e.liveAuction(o.tx, auctionID)
	if err != nil {
		return err
	}
	if err := e.checkPurchasable(o, a); err != nil {
		return err
	}
	if !positiveInteger(quantity) || quantity.GreaterThan(a.Quantity) {
		return fmt.Errorf("%w: %s of %s", ErrInvalidQuantity, quantity, a.Quantity)
	}
	if !swap && (p.Token != a.PaymentToken || p.Nonce != a.PaymentNonce) {
		return fmt.Errorf("%w: want %s-%d, got %s-%d", ErrWrongPayment, a.PaymentToken, a.PaymentNonce, p.Token, p.Nonce)
	}
	if err := e.receive(o); err != nil {
		return err
	}
	if swap {
		var ok bool
		if p, ok = e.normalize(o, p, a.PaymentToken, a.PaymentNonce); !ok {
			return fmt.Errorf("%w: %s-%d into %s-%d", ErrSwapFailed, p.Token, p.Nonce, a.PaymentToken, a.PaymentNonce)
		}
	}

	cfg, err := o.tx.GetCollectionConfig(a.Collection)
	if err != nil {
		return err
	}
	b, err := fees.Split(a.MinPrice.Mul(quantity), a.CreatorRoyalty, a.CutPercentage, cfg)
	if err != nil {
		return err
	}
	if !p.Amount.Equal(b.Obligation()) {
		return fmt.Errorf("%w: paid %s, required %s", ErrWrongPayment, p.Amount, b.Obligation())
	}

	err = e.settle(o, Settlement{
		Kind:      "buy",
		AuctionID: a.ID,
		Buyer:     recipient,
		Seller:    a.Owner,
		Creator:   a.Creator,
		Token:     a.PaymentToken,
		Nonce:     a.PaymentNonce,
		Breakdown: b,
	}, false)
	if err != nil {
		return err
	}

	bought := model.Payment{Token: a.Collection, Nonce: a.Nonce, Amount: quantity}
	if err := e.pay(o, recipient, bought); err != nil {
		return err
	}
	o.receipt.Delivered = append(o.receipt.Delivered, bought)
	o.receipt.IDs = append(o.receipt.IDs, a.ID)

	a.Quantity = a.Quantity.Sub(quantity)
	if a.Quantity.IsZero() {
		e.removeAuction(o, a)
	} else if err := o.tx.UpdateAuction(a); err != nil {
		return err
	}

	o.emit(events.TypeAuctionBought,
		"auction_id", u64(a.ID),
		"buyer", recipient.String(),
		"quantity", quantity.String(),
		"price", b.Price.String(),
		"remaining", a.Quantity.String(),
	)
	return nil
}

// checkPurchasable validates a fixed price listing against the caller.
func (e *Engine) checkPurchasable(o *op, a *model.Auction) error {
	switch {
	case !a.Type.IsFixedPriceLike():
		return fmt.Errorf("%w: auction %d is %s", ErrNotFixedPrice, a.ID, a.Type)
	case a.Owner == o.caller():
		return ErrOwnAuction
	case o.now() < a.StartTime:
		return ErrNotStarted
	case a.Expired(o.now()):
		return ErrExpired
	}
	return nil
}

// Withdraw returns listed items to their owner. Auctions with a bid in
// progress cannot be withdrawn.
func (e *Engine) Withdraw(ctx context.Context, call Call, auctionIDs []uint64) (*Receipt, error) {
	return e.run(ctx, "withdraw", call, func(o *op) error {
		if len(auctionIDs) == 0 {
			return fmt.Errorf("%w: no auctions", ErrValidation)
		}
		if err := o.expectPayments(0); err != nil {
			return err
		}
		for _, id := range auctionIDs {
			a, err := e.liveAuction(o.tx, id)
			if err != nil {
				return err
			}
			if a.Owner != o.caller() {
				return fmt.Errorf("%w: auction %d", ErrNotOwner, id)
			}
			if a.HasBid() && !a.Type.IsFixedPriceLike() {
				return fmt.Errorf("%w: auction %d", ErrBidInProgress, id)
			}
			if err := e.pay(o, a.Owner, a.Item()); err != nil {
				return err
			}
			e.removeAuction(o, a)
			o.receipt.IDs = append(o.receipt.IDs, id)
			o.receipt.Delivered = append(o.receipt.Delivered, a.Item())
			o.emit(events.TypeAuctionWithdrawn,
				"auction_id", u64(id),
				"owner", a.Owner.String(),
			)
		}
		return nil
	})
}

// normalize converts p into the target currency when it differs. It reports
// false, with p unchanged, when no conversion was possible.
func (e *Engine) normalize(o *op, p model.Payment, token string, nonce uint64) (model.Payment, bool) {
	if p.Token == token && p.Nonce == nonce {
		return p, true
	}
	out, ok := e.normalizer.Normalize(o.tx, p, token)
	if !ok || out.Token != token || out.Nonce != nonce {
		return p, false
	}
	slog.Info("payment normalized",
		"from", p.Token,
		"to", out.Token,
		"amount", out.Amount.String(),
	)
	return out, true
}
