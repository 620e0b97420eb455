package marketplace

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/shopspring/decimal"

	"github.com/atmx/settlement-engine/internal/events"
	"github.com/atmx/settlement-engine/internal/fees"
	"github.com/atmx/settlement-engine/internal/model"
	"github.com/atmx/settlement-engine/internal/store"
)

// OfferRequest describes a standing offer on one item.
type OfferRequest struct {
	Collection   string          `json:"collection"`
	Nonce        uint64          `json:"nonce"`
	Quantity     decimal.Decimal `json:"quantity"` // zero means 1; offers cover a single unit
	PaymentToken string          `json:"payment_token"`
	PaymentNonce uint64          `json:"payment_nonce"`
	Price        decimal.Decimal `json:"price"`
	Deadline     int64           `json:"deadline"`
	// FromDeposit backs the offer with the deposit pool instead of an
	// attached payment.
	FromDeposit bool `json:"from_deposit"`
}

// SendOffer creates a pending offer. Only one pending offer may exist per
// owner, item and payment currency (token and nonce).
func (e *Engine) SendOffer(ctx context.Context, call Call, req OfferRequest) (*Receipt, error) {
	return e.run(ctx, "send_offer", call, func(o *op) error {
		if req.Nonce == 0 {
			return fmt.Errorf("%w: %s", ErrFungibleItem, req.Collection)
		}
		qty := req.Quantity
		if qty.IsZero() {
			qty = decimal.NewFromInt(1)
		}
		if !qty.Equal(decimal.NewFromInt(1)) {
			return fmt.Errorf("%w: offers cover one unit, got %s", ErrInvalidQuantity, qty)
		}
		if !positiveInteger(req.Price) {
			return fmt.Errorf("%w: %s", ErrInvalidPrice, req.Price)
		}
		if req.Deadline <= o.now() {
			return fmt.Errorf("%w: %d is not in the future", ErrInvalidDeadline, req.Deadline)
		}
		if err := e.requireAccepted(o.tx, req.PaymentToken); err != nil {
			return err
		}
		if _, err := e.metadata.Item(o.tx, req.Collection, req.Nonce); err != nil {
			return err
		}
		if _, exists, err := o.tx.PendingOfferID(o.caller(), req.Collection, req.Nonce, req.PaymentToken, req.PaymentNonce); err != nil {
			return err
		} else if exists {
			return ErrDuplicateOffer
		}

		if err := e.fund(o, req.FromDeposit, req.PaymentToken, req.PaymentNonce, req.Price); err != nil {
			return err
		}

		cut, err := e.cut(o.tx)
		if err != nil {
			return err
		}
		id, err := o.tx.NextID(store.KindOffer)
		if err != nil {
			return err
		}
		offer := &model.Offer{
			ID:            id,
			Collection:    req.Collection,
			Nonce:         req.Nonce,
			Quantity:      qty,
			PaymentToken:  req.PaymentToken,
			PaymentNonce:  req.PaymentNonce,
			Price:         req.Price,
			Deadline:      req.Deadline,
			CreatedAt:     o.now(),
			Owner:         o.caller(),
			Status:        model.OfferPending,
			CutPercentage: cut,
			FromDeposit:   req.FromDeposit,
		}
		if err := o.tx.InsertOffer(offer); err != nil {
			return err
		}

		o.receipt.IDs = append(o.receipt.IDs, id)
		o.receipt.Status = offer.Status.String()
		o.emit(events.TypeOfferCreated,
			"offer_id", u64(id),
			"owner", offer.Owner.String(),
			"collection", offer.Collection,
			"nonce", u64(offer.Nonce),
			"price", offer.Price.String(),
		)
		slog.Info("offer created",
			"id", id,
			"owner", offer.Owner.String(),
			"item", fmt.Sprintf("%s-%d", offer.Collection, offer.Nonce),
			"price", offer.Price.String(),
			"from_deposit", offer.FromDeposit,
		)
		return nil
	})
}

// fund checks that an offer is backed: either the attached payment is
// exactly amount, or the owner's deposit currently covers it.
func (e *Engine) fund(o *op, fromDeposit bool, token string, nonce uint64, amount decimal.Decimal) error {
	if fromDeposit {
		if err := o.expectPayments(0); err != nil {
			return err
		}
		ok, err := e.pool.HasBalance(o.tx, o.caller(), token, nonce, amount)
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("%w: deposit below %s %s-%d", ErrInsufficientFunds, amount, token, nonce)
		}
		return nil
	}
	p, err := o.single()
	if err != nil {
		return err
	}
	if p.Token != token || p.Nonce != nonce || !p.Amount.Equal(amount) {
		return fmt.Errorf("%w: want %s %s-%d", ErrWrongPayment, amount, token, nonce)
	}
	return nil
}

// pendingOffer loads an offer that can still transition.
func (e *Engine) pendingOffer(tx *store.Tx, id uint64) (*model.Offer, error) {
	offer, err := tx.GetOffer(id)
	if err != nil {
		return nil, err
	}
	if offer.Status != model.OfferPending {
		return nil, fmt.Errorf("%w: offer %d is %s", ErrOfferNotPending, id, offer.Status)
	}
	return offer, nil
}

// AcceptOffer sells the offered item. With auctionID != 0 the item is taken
// from the caller's matching fixed price listing, which is removed;
// otherwise the caller attaches the item.
func (e *Engine) AcceptOffer(ctx context.Context, call Call, offerID, auctionID uint64) (*Receipt, error) {
	return e.run(ctx, "accept_offer", call, func(o *op) error {
		offer, err := e.pendingOffer(o.tx, offerID)
		if err != nil {
			return err
		}
		if offer.Deadline != 0 && o.now() > offer.Deadline {
			return fmt.Errorf("%w: offer %d", ErrOfferExpired, offerID)
		}
		if offer.Owner == o.caller() {
			return ErrOwnOffer
		}

		cfg, err := o.tx.GetCollectionConfig(offer.Collection)
		if err != nil {
			return err
		}

		var royalty uint32
		var creator model.Address
		if auctionID != 0 {
			if err := o.expectPayments(0); err != nil {
				return err
			}
			a, err := e.liveAuction(o.tx, auctionID)
			if err != nil {
				return err
			}
			switch {
			case a.Owner != o.caller():
				return fmt.Errorf("%w: auction %d", ErrNotOwner, a.ID)
			case !a.Type.IsFixedPriceLike():
				return fmt.Errorf("%w: auction %d is %s", ErrNotFixedPrice, a.ID, a.Type)
			case a.Collection != offer.Collection || a.Nonce != offer.Nonce || !a.Quantity.Equal(offer.Quantity):
				return fmt.Errorf("%w: auction %d holds %s-%d x%s", ErrItemMismatch, a.ID, a.Collection, a.Nonce, a.Quantity)
			}
			royalty, creator = a.CreatorRoyalty, a.Creator
			e.removeAuction(o, a)
			o.emit(events.TypeAuctionWithdrawn,
				"auction_id", u64(a.ID),
				"owner", a.Owner.String(),
				"offer_id", u64(offer.ID),
			)
		} else {
			p, err := o.single()
			if err != nil {
				return err
			}
			if p.Token != offer.Collection || p.Nonce != offer.Nonce || !p.Amount.Equal(offer.Quantity) {
				return fmt.Errorf("%w: want %s %s-%d", ErrItemMismatch, offer.Quantity, offer.Collection, offer.Nonce)
			}
			meta, err := e.metadata.Item(o.tx, offer.Collection, offer.Nonce)
			if err != nil {
				return err
			}
			royalty = fees.ResolveRoyalty(meta.Royalties, meta.Royalties, offer.CutPercentage, cfg)
			creator = meta.Creator
		}

		if offer.FromDeposit {
			err := e.pool.HasBalanceAndDeduct(o.tx, offer.Owner, offer.PaymentToken, offer.PaymentNonce, offer.Price)
			if err != nil {
				return err
			}
		}

		if err := e.receive(o); err != nil {
			return err
		}

		b, err := fees.Split(offer.Price, royalty, offer.CutPercentage, cfg)
		if err != nil {
			return err
		}
		err = e.settle(o, Settlement{
			Kind:      "offer",
			AuctionID: auctionID,
			OfferID:   offer.ID,
			Buyer:     offer.Owner,
			Seller:    o.caller(),
			Creator:   creator,
			Token:     offer.PaymentToken,
			Nonce:     offer.PaymentNonce,
			Breakdown: b.Deducted(),
		}, false)
		if err != nil {
			return err
		}
		item := model.Payment{Token: offer.Collection, Nonce: offer.Nonce, Amount: offer.Quantity}
		if err := e.pay(o, offer.Owner, item); err != nil {
			return err
		}

		offer.Status = model.OfferAccepted
		o.tx.DeleteOffer(offer)
		o.receipt.IDs = append(o.receipt.IDs, offer.ID)
		o.receipt.Status = offer.Status.String()
		o.emit(events.TypeOfferAccepted,
			"offer_id", u64(offer.ID),
			"seller", o.caller().String(),
			"buyer", offer.Owner.String(),
			"price", offer.Price.String(),
		)
		return nil
	})
}

// DeclineOffer lets the holder of the item reject an offer. Attached funds
// go back to the offer owner.
func (e *Engine) DeclineOffer(ctx context.Context, call Call, offerID uint64) (*Receipt, error) {
	return e.run(ctx, "decline_offer", call, func(o *op) error {
		if err := o.expectPayments(0); err != nil {
			return err
		}
		offer, err := e.pendingOffer(o.tx, offerID)
		if err != nil {
			return err
		}
		holds, err := e.holdsItem(o.tx, o.caller(), offer.Collection, offer.Nonce, offer.Quantity)
		if err != nil {
			return err
		}
		if !holds {
			return fmt.Errorf("%w: caller does not hold %s-%d", ErrNotOwner, offer.Collection, offer.Nonce)
		}
		offer.Status = model.OfferDeclined
		return e.closeOffer(o, offer, events.TypeOfferDeclined)
	})
}

// WithdrawOffer cancels the caller's own offer.
func (e *Engine) WithdrawOffer(ctx context.Context, call Call, offerID uint64) (*Receipt, error) {
	return e.run(ctx, "withdraw_offer", call, func(o *op) error {
		if err := o.expectPayments(0); err != nil {
			return err
		}
		offer, err := e.pendingOffer(o.tx, offerID)
		if err != nil {
			return err
		}
		if offer.Owner != o.caller() {
			return fmt.Errorf("%w: offer %d", ErrNotOwner, offerID)
		}
		offer.Status = model.OfferWithdraw
		return e.closeOffer(o, offer, events.TypeOfferWithdrawn)
	})
}

func (e *Engine) closeOffer(o *op, offer *model.Offer, eventType string) error {
	if !offer.FromDeposit {
		refund := model.Payment{Token: offer.PaymentToken, Nonce: offer.PaymentNonce, Amount: offer.Price}
		if err := e.pay(o, offer.Owner, refund); err != nil {
			return err
		}
		o.receipt.Refunded = append(o.receipt.Refunded, refund)
	}
	o.tx.DeleteOffer(offer)
	o.receipt.IDs = append(o.receipt.IDs, offer.ID)
	o.receipt.Status = offer.Status.String()
	o.emit(eventType,
		"offer_id", u64(offer.ID),
		"owner", offer.Owner.String(),
		"status", offer.Status.String(),
	)
	return nil
}

// holdsItem reports whether addr holds qty of an item, in its wallet or in
// one of its live listings.
func (e *Engine) holdsItem(tx *store.Tx, addr model.Address, collection string, nonce uint64, qty decimal.Decimal) (bool, error) {
	bal, err := e.bank.BalanceOf(tx, addr, collection, nonce)
	if err != nil {
		return false, err
	}
	if bal.GreaterThanOrEqual(qty) {
		return true, nil
	}
	ids, err := tx.AuctionIDsByItem(collection, nonce)
	if err != nil {
		return false, err
	}
	for _, id := range ids {
		a, err := tx.GetAuction(id)
		if err != nil {
			return false, err
		}
		if a.Owner == addr && a.Quantity.GreaterThanOrEqual(qty) {
			return true, nil
		}
	}
	return false, nil
}
