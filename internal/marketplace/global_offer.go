package marketplace

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"

	"github.com/shopspring/decimal"

	"github.com/atmx/settlement-engine/internal/events"
	"github.com/atmx/settlement-engine/internal/fees"
	"github.com/atmx/settlement-engine/internal/metrics"
	"github.com/atmx/settlement-engine/internal/model"
	"github.com/atmx/settlement-engine/internal/store"
	"github.com/atmx/settlement-engine/internal/token"
)

// GlobalOfferRequest describes a standing offer on any items of a
// collection.
type GlobalOfferRequest struct {
	Collection   string          `json:"collection"`
	Quantity     decimal.Decimal `json:"quantity"`
	PaymentToken string          `json:"payment_token"`
	PaymentNonce uint64          `json:"payment_nonce"`
	Price        decimal.Decimal `json:"price"` // per unit
	Attributes   []byte          `json:"attributes,omitempty"`
	FromDeposit  bool            `json:"from_deposit"`
}

// GlobalAcceptRequest fulfils a global offer with the attached items plus
// items taken from the caller's live listings.
type GlobalAcceptRequest struct {
	OfferID    uint64   `json:"offer_id"`
	AuctionIDs []uint64 `json:"auction_ids,omitempty"`
	Signature  []byte   `json:"signature,omitempty"`
}

// GlobalOfferMessage is the payload a trusted signer signs to approve the
// items of an attribute-filtered global offer.
func GlobalOfferMessage(seller model.Address, collection string, nonces []uint64, offerID uint64, attributes []byte) []byte {
	msg := make([]byte, 0, model.AddressLength+len(collection)+len(attributes)+8*len(nonces)+20)
	msg = append(msg, seller[:]...)
	msg = append(msg, collection...)
	for _, n := range nonces {
		msg = strconv.AppendUint(msg, n, 10)
	}
	msg = strconv.AppendUint(msg, offerID, 10)
	msg = append(msg, attributes...)
	return msg
}

// SendGlobalOffer creates a collection-wide offer for quantity units at a
// unit price.
func (e *Engine) SendGlobalOffer(ctx context.Context, call Call, req GlobalOfferRequest) (*Receipt, error) {
	return e.run(ctx, "send_global_offer", call, func(o *op) error {
		if _, err := token.Parse(req.Collection, ""); err != nil {
			return fmt.Errorf("%w: %w", ErrValidation, err)
		}
		if !positiveInteger(req.Quantity) {
			return fmt.Errorf("%w: %s", ErrInvalidQuantity, req.Quantity)
		}
		if !positiveInteger(req.Price) {
			return fmt.Errorf("%w: %s", ErrInvalidPrice, req.Price)
		}
		if err := e.requireAccepted(o.tx, req.PaymentToken); err != nil {
			return err
		}

		counts, err := o.tx.OwnerGlobalOfferCounts(o.caller())
		if err != nil {
			return err
		}
		if err := e.limiter.CheckLimit(req.Collection, counts); err != nil {
			metrics.GlobalOfferLimitRejections.Inc()
			return err
		}

		total := req.Price.Mul(req.Quantity)
		if err := e.fund(o, req.FromDeposit, req.PaymentToken, req.PaymentNonce, total); err != nil {
			return err
		}

		id, err := o.tx.NextID(store.KindGlobalOffer)
		if err != nil {
			return err
		}
		g := &model.GlobalOffer{
			ID:           id,
			Collection:   req.Collection,
			Quantity:     req.Quantity,
			PaymentToken: req.PaymentToken,
			PaymentNonce: req.PaymentNonce,
			Price:        req.Price,
			Owner:        o.caller(),
			Attributes:   req.Attributes,
			CreatedAt:    o.now(),
			FromDeposit:  req.FromDeposit,
		}
		if err := o.tx.InsertGlobalOffer(g); err != nil {
			return err
		}

		o.receipt.IDs = append(o.receipt.IDs, id)
		o.emit(events.TypeGlobalOfferCreated,
			"global_offer_id", u64(id),
			"owner", g.Owner.String(),
			"collection", g.Collection,
			"quantity", g.Quantity.String(),
			"price", g.Price.String(),
		)
		slog.Info("global offer created",
			"id", id,
			"owner", g.Owner.String(),
			"collection", g.Collection,
			"quantity", g.Quantity.String(),
			"unit_price", g.Price.String(),
			"filtered", g.HasAttributeFilter(),
		)
		return nil
	})
}

// AcceptGlobalOffer sells a batch of items into a global offer.
//
// Royalty for the whole batch is taken from the first item's metadata.
func (e *Engine) AcceptGlobalOffer(ctx context.Context, call Call, req GlobalAcceptRequest) (*Receipt, error) {
	return e.run(ctx, "accept_global_offer", call, func(o *op) error {
		g, err := o.tx.GetGlobalOffer(req.OfferID)
		if err != nil {
			return err
		}
		if g.Owner == o.caller() {
			return ErrOwnOffer
		}

		items := make([]model.Payment, 0, len(o.call.Payments)+len(req.AuctionIDs))
		for _, p := range o.call.Payments {
			if p.Token != g.Collection || p.IsFungible() {
				return fmt.Errorf("%w: %s-%d is not in %s", ErrItemMismatch, p.Token, p.Nonce, g.Collection)
			}
			items = append(items, p)
		}
		for _, id := range req.AuctionIDs {
			a, err := e.liveAuction(o.tx, id)
			if err != nil {
				return err
			}
			switch {
			case a.Owner != o.caller():
				return fmt.Errorf("%w: auction %d", ErrNotOwner, id)
			case a.Collection != g.Collection:
				return fmt.Errorf("%w: auction %d is in %s", ErrItemMismatch, id, a.Collection)
			case a.HasBid():
				return fmt.Errorf("%w: auction %d", ErrBidInProgress, id)
			}
			items = append(items, a.Item())
			e.removeAuction(o, a)
			o.emit(events.TypeAuctionWithdrawn,
				"auction_id", u64(a.ID),
				"owner", a.Owner.String(),
				"global_offer_id", u64(g.ID),
			)
		}
		if len(items) == 0 {
			return fmt.Errorf("%w: no items", ErrInvalidQuantity)
		}

		qty := decimal.Zero
		nonces := make([]uint64, 0, len(items))
		for _, it := range items {
			qty = qty.Add(it.Amount)
			nonces = append(nonces, it.Nonce)
		}
		if qty.GreaterThan(g.Quantity) {
			return fmt.Errorf("%w: %s offered, %s remaining", ErrQuantityExceeded, qty, g.Quantity)
		}

		if g.HasAttributeFilter() {
			msg := GlobalOfferMessage(o.caller(), g.Collection, nonces, g.ID, g.Attributes)
			if len(req.Signature) == 0 || !e.verifier.Verify(msg, req.Signature) {
				return ErrInvalidSignature
			}
		}

		if err := e.receive(o); err != nil {
			return err
		}

		meta, err := e.metadata.Item(o.tx, items[0].Token, items[0].Nonce)
		if err != nil {
			return err
		}
		cfg, err := o.tx.GetCollectionConfig(g.Collection)
		if err != nil {
			return err
		}
		cut, err := e.cut(o.tx)
		if err != nil {
			return err
		}
		royalty := fees.ResolveRoyalty(meta.Royalties, meta.Royalties, cut, cfg)

		gross := g.Price.Mul(qty)
		if g.FromDeposit {
			if err := e.pool.HasBalanceAndDeduct(o.tx, g.Owner, g.PaymentToken, g.PaymentNonce, gross); err != nil {
				return err
			}
		}
		b, err := fees.Split(gross, royalty, cut, cfg)
		if err != nil {
			return err
		}
		err = e.settle(o, Settlement{
			Kind:          "global_offer",
			GlobalOfferID: g.ID,
			Buyer:         g.Owner,
			Seller:        o.caller(),
			Creator:       meta.Creator,
			Token:         g.PaymentToken,
			Nonce:         g.PaymentNonce,
			Breakdown:     b.Deducted(),
		}, false)
		if err != nil {
			return err
		}
		if err := e.payAll(o, g.Owner, items); err != nil {
			return err
		}

		g.Quantity = g.Quantity.Sub(qty)
		if g.Quantity.IsZero() {
			o.tx.DeleteGlobalOffer(g)
			o.receipt.Status = "filled"
		} else {
			if err := o.tx.UpdateGlobalOffer(g); err != nil {
				return err
			}
			o.receipt.Status = "partial"
		}

		o.receipt.IDs = append(o.receipt.IDs, g.ID)
		o.receipt.Delivered = items
		o.emit(events.TypeGlobalOfferAccepted,
			"global_offer_id", u64(g.ID),
			"seller", o.caller().String(),
			"quantity", qty.String(),
			"remaining", g.Quantity.String(),
			"price", gross.String(),
		)
		return nil
	})
}

// WithdrawGlobalOffer cancels the caller's global offer and refunds the
// funds still attached to it.
func (e *Engine) WithdrawGlobalOffer(ctx context.Context, call Call, offerID uint64) (*Receipt, error) {
	return e.run(ctx, "withdraw_global_offer", call, func(o *op) error {
		if err := o.expectPayments(0); err != nil {
			return err
		}
		g, err := o.tx.GetGlobalOffer(offerID)
		if err != nil {
			return err
		}
		if g.Owner != o.caller() {
			return fmt.Errorf("%w: global offer %d", ErrNotOwner, offerID)
		}
		if !g.FromDeposit {
			refund := model.Payment{Token: g.PaymentToken, Nonce: g.PaymentNonce, Amount: g.Price.Mul(g.Quantity)}
			if err := e.pay(o, g.Owner, refund); err != nil {
				return err
			}
			o.receipt.Refunded = append(o.receipt.Refunded, refund)
		}
		o.tx.DeleteGlobalOffer(g)
		o.receipt.IDs = append(o.receipt.IDs, g.ID)
		o.emit(events.TypeGlobalOfferRemoved,
			"global_offer_id", u64(g.ID),
			"owner", g.Owner.String(),
		)
		return nil
	})
}
