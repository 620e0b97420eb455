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

// ListingRequest describes one listing. The item itself is the attached
// payment at the same index.
type ListingRequest struct {
	Type         model.AuctionType `json:"type"`
	PaymentToken string            `json:"payment_token"`
	PaymentNonce uint64            `json:"payment_nonce"`
	MinPrice     decimal.Decimal   `json:"min_price"`
	MaxPrice     decimal.Decimal   `json:"max_price"`
	StartTime    int64             `json:"start_time"`
	Deadline     int64             `json:"deadline"`
	// Royalties is honoured only when the collection allows custom royalties.
	Royalties uint32 `json:"royalties"`
}

// PriceChange updates the prices of a live listing.
type PriceChange struct {
	AuctionID uint64          `json:"auction_id"`
	MinPrice  decimal.Decimal `json:"min_price"`
	MaxPrice  decimal.Decimal `json:"max_price"`
}

// List creates one auction per attached item.
func (e *Engine) List(ctx context.Context, call Call, reqs []ListingRequest) (*Receipt, error) {
	return e.run(ctx, "list", call, func(o *op) error {
		if len(reqs) == 0 {
			return fmt.Errorf("%w: no listings", ErrValidation)
		}
		if err := o.expectPayments(len(reqs)); err != nil {
			return err
		}
		cut, err := e.cut(o.tx)
		if err != nil {
			return err
		}
		for i, req := range reqs {
			a, err := e.createAuction(o, o.call.Payments[i], req, cut)
			if err != nil {
				return fmt.Errorf("listing %d: %w", i, err)
			}
			o.receipt.IDs = append(o.receipt.IDs, a.ID)
		}
		return nil
	})
}

func (e *Engine) createAuction(o *op, item model.Payment, req ListingRequest, cut uint32) (*model.Auction, error) {
	now := o.now()
	if item.IsFungible() {
		return nil, fmt.Errorf("%w: %s", ErrFungibleItem, item.Token)
	}
	if !req.Type.Valid() {
		return nil, fmt.Errorf("%w: %d", ErrInvalidType, req.Type)
	}
	if (req.Type == model.FixedPrice || req.Type == model.BidNft) && !item.Amount.Equal(decimal.NewFromInt(1)) {
		return nil, fmt.Errorf("%w: %s listings carry exactly one item", ErrInvalidQuantity, req.Type)
	}
	if err := e.requireAccepted(o.tx, req.PaymentToken); err != nil {
		return nil, err
	}

	minPrice, maxPrice := req.MinPrice, req.MaxPrice
	if !positiveInteger(minPrice) {
		return nil, fmt.Errorf("%w: min price %s", ErrInvalidPrice, minPrice)
	}
	if maxPrice.IsNegative() || !maxPrice.IsInteger() {
		return nil, fmt.Errorf("%w: max price %s", ErrInvalidPrice, maxPrice)
	}
	if req.Type.IsFixedPriceLike() {
		if maxPrice.IsZero() {
			maxPrice = minPrice
		}
		if !minPrice.Equal(maxPrice) {
			return nil, ErrPriceMismatch
		}
	}
	if maxPrice.IsPositive() && maxPrice.LessThan(minPrice) {
		return nil, fmt.Errorf("%w: max price %s below min price %s", ErrInvalidPrice, maxPrice, minPrice)
	}

	a := &model.Auction{
		Collection:   item.Token,
		Nonce:        item.Nonce,
		Quantity:     item.Amount,
		Type:         req.Type,
		PaymentToken: req.PaymentToken,
		PaymentNonce: req.PaymentNonce,
		MinPrice:     minPrice,
		MaxPrice:     maxPrice,
		StartTime:    req.StartTime,
		Deadline:     req.Deadline,
		Owner:        o.caller(),
		CreatedAt:    now,
	}
	if a.Deadline == 0 {
		if !a.Type.IsFixedPriceLike() && !a.IsFixedViaAuction() {
			return nil, fmt.Errorf("%w: bid auctions need a deadline", ErrInvalidDeadline)
		}
	} else if a.Deadline <= now {
		return nil, fmt.Errorf("%w: %d is not in the future", ErrInvalidDeadline, a.Deadline)
	}
	if a.StartTime == 0 {
		a.StartTime = now
	}
	if a.StartTime < now || (a.Deadline != 0 && a.StartTime >= a.Deadline) {
		return nil, fmt.Errorf("%w: %d", ErrInvalidStartTime, a.StartTime)
	}

	meta, err := e.metadata.Item(o.tx, item.Token, item.Nonce)
	if err != nil {
		return nil, err
	}
	cfg, err := o.tx.GetCollectionConfig(item.Token)
	if err != nil {
		return nil, err
	}
	a.CutPercentage = cut
	a.CreatorRoyalty = fees.ResolveRoyalty(req.Royalties, meta.Royalties, cut, cfg)
	a.Creator = meta.Creator
	// An unsettleable fee combination is rejected up front.
	if _, err := fees.Split(a.MinPrice, a.CreatorRoyalty, a.CutPercentage, cfg); err != nil {
		return nil, err
	}

	if a.ID, err = o.tx.NextID(store.KindAuction); err != nil {
		return nil, err
	}
	if err := o.tx.InsertAuction(a); err != nil {
		return nil, err
	}
	o.auctionDelta++

	o.emit(events.TypeAuctionListed,
		"auction_id", u64(a.ID),
		"owner", a.Owner.String(),
		"collection", a.Collection,
		"nonce", u64(a.Nonce),
		"quantity", a.Quantity.String(),
		"type", a.Type.String(),
		"min_price", a.MinPrice.String(),
	)
	slog.Info("auction listed",
		"id", a.ID,
		"owner", a.Owner.String(),
		"item", fmt.Sprintf("%s-%d", a.Collection, a.Nonce),
		"quantity", a.Quantity.String(),
		"type", a.Type.String(),
		"min_price", a.MinPrice.String(),
		"max_price", a.MaxPrice.String(),
		"royalty", a.CreatorRoyalty,
		"cut", a.CutPercentage,
	)
	return a, nil
}

// ChangePrice reprices live listings of the caller. Listings with a bid in
// progress cannot be repriced.
func (e *Engine) ChangePrice(ctx context.Context, call Call, changes []PriceChange) (*Receipt, error) {
	return e.run(ctx, "change_price", call, func(o *op) error {
		if len(changes) == 0 {
			return fmt.Errorf("%w: no price changes", ErrValidation)
		}
		if err := o.expectPayments(0); err != nil {
			return err
		}
		for _, ch := range changes {
			a, err := e.liveAuction(o.tx, ch.AuctionID)
			if err != nil {
				return err
			}
			if a.Owner != o.caller() {
				return fmt.Errorf("%w: auction %d", ErrNotOwner, a.ID)
			}
			if a.HasBid() {
				return fmt.Errorf("%w: auction %d", ErrBidInProgress, a.ID)
			}
			if !positiveInteger(ch.MinPrice) {
				return fmt.Errorf("%w: min price %s", ErrInvalidPrice, ch.MinPrice)
			}

			if a.Type.IsFixedPriceLike() || a.IsFixedViaAuction() {
				a.MinPrice, a.MaxPrice = ch.MinPrice, ch.MinPrice
			} else {
				if ch.MaxPrice.IsNegative() || !ch.MaxPrice.IsInteger() ||
					(ch.MaxPrice.IsPositive() && ch.MaxPrice.LessThan(ch.MinPrice)) {
					return fmt.Errorf("%w: max price %s", ErrInvalidPrice, ch.MaxPrice)
				}
				a.MinPrice, a.MaxPrice = ch.MinPrice, ch.MaxPrice
			}
			if err := o.tx.UpdateAuction(a); err != nil {
				return err
			}
			o.receipt.IDs = append(o.receipt.IDs, a.ID)
			o.emit(events.TypeAuctionPriceChanged,
				"auction_id", u64(a.ID),
				"min_price", a.MinPrice.String(),
				"max_price", a.MaxPrice.String(),
			)
		}
		return nil
	})
}
