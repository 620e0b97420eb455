package marketplace

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/shopspring/decimal"

	"github.com/atmx/settlement-engine/internal/events"
	"github.com/atmx/settlement-engine/internal/fees"
	"github.com/atmx/settlement-engine/internal/model"
	"github.com/atmx/settlement-engine/internal/store"
)

// BulkBuy buys the full remaining quantity of each listed auction with one
// attached payment. Ids that no longer exist are skipped; any other failure
// aborts the whole batch. The marketplace cut is paid once, the unspent
// payment is refunded and the acquired items are delivered together.
func (e *Engine) BulkBuy(ctx context.Context, call Call, auctionIDs []uint64) (*Receipt, error) {
	return e.run(ctx, "bulk_buy", call, func(o *op) error {
		if len(auctionIDs) == 0 {
			return fmt.Errorf("%w: no auctions", ErrValidation)
		}
		p, err := o.single()
		if err != nil {
			return err
		}

		remaining := p.Amount
		marketplaceFee := decimal.Zero
		var acquired []model.Payment

		for _, id := range auctionIDs {
			a, err := o.tx.GetAuction(id)
			if errors.Is(err, store.ErrNotFound) {
				o.receipt.Skipped = append(o.receipt.Skipped, id)
				continue
			}
			if err != nil {
				return err
			}
			frozen, err := o.tx.IsFrozen(id)
			if err != nil {
				return err
			}
			if frozen {
				return fmt.Errorf("%w: auction %d", ErrFrozen, id)
			}
			if err := e.checkPurchasable(o, a); err != nil {
				return err
			}
			if p.Token != a.PaymentToken || p.Nonce != a.PaymentNonce {
				return fmt.Errorf("%w: auction %d wants %s-%d", ErrWrongPayment, id, a.PaymentToken, a.PaymentNonce)
			}

			cfg, err := o.tx.GetCollectionConfig(a.Collection)
			if err != nil {
				return err
			}
			b, err := fees.Split(a.MinPrice.Mul(a.Quantity), a.CreatorRoyalty, a.CutPercentage, cfg)
			if err != nil {
				return err
			}
			required := b.Obligation()
			if remaining.LessThan(required) {
				return fmt.Errorf("%w: auction %d needs %s, %s left", ErrInsufficientFunds, id, required, remaining)
			}
			remaining = remaining.Sub(required)
			if err := e.receive(o); err != nil {
				return err
			}

			err = e.settle(o, Settlement{
				Kind:      "bulk_buy",
				AuctionID: a.ID,
				Buyer:     o.caller(),
				Seller:    a.Owner,
				Creator:   a.Creator,
				Token:     a.PaymentToken,
				Nonce:     a.PaymentNonce,
				Breakdown: b,
			}, true)
			if err != nil {
				return err
			}
			marketplaceFee = marketplaceFee.Add(b.Marketplace)
			acquired = append(acquired, a.Item())

			e.removeAuction(o, a)
			o.receipt.IDs = append(o.receipt.IDs, id)
			o.emit(events.TypeAuctionBought,
				"auction_id", u64(id),
				"buyer", o.caller().String(),
				"quantity", a.Quantity.String(),
				"price", b.Price.String(),
				"remaining", "0",
			)
		}

		if err := e.receive(o); err != nil {
			return err
		}
		currency := func(amount decimal.Decimal) model.Payment {
			return model.Payment{Token: p.Token, Nonce: p.Nonce, Amount: amount}
		}
		if err := e.pay(o, e.cfg.Treasury, currency(marketplaceFee)); err != nil {
			return err
		}
		if remaining.IsPositive() {
			if err := e.pay(o, o.caller(), currency(remaining)); err != nil {
				return err
			}
			o.receipt.Refunded = append(o.receipt.Refunded, currency(remaining))
		}
		if err := e.payAll(o, o.caller(), acquired); err != nil {
			return err
		}
		o.receipt.Delivered = acquired

		slog.Info("bulk buy settled",
			"buyer", o.caller().String(),
			"bought", len(acquired),
			"skipped", len(o.receipt.Skipped),
			"marketplace_fee", marketplaceFee.String(),
			"refund", remaining.String(),
		)
		return nil
	})
}
