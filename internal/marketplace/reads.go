package marketplace

import (
	"context"

	"github.com/shopspring/decimal"

	"github.com/atmx/settlement-engine/internal/model"
	"github.com/atmx/settlement-engine/internal/store"
)

// AuctionFilter narrows Auctions. Zero fields match everything.
type AuctionFilter struct {
	Owner      model.Address
	Collection string
	Nonce      uint64
}

// Settings is the live marketplace configuration.
type Settings struct {
	CutPercentage  uint32          `json:"cut_percentage"`
	AcceptedTokens []string        `json:"accepted_tokens"`
	Treasury       model.Address   `json:"treasury"`
	Whitelisted    []model.Address `json:"whitelisted"`
}

func (e *Engine) view(ctx context.Context, fn func(tx *store.Tx) error) error {
	return classify(e.store.View(ctx, fn))
}

// Auction returns a live auction.
func (e *Engine) Auction(ctx context.Context, id uint64) (*model.Auction, error) {
	var a *model.Auction
	err := e.view(ctx, func(tx *store.Tx) error {
		var err error
		a, err = tx.GetAuction(id)
		return err
	})
	return a, err
}

// Auctions lists live auctions matching f, ascending by id.
func (e *Engine) Auctions(ctx context.Context, f AuctionFilter) ([]model.Auction, error) {
	out := []model.Auction{}
	err := e.view(ctx, func(tx *store.Tx) error {
		var ids []uint64
		var err error
		switch {
		case f.Collection != "" && f.Nonce != 0:
			ids, err = tx.AuctionIDsByItem(f.Collection, f.Nonce)
		case f.Collection != "":
			ids, err = tx.AuctionIDsByCollection(f.Collection)
		case !f.Owner.IsZero():
			ids, err = tx.AuctionIDsByOwner(f.Owner)
		default:
			ids, err = tx.AuctionIDs()
		}
		if err != nil {
			return err
		}
		for _, id := range ids {
			a, err := tx.GetAuction(id)
			if err != nil {
				return err
			}
			if !f.Owner.IsZero() && a.Owner != f.Owner {
				continue
			}
			out = append(out, *a)
		}
		return nil
	})
	return out, err
}

// Offer returns a pending offer.
func (e *Engine) Offer(ctx context.Context, id uint64) (*model.Offer, error) {
	var offer *model.Offer
	err := e.view(ctx, func(tx *store.Tx) error {
		var err error
		offer, err = tx.GetOffer(id)
		return err
	})
	return offer, err
}

// OffersByItem lists pending offers on one item.
func (e *Engine) OffersByItem(ctx context.Context, collection string, nonce uint64) ([]model.Offer, error) {
	out := []model.Offer{}
	err := e.view(ctx, func(tx *store.Tx) error {
		ids, err := tx.OfferIDsByItem(collection, nonce)
		if err != nil {
			return err
		}
		for _, id := range ids {
			offer, err := tx.GetOffer(id)
			if err != nil {
				return err
			}
			out = append(out, *offer)
		}
		return nil
	})
	return out, err
}

// GlobalOffer returns a live global offer.
func (e *Engine) GlobalOffer(ctx context.Context, id uint64) (*model.GlobalOffer, error) {
	var g *model.GlobalOffer
	err := e.view(ctx, func(tx *store.Tx) error {
		var err error
		g, err = tx.GetGlobalOffer(id)
		return err
	})
	return g, err
}

// GlobalOffersByCollection lists live global offers on a collection.
func (e *Engine) GlobalOffersByCollection(ctx context.Context, collection string) ([]model.GlobalOffer, error) {
	out := []model.GlobalOffer{}
	err := e.view(ctx, func(tx *store.Tx) error {
		ids, err := tx.GlobalOfferIDsByCollection(collection)
		if err != nil {
			return err
		}
		for _, id := range ids {
			g, err := tx.GetGlobalOffer(id)
			if err != nil {
				return err
			}
			out = append(out, *g)
		}
		return nil
	})
	return out, err
}

// CollectionConfig returns a collection's fee policy, nil when unset.
func (e *Engine) CollectionConfig(ctx context.Context, collection string) (*model.CollectionConfig, error) {
	var cfg *model.CollectionConfig
	err := e.view(ctx, func(tx *store.Tx) error {
		var err error
		cfg, err = tx.GetCollectionConfig(collection)
		return err
	})
	return cfg, err
}

// Claimable lists the balances escrowed for addr.
func (e *Engine) Claimable(ctx context.Context, addr model.Address) ([]model.ClaimableBalance, error) {
	out := []model.ClaimableBalance{}
	err := e.view(ctx, func(tx *store.Tx) error {
		held, err := e.escrow.Balances(tx, addr)
		out = append(out, held...)
		return err
	})
	return out, err
}

// Deposits lists the deposit balances of addr.
func (e *Engine) Deposits(ctx context.Context, addr model.Address) ([]model.DepositBalance, error) {
	out := []model.DepositBalance{}
	err := e.view(ctx, func(tx *store.Tx) error {
		held, err := e.pool.Balances(tx, addr)
		out = append(out, held...)
		return err
	})
	return out, err
}

// Balance returns addr's ledger balance of (token, nonce).
func (e *Engine) Balance(ctx context.Context, addr model.Address, tokenID string, nonce uint64) (decimal.Decimal, error) {
	var bal decimal.Decimal
	err := e.view(ctx, func(tx *store.Tx) error {
		var err error
		bal, err = e.bank.BalanceOf(tx, addr, tokenID, nonce)
		return err
	})
	return bal, err
}

// Settings returns the live marketplace configuration.
func (e *Engine) Settings(ctx context.Context) (*Settings, error) {
	s := &Settings{Treasury: e.cfg.Treasury}
	err := e.view(ctx, func(tx *store.Tx) error {
		var err error
		if s.CutPercentage, err = e.cut(tx); err != nil {
			return err
		}
		if s.AcceptedTokens, err = tx.AcceptedTokens(); err != nil {
			return err
		}
		s.Whitelisted, err = e.escrow.Whitelisted(tx)
		return err
	})
	return s, err
}
