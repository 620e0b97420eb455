package marketplace

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/atmx/settlement-engine/internal/events"
	"github.com/atmx/settlement-engine/internal/fees"
	"github.com/atmx/settlement-engine/internal/model"
	"github.com/atmx/settlement-engine/internal/token"
)

func (e *Engine) requireAdmin(o *op) error {
	if e.cfg.Admin.IsZero() || o.caller() != e.cfg.Admin {
		return ErrNotAdmin
	}
	return nil
}

// admin runs fn as an admin-only operation that takes no payments.
func (e *Engine) admin(ctx context.Context, name string, call Call, fn func(o *op) error) (*Receipt, error) {
	return e.run(ctx, name, call, func(o *op) error {
		if err := e.requireAdmin(o); err != nil {
			return err
		}
		if err := o.expectPayments(0); err != nil {
			return err
		}
		return fn(o)
	})
}

// SetCutPercentage changes the marketplace cut for future listings and
// offers. Existing listings keep their snapshot.
func (e *Engine) SetCutPercentage(ctx context.Context, call Call, cut uint32) (*Receipt, error) {
	return e.admin(ctx, "set_cut_percentage", call, func(o *op) error {
		if cut > fees.MaxCutPercentage {
			return fmt.Errorf("%w: cut %d above %d", ErrValidation, cut, fees.MaxCutPercentage)
		}
		if err := o.tx.SetCutPercentage(cut); err != nil {
			return err
		}
		o.emit(events.TypeConfigChanged, "setting", "cut_percentage", "value", fmt.Sprint(cut))
		slog.Info("marketplace cut changed", "cut", cut)
		return nil
	})
}

// AddAcceptedToken whitelists a payment currency.
func (e *Engine) AddAcceptedToken(ctx context.Context, call Call, tokenID string) (*Receipt, error) {
	return e.admin(ctx, "add_accepted_token", call, func(o *op) error {
		if _, err := token.Parse(tokenID, e.cfg.NativeToken); err != nil {
			return fmt.Errorf("%w: %w", ErrValidation, err)
		}
		o.tx.AddAcceptedToken(tokenID)
		o.emit(events.TypeConfigChanged, "setting", "accepted_token_added", "value", tokenID)
		return nil
	})
}

// RemoveAcceptedToken removes a payment currency. Live listings in it are
// not affected.
func (e *Engine) RemoveAcceptedToken(ctx context.Context, call Call, tokenID string) (*Receipt, error) {
	return e.admin(ctx, "remove_accepted_token", call, func(o *op) error {
		o.tx.RemoveAcceptedToken(tokenID)
		o.emit(events.TypeConfigChanged, "setting", "accepted_token_removed", "value", tokenID)
		return nil
	})
}

// AddWhitelist lets a contract receive direct transfers and flushes what
// was escrowed for it.
func (e *Engine) AddWhitelist(ctx context.Context, call Call, addr model.Address) (*Receipt, error) {
	return e.admin(ctx, "add_whitelist", call, func(o *op) error {
		if addr.IsZero() {
			return ErrInvalidRecipient
		}
		flushed, err := e.escrow.Whitelist(o.tx, addr)
		if err != nil {
			return err
		}
		for _, b := range flushed {
			o.receipt.Delivered = append(o.receipt.Delivered, model.Payment{Token: b.Token, Nonce: b.Nonce, Amount: b.Amount})
		}
		o.emit(events.TypeConfigChanged, "setting", "whitelist_added", "value", addr.String())
		slog.Info("contract whitelisted", "address", addr.String(), "flushed", len(flushed))
		return nil
	})
}

// RemoveWhitelist routes future payments to addr through escrow again.
func (e *Engine) RemoveWhitelist(ctx context.Context, call Call, addr model.Address) (*Receipt, error) {
	return e.admin(ctx, "remove_whitelist", call, func(o *op) error {
		e.escrow.RemoveWhitelist(o.tx, addr)
		o.emit(events.TypeConfigChanged, "setting", "whitelist_removed", "value", addr.String())
		return nil
	})
}

// SetCollectionConfig stores a collection's fee policy. The first write is
// admin-only; afterwards the delegated collection admin may update it too.
func (e *Engine) SetCollectionConfig(ctx context.Context, call Call, cfg model.CollectionConfig) (*Receipt, error) {
	return e.run(ctx, "set_collection_config", call, func(o *op) error {
		if err := o.expectPayments(0); err != nil {
			return err
		}
		if _, err := token.Parse(cfg.Collection, ""); err != nil {
			return fmt.Errorf("%w: %w", ErrValidation, err)
		}
		existing, err := o.tx.GetCollectionConfig(cfg.Collection)
		if err != nil {
			return err
		}
		delegated := existing != nil && !existing.Admin.IsZero() && existing.Admin == o.caller()
		if !delegated {
			if err := e.requireAdmin(o); err != nil {
				return err
			}
		}
		cut, err := e.cut(o.tx)
		if err != nil {
			return err
		}
		if err := fees.ValidateConfig(&cfg, cut); err != nil {
			return fmt.Errorf("%w: %w", ErrValidation, err)
		}
		if err := o.tx.PutCollectionConfig(&cfg); err != nil {
			return err
		}
		o.emit(events.TypeConfigChanged, "setting", "collection_config", "value", cfg.Collection)
		slog.Info("collection config set",
			"collection", cfg.Collection,
			"reverse_cut", cfg.ReverseCutFees,
			"reverse_royalties", cfg.ReverseRoyalties,
			"custom_royalties", cfg.CustomRoyalties,
			"extra_fee", cfg.ExtraFee.Rate,
		)
		return nil
	})
}

// FreezeAuction blocks every operation on a live auction.
func (e *Engine) FreezeAuction(ctx context.Context, call Call, auctionID uint64) (*Receipt, error) {
	return e.admin(ctx, "freeze_auction", call, func(o *op) error {
		if _, err := o.tx.GetAuction(auctionID); err != nil {
			return err
		}
		o.tx.Freeze(auctionID)
		o.receipt.IDs = append(o.receipt.IDs, auctionID)
		o.emit(events.TypeAuctionFrozen, "auction_id", u64(auctionID))
		return nil
	})
}

// UnfreezeAuction lifts a freeze.
func (e *Engine) UnfreezeAuction(ctx context.Context, call Call, auctionID uint64) (*Receipt, error) {
	return e.admin(ctx, "unfreeze_auction", call, func(o *op) error {
		if _, err := o.tx.GetAuction(auctionID); err != nil {
			return err
		}
		o.tx.Unfreeze(auctionID)
		o.receipt.IDs = append(o.receipt.IDs, auctionID)
		o.emit(events.TypeAuctionUnfrozen, "auction_id", u64(auctionID))
		return nil
	})
}

// Mint credits tokens to an account on the host ledger. Minting a new item
// registers its metadata in the same step.
func (e *Engine) Mint(ctx context.Context, call Call, to model.Address, p model.Payment, meta *model.ItemMetadata) (*Receipt, error) {
	return e.admin(ctx, "mint", call, func(o *op) error {
		if to.IsZero() {
			return ErrInvalidRecipient
		}
		if meta != nil {
			if e.registrar == nil {
				return fmt.Errorf("%w: no item registry configured", ErrValidation)
			}
			if p.IsFungible() || meta.Collection != p.Token || meta.Nonce != p.Nonce {
				return fmt.Errorf("%w: metadata does not describe %s-%d", ErrItemMismatch, p.Token, p.Nonce)
			}
			if meta.Creator.IsZero() {
				return fmt.Errorf("%w: item needs a creator", ErrValidation)
			}
			if err := e.registrar.Register(o.tx, *meta); err != nil {
				return fmt.Errorf("%w: %w", ErrValidation, err)
			}
		}
		if err := e.bank.Credit(o.tx, to, p); err != nil {
			return err
		}
		o.receipt.Delivered = append(o.receipt.Delivered, p)
		return nil
	})
}
