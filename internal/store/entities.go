package store

import (
	"fmt"
	"sort"
	"strconv"

	"github.com/atmx/settlement-engine/internal/model"
)

// IDKind names a monotonic id sequence.
type IDKind string

const (
	KindAuction     IDKind = "auction"
	KindOffer       IDKind = "offer"
	KindGlobalOffer IDKind = "global_offer"
)

// --- Key layout ---

func counterKey(kind IDKind) string { return "counter:" + string(kind) }

func auctionKey(id uint64) string { return "auction:" + u64(id) }

const auctionsSet = "auctions"

func auctionsByOwnerSet(owner model.Address) string { return "auctions:owner:" + owner.String() }
func auctionsByCollectionSet(c string) string { return "auctions:collection:" + c }
func auctionsByItemSet(c string, nonce uint64) string {
	return "auctions:item:" + c + ":" + u64(nonce)
}

func offerKey(id uint64) string { return "offer:" + u64(id) }

const offersSet = "offers"

func offersByOwnerSet(owner model.Address) string { return "offers:owner:" + owner.String() }
func offersByItemSet(c string, nonce uint64) string {
	return "offers:item:" + c + ":" + u64(nonce)
}
func pendingOfferKey(owner model.Address, c string, nonce uint64, payToken string, payNonce uint64) string {
	return fmt.Sprintf("offer:pending:%s:%s:%d:%s:%d", owner, c, nonce, payToken, payNonce)
}

func globalOfferKey(id uint64) string { return "goffer:" + u64(id) }

const globalOffersSet = "goffers"

func globalOffersByOwnerSet(owner model.Address) string { return "goffers:owner:" + owner.String() }
func globalOffersByOwnerCollectionSet(owner model.Address, c string) string {
	return "goffers:owner:" + owner.String() + ":" + c
}
func globalOffersByCollectionSet(c string) string { return "goffers:collection:" + c }

func collectionConfigKey(c string) string { return "config:collection:" + c }

func u64(v uint64) string { return strconv.FormatUint(v, 10) }

// --- Id generator ---

// NextID returns the next id of kind. Ids start at 1, are incremented once
// per call and never reused.
func (t *Tx) NextID(kind IDKind) (uint64, error) {
	var last uint64
	if _, err := t.GetJSON(counterKey(kind), &last); err != nil {
		return 0, err
	}
	next := last + 1
	if err := t.PutJSON(counterKey(kind), next); err != nil {
		return 0, err
	}
	return next, nil
}

// LastID returns the most recently issued id of kind, 0 if none.
func (t *Tx) LastID(kind IDKind) (uint64, error) {
	var last uint64
	_, err := t.GetJSON(counterKey(kind), &last)
	return last, err
}

// --- Auctions ---

// GetAuction loads an auction or returns ErrNotFound.
func (t *Tx) GetAuction(id uint64) (*model.Auction, error) {
	var a model.Auction
	ok, err := t.GetJSON(auctionKey(id), &a)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("auction %d: %w", id, ErrNotFound)
	}
	return &a, nil
}

// InsertAuction persists a new auction and all of its indexes.
func (t *Tx) InsertAuction(a *model.Auction) error {
	if err := t.PutJSON(auctionKey(a.ID), a); err != nil {
		return err
	}
	id := u64(a.ID)
	t.AddMember(auctionsSet, id)
	t.AddMember(auctionsByOwnerSet(a.Owner), id)
	t.AddMember(auctionsByCollectionSet(a.Collection), id)
	t.AddMember(auctionsByItemSet(a.Collection, a.Nonce), id)
	return nil
}

// UpdateAuction rewrites a live auction. Indexed fields never change.
func (t *Tx) UpdateAuction(a *model.Auction) error {
	return t.PutJSON(auctionKey(a.ID), a)
}

// DeleteAuction removes the auction and every index entry pointing at it.
func (t *Tx) DeleteAuction(a *model.Auction) {
	t.Delete(auctionKey(a.ID))
	id := u64(a.ID)
	t.RemoveMember(auctionsSet, id)
	t.RemoveMember(auctionsByOwnerSet(a.Owner), id)
	t.RemoveMember(auctionsByCollectionSet(a.Collection), id)
	t.RemoveMember(auctionsByItemSet(a.Collection, a.Nonce), id)
}

// AuctionIDs lists every live auction id.
func (t *Tx) AuctionIDs() ([]uint64, error) { return t.ids(auctionsSet) }

// AuctionIDsByOwner lists live auction ids of owner.
func (t *Tx) AuctionIDsByOwner(owner model.Address) ([]uint64, error) {
	return t.ids(auctionsByOwnerSet(owner))
}

// AuctionIDsByCollection lists live auction ids of a collection.
func (t *Tx) AuctionIDsByCollection(c string) ([]uint64, error) {
	return t.ids(auctionsByCollectionSet(c))
}

// AuctionIDsByItem lists live auction ids of one item.
func (t *Tx) AuctionIDsByItem(c string, nonce uint64) ([]uint64, error) {
	return t.ids(auctionsByItemSet(c, nonce))
}

// --- Offers ---

// GetOffer loads an offer or returns ErrNotFound.
func (t *Tx) GetOffer(id uint64) (*model.Offer, error) {
	var o model.Offer
	ok, err := t.GetJSON(offerKey(id), &o)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("offer %d: %w", id, ErrNotFound)
	}
	return &o, nil
}

// PendingOfferID returns the pending offer of owner on an item in a
// currency, if any.
func (t *Tx) PendingOfferID(owner model.Address, c string, nonce uint64, payToken string, payNonce uint64) (uint64, bool, error) {
	var id uint64
	ok, err := t.GetJSON(pendingOfferKey(owner, c, nonce, payToken, payNonce), &id)
	return id, ok, err
}

// InsertOffer persists a pending offer with its indexes and uniqueness key.
func (t *Tx) InsertOffer(o *model.Offer) error {
	if err := t.PutJSON(offerKey(o.ID), o); err != nil {
		return err
	}
	if err := t.PutJSON(pendingOfferKey(o.Owner, o.Collection, o.Nonce, o.PaymentToken, o.PaymentNonce), o.ID); err != nil {
		return err
	}
	id := u64(o.ID)
	t.AddMember(offersSet, id)
	t.AddMember(offersByOwnerSet(o.Owner), id)
	t.AddMember(offersByItemSet(o.Collection, o.Nonce), id)
	return nil
}

// DeleteOffer removes the offer, its indexes and its uniqueness key.
func (t *Tx) DeleteOffer(o *model.Offer) {
	t.Delete(offerKey(o.ID))
	t.Delete(pendingOfferKey(o.Owner, o.Collection, o.Nonce, o.PaymentToken, o.PaymentNonce))
	id := u64(o.ID)
	t.RemoveMember(offersSet, id)
	t.RemoveMember(offersByOwnerSet(o.Owner), id)
	t.RemoveMember(offersByItemSet(o.Collection, o.Nonce), id)
}

// OfferIDsByOwner lists live offer ids of owner.
func (t *Tx) OfferIDsByOwner(owner model.Address) ([]uint64, error) {
	return t.ids(offersByOwnerSet(owner))
}

// OfferIDsByItem lists live offer ids on one item.
func (t *Tx) OfferIDsByItem(c string, nonce uint64) ([]uint64, error) {
	return t.ids(offersByItemSet(c, nonce))
}

// --- Global offers ---

// GetGlobalOffer loads a global offer or returns ErrNotFound.
func (t *Tx) GetGlobalOffer(id uint64) (*model.GlobalOffer, error) {
	var g model.GlobalOffer
	ok, err := t.GetJSON(globalOfferKey(id), &g)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("global offer %d: %w", id, ErrNotFound)
	}
	return &g, nil
}

// InsertGlobalOffer persists a global offer and its indexes.
func (t *Tx) InsertGlobalOffer(g *model.GlobalOffer) error {
	if err := t.PutJSON(globalOfferKey(g.ID), g); err != nil {
		return err
	}
	id := u64(g.ID)
	t.AddMember(globalOffersSet, id)
	t.AddMember(globalOffersByOwnerSet(g.Owner), id)
	t.AddMember(globalOffersByOwnerCollectionSet(g.Owner, g.Collection), id)
	t.AddMember(globalOffersByCollectionSet(g.Collection), id)
	return nil
}

// UpdateGlobalOffer rewrites a live global offer.
func (t *Tx) UpdateGlobalOffer(g *model.GlobalOffer) error {
	return t.PutJSON(globalOfferKey(g.ID), g)
}

// DeleteGlobalOffer removes the global offer and its indexes.
func (t *Tx) DeleteGlobalOffer(g *model.GlobalOffer) {
	t.Delete(globalOfferKey(g.ID))
	id := u64(g.ID)
	t.RemoveMember(globalOffersSet, id)
	t.RemoveMember(globalOffersByOwnerSet(g.Owner), id)
	t.RemoveMember(globalOffersByOwnerCollectionSet(g.Owner, g.Collection), id)
	t.RemoveMember(globalOffersByCollectionSet(g.Collection), id)
}

// GlobalOfferIDsByOwner lists live global offer ids of owner.
func (t *Tx) GlobalOfferIDsByOwner(owner model.Address) ([]uint64, error) {
	return t.ids(globalOffersByOwnerSet(owner))
}

// GlobalOfferIDsByOwnerCollection lists live global offer ids of owner in
// one collection.
func (t *Tx) GlobalOfferIDsByOwnerCollection(owner model.Address, c string) ([]uint64, error) {
	return t.ids(globalOffersByOwnerCollectionSet(owner, c))
}

// GlobalOfferIDsByCollection lists live global offer ids on a collection.
func (t *Tx) GlobalOfferIDsByCollection(c string) ([]uint64, error) {
	return t.ids(globalOffersByCollectionSet(c))
}

// --- Collection fee policy ---

// GetCollectionConfig returns the collection's fee policy, nil if unset.
func (t *Tx) GetCollectionConfig(c string) (*model.CollectionConfig, error) {
	var cfg model.CollectionConfig
	ok, err := t.GetJSON(collectionConfigKey(c), &cfg)
	if err != nil || !ok {
		return nil, err
	}
	return &cfg, nil
}

// PutCollectionConfig stores a collection's fee policy.
func (t *Tx) PutCollectionConfig(cfg *model.CollectionConfig) error {
	return t.PutJSON(collectionConfigKey(cfg.Collection), cfg)
}

func (t *Tx) ids(set string) ([]uint64, error) {
	members, err := t.Members(set)
	if err != nil {
		return nil, err
	}
	out := make([]uint64, 0, len(members))
	for _, m := range members {
		id, err := strconv.ParseUint(m, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("store: corrupt id %q in %s", m, set)
		}
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out, nil
}
