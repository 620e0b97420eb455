package store

import (
	"strconv"

	"github.com/atmx/settlement-engine/internal/model"
)

const (
	cutPercentageKey  = "setting:cut_percentage"
	acceptedTokensSet = "setting:accepted_tokens"
	frozenSet         = "setting:frozen_auctions"
)

// CutPercentage returns the live marketplace cut in basis points and
// whether it has been configured.
func (t *Tx) CutPercentage() (uint32, bool, error) {
	var cut uint32
	ok, err := t.GetJSON(cutPercentageKey, &cut)
	return cut, ok, err
}

// SetCutPercentage stores the live marketplace cut.
func (t *Tx) SetCutPercentage(cut uint32) error {
	return t.PutJSON(cutPercentageKey, cut)
}

// IsAcceptedToken reports whether token may be used as a payment currency.
func (t *Tx) IsAcceptedToken(token string) (bool, error) {
	return t.IsMember(acceptedTokensSet, token)
}

// AcceptedTokens lists accepted payment currencies.
func (t *Tx) AcceptedTokens() ([]string, error) {
	return t.Members(acceptedTokensSet)
}

func (t *Tx) AddAcceptedToken(token string)    { t.AddMember(acceptedTokensSet, token) }
func (t *Tx) RemoveAcceptedToken(token string) { t.RemoveMember(acceptedTokensSet, token) }

// IsFrozen reports whether an auction has been frozen by an admin.
func (t *Tx) IsFrozen(id uint64) (bool, error) {
	return t.IsMember(frozenSet, strconv.FormatUint(id, 10))
}

func (t *Tx) Freeze(id uint64)   { t.AddMember(frozenSet, strconv.FormatUint(id, 10)) }
func (t *Tx) Unfreeze(id uint64) { t.RemoveMember(frozenSet, strconv.FormatUint(id, 10)) }

// OwnerGlobalOfferCounts returns, per collection, how many live global
// offers owner has.
func (t *Tx) OwnerGlobalOfferCounts(owner model.Address) (map[string]int, error) {
	ids, err := t.GlobalOfferIDsByOwner(owner)
	if err != nil {
		return nil, err
	}
	counts := make(map[string]int)
	for _, id := range ids {
		g, err := t.GetGlobalOffer(id)
		if err != nil {
			return nil, err
		}
		counts[g.Collection]++
	}
	return counts, nil
}
