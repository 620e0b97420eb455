// Package limits caps how many standing global offers one account may hold.
//
// Global offers lock buyer funds and are scanned on every acceptance, so an
// owner is limited both in total and per collection.
package limits

import "errors"

const (
	// DefaultMaxPerOwner is the total number of live global offers per owner.
	DefaultMaxPerOwner = 250

	// DefaultMaxPerCollection is the number of live global offers per owner
	// within one collection.
	DefaultMaxPerCollection = 25
)

var (
	// ErrCollectionLimitExceeded is returned when a new offer would push the
	// owner's count in one collection beyond the per-collection maximum.
	ErrCollectionLimitExceeded = errors.New("limits: per-collection global offer limit exceeded")

	// ErrOwnerLimitExceeded is returned when a new offer would push the
	// owner's total beyond the per-owner maximum.
	ErrOwnerLimitExceeded = errors.New("limits: per-owner global offer limit exceeded")
)

// OfferLimiter enforces the two caps.
type OfferLimiter struct {
	// MaxPerOwner is the maximum number of live global offers across all
	// collections.
	MaxPerOwner int

	// MaxPerCollection is the maximum number of live global offers in any
	// single collection.
	MaxPerCollection int
}

// NewOfferLimiter creates a limiter. Non-positive limits fall back to the
// defaults.
func NewOfferLimiter(maxPerOwner, maxPerCollection int) *OfferLimiter {
	if maxPerOwner <= 0 {
		maxPerOwner = DefaultMaxPerOwner
	}
	if maxPerCollection <= 0 {
		maxPerCollection = DefaultMaxPerCollection
	}
	return &OfferLimiter{MaxPerOwner: maxPerOwner, MaxPerCollection: maxPerCollection}
}

// CheckLimit validates whether one more offer on collection is allowed.
//
// existing maps collection → number of live global offers the owner
// already holds there.
func (l *OfferLimiter) CheckLimit(collection string, existing map[string]int) error {
	// 1. Per-collection limit.
	if existing[collection]+1 > l.MaxPerCollection {
		return ErrCollectionLimitExceeded
	}

	// 2. Owner total.
	total := 1
	for _, n := range existing {
		total += n
	}
	if total > l.MaxPerOwner {
		return ErrOwnerLimitExceeded
	}

	return nil
}
