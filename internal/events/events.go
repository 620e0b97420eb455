// Package events carries settlement notifications out of the engine. Events
// are emitted only after the operation that produced them has committed.
package events

import "sync"

const (
	TypeAuctionListed       = "auction.listed"
	TypeAuctionPriceChanged = "auction.price_changed"
	TypeAuctionBid          = "auction.bid"
	TypeAuctionEnded        = "auction.ended"
	TypeAuctionBought       = "auction.bought"
	TypeAuctionWithdrawn    = "auction.withdrawn"
	TypeAuctionFrozen       = "auction.frozen"
	TypeAuctionUnfrozen     = "auction.unfrozen"
	TypeOfferCreated        = "offer.created"
	TypeOfferAccepted       = "offer.accepted"
	TypeOfferDeclined       = "offer.declined"
	TypeOfferWithdrawn      = "offer.withdrawn"
	TypeGlobalOfferCreated  = "global_offer.created"
	TypeGlobalOfferAccepted = "global_offer.accepted"
	TypeGlobalOfferRemoved  = "global_offer.withdrawn"
	TypePaymentEscrowed     = "escrow.credited"
	TypeEscrowClaimed       = "escrow.claimed"
	TypeDeposit             = "deposit.credited"
	TypeDepositWithdrawn    = "deposit.withdrawn"
	TypeConfigChanged       = "config.changed"
)

// Event is a typed notification with string attributes.
type Event struct {
	Type       string            `json:"type"`
	Attributes map[string]string `json:"attributes"`
}

// Emitter receives committed events.
type Emitter interface {
	Emit(Event)
}

// NoopEmitter discards every event.
type NoopEmitter struct{}

// Emit implements Emitter.
func (NoopEmitter) Emit(Event) {}

// Fanout forwards each event to every wrapped emitter in order.
type Fanout []Emitter

// Emit implements Emitter.
func (f Fanout) Emit(ev Event) {
	for _, e := range f {
		if e != nil {
			e.Emit(ev)
		}
	}
}

// Recorder keeps every event in memory. Used by tests and the debug API.
type Recorder struct {
	mu     sync.Mutex
	events []Event
}

// Emit implements Emitter.
func (r *Recorder) Emit(ev Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
}

// Events returns a copy of the recorded events.
func (r *Recorder) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Event(nil), r.events...)
}

// Types returns the recorded event types in emission order.
func (r *Recorder) Types() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, len(r.events))
	for i, ev := range r.events {
		out[i] = ev.Type
	}
	return out
}
