package marketplace_test

import (
	"crypto/ed25519"
	"encoding/hex"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/atmx/settlement-engine/internal/host"
	"github.com/atmx/settlement-engine/internal/limits"
	"github.com/atmx/settlement-engine/internal/marketplace"
	"github.com/atmx/settlement-engine/internal/model"
)

func globalOn(collection, qty, price string) marketplace.GlobalOfferRequest {
	return marketplace.GlobalOfferRequest{
		Collection:   collection,
		Quantity:     d(qty),
		PaymentToken: egld,
		Price:        d(price),
	}
}

func TestGlobalOfferPartialFills(t *testing.T) {
	h := newHarness(t)
	h.fund(bob, pay(egld, "1000"))
	for _, n := range []uint64{1, 2, 3, 9} {
		h.mintItem(carol, apes, n, "1")
	}
	h.mintItem(carol, semi, 1, "1")

	r, err := h.eng.SendGlobalOffer(h.ctx, h.call(bob, pay(egld, "150")), globalOn(apes, "3", "50"))
	require.NoError(t, err)
	id := r.IDs[0]
	h.requireBalance(bob, egld, 0, "850")

	_, err = h.eng.AcceptGlobalOffer(h.ctx, h.call(bob), marketplace.GlobalAcceptRequest{OfferID: id})
	require.ErrorIs(t, err, marketplace.ErrOwnOffer)

	_, err = h.eng.AcceptGlobalOffer(h.ctx, h.call(carol, item(semi, 1, "1")), marketplace.GlobalAcceptRequest{OfferID: id})
	require.ErrorIs(t, err, marketplace.ErrItemMismatch)

	_, err = h.eng.AcceptGlobalOffer(h.ctx, h.call(carol), marketplace.GlobalAcceptRequest{OfferID: id})
	require.ErrorIs(t, err, marketplace.ErrInvalidQuantity)

	r, err = h.eng.AcceptGlobalOffer(h.ctx, h.call(carol, item(apes, 1, "1"), item(apes, 2, "1")),
		marketplace.GlobalAcceptRequest{OfferID: id})
	require.NoError(t, err)
	require.Equal(t, "partial", r.Status)
	h.requireBalance(bob, apes, 1, "1")
	h.requireBalance(bob, apes, 2, "1")
	// 100 - 5 cut - 10 royalty
	h.requireBalance(carol, egld, 0, "85")

	g, err := h.eng.GlobalOffer(h.ctx, id)
	require.NoError(t, err)
	require.True(t, g.Quantity.Equal(d("1")))

	listing := h.listFixed(carol, item(apes, 3, "1"), "999")
	_, err = h.eng.AcceptGlobalOffer(h.ctx, h.call(carol, item(apes, 9, "1")),
		marketplace.GlobalAcceptRequest{OfferID: id, AuctionIDs: []uint64{listing}})
	require.ErrorIs(t, err, marketplace.ErrQuantityExceeded)
	h.auction(listing)
	h.requireBalance(carol, apes, 9, "1")

	_, err = h.eng.AcceptGlobalOffer(h.ctx, h.call(dave), marketplace.GlobalAcceptRequest{OfferID: id, AuctionIDs: []uint64{listing}})
	require.ErrorIs(t, err, marketplace.ErrNotOwner)

	r, err = h.eng.AcceptGlobalOffer(h.ctx, h.call(carol), marketplace.GlobalAcceptRequest{OfferID: id, AuctionIDs: []uint64{listing}})
	require.NoError(t, err)
	require.Equal(t, "filled", r.Status)
	h.requireBalance(bob, apes, 3, "1")
	h.requireBalance(custody, egld, 0, "0")

	_, err = h.eng.GlobalOffer(h.ctx, id)
	require.ErrorIs(t, err, marketplace.ErrNotFound)
	open, err := h.eng.GlobalOffersByCollection(h.ctx, apes)
	require.NoError(t, err)
	require.Empty(t, open)
}

func TestWithdrawGlobalOffer(t *testing.T) {
	h := newHarness(t)
	h.fund(bob, pay(egld, "1000"))

	_, err := h.eng.SendGlobalOffer(h.ctx, h.call(bob, pay(egld, "19")), globalOn(apes, "2", "10"))
	require.ErrorIs(t, err, marketplace.ErrWrongPayment)

	_, err = h.eng.SendGlobalOffer(h.ctx, h.call(bob, pay(egld, "20")), globalOn("not a collection", "2", "10"))
	require.ErrorIs(t, err, marketplace.ErrValidation)

	r, err := h.eng.SendGlobalOffer(h.ctx, h.call(bob, pay(egld, "20")), globalOn(apes, "2", "10"))
	require.NoError(t, err)
	id := r.IDs[0]

	_, err = h.eng.WithdrawGlobalOffer(h.ctx, h.call(carol), id)
	require.ErrorIs(t, err, marketplace.ErrNotOwner)

	r, err = h.eng.WithdrawGlobalOffer(h.ctx, h.call(bob), id)
	require.NoError(t, err)
	require.True(t, r.Refunded[0].Amount.Equal(d("20")))
	h.requireBalance(bob, egld, 0, "1000")
}

func TestGlobalOfferAttributeSignature(t *testing.T) {
	pub, priv, err := ed25519.GenerateKey(nil)
	require.NoError(t, err)
	verifier, err := host.NewEd25519Verifier(hex.EncodeToString(pub))
	require.NoError(t, err)

	h := newHarness(t, func(deps *marketplace.Deps) { deps.Verifier = verifier })
	h.fund(bob, pay(egld, "100"))
	h.mintItem(carol, apes, 1, "1")

	req := globalOn(apes, "1", "10")
	req.Attributes = []byte("background:gold")
	r, err := h.eng.SendGlobalOffer(h.ctx, h.call(bob, pay(egld, "10")), req)
	require.NoError(t, err)
	id := r.IDs[0]

	accept := func(sig []byte) error {
		_, err := h.eng.AcceptGlobalOffer(h.ctx, h.call(carol, item(apes, 1, "1")),
			marketplace.GlobalAcceptRequest{OfferID: id, Signature: sig})
		return err
	}

	require.ErrorIs(t, accept(nil), marketplace.ErrInvalidSignature)

	wrongItem := ed25519.Sign(priv, marketplace.GlobalOfferMessage(carol, apes, []uint64{2}, id, req.Attributes))
	require.ErrorIs(t, accept(wrongItem), marketplace.ErrInvalidSignature)

	wrongSeller := ed25519.Sign(priv, marketplace.GlobalOfferMessage(dave, apes, []uint64{1}, id, req.Attributes))
	require.ErrorIs(t, accept(wrongSeller), marketplace.ErrInvalidSignature)

	good := ed25519.Sign(priv, marketplace.GlobalOfferMessage(carol, apes, []uint64{1}, id, req.Attributes))
	require.NoError(t, accept(good))
	h.requireBalance(bob, apes, 1, "1")
}

func TestGlobalOfferLimits(t *testing.T) {
	h := newHarness(t, func(deps *marketplace.Deps) { deps.Limiter = limits.NewOfferLimiter(3, 2) })
	h.fund(bob, pay(egld, "1000"))

	send := func(collection string) error {
		_, err := h.eng.SendGlobalOffer(h.ctx, h.call(bob, pay(egld, "10")), globalOn(collection, "1", "10"))
		return err
	}
	require.NoError(t, send(apes))
	require.NoError(t, send(apes))

	err := send(apes)
	require.ErrorIs(t, err, limits.ErrCollectionLimitExceeded)
	require.ErrorIs(t, err, marketplace.ErrValidation)

	require.NoError(t, send(semi))
	require.ErrorIs(t, send("OTHR-123456"), limits.ErrOwnerLimitExceeded)
	h.requireBalance(bob, egld, 0, "970")
}

func TestDepositBackedGlobalOffer(t *testing.T) {
	h := newHarness(t)
	h.fund(bob, pay(egld, "1000"))
	h.mintItem(carol, apes, 1, "1")
	h.mintItem(carol, apes, 2, "1")

	_, err := h.eng.Deposit(h.ctx, h.call(bob, pay(egld, "100")))
	require.NoError(t, err)

	req := globalOn(apes, "2", "60")
	req.FromDeposit = true
	_, err = h.eng.SendGlobalOffer(h.ctx, h.call(bob), req)
	require.ErrorIs(t, err, marketplace.ErrInsufficientFunds)

	req.Quantity = d("1")
	r, err := h.eng.SendGlobalOffer(h.ctx, h.call(bob), req)
	require.NoError(t, err)
	id := r.IDs[0]

	_, err = h.eng.AcceptGlobalOffer(h.ctx, h.call(carol, item(apes, 1, "1")), marketplace.GlobalAcceptRequest{OfferID: id})
	require.NoError(t, err)
	held, err := h.eng.Deposits(h.ctx, bob)
	require.NoError(t, err)
	require.True(t, held[0].Amount.Equal(d("40")))
	h.requireBalance(bob, apes, 1, "1")
}

func TestGlobalOfferMessageLayout(t *testing.T) {
	addr := model.Address{31: 1}
	msg := marketplace.GlobalOfferMessage(addr, "APES-a1b2c3", []uint64{4, 12}, 7, []byte("x"))
	want := append(append([]byte{}, addr[:]...), []byte("APES-a1b2c34127x")...)
	require.Equal(t, want, msg)
}
