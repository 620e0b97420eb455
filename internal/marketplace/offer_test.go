package marketplace_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/atmx/settlement-engine/internal/marketplace"
	"github.com/atmx/settlement-engine/internal/model"
)

func offerOn(nonce uint64, price string, deadline int64) marketplace.OfferRequest {
	return marketplace.OfferRequest{
		Collection:   apes,
		Nonce:        nonce,
		PaymentToken: egld,
		Price:        d(price),
		Deadline:     deadline,
	}
}

func TestOfferLifecycle(t *testing.T) {
	h := newHarness(t)
	h.fund(bob, pay(egld, "1000"))
	nft := h.mintItem(carol, apes, 5, "1")

	r, err := h.eng.SendOffer(h.ctx, h.call(bob, pay(egld, "200")), offerOn(5, "200", start+100))
	require.NoError(t, err)
	require.Equal(t, "pending", r.Status)
	id := r.IDs[0]
	h.requireBalance(bob, egld, 0, "800")

	_, err = h.eng.SendOffer(h.ctx, h.call(bob, pay(egld, "300")), offerOn(5, "300", start+100))
	require.ErrorIs(t, err, marketplace.ErrDuplicateOffer)

	_, err = h.eng.DeclineOffer(h.ctx, h.call(dave), id)
	require.ErrorIs(t, err, marketplace.ErrNotOwner)

	_, err = h.eng.AcceptOffer(h.ctx, h.call(carol, item(apes, 4, "1")), id, 0)
	require.Error(t, err)

	r, err = h.eng.AcceptOffer(h.ctx, h.call(carol, nft), id, 0)
	require.NoError(t, err)
	require.Equal(t, "accepted", r.Status)
	h.requireBalance(bob, apes, 5, "1")
	// 200 - 10 cut - 20 royalty
	h.requireBalance(carol, egld, 0, "170")
	h.requireBalance(creator, egld, 0, "20")
	h.requireBalance(treasury, egld, 0, "10")

	_, err = h.eng.Offer(h.ctx, id)
	require.ErrorIs(t, err, marketplace.ErrNotFound)
	left, err := h.eng.OffersByItem(h.ctx, apes, 5)
	require.NoError(t, err)
	require.Empty(t, left)

	_, err = h.eng.AcceptOffer(h.ctx, h.call(carol), id, 0)
	require.ErrorIs(t, err, marketplace.ErrNotFound)
}

func TestAcceptOfferWithExtraFee(t *testing.T) {
	h := newHarness(t)
	// Offers settle deducted even on a reversed collection.
	_, err := h.eng.SetCollectionConfig(h.ctx, h.call(admin), model.CollectionConfig{
		Collection:       apes,
		ReverseCutFees:   true,
		ReverseRoyalties: true,
		ExtraFee:         model.ExtraFee{Rate: 100, Recipient: dave},
	})
	require.NoError(t, err)

	h.fund(bob, pay(egld, "1000"))
	nft := h.mintItem(carol, apes, 5, "1")

	r, err := h.eng.SendOffer(h.ctx, h.call(bob, pay(egld, "200")), offerOn(5, "200", start+100))
	require.NoError(t, err)
	_, err = h.eng.AcceptOffer(h.ctx, h.call(carol, nft), r.IDs[0], 0)
	require.NoError(t, err)

	h.requireBalance(bob, egld, 0, "800")
	h.requireBalance(bob, apes, 5, "1")
	// 200 - 10 cut - 20 royalty - 2 extra
	h.requireBalance(carol, egld, 0, "168")
	h.requireBalance(creator, egld, 0, "20")
	h.requireBalance(treasury, egld, 0, "10")
	h.requireBalance(dave, egld, 0, "2")
	h.requireBalance(custody, egld, 0, "0")
}

func TestDeclineAndWithdrawOffer(t *testing.T) {
	h := newHarness(t)
	h.fund(bob, pay(egld, "1000"))
	h.mintItem(carol, apes, 6, "1")

	r, err := h.eng.SendOffer(h.ctx, h.call(bob, pay(egld, "100")), offerOn(6, "100", start+100))
	require.NoError(t, err)
	r, err = h.eng.DeclineOffer(h.ctx, h.call(carol), r.IDs[0])
	require.NoError(t, err)
	require.Equal(t, "declined", r.Status)
	require.Len(t, r.Refunded, 1)
	h.requireBalance(bob, egld, 0, "1000")

	// Closing the offer frees the uniqueness slot.
	r, err = h.eng.SendOffer(h.ctx, h.call(bob, pay(egld, "100")), offerOn(6, "100", start+100))
	require.NoError(t, err)
	id := r.IDs[0]

	_, err = h.eng.WithdrawOffer(h.ctx, h.call(dave), id)
	require.ErrorIs(t, err, marketplace.ErrNotOwner)

	r, err = h.eng.WithdrawOffer(h.ctx, h.call(bob), id)
	require.NoError(t, err)
	require.Equal(t, "withdraw", r.Status)
	h.requireBalance(bob, egld, 0, "1000")

	_, err = h.eng.WithdrawOffer(h.ctx, h.call(bob), id)
	require.ErrorIs(t, err, marketplace.ErrNotFound)
}

func TestDeclineByListingOwner(t *testing.T) {
	h := newHarness(t)
	h.fund(bob, pay(egld, "1000"))
	h.listFixed(carol, h.mintItem(carol, apes, 6, "1"), "500")

	r, err := h.eng.SendOffer(h.ctx, h.call(bob, pay(egld, "100")), offerOn(6, "100", start+100))
	require.NoError(t, err)

	_, err = h.eng.DeclineOffer(h.ctx, h.call(carol), r.IDs[0])
	require.NoError(t, err)
}

func TestAcceptOfferAgainstListing(t *testing.T) {
	h := newHarness(t)
	h.fund(bob, pay(egld, "1000"))
	listing := h.listFixed(carol, h.mintItem(carol, apes, 6, "1"), "500")
	other := h.listFixed(carol, h.mintItem(carol, apes, 7, "1"), "50")
	h.mintItem(carol, apes, 8, "1")

	r, err := h.eng.SendOffer(h.ctx, h.call(bob, pay(egld, "300")), offerOn(6, "300", start+100))
	require.NoError(t, err)
	id := r.IDs[0]

	_, err = h.eng.AcceptOffer(h.ctx, h.call(carol), id, other)
	require.ErrorIs(t, err, marketplace.ErrItemMismatch)

	_, err = h.eng.AcceptOffer(h.ctx, h.call(dave), id, listing)
	require.ErrorIs(t, err, marketplace.ErrNotOwner)

	a := h.auction(listing)
	r, err = h.eng.AcceptOffer(h.ctx, h.call(carol), id, listing)
	require.NoError(t, err)
	require.Equal(t, listing, r.Settlements[0].AuctionID)
	h.requireGone(listing, a)
	h.requireBalance(bob, apes, 6, "1")
	h.requireBalance(bob, egld, 0, "700")
	h.requireBalance(carol, egld, 0, "255")

	r, err = h.eng.SendOffer(h.ctx, h.call(bob, pay(egld, "50")), offerOn(8, "50", start+100))
	require.NoError(t, err)
	h.now = start + 101
	_, err = h.eng.AcceptOffer(h.ctx, h.call(carol, item(apes, 8, "1")), r.IDs[0], 0)
	require.ErrorIs(t, err, marketplace.ErrOfferExpired)
	h.requireBalance(carol, apes, 8, "1")
}

func TestSendOfferValidation(t *testing.T) {
	h := newHarness(t)
	h.fund(bob, pay(egld, "1000"))
	h.mintItem(carol, apes, 1, "1")

	cases := []struct {
		name     string
		payments []model.Payment
		req      marketplace.OfferRequest
		want     error
	}{
		{"fungible", []model.Payment{pay(egld, "10")}, offerOn(0, "10", start+10), marketplace.ErrFungibleItem},
		{"multiple units", []model.Payment{pay(egld, "10")}, func() marketplace.OfferRequest {
			req := offerOn(1, "10", start+10)
			req.Quantity = d("2")
			return req
		}(), marketplace.ErrInvalidQuantity},
		{"zero price", []model.Payment{pay(egld, "10")}, offerOn(1, "0", start+10), marketplace.ErrInvalidPrice},
		{"past deadline", []model.Payment{pay(egld, "10")}, offerOn(1, "10", start), marketplace.ErrInvalidDeadline},
		{"unknown item", []model.Payment{pay(egld, "10")}, offerOn(99, "10", start+10), marketplace.ErrNotFound},
		{"underfunded", []model.Payment{pay(egld, "9")}, offerOn(1, "10", start+10), marketplace.ErrWrongPayment},
		{"unfunded", nil, offerOn(1, "10", start+10), marketplace.ErrPaymentCount},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := h.eng.SendOffer(h.ctx, h.call(bob, tc.payments...), tc.req)
			require.ErrorIs(t, err, tc.want)
			h.requireBalance(bob, egld, 0, "1000")
		})
	}

	_, err := h.eng.SendOffer(h.ctx, h.call(carol), offerOn(1, "10", start+10))
	require.ErrorIs(t, err, marketplace.ErrPaymentCount)

	r, err := h.eng.SendOffer(h.ctx, h.call(bob, pay(egld, "10")), offerOn(1, "10", start+10))
	require.NoError(t, err)
	_, err = h.eng.AcceptOffer(h.ctx, h.call(bob), r.IDs[0], 0)
	require.ErrorIs(t, err, marketplace.ErrOwnOffer)
}

func TestDepositBackedOffers(t *testing.T) {
	h := newHarness(t)
	h.fund(bob, pay(egld, "1000"))
	h.fund(bob, pay("JUNK-00000a", "5"))
	for n := uint64(1); n <= 3; n++ {
		h.mintItem(carol, apes, n, "1")
	}

	_, err := h.eng.Deposit(h.ctx, h.call(bob, pay("JUNK-00000a", "5")))
	require.ErrorIs(t, err, marketplace.ErrValidation)

	_, err = h.eng.Deposit(h.ctx, h.call(bob, pay(egld, "100")))
	require.NoError(t, err)
	held, err := h.eng.Deposits(h.ctx, bob)
	require.NoError(t, err)
	require.Len(t, held, 1)
	require.True(t, held[0].Amount.Equal(d("100")))

	fromDeposit := func(nonce uint64, price string) marketplace.OfferRequest {
		req := offerOn(nonce, price, start+100)
		req.FromDeposit = true
		return req
	}

	// Deposits are checked, not reserved: both offers fit on their own.
	first, err := h.eng.SendOffer(h.ctx, h.call(bob), fromDeposit(1, "80"))
	require.NoError(t, err)
	second, err := h.eng.SendOffer(h.ctx, h.call(bob), fromDeposit(2, "80"))
	require.NoError(t, err)

	_, err = h.eng.SendOffer(h.ctx, h.call(bob), fromDeposit(3, "150"))
	require.ErrorIs(t, err, marketplace.ErrInsufficientFunds)

	_, err = h.eng.AcceptOffer(h.ctx, h.call(carol, item(apes, 1, "1")), first.IDs[0], 0)
	require.NoError(t, err)
	// 80 - 4 cut - 8 royalty
	h.requireBalance(carol, egld, 0, "68")
	held, err = h.eng.Deposits(h.ctx, bob)
	require.NoError(t, err)
	require.True(t, held[0].Amount.Equal(d("20")))

	_, err = h.eng.AcceptOffer(h.ctx, h.call(carol, item(apes, 2, "1")), second.IDs[0], 0)
	require.ErrorIs(t, err, marketplace.ErrInsufficientFunds)
	h.requireBalance(carol, apes, 2, "1")

	r, err := h.eng.WithdrawOffer(h.ctx, h.call(bob), second.IDs[0])
	require.NoError(t, err)
	require.Empty(t, r.Refunded)

	r, err = h.eng.WithdrawDeposit(h.ctx, h.call(bob), egld, 0, d("0"))
	require.NoError(t, err)
	require.True(t, r.Delivered[0].Amount.Equal(d("20")))
	h.requireBalance(bob, egld, 0, "920")
	held, err = h.eng.Deposits(h.ctx, bob)
	require.NoError(t, err)
	require.Empty(t, held)

	_, err = h.eng.WithdrawDeposit(h.ctx, h.call(bob), egld, 0, d("1"))
	require.ErrorIs(t, err, marketplace.ErrInsufficientFunds)
}
