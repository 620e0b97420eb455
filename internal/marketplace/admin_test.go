package marketplace_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/atmx/settlement-engine/internal/events"
	"github.com/atmx/settlement-engine/internal/marketplace"
	"github.com/atmx/settlement-engine/internal/model"
)

func TestContractSellerIsPaidThroughEscrow(t *testing.T) {
	h := newHarness(t)
	vault := contractAddr(40)
	h.fund(bob, pay(egld, "1000"))

	first := h.listFixed(vault, h.mintItem(vault, apes, 1, "1"), "100")
	r, err := h.eng.Buy(h.ctx, h.call(bob, pay(egld, "100")), first, d("1"))
	require.NoError(t, err)
	require.Equal(t, 1, r.Escrowed)
	require.Contains(t, h.rec.Types(), events.TypePaymentEscrowed)
	h.requireBalance(vault, egld, 0, "0")
	h.requireBalance(custody, egld, 0, "85")

	held, err := h.eng.Claimable(h.ctx, vault)
	require.NoError(t, err)
	require.Len(t, held, 1)
	require.True(t, held[0].Amount.Equal(d("85")))

	_, err = h.eng.ClaimEscrowed(h.ctx, h.call(vault), egld, 0, model.ZeroAddress)
	require.NoError(t, err)
	h.requireBalance(vault, egld, 0, "85")
	held, err = h.eng.Claimable(h.ctx, vault)
	require.NoError(t, err)
	require.Empty(t, held)

	_, err = h.eng.ClaimEscrowed(h.ctx, h.call(vault), egld, 0, model.ZeroAddress)
	require.ErrorIs(t, err, marketplace.ErrNotFound)

	second := h.listFixed(vault, h.mintItem(vault, apes, 2, "1"), "100")
	_, err = h.eng.Buy(h.ctx, h.call(bob, pay(egld, "100")), second, d("1"))
	require.NoError(t, err)

	_, err = h.eng.AddWhitelist(h.ctx, h.call(bob), vault)
	require.ErrorIs(t, err, marketplace.ErrUnauthorized)

	r, err = h.eng.AddWhitelist(h.ctx, h.call(admin), vault)
	require.NoError(t, err)
	require.Len(t, r.Delivered, 1)
	h.requireBalance(vault, egld, 0, "170")
	h.requireBalance(custody, egld, 0, "0")

	settings, err := h.eng.Settings(h.ctx)
	require.NoError(t, err)
	require.Equal(t, []model.Address{vault}, settings.Whitelisted)

	third := h.listFixed(vault, h.mintItem(vault, apes, 3, "1"), "100")
	r, err = h.eng.Buy(h.ctx, h.call(bob, pay(egld, "100")), third, d("1"))
	require.NoError(t, err)
	require.Zero(t, r.Escrowed)
	h.requireBalance(vault, egld, 0, "255")

	_, err = h.eng.RemoveWhitelist(h.ctx, h.call(admin), vault)
	require.NoError(t, err)
	fourth := h.listFixed(vault, h.mintItem(vault, apes, 4, "1"), "100")
	r, err = h.eng.Buy(h.ctx, h.call(bob, pay(egld, "100")), fourth, d("1"))
	require.NoError(t, err)
	require.Equal(t, 1, r.Escrowed)
}

func TestClaimToDestination(t *testing.T) {
	h := newHarness(t)
	vault := contractAddr(41)
	h.fund(bob, pay(egld, "1000"))

	id := h.listFixed(vault, h.mintItem(vault, apes, 1, "1"), "100")
	_, err := h.eng.Buy(h.ctx, h.call(bob, pay(egld, "100")), id, d("1"))
	require.NoError(t, err)

	r, err := h.eng.ClaimEscrowed(h.ctx, h.call(vault), egld, 0, dave)
	require.NoError(t, err)
	require.True(t, r.Delivered[0].Amount.Equal(d("85")))
	h.requireBalance(dave, egld, 0, "85")
	h.requireBalance(vault, egld, 0, "0")
}

func TestSetCutPercentage(t *testing.T) {
	h := newHarness(t)
	h.fund(bob, pay(egld, "1000"))
	before := h.listFixed(seller, h.mintItem(seller, apes, 1, "1"), "100")

	_, err := h.eng.SetCutPercentage(h.ctx, h.call(bob), 100)
	require.ErrorIs(t, err, marketplace.ErrNotAdmin)

	_, err = h.eng.SetCutPercentage(h.ctx, h.call(admin), 3000)
	require.ErrorIs(t, err, marketplace.ErrValidation)

	_, err = h.eng.SetCutPercentage(h.ctx, h.call(admin), 1000)
	require.NoError(t, err)
	settings, err := h.eng.Settings(h.ctx)
	require.NoError(t, err)
	require.Equal(t, uint32(1000), settings.CutPercentage)

	after := h.listFixed(seller, h.mintItem(seller, apes, 2, "1"), "100")
	require.Equal(t, uint32(500), h.auction(before).CutPercentage)
	require.Equal(t, uint32(1000), h.auction(after).CutPercentage)

	// The listing keeps the cut it was created with.
	_, err = h.eng.Buy(h.ctx, h.call(bob, pay(egld, "100")), before, d("1"))
	require.NoError(t, err)
	h.requireBalance(treasury, egld, 0, "5")
}

func TestAcceptedTokens(t *testing.T) {
	h := newHarness(t)
	const junk = "JUNK-00000a"

	_, err := h.eng.AddAcceptedToken(h.ctx, h.call(admin), "junk")
	require.ErrorIs(t, err, marketplace.ErrValidation)

	_, err = h.eng.AddAcceptedToken(h.ctx, h.call(admin), junk)
	require.NoError(t, err)
	settings, err := h.eng.Settings(h.ctx)
	require.NoError(t, err)
	require.Contains(t, settings.AcceptedTokens, junk)

	list := func(nonce uint64) error {
		_, err := h.eng.List(h.ctx, h.call(seller, h.mintItem(seller, apes, nonce, "1")), []marketplace.ListingRequest{{
			Type: model.FixedPrice, PaymentToken: junk, MinPrice: d("10"),
		}})
		return err
	}
	require.NoError(t, list(1))

	_, err = h.eng.RemoveAcceptedToken(h.ctx, h.call(admin), junk)
	require.NoError(t, err)
	require.ErrorIs(t, list(2), marketplace.ErrCurrencyNotAccepted)

	live, err := h.eng.Auctions(h.ctx, marketplace.AuctionFilter{Owner: seller})
	require.NoError(t, err)
	require.Len(t, live, 1)
}

func TestCollectionConfigDelegation(t *testing.T) {
	h := newHarness(t)

	_, err := h.eng.SetCollectionConfig(h.ctx, h.call(carol), model.CollectionConfig{Collection: apes})
	require.ErrorIs(t, err, marketplace.ErrNotAdmin)

	_, err = h.eng.SetCollectionConfig(h.ctx, h.call(admin), model.CollectionConfig{Collection: apes, Admin: carol})
	require.NoError(t, err)

	_, err = h.eng.SetCollectionConfig(h.ctx, h.call(carol), model.CollectionConfig{
		Collection: apes,
		Admin:      carol,
		ExtraFee:   model.ExtraFee{Rate: 100},
	})
	require.ErrorIs(t, err, marketplace.ErrValidation)

	_, err = h.eng.SetCollectionConfig(h.ctx, h.call(carol), model.CollectionConfig{
		Collection: apes,
		Admin:      carol,
		ExtraFee:   model.ExtraFee{Rate: 100, Recipient: dave},
	})
	require.NoError(t, err)

	_, err = h.eng.SetCollectionConfig(h.ctx, h.call(dave), model.CollectionConfig{Collection: apes})
	require.ErrorIs(t, err, marketplace.ErrNotAdmin)

	cfg, err := h.eng.CollectionConfig(h.ctx, apes)
	require.NoError(t, err)
	require.Equal(t, dave, cfg.ExtraFee.Recipient)

	h.fund(bob, pay(egld, "1000"))
	id := h.listFixed(seller, h.mintItem(seller, apes, 1, "1"), "100")
	_, err = h.eng.Buy(h.ctx, h.call(bob, pay(egld, "100")), id, d("1"))
	require.NoError(t, err)
	h.requireBalance(dave, egld, 0, "1")
	h.requireBalance(seller, egld, 0, "84")
}

func TestMintIsAdminOnly(t *testing.T) {
	h := newHarness(t)

	_, err := h.eng.Mint(h.ctx, h.call(bob), bob, pay(egld, "10"), nil)
	require.ErrorIs(t, err, marketplace.ErrNotAdmin)

	_, err = h.eng.Mint(h.ctx, h.call(admin), bob, item(apes, 1, "1"), &model.ItemMetadata{Collection: apes, Nonce: 1})
	require.ErrorIs(t, err, marketplace.ErrValidation)

	_, err = h.eng.Mint(h.ctx, h.call(admin), bob, item(apes, 1, "1"), &model.ItemMetadata{Collection: apes, Nonce: 2, Creator: creator})
	require.ErrorIs(t, err, marketplace.ErrItemMismatch)
	h.requireBalance(bob, apes, 1, "0")
}

func TestEventsFollowCommits(t *testing.T) {
	h := newHarness(t)
	h.fund(bob, pay(egld, "1000"))
	id := h.listFixed(seller, h.mintItem(seller, apes, 1, "1"), "100")

	before := len(h.rec.Events())
	_, err := h.eng.Buy(h.ctx, h.call(bob, pay(egld, "99")), id, d("1"))
	require.Error(t, err)
	require.Len(t, h.rec.Events(), before)

	_, err = h.eng.Buy(h.ctx, h.call(bob, pay(egld, "100")), id, d("1"))
	require.NoError(t, err)
	evs := h.rec.Events()[before:]
	require.Len(t, evs, 1)
	require.Equal(t, events.TypeAuctionBought, evs[0].Type)
	require.Equal(t, "0", evs[0].Attributes["remaining"])
}
