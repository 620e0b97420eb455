package marketplace_test

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/atmx/settlement-engine/internal/bank"
	"github.com/atmx/settlement-engine/internal/events"
	"github.com/atmx/settlement-engine/internal/host"
	"github.com/atmx/settlement-engine/internal/marketplace"
	"github.com/atmx/settlement-engine/internal/model"
	"github.com/atmx/settlement-engine/internal/store"
)

const (
	egld  = "EGLD"
	wegld = "WEGLD-bd4d79"
	usdc  = "USDC-c76f1f"
	apes  = "APES-a1b2c3"
	semi  = "SEMI-0a0b0c"

	start int64 = 1_700_000_000
)

func account(b byte) model.Address {
	var a model.Address
	a[0] = 0xa0
	a[31] = b
	return a
}

func contractAddr(b byte) model.Address {
	var a model.Address
	a[8] = 0x05
	a[31] = b
	return a
}

var (
	custody   = contractAddr(1)
	treasury  = account(2)
	admin     = account(3)
	seller    = account(10)
	bob       = account(11)
	carol     = account(12)
	dave      = account(13)
	creator   = account(20)
	liquidity = account(30)
)

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func pay(token, amount string) model.Payment {
	return model.Payment{Token: token, Amount: d(amount)}
}

func item(collection string, nonce uint64, qty string) model.Payment {
	return model.Payment{Token: collection, Nonce: nonce, Amount: d(qty)}
}

type harness struct {
	t   *testing.T
	ctx context.Context
	eng *marketplace.Engine
	rec *events.Recorder
	now int64
}

func newHarness(t *testing.T, opts ...func(*marketplace.Deps)) *harness {
	t.Helper()
	st := store.NewMemoryStore()
	ledger := bank.New()
	cached, err := host.NewCachedMetadata(host.Registry{}, 64)
	require.NoError(t, err)

	deps := marketplace.Deps{
		Bank:       ledger,
		Metadata:   cached,
		Registrar:  host.Registry{},
		Normalizer: host.NewWrapNormalizer(ledger, egld, wegld, liquidity, custody),
	}
	for _, opt := range opts {
		opt(&deps)
	}
	eng := marketplace.NewEngine(st, deps, marketplace.Config{
		Custody:        custody,
		Treasury:       treasury,
		Admin:          admin,
		NativeToken:    egld,
		CutPercentage:  500,
		AcceptedTokens: []string{egld, wegld, usdc},
	})

	h := &harness{t: t, ctx: context.Background(), eng: eng, rec: &events.Recorder{}, now: start}
	eng.SetNowFunc(func() int64 { return h.now })
	eng.SetEmitter(h.rec)
	require.NoError(t, eng.Init(h.ctx))
	return h
}

func (h *harness) call(caller model.Address, payments ...model.Payment) marketplace.Call {
	return marketplace.Call{Caller: caller, Payments: payments}
}

func (h *harness) fund(to model.Address, p model.Payment) {
	h.t.Helper()
	_, err := h.eng.Mint(h.ctx, h.call(admin), to, p, nil)
	require.NoError(h.t, err)
}

// mintItem creates an item with a 10% creator royalty.
func (h *harness) mintItem(to model.Address, collection string, nonce uint64, qty string) model.Payment {
	h.t.Helper()
	p := item(collection, nonce, qty)
	meta := &model.ItemMetadata{Collection: collection, Nonce: nonce, Creator: creator, Royalties: 1000}
	_, err := h.eng.Mint(h.ctx, h.call(admin), to, p, meta)
	require.NoError(h.t, err)
	return p
}

func (h *harness) balance(addr model.Address, token string, nonce uint64) decimal.Decimal {
	h.t.Helper()
	bal, err := h.eng.Balance(h.ctx, addr, token, nonce)
	require.NoError(h.t, err)
	return bal
}

func (h *harness) requireBalance(addr model.Address, token string, nonce uint64, want string) {
	h.t.Helper()
	got := h.balance(addr, token, nonce)
	require.Truef(h.t, got.Equal(d(want)), "balance of %s in %s-%d: got %s, want %s", addr, token, nonce, got, want)
}

// listFixed lists an item at a fixed unit price in EGLD.
func (h *harness) listFixed(owner model.Address, it model.Payment, price string) uint64 {
	h.t.Helper()
	typ := model.FixedPrice
	if !it.Amount.Equal(decimal.NewFromInt(1)) {
		typ = model.SftOnePerPayment
	}
	r, err := h.eng.List(h.ctx, h.call(owner, it), []marketplace.ListingRequest{{
		Type:         typ,
		PaymentToken: egld,
		MinPrice:     d(price),
	}})
	require.NoError(h.t, err)
	require.Len(h.t, r.IDs, 1)
	return r.IDs[0]
}

func (h *harness) listBid(owner model.Address, it model.Payment, minPrice, maxPrice string, deadline int64) uint64 {
	h.t.Helper()
	r, err := h.eng.List(h.ctx, h.call(owner, it), []marketplace.ListingRequest{{
		Type:         model.BidNft,
		PaymentToken: egld,
		MinPrice:     d(minPrice),
		MaxPrice:     d(maxPrice),
		Deadline:     deadline,
	}})
	require.NoError(h.t, err)
	return r.IDs[0]
}

// requireGone checks that an auction and every index entry for it are gone.
func (h *harness) requireGone(id uint64, a model.Auction) {
	h.t.Helper()
	_, err := h.eng.Auction(h.ctx, id)
	require.ErrorIs(h.t, err, marketplace.ErrNotFound)

	for _, f := range []marketplace.AuctionFilter{
		{},
		{Owner: a.Owner},
		{Collection: a.Collection},
		{Collection: a.Collection, Nonce: a.Nonce},
	} {
		live, err := h.eng.Auctions(h.ctx, f)
		require.NoError(h.t, err)
		for _, l := range live {
			require.NotEqual(h.t, id, l.ID, "auction %d still indexed under %+v", id, f)
		}
	}
}

func (h *harness) auction(id uint64) model.Auction {
	h.t.Helper()
	a, err := h.eng.Auction(h.ctx, id)
	require.NoError(h.t, err)
	require.Equal(h.t, a.CurrentBid.IsZero(), a.CurrentWinner.IsZero(), "bid and winner out of sync")
	return *a
}

func TestScenarioA_ListAndBuy(t *testing.T) {
	h := newHarness(t)
	nft := h.mintItem(seller, apes, 1, "1")
	h.fund(bob, pay(egld, "1000"))

	id := h.listFixed(seller, nft, "100")
	listed := h.auction(id)
	require.Equal(t, uint32(500), listed.CutPercentage)
	require.Equal(t, uint32(1000), listed.CreatorRoyalty)
	h.requireBalance(custody, apes, 1, "1")

	r, err := h.eng.Buy(h.ctx, h.call(bob, pay(egld, "100")), id, d("1"))
	require.NoError(t, err)
	require.NotEmpty(t, r.ID)
	require.Len(t, r.Settlements, 1)

	h.requireBalance(bob, apes, 1, "1")
	h.requireBalance(bob, egld, 0, "900")
	h.requireBalance(seller, egld, 0, "85")
	h.requireBalance(creator, egld, 0, "10")
	h.requireBalance(treasury, egld, 0, "5")
	h.requireBalance(custody, egld, 0, "0")
	h.requireBalance(custody, apes, 1, "0")
	h.requireGone(id, listed)
}

func TestScenarioB_BidLadder(t *testing.T) {
	h := newHarness(t)
	nft := h.mintItem(seller, apes, 1, "1")
	for _, who := range []model.Address{bob, carol, dave} {
		h.fund(who, pay(egld, "1000"))
	}
	id := h.listBid(seller, nft, "10", "100", start+100)

	_, err := h.eng.Bid(h.ctx, h.call(bob, pay(egld, "10")), id)
	require.NoError(t, err)
	a := h.auction(id)
	require.Equal(t, bob, a.CurrentWinner)
	h.requireBalance(bob, egld, 0, "990")

	_, err = h.eng.Bid(h.ctx, h.call(carol, pay(egld, "5")), id)
	require.ErrorIs(t, err, marketplace.ErrBidTooLow)
	require.ErrorIs(t, err, marketplace.ErrValidation)
	h.requireBalance(carol, egld, 0, "1000")

	_, err = h.eng.Bid(h.ctx, h.call(carol, pay(egld, "50")), id)
	require.NoError(t, err)
	a = h.auction(id)
	require.Equal(t, carol, a.CurrentWinner)
	require.True(t, a.CurrentBid.Equal(d("50")))
	h.requireBalance(bob, egld, 0, "1000")

	r, err := h.eng.Bid(h.ctx, h.call(dave, pay(egld, "100")), id)
	require.NoError(t, err)
	require.Equal(t, "won", r.Status)
	require.Len(t, r.Settlements, 1)

	h.requireBalance(dave, apes, 1, "1")
	h.requireBalance(dave, egld, 0, "900")
	h.requireBalance(carol, egld, 0, "1000")
	h.requireBalance(seller, egld, 0, "85")
	h.requireBalance(creator, egld, 0, "10")
	h.requireBalance(treasury, egld, 0, "5")
	h.requireGone(id, a)
}

func TestScenarioC_BulkBuySkipsVanished(t *testing.T) {
	h := newHarness(t)
	h.fund(bob, pay(egld, "1000"))
	id1 := h.listFixed(seller, h.mintItem(seller, apes, 1, "1"), "100")
	id2 := h.listFixed(seller, h.mintItem(seller, apes, 2, "1"), "200")
	id3 := h.listFixed(seller, h.mintItem(seller, apes, 3, "1"), "300")

	_, err := h.eng.Withdraw(h.ctx, h.call(seller), []uint64{id2})
	require.NoError(t, err)

	// Not enough for both remaining listings: nothing happens.
	_, err = h.eng.BulkBuy(h.ctx, h.call(bob, pay(egld, "350")), []uint64{id1, id2, id3})
	require.ErrorIs(t, err, marketplace.ErrInsufficientFunds)
	h.requireBalance(bob, egld, 0, "1000")
	h.auction(id1)

	r, err := h.eng.BulkBuy(h.ctx, h.call(bob, pay(egld, "450")), []uint64{id1, id2, id3})
	require.NoError(t, err)
	require.Equal(t, []uint64{id1, id3}, r.IDs)
	require.Equal(t, []uint64{id2}, r.Skipped)
	require.Len(t, r.Delivered, 2)
	require.Len(t, r.Refunded, 1)
	require.True(t, r.Refunded[0].Amount.Equal(d("50")))

	h.requireBalance(bob, egld, 0, "600")
	h.requireBalance(bob, apes, 1, "1")
	h.requireBalance(bob, apes, 3, "1")
	h.requireBalance(seller, apes, 2, "1")
	h.requireBalance(treasury, egld, 0, "20")
	h.requireBalance(creator, egld, 0, "40")
	h.requireBalance(seller, egld, 0, "340")
	h.requireBalance(custody, egld, 0, "0")
}

func TestScenarioD_ReversedCutFees(t *testing.T) {
	h := newHarness(t)
	_, err := h.eng.SetCollectionConfig(h.ctx, h.call(admin), model.CollectionConfig{
		Collection:     apes,
		ReverseCutFees: true,
	})
	require.NoError(t, err)

	h.fund(bob, pay(egld, "1000"))
	id := h.listFixed(seller, h.mintItem(seller, apes, 1, "1"), "100")

	_, err = h.eng.Buy(h.ctx, h.call(bob, pay(egld, "100")), id, d("1"))
	require.ErrorIs(t, err, marketplace.ErrWrongPayment)

	r, err := h.eng.Buy(h.ctx, h.call(bob, pay(egld, "105")), id, d("1"))
	require.NoError(t, err)
	b := r.Settlements[0].Breakdown
	require.True(t, b.Obligation().Equal(d("105")))

	h.requireBalance(bob, egld, 0, "895")
	h.requireBalance(seller, egld, 0, "90")
	h.requireBalance(treasury, egld, 0, "5")
	h.requireBalance(creator, egld, 0, "10")
}

func TestBulkBuyReversedFeesWithExtraFee(t *testing.T) {
	h := newHarness(t)
	_, err := h.eng.SetCollectionConfig(h.ctx, h.call(admin), model.CollectionConfig{
		Collection:       apes,
		ReverseCutFees:   true,
		ReverseRoyalties: true,
		ExtraFee:         model.ExtraFee{Rate: 100, Recipient: dave},
	})
	require.NoError(t, err)

	h.fund(bob, pay(egld, "1000"))
	id1 := h.listFixed(seller, h.mintItem(seller, apes, 1, "1"), "100")
	id2 := h.listFixed(seller, h.mintItem(seller, apes, 2, "1"), "200")

	// 115 + 230: cut and royalty are charged on top of each price.
	_, err = h.eng.BulkBuy(h.ctx, h.call(bob, pay(egld, "344")), []uint64{id1, id2})
	require.ErrorIs(t, err, marketplace.ErrInsufficientFunds)
	h.requireBalance(bob, egld, 0, "1000")

	r, err := h.eng.BulkBuy(h.ctx, h.call(bob, pay(egld, "400")), []uint64{id1, id2})
	require.NoError(t, err)
	require.Equal(t, []uint64{id1, id2}, r.IDs)
	require.Len(t, r.Refunded, 1)
	require.True(t, r.Refunded[0].Amount.Equal(d("55")))

	h.requireBalance(bob, egld, 0, "655")
	h.requireBalance(bob, apes, 1, "1")
	h.requireBalance(bob, apes, 2, "1")
	// The extra fee always comes out of the seller's share.
	h.requireBalance(seller, egld, 0, "297")
	h.requireBalance(creator, egld, 0, "30")
	h.requireBalance(treasury, egld, 0, "15")
	h.requireBalance(dave, egld, 0, "3")
	h.requireBalance(custody, egld, 0, "0")
}

func TestFailedOperationLeavesNoTrace(t *testing.T) {
	h := newHarness(t)
	nft := h.mintItem(seller, apes, 1, "1")
	other := h.mintItem(seller, apes, 2, "1")

	before := len(h.rec.Events())
	_, err := h.eng.List(h.ctx, h.call(seller, nft, other), []marketplace.ListingRequest{
		{Type: model.FixedPrice, PaymentToken: egld, MinPrice: d("10")},
		{Type: model.FixedPrice, PaymentToken: "NOPE-000000", MinPrice: d("10")},
	})
	require.ErrorIs(t, err, marketplace.ErrCurrencyNotAccepted)
	require.Len(t, h.rec.Events(), before)
	h.requireBalance(seller, apes, 1, "1")
	h.requireBalance(seller, apes, 2, "1")

	live, err := h.eng.Auctions(h.ctx, marketplace.AuctionFilter{})
	require.NoError(t, err)
	require.Empty(t, live)

	// The aborted batch consumed no id.
	require.Equal(t, uint64(1), h.listFixed(seller, nft, "10"))
	require.Equal(t, events.TypeAuctionListed, h.rec.Types()[len(h.rec.Types())-1])
}

func TestIDsAreNeverReused(t *testing.T) {
	h := newHarness(t)
	nft := h.mintItem(seller, apes, 1, "1")

	first := h.listFixed(seller, nft, "10")
	_, err := h.eng.Withdraw(h.ctx, h.call(seller), []uint64{first})
	require.NoError(t, err)
	second := h.listFixed(seller, nft, "10")
	require.Greater(t, second, first)
}
