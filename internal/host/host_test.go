package host_test

import (
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/atmx/settlement-engine/internal/bank"
	"github.com/atmx/settlement-engine/internal/host"
	"github.com/atmx/settlement-engine/internal/model"
	"github.com/atmx/settlement-engine/internal/store"
)

var (
	custody   = model.MustAddress("00000000000000000500000000000000000000000000000000000000000000aa")
	liquidity = model.MustAddress("00000000000000000500000000000000000000000000000000000000000000bb")
	alice     = model.MustAddress("a11ce00000000000000000000000000000000000000000000000000000000001")
)

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func TestAddressOracle(t *testing.T) {
	var o host.AddressOracle
	require.True(t, o.IsSmartContract(custody))
	require.False(t, o.IsSmartContract(alice))
	require.False(t, o.IsSmartContract(model.ZeroAddress))
}

func TestEd25519Verifier(t *testing.T) {
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	require.NoError(t, err)

	v, err := host.NewEd25519Verifier(hex.EncodeToString(pub))
	require.NoError(t, err)

	msg := []byte("seller|collection|1|2|offer")
	sig := ed25519.Sign(priv, msg)
	require.True(t, v.Verify(msg, sig))
	require.False(t, v.Verify([]byte("tampered"), sig))
	require.False(t, v.Verify(msg, sig[:10]))

	_, err = host.NewEd25519Verifier("abcd")
	require.ErrorIs(t, err, host.ErrInvalidPublicKey)

	require.False(t, host.RejectAll{}.Verify(msg, sig))
}

func TestWrapNormalizer(t *testing.T) {
	st := store.NewMemoryStore()
	ledger := bank.New()
	n := host.NewWrapNormalizer(ledger, "EGLD", "WEGLD-bd4d79", liquidity, custody)
	ctx := context.Background()

	require.NoError(t, st.Atomic(ctx, func(tx *store.Tx) error {
		require.NoError(t, ledger.Credit(tx, custody, model.Payment{Token: "EGLD", Amount: d("100")}))
		require.NoError(t, ledger.Credit(tx, liquidity, model.Payment{Token: "WEGLD-bd4d79", Amount: d("60")}))
		return nil
	}))

	t.Run("Converts", func(t *testing.T) {
		err := st.View(ctx, func(tx *store.Tx) error {
			out, ok := n.Normalize(tx, model.Payment{Token: "EGLD", Amount: d("50")}, "WEGLD-bd4d79")
			require.True(t, ok)
			require.Equal(t, "WEGLD-bd4d79", out.Token)
			require.True(t, out.Amount.Equal(d("50")))

			bal, err := ledger.BalanceOf(tx, custody, "WEGLD-bd4d79", 0)
			require.NoError(t, err)
			require.True(t, bal.Equal(d("50")))
			return nil
		})
		require.NoError(t, err)
	})

	t.Run("InsufficientLiquidityReturnsOriginal", func(t *testing.T) {
		err := st.View(ctx, func(tx *store.Tx) error {
			in := model.Payment{Token: "EGLD", Amount: d("80")}
			out, ok := n.Normalize(tx, in, "WEGLD-bd4d79")
			require.False(t, ok)
			require.Equal(t, in, out)

			bal, err := ledger.BalanceOf(tx, custody, "EGLD", 0)
			require.NoError(t, err)
			require.True(t, bal.Equal(d("100")))
			return nil
		})
		require.NoError(t, err)
	})

	t.Run("UnsupportedPair", func(t *testing.T) {
		err := st.View(ctx, func(tx *store.Tx) error {
			in := model.Payment{Token: "USDC-c76f1f", Amount: d("1")}
			out, ok := n.Normalize(tx, in, "WEGLD-bd4d79")
			require.False(t, ok)
			require.Equal(t, in, out)
			return nil
		})
		require.NoError(t, err)
	})

	t.Run("SameToken", func(t *testing.T) {
		in := model.Payment{Token: "WEGLD-bd4d79", Amount: d("1")}
		out, ok := n.Normalize(nil, in, "WEGLD-bd4d79")
		require.True(t, ok)
		require.Equal(t, in, out)
	})
}

// flakyLedger fails every transfer out of the liquidity account.
type flakyLedger struct {
	*bank.Ledger
}

func (l flakyLedger) Transfer(tx *store.Tx, from, to model.Address, p model.Payment) error {
	if from == liquidity {
		return errors.New("liquidity transfer rejected")
	}
	return l.Ledger.Transfer(tx, from, to, p)
}

func TestWrapNormalizerFailedSwapRollsBack(t *testing.T) {
	st := store.NewMemoryStore()
	ledger := bank.New()
	n := host.NewWrapNormalizer(flakyLedger{ledger}, "EGLD", "WEGLD-bd4d79", liquidity, custody)
	ctx := context.Background()

	require.NoError(t, st.Atomic(ctx, func(tx *store.Tx) error {
		require.NoError(t, ledger.Credit(tx, custody, model.Payment{Token: "EGLD", Amount: d("100")}))
		require.NoError(t, ledger.Credit(tx, liquidity, model.Payment{Token: "WEGLD-bd4d79", Amount: d("60")}))
		return nil
	}))

	errSwap := errors.New("swap failed")
	err := st.Atomic(ctx, func(tx *store.Tx) error {
		in := model.Payment{Token: "EGLD", Amount: d("50")}
		out, ok := n.Normalize(tx, in, "WEGLD-bd4d79")
		require.False(t, ok)
		require.Equal(t, in, out)
		return errSwap
	})
	require.ErrorIs(t, err, errSwap)

	require.NoError(t, st.View(ctx, func(tx *store.Tx) error {
		for _, c := range []struct {
			owner model.Address
			token string
			want  string
		}{
			{custody, "EGLD", "100"},
			{custody, "WEGLD-bd4d79", "0"},
			{liquidity, "EGLD", "0"},
			{liquidity, "WEGLD-bd4d79", "60"},
		} {
			bal, err := ledger.BalanceOf(tx, c.owner, c.token, 0)
			require.NoError(t, err)
			require.Truef(t, bal.Equal(d(c.want)), "%s %s: got %s", c.owner, c.token, bal)
		}
		return nil
	}))
}

type countingSource struct {
	host.Registry
	calls int
}

func (c *countingSource) Item(tx *store.Tx, collection string, nonce uint64) (model.ItemMetadata, error) {
	c.calls++
	return c.Registry.Item(tx, collection, nonce)
}

func TestCachedMetadata(t *testing.T) {
	st := store.NewMemoryStore()
	ctx := context.Background()
	src := &countingSource{}

	meta := model.ItemMetadata{Collection: "APES-a1b2c3", Nonce: 7, Creator: alice, Royalties: 500}
	require.NoError(t, st.Atomic(ctx, func(tx *store.Tx) error {
		return src.Register(tx, meta)
	}))

	cached, err := host.NewCachedMetadata(src, 8)
	require.NoError(t, err)

	err = st.View(ctx, func(tx *store.Tx) error {
		for i := 0; i < 3; i++ {
			got, err := cached.Item(tx, "APES-a1b2c3", 7)
			require.NoError(t, err)
			require.Equal(t, meta, got)
		}
		_, err := cached.Item(tx, "APES-a1b2c3", 8)
		require.ErrorIs(t, err, host.ErrUnknownItem)
		return nil
	})
	require.NoError(t, err)
	require.Equal(t, 2, src.calls)
	require.Equal(t, 1, cached.Len())

	err = st.Atomic(ctx, func(tx *store.Tx) error {
		return src.Register(tx, meta)
	})
	require.Error(t, err)
}
