// Package marketplace is the settlement engine: auction, offer and global
// offer lifecycles plus the fee-split settlement between buyer, seller,
// creator, marketplace and collection extra-fee recipient.
//
// Every public operation runs inside one store transaction. Attached
// payments are moved into the engine's custody account first; state changes
// and every outgoing payment are staged in the same transaction, so an
// operation either commits entirely or leaves no trace.
package marketplace

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/atmx/settlement-engine/internal/deposit"
	"github.com/atmx/settlement-engine/internal/escrow"
	"github.com/atmx/settlement-engine/internal/events"
	"github.com/atmx/settlement-engine/internal/fees"
	"github.com/atmx/settlement-engine/internal/host"
	"github.com/atmx/settlement-engine/internal/limits"
	"github.com/atmx/settlement-engine/internal/metrics"
	"github.com/atmx/settlement-engine/internal/model"
	"github.com/atmx/settlement-engine/internal/store"
)

// Bank is the token ledger the engine settles against.
type Bank interface {
	BalanceOf(tx *store.Tx, owner model.Address, token string, nonce uint64) (decimal.Decimal, error)
	Transfer(tx *store.Tx, from, to model.Address, p model.Payment) error
	Credit(tx *store.Tx, owner model.Address, p model.Payment) error
}

// ItemRegistrar records metadata for newly minted items.
type ItemRegistrar interface {
	Register(tx *store.Tx, meta model.ItemMetadata) error
}

// Deps are the collaborators injected into the engine. Nil optional
// fields get safe defaults.
type Deps struct {
	Bank       Bank
	Metadata   host.MetadataSource
	Registrar  ItemRegistrar
	Oracle     host.AccountOracle
	Verifier   host.Verifier
	Normalizer host.Normalizer
	Limiter    *limits.OfferLimiter
}

// Config holds the engine's fixed accounts and bootstrap settings.
type Config struct {
	// Custody holds listed items, attached offer funds, deposits and
	// claimable balances.
	Custody model.Address
	// Treasury receives the marketplace cut.
	Treasury model.Address
	// Admin may call the configuration operations.
	Admin model.Address

	NativeToken    string
	CutPercentage  uint32
	AcceptedTokens []string
}

// Call carries the host-supplied identity of one operation.
type Call struct {
	Caller   model.Address   `json:"caller"`
	Now      int64           `json:"now,omitempty"` // 0 = engine clock
	Payments []model.Payment `json:"payments,omitempty"`
}

// Settlement records one completed sale.
type Settlement struct {
	Kind          string         `json:"kind"`
	AuctionID     uint64         `json:"auction_id,omitempty"`
	OfferID       uint64         `json:"offer_id,omitempty"`
	GlobalOfferID uint64         `json:"global_offer_id,omitempty"`
	Buyer         model.Address  `json:"buyer"`
	Seller        model.Address  `json:"seller"`
	Creator       model.Address  `json:"creator"`
	Token         string         `json:"token"`
	Nonce         uint64         `json:"nonce"`
	Breakdown     fees.Breakdown `json:"breakdown"`
}

// Receipt is returned for every committed operation. Aborted operations
// return no receipt.
type Receipt struct {
	ID          string          `json:"id"`
	Operation   string          `json:"operation"`
	Caller      model.Address   `json:"caller"`
	Timestamp   int64           `json:"timestamp"`
	IDs         []uint64        `json:"ids,omitempty"`
	Skipped     []uint64        `json:"skipped,omitempty"`
	Status      string          `json:"status,omitempty"`
	Message     string          `json:"message,omitempty"`
	Settlements []Settlement    `json:"settlements,omitempty"`
	Delivered   []model.Payment `json:"delivered,omitempty"`
	Refunded    []model.Payment `json:"refunded,omitempty"`
	Escrowed    int             `json:"escrowed,omitempty"`
}

// Engine implements the public operation surface.
type Engine struct {
	store      *store.Store
	bank       Bank
	escrow     *escrow.Service
	pool       *deposit.Pool
	limiter    *limits.OfferLimiter
	metadata   host.MetadataSource
	registrar  ItemRegistrar
	verifier   host.Verifier
	normalizer host.Normalizer
	emitter    events.Emitter
	cfg        Config
	nowFn      func() int64
}

// NewEngine wires an engine over st.
func NewEngine(st *store.Store, deps Deps, cfg Config) *Engine {
	if deps.Oracle == nil {
		deps.Oracle = host.AddressOracle{}
	}
	if deps.Verifier == nil {
		deps.Verifier = host.RejectAll{}
	}
	if deps.Normalizer == nil {
		deps.Normalizer = host.NoConversion{}
	}
	if deps.Limiter == nil {
		deps.Limiter = limits.NewOfferLimiter(limits.DefaultMaxPerOwner, limits.DefaultMaxPerCollection)
	}
	if deps.Metadata == nil {
		deps.Metadata = host.Registry{}
	}
	esc := escrow.NewService(deps.Bank, deps.Oracle, cfg.Custody)
	return &Engine{
		store:      st,
		bank:       deps.Bank,
		escrow:     esc,
		pool:       deposit.NewPool(esc),
		limiter:    deps.Limiter,
		metadata:   deps.Metadata,
		registrar:  deps.Registrar,
		verifier:   deps.Verifier,
		normalizer: deps.Normalizer,
		emitter:    events.NoopEmitter{},
		cfg:        cfg,
		nowFn:      func() int64 { return time.Now().Unix() },
	}
}

// SetEmitter configures where committed events go. nil discards them.
func (e *Engine) SetEmitter(emitter events.Emitter) {
	if emitter == nil {
		e.emitter = events.NoopEmitter{}
		return
	}
	e.emitter = emitter
}

// SetNowFunc overrides the clock used when a Call carries no timestamp.
func (e *Engine) SetNowFunc(now func() int64) {
	if now == nil {
		e.nowFn = func() int64 { return time.Now().Unix() }
		return
	}
	e.nowFn = now
}

// Init seeds the configured cut and accepted tokens. Existing settings win
// over the configured cut.
func (e *Engine) Init(ctx context.Context) error {
	return e.store.Atomic(ctx, func(tx *store.Tx) error {
		if _, ok, err := tx.CutPercentage(); err != nil {
			return err
		} else if !ok {
			if e.cfg.CutPercentage > fees.MaxCutPercentage {
				return fmt.Errorf("%w: cut %d above %d", ErrValidation, e.cfg.CutPercentage, fees.MaxCutPercentage)
			}
			if err := tx.SetCutPercentage(e.cfg.CutPercentage); err != nil {
				return err
			}
		}
		for _, t := range e.cfg.AcceptedTokens {
			tx.AddAcceptedToken(t)
		}
		return nil
	})
}

// op is the state of one running operation.
type op struct {
	tx           *store.Tx
	call         Call
	receipt      *Receipt
	events       []events.Event
	auctionDelta int
	received     bool
}

func (o *op) now() int64 { return o.call.Now }

func (o *op) caller() model.Address { return o.call.Caller }

func (o *op) emit(typ string, kv ...string) {
	attrs := make(map[string]string, len(kv)/2)
	for i := 0; i+1 < len(kv); i += 2 {
		attrs[kv[i]] = kv[i+1]
	}
	o.events = append(o.events, events.Event{Type: typ, Attributes: attrs})
}

// expectPayments rejects calls that attach anything but n payments.
func (o *op) expectPayments(n int) error {
	if len(o.call.Payments) != n {
		return fmt.Errorf("%w: got %d, want %d", ErrPaymentCount, len(o.call.Payments), n)
	}
	return nil
}

// single returns the only attached payment.
func (o *op) single() (model.Payment, error) {
	if err := o.expectPayments(1); err != nil {
		return model.Payment{}, err
	}
	return o.call.Payments[0], nil
}

func (e *Engine) run(ctx context.Context, name string, call Call, fn func(o *op) error) (*Receipt, error) {
	start := time.Now()
	if call.Now == 0 {
		call.Now = e.nowFn()
	}
	o := &op{
		call: call,
		receipt: &Receipt{
			ID:        uuid.New().String(),
			Operation: name,
			Caller:    call.Caller,
			Timestamp: call.Now,
		},
	}

	err := e.store.Atomic(ctx, func(tx *store.Tx) error {
		o.tx = tx
		if err := fn(o); err != nil {
			return err
		}
		return e.receive(o)
	})
	metrics.OperationLatency.WithLabelValues(name).Observe(time.Since(start).Seconds())
	if err != nil {
		err = classify(err)
		metrics.OperationsTotal.WithLabelValues(name, "rejected").Inc()
		slog.Warn("operation rejected",
			"operation", name,
			"caller", call.Caller.String(),
			"error", err,
		)
		return nil, err
	}

	metrics.OperationsTotal.WithLabelValues(name, "ok").Inc()
	metrics.ActiveAuctions.Add(float64(o.auctionDelta))
	for _, s := range o.receipt.Settlements {
		metrics.SettlementsTotal.WithLabelValues(s.Kind).Inc()
		metrics.SettlementVolume.WithLabelValues(s.Token).Add(s.Breakdown.Price.InexactFloat64())
	}
	for _, ev := range o.events {
		e.emitter.Emit(ev)
	}
	return o.receipt, nil
}

// receive moves every attached payment from the caller into custody, once
// per operation. Operations call it after their lookups and authorization
// checks, before anything is paid out of custody or converted; run calls it
// after the operation body for those that never needed the funds earlier.
func (e *Engine) receive(o *op) error {
	if o.received {
		return nil
	}
	o.received = true
	for _, p := range o.call.Payments {
		if !p.Amount.IsPositive() || !p.Amount.IsInteger() {
			return fmt.Errorf("%w: payment amount %s", ErrInvalidQuantity, p.Amount)
		}
		if err := e.bank.Transfer(o.tx, o.caller(), e.cfg.Custody, p); err != nil {
			return err
		}
	}
	return nil
}

// pay delivers p out of custody through the escrow router.
func (e *Engine) pay(o *op, to model.Address, p model.Payment) error {
	if to.IsZero() {
		return fmt.Errorf("%w: payment to the zero address", ErrInvalidRecipient)
	}
	escrowed, err := e.escrow.Pay(o.tx, to, p)
	if err != nil {
		return err
	}
	if escrowed {
		o.receipt.Escrowed++
		o.emit(events.TypePaymentEscrowed,
			"recipient", to.String(),
			"token", p.Token,
			"nonce", u64(p.Nonce),
			"amount", p.Amount.String(),
		)
		slog.Info("escrowed payment",
			"recipient", to.String(),
			"token", p.Token,
			"nonce", p.Nonce,
			"amount", p.Amount.String(),
		)
	}
	return nil
}

func (e *Engine) payAll(o *op, to model.Address, payments []model.Payment) error {
	for _, p := range payments {
		if err := e.pay(o, to, p); err != nil {
			return err
		}
	}
	return nil
}

// settle pays every party of a sale out of custody. With deferFee the
// marketplace share is left for the caller to pay once per batch.
func (e *Engine) settle(o *op, s Settlement, deferFee bool) error {
	b := s.Breakdown
	in := func(amount decimal.Decimal) model.Payment {
		return model.Payment{Token: s.Token, Nonce: s.Nonce, Amount: amount}
	}
	if b.Creator.IsPositive() {
		if err := e.pay(o, s.Creator, in(b.Creator)); err != nil {
			return err
		}
	}
	if !deferFee {
		if err := e.pay(o, e.cfg.Treasury, in(b.Marketplace)); err != nil {
			return err
		}
	}
	if b.Extra.IsPositive() {
		if err := e.pay(o, b.ExtraRecipient, in(b.Extra)); err != nil {
			return err
		}
	}
	if err := e.pay(o, s.Seller, in(b.SellerNet())); err != nil {
		return err
	}

	o.receipt.Settlements = append(o.receipt.Settlements, s)
	slog.Info("sale settled",
		"kind", s.Kind,
		"auction_id", s.AuctionID,
		"offer_id", s.OfferID,
		"global_offer_id", s.GlobalOfferID,
		"buyer", s.Buyer.String(),
		"seller", s.Seller.String(),
		"token", s.Token,
		"price", b.Price.String(),
		"creator_cut", b.Creator.String(),
		"marketplace_cut", b.Marketplace.String(),
		"extra_cut", b.Extra.String(),
		"seller_net", b.SellerNet().String(),
	)
	return nil
}

// cut returns the live marketplace cut.
func (e *Engine) cut(tx *store.Tx) (uint32, error) {
	cut, ok, err := tx.CutPercentage()
	if err != nil {
		return 0, err
	}
	if !ok {
		return e.cfg.CutPercentage, nil
	}
	return cut, nil
}

func (e *Engine) requireAccepted(tx *store.Tx, token string) error {
	ok, err := tx.IsAcceptedToken(token)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("%w: %s", ErrCurrencyNotAccepted, token)
	}
	return nil
}

// liveAuction loads an auction that is not frozen.
func (e *Engine) liveAuction(tx *store.Tx, id uint64) (*model.Auction, error) {
	a, err := tx.GetAuction(id)
	if err != nil {
		return nil, err
	}
	frozen, err := tx.IsFrozen(id)
	if err != nil {
		return nil, err
	}
	if frozen {
		return nil, fmt.Errorf("%w: auction %d", ErrFrozen, id)
	}
	return a, nil
}

// removeAuction deletes a terminated auction with every index entry.
func (e *Engine) removeAuction(o *op, a *model.Auction) {
	o.tx.DeleteAuction(a)
	o.tx.Unfreeze(a.ID)
	o.auctionDelta--
}

func positiveInteger(v decimal.Decimal) bool { return v.IsPositive() && v.IsInteger() }

func u64(v uint64) string { return strconv.FormatUint(v, 10) }
