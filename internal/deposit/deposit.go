// Package deposit keeps pre-funded balances that offers can draw on. The
// tokens themselves sit in the engine's custody account; the pool only
// tracks who owns how much of them.
package deposit

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/atmx/settlement-engine/internal/model"
	"github.com/atmx/settlement-engine/internal/store"
)

var (
	ErrCurrencyNotAccepted = errors.New("deposit: currency not accepted")
	ErrInsufficientBalance = errors.New("deposit: insufficient balance")
	ErrInvalidAmount       = errors.New("deposit: amount must be a positive integer")
)

// Payer delivers a withdrawal to its owner.
type Payer interface {
	Pay(tx *store.Tx, to model.Address, p model.Payment) (bool, error)
}

// Pool tracks deposit balances.
type Pool struct {
	payer Payer
}

// NewPool returns a pool paying withdrawals through payer.
func NewPool(payer Payer) *Pool { return &Pool{payer: payer} }

func balanceKey(owner model.Address, token string, nonce uint64) string {
	return fmt.Sprintf("deposit:%s:%s:%d", owner, token, nonce)
}

func currenciesSet(owner model.Address) string { return "deposit:currencies:" + owner.String() }

func currency(token string, nonce uint64) string { return token + ":" + strconv.FormatUint(nonce, 10) }

func parseCurrency(s string) (string, uint64, error) {
	i := strings.LastIndexByte(s, ':')
	if i < 0 {
		return "", 0, fmt.Errorf("deposit: corrupt currency %q", s)
	}
	nonce, err := strconv.ParseUint(s[i+1:], 10, 64)
	if err != nil {
		return "", 0, fmt.Errorf("deposit: corrupt currency %q", s)
	}
	return s[:i], nonce, nil
}

// Deposit credits p, already received into custody, to owner.
func (p *Pool) Deposit(tx *store.Tx, owner model.Address, pay model.Payment) error {
	if !pay.Amount.IsPositive() || !pay.Amount.IsInteger() {
		return fmt.Errorf("%w: %s", ErrInvalidAmount, pay.Amount)
	}
	ok, err := tx.IsAcceptedToken(pay.Token)
	if err != nil {
		return err
	}
	if !ok || !pay.IsFungible() {
		return fmt.Errorf("%w: %s-%d", ErrCurrencyNotAccepted, pay.Token, pay.Nonce)
	}
	bal, err := p.Balance(tx, owner, pay.Token, pay.Nonce)
	if err != nil {
		return err
	}
	p.set(tx, owner, pay.Token, pay.Nonce, bal.Add(pay.Amount))
	return nil
}

// Balance returns owner's deposit in (token, nonce).
func (p *Pool) Balance(tx *store.Tx, owner model.Address, token string, nonce uint64) (decimal.Decimal, error) {
	return tx.GetAmount(balanceKey(owner, token, nonce))
}

// Balances lists every non-empty deposit of owner.
func (p *Pool) Balances(tx *store.Tx, owner model.Address) ([]model.DepositBalance, error) {
	members, err := tx.Members(currenciesSet(owner))
	if err != nil {
		return nil, err
	}
	out := make([]model.DepositBalance, 0, len(members))
	for _, m := range members {
		token, nonce, err := parseCurrency(m)
		if err != nil {
			return nil, err
		}
		amount, err := p.Balance(tx, owner, token, nonce)
		if err != nil {
			return nil, err
		}
		out = append(out, model.DepositBalance{Owner: owner, Token: token, Nonce: nonce, Amount: amount})
	}
	return out, nil
}

// HasBalance reports whether owner has at least amount deposited.
func (p *Pool) HasBalance(tx *store.Tx, owner model.Address, token string, nonce uint64, amount decimal.Decimal) (bool, error) {
	bal, err := p.Balance(tx, owner, token, nonce)
	if err != nil {
		return false, err
	}
	return bal.GreaterThanOrEqual(amount), nil
}

// HasBalanceAndDeduct debits amount from owner's deposit or fails without
// touching it.
func (p *Pool) HasBalanceAndDeduct(tx *store.Tx, owner model.Address, token string, nonce uint64, amount decimal.Decimal) error {
	bal, err := p.Balance(tx, owner, token, nonce)
	if err != nil {
		return err
	}
	if bal.LessThan(amount) {
		return fmt.Errorf("%w: %s holds %s %s-%d, needs %s", ErrInsufficientBalance, owner, bal, token, nonce, amount)
	}
	p.set(tx, owner, token, nonce, bal.Sub(amount))
	return nil
}

// Withdraw pays amount of owner's deposit back to owner. A zero amount
// withdraws the whole balance.
func (p *Pool) Withdraw(tx *store.Tx, owner model.Address, token string, nonce uint64, amount decimal.Decimal) (model.Payment, error) {
	if amount.IsNegative() || !amount.IsInteger() {
		return model.Payment{}, fmt.Errorf("%w: %s", ErrInvalidAmount, amount)
	}
	if amount.IsZero() {
		bal, err := p.Balance(tx, owner, token, nonce)
		if err != nil {
			return model.Payment{}, err
		}
		if bal.IsZero() {
			return model.Payment{}, fmt.Errorf("%w: nothing deposited in %s-%d", ErrInsufficientBalance, token, nonce)
		}
		amount = bal
	}
	if err := p.HasBalanceAndDeduct(tx, owner, token, nonce, amount); err != nil {
		return model.Payment{}, err
	}
	out := model.Payment{Token: token, Nonce: nonce, Amount: amount}
	if _, err := p.payer.Pay(tx, owner, out); err != nil {
		return model.Payment{}, err
	}
	return out, nil
}

func (p *Pool) set(tx *store.Tx, owner model.Address, token string, nonce uint64, v decimal.Decimal) {
	tx.SetAmount(balanceKey(owner, token, nonce), v)
	if v.IsZero() {
		tx.RemoveMember(currenciesSet(owner), currency(token, nonce))
		return
	}
	tx.AddMember(currenciesSet(owner), currency(token, nonce))
}
