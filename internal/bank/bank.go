// Package bank is the token ledger behind the transfer primitive. Balances
// are keyed by (owner, token, nonce) and live in the same store as engine
// state, so every transfer commits or rolls back with its operation.
package bank

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/atmx/settlement-engine/internal/model"
	"github.com/atmx/settlement-engine/internal/store"
)

var (
	ErrInsufficientBalance = errors.New("bank: insufficient balance")
	ErrInvalidAmount       = errors.New("bank: amount must be a positive integer")
)

// Ledger moves balances inside a store transaction.
type Ledger struct{}

// New returns a ledger.
func New() *Ledger { return &Ledger{} }

func balanceKey(owner model.Address, token string, nonce uint64) string {
	return fmt.Sprintf("balance:%s:%s:%d", owner, token, nonce)
}

// BalanceOf returns owner's balance of (token, nonce).
func (l *Ledger) BalanceOf(tx *store.Tx, owner model.Address, token string, nonce uint64) (decimal.Decimal, error) {
	return tx.GetAmount(balanceKey(owner, token, nonce))
}

// Credit mints p to owner. Used by the host to fund accounts.
func (l *Ledger) Credit(tx *store.Tx, owner model.Address, p model.Payment) error {
	if err := validAmount(p.Amount); err != nil {
		return err
	}
	key := balanceKey(owner, p.Token, p.Nonce)
	bal, err := tx.GetAmount(key)
	if err != nil {
		return err
	}
	tx.SetAmount(key, bal.Add(p.Amount))
	return nil
}

// Debit burns p from owner.
func (l *Ledger) Debit(tx *store.Tx, owner model.Address, p model.Payment) error {
	if err := validAmount(p.Amount); err != nil {
		return err
	}
	key := balanceKey(owner, p.Token, p.Nonce)
	bal, err := tx.GetAmount(key)
	if err != nil {
		return err
	}
	if bal.LessThan(p.Amount) {
		return fmt.Errorf("%w: %s holds %s %s-%d, needs %s",
			ErrInsufficientBalance, owner, bal, p.Token, p.Nonce, p.Amount)
	}
	tx.SetAmount(key, bal.Sub(p.Amount))
	return nil
}

// Transfer moves p from one account to another. A zero amount is a no-op.
func (l *Ledger) Transfer(tx *store.Tx, from, to model.Address, p model.Payment) error {
	if p.Amount.IsZero() {
		return nil
	}
	if err := l.Debit(tx, from, p); err != nil {
		return err
	}
	return l.Credit(tx, to, p)
}

// MultiTransfer moves several payments in one step.
func (l *Ledger) MultiTransfer(tx *store.Tx, from, to model.Address, payments []model.Payment) error {
	for _, p := range payments {
		if err := l.Transfer(tx, from, to, p); err != nil {
			return err
		}
	}
	return nil
}

func validAmount(v decimal.Decimal) error {
	if !v.IsPositive() || !v.IsInteger() {
		return fmt.Errorf("%w: %s", ErrInvalidAmount, v)
	}
	return nil
}
