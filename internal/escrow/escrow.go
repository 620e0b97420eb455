// Package escrow routes outgoing payments. Smart-contract recipients that
// are not whitelisted may reject a push transfer, so value owed to them is
// parked as a claimable balance instead. Ordinary accounts and whitelisted
// contracts are paid directly.
package escrow

import (
	"errors"
	"fmt"
	"strconv"

	"github.com/shopspring/decimal"

	"github.com/atmx/settlement-engine/internal/host"
	"github.com/atmx/settlement-engine/internal/metrics"
	"github.com/atmx/settlement-engine/internal/model"
	"github.com/atmx/settlement-engine/internal/store"
)

var (
	ErrNothingToClaim = errors.New("escrow: nothing to claim")
	ErrInvalidAmount  = errors.New("escrow: amount must be a positive integer")
)

const (
	whitelistSet  = "escrow:whitelist"
	recipientsSet = "claimable:recipients"
)

func tokensSet(addr model.Address) string { return "claimable:tokens:" + addr.String() }

func noncesSet(addr model.Address, token string) string {
	return "claimable:nonces:" + addr.String() + ":" + token
}

func balanceKey(addr model.Address, token string, nonce uint64) string {
	return fmt.Sprintf("claimable:%s:%s:%d", addr, token, nonce)
}

// Ledger is the transfer primitive.
type Ledger interface {
	Transfer(tx *store.Tx, from, to model.Address, p model.Payment) error
}

// Service pays out of the custody account.
type Service struct {
	ledger  Ledger
	oracle  host.AccountOracle
	custody model.Address
}

// NewService returns a payment router over custody.
func NewService(ledger Ledger, oracle host.AccountOracle, custody model.Address) *Service {
	return &Service{ledger: ledger, oracle: oracle, custody: custody}
}

// Custody returns the account the service pays from.
func (s *Service) Custody() model.Address { return s.custody }

// IsWhitelisted reports whether a contract recipient accepts direct transfers.
func (s *Service) IsWhitelisted(tx *store.Tx, addr model.Address) (bool, error) {
	return tx.IsMember(whitelistSet, addr.String())
}

// Whitelisted lists every whitelisted contract.
func (s *Service) Whitelisted(tx *store.Tx) ([]model.Address, error) {
	members, err := tx.Members(whitelistSet)
	if err != nil {
		return nil, err
	}
	out := make([]model.Address, 0, len(members))
	for _, m := range members {
		addr, err := model.ParseAddress(m)
		if err != nil {
			return nil, err
		}
		out = append(out, addr)
	}
	return out, nil
}

func (s *Service) mustEscrow(tx *store.Tx, to model.Address) (bool, error) {
	if !s.oracle.IsSmartContract(to) {
		return false, nil
	}
	ok, err := s.IsWhitelisted(tx, to)
	return !ok, err
}

// Pay sends p to the recipient, or credits it as claimable when the
// recipient is a non-whitelisted contract. Zero payments are skipped. It
// reports whether the payment was escrowed.
func (s *Service) Pay(tx *store.Tx, to model.Address, p model.Payment) (bool, error) {
	if p.Amount.IsZero() {
		return false, nil
	}
	escrow, err := s.mustEscrow(tx, to)
	if err != nil {
		return false, err
	}
	if !escrow {
		return false, s.ledger.Transfer(tx, s.custody, to, p)
	}
	if err := s.credit(tx, to, p); err != nil {
		return false, err
	}
	metrics.EscrowedPayments.Inc()
	return true, nil
}

// PayAll delivers several payments to one recipient.
func (s *Service) PayAll(tx *store.Tx, to model.Address, payments []model.Payment) (bool, error) {
	escrowed := false
	for _, p := range payments {
		e, err := s.Pay(tx, to, p)
		if err != nil {
			return escrowed, err
		}
		escrowed = escrowed || e
	}
	return escrowed, nil
}

func (s *Service) credit(tx *store.Tx, to model.Address, p model.Payment) error {
	if !p.Amount.IsPositive() || !p.Amount.IsInteger() {
		return fmt.Errorf("%w: %s", ErrInvalidAmount, p.Amount)
	}
	key := balanceKey(to, p.Token, p.Nonce)
	bal, err := tx.GetAmount(key)
	if err != nil {
		return err
	}
	tx.SetAmount(key, bal.Add(p.Amount))
	tx.AddMember(recipientsSet, to.String())
	tx.AddMember(tokensSet(to), p.Token)
	tx.AddMember(noncesSet(to, p.Token), strconv.FormatUint(p.Nonce, 10))
	return nil
}

// Claimable returns the amount held for addr in (token, nonce).
func (s *Service) Claimable(tx *store.Tx, addr model.Address, token string, nonce uint64) (decimal.Decimal, error) {
	return tx.GetAmount(balanceKey(addr, token, nonce))
}

// Balances lists every claimable balance held for addr.
func (s *Service) Balances(tx *store.Tx, addr model.Address) ([]model.ClaimableBalance, error) {
	tokens, err := tx.Members(tokensSet(addr))
	if err != nil {
		return nil, err
	}
	var out []model.ClaimableBalance
	for _, token := range tokens {
		nonces, err := tx.Members(noncesSet(addr, token))
		if err != nil {
			return nil, err
		}
		for _, raw := range nonces {
			nonce, err := strconv.ParseUint(raw, 10, 64)
			if err != nil {
				return nil, fmt.Errorf("escrow: corrupt nonce %q for %s", raw, addr)
			}
			amount, err := s.Claimable(tx, addr, token, nonce)
			if err != nil {
				return nil, err
			}
			if amount.IsZero() {
				continue
			}
			out = append(out, model.ClaimableBalance{Recipient: addr, Token: token, Nonce: nonce, Amount: amount})
		}
	}
	return out, nil
}

// Recipients lists every address with an outstanding claimable balance.
func (s *Service) Recipients(tx *store.Tx) ([]model.Address, error) {
	members, err := tx.Members(recipientsSet)
	if err != nil {
		return nil, err
	}
	out := make([]model.Address, 0, len(members))
	for _, m := range members {
		addr, err := model.ParseAddress(m)
		if err != nil {
			return nil, err
		}
		out = append(out, addr)
	}
	return out, nil
}

// Claim pays the whole (token, nonce) balance of caller to destination and
// clears it. A zero destination means the caller itself.
func (s *Service) Claim(tx *store.Tx, caller model.Address, token string, nonce uint64, destination model.Address) (model.Payment, error) {
	amount, err := s.Claimable(tx, caller, token, nonce)
	if err != nil {
		return model.Payment{}, err
	}
	if amount.IsZero() {
		return model.Payment{}, fmt.Errorf("%w: %s %s-%d", ErrNothingToClaim, caller, token, nonce)
	}
	if destination.IsZero() {
		destination = caller
	}
	s.clear(tx, caller, token, nonce)
	if err := s.prune(tx, caller); err != nil {
		return model.Payment{}, err
	}

	p := model.Payment{Token: token, Nonce: nonce, Amount: amount}
	if err := s.ledger.Transfer(tx, s.custody, destination, p); err != nil {
		return model.Payment{}, err
	}
	metrics.EscrowClaims.Inc()
	return p, nil
}

func (s *Service) clear(tx *store.Tx, addr model.Address, token string, nonce uint64) {
	tx.SetAmount(balanceKey(addr, token, nonce), decimal.Zero)
	tx.RemoveMember(noncesSet(addr, token), strconv.FormatUint(nonce, 10))
}

// prune drops the token and recipient index entries once they are empty.
func (s *Service) prune(tx *store.Tx, addr model.Address) error {
	tokens, err := tx.Members(tokensSet(addr))
	if err != nil {
		return err
	}
	for _, token := range tokens {
		nonces, err := tx.Members(noncesSet(addr, token))
		if err != nil {
			return err
		}
		if len(nonces) == 0 {
			tx.RemoveMember(tokensSet(addr), token)
		}
	}
	remaining, err := tx.Members(tokensSet(addr))
	if err != nil {
		return err
	}
	if len(remaining) == 0 {
		tx.RemoveMember(recipientsSet, addr.String())
	}
	return nil
}

// Whitelist marks a contract as safe for direct transfers and flushes every
// balance already held for it. It returns the flushed balances.
func (s *Service) Whitelist(tx *store.Tx, addr model.Address) ([]model.ClaimableBalance, error) {
	tx.AddMember(whitelistSet, addr.String())

	held, err := s.Balances(tx, addr)
	if err != nil {
		return nil, err
	}
	for _, b := range held {
		s.clear(tx, addr, b.Token, b.Nonce)
		p := model.Payment{Token: b.Token, Nonce: b.Nonce, Amount: b.Amount}
		if err := s.ledger.Transfer(tx, s.custody, addr, p); err != nil {
			return nil, err
		}
	}
	if err := s.prune(tx, addr); err != nil {
		return nil, err
	}
	return held, nil
}

// RemoveWhitelist makes future payments to addr escrowed again.
func (s *Service) RemoveWhitelist(tx *store.Tx, addr model.Address) {
	tx.RemoveMember(whitelistSet, addr.String())
}
