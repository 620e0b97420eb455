package marketplace

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/atmx/settlement-engine/internal/events"
	"github.com/atmx/settlement-engine/internal/model"
)

// Deposit credits every attached payment to the caller's deposit pool.
func (e *Engine) Deposit(ctx context.Context, call Call) (*Receipt, error) {
	return e.run(ctx, "deposit", call, func(o *op) error {
		if len(o.call.Payments) == 0 {
			return fmt.Errorf("%w: nothing to deposit", ErrPaymentCount)
		}
		for _, p := range o.call.Payments {
			if err := e.pool.Deposit(o.tx, o.caller(), p); err != nil {
				return err
			}
			o.emit(events.TypeDeposit,
				"owner", o.caller().String(),
				"token", p.Token,
				"amount", p.Amount.String(),
			)
		}
		return nil
	})
}

// WithdrawDeposit pays amount of the caller's deposit back to the caller.
// A zero amount withdraws everything held in that currency.
func (e *Engine) WithdrawDeposit(ctx context.Context, call Call, tokenID string, nonce uint64, amount decimal.Decimal) (*Receipt, error) {
	return e.run(ctx, "withdraw_deposit", call, func(o *op) error {
		if err := o.expectPayments(0); err != nil {
			return err
		}
		p, err := e.pool.Withdraw(o.tx, o.caller(), tokenID, nonce, amount)
		if err != nil {
			return err
		}
		o.receipt.Delivered = append(o.receipt.Delivered, p)
		o.emit(events.TypeDepositWithdrawn,
			"owner", o.caller().String(),
			"token", p.Token,
			"amount", p.Amount.String(),
		)
		return nil
	})
}

// ClaimEscrowed pulls the caller's claimable balance in one currency to
// destination (the caller when zero).
func (e *Engine) ClaimEscrowed(ctx context.Context, call Call, tokenID string, nonce uint64, destination model.Address) (*Receipt, error) {
	return e.run(ctx, "claim", call, func(o *op) error {
		if err := o.expectPayments(0); err != nil {
			return err
		}
		p, err := e.escrow.Claim(o.tx, o.caller(), tokenID, nonce, destination)
		if err != nil {
			return err
		}
		o.receipt.Delivered = append(o.receipt.Delivered, p)
		o.emit(events.TypeEscrowClaimed,
			"recipient", o.caller().String(),
			"token", p.Token,
			"nonce", u64(p.Nonce),
			"amount", p.Amount.String(),
		)
		return nil
	})
}
