/**
 * @description
 * This file defines the error taxonomy of the wallet engine. Input validation
 * kinds are rejected before any row lock is taken; state-machine kinds signal
 * a race or a caller bug; the two funds kinds are recoverable, user-facing
 * conditions and carry enough detail for the UI to direct the agency to the
 * right remedy (top up cash vs raise the credit line).
 */

package app

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

var (
	// Input validation, rejected before any lock is taken.
	ErrEmptyInvoice           = errors.New("cannot create an empty invoice")
	ErrEmptyBatch             = errors.New("no invoices to pay")
	ErrInvalidAmount          = errors.New("amount must be strictly positive")
	ErrInvalidLimit           = errors.New("credit limit cannot be negative")
	ErrInvalidTransactionType = errors.New("invalid transaction type")
	ErrMixedAgency            = errors.New("invoices belong to more than one agency")

	// State machine guards.
	ErrAlreadySettled         = errors.New("invoice is no longer unpaid")
	ErrInvalidStateTransition = errors.New("illegal invoice state transition")
	ErrNotRefundable          = errors.New("only paid invoices can be refunded")
	ErrNotPending             = errors.New("top-up request has already been reviewed")

	// Abuse guard on top-up submission.
	ErrTooManyTopUpRequests = errors.New("too many top-up requests, try again later")
)

// InsufficientFundsError is returned by the transaction engine when a spending
// amount would drive the cash balance below zero.
type InsufficientFundsError struct {
	Balance   decimal.Decimal
	Attempted decimal.Decimal
}

func (e *InsufficientFundsError) Error() string {
	return fmt.Sprintf("insufficient funds: current balance %s, attempted charge %s",
		e.Balance.StringFixed(2), e.Attempted.StringFixed(2))
}

// InsufficientCashError is the Gate 2 failure: the account's real cash cannot
// cover an invoice (or batch) total. The credit limit is irrelevant here.
type InsufficientCashError struct {
	Balance  decimal.Decimal
	Required decimal.Decimal
}

func (e *InsufficientCashError) Error() string {
	return fmt.Sprintf("insufficient balance: missing %s", e.Missing().StringFixed(2))
}

// Missing is the shortfall the agency must top up.
func (e *InsufficientCashError) Missing() decimal.Decimal {
	return e.Required.Sub(e.Balance)
}

// CreditLimitExceededError is the Gate 1 failure: the agency's remaining
// buying power cannot absorb a new invoice. The cash balance is irrelevant here.
type CreditLimitExceededError struct {
	Available decimal.Decimal
	Required  decimal.Decimal
}

func (e *CreditLimitExceededError) Error() string {
	return fmt.Sprintf("credit limit reached: available volume %s, required %s",
		e.Available.StringFixed(2), e.Required.StringFixed(2))
}
