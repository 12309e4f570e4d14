/**
 * @description
 * This file defines the core wallet models for the wallet-service. An Account is
 * the single wallet an agency holds with the platform. It carries two independent
 * gates: the credit line (may the agency book more services on credit?) and the
 * cash balance (can the agency settle its bills?).
 *
 * @notes
 * - Monetary values use shopspring/decimal rather than floats so arithmetic on
 *   balances is exact.
 * - BuyingPower is always derived, never stored; the stored pair is
 *   (credit_limit, unpaid_hold).
 */

package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Account is the single wallet for an agency. It maps to the `accounts` table.
type Account struct {
	ID          uuid.UUID       `json:"id"`
	AgencyID    uuid.UUID       `json:"agency_id"`
	Balance     decimal.Decimal `json:"balance"`      // real cash; a payment may never drive this below zero
	CreditLimit decimal.Decimal `json:"credit_limit"` // max total value of concurrently unpaid invoices
	UnpaidHold  decimal.Decimal `json:"unpaid_hold"`  // running sum of unpaid invoice totals
	CreatedAt   time.Time       `json:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at"`
}

// BuyingPower is Gate 1: how much more the agency may book on credit.
// It ignores the cash balance entirely.
func (a *Account) BuyingPower() decimal.Decimal {
	return a.CreditLimit.Sub(a.UnpaidHold)
}

// AccountStats aggregates the dashboard view of a wallet. It shows the agency
// exactly which gate is blocking them (cash vs volume).
type AccountStats struct {
	CashBalance        decimal.Decimal `json:"cash_balance"`
	CreditLimit        decimal.Decimal `json:"credit_limit"`
	UnpaidHold         decimal.Decimal `json:"unpaid_hold"`
	BuyingPower        decimal.Decimal `json:"buying_power"`
	UnpaidInvoiceCount int             `json:"unpaid_invoice_count"`
	TotalSpent         decimal.Decimal `json:"total_spent"`
}

// CreditLimitChange is one immutable audit row recording a credit limit update.
// It maps to the `credit_limit_history` table and is never mutated after insert.
type CreditLimitChange struct {
	ID        uuid.UUID       `json:"id"`
	AccountID uuid.UUID       `json:"account_id"`
	OldLimit  decimal.Decimal `json:"old_limit"`
	NewLimit  decimal.Decimal `json:"new_limit"`
	Reason    string          `json:"reason,omitempty"`
	ChangedBy *uuid.UUID      `json:"changed_by,omitempty"`
	CreatedAt time.Time       `json:"created_at"`
}
