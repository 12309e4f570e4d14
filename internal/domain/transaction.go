/**
 * @description
 * This file defines the ledger models. A Transaction is one immutable row in an
 * account's ledger: the signed amount that moved, the balance snapshot right
 * after the move, and the references explaining why the money moved.
 *
 * @notes
 * - Rows are append-only. For any account, replaying the amounts in creation
 *   order from zero must reproduce the current balance, and each row's
 *   BalanceAfter is the running sum at that point.
 */

package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// TransactionType classifies a ledger row.
type TransactionType string

const (
	TransactionDeposit    TransactionType = "deposit"    // money in (top-up)
	TransactionPayment    TransactionType = "payment"    // money out (invoice settlement)
	TransactionRefund     TransactionType = "refund"     // money back
	TransactionAdjustment TransactionType = "adjustment" // manual correction, sign as given
)

// Valid reports whether t is one of the known ledger row types.
func (t TransactionType) Valid() bool {
	switch t {
	case TransactionDeposit, TransactionPayment, TransactionRefund, TransactionAdjustment:
		return true
	}
	return false
}

// ServiceRef is a tagged reference to the booking record that caused a charge
// (a ferry crossing, a visa application, or a future service type). The engine
// never dereferences it; callers resolve it in their own domain.
type ServiceRef struct {
	Kind string `json:"kind"` // e.g. "ferry", "visa"
	ID   int64  `json:"id"`
}

// IsZero reports whether the reference is unset.
func (r ServiceRef) IsZero() bool { return r.Kind == "" && r.ID == 0 }

// Transaction is one immutable ledger row. It maps to the `transactions` table.
type Transaction struct {
	ID           uuid.UUID       `json:"id"`
	AccountID    uuid.UUID       `json:"account_id"`
	Type         TransactionType `json:"transaction_type"`
	Amount       decimal.Decimal `json:"amount"`        // signed
	BalanceAfter decimal.Decimal `json:"balance_after"` // snapshot of the account balance after this row
	Description  string          `json:"description"`
	InvoiceID    *uuid.UUID      `json:"invoice_id,omitempty"`
	TopUpID      *uuid.UUID      `json:"top_up_id,omitempty"`
	Service      ServiceRef      `json:"service,omitempty"`
	CreatedBy    *uuid.UUID      `json:"created_by,omitempty"`
	CreatedAt    time.Time       `json:"created_at"`

	// Denormalized references resolved by list queries for display purposes;
	// never written back.
	InvoiceNumber  *string `json:"invoice_number,omitempty"`
	TopUpReference *string `json:"top_up_reference,omitempty"`
}

// Reference returns the human-facing reference explaining the row, or "-".
func (t *Transaction) Reference() string {
	if t.InvoiceNumber != nil && *t.InvoiceNumber != "" {
		return *t.InvoiceNumber
	}
	if t.TopUpReference != nil && *t.TopUpReference != "" {
		return *t.TopUpReference
	}
	return "-"
}

// LedgerFilter narrows a transaction history query. Zero values mean "no
// constraint". Search matches the description, the linked invoice number and
// the linked top-up reference, and an exact amount when the term is numeric.
type LedgerFilter struct {
	Type      TransactionType
	Search    string
	StartDate *time.Time
	EndDate   *time.Time
	Limit     int
}

// StatementRow is one line of an exported account statement, with the amount
// split into credit/debit columns and the running balance preserved.
type StatementRow struct {
	Date        time.Time       `json:"date"`
	Reference   string          `json:"reference"`
	Description string          `json:"description"`
	Credit      decimal.Decimal `json:"credit"`
	Debit       decimal.Decimal `json:"debit"`
	Balance     decimal.Decimal `json:"balance"`
	Type        TransactionType `json:"type"`
}

// StatementSummary heads an exported statement.
type StatementSummary struct {
	AgencyID       uuid.UUID       `json:"agency_id"`
	PeriodStart    *time.Time      `json:"period_start,omitempty"`
	PeriodEnd      *time.Time      `json:"period_end,omitempty"`
	TotalDeposited decimal.Decimal `json:"total_deposited"`
	TotalSpent     decimal.Decimal `json:"total_spent"`
	ClosingBalance decimal.Decimal `json:"closing_balance"`
}
