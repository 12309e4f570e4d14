/**
 * @description
 * This file defines the invoice models. An Invoice is the bill header created
 * against an agency's credit line; its InvoiceItem rows carry the individual
 * service charges. Invoices move through a strict state machine:
 *
 *   unpaid -> paid       (settled with cash)
 *   unpaid -> cancelled  (hold released, no cash moved)
 *   paid   -> refunded   (cash returned)
 *
 * No other transition is legal.
 */

package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// InvoiceStatus is the lifecycle state of an invoice.
type InvoiceStatus string

const (
	InvoiceUnpaid    InvoiceStatus = "unpaid"
	InvoicePaid      InvoiceStatus = "paid"
	InvoiceCancelled InvoiceStatus = "cancelled"
	InvoiceRefunded  InvoiceStatus = "refunded"
)

// Invoice is the bill header. It maps to the `invoices` table.
type Invoice struct {
	ID            uuid.UUID       `json:"id"`
	InvoiceNumber string          `json:"invoice_number"`
	AgencyID      uuid.UUID       `json:"agency_id"`
	TotalAmount   decimal.Decimal `json:"total_amount"`
	Status        InvoiceStatus   `json:"status"`
	DueDate       *time.Time      `json:"due_date,omitempty"`
	PaidAt        *time.Time      `json:"paid_at,omitempty"`
	CreatedBy     *uuid.UUID      `json:"created_by,omitempty"`
	CreatedAt     time.Time       `json:"created_at"`
	Items         []InvoiceItem   `json:"items,omitempty"`
}

// InvoiceItem is one line of an invoice, optionally linked to the service
// record that produced the charge.
type InvoiceItem struct {
	ID          uuid.UUID       `json:"id"`
	InvoiceID   uuid.UUID       `json:"invoice_id"`
	Description string          `json:"description"`
	Amount      decimal.Decimal `json:"amount"`
	Service     ServiceRef      `json:"service,omitempty"`
}

// InvoiceItemInput is the caller-supplied shape for a new invoice line.
type InvoiceItemInput struct {
	Description string          `json:"description"`
	Amount      decimal.Decimal `json:"amount"`
	Service     ServiceRef      `json:"service,omitempty"`
}

// InvoiceFilter narrows an invoice listing. Zero values mean "no constraint".
// Search matches the invoice number and item descriptions.
type InvoiceFilter struct {
	AgencyID      *uuid.UUID
	CreatedBy     *uuid.UUID
	Status        InvoiceStatus
	Search        string
	ServiceKind   string
	MinAmount     *decimal.Decimal
	MaxAmount     *decimal.Decimal
	CreatedAfter  *time.Time
	CreatedBefore *time.Time
	PaidAfter     *time.Time
	PaidBefore    *time.Time
	DueDate       *time.Time
	Limit         int
}

// BulkPaymentResult summarizes an all-or-nothing batch settlement.
type BulkPaymentResult struct {
	PaidCount int             `json:"paid_count"`
	TotalPaid decimal.Decimal `json:"total_paid"`
	Invoices  []*Invoice      `json:"invoices"`
}
