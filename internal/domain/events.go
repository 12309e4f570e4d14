/**
 * @description
 * This file defines the event payloads published to RabbitMQ after a financial
 * atomic unit commits. Events are the only channel between the ledger and the
 * notifier; they are emitted best-effort and their delivery can never affect
 * ledger state.
 */

package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Routing keys on the wallet events exchange.
const (
	EventExchange       = "wallet.events"
	RouteBalanceChanged = "wallet.balance_changed"
	RouteTopUpReviewed  = "wallet.topup_reviewed"
	RouteInvoiceSettled = "wallet.invoice_settled"
)

// BalanceChangedEvent is published after every committed balance mutation.
type BalanceChangedEvent struct {
	AccountID    uuid.UUID       `json:"account_id"`
	AgencyID     uuid.UUID       `json:"agency_id"`
	Type         TransactionType `json:"type"`
	Amount       decimal.Decimal `json:"amount"`
	BalanceAfter decimal.Decimal `json:"balance_after"`
	Reason       string          `json:"reason"`
	Timestamp    time.Time       `json:"timestamp"`
}

// TopUpReviewedEvent is published after a top-up request reaches a terminal state.
type TopUpReviewedEvent struct {
	TopUpID   uuid.UUID       `json:"top_up_id"`
	AccountID uuid.UUID       `json:"account_id"`
	AgencyID  uuid.UUID       `json:"agency_id"`
	Amount    decimal.Decimal `json:"amount"`
	Status    TopUpStatus     `json:"status"`
	Note      string          `json:"note,omitempty"`
	Timestamp time.Time       `json:"timestamp"`
}

// InvoiceSettledEvent is published after an invoice is paid or refunded.
type InvoiceSettledEvent struct {
	InvoiceID     uuid.UUID       `json:"invoice_id"`
	InvoiceNumber string          `json:"invoice_number"`
	AgencyID      uuid.UUID       `json:"agency_id"`
	Amount        decimal.Decimal `json:"amount"`
	Status        InvoiceStatus   `json:"status"`
	Timestamp     time.Time       `json:"timestamp"`
}
