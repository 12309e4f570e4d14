package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// TopUpStatus is the review state of a deposit request. Approved and rejected
// are terminal; a request is never re-reviewed.
type TopUpStatus string

const (
	TopUpPending  TopUpStatus = "pending"
	TopUpApproved TopUpStatus = "approved"
	TopUpRejected TopUpStatus = "rejected"
)

// TopUpRequest is an agent-submitted deposit request backed by a payment proof
// (bank receipt). Staff review it; approval drives a deposit through the
// transaction engine. It maps to the `top_up_requests` table.
type TopUpRequest struct {
	ID              uuid.UUID       `json:"id"`
	AccountID       uuid.UUID       `json:"account_id"`
	Amount          decimal.Decimal `json:"amount"`
	ReceiptURL      string          `json:"receipt_url"`
	ReferenceNumber string          `json:"reference_number,omitempty"` // bank ref / CCP
	Status          TopUpStatus     `json:"status"`
	AdminNote       string          `json:"admin_note,omitempty"`
	ReviewedBy      *uuid.UUID      `json:"reviewed_by,omitempty"`
	ReviewedAt      *time.Time      `json:"reviewed_at,omitempty"`
	CreatedAt       time.Time       `json:"created_at"`
}

// TopUpFilter narrows a top-up request listing.
type TopUpFilter struct {
	AccountID *uuid.UUID
	Status    TopUpStatus
	Limit     int
}
