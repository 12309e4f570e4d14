/**
 * @description
 * This file defines the data access contract for the wallet-service. The split
 * is deliberate: `Repository` carries plain reads plus `InTx`, and everything
 * that mutates money runs inside `InTx` against a `TxRepository`, whose row
 * reads take exclusive locks. Business logic stays in the app layer; this
 * package only knows rows and locks.
 *
 * @dependencies
 * - context, time: Standard Go libraries.
 * - github.com/google/uuid: For identifiers.
 * - github.com/shopspring/decimal: For monetary amounts.
 * - internal/domain: For the service's domain models.
 */

package store

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/easybooking/wallet-service/internal/domain"
)

var (
	ErrAccountNotFound = errors.New("account not found")
	ErrInvoiceNotFound = errors.New("invoice not found")
	ErrTopUpNotFound   = errors.New("top-up request not found")
)

// Repository defines the set of methods for interacting with the database.
type Repository interface {
	// InTx runs fn inside a single database transaction. The transaction
	// commits iff fn returns nil. Row locks taken through the TxRepository are
	// held until then. This is the engine's only atomic unit.
	InTx(ctx context.Context, fn func(tx TxRepository) error) error

	// Account reads. GetOrCreateAccountByAgency is the self-healing path: an
	// agency's wallet is created lazily on first need and never deleted.
	GetOrCreateAccountByAgency(ctx context.Context, agencyID uuid.UUID) (*domain.Account, error)
	FindAccountByID(ctx context.Context, accountID uuid.UUID) (*domain.Account, error)
	FindAccountByAgencyID(ctx context.Context, agencyID uuid.UUID) (*domain.Account, error)

	// Invoice reads.
	FindInvoiceByID(ctx context.Context, invoiceID uuid.UUID) (*domain.Invoice, error)
	ListInvoices(ctx context.Context, filter domain.InvoiceFilter) ([]domain.Invoice, error)
	CountUnpaidInvoices(ctx context.Context, agencyID uuid.UUID) (int, error)

	// Ledger reads.
	ListTransactions(ctx context.Context, accountID uuid.UUID, filter domain.LedgerFilter) ([]domain.Transaction, error)
	SumTransactionsByType(ctx context.Context, accountID uuid.UUID, txType domain.TransactionType) (decimal.Decimal, error)

	// Top-up workflow.
	CreateTopUpRequest(ctx context.Context, req *domain.TopUpRequest) error
	FindTopUpByID(ctx context.Context, topUpID uuid.UUID) (*domain.TopUpRequest, error)
	ListTopUpRequests(ctx context.Context, filter domain.TopUpFilter) ([]domain.TopUpRequest, error)
}

// TxRepository is the transaction-scoped view of the store. All Lock* reads
// acquire `FOR UPDATE` row locks that are held until the surrounding InTx
// commits or rolls back. Lock order is fixed: invoice before account.
type TxRepository interface {
	LockAccount(ctx context.Context, accountID uuid.UUID) (*domain.Account, error)
	LockAccountByAgency(ctx context.Context, agencyID uuid.UUID) (*domain.Account, error)

	// UpdateAccountBalances persists balance and unpaid_hold for a previously
	// locked account row.
	UpdateAccountBalances(ctx context.Context, account *domain.Account) error

	// SetCreditLimit writes the new limit and appends the audit history row in
	// one step, so no code path can change the limit without a trail.
	SetCreditLimit(ctx context.Context, account *domain.Account, newLimit decimal.Decimal, changedBy *uuid.UUID, reason string) error

	// InsertTransaction appends one immutable ledger row, filling ID and
	// CreatedAt on the passed struct.
	InsertTransaction(ctx context.Context, tx *domain.Transaction) error

	LockInvoice(ctx context.Context, invoiceID uuid.UUID) (*domain.Invoice, error)
	// LockUnpaidInvoicesByAgency returns the agency's unpaid invoices oldest
	// first, each locked.
	LockUnpaidInvoicesByAgency(ctx context.Context, agencyID uuid.UUID) ([]domain.Invoice, error)
	// LockInvoices locks the given invoices in a deterministic (creation)
	// order and returns them in that order.
	LockInvoices(ctx context.Context, invoiceIDs []uuid.UUID) ([]domain.Invoice, error)

	// InsertInvoice persists a new header plus its items, assigning the
	// invoice number.
	InsertInvoice(ctx context.Context, invoice *domain.Invoice) error
	UpdateInvoiceStatus(ctx context.Context, invoiceID uuid.UUID, status domain.InvoiceStatus, paidAt *time.Time) error

	LockTopUp(ctx context.Context, topUpID uuid.UUID) (*domain.TopUpRequest, error)
	UpdateTopUpReview(ctx context.Context, req *domain.TopUpRequest) error
}
