/**
 * @description
 * This file contains the core of the wallet engine: the Service struct, the
 * single money-moving chokepoint (ExecuteTransaction), credit limit
 * administration and the account-facing query surface (stats, solvency,
 * ledger, statements). Invoice lifecycle and the top-up workflow live in
 * sibling files of this package and funnel every balance mutation through the
 * same internal apply path.
 *
 * Key invariants enforced here:
 * - Every balance write happens on a row previously locked via the store's
 *   TxRepository, inside a single InTx atomic unit.
 * - Every balance write appends exactly one immutable ledger row whose
 *   balance_after equals the balance just written.
 * - Events are published only after the atomic unit commits; publish failures
 *   are logged and swallowed.
 *
 * @dependencies
 * - context, errors, fmt, log, time: Standard Go libraries.
 * - github.com/google/uuid: For UUID handling.
 * - github.com/shopspring/decimal: Exact money arithmetic.
 * - internal/domain, internal/store: Domain models and data access.
 * - pkg/rabbitmq: Post-commit event publishing.
 */

package app

import (
	"context"
	"log"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/easybooking/wallet-service/internal/domain"
	"github.com/easybooking/wallet-service/internal/store"
	"github.com/easybooking/wallet-service/pkg/rabbitmq"
)

// RateLimiter bounds how often an agency may submit top-up requests.
type RateLimiter interface {
	Allow(ctx context.Context, key string, limitPerHour int) (bool, error)
}

// Service provides the core business logic of the wallet and ledger engine.
type Service struct {
	repo   store.Repository
	events rabbitmq.Publisher

	topUpLimiter  RateLimiter
	topUpsPerHour int
}

// NewService creates a new wallet service instance. producer may be nil when
// RabbitMQ is unavailable; the engine then skips event publishing.
func NewService(repo store.Repository, producer rabbitmq.Publisher) *Service {
	return &Service{
		repo:   repo,
		events: producer,
	}
}

// SetTopUpRateLimiter installs an optional submission rate limit for top-up
// requests.
func (s *Service) SetTopUpRateLimiter(limiter RateLimiter, perHour int) {
	s.topUpLimiter = limiter
	s.topUpsPerHour = perHour
}

// TransactionLinks carries the optional references explaining a ledger row.
type TransactionLinks struct {
	InvoiceID *uuid.UUID
	TopUpID   *uuid.UUID
	Service   domain.ServiceRef
}

// ---------------------------------------------------------------------------
// The transaction engine
// ---------------------------------------------------------------------------

// ExecuteTransaction is the single source of truth for moving money on an
// account. It locks the account row, applies the type-signed amount, and
// appends the ledger row, all in one atomic unit. Deposits and refunds force a
// positive sign, payments force a negative sign, adjustments keep the caller's
// sign verbatim.
func (s *Service) ExecuteTransaction(
	ctx context.Context,
	accountID uuid.UUID,
	amount decimal.Decimal,
	txType domain.TransactionType,
	description string,
	actor *uuid.UUID,
	links TransactionLinks,
) (*domain.Transaction, error) {
	var (
		row     *domain.Transaction
		account *domain.Account
	)
	err := s.repo.InTx(ctx, func(tx store.TxRepository) error {
		var err error
		account, err = tx.LockAccount(ctx, accountID)
		if err != nil {
			return err
		}
		row, err = s.applyTransaction(ctx, tx, account, amount, txType, description, actor, links)
		return err
	})
	if err != nil {
		return nil, err
	}

	s.publishBalanceChanged(ctx, account, row)
	return row, nil
}

// applyTransaction mutates a locked account's cash balance and appends the
// matching ledger row. It must be called with the account row already locked
// inside an open atomic unit; invoice settlement and top-up approval share it
// so their balance write and ledger row land in the caller's transaction.
func (s *Service) applyTransaction(
	ctx context.Context,
	tx store.TxRepository,
	account *domain.Account,
	amount decimal.Decimal,
	txType domain.TransactionType,
	description string,
	actor *uuid.UUID,
	links TransactionLinks,
) (*domain.Transaction, error) {
	signed, err := signedAmount(amount, txType)
	if err != nil {
		return nil, err
	}

	// Strict cash rule: spending may never drive the balance below zero.
	// Deposits and refunds are never rejected for funds reasons.
	if signed.IsNegative() && account.Balance.Add(signed).IsNegative() {
		return nil, &InsufficientFundsError{Balance: account.Balance, Attempted: signed.Abs()}
	}

	account.Balance = account.Balance.Add(signed)
	if err := tx.UpdateAccountBalances(ctx, account); err != nil {
		return nil, err
	}

	row := &domain.Transaction{
		AccountID:    account.ID,
		Type:         txType,
		Amount:       signed,
		BalanceAfter: account.Balance,
		Description:  description,
		InvoiceID:    links.InvoiceID,
		TopUpID:      links.TopUpID,
		Service:      links.Service,
		CreatedBy:    actor,
	}
	if err := tx.InsertTransaction(ctx, row); err != nil {
		return nil, err
	}
	return row, nil
}

// signedAmount resolves the effective signed amount for a ledger row type.
func signedAmount(amount decimal.Decimal, txType domain.TransactionType) (decimal.Decimal, error) {
	switch txType {
	case domain.TransactionDeposit, domain.TransactionRefund:
		return amount.Abs(), nil
	case domain.TransactionPayment:
		return amount.Abs().Neg(), nil
	case domain.TransactionAdjustment:
		return amount, nil
	default:
		return decimal.Zero, ErrInvalidTransactionType
	}
}

// ---------------------------------------------------------------------------
// Credit limit administration
// ---------------------------------------------------------------------------

// UpdateCreditLimit sets a new credit line for the account. The audit history
// row is written by the store in the same atomic unit as the limit itself, so
// no path can change the limit silently.
func (s *Service) UpdateCreditLimit(ctx context.Context, accountID uuid.UUID, newLimit decimal.Decimal, admin *uuid.UUID, reason string) (*domain.Account, error) {
	if newLimit.IsNegative() {
		return nil, ErrInvalidLimit
	}

	var account *domain.Account
	err := s.repo.InTx(ctx, func(tx store.TxRepository) error {
		var err error
		account, err = tx.LockAccount(ctx, accountID)
		if err != nil {
			return err
		}
		if account.CreditLimit.Equal(newLimit) {
			return nil
		}
		return tx.SetCreditLimit(ctx, account, newLimit, admin, reason)
	})
	if err != nil {
		return nil, err
	}
	return account, nil
}

// ---------------------------------------------------------------------------
// Accounts, stats and reporting
// ---------------------------------------------------------------------------

// GetAccount returns the agency's wallet, creating it lazily on first need.
func (s *Service) GetAccount(ctx context.Context, agencyID uuid.UUID) (*domain.Account, error) {
	return s.repo.GetOrCreateAccountByAgency(ctx, agencyID)
}

// CheckSolvency is the Gate 1 pre-check used by booking forms: does the
// agency's remaining buying power cover the quoted amount? Cash is ignored.
func (s *Service) CheckSolvency(ctx context.Context, agencyID uuid.UUID, amountNeeded decimal.Decimal) (bool, error) {
	account, err := s.repo.GetOrCreateAccountByAgency(ctx, agencyID)
	if err != nil {
		return false, err
	}
	return account.BuyingPower().GreaterThanOrEqual(amountNeeded), nil
}

// GetAccountStats aggregates the dashboard view: both gates side by side plus
// the unpaid invoice count and lifetime spend.
func (s *Service) GetAccountStats(ctx context.Context, agencyID uuid.UUID) (*domain.AccountStats, error) {
	account, err := s.repo.GetOrCreateAccountByAgency(ctx, agencyID)
	if err != nil {
		return nil, err
	}
	unpaidCount, err := s.repo.CountUnpaidInvoices(ctx, account.AgencyID)
	if err != nil {
		return nil, err
	}
	totalSpent, err := s.repo.SumTransactionsByType(ctx, account.ID, domain.TransactionPayment)
	if err != nil {
		return nil, err
	}

	return &domain.AccountStats{
		CashBalance:        account.Balance,
		CreditLimit:        account.CreditLimit,
		UnpaidHold:         account.UnpaidHold,
		BuyingPower:        account.BuyingPower(),
		UnpaidInvoiceCount: unpaidCount,
		TotalSpent:         totalSpent.Abs(),
	}, nil
}

// ListTransactions returns the filtered ledger for an agency's account.
func (s *Service) ListTransactions(ctx context.Context, agencyID uuid.UUID, filter domain.LedgerFilter) ([]domain.Transaction, error) {
	account, err := s.repo.GetOrCreateAccountByAgency(ctx, agencyID)
	if err != nil {
		return nil, err
	}
	return s.repo.ListTransactions(ctx, account.ID, filter)
}

// ListInvoices returns the filtered invoice listing.
func (s *Service) ListInvoices(ctx context.Context, filter domain.InvoiceFilter) ([]domain.Invoice, error) {
	return s.repo.ListInvoices(ctx, filter)
}

// GetInvoice returns one invoice with its items.
func (s *Service) GetInvoice(ctx context.Context, invoiceID uuid.UUID) (*domain.Invoice, error) {
	return s.repo.FindInvoiceByID(ctx, invoiceID)
}

// AccountStatement prepares statement export data: a summary with totals in
// and out, plus one row per ledger entry (newest first) with the amount split
// into credit/debit columns and the preserved running balance.
func (s *Service) AccountStatement(ctx context.Context, agencyID uuid.UUID, start, end *time.Time) (*domain.StatementSummary, []domain.StatementRow, error) {
	account, err := s.repo.GetOrCreateAccountByAgency(ctx, agencyID)
	if err != nil {
		return nil, nil, err
	}

	transactions, err := s.repo.ListTransactions(ctx, account.ID, domain.LedgerFilter{
		StartDate: start,
		EndDate:   end,
		Limit:     10_000,
	})
	if err != nil {
		return nil, nil, err
	}

	totalIn := decimal.Zero
	totalOut := decimal.Zero
	rows := make([]domain.StatementRow, 0, len(transactions))
	for i := range transactions {
		t := &transactions[i]
		row := domain.StatementRow{
			Date:        t.CreatedAt,
			Reference:   t.Reference(),
			Description: t.Description,
			Balance:     t.BalanceAfter,
			Type:        t.Type,
		}
		if t.Amount.IsPositive() {
			totalIn = totalIn.Add(t.Amount)
			row.Credit = t.Amount
		} else {
			totalOut = totalOut.Add(t.Amount.Abs())
			row.Debit = t.Amount.Abs()
		}
		rows = append(rows, row)
	}

	summary := &domain.StatementSummary{
		AgencyID:       account.AgencyID,
		PeriodStart:    start,
		PeriodEnd:      end,
		TotalDeposited: totalIn,
		TotalSpent:     totalOut,
		ClosingBalance: account.Balance,
	}
	return summary, rows, nil
}

// ---------------------------------------------------------------------------
// Post-commit event publishing
// ---------------------------------------------------------------------------

// publishBalanceChanged emits the wallet event for a committed ledger row.
// Failures are logged and swallowed: notification delivery can never affect
// ledger state.
func (s *Service) publishBalanceChanged(ctx context.Context, account *domain.Account, row *domain.Transaction) {
	if s.events == nil || row == nil {
		return
	}
	event := domain.BalanceChangedEvent{
		AccountID:    account.ID,
		AgencyID:     account.AgencyID,
		Type:         row.Type,
		Amount:       row.Amount,
		BalanceAfter: row.BalanceAfter,
		Reason:       row.Description,
		Timestamp:    time.Now().UTC(),
	}
	if err := s.events.Publish(ctx, domain.EventExchange, domain.RouteBalanceChanged, event); err != nil {
		log.Printf("level=error component=wallet_engine msg=\"balance event publish failed\" account_id=%s err=%v", account.ID, err)
	}
}

func (s *Service) publishInvoiceSettled(ctx context.Context, invoice *domain.Invoice) {
	if s.events == nil {
		return
	}
	event := domain.InvoiceSettledEvent{
		InvoiceID:     invoice.ID,
		InvoiceNumber: invoice.InvoiceNumber,
		AgencyID:      invoice.AgencyID,
		Amount:        invoice.TotalAmount,
		Status:        invoice.Status,
		Timestamp:     time.Now().UTC(),
	}
	if err := s.events.Publish(ctx, domain.EventExchange, domain.RouteInvoiceSettled, event); err != nil {
		log.Printf("level=error component=wallet_engine msg=\"invoice event publish failed\" invoice=%s err=%v", invoice.InvoiceNumber, err)
	}
}

func (s *Service) publishTopUpReviewed(ctx context.Context, account *domain.Account, req *domain.TopUpRequest) {
	if s.events == nil {
		return
	}
	event := domain.TopUpReviewedEvent{
		TopUpID:   req.ID,
		AccountID: req.AccountID,
		AgencyID:  account.AgencyID,
		Amount:    req.Amount,
		Status:    req.Status,
		Note:      req.AdminNote,
		Timestamp: time.Now().UTC(),
	}
	if err := s.events.Publish(ctx, domain.EventExchange, domain.RouteTopUpReviewed, event); err != nil {
		log.Printf("level=error component=wallet_engine msg=\"top-up event publish failed\" top_up_id=%s err=%v", req.ID, err)
	}
}
