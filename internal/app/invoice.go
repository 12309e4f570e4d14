/**
 * @description
 * This file implements the invoice lifecycle: creation against the credit gate
 * (Gate 1), settlement against the cash gate (Gate 2), cancellation, refunds,
 * all-or-nothing batch settlement and FIFO auto-settlement after top-ups.
 *
 * State machine: unpaid -> paid (PayInvoice), unpaid -> cancelled
 * (CancelInvoice), paid -> refunded (RefundInvoice). Nothing else is legal.
 *
 * Lock order is fixed everywhere both rows are needed: invoice first, then
 * account. This keeps concurrent pay/cancel/refund on the same invoice from
 * deadlocking.
 */

package app

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/easybooking/wallet-service/internal/domain"
	"github.com/easybooking/wallet-service/internal/store"
)

// CreateInvoice creates an unpaid invoice and reserves its total from the
// agency's credit line. Gate 1: only buying power (credit_limit - unpaid_hold)
// is checked; the cash balance is irrelevant to booking.
func (s *Service) CreateInvoice(ctx context.Context, agencyID uuid.UUID, items []domain.InvoiceItemInput, actor *uuid.UUID, dueDate *time.Time) (*domain.Invoice, error) {
	if len(items) == 0 {
		return nil, ErrEmptyInvoice
	}

	totalCost := decimal.Zero
	for _, item := range items {
		totalCost = totalCost.Add(item.Amount)
	}

	// Self-heal the wallet before entering the atomic unit.
	if _, err := s.repo.GetOrCreateAccountByAgency(ctx, agencyID); err != nil {
		return nil, err
	}

	var invoice *domain.Invoice
	err := s.repo.InTx(ctx, func(tx store.TxRepository) error {
		account, err := tx.LockAccountByAgency(ctx, agencyID)
		if err != nil {
			return err
		}

		if available := account.BuyingPower(); available.LessThan(totalCost) {
			return &CreditLimitExceededError{Available: available, Required: totalCost}
		}

		// Reserve the volume: the hold rises now, cash moves only at settlement.
		account.UnpaidHold = account.UnpaidHold.Add(totalCost)
		if err := tx.UpdateAccountBalances(ctx, account); err != nil {
			return err
		}

		invoice = &domain.Invoice{
			AgencyID:    agencyID,
			TotalAmount: totalCost,
			Status:      domain.InvoiceUnpaid,
			DueDate:     dueDate,
			CreatedBy:   actor,
		}
		for _, item := range items {
			invoice.Items = append(invoice.Items, domain.InvoiceItem{
				Description: item.Description,
				Amount:      item.Amount,
				Service:     item.Service,
			})
		}
		return tx.InsertInvoice(ctx, invoice)
	})
	if err != nil {
		return nil, err
	}
	return invoice, nil
}

// CreateSingleServiceInvoice is the convenience wrapper used by the booking
// modules: one invoice with one item for one service record.
func (s *Service) CreateSingleServiceInvoice(ctx context.Context, agencyID uuid.UUID, service domain.ServiceRef, amount decimal.Decimal, description string, actor *uuid.UUID) (*domain.Invoice, error) {
	return s.CreateInvoice(ctx, agencyID, []domain.InvoiceItemInput{{
		Description: description,
		Amount:      amount,
		Service:     service,
	}}, actor, nil)
}

// PayInvoice settles an unpaid invoice with real cash. Gate 2: the account
// must hold enough balance; the credit limit is irrelevant here. Settlement
// deducts the cash, releases the credit hold, appends the payment ledger row
// and flips the invoice to paid, all in one atomic unit.
func (s *Service) PayInvoice(ctx context.Context, invoiceID uuid.UUID, actor *uuid.UUID) (*domain.Invoice, error) {
	var (
		invoice *domain.Invoice
		account *domain.Account
		row     *domain.Transaction
	)
	err := s.repo.InTx(ctx, func(tx store.TxRepository) error {
		var err error
		invoice, err = tx.LockInvoice(ctx, invoiceID)
		if err != nil {
			return err
		}
		if invoice.Status != domain.InvoiceUnpaid {
			return ErrAlreadySettled
		}

		account, err = tx.LockAccountByAgency(ctx, invoice.AgencyID)
		if err != nil {
			return err
		}

		amount := invoice.TotalAmount
		if account.Balance.LessThan(amount) {
			return &InsufficientCashError{Balance: account.Balance, Required: amount}
		}

		// Release the hold first so the engine's funds check applies to the
		// same account struct we persist.
		account.UnpaidHold = account.UnpaidHold.Sub(amount)
		row, err = s.applyTransaction(ctx, tx, account, amount, domain.TransactionPayment,
			fmt.Sprintf("Settlement: Invoice %s", invoice.InvoiceNumber), actor,
			TransactionLinks{InvoiceID: &invoice.ID})
		if err != nil {
			return err
		}

		now := time.Now().UTC()
		invoice.Status = domain.InvoicePaid
		invoice.PaidAt = &now
		return tx.UpdateInvoiceStatus(ctx, invoice.ID, domain.InvoicePaid, &now)
	})
	if err != nil {
		return nil, err
	}

	s.publishBalanceChanged(ctx, account, row)
	s.publishInvoiceSettled(ctx, invoice)
	return invoice, nil
}

// CancelInvoice voids an unpaid invoice and releases its credit hold. No cash
// moves and no ledger row is written; buying power is simply restored.
func (s *Service) CancelInvoice(ctx context.Context, invoiceID uuid.UUID, actor *uuid.UUID) (*domain.Invoice, error) {
	var invoice *domain.Invoice
	err := s.repo.InTx(ctx, func(tx store.TxRepository) error {
		var err error
		invoice, err = tx.LockInvoice(ctx, invoiceID)
		if err != nil {
			return err
		}
		if invoice.Status != domain.InvoiceUnpaid {
			return ErrInvalidStateTransition
		}

		account, err := tx.LockAccountByAgency(ctx, invoice.AgencyID)
		if err != nil {
			return err
		}
		account.UnpaidHold = account.UnpaidHold.Sub(invoice.TotalAmount)
		if err := tx.UpdateAccountBalances(ctx, account); err != nil {
			return err
		}

		invoice.Status = domain.InvoiceCancelled
		return tx.UpdateInvoiceStatus(ctx, invoice.ID, domain.InvoiceCancelled, nil)
	})
	if err != nil {
		return nil, err
	}
	return invoice, nil
}

// RefundInvoice returns the cash of a paid invoice to the wallet. The hold was
// already released at payment time, so only the balance moves.
func (s *Service) RefundInvoice(ctx context.Context, invoiceID uuid.UUID, actor *uuid.UUID, reason string) (*domain.Invoice, error) {
	if reason == "" {
		reason = "Cancellation"
	}

	var (
		invoice *domain.Invoice
		account *domain.Account
		row     *domain.Transaction
	)
	err := s.repo.InTx(ctx, func(tx store.TxRepository) error {
		var err error
		invoice, err = tx.LockInvoice(ctx, invoiceID)
		if err != nil {
			return err
		}
		if invoice.Status != domain.InvoicePaid {
			return ErrNotRefundable
		}

		account, err = tx.LockAccountByAgency(ctx, invoice.AgencyID)
		if err != nil {
			return err
		}

		row, err = s.applyTransaction(ctx, tx, account, invoice.TotalAmount, domain.TransactionRefund,
			fmt.Sprintf("Refund: %s - %s", invoice.InvoiceNumber, reason), actor,
			TransactionLinks{InvoiceID: &invoice.ID})
		if err != nil {
			return err
		}

		invoice.Status = domain.InvoiceRefunded
		return tx.UpdateInvoiceStatus(ctx, invoice.ID, domain.InvoiceRefunded, nil)
	})
	if err != nil {
		return nil, err
	}

	s.publishBalanceChanged(ctx, account, row)
	s.publishInvoiceSettled(ctx, invoice)
	return invoice, nil
}

// BulkPayInvoices settles a batch of unpaid invoices of one agency,
// all-or-nothing. Affordability is checked once against the aggregate sum so
// the batch can never settle partially. Ledger rows are appended per invoice
// with the same running balance semantics as sequential settlement.
func (s *Service) BulkPayInvoices(ctx context.Context, invoiceIDs []uuid.UUID, actor *uuid.UUID) (*domain.BulkPaymentResult, error) {
	if len(invoiceIDs) == 0 {
		return nil, ErrEmptyBatch
	}

	var (
		result  *domain.BulkPaymentResult
		account *domain.Account
		rows    []*domain.Transaction
	)
	err := s.repo.InTx(ctx, func(tx store.TxRepository) error {
		invoices, err := tx.LockInvoices(ctx, invoiceIDs)
		if err != nil {
			return err
		}
		if len(invoices) != len(invoiceIDs) {
			return store.ErrInvoiceNotFound
		}

		agencyID := invoices[0].AgencyID
		total := decimal.Zero
		for i := range invoices {
			if invoices[i].AgencyID != agencyID {
				return ErrMixedAgency
			}
			if invoices[i].Status != domain.InvoiceUnpaid {
				return ErrAlreadySettled
			}
			total = total.Add(invoices[i].TotalAmount)
		}

		account, err = tx.LockAccountByAgency(ctx, agencyID)
		if err != nil {
			return err
		}
		if account.Balance.LessThan(total) {
			return &InsufficientCashError{Balance: account.Balance, Required: total}
		}

		// Apply the batch sequentially in memory so each ledger row carries
		// the running balance it would have had as an individual settlement,
		// then persist the account once.
		now := time.Now().UTC()
		result = &domain.BulkPaymentResult{TotalPaid: total}
		for i := range invoices {
			invoice := &invoices[i]
			account.Balance = account.Balance.Sub(invoice.TotalAmount)
			account.UnpaidHold = account.UnpaidHold.Sub(invoice.TotalAmount)

			row := &domain.Transaction{
				AccountID:    account.ID,
				Type:         domain.TransactionPayment,
				Amount:       invoice.TotalAmount.Neg(),
				BalanceAfter: account.Balance,
				Description:  fmt.Sprintf("Settlement: Invoice %s", invoice.InvoiceNumber),
				InvoiceID:    &invoice.ID,
				CreatedBy:    actor,
			}
			if err := tx.InsertTransaction(ctx, row); err != nil {
				return err
			}
			rows = append(rows, row)

			invoice.Status = domain.InvoicePaid
			invoice.PaidAt = &now
			if err := tx.UpdateInvoiceStatus(ctx, invoice.ID, domain.InvoicePaid, &now); err != nil {
				return err
			}
			result.PaidCount++
			result.Invoices = append(result.Invoices, invoice)
		}
		return tx.UpdateAccountBalances(ctx, account)
	})
	if err != nil {
		return nil, err
	}

	for _, row := range rows {
		s.publishBalanceChanged(ctx, account, row)
	}
	for _, invoice := range result.Invoices {
		s.publishInvoiceSettled(ctx, invoice)
	}
	return result, nil
}

// AutoSettleInvoices runs after a top-up: it walks the account's unpaid
// invoices oldest first and pays each one the balance can cover. It stops at
// the first invoice it cannot afford, even if a later, smaller invoice would
// fit: settlement order is a fairness guarantee, old debt is never jumped.
// Best-effort: it returns the invoices it settled and no failure kinds.
func (s *Service) AutoSettleInvoices(ctx context.Context, accountID uuid.UUID) ([]*domain.Invoice, error) {
	// Resolve the agency outside the atomic unit so the locked reads inside
	// can keep the fixed invoice-then-account order.
	current, err := s.repo.FindAccountByID(ctx, accountID)
	if err != nil {
		return nil, err
	}

	var (
		settled []*domain.Invoice
		account *domain.Account
		rows    []*domain.Transaction
	)
	err = s.repo.InTx(ctx, func(tx store.TxRepository) error {
		invoices, err := tx.LockUnpaidInvoicesByAgency(ctx, current.AgencyID)
		if err != nil {
			return err
		}

		account, err = tx.LockAccount(ctx, accountID)
		if err != nil {
			return err
		}

		now := time.Now().UTC()
		for i := range invoices {
			invoice := &invoices[i]
			// Gate 2 against the running balance: earlier settlements in this
			// loop have already consumed cash.
			if account.Balance.LessThan(invoice.TotalAmount) {
				break
			}

			account.Balance = account.Balance.Sub(invoice.TotalAmount)
			account.UnpaidHold = account.UnpaidHold.Sub(invoice.TotalAmount)

			row := &domain.Transaction{
				AccountID:    account.ID,
				Type:         domain.TransactionPayment,
				Amount:       invoice.TotalAmount.Neg(),
				BalanceAfter: account.Balance,
				Description:  fmt.Sprintf("Settlement: Invoice %s", invoice.InvoiceNumber),
				InvoiceID:    &invoice.ID,
			}
			if err := tx.InsertTransaction(ctx, row); err != nil {
				return err
			}
			rows = append(rows, row)

			invoice.Status = domain.InvoicePaid
			invoice.PaidAt = &now
			if err := tx.UpdateInvoiceStatus(ctx, invoice.ID, domain.InvoicePaid, &now); err != nil {
				return err
			}
			settled = append(settled, invoice)
		}

		if len(settled) == 0 {
			return nil
		}
		return tx.UpdateAccountBalances(ctx, account)
	})
	if err != nil {
		// Auto-settlement rides behind top-up approval; an aborted pass
		// leaves the deposit intact and is only reported.
		if errors.Is(err, store.ErrAccountNotFound) {
			return nil, err
		}
		log.Printf("level=error component=wallet_engine msg=\"auto-settlement aborted\" account_id=%s err=%v", accountID, err)
		return nil, err
	}

	for _, row := range rows {
		s.publishBalanceChanged(ctx, account, row)
	}
	for _, invoice := range settled {
		s.publishInvoiceSettled(ctx, invoice)
	}
	return settled, nil
}
