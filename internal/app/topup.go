/**
 * @description
 * This file implements the top-up workflow: agents submit deposit requests
 * backed by a bank receipt; staff approve or reject them. Approval drives a
 * deposit through the transaction engine inside the same atomic unit as the
 * status flip, so a failed deposit can never leave a falsely-approved request.
 * Both terminal states are final; a request is never re-reviewed.
 */

package app

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/easybooking/wallet-service/internal/domain"
	"github.com/easybooking/wallet-service/internal/store"
)

// CreateTopUpRequest files a pending deposit request for the agency's wallet.
// The wallet is created lazily if the agency has never used it.
func (s *Service) CreateTopUpRequest(ctx context.Context, agencyID uuid.UUID, amount decimal.Decimal, receiptURL, referenceNumber string) (*domain.TopUpRequest, error) {
	if !amount.IsPositive() {
		return nil, ErrInvalidAmount
	}

	if s.topUpLimiter != nil && s.topUpsPerHour > 0 {
		allowed, err := s.topUpLimiter.Allow(ctx, agencyID.String(), s.topUpsPerHour)
		if err != nil {
			// A broken limiter must not block deposits; log and continue.
			log.Printf("level=warn component=wallet_engine msg=\"top-up rate limiter unavailable\" agency_id=%s err=%v", agencyID, err)
		} else if !allowed {
			return nil, ErrTooManyTopUpRequests
		}
	}

	account, err := s.repo.GetOrCreateAccountByAgency(ctx, agencyID)
	if err != nil {
		return nil, err
	}

	req := &domain.TopUpRequest{
		AccountID:       account.ID,
		Amount:          amount,
		ReceiptURL:      receiptURL,
		ReferenceNumber: referenceNumber,
	}
	if err := s.repo.CreateTopUpRequest(ctx, req); err != nil {
		return nil, err
	}
	return req, nil
}

// ApproveTopUpRequest moves the requested amount into the wallet. The request
// row is locked first to prevent double-processing, then the account; the
// deposit and the approved status share one atomic unit. After commit the
// engine immediately tries to auto-settle the agency's oldest unpaid invoices
// with the fresh cash.
func (s *Service) ApproveTopUpRequest(ctx context.Context, topUpID uuid.UUID, admin uuid.UUID) (*domain.TopUpRequest, error) {
	var (
		req     *domain.TopUpRequest
		account *domain.Account
		row     *domain.Transaction
	)
	err := s.repo.InTx(ctx, func(tx store.TxRepository) error {
		var err error
		req, err = tx.LockTopUp(ctx, topUpID)
		if err != nil {
			return err
		}
		if req.Status != domain.TopUpPending {
			return ErrNotPending
		}

		account, err = tx.LockAccount(ctx, req.AccountID)
		if err != nil {
			return err
		}

		row, err = s.applyTransaction(ctx, tx, account, req.Amount, domain.TransactionDeposit,
			fmt.Sprintf("TopUp Approved (Ref: %s)", req.ReferenceNumber), &admin,
			TransactionLinks{TopUpID: &req.ID})
		if err != nil {
			return err
		}

		now := time.Now().UTC()
		req.Status = domain.TopUpApproved
		req.ReviewedBy = &admin
		req.ReviewedAt = &now
		return tx.UpdateTopUpReview(ctx, req)
	})
	if err != nil {
		return nil, err
	}

	s.publishBalanceChanged(ctx, account, row)
	s.publishTopUpReviewed(ctx, account, req)

	// Fresh cash pays old debt first. Best-effort: a failed pass leaves the
	// deposit in place and is only logged.
	if _, err := s.AutoSettleInvoices(ctx, account.ID); err != nil {
		log.Printf("level=warn component=wallet_engine msg=\"auto-settlement after top-up failed\" account_id=%s err=%v", account.ID, err)
	}

	return req, nil
}

// RejectTopUpRequest closes a pending request without moving money.
func (s *Service) RejectTopUpRequest(ctx context.Context, topUpID uuid.UUID, admin uuid.UUID, reason string) (*domain.TopUpRequest, error) {
	var (
		req     *domain.TopUpRequest
		account *domain.Account
	)
	err := s.repo.InTx(ctx, func(tx store.TxRepository) error {
		var err error
		req, err = tx.LockTopUp(ctx, topUpID)
		if err != nil {
			return err
		}
		if req.Status != domain.TopUpPending {
			return ErrNotPending
		}

		now := time.Now().UTC()
		req.Status = domain.TopUpRejected
		req.AdminNote = reason
		req.ReviewedBy = &admin
		req.ReviewedAt = &now
		return tx.UpdateTopUpReview(ctx, req)
	})
	if err != nil {
		return nil, err
	}

	if account, err = s.repo.FindAccountByID(ctx, req.AccountID); err == nil {
		s.publishTopUpReviewed(ctx, account, req)
	}
	return req, nil
}

// ListTopUpRequests exposes the review queue.
func (s *Service) ListTopUpRequests(ctx context.Context, filter domain.TopUpFilter) ([]domain.TopUpRequest, error) {
	return s.repo.ListTopUpRequests(ctx, filter)
}

// GetTopUpRequest returns one request by id.
func (s *Service) GetTopUpRequest(ctx context.Context, topUpID uuid.UUID) (*domain.TopUpRequest, error) {
	return s.repo.FindTopUpByID(ctx, topUpID)
}
