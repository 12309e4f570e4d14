/**
 * @description
 * This file contains the HTTP handlers for the back-office (staff) endpoints:
 * manual adjustments, credit limit administration, top-up review and invoice
 * settlement. All routes in this file sit behind the admin role check.
 *
 * @dependencies
 * - encoding/json, log, net/http: Standard Go libraries.
 * - internal/app, internal/domain: For service logic and models.
 */

package api

import (
	"encoding/json"
	"log"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/easybooking/wallet-service/internal/app"
	"github.com/easybooking/wallet-service/internal/domain"
)

// adjustmentRequest is the payload for a manual balance correction. The signed
// amount is applied verbatim: positive credits the wallet, negative debits it.
type adjustmentRequest struct {
	Amount      decimal.Decimal `json:"amount"`
	Description string          `json:"description"`
}

// CreateAdjustmentHandler applies a manual correction to an account's balance.
func (h *WalletHandlers) CreateAdjustmentHandler(w http.ResponseWriter, r *http.Request) {
	accountID, err := uuid.Parse(chi.URLParam(r, "accountID"))
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "Invalid account id")
		return
	}
	adminID, _ := GetActorID(r.Context())

	var req adjustmentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if req.Amount.IsZero() {
		h.writeError(w, http.StatusBadRequest, "Adjustment amount cannot be zero")
		return
	}
	description := strings.TrimSpace(req.Description)
	if description == "" {
		description = "Manual adjustment"
	}

	row, err := h.service.ExecuteTransaction(r.Context(), accountID, req.Amount,
		domain.TransactionAdjustment, description, &adminID, app.TransactionLinks{})
	if err != nil {
		h.writeServiceError(w, "create_adjustment", err)
		return
	}
	log.Printf("level=info component=api endpoint=create_adjustment outcome=applied account_id=%s amount=%s admin=%s",
		accountID, row.Amount, adminID)
	h.writeJSON(w, http.StatusCreated, row)
}

// updateCreditLimitRequest is the payload for setting a new credit line.
type updateCreditLimitRequest struct {
	CreditLimit decimal.Decimal `json:"credit_limit"`
	Reason      string          `json:"reason"`
}

// UpdateCreditLimitHandler sets a new credit line for an account. The audit
// history row is written in the same atomic unit as the limit itself.
func (h *WalletHandlers) UpdateCreditLimitHandler(w http.ResponseWriter, r *http.Request) {
	accountID, err := uuid.Parse(chi.URLParam(r, "accountID"))
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "Invalid account id")
		return
	}
	adminID, _ := GetActorID(r.Context())

	var req updateCreditLimitRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	account, err := h.service.UpdateCreditLimit(r.Context(), accountID, req.CreditLimit, &adminID, req.Reason)
	if err != nil {
		h.writeServiceError(w, "update_credit_limit", err)
		return
	}
	log.Printf("level=info component=api endpoint=update_credit_limit outcome=applied account_id=%s new_limit=%s admin=%s",
		accountID, account.CreditLimit, adminID)
	h.writeJSON(w, http.StatusOK, account)
}

// ListAllTopUpsHandler exposes the review queue across all agencies.
func (h *WalletHandlers) ListAllTopUpsHandler(w http.ResponseWriter, r *http.Request) {
	filter := domain.TopUpFilter{
		Status: domain.TopUpStatus(r.URL.Query().Get("status")),
		Limit:  parseLimit(r, 100),
	}
	if raw := r.URL.Query().Get("account_id"); raw != "" {
		accountID, err := uuid.Parse(raw)
		if err != nil {
			h.writeError(w, http.StatusBadRequest, "Invalid account_id")
			return
		}
		filter.AccountID = &accountID
	}

	topUps, err := h.service.ListTopUpRequests(r.Context(), filter)
	if err != nil {
		h.writeServiceError(w, "list_all_topups", err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]interface{}{"top_up_requests": topUps})
}

// ApproveTopUpHandler approves a pending deposit request and credits the
// wallet. Auto-settlement of the agency's oldest unpaid invoices follows.
func (h *WalletHandlers) ApproveTopUpHandler(w http.ResponseWriter, r *http.Request) {
	topUpID, err := uuid.Parse(chi.URLParam(r, "topUpID"))
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "Invalid top-up id")
		return
	}
	adminID, _ := GetActorID(r.Context())

	req, err := h.service.ApproveTopUpRequest(r.Context(), topUpID, adminID)
	if err != nil {
		h.writeServiceError(w, "approve_topup", err)
		return
	}
	log.Printf("level=info component=api endpoint=approve_topup outcome=approved top_up_id=%s amount=%s admin=%s",
		topUpID, req.Amount, adminID)
	h.writeJSON(w, http.StatusOK, req)
}

// rejectTopUpRequest is the payload explaining a rejection.
type rejectTopUpRequest struct {
	Reason string `json:"reason"`
}

// RejectTopUpHandler closes a pending deposit request without moving money.
func (h *WalletHandlers) RejectTopUpHandler(w http.ResponseWriter, r *http.Request) {
	topUpID, err := uuid.Parse(chi.URLParam(r, "topUpID"))
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "Invalid top-up id")
		return
	}
	adminID, _ := GetActorID(r.Context())

	var req rejectTopUpRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	topUp, err := h.service.RejectTopUpRequest(r.Context(), topUpID, adminID, req.Reason)
	if err != nil {
		h.writeServiceError(w, "reject_topup", err)
		return
	}
	h.writeJSON(w, http.StatusOK, topUp)
}

// PayInvoiceHandler settles one unpaid invoice with the agency's cash.
func (h *WalletHandlers) PayInvoiceHandler(w http.ResponseWriter, r *http.Request) {
	invoiceID, err := uuid.Parse(chi.URLParam(r, "invoiceID"))
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "Invalid invoice id")
		return
	}
	adminID, _ := GetActorID(r.Context())

	invoice, err := h.service.PayInvoice(r.Context(), invoiceID, &adminID)
	if err != nil {
		h.writeServiceError(w, "pay_invoice", err)
		return
	}
	log.Printf("level=info component=api endpoint=pay_invoice outcome=settled invoice=%s amount=%s admin=%s",
		invoice.InvoiceNumber, invoice.TotalAmount, adminID)
	h.writeJSON(w, http.StatusOK, invoice)
}

// CancelInvoiceHandler voids an unpaid invoice and releases its credit hold.
func (h *WalletHandlers) CancelInvoiceHandler(w http.ResponseWriter, r *http.Request) {
	invoiceID, err := uuid.Parse(chi.URLParam(r, "invoiceID"))
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "Invalid invoice id")
		return
	}
	adminID, _ := GetActorID(r.Context())

	invoice, err := h.service.CancelInvoice(r.Context(), invoiceID, &adminID)
	if err != nil {
		h.writeServiceError(w, "cancel_invoice", err)
		return
	}
	h.writeJSON(w, http.StatusOK, invoice)
}

// refundInvoiceRequest carries the optional human-readable refund reason.
type refundInvoiceRequest struct {
	Reason string `json:"reason"`
}

// RefundInvoiceHandler returns the cash of a paid invoice to the wallet.
func (h *WalletHandlers) RefundInvoiceHandler(w http.ResponseWriter, r *http.Request) {
	invoiceID, err := uuid.Parse(chi.URLParam(r, "invoiceID"))
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "Invalid invoice id")
		return
	}
	adminID, _ := GetActorID(r.Context())

	var req refundInvoiceRequest
	if r.Body != nil {
		_ = json.NewDecoder(r.Body).Decode(&req)
	}

	invoice, err := h.service.RefundInvoice(r.Context(), invoiceID, &adminID, req.Reason)
	if err != nil {
		h.writeServiceError(w, "refund_invoice", err)
		return
	}
	log.Printf("level=info component=api endpoint=refund_invoice outcome=refunded invoice=%s amount=%s admin=%s",
		invoice.InvoiceNumber, invoice.TotalAmount, adminID)
	h.writeJSON(w, http.StatusOK, invoice)
}

// bulkPayRequest is the payload for an all-or-nothing batch settlement.
type bulkPayRequest struct {
	InvoiceIDs []uuid.UUID `json:"invoice_ids"`
}

// BulkPayInvoicesHandler settles a batch of unpaid invoices atomically.
func (h *WalletHandlers) BulkPayInvoicesHandler(w http.ResponseWriter, r *http.Request) {
	adminID, _ := GetActorID(r.Context())

	var req bulkPayRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	result, err := h.service.BulkPayInvoices(r.Context(), req.InvoiceIDs, &adminID)
	if err != nil {
		h.writeServiceError(w, "bulk_pay_invoices", err)
		return
	}
	log.Printf("level=info component=api endpoint=bulk_pay_invoices outcome=settled count=%d total=%s admin=%s",
		result.PaidCount, result.TotalPaid, adminID)
	h.writeJSON(w, http.StatusOK, result)
}
