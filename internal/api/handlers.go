/**
 * @description
 * This file contains the HTTP handlers for the agency-facing API endpoints.
 * Handlers are responsible for parsing incoming requests, calling the appropriate
 * methods on the application service, and writing the HTTP response. They act as the
 * bridge between the web layer and the business logic layer.
 *
 * @dependencies
 * - encoding/json, log, net/http: Standard Go libraries.
 * - internal/app, internal/domain, internal/store: For service logic, models, and custom errors.
 */

package api

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/easybooking/wallet-service/internal/app"
	"github.com/easybooking/wallet-service/internal/domain"
	"github.com/easybooking/wallet-service/internal/store"
)

// WalletHandlers holds the application service that handlers will use.
type WalletHandlers struct {
	service *app.Service
}

// NewWalletHandlers creates a new instance of WalletHandlers.
func NewWalletHandlers(service *app.Service) *WalletHandlers {
	return &WalletHandlers{service: service}
}

// agencyFromContext resolves the agency the request acts for. Agents are bound
// to their token's agency; staff may select any agency via the query string.
func (h *WalletHandlers) agencyFromContext(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	if IsAdmin(r.Context()) {
		if raw := r.URL.Query().Get("agency_id"); raw != "" {
			agencyID, err := uuid.Parse(raw)
			if err != nil {
				h.writeError(w, http.StatusBadRequest, "Invalid agency_id")
				return uuid.Nil, false
			}
			return agencyID, true
		}
	}
	agencyID, ok := GetAgencyID(r.Context())
	if !ok {
		h.writeError(w, http.StatusForbidden, "Token is not bound to an agency")
		return uuid.Nil, false
	}
	return agencyID, true
}

// AccountStatsHandler returns the dashboard view of the agency's wallet.
func (h *WalletHandlers) AccountStatsHandler(w http.ResponseWriter, r *http.Request) {
	agencyID, ok := h.agencyFromContext(w, r)
	if !ok {
		return
	}
	stats, err := h.service.GetAccountStats(r.Context(), agencyID)
	if err != nil {
		h.writeServiceError(w, "account_stats", err)
		return
	}
	h.writeJSON(w, http.StatusOK, stats)
}

// CheckSolvencyHandler answers the booking form's pre-check: does the agency's
// remaining buying power cover the quoted amount?
func (h *WalletHandlers) CheckSolvencyHandler(w http.ResponseWriter, r *http.Request) {
	agencyID, ok := h.agencyFromContext(w, r)
	if !ok {
		return
	}
	amount, err := decimal.NewFromString(r.URL.Query().Get("amount"))
	if err != nil || amount.IsNegative() {
		h.writeError(w, http.StatusBadRequest, "Invalid amount")
		return
	}
	solvent, err := h.service.CheckSolvency(r.Context(), agencyID, amount)
	if err != nil {
		h.writeServiceError(w, "check_solvency", err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"solvent": solvent,
		"amount":  amount,
	})
}

// ListTransactionsHandler returns the filtered ledger for the agency's account.
func (h *WalletHandlers) ListTransactionsHandler(w http.ResponseWriter, r *http.Request) {
	agencyID, ok := h.agencyFromContext(w, r)
	if !ok {
		return
	}

	filter := domain.LedgerFilter{
		Type:   domain.TransactionType(r.URL.Query().Get("type")),
		Search: strings.TrimSpace(r.URL.Query().Get("search")),
		Limit:  parseLimit(r, 100),
	}
	if filter.Type != "" && !filter.Type.Valid() {
		h.writeError(w, http.StatusBadRequest, "Invalid transaction type")
		return
	}
	var ok2 bool
	if filter.StartDate, ok2 = parseDateParam(w, r, "start_date"); !ok2 {
		return
	}
	if filter.EndDate, ok2 = parseDateParam(w, r, "end_date"); !ok2 {
		return
	}

	transactions, err := h.service.ListTransactions(r.Context(), agencyID, filter)
	if err != nil {
		h.writeServiceError(w, "list_transactions", err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]interface{}{"transactions": transactions})
}

// AccountStatementHandler returns the statement export data for a period.
func (h *WalletHandlers) AccountStatementHandler(w http.ResponseWriter, r *http.Request) {
	agencyID, ok := h.agencyFromContext(w, r)
	if !ok {
		return
	}
	start, ok := parseDateParam(w, r, "start_date")
	if !ok {
		return
	}
	end, ok := parseDateParam(w, r, "end_date")
	if !ok {
		return
	}

	summary, rows, err := h.service.AccountStatement(r.Context(), agencyID, start, end)
	if err != nil {
		h.writeServiceError(w, "account_statement", err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"summary": summary,
		"rows":    rows,
	})
}

// createInvoiceRequest is the payload for booking a new invoice.
type createInvoiceRequest struct {
	Items   []domain.InvoiceItemInput `json:"items"`
	DueDate *time.Time                `json:"due_date,omitempty"`
}

// CreateInvoiceHandler books a new invoice against the agency's credit line.
func (h *WalletHandlers) CreateInvoiceHandler(w http.ResponseWriter, r *http.Request) {
	agencyID, ok := h.agencyFromContext(w, r)
	if !ok {
		return
	}
	actorID, _ := GetActorID(r.Context())

	var req createInvoiceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	for _, item := range req.Items {
		if !item.Amount.IsPositive() {
			h.writeError(w, http.StatusBadRequest, "Item amounts must be strictly positive")
			return
		}
	}

	invoice, err := h.service.CreateInvoice(r.Context(), agencyID, req.Items, &actorID, req.DueDate)
	if err != nil {
		h.writeServiceError(w, "create_invoice", err)
		return
	}
	log.Printf("level=info component=api endpoint=create_invoice outcome=accepted agency_id=%s invoice=%s amount=%s",
		agencyID, invoice.InvoiceNumber, invoice.TotalAmount)
	h.writeJSON(w, http.StatusCreated, invoice)
}

// ListInvoicesHandler returns the agency's invoices, filtered.
func (h *WalletHandlers) ListInvoicesHandler(w http.ResponseWriter, r *http.Request) {
	agencyID, ok := h.agencyFromContext(w, r)
	if !ok {
		return
	}

	filter := domain.InvoiceFilter{
		AgencyID:    &agencyID,
		Status:      domain.InvoiceStatus(r.URL.Query().Get("status")),
		Search:      strings.TrimSpace(r.URL.Query().Get("search")),
		ServiceKind: strings.TrimSpace(r.URL.Query().Get("service_kind")),
		Limit:       parseLimit(r, 100),
	}
	var ok2 bool
	if filter.CreatedAfter, ok2 = parseDateParam(w, r, "created_after"); !ok2 {
		return
	}
	if filter.CreatedBefore, ok2 = parseDateParam(w, r, "created_before"); !ok2 {
		return
	}
	if raw := r.URL.Query().Get("min_amount"); raw != "" {
		amount, err := decimal.NewFromString(raw)
		if err != nil {
			h.writeError(w, http.StatusBadRequest, "Invalid min_amount")
			return
		}
		filter.MinAmount = &amount
	}
	if raw := r.URL.Query().Get("max_amount"); raw != "" {
		amount, err := decimal.NewFromString(raw)
		if err != nil {
			h.writeError(w, http.StatusBadRequest, "Invalid max_amount")
			return
		}
		filter.MaxAmount = &amount
	}

	invoices, err := h.service.ListInvoices(r.Context(), filter)
	if err != nil {
		h.writeServiceError(w, "list_invoices", err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]interface{}{"invoices": invoices})
}

// GetInvoiceHandler returns one invoice with its items. Agents may only read
// their own agency's invoices.
func (h *WalletHandlers) GetInvoiceHandler(w http.ResponseWriter, r *http.Request) {
	invoiceID, err := uuid.Parse(chi.URLParam(r, "invoiceID"))
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "Invalid invoice id")
		return
	}

	invoice, err := h.service.GetInvoice(r.Context(), invoiceID)
	if err != nil {
		h.writeServiceError(w, "get_invoice", err)
		return
	}
	if !IsAdmin(r.Context()) {
		agencyID, ok := GetAgencyID(r.Context())
		if !ok || invoice.AgencyID != agencyID {
			h.writeError(w, http.StatusNotFound, "Invoice not found")
			return
		}
	}
	h.writeJSON(w, http.StatusOK, invoice)
}

// createTopUpRequest is the payload for submitting a deposit request.
type createTopUpRequest struct {
	Amount          decimal.Decimal `json:"amount"`
	ReceiptURL      string          `json:"receipt_url"`
	ReferenceNumber string          `json:"reference_number"`
}

// CreateTopUpHandler files a pending deposit request for review.
func (h *WalletHandlers) CreateTopUpHandler(w http.ResponseWriter, r *http.Request) {
	agencyID, ok := h.agencyFromContext(w, r)
	if !ok {
		return
	}

	var req createTopUpRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	topUp, err := h.service.CreateTopUpRequest(r.Context(), agencyID, req.Amount, req.ReceiptURL, req.ReferenceNumber)
	if err != nil {
		h.writeServiceError(w, "create_topup", err)
		return
	}
	log.Printf("level=info component=api endpoint=create_topup outcome=accepted agency_id=%s amount=%s ref=%s",
		agencyID, topUp.Amount, topUp.ReferenceNumber)
	h.writeJSON(w, http.StatusCreated, topUp)
}

// ListTopUpsHandler returns the agency's own deposit requests.
func (h *WalletHandlers) ListTopUpsHandler(w http.ResponseWriter, r *http.Request) {
	agencyID, ok := h.agencyFromContext(w, r)
	if !ok {
		return
	}
	account, err := h.service.GetAccount(r.Context(), agencyID)
	if err != nil {
		h.writeServiceError(w, "list_topups", err)
		return
	}

	topUps, err := h.service.ListTopUpRequests(r.Context(), domain.TopUpFilter{
		AccountID: &account.ID,
		Status:    domain.TopUpStatus(r.URL.Query().Get("status")),
		Limit:     parseLimit(r, 100),
	})
	if err != nil {
		h.writeServiceError(w, "list_topups", err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]interface{}{"top_up_requests": topUps})
}

// ---------------------------------------------------------------------------
// Shared helpers
// ---------------------------------------------------------------------------

// parseDateParam reads an optional RFC 3339 or YYYY-MM-DD query parameter.
// On a malformed value it writes a 400 and reports false.
func parseDateParam(w http.ResponseWriter, r *http.Request, name string) (*time.Time, bool) {
	raw := strings.TrimSpace(r.URL.Query().Get(name))
	if raw == "" {
		return nil, true
	}
	for _, layout := range []string{time.RFC3339, "2006-01-02"} {
		if parsed, err := time.Parse(layout, raw); err == nil {
			return &parsed, true
		}
	}
	http.Error(w, "Invalid "+name, http.StatusBadRequest)
	return nil, false
}

func parseLimit(r *http.Request, fallback int) int {
	raw := r.URL.Query().Get("limit")
	if raw == "" {
		return fallback
	}
	limit, err := strconv.Atoi(raw)
	if err != nil || limit <= 0 || limit > 1000 {
		return fallback
	}
	return limit
}

// writeJSON is a helper for writing JSON responses.
func (h *WalletHandlers) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		json.NewEncoder(w).Encode(data)
	}
}

// writeError is a helper for writing JSON error responses.
func (h *WalletHandlers) writeError(w http.ResponseWriter, status int, message string) {
	h.writeJSON(w, status, map[string]string{"error": message})
}

// writeCodedError writes a JSON error response with a machine-readable code
// and optional detail fields, used for the recoverable funds conditions so the
// frontend can direct the agency to the right remedy.
func (h *WalletHandlers) writeCodedError(w http.ResponseWriter, status int, code, message string, detail map[string]interface{}) {
	body := map[string]interface{}{
		"error": message,
		"code":  code,
	}
	for k, v := range detail {
		body[k] = v
	}
	h.writeJSON(w, status, body)
}

// writeServiceError maps engine errors onto HTTP responses. Validation kinds
// become 400, lookups 404, state-machine races 409, the recoverable funds
// kinds 422 with a distinguishing code, and the rate limit 429.
func (h *WalletHandlers) writeServiceError(w http.ResponseWriter, endpoint string, err error) {
	var (
		cash  *app.InsufficientCashError
		funds *app.InsufficientFundsError
		limit *app.CreditLimitExceededError
	)
	switch {
	case errors.Is(err, store.ErrAccountNotFound):
		h.writeError(w, http.StatusNotFound, "Account not found")
	case errors.Is(err, store.ErrInvoiceNotFound):
		h.writeError(w, http.StatusNotFound, "Invoice not found")
	case errors.Is(err, store.ErrTopUpNotFound):
		h.writeError(w, http.StatusNotFound, "Top-up request not found")
	case errors.Is(err, app.ErrEmptyInvoice),
		errors.Is(err, app.ErrEmptyBatch),
		errors.Is(err, app.ErrInvalidAmount),
		errors.Is(err, app.ErrInvalidLimit),
		errors.Is(err, app.ErrInvalidTransactionType),
		errors.Is(err, app.ErrMixedAgency):
		h.writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, app.ErrAlreadySettled),
		errors.Is(err, app.ErrInvalidStateTransition),
		errors.Is(err, app.ErrNotRefundable),
		errors.Is(err, app.ErrNotPending):
		h.writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, app.ErrTooManyTopUpRequests):
		h.writeError(w, http.StatusTooManyRequests, err.Error())
	case errors.As(err, &cash):
		h.writeCodedError(w, http.StatusUnprocessableEntity, "insufficient_balance", err.Error(), map[string]interface{}{
			"balance":  cash.Balance,
			"required": cash.Required,
			"missing":  cash.Missing(),
		})
	case errors.As(err, &limit):
		h.writeCodedError(w, http.StatusUnprocessableEntity, "credit_limit_reached", err.Error(), map[string]interface{}{
			"available": limit.Available,
			"required":  limit.Required,
		})
	case errors.As(err, &funds):
		h.writeCodedError(w, http.StatusUnprocessableEntity, "insufficient_funds", err.Error(), map[string]interface{}{
			"balance":   funds.Balance,
			"attempted": funds.Attempted,
		})
	default:
		log.Printf("level=error component=api endpoint=%s msg=\"unhandled service error\" err=%v", endpoint, err)
		h.writeError(w, http.StatusInternalServerError, "Internal server error")
	}
}
