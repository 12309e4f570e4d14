/**
 * @description
 * This file sets up the HTTP router for the wallet-service. It defines the API
 * endpoints, associates them with their corresponding handlers, and applies any
 * necessary middleware, such as for authentication.
 *
 * @dependencies
 * - net/http: Standard Go library for HTTP functionality.
 * - github.com/go-chi/chi/v5: A lightweight and idiomatic router for Go.
 */

package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// WalletRoutes creates and returns a new router for the wallet service.
func WalletRoutes(h *WalletHandlers, jwtSecret string) http.Handler {
	r := chi.NewRouter()

	// Add standard middleware for logging, panic recovery, and timeouts.
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))

	// Health check endpoint
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("healthy"))
	})

	// Group routes that require authentication.
	r.Group(func(r chi.Router) {
		r.Use(AuthMiddleware(jwtSecret))

		// Agency-facing wallet endpoints.
		r.Get("/wallet/stats", h.AccountStatsHandler)
		r.Get("/wallet/solvency", h.CheckSolvencyHandler)
		r.Get("/wallet/transactions", h.ListTransactionsHandler)
		r.Get("/wallet/statement", h.AccountStatementHandler)

		r.Post("/invoices", h.CreateInvoiceHandler)
		r.Get("/invoices", h.ListInvoicesHandler)
		r.Get("/invoices/{invoiceID}", h.GetInvoiceHandler)

		r.Post("/topups", h.CreateTopUpHandler)
		r.Get("/topups", h.ListTopUpsHandler)

		// Back-office endpoints.
		r.Route("/admin", func(r chi.Router) {
			r.Use(RequireAdmin)

			r.Post("/accounts/{accountID}/adjustments", h.CreateAdjustmentHandler)
			r.Put("/accounts/{accountID}/credit-limit", h.UpdateCreditLimitHandler)

			r.Get("/topups", h.ListAllTopUpsHandler)
			r.Post("/topups/{topUpID}/approve", h.ApproveTopUpHandler)
			r.Post("/topups/{topUpID}/reject", h.RejectTopUpHandler)

			r.Post("/invoices/{invoiceID}/pay", h.PayInvoiceHandler)
			r.Post("/invoices/{invoiceID}/cancel", h.CancelInvoiceHandler)
			r.Post("/invoices/{invoiceID}/refund", h.RefundInvoiceHandler)
			r.Post("/invoices/bulk-pay", h.BulkPayInvoicesHandler)
		})
	})

	return r
}
