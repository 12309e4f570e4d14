/**
 * @description
 * This file provides the PostgreSQL implementation of the `Repository` and
 * `TxRepository` interfaces. It contains all the SQL needed by the wallet
 * engine: locked reads (`SELECT ... FOR UPDATE`), balance writes, append-only
 * ledger and audit inserts, and the filtered listing queries used by the
 * dashboard endpoints.
 *
 * @dependencies
 * - context, fmt, strings, time: Standard Go libraries.
 * - github.com/jackc/pgx/v5: The PostgreSQL driver for database operations.
 * - github.com/shopspring/decimal: Exact decimal money values.
 * - internal/domain: Contains the domain models used for data transfer.
 */

package store

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/easybooking/wallet-service/internal/domain"
)

// PostgresRepository is a concrete implementation of the Repository interface for PostgreSQL.
type PostgresRepository struct {
	db *pgxpool.Pool
}

// NewPostgresRepository creates a new instance of PostgresRepository.
func NewPostgresRepository(db *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// querier is satisfied by both *pgxpool.Pool and pgx.Tx so the read helpers
// can be shared between pooled and transactional paths.
type querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// InTx runs fn inside a single database transaction. A rollback is always
// attempted; it is a no-op after a successful commit.
func (r *PostgresRepository) InTx(ctx context.Context, fn func(tx TxRepository) error) error {
	tx, err := r.db.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	if err := fn(&pgxTxRepository{tx: tx}); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

// ---------------------------------------------------------------------------
// Account reads
// ---------------------------------------------------------------------------

const accountColumns = `id, agency_id, balance, credit_limit, unpaid_hold, created_at, updated_at`

func scanAccount(row pgx.Row) (*domain.Account, error) {
	var account domain.Account
	err := row.Scan(
		&account.ID,
		&account.AgencyID,
		&account.Balance,
		&account.CreditLimit,
		&account.UnpaidHold,
		&account.CreatedAt,
		&account.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrAccountNotFound
		}
		return nil, err
	}
	return &account, nil
}

// FindAccountByID retrieves an account by its primary key.
func (r *PostgresRepository) FindAccountByID(ctx context.Context, accountID uuid.UUID) (*domain.Account, error) {
	query := `SELECT ` + accountColumns + ` FROM accounts WHERE id = $1`
	return scanAccount(r.db.QueryRow(ctx, query, accountID))
}

// FindAccountByAgencyID retrieves the wallet owned by an agency.
func (r *PostgresRepository) FindAccountByAgencyID(ctx context.Context, agencyID uuid.UUID) (*domain.Account, error) {
	query := `SELECT ` + accountColumns + ` FROM accounts WHERE agency_id = $1`
	return scanAccount(r.db.QueryRow(ctx, query, agencyID))
}

// GetOrCreateAccountByAgency returns the agency's wallet, creating it with
// zero balances on first need. The upsert keeps concurrent first-use safe.
func (r *PostgresRepository) GetOrCreateAccountByAgency(ctx context.Context, agencyID uuid.UUID) (*domain.Account, error) {
	query := `
		INSERT INTO accounts (id, agency_id, balance, credit_limit, unpaid_hold, created_at, updated_at)
		VALUES ($1, $2, 0, 0, 0, NOW(), NOW())
		ON CONFLICT (agency_id) DO UPDATE SET agency_id = EXCLUDED.agency_id
		RETURNING ` + accountColumns
	return scanAccount(r.db.QueryRow(ctx, query, uuid.New(), agencyID))
}

// ---------------------------------------------------------------------------
// Invoice reads
// ---------------------------------------------------------------------------

const invoiceColumns = `id, invoice_number, agency_id, total_amount, status, due_date, paid_at, created_by, created_at`

func scanInvoice(row pgx.Row) (*domain.Invoice, error) {
	var invoice domain.Invoice
	err := row.Scan(
		&invoice.ID,
		&invoice.InvoiceNumber,
		&invoice.AgencyID,
		&invoice.TotalAmount,
		&invoice.Status,
		&invoice.DueDate,
		&invoice.PaidAt,
		&invoice.CreatedBy,
		&invoice.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrInvoiceNotFound
		}
		return nil, err
	}
	return &invoice, nil
}

func loadInvoiceItems(ctx context.Context, q querier, invoice *domain.Invoice) error {
	rows, err := q.Query(ctx, `
		SELECT id, invoice_id, description, amount, service_kind, service_id
		FROM invoice_items
		WHERE invoice_id = $1
		ORDER BY id`, invoice.ID)
	if err != nil {
		return err
	}
	defer rows.Close()

	for rows.Next() {
		var item domain.InvoiceItem
		var kind *string
		var serviceID *int64
		if err := rows.Scan(&item.ID, &item.InvoiceID, &item.Description, &item.Amount, &kind, &serviceID); err != nil {
			return err
		}
		if kind != nil {
			item.Service.Kind = *kind
		}
		if serviceID != nil {
			item.Service.ID = *serviceID
		}
		invoice.Items = append(invoice.Items, item)
	}
	return rows.Err()
}

// FindInvoiceByID retrieves an invoice header together with its items.
func (r *PostgresRepository) FindInvoiceByID(ctx context.Context, invoiceID uuid.UUID) (*domain.Invoice, error) {
	invoice, err := scanInvoice(r.db.QueryRow(ctx, `SELECT `+invoiceColumns+` FROM invoices WHERE id = $1`, invoiceID))
	if err != nil {
		return nil, err
	}
	if err := loadInvoiceItems(ctx, r.db, invoice); err != nil {
		return nil, err
	}
	return invoice, nil
}

// ListInvoices applies the dashboard's search and filter surface: status,
// creator, amount range, date ranges, due date, service kind and free-text
// search over the invoice number and item descriptions.
func (r *PostgresRepository) ListInvoices(ctx context.Context, filter domain.InvoiceFilter) ([]domain.Invoice, error) {
	var (
		conditions []string
		args       []any
	)
	arg := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}

	if filter.AgencyID != nil {
		conditions = append(conditions, "i.agency_id = "+arg(*filter.AgencyID))
	}
	if filter.CreatedBy != nil {
		conditions = append(conditions, "i.created_by = "+arg(*filter.CreatedBy))
	}
	if filter.Status != "" {
		conditions = append(conditions, "i.status = "+arg(string(filter.Status)))
	}
	if filter.MinAmount != nil {
		conditions = append(conditions, "i.total_amount >= "+arg(*filter.MinAmount))
	}
	if filter.MaxAmount != nil {
		conditions = append(conditions, "i.total_amount <= "+arg(*filter.MaxAmount))
	}
	if filter.CreatedAfter != nil {
		conditions = append(conditions, "i.created_at >= "+arg(*filter.CreatedAfter))
	}
	if filter.CreatedBefore != nil {
		conditions = append(conditions, "i.created_at <= "+arg(*filter.CreatedBefore))
	}
	if filter.PaidAfter != nil {
		conditions = append(conditions, "i.paid_at >= "+arg(*filter.PaidAfter))
	}
	if filter.PaidBefore != nil {
		conditions = append(conditions, "i.paid_at <= "+arg(*filter.PaidBefore))
	}
	if filter.DueDate != nil {
		conditions = append(conditions, "i.due_date = "+arg(*filter.DueDate))
	}
	if filter.ServiceKind != "" {
		conditions = append(conditions,
			"EXISTS (SELECT 1 FROM invoice_items it WHERE it.invoice_id = i.id AND it.service_kind = "+arg(filter.ServiceKind)+")")
	}
	if term := strings.TrimSpace(filter.Search); term != "" {
		pattern := arg("%" + term + "%")
		conditions = append(conditions,
			"(i.invoice_number ILIKE "+pattern+
				" OR EXISTS (SELECT 1 FROM invoice_items it WHERE it.invoice_id = i.id AND it.description ILIKE "+pattern+"))")
	}

	query := `SELECT ` + strings.ReplaceAll(invoiceColumns, "id,", "i.id,") + ` FROM invoices i`
	if len(conditions) > 0 {
		query += " WHERE " + strings.Join(conditions, " AND ")
	}
	query += " ORDER BY i.created_at DESC"
	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}
	query += " LIMIT " + arg(limit)

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var invoices []domain.Invoice
	for rows.Next() {
		var invoice domain.Invoice
		if err := rows.Scan(
			&invoice.ID,
			&invoice.InvoiceNumber,
			&invoice.AgencyID,
			&invoice.TotalAmount,
			&invoice.Status,
			&invoice.DueDate,
			&invoice.PaidAt,
			&invoice.CreatedBy,
			&invoice.CreatedAt,
		); err != nil {
			return nil, err
		}
		invoices = append(invoices, invoice)
	}
	return invoices, rows.Err()
}

// CountUnpaidInvoices returns how many invoices of the agency are still unpaid.
func (r *PostgresRepository) CountUnpaidInvoices(ctx context.Context, agencyID uuid.UUID) (int, error) {
	var count int
	err := r.db.QueryRow(ctx,
		`SELECT COUNT(*) FROM invoices WHERE agency_id = $1 AND status = 'unpaid'`, agencyID).Scan(&count)
	return count, err
}

// ---------------------------------------------------------------------------
// Ledger reads
// ---------------------------------------------------------------------------

// ListTransactions retrieves the filtered ledger for an account, newest first.
// The free-text search covers the row description, the linked invoice number,
// the linked top-up bank reference, and, when the term is numeric, an exact
// amount match.
func (r *PostgresRepository) ListTransactions(ctx context.Context, accountID uuid.UUID, filter domain.LedgerFilter) ([]domain.Transaction, error) {
	var (
		conditions = []string{"t.account_id = $1"}
		args       = []any{accountID}
	)
	arg := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}

	if filter.Type != "" {
		conditions = append(conditions, "t.transaction_type = "+arg(string(filter.Type)))
	}
	if filter.StartDate != nil {
		conditions = append(conditions, "t.created_at >= "+arg(*filter.StartDate))
	}
	if filter.EndDate != nil {
		conditions = append(conditions, "t.created_at <= "+arg(*filter.EndDate))
	}
	if term := strings.TrimSpace(filter.Search); term != "" {
		pattern := arg("%" + term + "%")
		search := "(t.description ILIKE " + pattern +
			" OR i.invoice_number ILIKE " + pattern +
			" OR u.reference_number ILIKE " + pattern
		if amount, err := decimal.NewFromString(strings.ReplaceAll(term, ",", ".")); err == nil {
			search += " OR t.amount = " + arg(amount)
		}
		search += ")"
		conditions = append(conditions, search)
	}

	query := `
		SELECT t.id, t.account_id, t.transaction_type, t.amount, t.balance_after,
		       t.description, t.invoice_id, t.top_up_id, t.service_kind, t.service_id,
		       t.created_by, t.created_at, i.invoice_number, u.reference_number
		FROM transactions t
		LEFT JOIN invoices i ON i.id = t.invoice_id
		LEFT JOIN top_up_requests u ON u.id = t.top_up_id
		WHERE ` + strings.Join(conditions, " AND ") + `
		ORDER BY t.created_at DESC, t.id DESC`
	limit := filter.Limit
	if limit <= 0 {
		limit = 50
	}
	query += " LIMIT " + arg(limit)

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var transactions []domain.Transaction
	for rows.Next() {
		tx, err := scanTransactionRow(rows)
		if err != nil {
			return nil, err
		}
		transactions = append(transactions, *tx)
	}
	return transactions, rows.Err()
}

func scanTransactionRow(row pgx.Row) (*domain.Transaction, error) {
	var tx domain.Transaction
	var kind *string
	var serviceID *int64
	err := row.Scan(
		&tx.ID,
		&tx.AccountID,
		&tx.Type,
		&tx.Amount,
		&tx.BalanceAfter,
		&tx.Description,
		&tx.InvoiceID,
		&tx.TopUpID,
		&kind,
		&serviceID,
		&tx.CreatedBy,
		&tx.CreatedAt,
		&tx.InvoiceNumber,
		&tx.TopUpReference,
	)
	if err != nil {
		return nil, err
	}
	if kind != nil {
		tx.Service.Kind = *kind
	}
	if serviceID != nil {
		tx.Service.ID = *serviceID
	}
	return &tx, nil
}

// SumTransactionsByType totals the signed amounts of one ledger row type.
func (r *PostgresRepository) SumTransactionsByType(ctx context.Context, accountID uuid.UUID, txType domain.TransactionType) (decimal.Decimal, error) {
	var total decimal.Decimal
	err := r.db.QueryRow(ctx, `
		SELECT COALESCE(SUM(amount), 0)
		FROM transactions
		WHERE account_id = $1 AND transaction_type = $2`, accountID, string(txType)).Scan(&total)
	return total, err
}

// ---------------------------------------------------------------------------
// Top-up workflow
// ---------------------------------------------------------------------------

const topUpColumns = `id, account_id, amount, receipt_url, reference_number, status, admin_note, reviewed_by, reviewed_at, created_at`

func scanTopUp(row pgx.Row) (*domain.TopUpRequest, error) {
	var req domain.TopUpRequest
	err := row.Scan(
		&req.ID,
		&req.AccountID,
		&req.Amount,
		&req.ReceiptURL,
		&req.ReferenceNumber,
		&req.Status,
		&req.AdminNote,
		&req.ReviewedBy,
		&req.ReviewedAt,
		&req.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrTopUpNotFound
		}
		return nil, err
	}
	return &req, nil
}

// CreateTopUpRequest persists a new pending deposit request.
func (r *PostgresRepository) CreateTopUpRequest(ctx context.Context, req *domain.TopUpRequest) error {
	req.ID = uuid.New()
	req.Status = domain.TopUpPending
	return r.db.QueryRow(ctx, `
		INSERT INTO top_up_requests (id, account_id, amount, receipt_url, reference_number, status, admin_note, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, '', NOW())
		RETURNING created_at`,
		req.ID, req.AccountID, req.Amount, req.ReceiptURL, req.ReferenceNumber, string(req.Status),
	).Scan(&req.CreatedAt)
}

// FindTopUpByID retrieves a top-up request by its primary key.
func (r *PostgresRepository) FindTopUpByID(ctx context.Context, topUpID uuid.UUID) (*domain.TopUpRequest, error) {
	return scanTopUp(r.db.QueryRow(ctx, `SELECT `+topUpColumns+` FROM top_up_requests WHERE id = $1`, topUpID))
}

// ListTopUpRequests retrieves requests, newest first (the admin review queue).
func (r *PostgresRepository) ListTopUpRequests(ctx context.Context, filter domain.TopUpFilter) ([]domain.TopUpRequest, error) {
	var (
		conditions []string
		args       []any
	)
	arg := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}
	if filter.AccountID != nil {
		conditions = append(conditions, "account_id = "+arg(*filter.AccountID))
	}
	if filter.Status != "" {
		conditions = append(conditions, "status = "+arg(string(filter.Status)))
	}

	query := `SELECT ` + topUpColumns + ` FROM top_up_requests`
	if len(conditions) > 0 {
		query += " WHERE " + strings.Join(conditions, " AND ")
	}
	query += " ORDER BY created_at DESC"
	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}
	query += " LIMIT " + arg(limit)

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var requests []domain.TopUpRequest
	for rows.Next() {
		var req domain.TopUpRequest
		if err := rows.Scan(
			&req.ID,
			&req.AccountID,
			&req.Amount,
			&req.ReceiptURL,
			&req.ReferenceNumber,
			&req.Status,
			&req.AdminNote,
			&req.ReviewedBy,
			&req.ReviewedAt,
			&req.CreatedAt,
		); err != nil {
			return nil, err
		}
		requests = append(requests, req)
	}
	return requests, rows.Err()
}

// ---------------------------------------------------------------------------
// Transaction-scoped repository
// ---------------------------------------------------------------------------

// pgxTxRepository implements TxRepository on top of an open pgx.Tx. All Lock*
// methods use `FOR UPDATE`, so the rows stay exclusively held until the
// surrounding InTx commits or rolls back.
type pgxTxRepository struct {
	tx pgx.Tx
}

func (r *pgxTxRepository) LockAccount(ctx context.Context, accountID uuid.UUID) (*domain.Account, error) {
	query := `SELECT ` + accountColumns + ` FROM accounts WHERE id = $1 FOR UPDATE`
	return scanAccount(r.tx.QueryRow(ctx, query, accountID))
}

func (r *pgxTxRepository) LockAccountByAgency(ctx context.Context, agencyID uuid.UUID) (*domain.Account, error) {
	query := `SELECT ` + accountColumns + ` FROM accounts WHERE agency_id = $1 FOR UPDATE`
	return scanAccount(r.tx.QueryRow(ctx, query, agencyID))
}

func (r *pgxTxRepository) UpdateAccountBalances(ctx context.Context, account *domain.Account) error {
	result, err := r.tx.Exec(ctx, `
		UPDATE accounts
		SET balance = $1, unpaid_hold = $2, updated_at = NOW()
		WHERE id = $3`,
		account.Balance, account.UnpaidHold, account.ID)
	if err != nil {
		return err
	}
	if result.RowsAffected() == 0 {
		return ErrAccountNotFound
	}
	return nil
}

// SetCreditLimit performs the limit write and the audit insert together;
// callers cannot get one without the other.
func (r *pgxTxRepository) SetCreditLimit(ctx context.Context, account *domain.Account, newLimit decimal.Decimal, changedBy *uuid.UUID, reason string) error {
	result, err := r.tx.Exec(ctx, `
		UPDATE accounts
		SET credit_limit = $1, updated_at = NOW()
		WHERE id = $2`,
		newLimit, account.ID)
	if err != nil {
		return err
	}
	if result.RowsAffected() == 0 {
		return ErrAccountNotFound
	}

	_, err = r.tx.Exec(ctx, `
		INSERT INTO credit_limit_history (id, account_id, old_limit, new_limit, reason, changed_by, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, NOW())`,
		uuid.New(), account.ID, account.CreditLimit, newLimit, reason, changedBy)
	if err != nil {
		return err
	}

	account.CreditLimit = newLimit
	return nil
}

func (r *pgxTxRepository) InsertTransaction(ctx context.Context, tx *domain.Transaction) error {
	tx.ID = uuid.New()
	var kind *string
	var serviceID *int64
	if !tx.Service.IsZero() {
		kind = &tx.Service.Kind
		serviceID = &tx.Service.ID
	}
	return r.tx.QueryRow(ctx, `
		INSERT INTO transactions (id, account_id, transaction_type, amount, balance_after,
		                          description, invoice_id, top_up_id, service_kind, service_id,
		                          created_by, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, NOW())
		RETURNING created_at`,
		tx.ID, tx.AccountID, string(tx.Type), tx.Amount, tx.BalanceAfter,
		tx.Description, tx.InvoiceID, tx.TopUpID, kind, serviceID, tx.CreatedBy,
	).Scan(&tx.CreatedAt)
}

func (r *pgxTxRepository) LockInvoice(ctx context.Context, invoiceID uuid.UUID) (*domain.Invoice, error) {
	invoice, err := scanInvoice(r.tx.QueryRow(ctx,
		`SELECT `+invoiceColumns+` FROM invoices WHERE id = $1 FOR UPDATE`, invoiceID))
	if err != nil {
		return nil, err
	}
	if err := loadInvoiceItems(ctx, r.tx, invoice); err != nil {
		return nil, err
	}
	return invoice, nil
}

func (r *pgxTxRepository) LockUnpaidInvoicesByAgency(ctx context.Context, agencyID uuid.UUID) ([]domain.Invoice, error) {
	rows, err := r.tx.Query(ctx, `
		SELECT `+invoiceColumns+`
		FROM invoices
		WHERE agency_id = $1 AND status = 'unpaid'
		ORDER BY created_at ASC
		FOR UPDATE`, agencyID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectInvoices(rows)
}

func (r *pgxTxRepository) LockInvoices(ctx context.Context, invoiceIDs []uuid.UUID) ([]domain.Invoice, error) {
	// Creation order keeps the lock sequence deterministic across callers.
	rows, err := r.tx.Query(ctx, `
		SELECT `+invoiceColumns+`
		FROM invoices
		WHERE id = ANY($1)
		ORDER BY created_at ASC, id ASC
		FOR UPDATE`, invoiceIDs)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectInvoices(rows)
}

func collectInvoices(rows pgx.Rows) ([]domain.Invoice, error) {
	var invoices []domain.Invoice
	for rows.Next() {
		var invoice domain.Invoice
		if err := rows.Scan(
			&invoice.ID,
			&invoice.InvoiceNumber,
			&invoice.AgencyID,
			&invoice.TotalAmount,
			&invoice.Status,
			&invoice.DueDate,
			&invoice.PaidAt,
			&invoice.CreatedBy,
			&invoice.CreatedAt,
		); err != nil {
			return nil, err
		}
		invoices = append(invoices, invoice)
	}
	return invoices, rows.Err()
}

// newInvoiceNumber builds a short human-facing reference like INV-48301275.
func newInvoiceNumber() string {
	return fmt.Sprintf("INV-%08d", rand.Intn(100_000_000))
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

func (r *pgxTxRepository) InsertInvoice(ctx context.Context, invoice *domain.Invoice) error {
	invoice.ID = uuid.New()

	// Retry a handful of times on invoice number collisions.
	var err error
	for attempt := 0; attempt < 5; attempt++ {
		invoice.InvoiceNumber = newInvoiceNumber()
		err = r.tx.QueryRow(ctx, `
			INSERT INTO invoices (id, invoice_number, agency_id, total_amount, status, due_date, created_by, created_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, NOW())
			RETURNING created_at`,
			invoice.ID, invoice.InvoiceNumber, invoice.AgencyID, invoice.TotalAmount,
			string(invoice.Status), invoice.DueDate, invoice.CreatedBy,
		).Scan(&invoice.CreatedAt)
		if err == nil {
			break
		}
		if !isUniqueViolation(err) {
			return err
		}
	}
	if err != nil {
		return err
	}

	for i := range invoice.Items {
		item := &invoice.Items[i]
		item.ID = uuid.New()
		item.InvoiceID = invoice.ID
		var kind *string
		var serviceID *int64
		if !item.Service.IsZero() {
			kind = &item.Service.Kind
			serviceID = &item.Service.ID
		}
		if _, err := r.tx.Exec(ctx, `
			INSERT INTO invoice_items (id, invoice_id, description, amount, service_kind, service_id)
			VALUES ($1, $2, $3, $4, $5, $6)`,
			item.ID, item.InvoiceID, item.Description, item.Amount, kind, serviceID); err != nil {
			return err
		}
	}
	return nil
}

func (r *pgxTxRepository) UpdateInvoiceStatus(ctx context.Context, invoiceID uuid.UUID, status domain.InvoiceStatus, paidAt *time.Time) error {
	result, err := r.tx.Exec(ctx, `
		UPDATE invoices SET status = $1, paid_at = COALESCE($2, paid_at) WHERE id = $3`,
		string(status), paidAt, invoiceID)
	if err != nil {
		return err
	}
	if result.RowsAffected() == 0 {
		return ErrInvoiceNotFound
	}
	return nil
}

func (r *pgxTxRepository) LockTopUp(ctx context.Context, topUpID uuid.UUID) (*domain.TopUpRequest, error) {
	return scanTopUp(r.tx.QueryRow(ctx,
		`SELECT `+topUpColumns+` FROM top_up_requests WHERE id = $1 FOR UPDATE`, topUpID))
}

func (r *pgxTxRepository) UpdateTopUpReview(ctx context.Context, req *domain.TopUpRequest) error {
	result, err := r.tx.Exec(ctx, `
		UPDATE top_up_requests
		SET status = $1, admin_note = $2, reviewed_by = $3, reviewed_at = $4
		WHERE id = $5`,
		string(req.Status), req.AdminNote, req.ReviewedBy, req.ReviewedAt, req.ID)
	if err != nil {
		return err
	}
	if result.RowsAffected() == 0 {
		return ErrTopUpNotFound
	}
	return nil
}
