package app

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/easybooking/wallet-service/internal/domain"
	"github.com/easybooking/wallet-service/internal/store"
)

// memStore is an in-memory stand-in for the Postgres repository. InTx
// serializes callers with a mutex (modelling the row locks) and restores a
// snapshot when the closure fails, so aborted atomic units leave no partial
// writes, the same guarantee the real store gets from transaction rollback.
type memStore struct {
	mu sync.Mutex

	accounts map[uuid.UUID]*domain.Account
	byAgency map[uuid.UUID]uuid.UUID
	invoices map[uuid.UUID]*domain.Invoice
	topUps   map[uuid.UUID]*domain.TopUpRequest
	ledger   []domain.Transaction
	history  []domain.CreditLimitChange

	clock time.Time
	seq   int
}

func newMemStore() *memStore {
	return &memStore{
		accounts: make(map[uuid.UUID]*domain.Account),
		byAgency: make(map[uuid.UUID]uuid.UUID),
		invoices: make(map[uuid.UUID]*domain.Invoice),
		topUps:   make(map[uuid.UUID]*domain.TopUpRequest),
		clock:    time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC),
	}
}

func (m *memStore) tick() time.Time {
	m.seq++
	return m.clock.Add(time.Duration(m.seq) * time.Second)
}

type memSnapshot struct {
	accounts map[uuid.UUID]*domain.Account
	byAgency map[uuid.UUID]uuid.UUID
	invoices map[uuid.UUID]*domain.Invoice
	topUps   map[uuid.UUID]*domain.TopUpRequest
	ledger   []domain.Transaction
	history  []domain.CreditLimitChange
	seq      int
}

func (m *memStore) snapshot() memSnapshot {
	s := memSnapshot{
		accounts: make(map[uuid.UUID]*domain.Account, len(m.accounts)),
		byAgency: make(map[uuid.UUID]uuid.UUID, len(m.byAgency)),
		invoices: make(map[uuid.UUID]*domain.Invoice, len(m.invoices)),
		topUps:   make(map[uuid.UUID]*domain.TopUpRequest, len(m.topUps)),
		ledger:   append([]domain.Transaction(nil), m.ledger...),
		history:  append([]domain.CreditLimitChange(nil), m.history...),
		seq:      m.seq,
	}
	for id, a := range m.accounts {
		copied := *a
		s.accounts[id] = &copied
	}
	for id, a := range m.byAgency {
		s.byAgency[id] = a
	}
	for id, inv := range m.invoices {
		copied := *inv
		copied.Items = append([]domain.InvoiceItem(nil), inv.Items...)
		s.invoices[id] = &copied
	}
	for id, t := range m.topUps {
		copied := *t
		s.topUps[id] = &copied
	}
	return s
}

func (m *memStore) restore(s memSnapshot) {
	m.accounts = s.accounts
	m.byAgency = s.byAgency
	m.invoices = s.invoices
	m.topUps = s.topUps
	m.ledger = s.ledger
	m.history = s.history
	m.seq = s.seq
}

func (m *memStore) InTx(ctx context.Context, fn func(tx store.TxRepository) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	snap := m.snapshot()
	if err := fn(m); err != nil {
		m.restore(snap)
		return err
	}
	return nil
}

// --- Repository reads ---

func (m *memStore) GetOrCreateAccountByAgency(ctx context.Context, agencyID uuid.UUID) (*domain.Account, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if id, ok := m.byAgency[agencyID]; ok {
		copied := *m.accounts[id]
		return &copied, nil
	}
	account := &domain.Account{
		ID:        uuid.New(),
		AgencyID:  agencyID,
		CreatedAt: m.tick(),
	}
	account.UpdatedAt = account.CreatedAt
	m.accounts[account.ID] = account
	m.byAgency[agencyID] = account.ID
	copied := *account
	return &copied, nil
}

func (m *memStore) FindAccountByID(ctx context.Context, accountID uuid.UUID) (*domain.Account, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.findAccount(accountID)
}

func (m *memStore) findAccount(accountID uuid.UUID) (*domain.Account, error) {
	account, ok := m.accounts[accountID]
	if !ok {
		return nil, store.ErrAccountNotFound
	}
	copied := *account
	return &copied, nil
}

func (m *memStore) FindAccountByAgencyID(ctx context.Context, agencyID uuid.UUID) (*domain.Account, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	id, ok := m.byAgency[agencyID]
	if !ok {
		return nil, store.ErrAccountNotFound
	}
	return m.findAccount(id)
}

func (m *memStore) FindInvoiceByID(ctx context.Context, invoiceID uuid.UUID) (*domain.Invoice, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.findInvoice(invoiceID)
}

func (m *memStore) findInvoice(invoiceID uuid.UUID) (*domain.Invoice, error) {
	invoice, ok := m.invoices[invoiceID]
	if !ok {
		return nil, store.ErrInvoiceNotFound
	}
	copied := *invoice
	copied.Items = append([]domain.InvoiceItem(nil), invoice.Items...)
	return &copied, nil
}

func (m *memStore) ListInvoices(ctx context.Context, filter domain.InvoiceFilter) ([]domain.Invoice, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.Invoice
	for _, inv := range m.invoices {
		if filter.AgencyID != nil && inv.AgencyID != *filter.AgencyID {
			continue
		}
		if filter.Status != "" && inv.Status != filter.Status {
			continue
		}
		if term := strings.TrimSpace(filter.Search); term != "" &&
			!strings.Contains(inv.InvoiceNumber, term) {
			continue
		}
		copied := *inv
		out = append(out, copied)
	}
	return out, nil
}

func (m *memStore) CountUnpaidInvoices(ctx context.Context, agencyID uuid.UUID) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	count := 0
	for _, inv := range m.invoices {
		if inv.AgencyID == agencyID && inv.Status == domain.InvoiceUnpaid {
			count++
		}
	}
	return count, nil
}

func (m *memStore) ListTransactions(ctx context.Context, accountID uuid.UUID, filter domain.LedgerFilter) ([]domain.Transaction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.Transaction
	// Newest first, like the SQL implementation.
	for i := len(m.ledger) - 1; i >= 0; i-- {
		t := m.ledger[i]
		if t.AccountID != accountID {
			continue
		}
		if filter.Type != "" && t.Type != filter.Type {
			continue
		}
		if filter.StartDate != nil && t.CreatedAt.Before(*filter.StartDate) {
			continue
		}
		if filter.EndDate != nil && t.CreatedAt.After(*filter.EndDate) {
			continue
		}
		out = append(out, t)
	}
	return out, nil
}

func (m *memStore) SumTransactionsByType(ctx context.Context, accountID uuid.UUID, txType domain.TransactionType) (decimal.Decimal, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	total := decimal.Zero
	for _, t := range m.ledger {
		if t.AccountID == accountID && t.Type == txType {
			total = total.Add(t.Amount)
		}
	}
	return total, nil
}

func (m *memStore) CreateTopUpRequest(ctx context.Context, req *domain.TopUpRequest) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	req.ID = uuid.New()
	req.Status = domain.TopUpPending
	req.CreatedAt = m.tick()
	copied := *req
	m.topUps[req.ID] = &copied
	return nil
}

func (m *memStore) FindTopUpByID(ctx context.Context, topUpID uuid.UUID) (*domain.TopUpRequest, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.findTopUp(topUpID)
}

func (m *memStore) findTopUp(topUpID uuid.UUID) (*domain.TopUpRequest, error) {
	req, ok := m.topUps[topUpID]
	if !ok {
		return nil, store.ErrTopUpNotFound
	}
	copied := *req
	return &copied, nil
}

func (m *memStore) ListTopUpRequests(ctx context.Context, filter domain.TopUpFilter) ([]domain.TopUpRequest, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.TopUpRequest
	for _, req := range m.topUps {
		if filter.AccountID != nil && req.AccountID != *filter.AccountID {
			continue
		}
		if filter.Status != "" && req.Status != filter.Status {
			continue
		}
		out = append(out, *req)
	}
	return out, nil
}

// --- TxRepository (already serialized by InTx's mutex) ---

func (m *memStore) LockAccount(ctx context.Context, accountID uuid.UUID) (*domain.Account, error) {
	return m.findAccount(accountID)
}

func (m *memStore) LockAccountByAgency(ctx context.Context, agencyID uuid.UUID) (*domain.Account, error) {
	id, ok := m.byAgency[agencyID]
	if !ok {
		return nil, store.ErrAccountNotFound
	}
	return m.findAccount(id)
}

func (m *memStore) UpdateAccountBalances(ctx context.Context, account *domain.Account) error {
	stored, ok := m.accounts[account.ID]
	if !ok {
		return store.ErrAccountNotFound
	}
	stored.Balance = account.Balance
	stored.UnpaidHold = account.UnpaidHold
	stored.UpdatedAt = m.tick()
	return nil
}

func (m *memStore) SetCreditLimit(ctx context.Context, account *domain.Account, newLimit decimal.Decimal, changedBy *uuid.UUID, reason string) error {
	stored, ok := m.accounts[account.ID]
	if !ok {
		return store.ErrAccountNotFound
	}
	m.history = append(m.history, domain.CreditLimitChange{
		ID:        uuid.New(),
		AccountID: account.ID,
		OldLimit:  stored.CreditLimit,
		NewLimit:  newLimit,
		Reason:    reason,
		ChangedBy: changedBy,
		CreatedAt: m.tick(),
	})
	stored.CreditLimit = newLimit
	account.CreditLimit = newLimit
	return nil
}

func (m *memStore) InsertTransaction(ctx context.Context, tx *domain.Transaction) error {
	tx.ID = uuid.New()
	tx.CreatedAt = m.tick()
	m.ledger = append(m.ledger, *tx)
	return nil
}

func (m *memStore) LockInvoice(ctx context.Context, invoiceID uuid.UUID) (*domain.Invoice, error) {
	return m.findInvoice(invoiceID)
}

func (m *memStore) LockUnpaidInvoicesByAgency(ctx context.Context, agencyID uuid.UUID) ([]domain.Invoice, error) {
	var out []domain.Invoice
	for _, inv := range m.invoices {
		if inv.AgencyID == agencyID && inv.Status == domain.InvoiceUnpaid {
			out = append(out, *inv)
		}
	}
	// Oldest first.
	for i := 0; i < len(out); i++ {
		for j := i + 1; j < len(out); j++ {
			if out[j].CreatedAt.Before(out[i].CreatedAt) {
				out[i], out[j] = out[j], out[i]
			}
		}
	}
	return out, nil
}

func (m *memStore) LockInvoices(ctx context.Context, invoiceIDs []uuid.UUID) ([]domain.Invoice, error) {
	var out []domain.Invoice
	for _, id := range invoiceIDs {
		inv, ok := m.invoices[id]
		if !ok {
			continue
		}
		out = append(out, *inv)
	}
	for i := 0; i < len(out); i++ {
		for j := i + 1; j < len(out); j++ {
			if out[j].CreatedAt.Before(out[i].CreatedAt) {
				out[i], out[j] = out[j], out[i]
			}
		}
	}
	return out, nil
}

func (m *memStore) InsertInvoice(ctx context.Context, invoice *domain.Invoice) error {
	invoice.ID = uuid.New()
	invoice.InvoiceNumber = "INV-" + invoice.ID.String()[:8]
	invoice.CreatedAt = m.tick()
	for i := range invoice.Items {
		invoice.Items[i].ID = uuid.New()
		invoice.Items[i].InvoiceID = invoice.ID
	}
	copied := *invoice
	copied.Items = append([]domain.InvoiceItem(nil), invoice.Items...)
	m.invoices[invoice.ID] = &copied
	return nil
}

func (m *memStore) UpdateInvoiceStatus(ctx context.Context, invoiceID uuid.UUID, status domain.InvoiceStatus, paidAt *time.Time) error {
	stored, ok := m.invoices[invoiceID]
	if !ok {
		return store.ErrInvoiceNotFound
	}
	stored.Status = status
	if paidAt != nil {
		stored.PaidAt = paidAt
	}
	return nil
}

func (m *memStore) LockTopUp(ctx context.Context, topUpID uuid.UUID) (*domain.TopUpRequest, error) {
	return m.findTopUp(topUpID)
}

func (m *memStore) UpdateTopUpReview(ctx context.Context, req *domain.TopUpRequest) error {
	stored, ok := m.topUps[req.ID]
	if !ok {
		return store.ErrTopUpNotFound
	}
	stored.Status = req.Status
	stored.AdminNote = req.AdminNote
	stored.ReviewedBy = req.ReviewedBy
	stored.ReviewedAt = req.ReviewedAt
	return nil
}

// capturePublisher records published events for assertions.
type capturePublisher struct {
	mu     sync.Mutex
	events []capturedEvent
}

type capturedEvent struct {
	RoutingKey string
	Body       interface{}
}

func (p *capturePublisher) Publish(ctx context.Context, exchange, routingKey string, body interface{}) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, capturedEvent{RoutingKey: routingKey, Body: body})
	return nil
}

func (p *capturePublisher) Close() {}

func (p *capturePublisher) byKey(routingKey string) []capturedEvent {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []capturedEvent
	for _, e := range p.events {
		if e.RoutingKey == routingKey {
			out = append(out, e)
		}
	}
	return out
}
