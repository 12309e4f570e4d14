package app

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/easybooking/wallet-service/internal/domain"
	"github.com/easybooking/wallet-service/internal/store"
)

func mustInvoice(t *testing.T, svc *Service, agencyID uuid.UUID, amount string) *domain.Invoice {
	t.Helper()
	invoice, err := svc.CreateInvoice(context.Background(), agencyID,
		[]domain.InvoiceItemInput{{Description: "Service", Amount: dec(amount)}}, nil, nil)
	if err != nil {
		t.Fatalf("create invoice for %s: %v", amount, err)
	}
	return invoice
}

// unpaidHoldMatchesInvoices asserts the reservation invariant: the account's
// hold always equals the sum of its unpaid invoice totals.
func unpaidHoldMatchesInvoices(t *testing.T, mem *memStore, accountID uuid.UUID) {
	t.Helper()
	account, err := mem.FindAccountByID(context.Background(), accountID)
	if err != nil {
		t.Fatalf("find account: %v", err)
	}
	sum := decimal.Zero
	for _, inv := range mem.invoices {
		if inv.AgencyID == account.AgencyID && inv.Status == domain.InvoiceUnpaid {
			sum = sum.Add(inv.TotalAmount)
		}
	}
	if !account.UnpaidHold.Equal(sum) {
		t.Fatalf("hold %s != sum of unpaid invoices %s", account.UnpaidHold, sum)
	}
}

func TestCreateSingleServiceInvoice(t *testing.T) {
	svc, mem, _ := newTestService(t)
	account := seedAccount(t, mem, "0", "10000")
	ctx := context.Background()

	invoice, err := svc.CreateSingleServiceInvoice(ctx, account.AgencyID,
		domain.ServiceRef{Kind: "ferry", ID: 42}, dec("1200"), "Ferry crossing ATH-HER", nil)
	if err != nil {
		t.Fatalf("create single service invoice: %v", err)
	}
	if len(invoice.Items) != 1 {
		t.Fatalf("expected 1 item, got %d", len(invoice.Items))
	}
	item := invoice.Items[0]
	if item.Service.Kind != "ferry" || item.Service.ID != 42 {
		t.Fatalf("unexpected service link: %+v", item.Service)
	}
	if !invoice.TotalAmount.Equal(dec("1200")) {
		t.Fatalf("expected total 1200, got %s", invoice.TotalAmount)
	}
	unpaidHoldMatchesInvoices(t, mem, account.ID)
}

func TestCreateInvoiceRejectsEmptyItems(t *testing.T) {
	svc, mem, _ := newTestService(t)
	account := seedAccount(t, mem, "0", "10000")

	_, err := svc.CreateInvoice(context.Background(), account.AgencyID, nil, nil, nil)
	if !errors.Is(err, ErrEmptyInvoice) {
		t.Fatalf("expected ErrEmptyInvoice, got %v", err)
	}
}

func TestCreateInvoiceReservesCredit(t *testing.T) {
	svc, mem, _ := newTestService(t)
	account := seedAccount(t, mem, "0", "10000")
	ctx := context.Background()

	invoice, err := svc.CreateInvoice(ctx, account.AgencyID, []domain.InvoiceItemInput{
		{Description: "Hotel 3 nights", Amount: dec("4000")},
		{Description: "Airport transfer", Amount: dec("600")},
	}, nil, nil)
	if err != nil {
		t.Fatalf("create invoice: %v", err)
	}
	if !invoice.TotalAmount.Equal(dec("4600")) {
		t.Fatalf("expected total 4600, got %s", invoice.TotalAmount)
	}
	if invoice.Status != domain.InvoiceUnpaid {
		t.Fatalf("expected unpaid, got %s", invoice.Status)
	}
	if invoice.InvoiceNumber == "" {
		t.Fatal("expected an assigned invoice number")
	}
	if len(invoice.Items) != 2 {
		t.Fatalf("expected 2 items, got %d", len(invoice.Items))
	}

	stored, _ := mem.FindAccountByID(ctx, account.ID)
	if !stored.UnpaidHold.Equal(dec("4600")) {
		t.Fatalf("expected hold 4600, got %s", stored.UnpaidHold)
	}
	if !stored.Balance.IsZero() {
		t.Fatalf("creation must not touch cash, balance=%s", stored.Balance)
	}
	// Booking never writes ledger rows. Cash moves only at settlement.
	if len(mem.ledger) != 0 {
		t.Fatalf("expected empty ledger after creation, got %d rows", len(mem.ledger))
	}
	unpaidHoldMatchesInvoices(t, mem, account.ID)
}

func TestCreateInvoiceCreditGate(t *testing.T) {
	svc, mem, _ := newTestService(t)
	account := seedAccount(t, mem, "0", "10000")
	ctx := context.Background()

	mustInvoice(t, svc, account.AgencyID, "7000")

	// 3000 buying power left; 3001 must fail with exact detail.
	_, err := svc.CreateInvoice(ctx, account.AgencyID,
		[]domain.InvoiceItemInput{{Description: "Visa", Amount: dec("3001")}}, nil, nil)
	var limit *CreditLimitExceededError
	if !errors.As(err, &limit) {
		t.Fatalf("expected CreditLimitExceededError, got %v", err)
	}
	if !limit.Available.Equal(dec("3000")) || !limit.Required.Equal(dec("3001")) {
		t.Fatalf("unexpected detail: available=%s required=%s", limit.Available, limit.Required)
	}

	// A rejected booking reserves nothing.
	stored, _ := mem.FindAccountByID(ctx, account.ID)
	if !stored.UnpaidHold.Equal(dec("7000")) {
		t.Fatalf("expected hold unchanged at 7000, got %s", stored.UnpaidHold)
	}

	// Exactly the remaining buying power is fine.
	mustInvoice(t, svc, account.AgencyID, "3000")
	unpaidHoldMatchesInvoices(t, mem, account.ID)
}

func TestPayInvoiceScenario(t *testing.T) {
	// The canonical two-gate walk: book on credit with zero cash, fail to
	// settle, deposit exactly the invoice amount, settle.
	svc, mem, pub := newTestService(t)
	account := seedAccount(t, mem, "0", "50000")
	ctx := context.Background()

	invoice := mustInvoice(t, svc, account.AgencyID, "30000")

	_, err := svc.PayInvoice(ctx, invoice.ID, nil)
	var cash *InsufficientCashError
	if !errors.As(err, &cash) {
		t.Fatalf("expected InsufficientCashError, got %v", err)
	}
	if !cash.Balance.IsZero() || !cash.Required.Equal(dec("30000")) || !cash.Missing().Equal(dec("30000")) {
		t.Fatalf("unexpected detail: %+v missing=%s", cash, cash.Missing())
	}

	// Failed settlement changed nothing.
	stored, _ := mem.FindAccountByID(ctx, account.ID)
	if !stored.UnpaidHold.Equal(dec("30000")) || !stored.Balance.IsZero() {
		t.Fatalf("failed settlement mutated account: %+v", stored)
	}
	if len(mem.ledger) != 0 {
		t.Fatal("failed settlement wrote a ledger row")
	}

	if _, err := svc.ExecuteTransaction(ctx, account.ID, dec("30000"), domain.TransactionDeposit, "wire in", nil, TransactionLinks{}); err != nil {
		t.Fatalf("deposit: %v", err)
	}

	paid, err := svc.PayInvoice(ctx, invoice.ID, nil)
	if err != nil {
		t.Fatalf("settlement after deposit: %v", err)
	}
	if paid.Status != domain.InvoicePaid || paid.PaidAt == nil {
		t.Fatalf("expected paid with timestamp, got %+v", paid)
	}

	stored, _ = mem.FindAccountByID(ctx, account.ID)
	if !stored.Balance.IsZero() || !stored.UnpaidHold.IsZero() {
		t.Fatalf("expected zero balance and hold, got balance=%s hold=%s", stored.Balance, stored.UnpaidHold)
	}
	unpaidHoldMatchesInvoices(t, mem, account.ID)

	// Deposit row then payment row, each with a correct snapshot.
	if len(mem.ledger) != 2 {
		t.Fatalf("expected 2 ledger rows, got %d", len(mem.ledger))
	}
	payment := mem.ledger[1]
	if payment.Type != domain.TransactionPayment || !payment.Amount.Equal(dec("-30000")) || !payment.BalanceAfter.IsZero() {
		t.Fatalf("unexpected payment row: %+v", payment)
	}
	if payment.InvoiceID == nil || *payment.InvoiceID != invoice.ID {
		t.Fatal("payment row must reference its invoice")
	}

	if events := pub.byKey(domain.RouteInvoiceSettled); len(events) != 1 {
		t.Fatalf("expected 1 invoice_settled event, got %d", len(events))
	}
}

func TestPayInvoiceRejectsSettledStates(t *testing.T) {
	svc, mem, _ := newTestService(t)
	account := seedAccount(t, mem, "5000", "10000")
	ctx := context.Background()

	invoice := mustInvoice(t, svc, account.AgencyID, "1000")
	if _, err := svc.PayInvoice(ctx, invoice.ID, nil); err != nil {
		t.Fatalf("first settlement: %v", err)
	}

	if _, err := svc.PayInvoice(ctx, invoice.ID, nil); !errors.Is(err, ErrAlreadySettled) {
		t.Fatalf("expected ErrAlreadySettled, got %v", err)
	}

	// Double settlement must not double-charge.
	stored, _ := mem.FindAccountByID(ctx, account.ID)
	if !stored.Balance.Equal(dec("4000")) {
		t.Fatalf("expected balance 4000, got %s", stored.Balance)
	}
}

func TestConcurrentPayInvoiceSingleWinner(t *testing.T) {
	svc, mem, _ := newTestService(t)
	account := seedAccount(t, mem, "5000", "10000")
	invoice := mustInvoice(t, svc, account.AgencyID, "1000")

	const attempts = 8
	errs := make([]error, attempts)
	var wg sync.WaitGroup
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func(slot int) {
			defer wg.Done()
			_, errs[slot] = svc.PayInvoice(context.Background(), invoice.ID, nil)
		}(i)
	}
	wg.Wait()

	wins := 0
	for _, err := range errs {
		switch {
		case err == nil:
			wins++
		case errors.Is(err, ErrAlreadySettled):
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	if wins != 1 {
		t.Fatalf("expected exactly one winner, got %d", wins)
	}

	stored, _ := mem.FindAccountByID(context.Background(), account.ID)
	if !stored.Balance.Equal(dec("4000")) {
		t.Fatalf("expected single charge to 4000, got %s", stored.Balance)
	}
	if len(mem.ledger) != 1 {
		t.Fatalf("expected 1 ledger row, got %d", len(mem.ledger))
	}
}

func TestCancelInvoice(t *testing.T) {
	svc, mem, _ := newTestService(t)
	account := seedAccount(t, mem, "0", "10000")
	ctx := context.Background()

	invoice := mustInvoice(t, svc, account.AgencyID, "2500")

	cancelled, err := svc.CancelInvoice(ctx, invoice.ID, nil)
	if err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if cancelled.Status != domain.InvoiceCancelled {
		t.Fatalf("expected cancelled, got %s", cancelled.Status)
	}

	stored, _ := mem.FindAccountByID(ctx, account.ID)
	if !stored.UnpaidHold.IsZero() {
		t.Fatalf("expected hold released, got %s", stored.UnpaidHold)
	}
	if len(mem.ledger) != 0 {
		t.Fatal("cancellation must not write ledger rows")
	}

	// Terminal: no second cancel, no settle.
	if _, err := svc.CancelInvoice(ctx, invoice.ID, nil); !errors.Is(err, ErrInvalidStateTransition) {
		t.Fatalf("expected ErrInvalidStateTransition, got %v", err)
	}
	if _, err := svc.PayInvoice(ctx, invoice.ID, nil); !errors.Is(err, ErrAlreadySettled) {
		t.Fatalf("expected ErrAlreadySettled, got %v", err)
	}
}

func TestRefundInvoice(t *testing.T) {
	svc, mem, _ := newTestService(t)
	account := seedAccount(t, mem, "3000", "10000")
	ctx := context.Background()

	invoice := mustInvoice(t, svc, account.AgencyID, "2000")

	// Unpaid invoices are not refundable.
	if _, err := svc.RefundInvoice(ctx, invoice.ID, nil, ""); !errors.Is(err, ErrNotRefundable) {
		t.Fatalf("expected ErrNotRefundable, got %v", err)
	}

	if _, err := svc.PayInvoice(ctx, invoice.ID, nil); err != nil {
		t.Fatalf("pay: %v", err)
	}

	refunded, err := svc.RefundInvoice(ctx, invoice.ID, nil, "Trip cancelled")
	if err != nil {
		t.Fatalf("refund: %v", err)
	}
	if refunded.Status != domain.InvoiceRefunded {
		t.Fatalf("expected refunded, got %s", refunded.Status)
	}

	stored, _ := mem.FindAccountByID(ctx, account.ID)
	if !stored.Balance.Equal(dec("3000")) {
		t.Fatalf("expected cash restored to 3000, got %s", stored.Balance)
	}
	// The hold was released at settlement and stays released.
	if !stored.UnpaidHold.IsZero() {
		t.Fatalf("expected hold untouched at zero, got %s", stored.UnpaidHold)
	}

	last := mem.ledger[len(mem.ledger)-1]
	if last.Type != domain.TransactionRefund || !last.Amount.Equal(dec("2000")) {
		t.Fatalf("unexpected refund row: %+v", last)
	}

	// Refunded is terminal too.
	if _, err := svc.RefundInvoice(ctx, invoice.ID, nil, ""); !errors.Is(err, ErrNotRefundable) {
		t.Fatalf("expected ErrNotRefundable on second refund, got %v", err)
	}
}

func TestBulkPayInvoicesAllOrNothing(t *testing.T) {
	svc, mem, _ := newTestService(t)
	account := seedAccount(t, mem, "10000", "50000")
	ctx := context.Background()

	first := mustInvoice(t, svc, account.AgencyID, "5000")
	second := mustInvoice(t, svc, account.AgencyID, "4000")
	third := mustInvoice(t, svc, account.AgencyID, "6000")
	ids := []uuid.UUID{first.ID, second.ID, third.ID}

	// 15000 against 10000: the batch fails as a whole, even though the first
	// two alone would fit.
	_, err := svc.BulkPayInvoices(ctx, ids, nil)
	var cash *InsufficientCashError
	if !errors.As(err, &cash) {
		t.Fatalf("expected InsufficientCashError, got %v", err)
	}
	if !cash.Required.Equal(dec("15000")) || !cash.Missing().Equal(dec("5000")) {
		t.Fatalf("unexpected detail: required=%s missing=%s", cash.Required, cash.Missing())
	}
	stored, _ := mem.FindAccountByID(ctx, account.ID)
	if !stored.Balance.Equal(dec("10000")) || !stored.UnpaidHold.Equal(dec("15000")) {
		t.Fatalf("failed batch mutated account: balance=%s hold=%s", stored.Balance, stored.UnpaidHold)
	}
	if len(mem.ledger) != 0 {
		t.Fatal("failed batch wrote ledger rows")
	}
	for _, id := range ids {
		inv, _ := mem.FindInvoiceByID(ctx, id)
		if inv.Status != domain.InvoiceUnpaid {
			t.Fatalf("invoice %s left unpaid state: %s", inv.InvoiceNumber, inv.Status)
		}
	}

	// Top the gap up and retry: everything settles at once.
	if _, err := svc.ExecuteTransaction(ctx, account.ID, dec("5000"), domain.TransactionDeposit, "wire in", nil, TransactionLinks{}); err != nil {
		t.Fatalf("deposit: %v", err)
	}
	result, err := svc.BulkPayInvoices(ctx, ids, nil)
	if err != nil {
		t.Fatalf("bulk pay: %v", err)
	}
	if result.PaidCount != 3 || !result.TotalPaid.Equal(dec("15000")) {
		t.Fatalf("unexpected result: %+v", result)
	}

	stored, _ = mem.FindAccountByID(ctx, account.ID)
	if !stored.Balance.IsZero() || !stored.UnpaidHold.IsZero() {
		t.Fatalf("expected drained account, got balance=%s hold=%s", stored.Balance, stored.UnpaidHold)
	}
	unpaidHoldMatchesInvoices(t, mem, account.ID)

	// One ledger row per invoice, snapshots descending like sequential
	// settlement: 10000, 6000, 0 (deposit row first).
	if len(mem.ledger) != 4 {
		t.Fatalf("expected 4 ledger rows, got %d", len(mem.ledger))
	}
	wantAfter := []string{"10000", "6000", "0"}
	for i, want := range wantAfter {
		row := mem.ledger[i+1]
		if !row.BalanceAfter.Equal(dec(want)) {
			t.Fatalf("row %d: expected balance_after %s, got %s", i+1, want, row.BalanceAfter)
		}
	}
}

func TestBulkPayInvoicesValidation(t *testing.T) {
	svc, mem, _ := newTestService(t)
	account := seedAccount(t, mem, "10000", "50000")
	other := seedAccount(t, mem, "10000", "50000")
	ctx := context.Background()

	invoice := mustInvoice(t, svc, account.AgencyID, "1000")
	foreign := mustInvoice(t, svc, other.AgencyID, "1000")

	if _, err := svc.BulkPayInvoices(ctx, nil, nil); !errors.Is(err, ErrEmptyBatch) {
		t.Fatalf("expected ErrEmptyBatch, got %v", err)
	}
	if _, err := svc.BulkPayInvoices(ctx, []uuid.UUID{invoice.ID, uuid.New()}, nil); !errors.Is(err, store.ErrInvoiceNotFound) {
		t.Fatalf("expected ErrInvoiceNotFound, got %v", err)
	}
	if _, err := svc.BulkPayInvoices(ctx, []uuid.UUID{invoice.ID, foreign.ID}, nil); !errors.Is(err, ErrMixedAgency) {
		t.Fatalf("expected ErrMixedAgency, got %v", err)
	}

	if _, err := svc.PayInvoice(ctx, invoice.ID, nil); err != nil {
		t.Fatalf("pay: %v", err)
	}
	if _, err := svc.BulkPayInvoices(ctx, []uuid.UUID{invoice.ID}, nil); !errors.Is(err, ErrAlreadySettled) {
		t.Fatalf("expected ErrAlreadySettled, got %v", err)
	}
}

func TestAutoSettleStopsAtFirstUnaffordable(t *testing.T) {
	svc, mem, _ := newTestService(t)
	account := seedAccount(t, mem, "0", "50000")
	ctx := context.Background()

	// Created oldest to newest: 5000, 3000, 1000.
	first := mustInvoice(t, svc, account.AgencyID, "5000")
	second := mustInvoice(t, svc, account.AgencyID, "3000")
	third := mustInvoice(t, svc, account.AgencyID, "1000")

	if _, err := svc.ExecuteTransaction(ctx, account.ID, dec("6000"), domain.TransactionDeposit, "wire in", nil, TransactionLinks{}); err != nil {
		t.Fatalf("deposit: %v", err)
	}

	settled, err := svc.AutoSettleInvoices(ctx, account.ID)
	if err != nil {
		t.Fatalf("auto-settle: %v", err)
	}

	// 6000 covers the oldest (5000), then 1000 remains. The 3000 invoice is
	// unaffordable and settlement stops there; the newer 1000 invoice is NOT
	// jumped ahead even though it would fit.
	if len(settled) != 1 || settled[0].ID != first.ID {
		t.Fatalf("expected only the oldest invoice settled, got %d", len(settled))
	}
	for id, wantStatus := range map[uuid.UUID]domain.InvoiceStatus{
		first.ID:  domain.InvoicePaid,
		second.ID: domain.InvoiceUnpaid,
		third.ID:  domain.InvoiceUnpaid,
	} {
		inv, _ := mem.FindInvoiceByID(ctx, id)
		if inv.Status != wantStatus {
			t.Fatalf("invoice %s: expected %s, got %s", inv.InvoiceNumber, wantStatus, inv.Status)
		}
	}

	stored, _ := mem.FindAccountByID(ctx, account.ID)
	if !stored.Balance.Equal(dec("1000")) {
		t.Fatalf("expected balance 1000, got %s", stored.Balance)
	}
	if !stored.UnpaidHold.Equal(dec("4000")) {
		t.Fatalf("expected hold 4000, got %s", stored.UnpaidHold)
	}
	unpaidHoldMatchesInvoices(t, mem, account.ID)
}

func TestAutoSettleDrainsWhenAffordable(t *testing.T) {
	svc, mem, pub := newTestService(t)
	account := seedAccount(t, mem, "0", "50000")
	ctx := context.Background()

	mustInvoice(t, svc, account.AgencyID, "5000")
	mustInvoice(t, svc, account.AgencyID, "3000")
	if _, err := svc.ExecuteTransaction(ctx, account.ID, dec("8000"), domain.TransactionDeposit, "wire in", nil, TransactionLinks{}); err != nil {
		t.Fatalf("deposit: %v", err)
	}

	settled, err := svc.AutoSettleInvoices(ctx, account.ID)
	if err != nil {
		t.Fatalf("auto-settle: %v", err)
	}
	if len(settled) != 2 {
		t.Fatalf("expected 2 settled, got %d", len(settled))
	}

	stored, _ := mem.FindAccountByID(ctx, account.ID)
	if !stored.Balance.IsZero() || !stored.UnpaidHold.IsZero() {
		t.Fatalf("expected drained account, got balance=%s hold=%s", stored.Balance, stored.UnpaidHold)
	}
	if events := pub.byKey(domain.RouteInvoiceSettled); len(events) != 2 {
		t.Fatalf("expected 2 invoice_settled events, got %d", len(events))
	}
}

func TestAutoSettleNoUnpaidInvoicesIsNoOp(t *testing.T) {
	svc, mem, _ := newTestService(t)
	account := seedAccount(t, mem, "9000", "0")

	settled, err := svc.AutoSettleInvoices(context.Background(), account.ID)
	if err != nil {
		t.Fatalf("auto-settle: %v", err)
	}
	if len(settled) != 0 {
		t.Fatalf("expected nothing settled, got %d", len(settled))
	}
}
