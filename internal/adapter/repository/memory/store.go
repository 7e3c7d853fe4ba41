// Package memory is an in-process store implementing the use case
// repositories. It keeps the same uniqueness and optimistic-version rules
// as the Postgres adapter and backs the CLI's offline mode and tests.
package memory

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/iho/cardledger/internal/domain"
	"github.com/iho/cardledger/internal/usecase"
)

var errTxDone = errors.New("transaction already finished")

type invoiceKey struct {
	creditCardID string
	month        time.Time
}

// Store holds every table behind a single lock.
type Store struct {
	mu sync.RWMutex

	cards        map[string]*domain.CreditCard
	invoices     map[string]*domain.Invoice
	invoiceKeys  map[invoiceKey]string
	bills        map[string]*domain.Bill
	installments map[string]*domain.Installment
	payments     map[string]*domain.PartialPayment
	outbox       []*domain.OutboxEvent
	audit        []*domain.AuditLog
}

// NewStore creates an empty store.
func NewStore() *Store {
	return &Store{
		cards:        make(map[string]*domain.CreditCard),
		invoices:     make(map[string]*domain.Invoice),
		invoiceKeys:  make(map[invoiceKey]string),
		bills:        make(map[string]*domain.Bill),
		installments: make(map[string]*domain.Installment),
		payments:     make(map[string]*domain.PartialPayment),
	}
}

// Tx records undo steps for the writes made through it. Reads are not
// isolated: writes are visible to other callers before Commit.
type Tx struct {
	store *Store
	mu    sync.Mutex
	undo  []func()
	done  bool
}

// Commit discards the undo log.
func (t *Tx) Commit(_ context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.done {
		return errTxDone
	}

	t.done = true
	t.undo = nil

	return nil
}

// Rollback reverts the transaction's writes in reverse order. It is a no-op
// after Commit.
func (t *Tx) Rollback(_ context.Context) error {
	t.mu.Lock()
	if t.done {
		t.mu.Unlock()
		return nil
	}
	t.done = true
	undo := t.undo
	t.undo = nil
	t.mu.Unlock()

	t.store.mu.Lock()
	defer t.store.mu.Unlock()

	for i := len(undo) - 1; i >= 0; i-- {
		undo[i]()
	}

	return nil
}

// TxManager begins memory transactions.
type TxManager struct {
	store *Store
}

// NewTxManager creates a transaction manager for store.
func NewTxManager(store *Store) *TxManager {
	return &TxManager{store: store}
}

// Begin starts a new transaction.
func (m *TxManager) Begin(_ context.Context) (usecase.Transaction, error) {
	return &Tx{store: m.store}, nil
}

// onRollback registers fn to run if tx rolls back. Called with the store
// lock held; fn runs with the store lock held too.
func onRollback(tx usecase.Transaction, fn func()) {
	t, ok := tx.(*Tx)
	if !ok || t == nil {
		return
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	if !t.done {
		t.undo = append(t.undo, fn)
	}
}

func cloneCard(c *domain.CreditCard) *domain.CreditCard {
	cp := *c
	return &cp
}

func cloneInvoice(inv *domain.Invoice) *domain.Invoice {
	cp := *inv
	if inv.ClosedAt != nil {
		closedAt := *inv.ClosedAt
		cp.ClosedAt = &closedAt
	}
	return &cp
}

func cloneBill(b *domain.Bill) *domain.Bill {
	cp := *b
	return &cp
}

func cloneInstallment(i *domain.Installment) *domain.Installment {
	cp := *i
	return &cp
}

func clonePayment(p *domain.PartialPayment) *domain.PartialPayment {
	cp := *p
	if p.Description != nil {
		d := *p.Description
		cp.Description = &d
	}
	return &cp
}

func page[T any](items []T, limit, offset int) []T {
	if offset >= len(items) {
		return []T{}
	}

	end := len(items)
	if limit > 0 && offset+limit < end {
		end = offset + limit
	}

	return items[offset:end]
}
