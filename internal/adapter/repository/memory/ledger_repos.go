package memory

import (
	"context"
	"sort"

	"github.com/shopspring/decimal"

	"github.com/iho/cardledger/internal/domain"
	"github.com/iho/cardledger/internal/usecase"
)

// InstallmentRepository implements usecase.InstallmentRepository.
type InstallmentRepository struct {
	store *Store
}

// NewInstallmentRepository creates a new InstallmentRepository.
func NewInstallmentRepository(store *Store) *InstallmentRepository {
	return &InstallmentRepository{store: store}
}

// CreateBatch stores installments.
func (r *InstallmentRepository) CreateBatch(_ context.Context, tx usecase.Transaction, installments []*domain.Installment) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	for _, inst := range installments {
		if _, ok := r.store.installments[inst.ID]; ok {
			return errDuplicateID
		}
	}

	for _, inst := range installments {
		r.store.installments[inst.ID] = cloneInstallment(inst)
	}

	onRollback(tx, func() {
		for _, inst := range installments {
			delete(r.store.installments, inst.ID)
		}
	})

	return nil
}

// ListByBill lists a bill's installments by number.
func (r *InstallmentRepository) ListByBill(_ context.Context, billID string) ([]*domain.Installment, error) {
	return r.list(func(i *domain.Installment) bool { return i.BillID == billID }), nil
}

// ListByInvoice lists an invoice's installments by due date.
func (r *InstallmentRepository) ListByInvoice(_ context.Context, invoiceID string) ([]*domain.Installment, error) {
	return r.list(func(i *domain.Installment) bool { return i.InvoiceID == invoiceID }), nil
}

func (r *InstallmentRepository) list(match func(*domain.Installment) bool) []*domain.Installment {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()

	out := []*domain.Installment{}
	for _, inst := range r.store.installments {
		if match(inst) {
			out = append(out, cloneInstallment(inst))
		}
	}

	sort.Slice(out, func(i, j int) bool {
		if out[i].DueDate.Equal(out[j].DueDate) {
			return out[i].InstallmentNumber < out[j].InstallmentNumber
		}
		return out[i].DueDate.Before(out[j].DueDate)
	})

	return out
}

// DeleteByBill removes every installment of a bill.
func (r *InstallmentRepository) DeleteByBill(_ context.Context, tx usecase.Transaction, billID string) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	var removed []*domain.Installment
	for id, inst := range r.store.installments {
		if inst.BillID == billID {
			removed = append(removed, inst)
			delete(r.store.installments, id)
		}
	}

	onRollback(tx, func() {
		for _, inst := range removed {
			r.store.installments[inst.ID] = inst
		}
	})

	return nil
}

// SumByInvoice sums the installment amounts of one invoice.
func (r *InstallmentRepository) SumByInvoice(_ context.Context, _ usecase.Transaction, invoiceID string) (decimal.Decimal, error) {
	return r.sum(map[string]bool{invoiceID: true}), nil
}

// SumByInvoiceIDs sums the installment amounts of a set of invoices.
func (r *InstallmentRepository) SumByInvoiceIDs(_ context.Context, invoiceIDs []string) (decimal.Decimal, error) {
	return r.sum(idSet(invoiceIDs)), nil
}

func (r *InstallmentRepository) sum(ids map[string]bool) decimal.Decimal {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()

	total := decimal.Zero
	for _, inst := range r.store.installments {
		if ids[inst.InvoiceID] {
			total = total.Add(inst.Amount)
		}
	}

	return total
}

// PartialPaymentRepository implements usecase.PartialPaymentRepository.
type PartialPaymentRepository struct {
	store *Store
}

// NewPartialPaymentRepository creates a new PartialPaymentRepository.
func NewPartialPaymentRepository(store *Store) *PartialPaymentRepository {
	return &PartialPaymentRepository{store: store}
}

// Create stores a partial payment.
func (r *PartialPaymentRepository) Create(_ context.Context, tx usecase.Transaction, payment *domain.PartialPayment) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	if _, ok := r.store.payments[payment.ID]; ok {
		return errDuplicateID
	}

	r.store.payments[payment.ID] = clonePayment(payment)

	onRollback(tx, func() {
		delete(r.store.payments, payment.ID)
	})

	return nil
}

// GetByID retrieves a partial payment by ID.
func (r *PartialPaymentRepository) GetByID(_ context.Context, id string) (*domain.PartialPayment, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()

	p, ok := r.store.payments[id]
	if !ok {
		return nil, domain.ErrPartialPaymentNotFound
	}

	return clonePayment(p), nil
}

// ListByInvoice lists an invoice's payments by payment date.
func (r *PartialPaymentRepository) ListByInvoice(_ context.Context, invoiceID string) ([]*domain.PartialPayment, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()

	out := []*domain.PartialPayment{}
	for _, p := range r.store.payments {
		if p.InvoiceID == invoiceID {
			out = append(out, clonePayment(p))
		}
	}

	sort.Slice(out, func(i, j int) bool {
		if out[i].PaymentDate.Equal(out[j].PaymentDate) {
			return out[i].ID < out[j].ID
		}
		return out[i].PaymentDate.Before(out[j].PaymentDate)
	})

	return out, nil
}

// SumByInvoice sums the payments of one invoice.
func (r *PartialPaymentRepository) SumByInvoice(_ context.Context, invoiceID string) (decimal.Decimal, error) {
	total, _ := r.aggregate(map[string]bool{invoiceID: true})
	return total, nil
}

// CountByInvoice counts the payments of one invoice.
func (r *PartialPaymentRepository) CountByInvoice(_ context.Context, invoiceID string) (int, error) {
	_, count := r.aggregate(map[string]bool{invoiceID: true})
	return count, nil
}

// SumByInvoiceIDs sums the payments of a set of invoices.
func (r *PartialPaymentRepository) SumByInvoiceIDs(_ context.Context, invoiceIDs []string) (decimal.Decimal, error) {
	total, _ := r.aggregate(idSet(invoiceIDs))
	return total, nil
}

func (r *PartialPaymentRepository) aggregate(ids map[string]bool) (decimal.Decimal, int) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()

	total, count := decimal.Zero, 0
	for _, p := range r.store.payments {
		if ids[p.InvoiceID] {
			total = total.Add(p.Amount)
			count++
		}
	}

	return total, count
}

// Delete removes a partial payment.
func (r *PartialPaymentRepository) Delete(_ context.Context, tx usecase.Transaction, id string) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	p, ok := r.store.payments[id]
	if !ok {
		return domain.ErrPartialPaymentNotFound
	}

	delete(r.store.payments, id)

	onRollback(tx, func() {
		r.store.payments[id] = p
	})

	return nil
}

// BillRepository implements usecase.BillRepository.
type BillRepository struct {
	store *Store
}

// NewBillRepository creates a new BillRepository.
func NewBillRepository(store *Store) *BillRepository {
	return &BillRepository{store: store}
}

// Create stores a bill.
func (r *BillRepository) Create(_ context.Context, tx usecase.Transaction, bill *domain.Bill) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	if _, ok := r.store.bills[bill.ID]; ok {
		return errDuplicateID
	}

	r.store.bills[bill.ID] = cloneBill(bill)

	onRollback(tx, func() {
		delete(r.store.bills, bill.ID)
	})

	return nil
}

// GetByID retrieves a bill by ID.
func (r *BillRepository) GetByID(_ context.Context, id string) (*domain.Bill, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()

	b, ok := r.store.bills[id]
	if !ok {
		return nil, domain.ErrBillNotFound
	}

	return cloneBill(b), nil
}

// ListByCard lists a card's bills, newest purchase first.
func (r *BillRepository) ListByCard(_ context.Context, creditCardID string, limit, offset int) ([]*domain.Bill, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()

	out := []*domain.Bill{}
	for _, b := range r.store.bills {
		if b.CreditCardID == creditCardID {
			out = append(out, cloneBill(b))
		}
	}

	sort.Slice(out, func(i, j int) bool {
		if out[i].PurchasedAt.Equal(out[j].PurchasedAt) {
			return out[i].ID > out[j].ID
		}
		return out[i].PurchasedAt.After(out[j].PurchasedAt)
	})

	return page(out, limit, offset), nil
}

// Delete removes a bill.
func (r *BillRepository) Delete(_ context.Context, tx usecase.Transaction, id string) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	b, ok := r.store.bills[id]
	if !ok {
		return domain.ErrBillNotFound
	}

	delete(r.store.bills, id)

	onRollback(tx, func() {
		r.store.bills[id] = b
	})

	return nil
}

func idSet(ids []string) map[string]bool {
	set := make(map[string]bool, len(ids))
	for _, id := range ids {
		set[id] = true
	}
	return set
}
