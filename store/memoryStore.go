package store

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"bitbucket.org/mmdatafocus/invoice_backend/models"
	"bitbucket.org/mmdatafocus/invoice_backend/utils"
)

// MemoryStore is an in-process Store. A transaction holds the row lock of every
// invoice it touched until it ends and applies its staged writes in one step
// under the store lock, so readers see either none or all of them.
type MemoryStore struct {
	mu        sync.RWMutex
	invoices  map[int]*models.Invoice
	payments  map[int]*models.Payment // by invoice id
	events    []*models.InvoiceStateEvent
	suppliers map[int]*models.Supplier
	users     map[int]*models.User

	seqInvoice, seqPayment, seqEvent, seqSupplier, seqUser int

	rowMu sync.Mutex
	rows  map[int]chan struct{}

	Now func() time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		invoices:  map[int]*models.Invoice{},
		payments:  map[int]*models.Payment{},
		suppliers: map[int]*models.Supplier{},
		users:     map[int]*models.User{},
		rows:      map[int]chan struct{}{},
		Now:       func() time.Time { return time.Now().UTC() },
	}
}

func (s *MemoryStore) rowLock(id int) chan struct{} {
	s.rowMu.Lock()
	defer s.rowMu.Unlock()
	ch, ok := s.rows[id]
	if !ok {
		ch = make(chan struct{}, 1)
		s.rows[id] = ch
	}
	return ch
}

func (s *MemoryStore) GetInvoice(ctx context.Context, id int) (*models.Invoice, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	inv, ok := s.invoices[id]
	if !ok {
		return nil, fmt.Errorf("invoice %d: %w", id, utils.ErrorRecordNotFound)
	}
	return inv.Clone(), nil
}

func (s *MemoryStore) GetPayment(ctx context.Context, invoiceID int) (*models.Payment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.payments[invoiceID].Clone(), nil
}

func (s *MemoryStore) GetInvoiceWithPayment(ctx context.Context, id int) (*models.Invoice, *models.Payment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	inv, ok := s.invoices[id]
	if !ok {
		return nil, nil, fmt.Errorf("invoice %d: %w", id, utils.ErrorRecordNotFound)
	}
	return inv.Clone(), s.payments[id].Clone(), nil
}

func (s *MemoryStore) GetSupplier(ctx context.Context, id int) (*models.Supplier, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sup, ok := s.suppliers[id]
	if !ok {
		return nil, fmt.Errorf("supplier %d: %w", id, utils.ErrorRecordNotFound)
	}
	c := *sup
	return &c, nil
}

func (s *MemoryStore) GetUser(ctx context.Context, id int) (*models.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	u, ok := s.users[id]
	if !ok {
		return nil, fmt.Errorf("user %d: %w", id, utils.ErrorRecordNotFound)
	}
	c := *u
	return &c, nil
}

func (s *MemoryStore) ListEvents(ctx context.Context, invoiceID int) ([]*models.InvoiceStateEvent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*models.InvoiceStateEvent
	for _, e := range s.events {
		if e.InvoiceId == invoiceID {
			out = append(out, e.Clone())
		}
	}
	return out, nil
}

func (s *MemoryStore) ActiveUsersByRole(ctx context.Context, role models.UserRole) ([]*models.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*models.User
	for _, u := range s.users {
		if u.Role == role && u.Active() {
			c := *u
			out = append(out, &c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *MemoryStore) OpenInvoiceCounts(ctx context.Context, userIDs []int) (map[int]int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	want := make(map[int]bool, len(userIDs))
	for _, id := range userIDs {
		want[id] = true
	}
	counts := make(map[int]int, len(userIDs))
	for _, inv := range s.invoices {
		if inv.AssignedTo != nil && want[*inv.AssignedTo] && isOpen(inv.Status) {
			counts[*inv.AssignedTo]++
		}
	}
	return counts, nil
}

func (s *MemoryStore) CreateSupplier(ctx context.Context, sup *models.Supplier) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if sup.IsActive == nil {
		sup.IsActive = utils.NewTrue()
	}
	if sup.Active() {
		for _, existing := range s.suppliers {
			if existing.Active() && existing.TaxId == sup.TaxId {
				return fmt.Errorf("tax id %s: %w", sup.TaxId, utils.ErrorDuplicateTaxId)
			}
		}
	}
	s.seqSupplier++
	sup.ID = s.seqSupplier
	now := s.Now()
	sup.CreatedAt, sup.UpdatedAt = now, now
	c := *sup
	s.suppliers[sup.ID] = &c
	return nil
}

func (s *MemoryStore) CreateUser(ctx context.Context, u *models.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.users {
		if existing.Username == u.Username {
			return fmt.Errorf("user %s: %w", u.Username, utils.ErrorInvalidInput)
		}
	}
	if u.IsActive == nil {
		u.IsActive = utils.NewTrue()
	}
	s.seqUser++
	u.ID = s.seqUser
	now := s.Now()
	u.CreatedAt, u.UpdatedAt = now, now
	c := *u
	s.users[u.ID] = &c
	return nil
}

func (s *MemoryStore) GetUserByUsername(ctx context.Context, username string) (*models.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, u := range s.users {
		if u.Username == username {
			c := *u
			return &c, nil
		}
	}
	return nil, fmt.Errorf("user %s: %w", username, utils.ErrorRecordNotFound)
}

func (s *MemoryStore) RecordLogin(ctx context.Context, userID int, at time.Time, ip string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[userID]
	if !ok {
		return fmt.Errorf("user %d: %w", userID, utils.ErrorRecordNotFound)
	}
	t := at
	u.LastLoginAt = &t
	u.LastLoginIP = ip
	return nil
}

func (s *MemoryStore) SetUserActive(ctx context.Context, userID int, active bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[userID]
	if !ok {
		return fmt.Errorf("user %d: %w", userID, utils.ErrorRecordNotFound)
	}
	u.IsActive = &active
	return nil
}

// Transaction runs fn against a staging area and commits it atomically when fn
// returns nil. Row locks wait for ctx.
func (s *MemoryStore) Transaction(ctx context.Context, fn func(tx Tx) error) error {
	tx := &memoryTx{
		ctx:             ctx,
		s:               s,
		held:            map[int]chan struct{}{},
		invoices:        map[int]*models.Invoice{},
		deletedInvoices: map[int]bool{},
		payments:        map[int]*models.Payment{},
		deletedPayments: map[int]bool{},
	}
	defer tx.release()

	if err := fn(tx); err != nil {
		return err
	}
	return tx.commit()
}

type memoryTx struct {
	ctx  context.Context
	s    *MemoryStore
	held map[int]chan struct{}

	invoices        map[int]*models.Invoice
	created         []int
	deletedInvoices map[int]bool
	payments        map[int]*models.Payment
	deletedPayments map[int]bool
	events          []*models.InvoiceStateEvent
}

func (t *memoryTx) lock(id int) error {
	if _, ok := t.held[id]; ok {
		return nil
	}
	ch := t.s.rowLock(id)
	select {
	case ch <- struct{}{}:
		t.held[id] = ch
		return nil
	case <-t.ctx.Done():
		return fmt.Errorf("lock invoice %d: %w", id, t.ctx.Err())
	}
}

func (t *memoryTx) release() {
	for id, ch := range t.held {
		<-ch
		delete(t.held, id)
	}
}

func (t *memoryTx) LockInvoice(id int) (*models.Invoice, error) {
	if err := t.lock(id); err != nil {
		return nil, err
	}
	if t.deletedInvoices[id] {
		return nil, fmt.Errorf("invoice %d: %w", id, utils.ErrorRecordNotFound)
	}
	if inv, ok := t.invoices[id]; ok {
		return inv.Clone(), nil
	}
	return t.s.GetInvoice(t.ctx, id)
}

func (t *memoryTx) InvoiceNumberExists(number string) (bool, error) {
	for _, inv := range t.invoices {
		if inv.Number == number && !t.deletedInvoices[inv.ID] {
			return true, nil
		}
	}
	t.s.mu.RLock()
	defer t.s.mu.RUnlock()
	for _, inv := range t.s.invoices {
		if inv.Number == number && !t.deletedInvoices[inv.ID] {
			return true, nil
		}
	}
	return false, nil
}

func (t *memoryTx) CreateInvoice(inv *models.Invoice) error {
	exists, err := t.InvoiceNumberExists(inv.Number)
	if err != nil {
		return err
	}
	if exists {
		return fmt.Errorf("invoice number %s: %w", inv.Number, utils.ErrorDuplicateNumber)
	}
	t.s.mu.Lock()
	t.s.seqInvoice++
	inv.ID = t.s.seqInvoice
	t.s.mu.Unlock()

	if err := t.lock(inv.ID); err != nil {
		return err
	}
	now := t.s.Now()
	inv.CreatedAt, inv.UpdatedAt = now, now
	t.invoices[inv.ID] = inv.Clone()
	t.created = append(t.created, inv.ID)
	return nil
}

func (t *memoryTx) UpdateInvoice(inv *models.Invoice) error {
	if _, ok := t.held[inv.ID]; !ok {
		return fmt.Errorf("update invoice %d without row lock", inv.ID)
	}
	inv.UpdatedAt = t.s.Now()
	t.invoices[inv.ID] = inv.Clone()
	return nil
}

func (t *memoryTx) DeleteInvoice(id int) error {
	if _, ok := t.held[id]; !ok {
		return fmt.Errorf("delete invoice %d without row lock", id)
	}
	delete(t.invoices, id)
	t.deletedInvoices[id] = true
	return nil
}

func (t *memoryTx) GetPayment(invoiceID int) (*models.Payment, error) {
	if t.deletedPayments[invoiceID] {
		return nil, nil
	}
	if p, ok := t.payments[invoiceID]; ok {
		return p.Clone(), nil
	}
	return t.s.GetPayment(t.ctx, invoiceID)
}

func (t *memoryTx) SavePayment(p *models.Payment) error {
	now := t.s.Now()
	if p.ID == 0 {
		t.s.mu.Lock()
		t.s.seqPayment++
		p.ID = t.s.seqPayment
		t.s.mu.Unlock()
		p.CreatedAt = now
	}
	p.UpdatedAt = now
	t.payments[p.InvoiceId] = p.Clone()
	delete(t.deletedPayments, p.InvoiceId)
	return nil
}

func (t *memoryTx) DeletePayment(invoiceID int) error {
	delete(t.payments, invoiceID)
	t.deletedPayments[invoiceID] = true
	return nil
}

func (t *memoryTx) AppendEvent(e *models.InvoiceStateEvent) error {
	if e.CreatedAt.IsZero() {
		e.CreatedAt = t.s.Now()
	}
	e.CreatedAt = NextEventTime(t.lastEventTime(e.InvoiceId), e.CreatedAt)
	t.events = append(t.events, e.Clone())
	return nil
}

func (t *memoryTx) lastEventTime(invoiceID int) time.Time {
	var last time.Time
	for i := len(t.events) - 1; i >= 0; i-- {
		if t.events[i].InvoiceId == invoiceID {
			return t.events[i].CreatedAt
		}
	}
	t.s.mu.RLock()
	defer t.s.mu.RUnlock()
	for _, e := range t.s.events {
		if e.InvoiceId == invoiceID && e.CreatedAt.After(last) {
			last = e.CreatedAt
		}
	}
	return last
}

func (t *memoryTx) commit() error {
	s := t.s
	s.mu.Lock()
	defer s.mu.Unlock()

	// numbers are rechecked here since other transactions may have committed the same one
	for _, id := range t.created {
		inv, ok := t.invoices[id]
		if !ok {
			continue
		}
		for _, other := range s.invoices {
			if other.ID != id && other.Number == inv.Number && !t.deletedInvoices[other.ID] {
				return fmt.Errorf("invoice number %s: %w", inv.Number, utils.ErrorDuplicateNumber)
			}
		}
	}

	for id := range t.deletedInvoices {
		delete(s.invoices, id)
	}
	for id, inv := range t.invoices {
		s.invoices[id] = inv
	}
	for id := range t.deletedPayments {
		delete(s.payments, id)
	}
	for id, p := range t.payments {
		s.payments[id] = p
	}
	for _, e := range t.events {
		s.seqEvent++
		e.ID = s.seqEvent
		s.events = append(s.events, e)
	}
	return nil
}
