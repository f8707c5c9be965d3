package workflow

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"bitbucket.org/mmdatafocus/invoice_backend/models"
	"bitbucket.org/mmdatafocus/invoice_backend/permissions"
	"bitbucket.org/mmdatafocus/invoice_backend/store"
	"bitbucket.org/mmdatafocus/invoice_backend/uploads"
	"bitbucket.org/mmdatafocus/invoice_backend/utils"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
)

type recordingNotifier struct {
	mu   sync.Mutex
	sent []Notification
}

func (r *recordingNotifier) Notify(n Notification) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sent = append(r.sent, n)
}

func (r *recordingNotifier) all() []Notification {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Notification(nil), r.sent...)
}

type recordingRemover struct {
	mu      sync.Mutex
	removed []string
	err     error
}

func (r *recordingRemover) RemoveFiles(ctx context.Context, paths []string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.removed = append(r.removed, paths...)
	return r.err
}

type fixture struct {
	t        *testing.T
	ctx      context.Context
	store    *store.MemoryStore
	engine   *Engine
	notifier *recordingNotifier
	files    *recordingRemover
	hook     *test.Hook

	superAdmin, admin, worker1, worker2, supplierUser *models.User
	supplier                                         *models.Supplier
}

func newFixture(t *testing.T, regime models.Regime) *fixture {
	t.Helper()
	logger, hook := test.NewNullLogger()
	logger.SetLevel(logrus.DebugLevel)

	st := store.NewMemoryStore()
	clock := time.Date(2026, 1, 15, 9, 0, 0, 0, time.UTC)
	var clockMu sync.Mutex
	now := func() time.Time {
		clockMu.Lock()
		defer clockMu.Unlock()
		clock = clock.Add(time.Second)
		return clock
	}
	st.Now = now

	f := &fixture{
		t:        t,
		ctx:      context.Background(),
		store:    st,
		notifier: &recordingNotifier{},
		files:    &recordingRemover{},
		hook:     hook,
	}
	f.supplier = &models.Supplier{Name: "Acme", TaxId: "ACM010101AB1", Regime: regime}
	if err := st.CreateSupplier(f.ctx, f.supplier); err != nil {
		t.Fatalf("supplier: %v", err)
	}
	f.superAdmin = f.addUser("root", models.UserRoleSuperAdmin, nil)
	f.admin = f.addUser("admin", models.UserRoleAccountingAdmin, nil)
	f.worker1 = f.addUser("worker1", models.UserRoleAccountingWorker, nil)
	f.worker2 = f.addUser("worker2", models.UserRoleAccountingWorker, nil)
	f.supplierUser = f.addUser("acme", models.UserRoleSupplier, &f.supplier.ID)

	e := NewEngine(st, permissions.NewEvaluator(permissions.DefaultRoleGrants()), f.notifier, logger)
	e.Now = now
	e.Files = f.files
	f.engine = e
	return f
}

func (f *fixture) addUser(username string, role models.UserRole, supplierID *int) *models.User {
	f.t.Helper()
	u := &models.User{Username: username, Name: username, Role: role, SupplierId: supplierID, IsActive: utils.NewTrue()}
	if err := f.store.CreateUser(f.ctx, u); err != nil {
		f.t.Fatalf("user %s: %v", username, err)
	}
	return u
}

func (f *fixture) create(number string) *models.Invoice {
	f.t.Helper()
	inv, err := f.engine.CreateInvoice(f.ctx, f.supplierUser.ID, models.NewInvoice{
		Number:     number,
		SupplierId: f.supplier.ID,
		Amount:     decimal.NewFromInt(100),
		Priority:   models.PriorityHigh,
	})
	if err != nil {
		f.t.Fatalf("create %s: %v", number, err)
	}
	return inv
}

// force puts an invoice into a state without going through the engine.
func (f *fixture) force(invoiceID int, status models.InvoiceStatus, assignee *int) {
	f.t.Helper()
	err := f.store.Transaction(f.ctx, func(tx store.Tx) error {
		cur, err := tx.LockInvoice(invoiceID)
		if err != nil {
			return err
		}
		from := cur.Status
		cur.Status = status
		cur.AssignedTo = assignee
		if err := tx.UpdateInvoice(cur); err != nil {
			return err
		}
		return tx.AppendEvent(&models.InvoiceStateEvent{InvoiceId: cur.ID, FromState: &from, ToState: status, ActorId: f.superAdmin.ID, Note: "test setup"})
	})
	if err != nil {
		f.t.Fatalf("force: %v", err)
	}
}

func (f *fixture) status(invoiceID int) models.InvoiceStatus {
	f.t.Helper()
	inv, err := f.store.GetInvoice(f.ctx, invoiceID)
	if err != nil {
		f.t.Fatalf("get: %v", err)
	}
	return inv.Status
}

func (f *fixture) events(invoiceID int) []*models.InvoiceStateEvent {
	f.t.Helper()
	events, err := f.store.ListEvents(f.ctx, invoiceID)
	if err != nil {
		f.t.Fatalf("events: %v", err)
	}
	return events
}

// key is an object key inside the folder of this invoice and document kind.
func (f *fixture) key(invoiceID int, kind models.DocumentKind, name string) string {
	return uploads.KeyPrefix(invoiceID, kind) + name
}

func (f *fixture) upload(invoiceID int, kind models.DocumentKind, ref string, actorID int) *models.Invoice {
	f.t.Helper()
	inv, err := f.engine.RecordDocumentUpload(f.ctx, invoiceID, kind, ref, actorID)
	if err != nil {
		f.t.Fatalf("upload %s: %v", kind, err)
	}
	return inv
}

func expectInvalidTransition(t *testing.T, err error) *InvalidTransitionError {
	t.Helper()
	if !errors.Is(err, utils.ErrorInvalidTransition) {
		t.Fatalf("expected invalid transition, got %v", err)
	}
	var ite *InvalidTransitionError
	if !errors.As(err, &ite) {
		t.Fatalf("expected *InvalidTransitionError, got %T", err)
	}
	return ite
}
