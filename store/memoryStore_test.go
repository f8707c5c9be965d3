package store

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"bitbucket.org/mmdatafocus/invoice_backend/models"
	"bitbucket.org/mmdatafocus/invoice_backend/utils"
	"github.com/shopspring/decimal"
)

func seedInvoice(t *testing.T, s Store, number string) *models.Invoice {
	t.Helper()
	inv := &models.Invoice{
		Number:     number,
		SupplierId: 1,
		Amount:     decimal.NewFromInt(100),
		Priority:   models.PriorityMedium,
		Status:     models.InvoiceStatusSubmitted,
		CreatedBy:  1,
	}
	err := s.Transaction(context.Background(), func(tx Tx) error {
		if err := tx.CreateInvoice(inv); err != nil {
			return err
		}
		return tx.AppendEvent(&models.InvoiceStateEvent{InvoiceId: inv.ID, ToState: inv.Status, ActorId: 1})
	})
	if err != nil {
		t.Fatalf("seed invoice: %v", err)
	}
	return inv
}

func TestMemoryStore_RollbackLeavesNothing(t *testing.T) {
	s := NewMemoryStore()
	inv := seedInvoice(t, s, "INV-1")
	boom := errors.New("boom")

	err := s.Transaction(context.Background(), func(tx Tx) error {
		locked, err := tx.LockInvoice(inv.ID)
		if err != nil {
			return err
		}
		locked.Status = models.InvoiceStatusAssigned
		if err := tx.UpdateInvoice(locked); err != nil {
			return err
		}
		if err := tx.SavePayment(&models.Payment{InvoiceId: inv.ID, AccessCode: "X"}); err != nil {
			return err
		}
		if err := tx.AppendEvent(&models.InvoiceStateEvent{InvoiceId: inv.ID, ToState: models.InvoiceStatusAssigned}); err != nil {
			return err
		}
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("expected boom, got %v", err)
	}

	got, p, err := s.GetInvoiceWithPayment(context.Background(), inv.ID)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if got.Status != models.InvoiceStatusSubmitted || p != nil {
		t.Fatalf("rolled back writes are visible: status=%s payment=%v", got.Status, p)
	}
	events, _ := s.ListEvents(context.Background(), inv.ID)
	if len(events) != 1 {
		t.Fatalf("expected only the creation event, got %d", len(events))
	}
}

func TestMemoryStore_DuplicateNumber(t *testing.T) {
	s := NewMemoryStore()
	seedInvoice(t, s, "INV-1")

	err := s.Transaction(context.Background(), func(tx Tx) error {
		return tx.CreateInvoice(&models.Invoice{Number: "INV-1", Status: models.InvoiceStatusSubmitted})
	})
	if !errors.Is(err, utils.ErrorDuplicateNumber) {
		t.Fatalf("expected duplicate number, got %v", err)
	}
}

func TestMemoryStore_ConcurrentCreateSameNumber(t *testing.T) {
	s := NewMemoryStore()
	const n = 8
	var ok int32
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := s.Transaction(context.Background(), func(tx Tx) error {
				return tx.CreateInvoice(&models.Invoice{Number: "SAME", Status: models.InvoiceStatusSubmitted})
			})
			if err == nil {
				atomic.AddInt32(&ok, 1)
			} else if !errors.Is(err, utils.ErrorDuplicateNumber) {
				t.Errorf("unexpected err: %v", err)
			}
		}()
	}
	wg.Wait()
	if ok != 1 {
		t.Fatalf("expected exactly one insert, got %d", ok)
	}
}

func TestMemoryStore_RowLockSerializesWriters(t *testing.T) {
	s := NewMemoryStore()
	inv := seedInvoice(t, s, "INV-1")

	locked := make(chan struct{})
	release := make(chan struct{})
	done := make(chan error, 1)

	go func() {
		done <- s.Transaction(context.Background(), func(tx Tx) error {
			if _, err := tx.LockInvoice(inv.ID); err != nil {
				return err
			}
			close(locked)
			<-release
			return nil
		})
	}()
	<-locked

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	err := s.Transaction(ctx, func(tx Tx) error {
		_, err := tx.LockInvoice(inv.ID)
		return err
	})
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("second writer should wait on the row lock, got %v", err)
	}

	// other invoices are not blocked
	other := seedInvoice(t, s, "INV-2")
	if err := s.Transaction(context.Background(), func(tx Tx) error {
		_, err := tx.LockInvoice(other.ID)
		return err
	}); err != nil {
		t.Fatalf("unrelated invoice blocked: %v", err)
	}

	close(release)
	if err := <-done; err != nil {
		t.Fatalf("first writer: %v", err)
	}
	if err := s.Transaction(context.Background(), func(tx Tx) error {
		_, err := tx.LockInvoice(inv.ID)
		return err
	}); err != nil {
		t.Fatalf("lock not released: %v", err)
	}
}

func TestMemoryStore_ReadsNeverTorn(t *testing.T) {
	s := NewMemoryStore()
	inv := seedInvoice(t, s, "INV-1")
	ctx := context.Background()

	stop := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 0; ; i++ {
			select {
			case <-stop:
				return
			default:
			}
			_ = s.Transaction(ctx, func(tx Tx) error {
				cur, err := tx.LockInvoice(inv.ID)
				if err != nil {
					return err
				}
				p, _ := tx.GetPayment(inv.ID)
				if p == nil {
					p = &models.Payment{InvoiceId: inv.ID}
				}
				// invoice description and payment access code always move together
				code := time.Now().Format(time.RFC3339Nano)
				cur.Description = code
				p.AccessCode = code
				if err := tx.UpdateInvoice(cur); err != nil {
					return err
				}
				return tx.SavePayment(p)
			})
		}
	}()

	for i := 0; i < 500; i++ {
		got, p, err := s.GetInvoiceWithPayment(ctx, inv.ID)
		if err != nil {
			t.Fatalf("read: %v", err)
		}
		if p != nil && p.AccessCode != got.Description {
			t.Fatalf("torn read: invoice=%q payment=%q", got.Description, p.AccessCode)
		}
	}
	close(stop)
	wg.Wait()
}

func TestMemoryStore_OpenInvoiceCounts(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	statuses := []models.InvoiceStatus{
		models.InvoiceStatusAssigned, models.InvoiceStatusPaid, models.InvoiceStatusCompleted, models.InvoiceStatusRejected,
	}
	for i, st := range statuses {
		inv := seedInvoice(t, s, "INV-"+string(rune('A'+i)))
		_ = s.Transaction(ctx, func(tx Tx) error {
			cur, _ := tx.LockInvoice(inv.ID)
			cur.AssignedTo = utils.NewInt(7)
			cur.Status = st
			return tx.UpdateInvoice(cur)
		})
	}
	counts, err := s.OpenInvoiceCounts(ctx, []int{7, 8})
	if err != nil {
		t.Fatalf("counts: %v", err)
	}
	if counts[7] != 2 || counts[8] != 0 {
		t.Fatalf("unexpected counts: %v", counts)
	}
}

func TestMemoryStore_SupplierTaxIdUniqueAmongActive(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	if err := s.CreateSupplier(ctx, &models.Supplier{Name: "A", TaxId: "AAA010101AAA", IsActive: utils.NewFalse()}); err != nil {
		t.Fatalf("inactive supplier: %v", err)
	}
	if err := s.CreateSupplier(ctx, &models.Supplier{Name: "B", TaxId: "AAA010101AAA"}); err != nil {
		t.Fatalf("first active supplier: %v", err)
	}
	err := s.CreateSupplier(ctx, &models.Supplier{Name: "C", TaxId: "AAA010101AAA"})
	if !errors.Is(err, utils.ErrorDuplicateTaxId) {
		t.Fatalf("expected duplicate tax id, got %v", err)
	}
}

func TestNextEventTime(t *testing.T) {
	base := time.Date(2026, 1, 15, 9, 0, 0, 0, time.UTC)
	cases := []struct {
		name string
		last time.Time
		at   time.Time
		want time.Time
	}{
		{"first event", time.Time{}, base.Add(1500 * time.Microsecond), base.Add(time.Millisecond)},
		{"later clock wins", base, base.Add(time.Second), base.Add(time.Second)},
		{"same instant", base, base, base.Add(time.Millisecond)},
		{"same millisecond", base, base.Add(400 * time.Microsecond), base.Add(time.Millisecond)},
		{"clock behind", base, base.Add(-time.Second), base.Add(time.Millisecond)},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := NextEventTime(tc.last, tc.at); !got.Equal(tc.want) {
				t.Fatalf("got %s want %s", got, tc.want)
			}
		})
	}
}

func TestMemoryStore_EventTimesIncreasePerInvoice(t *testing.T) {
	s := NewMemoryStore()
	frozen := time.Date(2026, 1, 15, 9, 0, 0, 0, time.UTC)
	s.Now = func() time.Time { return frozen }
	inv := seedInvoice(t, s, "INV-1")

	err := s.Transaction(context.Background(), func(tx Tx) error {
		if _, err := tx.LockInvoice(inv.ID); err != nil {
			return err
		}
		for _, st := range []models.InvoiceStatus{models.InvoiceStatusAssigned, models.InvoiceStatusProcessing} {
			if err := tx.AppendEvent(&models.InvoiceStateEvent{InvoiceId: inv.ID, ToState: st, ActorId: 1, CreatedAt: frozen}); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		t.Fatalf("append: %v", err)
	}

	events, err := s.ListEvents(context.Background(), inv.ID)
	if err != nil || len(events) != 3 {
		t.Fatalf("events=%d err=%v", len(events), err)
	}
	for i := 1; i < len(events); i++ {
		if !events[i].CreatedAt.After(events[i-1].CreatedAt) {
			t.Fatalf("event %d at %s not after %s", i, events[i].CreatedAt, events[i-1].CreatedAt)
		}
	}
}
