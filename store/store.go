// Package store is the persistence collaborator of the invoice workflow. Every
// invoice mutation goes through Transaction, which commits all writes together
// or none of them.
package store

import (
	"context"
	"time"

	"bitbucket.org/mmdatafocus/invoice_backend/models"
)

// Reader is the non-locking read side. Implementations never expose a partially
// committed transaction.
type Reader interface {
	GetInvoice(ctx context.Context, id int) (*models.Invoice, error)
	// GetPayment returns nil, nil when the invoice has no payment yet.
	GetPayment(ctx context.Context, invoiceID int) (*models.Payment, error)
	// GetInvoiceWithPayment reads both rows from the same snapshot.
	GetInvoiceWithPayment(ctx context.Context, id int) (*models.Invoice, *models.Payment, error)
	GetSupplier(ctx context.Context, id int) (*models.Supplier, error)
	GetUser(ctx context.Context, id int) (*models.User, error)
	ListEvents(ctx context.Context, invoiceID int) ([]*models.InvoiceStateEvent, error)

	ActiveUsersByRole(ctx context.Context, role models.UserRole) ([]*models.User, error)
	OpenInvoiceCounts(ctx context.Context, userIDs []int) (map[int]int, error)
}

// Tx is the write side, valid only inside Transaction.
type Tx interface {
	// LockInvoice reads the invoice and holds its row lock until the transaction ends.
	LockInvoice(id int) (*models.Invoice, error)
	InvoiceNumberExists(number string) (bool, error)
	// CreateInvoice inserts inv and sets inv.ID.
	CreateInvoice(inv *models.Invoice) error
	UpdateInvoice(inv *models.Invoice) error
	DeleteInvoice(id int) error

	GetPayment(invoiceID int) (*models.Payment, error)
	SavePayment(p *models.Payment) error
	DeletePayment(invoiceID int) error

	AppendEvent(e *models.InvoiceStateEvent) error
}

type Store interface {
	Reader
	Transaction(ctx context.Context, fn func(tx Tx) error) error

	// CreateSupplier fails with utils.ErrorDuplicateTaxId when an active supplier
	// already holds the tax id.
	CreateSupplier(ctx context.Context, s *models.Supplier) error
	CreateUser(ctx context.Context, u *models.User) error

	GetUserByUsername(ctx context.Context, username string) (*models.User, error)
	RecordLogin(ctx context.Context, userID int, at time.Time, ip string) error
	SetUserActive(ctx context.Context, userID int, active bool) error
}

// EventTimePrecision is the resolution event timestamps are stored at.
const EventTimePrecision = time.Millisecond

// NextEventTime truncates at to EventTimePrecision and moves it past last, so
// the events of one invoice keep strictly increasing timestamps.
func NextEventTime(last, at time.Time) time.Time {
	at = at.Truncate(EventTimePrecision)
	if !last.IsZero() && !at.After(last) {
		at = last.Truncate(EventTimePrecision).Add(EventTimePrecision)
	}
	return at
}

func isOpen(s models.InvoiceStatus) bool {
	return s != models.InvoiceStatusCompleted && s != models.InvoiceStatusRejected
}
