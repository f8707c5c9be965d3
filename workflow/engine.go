package workflow

import (
	"context"
	"fmt"
	"time"

	"bitbucket.org/mmdatafocus/invoice_backend/assignment"
	"bitbucket.org/mmdatafocus/invoice_backend/models"
	"bitbucket.org/mmdatafocus/invoice_backend/permissions"
	"bitbucket.org/mmdatafocus/invoice_backend/store"
	"bitbucket.org/mmdatafocus/invoice_backend/uploads"
	"bitbucket.org/mmdatafocus/invoice_backend/utils"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// FileRemover deletes stored files. Failures are logged by the engine and never
// undo a committed change.
type FileRemover interface {
	RemoveFiles(ctx context.Context, paths []string) error
}

// Engine runs the invoice workflow. Every mutation is one store transaction that
// holds the invoice row lock; notifications go out after commit.
type Engine struct {
	Store       store.Store
	Permissions *permissions.Evaluator
	Balancer    *assignment.Balancer
	Notifier    Notifier
	Locker      store.Locker
	Files       FileRemover
	Logger      *logrus.Logger
	Tracer      trace.Tracer
	Now         func() time.Time

	AutoAssign       bool
	AccessCodeLength int
}

func NewEngine(st store.Store, evaluator *permissions.Evaluator, notifier Notifier, logger *logrus.Logger) *Engine {
	if evaluator == nil {
		evaluator = permissions.NewEvaluator(nil)
	}
	if notifier == nil {
		notifier = NopNotifier{}
	}
	if logger == nil {
		logger = logrus.New()
	}
	return &Engine{
		Store:            st,
		Permissions:      evaluator,
		Balancer:         assignment.NewBalancer(st),
		Notifier:         notifier,
		Logger:           logger,
		Tracer:           otel.Tracer("invoice-workflow"),
		Now:              func() time.Time { return time.Now().UTC() },
		AutoAssign:       true,
		AccessCodeLength: 10,
	}
}

func (e *Engine) startSpan(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return e.Tracer.Start(ctx, "workflow."+name, trace.WithAttributes(attrs...))
}

func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		if !utils.IsExpected(err) {
			span.SetStatus(codes.Error, err.Error())
		}
	}
	span.End()
}

func (e *Engine) actor(ctx context.Context, actorID int) (*models.User, error) {
	u, err := e.Store.GetUser(ctx, actorID)
	if err != nil {
		return nil, err
	}
	if !u.Active() {
		return nil, forbidden("user %d is inactive", actorID)
	}
	return u, nil
}

// withInvoice runs fn in a transaction, under the cross-instance invoice lock when one is configured.
func (e *Engine) withInvoice(ctx context.Context, invoiceID int, fn func(tx store.Tx) error) error {
	if e.Locker != nil {
		unlock, err := e.Locker.Lock(ctx, invoiceID)
		if err != nil {
			return err
		}
		defer unlock()
	}
	return e.Store.Transaction(ctx, fn)
}

// pendingEvents collects the events of one transaction so they can be announced after commit.
type pendingEvents struct {
	events []*models.InvoiceStateEvent
}

func (p *pendingEvents) append(tx store.Tx, e *models.InvoiceStateEvent) error {
	if err := tx.AppendEvent(e); err != nil {
		return err
	}
	p.events = append(p.events, e)
	return nil
}

func (p *pendingEvents) reset() {
	p.events = nil
}

func (e *Engine) newEvent(inv *models.Invoice, from *models.InvoiceStatus, to models.InvoiceStatus, actorID int, note string) *models.InvoiceStateEvent {
	var fromCopy *models.InvoiceStatus
	if from != nil {
		f := *from
		fromCopy = &f
	}
	return &models.InvoiceStateEvent{
		InvoiceId: inv.ID,
		FromState: fromCopy,
		ToState:   to,
		ActorId:   actorID,
		Note:      note,
		CreatedAt: e.Now(),
	}
}

// announce must only be called after the transaction committed.
func (e *Engine) announce(ctx context.Context, inv *models.Invoice, events []*models.InvoiceStateEvent) {
	correlationID, _ := utils.GetCorrelationIdFromContext(ctx)
	for _, ev := range events {
		e.Notifier.Notify(notificationFor(inv, ev, correlationID))
	}
}

// removeFiles deletes only objects stored for invoiceID; other paths are
// left in place and logged.
func (e *Engine) removeFiles(ctx context.Context, invoiceID int, paths []string) {
	owned := make([]string, 0, len(paths))
	for _, p := range paths {
		if uploads.OwnsKey(invoiceID, p) {
			owned = append(owned, p)
			continue
		}
		e.Logger.WithFields(logrus.Fields{
			"field":      "removeFiles",
			"invoice_id": invoiceID,
			"path":       p,
		}).Warn("file kept: not stored for this invoice")
	}
	paths = owned
	if e.Files == nil || len(paths) == 0 {
		return
	}
	if err := e.Files.RemoveFiles(ctx, paths); err != nil {
		e.Logger.WithFields(logrus.Fields{
			"field":      "removeFiles",
			"invoice_id": invoiceID,
			"paths":      paths,
		}).Error("file removal failed: " + err.Error())
	}
}

// SuggestAssignee is SelectAssignee for users allowed to assign invoices.
func (e *Engine) SuggestAssignee(ctx context.Context, actorID int) (*int, error) {
	actor, err := e.actor(ctx, actorID)
	if err != nil {
		return nil, err
	}
	if !e.Permissions.HasPermission(actor, permissions.InvoicesAssign) {
		return nil, forbidden("user %d cannot assign invoices", actorID)
	}
	return e.SelectAssignee(ctx)
}

// SelectAssignee returns the id the balancer would pick right now, or nil.
func (e *Engine) SelectAssignee(ctx context.Context) (*int, error) {
	u, err := e.Balancer.SelectAssignee(ctx)
	if err != nil || u == nil {
		return nil, err
	}
	id := u.ID
	return &id, nil
}

// GetInvoice returns the invoice if actor may view it.
func (e *Engine) GetInvoice(ctx context.Context, invoiceID, actorID int) (*models.Invoice, error) {
	actor, err := e.actor(ctx, actorID)
	if err != nil {
		return nil, err
	}
	inv, err := e.Store.GetInvoice(ctx, invoiceID)
	if err != nil {
		return nil, err
	}
	if !e.Permissions.HasPermission(actor, permissions.InvoicesView) || !e.Permissions.OwnsInvoice(actor, inv) {
		return nil, forbidden("user %d cannot view invoice %d", actorID, invoiceID)
	}
	return inv, nil
}

func (e *Engine) History(ctx context.Context, invoiceID, actorID int) ([]*models.InvoiceStateEvent, error) {
	if _, err := e.GetInvoice(ctx, invoiceID, actorID); err != nil {
		return nil, err
	}
	return e.Store.ListEvents(ctx, invoiceID)
}

func noteOr(note, def string) string {
	if note != "" {
		return note
	}
	return def
}

func userRef(id *int) string {
	if id == nil {
		return "nobody"
	}
	return fmt.Sprintf("user %d", *id)
}
