package workflow

import (
	"context"
	"fmt"

	"bitbucket.org/mmdatafocus/invoice_backend/models"
	"bitbucket.org/mmdatafocus/invoice_backend/permissions"
	"bitbucket.org/mmdatafocus/invoice_backend/requirements"
	"bitbucket.org/mmdatafocus/invoice_backend/store"
	"bitbucket.org/mmdatafocus/invoice_backend/utils"
	"go.opentelemetry.io/otel/attribute"
)

// ApplyTransition moves an invoice to target. The permission guard is checked
// first, then the transition table, both against the locked row. A retry of a
// target that was already reached fails with InvalidTransitionError.
func (e *Engine) ApplyTransition(ctx context.Context, invoiceID int, target models.InvoiceStatus, actorID int, note string) (_ *models.Invoice, err error) {
	ctx, span := e.startSpan(ctx, "ApplyTransition",
		attribute.Int("invoice.id", invoiceID),
		attribute.String("invoice.target", string(target)),
		attribute.Int("actor.id", actorID),
	)
	defer func() { endSpan(span, err) }()

	if !target.IsValid() {
		return nil, fmt.Errorf("target state %q: %w", target, utils.ErrorInvalidInput)
	}
	actor, err := e.actor(ctx, actorID)
	if err != nil {
		return nil, err
	}
	return e.transition(ctx, invoiceID, target, actor, nil, note)
}

// transition holds the shared path of ApplyTransition and Reassign. assignee,
// when set, is used for the assigned target instead of the balancer.
func (e *Engine) transition(ctx context.Context, invoiceID int, target models.InvoiceStatus, actor *models.User, assignee *int, note string) (*models.Invoice, error) {
	var (
		pending pendingEvents
		inv     *models.Invoice
	)
	err := e.withInvoice(ctx, invoiceID, func(tx store.Tx) error {
		pending.reset()
		cur, err := tx.LockInvoice(invoiceID)
		if err != nil {
			return err
		}
		if !e.Permissions.CanTransition(actor, cur, target) {
			return forbidden("user %d cannot move invoice %d to %s", actor.ID, invoiceID, target)
		}
		if !CanTransition(cur.Status, target) {
			return newInvalidTransition(cur, target, "")
		}
		if err := e.checkDocuments(ctx, tx, cur, target); err != nil {
			return err
		}

		from := cur.Status
		switch target {
		case models.InvoiceStatusAssigned:
			if assignee != nil {
				cur.AssignedTo = assignee
			} else if cur.AssignedTo == nil {
				id, err := e.SelectAssignee(ctx)
				if err != nil {
					return err
				}
				if id == nil {
					return fmt.Errorf("no active accounting user to assign invoice %d: %w", invoiceID, utils.ErrorRecordNotFound)
				}
				cur.AssignedTo = id
			}
			note = noteOr(note, "assigned to "+userRef(cur.AssignedTo))
		case models.InvoiceStatusRejected:
			// an invoice never leaves submitted without an owner; the rejecting admin becomes it
			if cur.AssignedTo == nil {
				id := actor.ID
				cur.AssignedTo = &id
			}
		}
		cur.Status = target
		if err := tx.UpdateInvoice(cur); err != nil {
			return err
		}
		inv = cur
		return pending.append(tx, e.newEvent(cur, &from, target, actor.ID, note))
	})
	if err != nil {
		return nil, err
	}
	e.announce(ctx, inv, pending.events)
	return inv, nil
}

// checkDocuments refuses manual moves into a document-driven state that the
// uploaded documents do not support, so status and documents cannot diverge.
func (e *Engine) checkDocuments(ctx context.Context, tx store.Tx, inv *models.Invoice, target models.InvoiceStatus) error {
	idx := DocumentPhaseIndex(target)
	if idx <= 0 {
		return nil
	}
	supplier, err := e.Store.GetSupplier(ctx, inv.SupplierId)
	if err != nil {
		return err
	}
	payment, err := tx.GetPayment(inv.ID)
	if err != nil {
		return err
	}
	implied := requirements.NextState(payment, supplier.Regime)
	if DocumentPhaseIndex(implied) < idx {
		return newInvalidTransition(inv, target, fmt.Sprintf("documents only support %s, missing %v",
			implied, requirements.MissingDocuments(payment, supplier.Regime)))
	}
	return nil
}

// Reassign hands an open invoice to another accounting user. From submitted it
// is the assigned transition; otherwise the state is unchanged and the event
// note records the old and new owner. Reassigning to the current owner is a
// no-op.
func (e *Engine) Reassign(ctx context.Context, invoiceID, assigneeID, actorID int, note string) (_ *models.Invoice, err error) {
	ctx, span := e.startSpan(ctx, "Reassign",
		attribute.Int("invoice.id", invoiceID),
		attribute.Int("assignee.id", assigneeID),
		attribute.Int("actor.id", actorID),
	)
	defer func() { endSpan(span, err) }()

	actor, err := e.actor(ctx, actorID)
	if err != nil {
		return nil, err
	}
	if !permissions.IsAdmin(actor) || !e.Permissions.HasPermission(actor, permissions.InvoicesAssign) {
		return nil, forbidden("user %d cannot reassign invoices", actorID)
	}
	assignee, err := e.Store.GetUser(ctx, assigneeID)
	if err != nil {
		return nil, err
	}
	if !assignee.Active() || (assignee.Role != models.UserRoleAccountingWorker && assignee.Role != models.UserRoleAccountingAdmin) {
		return nil, fmt.Errorf("user %d cannot own invoices: %w", assigneeID, utils.ErrorInvalidInput)
	}

	current, err := e.Store.GetInvoice(ctx, invoiceID)
	if err != nil {
		return nil, err
	}
	if current.Status == models.InvoiceStatusSubmitted {
		id := assignee.ID
		inv, err := e.transition(ctx, invoiceID, models.InvoiceStatusAssigned, actor, &id, note)
		// lost a race with auto-assignment; fall through to a plain reassignment
		if err == nil || !isInvalidTransition(err) {
			return inv, err
		}
	}

	var (
		pending pendingEvents
		inv     *models.Invoice
	)
	err = e.withInvoice(ctx, invoiceID, func(tx store.Tx) error {
		pending.reset()
		cur, err := tx.LockInvoice(invoiceID)
		if err != nil {
			return err
		}
		if !IsOpen(cur.Status) || cur.Status == models.InvoiceStatusSubmitted {
			return newInvalidTransition(cur, cur.Status, "invoice cannot be reassigned in this state")
		}
		inv = cur
		if cur.AssignedTo != nil && *cur.AssignedTo == assignee.ID {
			return nil
		}
		old := cur.AssignedTo
		id := assignee.ID
		cur.AssignedTo = &id
		if err := tx.UpdateInvoice(cur); err != nil {
			return err
		}
		from := cur.Status
		n := fmt.Sprintf("reassigned from %s to %s", userRef(old), userRef(cur.AssignedTo))
		if note != "" {
			n += ": " + note
		}
		return pending.append(tx, e.newEvent(cur, &from, cur.Status, actor.ID, n))
	})
	if err != nil {
		return nil, err
	}
	e.announce(ctx, inv, pending.events)
	return inv, nil
}
