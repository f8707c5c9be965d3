package workflow

import (
	"context"
	"fmt"

	"bitbucket.org/mmdatafocus/invoice_backend/models"
	"bitbucket.org/mmdatafocus/invoice_backend/permissions"
	"bitbucket.org/mmdatafocus/invoice_backend/store"
	"bitbucket.org/mmdatafocus/invoice_backend/utils"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/attribute"
)

// CreateInvoice stores a new invoice in submitted together with its creation
// event, then tries to auto-assign it in a separate transaction.
func (e *Engine) CreateInvoice(ctx context.Context, creatorID int, input models.NewInvoice) (_ *models.Invoice, err error) {
	ctx, span := e.startSpan(ctx, "CreateInvoice", attribute.String("invoice.number", input.Number))
	defer func() { endSpan(span, err) }()

	if !input.Amount.IsPositive() {
		return nil, fmt.Errorf("amount %s: %w", input.Amount, utils.ErrorInvalidAmount)
	}
	if err := utils.ValidateStruct(input); err != nil {
		return nil, err
	}
	if input.Priority == "" {
		input.Priority = models.PriorityMedium
	}
	if !input.Priority.IsValid() {
		return nil, fmt.Errorf("priority %q: %w", input.Priority, utils.ErrorInvalidInput)
	}

	creator, err := e.actor(ctx, creatorID)
	if err != nil {
		return nil, err
	}
	if !e.Permissions.HasPermission(creator, permissions.InvoicesCreate) {
		return nil, forbidden("user %d cannot create invoices", creatorID)
	}
	if creator.Role == models.UserRoleSupplier && (creator.SupplierId == nil || *creator.SupplierId != input.SupplierId) {
		return nil, forbidden("user %d cannot create invoices for supplier %d", creatorID, input.SupplierId)
	}

	supplier, err := e.Store.GetSupplier(ctx, input.SupplierId)
	if err != nil {
		return nil, err
	}
	if !supplier.Active() {
		return nil, fmt.Errorf("supplier %d is inactive: %w", supplier.ID, utils.ErrorRecordNotFound)
	}

	now := e.Now()
	files := make([]models.InvoiceFile, 0, len(input.Files))
	for _, f := range input.Files {
		if f.UploadedAt.IsZero() {
			f.UploadedAt = now
		}
		files = append(files, f)
	}
	inv := &models.Invoice{
		Number:      input.Number,
		SupplierId:  supplier.ID,
		Amount:      input.Amount,
		Description: input.Description,
		Priority:    input.Priority,
		DueDate:     input.DueDate,
		Status:      models.InvoiceStatusSubmitted,
		Files:       files,
		CreatedBy:   creator.ID,
		CreatedIP:   input.CreatedIP,
	}

	var pending pendingEvents
	err = e.Store.Transaction(ctx, func(tx store.Tx) error {
		pending.reset()
		exists, err := tx.InvoiceNumberExists(inv.Number)
		if err != nil {
			return err
		}
		if exists {
			return fmt.Errorf("invoice number %s: %w", inv.Number, utils.ErrorDuplicateNumber)
		}
		if err := tx.CreateInvoice(inv); err != nil {
			return err
		}
		return pending.append(tx, e.newEvent(inv, nil, inv.Status, creator.ID, "invoice created"))
	})
	if err != nil {
		return nil, err
	}
	span.SetAttributes(attribute.Int("invoice.id", inv.ID))
	e.announce(ctx, inv, pending.events)

	if e.AutoAssign {
		if assigned := e.autoAssign(ctx, inv.ID, creator.ID); assigned != nil {
			return assigned, nil
		}
	}
	return inv, nil
}

// autoAssign moves a freshly submitted invoice to assigned using the balancer.
// It runs as the creator and bypasses the transition guard. It never fails the
// caller: problems are logged and the invoice stays submitted.
func (e *Engine) autoAssign(ctx context.Context, invoiceID, actorID int) *models.Invoice {
	logger := e.Logger.WithFields(logrus.Fields{
		"field":      "autoAssign",
		"invoice_id": invoiceID,
	})
	candidate, err := e.Balancer.SelectAssignee(ctx)
	if err != nil {
		logger.Error("select assignee: " + err.Error())
		return nil
	}
	if candidate == nil {
		logger.Info("no assignee available; invoice stays submitted")
		return nil
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
		if cur.Status != models.InvoiceStatusSubmitted {
			inv = cur
			return nil
		}
		from := cur.Status
		cur.AssignedTo = &candidate.ID
		cur.Status = models.InvoiceStatusAssigned
		if err := tx.UpdateInvoice(cur); err != nil {
			return err
		}
		inv = cur
		note := fmt.Sprintf("auto-assigned to user %d", candidate.ID)
		return pending.append(tx, e.newEvent(cur, &from, cur.Status, actorID, note))
	})
	if err != nil {
		logger.Error("auto-assign: " + err.Error())
		return nil
	}
	e.announce(ctx, inv, pending.events)
	return inv
}

// UpdateInvoice edits the metadata of an invoice that is still submitted.
func (e *Engine) UpdateInvoice(ctx context.Context, invoiceID, actorID int, input models.UpdateInvoice) (_ *models.Invoice, err error) {
	ctx, span := e.startSpan(ctx, "UpdateInvoice", attribute.Int("invoice.id", invoiceID))
	defer func() { endSpan(span, err) }()

	if input.Amount != nil && !input.Amount.IsPositive() {
		return nil, fmt.Errorf("amount %s: %w", input.Amount, utils.ErrorInvalidAmount)
	}
	if input.Priority != nil && !input.Priority.IsValid() {
		return nil, fmt.Errorf("priority %q: %w", *input.Priority, utils.ErrorInvalidInput)
	}
	if err := utils.ValidateStruct(input); err != nil {
		return nil, err
	}
	actor, err := e.actor(ctx, actorID)
	if err != nil {
		return nil, err
	}

	var inv *models.Invoice
	err = e.withInvoice(ctx, invoiceID, func(tx store.Tx) error {
		cur, err := tx.LockInvoice(invoiceID)
		if err != nil {
			return err
		}
		if !e.Permissions.CanEditInvoice(actor, cur) {
			return forbidden("user %d cannot edit invoice %d", actorID, invoiceID)
		}
		if cur.Status != models.InvoiceStatusSubmitted {
			return fmt.Errorf("invoice %d is %s, only submitted invoices can be edited: %w",
				invoiceID, cur.Status, utils.ErrorInvalidTransition)
		}
		if input.Amount != nil {
			cur.Amount = *input.Amount
		}
		if input.Description != nil {
			cur.Description = *input.Description
		}
		if input.Priority != nil {
			cur.Priority = *input.Priority
		}
		if input.DueDate != nil {
			d := *input.DueDate
			cur.DueDate = &d
		}
		if input.Files != nil {
			now := e.Now()
			files := make([]models.InvoiceFile, 0, len(input.Files))
			for _, f := range input.Files {
				if f.UploadedAt.IsZero() {
					f.UploadedAt = now
				}
				files = append(files, f)
			}
			cur.Files = files
		}
		inv = cur
		return tx.UpdateInvoice(cur)
	})
	if err != nil {
		return nil, err
	}
	return inv, nil
}

// DeleteInvoice removes an invoice and its payment. Only super admins may do it.
// The state event history is kept. Stored files are removed after commit.
func (e *Engine) DeleteInvoice(ctx context.Context, invoiceID, actorID int) (err error) {
	ctx, span := e.startSpan(ctx, "DeleteInvoice", attribute.Int("invoice.id", invoiceID))
	defer func() { endSpan(span, err) }()

	actor, err := e.actor(ctx, actorID)
	if err != nil {
		return err
	}
	if actor.Role != models.UserRoleSuperAdmin {
		return forbidden("user %d cannot delete invoices", actorID)
	}

	var paths []string
	err = e.withInvoice(ctx, invoiceID, func(tx store.Tx) error {
		paths = nil
		inv, err := tx.LockInvoice(invoiceID)
		if err != nil {
			return err
		}
		payment, err := tx.GetPayment(invoiceID)
		if err != nil {
			return err
		}
		for _, f := range inv.Files {
			paths = append(paths, f.Path)
		}
		paths = append(paths, payment.FilePaths()...)
		if payment != nil {
			if err := tx.DeletePayment(invoiceID); err != nil {
				return err
			}
		}
		return tx.DeleteInvoice(invoiceID)
	})
	if err != nil {
		return err
	}
	e.Logger.WithFields(logrus.Fields{
		"field":      "DeleteInvoice",
		"invoice_id": invoiceID,
		"actor_id":   actorID,
	}).Info("invoice deleted")
	e.removeFiles(ctx, invoiceID, utils.UniqueSlice(paths))
	return nil
}
