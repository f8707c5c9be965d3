package workflow

import (
	"context"
	"fmt"

	"bitbucket.org/mmdatafocus/invoice_backend/models"
	"bitbucket.org/mmdatafocus/invoice_backend/requirements"
	"bitbucket.org/mmdatafocus/invoice_backend/store"
	"bitbucket.org/mmdatafocus/invoice_backend/uploads"
	"bitbucket.org/mmdatafocus/invoice_backend/utils"
	"go.opentelemetry.io/otel/attribute"
)

var documentGate = map[models.DocumentKind]models.InvoiceStatus{
	models.DocumentKindAccessCode:   models.InvoiceStatusAccessCodeIssued,
	models.DocumentKindIsrRetention: models.InvoiceStatusIsrRetained,
	models.DocumentKindIvaRetention: models.InvoiceStatusIvaRetained,
	models.DocumentKindPaymentProof: models.InvoiceStatusPaid,
}

// RecordDocumentUpload stores a payment artifact and moves the invoice forward
// to the state the documents now imply, one event per table edge. The state
// never moves backwards. An empty access code ref generates a code.
func (e *Engine) RecordDocumentUpload(ctx context.Context, invoiceID int, kind models.DocumentKind, ref string, actorID int) (_ *models.Invoice, err error) {
	ctx, span := e.startSpan(ctx, "RecordDocumentUpload",
		attribute.Int("invoice.id", invoiceID),
		attribute.String("document.kind", string(kind)),
		attribute.Int("actor.id", actorID),
	)
	defer func() { endSpan(span, err) }()

	if !kind.IsValid() {
		return nil, fmt.Errorf("document kind %q: %w", kind, utils.ErrorInvalidInput)
	}
	if kind != models.DocumentKindAccessCode {
		if ref == "" {
			return nil, fmt.Errorf("%s requires a file reference: %w", kind, utils.ErrorInvalidInput)
		}
		if !uploads.IsDocumentKey(invoiceID, kind, ref) {
			return nil, fmt.Errorf("%s must be stored under %s: %w", kind, uploads.KeyPrefix(invoiceID, kind), utils.ErrorInvalidInput)
		}
	}
	actor, err := e.actor(ctx, actorID)
	if err != nil {
		return nil, err
	}

	var (
		pending  pendingEvents
		inv      *models.Invoice
		replaced string
	)
	err = e.withInvoice(ctx, invoiceID, func(tx store.Tx) error {
		pending.reset()
		replaced = ""
		cur, err := tx.LockInvoice(invoiceID)
		if err != nil {
			return err
		}
		if !e.Permissions.CanUploadDocument(actor, cur) {
			return forbidden("user %d cannot upload documents for invoice %d", actorID, invoiceID)
		}
		if !InDocumentPhase(cur.Status) {
			return newInvalidTransition(cur, documentGate[kind], "documents are accepted from processing until paid")
		}
		supplier, err := e.Store.GetSupplier(ctx, cur.SupplierId)
		if err != nil {
			return err
		}

		payment, err := tx.GetPayment(invoiceID)
		if err != nil {
			return err
		}
		if payment == nil {
			payment = &models.Payment{InvoiceId: invoiceID}
		}
		docRef := ref
		if docRef == "" {
			if docRef, err = utils.GenerateAccessCode(e.AccessCodeLength); err != nil {
				return err
			}
		}
		if old := payment.SetRef(kind, docRef); old != docRef && kind != models.DocumentKindAccessCode {
			replaced = old
		}
		if payment.CompletedAt == nil && requirements.IsComplete(payment, supplier.Regime) {
			now := e.Now()
			payment.CompletedAt = &now
		}
		if err := tx.SavePayment(payment); err != nil {
			return err
		}

		inv = cur
		next := requirements.NextState(payment, supplier.Regime)
		if DocumentPhaseIndex(next) <= DocumentPhaseIndex(cur.Status) {
			return nil
		}
		for _, step := range forwardPath(cur.Status, next) {
			from := cur.Status
			note := fmt.Sprintf("%s uploaded", kind)
			if err := pending.append(tx, e.newEvent(cur, &from, step, actor.ID, note)); err != nil {
				return err
			}
			cur.Status = step
		}
		return tx.UpdateInvoice(cur)
	})
	if err != nil {
		return nil, err
	}
	e.announce(ctx, inv, pending.events)
	if replaced != "" {
		e.removeFiles(ctx, invoiceID, []string{replaced})
	}
	return inv, nil
}

// ComputeProgress reads the invoice and its payment from one snapshot.
func (e *Engine) ComputeProgress(ctx context.Context, invoiceID int) (_ requirements.Progress, err error) {
	ctx, span := e.startSpan(ctx, "ComputeProgress", attribute.Int("invoice.id", invoiceID))
	defer func() { endSpan(span, err) }()

	inv, payment, err := e.Store.GetInvoiceWithPayment(ctx, invoiceID)
	if err != nil {
		return requirements.Progress{}, err
	}
	supplier, err := e.Store.GetSupplier(ctx, inv.SupplierId)
	if err != nil {
		return requirements.Progress{}, err
	}
	return requirements.Describe(payment, supplier.Regime), nil
}
