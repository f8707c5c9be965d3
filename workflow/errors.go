package workflow

import (
	"errors"
	"fmt"
	"strings"

	"bitbucket.org/mmdatafocus/invoice_backend/models"
	"bitbucket.org/mmdatafocus/invoice_backend/utils"
)

// InvalidTransitionError is returned when the requested move is not legal from
// the invoice's current state. errors.Is(err, utils.ErrorInvalidTransition) holds.
type InvalidTransitionError struct {
	InvoiceID int
	From      models.InvoiceStatus
	To        models.InvoiceStatus
	Allowed   []models.InvoiceStatus
	Reason    string
}

func (e *InvalidTransitionError) Error() string {
	allowed := make([]string, 0, len(e.Allowed))
	for _, s := range e.Allowed {
		allowed = append(allowed, string(s))
	}
	msg := fmt.Sprintf("invalid transition for invoice %d: %s -> %s (allowed: [%s])",
		e.InvoiceID, e.From, e.To, strings.Join(allowed, ", "))
	if e.Reason != "" {
		msg += ": " + e.Reason
	}
	return msg
}

func (e *InvalidTransitionError) Unwrap() error {
	return utils.ErrorInvalidTransition
}

func newInvalidTransition(inv *models.Invoice, to models.InvoiceStatus, reason string) *InvalidTransitionError {
	return &InvalidTransitionError{
		InvoiceID: inv.ID,
		From:      inv.Status,
		To:        to,
		Allowed:   AllowedTransitions(inv.Status),
		Reason:    reason,
	}
}

func forbidden(format string, args ...any) error {
	return fmt.Errorf("%s: %w", fmt.Sprintf(format, args...), utils.ErrorForbidden)
}

func isInvalidTransition(err error) bool {
	var ite *InvalidTransitionError
	return errors.As(err, &ite)
}

func isNotFound(err error) bool {
	return errors.Is(err, utils.ErrorRecordNotFound)
}
