package workflow

import (
	"time"

	"bitbucket.org/mmdatafocus/invoice_backend/models"
)

type NotificationEventType string

const (
	EventInvoiceCreated       NotificationEventType = "invoice.created"
	EventInvoiceStatusChanged NotificationEventType = "invoice.status_changed"
	EventInvoiceReassigned    NotificationEventType = "invoice.reassigned"
)

// Notification is emitted once per committed state event. Delivery is best
// effort and at most once.
type Notification struct {
	EventType     NotificationEventType `json:"event_type"`
	InvoiceID     int                   `json:"invoice_id"`
	InvoiceNumber string                `json:"invoice_number"`
	FromState     *models.InvoiceStatus `json:"from_state,omitempty"`
	ToState       models.InvoiceStatus  `json:"to_state"`
	ActorID       int                   `json:"actor_id"`
	AssignedTo    *int                  `json:"assigned_to,omitempty"`
	Timestamp     time.Time             `json:"timestamp"`
	CorrelationID string                `json:"correlation_id,omitempty"`
}

// Notifier accepts notifications without blocking and without reporting back.
type Notifier interface {
	Notify(n Notification)
}

type NopNotifier struct{}

func (NopNotifier) Notify(Notification) {}

func notificationFor(inv *models.Invoice, e *models.InvoiceStateEvent, correlationID string) Notification {
	t := EventInvoiceStatusChanged
	switch {
	case e.FromState == nil:
		t = EventInvoiceCreated
	case *e.FromState == e.ToState:
		t = EventInvoiceReassigned
	}
	n := Notification{
		EventType:     t,
		InvoiceID:     inv.ID,
		InvoiceNumber: inv.Number,
		ToState:       e.ToState,
		ActorID:       e.ActorId,
		Timestamp:     e.CreatedAt,
		CorrelationID: correlationID,
	}
	if e.FromState != nil {
		from := *e.FromState
		n.FromState = &from
	}
	if inv.AssignedTo != nil {
		a := *inv.AssignedTo
		n.AssignedTo = &a
	}
	return n
}
