package models

import "time"

// InvoiceStateEvent is one row of the append-only status history.
// FromState is nil for the creation event. Reassignments keep FromState == ToState.
type InvoiceStateEvent struct {
	ID        int            `gorm:"primary_key" json:"id"`
	InvoiceId int            `gorm:"index;not null" json:"invoice_id"`
	FromState *InvoiceStatus `gorm:"size:30" json:"from_state"`
	ToState   InvoiceStatus  `gorm:"size:30;not null" json:"to_state"`
	ActorId   int            `gorm:"index;not null" json:"actor_id"`
	Note      string         `gorm:"type:text" json:"note"`
	CreatedAt time.Time      `json:"created_at"`
}

func (e *InvoiceStateEvent) Clone() *InvoiceStateEvent {
	if e == nil {
		return nil
	}
	c := *e
	if e.FromState != nil {
		v := *e.FromState
		c.FromState = &v
	}
	return &c
}
