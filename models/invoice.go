package models

import (
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
)

type Invoice struct {
	ID          int                              `gorm:"primary_key" json:"id"`
	Number      string                           `gorm:"size:100;not null;uniqueIndex" json:"number"`
	SupplierId  int                              `gorm:"index;not null" json:"supplier_id"`
	AssignedTo  *int                             `gorm:"index" json:"assigned_to"`
	Amount      decimal.Decimal                  `gorm:"type:decimal(20,4);not null" json:"amount"`
	Description string                           `gorm:"type:text" json:"description"`
	Priority    Priority                         `gorm:"type:enum('low','medium','high','urgent');not null;default:'medium'" json:"priority"`
	DueDate     *time.Time                       `json:"due_date"`
	Status      InvoiceStatus                    `gorm:"size:30;index;not null;default:'submitted'" json:"status"`
	Files       datatypes.JSONSlice[InvoiceFile] `json:"files"`
	CreatedBy   int                              `gorm:"not null" json:"created_by"`
	CreatedIP   string                           `gorm:"size:64" json:"created_ip"`
	CreatedAt   time.Time                        `json:"created_at"`
	UpdatedAt   time.Time                        `json:"updated_at"`
}

// InvoiceFile is an attachment uploaded with the invoice itself (the supplier's PDF/XML).
type InvoiceFile struct {
	Name        string    `json:"name" validate:"required"`
	Path        string    `json:"path" validate:"required"`
	Size        int64     `json:"size"`
	ContentType string    `json:"content_type"`
	UploadedAt  time.Time `json:"uploaded_at"`
}

type NewInvoice struct {
	Number      string          `json:"number" validate:"required,max=100"`
	SupplierId  int             `json:"supplier_id" validate:"required,gt=0"`
	Amount      decimal.Decimal `json:"amount"`
	Description string          `json:"description" validate:"max=2000"`
	Priority    Priority        `json:"priority"`
	DueDate     *time.Time      `json:"due_date"`
	Files       []InvoiceFile   `json:"files" validate:"dive"`
	CreatedIP   string          `json:"-"`
}

// UpdateInvoice carries the editable fields of a submitted invoice. Nil fields are left unchanged.
type UpdateInvoice struct {
	Amount      *decimal.Decimal `json:"amount"`
	Description *string          `json:"description" validate:"omitempty,max=2000"`
	Priority    *Priority        `json:"priority"`
	DueDate     *time.Time       `json:"due_date"`
	Files       []InvoiceFile    `json:"files" validate:"omitempty,dive"`
}

// Clone returns a copy that shares no mutable state with inv.
func (inv *Invoice) Clone() *Invoice {
	if inv == nil {
		return nil
	}
	c := *inv
	if inv.AssignedTo != nil {
		v := *inv.AssignedTo
		c.AssignedTo = &v
	}
	if inv.DueDate != nil {
		v := *inv.DueDate
		c.DueDate = &v
	}
	if inv.Files != nil {
		c.Files = append(datatypes.JSONSlice[InvoiceFile]{}, inv.Files...)
	}
	return &c
}
