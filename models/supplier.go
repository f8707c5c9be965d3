package models

import "time"

type Supplier struct {
	ID          int       `gorm:"primary_key" json:"id"`
	Name        string    `gorm:"size:100;not null" json:"name"`
	TaxId       string    `gorm:"size:20;index;not null" json:"tax_id"`
	Email       string    `gorm:"size:100" json:"email"`
	Phone       string    `gorm:"size:20" json:"phone"`
	Address     string    `gorm:"type:text" json:"address"`
	BankName    string    `gorm:"size:100" json:"bank_name"`
	BankAccount string    `gorm:"size:50" json:"bank_account"`
	Regime      Regime    `gorm:"size:40;not null;default:'standard_withholding'" json:"regime"`
	IsActive    *bool     `gorm:"not null;default:true" json:"is_active"`
	CreatedAt   time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt   time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

type NewSupplier struct {
	Name        string `json:"name" validate:"required,max=100"`
	TaxId       string `json:"tax_id" validate:"required,min=12,max=13,alphanum"`
	Email       string `json:"email" validate:"omitempty,email"`
	Phone       string `json:"phone"`
	Address     string `json:"address"`
	BankName    string `json:"bank_name" validate:"max=100"`
	BankAccount string `json:"bank_account" validate:"omitempty,numeric,max=50"`
	Regime      Regime `json:"regime" validate:"required"`
}

func (s *Supplier) Active() bool {
	return s != nil && s.IsActive != nil && *s.IsActive
}
