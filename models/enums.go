package models

import (
	"encoding/json"
	"errors"
)

type InvoiceStatus string

const (
	InvoiceStatusSubmitted        InvoiceStatus = "submitted"
	InvoiceStatusAssigned         InvoiceStatus = "assigned"
	InvoiceStatusProcessing       InvoiceStatus = "processing"
	InvoiceStatusAccessCodeIssued InvoiceStatus = "access_code_issued"
	InvoiceStatusIsrRetained      InvoiceStatus = "isr_retained"
	InvoiceStatusIvaRetained      InvoiceStatus = "iva_retained"
	InvoiceStatusPaid             InvoiceStatus = "paid"
	InvoiceStatusCompleted        InvoiceStatus = "completed"
	InvoiceStatusRejected         InvoiceStatus = "rejected"
)

var AllInvoiceStatuses = []InvoiceStatus{
	InvoiceStatusSubmitted,
	InvoiceStatusAssigned,
	InvoiceStatusProcessing,
	InvoiceStatusAccessCodeIssued,
	InvoiceStatusIsrRetained,
	InvoiceStatusIvaRetained,
	InvoiceStatusPaid,
	InvoiceStatusCompleted,
	InvoiceStatusRejected,
}

func (t InvoiceStatus) IsValid() bool {
	for _, s := range AllInvoiceStatuses {
		if s == t {
			return true
		}
	}
	return false
}

// convert input to enum type
func (t *InvoiceStatus) UnmarshalJSON(b []byte) error {
	var str string
	if err := json.Unmarshal(b, &str); err != nil {
		return errors.New("invoice status must be string")
	}
	v := InvoiceStatus(str)
	if !v.IsValid() {
		return errors.New("invalid invoice status")
	}
	*t = v
	return nil
}

type Priority string

const (
	PriorityLow    Priority = "low"
	PriorityMedium Priority = "medium"
	PriorityHigh   Priority = "high"
	PriorityUrgent Priority = "urgent"
)

func (t Priority) IsValid() bool {
	switch t {
	case PriorityLow, PriorityMedium, PriorityHigh, PriorityUrgent:
		return true
	}
	return false
}

func (t *Priority) UnmarshalJSON(b []byte) error {
	var str string
	if err := json.Unmarshal(b, &str); err != nil {
		return errors.New("priority must be string")
	}
	v := Priority(str)
	if !v.IsValid() {
		return errors.New("invalid priority")
	}
	*t = v
	return nil
}

type UserRole string

const (
	UserRoleSuperAdmin       UserRole = "super_admin"
	UserRoleAccountingAdmin  UserRole = "accounting_admin"
	UserRoleAccountingWorker UserRole = "accounting_worker"
	UserRoleSupplier         UserRole = "supplier"
)

func (t UserRole) IsValid() bool {
	switch t {
	case UserRoleSuperAdmin, UserRoleAccountingAdmin, UserRoleAccountingWorker, UserRoleSupplier:
		return true
	}
	return false
}

func (t *UserRole) UnmarshalJSON(b []byte) error {
	var str string
	if err := json.Unmarshal(b, &str); err != nil {
		return errors.New("user role must be string")
	}
	v := UserRole(str)
	if !v.IsValid() {
		return errors.New("invalid user role")
	}
	*t = v
	return nil
}

// Regime is the supplier's tax regime. It decides which payment documents are required.
type Regime string

const (
	RegimeStandardWithholding          Regime = "standard_withholding"
	RegimeQuarterlyPayer               Regime = "quarterly_payer"
	RegimeSmallTaxpayer                Regime = "small_taxpayer"
	RegimeQuarterlyPayerRetentionAgent Regime = "quarterly_payer_retention_agent"
)

func (t Regime) IsValid() bool {
	switch t {
	case RegimeStandardWithholding, RegimeQuarterlyPayer, RegimeSmallTaxpayer, RegimeQuarterlyPayerRetentionAgent:
		return true
	}
	return false
}

func (t *Regime) UnmarshalJSON(b []byte) error {
	var str string
	if err := json.Unmarshal(b, &str); err != nil {
		return errors.New("regime must be string")
	}
	v := Regime(str)
	if !v.IsValid() {
		return errors.New("invalid regime")
	}
	*t = v
	return nil
}

// DocumentKind identifies one of the payment artifacts.
type DocumentKind string

const (
	DocumentKindPaymentProof DocumentKind = "payment_proof"
	DocumentKindAccessCode   DocumentKind = "access_code"
	DocumentKindIvaRetention DocumentKind = "iva_retention"
	DocumentKindIsrRetention DocumentKind = "isr_retention"
)

func (t DocumentKind) IsValid() bool {
	switch t {
	case DocumentKindPaymentProof, DocumentKindAccessCode, DocumentKindIvaRetention, DocumentKindIsrRetention:
		return true
	}
	return false
}

func (t *DocumentKind) UnmarshalJSON(b []byte) error {
	var str string
	if err := json.Unmarshal(b, &str); err != nil {
		return errors.New("document kind must be string")
	}
	v := DocumentKind(str)
	if !v.IsValid() {
		return errors.New("invalid document kind")
	}
	*t = v
	return nil
}
