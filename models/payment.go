package models

import "time"

// Payment holds the payment artifacts of one invoice. It is created on the first document upload.
type Payment struct {
	ID               int        `gorm:"primary_key" json:"id"`
	InvoiceId        int        `gorm:"uniqueIndex;not null" json:"invoice_id"`
	AccessCode       string     `gorm:"size:255" json:"access_code"`
	IsrRetentionPath string     `gorm:"size:500" json:"isr_retention_path"`
	IvaRetentionPath string     `gorm:"size:500" json:"iva_retention_path"`
	PaymentProofPath string     `gorm:"size:500" json:"payment_proof_path"`
	CompletedAt      *time.Time `json:"completed_at"`
	CreatedAt        time.Time  `json:"created_at"`
	UpdatedAt        time.Time  `json:"updated_at"`
}

// Has reports whether the artifact of the given kind is present.
func (p *Payment) Has(kind DocumentKind) bool {
	if p == nil {
		return false
	}
	return p.Ref(kind) != ""
}

func (p *Payment) Ref(kind DocumentKind) string {
	if p == nil {
		return ""
	}
	switch kind {
	case DocumentKindAccessCode:
		return p.AccessCode
	case DocumentKindIsrRetention:
		return p.IsrRetentionPath
	case DocumentKindIvaRetention:
		return p.IvaRetentionPath
	case DocumentKindPaymentProof:
		return p.PaymentProofPath
	}
	return ""
}

// SetRef stores ref for kind and returns the previous value.
func (p *Payment) SetRef(kind DocumentKind, ref string) (old string) {
	switch kind {
	case DocumentKindAccessCode:
		old, p.AccessCode = p.AccessCode, ref
	case DocumentKindIsrRetention:
		old, p.IsrRetentionPath = p.IsrRetentionPath, ref
	case DocumentKindIvaRetention:
		old, p.IvaRetentionPath = p.IvaRetentionPath, ref
	case DocumentKindPaymentProof:
		old, p.PaymentProofPath = p.PaymentProofPath, ref
	}
	return old
}

// FilePaths lists the stored file references, skipping the access code which is not a file.
func (p *Payment) FilePaths() []string {
	if p == nil {
		return nil
	}
	var paths []string
	for _, v := range []string{p.IsrRetentionPath, p.IvaRetentionPath, p.PaymentProofPath} {
		if v != "" {
			paths = append(paths, v)
		}
	}
	return paths
}

func (p *Payment) Clone() *Payment {
	if p == nil {
		return nil
	}
	c := *p
	if p.CompletedAt != nil {
		v := *p.CompletedAt
		c.CompletedAt = &v
	}
	return &c
}
