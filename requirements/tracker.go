// Package requirements decides which payment artifacts a supplier regime needs
// and what state the uploaded artifacts imply. Everything here is pure.
package requirements

import (
	"math"

	"bitbucket.org/mmdatafocus/invoice_backend/models"
)

// Progress summarizes the document phase of an invoice.
type Progress struct {
	Percent   int                   `json:"percent"`
	Required  []models.DocumentKind `json:"required"`
	Missing   []models.DocumentKind `json:"missing"`
	NextState models.InvoiceStatus  `json:"next_state"`
}

// RequiredArtifacts returns the mandatory artifacts for regime, in requirement order.
// Unknown regimes get the standard withholding list.
func RequiredArtifacts(regime models.Regime) []models.DocumentKind {
	switch regime {
	case models.RegimeQuarterlyPayer, models.RegimeSmallTaxpayer:
		return []models.DocumentKind{
			models.DocumentKindPaymentProof,
			models.DocumentKindAccessCode,
			models.DocumentKindIvaRetention,
		}
	case models.RegimeQuarterlyPayerRetentionAgent:
		return []models.DocumentKind{
			models.DocumentKindPaymentProof,
			models.DocumentKindAccessCode,
		}
	}
	return []models.DocumentKind{
		models.DocumentKindPaymentProof,
		models.DocumentKindAccessCode,
		models.DocumentKindIvaRetention,
		models.DocumentKindIsrRetention,
	}
}

func IsRequired(regime models.Regime, kind models.DocumentKind) bool {
	for _, k := range RequiredArtifacts(regime) {
		if k == kind {
			return true
		}
	}
	return false
}

func CalculateProgress(payment *models.Payment, regime models.Regime) int {
	if payment == nil {
		return 0
	}
	required := RequiredArtifacts(regime)
	present := 0
	for _, k := range required {
		if payment.Has(k) {
			present++
		}
	}
	return int(math.Round(float64(present) / float64(len(required)) * 100))
}

func MissingDocuments(payment *models.Payment, regime models.Regime) []models.DocumentKind {
	missing := []models.DocumentKind{}
	for _, k := range RequiredArtifacts(regime) {
		if !payment.Has(k) {
			missing = append(missing, k)
		}
	}
	return missing
}

func IsComplete(payment *models.Payment, regime models.Regime) bool {
	return len(MissingDocuments(payment, regime)) == 0
}

type gate struct {
	kind  models.DocumentKind
	state models.InvoiceStatus
}

// gates is the fixed order documents move the invoice forward in.
var gates = []gate{
	{models.DocumentKindAccessCode, models.InvoiceStatusAccessCodeIssued},
	{models.DocumentKindIsrRetention, models.InvoiceStatusIsrRetained},
	{models.DocumentKindIvaRetention, models.InvoiceStatusIvaRetained},
	{models.DocumentKindPaymentProof, models.InvoiceStatusPaid},
}

// NextState returns the state implied by the uploaded artifacts: the state of the
// last gate in the access code, ISR, IVA, proof chain that is satisfied without a
// gap. Gates the regime does not require are skipped. With nothing uploaded it is
// processing; with every required artifact present it is paid.
func NextState(payment *models.Payment, regime models.Regime) models.InvoiceStatus {
	if IsComplete(payment, regime) {
		return models.InvoiceStatusPaid
	}
	state := models.InvoiceStatusProcessing
	for _, g := range gates {
		if !IsRequired(regime, g.kind) {
			continue
		}
		if !payment.Has(g.kind) {
			break
		}
		state = g.state
	}
	return state
}

func Describe(payment *models.Payment, regime models.Regime) Progress {
	return Progress{
		Percent:   CalculateProgress(payment, regime),
		Required:  RequiredArtifacts(regime),
		Missing:   MissingDocuments(payment, regime),
		NextState: NextState(payment, regime),
	}
}
