package requirements

import (
	"reflect"
	"testing"

	"bitbucket.org/mmdatafocus/invoice_backend/models"
)

func withDocs(kinds ...models.DocumentKind) *models.Payment {
	p := &models.Payment{InvoiceId: 1}
	for _, k := range kinds {
		p.SetRef(k, "ref-"+string(k))
	}
	return p
}

func TestRequiredArtifacts(t *testing.T) {
	cases := []struct {
		regime models.Regime
		want   int
	}{
		{models.RegimeStandardWithholding, 4},
		{models.RegimeQuarterlyPayer, 3},
		{models.RegimeSmallTaxpayer, 3},
		{models.RegimeQuarterlyPayerRetentionAgent, 2},
		{models.Regime("something_else"), 4},
	}
	for _, tc := range cases {
		if got := RequiredArtifacts(tc.regime); len(got) != tc.want {
			t.Fatalf("%s: got %v want %d artifacts", tc.regime, got, tc.want)
		}
	}
	if IsRequired(models.RegimeQuarterlyPayer, models.DocumentKindIsrRetention) {
		t.Fatalf("quarterly payer must not require ISR")
	}
}

func TestNextState_StandardWithholding(t *testing.T) {
	r := models.RegimeStandardWithholding
	steps := []struct {
		payment *models.Payment
		want    models.InvoiceStatus
	}{
		{nil, models.InvoiceStatusProcessing},
		{withDocs(), models.InvoiceStatusProcessing},
		{withDocs(models.DocumentKindAccessCode), models.InvoiceStatusAccessCodeIssued},
		{withDocs(models.DocumentKindAccessCode, models.DocumentKindIsrRetention), models.InvoiceStatusIsrRetained},
		{withDocs(models.DocumentKindAccessCode, models.DocumentKindIsrRetention, models.DocumentKindIvaRetention), models.InvoiceStatusIvaRetained},
		{withDocs(models.DocumentKindAccessCode, models.DocumentKindIsrRetention, models.DocumentKindIvaRetention, models.DocumentKindPaymentProof), models.InvoiceStatusPaid},
		// gap: ISR missing stops the walk at the access code gate
		{withDocs(models.DocumentKindAccessCode, models.DocumentKindIvaRetention, models.DocumentKindPaymentProof), models.InvoiceStatusAccessCodeIssued},
		{withDocs(models.DocumentKindPaymentProof), models.InvoiceStatusProcessing},
	}
	for i, s := range steps {
		if got := NextState(s.payment, r); got != s.want {
			t.Fatalf("step %d: got %s want %s", i, got, s.want)
		}
	}
}

func TestNextState_SkipsGatesNotRequired(t *testing.T) {
	// quarterly payer: access code then IVA, ISR is never needed
	p := withDocs(models.DocumentKindAccessCode, models.DocumentKindIvaRetention)
	if got := NextState(p, models.RegimeQuarterlyPayer); got != models.InvoiceStatusIvaRetained {
		t.Fatalf("got %s", got)
	}
	p = withDocs(models.DocumentKindAccessCode, models.DocumentKindPaymentProof)
	if got := NextState(p, models.RegimeQuarterlyPayerRetentionAgent); got != models.InvoiceStatusPaid {
		t.Fatalf("got %s", got)
	}
	p = withDocs(models.DocumentKindAccessCode)
	if got := NextState(p, models.RegimeQuarterlyPayerRetentionAgent); got != models.InvoiceStatusAccessCodeIssued {
		t.Fatalf("got %s", got)
	}
}

func TestMissingDocuments_RetentionAgentNeverNeedsRetentions(t *testing.T) {
	payments := []*models.Payment{
		nil,
		withDocs(),
		withDocs(models.DocumentKindIsrRetention),
		withDocs(models.DocumentKindAccessCode, models.DocumentKindIvaRetention),
		withDocs(models.DocumentKindAccessCode, models.DocumentKindPaymentProof),
	}
	for i, p := range payments {
		for _, k := range MissingDocuments(p, models.RegimeQuarterlyPayerRetentionAgent) {
			if k == models.DocumentKindIsrRetention || k == models.DocumentKindIvaRetention {
				t.Fatalf("payment %d: retention listed as missing: %v", i, k)
			}
		}
	}
}

func TestCalculateProgress(t *testing.T) {
	if got := CalculateProgress(nil, models.RegimeStandardWithholding); got != 0 {
		t.Fatalf("nil payment: %d", got)
	}
	if got := CalculateProgress(withDocs(models.DocumentKindAccessCode), models.RegimeQuarterlyPayer); got != 33 {
		t.Fatalf("1/3: %d", got)
	}
	if got := CalculateProgress(withDocs(models.DocumentKindAccessCode, models.DocumentKindIvaRetention), models.RegimeSmallTaxpayer); got != 67 {
		t.Fatalf("2/3: %d", got)
	}
	// artifacts the regime does not need do not count
	if got := CalculateProgress(withDocs(models.DocumentKindIsrRetention), models.RegimeQuarterlyPayerRetentionAgent); got != 0 {
		t.Fatalf("ISR for retention agent: %d", got)
	}
}

func TestDescribe(t *testing.T) {
	p := withDocs(models.DocumentKindAccessCode)
	got := Describe(p, models.RegimeStandardWithholding)
	want := []models.DocumentKind{models.DocumentKindPaymentProof, models.DocumentKindIvaRetention, models.DocumentKindIsrRetention}
	if got.Percent != 25 || !reflect.DeepEqual(got.Missing, want) || got.NextState != models.InvoiceStatusAccessCodeIssued {
		t.Fatalf("unexpected progress: %+v", got)
	}
}
