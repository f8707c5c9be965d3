package workflow

import "bitbucket.org/mmdatafocus/invoice_backend/models"

// transitionTable lists the legal next states. Order matters: the first entry is
// the forward edge walked by document uploads.
var transitionTable = map[models.InvoiceStatus][]models.InvoiceStatus{
	models.InvoiceStatusSubmitted:        {models.InvoiceStatusAssigned, models.InvoiceStatusRejected},
	models.InvoiceStatusAssigned:         {models.InvoiceStatusProcessing, models.InvoiceStatusRejected},
	models.InvoiceStatusProcessing:       {models.InvoiceStatusAccessCodeIssued, models.InvoiceStatusRejected},
	models.InvoiceStatusAccessCodeIssued: {models.InvoiceStatusIsrRetained, models.InvoiceStatusRejected},
	models.InvoiceStatusIsrRetained:      {models.InvoiceStatusIvaRetained, models.InvoiceStatusRejected},
	models.InvoiceStatusIvaRetained:      {models.InvoiceStatusPaid, models.InvoiceStatusRejected},
	models.InvoiceStatusPaid:             {models.InvoiceStatusCompleted, models.InvoiceStatusRejected},
	models.InvoiceStatusCompleted:        {},
	models.InvoiceStatusRejected:         {models.InvoiceStatusSubmitted},
}

// AllowedTransitions returns a copy of the legal next states of from.
func AllowedTransitions(from models.InvoiceStatus) []models.InvoiceStatus {
	next := transitionTable[from]
	out := make([]models.InvoiceStatus, len(next))
	copy(out, next)
	return out
}

func CanTransition(from, to models.InvoiceStatus) bool {
	for _, s := range transitionTable[from] {
		if s == to {
			return true
		}
	}
	return false
}

func IsTerminal(s models.InvoiceStatus) bool {
	next, ok := transitionTable[s]
	return ok && len(next) == 0
}

// IsOpen reports whether an invoice in s still counts towards its assignee's workload.
func IsOpen(s models.InvoiceStatus) bool {
	return s != models.InvoiceStatusCompleted && s != models.InvoiceStatusRejected
}

var documentPhase = []models.InvoiceStatus{
	models.InvoiceStatusProcessing,
	models.InvoiceStatusAccessCodeIssued,
	models.InvoiceStatusIsrRetained,
	models.InvoiceStatusIvaRetained,
	models.InvoiceStatusPaid,
}

// DocumentPhaseIndex orders the states driven by document uploads. It is -1 for
// any other state.
func DocumentPhaseIndex(s models.InvoiceStatus) int {
	for i, p := range documentPhase {
		if p == s {
			return i
		}
	}
	return -1
}

func InDocumentPhase(s models.InvoiceStatus) bool {
	return DocumentPhaseIndex(s) >= 0
}

// forwardPath lists the states strictly after from up to and including to,
// following forward edges only.
func forwardPath(from, to models.InvoiceStatus) []models.InvoiceStatus {
	var path []models.InvoiceStatus
	cur := from
	for cur != to {
		next := transitionTable[cur]
		if len(next) == 0 || next[0] == models.InvoiceStatusRejected {
			return nil
		}
		cur = next[0]
		path = append(path, cur)
	}
	return path
}
