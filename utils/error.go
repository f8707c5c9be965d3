package utils

import "errors"

var (
	ErrorRecordNotFound    = errors.New("record not found")
	ErrorForbidden         = errors.New("forbidden")
	ErrorDuplicateNumber   = errors.New("duplicate invoice number")
	ErrorDuplicateTaxId    = errors.New("duplicate tax id among active suppliers")
	ErrorInvalidAmount     = errors.New("amount must be greater than zero")
	ErrorInvalidTransition = errors.New("invalid transition")
	ErrorInvalidInput      = errors.New("invalid input")
)

// IsExpected reports whether err belongs to the typed outcomes callers are
// supposed to handle (as opposed to persistence failures).
func IsExpected(err error) bool {
	for _, target := range []error{
		ErrorRecordNotFound,
		ErrorForbidden,
		ErrorDuplicateNumber,
		ErrorDuplicateTaxId,
		ErrorInvalidAmount,
		ErrorInvalidTransition,
		ErrorInvalidInput,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}
