// File: internal/walkthrough/errors.go
package walkthrough

import (
	"errors"

	"github.com/xkilldash9x/stepwise/api/schemas"
)

var (
	// ErrBusy is returned when a control operation is invoked while another one
	// on the same session is still in flight.
	ErrBusy = errors.New("walkthrough session is busy")

	// ErrMalformedCollection is returned when a step payload cannot be decoded.
	ErrMalformedCollection = schemas.ErrMalformedCollection
)
