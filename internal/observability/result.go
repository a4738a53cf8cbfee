package observability

import (
	"errors"

	"github.com/arkhan2/invoicing-system-sub001/internal/shared"
)

// Result classifies err into a low cardinality label value.
func Result(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, shared.ErrValidation):
		return "invalid"
	case errors.Is(err, shared.ErrUnauthorized), errors.Is(err, shared.ErrForbidden):
		return "denied"
	case errors.Is(err, shared.ErrNotFound):
		return "not_found"
	case errors.Is(err, shared.ErrConflict):
		return "conflict"
	default:
		return "error"
	}
}
