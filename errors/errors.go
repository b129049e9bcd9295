package errors

import (
	stderrors "errors"
	"fmt"
	"net/http"
	"strings"
)

var (
	ErrWorkerPanic        = fmt.Errorf("worker panic")
	ErrValidation         = fmt.Errorf("validation failed")
	ErrForbidden          = fmt.Errorf("forbidden")
	ErrNotFound           = fmt.Errorf("not found")
	ErrConflict           = fmt.Errorf("conflict")
	ErrContentRejected    = fmt.Errorf("content rejected")
	ErrServiceUnavailable = fmt.Errorf("service unavailable")
	ErrInvalidToken       = fmt.Errorf("invalid or expired token")
	ErrEmptyWords         = fmt.Errorf("no blocklisted words loaded")
)

// ContentRejectedError carries the moderation verdict back to the caller so the UI can explain it.
type ContentRejectedError struct {
	Reason     string
	Categories []string
}

func (e *ContentRejectedError) Error() string {
	if len(e.Categories) == 0 {
		return fmt.Sprintf("%s: %s", ErrContentRejected, e.Reason)
	}
	return fmt.Sprintf("%s: %s [%s]", ErrContentRejected, e.Reason, strings.Join(e.Categories, ","))
}

func (e *ContentRejectedError) Unwrap() error { return ErrContentRejected }

// Validation wraps ErrValidation with a caller-facing detail.
func Validation(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrValidation, fmt.Sprintf(format, args...))
}

func Is(err, target error) bool { return stderrors.Is(err, target) }

func As(err error, target any) bool { return stderrors.As(err, target) }

// HTTPStatus maps an error to its status code and the message safe to show to the caller.
// Authorization and lookup failures get a generic body.
func HTTPStatus(err error) (int, string) {
	var rejected *ContentRejectedError
	switch {
	case err == nil:
		return http.StatusOK, ""
	case stderrors.As(err, &rejected):
		return http.StatusUnprocessableEntity, rejected.Error()
	case stderrors.Is(err, ErrValidation):
		return http.StatusBadRequest, err.Error()
	case stderrors.Is(err, ErrInvalidToken):
		return http.StatusUnauthorized, ErrInvalidToken.Error()
	case stderrors.Is(err, ErrForbidden):
		return http.StatusForbidden, "you are not allowed to perform this action"
	case stderrors.Is(err, ErrNotFound):
		return http.StatusNotFound, "resource not found"
	case stderrors.Is(err, ErrConflict):
		return http.StatusConflict, "conflicting update, retry"
	case stderrors.Is(err, ErrServiceUnavailable):
		return http.StatusServiceUnavailable, "a dependency is unavailable, retry later"
	default:
		return http.StatusInternalServerError, "internal error"
	}
}
