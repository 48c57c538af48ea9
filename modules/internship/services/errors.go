package services

import (
	"errors"
	"fmt"
	"net/http"
)

type ServiceError struct {
	Status  int
	Code    string
	Message string
	Cause   error
}

func (e *ServiceError) Error() string {
	if e.Cause == nil {
		return e.Message
	}
	return fmt.Sprintf("%s: %v", e.Message, e.Cause)
}

func (e *ServiceError) Unwrap() error { return e.Cause }

// Is matches on Code so errors.Is(err, ErrCapacityExceeded) holds for any
// error carrying that code.
func (e *ServiceError) Is(target error) bool {
	t, ok := target.(*ServiceError)
	return ok && t.Code == e.Code
}

func newServiceError(status int, code, message string, cause error) *ServiceError {
	return &ServiceError{Status: status, Code: code, Message: message, Cause: cause}
}

var (
	ErrPeriodClosed        = newServiceError(http.StatusConflict, "INTERNSHIP_PERIOD_CLOSED", "period is not open", nil)
	ErrNotAccepting        = newServiceError(http.StatusConflict, "INTERNSHIP_NOT_ACCEPTING", "subject is not accepting students", nil)
	ErrCapacityExceeded    = newServiceError(http.StatusConflict, "INTERNSHIP_CAPACITY_EXCEEDED", "no capacity left", nil)
	ErrAlreadyEnrolled     = newServiceError(http.StatusConflict, "INTERNSHIP_ALREADY_ENROLLED", "subject is already enrolled in period", nil)
	ErrBelowUsage          = newServiceError(http.StatusUnprocessableEntity, "INTERNSHIP_BELOW_USAGE", "max slots below current usage", nil)
	ErrDuplicateSubmission = newServiceError(http.StatusConflict, "INTERNSHIP_DUPLICATE_SUBMISSION", "preferences already submitted", nil)
	ErrInvalidRankSequence = newServiceError(http.StatusUnprocessableEntity, "INTERNSHIP_INVALID_RANK_SEQUENCE", "invalid rank sequence", nil)
	ErrNotPending          = newServiceError(http.StatusConflict, "INTERNSHIP_NOT_PENDING", "preference is not pending", nil)
	ErrAlreadyDecided      = newServiceError(http.StatusConflict, "INTERNSHIP_ALREADY_DECIDED", "student already has a placement outcome", nil)
	ErrNotFound            = newServiceError(http.StatusNotFound, "INTERNSHIP_NOT_FOUND", "not found", nil)
	ErrNotEnrolled         = newServiceError(http.StatusUnprocessableEntity, "INTERNSHIP_NOT_ENROLLED", "subject is not enrolled in period", nil)
	ErrGuideRequired       = newServiceError(http.StatusUnprocessableEntity, "INTERNSHIP_GUIDE_REQUIRED", "a guide must be assigned first", nil)
	ErrInvalidWindow       = newServiceError(http.StatusBadRequest, "INTERNSHIP_INVALID_WINDOW", "invalid period window", nil)
	ErrInvalidBody         = newServiceError(http.StatusBadRequest, "INTERNSHIP_INVALID_BODY", "invalid request body", nil)
	ErrConflict            = newServiceError(http.StatusConflict, "INTERNSHIP_CONFLICT", "concurrent update, retry", nil)
	ErrInternal            = newServiceError(http.StatusInternalServerError, "INTERNSHIP_INTERNAL", "internal error", nil)
)

// fail derives a request-specific error from a sentinel.
func fail(sentinel *ServiceError, message string, cause error) *ServiceError {
	if message == "" {
		message = sentinel.Message
	}
	return newServiceError(sentinel.Status, sentinel.Code, message, cause)
}

func failf(sentinel *ServiceError, format string, args ...any) *ServiceError {
	return fail(sentinel, fmt.Sprintf(format, args...), nil)
}

// asServiceError keeps typed errors as they are and maps everything else
// through the pg error table.
func asServiceError(err error) error {
	if err == nil {
		return nil
	}
	var svcErr *ServiceError
	if errors.As(err, &svcErr) {
		return err
	}
	return mapPgErrorToServiceError(err)
}

// ErrorCode returns the code carried by err, or the internal code.
func ErrorCode(err error) string {
	var svcErr *ServiceError
	if errors.As(err, &svcErr) {
		return svcErr.Code
	}
	return ErrInternal.Code
}

// ErrorFromStore classifies a raw repository error into a ServiceError.
func ErrorFromStore(err error) error {
	return asServiceError(err)
}
