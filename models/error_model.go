package models

import (
	"errors"
	"fmt"
)

// ErrorKind classifies a ServiceError so the API layer can pick a status code
// and callers can decide whether a retry makes sense.
type ErrorKind int

const (
	KindUnknown ErrorKind = iota
	KindValidation
	KindNotFound
	KindConflict
	KindPayment
	KindAuthentication
	KindDatabase
)

func (k ErrorKind) String() string {
	switch k {
	case KindValidation:
		return "validation_error"
	case KindNotFound:
		return "not_found_error"
	case KindConflict:
		return "conflict_error"
	case KindPayment:
		return "payment_error"
	case KindAuthentication:
		return "authentication_error"
	case KindDatabase:
		return "database_error"
	default:
		return "unknown_error"
	}
}

// ServiceError is the error type returned across service boundaries.
// Rail is only set for payment errors ("lightning" or "mpesa").
type ServiceError struct {
	Kind    ErrorKind
	Message string
	Rail    string
	Cause   error
}

func (e *ServiceError) Error() string {
	if e.Cause == nil {
		return e.Message
	}
	if e.Message == "" {
		return e.Cause.Error()
	}
	return fmt.Sprintf("%s: %v", e.Message, e.Cause)
}

func (e *ServiceError) Unwrap() error {
	return e.Cause
}

func NewValidationError(msg string) *ServiceError {
	return &ServiceError{Kind: KindValidation, Message: msg}
}

func NewNotFoundError(msg string) *ServiceError {
	return &ServiceError{Kind: KindNotFound, Message: msg}
}

func NewConflictError(msg string) *ServiceError {
	return &ServiceError{Kind: KindConflict, Message: msg}
}

func NewPaymentError(rail string, cause error) *ServiceError {
	return &ServiceError{Kind: KindPayment, Message: rail + " payment failed", Rail: rail, Cause: cause}
}

func NewAuthenticationError(msg string, cause error) *ServiceError {
	return &ServiceError{Kind: KindAuthentication, Message: msg, Cause: cause}
}

func NewDatabaseError(msg string, cause error) *ServiceError {
	return &ServiceError{Kind: KindDatabase, Message: msg, Cause: cause}
}

// WithCause attaches a sentinel so errors.Is keeps working through the wrapper.
func (e *ServiceError) WithCause(cause error) *ServiceError {
	e.Cause = cause
	return e
}

// KindOf returns the kind of the first ServiceError in err's chain.
func KindOf(err error) ErrorKind {
	var se *ServiceError
	if errors.As(err, &se) {
		return se.Kind
	}
	return KindUnknown
}

func IsValidation(err error) bool     { return KindOf(err) == KindValidation }
func IsNotFound(err error) bool       { return KindOf(err) == KindNotFound }
func IsConflict(err error) bool       { return KindOf(err) == KindConflict }
func IsPayment(err error) bool        { return KindOf(err) == KindPayment }
func IsAuthentication(err error) bool { return KindOf(err) == KindAuthentication }
func IsDatabase(err error) bool       { return KindOf(err) == KindDatabase }
