package errorj

import (
	"context"
	"errors"

	"github.com/joomcode/errorx"
)

var (
	// warehouseErrors is an error namespace for all errors which are returned by the core services
	warehouseErrors = errorx.NewNamespace("warehouse")

	ValidationError = warehouseErrors.NewType("validation")
	NotFoundError   = warehouseErrors.NewType("not_found", errorx.NotFound())
	ConflictError   = warehouseErrors.NewType("conflict")
	StorageError    = warehouseErrors.NewType("storage")

	ExecutionError          = warehouseErrors.NewType("execution")
	TimeoutError            = ExecutionError.NewSubtype("timeout", errorx.Timeout())
	ConnectorError          = ExecutionError.NewSubtype("connector")
	TransientConnectorError = ConnectorError.NewSubtype("transient", errorx.Temporary())

	TenantID    = errorx.RegisterPrintableProperty("tenant_id")
	EntityID    = errorx.RegisterPrintableProperty("entity_id")
	ExecutionID = errorx.RegisterPrintableProperty("execution_id")
)

func Decorate(err error, msg string, args ...interface{}) *errorx.Error {
	return errorx.Decorate(err, msg, args...)
}

//Group multiple errors where first one is a main error
func Group(errs ...error) error {
	if len(errs) == 0 {
		return nil
	}

	if len(errs) == 1 {
		return errs[0]
	}

	mainErr := errs[0]
	suppressed := errs[1:]

	casted := errorx.Cast(mainErr)
	if casted == nil {
		casted = errorx.Decorate(mainErr, "")
	}
	return casted.WithUnderlyingErrors(suppressed...)
}

func IsValidation(err error) bool {
	return errorx.IsOfType(err, ValidationError)
}

func IsNotFound(err error) bool {
	return errorx.IsOfType(err, NotFoundError)
}

func IsConflict(err error) bool {
	return errorx.IsOfType(err, ConflictError)
}

//IsRetryable returns true for transient errors. Validation and config errors are never retried.
func IsRetryable(err error) bool {
	if err == nil || IsValidation(err) {
		return false
	}
	return errorx.IsTemporary(err)
}

//IsTimeout returns true if err is a job deadline error
func IsTimeout(err error) bool {
	return errorx.IsTimeout(err) || errors.Is(err, context.DeadlineExceeded)
}

//Property returns the printable property value of errorx error
func Property(err error, key errorx.Property) (interface{}, bool) {
	casted := errorx.Cast(err)
	if casted == nil {
		return nil, false
	}
	return casted.Property(key)
}

//IsOfExecution returns true for all errors produced while a job runs
func IsOfExecution(err error) bool {
	return errorx.IsOfType(err, ExecutionError)
}

//Message returns error text without errorx type names and properties. Causes are joined with ': '
func Message(err error) string {
	casted := errorx.Cast(err)
	if casted == nil {
		return err.Error()
	}

	message := casted.Message()
	if cause := casted.Cause(); cause != nil {
		causeMessage := Message(cause)
		if message == "" {
			return causeMessage
		}
		return message + ": " + causeMessage
	}
	return message
}
