package engine

import (
	"errors"
	"fmt"
)

// Domain-level error values returned by the ledger engine.
var (
	ErrAlreadyGranted        = errors.New("already granted")
	ErrInsufficientBalance   = errors.New("insufficient balance")
	ErrAccountNotFound       = errors.New("account not found")
	ErrAccountExists         = errors.New("account already exists")
	ErrPostNotFound          = errors.New("post not found")
	ErrReactionNotOwned      = errors.New("reaction not owned")
	ErrReactionAlreadyOwned  = errors.New("reaction already owned")
	ErrBelowMinimumThreshold = errors.New("below minimum cash-out threshold")
	ErrAlreadyFollowing      = errors.New("already following")
	ErrSelfFollow            = errors.New("cannot follow self")
	ErrTxConflict            = errors.New("transaction conflict")
	ErrOperationFailed       = errors.New("operation failed")
	ErrInvalidUserID         = errors.New("invalid user id")
	ErrInvalidPostID         = errors.New("invalid post id")
	ErrInvalidReactionKind   = errors.New("invalid reaction kind")
	ErrInvalidAmount         = errors.New("invalid amount")
	ErrInvalidMetadataJSON   = errors.New("invalid metadata json")
	ErrInvalidContent        = errors.New("invalid post content")
	ErrInvalidServiceConfig  = errors.New("invalid service config")
	ErrInvalidEconomy        = errors.New("invalid economy config")
)

// OperationError wraps a failure with a stable operation code.
type OperationError struct {
	operation string
	subject   string
	code      string
	err       error
}

// Error returns the formatted error message.
func (operationError OperationError) Error() string {
	return fmt.Sprintf("%s.%s.%s: %v", operationError.operation, operationError.subject, operationError.code, operationError.err)
}

// Unwrap returns the underlying error.
func (operationError OperationError) Unwrap() error {
	return operationError.err
}

// Operation returns the operation segment.
func (operationError OperationError) Operation() string {
	return operationError.operation
}

// Subject returns the subject segment.
func (operationError OperationError) Subject() string {
	return operationError.subject
}

// Code returns the stable error code segment.
func (operationError OperationError) Code() string {
	return operationError.code
}

// WrapError wraps an error with operation, subject, and code metadata.
func WrapError(operation string, subject string, code string, err error) error {
	if err == nil {
		return nil
	}
	return OperationError{
		operation: operation,
		subject:   subject,
		code:      code,
		err:       err,
	}
}

// isBusinessError reports whether the error is a business-rule failure that
// must never be retried.
func isBusinessError(err error) bool {
	for _, sentinel := range []error{
		ErrAlreadyGranted,
		ErrInsufficientBalance,
		ErrAccountNotFound,
		ErrAccountExists,
		ErrPostNotFound,
		ErrReactionNotOwned,
		ErrReactionAlreadyOwned,
		ErrBelowMinimumThreshold,
		ErrAlreadyFollowing,
		ErrSelfFollow,
	} {
		if errors.Is(err, sentinel) {
			return true
		}
	}
	return false
}
