package models

import (
	"errors"
	"fmt"
)

type ErrorCode string

const (
	ErrCodeValidation     ErrorCode = "VALIDATION_ERROR"
	ErrCodeNotFound       ErrorCode = "NOT_FOUND"
	ErrCodeConflict       ErrorCode = "CONFLICT"
	ErrCodeAuthentication ErrorCode = "AUTHENTICATION_ERROR"
	ErrCodeForbidden      ErrorCode = "FORBIDDEN"
	ErrCodeGateway        ErrorCode = "GATEWAY_ERROR"
	ErrCodeGatewayTimeout ErrorCode = "GATEWAY_TIMEOUT"
	ErrCodeStore          ErrorCode = "STORE_ERROR"
	ErrCodeStoreTimeout   ErrorCode = "STORE_TIMEOUT"
)

// AppError is the error type returned by the service layer. Message is safe
// to show to callers, Err carries the internal cause for logs.
type AppError struct {
	Code    ErrorCode
	Message string
	Err     error
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

func (e *AppError) Unwrap() error {
	return e.Err
}

func NewValidationError(message string) *AppError {
	return &AppError{Code: ErrCodeValidation, Message: message}
}

func NewNotFoundError(resource string) *AppError {
	return &AppError{Code: ErrCodeNotFound, Message: resource + " not found"}
}

func NewConflictError(message string) *AppError {
	return &AppError{Code: ErrCodeConflict, Message: message}
}

func NewAuthenticationError(message string, err error) *AppError {
	return &AppError{Code: ErrCodeAuthentication, Message: message, Err: err}
}

func NewForbiddenError(message string) *AppError {
	return &AppError{Code: ErrCodeForbidden, Message: message}
}

func NewGatewayError(message string, err error) *AppError {
	return &AppError{Code: ErrCodeGateway, Message: message, Err: err}
}

func NewGatewayTimeoutError(err error) *AppError {
	return &AppError{Code: ErrCodeGatewayTimeout, Message: "payment provider did not respond in time", Err: err}
}

func NewStoreError(err error) *AppError {
	return &AppError{Code: ErrCodeStore, Message: "internal server error", Err: err}
}

func NewStoreTimeoutError(err error) *AppError {
	return &AppError{Code: ErrCodeStoreTimeout, Message: "storage did not respond in time", Err: err}
}

// CodeOf returns the AppError code carried by err, or ErrCodeStore for any
// error that is not an AppError.
func CodeOf(err error) ErrorCode {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Code
	}
	return ErrCodeStore
}
