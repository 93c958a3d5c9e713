// Package apperr defines the categorized errors surfaced to API and CLI callers.
package apperr

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// Code is the machine-readable error category.
type Code string

const (
	CodeCredentialMissing  Code = "credential_missing"
	CodeUpstreamWeather    Code = "upstream_weather_unavailable"
	CodeUpstreamAdvice     Code = "upstream_advice_unavailable"
	CodeNoUpcomingForecast Code = "no_upcoming_forecast"
	CodeStoreEmpty         Code = "store_empty"
	CodeStoreMissing       Code = "store_missing"
	CodeValidation         Code = "validation_invalid_request"
	CodeInternal           Code = "internal_unexpected"
)

// HTTPStatus maps a Code to its HTTP status. Unknown codes are 500.
func (c Code) HTTPStatus() int {
	s := string(c)
	switch {
	case c == CodeCredentialMissing:
		return http.StatusInternalServerError
	case c == CodeNoUpcomingForecast, strings.HasPrefix(s, "store_"):
		return http.StatusNotFound
	case strings.HasPrefix(s, "validation_"):
		return http.StatusBadRequest
	case strings.HasPrefix(s, "upstream_"):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// Error is an application error with a category, a message and a hint for
// the operator.
type Error struct {
	Code    Code
	Message string
	Help    string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// HTTPStatus returns the status for e's code.
func (e *Error) HTTPStatus() int {
	return e.Code.HTTPStatus()
}

func New(code Code, message, help string, err error) *Error {
	return &Error{Code: code, Message: message, Help: help, Err: err}
}

// As extracts an *Error from err's chain. Anything else becomes an
// internal_unexpected error wrapping err.
func As(err error) *Error {
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr
	}
	return &Error{
		Code:    CodeInternal,
		Message: "Erreur inattendue",
		Help:    "Contactez l'administrateur si le problème persiste",
		Err:     err,
	}
}

// Is reports whether err carries the given code.
func Is(err error, code Code) bool {
	var appErr *Error
	return errors.As(err, &appErr) && appErr.Code == code
}
