package model

import (
	"errors"
	"fmt"
	"strings"
)

// ErrorCode classifies a [ValidationError].
type ErrorCode string

const (
	// CodeEmptyField means a required text field is empty or blank.
	CodeEmptyField ErrorCode = "empty_field"
	// CodeNotFound means the addressed record does not exist for the owner.
	CodeNotFound ErrorCode = "not_found"
)

// ValidationError is the typed failure returned by local-store mutations.
// Nothing is committed when one is returned.
type ValidationError struct {
	Code  ErrorCode
	Field string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("validation failed: %s", e.Code)
	}
	return fmt.Sprintf("validation failed: %s: %s", e.Field, e.Code)
}

// AsValidation unwraps err into a *ValidationError if it carries one.
func AsValidation(err error) (*ValidationError, bool) {
	var ve *ValidationError
	if errors.As(err, &ve) {
		return ve, true
	}
	return nil, false
}

// requireText returns a CodeEmptyField error naming field when value is
// empty or whitespace only.
func requireText(field, value string) error {
	if strings.TrimSpace(value) == "" {
		return &ValidationError{Code: CodeEmptyField, Field: field}
	}
	return nil
}
