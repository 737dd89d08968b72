// Package foundation holds small shared building blocks used across the
// site builder.
package foundation

import (
	"fmt"
	"strings"

	"git.home.luguber.info/inful/sitebuilder/internal/foundation/errors"
)

// ValidationResult contains the result of a validation operation.
type ValidationResult struct {
	Valid  bool
	Errors []FieldError
}

// FieldError represents a single validation failure.
type FieldError struct {
	Field   string `json:"field"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (fe FieldError) Error() string {
	if fe.Field != "" {
		return fmt.Sprintf("%s: %s", fe.Field, fe.Message)
	}
	return fe.Message
}

// Valid creates a successful validation result.
func Valid() ValidationResult {
	return ValidationResult{Valid: true}
}

// Invalid creates a failed validation result with errors.
func Invalid(errs ...FieldError) ValidationResult {
	return ValidationResult{Errors: errs}
}

// NewFieldError creates a FieldError.
func NewFieldError(field, code, message string) FieldError {
	return FieldError{Field: field, Code: code, Message: message}
}

// Combine merges multiple validation results.
func (vr ValidationResult) Combine(other ValidationResult) ValidationResult {
	if vr.Valid && other.Valid {
		return Valid()
	}
	all := make([]FieldError, 0, len(vr.Errors)+len(other.Errors))
	all = append(all, vr.Errors...)
	all = append(all, other.Errors...)
	return Invalid(all...)
}

// ToError converts an invalid result into a fatal config error.
func (vr ValidationResult) ToError() error {
	if vr.Valid {
		return nil
	}
	messages := make([]string, 0, len(vr.Errors))
	for _, err := range vr.Errors {
		messages = append(messages, err.Error())
	}
	return errors.ConfigError("invalid configuration: " + strings.Join(messages, "; ")).
		WithContext("fields", len(vr.Errors)).
		Build()
}

// Validator represents a validation function.
type Validator[T any] func(T) ValidationResult

// ValidatorChain runs several validators and combines their results.
type ValidatorChain[T any] struct {
	validators []Validator[T]
}

// NewValidatorChain creates a new validator chain.
func NewValidatorChain[T any](validators ...Validator[T]) *ValidatorChain[T] {
	return &ValidatorChain[T]{validators: validators}
}

// Add appends a validator to the chain.
func (vc *ValidatorChain[T]) Add(validator Validator[T]) *ValidatorChain[T] {
	vc.validators = append(vc.validators, validator)
	return vc
}

// Validate runs all validators in the chain.
func (vc *ValidatorChain[T]) Validate(value T) ValidationResult {
	result := Valid()
	for _, v := range vc.validators {
		result = result.Combine(v(value))
	}
	return result
}

// Required fails when value is empty after trimming.
func Required(field string) Validator[string] {
	return func(value string) ValidationResult {
		if strings.TrimSpace(value) == "" {
			return Invalid(NewFieldError(field, "required", "must not be empty"))
		}
		return Valid()
	}
}

// IntRange fails when value lies outside [minValue, maxValue].
func IntRange(field string, minValue, maxValue int) Validator[int] {
	return func(value int) ValidationResult {
		if value < minValue || value > maxValue {
			return Invalid(NewFieldError(field, "range",
				fmt.Sprintf("must be between %d and %d, got %d", minValue, maxValue, value)))
		}
		return Valid()
	}
}
