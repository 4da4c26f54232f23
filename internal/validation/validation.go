package validation

import (
	"errors"
	"fmt"
	"strings"
	"unicode"

	"github.com/go-playground/validator/v10"
)

// ErrInvalid is wrapped by every ValidationError.
var ErrInvalid = errors.New("invalid input")

const (
	MinWalletAddressLen = 32
	MaxWalletAddressLen = 128
)

type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation error on field '%s': %s", e.Field, e.Message)
}

func (e *ValidationError) Unwrap() error {
	return ErrInvalid
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Struct runs the tag rules on v and returns the first failure as a
// ValidationError.
func Struct(v interface{}) error {
	err := validate.Struct(v)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) && len(verrs) > 0 {
		msgs := FormatValidationError(verrs)
		return &ValidationError{Field: verrs[0].Field(), Message: strings.Join(msgs, "; ")}
	}
	return &ValidationError{Field: "body", Message: err.Error()}
}

func FormatValidationError(err error) []string {
	var errs []string

	var validationErrors validator.ValidationErrors
	if errors.As(err, &validationErrors) {
		for _, e := range validationErrors {
			field := e.Field()
			switch e.Tag() {
			case "required":
				errs = append(errs, fmt.Sprintf("%s is required", field))
			case "min":
				errs = append(errs, fmt.Sprintf("%s must be at least %s", field, e.Param()))
			case "max":
				errs = append(errs, fmt.Sprintf("%s must be at most %s", field, e.Param()))
			case "oneof":
				errs = append(errs, fmt.Sprintf("%s must be one of [%s]", field, e.Param()))
			case "url":
				errs = append(errs, fmt.Sprintf("%s must be a valid URL", field))
			default:
				errs = append(errs, fmt.Sprintf("%s is invalid (%s)", field, e.Tag()))
			}
		}
	}
	return errs
}

func SanitizeString(s string) string {
	s = strings.Map(func(r rune) rune {
		if unicode.IsControl(r) && r != '\n' && r != '\r' && r != '\t' {
			return -1
		}
		return r
	}, s)

	return strings.TrimSpace(s)
}

// WalletAddress trims the address and applies the length and charset check.
// Chain-specific checksums are not verified.
func WalletAddress(address string) (string, error) {
	address = strings.TrimSpace(address)
	if address == "" {
		return "", &ValidationError{Field: "address", Message: "is required"}
	}
	if strings.IndexFunc(address, unicode.IsSpace) >= 0 {
		return "", &ValidationError{Field: "address", Message: "must not contain whitespace"}
	}
	if n := len(address); n < MinWalletAddressLen || n > MaxWalletAddressLen {
		return "", &ValidationError{
			Field:   "address",
			Message: fmt.Sprintf("must be between %d and %d characters", MinWalletAddressLen, MaxWalletAddressLen),
		}
	}
	return address, nil
}
