package service

import (
	"errors"

	"github.com/worckguarddev/ton-trip-bonanza/internal/validation"
)

var (
	ErrNotFound          = errors.New("not found")
	ErrCardNotFound      = errors.New("card not found")
	ErrInsufficientFunds = errors.New("insufficient funds")
	ErrInvalidInput      = validation.ErrInvalid
	ErrAlreadyReferred   = errors.New("user already has a referrer")
	ErrSelfReferral      = errors.New("self referral is not allowed")
	ErrNotOwner          = errors.New("card belongs to another user")
	ErrInvalidState      = errors.New("operation not allowed in current state")
)

func invalid(field, message string) error {
	return &validation.ValidationError{Field: field, Message: message}
}
