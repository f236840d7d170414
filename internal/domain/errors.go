package domain

import "errors"

var (
	ErrNotFound            = errors.New("not found")
	ErrInvalidState        = errors.New("invalid state")
	ErrValidation          = errors.New("validation failed")
	ErrUnverifiedSignature = errors.New("unverified gateway signature")
	ErrConcurrencyConflict = errors.New("concurrent update in progress, retry later")
	ErrForbidden           = errors.New("forbidden")
)
