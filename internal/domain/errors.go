package domain

import "errors"

var (
	ErrNotFound            = errors.New("not found")
	ErrUnauthorized        = errors.New("unauthorized")
	ErrInsufficientBalance = errors.New("insufficient balance")
	ErrDuplicateOperation  = errors.New("duplicate operation")
	ErrInvalidState        = errors.New("invalid state transition")
	ErrEmailTaken          = errors.New("email or username already registered")
	ErrProviderFailure     = errors.New("provider failure")
)
