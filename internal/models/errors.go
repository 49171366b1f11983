package models

import "errors"

var (
	// ErrAccountNotFound is returned when an account id or email does not resolve.
	ErrAccountNotFound = errors.New("account not found")

	// ErrInvalidAmount is returned for zero or negative amounts.
	ErrInvalidAmount = errors.New("amount must be positive")

	// ErrInsufficientFunds is returned when a debit would overdraw the account.
	ErrInsufficientFunds = errors.New("insufficient funds")

	// ErrSameAccount is returned when sender and receiver are the same account.
	ErrSameAccount = errors.New("cannot transfer to the same account")

	// ErrEmailTaken is returned when registering with an email that already exists.
	ErrEmailTaken = errors.New("email already exists")
)
