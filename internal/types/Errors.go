package types

import "errors"

// Error definitions for zero-tolerance error handling.
// Every component returns one of these (possibly wrapped) so callers can
// branch with errors.Is regardless of which layer rejected the call.
var (
	ErrUnauthorized        = errors.New("unauthorized")
	ErrAlreadyRegistered   = errors.New("already registered")
	ErrPathNotFound        = errors.New("path not found")
	ErrInvalidPathIndex    = errors.New("invalid path index")
	ErrUnlistedRouter      = errors.New("router is not listed")
	ErrExceedTotalDeposit  = errors.New("exceed total deposit")
	ErrSlippageExceeded    = errors.New("slippage exceeded")
	ErrInvalidArgument     = errors.New("invalid argument")
	ErrReentrantCall       = errors.New("reentrant call")
	ErrInsufficientBalance = errors.New("insufficient balance")
)
