package accounts

import "errors"

var (
	ErrInvalidCredentials = errors.New("invalid username or password")
	ErrAccountBlocked     = errors.New("account is blocked")
	ErrDuplicateUsername  = errors.New("username already exists")
	ErrNotFound           = errors.New("account not found")
	ErrProtectedAccount   = errors.New("admin account cannot be blocked")
	ErrInvalidInput       = errors.New("invalid input")
	ErrNotInitialized     = errors.New("account store not initialized")
)
