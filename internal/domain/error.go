package domain

import "errors"

var (
	// Common domain errors
	ErrNotFound           = errors.New("entity not found")
	ErrAlreadyExists      = errors.New("entity already exists")
	ErrInvalidArgument    = errors.New("invalid argument")
	ErrOperationFailed    = errors.New("operation failed")
	ErrReadDatabaseRow    = errors.New("failed to read database row")
	ErrInvalidExecContext = errors.New("invalid execution context")

	// Catalog
	ErrPackageNotFound     = errors.New("package not found")
	ErrPackageInactive     = errors.New("package is not active")
	ErrInvalidBillingCycle = errors.New("invalid billing cycle")
	ErrCycleNotOffered     = errors.New("billing cycle not offered for this package")

	// Checkout sessions
	ErrSessionNotFound = errors.New("checkout session not found")
	ErrSessionClosed   = errors.New("checkout session is no longer pending")
	ErrSessionExpired  = errors.New("checkout session has expired")

	// Purchases
	ErrPurchaseNotFound     = errors.New("purchase not found")
	ErrInvalidTransition    = errors.New("invalid purchase status transition")
	ErrInvalidPaymentMethod = errors.New("invalid payment method")

	// Request plumbing
	ErrIdempotencyConflict = errors.New("idempotency key reused with a different request")
	ErrRequestInProgress   = errors.New("a request with this idempotency key is in progress")
	ErrRateLimited         = errors.New("too many requests")
	ErrProviderUnavailable = errors.New("payment provider unavailable")
	ErrCheckoutPaid        = errors.New("provider checkout already paid")
)
