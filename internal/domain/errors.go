package domain

import "errors"

// Error taxonomy shared by the registry, ingestion pipeline and handlers.
// Handlers map these to HTTP statuses; the ingestion pipeline maps them to
// non-fatal report outcomes.
var (
	ErrValidation    = errors.New("validation failed")
	ErrNotRegistered = errors.New("user not registered")
	ErrNotFound      = errors.New("not found")
	ErrStaleReport   = errors.New("stale report")
	ErrRateLimited   = errors.New("rate limited")
	ErrInternal      = errors.New("internal error")
)
