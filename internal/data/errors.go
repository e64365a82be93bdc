package data

import "errors"

// Shared sentinel errors for data-layer repositories.
var (
	ErrDomainRequired   = errors.New("domain is required")
	ErrWorkerIDRequired = errors.New("worker_id is required")
	ErrHandleRequired   = errors.New("claim handle is required")
	ErrPayloadRequired  = errors.New("payload is required")

	// ErrSchemaMissing is returned when a query hits a table that migrations have not created.
	ErrSchemaMissing = errors.New("database schema missing; run migrations")
)
