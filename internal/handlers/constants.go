package handlers

const (
	RequestIDHeader = "X-Request-ID"

	// Ingest and import bodies can be large
	maxBodyBytes = 32 << 20

	ErrInvalidJSON         = "Invalid JSON body"
	ErrValidation          = "Validation failed"
	ErrUnauthorized        = "Unauthorized"
	ErrForbidden           = "Forbidden"
	ErrTooManyRequests     = "Too many requests"
	ErrInternalServerError = "Internal server error"
)
