package shared

import "fmt"

var (
	ErrNotImplemented = fmt.Errorf("not implemented")

	// Configuration errors
	ErrMissingConfig  = fmt.Errorf("missing required configuration")
	ErrInvalidConfig  = fmt.Errorf("invalid configuration")
	ErrUnknownBackend = fmt.Errorf("unknown storage backend")

	// Storage errors
	ErrStorageUnavailable = fmt.Errorf("storage unavailable")
	ErrCorruptRecord      = fmt.Errorf("stored record is corrupt")
	ErrUnsupported        = fmt.Errorf("operation not supported by backend")

	// Account errors
	ErrUserExists         = fmt.Errorf("user already exists")
	ErrUserNotFound       = fmt.Errorf("user not found")
	ErrInvalidCredentials = fmt.Errorf("invalid credentials")
	ErrRegistrationClosed = fmt.Errorf("registration is disabled")

	// Authentication errors
	ErrNotAuthenticated = fmt.Errorf("not authenticated")
	ErrForbidden        = fmt.Errorf("forbidden")
	ErrTokenExpired     = fmt.Errorf("auth token expired")
	ErrRateLimited      = fmt.Errorf("too many requests")

	// Input validation errors
	ErrInvalidInput    = fmt.Errorf("invalid input")
	ErrMissingArgument = fmt.Errorf("missing required argument")
	ErrInvalidArgument = fmt.Errorf("invalid argument")
)
