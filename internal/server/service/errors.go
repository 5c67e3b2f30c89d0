package service

import "errors"

// Sentinel errors for the service layer. All of them are user-facing and
// leave ledgers and sessions consistent, except ErrPartialDelete which marks
// durable inconsistency awaiting reconciliation.
var (
	ErrNotRegistered     = errors.New("account not registered")
	ErrAlreadyRegistered = errors.New("account already registered")
	ErrAccountLimit      = errors.New("account limit reached")
	ErrQuotaExceeded     = errors.New("storage quota exceeded")
	ErrUploadTooLarge    = errors.New("photo exceeds maximum allowed size")
	ErrNoPhotos          = errors.New("no photos stored")
	ErrUploadInProgress  = errors.New("account deletion refused while an upload session is active")
	ErrPartialDelete     = errors.New("account deletion completed only partially")
)
