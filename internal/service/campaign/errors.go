package campaign

import "errors"

// Sentinel errors for the campaign service layer.
var (
	ErrNotFound       = errors.New("campaign not found")
	ErrValidation     = errors.New("validation failed")
	ErrInvalidState   = errors.New("campaign is not in a sendable state")
	ErrSendInProgress = errors.New("campaign send already in progress")
)
