package suppression

import "errors"

// Sentinel errors for the suppression service layer.
var (
	ErrNotFound   = errors.New("suppression entry not found")
	ErrBadAddress = errors.New("a valid email address is required")
)
