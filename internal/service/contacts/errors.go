package contacts

import "errors"

// Sentinel errors for the contact registry. Callers match with errors.Is;
// wrapped messages carry field-level detail.
var (
	ErrNotFound         = errors.New("not found")
	ErrValidation       = errors.New("validation failed")
	ErrDuplicateContact = errors.New("contact already in list")
)
