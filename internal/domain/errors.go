package domain

import "errors"

// Error taxonomy for basket operations. Callers match with errors.Is.
var (
	// ErrInvalidAccount is returned by structural operations given a nil or
	// unknown account. State is left unchanged.
	ErrInvalidAccount = errors.New("invalid account")

	// ErrDuplicateMember is returned by Add when the account is already a
	// member. There is no implicit overwrite; use SetWeight instead.
	ErrDuplicateMember = errors.New("account is already a basket member")

	// ErrSourceUnavailable is returned when the position connector is
	// unreachable or returns an error. Queries are all-or-nothing.
	ErrSourceUnavailable = errors.New("position source unavailable")

	// ErrConversionFailed is returned when the currency-conversion capability
	// cannot produce a rate. A recomputation pass hitting it is aborted and
	// the previous consistent derived values stay published.
	ErrConversionFailed = errors.New("currency conversion failed")
)
