package model

import "errors"

var (
	// ErrInvalidInput reports a bad command-line argument or configuration.
	ErrInvalidInput = errors.New("invalid input")

	// ErrMetadataUnavailable is returned by NativeRecord lookups that need
	// provider metadata the record was read without.
	ErrMetadataUnavailable = errors.New("provider metadata unavailable")

	// ErrUnmappedSeverity reports a level code with neither a display name
	// nor a fallback mapping.
	ErrUnmappedSeverity = errors.New("unmapped severity")

	// ErrUnformattableRecord reports a record whose description could not be formatted.
	ErrUnformattableRecord = errors.New("unformattable record")

	// ErrDeliveryFailed reports a batch whose transient failures exhausted the retry budget.
	ErrDeliveryFailed = errors.New("delivery failed")

	// ErrDeliveryRejected reports a batch the sink refused as malformed.
	ErrDeliveryRejected = errors.New("delivery rejected")
)
