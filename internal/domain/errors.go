package domain

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrNotFound indicates the requested entity was not found.
	ErrNotFound = errors.New("not found")

	// ErrAbsent indicates a state-store read missed. Consumers must not
	// confuse a miss with an empty stored value.
	ErrAbsent = errors.New("absent")

	// ErrUnauthorized indicates an upstream rejected our credentials.
	ErrUnauthorized = errors.New("unauthorized")
)

// RestrictionError aborts a shipping-rate request when the destination
// country is outside the eligible set for one or more SKUs.
type RestrictionError struct {
	Country string
	SKUs    []string
}

func (e *RestrictionError) Error() string {
	return fmt.Sprintf("products %s cannot be shipped to %s", strings.Join(e.SKUs, ", "), e.Country)
}

// UpstreamError carries the HTTP status of a failed upstream call so the
// caller can surface it instead of coalescing everything to 500.
type UpstreamError struct {
	StatusCode int
	Message    string
}

func (e *UpstreamError) Error() string {
	return fmt.Sprintf("upstream status %d: %s", e.StatusCode, e.Message)
}

// StatusOf extracts an upstream HTTP status from err, defaulting to 500.
func StatusOf(err error) int {
	var ue *UpstreamError
	if errors.As(err, &ue) && ue.StatusCode != 0 {
		return ue.StatusCode
	}
	return 500
}
