package printer

import (
	"errors"
	"fmt"
)

// Domain errors for the printer package.
//
//	if errors.Is(err, printer.ErrDeviceUnreachable) {
//	    // address resolution or transport failed after the allowed retry
//	}
var (
	// ErrDeviceUnreachable is returned when the printer cannot be located or
	// a request fails at the transport level after the allowed retry.
	ErrDeviceUnreachable = errors.New("printer: device unreachable")

	// ErrDeviceRejected matches every *RejectedError.
	ErrDeviceRejected = errors.New("printer: request rejected")

	// ErrNotFound is returned by a subnet scan with no matching host.
	ErrNotFound = errors.New("printer: no host with matching hardware address")

	// ErrStaticAddress is returned by Refresh when a static address is configured.
	ErrStaticAddress = errors.New("printer: static address cannot be refreshed")

	// ErrNoAddress is returned when no address has been resolved yet.
	ErrNoAddress = errors.New("printer: address not resolved")

	// ErrInvalidConfig is returned by constructors for malformed network settings.
	ErrInvalidConfig = errors.New("printer: invalid configuration")

	// ErrNoImage is returned when a media payload holds no complete image.
	ErrNoImage = errors.New("printer: no image in payload")
)

// RejectedError carries a non-success HTTP status from a well-formed request.
// Rejections are never retried; callers decide what the status means.
type RejectedError struct {
	Op         string
	StatusCode int
	Body       string
}

func (e *RejectedError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("printer: %s rejected with status %d", e.Op, e.StatusCode)
	}
	return fmt.Sprintf("printer: %s rejected with status %d: %s", e.Op, e.StatusCode, e.Body)
}

// Is reports whether target is ErrDeviceRejected.
func (e *RejectedError) Is(target error) bool {
	return target == ErrDeviceRejected
}

// StatusCode extracts the HTTP status from a rejection.
func StatusCode(err error) (int, bool) {
	var rej *RejectedError
	if errors.As(err, &rej) {
		return rej.StatusCode, true
	}
	return 0, false
}
