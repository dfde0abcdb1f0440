// Package simerr defines the error kinds surfaced by the simulation kernel.
//
// Kinds are sentinel values wrapped with contextual detail, matched with errors.Is,
// following the plain sentinel-error style used throughout the broker's config and
// match packages rather than a hierarchy of custom error types.
package simerr

import (
	"errors"
	"fmt"
)

// Sentinel kinds. Callers compare with errors.Is(err, simerr.ErrConfig) etc.
var (
	// ErrConfig marks invalid or missing configuration.
	ErrConfig = errors.New("config error")
	// ErrImplementation marks a non-recoverable internal invariant violation.
	ErrImplementation = errors.New("implementation error")
	// ErrMath marks a division by zero or NaN in a contract-pure operation.
	ErrMath = errors.New("math error")
	// ErrMessage marks an out-of-order publication or reference to an unknown topic.
	ErrMessage = errors.New("message error")
	// ErrOutOfOrder marks a publication whose timestamp regressed for its (publisher, key) pair.
	ErrOutOfOrder = errors.New("message published out of order")
	// ErrServiceUnavailable marks a service call with no subscribed responder.
	ErrServiceUnavailable = errors.New("service unavailable")
	// ErrServiceClosed marks a service call whose peer moved to Zombie mid-flight.
	ErrServiceClosed = errors.New("service closed")
	// ErrServiceTimeout marks a service call whose deadline elapsed with retries exhausted.
	ErrServiceTimeout = errors.New("service timeout")
	// ErrExternalAPI marks a missing plugin or a contract violation by one.
	ErrExternalAPI = errors.New("external api error")
	// ErrScript marks a script-language strategy failure, surfaced as opaque text.
	ErrScript = errors.New("script error")
)

// Wrap annotates the sentinel kind with a formatted message, preserving errors.Is matching.
func Wrap(kind error, format string, args ...any) error {
	return fmt.Errorf("%s: %w", fmt.Sprintf(format, args...), kind)
}

// Config builds a ConfigError-kind error.
func Config(format string, args ...any) error { return Wrap(ErrConfig, format, args...) }

// Implementation builds an ImplementationError-kind error.
func Implementation(format string, args ...any) error {
	return Wrap(ErrImplementation, format, args...)
}

// Math builds a MathError-kind error.
func Math(format string, args ...any) error { return Wrap(ErrMath, format, args...) }

// Message builds a MessageError-kind error.
func Message(format string, args ...any) error { return Wrap(ErrMessage, format, args...) }

// OutOfOrder builds the MessageError::OutOfOrder variant.
func OutOfOrder(key string, previous, attempted float32) error {
	return fmt.Errorf("publish to %q at t=%v regresses before last published t=%v: %w",
		key, attempted, previous, ErrOutOfOrder)
}

// ServiceUnavailable builds the ServiceError::Unavailable variant.
func ServiceUnavailable(peer, method string) error {
	return fmt.Errorf("no responder subscribed for %s/%s: %w", peer, method, ErrServiceUnavailable)
}

// ServiceClosed builds the ServiceError::Closed variant.
func ServiceClosed(peer string) error {
	return fmt.Errorf("peer %q is no longer running: %w", peer, ErrServiceClosed)
}

// ServiceTimeout builds the ServiceError::Timeout variant.
func ServiceTimeout(peer, method string) error {
	return fmt.Errorf("call to %s/%s exceeded its deadline: %w", peer, method, ErrServiceTimeout)
}

// ExternalAPI builds an ExternalAPIError-kind error.
func ExternalAPI(format string, args ...any) error { return Wrap(ErrExternalAPI, format, args...) }

// Script builds a ScriptError-kind error carrying opaque script failure text.
func Script(text string) error { return fmt.Errorf("%s: %w", text, ErrScript) }
