// Package domain provides the canonical data model, event shapes, and error
// types shared by the relay core.
package domain

import (
	"errors"
	"fmt"
	"net/http"
)

// ErrorType categorizes a relay failure.
type ErrorType string

const (
	// ErrorTypeNoProvider means no usable provider/model configuration was
	// found; surfaced before any Start event.
	ErrorTypeNoProvider ErrorType = "no_provider_configured"

	// ErrorTypeContextUnavailable means prior conversation history could not
	// be read; fatal for the generation attempt.
	ErrorTypeContextUnavailable ErrorType = "context_unavailable"

	// ErrorTypeProviderRequest means a network or HTTP-level failure calling
	// the provider.
	ErrorTypeProviderRequest ErrorType = "provider_request_failed"

	// ErrorTypeProviderDecode means the provider's stream could not be
	// decoded at all. Individual malformed frames are skipped; this type is
	// reserved for a complete inability to decode any content.
	ErrorTypeProviderDecode ErrorType = "provider_decode_failed"

	// ErrorTypeUnsupportedCapability means a requested capability is not
	// supported by the selected model. Never fatal; it degrades to an
	// informational in-band chunk.
	ErrorTypeUnsupportedCapability ErrorType = "unsupported_capability"
)

// RelayError is the canonical error carried across the relay core.
type RelayError struct {
	Type    ErrorType
	Message string
	Err     error
}

func (e *RelayError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Type, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Type, e.Message)
}

func (e *RelayError) Unwrap() error {
	return e.Err
}

// Is matches two RelayErrors by type so callers can use errors.Is against
// the convenience sentinels below.
func (e *RelayError) Is(target error) bool {
	var other *RelayError
	if !errors.As(target, &other) {
		return false
	}
	return e.Type == other.Type
}

// HTTPStatusCode maps the error type to a response status for direct
// (pre-Start) failures.
func (e *RelayError) HTTPStatusCode() int {
	switch e.Type {
	case ErrorTypeNoProvider:
		return http.StatusPreconditionFailed
	case ErrorTypeContextUnavailable:
		return http.StatusNotFound
	case ErrorTypeProviderRequest, ErrorTypeProviderDecode:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// ErrNoProvider creates a no-provider-configured error. The message is
// user-visible.
func ErrNoProvider() *RelayError {
	return &RelayError{
		Type:    ErrorTypeNoProvider,
		Message: "No active AI provider configured",
	}
}

// ErrContextUnavailable wraps a history read failure.
func ErrContextUnavailable(err error) *RelayError {
	return &RelayError{
		Type:    ErrorTypeContextUnavailable,
		Message: "conversation history unavailable",
		Err:     err,
	}
}

// ErrProviderRequest wraps a provider call failure.
func ErrProviderRequest(err error) *RelayError {
	return &RelayError{
		Type:    ErrorTypeProviderRequest,
		Message: "provider request failed",
		Err:     err,
	}
}

// ErrProviderDecode wraps a total stream decode failure.
func ErrProviderDecode(err error) *RelayError {
	return &RelayError{
		Type:    ErrorTypeProviderDecode,
		Message: "provider stream could not be decoded",
		Err:     err,
	}
}
