package cloud

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrConfiguration marks errors caused by bad input that no retry can fix.
	ErrConfiguration = errors.New("configuration error")
	// ErrNotSupported marks operations a backend or strategy does not offer.
	ErrNotSupported = errors.New("capability not supported")
	// ErrTransient marks provider failures worth retrying.
	ErrTransient = errors.New("transient provider error")
)

// UnsupportedProviderError is returned by the factory for unknown provider ids.
type UnsupportedProviderError struct {
	Provider string
}

func (e *UnsupportedProviderError) Error() string {
	return fmt.Sprintf("unsupported cloud provider: %s", e.Provider)
}

func (e *UnsupportedProviderError) Unwrap() error { return ErrConfiguration }

// MissingCredentialError reports a required credential key that was not supplied.
type MissingCredentialError struct {
	Provider string
	Key      string
}

func (e *MissingCredentialError) Error() string {
	return fmt.Sprintf("%s credentials missing required field %q", e.Provider, e.Key)
}

func (e *MissingCredentialError) Unwrap() error { return ErrConfiguration }

// CapabilityNotSupportedError reports an operation absent for a provider.
type CapabilityNotSupportedError struct {
	Provider   string
	Capability Capability
	Reason     string
}

func (e *CapabilityNotSupportedError) Error() string {
	msg := fmt.Sprintf("%s: %s not supported", e.Provider, e.Capability)
	if e.Reason != "" {
		msg += ": " + e.Reason
	}
	return msg
}

func (e *CapabilityNotSupportedError) Unwrap() error { return ErrNotSupported }

// NotSupported builds a CapabilityNotSupportedError.
func NotSupported(provider string, c Capability) error {
	return &CapabilityNotSupportedError{Provider: provider, Capability: c}
}

// TransientError wraps a provider error that is eligible for retry.
type TransientError struct {
	Provider string
	Op       string
	Err      error
}

func (e *TransientError) Error() string {
	return fmt.Sprintf("%s %s: transient failure: %v", e.Provider, e.Op, e.Err)
}

func (e *TransientError) Unwrap() []error { return []error{ErrTransient, e.Err} }

// IsTransient reports whether err should be retried.
func IsTransient(err error) bool {
	return errors.Is(err, ErrTransient)
}

// IsNotSupported reports whether err is a capability-not-supported result.
func IsNotSupported(err error) bool {
	return errors.Is(err, ErrNotSupported)
}

// IsConfiguration reports whether err is a configuration error.
func IsConfiguration(err error) bool {
	return errors.Is(err, ErrConfiguration)
}

// ItemError is one resource that could not be enumerated during discovery.
type ItemError struct {
	Kind string
	ID   string
	Err  error
}

// PartialDiscoveryError collects per-item failures that were skipped.
type PartialDiscoveryError struct {
	Provider string
	Items    []ItemError
}

func (e *PartialDiscoveryError) Error() string {
	parts := make([]string, 0, len(e.Items))
	for _, it := range e.Items {
		parts = append(parts, fmt.Sprintf("%s %s: %v", it.Kind, it.ID, it.Err))
	}
	return fmt.Sprintf("%s: %d resources skipped during discovery: %s", e.Provider, len(e.Items), strings.Join(parts, "; "))
}

// Add records a skipped item.
func (e *PartialDiscoveryError) Add(kind, id string, err error) {
	e.Items = append(e.Items, ItemError{Kind: kind, ID: id, Err: err})
}
