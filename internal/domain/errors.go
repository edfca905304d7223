package domain

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound          = errors.New("not found")
	ErrConflict          = errors.New("precondition failed")
	ErrSuppressed        = errors.New("recipient suppressed")
	ErrInvalidRecipient  = errors.New("invalid recipient")
	ErrMalformedFeedback = errors.New("malformed feedback message")
)

// ProviderError wraps a channel provider failure with its retry classification.
type ProviderError struct {
	Provider  string
	Code      string
	Permanent bool
	Err       error
}

func (e *ProviderError) Error() string {
	kind := "transient"
	if e.Permanent {
		kind = "permanent"
	}
	if e.Code != "" {
		return fmt.Sprintf("%s %s error (%s): %v", e.Provider, kind, e.Code, e.Err)
	}
	return fmt.Sprintf("%s %s error: %v", e.Provider, kind, e.Err)
}

func (e *ProviderError) Unwrap() error { return e.Err }

// IsPermanent reports whether err is a permanent provider rejection.
func IsPermanent(err error) bool {
	var pe *ProviderError
	if errors.As(err, &pe) {
		return pe.Permanent
	}
	return errors.Is(err, ErrInvalidRecipient)
}
