package types

import (
	"errors"
	"fmt"
	"strings"
)

// ErrConfigurationMissing is matched by every ConfigurationError.
var ErrConfigurationMissing = errors.New("provider configuration missing")

// ConfigurationError reports a required provider capability that is not configured.
type ConfigurationError struct {
	Missing []string
}

func NewConfigurationError(missing ...string) *ConfigurationError {
	return &ConfigurationError{Missing: missing}
}

func (e *ConfigurationError) Error() string {
	if len(e.Missing) == 0 {
		return ErrConfigurationMissing.Error()
	}
	return fmt.Sprintf("%s: %s", ErrConfigurationMissing, strings.Join(e.Missing, ", "))
}

func (e *ConfigurationError) Is(target error) bool {
	return target == ErrConfigurationMissing
}

// ProviderError wraps a failed embedding or generation call.
type ProviderError struct {
	Op  string
	Err error
}

func NewProviderError(op string, err error) error {
	if err == nil {
		return nil
	}
	var pe *ProviderError
	if errors.As(err, &pe) {
		return err
	}
	return &ProviderError{Op: op, Err: err}
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("%s provider: %v", e.Op, e.Err)
}

func (e *ProviderError) Unwrap() error {
	return e.Err
}
