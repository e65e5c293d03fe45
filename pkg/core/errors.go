package core

import (
	"errors"
	"fmt"
)

// ErrConfiguration is the sentinel wrapped by every ConfigError.
// Callers test for it with errors.Is.
var ErrConfiguration = errors.New("configuration error")

// ConfigError reports a value that cannot be resolved into a pipeline
// configuration: an unknown quality tier, output type, or stage id.
type ConfigError struct {
	Field string
	Value string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("%s: unknown %s %q", ErrConfiguration, e.Field, e.Value)
}

// Unwrap returns ErrConfiguration.
func (e *ConfigError) Unwrap() error {
	return ErrConfiguration
}

// NewConfigError creates a ConfigError for the given field and value.
func NewConfigError(field, value string) error {
	return &ConfigError{Field: field, Value: value}
}
