package appErrors

import (
	"errors"
	"fmt"
)

// DeliveryError is a failed attempt to hand a message to a provider.
// The dispatch run recovers from it by releasing the recipient.
type DeliveryError struct {
	Provider string
	Err      error
}

func (e *DeliveryError) Error() string {
	return fmt.Sprintf("delivery via %s failed: %v", e.Provider, e.Err)
}

func (e *DeliveryError) Unwrap() error {
	return e.Err
}

// Helper constructor
func NewDeliveryError(provider string, err error) error {
	return &DeliveryError{Provider: provider, Err: err}
}

// IsDeliveryError reports whether err (or anything it wraps) is a DeliveryError.
func IsDeliveryError(err error) bool {
	var de *DeliveryError
	return errors.As(err, &de)
}

// ConfigError reports an invalid configuration value.
type ConfigError struct {
	Key     string
	Message string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("invalid config %s: %s", e.Key, e.Message)
}

func NewConfigError(key, message string) error {
	return &ConfigError{Key: key, Message: message}
}
