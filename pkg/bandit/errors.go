package bandit

import (
	"errors"
	"fmt"
)

// ErrInvalidConfig is wrapped by every configuration error returned from a
// strategy or harness constructor.
var ErrInvalidConfig = errors.New("invalid configuration")

// ConfigError describes a rejected hyperparameter or harness setting.
type ConfigError struct {
	Component string // strategy name or "simulation"
	Field     string
	Reason    string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("%s: %s: %s %s", ErrInvalidConfig, e.Component, e.Field, e.Reason)
}

func (e *ConfigError) Unwrap() error { return ErrInvalidConfig }

func configErr(component, field, reason string) error {
	return &ConfigError{Component: component, Field: field, Reason: reason}
}

// InvalidConfig builds a ConfigError for components outside this package.
func InvalidConfig(component, field, reason string) error {
	return configErr(component, field, reason)
}

func checkArms(component string, nArms int) error {
	if nArms < 1 {
		return configErr(component, "nArms", fmt.Sprintf("must be at least 1, got %d", nArms))
	}
	return nil
}
