package model

import "fmt"

// ConfigurationError reports an inconsistency detected before any search starts:
// a genome whose length does not match the feature and roster sizes, or a
// target column missing from the input frame.
type ConfigurationError struct {
	Component string
	Reason    string
}

func (e *ConfigurationError) Error() string {
	if e.Component == "" {
		return "configuration error: " + e.Reason
	}
	return fmt.Sprintf("configuration error in %s: %s", e.Component, e.Reason)
}

func NewConfigurationError(component, format string, args ...any) *ConfigurationError {
	return &ConfigurationError{Component: component, Reason: fmt.Sprintf(format, args...)}
}
