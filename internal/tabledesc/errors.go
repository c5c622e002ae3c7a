package tabledesc

import "fmt"

// ConfigurationError reports a mapping that cannot be turned into a usable descriptor.
type ConfigurationError struct {
	Table  string
	Reason string
	Err    error
}

func (e *ConfigurationError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("invalid configuration for table %s: %s: %v", e.Table, e.Reason, e.Err)
	}
	return fmt.Sprintf("invalid configuration for table %s: %s", e.Table, e.Reason)
}

func (e *ConfigurationError) Unwrap() error {
	return e.Err
}

func configErrorf(table string, format string, args ...any) *ConfigurationError {
	return &ConfigurationError{Table: table, Reason: fmt.Sprintf(format, args...)}
}
