package fusion

import (
	"fmt"

	"github.com/pkg/errors"
)

var (
	// ErrInvalidDeltaTime is returned by Fusion when an update is given a negative or
	// non-finite dt. The filter state is left untouched.
	ErrInvalidDeltaTime = errors.New("delta time must be finite and non-negative")
	// ErrClosed is returned by Fusion after Close has been called.
	ErrClosed = errors.New("fusion filter is closed")
)

// ConfigurationError reports an invalid Settings field. A filter is never
// constructed from settings that produce one.
type ConfigurationError struct {
	Field  string
	Reason string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("invalid setting %q: %s", e.Field, e.Reason)
}

func newConfigurationError(field, format string, args ...interface{}) error {
	return &ConfigurationError{Field: field, Reason: fmt.Sprintf(format, args...)}
}

// IsConfigurationError reports whether err, or the error it wraps, is a *ConfigurationError.
func IsConfigurationError(err error) bool {
	var cerr *ConfigurationError
	return errors.As(err, &cerr)
}
