package ai

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"
)

// ErrNotConfigured is matched by every *ConfigError.
var ErrNotConfigured = errors.New("ai provider not configured")

// ConfigError reports a missing or invalid provider setting.
type ConfigError struct {
	Provider Provider
	Missing  string
}

func (e *ConfigError) Error() string {
	if e.Provider == "" {
		return fmt.Sprintf("ai: %s is required", e.Missing)
	}
	return fmt.Sprintf("ai: %s: %s is required", e.Provider, e.Missing)
}

func (e *ConfigError) Is(target error) bool { return target == ErrNotConfigured }

func unsupported(p Provider, role string) error {
	return &ConfigError{Provider: p, Missing: "a supported " + role + " provider"}
}

// ProviderError wraps a failed upstream call.
type ProviderError struct {
	Provider   Provider
	Op         string
	StatusCode int
	Retryable  bool
	Err        error
}

func (e *ProviderError) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("%s %s: status %d: %v", e.Provider, e.Op, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("%s %s: %v", e.Provider, e.Op, e.Err)
}

func (e *ProviderError) Unwrap() error { return e.Err }

// IsRetryable reports whether err is a transient *ProviderError.
func IsRetryable(err error) bool {
	var pe *ProviderError
	return errors.As(err, &pe) && pe.Retryable
}

func providerError(p Provider, op string, status int, err error) *ProviderError {
	return &ProviderError{
		Provider:   p,
		Op:         op,
		StatusCode: status,
		Retryable:  status == 0 || status == http.StatusTooManyRequests || status >= 500,
		Err:        err,
	}
}

// retryAfter reads the Retry-After header in seconds.
func retryAfter(h http.Header) time.Duration {
	if s, err := strconv.Atoi(h.Get("Retry-After")); err == nil && s > 0 {
		return time.Duration(s) * time.Second
	}
	return 0
}
