package validation

import (
	"fmt"
	"net/url"
	"time"
)

const (
	MinTimeout = 100 * time.Millisecond
	MaxTimeout = 5 * time.Minute
)

func ValidateBaseURL(raw string) error {
	if raw == "" {
		return fmt.Errorf("base URL cannot be empty")
	}
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("invalid base URL %q: %w", raw, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("invalid base URL %q: scheme must be http or https", raw)
	}
	if u.Host == "" {
		return fmt.Errorf("invalid base URL %q: host is missing", raw)
	}
	return nil
}

func ValidateTimeout(name string, d time.Duration) error {
	if d < MinTimeout || d > MaxTimeout {
		return fmt.Errorf("%s must be between %s and %s, got %s", name, MinTimeout, MaxTimeout, d)
	}
	return nil
}

func ValidateID(kind string, id int64) error {
	if id <= 0 {
		return fmt.Errorf("%s ID must be a positive integer, got %d", kind, id)
	}
	return nil
}

func ValidateNonEmptyString(fieldName, value string) error {
	if value == "" {
		return fmt.Errorf("%s cannot be empty", fieldName)
	}
	return nil
}

func ValidatePort(port int) error {
	if port < 1 || port > 65535 {
		return fmt.Errorf("port must be between 1 and 65535, got %d", port)
	}
	return nil
}

func ValidateTokenBackend(backend string) error {
	validBackends := map[string]bool{
		"sqlite": true,
		"redis":  true,
	}
	if !validBackends[backend] {
		return fmt.Errorf("invalid token backend: %s (must be one of: sqlite, redis)", backend)
	}
	return nil
}

func ValidatePageSize(page, size int) error {
	if page < 1 {
		return fmt.Errorf("page must be a positive integer, got %d", page)
	}
	if size < 1 || size > 100 {
		return fmt.Errorf("page size must be between 1 and 100, got %d", size)
	}
	return nil
}
