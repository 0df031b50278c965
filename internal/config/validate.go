package config

import (
	"errors"
	"fmt"
	"net/url"
	"path/filepath"
	"time"
)

// Validate checks all configuration values and returns all errors found.
// It accumulates every error rather than stopping at the first, so users
// see a complete report and can fix all issues in one pass.
func Validate(cfg *Config) error {
	var errs []error

	errs = append(errs, validateLogLevel(cfg.LogLevel)...)
	errs = append(errs, validateLogFormat(cfg.LogFormat)...)
	errs = append(errs, validateNetwork(&cfg.Network)...)
	errs = append(errs, validateService(&cfg.Service)...)

	if cfg.DeviceDescription == "" {
		errs = append(errs, errors.New("device_description: must not be empty"))
	}

	return errors.Join(errs...)
}

// ValidateResolved checks constraints that only make sense after the
// override chain has been applied: env and CLI values are re-checked, and
// paths must be absolute.
func ValidateResolved(r *Resolved) error {
	var errs []error

	errs = append(errs, validateLogLevel(r.LogLevel)...)

	switch {
	case r.TokenPath == "":
		errs = append(errs, errors.New("token_path: no path configured and no home directory found"))
	case !filepath.IsAbs(r.TokenPath):
		errs = append(errs, fmt.Errorf("token_path: must be absolute after expansion, got %q", r.TokenPath))
	}

	if r.Journal.Enabled && !filepath.IsAbs(r.Journal.Path) {
		errs = append(errs, fmt.Errorf("journal.path: must be absolute after expansion, got %q", r.Journal.Path))
	}

	return errors.Join(errs...)
}

var validLogLevels = map[string]bool{
	"debug": true,
	"info":  true,
	"warn":  true,
	"error": true,
}

func validateLogLevel(level string) []error {
	if !validLogLevels[level] {
		return []error{fmt.Errorf("log_level: must be one of debug, info, warn, error; got %q", level)}
	}

	return nil
}

var validLogFormats = map[string]bool{
	"text": true,
	"json": true,
}

func validateLogFormat(format string) []error {
	if !validLogFormats[format] {
		return []error{fmt.Errorf("log_format: must be one of text, json; got %q", format)}
	}

	return nil
}

func validateNetwork(n *NetworkConfig) []error {
	if _, err := ParseTimeout(n.Timeout); err != nil {
		return []error{err}
	}

	return nil
}

// ParseTimeout parses network.timeout. "0" and "" mean no timeout.
func ParseTimeout(value string) (time.Duration, error) {
	if value == "" || value == "0" {
		return 0, nil
	}

	d, err := time.ParseDuration(value)
	if err != nil {
		return 0, fmt.Errorf("network.timeout: invalid duration %q: %w", value, err)
	}

	if d < 0 {
		return 0, fmt.Errorf("network.timeout: must be >= 0, got %s", d)
	}

	return d, nil
}

func validateService(s *ServiceConfig) []error {
	var errs []error

	errs = append(errs, validateURL("service.auth_host", s.AuthHost)...)
	errs = append(errs, validateURL("service.discovery_url", s.DiscoveryURL)...)

	return errs
}

// validateURL accepts an empty value (use the default) or an absolute
// http(s) URL.
func validateURL(field, value string) []error {
	if value == "" {
		return nil
	}

	u, err := url.Parse(value)
	if err != nil {
		return []error{fmt.Errorf("%s: invalid URL %q: %w", field, value, err)}
	}

	if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return []error{fmt.Errorf("%s: must be an absolute http or https URL, got %q", field, value)}
	}

	return nil
}
