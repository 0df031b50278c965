package config

import (
	"fmt"
	"io"
)

// RenderEffective writes the resolved configuration to w as TOML annotated
// with where it came from. Empty service URLs are shown as the defaults
// passed in, so users see the endpoints actually contacted.
func RenderEffective(r *Resolved, defaults ServiceConfig, w io.Writer) error {
	ew := &errWriter{w: w}

	source := "built-in defaults (no config file)"
	if r.ConfigFound {
		source = r.ConfigPath
	}

	ew.printf("# Effective configuration\n")
	ew.printf("# source: %s\n\n", source)

	ew.printf("token_path         = %q\n", r.TokenPath)
	ew.printf("device_description = %q\n", r.DeviceDescription)
	ew.printf("log_level          = %q\n", r.LogLevel)
	ew.printf("log_format         = %q\n", r.LogFormat)
	ew.printf("\n")

	ew.printf("[network]\n")
	ew.printf("timeout    = %q\n", r.Network.Timeout)

	if r.Network.UserAgent != "" {
		ew.printf("user_agent = %q\n", r.Network.UserAgent)
	}

	ew.printf("\n")

	ew.printf("[service]\n")
	ew.printf("auth_host     = %q\n", orDefault(r.Service.AuthHost, defaults.AuthHost))
	ew.printf("discovery_url = %q\n", orDefault(r.Service.DiscoveryURL, defaults.DiscoveryURL))
	ew.printf("group         = %q\n", orDefault(r.Service.Group, defaults.Group))
	ew.printf("\n")

	ew.printf("[journal]\n")
	ew.printf("enabled = %t\n", r.Journal.Enabled)
	ew.printf("path    = %q\n", r.Journal.Path)

	return ew.err
}

func orDefault(v, def string) string {
	if v == "" {
		return def
	}

	return v
}

// errWriter wraps an io.Writer and captures the first write error.
// Subsequent writes after an error are no-ops, so callers can chain
// printf calls without checking each one individually.
type errWriter struct {
	w   io.Writer
	err error
}

func (ew *errWriter) printf(format string, args ...any) {
	if ew.err != nil {
		return
	}

	_, ew.err = fmt.Fprintf(ew.w, format, args...)
}
