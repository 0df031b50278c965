// Package config implements TOML configuration loading, validation, and
// platform-specific path resolution for remarkable-go. It supports a
// four-layer override chain (defaults -> config file -> environment -> CLI
// flags). A missing config file is not an error: defaults target the
// production reMarkable cloud.
package config

// Config is the top-level configuration structure parsed from a TOML file.
type Config struct {
	TokenPath         string        `toml:"token_path"`
	DeviceDescription string        `toml:"device_description"`
	LogLevel          string        `toml:"log_level"`
	LogFormat         string        `toml:"log_format"`
	Network           NetworkConfig `toml:"network"`
	Service           ServiceConfig `toml:"service"`
	Journal           JournalConfig `toml:"journal"`
}

// NetworkConfig controls HTTP client behavior. A timeout of "0" means no
// client-side timeout: requests block until the transport gives up.
type NetworkConfig struct {
	Timeout   string `toml:"timeout"`
	UserAgent string `toml:"user_agent"`
}

// ServiceConfig points the client at the cloud. Overriding these is useful
// for tests and alternative deployments.
type ServiceConfig struct {
	AuthHost     string `toml:"auth_host"`
	DiscoveryURL string `toml:"discovery_url"`
	Group        string `toml:"group"`
}

// JournalConfig controls the local upload journal. Disabled by default.
type JournalConfig struct {
	Enabled bool   `toml:"enabled"`
	Path    string `toml:"path"`
}

// CLIOverrides holds values from CLI flags that override config file and
// environment settings. Empty strings mean "not specified".
type CLIOverrides struct {
	ConfigPath string // --config
	TokenPath  string // --token
	LogLevel   string // derived from --verbose / --quiet
}

// Resolved is the effective configuration after all four layers have been
// applied. Paths are absolute with "~/" expanded.
type Resolved struct {
	Config

	// ConfigPath is the file that was (or would have been) read.
	ConfigPath string
	// ConfigFound reports whether ConfigPath existed.
	ConfigFound bool
}
