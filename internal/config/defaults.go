package config

import "github.com/tonimelisma/remarkable-go/internal/cloud"

// Default values for configuration options. These are "layer 0" of the
// override chain. Service URLs are left empty here and filled in by the
// cloud package so production endpoints live in one place.
const (
	defaultLogLevel  = "info"
	defaultLogFormat = "text"
	defaultTimeout   = "0"
)

// DefaultConfig returns a Config populated with all default values.
// This is used both as the starting point for TOML decoding (so unset
// fields retain defaults) and as the fallback when no config file exists.
func DefaultConfig() *Config {
	return &Config{
		TokenPath:         DefaultTokenPath(),
		DeviceDescription: cloud.DefaultDeviceDescription,
		LogLevel:          defaultLogLevel,
		LogFormat:         defaultLogFormat,
		Network: NetworkConfig{
			Timeout: defaultTimeout,
		},
		Journal: JournalConfig{
			Path: DefaultJournalPath(),
		},
	}
}
