package config

import "os"

// Environment variable names for overrides.
const (
	EnvConfig   = "REMARKABLE_GO_CONFIG"
	EnvToken    = "REMARKABLE_GO_TOKEN"
	EnvLogLevel = "REMARKABLE_GO_LOG_LEVEL"
)

// EnvOverrides holds values derived from environment variables.
type EnvOverrides struct {
	ConfigPath string // REMARKABLE_GO_CONFIG: config file path
	TokenPath  string // REMARKABLE_GO_TOKEN: credential file path
	LogLevel   string // REMARKABLE_GO_LOG_LEVEL: log level
}

// ReadEnvOverrides reads environment variables and returns any overrides found.
// This does not modify the Config; Resolve applies the fields.
func ReadEnvOverrides() EnvOverrides {
	return EnvOverrides{
		ConfigPath: os.Getenv(EnvConfig),
		TokenPath:  os.Getenv(EnvToken),
		LogLevel:   os.Getenv(EnvLogLevel),
	}
}
