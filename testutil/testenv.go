// Package testutil provides shared test environment helpers for E2E tests:
// .env loading, module-root discovery, and a fake reMarkable cloud.
package testutil

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/joho/godotenv"
)

// LoadDotEnv loads KEY=VALUE pairs from a .env file at the given path.
// Missing file is not an error (CI sets env vars directly).
// Existing env vars take precedence over .env values.
func LoadDotEnv(envPath string) error {
	err := godotenv.Load(envPath)
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("loading %s: %w", envPath, err)
	}

	return nil
}

// FindModuleRoot walks up from the current directory to find go.mod.
// Returns the fallback if the root is not found.
func FindModuleRoot(fallback string) string {
	dir, err := os.Getwd()
	if err != nil {
		return fallback
	}

	for {
		if _, err := os.Stat(filepath.Join(dir, "go.mod")); err == nil {
			return dir
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			return fallback
		}

		dir = parent
	}
}

// WriteConfig writes a config file in dir that points every service URL at
// baseURL and keeps the token and journal inside dir. It returns the config
// path and the token path.
func WriteConfig(dir, baseURL string, journal bool) (configPath, tokenPath string, err error) {
	configPath = filepath.Join(dir, "config.toml")
	tokenPath = filepath.Join(dir, "remarkable.token")

	content := fmt.Sprintf(`token_path = %q

[service]
auth_host = %q
discovery_url = %q

[journal]
enabled = %t
path = %q
`, tokenPath, baseURL, baseURL+DiscoveryPath, journal, filepath.Join(dir, "journal.db"))

	if err := os.WriteFile(configPath, []byte(content), 0o600); err != nil {
		return "", "", fmt.Errorf("writing config: %w", err)
	}

	return configPath, tokenPath, nil
}
