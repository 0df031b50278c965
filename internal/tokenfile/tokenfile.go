// Package tokenfile handles reading and writing the credential file. The file
// holds a single bearer token as raw text with no schema or versioning. It is
// a leaf package so both the CLI and the upload pipeline can use it without
// importing each other.
package tokenfile

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

// FilePerms restricts token files to owner-only read/write.
const FilePerms = 0o600

// DirPerms is used when creating the token directory.
const DirPerms = 0o700

// Sentinel errors for credential file I/O. Use errors.Is to check.
var (
	ErrCredentialLoad  = errors.New("tokenfile: could not load a previous token")
	ErrCredentialStore = errors.New("tokenfile: could not save new token")
)

// Load reads the token stored at path. Surrounding whitespace is trimmed
// because editors and shell redirection tend to append a newline. A missing,
// unreadable, or empty file fails with ErrCredentialLoad.
func Load(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("%w: reading %s: %w", ErrCredentialLoad, path, err)
	}

	tok := strings.TrimSpace(string(data))
	if tok == "" {
		return "", fmt.Errorf("%w: %s is empty", ErrCredentialLoad, path)
	}

	return tok, nil
}

// Save writes the token to path, replacing any previous content. The write
// goes to a temp file in the same directory which is then renamed over the
// target, so a crash never leaves a half-written token behind. Never logs
// token values. Any failure is reported as ErrCredentialStore.
func Save(path, token string) error {
	dir := filepath.Dir(path)
	if mkErr := os.MkdirAll(dir, DirPerms); mkErr != nil {
		return fmt.Errorf("%w: creating directory %s: %w", ErrCredentialStore, dir, mkErr)
	}

	tmp, err := os.CreateTemp(dir, ".token-*.tmp")
	if err != nil {
		return fmt.Errorf("%w: creating temp file: %w", ErrCredentialStore, err)
	}

	tmpPath := tmp.Name()

	// Clean up temp file on any error path.
	success := false
	defer func() {
		if !success {
			_ = os.Remove(tmpPath)
		}
	}()

	if err := os.Chmod(tmpPath, FilePerms); err != nil {
		tmp.Close()
		return fmt.Errorf("%w: setting permissions: %w", ErrCredentialStore, err)
	}

	if _, err := tmp.WriteString(token); err != nil {
		tmp.Close()
		return fmt.Errorf("%w: writing: %w", ErrCredentialStore, err)
	}

	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("%w: syncing: %w", ErrCredentialStore, err)
	}

	if err := tmp.Close(); err != nil {
		return fmt.Errorf("%w: closing: %w", ErrCredentialStore, err)
	}

	if err := os.Rename(tmpPath, path); err != nil {
		return fmt.Errorf("%w: renaming: %w", ErrCredentialStore, err)
	}

	success = true

	return nil
}

// Remove deletes the token file. A file that does not exist is not an error,
// so logging out twice is harmless. Returns whether a file was removed.
func Remove(path string) (bool, error) {
	err := os.Remove(path)
	if errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}

	if err != nil {
		return false, fmt.Errorf("tokenfile: removing %s: %w", path, err)
	}

	return true, nil
}

// Store binds the package functions to a fixed path. It satisfies the
// credential store interface the upload pipeline consumes.
type Store struct {
	path string
}

// NewStore returns a Store for the token file at path.
func NewStore(path string) *Store {
	return &Store{path: path}
}

// Path returns the token file location.
func (s *Store) Path() string {
	return s.path
}

// Load reads the stored token.
func (s *Store) Load() (string, error) {
	return Load(s.path)
}

// Save overwrites the stored token.
func (s *Store) Save(token string) error {
	return Save(s.path, token)
}
