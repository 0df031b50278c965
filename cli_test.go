package main

import (
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/tonimelisma/remarkable-go/internal/config"
)

// fakeService is a minimal reMarkable cloud for command tests.
type fakeService struct {
	srv *httptest.Server

	mu            sync.Mutex
	rejectRefresh bool // answer refresh with 401
	pairCodes     []string
	uploads       int
	blobs         int
	registers     int
}

func newFakeService(t *testing.T) *fakeService {
	t.Helper()

	fs := &fakeService{}
	fs.srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fs.mu.Lock()
		defer fs.mu.Unlock()

		body, _ := io.ReadAll(r.Body)

		switch {
		case r.URL.Path == "/token/json/2/device/new":
			fs.pairCodes = append(fs.pairCodes, string(body))
			_, _ = w.Write([]byte("refresh-token"))
		case r.URL.Path == "/token/json/2/user/new" && fs.rejectRefresh:
			w.WriteHeader(http.StatusUnauthorized)
		case r.URL.Path == "/token/json/2/user/new":
			_, _ = w.Write([]byte("session-token"))
		case r.URL.Path == "/discover":
			_, _ = w.Write([]byte(fs.srv.URL))
		case r.URL.Path == "/json/2/upload/request" && strings.Contains(string(body), "VissibleName"):
			fs.registers++
		case r.URL.Path == "/json/2/upload/request":
			fs.uploads++
			_, _ = fmt.Fprintf(w, `[{"ID":"doc-%d","Success":true,"BlobURLPut":"%s/blob"}]`, fs.uploads, fs.srv.URL)
		case r.URL.Path == "/blob":
			fs.blobs++
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	t.Cleanup(fs.srv.Close)

	return fs
}

// testEnv is a temporary config pointing at a fake service.
type testEnv struct {
	dir        string
	configPath string
	tokenPath  string
}

func newTestEnv(t *testing.T, fs *fakeService, journalEnabled bool) *testEnv {
	t.Helper()

	t.Setenv(config.EnvConfig, "")
	t.Setenv(config.EnvToken, "")
	t.Setenv(config.EnvLogLevel, "")

	dir := t.TempDir()
	env := &testEnv{
		dir:        dir,
		configPath: filepath.Join(dir, "config.toml"),
		tokenPath:  filepath.Join(dir, "token"),
	}

	cfg := fmt.Sprintf(`token_path = %q
log_level = "debug"

[service]
auth_host = %q
discovery_url = %q

[journal]
enabled = %t
path = %q
`, env.tokenPath, fs.srv.URL, fs.srv.URL+"/discover", journalEnabled, filepath.Join(dir, "journal.db"))

	require.NoError(t, os.WriteFile(env.configPath, []byte(cfg), 0o600))

	return env
}

// run executes the root command with the env's config file.
func (e *testEnv) run(args ...string) error {
	cmd := newRootCmd()
	cmd.SetArgs(append([]string{"--config", e.configPath}, args...))

	return cmd.Execute()
}

// withPromptInput replaces the pairing prompt's terminal with input.
func withPromptInput(t *testing.T, input string) {
	t.Helper()

	oldTTY, oldIn, oldOut := stdinIsTTY, promptIn, promptOut

	t.Cleanup(func() {
		stdinIsTTY, promptIn, promptOut = oldTTY, oldIn, oldOut
	})

	stdinIsTTY = func() bool { return false }
	promptIn = strings.NewReader(input)
	promptOut = io.Discard
}

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()

	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	return path
}

func writePDF(t *testing.T, dir, name string) string {
	t.Helper()

	return writeFile(t, dir, name, "%PDF-1.4\n%test\n")
}
