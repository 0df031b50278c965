package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tonimelisma/remarkable-go/internal/archive"
	"github.com/tonimelisma/remarkable-go/internal/cloud"
	"github.com/tonimelisma/remarkable-go/internal/journal"
	"github.com/tonimelisma/remarkable-go/internal/tokenfile"
)

func testLogger(t *testing.T) *slog.Logger {
	t.Helper()

	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelDebug}))
}

// fakeCloud serves every endpoint the pipeline talks to from one server.
type fakeCloud struct {
	t   *testing.T
	srv *httptest.Server

	mu             sync.Mutex
	pairCalls      int
	refreshCalls   int
	slotCalls      int
	blobCalls      int
	registerCalls  int
	blob           []byte
	registerBody   map[string]any
	slotBody       string // raw negotiation response; default is valid directions
	refreshStatus  int
	registerStatus int
	blobStatus     int
}

func newFakeCloud(t *testing.T) *fakeCloud {
	t.Helper()

	fc := &fakeCloud{t: t}
	fc.srv = httptest.NewServer(http.HandlerFunc(fc.serve))
	t.Cleanup(fc.srv.Close)

	return fc
}

func (fc *fakeCloud) serve(w http.ResponseWriter, r *http.Request) {
	fc.mu.Lock()
	defer fc.mu.Unlock()

	body, _ := io.ReadAll(r.Body)

	switch {
	case r.URL.Path == "/token/json/2/device/new":
		fc.pairCalls++
		_, _ = w.Write([]byte("refresh-token"))

	case r.URL.Path == "/token/json/2/user/new":
		fc.refreshCalls++
		if fc.refreshStatus != 0 {
			w.WriteHeader(fc.refreshStatus)
			return
		}

		assert.Equal(fc.t, "Bearer refresh-token", r.Header.Get("Authorization"))
		_, _ = w.Write([]byte("session-token"))

	case r.URL.Path == "/discover":
		_, _ = w.Write([]byte(fc.srv.URL))

	case r.URL.Path == cloud.UploadRequestPath && strings.Contains(string(body), "VissibleName"):
		fc.registerCalls++
		require.NoError(fc.t, json.Unmarshal(body, &fc.registerBody))

		if fc.registerStatus != 0 {
			w.WriteHeader(fc.registerStatus)
			return
		}

		_, _ = w.Write([]byte(`[{"ID":"abc","Success":true}]`))

	case r.URL.Path == cloud.UploadRequestPath:
		fc.slotCalls++
		assert.Equal(fc.t, "Bearer session-token", r.Header.Get("Authorization"))

		if fc.slotBody != "" {
			_, _ = w.Write([]byte(fc.slotBody))
			return
		}

		_, _ = w.Write([]byte(`{"ID":"abc","BlobURLPut":"` + fc.srv.URL + `/blob"}`))

	case r.URL.Path == "/blob":
		fc.blobCalls++
		if fc.blobStatus != 0 {
			w.WriteHeader(fc.blobStatus)
			return
		}

		fc.blob = body

	default:
		fc.t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		w.WriteHeader(http.StatusNotFound)
	}
}

// newUploader wires the real cloud client and token store against fc.
func (fc *fakeCloud) newUploader(t *testing.T, store CredentialStore, prompt PromptFunc, j Journal) *Uploader {
	t.Helper()

	logger := testLogger(t)

	ep, err := cloud.NewEndpoints(fc.srv.URL, fc.srv.URL+"/discover", "")
	require.NoError(t, err)

	u := New(Deps{
		Store: store,
		Auth:  cloud.NewAuthenticator(ep, "", fc.srv.Client(), logger, "test-agent"),
		NewStorage: func(ts cloud.TokenSource) Storage {
			return cloud.NewClient(ep.DiscoveryURL, fc.srv.Client(), ts, logger, "test-agent")
		},
		Prompt:  prompt,
		Journal: j,
		Logger:  logger,
	})
	u.newRunID = func() string { return "run-1" }

	return u
}

func noPrompt(t *testing.T) PromptFunc {
	return func(context.Context) (string, error) {
		t.Error("unexpected pairing prompt")
		return "", errors.New("unexpected prompt")
	}
}

func storedToken(t *testing.T) *tokenfile.Store {
	t.Helper()

	store := tokenfile.NewStore(filepath.Join(t.TempDir(), "token"))
	require.NoError(t, store.Save("refresh-token"))

	return store
}

func TestUpload_EndToEnd(t *testing.T) {
	fc := newFakeCloud(t)
	u := fc.newUploader(t, storedToken(t), noPrompt(t), nil)

	doc := []byte("%PDF-1.4 test document")

	res, err := u.Upload(context.Background(), "MyDoc", doc)
	require.NoError(t, err)

	assert.Equal(t, "abc", res.DocumentID)
	assert.Equal(t, "MyDoc", res.Name)
	assert.Equal(t, len(doc), res.Size)
	assert.False(t, res.Paired)

	assert.Equal(t, 0, fc.pairCalls)
	assert.Equal(t, 1, fc.refreshCalls)
	assert.Equal(t, 1, fc.slotCalls)
	assert.Equal(t, 1, fc.blobCalls)
	assert.Equal(t, 1, fc.registerCalls)

	entries, err := archive.Unpack(fc.blob)
	require.NoError(t, err)
	assert.Equal(t, doc, entries["abc.pdf"])
	assert.Contains(t, entries, "abc.pagedata")
	assert.Contains(t, entries, "abc.content")
	assert.Equal(t, len(fc.blob), res.ArchiveSize)

	assert.Equal(t, "abc", fc.registerBody["parent"])
	assert.Equal(t, "MyDoc", fc.registerBody["VissibleName"])
	assert.Equal(t, cloud.DocumentType, fc.registerBody["Type"])
}

func TestUpload_MalformedDirectionsStopsBeforeTransfer(t *testing.T) {
	fc := newFakeCloud(t)
	fc.slotBody = "not json"
	u := fc.newUploader(t, storedToken(t), noPrompt(t), nil)

	_, err := u.Upload(context.Background(), "MyDoc", []byte("pdf"))
	require.Error(t, err)

	var stageErr *StageError
	require.ErrorAs(t, err, &stageErr)
	assert.Equal(t, StageNegotiate, stageErr.Stage)

	var malformed *cloud.MalformedResponseError
	require.ErrorAs(t, err, &malformed)
	assert.Equal(t, "not json", malformed.RawBody)
	assert.ErrorIs(t, err, cloud.ErrMalformedResponse)

	assert.Equal(t, 0, fc.blobCalls)
	assert.Equal(t, 0, fc.registerCalls)
}

func TestUpload_PairsWhenNoCredential(t *testing.T) {
	fc := newFakeCloud(t)
	store := tokenfile.NewStore(filepath.Join(t.TempDir(), "token"))

	prompted := 0
	prompt := func(context.Context) (string, error) {
		prompted++
		return " abcdefgh\n", nil
	}

	u := fc.newUploader(t, store, prompt, nil)

	res, err := u.Upload(context.Background(), "MyDoc", []byte("pdf"))
	require.NoError(t, err)
	assert.True(t, res.Paired)
	assert.Equal(t, 1, prompted)
	assert.Equal(t, 1, fc.pairCalls)

	saved, err := store.Load()
	require.NoError(t, err)
	assert.Equal(t, "refresh-token", saved)

	// A second upload reuses the stored credential.
	u.prompt = noPrompt(t)
	_, err = u.Upload(context.Background(), "Other", []byte("pdf"))
	require.NoError(t, err)
	assert.Equal(t, 1, fc.pairCalls)
}

func TestUpload_EmptyPairingCodeAborts(t *testing.T) {
	fc := newFakeCloud(t)
	store := tokenfile.NewStore(filepath.Join(t.TempDir(), "token"))
	prompt := func(context.Context) (string, error) { return "  ", nil }

	u := fc.newUploader(t, store, prompt, nil)

	_, err := u.Upload(context.Background(), "MyDoc", []byte("pdf"))
	require.ErrorIs(t, err, ErrPairingAborted)

	var stageErr *StageError
	require.ErrorAs(t, err, &stageErr)
	assert.Equal(t, StageCredential, stageErr.Stage)
	assert.Equal(t, 0, fc.pairCalls)

	_, err = store.Load()
	assert.Error(t, err, "nothing persisted")
}

func TestUpload_WrongLengthPairingCode(t *testing.T) {
	fc := newFakeCloud(t)
	store := tokenfile.NewStore(filepath.Join(t.TempDir(), "token"))
	prompt := func(context.Context) (string, error) { return "short", nil }

	u := fc.newUploader(t, store, prompt, nil)

	_, err := u.Upload(context.Background(), "MyDoc", []byte("pdf"))
	require.ErrorIs(t, err, cloud.ErrPrecondition)
	assert.Equal(t, 0, fc.pairCalls)
}

func TestUpload_RefreshRejectedIsFatal(t *testing.T) {
	fc := newFakeCloud(t)
	fc.refreshStatus = http.StatusUnauthorized
	u := fc.newUploader(t, storedToken(t), noPrompt(t), nil)

	_, err := u.Upload(context.Background(), "MyDoc", []byte("pdf"))
	require.ErrorIs(t, err, cloud.ErrServiceRejected)

	var stageErr *StageError
	require.ErrorAs(t, err, &stageErr)
	assert.Equal(t, StageSession, stageErr.Stage)

	var rejected *cloud.RejectedError
	require.ErrorAs(t, err, &rejected)
	assert.Equal(t, http.StatusUnauthorized, rejected.Status)

	assert.Equal(t, 0, fc.pairCalls, "no automatic re-pairing")
	assert.Equal(t, 0, fc.slotCalls)
}

func TestUpload_PairTransportFailurePersistsNothing(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	logger := testLogger(t)
	ep, err := cloud.NewEndpoints(url, url+"/discover", "")
	require.NoError(t, err)

	store := tokenfile.NewStore(filepath.Join(t.TempDir(), "token"))
	u := New(Deps{
		Store: store,
		Auth:  cloud.NewAuthenticator(ep, "", nil, logger, ""),
		NewStorage: func(ts cloud.TokenSource) Storage {
			return cloud.NewClient(ep.DiscoveryURL, nil, ts, logger, "")
		},
		Prompt: func(context.Context) (string, error) { return "abcdefgh", nil },
		Logger: logger,
	})

	_, err = u.Upload(context.Background(), "MyDoc", []byte("pdf"))
	require.ErrorIs(t, err, cloud.ErrServiceUnreachable)

	_, err = os.Stat(store.Path())
	assert.True(t, os.IsNotExist(err), "no credential file written")
}

func TestUpload_TransferFailureSkipsRegistration(t *testing.T) {
	fc := newFakeCloud(t)
	fc.blobStatus = http.StatusForbidden
	u := fc.newUploader(t, storedToken(t), noPrompt(t), nil)

	_, err := u.Upload(context.Background(), "MyDoc", []byte("pdf"))

	var stageErr *StageError
	require.ErrorAs(t, err, &stageErr)
	assert.Equal(t, StageTransfer, stageErr.Stage)
	assert.Equal(t, 1, fc.blobCalls)
	assert.Equal(t, 0, fc.registerCalls)
}

func TestUpload_JournalRecordsOrphanedBlob(t *testing.T) {
	fc := newFakeCloud(t)
	fc.registerStatus = http.StatusInternalServerError

	ctx := context.Background()
	j, err := journal.Open(ctx, ":memory:", testLogger(t))
	require.NoError(t, err)
	t.Cleanup(func() { j.Close() })

	u := fc.newUploader(t, storedToken(t), noPrompt(t), j)

	_, err = u.Upload(ctx, "MyDoc", []byte("pdf"))
	require.Error(t, err)
	assert.Equal(t, 1, fc.blobCalls)

	runs, err := j.Recent(ctx, 10)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, "run-1", runs[0].RunID)
	assert.Equal(t, "abc", runs[0].DocumentID)
	assert.Equal(t, string(StageRegister), runs[0].Stage)
	assert.Equal(t, journal.StatusFailed, runs[0].Status)
	assert.True(t, runs[0].Orphaned())
}

func TestUpload_JournalRecordsSuccess(t *testing.T) {
	fc := newFakeCloud(t)

	ctx := context.Background()
	j, err := journal.Open(ctx, ":memory:", testLogger(t))
	require.NoError(t, err)
	t.Cleanup(func() { j.Close() })

	u := fc.newUploader(t, storedToken(t), noPrompt(t), j)

	_, err = u.Upload(ctx, "MyDoc", []byte("pdf"))
	require.NoError(t, err)

	runs, err := j.Recent(ctx, 10)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, journal.StatusSucceeded, runs[0].Status)
	assert.Equal(t, int64(3), runs[0].Size)
}

// failingJournal fails every call; uploads must still succeed.
type failingJournal struct{}

func (failingJournal) Begin(context.Context, string, string, int64) error {
	return errors.New("disk full")
}

func (failingJournal) Advance(context.Context, string, string, string) error {
	return errors.New("disk full")
}

func (failingJournal) Finish(context.Context, string, error) error {
	return errors.New("disk full")
}

func TestUpload_JournalFailureIsNotFatal(t *testing.T) {
	fc := newFakeCloud(t)
	u := fc.newUploader(t, storedToken(t), noPrompt(t), failingJournal{})

	_, err := u.Upload(context.Background(), "MyDoc", []byte("pdf"))
	require.NoError(t, err)
}

func TestUpload_EmptyNameRejected(t *testing.T) {
	u := New(Deps{Logger: testLogger(t)})

	_, err := u.Upload(context.Background(), "   ", []byte("pdf"))
	require.ErrorIs(t, err, ErrEmptyName)
	assert.ErrorIs(t, err, cloud.ErrPrecondition)
}

func TestNormalizeName(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"plain", "MyDoc", "MyDoc"},
		{"trimmed", "  MyDoc \n", "MyDoc"},
		{"nfd to nfc", "Cafe\u0301", "Caf\u00e9"},
		{"blank", " \t ", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, NormalizeName(tt.in))
		})
	}
}

func TestStageError(t *testing.T) {
	inner := errors.New("boom")
	err := &StageError{Stage: StageLocate, Err: inner}

	assert.Equal(t, "locating storage service: boom", err.Error())
	assert.ErrorIs(t, err, inner)
	assert.Equal(t, "custom", Stage("custom").Describe())
}

func TestUpload_CanceledContextIsJournaled(t *testing.T) {
	fc := newFakeCloud(t)

	j, err := journal.Open(context.Background(), ":memory:", testLogger(t))
	require.NoError(t, err)
	t.Cleanup(func() { j.Close() })

	u := fc.newUploader(t, storedToken(t), noPrompt(t), j)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err = u.Upload(ctx, "MyDoc", []byte("pdf"))
	require.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 0, fc.slotCalls)

	runs, err := j.Recent(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, journal.StatusFailed, runs[0].Status)
	assert.Equal(t, string(StageSession), runs[0].Stage)
}
