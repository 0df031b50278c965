package testutil

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
)

// Paths served by FakeCloud.
const (
	PairPath      = "/token/json/2/device/new"
	RefreshPath   = "/token/json/2/user/new"
	DiscoveryPath = "/discover"
	UploadPath    = "/json/2/upload/request"
	BlobPath      = "/blob"
)

// Canned credentials returned by FakeCloud.
const (
	FakeRefreshToken = "fake-refresh-token"
	FakeSessionToken = "fake-session-token"
)

// FakeCloud is an in-process reMarkable cloud: pairing, refresh, discovery,
// slot negotiation, blob storage and metadata registration. Documents become
// visible only once their metadata is registered.
type FakeCloud struct {
	srv *httptest.Server

	mu sync.Mutex
	// SlotBody, when set, replaces the negotiation response verbatim.
	SlotBody string
	// RejectRefresh makes refresh answer 401.
	RejectRefresh bool
	// RejectRegister makes metadata registration answer 500.
	RejectRegister bool

	pairs    int
	nextID   int
	blobs    map[string][]byte // document id -> archive
	visible  map[string]string // document id -> display name
}

// NewFakeCloud starts a FakeCloud. Call Close when done.
func NewFakeCloud() *FakeCloud {
	fc := &FakeCloud{
		blobs:   make(map[string][]byte),
		visible: make(map[string]string),
	}
	fc.srv = httptest.NewServer(http.HandlerFunc(fc.serve))

	return fc
}

// URL is the base URL of the fake service.
func (fc *FakeCloud) URL() string { return fc.srv.URL }

// Close stops the server.
func (fc *FakeCloud) Close() { fc.srv.Close() }

// Pairs returns how many pairing requests were served.
func (fc *FakeCloud) Pairs() int {
	fc.mu.Lock()
	defer fc.mu.Unlock()

	return fc.pairs
}

// Blob returns the stored archive for a document id.
func (fc *FakeCloud) Blob(id string) ([]byte, bool) {
	fc.mu.Lock()
	defer fc.mu.Unlock()

	b, ok := fc.blobs[id]

	return b, ok
}

// VisibleName returns the registered display name for a document id.
func (fc *FakeCloud) VisibleName(id string) (string, bool) {
	fc.mu.Lock()
	defer fc.mu.Unlock()

	n, ok := fc.visible[id]

	return n, ok
}

// Set applies f under the lock, for changing behavior mid-test.
func (fc *FakeCloud) Set(f func(fc *FakeCloud)) {
	fc.mu.Lock()
	defer fc.mu.Unlock()

	f(fc)
}

func (fc *FakeCloud) serve(w http.ResponseWriter, r *http.Request) {
	fc.mu.Lock()
	defer fc.mu.Unlock()

	body, err := io.ReadAll(r.Body)
	if err != nil {
		w.WriteHeader(http.StatusBadRequest)
		return
	}

	switch r.URL.Path {
	case PairPath:
		fc.pairs++
		_, _ = io.WriteString(w, FakeRefreshToken)

	case RefreshPath:
		if fc.RejectRefresh || r.Header.Get("Authorization") != "Bearer "+FakeRefreshToken {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}

		_, _ = io.WriteString(w, FakeSessionToken)

	case DiscoveryPath:
		if !fc.authorized(w, r) {
			return
		}

		_ = json.NewEncoder(w).Encode(map[string]string{"Status": "OK", "Host": fc.srv.URL})

	case UploadPath:
		if !fc.authorized(w, r) {
			return
		}

		fc.upload(w, body)

	case BlobPath:
		if !fc.authorized(w, r) {
			return
		}

		id := r.URL.Query().Get("id")
		fc.blobs[id] = body

	default:
		w.WriteHeader(http.StatusNotFound)
	}
}

func (fc *FakeCloud) authorized(w http.ResponseWriter, r *http.Request) bool {
	if r.Header.Get("Authorization") != "Bearer "+FakeSessionToken {
		w.WriteHeader(http.StatusUnauthorized)
		return false
	}

	return true
}

// upload handles both slot negotiation and metadata registration, which
// share a route and differ only by payload.
func (fc *FakeCloud) upload(w http.ResponseWriter, body []byte) {
	var req struct {
		Parent       string `json:"parent"`
		VissibleName string `json:"VissibleName"` //nolint:misspell // service field name
	}

	if err := json.Unmarshal(body, &req); err != nil {
		w.WriteHeader(http.StatusBadRequest)
		return
	}

	if strings.Contains(string(body), `"VissibleName"`) {
		if fc.RejectRegister {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}

		if _, ok := fc.blobs[req.Parent]; !ok {
			w.WriteHeader(http.StatusNotFound)
			return
		}

		fc.visible[req.Parent] = req.VissibleName

		return
	}

	if fc.SlotBody != "" {
		_, _ = io.WriteString(w, fc.SlotBody)
		return
	}

	fc.nextID++
	id := fmt.Sprintf("doc-%d", fc.nextID)

	_ = json.NewEncoder(w).Encode([]map[string]any{{
		"ID":         id,
		"Version":    1,
		"Success":    true,
		"BlobURLPut": fc.srv.URL + BlobPath + "?id=" + id,
	}})
}
