package cloud

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/google/uuid"
)

// Production service locations.
const (
	DefaultAuthHost     = "https://my.remarkable.com"
	DefaultDiscoveryURL = "https://service-manager-production-dot-remarkable-production.appspot.com" +
		"/service/json/1/document-storage"
	DefaultGroup = "auth0|5a68dc51cb30df3877a1d7c4"

	pairPath    = "/token/json/2/device/new"
	refreshPath = "/token/json/2/user/new"

	discoveryEnvironment = "production"
	discoveryAPIVersion  = "2"
)

// UploadRequestPath is appended to the storage endpoint for both slot
// negotiation and metadata registration.
const UploadRequestPath = "/json/2/upload/request"

// Endpoints holds the fixed URLs the client talks to before the storage
// endpoint is known.
type Endpoints struct {
	PairURL      string
	RefreshURL   string
	DiscoveryURL string
}

// NewEndpoints builds Endpoints from an auth host, a discovery base URL, and
// the account group. Empty arguments fall back to production defaults.
func NewEndpoints(authHost, discoveryBase, group string) (Endpoints, error) {
	if authHost == "" {
		authHost = DefaultAuthHost
	}

	if discoveryBase == "" {
		discoveryBase = DefaultDiscoveryURL
	}

	if group == "" {
		group = DefaultGroup
	}

	authHost = strings.TrimRight(authHost, "/")

	u, err := url.Parse(discoveryBase)
	if err != nil {
		return Endpoints{}, fmt.Errorf("cloud: parsing discovery url: %w", err)
	}

	q := u.Query()
	q.Set("environment", discoveryEnvironment)
	q.Set("group", group)
	q.Set("apiVer", discoveryAPIVersion)
	u.RawQuery = q.Encode()

	return Endpoints{
		PairURL:      authHost + pairPath,
		RefreshURL:   authHost + refreshPath,
		DiscoveryURL: u.String(),
	}, nil
}

func newUUID() string {
	return uuid.NewString()
}
