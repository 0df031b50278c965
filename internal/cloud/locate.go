package cloud

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"
)

const discoveryStatusOK = "OK"

// discoveryResponse is the JSON form of the discovery answer. Older
// deployments answer with the bare host in plain text instead.
type discoveryResponse struct {
	Status string `json:"Status"`
	Host   string `json:"Host"`
}

// Locate asks the discovery service where this account's document storage
// lives and returns its base URL without a trailing slash.
func (c *Client) Locate(ctx context.Context) (string, error) {
	c.logger.Debug("locating storage service", slog.String("host", hostOf(c.discoveryURL)))

	resp, err := c.do(ctx, http.MethodPost, c.discoveryURL, "", nil)
	if err != nil {
		return "", err
	}

	endpoint, err := parseDiscovery(resp)
	if err != nil {
		return "", err
	}

	c.logger.Info("located storage service", slog.String("endpoint", endpoint))

	return endpoint, nil
}

// parseDiscovery accepts either {"Status":"OK","Host":"..."} or a bare
// host/URL. A host without a scheme gets https://.
func parseDiscovery(body []byte) (string, error) {
	raw := strings.TrimSpace(string(body))
	if raw == "" {
		return "", &MalformedResponseError{RawBody: string(body)}
	}

	host := raw

	if strings.HasPrefix(raw, "{") {
		var dr discoveryResponse
		if err := json.Unmarshal([]byte(raw), &dr); err != nil {
			return "", &MalformedResponseError{RawBody: string(body), Err: err}
		}

		if dr.Host == "" || (dr.Status != "" && dr.Status != discoveryStatusOK) {
			return "", &MalformedResponseError{RawBody: string(body)}
		}

		host = dr.Host
	}

	if strings.ContainsAny(host, " \t\r\n") {
		return "", &MalformedResponseError{RawBody: string(body)}
	}

	if !strings.Contains(host, "://") {
		host = "https://" + host
	}

	return strings.TrimRight(host, "/"), nil
}
