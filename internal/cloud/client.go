package cloud

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"time"
)

// DefaultUserAgent identifies the client to the service.
const DefaultUserAgent = "remarkable-go/0.1"

const contentTypeJSON = "application/json"

// TokenSource provides session bearer tokens. Defined at the consumer
// per Go convention "accept interfaces, return structs"; internal/session
// provides the caching implementation.
type TokenSource interface {
	Token() (string, error)
}

// requester performs single-attempt HTTP exchanges. Shared by Authenticator
// (explicit tokens) and Client (tokens from a TokenSource).
type requester struct {
	httpClient *http.Client
	userAgent  string
	logger     *slog.Logger
}

func newRequester(httpClient *http.Client, userAgent string, logger *slog.Logger) requester {
	if logger == nil {
		logger = slog.Default()
	}

	if httpClient == nil {
		httpClient = http.DefaultClient
	}

	if userAgent == "" {
		userAgent = DefaultUserAgent
	}

	return requester{httpClient: httpClient, userAgent: userAgent, logger: logger}
}

// send executes one request and returns the response body. Only 200 counts
// as success. bearer may be empty for unauthenticated calls; contentType is
// only set when non-empty.
func (r requester) send(
	ctx context.Context, method, rawURL, bearer, contentType string, body []byte,
) ([]byte, error) {
	host := hostOf(rawURL)

	var reader io.Reader = http.NoBody
	if body != nil {
		reader = bytes.NewReader(body)
	}

	req, err := http.NewRequestWithContext(ctx, method, rawURL, reader)
	if err != nil {
		return nil, fmt.Errorf("cloud: creating request: %w", err)
	}

	if body != nil {
		req.ContentLength = int64(len(body))
	}

	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}

	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}

	req.Header.Set("User-Agent", r.userAgent)

	start := time.Now()

	resp, err := r.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, fmt.Errorf("cloud: request canceled: %w", ctx.Err())
		}

		r.logger.Error("request failed",
			slog.String("method", method),
			slog.String("host", host),
			slog.String("error", err.Error()),
		)

		return nil, fmt.Errorf("%w: %s %s: %w", ErrServiceUnreachable, method, host, err)
	}
	defer resp.Body.Close()

	respBody, readErr := io.ReadAll(resp.Body)

	if resp.StatusCode != http.StatusOK {
		r.logger.Warn("request rejected",
			slog.String("method", method),
			slog.String("host", host),
			slog.Int("status", resp.StatusCode),
		)

		return nil, &RejectedError{Status: resp.StatusCode, Body: truncateBody(respBody)}
	}

	if readErr != nil {
		return nil, fmt.Errorf("%w: reading response from %s: %w", ErrServiceUnreachable, host, readErr)
	}

	r.logger.Debug("request succeeded",
		slog.String("method", method),
		slog.String("host", host),
		slog.Int("status", resp.StatusCode),
		slog.Int("bytes", len(respBody)),
		slog.Duration("elapsed", time.Since(start)),
	)

	return respBody, nil
}

// hostOf returns the host part of rawURL for logging. Full URLs are never
// logged because blob URLs are pre-authenticated.
func hostOf(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil || u.Host == "" {
		return "(invalid url)"
	}

	return u.Host
}

// Client talks to the document-storage service on behalf of a session.
type Client struct {
	requester
	discoveryURL string
	token        TokenSource

	// nowFunc supplies the current time for metadata timestamps and slot
	// expiry checks. Tests override it.
	nowFunc func() time.Time
	// newID mints document and metadata identifiers. Tests override it.
	newID func() string
}

// NewClient creates a storage client. discoveryURL is the full service
// discovery URL including its query parameters (see Endpoints).
func NewClient(
	discoveryURL string, httpClient *http.Client, token TokenSource, logger *slog.Logger, userAgent string,
) *Client {
	return &Client{
		requester:    newRequester(httpClient, userAgent, logger),
		discoveryURL: discoveryURL,
		token:        token,
		nowFunc:      time.Now,
		newID:        newUUID,
	}
}

// do sends an authenticated request using the session token.
func (c *Client) do(ctx context.Context, method, rawURL, contentType string, body []byte) ([]byte, error) {
	tok, err := c.token.Token()
	if err != nil {
		return nil, fmt.Errorf("cloud: obtaining session token: %w", err)
	}

	return c.send(ctx, method, rawURL, tok, contentType, body)
}
