package cloud

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"unicode/utf8"
)

// PairingCodeLength is the number of characters in a one-time pairing code
// shown at my.remarkable.com.
const PairingCodeLength = 8

// DefaultDeviceDescription is sent with pairing requests. The service only
// accepts a fixed set of descriptions; this one is accepted for desktop apps.
const DefaultDeviceDescription = "desktop-windows"

type pairRequest struct {
	Code       string `json:"code"`
	DeviceDesc string `json:"deviceDesc"`
	DeviceID   string `json:"deviceID"`
}

// Authenticator exchanges pairing codes and refresh credentials for tokens.
type Authenticator struct {
	requester
	pairURL    string
	refreshURL string
	deviceDesc string

	// newDeviceID mints a device identity per pairing. Tests override it.
	newDeviceID func() string
}

// NewAuthenticator creates an Authenticator for the given endpoints. An
// empty deviceDesc uses DefaultDeviceDescription.
func NewAuthenticator(
	ep Endpoints, deviceDesc string, httpClient *http.Client, logger *slog.Logger, userAgent string,
) *Authenticator {
	if deviceDesc == "" {
		deviceDesc = DefaultDeviceDescription
	}

	return &Authenticator{
		requester:   newRequester(httpClient, userAgent, logger),
		pairURL:     ep.PairURL,
		refreshURL:  ep.RefreshURL,
		deviceDesc:  deviceDesc,
		newDeviceID: newUUID,
	}
}

// Pair registers this installation with a one-time code and returns the
// long-lived refresh credential. The code is checked before any request is
// made. The response body is the credential, returned verbatim.
func (a *Authenticator) Pair(ctx context.Context, code string) (string, error) {
	if n := utf8.RuneCountInString(code); n != PairingCodeLength {
		return "", fmt.Errorf("%w: pairing code must be %d characters, got %d",
			ErrPrecondition, PairingCodeLength, n)
	}

	deviceID := a.newDeviceID()

	a.logger.Info("pairing device",
		slog.String("device_desc", a.deviceDesc),
		slog.String("device_id", deviceID),
	)

	body, err := json.Marshal(pairRequest{
		Code:       code,
		DeviceDesc: a.deviceDesc,
		DeviceID:   deviceID,
	})
	if err != nil {
		return "", fmt.Errorf("cloud: marshaling pair request: %w", err)
	}

	resp, err := a.send(ctx, http.MethodPost, a.pairURL, "", contentTypeJSON, body)
	if err != nil {
		return "", err
	}

	if len(resp) == 0 {
		return "", &MalformedResponseError{RawBody: ""}
	}

	a.logger.Info("device paired", slog.String("device_id", deviceID))

	return string(resp), nil
}

// Refresh presents the refresh credential and returns a short-lived session
// credential, verbatim from the response body.
func (a *Authenticator) Refresh(ctx context.Context, refreshToken string) (string, error) {
	a.logger.Debug("refreshing session token")

	resp, err := a.send(ctx, http.MethodPost, a.refreshURL, refreshToken, "", nil)
	if err != nil {
		return "", err
	}

	if len(resp) == 0 {
		return "", &MalformedResponseError{RawBody: ""}
	}

	return string(resp), nil
}
