// Package session turns a refresh credential into a reusable source of
// session credentials. The session token is minted once through the
// Refresher and reused until its JWT "exp" claim says otherwise. Tokens
// that are not JWTs are treated as valid for the life of the process.
package session

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/oauth2"
)

// Refresher exchanges a refresh credential for a session credential.
// cloud.Authenticator implements it.
type Refresher interface {
	Refresh(ctx context.Context, refreshToken string) (string, error)
}

// Expiry reads the "exp" claim of a JWT without verifying its signature.
// The token comes straight from the service over TLS and is never trusted
// for anything but scheduling a refresh. ok is false for non-JWT tokens or
// tokens without an expiry.
func Expiry(token string) (exp time.Time, ok bool) {
	claims := jwt.RegisteredClaims{}

	if _, _, err := jwt.NewParser().ParseUnverified(token, &claims); err != nil {
		return time.Time{}, false
	}

	if claims.ExpiresAt == nil {
		return time.Time{}, false
	}

	return claims.ExpiresAt.Time, true
}

// refreshSource is an oauth2.TokenSource that mints a new session token on
// every call. Wrapped in oauth2.ReuseTokenSource so it only runs when the
// cached token is no longer valid.
type refreshSource struct {
	ctx       context.Context //nolint:containedctx // oauth2.TokenSource has no ctx parameter
	refresher Refresher
	refresh   string
	logger    *slog.Logger
}

func (s *refreshSource) Token() (*oauth2.Token, error) {
	raw, err := s.refresher.Refresh(s.ctx, s.refresh)
	if err != nil {
		return nil, err
	}

	tok := &oauth2.Token{AccessToken: raw, TokenType: "Bearer"}

	if exp, ok := Expiry(raw); ok {
		tok.Expiry = exp
	}

	s.logger.Info("session token minted",
		slog.Time("expiry", tok.Expiry),
		slog.Bool("jwt", !tok.Expiry.IsZero()),
	)

	return tok, nil
}

// Source hands out session tokens for storage calls. It satisfies
// cloud.TokenSource.
type Source struct {
	src    oauth2.TokenSource
	logger *slog.Logger
}

// NewSource returns a Source that refreshes refreshToken through r on first
// use and again only once the cached session token expires.
//
// ctx is bound to every refresh call and must outlive the Source.
func NewSource(ctx context.Context, r Refresher, refreshToken string, logger *slog.Logger) *Source {
	if logger == nil {
		logger = slog.Default()
	}

	rs := &refreshSource{ctx: ctx, refresher: r, refresh: refreshToken, logger: logger}

	return &Source{
		src:    oauth2.ReuseTokenSource(nil, rs),
		logger: logger,
	}
}

// Token returns the current session token, refreshing it if needed.
func (s *Source) Token() (string, error) {
	t, err := s.src.Token()
	if err != nil {
		s.logger.Warn("session token acquisition failed", slog.String("error", err.Error()))
		return "", fmt.Errorf("session: refreshing token: %w", err)
	}

	s.logger.Debug("session token acquired",
		slog.Time("expiry", t.Expiry),
		slog.Bool("valid", t.Valid()),
	)

	return t.AccessToken, nil
}
