// Package authn gates protected calls. A request is admitted only when its
// access token verifies and the paired refresh entry for the same user and
// device is still present and valid in the session store.
package authn

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/dmitrijs2005/sessionkeeper/internal/common"
	"github.com/dmitrijs2005/sessionkeeper/internal/server/auth"
	"github.com/dmitrijs2005/sessionkeeper/internal/server/repositories/sessions"
)

// Outcome labels passed to an observer.
const (
	OutcomeAdmitted            = "admitted"
	OutcomeTokenRequired       = "token_required"
	OutcomeAccessExpired       = "access_expired"
	OutcomeInvalidRefreshToken = "invalid_refresh_token"
	OutcomeRefreshExpired      = "refresh_expired"
	OutcomeStoreError          = "store_error"
)

type Authenticator struct {
	codec   *auth.Codec
	store   sessions.Store
	observe func(outcome string)
}

type Option func(*Authenticator)

// WithObserver reports the outcome of every Authenticate call.
func WithObserver(fn func(outcome string)) Option {
	return func(a *Authenticator) { a.observe = fn }
}

func New(codec *auth.Codec, store sessions.Store, opts ...Option) *Authenticator {
	a := &Authenticator{codec: codec, store: store, observe: func(string) {}}
	for _, o := range opts {
		o(a)
	}
	return a
}

// BearerToken extracts the token from an "Authorization: Bearer <token>"
// value. The scheme is matched case-insensitively.
func BearerToken(header string) (string, bool) {
	if len(header) < len(common.BearerPrefix) || !strings.EqualFold(header[:len(common.BearerPrefix)], common.BearerPrefix) {
		return "", false
	}
	token := strings.TrimSpace(header[len(common.BearerPrefix):])
	if token == "" || strings.ContainsAny(token, " \t") {
		return "", false
	}
	return token, true
}

// Authenticate runs the gates in order and returns the access token claims
// on success. deviceID is used verbatim; an empty value is its own device.
func (a *Authenticator) Authenticate(ctx context.Context, authorization, deviceID string) (*auth.Claims, error) {
	claims, outcome, err := a.authenticate(ctx, authorization, deviceID)
	a.observe(outcome)
	return claims, err
}

func (a *Authenticator) authenticate(ctx context.Context, authorization, deviceID string) (*auth.Claims, string, error) {
	token, ok := BearerToken(authorization)
	if !ok {
		return nil, OutcomeTokenRequired, common.ErrTokenRequired
	}

	claims, err := a.codec.VerifyAccess(token)
	if err != nil {
		return nil, OutcomeAccessExpired, fmt.Errorf("%w: %v", common.ErrAccessExpired, err)
	}

	stored, err := a.store.Get(ctx, sessions.RefreshKey(claims.UserID, deviceID))
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return nil, OutcomeInvalidRefreshToken, common.ErrInvalidRefreshToken
		}
		return nil, OutcomeStoreError, fmt.Errorf("error reading session: %w", err)
	}

	if _, err := a.codec.VerifyRefresh(stored); err != nil {
		return nil, OutcomeRefreshExpired, fmt.Errorf("%w: %v", common.ErrRefreshExpired, err)
	}

	return claims, OutcomeAdmitted, nil
}

type claimsKey struct{}

// WithClaims stores admitted claims in ctx.
func WithClaims(ctx context.Context, c *auth.Claims) context.Context {
	return context.WithValue(ctx, claimsKey{}, c)
}

// ClaimsFromContext returns the claims stored by WithClaims.
func ClaimsFromContext(ctx context.Context) (*auth.Claims, bool) {
	c, ok := ctx.Value(claimsKey{}).(*auth.Claims)
	return c, ok && c != nil
}
