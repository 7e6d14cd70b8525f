// Package auth issues and validates the signed access/refresh token pair.
// It is pure: no I/O, no shared state beyond the keys handed to NewCodec.
package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// Verification failures. Every error returned by the Verify* and Decode
// methods wraps exactly one of these.
var (
	ErrTokenMalformed = errors.New("token malformed")
	ErrTokenExpired   = errors.New("token expired")
	ErrTokenSignature = errors.New("token signature invalid")
)

// Claims is the payload shared by access and refresh tokens.
type Claims struct {
	jwt.RegisteredClaims
	UserID   int64  `json:"userId"`
	Name     string `json:"name"`
	AuthCode int    `json:"authCode"`
}

// Validate is run by the jwt parser after the registered claims checks.
func (c *Claims) Validate() error {
	if c.UserID <= 0 {
		return errors.New("userId missing")
	}
	return nil
}

// TokenPair is what login, register and refresh hand back to clients.
type TokenPair struct {
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken"`
}

type key struct {
	secret []byte
	ttl    time.Duration
}

// Codec signs tokens with HS256. Access and refresh tokens use separate keys
// so one kind cannot be replayed as the other.
type Codec struct {
	access  key
	refresh key
	now     func() time.Time
}

// NewCodec builds a Codec. Both secrets are required and must differ.
func NewCodec(accessSecret, refreshSecret string, accessTTL, refreshTTL time.Duration) (*Codec, error) {
	if accessSecret == "" || refreshSecret == "" {
		return nil, errors.New("token secrets must not be empty")
	}
	if accessSecret == refreshSecret {
		return nil, errors.New("access and refresh secrets must differ")
	}
	if accessTTL <= 0 || refreshTTL <= 0 {
		return nil, errors.New("token ttl must be positive")
	}
	return &Codec{
		access:  key{secret: []byte(accessSecret), ttl: accessTTL},
		refresh: key{secret: []byte(refreshSecret), ttl: refreshTTL},
		now:     time.Now,
	}, nil
}

// AccessTTL is the lifetime of issued access tokens.
func (c *Codec) AccessTTL() time.Duration { return c.access.ttl }

// RefreshTTL is the lifetime of issued refresh tokens.
func (c *Codec) RefreshTTL() time.Duration { return c.refresh.ttl }

// Issue mints a fresh access/refresh pair for the same identity.
func (c *Codec) Issue(name string, userID int64, authCode int) (TokenPair, error) {
	at, err := c.IssueAccess(name, userID, authCode)
	if err != nil {
		return TokenPair{}, err
	}
	rt, err := c.sign(c.refresh, name, userID, authCode)
	if err != nil {
		return TokenPair{}, fmt.Errorf("sign refresh token: %w", err)
	}
	return TokenPair{AccessToken: at, RefreshToken: rt}, nil
}

// IssueAccess mints an access token only. Used when rotating on refresh.
func (c *Codec) IssueAccess(name string, userID int64, authCode int) (string, error) {
	at, err := c.sign(c.access, name, userID, authCode)
	if err != nil {
		return "", fmt.Errorf("sign access token: %w", err)
	}
	return at, nil
}

func (c *Codec) sign(k key, name string, userID int64, authCode int) (string, error) {
	now := c.now()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, &Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(k.ttl)),
		},
		UserID:   userID,
		Name:     name,
		AuthCode: authCode,
	})
	return token.SignedString(k.secret)
}

// VerifyAccess checks signature, expiry and payload shape of an access token.
func (c *Codec) VerifyAccess(token string) (*Claims, error) {
	return c.verify(c.access, token)
}

// VerifyRefresh checks signature, expiry and payload shape of a refresh token.
func (c *Codec) VerifyRefresh(token string) (*Claims, error) {
	return c.verify(c.refresh, token)
}

func (c *Codec) verify(k key, token string) (*Claims, error) {
	claims := &Claims{}
	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(c.now),
	)

	_, err := parser.ParseWithClaims(token, claims, func(*jwt.Token) (interface{}, error) {
		return k.secret, nil
	})
	if err != nil {
		return nil, classify(err)
	}
	return claims, nil
}

// Decode reads the payload without checking the signature or expiry. The
// payload shape is still validated. Only logout relies on this.
func (c *Codec) Decode(token string) (*Claims, error) {
	claims := &Claims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrTokenMalformed, err)
	}
	if err := claims.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrTokenMalformed, err)
	}
	return claims, nil
}

func classify(err error) error {
	switch {
	case errors.Is(err, jwt.ErrTokenExpired):
		return fmt.Errorf("%w: %v", ErrTokenExpired, err)
	case errors.Is(err, jwt.ErrTokenSignatureInvalid), errors.Is(err, jwt.ErrTokenUnverifiable):
		return fmt.Errorf("%w: %v", ErrTokenSignature, err)
	default:
		return fmt.Errorf("%w: %v", ErrTokenMalformed, err)
	}
}
