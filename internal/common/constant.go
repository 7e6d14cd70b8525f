// Package common contains shared constants and sentinel errors used across
// the session service components.
package common

// Header names carried by every authenticated request. gRPC metadata keys
// are the lower-cased forms of the same names.
const (
	AuthorizationHeaderName = "Authorization"
	DeviceIDHeaderName      = "X-Device-Id"
	BearerPrefix            = "Bearer "
)

// Session entry key prefixes. A full key is "<prefix>:<userID>:<deviceID>".
const (
	AccessTokenKeyPrefix  = "access_token"
	RefreshTokenKeyPrefix = "refresh_token"
)

// DefaultAuthCode is the only authorization code issued today. It is kept in
// the token payload so role distinctions can be added later without changing
// the payload shape.
const DefaultAuthCode = 0
