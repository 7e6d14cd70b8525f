// Package sessions stores the live session entries: one access and one
// refresh token per (user, device), each with its own TTL. Presence of the
// refresh entry is what keeps a session alive.
package sessions

import (
	"context"
	"strconv"
	"time"

	"github.com/dmitrijs2005/sessionkeeper/internal/common"
)

// Entry is a single key/value write with its TTL.
type Entry struct {
	Key   string
	Value string
	TTL   time.Duration
}

// Store is the key-value authority for session liveness.
//
// Get returns common.ErrorNotFound for absent or expired keys. Delete ignores
// keys that do not exist. SetMany writes all entries or none.
type Store interface {
	Set(ctx context.Context, key, value string, ttl time.Duration) error
	Get(ctx context.Context, key string) (string, error)
	Delete(ctx context.Context, keys ...string) error
	SetMany(ctx context.Context, entries ...Entry) error
}

// AccessKey is the key of the access entry for a user's device.
func AccessKey(userID int64, deviceID string) string {
	return key(common.AccessTokenKeyPrefix, userID, deviceID)
}

// RefreshKey is the key of the refresh entry for a user's device.
func RefreshKey(userID int64, deviceID string) string {
	return key(common.RefreshTokenKeyPrefix, userID, deviceID)
}

func key(prefix string, userID int64, deviceID string) string {
	return prefix + ":" + strconv.FormatInt(userID, 10) + ":" + deviceID
}
