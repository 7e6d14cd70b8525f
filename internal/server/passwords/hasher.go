// Package passwords hashes and verifies user passwords with bcrypt.
//
// Stored hashes carry the "$2y$" tag used by the PHP side of the system.
// Go's bcrypt emits and reads "$2a$"; the three tags describe the same
// algorithm, so the prefix is rewritten on the way in and out.
package passwords

import (
	"strings"

	"golang.org/x/crypto/bcrypt"
)

// maxPasswordBytes is the bcrypt input limit. Longer passwords are cut to it,
// as the node and PHP bcrypt implementations do.
const maxPasswordBytes = 72

const (
	goPrefix     = "$2a$"
	storedPrefix = "$2y$"
	nodePrefix   = "$2b$"
)

// Hasher hashes and verifies passwords using bcrypt. Callers must not log or
// persist plaintext passwords.
type Hasher struct {
	Cost int
}

// NewHasher returns a Hasher with the given bcrypt cost clamped to
// [bcrypt.MinCost, bcrypt.MaxCost]. A non-positive cost selects bcrypt.DefaultCost.
func NewHasher(cost int) *Hasher {
	if cost <= 0 {
		cost = bcrypt.DefaultCost
	}
	if cost < bcrypt.MinCost {
		cost = bcrypt.MinCost
	}
	if cost > bcrypt.MaxCost {
		cost = bcrypt.MaxCost
	}
	return &Hasher{Cost: cost}
}

// Hash produces a storable "$2y$" bcrypt hash of password. Only the first
// 72 bytes of password are significant.
func (h *Hasher) Hash(password string) (string, error) {
	b, err := bcrypt.GenerateFromPassword(truncate(password), h.Cost)
	if err != nil {
		return "", err
	}
	return toStored(string(b)), nil
}

// Compare reports whether plain matches stored. Malformed hashes yield false.
func (h *Hasher) Compare(plain, stored string) bool {
	return bcrypt.CompareHashAndPassword([]byte(toGo(stored)), truncate(plain)) == nil
}

func truncate(password string) []byte {
	b := []byte(password)
	if len(b) > maxPasswordBytes {
		b = b[:maxPasswordBytes]
	}
	return b
}

func toStored(hash string) string {
	if strings.HasPrefix(hash, goPrefix) {
		return storedPrefix + hash[len(goPrefix):]
	}
	return hash
}

func toGo(hash string) string {
	for _, p := range []string{storedPrefix, nodePrefix} {
		if strings.HasPrefix(hash, p) {
			return goPrefix + hash[len(p):]
		}
	}
	return hash
}
