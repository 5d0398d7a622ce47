// Package authtoken guards the admin API's single management secret.
// Unlike a per-project token store, there is exactly one secret for
// the life of a coordinator process: it is hashed once at startup and
// verified against whatever bearer token each admin API request
// carries. There is no persisted hash to read back and no legacy
// plaintext value to stay compatible with, so the verification path
// never branches on the stored value's format.
package authtoken

import (
	"crypto/sha256"
	"errors"
	"fmt"

	"golang.org/x/crypto/bcrypt"
)

// DefaultBcryptCost balances hashing cost against the admin API's
// per-request verification latency.
const DefaultBcryptCost = 10

// ErrEmptySecret is returned when constructing a ManagementSecret from
// an empty string.
var ErrEmptySecret = errors.New("authtoken: management secret cannot be empty")

// ManagementSecret holds the bcrypt hash of the admin API's management
// token in memory. It is built once from the configured plaintext
// token and never exposes that hash for storage.
type ManagementSecret struct {
	hash []byte
}

// NewManagementSecret hashes secret at DefaultBcryptCost.
func NewManagementSecret(secret string) (*ManagementSecret, error) {
	return NewManagementSecretWithCost(secret, DefaultBcryptCost)
}

// NewManagementSecretWithCost hashes secret at a custom bcrypt cost.
func NewManagementSecretWithCost(secret string, cost int) (*ManagementSecret, error) {
	if secret == "" {
		return nil, ErrEmptySecret
	}
	if cost < bcrypt.MinCost || cost > bcrypt.MaxCost {
		return nil, fmt.Errorf("authtoken: bcrypt cost must be between %d and %d", bcrypt.MinCost, bcrypt.MaxCost)
	}
	hash, err := bcrypt.GenerateFromPassword(preHash(secret), cost)
	if err != nil {
		return nil, fmt.Errorf("authtoken: failed to hash management secret: %w", err)
	}
	return &ManagementSecret{hash: hash}, nil
}

// Verify reports whether candidate is the secret this ManagementSecret
// was built from.
func (m *ManagementSecret) Verify(candidate string) bool {
	if candidate == "" {
		return false
	}
	return bcrypt.CompareHashAndPassword(m.hash, preHash(candidate)) == nil
}

// preHash collapses an input longer than bcrypt's 72-byte limit down
// to a fixed-size SHA-256 digest before hashing.
func preHash(secret string) []byte {
	input := []byte(secret)
	if len(input) > 72 {
		sum := sha256.Sum256(input)
		return sum[:]
	}
	return input
}
