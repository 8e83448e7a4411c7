package ingestkafka

import (
	"crypto/sha256"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/crypto/bcrypt"
)

// Grounded on internal/storage/hash.go's bcrypt hash/compare pair and
// internal/storage/types.go's MaskKey. The full
// APIKeyStore/PersistentKeyStore CRUD + permissions + audit-log system is
// deliberately not ported: spec.md §1 names "authentication beyond a
// shared bearer token on the ingest endpoint" as a non-goal, which bounds
// this adapter to verifying a single operator-configured token, not a
// multi-tenant key store (see DESIGN.md).

const (
	bcryptCost  = 10
	bcryptLimit = 72
)

// ErrTokenEmpty is returned when a blank token is hashed or compared.
var ErrTokenEmpty = errors.New("ingestkafka: token cannot be empty")

// TokenAuthenticator verifies bearer tokens against a single bcrypt hash
// configured at startup (INGEST_SHARED_TOKEN, spec.md §6 ambient config).
type TokenAuthenticator struct {
	hash string
}

// NewTokenAuthenticator hashes the configured shared token once at
// startup, so the hot path only ever runs a bcrypt compare.
func NewTokenAuthenticator(sharedToken string) (*TokenAuthenticator, error) {
	hash, err := hashToken(sharedToken)
	if err != nil {
		return nil, err
	}

	return &TokenAuthenticator{hash: hash}, nil
}

// Authenticate reports whether presented matches the configured shared
// token. Every non-empty token goes through bcrypt, so wrong-length and
// wrong-value tokens take the same amount of time to reject; an empty token
// is rejected immediately without a bcrypt compare.
func (a *TokenAuthenticator) Authenticate(presented string) bool {
	return compareToken(a.hash, presented)
}

func hashToken(token string) (string, error) {
	if token == "" {
		return "", ErrTokenEmpty
	}

	hash, err := bcrypt.GenerateFromPassword(bcryptInput(token), bcryptCost)
	if err != nil {
		return "", fmt.Errorf("ingestkafka: hash token: %w", err)
	}

	return string(hash), nil
}

func compareToken(hash, token string) bool {
	if hash == "" || token == "" {
		return false
	}

	return bcrypt.CompareHashAndPassword([]byte(hash), bcryptInput(token)) == nil
}

// bcryptInput pre-hashes tokens longer than bcrypt's 72-byte input limit
// with SHA-256, matching the teacher's HashAPIKey/CompareAPIKeyHash pairing.
func bcryptInput(token string) []byte {
	if len(token) <= bcryptLimit {
		return []byte(token)
	}

	sum := sha256.Sum256([]byte(token))

	return sum[:]
}

// MaskToken masks all but the first 4 and last 4 characters of a token, for
// safe logging: Consumer.handle logs the masked form of a rejected bearer
// token rather than the raw value (see internal/ingestkafka/consumer.go).
func MaskToken(token string) string {
	const visible = 4

	if len(token) <= visible*2 {
		return "****"
	}

	masked := len(token) - visible*2

	return token[:visible] + strings.Repeat("*", masked) + token[len(token)-visible:]
}
