// Package auth is the admission gate: it validates bearer credentials
// against pre-shared keys before a request may touch the queue or the
// store.
package auth

import (
	"crypto/hmac"
	"crypto/sha256"
	"errors"
	"strings"
)

// Realm selects which trust domain a request claims. Ingestion and admin
// use distinct secrets and are never interchangeable.
type Realm int

const (
	RealmIngest Realm = iota
	RealmAdmin
)

// Distinct failure reasons. All of them resolve externally to the same
// unauthorized outcome; the distinction exists for logging.
var (
	ErrMissingHeader = errors.New("missing authorization header")
	ErrBadScheme     = errors.New("authorization scheme must be Bearer")
	ErrEmptyToken    = errors.New("empty bearer token")
	ErrKeyMismatch   = errors.New("credential mismatch")
)

const bearerPrefix = "Bearer "

// Gate holds the SHA-256 digests of the configured secrets. Comparing
// fixed-length digests keeps the comparison constant-time regardless of
// token length.
type Gate struct {
	ingest [sha256.Size]byte
	admin  [sha256.Size]byte
}

// NewGate builds a gate from the two configured shared secrets.
func NewGate(ingestKey, adminKey string) *Gate {
	return &Gate{
		ingest: sha256.Sum256([]byte(ingestKey)),
		admin:  sha256.Sum256([]byte(adminKey)),
	}
}

// Authorize checks an Authorization header value against the secret of the
// given realm.
func (g *Gate) Authorize(header string, realm Realm) error {
	if header == "" {
		return ErrMissingHeader
	}
	if !strings.HasPrefix(header, bearerPrefix) {
		return ErrBadScheme
	}
	token := strings.TrimSpace(strings.TrimPrefix(header, bearerPrefix))
	if token == "" {
		return ErrEmptyToken
	}

	digest := sha256.Sum256([]byte(token))
	want := g.ingest
	if realm == RealmAdmin {
		want = g.admin
	}
	if !hmac.Equal(digest[:], want[:]) {
		return ErrKeyMismatch
	}
	return nil
}
