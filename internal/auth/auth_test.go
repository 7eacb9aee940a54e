package auth

import (
	"errors"
	"testing"
)

func TestAuthorize_ValidKeys(t *testing.T) {
	g := NewGate("ingest-secret", "admin-secret")

	if err := g.Authorize("Bearer ingest-secret", RealmIngest); err != nil {
		t.Errorf("valid ingest key rejected: %v", err)
	}
	if err := g.Authorize("Bearer admin-secret", RealmAdmin); err != nil {
		t.Errorf("valid admin key rejected: %v", err)
	}
}

func TestAuthorize_RealmsNotInterchangeable(t *testing.T) {
	g := NewGate("ingest-secret", "admin-secret")

	if err := g.Authorize("Bearer admin-secret", RealmIngest); !errors.Is(err, ErrKeyMismatch) {
		t.Errorf("admin key must not open the ingest realm, got %v", err)
	}
	if err := g.Authorize("Bearer ingest-secret", RealmAdmin); !errors.Is(err, ErrKeyMismatch) {
		t.Errorf("ingest key must not open the admin realm, got %v", err)
	}
}

func TestAuthorize_DistinctFailureReasons(t *testing.T) {
	g := NewGate("ingest-secret", "admin-secret")

	cases := []struct {
		name   string
		header string
		want   error
	}{
		{"missing header", "", ErrMissingHeader},
		{"wrong scheme", "Basic abc123", ErrBadScheme},
		{"empty token", "Bearer ", ErrEmptyToken},
		{"whitespace token", "Bearer    ", ErrEmptyToken},
		{"wrong key", "Bearer nope", ErrKeyMismatch},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if err := g.Authorize(tc.header, RealmIngest); !errors.Is(err, tc.want) {
				t.Errorf("expected %v, got %v", tc.want, err)
			}
		})
	}
}
