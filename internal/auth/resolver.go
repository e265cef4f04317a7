package auth

import (
	"context"
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"net/http"
	"strings"

	"github.com/zeebo/blake3"
)

// Resolver maps a presented credential to a role. Implementations return
// RoleAnonymous (not an error) for missing or unknown credentials; errors are
// reserved for infrastructure faults in remote resolvers.
type Resolver interface {
	Resolve(ctx context.Context, credential string) (Role, error)
}

// ExtractBearer pulls the credential out of an Authorization: Bearer header.
// A missing or malformed header is not an error; the caller proceeds as
// anonymous.
func ExtractBearer(r *http.Request) (string, bool) {
	header := r.Header.Get("Authorization")
	if header == "" {
		return "", false
	}

	const prefix = "Bearer "
	if !strings.HasPrefix(header, prefix) {
		return "", false
	}

	token := strings.TrimSpace(strings.TrimPrefix(header, prefix))
	if token == "" {
		return "", false
	}
	return token, true
}

// KeyEntry is one configured API key, stored as a BLAKE3 digest so the
// resolver never holds plaintext key material.
type KeyEntry struct {
	// Digest is the lowercase hex BLAKE3-256 digest of the key.
	Digest string
	Role   Role
}

// StaticResolver resolves credentials against a fixed set of hashed keys
// loaded at startup. Lookup is linear over the configured keys with
// constant-time digest comparison; key sets are small (tens, not millions).
type StaticResolver struct {
	keys []KeyEntry
}

// NewStaticResolver validates entries and builds a resolver.
func NewStaticResolver(keys []KeyEntry) (*StaticResolver, error) {
	entries := make([]KeyEntry, 0, len(keys))
	for _, k := range keys {
		digest := strings.ToLower(strings.TrimSpace(k.Digest))
		if len(digest) != 64 {
			return nil, errors.New("auth: key digest must be 64 hex characters (blake3-256)")
		}
		if _, err := hex.DecodeString(digest); err != nil {
			return nil, errors.New("auth: key digest is not valid hex")
		}
		if _, err := ParseRole(string(k.Role)); err != nil {
			return nil, err
		}
		if k.Role == RoleAnonymous {
			return nil, errors.New("auth: keys cannot map to the anonymous role")
		}
		entries = append(entries, KeyEntry{Digest: digest, Role: k.Role})
	}
	return &StaticResolver{keys: entries}, nil
}

// Resolve hashes the credential and matches it against the configured
// digests. Unknown credentials resolve to RoleAnonymous.
func (s *StaticResolver) Resolve(_ context.Context, credential string) (Role, error) {
	if credential == "" {
		return RoleAnonymous, nil
	}

	digest := HashKey(credential)
	for _, k := range s.keys {
		if subtle.ConstantTimeCompare([]byte(digest), []byte(k.Digest)) == 1 {
			return k.Role, nil
		}
	}
	return RoleAnonymous, nil
}

// HashKey returns the lowercase hex BLAKE3-256 digest of an API key.
func HashKey(key string) string {
	sum := blake3.Sum256([]byte(key))
	return hex.EncodeToString(sum[:])
}
