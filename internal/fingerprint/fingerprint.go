// Package fingerprint computes content digests and parameter
// fingerprints shared by the persistent node store and the universal
// cache.
package fingerprint

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"

	"github.com/cespare/xxhash/v2"
)

// Algorithm selects the digest function. xxhash is the fast default;
// sha256 is offered for deployments that want a cryptographically strong
// anchor at the cost of speed.
type Algorithm string

const (
	XXHash Algorithm = "xxhash"
	SHA256 Algorithm = "sha256"
)

// Digest computes a hex-encoded content digest over data using algo.
// An unrecognized algorithm falls back to xxhash.
func Digest(algo Algorithm, data []byte) string {
	switch algo {
	case SHA256:
		sum := sha256.Sum256(data)
		return hex.EncodeToString(sum[:])
	default:
		return fmt.Sprintf("%016x", xxhash.Sum64(data))
	}
}

// Params fingerprints request parameters: it re-marshals params through
// encoding/json (which sorts map keys and strips insignificant
// whitespace) and digests the result. A value that fails to marshal is
// treated as non-deterministic and reported via the returned error; the
// caller must treat such params as non-cacheable.
func Params(algo Algorithm, params any) (string, error) {
	if params == nil {
		return Digest(algo, []byte("null")), nil
	}
	normalized, err := json.Marshal(params)
	if err != nil {
		return "", fmt.Errorf("fingerprint: params not deterministic: %w", err)
	}
	return Digest(algo, normalized), nil
}
