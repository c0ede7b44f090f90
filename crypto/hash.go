// Package crypto defines the hash type used throughout availcore,
// mirroring the teacher's own go.thebigfile.com/bigd/crypto package:
// a small, dependency-light wrapper rather than reaching into a
// consensus-types library for a single fixed-size array type.
package crypto

import (
	"encoding/hex"
	"fmt"

	"golang.org/x/crypto/blake2b"
)

// HashSize is the length in bytes of a Hash. The spec names Blake2b-256
// explicitly for chunk verification (spec.md §4.1), so Hash is sized
// and hashed accordingly.
const HashSize = 32

// Hash is a Blake2b-256 digest, used both as a RecoveryKey (a content
// hash of the candidate) and as an erasure root.
type Hash [HashSize]byte

// String implements fmt.Stringer.
func (h Hash) String() string {
	return hex.EncodeToString(h[:])
}

// MarshalText implements encoding.TextMarshaler so Hash can be used
// directly as a JSON map/struct field, used by the debug API.
func (h Hash) MarshalText() ([]byte, error) {
	return []byte(h.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (h *Hash) UnmarshalText(b []byte) error {
	decoded, err := hex.DecodeString(string(b))
	if err != nil {
		return fmt.Errorf("decoding hash: %w", err)
	}
	if len(decoded) != HashSize {
		return fmt.Errorf("invalid hash length %d, want %d", len(decoded), HashSize)
	}
	copy(h[:], decoded)
	return nil
}

// HashBytes returns the Blake2b-256 digest of b.
func HashBytes(b []byte) Hash {
	return Hash(blake2b.Sum256(b))
}
