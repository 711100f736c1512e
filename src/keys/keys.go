// Package keys derives deterministic, non-signable account addresses from
// seed tuples. Every record in the marketplace (agent, client state, bounty,
// vault, review, token account) lives at an address that anyone can recompute
// from public inputs, so addresses double as foreign keys.
package keys

import (
	"encoding/binary"
	"fmt"

	"filippo.io/edwards25519"
	"github.com/mr-tron/base58"
	"golang.org/x/crypto/blake2b"
)

const (
	// programTag namespaces all derived addresses away from any other
	// blake2b usage in the system.
	programTag = "moltwork/v1"

	// MaxSeedLen bounds individual seed components.
	MaxSeedLen = 32
)

// ErrSeedTooLong is returned when a seed component exceeds MaxSeedLen bytes.
var ErrSeedTooLong = fmt.Errorf("keys: seed exceeds %d bytes", MaxSeedLen)

// Derive computes the address for (namespace, seeds...) together with the
// bump that proves the derivation. Starting at bump 255 and counting down, it
// takes the first digest that does not decode as an edwards25519 point: such
// an address has no corresponding private key, so authority over it can only
// be programmatic.
func Derive(namespace string, seeds ...[]byte) (string, uint8, error) {
	for _, s := range seeds {
		if len(s) > MaxSeedLen {
			return "", 0, ErrSeedTooLong
		}
	}
	for bump := 255; bump >= 0; bump-- {
		digest := digest(namespace, seeds, uint8(bump))
		if !onCurve(digest) {
			return base58.Encode(digest[:]), uint8(bump), nil
		}
	}
	// 256 consecutive curve points is not reachable in practice.
	return "", 0, fmt.Errorf("keys: no valid bump for namespace %q", namespace)
}

// Verify recomputes the derivation and reports whether addr matches
// (namespace, seeds, bump) and is off-curve.
func Verify(addr string, bump uint8, namespace string, seeds ...[]byte) bool {
	for _, s := range seeds {
		if len(s) > MaxSeedLen {
			return false
		}
	}
	digest := digest(namespace, seeds, bump)
	if onCurve(digest) {
		return false
	}
	return base58.Encode(digest[:]) == addr
}

func digest(namespace string, seeds [][]byte, bump uint8) [32]byte {
	h, _ := blake2b.New256(nil)
	h.Write([]byte(programTag))
	h.Write([]byte{byte(len(namespace))})
	h.Write([]byte(namespace))
	for _, s := range seeds {
		h.Write([]byte{byte(len(s))})
		h.Write(s)
	}
	h.Write([]byte{bump})
	var out [32]byte
	copy(out[:], h.Sum(nil))
	return out
}

func onCurve(b [32]byte) bool {
	_, err := new(edwards25519.Point).SetBytes(b[:])
	return err == nil
}

// U64LE encodes a sequence number as fixed-width little-endian seed bytes.
func U64LE(n uint64) []byte {
	var b [8]byte
	binary.LittleEndian.PutUint64(b[:], n)
	return b[:]
}

// AddrSeed turns a base58 address into raw seed bytes. Invalid input falls
// back to the string bytes so derivation stays total; callers validate
// addresses at the boundary.
func AddrSeed(addr string) []byte {
	raw, err := base58.Decode(addr)
	if err != nil || len(raw) != 32 {
		return []byte(addr)
	}
	return raw
}

// Derivation paths used across the marketplace.

func AgentAddress(owner string) (string, uint8, error) {
	return Derive("agent", AddrSeed(owner))
}

func ClientStateAddress(owner string) (string, uint8, error) {
	return Derive("client", AddrSeed(owner))
}

func BountyAddress(client string, bountyID uint64) (string, uint8, error) {
	return Derive("bounty", AddrSeed(client), U64LE(bountyID))
}

func VaultAddress(bounty string) (string, uint8, error) {
	return Derive("vault", AddrSeed(bounty))
}

func ReviewAddress(bounty string) (string, uint8, error) {
	return Derive("review", AddrSeed(bounty))
}

func TokenAccountAddress(mint, owner string) (string, uint8, error) {
	return Derive("token", AddrSeed(mint), AddrSeed(owner))
}
