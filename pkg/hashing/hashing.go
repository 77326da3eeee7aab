// Copyright 2026 CAP Contributors
//
// Canonical Hashing Primitives
//
// sha3_256, hex encoding, and the domain-separated Merkle construction that
// every commitment root in the system is built from.

package hashing

import (
	"encoding/hex"

	"golang.org/x/crypto/sha3"
)

const (
	// DomainNode separates internal Merkle node hashing from any other use
	// of SHA3-256 in the system.
	DomainNode = "cap.node"

	// DomainCompany separates the company-root combination step.
	DomainCompany = "cap.company"
)

// Digest is a 32-byte SHA3-256 output.
type Digest [32]byte

// Sha3_256 hashes b and returns the raw 32-byte digest.
func Sha3_256(b []byte) Digest {
	return sha3.Sum256(b)
}

// HexLowerPrefixed32 renders a 32-byte digest as "0x" + 64 lowercase hex
// characters.
func HexLowerPrefixed32(d Digest) string {
	return "0x" + hex.EncodeToString(d[:])
}

// HexLowerPrefixed hashes b and returns the prefixed hex string directly.
func HexLowerPrefixed(b []byte) string {
	d := Sha3_256(b)
	return HexLowerPrefixed32(d)
}

// DecodeHexDigest parses a "0x"+64-hex string back into a Digest.
func DecodeHexDigest(s string) (Digest, bool) {
	var d Digest
	if len(s) != 66 || s[0] != '0' || s[1] != 'x' {
		return d, false
	}
	raw, err := hex.DecodeString(s[2:])
	if err != nil || len(raw) != 32 {
		return d, false
	}
	copy(d[:], raw)
	return d, true
}

// ZeroDigestHex is the genesis digest used by the audit chain: "0x" followed
// by 64 zero hex characters.
const ZeroDigestHex = "0x0000000000000000000000000000000000000000000000000000000000000000"

// hashPair computes the domain-separated parent-node hash
// SHA3-256("cap.node" || left || right).
func hashPair(left, right Digest) Digest {
	buf := make([]byte, 0, len(DomainNode)+64)
	buf = append(buf, DomainNode...)
	buf = append(buf, left[:]...)
	buf = append(buf, right[:]...)
	return Sha3_256(buf)
}
