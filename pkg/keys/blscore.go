// Copyright 2026 CAP Contributors
//
// BLS12-381 single-signer core, adapted from a multi-validator aggregation
// library down to the sign/verify subset this repository exercises.
// Aggregation is out of scope: this repository never combines signatures
// across signers, so AggregateSignatures/AggregatePublicKeys and their
// pairing-batch variants are not carried over.

package keys

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"math/big"
	"sync"

	bls12381 "github.com/consensys/gnark-crypto/ecc/bls12-381"
	"github.com/consensys/gnark-crypto/ecc/bls12-381/fr"
)

var (
	blsInitOnce sync.Once
	blsG1Gen    bls12381.G1Affine
	blsG2Gen    bls12381.G2Affine
)

const (
	blsPrivateKeySize = 32
	blsPublicKeySize  = 96
	blsSignatureSize  = 48

	// domainAttestation separates CAP bundle-attestation signatures from
	// any other use of the same key material.
	domainAttestation = "CAP_ATTESTATION_V1"
)

func blsInitialize() {
	blsInitOnce.Do(func() {
		_, _, g1, g2 := bls12381.Generators()
		blsG1Gen = g1
		blsG2Gen = g2
	})
}

// blsPrivateKey is a BLS12-381 scalar in Fr.
type blsPrivateKey struct {
	scalar fr.Element
}

// blsPublicKey is a point on G2.
type blsPublicKey struct {
	point bls12381.G2Affine
}

// blsSignature is a point on G1.
type blsSignature struct {
	point bls12381.G1Affine
}

// blsGenerateKeyPair draws a fresh random seed and derives the private key
// from it via blsPrivateKeyFromSeed, the same derivation path used for
// deterministic keys, so both share exactly one seed-to-scalar routine.
func blsGenerateKeyPair() (*blsPrivateKey, *blsPublicKey, error) {
	blsInitialize()
	seed, err := blsRandomBytes(32)
	if err != nil {
		return nil, nil, fmt.Errorf("keys: generate bls scalar: %w", err)
	}
	priv, err := blsPrivateKeyFromSeed(seed)
	if err != nil {
		return nil, nil, fmt.Errorf("keys: generate bls scalar: %w", err)
	}
	return priv, priv.PublicKey(), nil
}

func blsPrivateKeyFromSeed(seed []byte) (*blsPrivateKey, error) {
	blsInitialize()
	if len(seed) < 32 {
		return nil, errors.New("keys: bls seed must be at least 32 bytes")
	}
	hash := sha256.Sum256(seed)
	var sk fr.Element
	sk.SetBytes(hash[:])
	return &blsPrivateKey{scalar: sk}, nil
}

func blsPrivateKeyFromBytes(data []byte) (*blsPrivateKey, error) {
	blsInitialize()
	if len(data) != blsPrivateKeySize {
		return nil, fmt.Errorf("keys: invalid bls private key size: got %d, want %d", len(data), blsPrivateKeySize)
	}
	var sk fr.Element
	sk.SetBytes(data)
	return &blsPrivateKey{scalar: sk}, nil
}

func blsPublicKeyFromBytes(data []byte) (*blsPublicKey, error) {
	blsInitialize()
	var pk bls12381.G2Affine
	if _, err := pk.SetBytes(data); err != nil {
		return nil, fmt.Errorf("keys: decode bls public key: %w", err)
	}
	return &blsPublicKey{point: pk}, nil
}

func blsSignatureFromBytes(data []byte) (*blsSignature, error) {
	blsInitialize()
	var sig bls12381.G1Affine
	if _, err := sig.SetBytes(data); err != nil {
		return nil, fmt.Errorf("keys: decode bls signature: %w", err)
	}
	return &blsSignature{point: sig}, nil
}

func (sk *blsPrivateKey) Bytes() []byte {
	b := sk.scalar.Bytes()
	return b[:]
}

func (sk *blsPrivateKey) Hex() string { return hex.EncodeToString(sk.Bytes()) }

// PublicKey derives pk = sk * G2.
func (sk *blsPrivateKey) PublicKey() *blsPublicKey {
	blsInitialize()
	var pk bls12381.G2Affine
	var skBig big.Int
	sk.scalar.BigInt(&skBig)
	pk.ScalarMultiplication(&blsG2Gen, &skBig)
	return &blsPublicKey{point: pk}
}

// Sign computes sig = sk * H(domain || message).
func (sk *blsPrivateKey) Sign(message []byte) *blsSignature {
	h := blsHashToG1(blsDomainMessage(domainAttestation, message))
	var sig bls12381.G1Affine
	var skBig big.Int
	sk.scalar.BigInt(&skBig)
	sig.ScalarMultiplication(&h, &skBig)
	return &blsSignature{point: sig}
}

func (pk *blsPublicKey) Bytes() []byte {
	b := pk.point.Bytes()
	return b[:]
}

func (pk *blsPublicKey) Hex() string { return hex.EncodeToString(pk.Bytes()) }

// Verify checks e(sig, G2) == e(H(domain||msg), pk) via a pairing check.
func (pk *blsPublicKey) Verify(sig *blsSignature, message []byte) bool {
	blsInitialize()
	h := blsHashToG1(blsDomainMessage(domainAttestation, message))
	var negPk bls12381.G2Affine
	negPk.Neg(&pk.point)
	ok, err := bls12381.PairingCheck(
		[]bls12381.G1Affine{sig.point, h},
		[]bls12381.G2Affine{blsG2Gen, negPk},
	)
	return err == nil && ok
}

func (sig *blsSignature) Bytes() []byte {
	b := sig.point.Bytes()
	return b[:]
}

func blsDomainMessage(domain string, message []byte) []byte {
	h := sha256.New()
	h.Write([]byte(domain))
	h.Write(message)
	return h.Sum(nil)
}

// blsHashToG1 hashes a message to a point on G1 using a counter-based
// try-and-increment construction.
func blsHashToG1(message []byte) bls12381.G1Affine {
	blsInitialize()
	h := sha256.New()
	h.Write([]byte("BLS_SIG_BLS12381G1_XMD:SHA-256_SSWU_RO_"))
	h.Write(message)

	var counter uint64
	for {
		h2 := sha256.New()
		h2.Write(h.Sum(nil))
		binary.Write(h2, binary.BigEndian, counter)
		hash := h2.Sum(nil)

		var point bls12381.G1Affine
		if _, err := point.SetBytes(hash); err == nil && !point.IsInfinity() {
			return point
		}

		var scalar fr.Element
		scalar.SetBytes(hash)
		var scalarBig big.Int
		scalar.BigInt(&scalarBig)

		var result bls12381.G1Affine
		result.ScalarMultiplication(&blsG1Gen, &scalarBig)
		if !result.IsInfinity() {
			return result
		}

		counter++
		if counter > 1000 {
			return blsG1Gen
		}
	}
}

func blsRandomBytes(n int) ([]byte, error) {
	b := make([]byte, n)
	if _, err := io.ReadFull(rand.Reader, b); err != nil {
		return nil, fmt.Errorf("keys: read random bytes: %w", err)
	}
	return b, nil
}
