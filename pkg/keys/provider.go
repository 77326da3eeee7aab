// Copyright 2026 CAP Contributors
//
// Key Provider Abstraction
//
// A uniform interface over key material regardless of where it lives:
// software file store today, PKCS#11 HSM or cloud KMS later. Callers
// never branch on backend; they branch on the returned failure mode.

package keys

import (
	"errors"
	"fmt"

	"github.com/capassure/cap-agent/pkg/hashing"
)

// Scheme identifies a signing algorithm.
type Scheme string

const (
	SchemeEd25519  Scheme = "ed25519"
	SchemeBLS12381 Scheme = "bls12-381"
)

// Status is a key's lifecycle state.
type Status string

const (
	StatusActive  Status = "active"
	StatusRetired Status = "retired"
	StatusRevoked Status = "revoked"
)

// KID is a stable key identifier, "0x" + 64 lowercase hex.
type KID string

// DeriveKID computes KID = "0x" + hex(SHA3-256(pubkey || provider_id ||
// key_name)). Two keys with identical public key bytes but different
// provider or key name always derive distinct KIDs.
func DeriveKID(pubkey []byte, providerID, keyName string) KID {
	buf := make([]byte, 0, len(pubkey)+len(providerID)+len(keyName))
	buf = append(buf, pubkey...)
	buf = append(buf, []byte(providerID)...)
	buf = append(buf, []byte(keyName)...)
	digest := hashing.Sha3_256(buf)
	return KID(hashing.HexLowerPrefixed32(digest))
}

// Failure modes. Errors returned by a Provider must always wrap one of
// these via errors.Is, and must never embed PINs, token contents, or
// wrapped stack traces in their message.
var (
	ErrNotFound            = errors.New("keys: not found")
	ErrAuthenticationFailed = errors.New("keys: authentication failed")
	ErrTokenLocked         = errors.New("keys: token locked")
	ErrTimeout             = errors.New("keys: operation timed out")
	ErrConfigError         = errors.New("keys: configuration error")
	ErrProviderError       = errors.New("keys: provider error")
	ErrSignatureError      = errors.New("keys: signature error")
)

// Metadata describes a managed key. Only the software provider populates
// this fully; HSM/KMS-backed providers may report partial metadata.
type Metadata struct {
	KID         KID    `json:"kid"`
	ProviderID  string `json:"provider_id"`
	KeyName     string `json:"key_name"`
	Scheme      Scheme `json:"scheme"`
	Status      Status `json:"status"`
	Owner       string `json:"owner,omitempty"`
	Fingerprint string `json:"fingerprint"`
	NotBefore   string `json:"not_before,omitempty"`
	NotAfter    string `json:"not_after,omitempty"`
}

// Provider is the uniform signing-key interface.
type Provider interface {
	// ProviderID returns a short tag identifying the backend, e.g.
	// "software", "pkcs11", "cloudkms-gcp".
	ProviderID() string

	// CurrentKID returns the provider's default active key.
	CurrentKID() (KID, error)

	// Sign signs msg with kid, or with the default active key if kid is
	// empty.
	Sign(kid KID, msg []byte) ([]byte, error)

	// PublicKey returns the raw public key bytes for kid.
	PublicKey(kid KID) ([]byte, error)

	// ListKIDs enumerates every key id the provider knows about.
	ListKIDs() ([]KID, error)

	// Metadata returns the full metadata record for kid.
	Metadata(kid KID) (Metadata, error)
}

func wrapNotFound(kid KID) error {
	return fmt.Errorf("%w: %s", ErrNotFound, kid)
}
