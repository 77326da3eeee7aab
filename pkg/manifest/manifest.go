// Copyright 2026 CAP Contributors
//
// Compliance Manifest
//
// The JSON record a bundle carries as its single source of truth about
// what was checked, against what policy, and when.

package manifest

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	ethcommon "github.com/ethereum/go-ethereum/common"

	"github.com/capassure/cap-agent/pkg/hashing"
)

const SchemaVersion = "1.0"

// PolicyDescriptor names the policy a manifest was produced under.
type PolicyDescriptor struct {
	Name    string `json:"name"`
	Version string `json:"version"`
	Hash    string `json:"hash"`
}

// AuditBlock captures the audit chain's tail at manifest time.
type AuditBlock struct {
	TailHex    string `json:"tail_hex"`
	EventCount int    `json:"event_count"`
}

// ProofBlock records the proof container's type and verification status.
type ProofBlock struct {
	Type   string `json:"type"`
	Status string `json:"status"`
}

// Signature is one signer's attestation over the manifest's compact form.
type Signature struct {
	KID       string `json:"kid"`
	Scheme    string `json:"scheme"`
	PublicKey string `json:"public_key"`
	Value     string `json:"value"`
}

// PrivateAnchor repeats the audit tip captured at anchor time.
type PrivateAnchor struct {
	AuditTipHex string `json:"audit_tip_hex"`
	Timestamp   string `json:"timestamp"`
}

// PublicAnchor references an external chain transaction committing to the
// manifest.
type PublicAnchor struct {
	Chain     string `json:"chain"`
	TxID      string `json:"txid"`
	Digest    string `json:"digest"`
	Timestamp string `json:"timestamp"`
}

// TimeAnchor binds a manifest to a point in time, optionally corroborated
// by a private repeat of the audit tip and a public on-chain reference.
type TimeAnchor struct {
	AuditTipHex string         `json:"audit_tip_hex"`
	CreatedAt   string         `json:"created_at"`
	Kind        string         `json:"kind"`
	Reference   string         `json:"reference,omitempty"`
	Private     *PrivateAnchor `json:"private,omitempty"`
	Public      *PublicAnchor  `json:"public,omitempty"`
}

// Validate enforces the time-anchor invariants: a private anchor's audit
// tip must match the outer tip; a public anchor's digest must be a
// well-formed 0x+64-hex string and its txid non-empty.
func (t *TimeAnchor) Validate() error {
	if t.Private != nil && t.Private.AuditTipHex != t.AuditTipHex {
		return errors.New("manifest: private anchor audit tip does not match outer audit tip")
	}
	if t.Public != nil {
		digest, ok := hashing.DecodeHexDigest(t.Public.Digest)
		if !ok {
			return fmt.Errorf("manifest: public anchor digest %q is not 0x + 64 hex chars", t.Public.Digest)
		}
		// Round-trip the digest through go-ethereum's own 32-byte hash type,
		// since the public anchor is expected to reference an EVM chain and
		// its digest format must match what that chain's tooling produces.
		if ethcommon.BytesToHash(digest[:]).Hex() != strings.ToLower(t.Public.Digest) {
			return fmt.Errorf("manifest: public anchor digest %q does not round-trip as an EVM hash", t.Public.Digest)
		}
		if t.Public.TxID == "" {
			return errors.New("manifest: public anchor txid must be non-empty")
		}
	}
	return nil
}

// Manifest is the compliance attestation record a bundle carries.
type Manifest struct {
	SchemaVersion  string            `json:"schema_version"`
	CreatedAt      string            `json:"created_at"`
	SupplierRoot   string            `json:"supplier_root"`
	UBORoot        string            `json:"ubo_root"`
	CompanyRoot    string            `json:"company_root"`
	Policy         PolicyDescriptor  `json:"policy"`
	Audit          AuditBlock        `json:"audit"`
	Proof          ProofBlock        `json:"proof"`
	Signatures     []Signature       `json:"signatures,omitempty"`
	TimeAnchor     *TimeAnchor       `json:"time_anchor,omitempty"`
}

// New builds a manifest with created_at stamped to the current UTC time.
func New(supplierRoot, uboRoot, companyRoot hashing.Digest, policy PolicyDescriptor, audit AuditBlock, proof ProofBlock) *Manifest {
	return &Manifest{
		SchemaVersion: SchemaVersion,
		CreatedAt:     time.Now().UTC().Format(time.RFC3339),
		SupplierRoot:  hashing.HexLowerPrefixed32(supplierRoot),
		UBORoot:       hashing.HexLowerPrefixed32(uboRoot),
		CompanyRoot:   hashing.HexLowerPrefixed32(companyRoot),
		Policy:        policy,
		Audit:         audit,
		Proof:         proof,
	}
}

// Validate checks structural invariants, including any time anchor.
func (m *Manifest) Validate() error {
	if m.SchemaVersion == "" {
		return errors.New("manifest: schema_version is required")
	}
	if _, ok := hashing.DecodeHexDigest(m.SupplierRoot); !ok {
		return fmt.Errorf("manifest: supplier_root %q is not a valid digest", m.SupplierRoot)
	}
	if _, ok := hashing.DecodeHexDigest(m.UBORoot); !ok {
		return fmt.Errorf("manifest: ubo_root %q is not a valid digest", m.UBORoot)
	}
	if _, ok := hashing.DecodeHexDigest(m.CompanyRoot); !ok {
		return fmt.Errorf("manifest: company_root %q is not a valid digest", m.CompanyRoot)
	}
	if m.TimeAnchor != nil {
		if err := m.TimeAnchor.Validate(); err != nil {
			return err
		}
	}
	return nil
}

// Pretty serializes the manifest with indentation, for human inspection.
func (m *Manifest) Pretty() ([]byte, error) {
	return json.MarshalIndent(m, "", "  ")
}

// Compact serializes the manifest with no extraneous whitespace. Hashing
// and signing always operate on this form, never on Pretty.
func (m *Manifest) Compact() ([]byte, error) {
	return json.Marshal(m)
}

// Hash returns the SHA3-256 digest of the manifest's compact form.
func (m *Manifest) Hash() (hashing.Digest, error) {
	b, err := m.Compact()
	if err != nil {
		return hashing.Digest{}, fmt.Errorf("manifest: compact encode: %w", err)
	}
	return hashing.Sha3_256(b), nil
}

// Parse decodes a manifest from either its pretty or compact JSON form.
func Parse(raw []byte) (*Manifest, error) {
	var m Manifest
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, fmt.Errorf("manifest: decode: %w", err)
	}
	return &m, nil
}
