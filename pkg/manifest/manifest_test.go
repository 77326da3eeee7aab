// Copyright 2026 CAP Contributors

package manifest

import (
	"testing"

	"github.com/capassure/cap-agent/pkg/hashing"
)

func TestManifest_HashIsCompactForm(t *testing.T) {
	m := New(hashing.Digest{1}, hashing.Digest{2}, hashing.Digest{3},
		PolicyDescriptor{Name: "lksg", Version: "v1", Hash: "0xabc"},
		AuditBlock{TailHex: "0x00", EventCount: 0},
		ProofBlock{Type: "mock", Status: "pending"})

	compact, err := m.Compact()
	if err != nil {
		t.Fatal(err)
	}
	want := hashing.Sha3_256(compact)
	got, err := m.Hash()
	if err != nil {
		t.Fatal(err)
	}
	if got != want {
		t.Fatal("expected Hash() to hash the compact encoding")
	}
}

func TestManifest_ValidateRejectsBadDigest(t *testing.T) {
	m := New(hashing.Digest{1}, hashing.Digest{2}, hashing.Digest{3},
		PolicyDescriptor{}, AuditBlock{}, ProofBlock{})
	m.SupplierRoot = "not-a-digest"
	if err := m.Validate(); err == nil {
		t.Fatal("expected validation error for malformed supplier root")
	}
}

func TestTimeAnchor_PrivateMustMatchOuterTip(t *testing.T) {
	anchor := &TimeAnchor{
		AuditTipHex: "0x" + "11" + "00000000000000000000000000000000000000000000000000000000000",
		Private:     &PrivateAnchor{AuditTipHex: "0xdeadbeef"},
	}
	if err := anchor.Validate(); err == nil {
		t.Fatal("expected mismatch between outer and private audit tips to fail validation")
	}
}

func TestTimeAnchor_PublicDigestMustBeWellFormed(t *testing.T) {
	anchor := &TimeAnchor{
		AuditTipHex: "0xabc",
		Public:      &PublicAnchor{Chain: "ethereum", TxID: "0x1", Digest: "not-hex"},
	}
	if err := anchor.Validate(); err == nil {
		t.Fatal("expected malformed public digest to fail validation")
	}
}

func TestTimeAnchor_PublicAnchorValidWithEVMHash(t *testing.T) {
	digest := hashing.HexLowerPrefixed32(hashing.Sha3_256([]byte("anchor")))
	anchor := &TimeAnchor{
		AuditTipHex: "0xabc",
		Public:      &PublicAnchor{Chain: "ethereum", TxID: "0xdeadbeef", Digest: digest},
	}
	if err := anchor.Validate(); err != nil {
		t.Fatalf("expected well-formed EVM digest to validate, got %v", err)
	}
}

func TestManifest_PrettyAndCompactRoundTrip(t *testing.T) {
	m := New(hashing.Digest{1}, hashing.Digest{2}, hashing.Digest{3},
		PolicyDescriptor{Name: "lksg", Version: "v1", Hash: "0xabc"},
		AuditBlock{TailHex: "0x00", EventCount: 0},
		ProofBlock{Type: "mock", Status: "pending"})

	pretty, err := m.Pretty()
	if err != nil {
		t.Fatal(err)
	}
	parsed, err := Parse(pretty)
	if err != nil {
		t.Fatal(err)
	}
	if parsed.SupplierRoot != m.SupplierRoot {
		t.Fatal("expected pretty round trip to preserve fields")
	}
}
