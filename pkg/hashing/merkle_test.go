// Copyright 2026 CAP Contributors

package hashing

import (
	"testing"
)

func leaf(b byte) Digest {
	var d Digest
	d[0] = b
	return Sha3_256(d[:])
}

func TestBuildTree_SingleLeaf(t *testing.T) {
	l := leaf(1)
	tree, err := BuildTree([]Digest{l})
	if err != nil {
		t.Fatalf("build tree: %v", err)
	}
	if tree.Root() != l {
		t.Errorf("single leaf root mismatch: got %x want %x", tree.Root(), l)
	}
	if tree.LeafCount() != 1 {
		t.Errorf("leaf count: got %d want 1", tree.LeafCount())
	}
}

func TestBuildTree_OddLeafDuplicated(t *testing.T) {
	leaves := []Digest{leaf(1), leaf(2), leaf(3)}
	tree, err := BuildTree(leaves)
	if err != nil {
		t.Fatalf("build tree: %v", err)
	}
	sorted := sortedCopy(leaves)
	n1 := hashPair(sorted[0], sorted[1])
	n2 := hashPair(sorted[2], sorted[2])
	want := hashPair(n1, n2)
	if tree.Root() != want {
		t.Errorf("odd leaf root mismatch: got %x want %x", tree.Root(), want)
	}
}

func TestBuildTree_OrderInsensitive(t *testing.T) {
	a := []Digest{leaf(1), leaf(2), leaf(3), leaf(4)}
	b := []Digest{leaf(4), leaf(1), leaf(3), leaf(2)}

	ta, err := BuildTree(a)
	if err != nil {
		t.Fatal(err)
	}
	tb, err := BuildTree(b)
	if err != nil {
		t.Fatal(err)
	}
	if ta.Root() != tb.Root() {
		t.Errorf("root should be insensitive to input order: %x != %x", ta.Root(), tb.Root())
	}
}

func TestBuildTree_EmptyRejected(t *testing.T) {
	if _, err := BuildTree(nil); err != ErrEmptyLeafSet {
		t.Errorf("expected ErrEmptyLeafSet, got %v", err)
	}
}

func TestCompanyRoot_DomainSeparated(t *testing.T) {
	s := leaf(1)
	u := leaf(2)
	root := CompanyRoot(s, u)
	plain := Sha3_256(append(append([]byte{}, s[:]...), u[:]...))
	if root == plain {
		t.Error("company root must be domain separated from plain concatenation hash")
	}
}

func TestCommitmentRoots_Deterministic(t *testing.T) {
	suppliers := []LeafRecord{strLeaf("supplier-a"), strLeaf("supplier-b")}
	ubos := []LeafRecord{strLeaf("ubo-a")}

	s1, u1, c1, err := CommitmentRoots(suppliers, ubos)
	if err != nil {
		t.Fatal(err)
	}
	s2, u2, c2, err := CommitmentRoots(suppliers, ubos)
	if err != nil {
		t.Fatal(err)
	}
	if s1 != s2 || u1 != u2 || c1 != c2 {
		t.Error("commitment roots must be deterministic across repeated runs")
	}
}

type strLeaf string

func (s strLeaf) Encode() []byte { return []byte(s) }

func sortedCopy(d []Digest) []Digest {
	tree, _ := BuildTree(d)
	return tree.leaves
}
