// Copyright 2026 CAP Contributors
//
// Merkle Tree Construction
//
// Sorted-leaf, domain-separated Merkle trees used for the supplier and UBO
// commitment roots. The root is insensitive to the order leaves are
// supplied in: leaves are sorted lexicographically by their own hash before
// any combination happens.

package hashing

import (
	"bytes"
	"errors"
	"sort"
)

// ErrEmptyLeafSet is returned by BuildMerkleRoot when given no leaves.
var ErrEmptyLeafSet = errors.New("hashing: leaf set is empty")

// Tree is a built Merkle tree over a sorted leaf set. It keeps every level
// so that inclusion proofs can be produced later.
type Tree struct {
	leaves []Digest   // sorted input leaves
	levels [][]Digest // levels[0] == leaves, levels[len-1] == {root}
}

// BuildTree sorts leaves lexicographically by their byte value and builds a
// tree over them, duplicating a trailing odd leaf at each level.
func BuildTree(leaves []Digest) (*Tree, error) {
	if len(leaves) == 0 {
		return nil, ErrEmptyLeafSet
	}

	sorted := make([]Digest, len(leaves))
	copy(sorted, leaves)
	sort.Slice(sorted, func(i, j int) bool {
		return bytes.Compare(sorted[i][:], sorted[j][:]) < 0
	})

	levels := [][]Digest{sorted}
	current := sorted
	for len(current) > 1 {
		next := make([]Digest, 0, (len(current)+1)/2)
		for i := 0; i < len(current); i += 2 {
			if i+1 < len(current) {
				next = append(next, hashPair(current[i], current[i+1]))
			} else {
				// Odd leaf out: duplicate it against itself.
				next = append(next, hashPair(current[i], current[i]))
			}
		}
		levels = append(levels, next)
		current = next
	}

	return &Tree{leaves: sorted, levels: levels}, nil
}

// Root returns the tree's root digest.
func (t *Tree) Root() Digest {
	top := t.levels[len(t.levels)-1]
	return top[0]
}

// LeafCount returns the number of leaves the tree was built from.
func (t *Tree) LeafCount() int {
	return len(t.leaves)
}

// BuildMerkleRoot is a convenience wrapper returning just the root digest.
func BuildMerkleRoot(leaves []Digest) (Digest, error) {
	tree, err := BuildTree(leaves)
	if err != nil {
		return Digest{}, err
	}
	return tree.Root(), nil
}

// CompanyRoot combines a supplier root and a UBO root into the parent
// company commitment: SHA3-256("cap.company" || supplier_root || ubo_root).
func CompanyRoot(supplierRoot, uboRoot Digest) Digest {
	buf := make([]byte, 0, len(DomainCompany)+64)
	buf = append(buf, DomainCompany...)
	buf = append(buf, supplierRoot[:]...)
	buf = append(buf, uboRoot[:]...)
	return Sha3_256(buf)
}

// LeafRecord is anything that can be canonically encoded into a Merkle leaf.
// Encode must be a domain-separated, field-sorted string so that the leaf
// hash is stable across platforms and field orderings.
type LeafRecord interface {
	Encode() []byte
}

// HashLeaf hashes an already-encoded leaf record.
func HashLeaf(encoded []byte) Digest {
	return Sha3_256(encoded)
}

// HashLeaves hashes a batch of leaf records via their Encode method.
func HashLeaves(records []LeafRecord) []Digest {
	out := make([]Digest, len(records))
	for i, r := range records {
		out[i] = HashLeaf(r.Encode())
	}
	return out
}

// CommitmentRoots computes the three roots a manifest carries: supplier
// root, UBO root, and the company root binding both. Both leaf sets must be
// non-empty.
func CommitmentRoots(supplierLeaves, uboLeaves []LeafRecord) (supplierRoot, uboRoot, companyRoot Digest, err error) {
	supplierRoot, err = BuildMerkleRoot(HashLeaves(supplierLeaves))
	if err != nil {
		return Digest{}, Digest{}, Digest{}, err
	}
	uboRoot, err = BuildMerkleRoot(HashLeaves(uboLeaves))
	if err != nil {
		return Digest{}, Digest{}, Digest{}, err
	}
	companyRoot = CompanyRoot(supplierRoot, uboRoot)
	return supplierRoot, uboRoot, companyRoot, nil
}
