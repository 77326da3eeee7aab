// Copyright 2026 CAP Contributors
//
// cap-bundle.v1 Format
//
// A directory or ZIP archive of files plus a _meta.json manifest of
// files, produced by the assembler and consumed by the verifier.

package bundle

const Schema = "cap-bundle.v1"

// FileEntry describes one packed file's role, declared hash, and size.
type FileEntry struct {
	Role     string `json:"role"`
	SHA3     string `json:"sha3"`
	Size     int64  `json:"size"`
	Optional bool   `json:"optional"`
}

// ProofUnit is one proof obligation a bundle carries evidence for.
type ProofUnit struct {
	ID           string   `json:"id"`
	ManifestFile string   `json:"manifest_file"`
	ProofFile    string   `json:"proof_file"`
	PolicyID     string   `json:"policy_id"`
	PolicyHash   string   `json:"policy_hash"`
	Backend      string   `json:"backend"`
	DependsOn    []string `json:"depends_on,omitempty"`
}

// Meta is the _meta.json manifest of a bundle.
type Meta struct {
	Schema     string               `json:"schema"`
	BundleID   string               `json:"bundle_id"`
	CreatedAt  string               `json:"created_at"`
	Files      map[string]FileEntry `json:"files"`
	ProofUnits []ProofUnit          `json:"proof_units"`
}

// Well-known file names within a bundle.
const (
	FileMeta          = "_meta.json"
	FileManifest      = "manifest.json"
	FileProofCAPZ     = "proof.capz"
	FileProofLegacy   = "proof.dat"
	FileReadme        = "README.txt"
	FileCommitments   = "commitments.json"
	FilePolicy        = "policy.yml"
	FileTimestamp     = "timestamp.tsr"
	FileRegistry      = "registry.json"
	FileVerifyReport  = "verification.report.json"
)
