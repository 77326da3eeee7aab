// Copyright 2026 CAP Contributors
//
// Bundle Verifier
//
// A six-phase pipeline: source detection, atomic load (with a ZIP
// pre-flight safety check and a TOCTOU defense), integrity, structural
// checks, statement validation, and optional checks.

package bundle

import (
	"archive/zip"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/capassure/cap-agent/pkg/hashing"
	"github.com/capassure/cap-agent/pkg/manifest"
)

// Source-kind sentinel errors.
var (
	ErrNotABundleSource = errors.New("bundle: path is neither a directory nor a .zip file")

	ErrZipTooManyFiles   = errors.New("bundle: zip has too many entries")
	ErrZipTooLarge       = errors.New("bundle: zip uncompressed size too large")
	ErrZipSuspiciousRatio = errors.New("bundle: zip entry compression ratio too high")
	ErrZipUnsafePath     = errors.New("bundle: Path traversal detected in zip entry path")
)

const (
	maxZipFiles           = 10_000
	maxZipUncompressedTot = 500 * 1024 * 1024
	maxZipRatio           = 100
)

// Source identifies where a bundle's bytes come from.
type Source struct {
	Path  string
	IsZip bool
}

// BundleSourceFromPath classifies p as a directory or a .zip file.
func BundleSourceFromPath(p string) (Source, error) {
	info, err := os.Stat(p)
	if err != nil {
		return Source{}, fmt.Errorf("bundle: stat %s: %w", p, err)
	}
	if info.IsDir() {
		return Source{Path: p, IsZip: false}, nil
	}
	if strings.EqualFold(filepath.Ext(p), ".zip") {
		return Source{Path: p, IsZip: true}, nil
	}
	return Source{}, fmt.Errorf("%w: %s", ErrNotABundleSource, p)
}

// LoadBundleAtomic reads every file _meta.json references into an
// in-memory map before any hash check runs, so later phases never
// re-read from disk — the TOCTOU defense.
func LoadBundleAtomic(src Source) (map[string][]byte, *Meta, error) {
	if src.IsZip {
		return loadZipAtomic(src.Path)
	}
	return loadDirAtomic(src.Path)
}

func loadDirAtomic(dir string) (map[string][]byte, *Meta, error) {
	metaBytes, err := os.ReadFile(filepath.Join(dir, FileMeta))
	if err != nil {
		return nil, nil, fmt.Errorf("bundle: read _meta.json: %w", err)
	}
	var meta Meta
	if err := json.Unmarshal(metaBytes, &meta); err != nil {
		return nil, nil, fmt.Errorf("bundle: parse _meta.json: %w", err)
	}

	files := map[string][]byte{FileMeta: metaBytes}
	for name, entry := range meta.Files {
		b, err := os.ReadFile(filepath.Join(dir, name))
		if err != nil {
			if entry.Optional && os.IsNotExist(err) {
				continue
			}
			return nil, nil, fmt.Errorf("bundle: read %s: %w", name, err)
		}
		files[name] = b
	}
	return files, &meta, nil
}

func loadZipAtomic(path string) (map[string][]byte, *Meta, error) {
	zr, err := zip.OpenReader(path)
	if err != nil {
		return nil, nil, fmt.Errorf("bundle: open zip: %w", err)
	}
	defer zr.Close()

	if len(zr.File) > maxZipFiles {
		return nil, nil, fmt.Errorf("%w: %d entries", ErrZipTooManyFiles, len(zr.File))
	}

	var totalUncompressed uint64
	for _, f := range zr.File {
		if strings.Contains(f.Name, "..") || filepath.IsAbs(f.Name) {
			return nil, nil, fmt.Errorf("%w: %s", ErrZipUnsafePath, f.Name)
		}
		totalUncompressed += f.UncompressedSize64
		if totalUncompressed > maxZipUncompressedTot {
			return nil, nil, fmt.Errorf("%w: exceeds %d bytes", ErrZipTooLarge, maxZipUncompressedTot)
		}
		if f.CompressedSize64 > 0 {
			ratio := f.UncompressedSize64 / f.CompressedSize64
			if ratio > maxZipRatio {
				return nil, nil, fmt.Errorf("%w: %s has ratio %d", ErrZipSuspiciousRatio, f.Name, ratio)
			}
		}
	}

	raw := map[string][]byte{}
	for _, f := range zr.File {
		rc, err := f.Open()
		if err != nil {
			return nil, nil, fmt.Errorf("bundle: open zip entry %s: %w", f.Name, err)
		}
		b, err := io.ReadAll(rc)
		rc.Close()
		if err != nil {
			return nil, nil, fmt.Errorf("bundle: read zip entry %s: %w", f.Name, err)
		}
		raw[f.Name] = b
	}

	metaBytes, ok := raw[FileMeta]
	if !ok {
		return nil, nil, fmt.Errorf("bundle: zip missing %s", FileMeta)
	}
	var meta Meta
	if err := json.Unmarshal(metaBytes, &meta); err != nil {
		return nil, nil, fmt.Errorf("bundle: parse _meta.json: %w", err)
	}

	files := map[string][]byte{FileMeta: metaBytes}
	for name, entry := range meta.Files {
		b, ok := raw[name]
		if !ok {
			if entry.Optional {
				continue
			}
			return nil, nil, fmt.Errorf("bundle: zip missing required file %s", name)
		}
		files[name] = b
	}
	return files, &meta, nil
}

// Report is the result of a full bundle verification.
type Report struct {
	Status          string         `json:"status"` // "ok" | "fail"
	ManifestHash    string         `json:"manifest_hash,omitempty"`
	ProofHash       string         `json:"proof_hash,omitempty"`
	SignatureValid  bool           `json:"signature_valid"`
	TimestampValid  *bool          `json:"timestamp_valid,omitempty"`
	RegistryMatch   *bool          `json:"registry_match,omitempty"`
	Details         map[string]any `json:"details"`
	Error           string         `json:"error,omitempty"`
}

// VerifyOptions toggles the optional phase-6 checks.
type VerifyOptions struct {
	CheckTimestamp bool
	CheckRegistry  bool
}

func fail(details map[string]any, format string, args ...interface{}) *Report {
	return &Report{Status: "fail", Details: details, Error: fmt.Sprintf(format, args...)}
}

// Verify runs the full six-phase pipeline against src.
func Verify(src Source, opts VerifyOptions) (*Report, error) {
	details := map[string]any{}

	files, meta, err := LoadBundleAtomic(src)
	if err != nil {
		return nil, err
	}

	// Phase 3: integrity.
	for name, entry := range meta.Files {
		content, ok := files[name]
		if !ok {
			if entry.Optional {
				continue
			}
			return fail(details, "required file %s missing from bundle", name), nil
		}
		digest := hashing.Sha3_256(content)
		got := hashing.HexLowerPrefixed32(digest)
		if got != entry.SHA3 {
			if name == FileManifest {
				return fail(details, "Manifest hash mismatch: declared %s, computed %s", entry.SHA3, got), nil
			}
			return fail(details, "file %s hash mismatch: declared %s, computed %s", name, entry.SHA3, got), nil
		}
	}
	details["integrity"] = "ok"

	// Phase 4: structural checks.
	if err := checkAcyclic(meta.ProofUnits); err != nil {
		return fail(details, "proof unit dependency graph: %v", err), nil
	}
	details["dependency_graph"] = "acyclic"

	manifestBytes, ok := files[FileManifest]
	if !ok {
		return fail(details, "manifest.json missing from bundle"), nil
	}
	man, err := manifest.Parse(manifestBytes)
	if err != nil {
		return fail(details, "parse manifest.json: %v", err), nil
	}
	if err := man.Validate(); err != nil {
		return fail(details, "manifest validation: %v", err), nil
	}

	manifestHash, err := man.Hash()
	if err != nil {
		return fail(details, "hash manifest: %v", err), nil
	}
	manifestHashHex := hashing.HexLowerPrefixed32(manifestHash)

	// Phase 5: statement validation.
	if len(meta.ProofUnits) > 0 {
		unit := meta.ProofUnits[0]
		if unit.PolicyHash != man.Policy.Hash {
			return fail(details, "policy hash mismatch: proof unit declares %s, manifest declares %s", unit.PolicyHash, man.Policy.Hash), nil
		}
		details["policy_hash_match"] = true
		details["company_commitment_root"] = man.CompanyRoot
	}

	report := &Report{
		Status:         "ok",
		ManifestHash:   manifestHashHex,
		SignatureValid: len(man.Signatures) > 0,
		Details:        details,
	}

	if proofBytes, ok := files[FileProofCAPZ]; ok {
		proofDigest := hashing.Sha3_256(proofBytes)
		report.ProofHash = hashing.HexLowerPrefixed32(proofDigest)
	}

	// Phase 6: optional checks.
	if opts.CheckTimestamp {
		ok := man.TimeAnchor != nil && man.TimeAnchor.Validate() == nil
		report.TimestampValid = &ok
		if !ok {
			report.Status = "fail"
			report.Error = "time anchor check requested but manifest has no valid time anchor"
		}
	}
	if opts.CheckRegistry {
		// Registry reconciliation is not implemented in the MVP; report
		// unmatched rather than silently skipping the requested check.
		falseVal := false
		report.RegistryMatch = &falseVal
	}

	return report, nil
}

// checkAcyclic runs a three-color DFS over the proof-unit dependency
// graph declared by depends_on edges.
func checkAcyclic(units []ProofUnit) error {
	const (
		white = 0
		gray  = 1
		black = 2
	)
	byID := make(map[string]ProofUnit, len(units))
	for _, u := range units {
		byID[u.ID] = u
	}
	color := make(map[string]int, len(units))

	var visit func(id string) error
	visit = func(id string) error {
		switch color[id] {
		case gray:
			return fmt.Errorf("cycle detected at %s", id)
		case black:
			return nil
		}
		color[id] = gray
		for _, dep := range byID[id].DependsOn {
			if _, ok := byID[dep]; !ok {
				return fmt.Errorf("proof unit %s depends on unknown unit %s", id, dep)
			}
			if err := visit(dep); err != nil {
				return err
			}
		}
		color[id] = black
		return nil
	}

	for _, u := range units {
		if err := visit(u.ID); err != nil {
			return err
		}
	}
	return nil
}
