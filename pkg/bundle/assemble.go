// Copyright 2026 CAP Contributors
//
// Bundle Assembler
//
// Packs a manifest, a proof container, and optional supporting files
// into a cap-bundle.v1 directory or ZIP archive.

package bundle

import (
	"archive/zip"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/capassure/cap-agent/pkg/hashing"
)

// Input is one file to pack, with its role and whether it's optional.
type Input struct {
	Name     string
	Bytes    []byte
	Role     string
	Optional bool
}

// AssembleOptions configures output shape.
type AssembleOptions struct {
	OutputPath string
	AsZip      bool
	Force      bool
	ProofUnits []ProofUnit
}

var ErrOutputExists = errors.New("bundle: output already exists")

// readmeTemplate is the human-readable provenance note packed into every
// bundle.
const readmeTemplate = `This is a %s bundle, id %s, created %s.
It is a self-contained compliance attestation package: see manifest.json
for the attested commitment roots and policy descriptor, and _meta.json
for the full file manifest and proof-unit dependency graph.
`

// Assemble packs inputs into either a directory or ZIP at opts.OutputPath.
func Assemble(inputs []Input, opts AssembleOptions) (*Meta, error) {
	if _, err := os.Stat(opts.OutputPath); err == nil && !opts.Force {
		return nil, fmt.Errorf("%w: %s", ErrOutputExists, opts.OutputPath)
	}

	bundleID := uuid.New().String()
	createdAt := time.Now().UTC().Format(time.RFC3339)

	meta := &Meta{
		Schema:     Schema,
		BundleID:   bundleID,
		CreatedAt:  createdAt,
		Files:      make(map[string]FileEntry, len(inputs)+1),
		ProofUnits: opts.ProofUnits,
	}

	sorted := make([]Input, len(inputs))
	copy(sorted, inputs)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Name < sorted[j].Name })

	for _, in := range sorted {
		digest := hashing.Sha3_256(in.Bytes)
		meta.Files[in.Name] = FileEntry{
			Role:     in.Role,
			SHA3:     hashing.HexLowerPrefixed32(digest),
			Size:     int64(len(in.Bytes)),
			Optional: in.Optional,
		}
	}

	readme := []byte(fmt.Sprintf(readmeTemplate, Schema, bundleID, createdAt))
	metaBytes, err := encodeMeta(meta)
	if err != nil {
		return nil, err
	}

	if opts.AsZip {
		if err := writeZip(opts.OutputPath, metaBytes, readme, sorted); err != nil {
			return nil, err
		}
	} else {
		if err := writeDir(opts.OutputPath, metaBytes, readme, sorted); err != nil {
			return nil, err
		}
	}

	return meta, nil
}

func writeDir(dir string, metaBytes, readme []byte, inputs []Input) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("bundle: create output dir: %w", err)
	}
	if err := os.WriteFile(filepath.Join(dir, FileMeta), metaBytes, 0o644); err != nil {
		return fmt.Errorf("bundle: write _meta.json: %w", err)
	}
	if err := os.WriteFile(filepath.Join(dir, FileReadme), readme, 0o644); err != nil {
		return fmt.Errorf("bundle: write README.txt: %w", err)
	}
	for _, in := range inputs {
		if err := os.WriteFile(filepath.Join(dir, in.Name), in.Bytes, 0o644); err != nil {
			return fmt.Errorf("bundle: write %s: %w", in.Name, err)
		}
	}
	return nil
}

// writeZip writes _meta.json as the ZIP's first entry, since verifiers
// locate it by name first without needing a full directory scan.
func writeZip(path string, metaBytes, readme []byte, inputs []Input) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("bundle: create output dir: %w", err)
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("bundle: create zip: %w", err)
	}
	defer f.Close()

	zw := zip.NewWriter(f)
	if err := writeZipEntry(zw, FileMeta, metaBytes); err != nil {
		return err
	}
	if err := writeZipEntry(zw, FileReadme, readme); err != nil {
		return err
	}
	for _, in := range inputs {
		if err := writeZipEntry(zw, in.Name, in.Bytes); err != nil {
			return err
		}
	}
	return zw.Close()
}

func writeZipEntry(zw *zip.Writer, name string, content []byte) error {
	w, err := zw.Create(name)
	if err != nil {
		return fmt.Errorf("bundle: create zip entry %s: %w", name, err)
	}
	if _, err := w.Write(content); err != nil {
		return fmt.Errorf("bundle: write zip entry %s: %w", name, err)
	}
	return nil
}

func encodeMeta(meta *Meta) ([]byte, error) {
	b, err := json.MarshalIndent(meta, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("bundle: encode _meta.json: %w", err)
	}
	return b, nil
}

