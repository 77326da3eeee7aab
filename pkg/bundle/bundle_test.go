// Copyright 2026 CAP Contributors

package bundle

import (
	"archive/zip"
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/capassure/cap-agent/pkg/capz"
	"github.com/capassure/cap-agent/pkg/hashing"
	"github.com/capassure/cap-agent/pkg/manifest"
)

func buildManifestBytes(t *testing.T, policyHash string) []byte {
	t.Helper()
	m := manifest.New(hashing.Digest{1}, hashing.Digest{2}, hashing.Digest{3},
		manifest.PolicyDescriptor{Name: "lksg", Version: "v1", Hash: policyHash},
		manifest.AuditBlock{TailHex: "0x00", EventCount: 1},
		manifest.ProofBlock{Type: "mock", Status: "verified"})
	b, err := m.Compact()
	if err != nil {
		t.Fatal(err)
	}
	return b
}

func TestAssembleAndVerify_Directory(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "out")
	manifestBytes := buildManifestBytes(t, "0xpolicy")

	container := capz.New(capz.BackendMock, []byte(`{"ok":true}`))
	var buf bytes.Buffer
	if err := container.Write(&buf); err != nil {
		t.Fatal(err)
	}
	proofBuf := buf.Bytes()

	inputs := []Input{
		{Name: FileManifest, Bytes: manifestBytes, Role: "manifest"},
		{Name: FileProofCAPZ, Bytes: proofBuf, Role: "proof"},
	}
	opts := AssembleOptions{
		OutputPath: dir,
		ProofUnits: []ProofUnit{{ID: "p1", ManifestFile: FileManifest, ProofFile: FileProofCAPZ, PolicyID: "lksg.v1", PolicyHash: "0xpolicy", Backend: "mock"}},
	}

	if _, err := Assemble(inputs, opts); err != nil {
		t.Fatal(err)
	}

	src, err := BundleSourceFromPath(dir)
	if err != nil {
		t.Fatal(err)
	}
	report, err := Verify(src, VerifyOptions{})
	if err != nil {
		t.Fatal(err)
	}
	if report.Status != "ok" {
		t.Fatalf("expected ok, got %+v", report)
	}
}

func TestAssemble_RefusesOverwriteWithoutForce(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "out")
	inputs := []Input{{Name: FileManifest, Bytes: []byte("{}"), Role: "manifest"}}
	if _, err := Assemble(inputs, AssembleOptions{OutputPath: dir}); err != nil {
		t.Fatal(err)
	}
	if _, err := Assemble(inputs, AssembleOptions{OutputPath: dir}); err == nil {
		t.Fatal("expected refusal to overwrite existing output without force")
	}
	if _, err := Assemble(inputs, AssembleOptions{OutputPath: dir, Force: true}); err != nil {
		t.Fatalf("expected force overwrite to succeed, got %v", err)
	}
}

func TestVerify_DetectsTamperedFile(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "out")
	manifestBytes := buildManifestBytes(t, "0xpolicy")
	inputs := []Input{{Name: FileManifest, Bytes: manifestBytes, Role: "manifest"}}
	if _, err := Assemble(inputs, AssembleOptions{OutputPath: dir}); err != nil {
		t.Fatal(err)
	}

	tampered := filepath.Join(dir, FileManifest)
	if err := os.WriteFile(tampered, append(manifestBytes, []byte("tampered")...), 0o644); err != nil {
		t.Fatal(err)
	}

	src, err := BundleSourceFromPath(dir)
	if err != nil {
		t.Fatal(err)
	}
	report, err := Verify(src, VerifyOptions{})
	if err != nil {
		t.Fatal(err)
	}
	if report.Status != "fail" {
		t.Fatal("expected tampered manifest to fail verification")
	}
	if !strings.Contains(report.Error, "Manifest hash mismatch") {
		t.Fatalf("expected error to contain %q, got %q", "Manifest hash mismatch", report.Error)
	}
}

func TestLoadBundleAtomic_RejectsPathTraversal(t *testing.T) {
	dir := t.TempDir()
	zipPath := filepath.Join(dir, "evil.zip")

	f, err := os.Create(zipPath)
	if err != nil {
		t.Fatal(err)
	}
	zw := zip.NewWriter(f)
	w, err := zw.Create("../../etc/passwd")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := w.Write([]byte("pwned")); err != nil {
		t.Fatal(err)
	}
	if err := zw.Close(); err != nil {
		t.Fatal(err)
	}
	f.Close()

	src, err := BundleSourceFromPath(zipPath)
	if err != nil {
		t.Fatal(err)
	}
	_, _, err = LoadBundleAtomic(src)
	if err == nil {
		t.Fatal("expected path traversal entry to be rejected")
	}
	if !strings.Contains(err.Error(), "Path traversal") {
		t.Fatalf("expected error to contain %q, got %q", "Path traversal", err.Error())
	}
}

func TestCheckAcyclic_DetectsCycle(t *testing.T) {
	units := []ProofUnit{
		{ID: "a", DependsOn: []string{"b"}},
		{ID: "b", DependsOn: []string{"a"}},
	}
	if err := checkAcyclic(units); err == nil {
		t.Fatal("expected cycle detection to fail")
	}
}

func TestCheckAcyclic_AcceptsDAG(t *testing.T) {
	units := []ProofUnit{
		{ID: "a", DependsOn: []string{"b"}},
		{ID: "b"},
	}
	if err := checkAcyclic(units); err != nil {
		t.Fatalf("expected valid dag to pass, got %v", err)
	}
}

func TestBundleSourceFromPath_RejectsUnknownExtension(t *testing.T) {
	path := filepath.Join(t.TempDir(), "not-a-bundle.txt")
	if err := os.WriteFile(path, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := BundleSourceFromPath(path); err == nil {
		t.Fatal("expected rejection of non-zip, non-directory path")
	}
}
