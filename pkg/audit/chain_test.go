// Copyright 2026 CAP Contributors

package audit

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestChain_AppendAndVerify(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "audit.jsonl")

	chain, err := Open(path)
	if err != nil {
		t.Fatal(err)
	}

	for i := 0; i < 3; i++ {
		if _, err := chain.Append("policy.compiled", Details{PolicyID: "lksg.v1"}); err != nil {
			t.Fatal(err)
		}
	}

	report, err := VerifyChain(path)
	if err != nil {
		t.Fatal(err)
	}
	if !report.OK || report.TotalEvents != 3 {
		t.Fatalf("expected ok with 3 events, got %+v", report)
	}
}

func TestChain_TamperDetection(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "audit.jsonl")

	chain, err := Open(path)
	if err != nil {
		t.Fatal(err)
	}
	for i := 0; i < 3; i++ {
		if _, err := chain.Append("e"+string(rune('1'+i)), Details{}); err != nil {
			t.Fatal(err)
		}
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	lines := strings.Split(strings.TrimRight(string(raw), "\n"), "\n")
	if len(lines) != 3 {
		t.Fatalf("expected 3 lines, got %d", len(lines))
	}
	lines[1] = strings.Replace(lines[1], `"event":"e2"`, `"event":"tampered"`, 1)
	if err := os.WriteFile(path, []byte(strings.Join(lines, "\n")+"\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	report, err := VerifyChain(path)
	if err != nil {
		t.Fatal(err)
	}
	if report.OK {
		t.Fatal("expected tamper detection to fail verification")
	}
	if report.TamperIndex == nil || *report.TamperIndex != 1 {
		t.Fatalf("expected tamper_index 1, got %v", report.TamperIndex)
	}
	if !strings.Contains(report.Error, "self-hash") {
		t.Fatalf("expected error to mention self-hash, got %q", report.Error)
	}
}

func TestChain_ReopenRehydratesTail(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "audit.jsonl")

	c1, err := Open(path)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := c1.Append("e1", Details{}); err != nil {
		t.Fatal(err)
	}
	tail1, seq1 := c1.Tip()

	c2, err := Open(path)
	if err != nil {
		t.Fatal(err)
	}
	tail2, seq2 := c2.Tip()

	if tail1 != tail2 || seq1 != seq2 {
		t.Fatalf("reopened chain did not rehydrate tail: (%s,%d) vs (%s,%d)", tail1, seq1, tail2, seq2)
	}
}

func TestChain_GenesisHashOnEmptyFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "audit.jsonl")

	c, err := Open(path)
	if err != nil {
		t.Fatal(err)
	}
	tail, seq := c.Tip()
	if seq != 0 {
		t.Errorf("expected seq 0 for fresh chain, got %d", seq)
	}
	if tail != "0x0000000000000000000000000000000000000000000000000000000000000000" {
		t.Errorf("unexpected genesis hash: %s", tail)
	}
}
