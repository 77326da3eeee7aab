// Copyright 2026 CAP Contributors

package policy

import (
	"testing"
)

func samplePolicy() *Policy {
	return &Policy{
		Identifier:  "lksg.v1",
		Version:     "1.0.0",
		LegalBasis:  []string{"LkSG"},
		Description: "supply chain due diligence",
		Inputs:      map[string]string{"supplier_count": "int"},
		Rules: []Rule{
			{ID: "r3", Op: "range_min", LHS: "age", RHS: 18},
			{ID: "r1", Op: "eq", LHS: "country", RHS: "DE"},
			{ID: "r2", Op: "non_membership", LHS: "hash", RHS: "root"},
		},
	}
}

func TestGenerateIR_SortsRulesLexicographically(t *testing.T) {
	p := samplePolicy()
	ir := GenerateIR(p, "0xabc")
	got := []string{ir.Rules[0].ID, ir.Rules[1].ID, ir.Rules[2].ID}
	want := []string{"r1", "r2", "r3"}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("rule order = %v, want %v", got, want)
		}
	}
}

func TestGenerateIR_ExpressionNormalization(t *testing.T) {
	p := samplePolicy()
	ir := GenerateIR(p, "0xabc")
	for _, r := range ir.Rules {
		if r.ID == "r1" {
			if r.LHS.Type != ExprVariable || r.LHS.Var != "country" {
				t.Errorf("expected country to lower to a variable, got %+v", r.LHS)
			}
			if r.RHS.Type != ExprVariable || r.RHS.Var != "DE" {
				t.Errorf("expected bare string DE to lower to a variable, got %+v", r.RHS)
			}
		}
	}
}

func TestSealIR_DeterministicAcross100Runs(t *testing.T) {
	p := samplePolicy()
	policyHash, err := p.ComputeHash()
	if err != nil {
		t.Fatal(err)
	}

	var first string
	for i := 0; i < 100; i++ {
		ir := GenerateIR(p, policyHash)
		hash, err := SealIR(ir)
		if err != nil {
			t.Fatal(err)
		}
		if i == 0 {
			first = hash
		} else if hash != first {
			t.Fatalf("ir_hash not stable across runs: run %d got %s, want %s", i, hash, first)
		}
	}
}

func TestSealIR_ChangingPolicyHashChangesIRHash(t *testing.T) {
	p := samplePolicy()
	ir1 := GenerateIR(p, "0xaaa")
	h1, _ := SealIR(ir1)
	ir2 := GenerateIR(p, "0xbbb")
	h2, _ := SealIR(ir2)
	if h1 == h2 {
		t.Error("ir_hash must change when the declared policy_hash changes")
	}
}

func TestLint_MinimumDiagnosticSet(t *testing.T) {
	p := &Policy{
		Identifier: "broken.v1",
		Version:    "1.0.0",
		Rules: []Rule{
			{ID: "dup", Op: "eq", LHS: "x", RHS: 1},
			{ID: "dup", Op: "not_a_real_op", LHS: "y", RHS: 2},
		},
		Adaptivity: &Adaptivity{
			Activations: map[string][]string{"p1": {"missing_rule"}},
		},
	}

	diags := Lint(p, Strict)
	codes := map[string]bool{}
	for _, d := range diags {
		codes[d.Code] = true
	}
	for _, want := range []string{E1001, E1002, E1003, E2001, W1002} {
		if !codes[want] {
			t.Errorf("expected diagnostic %s to be present, got %+v", want, diags)
		}
	}
	if HTTPStatus(diags) != 422 {
		t.Errorf("expected 422 with errors present")
	}
}

func TestLint_RelaxedDegradesMissingLegalBasis(t *testing.T) {
	p := samplePolicy()
	p.LegalBasis = nil

	strict := Lint(p, Strict)
	relaxed := Lint(p, Relaxed)

	findLevel := func(diags []Diagnostic, code string) (Level, bool) {
		for _, d := range diags {
			if d.Code == code {
				return d.Level, true
			}
		}
		return 0, false
	}

	if lvl, ok := findLevel(strict, E1002); !ok || lvl != LevelError {
		t.Errorf("E1002 should be an error in strict mode")
	}
	if lvl, ok := findLevel(relaxed, E1002); !ok || lvl != LevelWarning {
		t.Errorf("E1002 should degrade to warning in relaxed mode")
	}
	if HTTPStatus(relaxed) != 200 {
		t.Errorf("warnings-only diagnostics should map to HTTP 200")
	}
}

func TestCache_PutGetEviction(t *testing.T) {
	c, err := NewCache(2)
	if err != nil {
		t.Fatal(err)
	}
	c.Put("a", &Compiled{PolicyHash: "a"})
	c.Put("b", &Compiled{PolicyHash: "b"})
	c.Put("c", &Compiled{PolicyHash: "c"}) // evicts "a" (least recently used)

	if c.Contains("a") {
		t.Error("expected \"a\" to be evicted")
	}
	if !c.Contains("b") || !c.Contains("c") {
		t.Error("expected \"b\" and \"c\" to remain cached")
	}
	if c.Size() != 2 {
		t.Errorf("expected size 2, got %d", c.Size())
	}
}
