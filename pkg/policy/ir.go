// Copyright 2026 CAP Contributors
//
// Intermediate Representation (IR v1)
//
// The canonical, hash-stable lowering of a Policy: rules re-emitted in
// lexicographic id order, operands normalized to tagged {variable, literal}
// expressions, adaptivity copied verbatim.

package policy

import (
	"sort"

	"github.com/capassure/cap-agent/pkg/hashing"
)

const IRVersion = "1.0"

// Expression is the tagged operand form. Exactly one of Var or Literal is
// meaningful, selected by Type.
type Expression struct {
	Type    string      `json:"type"`
	Var     string      `json:"var,omitempty"`
	Literal interface{} `json:"literal,omitempty"`
}

const (
	ExprVariable = "variable"
	ExprLiteral  = "literal"
)

func convertExpression(raw interface{}) Expression {
	if s, ok := raw.(string); ok {
		return Expression{Type: ExprVariable, Var: s}
	}
	return Expression{Type: ExprLiteral, Literal: raw}
}

// IRRule is a lowered rule.
type IRRule struct {
	ID  string     `json:"id"`
	Op  string     `json:"op"`
	LHS Expression `json:"lhs"`
	RHS Expression `json:"rhs"`
}

// IR is the lowered, hash-stable policy representation.
type IR struct {
	IRVersion  string      `json:"ir_version"`
	PolicyID   string      `json:"policy_id"`
	PolicyHash string      `json:"policy_hash"`
	Rules      []IRRule    `json:"rules"`
	Adaptivity *Adaptivity `json:"adaptivity,omitempty"`
	IRHash     string      `json:"ir_hash"`
}

// GenerateIR lowers p into its canonical IR form. Rules are sorted
// lexicographically by id; the IR's own hash is left blank — call
// SealIR to compute and assign it.
func GenerateIR(p *Policy, policyHash string) *IR {
	rules := make([]IRRule, len(p.Rules))
	for i, r := range p.Rules {
		rules[i] = IRRule{
			ID:  r.ID,
			Op:  r.Op,
			LHS: convertExpression(r.LHS),
			RHS: convertExpression(r.RHS),
		}
	}
	sort.Slice(rules, func(i, j int) bool { return rules[i].ID < rules[j].ID })

	return &IR{
		IRVersion:  IRVersion,
		PolicyID:   p.Identifier,
		PolicyHash: policyHash,
		Rules:      rules,
		Adaptivity: p.Adaptivity,
		IRHash:     "",
	}
}

// Canonicalize emits the byte-stable serialization of ir used both for
// hashing and for storage. Struct field order is fixed by declaration, so
// this is simply a direct marshal — the same approach the original
// compiler takes by relying on its serializer's struct-field ordering
// rather than an explicit key sort.
func Canonicalize(ir *IR) ([]byte, error) {
	return hashing.CanonicalizeStruct(ir)
}

// SealIR computes ir_hash over the canonical encoding of ir with IRHash
// held at its zero value, then assigns the result back into ir.
func SealIR(ir *IR) (string, error) {
	ir.IRHash = ""
	b, err := Canonicalize(ir)
	if err != nil {
		return "", err
	}
	ir.IRHash = hashing.HexLowerPrefixed(b)
	return ir.IRHash, nil
}
