// Copyright 2026 CAP Contributors

package policy

import (
	"encoding/json"
	"fmt"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/capassure/cap-agent/pkg/hashing"
)

// ParseError reports a decode failure. Parse leaves Line and Column at
// zero: the position is not extracted, and Msg holds the decoder's own
// message (for YAML it names the line; for JSON it does not).
type ParseError struct {
	Line   int
	Column int
	Msg    string
}

func (e *ParseError) Error() string {
	if e.Line > 0 {
		return fmt.Sprintf("policy: parse error at line %d, column %d: %s", e.Line, e.Column, e.Msg)
	}
	return fmt.Sprintf("policy: parse error: %s", e.Msg)
}

// Parse decodes source bytes as YAML or JSON depending on filename
// extension (".json" selects JSON, anything else YAML, mirroring the
// original loader's extension sniff).
func Parse(filename string, source []byte) (*Policy, error) {
	var p Policy

	if strings.EqualFold(filepath.Ext(filename), ".json") {
		if err := json.Unmarshal(source, &p); err != nil {
			return nil, &ParseError{Msg: err.Error()}
		}
		return &p, nil
	}

	if err := yaml.Unmarshal(source, &p); err != nil {
		if te, ok := err.(*yaml.TypeError); ok {
			return nil, &ParseError{Msg: strings.Join(te.Errors, "; ")}
		}
		return nil, &ParseError{Msg: err.Error()}
	}
	return &p, nil
}

// Validate applies the minimal structural checks required before a policy
// can be compiled: non-empty identifier and version, at least one rule, and
// unique rule ids. Richer diagnostics (E1xxx/E2xxx/E3xxx/W1xxx) are the
// linter's job — Validate only rejects input that cannot be compiled at
// all.
func (p *Policy) Validate() error {
	if p.Identifier == "" {
		return fmt.Errorf("policy: identifier is required")
	}
	if p.Version == "" {
		return fmt.Errorf("policy: version is required")
	}
	if len(p.Rules) == 0 {
		return fmt.Errorf("policy: at least one rule is required")
	}
	seen := make(map[string]bool, len(p.Rules))
	for _, r := range p.Rules {
		if r.ID == "" {
			return fmt.Errorf("policy: rule with empty id")
		}
		if seen[r.ID] {
			return fmt.Errorf("policy: duplicate rule id %q", r.ID)
		}
		seen[r.ID] = true
	}
	return nil
}

// ComputeHash returns the prefixed SHA3-256 hash of the policy's canonical
// JSON encoding.
func (p *Policy) ComputeHash() (string, error) {
	b, err := hashing.CanonicalizeStruct(p)
	if err != nil {
		return "", fmt.Errorf("policy: compute hash: %w", err)
	}
	return hashing.HexLowerPrefixed(b), nil
}
