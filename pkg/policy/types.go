// Copyright 2026 CAP Contributors
//
// Policy Source Types
//
// A Policy is the declarative, human-authored form. Lowering it to an IR
// (ir.go) is what makes it hash-stable.

package policy

// Policy is the parsed declarative source document.
type Policy struct {
	Identifier  string            `json:"identifier" yaml:"identifier"`
	Version     string            `json:"version" yaml:"version"`
	LegalBasis  []string          `json:"legal_basis" yaml:"legal_basis"`
	Description string            `json:"description" yaml:"description"`
	Inputs      map[string]string `json:"inputs" yaml:"inputs"`
	Rules       []Rule            `json:"rules" yaml:"rules"`
	Adaptivity  *Adaptivity       `json:"adaptivity,omitempty" yaml:"adaptivity,omitempty"`
}

// Rule is a single policy rule. LHS/RHS are raw operand values as they
// appeared in the source: a bare string is later lowered to a variable
// reference, anything else to a literal.
type Rule struct {
	ID  string      `json:"id" yaml:"id"`
	Op  string      `json:"op" yaml:"op"`
	LHS interface{} `json:"lhs" yaml:"lhs"`
	RHS interface{} `json:"rhs" yaml:"rhs"`
}

// Adaptivity carries named predicates and the rule activations they gate.
type Adaptivity struct {
	Predicates  map[string]string   `json:"predicates" yaml:"predicates"`
	Activations map[string][]string `json:"activations" yaml:"activations"`
}

// ValidOperators is the closed operator vocabulary from the data model.
var ValidOperators = map[string]bool{
	"eq":              true,
	"ne":              true,
	"gt":              true,
	"gte":             true,
	"lt":              true,
	"lte":             true,
	"membership":      true,
	"non_membership":  true,
	"intersection":    true,
	"non_intersection": true,
	"threshold":       true,
	"range_min":       true,
	"range_max":       true,
}
