// Copyright 2026 CAP Contributors
//
// Policy Linter
//
// Closed diagnostic code vocabulary: E1xxx structural, E2xxx expression,
// E3xxx constraint, W1xxx warning.

package policy

// LintMode selects how certain violations degrade.
type LintMode int

const (
	Strict LintMode = iota
	Relaxed
)

// Level is a diagnostic's severity.
type Level int

const (
	LevelError Level = iota
	LevelWarning
)

func (l Level) String() string {
	if l == LevelWarning {
		return "warning"
	}
	return "error"
}

// Diagnostic codes, the minimum closed set named by the data model.
const (
	E1001 = "E1001" // adaptivity activation names an undeclared rule id
	E1002 = "E1002" // missing legal basis
	E1003 = "E1003" // duplicate rule id
	E2001 = "E2001" // operator outside the closed vocabulary
	W1002 = "W1002" // missing description
)

// Diagnostic is a single lint finding.
type Diagnostic struct {
	Code    string `json:"code"`
	Level   Level  `json:"level"`
	Message string `json:"message"`
	RuleID  string `json:"rule_id,omitempty"`
}

// Lint evaluates p under mode and returns every diagnostic found. In
// Relaxed mode, E1002 (missing legal basis) degrades from error to
// warning; every other error code keeps its severity regardless of mode.
func Lint(p *Policy, mode LintMode) []Diagnostic {
	var diags []Diagnostic

	if len(p.LegalBasis) == 0 {
		level := LevelError
		if mode == Relaxed {
			level = LevelWarning
		}
		diags = append(diags, Diagnostic{
			Code:    E1002,
			Level:   level,
			Message: "policy is missing a legal basis",
		})
	}

	if p.Description == "" {
		diags = append(diags, Diagnostic{
			Code:    W1002,
			Level:   LevelWarning,
			Message: "policy is missing a description",
		})
	}

	seen := make(map[string]bool, len(p.Rules))
	declared := make(map[string]bool, len(p.Rules))
	for _, r := range p.Rules {
		declared[r.ID] = true
		if seen[r.ID] {
			diags = append(diags, Diagnostic{
				Code:    E1003,
				Level:   LevelError,
				Message: "duplicate rule id",
				RuleID:  r.ID,
			})
		}
		seen[r.ID] = true

		if !ValidOperators[r.Op] {
			diags = append(diags, Diagnostic{
				Code:    E2001,
				Level:   LevelError,
				Message: "operator \"" + r.Op + "\" is not in the permitted vocabulary",
				RuleID:  r.ID,
			})
		}
	}

	if p.Adaptivity != nil {
		for predicate, ruleIDs := range p.Adaptivity.Activations {
			for _, ruleID := range ruleIDs {
				if !declared[ruleID] {
					diags = append(diags, Diagnostic{
						Code:    E1001,
						Level:   LevelError,
						Message: "activation for predicate \"" + predicate + "\" references unknown rule id",
						RuleID:  ruleID,
					})
				}
			}
		}
	}

	return diags
}

// HasErrors reports whether any diagnostic in diags is an error.
func HasErrors(diags []Diagnostic) bool {
	for _, d := range diags {
		if d.Level == LevelError {
			return true
		}
	}
	return false
}

// HTTPStatus maps a diagnostic set to the transport status code the
// surrounding API sets: 200 if diagnostics are warnings-only (including
// none at all), 422 if any error is present.
func HTTPStatus(diags []Diagnostic) int {
	if HasErrors(diags) {
		return 422
	}
	return 200
}
