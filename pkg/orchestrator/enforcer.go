// Copyright 2026 CAP Contributors
//
// Adaptive Enforcement
//
// Evaluates a rule plan against a request context under shadow/enforce
// dual-mode, with deterministic percentage rollout.

package orchestrator

import (
	"encoding/binary"
	"fmt"
	"time"

	"github.com/capassure/cap-agent/pkg/hashing"
	"github.com/capassure/cap-agent/pkg/policy"
)

// Verdict is a rule-evaluation outcome.
type Verdict string

const (
	VerdictOk   Verdict = "Ok"
	VerdictWarn Verdict = "Warn"
	VerdictFail Verdict = "Fail"
)

// worse returns the more severe of two verdicts, ordered Ok < Warn < Fail.
func worse(a, b Verdict) Verdict {
	rank := map[Verdict]int{VerdictOk: 0, VerdictWarn: 1, VerdictFail: 2}
	if rank[b] > rank[a] {
		return b
	}
	return a
}

// Context is the evaluation input: commitment roots and a free-form
// variable map the rule expressions resolve variable references against.
type Context struct {
	SupplierRoot      string
	UBORoot           string
	CommitmentRoot    string
	SanctionsRoot     string
	JurisdictionRoot  string
	Variables         map[string]interface{}
}

// EnforceOptions configures rollout sampling.
type EnforceOptions struct {
	Enforce        bool
	RolloutPercent int
	DriftMaxRatio  float64
}

// VerdictPair carries both the shadow and enforced verdicts for one
// request, plus whether the enforced verdict was actually applied.
type VerdictPair struct {
	Shadow          Verdict `json:"shadow"`
	Enforced        Verdict `json:"enforced"`
	EnforcedApplied bool    `json:"enforced_applied"`
}

// RolloutDecision is deterministic in requestID: identical request ids
// always yield the same decision. enforce=false unconditionally disables
// application regardless of rollout percent.
func RolloutDecision(requestID string, opts EnforceOptions) bool {
	if !opts.Enforce {
		return false
	}
	digest := hashing.Sha3_256([]byte(requestID))
	u64 := binary.BigEndian.Uint64(digest[:8])
	return (u64 % 100) < uint64(opts.RolloutPercent)
}

// Enforcer evaluates execution plans against a context.
type Enforcer struct{}

// NewEnforcer constructs an Enforcer. It holds no state: every call is
// re-entrant and safe for concurrent use.
func NewEnforcer() *Enforcer {
	return &Enforcer{}
}

// Evaluate runs every step of plan against ctx and folds the results into a
// single Verdict. Any evaluation error is fail-closed: the overall result
// is Fail regardless of other steps.
func (e *Enforcer) Evaluate(plan *ExecutionPlan, ir *policy.IR, ctx *Context) Verdict {
	rules := make(map[string]policy.IRRule, len(ir.Rules))
	for _, r := range ir.Rules {
		rules[r.ID] = r
	}

	verdict := VerdictOk
	for _, step := range plan.Steps {
		rule, ok := rules[step.RuleID]
		if !ok {
			return VerdictFail
		}
		v, err := evaluateRule(rule, ctx)
		if err != nil {
			return VerdictFail
		}
		verdict = worse(verdict, v)
	}
	return verdict
}

// Decide evaluates the baseline (enforced-candidate) and shadow
// (observation-only) rule sets and applies deterministic rollout sampling
// to decide which verdict is externalized. Both verdicts are always
// computed so drift can be observed.
func (e *Enforcer) Decide(
	planner *Planner,
	ir *policy.IR,
	baselineRuleIDs, shadowRuleIDs []string,
	ctx *Context,
	opts EnforceOptions,
	requestID string,
) (*VerdictPair, error) {
	start := time.Now()
	defer func() { observeSelectionLatency(time.Since(start).Seconds()) }()

	enforcedPlan, err := planner.Plan(baselineRuleIDs)
	if err != nil {
		return nil, fmt.Errorf("orchestrator: plan baseline rules: %w", err)
	}
	shadowPlan, err := planner.Plan(shadowRuleIDs)
	if err != nil {
		return nil, fmt.Errorf("orchestrator: plan shadow rules: %w", err)
	}

	enforcedVerdict := e.Evaluate(enforcedPlan, ir, ctx)
	shadowVerdict := e.Evaluate(shadowPlan, ir, ctx)
	applied := RolloutDecision(requestID, opts)

	if applied {
		recordEnforcedRequest(ir.PolicyID)
	} else {
		recordShadowRequest(ir.PolicyID)
	}

	return &VerdictPair{Shadow: shadowVerdict, Enforced: enforcedVerdict, EnforcedApplied: applied}, nil
}

func evaluateRule(rule policy.IRRule, ctx *Context) (Verdict, error) {
	lhs, err := resolveExpr(rule.LHS, ctx)
	if err != nil {
		return "", err
	}
	rhs, err := resolveExpr(rule.RHS, ctx)
	if err != nil {
		return "", err
	}

	switch rule.Op {
	case "eq":
		return boolVerdict(fmt.Sprint(lhs) == fmt.Sprint(rhs)), nil
	case "ne":
		return boolVerdict(fmt.Sprint(lhs) != fmt.Sprint(rhs)), nil
	case "gt", "gte", "lt", "lte", "range_min", "range_max":
		return compareNumeric(rule.Op, lhs, rhs)
	case "membership":
		return membershipVerdict(lhs, rhs, true)
	case "non_membership":
		return membershipVerdict(lhs, rhs, false)
	case "intersection", "non_intersection", "threshold":
		// These require richer set/percentage evaluation than a bare
		// variable map can supply in the MVP; report Warn unless the
		// caller supplied an explicit boolean outcome variable named
		// "<rule id>_result", matching how adaptivity-gated rules are staged
		// before real evaluators exist for them.
		if v, ok := ctx.Variables[rule.ID+"_result"]; ok {
			if b, ok := v.(bool); ok {
				return boolVerdict(b), nil
			}
		}
		return VerdictWarn, nil
	default:
		return "", fmt.Errorf("orchestrator: unknown operator %q", rule.Op)
	}
}

func resolveExpr(e policy.Expression, ctx *Context) (interface{}, error) {
	if e.Type == policy.ExprVariable {
		v, ok := ctx.Variables[e.Var]
		if !ok {
			return nil, fmt.Errorf("orchestrator: missing context key %q", e.Var)
		}
		return v, nil
	}
	return e.Literal, nil
}

func boolVerdict(ok bool) Verdict {
	if ok {
		return VerdictOk
	}
	return VerdictFail
}

func compareNumeric(op string, lhs, rhs interface{}) (Verdict, error) {
	lf, ok1 := toFloat(lhs)
	rf, ok2 := toFloat(rhs)
	if !ok1 || !ok2 {
		return "", fmt.Errorf("orchestrator: non-numeric operand for %q", op)
	}
	var ok bool
	switch op {
	case "gt":
		ok = lf > rf
	case "gte":
		ok = lf >= rf
	case "lt":
		ok = lf < rf
	case "lte":
		ok = lf <= rf
	case "range_min":
		// Satisfied when the resolved value is at least the configured
		// minimum bound.
		ok = lf >= rf
	case "range_max":
		// Satisfied when the resolved value is at most the configured
		// maximum bound.
		ok = lf <= rf
	}
	return boolVerdict(ok), nil
}

func toFloat(v interface{}) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	default:
		return 0, false
	}
}

func membershipVerdict(lhs, rhs interface{}, wantMember bool) (Verdict, error) {
	set, ok := rhs.([]interface{})
	if !ok {
		return "", fmt.Errorf("orchestrator: membership rhs is not a set")
	}
	found := false
	for _, item := range set {
		if fmt.Sprint(item) == fmt.Sprint(lhs) {
			found = true
			break
		}
	}
	return boolVerdict(found == wantMember), nil
}
