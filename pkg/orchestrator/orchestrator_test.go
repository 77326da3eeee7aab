// Copyright 2026 CAP Contributors

package orchestrator

import (
	"testing"

	"github.com/capassure/cap-agent/pkg/policy"
)

func sampleIR() *policy.IR {
	return &policy.IR{
		IRVersion:  policy.IRVersion,
		PolicyID:   "lksg.v1",
		PolicyHash: "0xabc",
		Rules: []policy.IRRule{
			{ID: "r-threshold", Op: "threshold", LHS: policy.Expression{Type: policy.ExprVariable, Var: "score"}, RHS: policy.Expression{Type: policy.ExprLiteral, Literal: 50}},
			{ID: "r-eq", Op: "eq", LHS: policy.Expression{Type: policy.ExprVariable, Var: "country"}, RHS: policy.Expression{Type: policy.ExprLiteral, Literal: "DE"}},
			{ID: "r-membership", Op: "membership", LHS: policy.Expression{Type: policy.ExprVariable, Var: "sector"}, RHS: policy.Expression{Type: policy.ExprLiteral, Literal: []interface{}{"mining", "textiles"}}},
			{ID: "r-gt", Op: "gt", LHS: policy.Expression{Type: policy.ExprVariable, Var: "age"}, RHS: policy.Expression{Type: policy.ExprLiteral, Literal: 18}},
			{ID: "r-range", Op: "range_min", LHS: policy.Expression{Type: policy.ExprVariable, Var: "score"}, RHS: policy.Expression{Type: policy.ExprLiteral, Literal: 50}},
		},
	}
}

func TestPlanner_DeterministicOrdering(t *testing.T) {
	ir := sampleIR()
	planner := NewPlanner(ir)
	ids := []string{"r-threshold", "r-eq", "r-membership", "r-gt"}

	var first *ExecutionPlan
	for i := 0; i < 50; i++ {
		plan, err := planner.Plan(ids)
		if err != nil {
			t.Fatal(err)
		}
		if first == nil {
			first = plan
			continue
		}
		for j := range plan.Steps {
			if plan.Steps[j].RuleID != first.Steps[j].RuleID {
				t.Fatalf("non-deterministic ordering at run %d step %d: %s vs %s", i, j, plan.Steps[j].RuleID, first.Steps[j].RuleID)
			}
		}
	}

	wantOrder := []string{"r-eq", "r-gt", "r-membership", "r-threshold"}
	for i, id := range wantOrder {
		if first.Steps[i].RuleID != id {
			t.Fatalf("step %d: expected %s, got %s", i, id, first.Steps[i].RuleID)
		}
	}
	if first.Metadata.Strategy != strategyCostBasedV1 {
		t.Fatalf("unexpected strategy: %s", first.Metadata.Strategy)
	}
}

func TestPlanner_UnknownRuleRejected(t *testing.T) {
	planner := NewPlanner(sampleIR())
	if _, err := planner.Plan([]string{"does-not-exist"}); err == nil {
		t.Fatal("expected error for unknown rule id")
	}
}

func TestPlanner_EmptyPlan(t *testing.T) {
	planner := NewPlanner(sampleIR())
	plan := planner.EmptyPlan()
	if len(plan.Steps) != 0 || plan.TotalCost != 0 {
		t.Fatalf("expected zero-step zero-cost plan, got %+v", plan)
	}
}

func TestRolloutDecision_Deterministic(t *testing.T) {
	opts := EnforceOptions{Enforce: true, RolloutPercent: 50}
	first := RolloutDecision("deterministic-test-123", opts)
	for i := 0; i < 3; i++ {
		if got := RolloutDecision("deterministic-test-123", opts); got != first {
			t.Fatalf("rollout decision changed across repeated calls: %v vs %v", got, first)
		}
	}
}

func TestRolloutDecision_DisabledAlwaysFalse(t *testing.T) {
	opts := EnforceOptions{Enforce: false, RolloutPercent: 100}
	for i := 0; i < 10; i++ {
		id := "req-" + string(rune('a'+i))
		if RolloutDecision(id, opts) {
			t.Fatalf("expected no application while enforce=false, id %s", id)
		}
	}
}

func TestRolloutDecision_StatisticalSpread(t *testing.T) {
	opts := EnforceOptions{Enforce: true, RolloutPercent: 25}
	applied := 0
	const n = 100
	for i := 0; i < n; i++ {
		id := "req-" + string(rune(i)) + "-distinct"
		if RolloutDecision(id, opts) {
			applied++
		}
	}
	if applied < 10 || applied > 40 {
		t.Fatalf("expected roughly 25/100 applied for 25%% rollout over 100 distinct ids, got %d", applied)
	}
}

func TestEnforcer_FailClosedOnMissingContextKey(t *testing.T) {
	ir := sampleIR()
	planner := NewPlanner(ir)
	plan, err := planner.Plan([]string{"r-eq"})
	if err != nil {
		t.Fatal(err)
	}
	e := NewEnforcer()
	verdict := e.Evaluate(plan, ir, &Context{Variables: map[string]interface{}{}})
	if verdict != VerdictFail {
		t.Fatalf("expected fail-closed Fail verdict on missing context key, got %s", verdict)
	}
}

func TestEnforcer_EvaluateOkPath(t *testing.T) {
	ir := sampleIR()
	planner := NewPlanner(ir)
	plan, err := planner.Plan([]string{"r-eq", "r-gt"})
	if err != nil {
		t.Fatal(err)
	}
	e := NewEnforcer()
	ctx := &Context{Variables: map[string]interface{}{"country": "DE", "age": 21}}
	if v := e.Evaluate(plan, ir, ctx); v != VerdictOk {
		t.Fatalf("expected Ok, got %s", v)
	}
}

func TestPlanner_RangeOperatorsCostTwo(t *testing.T) {
	if got := EstimateCost("range_min"); got != 2 {
		t.Fatalf("expected range_min cost 2, got %d", got)
	}
	if got := EstimateCost("range_max"); got != 2 {
		t.Fatalf("expected range_max cost 2, got %d", got)
	}
}

func TestEnforcer_RangeMinSatisfiedAtOrAboveBound(t *testing.T) {
	ir := sampleIR()
	planner := NewPlanner(ir)
	plan, err := planner.Plan([]string{"r-range"})
	if err != nil {
		t.Fatal(err)
	}
	e := NewEnforcer()

	ok := e.Evaluate(plan, ir, &Context{Variables: map[string]interface{}{"score": 50}})
	if ok != VerdictOk {
		t.Fatalf("expected Ok at exactly the minimum bound, got %s", ok)
	}
	fail := e.Evaluate(plan, ir, &Context{Variables: map[string]interface{}{"score": 49}})
	if fail != VerdictFail {
		t.Fatalf("expected Fail below the minimum bound, got %s", fail)
	}
}

func TestEnforcer_Decide(t *testing.T) {
	ir := sampleIR()
	planner := NewPlanner(ir)
	e := NewEnforcer()
	ctx := &Context{Variables: map[string]interface{}{"country": "DE", "age": 21}}
	opts := EnforceOptions{Enforce: true, RolloutPercent: 100}

	pair, err := e.Decide(planner, ir, []string{"r-eq"}, []string{"r-eq", "r-gt"}, ctx, opts, "req-1")
	if err != nil {
		t.Fatal(err)
	}
	if pair.Shadow != VerdictOk || pair.Enforced != VerdictOk {
		t.Fatalf("expected both verdicts Ok, got %+v", pair)
	}
	if !pair.EnforcedApplied {
		t.Fatal("expected enforced_applied true at 100% rollout")
	}
}
