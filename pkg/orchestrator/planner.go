// Copyright 2026 CAP Contributors
//
// Execution Planner
//
// Cost-based deterministic rule ordering: sort active rules by
// (cost ascending, rule id lexicographic ascending).

package orchestrator

import (
	"fmt"
	"sort"

	"github.com/capassure/cap-agent/pkg/policy"
)

// PlanStep is one step of an execution plan.
type PlanStep struct {
	RuleID    string `json:"rule_id"`
	Op        string `json:"op"`
	Cost      uint32 `json:"cost"`
	StepIndex int    `json:"step_index"`
}

// PlanMetadata describes how a plan was produced.
type PlanMetadata struct {
	PolicyID    string `json:"policy_id"`
	ActiveRules int    `json:"active_rules"`
	Strategy    string `json:"strategy"`
}

// ExecutionPlan is an ordered sequence of rule evaluations.
type ExecutionPlan struct {
	Steps      []PlanStep   `json:"steps"`
	TotalCost  uint32       `json:"total_cost"`
	Metadata   PlanMetadata `json:"metadata"`
}

const strategyCostBasedV1 = "cost_based_v1"

// EstimateCost assigns a fixed cost to an operator: equality/ordering
// comparisons are cheapest, membership tests moderate, intersection tests
// more expensive, threshold evaluation most expensive among known
// operators, and any unrecognized operator is treated as maximally
// expensive.
func EstimateCost(op string) uint32 {
	switch op {
	case "eq":
		return 1
	case "ne", "gt", "lt", "gte", "lte", "range_min", "range_max":
		return 2
	case "membership", "non_membership":
		return 10
	case "intersection", "non_intersection":
		return 15
	case "threshold":
		return 20
	default:
		return 100
	}
}

// Planner builds execution plans from an IR's rule set.
type Planner struct {
	rules    map[string]policy.IRRule
	policyID string
}

// NewPlanner indexes ir's rules by id.
func NewPlanner(ir *policy.IR) *Planner {
	rules := make(map[string]policy.IRRule, len(ir.Rules))
	for _, r := range ir.Rules {
		rules[r.ID] = r
	}
	return &Planner{rules: rules, policyID: ir.PolicyID}
}

// Plan builds an ExecutionPlan for the given active rule ids: costs are
// estimated per rule, steps sorted by (cost, rule id), then indexed.
func (p *Planner) Plan(activeRuleIDs []string) (*ExecutionPlan, error) {
	steps := make([]PlanStep, 0, len(activeRuleIDs))
	for _, id := range activeRuleIDs {
		rule, ok := p.rules[id]
		if !ok {
			return nil, fmt.Errorf("orchestrator: rule not found: %s", id)
		}
		steps = append(steps, PlanStep{RuleID: id, Op: rule.Op, Cost: EstimateCost(rule.Op)})
	}

	sort.Slice(steps, func(i, j int) bool {
		if steps[i].Cost != steps[j].Cost {
			return steps[i].Cost < steps[j].Cost
		}
		return steps[i].RuleID < steps[j].RuleID
	})

	var total uint32
	for i := range steps {
		steps[i].StepIndex = i
		total += steps[i].Cost
	}

	return &ExecutionPlan{
		Steps:     steps,
		TotalCost: total,
		Metadata: PlanMetadata{
			PolicyID:    p.policyID,
			ActiveRules: len(activeRuleIDs),
			Strategy:    strategyCostBasedV1,
		},
	}, nil
}

// EmptyPlan returns the zero-step, zero-cost plan for no active rules.
func (p *Planner) EmptyPlan() *ExecutionPlan {
	return &ExecutionPlan{
		Steps:     nil,
		TotalCost: 0,
		Metadata: PlanMetadata{
			PolicyID:    p.policyID,
			ActiveRules: 0,
			Strategy:    strategyCostBasedV1,
		},
	}
}
