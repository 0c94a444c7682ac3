package rules

import (
	"fmt"
	"time"

	"github.com/pankaj-dahiya-devops/kube-posture/internal/models"
)

// DefaultRuleRegistry is a simple, ordered, in-memory registry.
// Rules are evaluated in registration order.
// Register panics on duplicate rule IDs to catch wiring mistakes at startup.
type DefaultRuleRegistry struct {
	rules []Rule
	index map[string]struct{}
}

// NewDefaultRuleRegistry returns an empty registry ready for rule registration.
func NewDefaultRuleRegistry() *DefaultRuleRegistry {
	return &DefaultRuleRegistry{
		index: make(map[string]struct{}),
	}
}

// Register adds rule to the registry. Panics if the same ID is registered twice.
func (r *DefaultRuleRegistry) Register(rule Rule) {
	if _, exists := r.index[rule.ID()]; exists {
		panic(fmt.Sprintf("duplicate rule ID: %q", rule.ID()))
	}
	r.rules = append(r.rules, rule)
	r.index[rule.ID()] = struct{}{}
}

// All returns all registered rules in registration order.
func (r *DefaultRuleRegistry) All() []Rule {
	return r.rules
}

// EvaluateAll runs every registered rule against ctx and returns the merged
// findings slice. Rules are called sequentially in registration order. A rule
// that panics over a malformed record contributes a single INFO finding and
// evaluation continues with the next rule; one bad record must never abort
// the whole run.
func (r *DefaultRuleRegistry) EvaluateAll(ctx RuleContext) []models.Finding {
	var findings []models.Finding
	for _, rule := range r.rules {
		findings = append(findings, evaluateRule(rule, ctx)...)
	}
	return findings
}

// evaluateRule runs one rule, converting a panic into an anomaly finding.
func evaluateRule(rule Rule, ctx RuleContext) (findings []models.Finding) {
	defer func() {
		if v := recover(); v != nil {
			findings = []models.Finding{anomalyFinding(rule, ctx, v)}
		}
	}()
	return rule.Evaluate(ctx)
}

// anomalyFinding describes a rule that could not complete its evaluation.
// It keeps the failing rule's ID so the finding sorts with that rule's group.
func anomalyFinding(rule Rule, ctx RuleContext, cause any) models.Finding {
	cluster := ""
	if ctx.Snapshot != nil {
		cluster = ctx.Snapshot.ContextName
	}
	return models.Finding{
		ID:           fmt.Sprintf("%s:%s:anomaly", rule.ID(), cluster),
		RuleID:       rule.ID(),
		ResourceID:   cluster,
		ResourceType: models.ResourceK8sCluster,
		Cluster:      cluster,
		Severity:     models.SeverityInfo,
		Explanation: fmt.Sprintf(
			"Rule %q did not complete: %v. Its results for this run are incomplete.",
			rule.ID(), cause,
		),
		DetectedAt: time.Now().UTC(),
		Metadata: map[string]any{
			"anomaly": true,
		},
	}
}
