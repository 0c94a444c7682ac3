package rules

import (
	"github.com/pankaj-dahiya-devops/kube-posture/internal/models"
	"github.com/pankaj-dahiya-devops/kube-posture/internal/policy"
)

// RuleContext carries the collected cluster state for a single evaluation run.
// It is the sole input to Rule.Evaluate and must contain everything a rule
// needs; rules must never make network calls or read external state.
type RuleContext struct {
	// Snapshot holds the point-in-time cluster inventory. Rules must treat
	// it as read-only and must check for nil before use.
	Snapshot *models.ClusterSnapshot

	// Policy holds the active PolicyConfig for threshold overrides. May be nil
	// when no policy file is loaded; rules must treat nil as "use defaults".
	Policy *policy.PolicyConfig
}

// Rule is a single deterministic posture check.
// Rules must be stateless and safe to call concurrently.
// They must never call the Kubernetes API or any external service.
type Rule interface {
	// ID returns the unique, stable identifier for this rule
	// (e.g. "PrivilegedContainer").
	ID() string

	// Name returns a short human-readable rule name.
	Name() string

	// Evaluate inspects the provided context and returns zero or more findings.
	// An empty slice means no issue was detected.
	Evaluate(ctx RuleContext) []models.Finding
}

// RuleRegistry manages the set of active rules and drives evaluation.
type RuleRegistry interface {
	// Register adds a rule to the registry. Panics on duplicate ID.
	Register(rule Rule)

	// All returns all registered rules in registration order.
	All() []Rule

	// EvaluateAll runs every registered rule against ctx and merges results.
	EvaluateAll(ctx RuleContext) []models.Finding
}
