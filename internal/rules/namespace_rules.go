package rules

import (
	"fmt"
	"time"

	"github.com/pankaj-dahiya-devops/kube-posture/internal/models"
)

// ── MissingNetworkPolicy ─────────────────────────────────────────────────────

// MissingNetworkPolicyRule fires for each namespace with zero NetworkPolicy
// objects, meaning all pod-to-pod traffic in the namespace is unrestricted.
// Empty namespaces fire too: an unfenced namespace is a standing risk for
// whatever lands there next.
type MissingNetworkPolicyRule struct{}

func (r MissingNetworkPolicyRule) ID() string   { return "MissingNetworkPolicy" }
func (r MissingNetworkPolicyRule) Name() string { return "Namespace Without NetworkPolicy" }

func (r MissingNetworkPolicyRule) Evaluate(ctx RuleContext) []models.Finding {
	if ctx.Snapshot == nil {
		return nil
	}
	counts := ctx.Snapshot.NetworkPoliciesByNamespace()
	var findings []models.Finding
	for _, ns := range ctx.Snapshot.Namespaces {
		if counts[ns.Name] > 0 {
			continue
		}
		findings = append(findings, models.Finding{
			ID:           fmt.Sprintf("%s:%s:%s", r.ID(), ctx.Snapshot.ContextName, ns.Name),
			RuleID:       r.ID(),
			ResourceID:   ns.Name,
			ResourceType: models.ResourceK8sNamespace,
			Cluster:      ctx.Snapshot.ContextName,
			Severity:     models.SeverityWarn,
			Explanation: fmt.Sprintf(
				"Namespace %q has no NetworkPolicy; all ingress and egress traffic is unrestricted.",
				ns.Name,
			),
			Recommendation: fmt.Sprintf(
				"Add a default-deny NetworkPolicy to namespace %q and allow only required traffic.",
				ns.Name,
			),
			DetectedAt: time.Now().UTC(),
		})
	}
	return findings
}

// ── MissingPodSecurityStandard ───────────────────────────────────────────────

// psaEnforceLabel is the namespace label that turns on Pod Security Standard
// enforcement for workloads in that namespace.
const psaEnforceLabel = "pod-security.kubernetes.io/enforce"

// MissingPodSecurityStandardRule fires for each namespace that does not carry
// the Pod Security Standard enforcement label. Only presence is checked; the
// configured level (baseline, restricted, ...) is not judged.
type MissingPodSecurityStandardRule struct{}

func (r MissingPodSecurityStandardRule) ID() string { return "MissingPodSecurityStandard" }
func (r MissingPodSecurityStandardRule) Name() string {
	return "Namespace Without Pod Security Standard"
}

func (r MissingPodSecurityStandardRule) Evaluate(ctx RuleContext) []models.Finding {
	if ctx.Snapshot == nil {
		return nil
	}
	var findings []models.Finding
	for _, ns := range ctx.Snapshot.Namespaces {
		if _, ok := ns.Labels[psaEnforceLabel]; ok {
			continue
		}
		findings = append(findings, models.Finding{
			ID:           fmt.Sprintf("%s:%s:%s", r.ID(), ctx.Snapshot.ContextName, ns.Name),
			RuleID:       r.ID(),
			ResourceID:   ns.Name,
			ResourceType: models.ResourceK8sNamespace,
			Cluster:      ctx.Snapshot.ContextName,
			Severity:     models.SeverityWarn,
			Explanation: fmt.Sprintf(
				"Namespace %q does not enforce a Pod Security Standard (missing %q label).",
				ns.Name, psaEnforceLabel,
			),
			Recommendation: fmt.Sprintf(
				"Label namespace %q with %s=baseline (or restricted) to enforce a Pod Security Standard.",
				ns.Name, psaEnforceLabel,
			),
			DetectedAt: time.Now().UTC(),
		})
	}
	return findings
}
