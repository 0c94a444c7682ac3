// Package posture provides the built-in cluster security posture rule pack.
// Registration order is the canonical presentation order: findings are
// grouped by rule in exactly this sequence, so reordering this list reorders
// every report.
package posture

import "github.com/pankaj-dahiya-devops/kube-posture/internal/rules"

// New returns the complete set of built-in posture rules in canonical order:
// workload checks first, then namespace governance, then RBAC.
func New() []rules.Rule {
	return []rules.Rule{
		// workload
		rules.PrivilegedContainerRule{}, // PrivilegedContainer
		rules.RootContainerRule{},       // RootContainer
		rules.HostPathMountRule{},       // HostPathMount

		// namespace governance
		rules.MissingNetworkPolicyRule{},       // MissingNetworkPolicy
		rules.MissingPodSecurityStandardRule{}, // MissingPodSecurityStandard

		// RBAC
		rules.NonSystemClusterAdminRule{}, // NonSystemClusterAdmin
	}
}
