package rules

import (
	"fmt"
	"strings"
	"time"

	"github.com/pankaj-dahiya-devops/kube-posture/internal/models"
)

// ── NonSystemClusterAdmin ────────────────────────────────────────────────────

// clusterAdminRoleName is the built-in superuser ClusterRole. Only bindings
// to this exact role are inspected; custom wide-permission roles are out of
// scope for this rule.
const clusterAdminRoleName = "cluster-admin"

// NonSystemClusterAdminRule fires once per cluster-admin binding subject whose
// name does not start with "system:". Kubernetes-managed subjects (masters
// group, controller accounts) are expected holders; anything else is a human
// or workload with full cluster control.
type NonSystemClusterAdminRule struct{}

func (r NonSystemClusterAdminRule) ID() string   { return "NonSystemClusterAdmin" }
func (r NonSystemClusterAdminRule) Name() string { return "Non-System Subject Bound To cluster-admin" }

func (r NonSystemClusterAdminRule) Evaluate(ctx RuleContext) []models.Finding {
	if ctx.Snapshot == nil {
		return nil
	}
	var findings []models.Finding
	for _, crb := range ctx.Snapshot.ClusterRoleBindings {
		if crb.RoleName != clusterAdminRoleName {
			continue
		}
		for _, subject := range crb.Subjects {
			if strings.HasPrefix(subject.Name, "system:") {
				continue
			}
			findings = append(findings, models.Finding{
				ID:           fmt.Sprintf("%s:%s:%s/%s", r.ID(), ctx.Snapshot.ContextName, crb.Name, subject.Name),
				RuleID:       r.ID(),
				ResourceID:   subject.Name,
				ResourceType: models.ResourceK8sClusterRoleBinding,
				Cluster:      ctx.Snapshot.ContextName,
				Severity:     models.SeverityWarn,
				Explanation: fmt.Sprintf(
					"%s %q holds cluster-admin via ClusterRoleBinding %q.",
					subject.Kind, subject.Name, crb.Name,
				),
				Recommendation: "Replace the cluster-admin grant with a namespaced Role or a narrower " +
					"ClusterRole covering only the permissions this subject needs.",
				DetectedAt: time.Now().UTC(),
				Metadata: map[string]any{
					"binding":      crb.Name,
					"subject_kind": subject.Kind,
				},
			})
		}
	}
	return findings
}
