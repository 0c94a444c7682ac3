package rules

import (
	"fmt"
	"strings"
	"time"

	"github.com/pankaj-dahiya-devops/kube-posture/internal/models"
)

// ── PrivilegedContainer ──────────────────────────────────────────────────────

// PrivilegedContainerRule fires for each container running with
// securityContext.privileged == true. Privileged containers have full host
// access and significantly expand the attack surface.
type PrivilegedContainerRule struct{}

func (r PrivilegedContainerRule) ID() string   { return "PrivilegedContainer" }
func (r PrivilegedContainerRule) Name() string { return "Privileged Container Detected" }

func (r PrivilegedContainerRule) Evaluate(ctx RuleContext) []models.Finding {
	if ctx.Snapshot == nil {
		return nil
	}
	var findings []models.Finding
	for _, pod := range ctx.Snapshot.Pods {
		for _, c := range pod.Containers {
			if !c.Privileged {
				continue
			}
			findings = append(findings, models.Finding{
				ID:           fmt.Sprintf("%s:%s:%s/%s/%s", r.ID(), ctx.Snapshot.ContextName, pod.Namespace, pod.Name, c.Name),
				RuleID:       r.ID(),
				ResourceID:   pod.Name,
				ResourceType: models.ResourceK8sPod,
				Namespace:    pod.Namespace,
				Cluster:      ctx.Snapshot.ContextName,
				Severity:     models.SeverityFail,
				Explanation: fmt.Sprintf(
					"Container %q in pod %q (namespace %q) is running with a privileged security context.",
					c.Name, pod.Name, pod.Namespace,
				),
				Recommendation: "Remove the privileged flag from the container security context. " +
					"Use Pod Security Admission to block privileged containers cluster-wide.",
				DetectedAt: time.Now().UTC(),
				Metadata: map[string]any{
					"container_name": c.Name,
					"image":          c.Image,
				},
			})
		}
	}
	return findings
}

// ── RootContainer ────────────────────────────────────────────────────────────

// RootContainerRule fires for each container whose effective runAsUser is
// explicitly UID 0. An absent runAsUser is not treated as root: the effective
// UID then depends on the image and cannot be judged from the pod spec alone.
type RootContainerRule struct{}

func (r RootContainerRule) ID() string   { return "RootContainer" }
func (r RootContainerRule) Name() string { return "Container Runs As Root" }

func (r RootContainerRule) Evaluate(ctx RuleContext) []models.Finding {
	if ctx.Snapshot == nil {
		return nil
	}
	var findings []models.Finding
	for _, pod := range ctx.Snapshot.Pods {
		for _, c := range pod.Containers {
			if c.RunAsUser == nil || *c.RunAsUser != 0 {
				continue
			}
			findings = append(findings, models.Finding{
				ID:           fmt.Sprintf("%s:%s:%s/%s/%s", r.ID(), ctx.Snapshot.ContextName, pod.Namespace, pod.Name, c.Name),
				RuleID:       r.ID(),
				ResourceID:   pod.Name,
				ResourceType: models.ResourceK8sPod,
				Namespace:    pod.Namespace,
				Cluster:      ctx.Snapshot.ContextName,
				Severity:     models.SeverityWarn,
				Explanation: fmt.Sprintf(
					"Container %q in pod %q (namespace %q) runs as UID 0 (root).",
					c.Name, pod.Name, pod.Namespace,
				),
				Recommendation: "Set runAsUser to a non-zero UID and runAsNonRoot: true in the container security context.",
				DetectedAt:     time.Now().UTC(),
				Metadata: map[string]any{
					"container_name": c.Name,
					"image":          c.Image,
				},
			})
		}
	}
	return findings
}

// ── HostPathMount ────────────────────────────────────────────────────────────

// HostPathMountRule fires once per pod that mounts at least one hostPath
// volume. The finding names every offending volume so one pod produces one
// finding regardless of how many host paths it mounts.
type HostPathMountRule struct{}

func (r HostPathMountRule) ID() string   { return "HostPathMount" }
func (r HostPathMountRule) Name() string { return "Pod Mounts Host Filesystem" }

func (r HostPathMountRule) Evaluate(ctx RuleContext) []models.Finding {
	if ctx.Snapshot == nil {
		return nil
	}
	var findings []models.Finding
	for _, pod := range ctx.Snapshot.Pods {
		if len(pod.HostPathVolumes) == 0 {
			continue
		}
		names := make([]string, 0, len(pod.HostPathVolumes))
		paths := make([]string, 0, len(pod.HostPathVolumes))
		for _, v := range pod.HostPathVolumes {
			names = append(names, v.VolumeName)
			paths = append(paths, v.Path)
		}
		findings = append(findings, models.Finding{
			ID:           fmt.Sprintf("%s:%s:%s/%s", r.ID(), ctx.Snapshot.ContextName, pod.Namespace, pod.Name),
			RuleID:       r.ID(),
			ResourceID:   pod.Name,
			ResourceType: models.ResourceK8sPod,
			Namespace:    pod.Namespace,
			Cluster:      ctx.Snapshot.ContextName,
			Severity:     models.SeverityWarn,
			Explanation: fmt.Sprintf(
				"Pod %q (namespace %q) mounts host filesystem path(s) %s via hostPath volume(s) %s.",
				pod.Name, pod.Namespace, strings.Join(paths, ", "), strings.Join(names, ", "),
			),
			Recommendation: "Replace hostPath volumes with PersistentVolumes or projected volumes; " +
				"if host access is unavoidable, mount read-only and restrict the path.",
			DetectedAt: time.Now().UTC(),
			Metadata: map[string]any{
				"volume_names": names,
				"host_paths":   paths,
			},
		})
	}
	return findings
}
