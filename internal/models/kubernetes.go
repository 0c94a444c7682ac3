package models

import "github.com/samber/lo"

// ContainerSpec holds processed container data consumed by posture rules.
type ContainerSpec struct {
	// Name is the container name within the pod spec.
	Name string

	// Image is the full image reference as written in the pod spec.
	Image string

	// Privileged is true when securityContext.privileged == true.
	Privileged bool

	// RunAsUser is the declared UID, or nil when the pod spec does not set
	// one. Nil must never be treated as UID 0.
	RunAsUser *int64

	// AddedCapabilities lists Linux capabilities added via
	// securityContext.capabilities.add.
	AddedCapabilities []string
}

// HostPathVolume holds one hostPath volume declared by a pod.
type HostPathVolume struct {
	// VolumeName is the name of the volume entry in the pod spec.
	VolumeName string

	// Path is the host filesystem path the volume exposes.
	Path string
}

// PodRecord holds processed pod data consumed by posture rules.
type PodRecord struct {
	// Name is the pod name.
	Name string

	// Namespace is the Kubernetes namespace that owns this pod.
	Namespace string

	// ServiceAccountName is the pod's service account ("default" when unset).
	ServiceAccountName string

	// Containers holds per-container security data.
	Containers []ContainerSpec

	// HostPathVolumes lists the pod's hostPath volumes, empty when none.
	HostPathVolumes []HostPathVolume
}

// NamespaceRecord holds processed namespace data consumed by posture rules.
type NamespaceRecord struct {
	// Name is the Kubernetes namespace name.
	Name string

	// Labels is a copy of the namespace's label map. Pod Security Standard
	// enforcement labels live here.
	Labels map[string]string
}

// NetworkPolicyRecord holds processed NetworkPolicy data consumed by rules.
type NetworkPolicyRecord struct {
	// Name is the NetworkPolicy name.
	Name string

	// Namespace is the Kubernetes namespace that owns this policy.
	Namespace string

	// PodSelector is the policy's spec.podSelector.matchLabels map.
	PodSelector map[string]string
}

// BindingSubject is one subject of a ClusterRoleBinding.
type BindingSubject struct {
	// Kind is the subject kind ("User", "Group" or "ServiceAccount").
	Kind string

	// Name is the subject name.
	Name string
}

// ClusterRoleBindingRecord holds processed ClusterRoleBinding data consumed
// by posture rules.
type ClusterRoleBindingRecord struct {
	// Name is the binding name.
	Name string

	// RoleName is the referenced ClusterRole name.
	RoleName string

	// Subjects lists the bound subjects in manifest order.
	Subjects []BindingSubject
}

// ClusterSnapshot holds the full point-in-time cluster inventory consumed by
// posture rules. It is assembled once per run and passed via
// RuleContext.Snapshot; rules treat it as read-only.
type ClusterSnapshot struct {
	// ContextName is the kubeconfig context name identifying the cluster.
	ContextName string

	// Namespaces holds every namespace in the cluster.
	Namespaces []NamespaceRecord

	// Pods holds every pod across all namespaces.
	Pods []PodRecord

	// NetworkPolicies holds every NetworkPolicy across all namespaces.
	NetworkPolicies []NetworkPolicyRecord

	// ClusterRoleBindings holds every ClusterRoleBinding in the cluster.
	ClusterRoleBindings []ClusterRoleBindingRecord
}

// NetworkPoliciesByNamespace returns the count of NetworkPolicy records per
// namespace name. Namespaces with no policies are absent from the map.
func (s *ClusterSnapshot) NetworkPoliciesByNamespace() map[string]int {
	counts := make(map[string]int, len(s.NetworkPolicies))
	for _, np := range s.NetworkPolicies {
		counts[np.Namespace]++
	}
	return counts
}

// DistinctImages returns every distinct container image reference across the
// snapshot's pods, deduplicated by exact reference string in first-seen
// order. Empty references are skipped.
func (s *ClusterSnapshot) DistinctImages() []string {
	var refs []string
	for _, pod := range s.Pods {
		for _, c := range pod.Containers {
			if c.Image == "" {
				continue
			}
			refs = append(refs, c.Image)
		}
	}
	return lo.Uniq(refs)
}
