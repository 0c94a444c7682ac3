package kubernetes

// ClusterInfo identifies a Kubernetes cluster and the kubeconfig context used
// to connect to it.
type ClusterInfo struct {
	// ContextName is the kubeconfig context name used to connect.
	ContextName string

	// Server is the Kubernetes API server URL resolved from the kubeconfig.
	Server string
}

// NodeInfo holds node metadata used for the report header and managed-cluster
// provider detection. Node data never feeds rule evaluation.
type NodeInfo struct {
	// Name is the node name.
	Name string

	// ProviderID is node.Spec.ProviderID, used for cloud provider detection.
	// Format examples: "aws:///us-east-1a/i-xxx", "gce://project/zone/name".
	ProviderID string

	// Labels is a copy of the node's label map, used for provider detection
	// (e.g. "eks.amazonaws.com/nodegroup", "cloud.google.com/gke-nodepool").
	Labels map[string]string

	// KubeletVersion is node.Status.NodeInfo.KubeletVersion.
	KubeletVersion string
}

// NamespaceInfo holds basic namespace metadata.
type NamespaceInfo struct {
	Name string

	// Labels is a copy of the namespace's label map, used for Pod Security
	// Standard enforcement checks.
	Labels map[string]string
}

// ContainerInfo holds per-container security data.
type ContainerInfo struct {
	// Name is the container name within the pod spec.
	Name string

	// Image is the full image reference as written in the pod spec.
	Image string

	// Privileged is true when securityContext.privileged == true.
	Privileged bool

	// RunAsUser is the effective UID (container-level overrides pod-level).
	// Nil means not configured.
	RunAsUser *int64

	// AddedCapabilities lists the Linux capabilities added via
	// securityContext.capabilities.add.
	AddedCapabilities []string
}

// HostPathVolumeInfo describes one hostPath volume declared in a pod spec.
type HostPathVolumeInfo struct {
	// VolumeName is the name of the volume entry.
	VolumeName string

	// Path is the host filesystem path the volume exposes.
	Path string
}

// PodInfo holds basic pod metadata and its container list.
type PodInfo struct {
	// Name is the pod name.
	Name string

	// Namespace is the Kubernetes namespace that owns this pod.
	Namespace string

	// ServiceAccountName is the service account the pod runs as
	// (spec.serviceAccountName, "default" when unset).
	ServiceAccountName string

	// Containers holds per-container security data.
	Containers []ContainerInfo

	// HostPathVolumes lists hostPath volumes declared by the pod spec.
	HostPathVolumes []HostPathVolumeInfo
}

// NetworkPolicyInfo holds basic NetworkPolicy metadata.
type NetworkPolicyInfo struct {
	// Name is the NetworkPolicy name.
	Name string

	// Namespace is the Kubernetes namespace that owns this policy.
	Namespace string

	// PodSelector is a copy of spec.podSelector.matchLabels.
	PodSelector map[string]string
}

// SubjectInfo is one subject entry of a ClusterRoleBinding.
type SubjectInfo struct {
	// Kind is the subject kind ("User", "Group" or "ServiceAccount").
	Kind string

	// Name is the subject name.
	Name string
}

// ClusterRoleBindingInfo holds basic ClusterRoleBinding metadata.
type ClusterRoleBindingInfo struct {
	// Name is the binding name.
	Name string

	// RoleName is the referenced ClusterRole name (roleRef.name).
	RoleName string

	// Subjects lists bound subjects in manifest order.
	Subjects []SubjectInfo
}

// Snapshot is the point-in-time inventory collected from a single Kubernetes
// cluster. Each kind is listed exactly once per run; the snapshot is the sole
// input to rule evaluation.
type Snapshot struct {
	ClusterInfo         ClusterInfo
	Nodes               []NodeInfo
	Namespaces          []NamespaceInfo
	Pods                []PodInfo
	NetworkPolicies     []NetworkPolicyInfo
	ClusterRoleBindings []ClusterRoleBindingInfo
}
