package models

import "time"

// Severity classifies the weight of a single finding.
// The set is closed: every finding carries exactly one of these values.
type Severity string

const (
	// SeverityFail marks a violated check that needs remediation.
	SeverityFail Severity = "FAIL"

	// SeverityWarn marks a weakened posture that should be reviewed.
	SeverityWarn Severity = "WARN"

	// SeverityInfo marks a neutral observation, including degraded-path
	// notices such as an unavailable scanner binary.
	SeverityInfo Severity = "INFO"

	// SeverityPass marks an explicitly verified-good check.
	SeverityPass Severity = "PASS"
)

// ResourceType identifies the kind of object a finding refers to.
type ResourceType string

const (
	ResourceK8sPod                ResourceType = "K8S_POD"
	ResourceK8sNamespace          ResourceType = "K8S_NAMESPACE"
	ResourceK8sCluster            ResourceType = "K8S_CLUSTER"
	ResourceK8sClusterRoleBinding ResourceType = "K8S_CLUSTERROLEBINDING"
	ResourceK8sImage              ResourceType = "K8S_IMAGE"
)

// Finding domains group findings by origin so policy can tune or disable a
// whole source at once.
const (
	// DomainPosture tags findings produced by the built-in rule set.
	DomainPosture = "posture"

	// DomainBenchmark tags findings produced by the CIS benchmark scanner.
	DomainBenchmark = "benchmark"

	// DomainImageScan tags findings produced by the image vulnerability
	// scanner.
	DomainImageScan = "imagescan"
)

// Finding is a single normalized result produced by a rule or scanner.
// Findings are immutable once created; downstream stages only read them.
type Finding struct {
	// ID uniquely identifies this finding within a report
	// (e.g. "PrivilegedContainer:prod-cluster:payments/api-7f9c/app").
	ID string `json:"id"`

	// RuleID is the stable identifier of the rule or scanner that produced
	// this finding (e.g. "PrivilegedContainer", "CISBenchmark").
	RuleID string `json:"rule_id"`

	// ResourceID names the evaluated subject: a pod, namespace, binding
	// subject, or image reference.
	ResourceID string `json:"resource_id"`

	// ResourceType is the kind of the evaluated subject.
	ResourceType ResourceType `json:"resource_type"`

	// Namespace is the owning namespace, or "" for cluster-scoped subjects.
	Namespace string `json:"namespace,omitempty"`

	// Cluster is the kubeconfig context name of the evaluated cluster.
	Cluster string `json:"cluster"`

	// Domain groups findings by origin: "posture" for built-in rules,
	// "benchmark" and "imagescan" for the external scanners.
	Domain string `json:"domain,omitempty"`

	// Severity is the finding weight (FAIL, WARN, INFO or PASS).
	Severity Severity `json:"severity"`

	// Explanation is a human-readable statement of what was observed.
	Explanation string `json:"explanation"`

	// Recommendation is a short actionable remediation, empty for PASS/INFO.
	Recommendation string `json:"recommendation,omitempty"`

	// DetectedAt is the UTC time this finding was created.
	DetectedAt time.Time `json:"detected_at"`

	// Metadata holds optional structured detail (counts, volume names, ...).
	Metadata map[string]any `json:"metadata,omitempty"`
}

// ClusterMeta describes the evaluated cluster for the report header.
// It is informational only; rules never read it.
type ClusterMeta struct {
	// ContextName is the kubeconfig context the evaluation ran against.
	ContextName string `json:"context_name"`

	// Server is the API server URL from the kubeconfig.
	Server string `json:"server,omitempty"`

	// ServerVersion is the Kubernetes version reported by the discovery
	// endpoint, or "unknown" when the probe failed.
	ServerVersion string `json:"server_version,omitempty"`

	// Provider is the detected managed-cluster flavor
	// ("eks", "gke", "aks" or "unknown").
	Provider string `json:"provider,omitempty"`

	// NodeCount, NamespaceCount and PodCount size the evaluated inventory.
	NodeCount      int `json:"node_count"`
	NamespaceCount int `json:"namespace_count"`
	PodCount       int `json:"pod_count"`
}

// AuditSummary holds aggregate counts over the findings of one report.
// Invariant: the per-severity counts always sum to TotalFindings and always
// equal a fresh tally of the report's findings slice.
type AuditSummary struct {
	TotalFindings int `json:"total_findings"`
	FailFindings  int `json:"fail_findings"`
	WarnFindings  int `json:"warn_findings"`
	InfoFindings  int `json:"info_findings"`
	PassFindings  int `json:"pass_findings"`
}

// AuditReport is the complete output of one evaluation run.
type AuditReport struct {
	// ReportID uniquely identifies this run (e.g. "posture-1718031622000000000").
	ReportID string `json:"report_id"`

	// GeneratedAt is the UTC completion time of the run.
	GeneratedAt time.Time `json:"generated_at"`

	// AuditType describes the audit flavor (currently always "posture").
	AuditType string `json:"audit_type"`

	// Cluster is the header metadata for the evaluated cluster.
	Cluster ClusterMeta `json:"cluster"`

	// Summary holds aggregate severity counts over Findings.
	Summary AuditSummary `json:"summary"`

	// Findings is the full ordered finding list.
	Findings []Finding `json:"findings"`

	// Metadata holds report-level annotations (scanner versions, timings).
	Metadata map[string]any `json:"metadata,omitempty"`
}
