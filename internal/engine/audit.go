package engine

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/samber/lo"
	"github.com/sirupsen/logrus"
	k8sclient "k8s.io/client-go/kubernetes"

	"github.com/pankaj-dahiya-devops/kube-posture/internal/models"
	"github.com/pankaj-dahiya-devops/kube-posture/internal/policy"
	kube "github.com/pankaj-dahiya-devops/kube-posture/internal/providers/kubernetes"
	"github.com/pankaj-dahiya-devops/kube-posture/internal/rules"
)

// PostureEngine is the production implementation of Engine.
// It connects to the cluster, collects the snapshot, evaluates the
// registered rules, sequences the optional scanners, and assembles the
// report. All external access goes through the injected provider and
// scanner interfaces.
type PostureEngine struct {
	provider  kube.KubeClientProvider
	registry  rules.RuleRegistry
	policy    *policy.PolicyConfig
	benchmark BenchmarkScanner // nil disables the benchmark scan
	images    ImageScanner     // nil disables the image scan
	artifacts ArtifactPreparer // nil skips output-directory preparation
	log       *logrus.Entry
}

// NewPostureEngine constructs a PostureEngine that evaluates rules only.
// Use NewPostureEngineWithScanners to sequence the external scanners too.
func NewPostureEngine(
	provider kube.KubeClientProvider,
	registry rules.RuleRegistry,
	policyCfg *policy.PolicyConfig,
) *PostureEngine {
	return &PostureEngine{
		provider: provider,
		registry: registry,
		policy:   policyCfg,
		log:      logrus.WithField("component", "engine"),
	}
}

// NewPostureEngineWithScanners constructs a PostureEngine that additionally
// sequences the external scanners after rule evaluation and prepares the
// artifact directory once collection succeeds.
//
// benchmark, images and artifacts may each be nil (independently optional).
func NewPostureEngineWithScanners(
	provider kube.KubeClientProvider,
	registry rules.RuleRegistry,
	policyCfg *policy.PolicyConfig,
	benchmark BenchmarkScanner,
	images ImageScanner,
	artifacts ArtifactPreparer,
) *PostureEngine {
	return &PostureEngine{
		provider:  provider,
		registry:  registry,
		policy:    policyCfg,
		benchmark: benchmark,
		images:    images,
		artifacts: artifacts,
		log:       logrus.WithField("component", "engine"),
	}
}

// RunAudit connects to the cluster, collects the snapshot, evaluates all
// registered rules, runs the enabled scanners, applies policy filtering per
// domain, and returns the aggregated AuditReport.
//
// Errors escape only for failed preconditions (connection, collection,
// output directory); scanner trouble surfaces as INFO findings instead.
func (e *PostureEngine) RunAudit(ctx context.Context, opts AuditOptions) (*models.AuditReport, error) {
	clientset, info, err := e.provider.ClientsetForContext(opts.ContextName)
	if err != nil {
		return nil, fmt.Errorf("connect to cluster: %w", err)
	}

	snap, err := kube.CollectSnapshot(ctx, clientset, info)
	if err != nil {
		return nil, fmt.Errorf("collect cluster state: %w", err)
	}

	// Create the output directory only now: a run that failed above must
	// leave nothing on disk.
	if e.artifacts != nil {
		if err := e.artifacts.EnsureDir(); err != nil {
			return nil, err
		}
	}

	snapshot := convertSnapshot(snap)
	e.log.WithFields(logrus.Fields{
		"namespaces": len(snapshot.Namespaces),
		"pods":       len(snapshot.Pods),
		"bindings":   len(snapshot.ClusterRoleBindings),
	}).Info("cluster state collected")

	raw := e.registry.EvaluateAll(rules.RuleContext{Snapshot: snapshot, Policy: e.policy})
	stampDomain(raw, models.DomainPosture)
	findings := policy.ApplyPolicy(raw, models.DomainPosture, e.policy)

	// Scanners run after rule evaluation so their rule IDs group after the
	// built-in rules. A domain disabled by policy skips its scanner entirely.
	if e.benchmark != nil && policy.DomainEnabled(models.DomainBenchmark, e.policy) {
		benchFindings := e.benchmark.Scan(ctx, info.ContextName)
		findings = append(findings, policy.ApplyPolicy(benchFindings, models.DomainBenchmark, e.policy)...)
	}
	if e.images != nil && policy.DomainEnabled(models.DomainImageScan, e.policy) {
		imageFindings := e.images.Scan(ctx, info.ContextName, snapshot.DistinctImages())
		findings = append(findings, policy.ApplyPolicy(imageFindings, models.DomainImageScan, e.policy)...)
	}

	findings = aggregateFindings(findings, e.ruleOrder())
	e.log.Debugf("report assembled with %d findings", len(findings))

	return &models.AuditReport{
		ReportID:    fmt.Sprintf("posture-%d", time.Now().UnixNano()),
		GeneratedAt: time.Now().UTC(),
		AuditType:   string(AuditTypePosture),
		Cluster: models.ClusterMeta{
			ContextName:    info.ContextName,
			Server:         info.Server,
			ServerVersion:  probeServerVersion(clientset),
			Provider:       detectClusterProvider(snap.Nodes),
			NodeCount:      len(snap.Nodes),
			NamespaceCount: len(snap.Namespaces),
			PodCount:       len(snap.Pods),
		},
		Summary:  computeSummary(findings),
		Findings: findings,
	}, nil
}

// ruleOrder returns the canonical grouping order: registered rule IDs in
// registration order. Scanner findings are appended after rule findings in
// RunAudit, so aggregateFindings slots their rule IDs after these in
// first-seen order (benchmark, then image scan).
func (e *PostureEngine) ruleOrder() []string {
	return lo.Map(e.registry.All(), func(r rules.Rule, _ int) string {
		return r.ID()
	})
}

// probeServerVersion asks the discovery endpoint for the server version.
// The version is report metadata, not evidence, so a failed or empty probe
// degrades to "unknown" instead of aborting the run.
func probeServerVersion(clientset k8sclient.Interface) string {
	v, err := clientset.Discovery().ServerVersion()
	if err != nil || v == nil || v.GitVersion == "" {
		return "unknown"
	}
	return v.GitVersion
}

// detectClusterProvider inspects node ProviderID prefixes and well-known
// labels to determine the managed-cluster flavor. Returns "eks", "gke",
// "aks", or "unknown". The result feeds the report header only; rule
// evaluation never reads it.
func detectClusterProvider(nodes []kube.NodeInfo) string {
	for _, n := range nodes {
		switch {
		case strings.HasPrefix(n.ProviderID, "aws://"):
			return "eks"
		case strings.HasPrefix(n.ProviderID, "gce://"):
			return "gke"
		case strings.HasPrefix(n.ProviderID, "azure://"):
			return "aks"
		}
		if _, ok := n.Labels["eks.amazonaws.com/nodegroup"]; ok {
			return "eks"
		}
		if _, ok := n.Labels["cloud.google.com/gke-nodepool"]; ok {
			return "gke"
		}
		if _, ok := n.Labels["kubernetes.azure.com/cluster"]; ok {
			return "aks"
		}
	}
	return "unknown"
}

// convertSnapshot translates the provider-layer Snapshot into the
// model-layer ClusterSnapshot consumed by rule evaluation. Label and
// selector maps are copied so rules can never alias provider-owned state.
func convertSnapshot(snap *kube.Snapshot) *models.ClusterSnapshot {
	s := &models.ClusterSnapshot{
		ContextName: snap.ClusterInfo.ContextName,
	}
	for _, ns := range snap.Namespaces {
		labels := make(map[string]string, len(ns.Labels))
		for k, v := range ns.Labels {
			labels[k] = v
		}
		s.Namespaces = append(s.Namespaces, models.NamespaceRecord{
			Name:   ns.Name,
			Labels: labels,
		})
	}
	for _, pod := range snap.Pods {
		rec := models.PodRecord{
			Name:               pod.Name,
			Namespace:          pod.Namespace,
			ServiceAccountName: pod.ServiceAccountName,
		}
		for _, c := range pod.Containers {
			rec.Containers = append(rec.Containers, models.ContainerSpec{
				Name:              c.Name,
				Image:             c.Image,
				Privileged:        c.Privileged,
				RunAsUser:         c.RunAsUser,
				AddedCapabilities: append([]string(nil), c.AddedCapabilities...),
			})
		}
		for _, v := range pod.HostPathVolumes {
			rec.HostPathVolumes = append(rec.HostPathVolumes, models.HostPathVolume{
				VolumeName: v.VolumeName,
				Path:       v.Path,
			})
		}
		s.Pods = append(s.Pods, rec)
	}
	for _, np := range snap.NetworkPolicies {
		selector := make(map[string]string, len(np.PodSelector))
		for k, v := range np.PodSelector {
			selector[k] = v
		}
		s.NetworkPolicies = append(s.NetworkPolicies, models.NetworkPolicyRecord{
			Name:        np.Name,
			Namespace:   np.Namespace,
			PodSelector: selector,
		})
	}
	for _, crb := range snap.ClusterRoleBindings {
		rec := models.ClusterRoleBindingRecord{
			Name:     crb.Name,
			RoleName: crb.RoleName,
		}
		for _, sub := range crb.Subjects {
			rec.Subjects = append(rec.Subjects, models.BindingSubject{
				Kind: sub.Kind,
				Name: sub.Name,
			})
		}
		s.ClusterRoleBindings = append(s.ClusterRoleBindings, rec)
	}
	return s
}
