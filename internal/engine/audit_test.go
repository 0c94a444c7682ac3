package engine

import (
	"context"
	"errors"
	"strings"
	"testing"

	corev1 "k8s.io/api/core/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/runtime"
	"k8s.io/apimachinery/pkg/version"
	fakediscovery "k8s.io/client-go/discovery/fake"
	k8sclient "k8s.io/client-go/kubernetes"
	"k8s.io/client-go/kubernetes/fake"
	k8stesting "k8s.io/client-go/testing"

	"github.com/pankaj-dahiya-devops/kube-posture/internal/models"
	"github.com/pankaj-dahiya-devops/kube-posture/internal/policy"
	kube "github.com/pankaj-dahiya-devops/kube-posture/internal/providers/kubernetes"
	"github.com/pankaj-dahiya-devops/kube-posture/internal/rulepacks/posture"
	"github.com/pankaj-dahiya-devops/kube-posture/internal/rules"
)

// fakeKubeProvider is a test double for kube.KubeClientProvider that returns
// a pre-built fake clientset.
type fakeKubeProvider struct {
	clientset k8sclient.Interface
	info      kube.ClusterInfo
	err       error
}

func (f *fakeKubeProvider) ClientsetForContext(_ string) (k8sclient.Interface, kube.ClusterInfo, error) {
	if f.err != nil {
		return nil, kube.ClusterInfo{}, f.err
	}
	return f.clientset, f.info, nil
}

// stubBenchmark records invocations and returns canned findings.
type stubBenchmark struct {
	findings []models.Finding
	calls    int
}

func (s *stubBenchmark) Scan(_ context.Context, _ string) []models.Finding {
	s.calls++
	return s.findings
}

// stubImages records the image list it was handed and returns canned findings.
type stubImages struct {
	findings  []models.Finding
	gotImages []string
	calls     int
}

func (s *stubImages) Scan(_ context.Context, _ string, images []string) []models.Finding {
	s.calls++
	s.gotImages = images
	return s.findings
}

// stubPreparer records EnsureDir calls and can be made to fail.
type stubPreparer struct {
	calls int
	err   error
}

func (p *stubPreparer) EnsureDir() error {
	p.calls++
	return p.err
}

// k8sNamespace builds a corev1.Namespace with labels.
func k8sNamespace(name string, labels map[string]string) *corev1.Namespace {
	return &corev1.Namespace{
		ObjectMeta: metav1.ObjectMeta{Name: name, Labels: labels},
	}
}

// k8sPod builds a single-container pod; privileged toggles its security
// context.
func k8sPod(namespace, name, image string, privileged bool) *corev1.Pod {
	return &corev1.Pod{
		ObjectMeta: metav1.ObjectMeta{Name: name, Namespace: namespace},
		Spec: corev1.PodSpec{
			Containers: []corev1.Container{
				{
					Name:  "app",
					Image: image,
					SecurityContext: &corev1.SecurityContext{
						Privileged: &privileged,
					},
				},
			},
		},
	}
}

// k8sNode builds a node with the given provider ID.
func k8sNode(name, providerID string) *corev1.Node {
	return &corev1.Node{
		ObjectMeta: metav1.ObjectMeta{Name: name},
		Spec:       corev1.NodeSpec{ProviderID: providerID},
	}
}

// newTestRegistry builds a registry with the full built-in rule pack.
func newTestRegistry() rules.RuleRegistry {
	registry := rules.NewDefaultRuleRegistry()
	for _, r := range posture.New() {
		registry.Register(r)
	}
	return registry
}

// TestPostureEngine_RunAudit_BuildsReport verifies the full pipeline: a
// cluster with one privileged pod in one unguarded namespace yields a report
// with the expected findings, domains, metadata, and summary invariant.
func TestPostureEngine_RunAudit_BuildsReport(t *testing.T) {
	fakeClient := fake.NewSimpleClientset(
		k8sNode("node-1", "aws:///us-east-1a/i-0abc"),
		k8sNamespace("prod", nil),
		k8sPod("prod", "api", "nginx:1.27", true),
	)
	fakeClient.Discovery().(*fakediscovery.FakeDiscovery).FakedServerVersion = &version.Info{GitVersion: "v1.31.2"}
	provider := &fakeKubeProvider{
		clientset: fakeClient,
		info:      kube.ClusterInfo{ContextName: "audit-ctx", Server: "https://127.0.0.1:6443"},
	}

	eng := NewPostureEngine(provider, newTestRegistry(), nil)
	report, err := eng.RunAudit(context.Background(), AuditOptions{})
	if err != nil {
		t.Fatalf("RunAudit error: %v", err)
	}

	// Expected: PrivilegedContainer (FAIL) + MissingNetworkPolicy (WARN) +
	// MissingPodSecurityStandard (WARN), in registration order.
	if len(report.Findings) != 3 {
		t.Fatalf("findings count = %d; want 3: %+v", len(report.Findings), report.Findings)
	}
	wantRules := []string{"PrivilegedContainer", "MissingNetworkPolicy", "MissingPodSecurityStandard"}
	for i, ruleID := range wantRules {
		if report.Findings[i].RuleID != ruleID {
			t.Errorf("findings[%d].RuleID = %q; want %q", i, report.Findings[i].RuleID, ruleID)
		}
		if report.Findings[i].Domain != models.DomainPosture {
			t.Errorf("findings[%d].Domain = %q; want %q", i, report.Findings[i].Domain, models.DomainPosture)
		}
	}

	if report.AuditType != string(AuditTypePosture) {
		t.Errorf("AuditType = %q; want posture", report.AuditType)
	}
	if !strings.HasPrefix(report.ReportID, "posture-") {
		t.Errorf("ReportID = %q; want posture-<nanos>", report.ReportID)
	}
	if report.Cluster.ContextName != "audit-ctx" {
		t.Errorf("Cluster.ContextName = %q; want audit-ctx", report.Cluster.ContextName)
	}
	if report.Cluster.ServerVersion != "v1.31.2" {
		t.Errorf("Cluster.ServerVersion = %q; want v1.31.2", report.Cluster.ServerVersion)
	}
	if report.Cluster.Provider != "eks" {
		t.Errorf("Cluster.Provider = %q; want eks", report.Cluster.Provider)
	}
	if report.Cluster.NodeCount != 1 || report.Cluster.NamespaceCount != 1 || report.Cluster.PodCount != 1 {
		t.Errorf("counts = %d/%d/%d; want 1/1/1",
			report.Cluster.NodeCount, report.Cluster.NamespaceCount, report.Cluster.PodCount)
	}

	if report.Summary.FailFindings != 1 || report.Summary.WarnFindings != 2 {
		t.Errorf("Summary = %+v; want 1 FAIL, 2 WARN", report.Summary)
	}
	sum := report.Summary.FailFindings + report.Summary.WarnFindings +
		report.Summary.InfoFindings + report.Summary.PassFindings
	if sum != report.Summary.TotalFindings {
		t.Errorf("severity counts sum to %d; want TotalFindings %d", sum, report.Summary.TotalFindings)
	}
}

// TestPostureEngine_ConnectFailure verifies that an unusable kubeconfig
// aborts the run before anything is prepared on disk.
func TestPostureEngine_ConnectFailure(t *testing.T) {
	provider := &fakeKubeProvider{err: errors.New("context \"missing\" does not exist")}
	prep := &stubPreparer{}

	eng := NewPostureEngineWithScanners(provider, newTestRegistry(), nil, nil, nil, prep)
	report, err := eng.RunAudit(context.Background(), AuditOptions{ContextName: "missing"})
	if err == nil {
		t.Fatal("RunAudit error = nil; want connect failure")
	}
	if report != nil {
		t.Errorf("report = %+v; want nil on failure", report)
	}
	if prep.calls != 0 {
		t.Errorf("EnsureDir called %d times before a failed connect; want 0", prep.calls)
	}
}

// TestPostureEngine_CollectFailure verifies that a failed list call aborts
// the run with a wrapped error and leaves the output directory uncreated.
func TestPostureEngine_CollectFailure(t *testing.T) {
	fakeClient := fake.NewSimpleClientset(k8sNamespace("default", nil))
	fakeClient.PrependReactor("list", "pods", func(_ k8stesting.Action) (bool, runtime.Object, error) {
		return true, nil, errors.New("pods is forbidden")
	})
	provider := &fakeKubeProvider{clientset: fakeClient, info: kube.ClusterInfo{ContextName: "rbac-ctx"}}
	prep := &stubPreparer{}

	eng := NewPostureEngineWithScanners(provider, newTestRegistry(), nil, nil, nil, prep)
	_, err := eng.RunAudit(context.Background(), AuditOptions{})
	if err == nil {
		t.Fatal("RunAudit error = nil; want collect failure")
	}
	if !strings.Contains(err.Error(), "collect cluster state") {
		t.Errorf("error = %q; want collect cluster state context", err)
	}
	if prep.calls != 0 {
		t.Errorf("EnsureDir called %d times after a failed collect; want 0", prep.calls)
	}
}

// TestPostureEngine_OutputDirFailure verifies that an uncreatable output
// directory is fatal and stops the run before any scanner is invoked.
func TestPostureEngine_OutputDirFailure(t *testing.T) {
	fakeClient := fake.NewSimpleClientset(k8sNamespace("default", nil))
	provider := &fakeKubeProvider{clientset: fakeClient, info: kube.ClusterInfo{ContextName: "ctx"}}
	prep := &stubPreparer{err: errors.New("mkdir /readonly: permission denied")}
	bench := &stubBenchmark{}

	eng := NewPostureEngineWithScanners(provider, newTestRegistry(), nil, bench, nil, prep)
	_, err := eng.RunAudit(context.Background(), AuditOptions{})
	if err == nil {
		t.Fatal("RunAudit error = nil; want output directory failure")
	}
	if bench.calls != 0 {
		t.Errorf("benchmark scanner ran %d times after a failed EnsureDir; want 0", bench.calls)
	}
}

// TestPostureEngine_ScannerFindingsFollowRules verifies that scanner findings
// are appended after the rule groups, keep their own domains, and count into
// the summary.
func TestPostureEngine_ScannerFindingsFollowRules(t *testing.T) {
	fakeClient := fake.NewSimpleClientset(
		k8sNamespace("prod", nil),
		k8sPod("prod", "api", "nginx:1.27", true),
	)
	provider := &fakeKubeProvider{clientset: fakeClient, info: kube.ClusterInfo{ContextName: "scan-ctx"}}

	bench := &stubBenchmark{findings: []models.Finding{{
		ID: "CISBenchmark:scan-ctx:1.1.1", RuleID: "CISBenchmark",
		ResourceID: "scan-ctx", ResourceType: models.ResourceK8sCluster,
		Domain: models.DomainBenchmark, Severity: models.SeverityFail,
	}}}
	images := &stubImages{findings: []models.Finding{{
		ID: "ImageVulnerability:scan-ctx:nginx:1.27", RuleID: "ImageVulnerability",
		ResourceID: "nginx:1.27", ResourceType: models.ResourceK8sImage,
		Domain: models.DomainImageScan, Severity: models.SeverityPass,
	}}}

	eng := NewPostureEngineWithScanners(provider, newTestRegistry(), nil, bench, images, nil)
	report, err := eng.RunAudit(context.Background(), AuditOptions{})
	if err != nil {
		t.Fatalf("RunAudit error: %v", err)
	}

	if bench.calls != 1 || images.calls != 1 {
		t.Fatalf("scanner calls = %d/%d; want 1/1", bench.calls, images.calls)
	}
	// 3 rule findings, then benchmark, then image scan.
	if len(report.Findings) != 5 {
		t.Fatalf("findings count = %d; want 5", len(report.Findings))
	}
	if report.Findings[3].RuleID != "CISBenchmark" {
		t.Errorf("findings[3].RuleID = %q; want CISBenchmark", report.Findings[3].RuleID)
	}
	if report.Findings[3].Domain != models.DomainBenchmark {
		t.Errorf("benchmark finding Domain = %q; want %q", report.Findings[3].Domain, models.DomainBenchmark)
	}
	if report.Findings[4].RuleID != "ImageVulnerability" {
		t.Errorf("findings[4].RuleID = %q; want ImageVulnerability", report.Findings[4].RuleID)
	}
	if report.Summary.TotalFindings != 5 {
		t.Errorf("TotalFindings = %d; want 5", report.Summary.TotalFindings)
	}
}

// TestPostureEngine_DisabledDomainSkipsScanner verifies that disabling a
// domain in policy prevents its scanner from running at all.
func TestPostureEngine_DisabledDomainSkipsScanner(t *testing.T) {
	fakeClient := fake.NewSimpleClientset(k8sNamespace("prod", nil))
	provider := &fakeKubeProvider{clientset: fakeClient, info: kube.ClusterInfo{ContextName: "ctx"}}
	policyCfg := &policy.PolicyConfig{
		Version: 1,
		Domains: map[string]policy.DomainConfig{
			models.DomainBenchmark: {Enabled: false},
		},
	}
	bench := &stubBenchmark{findings: []models.Finding{{RuleID: "CISBenchmark"}}}
	images := &stubImages{}

	eng := NewPostureEngineWithScanners(provider, newTestRegistry(), policyCfg, bench, images, nil)
	report, err := eng.RunAudit(context.Background(), AuditOptions{})
	if err != nil {
		t.Fatalf("RunAudit error: %v", err)
	}

	if bench.calls != 0 {
		t.Errorf("benchmark scanner ran %d times with its domain disabled; want 0", bench.calls)
	}
	if images.calls != 1 {
		t.Errorf("image scanner calls = %d; want 1 (its domain stays enabled)", images.calls)
	}
	for _, f := range report.Findings {
		if f.RuleID == "CISBenchmark" {
			t.Error("CISBenchmark finding present despite disabled benchmark domain")
		}
	}
}

// TestPostureEngine_ImageScannerGetsDistinctImages verifies that the image
// scanner receives the deduplicated image list from the snapshot.
func TestPostureEngine_ImageScannerGetsDistinctImages(t *testing.T) {
	fakeClient := fake.NewSimpleClientset(
		k8sNamespace("prod", nil),
		k8sPod("prod", "web-1", "nginx:1.27", false),
		k8sPod("prod", "web-2", "nginx:1.27", false),
		k8sPod("prod", "job", "busybox:1.36", false),
	)
	provider := &fakeKubeProvider{clientset: fakeClient, info: kube.ClusterInfo{ContextName: "ctx"}}
	images := &stubImages{}

	eng := NewPostureEngineWithScanners(provider, newTestRegistry(), nil, nil, images, nil)
	if _, err := eng.RunAudit(context.Background(), AuditOptions{}); err != nil {
		t.Fatalf("RunAudit error: %v", err)
	}

	if len(images.gotImages) != 2 {
		t.Fatalf("image list = %v; want 2 distinct refs", images.gotImages)
	}
	seen := map[string]bool{}
	for _, ref := range images.gotImages {
		seen[ref] = true
	}
	if !seen["nginx:1.27"] || !seen["busybox:1.36"] {
		t.Errorf("image list = %v; want nginx:1.27 and busybox:1.36", images.gotImages)
	}
}

// TestDetectClusterProvider covers provider ID prefixes, well-known labels,
// and the unknown fallback.
func TestDetectClusterProvider(t *testing.T) {
	cases := []struct {
		name  string
		nodes []kube.NodeInfo
		want  string
	}{
		{"aws provider id", []kube.NodeInfo{{ProviderID: "aws:///us-east-1a/i-0abc"}}, "eks"},
		{"gce provider id", []kube.NodeInfo{{ProviderID: "gce://proj/us-central1-a/node"}}, "gke"},
		{"azure provider id", []kube.NodeInfo{{ProviderID: "azure:///subscriptions/x"}}, "aks"},
		{"eks label", []kube.NodeInfo{{Labels: map[string]string{"eks.amazonaws.com/nodegroup": "ng-1"}}}, "eks"},
		{"gke label", []kube.NodeInfo{{Labels: map[string]string{"cloud.google.com/gke-nodepool": "pool-1"}}}, "gke"},
		{"aks label", []kube.NodeInfo{{Labels: map[string]string{"kubernetes.azure.com/cluster": "aks-1"}}}, "aks"},
		{"bare metal", []kube.NodeInfo{{Name: "node-1"}}, "unknown"},
		{"no nodes", nil, "unknown"},
	}
	for _, c := range cases {
		if got := detectClusterProvider(c.nodes); got != c.want {
			t.Errorf("%s: detectClusterProvider = %q; want %q", c.name, got, c.want)
		}
	}
}

// TestProbeServerVersion_DegradesToUnknown verifies the non-fatal fallback
// when discovery has no version to report.
func TestProbeServerVersion_DegradesToUnknown(t *testing.T) {
	if got := probeServerVersion(fake.NewSimpleClientset()); got != "unknown" {
		t.Errorf("probeServerVersion = %q; want unknown", got)
	}
}
