package scan

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/pankaj-dahiya-devops/kube-posture/internal/models"
)

// BenchmarkRuleID tags every finding produced by the CIS benchmark scanner.
const BenchmarkRuleID = "CISBenchmark"

// kube-bench emits a stream of concatenated JSON documents (one per controls
// file), each shaped {"Controls": [...]}. The field tags below follow
// https://github.com/aquasecurity/kube-bench/blob/main/check/controls.go.
type benchDocument struct {
	Controls []benchControls `json:"Controls"`
}

type benchControls struct {
	ID     string       `json:"id"`
	Text   string       `json:"text"`
	Groups []benchGroup `json:"tests"`
}

type benchGroup struct {
	Checks []benchCheck `json:"results"`
}

type benchCheck struct {
	ID          string `json:"test_number"`
	Text        string `json:"test_desc"`
	State       string `json:"status"`
	Remediation string `json:"remediation"`
}

// BenchmarkScanner runs the CIS benchmark binary (kube-bench) once per
// evaluation and translates its checks into findings. The scanner is an
// optional collaborator: every degraded path (binary absent, timeout,
// non-zero exit, unparseable output) yields exactly one INFO finding and
// never an error.
type BenchmarkScanner struct {
	binary    string
	timeout   time.Duration
	runner    CommandRunner
	artifacts *ArtifactWriter
	log       *logrus.Entry
}

// NewBenchmarkScanner returns a scanner invoking binary with the given
// per-run timeout. artifacts receives the raw scanner output; it may be nil
// to skip artifact persistence (tests).
func NewBenchmarkScanner(binary string, timeout time.Duration, runner CommandRunner, artifacts *ArtifactWriter) *BenchmarkScanner {
	return &BenchmarkScanner{
		binary:    binary,
		timeout:   timeout,
		runner:    runner,
		artifacts: artifacts,
		log:       logrus.WithField("scanner", "benchmark"),
	}
}

// Scan invokes the benchmark binary and returns its findings: one finding
// per non-PASS check (severity mirrors the check status) plus a single PASS
// summary finding carrying the passed-check count. cluster names the
// evaluated cluster on every finding.
func (s *BenchmarkScanner) Scan(ctx context.Context, cluster string) []models.Finding {
	if _, err := s.runner.LookPath(s.binary); err != nil {
		s.log.Infof("%s not found on PATH, skipping CIS benchmark", s.binary)
		return []models.Finding{s.unavailableFinding(cluster,
			fmt.Sprintf("Benchmark scanner %q not found on PATH; CIS benchmark checks were skipped.", s.binary))}
	}

	s.log.Infof("running %s", s.binary)
	runCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	raw, err := s.runner.Run(runCtx, s.binary, "--json")
	if err != nil {
		s.log.Warnf("benchmark run failed: %v", err)
		return []models.Finding{s.unavailableFinding(cluster,
			fmt.Sprintf("Benchmark scanner did not complete: %v. CIS benchmark checks are missing from this report.", err))}
	}

	if s.artifacts != nil {
		if path, werr := s.artifacts.WriteBenchmarkRaw(raw); werr != nil {
			s.log.Warnf("could not persist benchmark artifact: %v", werr)
		} else {
			s.log.Debugf("benchmark artifact written to %s", path)
		}
	}

	checks, err := decodeBenchmarkOutput(raw)
	if err != nil {
		s.log.Warnf("benchmark output unparseable: %v", err)
		return []models.Finding{s.unavailableFinding(cluster,
			fmt.Sprintf("Benchmark scanner output could not be parsed: %v.", err))}
	}

	findings := s.checksToFindings(checks, cluster)
	s.log.Infof("benchmark completed: %d checks, %d findings", len(checks), len(findings))
	return findings
}

// decodeBenchmarkOutput decodes the concatenated JSON documents kube-bench
// writes to stdout, collecting every check across all controls files.
func decodeBenchmarkOutput(raw []byte) ([]benchCheck, error) {
	decoder := json.NewDecoder(bytes.NewReader(raw))
	var checks []benchCheck
	for {
		var doc benchDocument
		err := decoder.Decode(&doc)
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("decode benchmark JSON: %w", err)
		}
		for _, controls := range doc.Controls {
			for _, group := range controls.Groups {
				checks = append(checks, group.Checks...)
			}
		}
	}
	if len(checks) == 0 {
		return nil, errors.New("no checks in benchmark output")
	}
	return checks, nil
}

// checksToFindings maps benchmark checks to findings. Non-PASS checks become
// individual findings with the check's own severity; PASS checks collapse
// into one summary finding so hundreds of passing checks do not drown the
// report.
func (s *BenchmarkScanner) checksToFindings(checks []benchCheck, cluster string) []models.Finding {
	now := time.Now().UTC()
	var findings []models.Finding
	passed := 0

	for _, check := range checks {
		severity, ok := benchStateSeverity(check.State)
		if !ok {
			continue
		}
		if severity == models.SeverityPass {
			passed++
			continue
		}
		findings = append(findings, models.Finding{
			ID:             fmt.Sprintf("%s:%s:%s", BenchmarkRuleID, cluster, check.ID),
			RuleID:         BenchmarkRuleID,
			ResourceID:     check.ID,
			ResourceType:   models.ResourceK8sCluster,
			Cluster:        cluster,
			Domain:         models.DomainBenchmark,
			Severity:       severity,
			Explanation:    fmt.Sprintf("CIS check %s: %s", check.ID, check.Text),
			Recommendation: check.Remediation,
			DetectedAt:     now,
			Metadata: map[string]any{
				"check_id": check.ID,
			},
		})
	}

	if passed > 0 {
		findings = append(findings, models.Finding{
			ID:           fmt.Sprintf("%s:%s:passed", BenchmarkRuleID, cluster),
			RuleID:       BenchmarkRuleID,
			ResourceID:   cluster,
			ResourceType: models.ResourceK8sCluster,
			Cluster:      cluster,
			Domain:       models.DomainBenchmark,
			Severity:     models.SeverityPass,
			Explanation:  fmt.Sprintf("%d CIS benchmark checks passed.", passed),
			DetectedAt:   now,
			Metadata: map[string]any{
				"passed_checks": passed,
			},
		})
	}
	return findings
}

// benchStateSeverity maps a kube-bench check status to a finding severity.
// Unknown states are dropped rather than guessed.
func benchStateSeverity(state string) (models.Severity, bool) {
	switch state {
	case "PASS":
		return models.SeverityPass, true
	case "FAIL":
		return models.SeverityFail, true
	case "WARN":
		return models.SeverityWarn, true
	case "INFO":
		return models.SeverityInfo, true
	default:
		return "", false
	}
}

// unavailableFinding builds the single INFO finding recorded for every
// degraded benchmark path.
func (s *BenchmarkScanner) unavailableFinding(cluster, explanation string) models.Finding {
	return models.Finding{
		ID:           fmt.Sprintf("%s:%s:unavailable", BenchmarkRuleID, cluster),
		RuleID:       BenchmarkRuleID,
		ResourceID:   cluster,
		ResourceType: models.ResourceK8sCluster,
		Cluster:      cluster,
		Domain:       models.DomainBenchmark,
		Severity:     models.SeverityInfo,
		Explanation:  explanation,
		DetectedAt:   time.Now().UTC(),
		Metadata: map[string]any{
			"scanner_unavailable": true,
		},
	}
}
