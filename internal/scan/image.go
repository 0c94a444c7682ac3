package scan

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/semaphore"

	"github.com/pankaj-dahiya-devops/kube-posture/internal/models"
	"github.com/pankaj-dahiya-devops/kube-posture/internal/policy"
)

// ImageRuleID tags every finding produced by the image vulnerability scanner.
const ImageRuleID = "ImageVulnerability"

// Default vulnerability-count gates; overridable per policy via
// rules.ImageVulnerability.params.{max_critical,max_high}.
const (
	defaultMaxCritical = 0
	defaultMaxHigh     = 0
)

// trivy `image --format json` output, reduced to the fields the severity
// tally needs.
type trivyReport struct {
	Results []trivyResult `json:"Results"`
}

type trivyResult struct {
	Target          string               `json:"Target"`
	Vulnerabilities []trivyVulnerability `json:"Vulnerabilities"`
}

type trivyVulnerability struct {
	VulnerabilityID string `json:"VulnerabilityID"`
	PkgName         string `json:"PkgName"`
	Severity        string `json:"Severity"`
}

// ImageScanner runs the vulnerability scanner binary (trivy) once per
// distinct image reference, bounded by a worker pool. Each invocation is
// independent: one image's failure is recorded as an INFO finding and the
// remaining images continue. An absent binary yields exactly one INFO
// finding for the whole run, not one per image.
type ImageScanner struct {
	binary    string
	timeout   time.Duration
	workers   int64
	retries   uint64
	runner    CommandRunner
	artifacts *ArtifactWriter
	policy    *policy.PolicyConfig
	log       *logrus.Entry
}

// NewImageScanner returns a scanner invoking binary with the given per-image
// timeout, at most workers concurrent invocations and retries retry attempts
// after a failed invocation. artifacts receives raw per-image output and may
// be nil (tests); policyCfg supplies the vulnerability-count gates and may be
// nil for defaults.
func NewImageScanner(binary string, timeout time.Duration, workers, retries int, runner CommandRunner, artifacts *ArtifactWriter, policyCfg *policy.PolicyConfig) *ImageScanner {
	if workers < 1 {
		workers = 1
	}
	if retries < 0 {
		retries = 0
	}
	return &ImageScanner{
		binary:    binary,
		timeout:   timeout,
		workers:   int64(workers),
		retries:   uint64(retries),
		runner:    runner,
		artifacts: artifacts,
		policy:    policyCfg,
		log:       logrus.WithField("scanner", "image"),
	}
}

// Scan invokes the scanner once per image and returns one finding per image:
// a severity verdict from the vulnerability tally on success, an INFO record
// on failure. Scans run concurrently up to the worker bound; the returned
// slice follows the input image order regardless of completion order.
func (s *ImageScanner) Scan(ctx context.Context, cluster string, images []string) []models.Finding {
	if len(images) == 0 {
		return nil
	}

	if _, err := s.runner.LookPath(s.binary); err != nil {
		s.log.Infof("%s not found on PATH, skipping %d image scans", s.binary, len(images))
		return []models.Finding{{
			ID:           fmt.Sprintf("%s:%s:unavailable", ImageRuleID, cluster),
			RuleID:       ImageRuleID,
			ResourceID:   cluster,
			ResourceType: models.ResourceK8sCluster,
			Cluster:      cluster,
			Domain:       models.DomainImageScan,
			Severity:     models.SeverityInfo,
			Explanation: fmt.Sprintf(
				"Image scanner %q not found on PATH; %d image(s) were not scanned.",
				s.binary, len(images),
			),
			DetectedAt: time.Now().UTC(),
			Metadata: map[string]any{
				"scanner_unavailable": true,
				"unscanned_images":    len(images),
			},
		}}
	}

	s.log.Infof("scanning %d distinct images with %s", len(images), s.binary)
	started := time.Now()

	var mu sync.Mutex
	byImage := make(map[string]models.Finding, len(images))
	sem := semaphore.NewWeighted(s.workers)

	for _, image := range images {
		if err := sem.Acquire(ctx, 1); err != nil {
			// Context cancelled while waiting for a worker slot; stop
			// launching. Unstarted images are recorded below.
			break
		}
		go func(ref string) {
			defer sem.Release(1)
			f := s.scanOne(ctx, cluster, ref)
			mu.Lock()
			byImage[ref] = f
			mu.Unlock()
		}(image)
	}

	// Join every in-flight worker before reading results.
	_ = sem.Acquire(context.Background(), s.workers)

	findings := make([]models.Finding, 0, len(images))
	for _, image := range images {
		f, ok := byImage[image]
		if !ok {
			cause := ctx.Err()
			if cause == nil {
				cause = errors.New("scan not started")
			}
			f = s.failureFinding(cluster, image, cause)
		}
		findings = append(findings, f)
	}
	s.log.Infof("image scanning completed in %s: %d findings", time.Since(started).Round(time.Millisecond), len(findings))
	return findings
}

// scanOne runs the scanner for a single image, retrying transient failures
// with a constant backoff before recording the failure.
func (s *ImageScanner) scanOne(ctx context.Context, cluster, image string) models.Finding {
	var raw []byte
	op := func() error {
		runCtx, cancel := context.WithTimeout(ctx, s.timeout)
		defer cancel()
		out, err := s.runner.Run(runCtx, s.binary, "image", "--format", "json", "--quiet", image)
		if err != nil {
			return err
		}
		raw = out
		return nil
	}

	err := backoff.Retry(op, backoff.WithMaxRetries(backoff.NewConstantBackOff(time.Second), s.retries))
	if err != nil {
		s.log.Warnf("scan of %s failed: %v", image, err)
		return s.failureFinding(cluster, image, err)
	}

	if s.artifacts != nil {
		if _, werr := s.artifacts.WriteImageRaw(image, raw); werr != nil {
			s.log.Warnf("could not persist scan artifact for %s: %v", image, werr)
		}
	}

	var report trivyReport
	if err := json.Unmarshal(raw, &report); err != nil {
		s.log.Warnf("scan output for %s unparseable: %v", image, err)
		return s.failureFinding(cluster, image, fmt.Errorf("parse scanner output: %w", err))
	}

	return s.verdictFinding(cluster, image, tallyVulnerabilities(report))
}

// vulnerabilityTally holds per-severity vulnerability counts for one image.
type vulnerabilityTally struct {
	critical int
	high     int
	medium   int
	low      int
	total    int
}

// tallyVulnerabilities counts vulnerabilities by severity across all scan
// targets of one image report.
func tallyVulnerabilities(report trivyReport) vulnerabilityTally {
	var t vulnerabilityTally
	for _, result := range report.Results {
		for _, v := range result.Vulnerabilities {
			t.total++
			switch strings.ToUpper(v.Severity) {
			case "CRITICAL":
				t.critical++
			case "HIGH":
				t.high++
			case "MEDIUM":
				t.medium++
			case "LOW":
				t.low++
			}
		}
	}
	return t
}

// verdictFinding maps a vulnerability tally to the image's single finding.
// Severity gates come from policy params (defaults: any CRITICAL fails, any
// HIGH warns).
func (s *ImageScanner) verdictFinding(cluster, image string, tally vulnerabilityTally) models.Finding {
	maxCritical := int(policy.GetThreshold(ImageRuleID, "max_critical", defaultMaxCritical, s.policy))
	maxHigh := int(policy.GetThreshold(ImageRuleID, "max_high", defaultMaxHigh, s.policy))

	severity := models.SeverityPass
	explanation := fmt.Sprintf("Image %q has no vulnerabilities above the configured thresholds.", image)
	recommendation := ""
	switch {
	case tally.critical > maxCritical:
		severity = models.SeverityFail
		explanation = fmt.Sprintf(
			"Image %q has %d critical and %d high severity vulnerabilities.",
			image, tally.critical, tally.high,
		)
		recommendation = "Update the image to a patched tag or rebuild it on a current base image."
	case tally.high > maxHigh:
		severity = models.SeverityWarn
		explanation = fmt.Sprintf(
			"Image %q has %d high severity vulnerabilities.",
			image, tally.high,
		)
		recommendation = "Update the image to a patched tag or rebuild it on a current base image."
	}

	return models.Finding{
		ID:             fmt.Sprintf("%s:%s:%s", ImageRuleID, cluster, image),
		RuleID:         ImageRuleID,
		ResourceID:     image,
		ResourceType:   models.ResourceK8sImage,
		Cluster:        cluster,
		Domain:         models.DomainImageScan,
		Severity:       severity,
		Explanation:    explanation,
		Recommendation: recommendation,
		DetectedAt:     time.Now().UTC(),
		Metadata: map[string]any{
			"critical_count": tally.critical,
			"high_count":     tally.high,
			"medium_count":   tally.medium,
			"low_count":      tally.low,
			"total_count":    tally.total,
		},
	}
}

// failureFinding records one image whose scan did not complete. The severity
// is INFO: a failed scan is missing evidence, not a verdict.
func (s *ImageScanner) failureFinding(cluster, image string, cause error) models.Finding {
	return models.Finding{
		ID:           fmt.Sprintf("%s:%s:%s", ImageRuleID, cluster, image),
		RuleID:       ImageRuleID,
		ResourceID:   image,
		ResourceType: models.ResourceK8sImage,
		Cluster:      cluster,
		Domain:       models.DomainImageScan,
		Severity:     models.SeverityInfo,
		Explanation:  fmt.Sprintf("Image %q could not be scanned: %v.", image, cause),
		DetectedAt:   time.Now().UTC(),
		Metadata: map[string]any{
			"scan_failed": true,
		},
	}
}
