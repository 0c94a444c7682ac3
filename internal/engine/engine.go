package engine

import (
	"context"

	"github.com/pankaj-dahiya-devops/kube-posture/internal/models"
)

// AuditType identifies the category of audit a report carries.
type AuditType string

// AuditTypePosture is the cluster security posture audit, the only flavor.
const AuditTypePosture AuditType = "posture"

// ReportFormat controls the CLI output format.
type ReportFormat string

const (
	ReportFormatStream ReportFormat = "stream"
	ReportFormatTable  ReportFormat = "table"
	ReportFormatJSON   ReportFormat = "json"
)

// AuditOptions configures a single audit run.
// It is the sole input to Engine.RunAudit.
type AuditOptions struct {
	// ContextName is the kubeconfig context to connect to.
	// An empty string means use the current context.
	ContextName string

	// ReportFormat controls how the CLI renders the returned report.
	// The engine itself never reads it.
	ReportFormat ReportFormat
}

// Engine is the central orchestration interface.
// It coordinates cluster collection, rule evaluation, and optional scanner
// sequencing, returning a fully populated AuditReport.
//
// Engine must not call the Kubernetes API or external binaries directly; it
// delegates to the injected provider and scanner interfaces.
type Engine interface {
	RunAudit(ctx context.Context, opts AuditOptions) (*models.AuditReport, error)
}

// BenchmarkScanner runs the CIS benchmark collaborator once per audit and
// returns its findings. The interface is defined here (engine layer) so the
// engine remains independent of the scanner implementation; callers inject
// the concrete scanner. Nil means the benchmark scan is disabled.
type BenchmarkScanner interface {
	Scan(ctx context.Context, cluster string) []models.Finding
}

// ImageScanner scans the given distinct image references and returns one
// finding per image. Nil means the image scan is disabled.
type ImageScanner interface {
	Scan(ctx context.Context, cluster string, images []string) []models.Finding
}

// ArtifactPreparer creates the run's output directory. The engine calls it
// once cluster collection has succeeded and before any scanner writes, so a
// run that aborts on a failed precondition leaves nothing on disk. Nil skips
// preparation (no artifacts for this run).
type ArtifactPreparer interface {
	EnsureDir() error
}
