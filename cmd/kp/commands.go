package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/samber/lo"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/pankaj-dahiya-devops/kube-posture/internal/config"
	"github.com/pankaj-dahiya-devops/kube-posture/internal/engine"
	"github.com/pankaj-dahiya-devops/kube-posture/internal/models"
	"github.com/pankaj-dahiya-devops/kube-posture/internal/output"
	"github.com/pankaj-dahiya-devops/kube-posture/internal/policy"
	kube "github.com/pankaj-dahiya-devops/kube-posture/internal/providers/kubernetes"
	"github.com/pankaj-dahiya-devops/kube-posture/internal/render"
	"github.com/pankaj-dahiya-devops/kube-posture/internal/rulepacks/posture"
	"github.com/pankaj-dahiya-devops/kube-posture/internal/rules"
	"github.com/pankaj-dahiya-devops/kube-posture/internal/scan"
	"github.com/pankaj-dahiya-devops/kube-posture/internal/version"
)

// defaultPolicyPath is probed when --policy is not given. A missing file at
// this path means "no policy", not an error.
const defaultPolicyPath = "./kp.yaml"

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "kp",
		Short:         "kube-posture — Kubernetes cluster security posture evaluator",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return setupLogging(cmd)
		},
		// Bare kp runs the full evaluation; kp audit is the explicit alias.
		RunE: runAudit,
	}

	pf := root.PersistentFlags()
	pf.String("kubeconfig", "", "Path to kubeconfig (default: $KUBECONFIG, then ~/.kube/config)")
	pf.String("context", "", "Kubeconfig context to evaluate (default: current context)")
	pf.String("config", "", "Path to config file (default: ~/.config/kube-posture/config.yaml)")
	pf.String("policy", "", "Path to policy file (default: ./kp.yaml when present)")
	pf.String("log-level", "info", "Log level: debug, info, warn or error (logs go to stderr)")
	pf.String("format", "stream", `Console format: "stream", "table" or "json"`)
	pf.String("output", "", "Write the full JSON report to this file path (in addition to console output)")
	pf.Bool("no-color", false, "Disable ANSI severity coloring")

	root.AddCommand(newAuditCmd())
	root.AddCommand(newRulesCmd())
	root.AddCommand(newDoctorCmd())
	root.AddCommand(newVersionCmd())
	return root
}

// setupLogging configures the process-wide logger from --log-level.
// Diagnostics go to stderr so stdout carries only report output.
func setupLogging(cmd *cobra.Command) error {
	levelStr, _ := cmd.Flags().GetString("log-level")
	level, err := logrus.ParseLevel(levelStr)
	if err != nil {
		return fmt.Errorf("invalid log level %q: %w", levelStr, err)
	}
	logrus.SetLevel(level)
	logrus.SetOutput(os.Stderr)
	return nil
}

func newAuditCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "audit",
		Short: "Evaluate the cluster and write the posture report",
		RunE:  runAudit,
	}
}

// runAudit is the shared RunE behind bare kp and kp audit: load config and
// policy, wire the engine, run the evaluation, persist and render the report,
// then apply opt-in policy enforcement to the exit code.
func runAudit(cmd *cobra.Command, args []string) error {
	flags := cmd.Flags()
	configPath, _ := flags.GetString("config")
	policyPath, _ := flags.GetString("policy")
	kubeconfig, _ := flags.GetString("kubeconfig")
	contextName, _ := flags.GetString("context")
	format, _ := flags.GetString("format")
	outputPath, _ := flags.GetString("output")
	noColor, _ := flags.GetBool("no-color")

	switch engine.ReportFormat(format) {
	case engine.ReportFormatStream, engine.ReportFormatTable, engine.ReportFormatJSON:
	default:
		return fmt.Errorf("unknown format %q (valid: stream, table, json)", format)
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	// Flags override file and environment values.
	if kubeconfig != "" {
		cfg.Kubernetes.Kubeconfig = kubeconfig
	}
	if contextName != "" {
		cfg.Kubernetes.Context = contextName
	}
	if noColor {
		cfg.Output.Color = false
	}

	policyCfg, err := loadPolicyFile(policyPath)
	if err != nil {
		return err
	}

	eng, artifacts := buildEngine(cfg, policyCfg)

	enforce, err := runAuditPipeline(cmd.Context(), eng, artifacts, policyCfg, auditRunOptions{
		contextName: cfg.Kubernetes.Context,
		format:      engine.ReportFormat(format),
		colored:     cfg.Output.Color,
		outputPath:  outputPath,
	}, cmd.OutOrStdout())
	if err != nil {
		return err
	}
	if enforce {
		// Everything is rendered and written at this point; the exit code is
		// the only signal left to give. Exit 1 stays reserved for failed runs.
		os.Exit(2)
	}
	return nil
}

// auditRunOptions carries the knobs runAuditPipeline needs after flags,
// config and policy have been reconciled.
type auditRunOptions struct {
	contextName string
	format      engine.ReportFormat
	colored     bool
	outputPath  string
}

// runAuditPipeline runs the engine, persists the plain-text report artifact,
// renders the report to stdout in the requested format, and reports whether
// policy enforcement asks for a non-zero exit. The returned error means the
// run did not complete; enforcement is only meaningful when err is nil.
func runAuditPipeline(ctx context.Context, eng engine.Engine, artifacts *scan.ArtifactWriter, policyCfg *policy.PolicyConfig, opts auditRunOptions, stdout io.Writer) (bool, error) {
	report, err := eng.RunAudit(ctx, engine.AuditOptions{
		ContextName:  opts.contextName,
		ReportFormat: opts.format,
	})
	if err != nil {
		return false, fmt.Errorf("audit failed: %w", err)
	}

	var text bytes.Buffer
	render.WriteReportText(&text, report)
	path, err := artifacts.WriteReportText(text.String())
	if err != nil {
		return false, err
	}
	logrus.WithField("path", path).Info("report written")

	if opts.outputPath != "" {
		if err := writeReportToFile(opts.outputPath, report); err != nil {
			return false, err
		}
	}

	switch opts.format {
	case engine.ReportFormatJSON:
		if err := render.WriteReportJSON(stdout, report); err != nil {
			return false, fmt.Errorf("encode report: %w", err)
		}
	case engine.ReportFormatTable:
		output.RenderTable(stdout, report.Findings, output.TableOptions{
			Colored:       opts.colored,
			IncludeDomain: true,
		})
	default:
		output.RenderStream(stdout, report, opts.colored)
	}

	return enforcementTriggered(report, policyCfg), nil
}

// buildEngine wires the full audit pipeline from configuration: cluster
// provider, rule registry, scanners and the artifact writer. The artifact
// writer is returned separately so the caller can persist the rendered
// report next to the raw scanner output.
func buildEngine(cfg *config.Config, policyCfg *policy.PolicyConfig) (engine.Engine, *scan.ArtifactWriter) {
	provider := kube.NewDefaultKubeClientProvider(cfg.Kubernetes.Kubeconfig)

	registry := rules.NewDefaultRuleRegistry()
	for _, r := range posture.New() {
		registry.Register(r)
	}

	artifacts := scan.NewArtifactWriter(cfg.Output.Dir)
	runner := scan.NewExecRunner()

	benchmark := scan.NewBenchmarkScanner(
		cfg.Scanners.Benchmark.Binary,
		time.Duration(cfg.Scanners.Benchmark.TimeoutSeconds)*time.Second,
		runner,
		artifacts,
	)
	images := scan.NewImageScanner(
		cfg.Scanners.Image.Binary,
		time.Duration(cfg.Scanners.Image.TimeoutSeconds)*time.Second,
		cfg.Scanners.Image.Workers,
		cfg.Scanners.Image.Retries,
		runner,
		artifacts,
		policyCfg,
	)

	return engine.NewPostureEngineWithScanners(provider, registry, policyCfg, benchmark, images, artifacts), artifacts
}

// loadPolicyFile loads the policy at path, or defaultPolicyPath when path is
// empty. Only the default path is optional: a missing explicit path is an
// error, a missing default means no policy.
func loadPolicyFile(path string) (*policy.PolicyConfig, error) {
	explicit := path != ""
	if path == "" {
		path = defaultPolicyPath
	}
	cfg, err := policy.LoadPolicy(path)
	if err != nil {
		if !explicit && os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("load policy %q: %w", path, err)
	}
	return cfg, nil
}

// enforcementTriggered reports whether any domain's fail_on_severity
// threshold is met by the report's findings.
func enforcementTriggered(report *models.AuditReport, policyCfg *policy.PolicyConfig) bool {
	if policyCfg == nil {
		return false
	}
	byDomain := lo.GroupBy(report.Findings, func(f models.Finding) string { return f.Domain })
	for domain, findings := range byDomain {
		if policy.ShouldFail(domain, findings, policyCfg) {
			return true
		}
	}
	return false
}

// writeReportToFile serialises report as indented JSON and writes it to path,
// creating or overwriting the file. It does not affect stdout output.
func writeReportToFile(path string, report *models.AuditReport) error {
	data, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal report: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write report file %q: %w", path, err)
	}
	return nil
}

func newRulesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "rules",
		Short: "List the posture rules and scanner checks this tool evaluates",
		Run: func(cmd *cobra.Command, args []string) {
			noColor, _ := cmd.Flags().GetBool("no-color")
			printRules(cmd.OutOrStdout(), !noColor)
		},
	}
}

// baseSeverity is the severity each built-in rule emits before policy
// overrides. The scanner checks emit per-result severities; they are listed
// with the highest severity they can produce.
var baseSeverity = map[string]models.Severity{
	"PrivilegedContainer":        models.SeverityFail,
	"RootContainer":              models.SeverityWarn,
	"HostPathMount":              models.SeverityWarn,
	"MissingNetworkPolicy":       models.SeverityWarn,
	"MissingPodSecurityStandard": models.SeverityWarn,
	"NonSystemClusterAdmin":      models.SeverityWarn,
	scan.BenchmarkRuleID:         models.SeverityFail,
	scan.ImageRuleID:             models.SeverityFail,
}

// printRules writes the rule listing: built-in rules in registration order,
// then the scanner-backed checks.
func printRules(w io.Writer, colored bool) {
	const rowFmt = "%-28s  %-44s  %s\n"
	fmt.Fprintf(w, rowFmt, "RULE", "DESCRIPTION", "SEVERITY")
	fmt.Fprintln(w, strings.Repeat("-", 84))
	for _, r := range posture.New() {
		fmt.Fprintf(w, rowFmt, r.ID(), r.Name(), output.ColorSeverity(baseSeverity[r.ID()], colored))
	}
	fmt.Fprintf(w, rowFmt, scan.BenchmarkRuleID,
		"CIS Kubernetes Benchmark (kube-bench, per check)",
		output.ColorSeverity(baseSeverity[scan.BenchmarkRuleID], colored))
	fmt.Fprintf(w, rowFmt, scan.ImageRuleID,
		"Image vulnerability scan (trivy, per image)",
		output.ColorSeverity(baseSeverity[scan.ImageRuleID], colored))
}

// allRuleIDs returns every rule ID findings can carry: the registered posture
// rules plus the scanner rule IDs.
func allRuleIDs() []string {
	ids := lo.Map(posture.New(), func(r rules.Rule, _ int) string { return r.ID() })
	return append(ids, scan.BenchmarkRuleID, scan.ImageRuleID)
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print kp version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprint(cmd.OutOrStdout(), version.Info())
		},
	}
}
