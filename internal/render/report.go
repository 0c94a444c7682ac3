// Package render provides presentation-layer helpers for kube-posture output.
// It is a pure rendering package — no rule evaluation, no policy filtering,
// no Kubernetes API calls.
package render

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/pankaj-dahiya-devops/kube-posture/internal/models"
)

// severityOrder is the fixed group order of the report artifact.
var severityOrder = []models.Severity{
	models.SeverityFail,
	models.SeverityWarn,
	models.SeverityInfo,
	models.SeverityPass,
}

// subject renders a finding's subject as "namespace/name" for namespaced
// resources and the bare resource ID otherwise.
func subject(f models.Finding) string {
	if f.Namespace != "" {
		return f.Namespace + "/" + f.ResourceID
	}
	return f.ResourceID
}

// WriteReportText writes the full plain-text report artifact to w: a cluster
// metadata header, findings grouped by severity (FAIL, WARN, INFO, PASS; empty
// groups are omitted), and the summary counts. The report is rendered as-is —
// findings keep the order the aggregator gave them within each group.
//
// Example output:
//
//	KUBERNETES SECURITY POSTURE REPORT
//	Generated: 2026-08-24T10:42:17Z
//
//	CLUSTER
//	  Context:     prod-cluster
//	  Server:      https://10.0.0.1:6443
//	  Version:     v1.31.2
//	  Provider:    eks
//	  Nodes:       3
//	  Namespaces:  12
//	  Pods:        47
//
//	FAIL (1)
//	  PrivilegedContainer  prod/api-7f9d4c
//	    Container "app" runs with privileged: true.
//	    Fix: Remove privileged or isolate the workload.
func WriteReportText(w io.Writer, report *models.AuditReport) {
	fmt.Fprintln(w, "KUBERNETES SECURITY POSTURE REPORT")
	fmt.Fprintf(w, "Generated: %s\n", report.GeneratedAt.Format("2006-01-02T15:04:05Z07:00"))
	fmt.Fprintf(w, "Report ID: %s\n", report.ReportID)
	fmt.Fprintln(w)

	c := report.Cluster
	fmt.Fprintln(w, "CLUSTER")
	fmt.Fprintf(w, "  Context:     %s\n", c.ContextName)
	fmt.Fprintf(w, "  Server:      %s\n", c.Server)
	fmt.Fprintf(w, "  Version:     %s\n", c.ServerVersion)
	fmt.Fprintf(w, "  Provider:    %s\n", c.Provider)
	fmt.Fprintf(w, "  Nodes:       %d\n", c.NodeCount)
	fmt.Fprintf(w, "  Namespaces:  %d\n", c.NamespaceCount)
	fmt.Fprintf(w, "  Pods:        %d\n", c.PodCount)

	if len(report.Findings) == 0 {
		fmt.Fprintln(w)
		fmt.Fprintln(w, "No findings.")
	}

	for _, sev := range severityOrder {
		group := filterBySeverity(report.Findings, sev)
		if len(group) == 0 {
			continue
		}
		fmt.Fprintln(w)
		fmt.Fprintf(w, "%s (%d)\n", sev, len(group))
		for _, f := range group {
			fmt.Fprintf(w, "  %s  %s\n", f.RuleID, subject(f))
			if f.Explanation != "" {
				fmt.Fprintf(w, "    %s\n", f.Explanation)
			}
			if f.Recommendation != "" {
				fmt.Fprintf(w, "    Fix: %s\n", f.Recommendation)
			}
		}
	}

	s := report.Summary
	fmt.Fprintln(w)
	fmt.Fprintln(w, "SUMMARY")
	fmt.Fprintf(w, "  FAIL: %d  WARN: %d  INFO: %d  PASS: %d  TOTAL: %d\n",
		s.FailFindings, s.WarnFindings, s.InfoFindings, s.PassFindings, s.TotalFindings)
}

// filterBySeverity returns the findings matching sev, preserving input order.
func filterBySeverity(findings []models.Finding, sev models.Severity) []models.Finding {
	var out []models.Finding
	for _, f := range findings {
		if f.Severity == sev {
			out = append(out, f)
		}
	}
	return out
}

// WriteReportJSON writes the full report as indented JSON to w.
func WriteReportJSON(w io.Writer, report *models.AuditReport) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(report)
}
