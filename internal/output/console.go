package output

import (
	"fmt"
	"io"

	"github.com/pankaj-dahiya-devops/kube-posture/internal/models"
)

// SeverityTag returns a bracketed severity prefix ("[FAIL]", "[WARN]", ...)
// wrapped with ANSI codes when colored is true.
func SeverityTag(sev models.Severity, colored bool) string {
	tag := "[" + string(sev) + "]"
	if !colored {
		return tag
	}
	code := severityCode(sev)
	if code == "" {
		return tag
	}
	return code + tag + ansiReset
}

// subjectOf renders the finding's subject as "namespace/name" for
// namespaced resources and the bare resource ID otherwise.
func subjectOf(f models.Finding) string {
	if f.Namespace != "" {
		return f.Namespace + "/" + f.ResourceID
	}
	return f.ResourceID
}

// RenderStream writes the report's findings to w, one line per finding in
// the report's order, each prefixed with its severity tag. A summary line
// follows the stream so the totals are visible without scrolling back.
func RenderStream(w io.Writer, report *models.AuditReport, colored bool) {
	if len(report.Findings) == 0 {
		fmt.Fprintln(w, "No findings.")
	}
	for _, f := range report.Findings {
		fmt.Fprintf(w, "%s %-26s  %s: %s\n",
			SeverityTag(f.Severity, colored), f.RuleID, subjectOf(f), f.Explanation)
	}
	s := report.Summary
	fmt.Fprintf(w, "\n%d findings: %d FAIL, %d WARN, %d INFO, %d PASS\n",
		s.TotalFindings, s.FailFindings, s.WarnFindings, s.InfoFindings, s.PassFindings)
}
