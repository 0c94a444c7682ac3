package output

import (
	"fmt"
	"io"
	"strings"

	"github.com/pankaj-dahiya-devops/kube-posture/internal/models"
)

// ANSI color codes for severity output (used when Colored=true).
const (
	ansiReset  = "\033[0m"
	ansiRed    = "\033[0;31m"
	ansiYellow = "\033[0;33m"
	ansiBlue   = "\033[0;34m"
	ansiGreen  = "\033[0;32m"
)

// TableOptions controls which columns RenderTable renders and how severity is coloured.
type TableOptions struct {
	// Colored wraps severity labels with ANSI codes. Default false (CI-safe).
	Colored bool

	// IncludeDomain adds a DOMAIN column (posture/benchmark/imagescan).
	IncludeDomain bool
}

// severityCode returns the ANSI code for a severity, or "" for unknown values.
func severityCode(sev models.Severity) string {
	switch sev {
	case models.SeverityFail:
		return ansiRed
	case models.SeverityWarn:
		return ansiYellow
	case models.SeverityInfo:
		return ansiBlue
	case models.SeverityPass:
		return ansiGreen
	default:
		return ""
	}
}

// ColorSeverity wraps a severity string with ANSI codes when colored is true.
// When colored is false the string is returned unchanged (CI-safe default).
func ColorSeverity(sev models.Severity, colored bool) string {
	s := string(sev)
	if !colored {
		return s
	}
	code := severityCode(sev)
	if code == "" {
		return s
	}
	return code + s + ansiReset
}

// ShortenMessage truncates msg to at most max runes, appending "..." when truncated.
// max is treated as at least 4 to guarantee space for the ellipsis.
func ShortenMessage(msg string, max int) string {
	if max < 4 {
		max = 4
	}
	runes := []rune(msg)
	if len(runes) <= max {
		return msg
	}
	return string(runes[:max-3]) + "..."
}

// severityCell returns the severity padded to width characters.
// When colored, ANSI codes wrap only the text; trailing padding spaces are plain
// so subsequent columns stay visually aligned regardless of terminal ANSI support.
func severityCell(sev models.Severity, width int, colored bool) string {
	text := string(sev)
	if !colored {
		return fmt.Sprintf("%-*s", width, text)
	}
	code := severityCode(sev)
	if code == "" {
		return fmt.Sprintf("%-*s", width, text)
	}
	spaces := width - len(text)
	if spaces < 0 {
		spaces = 0
	}
	return code + text + ansiReset + strings.Repeat(" ", spaces)
}

// truncateField shortens s to at most max bytes for ID/label columns.
// A single-char ellipsis replaces the last byte when truncation occurs.
func truncateField(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max-1] + "…"
}

// RenderTable writes a formatted findings table to w.
// Columns are dynamically selected based on opts; the separator line width is
// derived from the header row so all rows align correctly.
//
// Column order:
//
//	RESOURCE ID  NAMESPACE  SEVERITY  [DOMAIN]  RULE  MESSAGE
func RenderTable(w io.Writer, findings []models.Finding, opts TableOptions) {
	if len(findings) == 0 {
		fmt.Fprintln(w, "No findings.")
		return
	}

	// Fixed column display widths.
	const (
		wResource  = 30
		wNamespace = 16
		wSeverity  = 8
		wDomain    = 11
		wRule      = 26
		wMessage   = 55
	)

	// Build the header row.
	var hb strings.Builder
	hb.WriteString(fmt.Sprintf("%-*s", wResource, "RESOURCE ID"))
	hb.WriteString(fmt.Sprintf("  %-*s", wNamespace, "NAMESPACE"))
	hb.WriteString(fmt.Sprintf("  %-*s", wSeverity, "SEVERITY"))
	if opts.IncludeDomain {
		hb.WriteString(fmt.Sprintf("  %-*s", wDomain, "DOMAIN"))
	}
	hb.WriteString(fmt.Sprintf("  %-*s", wRule, "RULE"))
	hb.WriteString(fmt.Sprintf("  %-*s", wMessage, "MESSAGE"))
	header := hb.String()

	fmt.Fprintln(w, header)
	fmt.Fprintln(w, strings.Repeat("-", len(header)))

	for _, f := range findings {
		var rb strings.Builder
		rb.WriteString(fmt.Sprintf("%-*s", wResource, truncateField(f.ResourceID, wResource)))
		rb.WriteString(fmt.Sprintf("  %-*s", wNamespace, truncateField(f.Namespace, wNamespace)))
		rb.WriteString("  " + severityCell(f.Severity, wSeverity, opts.Colored))
		if opts.IncludeDomain {
			rb.WriteString(fmt.Sprintf("  %-*s", wDomain, truncateField(f.Domain, wDomain)))
		}
		rb.WriteString(fmt.Sprintf("  %-*s", wRule, truncateField(f.RuleID, wRule)))
		rb.WriteString(fmt.Sprintf("  %-*s", wMessage, ShortenMessage(f.Explanation, wMessage)))
		fmt.Fprintln(w, rb.String())
	}
}
