package policy

import (
	"strings"

	"github.com/pankaj-dahiya-devops/kube-posture/internal/models"
)

// ApplyPolicy filters and rewrites findings for one domain according to cfg.
// The order of surviving findings is preserved. Safe to call with cfg == nil
// (returns findings unchanged).
//
// Applied in order: domain disable, rule disable, severity override,
// domain min_severity filter.
func ApplyPolicy(findings []models.Finding, domain string, cfg *PolicyConfig) []models.Finding {
	if cfg == nil {
		return findings
	}

	// Domain-level disable
	if !DomainEnabled(domain, cfg) {
		return []models.Finding{}
	}

	minRank := 0
	if d, ok := cfg.Domains[domain]; ok && d.MinSeverity != "" {
		if r, ok := severityRank[models.Severity(strings.ToUpper(d.MinSeverity))]; ok {
			minRank = r
		}
	}

	var result []models.Finding

	for _, f := range findings {
		ruleCfg, hasRule := cfg.Rules[f.RuleID]

		// Rule-level disable
		if hasRule && ruleCfg.Enabled != nil && !*ruleCfg.Enabled {
			continue
		}

		// Severity override
		if hasRule && ruleCfg.Severity != "" {
			f.Severity = models.Severity(strings.ToUpper(ruleCfg.Severity))
		}

		// Domain min_severity filter (applied after overrides so an override
		// can lift a finding above the bar).
		if minRank > 0 {
			if r, ok := severityRank[f.Severity]; ok && r < minRank {
				continue
			}
		}

		result = append(result, f)
	}

	return result
}

// DomainEnabled reports whether cfg leaves the given finding domain active.
// A nil config and an unconfigured domain both mean enabled. Callers can use
// it to skip producing findings for a domain that ApplyPolicy would drop
// anyway (e.g. not invoking a scanner at all).
func DomainEnabled(domain string, cfg *PolicyConfig) bool {
	if cfg == nil {
		return true
	}
	d, ok := cfg.Domains[domain]
	return !ok || d.Enabled
}
