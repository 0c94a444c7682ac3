package policy

import (
	"strings"

	"github.com/pankaj-dahiya-devops/kube-posture/internal/models"
)

// severityRank orders severities for threshold comparisons.
// FAIL (4) > WARN (3) > INFO (2) > PASS (1).
var severityRank = map[models.Severity]int{
	models.SeverityFail: 4,
	models.SeverityWarn: 3,
	models.SeverityInfo: 2,
	models.SeverityPass: 1,
}

// ShouldFail reports whether any finding in findings has a severity at or above
// the configured fail_on_severity threshold for the given domain.
//
// It returns false when:
//   - cfg is nil (no policy loaded)
//   - no enforcement block is configured for domain
//   - fail_on_severity is empty or an unrecognised value
//   - findings is empty
//
// It returns true when at least one finding has a severity whose rank is
// greater than or equal to the configured threshold rank. Without an explicit
// enforcement block the tool stays an auditor: findings never affect the exit
// code.
func ShouldFail(domain string, findings []models.Finding, cfg *PolicyConfig) bool {
	if cfg == nil {
		return false
	}
	enfCfg, ok := cfg.Enforcement[domain]
	if !ok || enfCfg.FailOnSeverity == "" {
		return false
	}
	threshold, ok := severityRank[models.Severity(strings.ToUpper(enfCfg.FailOnSeverity))]
	if !ok {
		return false
	}
	for _, f := range findings {
		if r, ok := severityRank[f.Severity]; ok && r >= threshold {
			return true
		}
	}
	return false
}
