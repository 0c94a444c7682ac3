package engine

import (
	"sort"

	"github.com/pankaj-dahiya-devops/kube-posture/internal/models"
)

// stampDomain sets the Domain field on every finding in the slice.
// It is called once per finding source, immediately after evaluation and
// before aggregation. This is the canonical location for domain tagging.
func stampDomain(findings []models.Finding, domain string) {
	for i := range findings {
		findings[i].Domain = domain
	}
}

// aggregateFindings sorts findings into canonical report order: grouped by
// rule ID following ruleOrder, rule IDs absent from ruleOrder after the
// listed ones in first-seen order, then lexically by (Namespace, ResourceID)
// within each group. The sort is stable and keyed only on finding fields, so
// aggregating the same sequence twice yields the same order.
//
// Nothing is merged or deduplicated: identical (rule, subject) pairs pass
// through untouched, and callers own not double-registering sources.
func aggregateFindings(findings []models.Finding, ruleOrder []string) []models.Finding {
	rank := make(map[string]int, len(ruleOrder))
	for i, id := range ruleOrder {
		rank[id] = i
	}
	next := len(ruleOrder)
	for _, f := range findings {
		if _, known := rank[f.RuleID]; !known {
			rank[f.RuleID] = next
			next++
		}
	}

	sort.SliceStable(findings, func(i, j int) bool {
		if rank[findings[i].RuleID] != rank[findings[j].RuleID] {
			return rank[findings[i].RuleID] < rank[findings[j].RuleID]
		}
		if findings[i].Namespace != findings[j].Namespace {
			return findings[i].Namespace < findings[j].Namespace
		}
		return findings[i].ResourceID < findings[j].ResourceID
	})
	return findings
}

// computeSummary tallies findings per severity. The severity set is closed
// and every finding carries exactly one value from it, so the four counts
// always sum to TotalFindings.
func computeSummary(findings []models.Finding) models.AuditSummary {
	s := models.AuditSummary{TotalFindings: len(findings)}
	for _, f := range findings {
		switch f.Severity {
		case models.SeverityFail:
			s.FailFindings++
		case models.SeverityWarn:
			s.WarnFindings++
		case models.SeverityInfo:
			s.InfoFindings++
		case models.SeverityPass:
			s.PassFindings++
		}
	}
	return s
}
