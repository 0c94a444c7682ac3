package rules_test

import (
	"strings"
	"testing"

	"github.com/pankaj-dahiya-devops/kube-posture/internal/models"
	"github.com/pankaj-dahiya-devops/kube-posture/internal/rules"
)

// stubRule is a configurable rule for registry tests.
type stubRule struct {
	id       string
	findings []models.Finding
	panicMsg string
}

func (r stubRule) ID() string   { return r.id }
func (r stubRule) Name() string { return r.id }

func (r stubRule) Evaluate(ctx rules.RuleContext) []models.Finding {
	if r.panicMsg != "" {
		panic(r.panicMsg)
	}
	return r.findings
}

func TestRegistry_DuplicateIDPanics(t *testing.T) {
	reg := rules.NewDefaultRuleRegistry()
	reg.Register(stubRule{id: "Dup"})

	defer func() {
		if recover() == nil {
			t.Error("expected panic on duplicate rule ID")
		}
	}()
	reg.Register(stubRule{id: "Dup"})
}

func TestRegistry_EvaluatesInRegistrationOrder(t *testing.T) {
	reg := rules.NewDefaultRuleRegistry()
	reg.Register(stubRule{id: "First", findings: []models.Finding{{RuleID: "First"}}})
	reg.Register(stubRule{id: "Second", findings: []models.Finding{{RuleID: "Second"}}})
	reg.Register(stubRule{id: "Third", findings: []models.Finding{{RuleID: "Third"}}})

	findings := reg.EvaluateAll(rules.RuleContext{})
	if len(findings) != 3 {
		t.Fatalf("findings count = %d; want 3", len(findings))
	}
	want := []string{"First", "Second", "Third"}
	for i, id := range want {
		if findings[i].RuleID != id {
			t.Errorf("findings[%d].RuleID = %q; want %q", i, findings[i].RuleID, id)
		}
	}
}

// TestRegistry_PanicBecomesInfoFinding verifies that a rule panicking over a
// malformed record is recorded as a single INFO finding and later rules still
// run.
func TestRegistry_PanicBecomesInfoFinding(t *testing.T) {
	reg := rules.NewDefaultRuleRegistry()
	reg.Register(stubRule{id: "Healthy", findings: []models.Finding{{RuleID: "Healthy", Severity: models.SeverityPass}}})
	reg.Register(stubRule{id: "Broken", panicMsg: "index out of range"})
	reg.Register(stubRule{id: "AfterBroken", findings: []models.Finding{{RuleID: "AfterBroken", Severity: models.SeverityPass}}})

	snap := &models.ClusterSnapshot{ContextName: "prod"}
	findings := reg.EvaluateAll(rules.RuleContext{Snapshot: snap})
	if len(findings) != 3 {
		t.Fatalf("findings count = %d; want 3", len(findings))
	}

	anomaly := findings[1]
	if anomaly.RuleID != "Broken" {
		t.Errorf("anomaly RuleID = %q; want Broken", anomaly.RuleID)
	}
	if anomaly.Severity != models.SeverityInfo {
		t.Errorf("anomaly Severity = %q; want INFO", anomaly.Severity)
	}
	if anomaly.Cluster != "prod" {
		t.Errorf("anomaly Cluster = %q; want prod", anomaly.Cluster)
	}
	if !strings.Contains(anomaly.Explanation, "index out of range") {
		t.Errorf("anomaly Explanation %q must mention the panic cause", anomaly.Explanation)
	}
	if findings[2].RuleID != "AfterBroken" {
		t.Errorf("rule after the panic did not run; findings[2].RuleID = %q", findings[2].RuleID)
	}
}
