package policy

// PolicyConfig is the parsed kp.yaml policy file. All sections are optional;
// an absent policy file means built-in defaults everywhere.
type PolicyConfig struct {
	Version     int                          `yaml:"version"`
	Domains     map[string]DomainConfig      `yaml:"domains"`
	Rules       map[string]RuleConfig        `yaml:"rules"`
	Enforcement map[string]EnforcementConfig `yaml:"enforcement"`
}

// DomainConfig tunes one finding domain (posture, benchmark, imagescan).
type DomainConfig struct {
	// Enabled disables the whole domain when false.
	Enabled bool `yaml:"enabled"`

	// MinSeverity drops findings below this severity from the report
	// (e.g. "WARN" keeps FAIL and WARN only). Empty keeps everything.
	MinSeverity string `yaml:"min_severity,omitempty"`
}

// RuleConfig tunes one rule by ID.
type RuleConfig struct {
	// Enabled disables the rule's findings when set to false.
	Enabled *bool `yaml:"enabled,omitempty"`

	// Severity overrides the rule's built-in severity.
	Severity string `yaml:"severity,omitempty"`

	// Params holds per-rule numeric thresholds
	// (e.g. ImageVulnerability: max_critical, max_high).
	Params map[string]float64 `yaml:"params,omitempty"`
}

// EnforcementConfig turns the auditor into a gate for one domain: when
// FailOnSeverity is set and a surviving finding reaches it, the process
// exits non-zero after the report is written.
type EnforcementConfig struct {
	FailOnSeverity string `yaml:"fail_on_severity,omitempty"`
}
