package rules

import (
	"fmt"
	"os"

	"github.com/wolfeidau/governor/internal/models"
	"gopkg.in/yaml.v3"
)

// RuleFile is the on-disk default policy applied to organizations without a policy row.
//
//	policy_level: PROACTIVE
//	rules:
//	  - name: low-risk-personal
//	    conditions:
//	      risk_level_lte: LOW
//	      scope_eq: USER
type RuleFile struct {
	PolicyLevel models.PolicyLevel        `yaml:"policy_level"`
	Rules       []models.AutoApprovalRule `yaml:"rules"`
}

// LoadRuleFile reads and validates a YAML rule file.
func LoadRuleFile(path string) (*RuleFile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read rule file: %w", err)
	}
	return ParseRuleFile(data)
}

// ParseRuleFile decodes and validates YAML rule file content.
// Unknown condition names are rejected here so they surface at startup
// instead of silently never matching.
func ParseRuleFile(data []byte) (*RuleFile, error) {
	var rf RuleFile
	if err := yaml.Unmarshal(data, &rf); err != nil {
		return nil, fmt.Errorf("failed to parse rule file: %w", err)
	}

	if rf.PolicyLevel == "" {
		rf.PolicyLevel = DefaultPolicyLevel
	}
	if !rf.PolicyLevel.Valid() {
		return nil, fmt.Errorf("invalid policy_level %q", rf.PolicyLevel)
	}

	for i, rule := range rf.Rules {
		if rule.Name == "" {
			return nil, fmt.Errorf("rule %d: name is required", i)
		}
		for cond := range rule.Conditions {
			if !KnownCondition(cond) {
				return nil, fmt.Errorf("rule %q: unknown condition %q", rule.Name, cond)
			}
		}
	}

	return &rf, nil
}
