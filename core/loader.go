package core

import (
	"fmt"
	"os"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// ruleFile is the on-disk shape of a rule set.
type ruleFile struct {
	Rules []Rule `yaml:"rules"`
}

var validate = validator.New()

// LoadRules reads and validates the rule set from a YAML file. Any malformed
// entry is fatal: the process must not start against an invalid rule set, and
// the error identifies the offending rule.
func LoadRules(path string) ([]Rule, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read rules file: %w", err)
	}
	return ParseRules(data)
}

// ParseRules parses and validates a YAML rule set.
func ParseRules(data []byte) ([]Rule, error) {
	var rf ruleFile
	if err := yaml.Unmarshal(data, &rf); err != nil {
		return nil, fmt.Errorf("parse rules file: %w", err)
	}

	seen := make(map[string]bool, len(rf.Rules))
	for i, rule := range rf.Rules {
		if err := validate.Struct(rule); err != nil {
			id := rule.ID
			if id == "" {
				id = fmt.Sprintf("#%d", i)
			}
			return nil, fmt.Errorf("rule %q: %w", id, err)
		}
		if err := rule.Validate(); err != nil {
			return nil, err
		}
		if seen[rule.ID] {
			return nil, fmt.Errorf("rule %q: duplicate id", rule.ID)
		}
		seen[rule.ID] = true
	}
	return rf.Rules, nil
}
