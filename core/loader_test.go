package core

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const validRules = `
rules:
  - id: high-cpu
    description: CPU over 90
    source: cpu_collector
    severity: MEDIUM
    weight: 4
    condition:
      field: percent
      operator: gt
      value: 90
  - id: bad-process
    source: process_collector
    severity: HIGH
    weight: 8
    condition:
      field: name
      operator: in
      value: [nc, nmap]
  - id: bruteforce
    source: authlog_collector
    severity: CRITICAL
    weight: 10
    condition:
      field: failed
      operator: gte
      value: 10
      window_seconds: 60
`

func TestParseRulesValid(t *testing.T) {
	rules, err := ParseRules([]byte(validRules))
	require.NoError(t, err)
	require.Len(t, rules, 3)

	assert.Equal(t, "high-cpu", rules[0].ID)
	assert.Equal(t, SeverityMedium, rules[0].Severity)
	assert.Equal(t, KindInstant, rules[0].Condition.Kind())

	assert.Equal(t, KindWindow, rules[2].Condition.Kind())
	assert.Equal(t, 60, rules[2].Condition.WindowSeconds)
}

func TestParseRulesErrors(t *testing.T) {
	tests := []struct {
		name string
		yaml string
		want string
	}{
		{
			name: "duplicate id",
			yaml: `
rules:
  - id: dup
    source: "*"
    severity: LOW
    weight: 1
    condition: {field: x, operator: eq, value: 1}
  - id: dup
    source: "*"
    severity: LOW
    weight: 1
    condition: {field: x, operator: eq, value: 1}
`,
			want: "duplicate id",
		},
		{
			name: "unknown operator",
			yaml: `
rules:
  - id: bad-op
    source: "*"
    severity: LOW
    weight: 1
    condition: {field: x, operator: matches, value: 1}
`,
			want: "unknown operator",
		},
		{
			name: "unknown severity",
			yaml: `
rules:
  - id: bad-sev
    source: "*"
    severity: URGENT
    weight: 1
    condition: {field: x, operator: eq, value: 1}
`,
			want: "unknown severity",
		},
		{
			name: "sustained and window together",
			yaml: `
rules:
  - id: both
    source: "*"
    severity: LOW
    weight: 1
    condition: {field: x, operator: gt, value: 1, sustained_seconds: 10, window_seconds: 10}
`,
			want: "mutually exclusive",
		},
		{
			name: "window without positive count",
			yaml: `
rules:
  - id: bad-window
    source: "*"
    severity: LOW
    weight: 1
    condition: {field: x, operator: gte, value: zero, window_seconds: 60}
`,
			want: "positive count",
		},
		{
			name: "window with non-counting operator",
			yaml: `
rules:
  - id: bad-window-op
    source: "*"
    severity: LOW
    weight: 1
    condition: {field: x, operator: lt, value: 5, window_seconds: 60}
`,
			want: "cannot apply to a window count",
		},
		{
			name: "in without list",
			yaml: `
rules:
  - id: bad-in
    source: "*"
    severity: LOW
    weight: 1
    condition: {field: x, operator: in, value: solo}
`,
			want: "requires a list",
		},
		{
			name: "missing weight",
			yaml: `
rules:
  - id: no-weight
    source: "*"
    severity: LOW
    condition: {field: x, operator: eq, value: 1}
`,
			want: "no-weight",
		},
		{
			name: "not yaml",
			yaml: `{{{`,
			want: "parse rules file",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseRules([]byte(tt.yaml))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestRuleAppliesTo(t *testing.T) {
	wildcard := Rule{Source: SourceWildcard}
	assert.True(t, wildcard.AppliesTo(SourceCPUCollector))
	assert.True(t, wildcard.AppliesTo(SourceSimulator))

	scoped := Rule{Source: SourcePortCollector}
	assert.True(t, scoped.AppliesTo(SourcePortCollector))
	assert.False(t, scoped.AppliesTo(SourceCPUCollector))
}
