package core

import (
	"fmt"
	"time"
)

// Operator is the comparison applied by a rule condition.
type Operator string

const (
	OpGt          Operator = "gt"
	OpLt          Operator = "lt"
	OpGte         Operator = "gte"
	OpLte         Operator = "lte"
	OpEq          Operator = "eq"
	OpNeq         Operator = "neq"
	OpIn          Operator = "in"
	OpNotIn       Operator = "not_in"
	OpInBlocklist Operator = "in_blocklist"
)

var knownOperators = map[Operator]bool{
	OpGt: true, OpLt: true, OpGte: true, OpLte: true,
	OpEq: true, OpNeq: true, OpIn: true, OpNotIn: true,
	OpInBlocklist: true,
}

// ConditionKind distinguishes how a condition is evaluated.
type ConditionKind int

const (
	// KindInstant conditions are decided by a single event.
	KindInstant ConditionKind = iota
	// KindSustained conditions must hold continuously for a duration.
	KindSustained
	// KindWindow conditions need a count of qualifying events in a
	// trailing time window. The count threshold is carried in Value.
	KindWindow
)

// Condition describes what a rule looks for in an event payload.
//
// For window conditions Value holds the count threshold: an event qualifies
// when Payload[Field] is present and truthy, and the rule fires when the
// number of qualifying events inside WindowSeconds satisfies the operator
// against Value (normally gte).
type Condition struct {
	Field            string      `json:"field" yaml:"field" validate:"required"`
	Operator         Operator    `json:"operator" yaml:"operator" validate:"required"`
	Value            interface{} `json:"value" yaml:"value"`
	SustainedSeconds int         `json:"sustained_seconds,omitempty" yaml:"sustained_seconds,omitempty" validate:"gte=0"`
	WindowSeconds    int         `json:"window_seconds,omitempty" yaml:"window_seconds,omitempty" validate:"gte=0"`
}

// Kind reports how the condition is evaluated.
func (c Condition) Kind() ConditionKind {
	switch {
	case c.SustainedSeconds > 0:
		return KindSustained
	case c.WindowSeconds > 0:
		return KindWindow
	default:
		return KindInstant
	}
}

// Sustained returns the sustained-hold duration for sustained conditions.
func (c Condition) Sustained() time.Duration {
	return time.Duration(c.SustainedSeconds) * time.Second
}

// Window returns the trailing window for window conditions.
func (c Condition) Window() time.Duration {
	return time.Duration(c.WindowSeconds) * time.Second
}

// Rule is a declarative detection rule. Rules are immutable for the process
// lifetime; a reload swaps the whole set under a single pointer.
type Rule struct {
	ID          string      `json:"id" yaml:"id" validate:"required"`
	Description string      `json:"description" yaml:"description"`
	Source      EventSource `json:"source" yaml:"source" validate:"required"`
	Severity    Severity    `json:"severity" yaml:"severity" validate:"required"`
	Weight      float64     `json:"weight" yaml:"weight" validate:"required,gt=0"`
	Condition   Condition   `json:"condition" yaml:"condition" validate:"required"`
}

// AppliesTo reports whether the rule's source selector matches an event source.
func (r Rule) AppliesTo(source EventSource) bool {
	return r.Source == SourceWildcard || r.Source == source
}

// Validate checks the semantic constraints the struct tags cannot express.
// Errors always name the offending rule so a bad set is diagnosable at load.
func (r Rule) Validate() error {
	if _, err := ParseSeverity(string(r.Severity)); err != nil {
		return fmt.Errorf("rule %q: %w", r.ID, err)
	}
	if !knownOperators[r.Condition.Operator] {
		return fmt.Errorf("rule %q: unknown operator %q", r.ID, r.Condition.Operator)
	}
	if r.Condition.SustainedSeconds > 0 && r.Condition.WindowSeconds > 0 {
		return fmt.Errorf("rule %q: sustained_seconds and window_seconds are mutually exclusive", r.ID)
	}
	if r.Condition.Kind() == KindWindow {
		n, ok := toInt(r.Condition.Value)
		if !ok || n <= 0 {
			return fmt.Errorf("rule %q: window condition value must be a positive count, got %v", r.ID, r.Condition.Value)
		}
		switch r.Condition.Operator {
		case OpGte, OpGt, OpEq:
		default:
			return fmt.Errorf("rule %q: operator %s cannot apply to a window count", r.ID, r.Condition.Operator)
		}
	}
	if r.Condition.Operator == OpIn || r.Condition.Operator == OpNotIn {
		if _, ok := r.Condition.Value.([]interface{}); !ok {
			return fmt.Errorf("rule %q: operator %s requires a list value", r.ID, r.Condition.Operator)
		}
	}
	return nil
}

func toInt(v interface{}) (int, bool) {
	switch n := v.(type) {
	case int:
		return n, true
	case int64:
		return int(n), true
	case float64:
		return int(n), true
	case uint64:
		return int(n), true
	default:
		return 0, false
	}
}
