package core

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Severity is the severity level of a rule and the alerts it generates.
type Severity string

const (
	SeverityLow      Severity = "LOW"
	SeverityMedium   Severity = "MEDIUM"
	SeverityHigh     Severity = "HIGH"
	SeverityCritical Severity = "CRITICAL"
)

// SeverityMultiplier scales a rule's weight into an alert's base score.
// The mapping is fixed and applied exactly once, at alert creation.
var SeverityMultiplier = map[Severity]float64{
	SeverityLow:      1,
	SeverityMedium:   2,
	SeverityHigh:     3,
	SeverityCritical: 4,
}

// ParseSeverity normalizes and validates a severity string.
func ParseSeverity(s string) (Severity, error) {
	sev := Severity(strings.ToUpper(strings.TrimSpace(s)))
	if _, ok := SeverityMultiplier[sev]; !ok {
		return "", fmt.Errorf("unknown severity %q", s)
	}
	return sev, nil
}

// SeverityRank orders severities for filtering (LOW=1 .. CRITICAL=4).
// Unknown severities rank 0 and never pass a minimum-severity filter.
func SeverityRank(s Severity) int {
	return int(SeverityMultiplier[s])
}

// Alert is a persisted, user-visible record of an accepted rule match.
// Acknowledged is the only field mutated after creation.
type Alert struct {
	ID           string                 `json:"id"`
	RuleID       string                 `json:"rule_id"`
	Severity     Severity               `json:"severity"`
	BaseScore    float64                `json:"base_score"`
	Message      string                 `json:"message"`
	Source       string                 `json:"source"`
	Payload      map[string]interface{} `json:"payload"`
	Acknowledged bool                   `json:"acknowledged"`
	CreatedAt    time.Time              `json:"created_at"`
}

// NewAlert builds an alert from a rule and its triggering event. The base
// score is weight x severity multiplier, fixed here and never recomputed.
func NewAlert(rule Rule, event *Event) *Alert {
	payload := make(map[string]interface{}, len(event.Payload))
	for k, v := range event.Payload {
		payload[k] = v
	}
	return &Alert{
		ID:        uuid.NewString(),
		RuleID:    rule.ID,
		Severity:  rule.Severity,
		BaseScore: rule.Weight * SeverityMultiplier[rule.Severity],
		Message:   rule.Description,
		Source:    string(event.Source),
		Payload:   payload,
		CreatedAt: time.Now().UTC(),
	}
}
