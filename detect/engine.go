// Package detect implements the detection pipeline: rule evaluation against
// incoming events, and the alert manager that turns matches into deduplicated
// persisted alerts.
package detect

import (
	"fmt"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"hostsentry/core"
)

// RuleMatch pairs a matched rule with the event that triggered it.
type RuleMatch struct {
	Rule  core.Rule
	Event *core.Event
}

// RuleEngine evaluates events against the active rule set, including
// conditions that depend on event history (sustained and window rules).
//
// All mutation of window state happens on the single consumer goroutine that
// calls Evaluate; the rule set itself is an immutable slice swapped under an
// atomic pointer, so Rules() is safe from read paths.
type RuleEngine struct {
	rules     atomic.Pointer[[]core.Rule]
	blocklist *core.Blocklist
	logger    *zap.SugaredLogger

	sustained map[stateKey]*sustainedMark
	windows   map[stateKey]*timestampRing

	evalCount uint64 // drives the periodic lazy sweep of stale state
}

// staleSweepEvery controls how often Evaluate scans all window/sustained
// state for entries whose source has gone quiet.
const staleSweepEvery = 512

// NewRuleEngine creates an engine over an immutable rule set. The blocklist
// may be nil, in which case in_blocklist never matches.
func NewRuleEngine(rules []core.Rule, blocklist *core.Blocklist, logger *zap.SugaredLogger) *RuleEngine {
	e := &RuleEngine{
		blocklist: blocklist,
		logger:    logger,
		sustained: make(map[stateKey]*sustainedMark),
		windows:   make(map[stateKey]*timestampRing),
	}
	e.rules.Store(&rules)
	return e
}

// Rules returns the active rule set. The slice is immutable.
func (e *RuleEngine) Rules() []core.Rule {
	return *e.rules.Load()
}

// SwapRules atomically replaces the active rule set. Window state belonging
// to rules that no longer exist is discarded on the consumer's next sweep.
func (e *RuleEngine) SwapRules(rules []core.Rule) {
	e.rules.Store(&rules)
}

// Evaluate matches one event against every applicable rule and returns the
// resulting matches. It is a pure function of the event plus the engine's
// window state; no event is ever evaluated twice.
func (e *RuleEngine) Evaluate(event *core.Event) []RuleMatch {
	var matches []RuleMatch
	for _, rule := range e.Rules() {
		if !rule.AppliesTo(event.Source) {
			continue
		}
		if e.evaluateRule(rule, event) {
			matches = append(matches, RuleMatch{Rule: rule, Event: event})
		}
	}

	e.evalCount++
	if e.evalCount%staleSweepEvery == 0 {
		e.sweepStale(event.Timestamp)
	}
	return matches
}

func (e *RuleEngine) evaluateRule(rule core.Rule, event *core.Event) bool {
	switch rule.Condition.Kind() {
	case core.KindSustained:
		return e.evaluateSustained(rule, event)
	case core.KindWindow:
		return e.evaluateWindow(rule, event)
	default:
		return e.evaluateInstant(rule.Condition, event.Payload)
	}
}

// evaluateSustained models "the condition has been continuously true for at
// least N seconds" across consecutive events from one source. Any
// observation where the comparison fails resets the clock; a later
// continuous stretch starts counting from zero.
func (e *RuleEngine) evaluateSustained(rule core.Rule, event *core.Event) bool {
	key := stateKey{ruleID: rule.ID, source: string(event.Source)}

	if !e.evaluateInstant(rule.Condition, event.Payload) {
		delete(e.sustained, key)
		return false
	}

	now := event.Timestamp
	mark, ok := e.sustained[key]
	if ok && now.Sub(mark.lastSeen) > rule.Condition.Sustained() {
		// The source went quiet for longer than the required hold;
		// continuity cannot be claimed across the gap.
		ok = false
	}
	if !ok {
		e.sustained[key] = &sustainedMark{since: now, lastSeen: now, set: true}
		return false
	}

	mark.lastSeen = now
	return now.Sub(mark.since) >= rule.Condition.Sustained()
}

// evaluateWindow counts qualifying events (field present and truthy) inside
// the trailing window. The count threshold is carried in the condition value
// and compared using the rule's operator. On a match the window clears so the
// same burst cannot re-trigger.
func (e *RuleEngine) evaluateWindow(rule core.Rule, event *core.Event) bool {
	key := stateKey{ruleID: rule.ID, source: string(event.Source)}
	threshold := windowThreshold(rule.Condition)

	ring, ok := e.windows[key]
	if !ok {
		// A strictly-greater-than rule needs room for one count past the
		// threshold or it could never fire.
		capacity := threshold
		if rule.Condition.Operator == core.OpGt {
			capacity++
		}
		ring = newTimestampRing(capacity)
		e.windows[key] = ring
	}

	now := event.Timestamp
	ring.pruneBefore(now.Add(-rule.Condition.Window()))

	if !truthy(event.Payload[rule.Condition.Field]) {
		if ring.len() == 0 {
			delete(e.windows, key)
		}
		return false
	}

	ring.add(now)
	if !compareCount(ring.len(), rule.Condition.Operator, threshold) {
		return false
	}
	ring.clear()
	delete(e.windows, key)
	return true
}

// evaluateInstant applies the operator to payload[field]. Missing fields and
// type mismatches evaluate to false, never to a failure.
func (e *RuleEngine) evaluateInstant(cond core.Condition, payload map[string]interface{}) bool {
	fieldVal, ok := payload[cond.Field]
	if !ok || fieldVal == nil {
		return false
	}

	switch cond.Operator {
	case core.OpGt:
		return compareFloats(fieldVal, cond.Value, func(a, b float64) bool { return a > b })
	case core.OpLt:
		return compareFloats(fieldVal, cond.Value, func(a, b float64) bool { return a < b })
	case core.OpGte:
		return compareFloats(fieldVal, cond.Value, func(a, b float64) bool { return a >= b })
	case core.OpLte:
		return compareFloats(fieldVal, cond.Value, func(a, b float64) bool { return a <= b })
	case core.OpEq:
		return looseEqual(fieldVal, cond.Value)
	case core.OpNeq:
		return !looseEqual(fieldVal, cond.Value)
	case core.OpIn:
		return inList(fieldVal, cond.Value)
	case core.OpNotIn:
		return !inList(fieldVal, cond.Value)
	case core.OpInBlocklist:
		return e.blocklist.Contains(fmt.Sprint(fieldVal))
	default:
		e.logger.Warnw("Unknown operator", "operator", cond.Operator)
		return false
	}
}

// sweepStale removes window and sustained state whose source stopped
// producing, and state belonging to rules removed by a set swap.
func (e *RuleEngine) sweepStale(now time.Time) {
	byID := make(map[string]core.Rule)
	for _, r := range e.Rules() {
		byID[r.ID] = r
	}

	for key, mark := range e.sustained {
		rule, ok := byID[key.ruleID]
		if !ok || now.Sub(mark.lastSeen) > rule.Condition.Sustained() {
			delete(e.sustained, key)
		}
	}
	for key, ring := range e.windows {
		rule, ok := byID[key.ruleID]
		if !ok {
			delete(e.windows, key)
			continue
		}
		ring.pruneBefore(now.Add(-rule.Condition.Window()))
		if ring.len() == 0 {
			delete(e.windows, key)
		}
	}
}

func windowThreshold(cond core.Condition) int {
	switch n := cond.Value.(type) {
	case int:
		return n
	case int64:
		return int(n)
	case float64:
		return int(n)
	default:
		return 1
	}
}

func compareCount(count int, op core.Operator, threshold int) bool {
	switch op {
	case core.OpGt:
		return count > threshold
	case core.OpGte:
		return count >= threshold
	case core.OpEq:
		return count == threshold
	default:
		// Window conditions express "at least N in the window" unless
		// the rule says otherwise.
		return count >= threshold
	}
}

// compareFloats coerces both sides to float64; non-numeric values make the
// comparison false.
func compareFloats(a, b interface{}, cmp func(float64, float64) bool) bool {
	fa, ok := toFloat(a)
	if !ok {
		return false
	}
	fb, ok := toFloat(b)
	if !ok {
		return false
	}
	return cmp(fa, fb)
}

func toFloat(v interface{}) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint64:
		return float64(n), true
	case string:
		f, err := strconv.ParseFloat(n, 64)
		return f, err == nil
	default:
		return 0, false
	}
}

// looseEqual compares with bool/string/number coercion so YAML-typed rule
// values match JSON-typed payload values.
func looseEqual(fieldVal, ruleVal interface{}) bool {
	if bv, ok := asBool(ruleVal); ok {
		fv, fok := asBool(fieldVal)
		return fok && fv == bv
	}
	if ff, ok := toFloat(fieldVal); ok {
		if rf, rok := toFloat(ruleVal); rok {
			return ff == rf
		}
	}
	return fmt.Sprint(fieldVal) == fmt.Sprint(ruleVal)
}

func asBool(v interface{}) (bool, bool) {
	switch b := v.(type) {
	case bool:
		return b, true
	case string:
		switch strings.ToLower(b) {
		case "true":
			return true, true
		case "false":
			return false, true
		}
	}
	return false, false
}

func inList(fieldVal, ruleVal interface{}) bool {
	list, ok := ruleVal.([]interface{})
	if !ok {
		return false
	}
	for _, item := range list {
		if looseEqual(fieldVal, item) {
			return true
		}
	}
	return false
}

// truthy reports whether a payload value qualifies an event for a window
// condition: present booleans true, numbers non-zero, strings non-empty.
func truthy(v interface{}) bool {
	switch t := v.(type) {
	case nil:
		return false
	case bool:
		return t
	case string:
		return t != ""
	default:
		if f, ok := toFloat(v); ok {
			return f != 0
		}
		return true
	}
}
