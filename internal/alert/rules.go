package alert

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/matthewbaird/civicpulse/internal/catalog"
	"github.com/matthewbaird/civicpulse/internal/types"
)

// condition is a parsed "field op value" clause.
type condition struct {
	field string
	op    string
	value string
}

type rule struct {
	catalog.SeverityRule
	issueType types.IssueType
	cond      *condition
}

// ruleTable buckets rules into four tiers: issue-specific conditional,
// wildcard conditional, issue-specific unconditional, catch-all. Severity ties
// among conditional rules go to the lower tier, then the rule declared first.
type ruleTable struct {
	tiers    [4][]rule
	fallback types.Severity
}

// Two-char operators must be tried before their one-char prefixes.
var operators = []string{"<=", ">=", "==", "<", ">"}

func parseCondition(s string) (*condition, error) {
	for _, op := range operators {
		parts := strings.SplitN(s, op, 2)
		if len(parts) != 2 {
			continue
		}
		c := &condition{
			field: strings.TrimSpace(parts[0]),
			op:    op,
			value: strings.TrimSpace(parts[1]),
		}
		if c.field == "" || c.value == "" {
			return nil, fmt.Errorf("condition %q: missing field or value", s)
		}
		if _, known := (types.Impact{}).Fields()[c.field]; !known {
			return nil, fmt.Errorf("condition %q: unknown field %q", s, c.field)
		}
		if op != "==" {
			if _, err := strconv.ParseFloat(c.value, 64); err != nil {
				return nil, fmt.Errorf("condition %q: %s needs a numeric operand", s, op)
			}
		}
		return c, nil
	}
	return nil, fmt.Errorf("condition %q: no operator", s)
}

func newRuleTable(rules []catalog.SeverityRule, fallback types.Severity) (*ruleTable, error) {
	if !fallback.Valid() {
		return nil, fmt.Errorf("default severity %q is not a severity", fallback)
	}
	t := &ruleTable{fallback: fallback}
	for _, sr := range rules {
		if !sr.Severity.Valid() {
			return nil, fmt.Errorf("rule %s: unknown severity %q", sr.ID, sr.Severity)
		}
		r := rule{SeverityRule: sr, issueType: types.IssueType(sr.IssueType)}
		if sr.Condition != "" {
			c, err := parseCondition(sr.Condition)
			if err != nil {
				return nil, fmt.Errorf("rule %s: %w", sr.ID, err)
			}
			r.cond = c
		}
		// Conditional rules outrank unconditional ones, so a wildcard
		// threshold still applies to issue types with a plain default.
		tier := 0
		if r.cond == nil {
			tier += 2
		}
		if sr.IssueType == "" {
			tier++
		}
		t.tiers[tier] = append(t.tiers[tier], r)
	}
	return t, nil
}

// severity returns the severity for an alert plus the id of the rule that
// decided it ("" when the default applied). Among matching conditional rules
// the most severe wins; unconditional rules only apply when none match.
func (t *ruleTable) severity(it types.IssueType, impact types.Impact) (types.Severity, string) {
	fields := impact.Fields()
	var best *rule
	for _, tier := range t.tiers[:2] {
		for i := range tier {
			r := &tier[i]
			if !r.applies(it, fields) {
				continue
			}
			if best == nil || types.SeverityOrder[r.Severity] < types.SeverityOrder[best.Severity] {
				best = r
			}
		}
	}
	if best != nil {
		return best.Severity, best.ID
	}
	for _, tier := range t.tiers[2:] {
		for _, r := range tier {
			if r.applies(it, fields) {
				return r.Severity, r.ID
			}
		}
	}
	return t.fallback, ""
}

func (r *rule) applies(it types.IssueType, fields map[string]interface{}) bool {
	if r.issueType != "" && r.issueType != it {
		return false
	}
	return r.cond == nil || r.cond.match(fields)
}

func (c *condition) match(fields map[string]interface{}) bool {
	actual, ok := fields[c.field]
	if !ok {
		return false
	}
	if c.op == "==" {
		return valueEquals(actual, c.value)
	}
	cmp, ok := valueCompare(actual, c.value)
	if !ok {
		return false
	}
	switch c.op {
	case "<=":
		return cmp <= 0
	case ">=":
		return cmp >= 0
	case "<":
		return cmp < 0
	case ">":
		return cmp > 0
	}
	return false
}

func valueEquals(actual interface{}, expected string) bool {
	switch v := actual.(type) {
	case string:
		return strings.EqualFold(v, strings.Trim(expected, `"`))
	case float64:
		ev, err := strconv.ParseFloat(expected, 64)
		if err != nil {
			return false
		}
		return v == ev
	case bool:
		return (v && expected == "true") || (!v && expected == "false")
	default:
		return false
	}
}

// valueCompare returns -1, 0, or 1 comparing actual to threshold numerically.
// ok is false when either side is not a number.
func valueCompare(actual interface{}, threshold string) (cmp int, ok bool) {
	av, ok := actual.(float64)
	if !ok {
		return 0, false
	}
	tv, err := strconv.ParseFloat(threshold, 64)
	if err != nil {
		return 0, false
	}
	switch {
	case av < tv:
		return -1, true
	case av > tv:
		return 1, true
	}
	return 0, true
}
