package core

// filter.go implements the declarative filter chain: ordered rule sets,
// AND-combined, that partition transformed rows into included and excluded.
// Rule sets are registered under exact (sourceID, category) keys; unknown
// keys resolve to the identity filter so a missing registration can never
// drop data.

import (
	"strings"
	"sync"
	"time"
)

// FilterOperator is a comparison operator for filter rules.
type FilterOperator string

const (
	OpEquals     FilterOperator = "equals"
	OpIncludes   FilterOperator = "includes"
	OpExcludes   FilterOperator = "excludes"
	OpStartsWith FilterOperator = "startsWith"
	OpEndsWith   FilterOperator = "endsWith"
	OpDaysSince  FilterOperator = "daysSince"
)

// FilterRule is a single condition on a target field. A row must satisfy
// every rule in a chain to be included.
type FilterRule struct {
	Field  string         `json:"field"`
	Op     FilterOperator `json:"operator"`
	Values []string       `json:"values,omitempty"`
	// MaxDays applies to OpDaysSince: the field's timestamp must be at
	// most this many days old.
	MaxDays int `json:"maxDays,omitempty"`
}

// RuleSetKey addresses a registered rule set.
type RuleSetKey struct {
	SourceID string
	Category string
}

// RuleSet is a named, ordered list of AND-combined rules.
type RuleSet struct {
	Name  string
	Rules []FilterRule
}

// FilterStats summarizes one filter application.
type FilterStats struct {
	Total      int    `json:"total"`
	Included   int    `json:"included"`
	Excluded   int    `json:"excluded"`
	FilterName string `json:"filterName"`
}

// FilterOutcome is the exact partition produced by ApplyFilter:
// Included and Excluded are disjoint and together cover the input.
type FilterOutcome struct {
	Included []SourceRow
	Excluded []SourceRow
	Stats    FilterStats
}

var (
	ruleSets   = make(map[RuleSetKey]RuleSet)
	ruleSetsMu sync.RWMutex
)

// RegisterRuleSet installs a rule set under its exact key, replacing any
// previous registration.
func RegisterRuleSet(key RuleSetKey, set RuleSet) {
	ruleSetsMu.Lock()
	defer ruleSetsMu.Unlock()
	ruleSets[key] = set
}

// ruleSetFor looks up a registered rule set; unknown keys get the identity
// filter.
func ruleSetFor(key RuleSetKey) RuleSet {
	ruleSetsMu.RLock()
	defer ruleSetsMu.RUnlock()
	if set, ok := ruleSets[key]; ok {
		return set
	}
	return RuleSet{Name: "identity"}
}

// ApplyFilter partitions rows using the rule set registered under key, with
// caller-supplied extra rules appended and AND-combined. The partition is
// exact: every input row lands in exactly one of Included or Excluded.
func ApplyFilter(rows []SourceRow, key RuleSetKey, extra []FilterRule) FilterOutcome {
	set := ruleSetFor(key)
	rules := set.Rules
	if len(extra) > 0 {
		rules = append(append([]FilterRule(nil), set.Rules...), extra...)
	}

	outcome := FilterOutcome{
		Stats: FilterStats{Total: len(rows), FilterName: set.Name},
	}
	now := time.Now()

	for _, row := range rows {
		if matchesAll(row, rules, now) {
			outcome.Included = append(outcome.Included, row)
		} else {
			outcome.Excluded = append(outcome.Excluded, row)
		}
	}

	outcome.Stats.Included = len(outcome.Included)
	outcome.Stats.Excluded = len(outcome.Excluded)
	return outcome
}

func matchesAll(row SourceRow, rules []FilterRule, now time.Time) bool {
	for _, rule := range rules {
		if !matches(row, rule, now) {
			return false
		}
	}
	return true
}

// matches evaluates one rule against one row. A missing field never
// matches, so rows without the field are excluded by any rule naming it.
func matches(row SourceRow, rule FilterRule, now time.Time) bool {
	value, ok := row.Field(rule.Field)

	if rule.Op == OpDaysSince {
		// Unparsable or absent timestamps count as infinitely old, but
		// only because this rule is present; without a daysSince rule
		// no row is ever excluded on this basis.
		if !ok {
			return false
		}
		t, parsed := parseFilterTime(value)
		if !parsed {
			return false
		}
		age := now.Sub(t)
		return age <= time.Duration(rule.MaxDays)*24*time.Hour
	}

	if !ok {
		return false
	}

	switch rule.Op {
	case OpEquals:
		for _, want := range rule.Values {
			if strings.EqualFold(value, want) {
				return true
			}
		}
		return false
	case OpIncludes:
		for _, want := range rule.Values {
			if containsFold(value, want) {
				return true
			}
		}
		return false
	case OpExcludes:
		for _, want := range rule.Values {
			if containsFold(value, want) {
				return false
			}
		}
		return true
	case OpStartsWith:
		for _, want := range rule.Values {
			if len(value) >= len(want) && strings.EqualFold(value[:len(want)], want) {
				return true
			}
		}
		return false
	case OpEndsWith:
		for _, want := range rule.Values {
			if len(value) >= len(want) && strings.EqualFold(value[len(value)-len(want):], want) {
				return true
			}
		}
		return false
	default:
		// Unknown operators never exclude; a typo in a rule set must not
		// silently eat rows.
		return true
	}
}

func containsFold(haystack, needle string) bool {
	return strings.Contains(strings.ToLower(haystack), strings.ToLower(needle))
}

// filterTimeLayouts mirrors the formats the transformation modules emit.
var filterTimeLayouts = []string{
	time.RFC3339,
	"2006-01-02 15:04:05",
	"2006-01-02",
}

func parseFilterTime(value string) (time.Time, bool) {
	s := strings.TrimSpace(value)
	if s == "" {
		return time.Time{}, false
	}
	for _, layout := range filterTimeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}
