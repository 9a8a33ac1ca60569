// Package rules defines detection rules and evaluates them against extracted
// document text.
package rules

import (
	"regexp"
	"sort"
)

// Kind 规则类型
type Kind string

const (
	KindKeyword   Kind = "keyword"
	KindRegex     Kind = "regex"
	KindThreshold Kind = "threshold"
)

// Scope selects the text a rule is evaluated against.
type Scope string

const (
	// ScopeDocument evaluates against all pages joined by models.PageBoundary.
	ScopeDocument Scope = "document"
	// ScopePage evaluates against each page; the first matching page wins.
	ScopePage Scope = "page"
)

// CompareOp is the comparison of a threshold rule.
type CompareOp string

const (
	OpGreater      CompareOp = "gt"
	OpGreaterEqual CompareOp = "gte"
	OpLess         CompareOp = "lt"
	OpLessEqual    CompareOp = "lte"
	OpEqual        CompareOp = "eq"
)

func (op CompareOp) compare(a, b float64) bool {
	switch op {
	case OpGreater:
		return a > b
	case OpGreaterEqual:
		return a >= b
	case OpLess:
		return a < b
	case OpLessEqual:
		return a <= b
	case OpEqual:
		return a == b
	}
	return false
}

// Predicate is one of KeywordPredicate, RegexPredicate or ThresholdPredicate.
type Predicate interface {
	Kind() Kind
	sealed()
}

// KeywordPredicate holds when any (or all) keywords occur in the text.
type KeywordPredicate struct {
	Keywords      []string
	All           bool
	CaseSensitive bool
}

// RegexPredicate holds when Pattern matches the text.
type RegexPredicate struct {
	Pattern *regexp.Regexp
}

// ThresholdPredicate holds when a number captured by Pattern compares true
// against Value.
type ThresholdPredicate struct {
	Pattern *regexp.Regexp
	Op      CompareOp
	Value   float64
}

func (KeywordPredicate) Kind() Kind   { return KindKeyword }
func (RegexPredicate) Kind() Kind     { return KindRegex }
func (ThresholdPredicate) Kind() Kind { return KindThreshold }

func (KeywordPredicate) sealed()   {}
func (RegexPredicate) sealed()     {}
func (ThresholdPredicate) sealed() {}

// Rule is a compiled, immutable rule.
type Rule struct {
	ID          string
	Description string
	Scope       Scope
	Predicate   Predicate
}

// RuleSet is an immutable set of rules ordered by ID.
type RuleSet struct {
	rules   []Rule
	version string
}

// newRuleSet expects unique rule ids.
func newRuleSet(rules []Rule, version string) *RuleSet {
	sorted := append([]Rule(nil), rules...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].ID < sorted[j].ID })
	return &RuleSet{rules: sorted, version: version}
}

// Rules returns a copy of the rules in ID order.
func (s *RuleSet) Rules() []Rule {
	return append([]Rule(nil), s.rules...)
}

func (s *RuleSet) Len() int {
	return len(s.rules)
}

// Version identifies the rule set source, e.g. a digest of the rule file.
func (s *RuleSet) Version() string {
	return s.version
}

// IDs returns the rule identifiers in order.
func (s *RuleSet) IDs() []string {
	ids := make([]string, len(s.rules))
	for i, r := range s.rules {
		ids[i] = r.ID
	}
	return ids
}
