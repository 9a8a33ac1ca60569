package rules

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"regexp"
	"strconv"

	"github.com/feichai0017/document-alerts/internal/models"
)

// DefaultAmountPattern captures currency amounts such as "$1,250.00".
const DefaultAmountPattern = `\$\s?([0-9][0-9,]*(?:\.[0-9]+)?)`

// Definition is the declarative form of a rule, as written in the rule file.
type Definition struct {
	ID            string   `yaml:"id,omitempty" json:"id,omitempty"`
	Description   string   `yaml:"description,omitempty" json:"description,omitempty"`
	Kind          Kind     `yaml:"kind" json:"kind"`
	Scope         Scope    `yaml:"scope,omitempty" json:"scope,omitempty"`
	Keywords      []string `yaml:"keywords,omitempty" json:"keywords,omitempty"`
	Match         string   `yaml:"match,omitempty" json:"match,omitempty"`
	CaseSensitive bool     `yaml:"caseSensitive,omitempty" json:"caseSensitive,omitempty"`
	Pattern       string   `yaml:"pattern,omitempty" json:"pattern,omitempty"`
	Op            string   `yaml:"op,omitempty" json:"op,omitempty"`
	Value         *float64 `yaml:"value,omitempty" json:"value,omitempty"`
}

// Compile validates definitions and builds an immutable RuleSet. Any invalid
// definition fails the whole set with a *models.RuleDefinitionError.
func Compile(defs []Definition) (*RuleSet, error) {
	rules := make([]Rule, 0, len(defs))
	seen := make(map[string]bool, len(defs))
	for i, def := range defs {
		r, err := def.compile()
		if err != nil {
			return nil, &models.RuleDefinitionError{RuleID: def.ID, Index: i, Reason: err.Error()}
		}
		if seen[r.ID] {
			return nil, &models.RuleDefinitionError{RuleID: r.ID, Index: i, Reason: "duplicate rule id"}
		}
		seen[r.ID] = true
		rules = append(rules, r)
	}
	return newRuleSet(rules, digest(defs)), nil
}

func (d Definition) compile() (Rule, error) {
	scope := d.Scope
	switch scope {
	case "":
		scope = ScopeDocument
	case ScopeDocument, ScopePage:
	default:
		return Rule{}, fmt.Errorf("unknown scope %q", d.Scope)
	}

	rule := Rule{ID: d.ID, Description: d.Description, Scope: scope}

	switch d.Kind {
	case KindKeyword:
		if len(d.Keywords) == 0 {
			return Rule{}, fmt.Errorf("keyword rule needs at least one keyword")
		}
		for _, kw := range d.Keywords {
			if kw == "" {
				return Rule{}, fmt.Errorf("empty keyword")
			}
		}
		if d.Pattern != "" || d.Op != "" || d.Value != nil {
			return Rule{}, fmt.Errorf("keyword rule does not take pattern, op or value")
		}
		var all bool
		switch d.Match {
		case "", "any":
		case "all":
			all = true
		default:
			return Rule{}, fmt.Errorf("unknown match mode %q", d.Match)
		}
		rule.Predicate = KeywordPredicate{
			Keywords:      append([]string(nil), d.Keywords...),
			All:           all,
			CaseSensitive: d.CaseSensitive,
		}
		if rule.ID == "" {
			rule.ID = "keyword:" + d.Keywords[0]
		}

	case KindRegex:
		if d.Pattern == "" {
			return Rule{}, fmt.Errorf("regex rule needs a pattern")
		}
		if len(d.Keywords) > 0 || d.Op != "" || d.Value != nil || d.Match != "" {
			return Rule{}, fmt.Errorf("regex rule only takes a pattern")
		}
		re, err := regexp.Compile(d.Pattern)
		if err != nil {
			return Rule{}, fmt.Errorf("invalid pattern: %w", err)
		}
		rule.Predicate = RegexPredicate{Pattern: re}
		if rule.ID == "" {
			rule.ID = "regex:" + d.Pattern
		}

	case KindThreshold:
		op := CompareOp(d.Op)
		switch op {
		case OpGreater, OpGreaterEqual, OpLess, OpLessEqual, OpEqual:
		default:
			return Rule{}, fmt.Errorf("unknown comparison %q", d.Op)
		}
		if d.Value == nil {
			return Rule{}, fmt.Errorf("threshold rule needs a value")
		}
		if len(d.Keywords) > 0 || d.Match != "" {
			return Rule{}, fmt.Errorf("threshold rule does not take keywords")
		}
		pattern := d.Pattern
		if pattern == "" {
			pattern = DefaultAmountPattern
		}
		re, err := regexp.Compile(pattern)
		if err != nil {
			return Rule{}, fmt.Errorf("invalid pattern: %w", err)
		}
		if re.NumSubexp() < 1 {
			return Rule{}, fmt.Errorf("threshold pattern needs a capture group for the number")
		}
		rule.Predicate = ThresholdPredicate{Pattern: re, Op: op, Value: *d.Value}
		if rule.ID == "" {
			rule.ID = fmt.Sprintf("threshold:%s:%s", op, strconv.FormatFloat(*d.Value, 'f', -1, 64))
		}

	default:
		return Rule{}, fmt.Errorf("unknown rule kind %q", d.Kind)
	}

	return rule, nil
}

func digest(defs []Definition) string {
	data, err := json.Marshal(defs)
	if err != nil {
		return ""
	}
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])[:12]
}
