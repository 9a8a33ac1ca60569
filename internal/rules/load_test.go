package rules

import (
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"

	"github.com/feichai0017/document-alerts/internal/models"
)

const sampleRules = `
version: 1
rules:
  - kind: keyword
    keywords: [overdue]
  - id: large-amount
    description: invoice total above 1000
    kind: threshold
    op: gt
    value: 1000
  - kind: regex
    pattern: 'IBAN\s*[A-Z]{2}[0-9]{2}'
    scope: page
`

func TestParseAppliesDefaults(t *testing.T) {
	set, err := Parse([]byte(sampleRules))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}

	want := []string{"keyword:overdue", "large-amount", `regex:IBAN\s*[A-Z]{2}[0-9]{2}`}
	if got := set.IDs(); !reflect.DeepEqual(got, want) {
		t.Fatalf("IDs = %q, want %q", got, want)
	}

	for _, r := range set.Rules() {
		switch r.ID {
		case "keyword:overdue":
			if r.Scope != ScopeDocument {
				t.Errorf("default scope = %q, want document", r.Scope)
			}
			kp := r.Predicate.(KeywordPredicate)
			if kp.All || kp.CaseSensitive {
				t.Errorf("keyword defaults = %+v, want any / case-insensitive", kp)
			}
		case "large-amount":
			tp := r.Predicate.(ThresholdPredicate)
			if tp.Pattern.String() != DefaultAmountPattern || tp.Op != OpGreater || tp.Value != 1000 {
				t.Errorf("threshold = %+v", tp)
			}
		default:
			if r.Scope != ScopePage {
				t.Errorf("regex scope = %q, want page", r.Scope)
			}
		}
	}
	if set.Version() == "" {
		t.Error("expected a version digest")
	}
}

func TestParseVersionIsStable(t *testing.T) {
	a, err := Parse([]byte(sampleRules))
	if err != nil {
		t.Fatal(err)
	}
	b, err := Parse([]byte(sampleRules))
	if err != nil {
		t.Fatal(err)
	}
	if a.Version() != b.Version() {
		t.Fatalf("versions differ: %s vs %s", a.Version(), b.Version())
	}
	c, err := Parse([]byte(strings.Replace(sampleRules, "1000", "2000", 1)))
	if err != nil {
		t.Fatal(err)
	}
	if c.Version() == a.Version() {
		t.Fatal("changed rules kept the same version")
	}
}

func TestParseRejectsInvalidDefinitions(t *testing.T) {
	tests := map[string]string{
		"not yaml":           "rules: [",
		"empty file":         "",
		"missing rules":      "version: 1",
		"unknown kind":       "rules:\n  - kind: fuzzy\n    keywords: [x]",
		"unknown field":      "rules:\n  - kind: keyword\n    keywords: [x]\n    weight: 3",
		"keyword no words":   "rules:\n  - kind: keyword",
		"empty keyword":      "rules:\n  - kind: keyword\n    keywords: ['']",
		"regex bad pattern":  "rules:\n  - kind: regex\n    pattern: '(['",
		"regex with op":      "rules:\n  - kind: regex\n    pattern: a\n    op: gt",
		"threshold no value": "rules:\n  - kind: threshold\n    op: gt",
		"threshold bad op":   "rules:\n  - kind: threshold\n    op: between\n    value: 1",
		"threshold no group": "rules:\n  - kind: threshold\n    op: gt\n    value: 1\n    pattern: '[0-9]+'",
		"keyword with value": "rules:\n  - kind: keyword\n    keywords: [x]\n    value: 3",
		"bad scope":          "rules:\n  - kind: keyword\n    keywords: [x]\n    scope: line",
		"duplicate ids":      "rules:\n  - kind: keyword\n    keywords: [x]\n  - kind: keyword\n    keywords: [x, y]",
	}

	for name, content := range tests {
		t.Run(name, func(t *testing.T) {
			set, err := Parse([]byte(content))
			if set != nil {
				t.Fatal("expected no rule set")
			}
			if !errors.Is(err, models.ErrRuleDefinition) {
				t.Fatalf("err = %v, want ErrRuleDefinition", err)
			}
		})
	}
}

func TestCompileReportsOffendingRule(t *testing.T) {
	value := 5.0
	_, err := Compile([]Definition{
		{Kind: KindKeyword, Keywords: []string{"ok"}},
		{ID: "broken", Kind: KindThreshold, Op: "gt", Value: &value, Pattern: "[0-9]+"},
	})

	var rde *models.RuleDefinitionError
	if !errors.As(err, &rde) {
		t.Fatalf("err = %T %v, want *RuleDefinitionError", err, err)
	}
	if rde.RuleID != "broken" || rde.Index != 1 {
		t.Fatalf("error names rule %q index %d, want broken / 1", rde.RuleID, rde.Index)
	}
}

func TestCompileDuplicateDefaultID(t *testing.T) {
	_, err := Compile([]Definition{
		{Kind: KindKeyword, Keywords: []string{"late"}},
		{Kind: KindKeyword, Keywords: []string{"late", "overdue"}, Match: "all"},
	})
	var rde *models.RuleDefinitionError
	if !errors.As(err, &rde) || rde.RuleID != "keyword:late" || rde.Index != 1 {
		t.Fatalf("err = %v, want duplicate keyword:late at index 1", err)
	}
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rules.yaml")
	if err := os.WriteFile(path, []byte(sampleRules), 0o644); err != nil {
		t.Fatal(err)
	}
	set, err := LoadFile(path)
	if err != nil {
		t.Fatalf("LoadFile: %v", err)
	}
	if set.Len() != 3 {
		t.Fatalf("Len = %d, want 3", set.Len())
	}

	if _, err := LoadFile(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Fatal("expected error for missing file")
	}
}
