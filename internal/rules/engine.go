package rules

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/feichai0017/document-alerts/internal/models"
)

const snippetRadius = 40

// text is one evaluation target; the lowered form is computed once and shared
// by every case-insensitive keyword rule.
type text struct {
	raw   string
	lower string
}

func newText(s string) *text {
	return &text{raw: s, lower: strings.ToLower(s)}
}

// Evaluate runs every rule in set against doc. It is pure: the same text and
// rule set always produce the same matches, ordered by rule id.
func Evaluate(doc *models.ExtractedDocument, set *RuleSet) []models.RuleMatch {
	if set == nil || doc == nil {
		return nil
	}

	var full *text
	pages := make([]*text, len(doc.Pages))

	matches := make([]models.RuleMatch, 0)
	for _, rule := range set.rules {
		switch rule.Scope {
		case ScopePage:
			for i, p := range doc.Pages {
				if pages[i] == nil {
					pages[i] = newText(p.Text)
				}
				if evidence, ok := evaluate(rule.Predicate, pages[i]); ok {
					matches = append(matches, models.RuleMatch{RuleID: rule.ID, Evidence: evidence, Page: p.Index})
					break
				}
			}
		default:
			if full == nil {
				full = newText(doc.FullText())
			}
			if evidence, ok := evaluate(rule.Predicate, full); ok {
				matches = append(matches, models.RuleMatch{RuleID: rule.ID, Evidence: evidence, Page: -1})
			}
		}
	}
	return matches
}

func evaluate(p Predicate, t *text) (string, bool) {
	switch p := p.(type) {
	case KeywordPredicate:
		return evalKeyword(p, t)
	case RegexPredicate:
		loc := p.Pattern.FindStringIndex(t.raw)
		if loc == nil {
			return "", false
		}
		return snippet(t.raw, loc[0], loc[1]), true
	case ThresholdPredicate:
		return evalThreshold(p, t)
	default:
		panic(fmt.Sprintf("rules: unhandled predicate %T", p))
	}
}

func evalKeyword(p KeywordPredicate, t *text) (string, bool) {
	haystack := t.lower
	if p.CaseSensitive {
		haystack = t.raw
	}

	first, firstEnd := -1, -1
	for _, kw := range p.Keywords {
		needle := kw
		if !p.CaseSensitive {
			needle = strings.ToLower(kw)
		}
		idx := strings.Index(haystack, needle)
		if idx < 0 {
			if p.All {
				return "", false
			}
			continue
		}
		if first < 0 {
			first, firstEnd = idx, idx+len(needle)
		}
		if !p.All {
			break
		}
	}
	if first < 0 {
		return "", false
	}
	if len(haystack) != len(t.raw) {
		// lowering changed byte offsets; fall back to the keyword itself
		return strings.Join(p.Keywords, ", "), true
	}
	return snippet(t.raw, first, firstEnd), true
}

func evalThreshold(p ThresholdPredicate, t *text) (string, bool) {
	for _, m := range p.Pattern.FindAllStringSubmatchIndex(t.raw, -1) {
		if len(m) < 4 || m[2] < 0 {
			continue
		}
		num := strings.ReplaceAll(t.raw[m[2]:m[3]], ",", "")
		v, err := strconv.ParseFloat(num, 64)
		if err != nil {
			continue
		}
		if p.Op.compare(v, p.Value) {
			return t.raw[m[0]:m[1]], true
		}
	}
	return "", false
}

// snippet returns the match with up to snippetRadius bytes of context on each
// side, trimmed to whole runes and with page boundaries shown as spaces.
func snippet(s string, start, end int) string {
	from := start - snippetRadius
	if from < 0 {
		from = 0
	}
	to := end + snippetRadius
	if to > len(s) {
		to = len(s)
	}
	for from > 0 && !isRuneStart(s[from]) {
		from--
	}
	for to < len(s) && !isRuneStart(s[to]) {
		to++
	}
	out := strings.ReplaceAll(s[from:to], models.PageBoundary, " ")
	return strings.TrimSpace(out)
}

func isRuneStart(b byte) bool {
	return b&0xC0 != 0x80
}
