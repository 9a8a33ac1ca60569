package pdf

import (
	"math"
	"strings"

	"github.com/ledongthuc/pdf"
)

const (
	// baselineTolerance is the largest y difference, in points, between
	// glyphs of one run.
	baselineTolerance = 0.5
	// gapTolerance is the largest horizontal gap between adjacent glyphs of
	// one run, as a fraction of the font size. A word space is wider.
	gapTolerance = 0.15
)

// Runs merges the per-glyph output of the content stream into positioned text
// runs. Adjacent glyphs on the same baseline, in the same font and size, with
// no visible gap, belong to one run. Whitespace-only runs are dropped.
func Runs(texts []pdf.Text) []string {
	runs := make([]string, 0)
	var b strings.Builder
	var prev pdf.Text
	open := false

	flush := func() {
		if s := strings.TrimSpace(b.String()); s != "" {
			runs = append(runs, s)
		}
		b.Reset()
		open = false
	}

	for _, t := range texts {
		if t.S == "" {
			continue
		}
		if open && !continues(prev, t) {
			flush()
		}
		b.WriteString(t.S)
		prev = t
		open = true
	}
	flush()

	return runs
}

func continues(prev, next pdf.Text) bool {
	if prev.Font != next.Font || prev.FontSize != next.FontSize {
		return false
	}
	if math.Abs(prev.Y-next.Y) > baselineTolerance {
		return false
	}
	size := prev.FontSize
	if size <= 0 {
		size = 1
	}
	gap := next.X - (prev.X + prev.W)
	return math.Abs(gap) <= gapTolerance*size
}
