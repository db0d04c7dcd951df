// Package diag renders a Diagnostics list into the exact text format
// prescribed for host-facing error output. Every other package
// in the pipeline only appends to a *source.Diagnostics (pkg/source);
// this is the one place that turns that accumulated list into the
// byte-identical-across-runs string the test-harness entry point returns
// alongside an exit code.
package diag

import (
	"strconv"
	"strings"

	"github.com/negilang/negi/pkg/source"
)

// Format renders every diagnostic src recorded, in occurrence order, as
//
//	<line_l>:<col_l>..<line_r>:<col_r> near '<token text>'
//	  <message>
//
// one-based positions, blank if there are no diagnostics at all.
func Format(src *source.Source, diags *source.Diagnostics) string {
	items := diags.Items()
	if len(items) == 0 {
		return ""
	}
	var b strings.Builder
	for _, d := range items {
		l := src.Pos(d.Range.L)
		r := src.Pos(d.Range.R)
		b.WriteString(strconv.Itoa(l.Line))
		b.WriteByte(':')
		b.WriteString(strconv.Itoa(l.Col))
		b.WriteString("..")
		b.WriteString(strconv.Itoa(r.Line))
		b.WriteByte(':')
		b.WriteString(strconv.Itoa(r.Col))
		b.WriteString(" near '")
		b.WriteString(src.Slice(d.Range))
		b.WriteString("'\n  ")
		b.WriteString(d.Message)
		b.WriteByte('\n')
	}
	return b.String()
}
