package ast

import (
	"strconv"
	"strings"
)

// Dump renders an Exp subtree as a parenthesized s-expression, used by
// tests and the "did you parse what you think you parsed" debugging
// workflow. It is intentionally minimal: atoms render as their literal
// text, everything else as "(head child...)" where head is the
// operator/keyword text and children are recursively dumped — it does
// not attempt to be a faithful re-serialization of the source text.
func Dump(a *Arena, expI int) string {
	var b strings.Builder
	dump(a, expI, &b)
	return b.String()
}

func dump(a *Arena, expI int, b *strings.Builder) {
	e := a.Get(expI)
	switch e.Kind {
	case Err:
		b.WriteString("(err)")
	case Int:
		b.WriteString(strconv.FormatInt(e.Int, 10))
	case Null:
		b.WriteString("0")
	case Str:
		b.WriteByte('"')
		b.WriteString(e.Str)
		b.WriteByte('"')
	case Ident:
		b.WriteString(e.Str)

	case Paren:
		b.WriteString("(paren ")
		dump(a, e.L, b)
		for _, argI := range a.SubRange(e.SubL, e.SubR) {
			b.WriteByte(' ')
			dump(a, argI, b)
		}
		b.WriteByte(')')

	case Bracket:
		b.WriteString("(bracket ")
		dump(a, e.L, b)
		b.WriteByte(' ')
		dump(a, e.R, b)
		b.WriteByte(')')

	case Assign:
		b.WriteString("(= ")
		dump(a, e.L, b)
		b.WriteByte(' ')
		dump(a, e.R, b)
		b.WriteByte(')')

	case Compound:
		b.WriteByte('(')
		b.WriteString(e.Str)
		b.WriteString("= ")
		dump(a, e.L, b)
		b.WriteByte(' ')
		dump(a, e.R, b)
		b.WriteByte(')')

	case Bin:
		b.WriteByte('(')
		b.WriteString(e.Str)
		b.WriteByte(' ')
		dump(a, e.L, b)
		b.WriteByte(' ')
		dump(a, e.R, b)
		b.WriteByte(')')

	case Array:
		b.WriteString("(array")
		for _, elI := range a.SubRange(e.SubL, e.SubR) {
			b.WriteByte(' ')
			dump(a, elI, b)
		}
		b.WriteByte(')')

	case Let:
		b.WriteString("(let ")
		dump(a, e.L, b)
		b.WriteByte(')')

	case If:
		b.WriteString("(if ")
		dump(a, e.Cond, b)
		b.WriteByte(' ')
		dump(a, e.L, b)
		b.WriteByte(' ')
		dump(a, e.R, b)
		b.WriteByte(')')

	case While:
		b.WriteString("(while ")
		dump(a, e.Cond, b)
		b.WriteByte(' ')
		dump(a, e.L, b)
		b.WriteByte(')')

	case Break:
		b.WriteString("break")

	case Return:
		b.WriteString("(return ")
		dump(a, e.L, b)
		b.WriteByte(')')

	case Fun:
		b.WriteString("(fun (")
		for i, pI := range a.SubRange(e.SubL, e.SubR) {
			if i > 0 {
				b.WriteByte(' ')
			}
			dump(a, pI, b)
		}
		b.WriteString(") ")
		dump(a, e.L, b)
		b.WriteByte(')')

	case Semi:
		b.WriteString("(; ")
		dump(a, e.L, b)
		b.WriteByte(' ')
		dump(a, e.R, b)
		b.WriteByte(')')

	default:
		b.WriteString("(?)")
	}
}
