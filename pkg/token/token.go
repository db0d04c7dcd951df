// Package token defines the lexical token kinds shared by the lexer and
// parser.
//
// A Token never carries decoded text: it only carries a Kind and the
// half-open byte range [L, R) in the original source that it spans. Callers
// recover the literal text (and strip string-literal quotes) by slicing the
// source themselves. This keeps Token a fixed-size, allocation-free value
// type, the way negi's AST nodes (pkg/ast) are also plain index-bearing
// value types.
package token

import "fmt"

// Kind identifies the lexical category of a Token.
type Kind int

// Token kinds, matching the lexer's rule set one-for-one.
const (
	Err Kind = iota
	EOF

	Int
	Str
	Ident

	ParenL
	ParenR
	BracketL
	BracketR
	BraceL
	BraceR
	Comma
	Semi

	// Op covers every run of punctuation drawn from "+-*/%&|^~!=<>.?:".
	// Its precise operator meaning (==, +=, ?, etc.) is resolved by the
	// parser from the token's literal text, not by the lexer.
	Op

	Let
	If
	Else
	While
	Break
	Fun
	Return
)

var names = map[Kind]string{
	Err: "err", EOF: "eof",
	Int: "int", Str: "str", Ident: "ident",
	ParenL: "paren_l", ParenR: "paren_r",
	BracketL: "bracket_l", BracketR: "bracket_r",
	BraceL: "brace_l", BraceR: "brace_r",
	Comma: "comma", Semi: "semi", Op: "op",
	Let: "let", If: "if", Else: "else", While: "while",
	Break: "break", Fun: "fun", Return: "return",
}

func (k Kind) String() string {
	if s, ok := names[k]; ok {
		return s
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

// keywords maps identifier text to its reclassified keyword Kind. Anything
// absent from this table stays Ident.
var keywords = map[string]Kind{
	"let": Let, "if": If, "else": Else, "while": While,
	"break": Break, "fun": Fun, "return": Return,
}

// Lookup reclassifies an identifier's literal text to a keyword Kind, or
// returns Ident if the text is not a keyword.
func Lookup(text string) Kind {
	if k, ok := keywords[text]; ok {
		return k
	}
	return Ident
}

// Token is a single lexical token: its kind plus the source range it spans.
// Tokens are produced once by the lexer and never mutated afterward.
type Token struct {
	Kind Kind
	L, R int // half-open byte offsets into the source: [L, R)
}
