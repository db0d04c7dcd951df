// Package lexer implements the lexical analyzer (tokenizer) for negi.
//
// The lexer scans source text byte by byte and produces one Token per
// iteration, ending in a single EOF token. It keeps a
// `position`/`readPosition`/`ch` cursor triple and a single switch over
// the current byte.
//
// The lexer never fails: malformed input produces Err tokens and
// scanning continues rather than aborting.
package lexer

import "github.com/negilang/negi/pkg/token"

// Lexer scans a source string into a Token stream.
type Lexer struct {
	src          string
	position     int  // index of the current byte
	readPosition int  // index of the next byte to read
	ch           byte // current byte (0 at end of input)
}

// New creates a Lexer over src.
func New(src string) *Lexer {
	l := &Lexer{src: src}
	l.readChar()
	return l
}

func (l *Lexer) readChar() {
	if l.readPosition >= len(l.src) {
		l.ch = 0
	} else {
		l.ch = l.src[l.readPosition]
	}
	l.position = l.readPosition
	l.readPosition++
}

func isDigit(c byte) bool { return '0' <= c && c <= '9' }

func isAlpha(c byte) bool { return ('a' <= c && c <= 'z') || ('A' <= c && c <= 'Z') }

func isIdentChar(c byte) bool { return c == '_' || isAlpha(c) || isDigit(c) }

func isOpChar(c byte) bool {
	switch c {
	case '+', '-', '*', '/', '%', '&', '|', '^', '~', '!', '=', '<', '>', '.', '?', ':':
		return true
	default:
		return false
	}
}

func isSpace(c byte) bool { return c == ' ' || c == '\t' || c == '\r' || c == '\n' }

// NextToken scans and returns the next token. Once EOF has been returned,
// every subsequent call keeps returning the same zero-length EOF token.
func (l *Lexer) NextToken() token.Token {
	for isSpace(l.ch) {
		l.readChar()
	}

	start := l.position
	c := l.ch

	switch {
	case c == 0:
		return token.Token{Kind: token.EOF, L: start, R: start}

	case isDigit(c):
		for isDigit(l.ch) {
			l.readChar()
		}
		return token.Token{Kind: token.Int, L: start, R: l.position}

	case c == '"':
		l.readChar() // opening quote
		for l.ch != '"' && l.ch != '\r' && l.ch != '\n' && l.ch != 0 {
			l.readChar()
		}
		if l.ch == '"' {
			l.readChar() // closing quote, if present
		}
		return token.Token{Kind: token.Str, L: start, R: l.position}

	case isIdentChar(c) && !isDigit(c):
		for isIdentChar(l.ch) {
			l.readChar()
		}
		text := l.src[start:l.position]
		return token.Token{Kind: token.Lookup(text), L: start, R: l.position}

	case c == '(':
		l.readChar()
		return token.Token{Kind: token.ParenL, L: start, R: l.position}
	case c == ')':
		l.readChar()
		return token.Token{Kind: token.ParenR, L: start, R: l.position}
	case c == '[':
		l.readChar()
		return token.Token{Kind: token.BracketL, L: start, R: l.position}
	case c == ']':
		l.readChar()
		return token.Token{Kind: token.BracketR, L: start, R: l.position}
	case c == '{':
		l.readChar()
		return token.Token{Kind: token.BraceL, L: start, R: l.position}
	case c == '}':
		l.readChar()
		return token.Token{Kind: token.BraceR, L: start, R: l.position}
	case c == ',':
		l.readChar()
		return token.Token{Kind: token.Comma, L: start, R: l.position}
	case c == ';':
		l.readChar()
		return token.Token{Kind: token.Semi, L: start, R: l.position}

	case isOpChar(c):
		for isOpChar(l.ch) {
			l.readChar()
		}
		return token.Token{Kind: token.Op, L: start, R: l.position}

	default:
		l.readChar()
		return token.Token{Kind: token.Err, L: start, R: l.position}
	}
}

// Tokenize scans the entire source and returns the full token vector,
// always ending in one EOF token. It never stops early on an Err token —
// parsing decides whether an Err token is fatal, never the lexer.
func Tokenize(src string) []token.Token {
	l := New(src)
	toks := make([]token.Token, 0, len(src)/4+1)
	for {
		tok := l.NextToken()
		toks = append(toks, tok)
		if tok.Kind == token.EOF {
			return toks
		}
	}
}
