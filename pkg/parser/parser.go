// Package parser implements negi's recursive-descent parser.
//
// The parser converts a token stream (from pkg/lexer) into an arena-
// allocated AST (pkg/ast): a one-token lookahead over a pre-built token
// vector, dispatch on the current token's kind, and error accumulation into a
// *source.Diagnostics instead of a first-error abort, walking negi's
// explicit operator-precedence ladder.
//
// Parser Architecture:
//
// Rather than streaming tokens lazily from the lexer one at a time,
// negi's parser tokenizes the entire source up front into a flat token
// vector and walks it by index. This is deliberate: every AST node's Tok
// field is an index into that same vector (pkg/ast's arena-index
// convention), so the vector has to outlive the parse; streaming tokens
// one at a time would mean either discarding them (losing the index) or
// re-inventing a second arena just to keep them alive.
//
// Operator precedence, lowest to highest:
//
//	set     = += -= *= /= %=      right (via explicit recursive rule)
//	ternary cond ? then : else    (binds between set and cmp)
//	cmp     == != < <= > >=       left
//	add     + -                   left
//	mul     * / %                 left
//	prefix  unary -                right
//	suffix  call e(...), index e[...]  left
//	atom    literal, ident, (…), […], fun(...) …
//
// Error Handling:
//
// An unparseable construct synthesizes an Err AST node; a missing
// required token records a diagnostic and the parse continues with the
// tree built so far. Either way the diagnostic goes to the shared
// *source.Diagnostics rather than stopping the parse: accumulate, don't
// abort.
package parser

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/negilang/negi/pkg/ast"
	"github.com/negilang/negi/pkg/lexer"
	"github.com/negilang/negi/pkg/source"
	"github.com/negilang/negi/pkg/token"
)

// Parser holds the parse state for one source file.
type Parser struct {
	src   *source.Source
	toks  []token.Token
	pos   int
	arena *ast.Arena
	diags *source.Diagnostics
}

// New tokenizes src and returns a Parser ready to produce an AST.
func New(src *source.Source, diags *source.Diagnostics) *Parser {
	return &Parser{
		src:   src,
		toks:  lexer.Tokenize(src.Text),
		arena: ast.NewArena(),
		diags: diags,
	}
}

// Tokens returns the full token vector produced for this parse. AST and
// bytecode Tok fields are indices into this vector; callers that need to
// turn one back into a source range (diagnostic rendering, runtime error
// reporting) index into the slice this returns.
func (p *Parser) Tokens() []token.Token {
	return p.toks
}

// Parse parses the whole source as a statement sequence, wraps it in a
// discarding Semi(content, null) the same way a braced block is wrapped,
// and returns the arena plus the index of that root Semi.
func (p *Parser) Parse() (*ast.Arena, int) {
	content := p.parseSequence(token.EOF)
	if p.cur().Kind != token.EOF {
		p.errorf(p.pos, "unexpected token at end of input")
	}
	root := p.arena.Add(ast.Exp{Kind: ast.Semi, L: content, R: p.pushNull(), Tok: 0})
	return p.arena, root
}

// --- token cursor helpers ---

func (p *Parser) cur() token.Token {
	return p.toks[p.pos]
}

func (p *Parser) tokText(i int) string {
	t := p.toks[i]
	return p.src.Slice(source.Range{L: t.L, R: t.R})
}

func (p *Parser) tokRange(i int) source.Range {
	t := p.toks[i]
	return source.Range{L: t.L, R: t.R}
}

func (p *Parser) advance() {
	if p.toks[p.pos].Kind != token.EOF {
		p.pos++
	}
}

func (p *Parser) curIsOp(text string) bool {
	t := p.cur()
	return t.Kind == token.Op && p.tokText(p.pos) == text
}

// expect consumes the current token if it has kind k, returning its index.
// Otherwise it records a diagnostic and returns the current (unconsumed)
// token's index, so the caller can keep building a best-effort tree.
func (p *Parser) expect(k token.Kind) int {
	i := p.pos
	if p.cur().Kind == k {
		p.advance()
		return i
	}
	p.errorf(i, "expected %s, got %s", k, p.cur().Kind)
	return i
}

// errorf records a diagnostic at tokI and returns an Err node carrying the
// same message, so a later compile of that node (ast.Err in
// pkg/compiler.genExpr) can mark its OpErr Reported instead of making
// pkg/vm record the message a second time if the node is ever executed.
func (p *Parser) errorf(tokI int, format string, args ...interface{}) int {
	p.diags.Add(p.tokRange(tokI), format, args...)
	return p.arena.Add(ast.Exp{Kind: ast.Err, Tok: tokI, Str: fmt.Sprintf(format, args...)})
}

func (p *Parser) pushNull() int {
	return p.arena.Add(ast.Exp{Kind: ast.Null, Tok: p.pos})
}

// startsTerm reports whether the current token could begin a term; used
// to detect `return` with no operand and empty sequences.
func (p *Parser) startsTerm() bool {
	switch p.cur().Kind {
	case token.Semi, token.BraceR, token.EOF, token.ParenR, token.BracketR, token.Comma:
		return false
	default:
		return true
	}
}

// --- sequences, statements ---

// parseSequence parses `s1; s2; …` until the stop token (EOF for the
// program root, BraceR for a block body), discarding leading/trailing/
// repeated semicolons and building a left-leaning op_semi chain. An
// empty sequence resolves to the null literal.
func (p *Parser) parseSequence(stop token.Kind) int {
	for p.cur().Kind == token.Semi {
		p.advance()
	}
	if p.cur().Kind == stop || p.cur().Kind == token.EOF {
		return p.pushNull()
	}

	result := p.parseStatement()
	for p.cur().Kind == token.Semi {
		for p.cur().Kind == token.Semi {
			p.advance()
		}
		if p.cur().Kind == stop || p.cur().Kind == token.EOF {
			break
		}
		tok := p.pos
		next := p.parseStatement()
		result = p.arena.Add(ast.Exp{Kind: ast.Semi, L: result, R: next, Tok: tok})
	}
	return result
}

// parseBlock parses a braced `{ ... }` and wraps its content in an extra
// Semi(content, null) — every braced block discards its final value,
// not just the program root.
func (p *Parser) parseBlock() int {
	braceTok := p.expect(token.BraceL)
	content := p.parseSequence(token.BraceR)
	p.expect(token.BraceR)
	return p.arena.Add(ast.Exp{Kind: ast.Semi, L: content, R: p.pushNull(), Tok: braceTok})
}

func (p *Parser) parseStatement() int {
	switch p.cur().Kind {
	case token.Let:
		return p.parseLet()
	case token.If:
		return p.parseIf()
	case token.While:
		return p.parseWhile()
	case token.Break:
		tok := p.pos
		p.advance()
		return p.arena.Add(ast.Exp{Kind: ast.Break, Tok: tok})
	case token.Return:
		tok := p.pos
		p.advance()
		if p.startsTerm() {
			v := p.parseTerm()
			return p.arena.Add(ast.Exp{Kind: ast.Return, L: v, Tok: tok})
		}
		return p.arena.Add(ast.Exp{Kind: ast.Return, L: p.pushNull(), Tok: tok})
	default:
		return p.parseTerm()
	}
}

func (p *Parser) parseLet() int {
	tok := p.pos
	p.advance() // 'let'
	nameI := p.expect(token.Ident)
	name := p.tokText(nameI)
	if !p.curIsOp("=") {
		p.errorf(p.pos, "expected '=' in let binding")
	} else {
		p.advance()
	}
	init := p.parseTerm()
	return p.arena.Add(ast.Exp{Kind: ast.Let, Tok: tok, L: init, Str: name})
}

func (p *Parser) parseIf() int {
	tok := p.pos
	p.advance() // 'if'
	p.expect(token.ParenL)
	cond := p.parseTerm()
	p.expect(token.ParenR)
	then := p.parseBlock()

	els := p.pushNull()
	if p.cur().Kind == token.Else {
		p.advance()
		if p.cur().Kind == token.If {
			els = p.parseIf() // direct chaining: no extra block wrap
		} else {
			els = p.parseBlock()
		}
	}
	return p.arena.Add(ast.Exp{Kind: ast.If, Tok: tok, Cond: cond, L: then, R: els})
}

// parseWhile intentionally parses its condition at atom precedence, not
// as a full term, so `while (a < b)` does not parse the way it looks
// (see DESIGN.md's Open Question decisions — preserved deliberately,
// not a bug to fix).
func (p *Parser) parseWhile() int {
	tok := p.pos
	p.advance() // 'while'
	p.expect(token.ParenL)
	cond := p.parseAtom()
	p.expect(token.ParenR)
	body := p.parseBlock()
	return p.arena.Add(ast.Exp{Kind: ast.While, Tok: tok, Cond: cond, L: body})
}

// --- precedence ladder ---

func (p *Parser) parseTerm() int {
	return p.parseSet()
}

var assignOps = map[string]bool{
	"=": true, "+=": true, "-=": true, "*=": true, "/=": true, "%=": true,
}

func (p *Parser) parseSet() int {
	lhs := p.parseTernary()
	if p.cur().Kind == token.Op && assignOps[p.tokText(p.pos)] {
		opTok := p.pos
		opText := p.tokText(p.pos)
		p.advance()
		rhs := p.parseTerm() // right-recursive: a = b = c nests
		if opText == "=" {
			return p.arena.Add(ast.Exp{Kind: ast.Assign, Tok: opTok, L: lhs, R: rhs})
		}
		base := strings.TrimSuffix(opText, "=")
		return p.arena.Add(ast.Exp{Kind: ast.Compound, Tok: opTok, L: lhs, R: rhs, Str: base})
	}
	return lhs
}

func (p *Parser) parseTernary() int {
	cond := p.parseCmp()
	if p.curIsOp("?") {
		qTok := p.pos
		p.advance()
		then := p.parseTernary()
		if p.curIsOp(":") {
			p.advance()
		} else {
			p.errorf(p.pos, "expected ':' in ternary expression")
		}
		els := p.parseTernary()
		return p.arena.Add(ast.Exp{Kind: ast.If, Tok: qTok, Cond: cond, L: then, R: els})
	}
	return cond
}

var cmpOps = map[string]bool{
	"==": true, "!=": true, "<": true, "<=": true, ">": true, ">=": true,
}

func (p *Parser) parseCmp() int {
	lhs := p.parseAdd()
	for p.cur().Kind == token.Op && cmpOps[p.tokText(p.pos)] {
		opTok := p.pos
		op := p.tokText(p.pos)
		p.advance()
		rhs := p.parseAdd()
		lhs = p.arena.Add(ast.Exp{Kind: ast.Bin, Tok: opTok, L: lhs, R: rhs, Str: op})
	}
	return lhs
}

func (p *Parser) parseAdd() int {
	lhs := p.parseMul()
	for p.curIsOp("+") || p.curIsOp("-") {
		opTok := p.pos
		op := p.tokText(p.pos)
		p.advance()
		rhs := p.parseMul()
		lhs = p.arena.Add(ast.Exp{Kind: ast.Bin, Tok: opTok, L: lhs, R: rhs, Str: op})
	}
	return lhs
}

func (p *Parser) parseMul() int {
	lhs := p.parsePrefix()
	for p.curIsOp("*") || p.curIsOp("/") || p.curIsOp("%") {
		opTok := p.pos
		op := p.tokText(p.pos)
		p.advance()
		rhs := p.parsePrefix()
		lhs = p.arena.Add(ast.Exp{Kind: ast.Bin, Tok: opTok, L: lhs, R: rhs, Str: op})
	}
	return lhs
}

// parsePrefix desugars unary `-x` to `0 - x`, so the compiler and VM
// never need a dedicated unary-negate opcode.
func (p *Parser) parsePrefix() int {
	if p.curIsOp("-") {
		opTok := p.pos
		p.advance()
		operand := p.parsePrefix()
		zero := p.arena.Add(ast.Exp{Kind: ast.Int, Tok: opTok, Int: 0})
		return p.arena.Add(ast.Exp{Kind: ast.Bin, Tok: opTok, L: zero, R: operand, Str: "-"})
	}
	return p.parseSuffix()
}

func (p *Parser) parseSuffix() int {
	e := p.parseAtom()
	for {
		switch p.cur().Kind {
		case token.ParenL:
			tok := p.pos
			p.advance()
			subL := len(p.arena.SubExps)
			for p.cur().Kind != token.ParenR && p.cur().Kind != token.EOF {
				arg := p.parseTerm()
				p.arena.AddSub(arg)
				if p.cur().Kind == token.Comma {
					p.advance()
				} else {
					break
				}
			}
			subR := len(p.arena.SubExps)
			p.expect(token.ParenR)
			e = p.arena.Add(ast.Exp{Kind: ast.Paren, Tok: tok, L: e, SubL: subL, SubR: subR})

		case token.BracketL:
			tok := p.pos
			p.advance()
			idx := p.parseTerm()
			p.expect(token.BracketR)
			e = p.arena.Add(ast.Exp{Kind: ast.Bracket, Tok: tok, L: e, R: idx})

		default:
			return e
		}
	}
}

// parseAtom parses a literal, identifier, parenthesized group, array
// literal, or function literal. Anything else is a parse error: an Err
// node is synthesized and the offending token consumed so the parser
// makes forward progress.
func (p *Parser) parseAtom() int {
	tok := p.pos
	switch p.cur().Kind {
	case token.Int:
		text := p.tokText(tok)
		p.advance()
		v, err := strconv.ParseInt(text, 10, 64)
		if err != nil {
			return p.errorf(tok, "invalid integer literal %q", text)
		}
		return p.arena.Add(ast.Exp{Kind: ast.Int, Tok: tok, Int: v})

	case token.Str:
		text := p.tokText(tok)
		p.advance()
		return p.arena.Add(ast.Exp{Kind: ast.Str, Tok: tok, Str: unquote(text)})

	case token.Ident:
		name := p.tokText(tok)
		p.advance()
		return p.arena.Add(ast.Exp{Kind: ast.Ident, Tok: tok, Str: name})

	case token.ParenL:
		p.advance()
		inner := p.parseTerm()
		p.expect(token.ParenR)
		return inner

	case token.BracketL:
		p.advance()
		subL := len(p.arena.SubExps)
		for p.cur().Kind != token.BracketR && p.cur().Kind != token.EOF {
			el := p.parseTerm()
			p.arena.AddSub(el)
			if p.cur().Kind == token.Comma {
				p.advance()
			} else {
				break
			}
		}
		subR := len(p.arena.SubExps)
		p.expect(token.BracketR)
		return p.arena.Add(ast.Exp{Kind: ast.Array, Tok: tok, SubL: subL, SubR: subR})

	case token.Fun:
		p.advance()
		p.expect(token.ParenL)
		subL := len(p.arena.SubExps)
		for p.cur().Kind != token.ParenR && p.cur().Kind != token.EOF {
			paramI := p.expect(token.Ident)
			param := p.arena.Add(ast.Exp{Kind: ast.Ident, Tok: paramI, Str: p.tokText(paramI)})
			p.arena.AddSub(param)
			if p.cur().Kind == token.Comma {
				p.advance()
			} else {
				break
			}
		}
		subR := len(p.arena.SubExps)
		p.expect(token.ParenR)
		var body int
		if p.cur().Kind == token.BraceL {
			body = p.parseBlock()
		} else {
			body = p.parseTerm()
		}
		return p.arena.Add(ast.Exp{Kind: ast.Fun, Tok: tok, L: body, SubL: subL, SubR: subR})

	default:
		p.advance()
		return p.errorf(tok, "unexpected token %s", p.toks[tok].Kind)
	}
}

// unquote strips the surrounding quotes a string token carries (the
// opening quote always present, the closing quote only if the literal
// was properly terminated — a bare CR/LF ends a string literal without
// a closing quote, so multi-line strings are impossible by design). No
// escape processing happens; the body is taken verbatim.
func unquote(text string) string {
	if len(text) == 0 || text[0] != '"' {
		return text
	}
	body := text[1:]
	if len(body) > 0 && body[len(body)-1] == '"' {
		body = body[:len(body)-1]
	}
	return body
}
