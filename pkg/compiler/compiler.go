// Package compiler compiles negi's AST into bytecode.
//
// A single struct walks the tree and emits into a flat instruction
// slice, with a small "emit" helper and a symbol table consulted while
// compiling identifiers: the precedence-ladder AST compiles into the
// VM's command vocabulary, using pkg/scope's arena-indexed symbol
// tables, and resolving unbound identifiers against a registered
// extern-function table (with a fuzzysearch-based "did you mean" hint)
// rather than falling back to an implicit global load.
package compiler

import (
	"fmt"

	"github.com/lithammer/fuzzysearch/fuzzy"

	"github.com/negilang/negi/pkg/ast"
	"github.com/negilang/negi/pkg/bytecode"
	"github.com/negilang/negi/pkg/scope"
	"github.com/negilang/negi/pkg/source"
)

// BuiltinExterns are the array primitives every program has access to,
// registered before any host-supplied extern.
var BuiltinExterns = []string{"array_len", "array_push", "array_pop"}

// breakOutsideLoopMessage is the exact diagnostic text for `break` used
// outside any loop.
const breakOutsideLoopMessage = "ループの外側では break を使用できません"

// Compiler holds the state threaded through one compile: the AST it reads
// from, the symbol tables it builds up, the diagnostics it may append to,
// and the command vector it is writing into.
type Compiler struct {
	arena  *ast.Arena
	scopes *scope.Scopes
	diags  *source.Diagnostics
	cmds   []bytecode.Cmd
}

// Compile lowers the expression at root (normally the parser's program
// root, itself already wrapped in a discarding top-level op_semi) into a
// Program. hostExterns names any additional extern functions the host has
// registered, beyond the three built-in array primitives.
//
// The parser's root-level wrap exists for dump/structural uniformity with
// braced blocks, not for codegen: compiling it generically (evaluate,
// pop, push null) would make the top-level program's final expression
// value unobservable (`let a = 2; a += 1; a *= 14; a` must exit 42, not
// 0). Compile therefore
// unwraps a top-level op_semi whose right side is the null literal before
// generating code, so the real final statement's value survives to
// `cmd_exit`.
func Compile(arena *ast.Arena, root int, diags *source.Diagnostics, hostExterns []string) (*bytecode.Program, *scope.Scopes) {
	c := &Compiler{arena: arena, scopes: scope.New(), diags: diags}

	for _, name := range BuiltinExterns {
		c.scopes.AddExtern(name)
	}
	for _, name := range hostExterns {
		c.scopes.AddExtern(name)
	}

	entryLabel := c.scopes.NewLabel()
	c.emit(bytecode.Cmd{Op: bytecode.OpLabel, X: entryLabel})

	c.genExpr(0, c.unwrapRoot(root))
	c.emit(bytecode.Cmd{Op: bytecode.OpExit})

	c.resolveLabels()

	return &bytecode.Program{Cmds: c.cmds, EntryLabel: entryLabel}, c.scopes
}

// unwrapRoot strips the parser's top-level discarding op_semi, if present,
// so the program's true final value reaches cmd_exit. A bare expression
// (as compiler tests pass directly, without going through the parser) is
// returned unchanged.
func (c *Compiler) unwrapRoot(expI int) int {
	e := c.arena.Get(expI)
	if e.Kind == ast.Semi && c.arena.Get(e.R).Kind == ast.Null {
		return e.L
	}
	return expI
}

func (c *Compiler) emit(cmd bytecode.Cmd) int {
	c.cmds = append(c.cmds, cmd)
	return len(c.cmds) - 1
}

// resolveLabels is codegen's final back-patching pass: every
// cmd_label's own position becomes its label's resolved target.
// An unresolved label afterward is an internal invariant violation that
// must never be reachable from user input, so it panics rather than
// returning an error.
func (c *Compiler) resolveLabels() {
	for i, cmd := range c.cmds {
		if cmd.Op == bytecode.OpLabel {
			c.scopes.ResolveLabel(cmd.X, i)
		}
	}
	if bad := c.scopes.Unresolved(); bad != -1 {
		panic(fmt.Sprintf("compiler bug: label %d was never resolved", bad))
	}
}

// genExpr lowers expI as an rvalue: its runtime value ends up on top of
// the stack.
func (c *Compiler) genExpr(scopeI, expI int) {
	e := c.arena.Get(expI)
	switch e.Kind {
	case ast.Err:
		// e.Str is the message the parser already recorded for this node;
		// Reported tells the VM not to record it a second time.
		c.emit(bytecode.Cmd{Op: bytecode.OpErr, Str: e.Str, Tok: e.Tok, Reported: true})

	case ast.Int:
		c.emit(bytecode.Cmd{Op: bytecode.OpPushInt, X: int(e.Int), Tok: e.Tok})

	case ast.Null:
		c.emit(bytecode.Cmd{Op: bytecode.OpPushNull, Tok: e.Tok})

	case ast.Str:
		c.emit(bytecode.Cmd{Op: bytecode.OpPushStr, Str: e.Str, Tok: e.Tok})

	case ast.Ident:
		c.genIdent(scopeI, e)

	case ast.Paren:
		c.genCall(scopeI, e)

	case ast.Bracket:
		c.genExpr(scopeI, e.L)
		c.genExpr(scopeI, e.R)
		c.emit(bytecode.Cmd{Op: bytecode.OpIndex, Tok: e.Tok})

	case ast.Assign:
		c.genLval(scopeI, e.L)
		c.genExpr(scopeI, e.R)
		c.emit(bytecode.Cmd{Op: bytecode.OpCellSet, Tok: e.Tok})

	case ast.Compound:
		c.genLval(scopeI, e.L)
		c.emit(bytecode.Cmd{Op: bytecode.OpDup, Tok: e.Tok})
		c.emit(bytecode.Cmd{Op: bytecode.OpCellGet, Tok: e.Tok})
		c.genExpr(scopeI, e.R)
		c.emit(bytecode.Cmd{Op: arithOp(e.Str), Tok: e.Tok})
		c.emit(bytecode.Cmd{Op: bytecode.OpCellSet, Tok: e.Tok})

	case ast.Bin:
		c.genBin(scopeI, e)

	case ast.Array:
		c.genArray(scopeI, e)

	case ast.Let:
		c.genLet(scopeI, e)

	case ast.If:
		c.genIf(scopeI, e)

	case ast.While:
		c.genWhile(scopeI, e)

	case ast.Break:
		c.genBreak(e)

	case ast.Return:
		c.genExpr(scopeI, e.L)
		c.emit(bytecode.Cmd{Op: bytecode.OpReturn, Tok: e.Tok})

	case ast.Fun:
		c.genFun(scopeI, expI, e)

	case ast.Semi:
		c.genExpr(scopeI, e.L)
		c.emit(bytecode.Cmd{Op: bytecode.OpPop, Tok: e.Tok})
		c.genExpr(scopeI, e.R)

	default:
		panic(fmt.Sprintf("compiler bug: unhandled exp kind %d", e.Kind))
	}
}

// genLval lowers expI as an lvalue: it pushes a reference cell, not a
// value. Only identifiers and index expressions are valid lvalues;
// anything else emits a runtime `err` command.
func (c *Compiler) genLval(scopeI, expI int) {
	e := c.arena.Get(expI)
	switch e.Kind {
	case ast.Ident:
		local, ok := c.scopes.Resolve(scopeI, e.Str)
		if !ok {
			c.emit(bytecode.Cmd{Op: bytecode.OpErr, Str: c.unboundMessage(scopeI, e.Str), Tok: e.Tok})
			return
		}
		c.emit(bytecode.Cmd{Op: bytecode.OpLocalRef, Scope: local.Scope, X: local.Index, Tok: e.Tok})

	case ast.Bracket:
		c.genExpr(scopeI, e.L)
		c.genExpr(scopeI, e.R)
		c.emit(bytecode.Cmd{Op: bytecode.OpIndexRef, Tok: e.Tok})

	default:
		c.emit(bytecode.Cmd{Op: bytecode.OpErr, Str: "invalid assignment target", Tok: e.Tok})
	}
}

func (c *Compiler) genIdent(scopeI int, e *ast.Exp) {
	if local, ok := c.scopes.Resolve(scopeI, e.Str); ok {
		c.emit(bytecode.Cmd{Op: bytecode.OpLocalGet, Scope: local.Scope, X: local.Index, Tok: e.Tok})
		return
	}
	for i, fn := range c.scopes.Funs {
		if fn.Kind == scope.Extern && fn.Name == e.Str {
			c.emit(bytecode.Cmd{Op: bytecode.OpPushExtern, X: i, Tok: e.Tok})
			return
		}
	}
	c.emit(bytecode.Cmd{Op: bytecode.OpErr, Str: c.unboundMessage(scopeI, e.Str), Tok: e.Tok})
}

// unboundMessage builds an "unbound variable" diagnostic, appending a
// fuzzy "did you mean" suggestion drawn from every name currently visible
// from scopeI (locals up the scope chain, plus every registered extern)
// when a close match exists.
func (c *Compiler) unboundMessage(scopeI int, name string) string {
	msg := fmt.Sprintf("unbound variable %q", name)
	if suggestion := c.suggest(scopeI, name); suggestion != "" {
		msg += fmt.Sprintf(" (did you mean %q?)", suggestion)
	}
	return msg
}

func (c *Compiler) suggest(scopeI int, name string) string {
	var candidates []string
	for _, l := range c.scopes.Locals {
		if visible, ok := c.scopes.Resolve(scopeI, l.Name); ok && visible == l {
			candidates = append(candidates, l.Name)
		}
	}
	for _, fn := range c.scopes.Funs {
		if fn.Kind == scope.Extern {
			candidates = append(candidates, fn.Name)
		}
	}
	ranks := fuzzy.RankFindFold(name, candidates)
	if len(ranks) == 0 {
		return ""
	}
	best := ranks[0]
	for _, r := range ranks[1:] {
		if r.Distance < best.Distance {
			best = r
		}
	}
	return best.Target
}

func (c *Compiler) genCall(scopeI int, e *ast.Exp) {
	c.genExpr(scopeI, e.L)
	args := c.arena.SubRange(e.SubL, e.SubR)
	for _, argI := range args {
		c.genExpr(scopeI, argI)
	}
	c.emit(bytecode.Cmd{Op: bytecode.OpCall, X: len(args), Tok: e.Tok})
}

func (c *Compiler) genArray(scopeI int, e *ast.Exp) {
	elems := c.arena.SubRange(e.SubL, e.SubR)
	c.emit(bytecode.Cmd{Op: bytecode.OpPushArray, X: len(elems), Tok: e.Tok})
	for _, elI := range elems {
		c.genExpr(scopeI, elI)
		c.emit(bytecode.Cmd{Op: bytecode.OpArrayPush, Tok: e.Tok})
	}
}

// genLet lowers `let name = init` the same way a simple assignment to a
// freshly declared local would: declare the slot, push its reference,
// evaluate the initializer, and write through cell_set. cell_set's
// push-the-value-back behaviour is what makes `let` usable as the last
// statement of a sequence.
func (c *Compiler) genLet(scopeI int, e *ast.Exp) {
	local := c.scopes.Declare(scopeI, e.Str, e.Tok)
	c.emit(bytecode.Cmd{Op: bytecode.OpLocalRef, Scope: local.Scope, X: local.Index, Tok: e.Tok})
	c.genExpr(scopeI, e.L)
	c.emit(bytecode.Cmd{Op: bytecode.OpCellSet, Tok: e.Tok})
}

func (c *Compiler) genIf(scopeI int, e *ast.Exp) {
	elseLabel := c.scopes.NewLabel()
	endLabel := c.scopes.NewLabel()

	c.genExpr(scopeI, e.Cond)
	c.emit(bytecode.Cmd{Op: bytecode.OpJumpUnless, X: elseLabel, Tok: e.Tok})
	c.genExpr(scopeI, e.L)
	c.emit(bytecode.Cmd{Op: bytecode.OpJump, X: endLabel, Tok: e.Tok})
	c.emit(bytecode.Cmd{Op: bytecode.OpLabel, X: elseLabel})
	c.genExpr(scopeI, e.R)
	c.emit(bytecode.Cmd{Op: bytecode.OpLabel, X: endLabel})
}

func (c *Compiler) genWhile(scopeI int, e *ast.Exp) {
	continueLabel := c.scopes.NewLabel()
	breakLabel := c.scopes.NewLabel()

	c.scopes.PushLoop(breakLabel)
	c.emit(bytecode.Cmd{Op: bytecode.OpLabel, X: continueLabel})
	c.genExpr(scopeI, e.Cond)
	c.emit(bytecode.Cmd{Op: bytecode.OpJumpUnless, X: breakLabel, Tok: e.Tok})
	c.genExpr(scopeI, e.L)
	c.emit(bytecode.Cmd{Op: bytecode.OpPop, Tok: e.Tok})
	c.emit(bytecode.Cmd{Op: bytecode.OpJump, X: continueLabel, Tok: e.Tok})
	c.emit(bytecode.Cmd{Op: bytecode.OpLabel, X: breakLabel})
	c.emit(bytecode.Cmd{Op: bytecode.OpPushNull, Tok: e.Tok})
	c.scopes.PopLoop()
}

func (c *Compiler) genBreak(e *ast.Exp) {
	breakLabel, ok := c.scopes.CurrentLoop()
	if !ok {
		c.emit(bytecode.Cmd{Op: bytecode.OpErr, Str: breakOutsideLoopMessage, Tok: e.Tok})
		return
	}
	c.emit(bytecode.Cmd{Op: bytecode.OpJump, X: breakLabel, Tok: e.Tok})
}

// genFun lowers a function literal: an unconditional
// jump over the body, the body's entry label, the lowered body, an
// implicit `return`, a post-body label, and finally `push_closure`. The
// closure's captured env is whatever is current when push_closure
// executes, giving lexical (not dynamic) capture.
func (c *Compiler) genFun(scopeI, expI int, e *ast.Exp) {
	bodyScope := c.scopes.PushScope(scopeI, e.Tok)
	for _, paramI := range c.arena.SubRange(e.SubL, e.SubR) {
		param := c.arena.Get(paramI)
		c.scopes.Declare(bodyScope, param.Str, param.Tok)
	}

	entryLabel := c.scopes.NewLabel()
	skipLabel := c.scopes.NewLabel()
	funI := c.scopes.AddClosure(bodyScope, entryLabel, "")

	c.emit(bytecode.Cmd{Op: bytecode.OpJump, X: skipLabel, Tok: e.Tok})
	c.emit(bytecode.Cmd{Op: bytecode.OpLabel, X: entryLabel})
	c.genExpr(bodyScope, e.L)
	c.emit(bytecode.Cmd{Op: bytecode.OpReturn, Tok: e.Tok})
	c.emit(bytecode.Cmd{Op: bytecode.OpLabel, X: skipLabel})
	c.emit(bytecode.Cmd{Op: bytecode.OpPushClosure, X: funI, Tok: e.Tok})
}

// genBin lowers a binary operator. Only `eq` and `lt` are VM primitives;
// every other comparison is synthesized by swapping operands and/or
// negating (push null; eq).
func (c *Compiler) genBin(scopeI int, e *ast.Exp) {
	switch e.Str {
	case "+":
		c.emitArith(scopeI, e, bytecode.OpAdd)
	case "-":
		c.emitArith(scopeI, e, bytecode.OpSub)
	case "*":
		c.emitArith(scopeI, e, bytecode.OpMul)
	case "/":
		c.emitArith(scopeI, e, bytecode.OpDiv)
	case "%":
		c.emitArith(scopeI, e, bytecode.OpMod)

	case "==":
		c.genExpr(scopeI, e.L)
		c.genExpr(scopeI, e.R)
		c.emit(bytecode.Cmd{Op: bytecode.OpEq, Tok: e.Tok})
	case "!=":
		c.genExpr(scopeI, e.L)
		c.genExpr(scopeI, e.R)
		c.emit(bytecode.Cmd{Op: bytecode.OpEq, Tok: e.Tok})
		c.negate(e.Tok)
	case "<":
		c.genExpr(scopeI, e.L)
		c.genExpr(scopeI, e.R)
		c.emit(bytecode.Cmd{Op: bytecode.OpLt, Tok: e.Tok})
	case "<=":
		c.genExpr(scopeI, e.R)
		c.genExpr(scopeI, e.L)
		c.emit(bytecode.Cmd{Op: bytecode.OpLt, Tok: e.Tok})
		c.negate(e.Tok)
	case ">":
		c.genExpr(scopeI, e.R)
		c.genExpr(scopeI, e.L)
		c.emit(bytecode.Cmd{Op: bytecode.OpLt, Tok: e.Tok})
	case ">=":
		c.genExpr(scopeI, e.L)
		c.genExpr(scopeI, e.R)
		c.emit(bytecode.Cmd{Op: bytecode.OpLt, Tok: e.Tok})
		c.negate(e.Tok)

	default:
		panic(fmt.Sprintf("compiler bug: unknown binary operator %q", e.Str))
	}
}

func (c *Compiler) emitArith(scopeI int, e *ast.Exp, op bytecode.Opcode) {
	c.genExpr(scopeI, e.L)
	c.genExpr(scopeI, e.R)
	c.emit(bytecode.Cmd{Op: op, Tok: e.Tok})
}

func (c *Compiler) negate(tok int) {
	c.emit(bytecode.Cmd{Op: bytecode.OpPushNull, Tok: tok})
	c.emit(bytecode.Cmd{Op: bytecode.OpEq, Tok: tok})
}

// arithOp maps a Compound node's base operator text to the opcode that
// applies it, shared with genBin's arithmetic cases.
func arithOp(baseOp string) bytecode.Opcode {
	switch baseOp {
	case "+":
		return bytecode.OpAdd
	case "-":
		return bytecode.OpSub
	case "*":
		return bytecode.OpMul
	case "/":
		return bytecode.OpDiv
	case "%":
		return bytecode.OpMod
	default:
		panic(fmt.Sprintf("compiler bug: unknown compound operator %q", baseOp))
	}
}
