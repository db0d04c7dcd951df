// Package vm implements negi's virtual machine: the final stage of the
// pipeline that executes the flat command stream pkg/compiler produces.
//
//	Source -> pkg/lexer -> pkg/parser -> pkg/ast -> pkg/compiler -> pkg/bytecode -> pkg/vm
//
// Virtual Machine Architecture:
//
// The VM is built around a single cell store split into a stack region
// and a bump-allocated heap region, reference cells that let an lvalue
// address any store slot uniformly (a local, an array element), and
// closures as a (function template, captured env) pair resolved
// through runtime tables rather than pointers.
//
// Execution Model:
//
// The VM executes one Cmd at a time from pc, advancing it by one except
// on jump, jump_unless, call and return, which set it directly. Most
// commands follow the same pop-operands/push-result shape.
//
// Error Handling:
//
// Every command can fail in one of three ways:
//
//  1. A stratum-1 diagnostic: the compiler already emitted an OpErr for a
//     construct it knew at compile time was invalid; executing it just
//     means surfacing the message it carries. A syntax error's OpErr
//     (Cmd.Reported) was already recorded into diags by the parser, so
//     reaching it only needs to halt; an unbound-identifier or
//     break-outside-loop OpErr carries a message nothing has recorded yet,
//     so reaching it records it for the first time.
//  2. A stratum-2 runtime error: a resource limit (stack overflow, heap
//     exhaustion) or a type mismatch no static check in this interpreter
//     catches (indexing a string with an array, calling a non-callable).
//     Both 1 and 2 record a diagnostic and halt with exit code 1.
//  3. A stratum-3 internal invariant violation: a bug in the VM or
//     compiler, never reachable from a well-formed program (a stack
//     underflow past an empty store, a label that didn't resolve). These
//     panic and are never recovered inside this package.
package vm

import (
	"github.com/negilang/negi/pkg/bytecode"
	"github.com/negilang/negi/pkg/scope"
	"github.com/negilang/negi/pkg/source"
	"github.com/negilang/negi/pkg/token"
)

const (
	// defaultStackSize is the number of cells reserved for the stack
	// region; exceeding it is a stratum-2 STACK OVERFLOW, not a panic.
	defaultStackSize = 4096
	// defaultHeapSize is the number of cells reserved for the
	// bump-allocated heap region (arrays, envs, string-table backing is
	// separate — see strings below).
	defaultHeapSize = 1 << 20
	// maxCallDepth bounds the call-frame stack. Value-stack height doesn't
	// track recursion depth on its own (a call's arguments are popped
	// before the callee's frame is pushed), so unbounded recursion is
	// caught here instead, surfaced as the same STACK OVERFLOW a full
	// value stack produces.
	maxCallDepth = 4096
	// gcThresholdFraction is the fraction of heap headroom remaining
	// below which doesGC reports true. GC itself is a stub: doesGC is
	// unexported, nothing in the VM consults it, and nothing is ever
	// reclaimed.
	gcThresholdFraction = 0.1
)

// envRec is one runtime call-activation: a backing range of Len cells in
// the store (Base..Base+Len), the compile-time scope it instantiates, and
// the enclosing env a closure captures or a nested scope resolves
// variables through.
type envRec struct {
	Scope  int
	Parent int
	Base   int
	Len    int
}

// arrayRec is one runtime array: Base/Cap describe its backing range in
// the store, Len is how many of those Cap slots are logically in use.
// array_push grows Cap (reallocating a bigger range and copying) once Len
// reaches it; it never shrinks.
type arrayRec struct {
	Base int
	Cap  int
	Len  int
}

// closureRec pairs a compile-time function template with the env that was
// active when the closure was created — negi's lexical-capture mechanism.
type closureRec struct {
	FunI int
	EnvI int
}

type frameRec struct {
	ReturnPC int
	EnvI     int
}

// Option configures a VM at construction.
type Option func(*VM)

// WithStackSize overrides the stack region's cell capacity.
func WithStackSize(n int) Option { return func(vm *VM) { vm.stackCap = n } }

// WithHeapSize overrides the heap region's cell capacity.
func WithHeapSize(n int) Option { return func(vm *VM) { vm.heapCap = n } }

// WithMaxCallDepth overrides the call-frame depth limit.
func WithMaxCallDepth(n int) Option { return func(vm *VM) { vm.maxCallDepth = n } }

// WithExterns registers additional host functions alongside the
// always-available array_len/array_push/array_pop trio. A name also
// present in builtinExterns is overridden by the host's implementation.
func WithExterns(fns map[string]ExternFunc) Option {
	return func(vm *VM) {
		for name, fn := range fns {
			vm.externs[name] = fn
		}
	}
}

// VM executes one compiled Program against its Scopes symbol table.
type VM struct {
	prog   *bytecode.Program
	scopes *scope.Scopes
	tokens []token.Token
	diags  *source.Diagnostics

	stackCap     int
	heapCap      int
	maxCallDepth int

	store    []Cell
	sp       int
	heapNext int

	strs    []string
	arrays  []arrayRec
	envs    []envRec
	closure []closureRec
	frames  []frameRec

	curEnv int
	pc     int

	externs map[string]ExternFunc
}

// New builds a VM ready to run prog, resolving extern calls against the
// union of builtinExterns and any host functions passed via WithExterns.
// tokens is the token vector the parse that produced prog used (pkg/parser's
// Tokens()) — runtime diagnostics look up a Cmd's Tok against it the same
// way the compiler's own OpErr commands do. diags accumulates every
// diagnostic a run produces, compile-time or runtime, in one ordered list.
func New(prog *bytecode.Program, scopes *scope.Scopes, tokens []token.Token, diags *source.Diagnostics, opts ...Option) *VM {
	vm := &VM{
		prog:         prog,
		scopes:       scopes,
		tokens:       tokens,
		diags:        diags,
		stackCap:     defaultStackSize,
		heapCap:      defaultHeapSize,
		maxCallDepth: maxCallDepth,
		externs:      make(map[string]ExternFunc, len(builtinExterns)),
		curEnv:       0,
	}
	for name, fn := range builtinExterns {
		vm.externs[name] = fn
	}
	for _, opt := range opts {
		opt(vm)
	}
	vm.store = make([]Cell, vm.stackCap+vm.heapCap)
	vm.heapNext = vm.stackCap

	globalLen := 0
	if len(scopes.Scopes) > 0 {
		globalLen = scopes.Scopes[0].NLocal
	}
	base := vm.allocHeap(globalLen)
	vm.envs = append(vm.envs, envRec{Scope: 0, Parent: -1, Base: base, Len: globalLen})
	return vm
}

// Run executes prog from its entry label to completion and returns the
// program's exit code. A stratum-1/2 failure (OpErr, or a runtime error
// this package detects) records a diagnostic and yields exit code 1; Run
// never returns for a stratum-3 failure, it panics instead.
func (vm *VM) Run() (exitCode int) {
	defer func() {
		if r := recover(); r != nil {
			if h, ok := r.(haltSignal); ok {
				exitCode = h.exitCode
				return
			}
			panic(r)
		}
	}()

	vm.pc = vm.labelTarget(vm.prog.EntryLabel)
	for {
		vm.step()
	}
}

func (vm *VM) labelTarget(labelI int) int {
	if labelI < 0 || labelI >= len(vm.scopes.Labels) {
		vm.fatal("label %d out of range", labelI)
	}
	cmdI := vm.scopes.Labels[labelI].CmdI
	if cmdI < 0 {
		vm.fatal("label %d never resolved", labelI)
	}
	return cmdI
}

// step executes exactly one command and advances pc.
func (vm *VM) step() {
	if vm.pc < 0 || vm.pc >= len(vm.prog.Cmds) {
		vm.fatal("pc %d out of range (program has %d commands)", vm.pc, len(vm.prog.Cmds))
	}
	cmd := vm.prog.Cmds[vm.pc]

	switch cmd.Op {
	case bytecode.OpLabel:
		vm.pc++

	case bytecode.OpPushInt:
		vm.push(intCell(cmd.X))
		vm.pc++

	case bytecode.OpPushStr:
		vm.push(Cell{Tag: TagStr, I: vm.internStr(cmd.Str)})
		vm.pc++

	case bytecode.OpPushNull:
		vm.push(nullCell)
		vm.pc++

	case bytecode.OpPop:
		vm.pop()
		vm.pc++

	case bytecode.OpDup:
		vm.push(vm.peek())
		vm.pc++

	case bytecode.OpLocalGet:
		env := vm.findEnv(cmd.Scope)
		vm.push(vm.store[env.Base+cmd.X])
		vm.pc++

	case bytecode.OpLocalRef:
		env := vm.findEnv(cmd.Scope)
		vm.push(Cell{Tag: TagRef, I: env.Base + cmd.X})
		vm.pc++

	case bytecode.OpPushExtern:
		vm.push(Cell{Tag: TagExtern, I: cmd.X})
		vm.pc++

	case bytecode.OpPushClosure:
		ci := len(vm.closure)
		vm.closure = append(vm.closure, closureRec{FunI: cmd.X, EnvI: vm.curEnv})
		vm.push(Cell{Tag: TagClosure, I: ci})
		vm.pc++

	case bytecode.OpCellGet:
		ref := vm.pop()
		if ref.Tag != TagRef {
			vm.userError(cmd.Tok, "cannot dereference a %s as a cell reference", ref.Tag)
		}
		vm.push(vm.store[ref.I])
		vm.pc++

	case bytecode.OpCellSet:
		rhs := vm.pop()
		ref := vm.pop()
		if ref.Tag != TagRef {
			vm.userError(cmd.Tok, "cannot assign through a %s", ref.Tag)
		}
		vm.store[ref.I] = rhs
		vm.push(rhs)
		vm.pc++

	case bytecode.OpPushArray:
		base := vm.allocHeap(cmd.X)
		ai := len(vm.arrays)
		vm.arrays = append(vm.arrays, arrayRec{Base: base, Cap: cmd.X, Len: 0})
		vm.push(Cell{Tag: TagArray, I: ai})
		vm.pc++

	case bytecode.OpArrayPush:
		v := vm.pop()
		arr := vm.pop()
		if arr.Tag != TagArray {
			vm.userError(cmd.Tok, "cannot push onto a %s", arr.Tag)
		}
		vm.arrayPush(arr.I, v)
		vm.push(arr)
		vm.pc++

	case bytecode.OpIndex:
		vm.execIndex(cmd)

	case bytecode.OpIndexRef:
		vm.execIndexRef(cmd)

	case bytecode.OpAdd:
		vm.execAdd(cmd)
	case bytecode.OpSub:
		vm.execArith(cmd, func(a, b int) int { return a - b })
	case bytecode.OpMul:
		vm.execArith(cmd, func(a, b int) int { return a * b })
	case bytecode.OpDiv:
		vm.execArith(cmd, func(a, b int) int { return a / b })
	case bytecode.OpMod:
		vm.execArith(cmd, func(a, b int) int { return a % b })

	case bytecode.OpEq:
		vm.execEq(cmd)
	case bytecode.OpLt:
		vm.execLt(cmd)

	case bytecode.OpJump:
		vm.pc = vm.labelTarget(cmd.X)

	case bytecode.OpJumpUnless:
		v := vm.pop()
		truth, ok := truthy(v)
		if !ok {
			vm.userError(cmd.Tok, "condition must be an int, got %s", v.Tag)
		}
		if !truth {
			vm.pc = vm.labelTarget(cmd.X)
		} else {
			vm.pc++
		}

	case bytecode.OpCall:
		vm.execCall(cmd)

	case bytecode.OpReturn:
		if len(vm.frames) == 0 {
			vm.fatal("return with no active call frame")
		}
		top := vm.frames[len(vm.frames)-1]
		vm.frames = vm.frames[:len(vm.frames)-1]
		vm.curEnv = top.EnvI
		vm.pc = top.ReturnPC

	case bytecode.OpExit:
		v := vm.pop()
		code := v.I
		if v.Tag != TagInt {
			code = 1
		}
		panic(haltSignal{exitCode: code})

	case bytecode.OpErr:
		if cmd.Reported {
			// The parser already recorded this exact diagnostic at parse
			// time (ast.Err carries its own message); don't add it twice.
			panic(haltSignal{exitCode: 1})
		}
		vm.userError(cmd.Tok, "%s", cmd.Str)

	default:
		vm.fatal("unknown opcode %v", cmd.Op)
	}
}

// push and pop operate on the stack region only ([0, stackCap)); writes
// past stackCap are a stratum-2 STACK OVERFLOW, and popping an empty
// stack is a stratum-3 bug (codegen never emits an unbalanced command
// sequence).
func (vm *VM) push(c Cell) {
	if vm.sp >= vm.stackCap {
		vm.userError(vm.curTok(), "STACK OVERFLOW")
	}
	vm.store[vm.sp] = c
	vm.sp++
}

func (vm *VM) pop() Cell {
	if vm.sp <= 0 {
		vm.fatal("stack underflow")
	}
	vm.sp--
	return vm.store[vm.sp]
}

func (vm *VM) peek() Cell {
	if vm.sp <= 0 {
		vm.fatal("stack underflow on peek")
	}
	return vm.store[vm.sp-1]
}

func (vm *VM) curTok() int {
	if vm.pc < 0 || vm.pc >= len(vm.prog.Cmds) {
		return 0
	}
	return vm.prog.Cmds[vm.pc].Tok
}

// rangeOf turns a Cmd.Tok index into the source.Range a diagnostic should
// point at, the same way the parser's own diagnostics do. An out-of-range
// index (the zero-value Tok a synthesized command without a source
// position carries) yields the zero Range rather than panicking, since a
// diagnostic still needs somewhere to point.
func (vm *VM) rangeOf(tok int) source.Range {
	if tok < 0 || tok >= len(vm.tokens) {
		return source.Range{}
	}
	t := vm.tokens[tok]
	return source.Range{L: t.L, R: t.R}
}

// allocHeap bump-allocates n null-initialized cells from the heap region
// and returns the start index. Exhausting the heap is a stratum-2 OUT OF
// MEMORY error, matching STACK OVERFLOW's treatment as a resource limit
// rather than a VM bug.
func (vm *VM) allocHeap(n int) int {
	if vm.heapNext+n > len(vm.store) {
		vm.userError(vm.curTok(), "OUT OF MEMORY")
	}
	base := vm.heapNext
	for i := 0; i < n; i++ {
		vm.store[base+i] = nullCell
	}
	vm.heapNext += n
	return base
}

// doesGC reports whether heap headroom has fallen below
// gcThresholdFraction. Garbage collection is out of scope: no code path
// calls this, and this package never reclaims heap cells.
func (vm *VM) doesGC() bool {
	total := len(vm.store) - vm.stackCap
	remaining := len(vm.store) - vm.heapNext
	return float64(remaining) < float64(total)*gcThresholdFraction
}

func (vm *VM) internStr(s string) int {
	for i, existing := range vm.strs {
		if existing == s {
			return i
		}
	}
	vm.strs = append(vm.strs, s)
	return len(vm.strs) - 1
}

// findEnv walks the env parent chain from the current activation looking
// for one instantiating wantScope. Lexical scoping guarantees this always
// succeeds for a program the compiler accepted; failing here is stratum 3.
func (vm *VM) findEnv(wantScope int) envRec {
	i := vm.curEnv
	for i != -1 {
		e := vm.envs[i]
		if e.Scope == wantScope {
			return e
		}
		i = e.Parent
	}
	vm.fatal("no active env for scope %d", wantScope)
	return envRec{}
}

func (vm *VM) arrayPush(ai int, v Cell) {
	rec := &vm.arrays[ai]
	if rec.Len >= rec.Cap {
		newCap := rec.Cap*2 + 1
		newBase := vm.allocHeap(newCap)
		copy(vm.store[newBase:newBase+rec.Len], vm.store[rec.Base:rec.Base+rec.Len])
		rec.Base = newBase
		rec.Cap = newCap
	}
	vm.store[rec.Base+rec.Len] = v
	rec.Len++
}

// StackUsage reports the stack region's current cell usage and capacity,
// for a host that wants to report resource pressure (cmd/negi's --stats
// flag) without this package exposing its internal store layout.
func (vm *VM) StackUsage() (used, capacity int) {
	return vm.sp, vm.stackCap
}

// HeapUsage reports the heap region's current cell usage and capacity.
func (vm *VM) HeapUsage() (used, capacity int) {
	return vm.heapNext - vm.stackCap, vm.heapCap
}

func (vm *VM) arrayPop(ai int) (Cell, bool) {
	rec := &vm.arrays[ai]
	if rec.Len == 0 {
		return Cell{}, false
	}
	rec.Len--
	return vm.store[rec.Base+rec.Len], true
}
