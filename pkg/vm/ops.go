package vm

import (
	"github.com/negilang/negi/pkg/bytecode"
	"github.com/negilang/negi/pkg/scope"
)

// execAdd is split out from the rest of the arithmetic family because it
// is the one operator with a second valid operand-type pairing: two
// strings concatenate into a fresh interned string. Every other same-type
// combination, and every mixed-type combination, is a type error.
func (vm *VM) execAdd(cmd bytecode.Cmd) {
	r := vm.pop()
	l := vm.pop()
	switch {
	case l.Tag == TagInt && r.Tag == TagInt:
		vm.push(intCell(l.I + r.I))
	case l.Tag == TagStr && r.Tag == TagStr:
		vm.push(Cell{Tag: TagStr, I: vm.internStr(vm.strs[l.I] + vm.strs[r.I])})
	default:
		vm.userError(cmd.Tok, "cannot add %s and %s", l.Tag, r.Tag)
	}
	vm.pc++
}

// execArith implements sub/mul/div/mod: int operands only. Division and
// modulo by zero are not specially caught — they raise Go's native
// integer-divide-by-zero panic, a stratum-3 failure, matching negi's
// reading of that operator pair as implementation-defined rather than a
// recoverable user error.
func (vm *VM) execArith(cmd bytecode.Cmd, f func(a, b int) int) {
	r := vm.pop()
	l := vm.pop()
	if l.Tag != TagInt || r.Tag != TagInt {
		vm.userError(cmd.Tok, "cannot apply this operator to %s and %s", l.Tag, r.Tag)
		return
	}
	vm.push(intCell(f(l.I, r.I)))
	vm.pc++
}

// execEq implements the eq primitive: mixed-type operands are false, not
// a type error; same-type operands compare by Int or Str value. Any other
// same-type pair (array, closure, extern, ref) has no defined equality
// and is a type error.
func (vm *VM) execEq(cmd bytecode.Cmd) {
	r := vm.pop()
	l := vm.pop()
	if l.Tag != r.Tag {
		vm.push(nullCell)
		vm.pc++
		return
	}
	switch l.Tag {
	case TagInt:
		vm.push(boolCell(l.I == r.I))
	case TagStr:
		vm.push(boolCell(vm.strs[l.I] == vm.strs[r.I]))
	default:
		vm.userError(cmd.Tok, "cannot compare %s values for equality", l.Tag)
	}
	vm.pc++
}

// execLt implements the lt primitive. Same-type Int/Str operands compare
// by value; mixed types compare by type-tag ordinal, giving lt a total
// (if otherwise arbitrary) order over every Cell — cross-type ordering
// only needs to be total, not meaningful.
func (vm *VM) execLt(cmd bytecode.Cmd) {
	r := vm.pop()
	l := vm.pop()
	if l.Tag != r.Tag {
		vm.push(boolCell(l.Tag < r.Tag))
		vm.pc++
		return
	}
	switch l.Tag {
	case TagInt:
		vm.push(boolCell(l.I < r.I))
	case TagStr:
		vm.push(boolCell(vm.strs[l.I] < vm.strs[r.I]))
	default:
		vm.push(boolCell(l.I < r.I))
	}
	vm.pc++
}

func (vm *VM) execIndex(cmd bytecode.Cmd) {
	idx := vm.pop()
	base := vm.pop()
	if idx.Tag != TagInt {
		vm.userError(cmd.Tok, "index must be an int, got %s", idx.Tag)
		return
	}
	switch base.Tag {
	case TagArray:
		rec := vm.arrays[base.I]
		if idx.I < 0 || idx.I >= rec.Len {
			vm.userError(cmd.Tok, "array index %d out of range (length %d)", idx.I, rec.Len)
			return
		}
		vm.push(vm.store[rec.Base+idx.I])
	case TagStr:
		s := vm.strs[base.I]
		if idx.I < 0 || idx.I >= len(s) {
			vm.push(nullCell)
		} else {
			vm.push(intCell(int(s[idx.I])))
		}
	default:
		vm.userError(cmd.Tok, "cannot index a %s", base.Tag)
		return
	}
	vm.pc++
}

func (vm *VM) execIndexRef(cmd bytecode.Cmd) {
	idx := vm.pop()
	base := vm.pop()
	if base.Tag != TagArray {
		vm.userError(cmd.Tok, "cannot take a reference into a %s", base.Tag)
		return
	}
	if idx.Tag != TagInt {
		vm.userError(cmd.Tok, "index must be an int, got %s", idx.Tag)
		return
	}
	rec := vm.arrays[base.I]
	if idx.I < 0 || idx.I >= rec.Len {
		vm.userError(cmd.Tok, "array index %d out of range (length %d)", idx.I, rec.Len)
		return
	}
	vm.push(Cell{Tag: TagRef, I: rec.Base + idx.I})
	vm.pc++
}

func (vm *VM) execCall(cmd bytecode.Cmd) {
	argc := cmd.X
	args := make([]Cell, argc)
	for i := argc - 1; i >= 0; i-- {
		args[i] = vm.pop()
	}
	callee := vm.pop()

	switch callee.Tag {
	case TagClosure:
		vm.callClosure(cmd, callee.I, args)
	case TagExtern:
		vm.runExtern(cmd.Tok, callee.I, args)
		vm.pc++
	default:
		vm.userError(cmd.Tok, "cannot call a %s", callee.Tag)
	}
}

func (vm *VM) callClosure(cmd bytecode.Cmd, ci int, args []Cell) {
	cl := vm.closure[ci]
	fun := vm.scopes.Funs[cl.FunI]
	if fun.Kind != scope.Closure {
		vm.fatal("closure cell references a non-closure Fun")
	}
	nlocal := vm.scopes.Scopes[fun.Scope].NLocal
	base := vm.allocHeap(nlocal)
	envIdx := len(vm.envs)
	vm.envs = append(vm.envs, envRec{Scope: fun.Scope, Parent: cl.EnvI, Base: base, Len: nlocal})

	n := len(args)
	if n > nlocal {
		n = nlocal
	}
	copy(vm.store[base:base+n], args[:n])

	if len(vm.frames) >= vm.maxCallDepth {
		vm.userError(cmd.Tok, "STACK OVERFLOW")
	}
	vm.frames = append(vm.frames, frameRec{ReturnPC: vm.pc + 1, EnvI: vm.curEnv})
	vm.curEnv = envIdx
	vm.pc = vm.labelTarget(fun.EntryLabel)
}

func (vm *VM) runExtern(tok int, funI int, args []Cell) {
	fun := vm.scopes.Funs[funI]
	fn, ok := vm.externs[fun.Name]
	if !ok {
		vm.userError(tok, "unregistered extern function %q", fun.Name)
		return
	}
	ctx := &ExternCtx{vm: vm, args: args, result: nullCell}
	fn(ctx)
	if ctx.rejected {
		vm.userError(tok, "%s", ctx.message)
		return
	}
	vm.push(ctx.result)
}
