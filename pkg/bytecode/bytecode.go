// Package bytecode defines negi's instruction set and command vector.
//
// Negi's VM is stack-based: values are pushed and popped from a runtime
// stack, and a constant-style payload rides along on each instruction.
// The instruction set is built around an lvalue/rvalue duality via
// reference cells, label back-patching for control flow, and a
// two-region cell store shared between the stack and a bump-allocated
// heap.
//
// Instruction Format:
//
// Each Cmd carries an Opcode plus whichever of its payload fields that
// opcode uses: an integer X (a literal value, jump-label index, function
// index, argument count, or array-literal length, depending on Op), an
// optional Str (string literal text or a diagnostic message), a Scope
// (the scope index a local-variable access resolves against), and the
// source Tok an error should be reported against.
package bytecode

// Opcode identifies one VM instruction.
type Opcode byte

const (
	// === Literals ===

	// OpPushInt pushes the integer literal X.
	OpPushInt Opcode = iota
	// OpPushStr interns Str in the VM's string table (reusing an equal
	// entry if one exists) and pushes it.
	OpPushStr
	// OpPushNull pushes the canonical null cell (int 0).
	OpPushNull

	// === Stack shuffling ===

	// OpPop discards the top of stack.
	OpPop
	// OpDup duplicates the top of stack.
	OpDup

	// === Variable access ===

	// OpLocalGet pushes the value stored at (Scope, X): the scope chain is
	// walked from the current env looking for an activation whose
	// scope-index equals Scope, and slot X of its backing array is read.
	OpLocalGet
	// OpLocalRef pushes a Ref cell addressing (Scope, X) rather than its
	// value — used when an identifier appears as an lvalue.
	OpLocalRef
	// OpPushExtern pushes a reference to extern function X (an index into
	// the Fun table), emitted when identifier resolution falls through to
	// the extern-function registry.
	OpPushExtern
	// OpPushClosure pushes a new closure pairing function X with the env
	// active at the moment this instruction executes.
	OpPushClosure

	// === Reference cells ===

	// OpCellGet pops a reference cell and pushes the value it addresses.
	OpCellGet
	// OpCellSet pops a value then a reference cell, writes the value
	// through the reference, and pushes the value back.
	OpCellSet

	// === Arrays ===

	// OpPushArray allocates a new empty array with room for X elements
	// and pushes it; the elements are then added one by one by
	// OpArrayPush.
	OpPushArray
	// OpArrayPush pops a value and an array, appends the value to the
	// array (growing its backing range if needed), and pushes the array
	// back.
	OpArrayPush
	// OpIndex pops an index then a string-or-array and pushes the element
	// (rvalue use of `e[i]`).
	OpIndex
	// OpIndexRef pops an index then an array and pushes a reference cell
	// into the array's backing range (lvalue use of `e[i]`).
	OpIndexRef

	// === Arithmetic & comparison (only Eq and Lt are VM primitives; the
	// compiler synthesizes !=, <=, >, >= from them) ===

	OpAdd
	OpSub
	OpMul
	OpDiv
	OpMod
	OpEq
	OpLt

	// === Control flow ===

	// OpLabel marks a jump target; it is a no-op at execution time and is
	// resolved to a concrete command index by the compiler's final
	// back-patching pass before the VM ever sees the command vector.
	OpLabel
	// OpJump unconditionally sets PC to label X's resolved command index.
	OpJump
	// OpJumpUnless pops a value; if it is integer zero, sets PC to label
	// X's resolved command index; a non-zero integer falls through. A
	// non-integer value is a runtime type error.
	OpJumpUnless
	// OpCall pops X arguments then the callee and dispatches on the
	// callee's type tag (closure or extern).
	OpCall
	// OpReturn pops the top frame and restores the caller's PC and env.
	OpReturn
	// OpExit pops an integer exit code and halts the VM.
	OpExit

	// === Errors ===

	// OpErr aborts evaluation with Str as a user-facing diagnostic. Emitted
	// by the compiler wherever a construct is syntactically present but
	// semantically invalid (e.g. an lvalue form that isn't ident/index), or
	// wherever parsing itself failed (Reported set, since the parser
	// already recorded Str into the shared diagnostics at parse time).
	OpErr
)

// String returns the command mnemonic, used by tests and the bytecode
// dump format.
func (op Opcode) String() string {
	switch op {
	case OpPushInt:
		return "push_int"
	case OpPushStr:
		return "push_str"
	case OpPushNull:
		return "push_null"
	case OpPop:
		return "pop"
	case OpDup:
		return "dup"
	case OpLocalGet:
		return "local_get"
	case OpLocalRef:
		return "local_ref"
	case OpPushExtern:
		return "push_extern"
	case OpPushClosure:
		return "push_closure"
	case OpCellGet:
		return "cell_get"
	case OpCellSet:
		return "cell_set"
	case OpPushArray:
		return "push_array"
	case OpArrayPush:
		return "array_push"
	case OpIndex:
		return "index"
	case OpIndexRef:
		return "index_ref"
	case OpAdd:
		return "add"
	case OpSub:
		return "sub"
	case OpMul:
		return "mul"
	case OpDiv:
		return "div"
	case OpMod:
		return "mod"
	case OpEq:
		return "eq"
	case OpLt:
		return "lt"
	case OpLabel:
		return "label"
	case OpJump:
		return "jump"
	case OpJumpUnless:
		return "jump_unless"
	case OpCall:
		return "call"
	case OpReturn:
		return "return"
	case OpExit:
		return "exit"
	case OpErr:
		return "err"
	default:
		return "unknown"
	}
}

// Cmd is one VM instruction.
type Cmd struct {
	Op       Opcode
	X        int    // literal value / label index / fun index / argc / array length
	Str      string // string literal text, or an OpErr diagnostic message
	Scope    int    // scope index, for OpLocalGet/OpLocalRef
	Tok      int    // source token index, for diagnostics
	Reported bool   // OpErr only: Str was already recorded as a diagnostic
}

// Program is the command half of one compile's output: a flat command
// vector and its entry label. The compile-time symbol tables (scopes,
// labels, funs) come back separately as a *scope.Scopes. The entry label
// is command index 0's target, a dedicated pre-root label.
type Program struct {
	Cmds       []Cmd
	EntryLabel int
}
