package vm

// ExternFunc is a host function registered under a name the compiler's
// extern registry resolves identifiers against (pkg/compiler's
// BuiltinExterns plus whatever names the host passes to Compile as
// hostExterns and to New via WithExterns). An extern call hands the function an already-evaluated
// argument list and a one-shot ctx it must settle by calling exactly
// one of Resolve or Reject before returning.
type ExternFunc func(ctx *ExternCtx)

// ExternCtx is the call context handed to one extern invocation. It holds
// the evaluated argument cells (argc is simply len(args)) and accumulates
// the function's outcome.
type ExternCtx struct {
	vm       *VM
	args     []Cell
	result   Cell
	rejected bool
	message  string
}

// Argc returns the number of arguments the call site passed.
func (c *ExternCtx) Argc() int { return len(c.args) }

// Arg returns argument i, or the canonical null cell if i is out of
// range — externs validate arity themselves and Reject with a message
// naming the mismatch, same as a wrong-type argument.
func (c *ExternCtx) Arg(i int) Cell {
	if i < 0 || i >= len(c.args) {
		return nullCell
	}
	return c.args[i]
}

// Resolve settles the call successfully with v as its result.
func (c *ExternCtx) Resolve(v Cell) { c.result = v }

// Reject settles the call as a runtime error; the call site's userError
// reports msg against the call's own source token, same as any other
// stratum-2 failure.
func (c *ExternCtx) Reject(msg string) {
	c.rejected = true
	c.message = msg
}

// ArrayLen reports an array cell's current logical length.
func (c *ExternCtx) ArrayLen(cell Cell) (int, bool) {
	if cell.Tag != TagArray {
		return 0, false
	}
	return c.vm.arrays[cell.I].Len, true
}

// ArrayPush appends v to the array cell and returns the same cell (arrays
// are reference types identified by their table index, not by value).
func (c *ExternCtx) ArrayPush(cell Cell, v Cell) (Cell, bool) {
	if cell.Tag != TagArray {
		return Cell{}, false
	}
	c.vm.arrayPush(cell.I, v)
	return cell, true
}

// ArrayPop removes and returns the array's last element.
func (c *ExternCtx) ArrayPop(cell Cell) (Cell, bool) {
	if cell.Tag != TagArray {
		return Cell{}, false
	}
	return c.vm.arrayPop(cell.I)
}

// builtinArrayLen implements array_len(a): the array's current length as
// an Int cell. Registered under pkg/compiler.BuiltinExterns's "array_len".
func builtinArrayLen(ctx *ExternCtx) {
	n, ok := ctx.ArrayLen(ctx.Arg(0))
	if !ok {
		ctx.Reject("array_len: argument is not an array")
		return
	}
	ctx.Resolve(intCell(n))
}

// builtinArrayPush implements array_push(a, v): appends v, returns a.
func builtinArrayPush(ctx *ExternCtx) {
	if ctx.Argc() < 2 {
		ctx.Reject("array_push: expected 2 arguments")
		return
	}
	v, ok := ctx.ArrayPush(ctx.Arg(0), ctx.Arg(1))
	if !ok {
		ctx.Reject("array_push: argument is not an array")
		return
	}
	ctx.Resolve(v)
}

// builtinArrayPop implements array_pop(a): removes and returns a's last
// element.
func builtinArrayPop(ctx *ExternCtx) {
	v, ok := ctx.ArrayPop(ctx.Arg(0))
	if !ok {
		ctx.Reject("array_pop: argument is not an array, or is empty")
		return
	}
	ctx.Resolve(v)
}

// builtinExterns are always registered, regardless of what the host
// supplies, matching pkg/compiler.BuiltinExterns's reservation of these
// three names.
var builtinExterns = map[string]ExternFunc{
	"array_len":  builtinArrayLen,
	"array_push": builtinArrayPush,
	"array_pop":  builtinArrayPop,
}
