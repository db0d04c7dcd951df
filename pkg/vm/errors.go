// Package vm - error handling across three strata: compile-time
// diagnostics (stratum 1), runtime errors that halt the program with
// exit code 1 (stratum 2), and internal invariant violations that must
// never be reachable from user input (stratum 3).
package vm

import "fmt"

// haltSignal unwinds the VM's dispatch loop back to Run() whenever
// execution reaches a terminal state by design: cmd_exit, cmd_err, or a
// stratum-2 runtime error (stack overflow, heap exhaustion, a type
// mismatch a well-formed program is never supposed to produce). Run()'s
// deferred recover catches exactly this type and turns it into an exit
// code, leaving any other panic — a genuine Go runtime panic (divide by
// zero, slice out of range) or an internalError from fatal — to
// propagate to the caller: those are stratum 3, and this package never
// recovers from them itself.
type haltSignal struct {
	exitCode int
}

// internalError marks a panic as stratum 3: an invariant the compiler and
// VM together are supposed to guarantee (a resolved label pointing past
// the end of the command vector, a stack underflow from popping an empty
// VM stack, an unknown opcode). These must never be reachable from any
// user program; when one fires it means the VM itself has a bug, not the
// script it's running.
type internalError struct {
	message string
}

func (e internalError) Error() string {
	return "internal invariant violation: " + e.message
}

// fatal raises a stratum-3 panic. Package vm never recovers from this
// itself; only the embedding facade (pkg/negi) decides how to surface it
// to a caller that isn't simply terminating the process.
func (vm *VM) fatal(format string, args ...interface{}) {
	panic(internalError{message: fmt.Sprintf(format, args...)})
}

// userError records a diagnostic against tok's source range and unwinds
// to Run() with exit code 1. This is the VM's half of the stratum-1/2
// story: OpErr commands compiled in by the compiler and runtime
// type/resource errors discovered here both funnel through it.
func (vm *VM) userError(tok int, format string, args ...interface{}) {
	vm.diags.Add(vm.rangeOf(tok), format, args...)
	panic(haltSignal{exitCode: 1})
}
