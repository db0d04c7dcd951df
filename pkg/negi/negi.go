// Package negi wires pkg/lexer, pkg/parser, pkg/compiler and pkg/vm into
// a single entry point: `eval(source) -> (exit_code, diagnostics_text)`.
// Everything upstream of this package is reusable in isolation (a tool
// could parse without compiling, or dump bytecode without running it);
// this package is the one place that runs the whole pipeline end to end
// and is the only one that ever recovers a stratum-3 panic, since
// nothing below it is allowed to decide how a host embedding the
// interpreter should learn about an internal invariant violation.
//
// Eval owns no process-wide state: every call builds a fresh Source,
// Diagnostics, arena, symbol table and VM, so concurrent or repeated
// evaluations never interfere with each other.
package negi

import (
	"github.com/negilang/negi/pkg/compiler"
	"github.com/negilang/negi/pkg/diag"
	"github.com/negilang/negi/pkg/parser"
	"github.com/negilang/negi/pkg/source"
	"github.com/negilang/negi/pkg/vm"
)

// Option configures one Eval call.
type Option func(*config)

type config struct {
	hostExterns map[string]vm.ExternFunc
	vmOpts      []vm.Option
}

// WithExterns registers host functions callable by name from the script,
// alongside the always-available array_len/array_push/array_pop.
func WithExterns(fns map[string]vm.ExternFunc) Option {
	return func(c *config) {
		if c.hostExterns == nil {
			c.hostExterns = make(map[string]vm.ExternFunc, len(fns))
		}
		for name, fn := range fns {
			c.hostExterns[name] = fn
		}
	}
}

// WithStackSize overrides the VM's value-stack cell capacity.
func WithStackSize(n int) Option {
	return func(c *config) { c.vmOpts = append(c.vmOpts, vm.WithStackSize(n)) }
}

// WithHeapSize overrides the VM's heap cell capacity.
func WithHeapSize(n int) Option {
	return func(c *config) { c.vmOpts = append(c.vmOpts, vm.WithHeapSize(n)) }
}

// WithMaxCallDepth overrides the VM's call-frame depth limit.
func WithMaxCallDepth(n int) Option {
	return func(c *config) { c.vmOpts = append(c.vmOpts, vm.WithMaxCallDepth(n)) }
}

// Eval lexes, parses, compiles and runs src, returning its exit code and
// the rendered diagnostics text (empty if none fired). A non-zero exit
// code is produced whenever any diagnostic fires, or the program itself
// supplies a non-zero exit value.
//
// A stratum-3 internal invariant violation (a VM or compiler bug, never
// reachable from a well-formed program) is recovered here rather than
// left to crash the host: it is reported as exit code 1 with a
// diagnostic carrying the panic's message, since a library can't
// literally terminate the process the way a standalone interpreter
// could.
func Eval(src string, opts ...Option) (exitCode int, diagnostics string) {
	cfg := &config{}
	for _, opt := range opts {
		opt(cfg)
	}

	s := source.New(src)
	diags := &source.Diagnostics{}

	defer func() {
		if r := recover(); r != nil {
			diags.Add(source.Range{}, "internal error: %v", r)
			exitCode = 1
			diagnostics = diag.Format(s, diags)
		}
	}()

	p := parser.New(s, diags)
	arena, root := p.Parse()

	hostExternNames := make([]string, 0, len(cfg.hostExterns))
	for name := range cfg.hostExterns {
		hostExternNames = append(hostExternNames, name)
	}
	prog, scopes := compiler.Compile(arena, root, diags, hostExternNames)

	vmOpts := cfg.vmOpts
	if len(cfg.hostExterns) > 0 {
		vmOpts = append(vmOpts, vm.WithExterns(cfg.hostExterns))
	}
	machine := vm.New(prog, scopes, p.Tokens(), diags, vmOpts...)
	code := machine.Run()

	if diags.Len() > 0 && code == 0 {
		code = 1
	}
	return code, diag.Format(s, diags)
}
