// Command negi is a thin cobra-based CLI over pkg/negi: it exists only
// as an external collaborator exercising the facade, not a component
// with its own correctness requirements.
package main

import (
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"

	"github.com/dustin/go-humanize"
	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/negilang/negi/pkg/bytecode"
	"github.com/negilang/negi/pkg/compiler"
	"github.com/negilang/negi/pkg/diag"
	"github.com/negilang/negi/pkg/parser"
	"github.com/negilang/negi/pkg/scope"
	"github.com/negilang/negi/pkg/source"
	"github.com/negilang/negi/pkg/token"
	"github.com/negilang/negi/pkg/vm"
)

const version = "0.1.0"

// logger is the CLI's only logging surface (`run --trace` session lines,
// cache-hit notices); everywhere else in the module stays silent and communicates
// purely through pkg/negi.Eval's return values.
var logger = log.New(os.Stderr, "", 0)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "negi",
		Short: "negi - a small expression-oriented scripting language",
	}

	root.AddCommand(newRunCmd())
	root.AddCommand(newCompileCmd())
	root.AddCommand(newDisassembleCmd())
	root.AddCommand(newReplCmd())
	root.AddCommand(newVersionCmd())
	return root
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "print negi's version",
		RunE: func(cmd *cobra.Command, args []string) error {
			fmt.Fprintf(cmd.OutOrStdout(), "negi version %s\n", version)
			return nil
		},
	}
}

func newReplCmd() *cobra.Command {
	var trace bool
	c := &cobra.Command{
		Use:   "repl",
		Short: "start an interactive session",
		RunE: func(cmd *cobra.Command, args []string) error {
			return newREPL(version, trace).start(cmd.OutOrStdout())
		},
	}
	c.Flags().BoolVar(&trace, "trace", false, "print a session id alongside each evaluation")
	return c
}

func newRunCmd() *cobra.Command {
	var (
		useCache bool
		cacheCap int
		stats    bool
		trace    bool
	)
	c := &cobra.Command{
		Use:   "run <file>",
		Short: "run a .negi source file or a .nbc compiled program",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runFile(cmd, args[0], useCache, cacheCap, stats, trace)
		},
	}
	c.Flags().BoolVar(&useCache, "cache", false, "cache compiled programs in-process, keyed by source digest")
	c.Flags().IntVar(&cacheCap, "cache-size", 64, "max number of compiled programs to retain with --cache")
	c.Flags().BoolVar(&stats, "stats", false, "print heap/stack cell usage after running")
	c.Flags().BoolVar(&trace, "trace", false, "print a session id before evaluating")
	return c
}

// sharedCache is reused across --cache runs within one process invocation
// of the CLI (a single `negi run` only evaluates once, but a host
// embedding this binary's logic in a loop, or a future batch mode over
// several fixtures, shares the warm cache instead of rebuilding one per
// file).
var sharedCache *programCache

func runFile(cmd *cobra.Command, filename string, useCache bool, cacheCap int, stats, trace bool) error {
	w := cmd.OutOrStdout()

	if filepath.Ext(filename) == ".nbc" {
		return runCompiled(w, filename, stats)
	}

	data, err := os.ReadFile(filename)
	if err != nil {
		return fmt.Errorf("reading %s: %w", filename, err)
	}
	src := string(data)

	if trace {
		logger.Printf("[%s] running %s", uuid.New(), filename)
	}

	s := source.New(src)
	diags := &source.Diagnostics{}

	var prog *bytecode.Program
	var scopes *scope.Scopes
	var tokens []token.Token

	if useCache {
		if sharedCache == nil {
			sharedCache = newProgramCache(cacheCap)
		}
		if unit, ok := sharedCache.get(src); ok {
			if trace {
				logger.Printf("cache hit for %s", filename)
			}
			prog, scopes = unit.prog, unit.scopes
		}
	}

	if prog == nil {
		p := parser.New(s, diags)
		arena, root := p.Parse()
		prog, scopes = compiler.Compile(arena, root, diags, nil)
		tokens = p.Tokens()
		if useCache && diags.Len() == 0 {
			sharedCache.put(src, compiledUnit{prog: prog, scopes: scopes})
		}
	}

	machine := vm.New(prog, scopes, tokens, diags)
	code := machine.Run()
	fmt.Fprint(w, diag.Format(s, diags))
	if stats {
		printStats(w, machine)
	}
	os.Exit(code)
	return nil
}

func runCompiled(w io.Writer, filename string, stats bool) error {
	file, err := os.Open(filename)
	if err != nil {
		return fmt.Errorf("reading %s: %w", filename, err)
	}
	defer file.Close()

	prog, scopes, err := bytecode.Decode(file)
	if err != nil {
		return fmt.Errorf("loading %s: %w", filename, err)
	}

	diags := &source.Diagnostics{}
	machine := vm.New(prog, scopes, nil, diags)
	code := machine.Run()
	if diags.Len() > 0 {
		// A .nbc file carries no source text, so runtime diagnostics can
		// only report the message, not a "near '...'" source slice.
		for _, d := range diags.Items() {
			fmt.Fprintf(w, "runtime error: %s\n", d.Message)
		}
	}
	if stats {
		printStats(w, machine)
	}
	os.Exit(code)
	return nil
}

func printStats(w io.Writer, machine *vm.VM) {
	stackUsed, stackCap := machine.StackUsage()
	heapUsed, heapCap := machine.HeapUsage()
	fmt.Fprintf(w, "stack: %s / %s cells\n", humanize.Comma(int64(stackUsed)), humanize.Comma(int64(stackCap)))
	fmt.Fprintf(w, "heap:  %s / %s cells\n", humanize.Comma(int64(heapUsed)), humanize.Comma(int64(heapCap)))
}

func newCompileCmd() *cobra.Command {
	c := &cobra.Command{
		Use:   "compile <input.negi> [output.nbc]",
		Short: "compile a .negi source file to a .nbc bytecode file",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			input := args[0]
			output := ""
			if len(args) == 2 {
				output = args[1]
			}
			return compileFile(cmd, input, output)
		},
	}
	return c
}

func compileFile(cmd *cobra.Command, inputFile, outputFile string) error {
	if outputFile == "" {
		if filepath.Ext(inputFile) == ".negi" {
			outputFile = inputFile[:len(inputFile)-len(".negi")] + ".nbc"
		} else {
			outputFile = inputFile + ".nbc"
		}
	}

	data, err := os.ReadFile(inputFile)
	if err != nil {
		return fmt.Errorf("reading %s: %w", inputFile, err)
	}

	s := source.New(string(data))
	diags := &source.Diagnostics{}
	p := parser.New(s, diags)
	arena, root := p.Parse()
	prog, scopes := compiler.Compile(arena, root, diags, nil)
	if diags.Len() > 0 {
		return fmt.Errorf("compile failed for %s", inputFile)
	}

	out, err := os.Create(outputFile)
	if err != nil {
		return fmt.Errorf("creating %s: %w", outputFile, err)
	}
	defer out.Close()

	if err := bytecode.Encode(prog, scopes, out); err != nil {
		return fmt.Errorf("encoding %s: %w", outputFile, err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "compiled %s -> %s\n", inputFile, outputFile)
	return nil
}

func newDisassembleCmd() *cobra.Command {
	return &cobra.Command{
		Use:     "disassemble <file.nbc>",
		Aliases: []string{"disasm"},
		Short:   "print a human-readable view of a compiled .nbc program",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return disassembleFile(cmd, args[0])
		},
	}
}

func disassembleFile(cmd *cobra.Command, filename string) error {
	file, err := os.Open(filename)
	if err != nil {
		return fmt.Errorf("reading %s: %w", filename, err)
	}
	defer file.Close()

	prog, _, err := bytecode.Decode(file)
	if err != nil {
		return fmt.Errorf("loading %s: %w", filename, err)
	}

	w := cmd.OutOrStdout()
	fmt.Fprintf(w, "=== %s (entry label %d) ===\n", filename, prog.EntryLabel)
	for i, c := range prog.Cmds {
		fmt.Fprintf(w, "%5d: %-12s", i, c.Op)
		switch {
		case c.Str != "":
			fmt.Fprintf(w, " %q", c.Str)
		case c.X != 0:
			fmt.Fprintf(w, " %d", c.X)
		}
		if c.Scope != 0 {
			fmt.Fprintf(w, " scope=%d", c.Scope)
		}
		fmt.Fprintln(w)
	}
	return nil
}
