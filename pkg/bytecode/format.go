// Package bytecode also provides serialization for .nbc bytecode files.
//
// File Format Specification:
//
// The .nbc file format stores a compiled negi Program so that a source
// file can be compiled once and evaluated many times without re-lexing,
// re-parsing, or re-running codegen. Rather than a hand-rolled
// length-prefixed binary layout, encoding leans on
// github.com/fxamacker/cbor/v2 to get a compact, self-describing,
// versioned encoding without maintaining a reader/writer pair for every
// field Cmd happens to grow.
//
// On-disk layout:
//
//	[Magic]   4 bytes, "NBC1"
//	[Payload] a single CBOR-encoded nbcFile value
//
// The magic prefix exists purely so Decode can reject a non-.nbc file
// with a clear diagnostic instead of a cryptic CBOR parse error; the
// version lives in the magic string itself (a future incompatible format
// change bumps it to "NBC2") rather than as a separate field, since CBOR
// maps already tolerate additive schema evolution on their own.
package bytecode

import (
	"bytes"
	"fmt"
	"io"

	"github.com/fxamacker/cbor/v2"

	"github.com/negilang/negi/pkg/scope"
)

// magic is the 4-byte signature written at the start of every .nbc file.
var magic = [4]byte{'N', 'B', 'C', '1'}

// nbcFile is the CBOR-serialized shape of a compiled unit. It exists
// separately from Program/scope.Scopes so the wire format doesn't have to
// track their Go field tags directly (and so adding a field to either
// never silently changes the wire format without a deliberate edit here).
// Locals isn't included: codegen only needs it to resolve names at compile
// time, and a decoded program never goes through resolution again — only
// NLocal (carried on each nbcScope), Labels and Funs are load-bearing for
// pkg/vm.New to actually run the cached program.
type nbcFile struct {
	EntryLabel int
	Cmds       []nbcCmd
	Scopes     []nbcScope
	Labels     []nbcLabel
	Funs       []nbcFun
}

type nbcCmd struct {
	Op    byte
	X     int
	Str   string `cbor:",omitempty"`
	Scope int    `cbor:",omitempty"`
	Tok   int    `cbor:",omitempty"`
}

type nbcScope struct {
	Parent int
	NLocal int
	Tok    int
}

type nbcLabel struct {
	CmdI int
}

type nbcFun struct {
	Kind       byte
	Scope      int
	EntryLabel int
	Name       string `cbor:",omitempty"`
}

// Encode serializes prog and the Scopes table codegen produced alongside
// it as a .nbc file and writes it to w.
func Encode(prog *Program, scopes *scope.Scopes, w io.Writer) error {
	if _, err := w.Write(magic[:]); err != nil {
		return fmt.Errorf("bytecode: writing magic: %w", err)
	}

	file := nbcFile{
		EntryLabel: prog.EntryLabel,
		Cmds:       make([]nbcCmd, len(prog.Cmds)),
		Scopes:     make([]nbcScope, len(scopes.Scopes)),
		Labels:     make([]nbcLabel, len(scopes.Labels)),
		Funs:       make([]nbcFun, len(scopes.Funs)),
	}
	for i, c := range prog.Cmds {
		file.Cmds[i] = nbcCmd{Op: byte(c.Op), X: c.X, Str: c.Str, Scope: c.Scope, Tok: c.Tok}
	}
	for i, s := range scopes.Scopes {
		file.Scopes[i] = nbcScope{Parent: s.Parent, NLocal: s.NLocal, Tok: s.Tok}
	}
	for i, l := range scopes.Labels {
		file.Labels[i] = nbcLabel{CmdI: l.CmdI}
	}
	for i, f := range scopes.Funs {
		file.Funs[i] = nbcFun{Kind: byte(f.Kind), Scope: f.Scope, EntryLabel: f.EntryLabel, Name: f.Name}
	}

	enc, err := cbor.Marshal(file)
	if err != nil {
		return fmt.Errorf("bytecode: encoding program: %w", err)
	}
	if _, err := w.Write(enc); err != nil {
		return fmt.Errorf("bytecode: writing payload: %w", err)
	}
	return nil
}

// Decode reads a .nbc file from r and reconstructs its Program and Scopes.
func Decode(r io.Reader) (*Program, *scope.Scopes, error) {
	raw, err := io.ReadAll(r)
	if err != nil {
		return nil, nil, fmt.Errorf("bytecode: reading file: %w", err)
	}
	if len(raw) < len(magic) || !bytes.Equal(raw[:len(magic)], magic[:]) {
		return nil, nil, fmt.Errorf("bytecode: not an .nbc file (bad magic)")
	}

	var file nbcFile
	if err := cbor.Unmarshal(raw[len(magic):], &file); err != nil {
		return nil, nil, fmt.Errorf("bytecode: decoding program: %w", err)
	}

	prog := &Program{
		EntryLabel: file.EntryLabel,
		Cmds:       make([]Cmd, len(file.Cmds)),
	}
	for i, c := range file.Cmds {
		prog.Cmds[i] = Cmd{Op: Opcode(c.Op), X: c.X, Str: c.Str, Scope: c.Scope, Tok: c.Tok}
	}

	scopes := &scope.Scopes{
		Scopes: make([]scope.Scope, len(file.Scopes)),
		Labels: make([]scope.Label, len(file.Labels)),
		Funs:   make([]scope.Fun, len(file.Funs)),
	}
	for i, s := range file.Scopes {
		scopes.Scopes[i] = scope.Scope{Parent: s.Parent, NLocal: s.NLocal, Tok: s.Tok}
	}
	for i, l := range file.Labels {
		scopes.Labels[i] = scope.Label{CmdI: l.CmdI}
	}
	for i, f := range file.Funs {
		scopes.Funs[i] = scope.Fun{Kind: scope.FunKind(f.Kind), Scope: f.Scope, EntryLabel: f.EntryLabel, Name: f.Name}
	}
	return prog, scopes, nil
}
