package bytecode

import (
	"bytes"
	"testing"

	"github.com/negilang/negi/pkg/scope"
)

func TestEncodeDecode_RoundTrip(t *testing.T) {
	original := &Program{
		EntryLabel: 0,
		Cmds: []Cmd{
			{Op: OpPushInt, X: 42, Tok: 1},
			{Op: OpLocalGet, Scope: 0, X: 2, Tok: 2},
			{Op: OpAdd, Tok: 3},
			{Op: OpExit, Tok: 4},
		},
	}
	scopes := &scope.Scopes{
		Scopes: []scope.Scope{{Parent: -1, NLocal: 3, Tok: 0}},
		Labels: []scope.Label{{CmdI: 0}},
		Funs:   []scope.Fun{{Kind: scope.Extern, Scope: -1, EntryLabel: -1, Name: "array_len"}},
	}

	var buf bytes.Buffer
	if err := Encode(original, scopes, &buf); err != nil {
		t.Fatalf("Encode failed: %v", err)
	}
	if buf.Len() == 0 {
		t.Fatal("no data was encoded")
	}

	decoded, decodedScopes, err := Decode(&buf)
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}

	if decoded.EntryLabel != original.EntryLabel {
		t.Errorf("EntryLabel = %d, want %d", decoded.EntryLabel, original.EntryLabel)
	}
	if len(decoded.Cmds) != len(original.Cmds) {
		t.Fatalf("got %d cmds, want %d", len(decoded.Cmds), len(original.Cmds))
	}
	for i, c := range decoded.Cmds {
		if c != original.Cmds[i] {
			t.Errorf("cmd[%d] = %+v, want %+v", i, c, original.Cmds[i])
		}
	}

	if len(decodedScopes.Scopes) != 1 || decodedScopes.Scopes[0].NLocal != 3 {
		t.Errorf("Scopes = %+v, want NLocal=3", decodedScopes.Scopes)
	}
	if len(decodedScopes.Labels) != 1 || decodedScopes.Labels[0].CmdI != 0 {
		t.Errorf("Labels = %+v", decodedScopes.Labels)
	}
	if len(decodedScopes.Funs) != 1 || decodedScopes.Funs[0].Name != "array_len" {
		t.Errorf("Funs = %+v", decodedScopes.Funs)
	}
}

func TestEncodeDecode_AllOpcodesAndStringPayload(t *testing.T) {
	ops := []Opcode{
		OpPushInt, OpPushStr, OpPushNull, OpPop, OpDup,
		OpLocalGet, OpLocalRef, OpPushExtern, OpPushClosure,
		OpCellGet, OpCellSet, OpPushArray, OpArrayPush, OpIndex, OpIndexRef,
		OpAdd, OpSub, OpMul, OpDiv, OpMod, OpEq, OpLt,
		OpLabel, OpJump, OpJumpUnless, OpCall, OpReturn, OpExit, OpErr,
	}
	original := &Program{}
	for i, op := range ops {
		original.Cmds = append(original.Cmds, Cmd{Op: op, X: i, Str: "payload"})
	}

	var buf bytes.Buffer
	if err := Encode(original, scope.New(), &buf); err != nil {
		t.Fatalf("Encode failed: %v", err)
	}
	decoded, _, err := Decode(&buf)
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	for i, c := range decoded.Cmds {
		if c.Op != ops[i] {
			t.Errorf("cmd[%d].Op = %s, want %s", i, c.Op, ops[i])
		}
		if c.Str != "payload" {
			t.Errorf("cmd[%d].Str = %q, want %q", i, c.Str, "payload")
		}
	}
}

func TestEncodeDecode_Empty(t *testing.T) {
	var buf bytes.Buffer
	if err := Encode(&Program{}, scope.New(), &buf); err != nil {
		t.Fatalf("Encode failed: %v", err)
	}
	decoded, _, err := Decode(&buf)
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	if len(decoded.Cmds) != 0 {
		t.Errorf("got %d cmds, want 0", len(decoded.Cmds))
	}
}

func TestDecode_RejectsBadMagic(t *testing.T) {
	buf := bytes.NewBufferString("not an nbc file at all")
	if _, _, err := Decode(buf); err == nil {
		t.Fatal("expected an error decoding a non-.nbc buffer")
	}
}

func TestDecode_RejectsTruncatedMagic(t *testing.T) {
	buf := bytes.NewBufferString("NB")
	if _, _, err := Decode(buf); err == nil {
		t.Fatal("expected an error decoding a too-short buffer")
	}
}
