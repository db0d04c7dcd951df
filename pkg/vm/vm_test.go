package vm

import (
	"testing"

	"github.com/go-test/deep"
	"github.com/stretchr/testify/require"

	"github.com/negilang/negi/pkg/compiler"
	"github.com/negilang/negi/pkg/parser"
	"github.com/negilang/negi/pkg/source"
)

// eval runs src end to end (lex/parse/compile/execute) and returns its
// exit code alongside every diagnostic recorded along the way, whether
// from parsing or from execution.
func eval(t *testing.T, src string, opts ...Option) (int, *source.Diagnostics) {
	t.Helper()
	s := source.New(src)
	diags := &source.Diagnostics{}
	p := parser.New(s, diags)
	arena, root := p.Parse()
	prog, scopes := compiler.Compile(arena, root, diags, nil)
	vm := New(prog, scopes, p.Tokens(), diags, opts...)
	return vm.Run(), diags
}

// TestVM_ScenarioCompoundAssignExitsWithFinalValue locks in a concrete
// scenario: `let a = 2; a += 1; a *= 14; a` must exit 42, not 0 — the
// root-unwrap behavior that makes the trailing op_semi's discard not
// apply to the program's true last value.
func TestVM_ScenarioCompoundAssignExitsWithFinalValue(t *testing.T) {
	code, diags := eval(t, "let a = 2; a += 1; a *= 14; a")
	if diags.Len() != 0 {
		t.Fatalf("unexpected diagnostics: %v", diags.Items())
	}
	if code != 42 {
		t.Errorf("exit code = %d, want 42", code)
	}
}

func TestVM_BareIntegerIsExitCode(t *testing.T) {
	code, diags := eval(t, "7")
	if diags.Len() != 0 {
		t.Fatalf("unexpected diagnostics: %v", diags.Items())
	}
	if code != 7 {
		t.Errorf("exit code = %d, want 7", code)
	}
}

func TestVM_Arithmetic(t *testing.T) {
	tests := []struct {
		src  string
		want int
	}{
		{"1 + 2 * 3", 7},
		{"(1 + 2) * 3", 9},
		{"10 / 3", 3},
		{"10 % 3", 1},
		{"-5 + 10", 5},
	}
	for _, tt := range tests {
		code, diags := eval(t, tt.src)
		if diags.Len() != 0 {
			t.Fatalf("%s: unexpected diagnostics: %v", tt.src, diags.Items())
		}
		if code != tt.want {
			t.Errorf("%s: exit code = %d, want %d", tt.src, code, tt.want)
		}
	}
}

func TestVM_Comparisons(t *testing.T) {
	tests := []struct {
		src  string
		want int
	}{
		{"1 == 1", 1},
		{"1 == 2", 0},
		{"1 != 2", 1},
		{"1 != 1", 0},
		{"1 < 2", 1},
		{"2 < 1", 0},
		{"1 <= 1", 1},
		{"2 <= 1", 0},
		{"2 > 1", 1},
		{"1 > 2", 0},
		{"1 >= 1", 1},
		{"1 >= 2", 0},
	}
	for _, tt := range tests {
		code, diags := eval(t, tt.src)
		if diags.Len() != 0 {
			t.Fatalf("%s: unexpected diagnostics: %v", tt.src, diags.Items())
		}
		if code != tt.want {
			t.Errorf("%s: exit code = %d, want %d", tt.src, code, tt.want)
		}
	}
}

func TestVM_StringEqualityAndMixedTypeIsFalse(t *testing.T) {
	code, diags := eval(t, `"ab" == "ab"`)
	if diags.Len() != 0 {
		t.Fatalf("unexpected diagnostics: %v", diags.Items())
	}
	if code != 1 {
		t.Errorf("exit code = %d, want 1", code)
	}

	code, diags = eval(t, `1 == "1"`)
	if diags.Len() != 0 {
		t.Fatalf("unexpected diagnostics: %v", diags.Items())
	}
	if code != 0 {
		t.Errorf("mixed-type eq exit code = %d, want 0 (false)", code)
	}
}

func TestVM_StringConcatenation(t *testing.T) {
	code, diags := eval(t, `let s = "ab" + "cd"; s[0] == 97`)
	if diags.Len() != 0 {
		t.Fatalf("unexpected diagnostics: %v", diags.Items())
	}
	if code != 1 {
		t.Errorf("exit code = %d, want 1 (first byte of \"abcd\" is 'a')", code)
	}
}

func TestVM_IfElse(t *testing.T) {
	// A braced block discards its final value, so each branch records
	// which one ran through an assignment instead.
	code, diags := eval(t, "let r = 0; if (1) { r = 10 } else { r = 20 }; r")
	if diags.Len() != 0 {
		t.Fatalf("unexpected diagnostics: %v", diags.Items())
	}
	if code != 10 {
		t.Errorf("exit code = %d, want 10", code)
	}

	code, diags = eval(t, "let r = 0; if (0) { r = 10 } else { r = 20 }; r")
	if diags.Len() != 0 {
		t.Fatalf("unexpected diagnostics: %v", diags.Items())
	}
	if code != 20 {
		t.Errorf("exit code = %d, want 20", code)
	}
}

func TestVM_WhileLoopAccumulates(t *testing.T) {
	// The while condition is parsed at atom precedence, so the comparison
	// needs its own parenthesized group.
	code, diags := eval(t, "let i = 0; let sum = 0; while ((i < 5)) { sum += i; i += 1 }; sum")
	if diags.Len() != 0 {
		t.Fatalf("unexpected diagnostics: %v", diags.Items())
	}
	if code != 10 {
		t.Errorf("exit code = %d, want 10 (0+1+2+3+4)", code)
	}
}

func TestVM_BreakExitsLoop(t *testing.T) {
	code, diags := eval(t, "let i = 0; while (1) { if (i == 3) { break }; i += 1 }; i")
	if diags.Len() != 0 {
		t.Fatalf("unexpected diagnostics: %v", diags.Items())
	}
	if code != 3 {
		t.Errorf("exit code = %d, want 3", code)
	}
}

// TestVM_ScenarioBreakOutsideLoop covers a top-level `break`: it must
// halt with exit code 1 and carry the exact Japanese diagnostic text.
func TestVM_ScenarioBreakOutsideLoop(t *testing.T) {
	code, diags := eval(t, "break")
	if code != 1 {
		t.Errorf("exit code = %d, want 1", code)
	}
	if diags.Len() == 0 {
		t.Fatal("expected a diagnostic")
	}
	found := false
	for _, d := range diags.Items() {
		if d.Message == "ループの外側では break を使用できません" {
			found = true
		}
	}
	if !found {
		t.Errorf("diagnostics %v do not contain the break-outside-loop message", diags.Items())
	}
}

// TestVM_SyntaxErrorHaltsWithoutDuplicateDiagnostic checks that a reachable
// syntax error's OpErr halts the program without recording a second,
// generic diagnostic on top of the parser's own one from parse time.
func TestVM_SyntaxErrorHaltsWithoutDuplicateDiagnostic(t *testing.T) {
	code, diags := eval(t, ")")
	if code != 1 {
		t.Errorf("exit code = %d, want 1", code)
	}
	if diags.Len() != 1 {
		t.Fatalf("diagnostics = %v, want exactly 1", diags.Items())
	}
	if diags.Items()[0].Message == "invalid syntax" {
		t.Errorf("diagnostic message is the generic placeholder, want the parser's own message")
	}
}

func TestVM_FunctionCallAndClosureCapture(t *testing.T) {
	code, diags := eval(t, "let make_adder = fun(x) fun(y) x + y; let add5 = make_adder(5); add5(3)")
	if diags.Len() != 0 {
		t.Fatalf("unexpected diagnostics: %v", diags.Items())
	}
	if code != 8 {
		t.Errorf("exit code = %d, want 8", code)
	}
}

func TestVM_Recursion(t *testing.T) {
	src := `
		let fact = fun(n) n < 2 ? 1 : n * fact(n - 1);
		fact(5)
	`
	code, diags := eval(t, src)
	if diags.Len() != 0 {
		t.Fatalf("unexpected diagnostics: %v", diags.Items())
	}
	if code != 120 {
		t.Errorf("exit code = %d, want 120", code)
	}
}

func TestVM_ArrayLiteralAndIndex(t *testing.T) {
	code, diags := eval(t, "let a = [10, 20, 30]; a[1]")
	if diags.Len() != 0 {
		t.Fatalf("unexpected diagnostics: %v", diags.Items())
	}
	if code != 20 {
		t.Errorf("exit code = %d, want 20", code)
	}
}

func TestVM_ArrayIndexAssignment(t *testing.T) {
	code, diags := eval(t, "let a = [1, 2, 3]; a[1] = 99; a[1]")
	if diags.Len() != 0 {
		t.Fatalf("unexpected diagnostics: %v", diags.Items())
	}
	if code != 99 {
		t.Errorf("exit code = %d, want 99", code)
	}
}

func TestVM_BuiltinArrayPrimitives(t *testing.T) {
	code, diags := eval(t, "let a = [1, 2]; a = array_push(a, 3); array_len(a)")
	if diags.Len() != 0 {
		t.Fatalf("unexpected diagnostics: %v", diags.Items())
	}
	if code != 3 {
		t.Errorf("exit code = %d, want 3", code)
	}

	code, diags = eval(t, "let a = [1, 2, 3]; array_pop(a)")
	if diags.Len() != 0 {
		t.Fatalf("unexpected diagnostics: %v", diags.Items())
	}
	if code != 3 {
		t.Errorf("array_pop result = %d, want 3", code)
	}
}

func TestVM_HostExternIsCallable(t *testing.T) {
	s := source.New("double(21)")
	diags := &source.Diagnostics{}
	p := parser.New(s, diags)
	arena, root := p.Parse()
	prog, scopes := compiler.Compile(arena, root, diags, []string{"double"})
	if diags.Len() != 0 {
		t.Fatalf("unexpected diagnostics: %v", diags.Items())
	}
	doubled := func(ctx *ExternCtx) {
		arg := ctx.Arg(0)
		if arg.Tag != TagInt {
			ctx.Reject("double: expected an int")
			return
		}
		ctx.Resolve(intCell(arg.I * 2))
	}
	instance := New(prog, scopes, p.Tokens(), diags, WithExterns(map[string]ExternFunc{"double": doubled}))
	code := instance.Run()
	if diags.Len() != 0 {
		t.Fatalf("unexpected diagnostics: %v", diags.Items())
	}
	if code != 42 {
		t.Errorf("exit code = %d, want 42", code)
	}
}

func TestVM_UnboundVariableHaltsWithDiagnostic(t *testing.T) {
	code, diags := eval(t, "this_name_is_unbound")
	if code != 1 {
		t.Errorf("exit code = %d, want 1", code)
	}
	if diags.Len() == 0 {
		t.Fatal("expected a diagnostic for the unbound identifier")
	}
}

func TestVM_CallingNonCallableIsRuntimeError(t *testing.T) {
	code, diags := eval(t, "let x = 1; x()")
	if code != 1 {
		t.Errorf("exit code = %d, want 1", code)
	}
	if diags.Len() == 0 {
		t.Fatal("expected a diagnostic for calling a non-callable value")
	}
}

func TestVM_ArrayOutOfRangeIsRuntimeError(t *testing.T) {
	code, diags := eval(t, "let a = [1]; a[5]")
	if code != 1 {
		t.Errorf("exit code = %d, want 1", code)
	}
	if diags.Len() == 0 {
		t.Fatal("expected a diagnostic for the out-of-range index")
	}
}

func TestVM_StackOverflowOnUnboundedRecursion(t *testing.T) {
	src := "let loop = fun(n) loop(n + 1); loop(0)"
	code, diags := eval(t, src, WithMaxCallDepth(64))
	if code != 1 {
		t.Errorf("exit code = %d, want 1", code)
	}
	if diags.Len() == 0 {
		t.Fatal("expected a STACK OVERFLOW diagnostic")
	}
}

// TestVM_EnvAndArrayRecsMatchExpectedShape uses require for its
// multi-field assertions and go-test/deep for the final struct-by-struct
// comparison: a mismatched Cap or Len is otherwise easy to miss scanning a
// %+v dump by eye, and deep.Equal's field-by-field diff names exactly
// which one is wrong.
func TestVM_EnvAndArrayRecsMatchExpectedShape(t *testing.T) {
	s := source.New("let a = [1, 2]; array_len(a)")
	diags := &source.Diagnostics{}
	p := parser.New(s, diags)
	arena, root := p.Parse()
	require.Zero(t, diags.Len(), "unexpected parse diagnostics: %v", diags.Items())

	prog, scopes := compiler.Compile(arena, root, diags, nil)
	require.NotNil(t, prog)

	instance := New(prog, scopes, p.Tokens(), diags)
	code := instance.Run()
	require.Zero(t, diags.Len(), "unexpected diagnostics: %v", diags.Items())
	require.Equal(t, 2, code)

	require.Len(t, instance.envs, 1)
	wantEnv := envRec{Scope: 0, Parent: -1, Base: instance.stackCap, Len: 1}
	if diff := deep.Equal(wantEnv, instance.envs[0]); diff != nil {
		t.Errorf("global env record mismatch: %v", diff)
	}

	require.Len(t, instance.arrays, 1)
	want := arrayRec{Base: instance.arrays[0].Base, Cap: 2, Len: 2}
	if diff := deep.Equal(want, instance.arrays[0]); diff != nil {
		t.Errorf("array record mismatch: %v", diff)
	}
}

func TestVM_SequenceEvaluatesLeftToRight(t *testing.T) {
	code, diags := eval(t, "let log = []; log = array_push(log, 1); log = array_push(log, 2); array_len(log)")
	if diags.Len() != 0 {
		t.Fatalf("unexpected diagnostics: %v", diags.Items())
	}
	if code != 2 {
		t.Errorf("exit code = %d, want 2", code)
	}
}
