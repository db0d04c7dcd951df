package negi

import (
	"strings"
	"testing"

	"github.com/negilang/negi/pkg/vm"
)

// TestEval_Scenarios reproduces the four concrete end-to-end scenarios
// that run a program (1, 5, 6 and 7) verbatim; the parse-dump scenarios
// live in pkg/parser's tests.
func TestEval_Scenarios(t *testing.T) {
	t.Run("scenario 1: compound assignment exit code", func(t *testing.T) {
		code, diags := Eval("let a = 2; a += 1; a *= 14; a")
		if code != 42 {
			t.Errorf("exit code = %d, want 42", code)
		}
		if diags != "" {
			t.Errorf("diagnostics = %q, want empty", diags)
		}
	})

	t.Run("scenario 5: array primitives", func(t *testing.T) {
		code, diags := Eval("let a = []; array_push(a, 1); array_push(a, 2); array_len(a)")
		if code != 2 {
			t.Errorf("exit code = %d, want 2", code)
		}
		if diags != "" {
			t.Errorf("diagnostics = %q, want empty", diags)
		}
	})

	t.Run("scenario 6: function call", func(t *testing.T) {
		code, diags := Eval("let f = fun(x) x + 1; f(41)")
		if code != 42 {
			t.Errorf("exit code = %d, want 42", code)
		}
		if diags != "" {
			t.Errorf("diagnostics = %q, want empty", diags)
		}
	})

	t.Run("scenario 7: break outside loop", func(t *testing.T) {
		code, diags := Eval("break")
		if code != 1 {
			t.Errorf("exit code = %d, want 1", code)
		}
		if !strings.Contains(diags, "ループの外側では break を使用できません") {
			t.Errorf("diagnostics %q missing the break-outside-loop message", diags)
		}
	})
}

func TestEval_HostExterns(t *testing.T) {
	square := func(ctx *vm.ExternCtx) {
		arg := ctx.Arg(0)
		if arg.Tag != vm.TagInt {
			ctx.Reject("square: expected an int")
			return
		}
		ctx.Resolve(vm.Cell{Tag: vm.TagInt, I: arg.I * arg.I})
	}
	code, diags := Eval("square(6)", WithExterns(map[string]vm.ExternFunc{"square": square}))
	if diags != "" {
		t.Fatalf("unexpected diagnostics: %q", diags)
	}
	if code != 36 {
		t.Errorf("exit code = %d, want 36", code)
	}
}

func TestEval_DiagnosticsMakeExitCodeNonZero(t *testing.T) {
	code, diags := Eval("this_is_unbound")
	if code != 1 {
		t.Errorf("exit code = %d, want 1", code)
	}
	if diags == "" {
		t.Error("expected diagnostics text for an unbound identifier")
	}
	if !strings.Contains(diags, "near") {
		t.Errorf("diagnostics %q do not look like the expected format", diags)
	}
}

// TestEval_SyntaxErrorReportsOnce locks in that a reachable syntax error
// produces exactly one diagnostic line, not two: the parser's own message
// at parse time, and a second generic one when the compiled OpErr for that
// node executes.
func TestEval_SyntaxErrorReportsOnce(t *testing.T) {
	code, diags := Eval(")")
	if code != 1 {
		t.Errorf("exit code = %d, want 1", code)
	}
	if n := strings.Count(diags, "near"); n != 1 {
		t.Errorf("diagnostics %q contain %d error lines, want 1", diags, n)
	}
	if strings.Contains(diags, "invalid syntax") {
		t.Errorf("diagnostics %q still carry the generic placeholder message", diags)
	}
}

func TestEval_EmptySourceExitsZero(t *testing.T) {
	code, diags := Eval("")
	if code != 0 {
		t.Errorf("exit code = %d, want 0", code)
	}
	if diags != "" {
		t.Errorf("diagnostics = %q, want empty", diags)
	}
}

func TestEval_IndependentAcrossCalls(t *testing.T) {
	// Two evaluations sharing no state: a variable from one must not leak
	// into the other.
	_, _ = Eval("let shared = 99")
	code, diags := Eval("shared")
	if diags == "" {
		t.Fatal("expected an unbound-variable diagnostic; global state leaked across Eval calls")
	}
	if code != 1 {
		t.Errorf("exit code = %d, want 1", code)
	}
}
