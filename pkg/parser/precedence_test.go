package parser

import "testing"

// TestPrecedence covers the full ladder (set < ternary < cmp < add < mul <
// prefix < suffix) with one case per adjacent pair.
func TestPrecedence(t *testing.T) {
	tests := []struct {
		name string
		src  string
		want string
	}{
		{"mul_over_add", "1 + 2 * 3", "(+ 1 (* 2 3))"},
		{"add_left_assoc", "1 - 2 - 3", "(- (- 1 2) 3)"},
		{"mul_left_assoc", "1 / 2 / 3", "(/ (/ 1 2) 3)"},
		{"cmp_over_add", "1 + 2 < 3 * 4", "(< (+ 1 2) (* 3 4))"},
		{"cmp_left_assoc_chain", "1 < 2 < 3", "(< (< 1 2) 3)"},
		{"ternary_over_set", "x = a ? 1 : 2", "(= x (if a 1 2))"},
		{"cmp_over_ternary", "a < b ? 1 : 2", "(if (< a b) 1 2)"},
		{"set_right_assoc", "x = y = 1", "(= x (= y 1))"},
		{"prefix_over_mul", "-1 * 2", "(* (- 0 1) 2)"},
		{"suffix_over_prefix", "-f(x)", "(- 0 (paren f x))"},
		{"suffix_over_prefix_index", "-a[0]", "(- 0 (bracket a 0))"},
		{"suffix_chains", "a[0](1)[2]", "(bracket (paren (bracket a 0) 1) 2)"},
		{"paren_group_overrides", "(1 + 2) * 3", "(* (+ 1 2) 3)"},
		{"ternary_right_assoc", "a ? b ? 1 : 2 : 3", "(if a (if b 1 2) 3)"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, diags := parse(t, tt.src)
			if diags.Len() != 0 {
				t.Fatalf("unexpected diagnostics: %v", diags.Items())
			}
			want := wrap(tt.want)
			if got != want {
				t.Errorf("%s: got %q, want %q", tt.src, got, want)
			}
		})
	}
}

func TestPrecedence_CompoundOperators(t *testing.T) {
	tests := []struct {
		src  string
		want string
	}{
		{"x -= 1", "(-= x 1)"},
		{"x *= 2", "(*= x 2)"},
		{"x /= 2", "(/= x 2)"},
		{"x %= 2", "(%= x 2)"},
	}
	for _, tt := range tests {
		got, diags := parse(t, tt.src)
		if diags.Len() != 0 {
			t.Fatalf("unexpected diagnostics: %v", diags.Items())
		}
		want := wrap(tt.want)
		if got != want {
			t.Errorf("%s: got %q, want %q", tt.src, got, want)
		}
	}
}

func TestPrecedence_AllComparisonOperators(t *testing.T) {
	ops := []string{"==", "!=", "<", "<=", ">", ">="}
	for _, op := range ops {
		src := "a " + op + " b"
		want := wrap("(" + op + " a b)")
		got, diags := parse(t, src)
		if diags.Len() != 0 {
			t.Fatalf("unexpected diagnostics: %v", diags.Items())
		}
		if got != want {
			t.Errorf("%s: got %q, want %q", src, got, want)
		}
	}
}
