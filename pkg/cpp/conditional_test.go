package cpp

import (
	"slices"
	"testing"
)

func TestConditional(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
		diags []string
	}{
		{"if true", "#if 1\na\n#else\nb\n#endif\n", "a", nil},
		{"if false", "#if 0\na\n#else\nb\n#endif\n", "b", nil},
		{"elif chain", "#if 0\na\n#elif 1\nb\n#elif 1\nc\n#else\nd\n#endif\n", "b", nil},
		{"ifdef", "#ifdef X\na\n#endif\n#define X\n#ifdef X\nb\n#endif\n", "b", nil},
		{"ifndef", "#ifndef X\na\n#endif\n", "a", nil},
		{"nested in skipped group", "#if 0\n#if 1\na\n#endif\n#else\nb\n#endif\n", "b", nil},
		{"nested taken", "#if 1\n#if 0\na\n#else\nb\n#endif\nc\n#endif\n", "b c", nil},
		{"defined forms", "#define Y\n#if defined(X) || defined Y\na\n#endif\n", "a", nil},
		{"defined via macro", "#define D defined(X)\n#define X\n#if D\na\n#endif\n", "a", []string{"M309"}},
		{"arithmetic", "#if (1 << 3) == 8 && -1 < 0 && 7 / 2 == 3 && 7 % 4 == 3\na\n#endif\n", "a", nil},
		{"unsigned comparison", "#if -1 > 0u\na\n#endif\n", "a", nil},
		{"large literal is unsigned", "#if 18446744073709551615 == -1\na\n#endif\n", "a", nil},
		{"short circuit and", "#if 0 && (1 / 0)\na\n#else\nb\n#endif\n", "b", nil},
		{"short circuit or", "#if 1 || (1 / 0)\na\n#endif\n", "a", nil},
		{"ternary arm", "#if 1 ? 2 : (1 / 0)\na\n#endif\n", "a", nil},
		{"division by zero", "#if 1 / 0\na\n#endif\nb\n", "b", []string{"P224"}},
		{"signed overflow warns", "#if 9223372036854775807 + 1 < 0\na\n#endif\n", "a", []string{"P226"}},
		{"unevaluated overflow is quiet", "#if 0 && 9223372036854775807 * 2\na\n#else\nb\n#endif\n", "b", nil},
		{"char constants", "#if 'A' == 65 && '\\n' == 10 && '\\377' < 0\na\n#endif\n", "a", nil},
		{"undefined identifier is zero", "#if FOO\na\n#else\nb\n#endif\n", "b", nil},
		{"macro value", "#define V 3\n#if V * 2 == 6\na\n#endif\n", "a", nil},
		{"elifdef", "#define Y\n#ifdef X\na\n#elifdef Y\nb\n#endif\n", "b", nil},
		{"elifndef", "#ifdef X\na\n#elifndef X\nb\n#endif\n", "b", nil},
		{"else without if", "#else\nok\n", "ok", []string{"P212"}},
		{"endif without if", "#endif\nok\n", "ok", []string{"P212"}},
		{"elif without if", "#elif 1\nok\n", "ok", []string{"P212"}},
		{"else after else", "#if 1\na\n#else\nb\n#else\nc\n#endif\n", "a", []string{"P213"}},
		{"elif after else", "#if 0\na\n#else\nb\n#elif 1\nc\n#endif\n", "b", []string{"P213"}},
		{"unterminated", "#if 1\na\n", "a", []string{"P214"}},
		{"unterminated nested", "#if 1\n#ifdef X\n", "", []string{"P214", "P214"}},
		{"missing expression", "#if\na\n#endif\n", "", []string{"P216"}},
		{"garbage expression", "#if 1 +\na\n#endif\n", "", []string{"P215"}},
		{"float in expression", "#if 1.0\na\n#endif\n", "", []string{"P215"}},
		{"extra tokens after else", "#if 0\n#else junk\na\n#endif junk\n", "a", []string{"P211", "P211"}},
		{"extra tokens after ifdef", "#ifdef X Y\n#endif\n", "", []string{"P211"}},
		{"ifdef needs a name", "#ifdef\n#endif\n#ifdef 3\n#endif\n", "", []string{"P202", "P225"}},
		{
			name:  "skipped directives are not processed",
			input: "#if 0\n#error no\n#include \"missing.h\"\n#bogus\n#define X 1\n#endif\nX\n",
			want:  "X",
		},
		{"skipped groups are lexically quiet", "#if 0\n' unterminated\n\"also\n#endif\nok\n", "ok", nil},
		{"true in C17 is zero", "#if true\na\n#else\nb\n#endif\n", "b", nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			u := runUnit(t, tt.input, nil)
			if u.err != nil {
				t.Fatalf("Run: %v", u.err)
			}
			if got := spell(u.toks); got != tt.want {
				t.Errorf("output = %q, want %q", got, tt.want)
			}
			if got := codes(u.diags); !slices.Equal(got, tt.diags) {
				t.Errorf("diagnostics = %v, want %v", got, tt.diags)
			}
		})
	}
}

func TestConditional_C23Booleans(t *testing.T) {
	u := runUnitWith(t, "#if true && !false\na\n#endif\n", nil, Options{Std: C23})
	if got := spell(u.toks); got != "a" {
		t.Errorf("output = %q", got)
	}
}

func TestConditional_SkippedGroupsDoNotExpand(t *testing.T) {
	src := "#define F(x) x\n#if 0\nF(1) F(2)\n#elif 0\nF(3)\n#else\n7\n#endif\n"
	u := runUnit(t, src, nil)
	if got := spell(u.toks); got != "7" {
		t.Fatalf("output = %q", got)
	}
	if got := u.pp.Macros().Lookups(); got != 0 {
		t.Errorf("Lookups = %d, want 0", got)
	}
}
