package cpp

import (
	"os"
	"slices"
	"strings"
	"testing"

	"gopkg.in/yaml.v3"

	"github.com/raymyers/ralph-cfront/pkg/diag"
)

// ExpandTestSpec is one case of testdata/expand.yaml.
type ExpandTestSpec struct {
	Name   string   `yaml:"name"`
	Input  string   `yaml:"input"`
	Expect string   `yaml:"expect"`
	Diags  []string `yaml:"diags,omitempty"`
	Skip   string   `yaml:"skip,omitempty"`
}

// ExpandTestFile is the structure of testdata/expand.yaml.
type ExpandTestFile struct {
	Tests []ExpandTestSpec `yaml:"tests"`
}

func TestExpand_YAML(t *testing.T) {
	data, err := os.ReadFile("testdata/expand.yaml")
	if err != nil {
		t.Fatalf("reading expand.yaml: %v", err)
	}
	var file ExpandTestFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		t.Fatalf("parsing expand.yaml: %v", err)
	}
	if len(file.Tests) == 0 {
		t.Fatal("no test cases in expand.yaml")
	}

	for _, tc := range file.Tests {
		t.Run(tc.Name, func(t *testing.T) {
			if tc.Skip != "" {
				t.Skip(tc.Skip)
			}
			u := runUnit(t, tc.Input, nil)
			if u.err != nil {
				t.Fatalf("Run: %v", u.err)
			}
			if got := spell(u.toks); got != tc.Expect {
				t.Errorf("output mismatch\n got: %s\nwant: %s", got, tc.Expect)
			}
			if got := codes(u.diags); !slices.Equal(got, tc.Diags) {
				t.Errorf("diagnostics = %v, want %v", got, tc.Diags)
				for _, r := range u.diags.Records() {
					t.Logf("  %s", r)
				}
			}
		})
	}
}

func TestExpand_HideSets(t *testing.T) {
	u := runUnit(t, "#define A B\n#define B A\nA\n", nil)
	if len(u.toks) != 2 {
		t.Fatalf("tokens = %v", u.toks)
	}
	tok := u.toks[0]
	if tok.Text != "A" {
		t.Fatalf("got %v", tok)
	}
	a, _ := u.pp.syms.Lookup("A")
	b, _ := u.pp.syms.Lookup("B")
	hs := tok.HideSet()
	if !hs.Has(a) || !hs.Has(b) || len(hs) != 2 {
		t.Errorf("hide set = %v, want {A, B}", hs)
	}
	if tok.Origin.Depth() != 2 {
		t.Errorf("expansion depth = %d, want 2", tok.Origin.Depth())
	}
}

func TestExpand_InvalidPasteIsOneToken(t *testing.T) {
	src := "#define CAT(a, b) a##b\nCAT(+, /)\n"
	u := runUnit(t, src, nil)
	if len(u.toks) != 2 {
		t.Fatalf("tokens = %v, want one token and EOF", u.toks)
	}
	tok := u.toks[0]
	if tok.Text != "+/" || !tok.Has(Expanded) || tok.Origin == nil || tok.Origin.Macro != "CAT" {
		t.Errorf("token = %v (flags %v, origin %v)", tok, tok.Flags, tok.Origin)
	}
	if want := strings.Index(src, "CAT(+"); int(tok.Span.Start) != want || int(tok.Span.End) != len(src)-1 {
		t.Errorf("span = %v, want the invocation", tok.Span)
	}
	recs := u.diags.Records()
	if len(recs) != 1 || recs[0].Code != diag.InvalidPaste || recs[0].Expansion == nil {
		t.Errorf("diagnostics = %v", recs)
	}
}

func TestExpand_FunctionHideSetIntersection(t *testing.T) {
	// The closing parenthesis of g's call comes from outside f's
	// expansion, so f is not hidden in the result of g.
	u := runUnit(t, "#define f(x) x g\n#define g(x) x f\nf(1)(2)(3)\n", nil)
	if got := spell(u.toks); got != "1 2 3 g" {
		t.Errorf("got %q", got)
	}
}

func TestExpand_DepthLimit(t *testing.T) {
	const n = maxExpandDepth + 5
	src := "#define id(x) x\n" + strings.Repeat("id(", n) + "1" + strings.Repeat(")", n) + "\n"
	u := runUnit(t, src, nil)
	if u.err != nil {
		t.Fatalf("Run: %v", u.err)
	}
	recs := u.diags.Records()
	if len(recs) == 0 {
		t.Fatal("no diagnostics for over-deep expansion")
	}
	for _, r := range recs {
		if r.Code != diag.ExpansionTooDeep {
			t.Errorf("unexpected diagnostic %s", r)
		}
	}
}

func TestExpand_LookupsSkippedGroups(t *testing.T) {
	src := "#define X 1\n#if 0\nX X X X\n#endif\nX\n"
	u := runUnit(t, src, nil)
	if got := spell(u.toks); got != "1" {
		t.Fatalf("got %q", got)
	}
	// Only the X outside the group is looked up.
	if got := u.pp.Macros().Lookups(); got != 1 {
		t.Errorf("Lookups = %d, want 1", got)
	}
}

func TestStringize(t *testing.T) {
	tests := []struct {
		name string
		src  string
		want string
	}{
		{"identifier", "x", `"x"`},
		{"spacing", "a  +   b", `"a + b"`},
		{"string", `"q"`, `"\"q\""`},
		{"backslash in string", `"a\\b"`, `"\"a\\\\b\""`},
		{"char quote", `'"'`, `"'\"'"`},
		{"backslash outside literal", `\`, `"\"`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			toks := lexLine(testSymbols(), tt.src, diag.NewList())
			if got := stringize(toks).Text; got != tt.want {
				t.Errorf("stringize(%s) = %s, want %s", tt.src, got, tt.want)
			}
		})
	}
}
