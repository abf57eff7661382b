package cpp

import (
	"slices"
	"testing"

	"github.com/raymyers/ralph-cfront/pkg/diag"
	"github.com/raymyers/ralph-cfront/pkg/source"
	"github.com/raymyers/ralph-cfront/pkg/symbol"
)

func testSymbols() *symbol.Table { return symbol.NewTable() }

func lexAll(t *testing.T, input string) ([]Token, *diag.List) {
	t.Helper()
	buf, err := source.NewBuffer(1, "lex.c", []byte(input), source.BufferOptions{Trigraphs: true})
	if err != nil {
		t.Fatalf("NewBuffer: %v", err)
	}
	diags := diag.NewList()
	return NewLexer(buf, testSymbols(), diags).All(), diags
}

func TestLexer_Kinds(t *testing.T) {
	tests := []struct {
		name  string
		input string
		kinds []TokenKind
		texts []string
	}{
		{
			name:  "identifiers and punctuators",
			input: "int x = a->b;",
			kinds: []TokenKind{TokenIdent, TokenIdent, TokenPunct, TokenIdent, TokenPunct, TokenIdent, TokenPunct},
			texts: []string{"int", "x", "=", "a", "->", "b", ";"},
		},
		{
			name:  "pp-numbers",
			input: "0x1F 1.5e+3 .5 1'000 0x1p-2 12ul 1e",
			kinds: []TokenKind{TokenNumber, TokenNumber, TokenNumber, TokenNumber, TokenNumber, TokenNumber, TokenNumber},
			texts: []string{"0x1F", "1.5e+3", ".5", "1'000", "0x1p-2", "12ul", "1e"},
		},
		{
			name:  "longest match",
			input: "a<<=b...c>>d",
			kinds: []TokenKind{TokenIdent, TokenPunct, TokenIdent, TokenPunct, TokenIdent, TokenPunct, TokenIdent},
			texts: []string{"a", "<<=", "b", "...", "c", ">>", "d"},
		},
		{
			name:  "digraphs",
			input: "<: :> <% %> %: %:%:",
			kinds: []TokenKind{TokenPunct, TokenPunct, TokenPunct, TokenPunct, TokenPunct, TokenPunct},
			texts: []string{"<:", ":>", "<%", "%>", "%:", "%:%:"},
		},
		{
			name:  "literals with prefixes",
			input: `"s" L"w" u8"u" u'c' U'd' 'x' L`,
			kinds: []TokenKind{TokenString, TokenString, TokenString, TokenChar, TokenChar, TokenChar, TokenIdent},
			texts: []string{`"s"`, `L"w"`, `u8"u"`, `u'c'`, `U'd'`, `'x'`, "L"},
		},
		{
			name:  "escapes stay in spelling",
			input: `"a\"b" '\''`,
			kinds: []TokenKind{TokenString, TokenChar},
			texts: []string{`"a\"b"`, `'\''`},
		},
		{
			name:  "dollar and utf8 identifiers",
			input: "$x cafe\u0301",
			kinds: []TokenKind{TokenIdent, TokenIdent},
			texts: []string{"$x", "caf\u00e9"},
		},
		{
			name:  "comments are white space",
			input: "a/* x */b // rest\nc",
			kinds: []TokenKind{TokenIdent, TokenIdent, TokenIdent},
			texts: []string{"a", "b", "c"},
		},
		{
			name:  "other characters",
			input: "@ ` \\",
			kinds: []TokenKind{TokenOther, TokenOther, TokenOther},
			texts: []string{"@", "`", "\\"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			toks, diags := lexAll(t, tt.input)
			if diags.Len() != 0 {
				t.Errorf("unexpected diagnostics: %v", diags.Records())
			}
			toks = toks[:len(toks)-1]
			var kinds []TokenKind
			var texts []string
			for _, tok := range toks {
				kinds = append(kinds, tok.Kind)
				texts = append(texts, tok.Text)
			}
			if !slices.Equal(kinds, tt.kinds) {
				t.Errorf("kinds = %v, want %v", kinds, tt.kinds)
			}
			if !slices.Equal(texts, tt.texts) {
				t.Errorf("texts = %q, want %q", texts, tt.texts)
			}
		})
	}
}

func TestLexer_Flags(t *testing.T) {
	toks, _ := lexAll(t, "a b\n  c/**/d\ne")
	want := []Flags{BOL, Space, BOL | Space, Space, BOL, BOL}
	for i, tok := range toks {
		if tok.Flags != want[i] {
			t.Errorf("%v flags = %b, want %b", tok, tok.Flags, want[i])
		}
	}
	if toks[len(toks)-1].Kind != TokenEOF {
		t.Error("last token is not EOF")
	}
}

func TestLexer_MultiLineCommentKeepsLine(t *testing.T) {
	toks, _ := lexAll(t, "a /*\n*/ b")
	if toks[1].Flags&BOL != 0 {
		t.Error("token after multi-line comment marked BOL")
	}
}

func TestLexer_Spans(t *testing.T) {
	input := "ab??=c \\\n de"
	buf, _ := source.NewBuffer(1, "s.c", []byte(input), source.BufferOptions{Trigraphs: true})
	toks := NewLexer(buf, testSymbols(), diag.NewList()).All()
	want := []string{"ab", "??=", "c", "de"}
	for i, w := range want {
		if got := string(buf.RawText(toks[i].Span)); got != w {
			t.Errorf("token %d raw text = %q, want %q", i, got, w)
		}
	}
	// A token spanning a line splice covers the raw bytes.
	buf, _ = source.NewBuffer(1, "s.c", []byte("fo\\\no"), source.BufferOptions{})
	toks = NewLexer(buf, testSymbols(), diag.NewList()).All()
	if toks[0].Text != "foo" || string(buf.RawText(toks[0].Span)) != "fo\\\no" {
		t.Errorf("spliced identifier %q covers %q", toks[0].Text, buf.RawText(toks[0].Span))
	}
}

func TestLexer_Diagnostics(t *testing.T) {
	tests := []struct {
		name  string
		input string
		codes []diag.Code
		texts []string
	}{
		{"unterminated string", "\"abc\nx", []diag.Code{diag.UnterminatedLiteral}, []string{`"abc`, "x"}},
		{"unterminated char", "'a", []diag.Code{diag.UnterminatedLiteral}, []string{"'a"}},
		{"empty char", "''", []diag.Code{diag.EmptyCharConst}, []string{"''"}},
		{"unknown escape", `"\q"`, []diag.Code{diag.InvalidEscape}, []string{`"\q"`}},
		{"hex without digits", `"\xg"`, []diag.Code{diag.HexEscapeNoDigits}, []string{`"\xg"`}},
		{"incomplete ucn", `"\u12"`, []diag.Code{diag.IncompleteUCN}, []string{`"\u12"`}},
		{"invalid utf8", "a \xff b", []diag.Code{diag.InvalidUTF8}, []string{"a", "\xff", "b"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			toks, diags := lexAll(t, tt.input)
			var got []diag.Code
			for _, r := range diags.Records() {
				got = append(got, r.Code)
			}
			if !slices.Equal(got, tt.codes) {
				t.Errorf("codes = %v, want %v", got, tt.codes)
			}
			var texts []string
			for _, tok := range toks[:len(toks)-1] {
				texts = append(texts, tok.Text)
			}
			if !slices.Equal(texts, tt.texts) {
				t.Errorf("texts = %q, want %q", texts, tt.texts)
			}
		})
	}
}

func TestLexer_Quiet(t *testing.T) {
	buf, _ := source.NewBuffer(1, "q.c", []byte("'x"), source.BufferOptions{})
	diags := diag.NewList()
	lex := NewLexer(buf, testSymbols(), diags)
	lex.SetQuiet(true)
	lex.All()
	if diags.Len() != 0 {
		t.Errorf("quiet lexer reported %v", diags.Records())
	}
}

func TestLexer_UnterminatedComment(t *testing.T) {
	toks, diags := lexAll(t, "a /* open")
	if len(toks) != 2 || toks[1].Kind != TokenEOF {
		t.Fatalf("tokens = %v", toks)
	}
	f := diags.Fatal()
	if f == nil || f.Code != diag.UnterminatedComment {
		t.Fatalf("fatal = %v", f)
	}
}

func TestLexer_IdentifierNormalization(t *testing.T) {
	syms := testSymbols()
	lexOne := func(src string) Token {
		buf, _ := source.NewBuffer(1, "n.c", []byte(src), source.BufferOptions{})
		return NewLexer(buf, syms, diag.NewList()).Next()
	}
	composed := lexOne("caf\u00e9")
	decomposed := lexOne("cafe\u0301")
	ucn := lexOne(`caf\u00e9`)
	if composed.Sym != decomposed.Sym || composed.Sym != ucn.Sym {
		t.Errorf("symbols differ: %v %v %v", composed.Sym, decomposed.Sym, ucn.Sym)
	}
	if ucn.Text != "caf\u00e9" {
		t.Errorf("UCN spelling = %q", ucn.Text)
	}
}

func TestLexer_HeaderName(t *testing.T) {
	tests := []struct {
		input string
		want  string
		ok    bool
	}{
		{` <stdio.h>`, "<stdio.h>", true},
		{` "a b.h"`, `"a b.h"`, true},
		{` <unterminated`, "", false},
		{` NAME`, "", false},
	}
	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			buf, _ := source.NewBuffer(1, "h.c", []byte(tt.input), source.BufferOptions{})
			lex := NewLexer(buf, testSymbols(), diag.NewList())
			tok, ok := lex.ScanHeaderName()
			if ok != tt.ok || tok.Text != tt.want {
				t.Errorf("ScanHeaderName = %q, %v", tok.Text, ok)
			}
			if !ok {
				// Nothing was consumed.
				if next := lex.Next(); next.Kind == TokenEOF {
					t.Error("input consumed on failure")
				}
			}
		})
	}
}

func TestIsIdentifier(t *testing.T) {
	for s, want := range map[string]bool{
		"x": true, "_x1": true, "$": true, "1x": false, "": false, "a-b": false, "\u00e9": true,
	} {
		if got := IsIdentifier(s); got != want {
			t.Errorf("IsIdentifier(%q) = %v", s, got)
		}
	}
}

func TestTokensToString(t *testing.T) {
	toks, _ := lexAll(t, "a  b(c)\n  d")
	if got := TokensToString(toks); got != "a b(c)\nd" {
		t.Errorf("TokensToString = %q", got)
	}
}
