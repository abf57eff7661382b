// Package cpp implements the C lexer and preprocessor: translation phases
// 3 and 4 for one translation unit at a time.
package cpp

import (
	"strings"

	"github.com/raymyers/ralph-cfront/pkg/source"
	"github.com/raymyers/ralph-cfront/pkg/symbol"
)

// TokenKind is the kind of a token.
type TokenKind uint8

const (
	TokenEOF TokenKind = iota
	TokenIdent
	TokenKeyword
	TokenInt
	TokenFloat
	TokenString
	TokenChar
	TokenPunct

	// Preprocessing-only kinds. They never leave the preprocessor.
	TokenNumber     // pp-number
	TokenHeaderName // <file> or "file" after #include
	TokenOther      // a character that is not part of any other token
)

var tokenKindNames = [...]string{
	TokenEOF:        "EOF",
	TokenIdent:      "IDENT",
	TokenKeyword:    "KEYWORD",
	TokenInt:        "INT",
	TokenFloat:      "FLOAT",
	TokenString:     "STRING",
	TokenChar:       "CHAR",
	TokenPunct:      "PUNCT",
	TokenNumber:     "NUMBER",
	TokenHeaderName: "HEADER_NAME",
	TokenOther:      "OTHER",
}

func (k TokenKind) String() string {
	if int(k) < len(tokenKindNames) {
		return tokenKindNames[k]
	}
	return "UNKNOWN"
}

// Flags carry layout and provenance bits of a token.
type Flags uint8

const (
	BOL      Flags = 1 << iota // first token of a logical line
	Space                      // preceded by white space or a comment
	Expanded                   // produced by macro expansion
)

// Encoding is the prefix of a string or character literal.
type Encoding uint8

const (
	EncNone  Encoding = iota
	EncUTF8           // u8
	EncUTF16          // u
	EncUTF32          // U
	EncWide           // L
)

func (e Encoding) String() string {
	switch e {
	case EncUTF8:
		return "u8"
	case EncUTF16:
		return "u"
	case EncUTF32:
		return "U"
	case EncWide:
		return "L"
	default:
		return ""
	}
}

// Token is an immutable lexical token. Text is the token's spelling; for
// identifiers it is the NFC-normalized spelling of Sym.
type Token struct {
	Kind    TokenKind
	Flags   Flags
	Enc     Encoding
	Keyword Keyword
	Sym     symbol.Symbol
	Text    string
	Span    source.Span
	Origin  *source.Expansion // non-nil for tokens produced by macro expansion

	hide HideSet
}

var digraphs = map[string]string{
	"<:":   "[",
	":>":   "]",
	"<%":   "{",
	"%>":   "}",
	"%:":   "#",
	"%:%:": "##",
}

// Op returns the canonical spelling of a punctuator, mapping digraphs to
// the token they stand for. Other kinds return Text.
func (t Token) Op() string {
	if t.Kind == TokenPunct && len(t.Text) >= 2 {
		if s, ok := digraphs[t.Text]; ok {
			return s
		}
	}
	return t.Text
}

// Is reports whether t is the punctuator op.
func (t Token) Is(op string) bool {
	return t.Kind == TokenPunct && t.Op() == op
}

// HideSet returns the macros that may not expand this token.
func (t Token) HideSet() HideSet { return t.hide }

// Has reports whether all bits of f are set.
func (t Token) Has(f Flags) bool { return t.Flags&f == f }

func (t Token) isDirectiveStart() bool {
	return t.Flags&BOL != 0 && t.Flags&Expanded == 0 && t.Is("#")
}

func (t Token) String() string {
	if t.Kind == TokenEOF {
		return "EOF"
	}
	return t.Kind.String() + "(" + t.Text + ")"
}

// TokensToString converts tokens back to source text, inserting a newline
// before tokens that start a line and a space before spaced tokens.
func TokensToString(tokens []Token) string {
	var sb strings.Builder
	for i, tok := range tokens {
		if tok.Kind == TokenEOF {
			break
		}
		if i > 0 {
			switch {
			case tok.Flags&BOL != 0:
				sb.WriteByte('\n')
			case tok.Flags&Space != 0:
				sb.WriteByte(' ')
			}
		}
		sb.WriteString(tok.Text)
	}
	return sb.String()
}
