// Directive dispatch for the C preprocessor.
package cpp

import (
	"bytes"
	"strconv"
	"strings"

	"github.com/raymyers/ralph-cfront/pkg/diag"
)

// directive processes the line introduced by hash, a '#' at the start of
// a line.
func (p *Preprocessor) directive(hash Token) {
	p.inDirective = true
	defer func() { p.inDirective = false }()

	if p.lineEnd() {
		// Null directive.
		return
	}
	name := p.readRaw()
	p.guardDirective(name)

	if p.conditional(name) {
		return
	}
	if !p.active() {
		p.skipLine()
		return
	}
	if p.collecting > 0 && name.Text != "define" && name.Text != "undef" {
		p.errorf(name, diag.DirectiveInArguments, name.Text)
		p.skipLine()
		return
	}

	if name.Kind == TokenNumber {
		p.lineDirective(name, true)
		return
	}
	switch name.Text {
	case "define":
		p.defineDirective(name)
	case "undef":
		p.undefDirective(name)
	case "include", "include_next":
		p.includeDirective(name)
	case "line":
		p.lineDirective(name, false)
	case "error":
		p.fatal(name.Span, nil, diag.ErrorDirective, p.message())
	case "warning":
		p.warnf(name, diag.WarningDirective, p.message())
	case "pragma":
		p.pragmaDirective(name, p.readLine())
	case "ident", "sccs":
		p.skipLine()
	default:
		p.errorf(name, diag.UnknownDirective, name.Text)
		p.skipLine()
	}
}

// lineEnd reports whether the directive line has no tokens left.
func (p *Preprocessor) lineEnd() bool {
	if len(p.pending) > 0 {
		t := p.pending[len(p.pending)-1]
		return t.Kind == TokenEOF || t.Flags&BOL != 0
	}
	return p.stopped || len(p.frames) == 0 || p.top().lex.AtLineEnd()
}

// readLine returns the remaining tokens of the current line. The first
// token of the next line is not scanned.
func (p *Preprocessor) readLine() []Token {
	var line []Token
	for !p.lineEnd() {
		line = append(line, p.readRaw())
	}
	return line
}

func (p *Preprocessor) skipLine() {
	for !p.lineEnd() {
		p.readRaw()
	}
}

// extraTokens consumes the rest of the line, warning if it is not empty.
func (p *Preprocessor) extraTokens(name Token, report bool) {
	line := p.readLine()
	if len(line) > 0 && report {
		p.warnf(line[0], diag.ExtraTokens, name.Text)
	}
}

// message returns the rest of the line as text, for #error and #warning.
func (p *Preprocessor) message() string {
	return strings.TrimSpace(TokensToString(p.readLine()))
}

func (p *Preprocessor) defineDirective(name Token) {
	line := p.readLine()
	m := parseDefinition(p.syms, line, name.Span, p.diags)
	if m == nil {
		return
	}
	if prev, ok := p.macros.Define(m); !ok {
		p.diags.Add(diag.Record{
			Severity: diag.Error,
			Code:     diag.MacroRedefined,
			Span:     line[0].Span,
			Args:     []any{m.Text},
			Notes:    []diag.Note{{Span: prev.Span, Code: diag.PreviousDefinition}},
		})
	}
}

func (p *Preprocessor) undefDirective(name Token) {
	tok, ok := p.macroNameLine(name)
	if !ok {
		return
	}
	if tok.Sym == p.ids.defined {
		p.errorf(tok, diag.DefinedAsMacroName)
		return
	}
	p.macros.Undefine(tok.Sym)
}

// lineDirective handles #line and GNU line markers ("# 12 "file" 1 3").
// The line table of the current buffer is updated from the start of the
// next physical line.
func (p *Preprocessor) lineDirective(name Token, marker bool) {
	var toks []Token
	if marker {
		toks = append([]Token{name}, p.readLine()...)
	} else {
		toks = p.expandAll(&sliceReader{toks: p.readLine()}, nil)
	}
	if len(toks) == 0 || toks[0].Kind != TokenNumber {
		p.errorf(name, diag.BadLineNumber, spelling(toks))
		return
	}
	digits := strings.ReplaceAll(toks[0].Text, "'", "")
	n, err := strconv.Atoi(digits)
	if err != nil || n < 0 || strings.IndexFunc(digits, func(r rune) bool { return r < '0' || r > '9' }) >= 0 {
		p.errorf(toks[0], diag.BadLineNumber, toks[0].Text)
		return
	}

	buf := p.top().buf
	end := toks[len(toks)-1].Span.End
	filename := buf.AdjustedPosition(end).Filename
	if len(toks) > 1 {
		if toks[1].Kind != TokenString || toks[1].Enc != EncNone {
			p.errorf(toks[1], diag.BadLineNumber, toks[1].Text)
			return
		}
		filename = unquote(toks[1].Text)
		if !marker && len(toks) > 2 {
			p.warnf(toks[2], diag.ExtraTokens, "line")
		}
	}

	raw := buf.Raw()
	if i := bytes.IndexByte(raw[end:], '\n'); i >= 0 && int(end)+i+1 < len(raw) {
		buf.AddLineInfo(end+uint32(i)+1, filename, n)
	}
}

func spelling(toks []Token) string {
	if len(toks) == 0 {
		return ""
	}
	return toks[0].Text
}

// unquote strips the quotes of a string literal and undoes \" and \\.
func unquote(s string) string {
	s = s[1 : len(s)-1]
	if strings.IndexByte(s, '\\') < 0 {
		return s
	}
	var sb strings.Builder
	for i := 0; i < len(s); i++ {
		if s[i] == '\\' && i+1 < len(s) {
			i++
		}
		sb.WriteByte(s[i])
	}
	return sb.String()
}
