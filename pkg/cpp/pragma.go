// Pragma handling for the C preprocessor.
package cpp

import (
	"strings"

	"github.com/raymyers/ralph-cfront/pkg/diag"
	"github.com/raymyers/ralph-cfront/pkg/source"
)

// Pragma is a #pragma directive or _Pragma operator left for the
// compiler proper.
type Pragma struct {
	Span   source.Span
	Tokens []Token
	Pos    int // number of tokens Next had returned before the pragma
}

// pragmaDirective handles the tokens following #pragma or the
// destringized operand of _Pragma.
func (p *Preprocessor) pragmaDirective(name Token, line []Token) {
	if len(line) == 0 {
		return
	}
	switch line[0].Text {
	case "once":
		if len(line) > 1 {
			p.warnf(line[1], diag.ExtraTokens, "pragma once")
		}
		p.once[p.top().buf.ID()] = true
		return
	case "push_macro", "pop_macro":
		p.pushPopMacro(line)
		return
	case "STDC":
		return
	}
	span := name.Span.Cover(line[len(line)-1].Span)
	p.pragmas = append(p.pragmas, Pragma{Span: span, Tokens: line, Pos: p.emitted})
}

// pushPopMacro handles #pragma push_macro("X") and pop_macro("X").
func (p *Preprocessor) pushPopMacro(line []Token) {
	op := line[0]
	if len(line) != 4 || !line[1].Is("(") || line[2].Kind != TokenString || line[2].Enc != EncNone || !line[3].Is(")") {
		p.warnf(op, diag.BadPragma, op.Text)
		return
	}
	name := unquote(line[2].Text)
	if !IsIdentifier(name) {
		p.warnf(line[2], diag.BadPragma, op.Text)
		return
	}
	sym := p.syms.Intern(name)
	if op.Text == "push_macro" {
		p.pushed[sym] = append(p.pushed[sym], p.macros.Lookup(sym))
		return
	}
	stack := p.pushed[sym]
	if len(stack) == 0 {
		return
	}
	m := stack[len(stack)-1]
	p.pushed[sym] = stack[:len(stack)-1]
	if m == nil {
		p.macros.Undefine(sym)
		return
	}
	p.macros.Define(m)
}

// pragmaOperator handles _Pragma ( string-literal ) read from in.
func (p *Preprocessor) pragmaOperator(op Token, in tokenReader) {
	lparen := in.next(true)
	if !lparen.Is("(") {
		p.errorf(op, diag.BadPragmaOperator)
		in.unget([]Token{lparen})
		return
	}
	str := in.next(true)
	if str.Kind != TokenString || (str.Enc != EncNone && str.Enc != EncWide) {
		p.errorf(op, diag.BadPragmaOperator)
		in.unget([]Token{str})
		return
	}
	rparen := in.next(true)
	if !rparen.Is(")") {
		p.errorf(op, diag.BadPragmaOperator)
		in.unget([]Token{rparen})
		return
	}

	text := unquote(strings.TrimPrefix(str.Text, "L"))
	at := op.Span.Cover(rparen.Span)
	toks := lexLine(p.syms, text, p.diags)
	for i := range toks {
		toks[i].Span = at
		toks[i].Origin = op.Origin
	}
	p.pragmaDirective(Token{Kind: TokenIdent, Text: "_Pragma", Span: at, Origin: op.Origin}, toks)
}
