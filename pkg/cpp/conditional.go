// Conditional compilation for the C preprocessor.
package cpp

import (
	"github.com/raymyers/ralph-cfront/pkg/diag"
	"github.com/raymyers/ralph-cfront/pkg/source"
)

// condFrame is one open #if group on a file's conditional stack.
type condFrame struct {
	directive    string // "if", "ifdef" or "ifndef", for diagnostics
	span         source.Span
	parentActive bool // the enclosing group is being processed
	taken        bool // the current branch is being processed
	anyTaken     bool // some branch of this group has been taken
	seenElse     bool
}

// active reports whether tokens are currently being processed rather
// than skipped.
func (p *Preprocessor) active() bool {
	if len(p.frames) == 0 {
		return true
	}
	f := p.top()
	if len(f.conds) == 0 {
		return true
	}
	c := f.conds[len(f.conds)-1]
	return c.parentActive && c.taken
}

// syncQuiet silences lexical diagnostics inside skipped groups.
func (p *Preprocessor) syncQuiet() {
	p.top().lex.SetQuiet(!p.active())
}

// conditional handles #if, #ifdef, #ifndef, #elif, #elifdef, #elifndef,
// #else and #endif. It reports false for other directive names.
func (p *Preprocessor) conditional(name Token) bool {
	switch name.Text {
	case "if", "ifdef", "ifndef":
		p.condIf(name)
	case "elif", "elifdef", "elifndef":
		p.condElif(name)
	case "else":
		p.condElse(name)
	case "endif":
		p.condEndif(name)
	default:
		return false
	}
	p.syncQuiet()
	return true
}

func (p *Preprocessor) condIf(name Token) {
	f := p.top()
	c := condFrame{directive: name.Text, span: name.Span, parentActive: p.active()}
	if !c.parentActive {
		// Nested inside a skipped group: not evaluated.
		p.skipLine()
		f.conds = append(f.conds, c)
		return
	}

	switch name.Text {
	case "if":
		c.taken = p.evalLine(name)
	default:
		tok, ok := p.macroNameLine(name)
		if ok {
			c.taken = p.macros.IsDefined(tok.Sym) == (name.Text == "ifdef")
			if name.Text == "ifndef" && f.guard.state == guardStart && len(f.conds) == 0 {
				f.guard.state = guardOpen
				f.guard.name = tok
			}
		}
	}
	c.anyTaken = c.taken
	f.conds = append(f.conds, c)
}

func (p *Preprocessor) condElif(name Token) {
	f := p.top()
	if len(f.conds) == 0 {
		p.errorf(name, diag.ConditionalWithoutIf, name.Text)
		p.skipLine()
		return
	}
	c := &f.conds[len(f.conds)-1]
	if c.seenElse && c.parentActive {
		p.errorf(name, diag.ConditionalAfterElse, name.Text)
	}
	if !c.parentActive || c.anyTaken || c.seenElse {
		c.taken = false
		p.skipLine()
		return
	}
	switch name.Text {
	case "elif":
		c.taken = p.evalLine(name)
	default:
		if tok, ok := p.macroNameLine(name); ok {
			c.taken = p.macros.IsDefined(tok.Sym) == (name.Text == "elifdef")
		}
	}
	c.anyTaken = c.taken
}

func (p *Preprocessor) condElse(name Token) {
	f := p.top()
	if len(f.conds) == 0 {
		p.errorf(name, diag.ConditionalWithoutIf, name.Text)
		p.skipLine()
		return
	}
	c := &f.conds[len(f.conds)-1]
	if c.seenElse && c.parentActive {
		p.errorf(name, diag.ConditionalAfterElse, name.Text)
	}
	c.seenElse = true
	c.taken = !c.anyTaken
	c.anyTaken = true
	p.extraTokens(name, c.parentActive)
}

func (p *Preprocessor) condEndif(name Token) {
	f := p.top()
	if len(f.conds) == 0 {
		p.errorf(name, diag.ConditionalWithoutIf, name.Text)
		p.skipLine()
		return
	}
	c := f.conds[len(f.conds)-1]
	f.conds = f.conds[:len(f.conds)-1]
	if len(f.conds) == 0 && f.guard.state == guardOpen {
		f.guard.state = guardClosed
	}
	p.extraTokens(name, c.parentActive)
}

// guardDirective updates include guard tracking before a directive at
// the top level of the current file is processed.
func (p *Preprocessor) guardDirective(name Token) {
	g := &p.top().guard
	depth := len(p.top().conds)
	switch g.state {
	case guardStart:
		if name.Text != "ifndef" || depth != 0 {
			g.state = guardNone
		}
	case guardClosed:
		g.state = guardNone
	case guardOpen:
		if depth == 1 {
			switch name.Text {
			case "elif", "elifdef", "elifndef", "else":
				g.state = guardNone
			}
		}
	}
}

// evalLine reads, expands and evaluates the rest of an #if or #elif line.
func (p *Preprocessor) evalLine(name Token) bool {
	line := p.readLine()
	if len(line) == 0 {
		p.errorf(name, diag.MissingExpression, name.Text)
		return false
	}
	p.evaluating = true
	toks := p.expandAll(&sliceReader{toks: line}, nil)
	p.evaluating = false

	v, overflows, err := evalExpr(toks, p.opts.Std, name.Text)
	for _, span := range overflows {
		p.diags.Warnf(span, diag.IntegerOverflow, name.Text)
	}
	if err != nil {
		if e, ok := err.(*exprError); ok {
			span := e.span
			if !span.IsValid() {
				span = name.Span
			}
			p.diags.Errorf(span, e.code, e.args...)
		}
		return false
	}
	return v.isTrue()
}

// macroNameLine reads the single macro name operand of #ifdef, #ifndef,
// #elifdef, #elifndef and #undef.
func (p *Preprocessor) macroNameLine(name Token) (Token, bool) {
	line := p.readLine()
	if len(line) == 0 {
		p.errorf(name, diag.MacroNameMissing, name.Text)
		return Token{}, false
	}
	tok := line[0]
	if tok.Kind != TokenIdent {
		p.errorf(tok, diag.MacroNameNotIdentifier, tok.Text)
		return Token{}, false
	}
	if len(line) > 1 {
		p.warnf(line[1], diag.ExtraTokens, name.Text)
	}
	return tok, true
}

// readDefined evaluates the operand of the defined operator in #if.
func (p *Preprocessor) readDefined(op Token, in tokenReader) Token {
	if op.Flags&Expanded != 0 {
		p.warnf(op, diag.DefinedFromExpansion)
	}
	result := Token{Kind: TokenNumber, Text: "0", Span: op.Span, Flags: op.Flags & Space}
	tok := in.next(true)
	paren := tok.Is("(")
	if paren {
		tok = in.next(true)
	}
	if tok.Kind != TokenIdent {
		p.errorf(tok, diag.BadExpression, "operator \"defined\" requires an identifier")
		in.unget([]Token{tok})
		return result
	}
	if paren {
		if c := in.next(true); !c.Is(")") {
			p.errorf(c, diag.BadExpression, "missing ')' after \"defined\"")
			in.unget([]Token{c})
		}
	}
	if p.macros.IsDefined(tok.Sym) {
		result.Text = "1"
	}
	return result
}

// isDefinedOp reports whether tok is the defined operator.
func (p *Preprocessor) isDefinedOp(tok Token) bool {
	return p.evaluating && tok.Kind == TokenIdent && tok.Sym == p.ids.defined
}
