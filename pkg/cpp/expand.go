// Macro expansion using Prosser's hide-set algorithm.
package cpp

import (
	"strconv"
	"strings"
	"sync"

	"github.com/raymyers/ralph-cfront/pkg/diag"
	"github.com/raymyers/ralph-cfront/pkg/source"
)

// maxExpandDepth bounds the nesting of argument pre-expansion.
const maxExpandDepth = 200

// tokenReader is a token source with pushback. Expansion results are
// pushed back and rescanned together with the rest of the input.
type tokenReader interface {
	// next returns the next token, or EOF at the end of the input. With
	// directives false a directive line is not processed; its '#' is
	// returned instead.
	next(directives bool) Token
	unget(toks []Token)
}

// sliceReader reads a fixed token list, such as a macro argument or a
// directive line.
type sliceReader struct {
	toks    []Token
	pos     int
	pending []Token
}

func (r *sliceReader) next(bool) Token {
	if n := len(r.pending); n > 0 {
		tok := r.pending[n-1]
		r.pending = r.pending[:n-1]
		return tok
	}
	if r.pos < len(r.toks) {
		r.pos++
		return r.toks[r.pos-1]
	}
	return Token{Kind: TokenEOF}
}

func (r *sliceReader) unget(toks []Token) {
	for i := len(toks) - 1; i >= 0; i-- {
		r.pending = append(r.pending, toks[i])
	}
}

var tokenPool = sync.Pool{
	New: func() any {
		s := make([]Token, 0, 32)
		return &s
	},
}

func getTokens() *[]Token {
	s := tokenPool.Get().(*[]Token)
	*s = (*s)[:0]
	return s
}

func putTokens(s *[]Token) {
	clear(*s)
	tokenPool.Put(s)
}

// expand replaces the identifier tok, read from in, by its expansion if
// it names a macro that may expand here. The replacement is pushed back
// onto in. It reports whether tok was consumed.
func (p *Preprocessor) expand(tok Token, in tokenReader) bool {
	if tok.hide.Has(tok.Sym) {
		return false
	}
	m := p.macros.Lookup(tok.Sym)
	if m == nil {
		return false
	}

	switch m.Kind {
	case MacroBuiltin:
		in.unget([]Token{p.builtin(m, tok)})
		return true
	case MacroObject:
		out := p.subst(m, tok, nil, tok.hide.Add(m.Name), tok.Span)
		in.unget(*out)
		putTokens(out)
		return true
	}

	lparen := in.next(false)
	if !lparen.Is("(") {
		in.unget([]Token{lparen})
		return false
	}
	args, rparen, ok := p.collectArgs(m, tok, lparen, in)
	if !ok {
		return false
	}
	// Prosser: (HS ∩ HS') ∪ {T} where HS' belongs to the closing paren.
	hs := tok.hide.Intersect(rparen.hide).Add(m.Name)
	out := p.subst(m, tok, args, hs, tok.Span.Cover(rparen.Span))
	in.unget(*out)
	putTokens(out)
	return true
}

// collectArgs reads the arguments of a function-like macro invocation
// after its '('. On failure the consumed tokens are pushed back.
func (p *Preprocessor) collectArgs(m *Macro, name, lparen Token, in tokenReader) ([][]Token, Token, bool) {
	p.collecting++
	defer func() { p.collecting-- }()

	consumed := []Token{lparen}
	var args [][]Token
	var cur []Token
	depth := 0
	for {
		t := in.next(true)
		if t.Kind == TokenEOF {
			p.errorf(name, diag.UnterminatedArguments, m.Text)
			in.unget(append(consumed, t))
			return nil, Token{}, false
		}
		consumed = append(consumed, t)
		switch {
		case t.Is("("):
			depth++
		case t.Is(")"):
			if depth == 0 {
				args = append(args, cur)
				if args, ok := p.checkArgs(m, name, t, args); ok {
					return args, t, true
				}
				in.unget(consumed)
				return nil, Token{}, false
			}
			depth--
		case t.Is(",") && depth == 0 && !(m.Variadic && len(args) == len(m.Params)-1):
			// Commas inside the variadic argument belong to it.
			args = append(args, cur)
			cur = nil
			continue
		}
		cur = append(cur, t)
	}
}

// checkArgs matches the collected arguments against the parameters.
func (p *Preprocessor) checkArgs(m *Macro, name, rparen Token, args [][]Token) ([][]Token, bool) {
	n := len(m.Params)
	switch {
	case n == 0 && len(args) == 1 && len(args[0]) == 0:
		return nil, true
	case len(args) == n:
		return args, true
	case m.Variadic && len(args) == n-1:
		// The variadic argument may be omitted entirely.
		return append(args, nil), true
	}
	p.diags.Add(diag.Record{
		Severity:  diag.Error,
		Code:      diag.ArgumentCount,
		Span:      name.Span.Cover(rparen.Span),
		Args:      []any{m.Text, n, len(args)},
		Expansion: name.Origin,
	})
	return nil, false
}

// subst builds the replacement list of m for one invocation: parameters
// are replaced by their (pre-expanded, stringized or pasted) arguments and
// every result token gets hide set hs and a provenance record.
func (p *Preprocessor) subst(m *Macro, inv Token, args [][]Token, hs HideSet, site source.Span) *[]Token {
	exp := &source.Expansion{Macro: m.Text, Site: site, Definition: m.Span, Parent: inv.Origin}
	out := getTokens()
	var expanded [][]Token
	var done []bool
	if len(args) > 0 {
		expanded = make([][]Token, len(args))
		done = make([]bool, len(args))
	}

	body := m.Body
	for i := 0; i < len(body); i++ {
		t := body[i]

		if m.Kind == MacroFunction && t.Is("#") {
			// Definitions guarantee a parameter follows.
			i++
			s := stringize(args[m.paramIndex(body[i])])
			s.Span = site
			s.Flags = t.Flags & Space
			*out = append(*out, s)
			continue
		}

		if t.Is("##") {
			i++
			rhs := body[i]
			k := m.paramIndex(rhs)
			if k < 0 {
				*out = p.glue(*out, []Token{bodyToken(rhs, site)}, site, exp)
				continue
			}
			arg := args[k]
			if m.Variadic && k == len(m.Params)-1 && len(*out) > 0 && (*out)[len(*out)-1].Is(",") {
				// GNU: ", ## __VA_ARGS__" drops the comma when the
				// variadic argument is empty and never pastes.
				if len(arg) == 0 {
					*out = (*out)[:len(*out)-1]
				} else {
					*out = appendArg(*out, arg, rhs)
				}
				continue
			}
			if len(arg) > 0 {
				*out = p.glue(*out, arg, site, exp)
			}
			continue
		}

		if k := m.paramIndex(t); k >= 0 {
			arg := args[k]
			if i+1 < len(body) && body[i+1].Is("##") {
				if len(arg) > 0 {
					*out = appendArg(*out, arg, t)
					continue
				}
				// Empty left operand: the right one is placed unpasted.
				i++
				if i+1 < len(body) {
					if k2 := m.paramIndex(body[i+1]); k2 >= 0 {
						i++
						*out = appendArg(*out, args[k2], body[i])
					}
				}
				continue
			}
			if !done[k] {
				expanded[k] = p.expandArg(arg)
				done[k] = true
			}
			*out = appendArg(*out, expanded[k], t)
			continue
		}

		*out = append(*out, bodyToken(t, site))
	}

	for i := range *out {
		t := &(*out)[i]
		t.hide = t.hide.Union(hs)
		t.Flags = t.Flags&^BOL | Expanded
		t.Origin = exp
	}
	if len(*out) > 0 {
		first := &(*out)[0]
		first.Flags = first.Flags&^Space | inv.Flags&(Space|BOL)
	}
	return out
}

func bodyToken(t Token, site source.Span) Token {
	t.Span = site
	return t
}

// appendArg appends argument tokens; the first takes the spacing of the
// parameter it replaces.
func appendArg(out, arg []Token, param Token) []Token {
	for i, t := range arg {
		if t.Flags&BOL != 0 {
			t.Flags = t.Flags&^BOL | Space
		}
		if i == 0 {
			t.Flags = t.Flags&^Space | param.Flags&Space
		}
		out = append(out, t)
	}
	return out
}

// glue pastes the first token of rs onto the last token of out.
func (p *Preprocessor) glue(out, rs []Token, site source.Span, exp *source.Expansion) []Token {
	if len(out) == 0 {
		return append(out, rs...)
	}
	l, r := out[len(out)-1], rs[0]
	t, ok := p.relex(l.Text + r.Text)
	if !ok {
		p.diags.Add(diag.Record{
			Severity:  diag.Error,
			Code:      diag.InvalidPaste,
			Span:      site,
			Args:      []any{l.Text, r.Text},
			Expansion: exp,
		})
		// Keep the pasted spelling as one token.
		t = Token{Kind: TokenPunct, Text: l.Text + r.Text}
	}
	t.Span = site
	t.Flags = l.Flags & Space
	t.hide = l.hide.Union(r.hide)
	out[len(out)-1] = t
	return append(out, rs[1:]...)
}

// relex lexes text and reports whether it forms exactly one token.
func (p *Preprocessor) relex(text string) (Token, bool) {
	buf, err := source.NewBuffer(source.NoFile, "<paste>", []byte(text), source.BufferOptions{})
	if err != nil {
		return Token{}, false
	}
	scratch := diag.NewList()
	lex := NewLexer(buf, p.syms, scratch)
	t := lex.Next()
	if t.Kind == TokenEOF || scratch.Len() > 0 || lex.Next().Kind != TokenEOF {
		return Token{}, false
	}
	t.Flags = 0
	return t, true
}

// stringize implements the # operator. White space between argument
// tokens becomes one space; '"' and '\' are escaped inside string and
// character literals only.
func stringize(arg []Token) Token {
	var sb strings.Builder
	sb.WriteByte('"')
	for i, t := range arg {
		if i > 0 && t.Flags&(Space|BOL) != 0 {
			sb.WriteByte(' ')
		}
		if t.Kind != TokenString && t.Kind != TokenChar {
			sb.WriteString(t.Text)
			continue
		}
		for j := 0; j < len(t.Text); j++ {
			if c := t.Text[j]; c == '"' || c == '\\' {
				sb.WriteByte('\\')
			}
			sb.WriteByte(t.Text[j])
		}
	}
	sb.WriteByte('"')
	return Token{Kind: TokenString, Text: sb.String()}
}

// expandArg fully macro-expands an argument in isolation.
func (p *Preprocessor) expandArg(arg []Token) []Token {
	if len(arg) == 0 {
		return nil
	}
	if p.depth >= maxExpandDepth {
		p.diags.Add(diag.Record{
			Severity:  diag.Error,
			Code:      diag.ExpansionTooDeep,
			Span:      arg[0].Span,
			Args:      []any{maxExpandDepth},
			Expansion: arg[0].Origin,
		})
		return arg
	}
	p.depth++
	defer func() { p.depth-- }()
	return p.expandAll(&sliceReader{toks: arg}, nil)
}

// expandAll expands every token of in and appends the result to out.
func (p *Preprocessor) expandAll(in tokenReader, out []Token) []Token {
	for {
		t := in.next(true)
		if t.Kind == TokenEOF {
			return out
		}
		if p.isDefinedOp(t) {
			out = append(out, p.readDefined(t, in))
			continue
		}
		if t.Kind == TokenIdent && p.expand(t, in) {
			continue
		}
		out = append(out, t)
	}
}

// builtin produces the single token a built-in macro expands to.
func (p *Preprocessor) builtin(m *Macro, tok Token) Token {
	out := Token{
		Span:   tok.Span,
		Flags:  tok.Flags&(Space|BOL) | Expanded,
		Origin: &source.Expansion{Macro: m.Text, Site: tok.Span, Parent: tok.Origin},
		hide:   tok.hide.Add(m.Name),
	}
	switch m.builtin {
	case builtinFile:
		out.Kind, out.Text = TokenString, quoteString(p.presumed(tok.Span).Filename)
	case builtinLine:
		out.Kind, out.Text = TokenNumber, strconv.Itoa(p.presumed(tok.Span).Line)
	case builtinCounter:
		out.Kind, out.Text = TokenNumber, strconv.Itoa(p.counter)
		p.counter++
	case builtinDate:
		out.Kind, out.Text = TokenString, p.macros.date
	case builtinTime:
		out.Kind, out.Text = TokenString, p.macros.time
	}
	return out
}

func quoteString(s string) string {
	var sb strings.Builder
	sb.WriteByte('"')
	for i := 0; i < len(s); i++ {
		if s[i] == '"' || s[i] == '\\' {
			sb.WriteByte('\\')
		}
		sb.WriteByte(s[i])
	}
	sb.WriteByte('"')
	return sb.String()
}
