// preprocess.go implements the main preprocessor driver.
package cpp

import (
	"errors"
	"io"
	"log/slog"
	"strings"

	"modernc.org/token"

	"github.com/raymyers/ralph-cfront/pkg/diag"
	"github.com/raymyers/ralph-cfront/pkg/source"
	"github.com/raymyers/ralph-cfront/pkg/symbol"
)

// ErrFatal is matched by errors returned when a fatal diagnostic stopped
// a translation unit.
var ErrFatal = errors.New("fatal preprocessing error")

// FatalError carries the fatal diagnostic that stopped a unit and, for
// include failures, the underlying error.
type FatalError struct {
	Record diag.Record
	Err    error
}

func (e *FatalError) Error() string {
	if e.Err != nil {
		return e.Record.Message() + ": " + e.Err.Error()
	}
	return e.Record.Message()
}

func (e *FatalError) Unwrap() []error {
	if e.Err == nil {
		return []error{ErrFatal}
	}
	return []error{ErrFatal, e.Err}
}

// Options configures a Preprocessor.
type Options struct {
	Trigraphs       bool
	MaxIncludeDepth int // zero means DefaultMaxIncludeDepth
	Std             Std
}

// Env holds what a Preprocessor needs from its caller. Macros is owned by
// the preprocessor for the duration of the unit; pass a clone of a shared
// seed. A nil Macros gets the predefined set for Options.Std.
type Env struct {
	Symbols *symbol.Table
	Macros  *MacroTable
	Files   Files
	Options Options
	Logger  *slog.Logger
}

// Preprocessor turns one translation unit into a stream of tokens. It is
// not safe for concurrent use; run one per unit.
type Preprocessor struct {
	syms   *symbol.Table
	macros *MacroTable
	files  Files
	opts   Options
	diags  *diag.List
	log    *slog.Logger

	keywords map[symbol.Symbol]Keyword
	ids      struct{ defined, pragmaOp symbol.Symbol }

	frames  []*frame
	pending []Token // pushback stack, next token last
	buffers map[source.FileID]*source.Buffer
	once    map[source.FileID]bool
	guards  map[source.FileID]symbol.Symbol
	pushed  map[symbol.Symbol][]*Macro
	pragmas []Pragma

	counter     int // __COUNTER__
	emitted     int // tokens returned by Next
	depth       int // argument pre-expansion nesting
	collecting  int // >0 while reading macro arguments
	evaluating  bool
	inDirective bool

	started bool
	stopped bool
	end     Token
	err     *FatalError
}

// NewPreprocessor creates a preprocessor reporting to diags.
func NewPreprocessor(env Env, diags *diag.List) *Preprocessor {
	syms := env.Symbols
	if syms == nil && env.Macros != nil {
		syms = env.Macros.Symbols()
	}
	if syms == nil {
		syms = symbol.NewTable()
	}
	macros := env.Macros
	if macros == nil {
		macros = Predefined(syms, PredefOptions{Std: env.Options.Std})
	}
	opts := env.Options
	if opts.MaxIncludeDepth <= 0 {
		opts.MaxIncludeDepth = DefaultMaxIncludeDepth
	}
	logger := env.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	p := &Preprocessor{
		syms:     syms,
		macros:   macros,
		files:    env.Files,
		opts:     opts,
		diags:    diags,
		log:      logger.With(slog.String("component", "cpp")),
		keywords: keywordTable(syms, opts.Std),
		buffers:  make(map[source.FileID]*source.Buffer),
		once:     make(map[source.FileID]bool),
		guards:   make(map[source.FileID]symbol.Symbol),
		pushed:   make(map[symbol.Symbol][]*Macro),
	}
	p.ids.defined = syms.Intern("defined")
	p.ids.pragmaOp = syms.Intern("_Pragma")
	return p
}

// Macros returns the unit's macro table.
func (p *Preprocessor) Macros() *MacroTable { return p.macros }

// Pragmas returns the pragmas that were not handled by the preprocessor,
// in source order.
func (p *Preprocessor) Pragmas() []Pragma { return p.pragmas }

// Diagnostics returns the list the preprocessor reports to.
func (p *Preprocessor) Diagnostics() *diag.List { return p.diags }

// Start opens the primary file. Tokens are then pulled with Next.
func (p *Preprocessor) Start(file source.FileID) error {
	if p.started {
		return errors.New("cpp: preprocessor already started")
	}
	p.started = true
	if !p.enter(file, source.Span{}) {
		return p.err
	}
	return nil
}

// Run preprocesses file and returns every token including the final EOF.
// The error is a *FatalError when a fatal condition stopped the unit; the
// tokens produced before that point are still returned.
func (p *Preprocessor) Run(file source.FileID) ([]Token, error) {
	if err := p.Start(file); err != nil {
		return []Token{p.end}, err
	}
	var toks []Token
	for {
		t := p.Next()
		toks = append(toks, t)
		if t.Kind == TokenEOF {
			break
		}
	}
	if p.err != nil {
		return toks, p.err
	}
	return toks, nil
}

// Err returns the fatal error that stopped the unit, if any.
func (p *Preprocessor) Err() error {
	if p.err == nil {
		return nil
	}
	return p.err
}

// Next returns the next fully expanded and classified token. After the
// end of the unit, or a fatal error, it keeps returning EOF.
func (p *Preprocessor) Next() Token {
	for {
		tok := p.next(true)
		switch {
		case tok.Kind == TokenEOF:
			if p.stopped || len(p.frames) == 0 {
				return p.end
			}
			p.end = Token{Kind: TokenEOF, Flags: BOL, Span: tok.Span}
			if p.leave() {
				continue
			}
			return p.end
		case tok.Kind == TokenIdent && tok.Sym == p.ids.pragmaOp:
			p.pragmaOperator(tok, p)
			continue
		case tok.Kind == TokenIdent && p.expand(tok, p):
			continue
		}
		p.emitted++
		return p.finish(tok)
	}
}

// readRaw returns the next token without directive processing or
// conditional skipping.
func (p *Preprocessor) readRaw() Token {
	if n := len(p.pending); n > 0 {
		tok := p.pending[n-1]
		p.pending = p.pending[:n-1]
		return tok
	}
	if p.stopped || len(p.frames) == 0 {
		return p.end
	}
	f := p.top()
	tok := f.lex.Next()
	if !p.inDirective && tok.Kind != TokenEOF && !tok.isDirectiveStart() {
		f.guard.content()
	}
	return tok
}

// next implements tokenReader over the include stack. It returns EOF at
// the end of the innermost file without leaving it.
func (p *Preprocessor) next(directives bool) Token {
	for {
		tok := p.readRaw()
		if tok.Kind == TokenEOF {
			return tok
		}
		if tok.isDirectiveStart() {
			if !directives {
				return tok
			}
			p.directive(tok)
			continue
		}
		if !p.active() {
			continue
		}
		return tok
	}
}

func (p *Preprocessor) unget(toks []Token) {
	for i := len(toks) - 1; i >= 0; i-- {
		p.pending = append(p.pending, toks[i])
	}
}

func (p *Preprocessor) top() *frame { return p.frames[len(p.frames)-1] }

// finish classifies a token leaving the preprocessor.
func (p *Preprocessor) finish(tok Token) Token {
	switch tok.Kind {
	case TokenNumber:
		tok.Kind = classifyNumber(tok.Text)
	case TokenIdent:
		if kw, ok := p.keywords[tok.Sym]; ok {
			tok.Kind = TokenKeyword
			tok.Keyword = kw
		}
	case TokenOther:
		p.errorf(tok, diag.StrayCharacter, tok.Text)
		tok.Kind = TokenPunct
	}
	return tok
}

// classifyNumber decides whether a pp-number is an integer or floating
// constant. Malformed numbers are left to the parser.
func classifyNumber(s string) TokenKind {
	lower := strings.ToLower(s)
	if strings.HasPrefix(lower, "0x") {
		if strings.ContainsAny(lower, ".p") {
			return TokenFloat
		}
		return TokenInt
	}
	if strings.ContainsAny(lower, ".e") {
		return TokenFloat
	}
	return TokenInt
}

func (p *Preprocessor) errorf(tok Token, code diag.Code, args ...any) {
	p.diags.Add(diag.Record{Severity: diag.Error, Code: code, Span: tok.Span, Args: args, Expansion: tok.Origin})
}

func (p *Preprocessor) warnf(tok Token, code diag.Code, args ...any) {
	p.diags.Add(diag.Record{Severity: diag.Warning, Code: code, Span: tok.Span, Args: args, Expansion: tok.Origin})
}

// fatal records a fatal diagnostic and stops the unit.
func (p *Preprocessor) fatal(at source.Span, err error, code diag.Code, args ...any) {
	p.diags.Fatalf(at, code, args...)
	p.stop(p.diags.Fatal())
	if p.err != nil && p.err.Err == nil {
		p.err.Err = err
	}
}

// stop ends the unit after the fatal record rec.
func (p *Preprocessor) stop(rec *diag.Record) {
	if p.stopped {
		return
	}
	p.stopped = true
	p.pending = nil
	if rec != nil {
		p.err = &FatalError{Record: *rec}
		p.end = Token{Kind: TokenEOF, Flags: BOL, Span: rec.Span}
	}
	p.log.Debug("unit stopped", "code", string(p.errCode()))
}

func (p *Preprocessor) errCode() diag.Code {
	if p.err == nil {
		return ""
	}
	return p.err.Record.Code
}

// presumed returns the position of span after #line remapping.
func (p *Preprocessor) presumed(span source.Span) token.Position {
	buf, ok := p.buffers[span.File]
	if !ok {
		return token.Position{}
	}
	return buf.AdjustedPosition(span.Start)
}

// Locate implements diag.Locator for the files this preprocessor opened.
func (p *Preprocessor) Locate(s source.Span) (file string, line, col int, ok bool) {
	pos := p.presumed(s)
	if !pos.IsValid() {
		return "", 0, 0, false
	}
	return pos.Filename, pos.Line, pos.Column, true
}
