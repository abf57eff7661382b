// Include handling for the C preprocessor.
package cpp

import (
	"fmt"
	"path"
	"strings"

	"github.com/raymyers/ralph-cfront/pkg/diag"
	"github.com/raymyers/ralph-cfront/pkg/source"
)

// IncludeKind distinguishes between <file> and "file" includes.
type IncludeKind int

const (
	IncludeQuoted IncludeKind = iota // "file" form
	IncludeAngled                    // <file> form
)

func (k IncludeKind) String() string {
	if k == IncludeAngled {
		return "angled"
	}
	return "quoted"
}

// IncludeSpec is the operand of an #include directive.
type IncludeSpec struct {
	Name string
	Kind IncludeKind
	Next bool // #include_next: continue after the directory of the includer
}

// Resolver maps an include request to a file identifier. from is the file
// containing the directive.
type Resolver interface {
	Resolve(spec IncludeSpec, from source.FileID) (source.FileID, bool)
}

// Loader returns the name and contents of a file.
type Loader interface {
	Load(id source.FileID) (name string, data []byte, err error)
}

// Files resolves and loads source files. Implementations must be safe for
// concurrent use by several preprocessors.
type Files interface {
	Resolver
	Loader
}

// DefaultMaxIncludeDepth is the include nesting limit when
// Options.MaxIncludeDepth is zero.
const DefaultMaxIncludeDepth = 200

// IncludeError indicates that an include file was not found or could not
// be entered.
type IncludeError struct {
	Filename string
	Kind     IncludeKind
	Stack    []string // files open at the #include, outermost first
	Err      error
}

func (e *IncludeError) Error() string {
	var sb strings.Builder
	if e.Err != nil {
		fmt.Fprintf(&sb, "#include %s: %v", e.Filename, e.Err)
	} else {
		fmt.Fprintf(&sb, "include file not found: %s (%s)", e.Filename, e.Kind)
	}
	for i, f := range e.Stack {
		sb.WriteString("\n  ")
		sb.WriteString(strings.Repeat("  ", i))
		sb.WriteString(path.Base(f))
	}
	return sb.String()
}

func (e *IncludeError) Unwrap() error { return e.Err }

// frame is one open file on the include stack.
type frame struct {
	buf   *source.Buffer
	lex   *Lexer
	conds []condFrame
	guard includeGuard
}

// guardState tracks whether a file is wrapped in #ifndef G ... #endif with
// nothing outside the group.
type guardState uint8

const (
	guardStart  guardState = iota // nothing significant seen yet
	guardOpen                     // inside the outer #ifndef
	guardClosed                   // matching #endif seen
	guardNone                     // not a guarded file
)

type includeGuard struct {
	state guardState
	name  Token
}

// content records a significant token outside any directive.
func (g *includeGuard) content() {
	if g.state != guardOpen {
		g.state = guardNone
	}
}

// IncludeStack returns the names of the open files, outermost first.
func (p *Preprocessor) IncludeStack() []string {
	names := make([]string, len(p.frames))
	for i, f := range p.frames {
		names[i] = f.buf.Name()
	}
	return names
}

// includeDirective handles #include and #include_next.
func (p *Preprocessor) includeDirective(name Token) {
	spec, at, ok := p.headerName(name)
	if !ok {
		p.errorf(name, diag.BadIncludeSyntax, name.Text)
		return
	}
	if name.Text == "include_next" {
		if len(p.frames) == 1 {
			p.warnf(name, diag.IncludeNextInPrimary)
		} else {
			spec.Next = true
		}
	}

	if depth := len(p.frames); depth >= p.opts.MaxIncludeDepth {
		p.fatal(at, &IncludeError{Filename: spec.Name, Kind: spec.Kind, Stack: p.IncludeStack(), Err: fmt.Errorf("nested too deeply")},
			diag.IncludeTooDeep, depth+1, p.opts.MaxIncludeDepth)
		return
	}

	id, found := p.files.Resolve(spec, p.top().buf.ID())
	if !found {
		p.fatal(at, &IncludeError{Filename: spec.Name, Kind: spec.Kind, Stack: p.IncludeStack()}, diag.IncludeNotFound, spec.Name)
		return
	}
	if p.once[id] {
		return
	}
	if g, ok := p.guards[id]; ok && p.macros.IsDefined(g) {
		return
	}
	p.enter(id, at)
}

// headerName reads the operand of #include: a header name scanned
// directly, or macro-expanded tokens that form one.
func (p *Preprocessor) headerName(name Token) (IncludeSpec, source.Span, bool) {
	if len(p.pending) == 0 {
		if tok, ok := p.top().lex.ScanHeaderName(); ok {
			if rest := p.readLine(); len(rest) > 0 {
				p.warnf(rest[0], diag.ExtraTokens, name.Text)
			}
			return specFromText(tok.Text), tok.Span, true
		}
	}

	line := p.readLine()
	if len(line) == 0 {
		return IncludeSpec{}, name.Span, false
	}
	toks := p.expandAll(&sliceReader{toks: line}, nil)
	at := line[0].Span.Cover(line[len(line)-1].Span)
	if len(toks) == 0 {
		return IncludeSpec{}, at, false
	}
	switch {
	case len(toks) == 1 && toks[0].Kind == TokenString && toks[0].Enc == EncNone:
		return specFromText(toks[0].Text), at, true
	case toks[0].Is("<"):
		var sb strings.Builder
		for i, t := range toks {
			if i > 1 && t.Flags&Space != 0 {
				sb.WriteByte(' ')
			}
			sb.WriteString(t.Text)
			if i > 0 && t.Is(">") {
				return specFromText(sb.String()), at, i == len(toks)-1
			}
		}
	}
	return IncludeSpec{}, at, false
}

func specFromText(text string) IncludeSpec {
	kind := IncludeQuoted
	if text[0] == '<' {
		kind = IncludeAngled
	}
	return IncludeSpec{Name: text[1 : len(text)-1], Kind: kind}
}

// enter pushes file id onto the include stack.
func (p *Preprocessor) enter(id source.FileID, at source.Span) bool {
	name, data, err := p.files.Load(id)
	if err != nil {
		p.fatal(at, &IncludeError{Filename: name, Stack: p.IncludeStack(), Err: err}, diag.IncludeRead, name, err)
		return false
	}
	buf, err := source.NewBuffer(id, name, data, source.BufferOptions{Trigraphs: p.opts.Trigraphs})
	if err != nil {
		p.fatal(at, &IncludeError{Filename: name, Stack: p.IncludeStack(), Err: err}, diag.IncludeRead, name, err)
		return false
	}
	p.buffers[id] = buf
	p.frames = append(p.frames, &frame{buf: buf, lex: NewLexer(buf, p.syms, p.diags)})
	p.log.Debug("enter file", "file", name, "depth", len(p.frames))
	return true
}

// leave pops the innermost file at its end. It reports whether an
// enclosing file remains.
func (p *Preprocessor) leave() bool {
	f := p.top()
	if f.lex.Fatal() {
		p.stop(p.diags.Fatal())
		return false
	}
	for i := len(f.conds) - 1; i >= 0; i-- {
		c := f.conds[i]
		p.diags.Errorf(c.span, diag.UnterminatedConditional, c.directive)
	}
	if f.guard.state == guardClosed {
		p.guards[f.buf.ID()] = f.guard.name.Sym
	}
	p.frames = p.frames[:len(p.frames)-1]
	if len(p.frames) == 0 {
		return false
	}
	p.syncQuiet()
	return true
}

// MemoryFiles is an in-memory Files. Quoted includes are looked up next
// to the including file first, then by the name as given. Add all files
// before handing it to preprocessors.
type MemoryFiles struct {
	names []string
	data  [][]byte
	ids   map[string]source.FileID
}

// NewMemoryFiles creates an empty file set.
func NewMemoryFiles() *MemoryFiles {
	return &MemoryFiles{ids: make(map[string]source.FileID)}
}

// Add registers a file and returns its identifier.
func (m *MemoryFiles) Add(name, content string) source.FileID {
	name = path.Clean(name)
	if id, ok := m.ids[name]; ok {
		m.data[id-1] = []byte(content)
		return id
	}
	m.names = append(m.names, name)
	m.data = append(m.data, []byte(content))
	id := source.FileID(len(m.names))
	m.ids[name] = id
	return id
}

// Resolve implements Resolver.
func (m *MemoryFiles) Resolve(spec IncludeSpec, from source.FileID) (source.FileID, bool) {
	if spec.Next {
		return source.NoFile, false
	}
	if spec.Kind == IncludeQuoted && from != source.NoFile && int(from) <= len(m.names) {
		if id, ok := m.ids[path.Join(path.Dir(m.names[from-1]), spec.Name)]; ok {
			return id, true
		}
	}
	id, ok := m.ids[path.Clean(spec.Name)]
	return id, ok
}

// Load implements Loader.
func (m *MemoryFiles) Load(id source.FileID) (string, []byte, error) {
	if id == source.NoFile || int(id) > len(m.names) {
		return "", nil, fmt.Errorf("unknown file id %d", id)
	}
	return m.names[id-1], m.data[id-1], nil
}
