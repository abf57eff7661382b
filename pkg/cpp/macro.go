package cpp

import (
	"fmt"
	"maps"
	"slices"
	"strings"

	"github.com/raymyers/ralph-cfront/pkg/diag"
	"github.com/raymyers/ralph-cfront/pkg/source"
	"github.com/raymyers/ralph-cfront/pkg/symbol"
)

// MacroKind distinguishes object-like, function-like and built-in macros.
type MacroKind uint8

const (
	MacroObject MacroKind = iota
	MacroFunction
	MacroBuiltin
)

type builtinKind uint8

const (
	builtinFile builtinKind = iota + 1
	builtinLine
	builtinCounter
	builtinDate
	builtinTime
)

// Macro is an immutable macro definition. A variadic macro's last
// parameter is __VA_ARGS__ unless it was named (GNU "args...").
type Macro struct {
	Name     symbol.Symbol
	Text     string
	Kind     MacroKind
	Params   []symbol.Symbol
	Variadic bool
	Body     []Token
	Span     source.Span

	builtin builtinKind
}

// paramIndex returns the index of sym in the parameter list, or -1.
func (m *Macro) paramIndex(tok Token) int {
	if m.Kind != MacroFunction || tok.Kind != TokenIdent {
		return -1
	}
	return slices.Index(m.Params, tok.Sym)
}

// identical reports whether m and o are the same definition in the sense
// of C11 6.10.3p2: same parameters and the same body spelling and spacing.
func (m *Macro) identical(o *Macro) bool {
	if m.Kind != o.Kind || m.builtin != o.builtin || m.Variadic != o.Variadic ||
		!slices.Equal(m.Params, o.Params) || len(m.Body) != len(o.Body) {
		return false
	}
	for i, t := range m.Body {
		u := o.Body[i]
		if t.Kind != u.Kind || t.Text != u.Text {
			return false
		}
		if i > 0 && t.Flags&Space != u.Flags&Space {
			return false
		}
	}
	return true
}

// MacroTable maps names to definitions. A table is owned by one
// translation unit; Clone gives each unit its own copy of a shared seed.
type MacroTable struct {
	syms    *symbol.Table
	macros  map[symbol.Symbol]*Macro
	lookups int

	date, time string // spellings of __DATE__ and __TIME__
}

// NewMacroTable creates an empty table.
func NewMacroTable(syms *symbol.Table) *MacroTable {
	return &MacroTable{syms: syms, macros: make(map[symbol.Symbol]*Macro)}
}

// Symbols returns the interner the table's names belong to.
func (mt *MacroTable) Symbols() *symbol.Table { return mt.syms }

// Define installs m. An identical redefinition is accepted silently. An
// incompatible one replaces the old definition and reports ok == false
// together with the previous definition.
func (mt *MacroTable) Define(m *Macro) (prev *Macro, ok bool) {
	if m.Text == "" {
		m.Text = mt.syms.Resolve(m.Name)
	}
	prev, exists := mt.macros[m.Name]
	mt.macros[m.Name] = m
	if exists && !prev.identical(m) {
		return prev, false
	}
	return prev, true
}

// Undefine removes a definition. It reports whether one existed.
func (mt *MacroTable) Undefine(name symbol.Symbol) bool {
	_, ok := mt.macros[name]
	delete(mt.macros, name)
	return ok
}

// Lookup returns the definition of name or nil.
func (mt *MacroTable) Lookup(name symbol.Symbol) *Macro {
	mt.lookups++
	return mt.macros[name]
}

// IsDefined reports whether name is defined. It does not count as a
// lookup for expansion purposes.
func (mt *MacroTable) IsDefined(name symbol.Symbol) bool {
	_, ok := mt.macros[name]
	return ok
}

// Clone returns an independent copy. Macros are immutable and shared.
func (mt *MacroTable) Clone() *MacroTable {
	return &MacroTable{syms: mt.syms, macros: maps.Clone(mt.macros), date: mt.date, time: mt.time}
}

// Len returns the number of definitions.
func (mt *MacroTable) Len() int { return len(mt.macros) }

// Lookups returns how many times Lookup was called.
func (mt *MacroTable) Lookups() int { return mt.lookups }

// Names returns the defined names in sorted order.
func (mt *MacroTable) Names() []string {
	names := make([]string, 0, len(mt.macros))
	for _, m := range mt.macros {
		names = append(names, m.Text)
	}
	slices.Sort(names)
	return names
}

// DefineSimple defines a macro from "NAME" or "NAME(params)" and a body
// given as source text.
func (mt *MacroTable) DefineSimple(name, value string) error {
	diags := diag.NewList()
	line := lexLine(mt.syms, name+" "+value, diags)
	m := parseDefinition(mt.syms, line, source.Span{}, diags)
	if err := firstError(diags); err != nil {
		return fmt.Errorf("-D%s: %w", name, err)
	}
	if m == nil {
		return fmt.Errorf("-D%s: invalid macro definition", name)
	}
	mt.Define(m)
	return nil
}

// ApplyCmdlineDefines applies -D and -U options in order: all defines
// first, then undefines, as cc does.
func (mt *MacroTable) ApplyCmdlineDefines(defines, undefines []string) error {
	for _, def := range defines {
		name, value := def, "1"
		if i := strings.IndexByte(def, '='); i >= 0 {
			name, value = def[:i], def[i+1:]
		}
		if err := mt.DefineSimple(name, value); err != nil {
			return err
		}
	}
	for _, name := range undefines {
		if !IsIdentifier(name) {
			return fmt.Errorf("-U%s: macro names must be identifiers", name)
		}
		mt.Undefine(mt.syms.Intern(name))
	}
	return nil
}

func firstError(diags *diag.List) error {
	for _, r := range diags.Records() {
		if r.Severity == diag.Error {
			return fmt.Errorf("%s", r.Message())
		}
	}
	return nil
}

// lexLine lexes a string that is not part of any file.
func lexLine(syms *symbol.Table, text string, diags *diag.List) []Token {
	buf, err := source.NewBuffer(source.NoFile, "<command line>", []byte(text), source.BufferOptions{})
	if err != nil {
		return nil
	}
	toks := NewLexer(buf, syms, diags).All()
	return toks[:len(toks)-1]
}

// parseDefinition parses the tokens following "#define". It returns nil
// when the definition is rejected; the reason has been reported.
func parseDefinition(syms *symbol.Table, line []Token, at source.Span, diags *diag.List) *Macro {
	if len(line) == 0 {
		diags.Errorf(at, diag.MacroNameMissing, "define")
		return nil
	}
	name := line[0]
	if name.Kind != TokenIdent {
		diags.Errorf(name.Span, diag.MacroNameNotIdentifier, name.Text)
		return nil
	}
	if name.Text == "defined" {
		diags.Errorf(name.Span, diag.DefinedAsMacroName)
		return nil
	}

	m := &Macro{Name: name.Sym, Text: name.Text, Kind: MacroObject, Span: name.Span.Cover(line[len(line)-1].Span)}
	vaArgs := syms.Intern("__VA_ARGS__")
	body := line[1:]

	if len(body) > 0 && body[0].Is("(") && body[0].Flags&Space == 0 {
		m.Kind = MacroFunction
		i, ok := parseParams(m, body, vaArgs, diags)
		if !ok {
			return nil
		}
		body = body[i:]
	} else if len(body) > 0 && body[0].Flags&Space == 0 {
		diags.Warnf(body[0].Span, diag.MissingWhitespace)
	}

	if len(body) > 0 && (body[0].Is("##") || body[len(body)-1].Is("##")) {
		diags.Errorf(body[0].Span.Cover(body[len(body)-1].Span), diag.PasteAtEdge)
		return nil
	}
	for i, t := range body {
		if m.Kind == MacroFunction && t.Is("#") {
			if i+1 >= len(body) || m.paramIndex(body[i+1]) < 0 {
				diags.Errorf(t.Span, diag.HashNotParameter)
				return nil
			}
		}
		if t.Kind == TokenIdent && t.Sym == vaArgs && !(m.Variadic && slices.Contains(m.Params, vaArgs)) {
			diags.Warnf(t.Span, diag.VaArgsOutsideVariadic)
		}
	}

	m.Body = make([]Token, len(body))
	for i, t := range body {
		t.Flags &^= BOL
		if i == 0 {
			t.Flags &^= Space
		}
		m.Body[i] = t
	}
	return m
}

// parseParams parses "(a, b, ...)" at the start of body and returns the
// index just past the closing parenthesis.
func parseParams(m *Macro, body []Token, vaArgs symbol.Symbol, diags *diag.List) (int, bool) {
	i := 1
	if i < len(body) && body[i].Is(")") {
		return i + 1, true
	}
	for i < len(body) {
		t := body[i]
		switch {
		case t.Is("..."):
			m.Variadic = true
			m.Params = append(m.Params, vaArgs)
			i++
		case t.Kind == TokenIdent:
			if t.Sym == vaArgs {
				diags.Errorf(t.Span, diag.VaArgsOutsideVariadic)
				return 0, false
			}
			if slices.Contains(m.Params, t.Sym) {
				diags.Errorf(t.Span, diag.DuplicateParameter, t.Text)
				return 0, false
			}
			m.Params = append(m.Params, t.Sym)
			i++
			if i < len(body) && body[i].Is("...") {
				// GNU named variadic parameter.
				m.Variadic = true
				i++
			}
		default:
			diags.Errorf(t.Span, diag.BadParameterList, t.Text)
			return 0, false
		}

		if i >= len(body) {
			break
		}
		if body[i].Is(")") {
			return i + 1, true
		}
		if m.Variadic {
			diags.Errorf(body[i].Span, diag.VariadicNotLast)
			return 0, false
		}
		if !body[i].Is(",") {
			diags.Errorf(body[i].Span, diag.BadParameterList, body[i].Text)
			return 0, false
		}
		i++
	}
	at := body[len(body)-1].Span
	if m.Variadic {
		diags.Errorf(at, diag.VariadicNotLast)
	} else {
		diags.Errorf(at, diag.BadParameterList, "end of line")
	}
	return 0, false
}
