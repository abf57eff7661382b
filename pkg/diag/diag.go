// Package diag holds the structured diagnostics produced while lexing and
// preprocessing a translation unit.
//
// A List belongs to one translation unit and is only touched by the
// goroutine processing it. Records are never modified after Add.
package diag

import (
	"fmt"

	"github.com/raymyers/ralph-cfront/pkg/source"
)

// Severity classifies a diagnostic.
type Severity uint8

const (
	SeverityNote Severity = iota
	Warning
	Error
)

func (s Severity) String() string {
	switch s {
	case SeverityNote:
		return "note"
	case Warning:
		return "warning"
	case Error:
		return "error"
	default:
		return "unknown"
	}
}

// Note is a secondary location attached to a Record.
type Note struct {
	Span source.Span
	Code Code
	Args []any
}

// Message formats the note text.
func (n Note) Message() string { return n.Code.Format(n.Args...) }

// Record is one diagnostic.
type Record struct {
	Severity  Severity
	Code      Code
	Span      source.Span
	Args      []any
	Fatal     bool              // the translation unit stopped here
	Expansion *source.Expansion // set when Span lies inside a macro expansion
	Notes     []Note
}

// Message formats the record text from its code template and arguments.
func (r Record) Message() string { return r.Code.Format(r.Args...) }

func (r Record) String() string {
	return fmt.Sprintf("%s: %s %s: %s", r.Span, r.Severity, r.Code, r.Message())
}

// List is an append-only collection of records for one translation unit.
type List struct {
	records  []Record
	errors   int
	warnings int
	fatal    int // index+1 of the first fatal record
}

// NewList creates an empty list.
func NewList() *List { return &List{} }

// Add appends r.
func (l *List) Add(r Record) {
	if r.Fatal {
		r.Severity = Error
	}
	l.records = append(l.records, r)
	switch r.Severity {
	case Error:
		l.errors++
	case Warning:
		l.warnings++
	}
	if r.Fatal && l.fatal == 0 {
		l.fatal = len(l.records)
	}
}

// Errorf records an error.
func (l *List) Errorf(span source.Span, code Code, args ...any) {
	l.Add(Record{Severity: Error, Code: code, Span: span, Args: args})
}

// Warnf records a warning.
func (l *List) Warnf(span source.Span, code Code, args ...any) {
	l.Add(Record{Severity: Warning, Code: code, Span: span, Args: args})
}

// Notef records a standalone note.
func (l *List) Notef(span source.Span, code Code, args ...any) {
	l.Add(Record{Severity: SeverityNote, Code: code, Span: span, Args: args})
}

// Fatalf records an error that stops the translation unit.
func (l *List) Fatalf(span source.Span, code Code, args ...any) {
	l.Add(Record{Severity: Error, Code: code, Span: span, Args: args, Fatal: true})
}

// Records returns a copy of the records in the order they were added.
func (l *List) Records() []Record {
	out := make([]Record, len(l.records))
	copy(out, l.records)
	return out
}

// Len returns the number of records.
func (l *List) Len() int { return len(l.records) }

// At returns the i-th record.
func (l *List) At(i int) Record { return l.records[i] }

// HasErrors reports whether any error-severity record was added.
func (l *List) HasErrors() bool { return l.errors > 0 }

// ErrorCount returns the number of errors.
func (l *List) ErrorCount() int { return l.errors }

// WarningCount returns the number of warnings.
func (l *List) WarningCount() int { return l.warnings }

// Fatal returns the first fatal record, or nil.
func (l *List) Fatal() *Record {
	if l.fatal == 0 {
		return nil
	}
	r := l.records[l.fatal-1]
	return &r
}

// Merge concatenates lists in argument order. Callers pass lists in a
// stable order (such as file discovery order) so that output does not
// depend on which unit finished first.
func Merge(lists ...*List) []Record {
	n := 0
	for _, l := range lists {
		if l != nil {
			n += len(l.records)
		}
	}
	out := make([]Record, 0, n)
	for _, l := range lists {
		if l != nil {
			out = append(out, l.records...)
		}
	}
	return out
}
