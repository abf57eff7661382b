package diag

import (
	"fmt"
	"io"

	"github.com/raymyers/ralph-cfront/pkg/source"
)

// Locator maps spans to human-readable positions.
type Locator interface {
	Locate(s source.Span) (file string, line, col int, ok bool)
}

// Render writes r in the conventional "file:line:col: severity: message"
// form, followed by one note per macro expansion level and per attached
// note.
func Render(w io.Writer, r Record, loc Locator) error {
	if err := line(w, loc, r.Span, r.Severity, r.Message()); err != nil {
		return err
	}
	for e := r.Expansion; e != nil; e = e.Parent {
		if err := line(w, loc, e.Site, SeverityNote, InExpansionOf.Format(e.Macro)); err != nil {
			return err
		}
		if e.Definition.IsValid() {
			if err := line(w, loc, e.Definition, SeverityNote, MacroDefinedHere.Format(e.Macro)); err != nil {
				return err
			}
		}
	}
	for _, n := range r.Notes {
		if err := line(w, loc, n.Span, SeverityNote, n.Message()); err != nil {
			return err
		}
	}
	return nil
}

func line(w io.Writer, loc Locator, s source.Span, sev Severity, msg string) error {
	if loc != nil {
		if file, ln, col, ok := loc.Locate(s); ok {
			_, err := fmt.Fprintf(w, "%s:%d:%d: %s: %s\n", file, ln, col, sev, msg)
			return err
		}
	}
	_, err := fmt.Fprintf(w, "<unknown>: %s: %s\n", sev, msg)
	return err
}
