// Package source holds the per-file view of translation-unit input:
// file identifiers, byte spans, and the normalized SourceBuffer.
package source

import "fmt"

// FileID identifies a file. It is assigned by the external loader; the zero
// value means "no file" and is used for synthesized text.
type FileID uint32

// NoFile is the FileID of synthesized text.
const NoFile FileID = 0

// Span is a half-open byte range [Start, End) of a file's raw bytes.
type Span struct {
	File  FileID
	Start uint32
	End   uint32
}

// MakeSpan returns the span [start, end) in file. It panics if end < start.
func MakeSpan(file FileID, start, end uint32) Span {
	if end < start {
		panic(fmt.Sprintf("source: inverted span [%d, %d)", start, end))
	}
	return Span{File: file, Start: start, End: end}
}

// IsValid reports whether s refers to a real file.
func (s Span) IsValid() bool { return s.File != NoFile }

// Len returns the length of s in bytes.
func (s Span) Len() int { return int(s.End - s.Start) }

// Cover returns the smallest span containing both s and o. Spans from
// different files cannot be joined; s is returned unchanged in that case.
func (s Span) Cover(o Span) Span {
	if s.File != o.File {
		return s
	}
	r := s
	if o.Start < r.Start {
		r.Start = o.Start
	}
	if o.End > r.End {
		r.End = o.End
	}
	return r
}

// Contains reports whether o lies inside s.
func (s Span) Contains(o Span) bool {
	return s.File == o.File && s.Start <= o.Start && o.End <= s.End
}

func (s Span) String() string {
	return fmt.Sprintf("%d:[%d,%d)", s.File, s.Start, s.End)
}

// Expansion records where a macro-produced token came from: the span of
// the invocation that produced it and the span of the macro definition.
// Parent is the expansion that produced the invoking token, if any.
type Expansion struct {
	Macro      string
	Site       Span
	Definition Span
	Parent     *Expansion
}

// Root returns the outermost expansion in the chain.
func (e *Expansion) Root() *Expansion {
	for e.Parent != nil {
		e = e.Parent
	}
	return e
}

// Depth returns the number of expansions in the chain, counting e.
func (e *Expansion) Depth() int {
	n := 0
	for ; e != nil; e = e.Parent {
		n++
	}
	return n
}
