package source

import (
	"errors"
	"math"

	"modernc.org/token"
)

// ErrTooLarge is returned for files whose offsets do not fit a Span.
var ErrTooLarge = errors.New("source file too large")

// BufferOptions configures the translation phases applied by NewBuffer.
type BufferOptions struct {
	Trigraphs bool // replace ??x trigraph sequences
}

// trigraphs maps the third character of a ??x sequence to its replacement.
var trigraphs = [256]byte{
	'=':  '#',
	'(':  '[',
	'/':  '\\',
	')':  ']',
	'\'': '^',
	'<':  '{',
	'!':  '|',
	'>':  '}',
	'-':  '~',
}

// Buffer is an immutable view of one file after trigraph replacement and
// line splicing, plus an index from logical positions back to raw bytes
// and from raw bytes to lines.
//
// A Buffer is owned by the preprocessor processing its translation unit.
// The line table may be annotated by #line directives; the bytes never
// change.
type Buffer struct {
	id   FileID
	name string
	raw  []byte
	text []byte
	offs []uint32 // offs[i] is the raw offset of text[i]; offs[len(text)] == len(raw)
	file *token.File
}

// NewBuffer builds the logical view of data.
func NewBuffer(id FileID, name string, data []byte, opts BufferOptions) (*Buffer, error) {
	if len(data) >= math.MaxUint32 {
		return nil, ErrTooLarge
	}

	b := &Buffer{id: id, name: name, raw: data}
	b.file = token.NewFile(name, len(data))
	b.file.SetLinesForContent(data)

	start := 0
	if len(data) >= 3 && data[0] == 0xEF && data[1] == 0xBB && data[2] == 0xBF {
		start = 3
	}

	// Phase 1: trigraphs.
	t1 := make([]byte, 0, len(data)-start)
	o1 := make([]uint32, 0, len(data)-start)
	for i := start; i < len(data); i++ {
		c := data[i]
		if opts.Trigraphs && c == '?' && i+2 < len(data) && data[i+1] == '?' {
			if r := trigraphs[data[i+2]]; r != 0 {
				t1 = append(t1, r)
				o1 = append(o1, uint32(i))
				i += 2
				continue
			}
		}
		t1 = append(t1, c)
		o1 = append(o1, uint32(i))
	}

	// Phase 2: line splices.
	b.text = make([]byte, 0, len(t1))
	b.offs = make([]uint32, 0, len(t1)+1)
	for i := 0; i < len(t1); i++ {
		if t1[i] == '\\' {
			if i+1 < len(t1) && t1[i+1] == '\n' {
				i++
				continue
			}
			if i+2 < len(t1) && t1[i+1] == '\r' && t1[i+2] == '\n' {
				i += 2
				continue
			}
		}
		b.text = append(b.text, t1[i])
		b.offs = append(b.offs, o1[i])
	}
	b.offs = append(b.offs, uint32(len(data)))
	return b, nil
}

// ID returns the file identifier.
func (b *Buffer) ID() FileID { return b.id }

// Name returns the file name given to NewBuffer.
func (b *Buffer) Name() string { return b.name }

// Raw returns the original bytes. Callers must not modify them.
func (b *Buffer) Raw() []byte { return b.raw }

// Text returns the logical bytes. Callers must not modify them.
func (b *Buffer) Text() []byte { return b.text }

// Len returns the number of logical bytes.
func (b *Buffer) Len() int { return len(b.text) }

// RawOffset returns the raw offset of logical position i.
func (b *Buffer) RawOffset(i int) uint32 { return b.offs[i] }

// width returns how many raw bytes logical byte i was produced from.
func (b *Buffer) width(i int) uint32 {
	if b.text[i] != b.raw[b.offs[i]] {
		return 3 // trigraph
	}
	return 1
}

// Span converts the logical range [lo, hi) to a raw byte span. A range that
// crosses a line splice covers the splice and both physical lines.
func (b *Buffer) Span(lo, hi int) Span {
	start := b.offs[lo]
	end := start
	if hi > lo {
		end = b.offs[hi-1] + b.width(hi-1)
	}
	return Span{File: b.id, Start: start, End: end}
}

// RawText returns the raw bytes covered by s, which must belong to b.
func (b *Buffer) RawText(s Span) []byte {
	return b.raw[s.Start:s.End]
}

// Position returns the physical line and column of a raw offset.
func (b *Buffer) Position(offset uint32) token.Position {
	return b.file.PositionFor(b.file.Pos(int(offset)), false)
}

// AdjustedPosition is Position after #line remapping.
func (b *Buffer) AdjustedPosition(offset uint32) token.Position {
	return b.file.PositionFor(b.file.Pos(int(offset)), true)
}

// AddLineInfo records that the physical line starting at raw offset begins
// line `line` of `filename`, as requested by a #line directive. Offsets
// must increase between calls; out of order requests are ignored by the
// line table.
func (b *Buffer) AddLineInfo(offset uint32, filename string, line int) {
	b.file.AddLineInfo(int(offset), filename, line)
}
