package cpp

import (
	"slices"

	"github.com/raymyers/ralph-cfront/pkg/symbol"
)

// HideSet is an immutable sorted set of macro names. Operations return new
// sets and never modify their operands, so tokens may share them freely.
type HideSet []symbol.Symbol

// Has reports whether sym is in h.
func (h HideSet) Has(sym symbol.Symbol) bool {
	_, ok := slices.BinarySearch(h, sym)
	return ok
}

// Add returns h ∪ {sym}.
func (h HideSet) Add(sym symbol.Symbol) HideSet {
	i, ok := slices.BinarySearch(h, sym)
	if ok {
		return h
	}
	out := make(HideSet, 0, len(h)+1)
	out = append(out, h[:i]...)
	out = append(out, sym)
	return append(out, h[i:]...)
}

// Union returns h ∪ o.
func (h HideSet) Union(o HideSet) HideSet {
	switch {
	case len(o) == 0:
		return h
	case len(h) == 0:
		return o
	}
	out := make(HideSet, 0, len(h)+len(o))
	i, j := 0, 0
	for i < len(h) && j < len(o) {
		switch {
		case h[i] < o[j]:
			out = append(out, h[i])
			i++
		case h[i] > o[j]:
			out = append(out, o[j])
			j++
		default:
			out = append(out, h[i])
			i++
			j++
		}
	}
	out = append(out, h[i:]...)
	return append(out, o[j:]...)
}

// Intersect returns h ∩ o.
func (h HideSet) Intersect(o HideSet) HideSet {
	var out HideSet
	i, j := 0, 0
	for i < len(h) && j < len(o) {
		switch {
		case h[i] < o[j]:
			i++
		case h[i] > o[j]:
			j++
		default:
			out = append(out, h[i])
			i++
			j++
		}
	}
	return out
}
