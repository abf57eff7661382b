package cpp

import (
	"slices"
	"testing"

	"github.com/raymyers/ralph-cfront/pkg/symbol"
)

func hs(syms ...symbol.Symbol) HideSet {
	var h HideSet
	for _, s := range syms {
		h = h.Add(s)
	}
	return h
}

func TestHideSet(t *testing.T) {
	tests := []struct {
		name      string
		a, b      HideSet
		union     HideSet
		intersect HideSet
	}{
		{"empty", nil, nil, nil, nil},
		{"left empty", nil, hs(1, 2), hs(1, 2), nil},
		{"right empty", hs(3), nil, hs(3), nil},
		{"disjoint", hs(1, 5), hs(2, 7), hs(1, 2, 5, 7), nil},
		{"overlap", hs(1, 2, 3), hs(2, 3, 4), hs(1, 2, 3, 4), hs(2, 3)},
		{"equal", hs(9, 4), hs(4, 9), hs(4, 9), hs(4, 9)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.a.Union(tt.b); !slices.Equal(got, tt.union) {
				t.Errorf("Union = %v, want %v", got, tt.union)
			}
			if got := tt.a.Intersect(tt.b); !slices.Equal(got, tt.intersect) {
				t.Errorf("Intersect = %v, want %v", got, tt.intersect)
			}
		})
	}
}

func TestHideSet_AddKeepsOperand(t *testing.T) {
	base := hs(2, 6)
	grown := base.Add(4)
	if !slices.Equal(base, HideSet{2, 6}) {
		t.Errorf("Add modified its operand: %v", base)
	}
	if !slices.Equal(grown, HideSet{2, 4, 6}) {
		t.Errorf("Add = %v", grown)
	}
	if again := grown.Add(4); !slices.Equal(again, grown) {
		t.Errorf("adding a member changed the set: %v", again)
	}
	if !grown.Has(4) || grown.Has(5) || HideSet(nil).Has(1) {
		t.Error("Has results wrong")
	}
}
