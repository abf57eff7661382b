package symbol

import (
	"fmt"
	"sync"
	"testing"
)

func TestIntern_Idempotent(t *testing.T) {
	tab := NewTable()
	a := tab.Intern("foo")
	b := tab.Intern("foo")
	if a != b {
		t.Errorf("Intern(foo) returned %v then %v", a, b)
	}
	if a == None {
		t.Error("Intern returned None")
	}
	if c := tab.Intern("bar"); c == a {
		t.Errorf("distinct spellings share symbol %v", c)
	}
	if got := tab.Resolve(a); got != "foo" {
		t.Errorf("Resolve = %q, want %q", got, "foo")
	}
}

func TestIntern_NFC(t *testing.T) {
	tab := NewTable()
	composed := "caf\u00e9"    // é as one code point
	decomposed := "cafe\u0301" // e + combining acute
	a := tab.Intern(composed)
	b := tab.Intern(decomposed)
	if a != b {
		t.Fatalf("NFC-equivalent spellings got %v and %v", a, b)
	}
	if got := tab.Resolve(b); got != composed {
		t.Errorf("Resolve = %q, want NFC form %q", got, composed)
	}
}

func TestIntern_Concurrent(t *testing.T) {
	tab := NewTable()
	const workers = 32
	names := make([]string, 200)
	for i := range names {
		names[i] = fmt.Sprintf("ident_%d", i)
	}

	results := make([][]Symbol, workers)
	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			out := make([]Symbol, len(names))
			// Walk in a different order per worker to mix first-sight races.
			for k := range names {
				i := (k*7 + w) % len(names)
				out[i] = tab.Intern(names[i])
			}
			results[w] = out
		}(w)
	}
	wg.Wait()

	for w := 1; w < workers; w++ {
		for i := range names {
			if results[w][i] != results[0][i] {
				t.Fatalf("worker %d saw %v for %q, worker 0 saw %v", w, results[w][i], names[i], results[0][i])
			}
		}
	}
	if got := tab.Len(); got != len(names) {
		t.Errorf("Len = %d, want %d", got, len(names))
	}
	for i, name := range names {
		if got := tab.Resolve(results[0][i]); got != name {
			t.Errorf("Resolve(%v) = %q, want %q", results[0][i], got, name)
		}
	}
}

func TestLookup(t *testing.T) {
	tab := NewTable()
	if _, ok := tab.Lookup("missing"); ok {
		t.Error("Lookup found a spelling that was never interned")
	}
	sym := tab.Intern("present")
	got, ok := tab.Lookup("present")
	if !ok || got != sym {
		t.Errorf("Lookup = %v, %v; want %v, true", got, ok, sym)
	}
}

func TestResolve_PanicsOnForeignSymbol(t *testing.T) {
	tab := NewTable()
	defer func() {
		if recover() == nil {
			t.Error("expected panic for unknown symbol")
		}
	}()
	tab.Resolve(Symbol(12345 << shardBits))
}

func BenchmarkIntern_Parallel(b *testing.B) {
	tab := NewTable()
	names := make([]string, 4096)
	for i := range names {
		names[i] = fmt.Sprintf("n%d", i)
	}
	b.RunParallel(func(pb *testing.PB) {
		i := 0
		for pb.Next() {
			tab.Intern(names[i%len(names)])
			i++
		}
	})
}
