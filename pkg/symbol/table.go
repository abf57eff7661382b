// Package symbol interns identifier spellings into process-wide handles.
//
// A Table is the only structure in the front end that is shared between
// translation units running on different goroutines. All other state is
// owned by a single preprocessor instance.
package symbol

import (
	"fmt"
	"hash/maphash"
	"sync"
	"unicode/utf8"

	"golang.org/x/text/unicode/norm"
)

// Symbol is an opaque handle for an NFC-normalized identifier spelling.
// The zero value is None and is never returned by Intern.
type Symbol uint32

// None is the invalid Symbol.
const None Symbol = 0

const (
	shardBits  = 6
	shardCount = 1 << shardBits
	shardMask  = shardCount - 1
	maxIndex   = (1 << (32 - shardBits)) - 2
)

type shard struct {
	mu    sync.RWMutex
	ids   map[string]Symbol
	names []string
}

// Table maps spellings to Symbols and back. It is safe for concurrent use.
type Table struct {
	seed   maphash.Seed
	shards [shardCount]shard
}

// NewTable creates an empty symbol table.
func NewTable() *Table {
	t := &Table{seed: maphash.MakeSeed()}
	for i := range t.shards {
		t.shards[i].ids = make(map[string]Symbol)
	}
	return t
}

// Normalize returns the NFC form of s. ASCII input is returned as is.
func Normalize(s string) string {
	if isASCII(s) {
		return s
	}
	if norm.NFC.IsNormalString(s) {
		return s
	}
	return norm.NFC.String(s)
}

func isASCII(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] >= utf8.RuneSelf {
			return false
		}
	}
	return true
}

// Intern returns the Symbol for text, minting one on first sight.
// Spellings that normalize to the same NFC text share a Symbol.
func (t *Table) Intern(text string) Symbol {
	text = Normalize(text)
	idx := maphash.String(t.seed, text) & shardMask
	sh := &t.shards[idx]

	sh.mu.RLock()
	sym, ok := sh.ids[text]
	sh.mu.RUnlock()
	if ok {
		return sym
	}

	sh.mu.Lock()
	defer sh.mu.Unlock()
	// Another goroutine may have inserted it between the two locks.
	if sym, ok := sh.ids[text]; ok {
		return sym
	}
	if len(sh.names) > maxIndex {
		panic(fmt.Sprintf("symbol: shard %d exhausted", idx))
	}
	sh.names = append(sh.names, text)
	sym = Symbol(uint32(len(sh.names))<<shardBits | uint32(idx))
	sh.ids[text] = sym
	return sym
}

// InternBytes is Intern for a byte slice.
func (t *Table) InternBytes(b []byte) Symbol {
	return t.Intern(string(b))
}

// Lookup returns the Symbol for text without minting a new one.
func (t *Table) Lookup(text string) (Symbol, bool) {
	text = Normalize(text)
	sh := &t.shards[maphash.String(t.seed, text)&shardMask]
	sh.mu.RLock()
	sym, ok := sh.ids[text]
	sh.mu.RUnlock()
	return sym, ok
}

// Resolve returns the spelling of sym. It panics if sym was not minted by
// this table; such a handle can only come from a programming error.
func (t *Table) Resolve(sym Symbol) string {
	if sym == None {
		panic("symbol: resolve of None")
	}
	sh := &t.shards[uint32(sym)&shardMask]
	i := int(uint32(sym)>>shardBits) - 1

	sh.mu.RLock()
	defer sh.mu.RUnlock()
	if i < 0 || i >= len(sh.names) {
		panic(fmt.Sprintf("symbol: unknown symbol %#x", uint32(sym)))
	}
	return sh.names[i]
}

// Len returns the number of distinct spellings interned so far.
func (t *Table) Len() int {
	n := 0
	for i := range t.shards {
		sh := &t.shards[i]
		sh.mu.RLock()
		n += len(sh.names)
		sh.mu.RUnlock()
	}
	return n
}
