package hostfs

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"testing"
	"testing/fstest"

	"github.com/raymyers/ralph-cfront/pkg/cpp"
	"github.com/raymyers/ralph-cfront/pkg/diag"
	"github.com/raymyers/ralph-cfront/pkg/source"
)

func tree() fstest.MapFS {
	files := map[string]string{
		"src/main.c":      "main",
		"src/local.h":     "local",
		"src/sub/deep.h":  "deep",
		"src/sub/near.h":  "near",
		"quote/q.h":       "quote",
		"quote/local.h":   "quote-local",
		"inc/a.h":         "user a",
		"inc/near.h":      "user near",
		"inc/wrap.h":      "user wrap",
		"sys/wrap.h":      "sys wrap",
		"sys/stdio.h":     "stdio",
		"sys/dir.h/keep":  "a directory named like a header",
		"sys/only_next.h": "next",
	}
	m := fstest.MapFS{}
	for name, data := range files {
		m[name] = &fstest.MapFile{Data: []byte(data)}
	}
	return m
}

func testFS() *FS {
	return New(tree(), Paths{Quote: []string{"quote"}, User: []string{"inc"}, System: []string{"sys/"}})
}

func TestResolve(t *testing.T) {
	tests := []struct {
		name string
		from string
		spec cpp.IncludeSpec
		want string
	}{
		{"quoted next to includer", "src/main.c", cpp.IncludeSpec{Name: "local.h"}, "src/local.h"},
		{"quoted subdirectory", "src/main.c", cpp.IncludeSpec{Name: "sub/deep.h"}, "src/sub/deep.h"},
		{"quoted falls back to quote dirs", "src/main.c", cpp.IncludeSpec{Name: "q.h"}, "quote/q.h"},
		{"quoted falls back to user dirs", "src/main.c", cpp.IncludeSpec{Name: "a.h"}, "inc/a.h"},
		{"quoted falls back to system dirs", "src/main.c", cpp.IncludeSpec{Name: "stdio.h"}, "sys/stdio.h"},
		{"angled skips includer and quote dirs", "src/main.c", cpp.IncludeSpec{Name: "local.h", Kind: cpp.IncludeAngled}, ""},
		{"angled user before system", "src/main.c", cpp.IncludeSpec{Name: "wrap.h", Kind: cpp.IncludeAngled}, "inc/wrap.h"},
		{"angled system", "src/main.c", cpp.IncludeSpec{Name: "stdio.h", Kind: cpp.IncludeAngled}, "sys/stdio.h"},
		{"directories are not files", "src/main.c", cpp.IncludeSpec{Name: "dir.h", Kind: cpp.IncludeAngled}, ""},
		{"nested includer directory", "src/sub/deep.h", cpp.IncludeSpec{Name: "near.h"}, "src/sub/near.h"},
		{"missing", "src/main.c", cpp.IncludeSpec{Name: "nope.h"}, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := testFS()
			id, ok := f.Resolve(tt.spec, f.Register(tt.from))
			if tt.want == "" {
				if ok {
					name, _ := f.Path(id)
					t.Errorf("resolved to %s, want not found", name)
				}
				return
			}
			if !ok {
				t.Fatalf("%s not found", tt.spec.Name)
			}
			if name, _ := f.Path(id); name != tt.want {
				t.Errorf("resolved to %s, want %s", name, tt.want)
			}
		})
	}
}

func TestResolve_IncludeNext(t *testing.T) {
	f := testFS()
	main := f.Register("src/main.c")

	user, ok := f.Resolve(cpp.IncludeSpec{Name: "wrap.h", Kind: cpp.IncludeAngled}, main)
	if !ok {
		t.Fatal("wrap.h not found")
	}
	next, ok := f.Resolve(cpp.IncludeSpec{Name: "wrap.h", Kind: cpp.IncludeAngled, Next: true}, user)
	if name, _ := f.Path(next); !ok || name != "sys/wrap.h" {
		t.Errorf("include_next from inc/wrap.h = %s, %v", name, ok)
	}
	if _, ok := f.Resolve(cpp.IncludeSpec{Name: "wrap.h", Kind: cpp.IncludeAngled, Next: true}, next); ok {
		t.Error("include_next from the last directory found a file")
	}
	// A file that was not found through the search chain starts over.
	if id, ok := f.Resolve(cpp.IncludeSpec{Name: "only_next.h", Next: true}, main); !ok {
		t.Error("include_next from the primary file found nothing")
	} else if name, _ := f.Path(id); name != "sys/only_next.h" {
		t.Errorf("resolved to %s", name)
	}
}

func TestRegisterAndLoad(t *testing.T) {
	f := testFS()
	a := f.Register("src/main.c")
	if b := f.Register("./src/../src/main.c"); b != a {
		t.Errorf("equivalent paths got %v and %v", a, b)
	}
	name, data, err := f.Load(a)
	if err != nil || name != "src/main.c" || string(data) != "main" {
		t.Errorf("Load = %q, %q, %v", name, data, err)
	}

	if _, _, err := f.Load(source.FileID(99)); !errors.Is(err, fs.ErrNotExist) {
		t.Errorf("Load(unknown) error = %v", err)
	}
	if _, ok := f.Path(source.NoFile); ok {
		t.Error("Path(NoFile) succeeded")
	}
	gone := f.Register("src/vanished.c")
	if _, _, err := f.Load(gone); !errors.Is(err, fs.ErrNotExist) {
		t.Errorf("Load(missing file) error = %v", err)
	}
}

func TestConcurrentResolve(t *testing.T) {
	f := testFS()
	main := f.Register("src/main.c")
	names := []string{"local.h", "q.h", "a.h", "stdio.h", "wrap.h", "sub/deep.h"}

	const workers = 16
	got := make([][]source.FileID, workers)
	var wg sync.WaitGroup
	for w := range workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range names {
				n := names[(i+w)%len(names)]
				id, ok := f.Resolve(cpp.IncludeSpec{Name: n}, main)
				if !ok {
					t.Errorf("%s not found", n)
				}
				got[w] = append(got[w], id)
			}
			slices.Sort(got[w])
		}()
	}
	wg.Wait()
	for w := 1; w < workers; w++ {
		if !slices.Equal(got[w], got[0]) {
			t.Fatalf("worker %d saw ids %v, worker 0 saw %v", w, got[w], got[0])
		}
	}
}

func TestPreprocessWithIncludeNext(t *testing.T) {
	m := fstest.MapFS{
		"main.c":        {Data: []byte("#include <limits.h>\nLIMIT WRAPPED\n")},
		"wrap/limits.h": {Data: []byte("#define WRAPPED 1\n#include_next <limits.h>\n")},
		"sys/limits.h":  {Data: []byte("#define LIMIT 255\n")},
	}
	f := New(m, Paths{User: []string{"wrap"}, System: []string{"sys"}})
	diags := diag.NewList()
	pp := cpp.NewPreprocessor(cpp.Env{Files: f}, diags)
	toks, err := pp.Run(f.Register("main.c"))
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	var texts []string
	for _, tok := range toks[:len(toks)-1] {
		texts = append(texts, tok.Text)
	}
	if got := strings.Join(texts, " "); got != "255 1" {
		t.Errorf("output = %q", got)
	}
	if diags.Len() != 0 {
		t.Errorf("diagnostics: %v", diags.Records())
	}
}

func TestOS(t *testing.T) {
	dir := t.TempDir()
	inc := filepath.Join(dir, "include")
	if err := os.MkdirAll(inc, 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(inc, "h.h"), []byte("#define H 1\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	main := filepath.Join(dir, "main.c")
	if err := os.WriteFile(main, []byte("#include <h.h>\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	f := New(OS, Paths{User: []string{inc}})
	id, ok := f.Resolve(cpp.IncludeSpec{Name: "h.h", Kind: cpp.IncludeAngled}, f.Register(main))
	if !ok {
		t.Fatal("h.h not found")
	}
	_, data, err := f.Load(id)
	if err != nil || string(data) != "#define H 1\n" {
		t.Errorf("Load = %q, %v", data, err)
	}
	abs, ok := f.Resolve(cpp.IncludeSpec{Name: filepath.Join(inc, "h.h")}, source.NoFile)
	if !ok || abs != id {
		t.Errorf("absolute include = %v, %v; want %v", abs, ok, id)
	}
	if _, err := OS.Open(""); err == nil {
		t.Error("Open(\"\") succeeded")
	}
}

func TestParseCompilerOutput(t *testing.T) {
	a, b := t.TempDir(), t.TempDir()
	output := fmt.Sprintf(`Using built-in specs.
ignoring nonexistent directory "/nowhere"
#include "..." search starts here:
#include <...> search starts here:
 %s
 %s
 /definitely/not/here
 /System/Library/Frameworks (framework directory)
End of search list.
 %s
`, a, b, a)
	got := parseCompilerOutput(output)
	if !slices.Equal(got, []string{a, b}) {
		t.Errorf("parseCompilerOutput = %v, want [%s %s]", got, a, b)
	}
	if got := parseCompilerOutput("clang: error: no input files\n"); got != nil {
		t.Errorf("no search list gave %v", got)
	}
}

func TestFindGCCIncludePaths(t *testing.T) {
	base := t.TempDir()
	for _, dir := range []string{
		"x86_64-linux-gnu/12/include",
		"x86_64-linux-gnu/12/include/sanitizer",
		"x86_64-linux-gnu/13/include",
		"x86_64-linux-gnu/13/plugin",
	} {
		if err := os.MkdirAll(filepath.Join(base, dir), 0o755); err != nil {
			t.Fatal(err)
		}
	}
	got := findGCCIncludePaths(base)
	want := []string{
		filepath.Join(base, "x86_64-linux-gnu/12/include"),
		filepath.Join(base, "x86_64-linux-gnu/13/include"),
	}
	if !slices.Equal(got, want) {
		t.Errorf("findGCCIncludePaths = %v, want %v", got, want)
	}
	if got := findGCCIncludePaths(filepath.Join(base, "missing")); len(got) != 0 {
		t.Errorf("missing base gave %v", got)
	}
}
