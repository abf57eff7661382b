// Package hostfs resolves and loads C source files from a file system,
// following the usual compiler search order for #include.
package hostfs

import (
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"sync"

	"github.com/raymyers/ralph-cfront/pkg/cpp"
	"github.com/raymyers/ralph-cfront/pkg/source"
)

// Paths lists the include directories in search order.
type Paths struct {
	Quote  []string // -iquote directories, searched for "file" only
	User   []string // -I directories
	System []string // -isystem directories and the detected system paths
}

// FS implements cpp.Files over an fs.FS. File identifiers are assigned on
// first sight of a path and stay valid for the life of the FS, so one FS
// can serve every unit of a build. It is safe for concurrent use.
type FS struct {
	fsys  fs.FS
	chain []string // Quote, then User, then System
	quote int      // number of leading Quote entries in chain

	mu    sync.RWMutex
	ids   map[string]source.FileID
	files []file
}

type file struct {
	name string
	dir  int // index in chain the file was found through, -1 otherwise
}

var _ cpp.Files = (*FS)(nil)

// New creates a resolver over fsys.
func New(fsys fs.FS, paths Paths) *FS {
	f := &FS{fsys: fsys, quote: len(paths.Quote), ids: make(map[string]source.FileID)}
	for _, group := range [][]string{paths.Quote, paths.User, paths.System} {
		for _, dir := range group {
			f.chain = append(f.chain, path.Clean(filepath.ToSlash(dir)))
		}
	}
	return f
}

// Register returns the identifier of name, assigning one if needed. Use it
// for primary source files.
func (f *FS) Register(name string) source.FileID {
	return f.register(name, -1)
}

func (f *FS) register(name string, dir int) source.FileID {
	name = path.Clean(filepath.ToSlash(name))
	f.mu.RLock()
	id, ok := f.ids[name]
	f.mu.RUnlock()
	if ok {
		return id
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if id, ok := f.ids[name]; ok {
		return id
	}
	f.files = append(f.files, file{name: name, dir: dir})
	id = source.FileID(len(f.files))
	f.ids[name] = id
	return id
}

// Path returns the name registered for id.
func (f *FS) Path(id source.FileID) (string, bool) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	if id == source.NoFile || int(id) > len(f.files) {
		return "", false
	}
	return f.files[id-1].name, true
}

func (f *FS) lookup(id source.FileID) (file, bool) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	if id == source.NoFile || int(id) > len(f.files) {
		return file{dir: -1}, false
	}
	return f.files[id-1], true
}

// Resolve implements cpp.Resolver. A quoted name is looked up next to the
// including file, then in the Quote, User and System directories; an
// angled name skips the first two. #include_next resumes after the
// directory the including file was found in.
func (f *FS) Resolve(spec cpp.IncludeSpec, from source.FileID) (source.FileID, bool) {
	name := filepath.ToSlash(spec.Name)
	if path.IsAbs(name) {
		if f.exists(name) {
			return f.register(name, -1), true
		}
		return source.NoFile, false
	}

	includer, _ := f.lookup(from)
	start := 0
	if spec.Kind == cpp.IncludeAngled {
		start = f.quote
	}
	if spec.Next {
		if includer.dir >= 0 {
			start = max(start, includer.dir+1)
		}
	} else if spec.Kind == cpp.IncludeQuoted && includer.name != "" {
		candidate := path.Join(path.Dir(includer.name), name)
		if f.exists(candidate) {
			// A file found next to its includer inherits the includer's
			// position in the chain.
			return f.register(candidate, includer.dir), true
		}
	}

	for i := start; i < len(f.chain); i++ {
		candidate := path.Join(f.chain[i], name)
		if f.exists(candidate) {
			return f.register(candidate, i), true
		}
	}
	return source.NoFile, false
}

// Load implements cpp.Loader.
func (f *FS) Load(id source.FileID) (string, []byte, error) {
	fl, ok := f.lookup(id)
	if !ok {
		return "", nil, fs.ErrNotExist
	}
	data, err := fs.ReadFile(f.fsys, fl.name)
	return fl.name, data, err
}

func (f *FS) exists(name string) bool {
	info, err := fs.Stat(f.fsys, name)
	return err == nil && !info.IsDir()
}

// OS is an fs.FS over the host file system. Unlike os.DirFS it accepts
// absolute paths and paths relative to the working directory, which is
// what include directories given on a command line look like.
var OS fs.FS = osFS{}

type osFS struct{}

func (osFS) Open(name string) (fs.File, error) {
	if name == "" {
		return nil, &fs.PathError{Op: "open", Path: name, Err: fs.ErrInvalid}
	}
	return os.Open(filepath.FromSlash(name))
}

func (osFS) ReadFile(name string) ([]byte, error) {
	return os.ReadFile(filepath.FromSlash(name))
}

func (osFS) Stat(name string) (fs.FileInfo, error) {
	return os.Stat(filepath.FromSlash(name))
}
