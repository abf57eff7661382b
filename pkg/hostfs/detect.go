package hostfs

import (
	"bufio"
	"bytes"
	"io/fs"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strings"
	"sync"
)

var (
	detectOnce  sync.Once
	systemPaths []string
)

// DetectSystemPaths returns the host C compiler's system include
// directories. The compiler is asked first; when none answers, the usual
// locations for the operating system are used. The result is computed
// once per process.
func DetectSystemPaths() []string {
	detectOnce.Do(func() {
		systemPaths = queryCompilerIncludePaths()
		if len(systemPaths) == 0 {
			systemPaths = defaultSystemPaths(runtime.GOOS)
		}
	})
	return append([]string(nil), systemPaths...)
}

func queryCompilerIncludePaths() []string {
	for _, compiler := range []string{"cc", "gcc", "clang"} {
		if path, err := exec.LookPath(compiler); err == nil {
			if paths := queryCompiler(path); len(paths) > 0 {
				return paths
			}
		}
	}
	return nil
}

func queryCompiler(compiler string) []string {
	cmd := exec.Command(compiler, "-v", "-E", "-x", "c", "-")
	cmd.Stdin = strings.NewReader("")
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	_ = cmd.Run() // the search list is on stderr either way
	return parseCompilerOutput(stderr.String())
}

// parseCompilerOutput extracts the #include search list from the output
// of "cc -v -E".
func parseCompilerOutput(output string) []string {
	var paths []string
	inSearchList := false

	scanner := bufio.NewScanner(strings.NewReader(output))
	for scanner.Scan() {
		line := scanner.Text()
		switch {
		case strings.Contains(line, "#include <...> search starts here:"),
			strings.Contains(line, "#include \"...\" search starts here:"):
			inSearchList = true
		case strings.Contains(line, "End of search list"):
			inSearchList = false
		case inSearchList:
			path := strings.TrimSpace(line)
			if strings.HasSuffix(path, " (framework directory)") {
				continue
			}
			if path != "" && dirExists(path) {
				paths = append(paths, path)
			}
		}
	}
	return paths
}

func dirExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.IsDir()
}

func defaultSystemPaths(goos string) []string {
	candidates := []string{"/usr/include", "/usr/local/include"}
	if goos == "darwin" {
		candidates = []string{
			"/Library/Developer/CommandLineTools/SDKs/MacOSX.sdk/usr/include",
			"/Applications/Xcode.app/Contents/Developer/Platforms/MacOSX.platform/Developer/SDKs/MacOSX.sdk/usr/include",
			"/usr/local/include",
		}
	}

	var paths []string
	for _, p := range candidates {
		if dirExists(p) {
			paths = append(paths, p)
		}
	}
	if goos == "linux" {
		paths = append(paths, findGCCIncludePaths("/usr/lib/gcc")...)
	}
	return paths
}

// findGCCIncludePaths returns the include directories of the GCC versions
// installed under base.
func findGCCIncludePaths(base string) []string {
	var paths []string
	if !dirExists(base) {
		return paths
	}
	_ = filepath.WalkDir(base, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if d.IsDir() && d.Name() == "include" {
			paths = append(paths, path)
			return filepath.SkipDir
		}
		return nil
	})
	return paths
}
