// Package pipeline preprocesses many translation units concurrently.
//
// Each unit gets its own Preprocessor and its own copy of the predefined
// macro table; only the symbol table and the file set are shared. Results
// come back in input order no matter which unit finishes first.
package pipeline

import (
	"context"
	"io"
	"log/slog"
	"runtime"
	"time"

	"golang.org/x/sync/errgroup"
	"modernc.org/mathutil"

	"github.com/raymyers/ralph-cfront/pkg/cpp"
	"github.com/raymyers/ralph-cfront/pkg/diag"
	"github.com/raymyers/ralph-cfront/pkg/source"
	"github.com/raymyers/ralph-cfront/pkg/symbol"
)

// cancelCheck is how many tokens a unit produces between checks of the
// context.
const cancelCheck = 1024

// Env is the state shared by all units of a run.
type Env struct {
	Symbols    *symbol.Table
	Files      cpp.Files
	Predefined *cpp.MacroTable // seed cloned for every unit; nil means cpp.Predefined
	Options    cpp.Options
	Jobs       int // concurrent units; zero means GOMAXPROCS
	Logger     *slog.Logger
}

// Result is the outcome of one translation unit.
type Result struct {
	File    source.FileID
	Name    string
	Tokens  []cpp.Token // including the final EOF
	Diags   *diag.List
	Pragmas []cpp.Pragma
	Locator diag.Locator
	Err     error // *cpp.FatalError, or the context error
	Elapsed time.Duration
}

// OK reports whether the unit finished without errors.
func (r Result) OK() bool {
	return r.Err == nil && (r.Diags == nil || !r.Diags.HasErrors())
}

// Run preprocesses files with at most env.Jobs units in flight. A unit
// that fails does not stop the others. Units not yet started when ctx is
// done get ctx.Err() as their error.
func Run(ctx context.Context, env Env, files []source.FileID) []Result {
	results := make([]Result, len(files))
	if len(files) == 0 {
		return results
	}
	if env.Symbols == nil {
		env.Symbols = symbol.NewTable()
	}
	if env.Predefined == nil {
		env.Predefined = cpp.Predefined(env.Symbols, cpp.PredefOptions{Std: env.Options.Std})
	}
	log := env.Logger
	if log == nil {
		log = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	log = log.With(slog.String("component", "pipeline"))

	jobs := env.Jobs
	if jobs <= 0 {
		jobs = runtime.GOMAXPROCS(0)
	}
	jobs = mathutil.Clamp(jobs, 1, len(files))
	log.Debug("starting", "units", len(files), "jobs", jobs)

	start := time.Now()
	var g errgroup.Group
	g.SetLimit(jobs)
	for i, id := range files {
		if err := ctx.Err(); err != nil {
			results[i] = Result{File: id, Diags: diag.NewList(), Err: err}
			continue
		}
		g.Go(func() error {
			results[i] = runUnit(ctx, env, id, log)
			return nil
		})
	}
	_ = g.Wait() // units report failure in their Result

	sum := Summarize(results)
	log.Debug("finished", "units", sum.Units, "failed", sum.Failed, "tokens", sum.Tokens, "elapsed", time.Since(start))
	return results
}

func runUnit(ctx context.Context, env Env, id source.FileID, log *slog.Logger) Result {
	res := Result{File: id, Diags: diag.NewList()}
	if err := ctx.Err(); err != nil {
		res.Err = err
		return res
	}
	start := time.Now()
	pp := cpp.NewPreprocessor(cpp.Env{
		Symbols: env.Symbols,
		Macros:  env.Predefined.Clone(),
		Files:   env.Files,
		Options: env.Options,
		Logger:  env.Logger,
	}, res.Diags)
	res.Locator = pp
	if err := pp.Start(id); err != nil {
		res.Err = err
		res.Tokens = append(res.Tokens, pp.Next())
		res.Elapsed = time.Since(start)
		return res
	}
	if stack := pp.IncludeStack(); len(stack) > 0 {
		res.Name = stack[0]
	}

	for n := 1; ; n++ {
		tok := pp.Next()
		res.Tokens = append(res.Tokens, tok)
		if tok.Kind == cpp.TokenEOF {
			break
		}
		if n%cancelCheck == 0 {
			if err := ctx.Err(); err != nil {
				res.Tokens = append(res.Tokens, cpp.Token{Kind: cpp.TokenEOF, Span: tok.Span})
				res.Err = err
				break
			}
		}
	}
	if res.Err == nil {
		res.Err = pp.Err()
	}
	res.Pragmas = pp.Pragmas()
	res.Elapsed = time.Since(start)
	log.Debug("unit done", "file", res.Name, "tokens", len(res.Tokens), "diagnostics", res.Diags.Len(), "elapsed", res.Elapsed)
	return res
}

// Summary counts the outcome of a run.
type Summary struct {
	Units    int
	Failed   int
	Tokens   int
	Errors   int
	Warnings int
}

// Summarize totals results.
func Summarize(results []Result) Summary {
	var s Summary
	for _, r := range results {
		s.Units++
		if !r.OK() {
			s.Failed++
		}
		if len(r.Tokens) > 0 {
			s.Tokens += len(r.Tokens) - 1
		}
		if r.Diags != nil {
			s.Errors += r.Diags.ErrorCount()
			s.Warnings += r.Diags.WarningCount()
		}
	}
	return s
}

// Diagnostics returns the records of all results in input order.
func Diagnostics(results []Result) []diag.Record {
	lists := make([]*diag.List, len(results))
	for i, r := range results {
		lists[i] = r.Diags
	}
	return diag.Merge(lists...)
}
