package main

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"modernc.org/strutil"

	"github.com/raymyers/ralph-cfront/pkg/config"
	"github.com/raymyers/ralph-cfront/pkg/cpp"
	"github.com/raymyers/ralph-cfront/pkg/diag"
	"github.com/raymyers/ralph-cfront/pkg/hostfs"
	"github.com/raymyers/ralph-cfront/pkg/pipeline"
	"github.com/raymyers/ralph-cfront/pkg/source"
	"github.com/raymyers/ralph-cfront/pkg/symbol"
)

var version = "0.1.0"

// ErrFailed indicates that at least one translation unit had errors.
var ErrFailed = errors.New("preprocessing failed")

// cliOptions holds the command-line flags.
type cliOptions struct {
	includePaths   []string
	systemPaths    []string
	quotePaths     []string
	defineFlags    []string
	undefineFlags  []string
	preprocessOnly bool // -E
	configPath     string
	jobs           int
	std            string
	noTrigraphs    bool
	detectSystem   bool
	dumpTokens     bool
	verbose        bool
}

func main() {
	os.Exit(run())
}

func run() int {
	rootCmd := newRootCmd(os.Stdout, os.Stderr)
	// Accept the single-dash spellings cc uses for long options.
	rootCmd.SetArgs(normalizeFlags(os.Args[1:]))
	if err := rootCmd.Execute(); err != nil {
		if !errors.Is(err, ErrFailed) {
			fmt.Fprintf(os.Stderr, "ralph-cfront: %v\n", err)
		}
		return 1
	}
	return 0
}

// singleDashFlags lists long options that cc spells with one dash.
var singleDashFlags = []string{"isystem", "iquote", "std"}

// normalizeFlags converts cc-style flags like -isystem and -std=c11 to
// their double-dash form.
func normalizeFlags(args []string) []string {
	result := make([]string, len(args))
	for i, arg := range args {
		result[i] = arg
		for _, name := range singleDashFlags {
			if arg == "-"+name || strings.HasPrefix(arg, "-"+name+"=") {
				result[i] = "-" + arg
				break
			}
		}
	}
	return result
}

func newRootCmd(out, errOut io.Writer) *cobra.Command {
	var opts cliOptions
	rootCmd := &cobra.Command{
		Use:   "ralph-cfront [flags] file...",
		Short: "ralph-cfront is a C lexer and preprocessor",
		Long: `ralph-cfront runs translation phases 1 through 4 of C on one or
more source files concurrently and reports diagnostics with their macro
expansion history.`,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 0 {
				return cmd.Help()
			}
			cfg, err := buildConfig(cmd, &opts)
			if err != nil {
				return err
			}
			return preprocess(cmd, cfg, &opts, args, out, errOut)
		},
	}
	rootCmd.SetOut(out)
	rootCmd.SetErr(errOut)

	flags := rootCmd.Flags()
	flags.SetNormalizeFunc(underscoreToDash)
	flags.StringArrayVarP(&opts.includePaths, "include", "I", nil, "Add directory to include search path")
	flags.StringArrayVar(&opts.systemPaths, "isystem", nil, "Add directory to system include search path")
	flags.StringArrayVar(&opts.quotePaths, "iquote", nil, "Add directory to the search path for quoted includes")
	flags.StringArrayVarP(&opts.defineFlags, "define", "D", nil, "Define macro (NAME or NAME=VALUE)")
	flags.StringArrayVarP(&opts.undefineFlags, "undefine", "U", nil, "Undefine macro")
	flags.BoolVarP(&opts.preprocessOnly, "preprocess", "E", false, "Preprocess only, output to stdout")
	flags.StringVar(&opts.configPath, "config", "", "Read settings from a YAML file")
	flags.IntVarP(&opts.jobs, "jobs", "j", 0, "Number of files to preprocess concurrently (default GOMAXPROCS)")
	flags.StringVar(&opts.std, "std", "", "Language standard (c89, c99, c11, c17, c23)")
	flags.BoolVar(&opts.noTrigraphs, "no-trigraphs", false, "Do not replace trigraphs")
	flags.BoolVar(&opts.detectSystem, "detect-system-paths", false, "Search the host compiler's system include directories")
	flags.BoolVar(&opts.dumpTokens, "dump-tokens", false, "Dump the token stream with kinds and positions")
	flags.BoolVarP(&opts.verbose, "verbose", "v", false, "Log progress to stderr")

	return rootCmd
}

// underscoreToDash lets --dump_tokens stand for --dump-tokens.
func underscoreToDash(_ *pflag.FlagSet, name string) pflag.NormalizedName {
	return pflag.NormalizedName(strings.ReplaceAll(name, "_", "-"))
}

// buildConfig merges the config file, if any, with the flags. Flags win.
func buildConfig(cmd *cobra.Command, opts *cliOptions) (config.Config, error) {
	cfg := config.Default()
	if opts.configPath != "" {
		var err error
		if cfg, err = config.Load(opts.configPath); err != nil {
			return cfg, err
		}
	}

	flags := cmd.Flags()
	if flags.Changed("std") {
		cfg.Std = opts.std
	}
	if flags.Changed("jobs") {
		cfg.Jobs = opts.jobs
	}
	if opts.noTrigraphs {
		off := false
		cfg.Trigraphs = &off
	}
	if opts.detectSystem {
		cfg.DetectSystemPaths = true
	}
	cfg.IncludePaths = append(cfg.IncludePaths, opts.includePaths...)
	cfg.SystemPaths = append(cfg.SystemPaths, opts.systemPaths...)
	cfg.QuotePaths = append(cfg.QuotePaths, opts.quotePaths...)
	cfg.Defines = append(cfg.Defines, opts.defineFlags...)
	cfg.Undefines = append(cfg.Undefines, opts.undefineFlags...)
	return cfg, cfg.Validate()
}

func newLogger(w io.Writer, verbose bool) *slog.Logger {
	level := slog.LevelWarn
	if verbose {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level}))
}

// buildTime returns the time __DATE__ and __TIME__ expand to, honoring
// SOURCE_DATE_EPOCH for reproducible output.
func buildTime() (time.Time, error) {
	epoch := os.Getenv("SOURCE_DATE_EPOCH")
	if epoch == "" {
		return time.Now(), nil
	}
	secs, err := strconv.ParseInt(epoch, 10, 64)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid SOURCE_DATE_EPOCH %q: %w", epoch, err)
	}
	return time.Unix(secs, 0).UTC(), nil
}

func preprocess(cmd *cobra.Command, cfg config.Config, opts *cliOptions, filenames []string, out, errOut io.Writer) error {
	logger := newLogger(errOut, opts.verbose)

	system := cfg.SystemPaths
	if cfg.DetectSystemPaths {
		detected := hostfs.DetectSystemPaths()
		logger.Debug("detected system include paths", "paths", detected)
		system = append(system, detected...)
	}
	files := hostfs.New(hostfs.OS, hostfs.Paths{Quote: cfg.QuotePaths, User: cfg.IncludePaths, System: system})

	now, err := buildTime()
	if err != nil {
		return err
	}
	options := cfg.Options()
	syms := symbol.NewTable()
	seed := cpp.Predefined(syms, cpp.PredefOptions{Std: options.Std, Now: now})
	if err := seed.ApplyCmdlineDefines(cfg.Defines, cfg.Undefines); err != nil {
		return err
	}

	ids := make([]source.FileID, len(filenames))
	for i, name := range filenames {
		ids[i] = files.Register(name)
	}
	results := pipeline.Run(cmd.Context(), pipeline.Env{
		Symbols:    syms,
		Files:      files,
		Predefined: seed,
		Options:    options,
		Jobs:       cfg.Jobs,
		Logger:     logger,
	}, ids)

	for i, r := range results {
		if r.Name == "" {
			r.Name = filenames[i]
		}
		for _, rec := range r.Diags.Records() {
			if err := diag.Render(errOut, rec, r.Locator); err != nil {
				return err
			}
		}
		if r.Err != nil && r.Diags.Fatal() == nil {
			fmt.Fprintf(errOut, "ralph-cfront: %s: %v\n", r.Name, r.Err)
		}
		switch {
		case opts.dumpTokens:
			fmt.Fprintln(out, dumpTokens(r))
		case opts.preprocessOnly:
			writePreprocessed(out, r)
		}
	}

	sum := pipeline.Summarize(results)
	if !opts.preprocessOnly && !opts.dumpTokens {
		fmt.Fprintf(errOut, "ralph-cfront: %d file(s), %d tokens, %d error(s), %d warning(s)\n",
			sum.Units, sum.Tokens, sum.Errors, sum.Warnings)
	}
	if sum.Failed > 0 {
		fmt.Fprintf(errOut, "ralph-cfront: %d of %d file(s) failed\n", sum.Failed, sum.Units)
		return ErrFailed
	}
	return nil
}

// writePreprocessed writes a unit as text, one logical line per output
// line, with its pragmas re-inserted where they occurred.
func writePreprocessed(w io.Writer, r pipeline.Result) {
	fmt.Fprintf(w, "# 1 %s\n", strconv.Quote(r.Name))
	toks := r.Tokens
	if n := len(toks); n > 0 && toks[n-1].Kind == cpp.TokenEOF {
		toks = toks[:n-1]
	}
	prev := 0
	for _, pr := range r.Pragmas {
		pos := min(pr.Pos, len(toks))
		if chunk := cpp.TokensToString(toks[prev:pos]); chunk != "" {
			fmt.Fprintln(w, chunk)
		}
		fmt.Fprintf(w, "#pragma %s\n", cpp.TokensToString(pr.Tokens))
		prev = pos
	}
	if chunk := cpp.TokensToString(toks[prev:]); chunk != "" {
		fmt.Fprintln(w, chunk)
	}
}

// dumpTokens formats the token stream of a unit for debugging.
func dumpTokens(r pipeline.Result) string {
	hooks := strutil.PrettyPrintHooks{
		reflect.TypeOf(cpp.Token{}): func(f strutil.Formatter, v interface{}, prefix, suffix string) {
			t := v.(cpp.Token)
			f.Format(prefix)
			if r.Locator != nil {
				if file, line, col, ok := r.Locator.Locate(t.Span); ok {
					f.Format("%s:%d:%d: ", file, line, col)
				}
			}
			f.Format("%s", t.Kind)
			if t.Kind != cpp.TokenEOF {
				f.Format(" %q", t.Text)
			}
			if t.Origin != nil {
				f.Format(" (from %s)", t.Origin.Macro)
			}
			f.Format(suffix)
		},
	}
	return strutil.PrettyString(r.Tokens, r.Name+": ", "", hooks)
}
