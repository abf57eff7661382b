package cpp

import (
	"time"

	"github.com/raymyers/ralph-cfront/pkg/symbol"
)

// PredefOptions configures the predefined macro set.
type PredefOptions struct {
	Std Std
	Now time.Time // source of __DATE__ and __TIME__; zero means time.Now()
}

var builtinNames = map[string]builtinKind{
	"__FILE__":    builtinFile,
	"__LINE__":    builtinLine,
	"__COUNTER__": builtinCounter,
	"__DATE__":    builtinDate,
	"__TIME__":    builtinTime,
}

// Predefined returns a table holding the macros every translation unit
// starts with. Units clone it; it is never modified afterwards.
func Predefined(syms *symbol.Table, opts PredefOptions) *MacroTable {
	mt := NewMacroTable(syms)
	for name, kind := range builtinNames {
		mt.Define(&Macro{Name: syms.Intern(name), Text: name, Kind: MacroBuiltin, builtin: kind})
	}

	values := [][2]string{
		{"__STDC__", "1"},
		{"__STDC_HOSTED__", "1"},
		{"__STDC_UTF_16__", "1"},
		{"__STDC_UTF_32__", "1"},
	}
	if v := opts.Std.version(); v != "" {
		values = append(values, [2]string{"__STDC_VERSION__", v})
	}
	for _, kv := range values {
		if err := mt.DefineSimple(kv[0], kv[1]); err != nil {
			panic(err) // constant input
		}
	}

	now := opts.Now
	if now.IsZero() {
		now = time.Now()
	}
	date := now.Format("Jan _2 2006")
	clock := now.Format("15:04:05")
	mt.date = `"` + date + `"`
	mt.time = `"` + clock + `"`
	return mt
}
