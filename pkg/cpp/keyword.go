package cpp

import (
	"fmt"
	"strings"

	"github.com/raymyers/ralph-cfront/pkg/symbol"
)

// Std selects the C language revision.
type Std uint8

const (
	C89 Std = iota
	C99
	C11
	C17
	C23
)

var stdNames = map[string]Std{
	"c89": C89, "c90": C89, "ansi": C89, "gnu89": C89, "gnu90": C89,
	"c99": C99, "gnu99": C99,
	"c11": C11, "gnu11": C11,
	"c17": C17, "c18": C17, "gnu17": C17, "gnu18": C17,
	"c23": C23, "c2x": C23, "gnu23": C23, "gnu2x": C23,
}

// ParseStd parses a -std= value.
func ParseStd(s string) (Std, error) {
	if std, ok := stdNames[strings.ToLower(s)]; ok {
		return std, nil
	}
	return 0, fmt.Errorf("unknown language standard %q", s)
}

func (s Std) String() string {
	switch s {
	case C89:
		return "c89"
	case C99:
		return "c99"
	case C11:
		return "c11"
	case C17:
		return "c17"
	case C23:
		return "c23"
	default:
		return "unknown"
	}
}

// version is the value of __STDC_VERSION__, empty for C89.
func (s Std) version() string {
	switch s {
	case C99:
		return "199901L"
	case C11:
		return "201112L"
	case C17:
		return "201710L"
	case C23:
		return "202311L"
	default:
		return ""
	}
}

// Keyword identifies a C keyword. KwNone marks a plain identifier.
type Keyword uint8

const (
	KwNone Keyword = iota
	KwAuto
	KwBreak
	KwCase
	KwChar
	KwConst
	KwContinue
	KwDefault
	KwDo
	KwDouble
	KwElse
	KwEnum
	KwExtern
	KwFloat
	KwFor
	KwGoto
	KwIf
	KwInline
	KwInt
	KwLong
	KwRegister
	KwRestrict
	KwReturn
	KwShort
	KwSigned
	KwSizeof
	KwStatic
	KwStruct
	KwSwitch
	KwTypedef
	KwUnion
	KwUnsigned
	KwVoid
	KwVolatile
	KwWhile
	KwAlignas_
	KwAlignof_
	KwAtomic
	KwBool_
	KwComplex
	KwDecimal32
	KwDecimal64
	KwDecimal128
	KwGeneric
	KwImaginary
	KwNoreturn
	KwStaticAssert_
	KwThreadLocal_

	// C23 spellings.
	KwAlignas
	KwAlignof
	KwBool
	KwConstexpr
	KwFalse
	KwNullptr
	KwStaticAssert
	KwThreadLocal
	KwTrue
	KwTypeof
	KwTypeofUnqual
	KwBitInt
)

type keywordInfo struct {
	text string
	min  Std
}

var keywords = [...]keywordInfo{
	KwAuto:          {"auto", C89},
	KwBreak:         {"break", C89},
	KwCase:          {"case", C89},
	KwChar:          {"char", C89},
	KwConst:         {"const", C89},
	KwContinue:      {"continue", C89},
	KwDefault:       {"default", C89},
	KwDo:            {"do", C89},
	KwDouble:        {"double", C89},
	KwElse:          {"else", C89},
	KwEnum:          {"enum", C89},
	KwExtern:        {"extern", C89},
	KwFloat:         {"float", C89},
	KwFor:           {"for", C89},
	KwGoto:          {"goto", C89},
	KwIf:            {"if", C89},
	KwInline:        {"inline", C99},
	KwInt:           {"int", C89},
	KwLong:          {"long", C89},
	KwRegister:      {"register", C89},
	KwRestrict:      {"restrict", C99},
	KwReturn:        {"return", C89},
	KwShort:         {"short", C89},
	KwSigned:        {"signed", C89},
	KwSizeof:        {"sizeof", C89},
	KwStatic:        {"static", C89},
	KwStruct:        {"struct", C89},
	KwSwitch:        {"switch", C89},
	KwTypedef:       {"typedef", C89},
	KwUnion:         {"union", C89},
	KwUnsigned:      {"unsigned", C89},
	KwVoid:          {"void", C89},
	KwVolatile:      {"volatile", C89},
	KwWhile:         {"while", C89},
	KwAlignas_:      {"_Alignas", C89},
	KwAlignof_:      {"_Alignof", C89},
	KwAtomic:        {"_Atomic", C89},
	KwBool_:         {"_Bool", C89},
	KwComplex:       {"_Complex", C89},
	KwDecimal32:     {"_Decimal32", C89},
	KwDecimal64:     {"_Decimal64", C89},
	KwDecimal128:    {"_Decimal128", C89},
	KwGeneric:       {"_Generic", C89},
	KwImaginary:     {"_Imaginary", C89},
	KwNoreturn:      {"_Noreturn", C89},
	KwStaticAssert_: {"_Static_assert", C89},
	KwThreadLocal_:  {"_Thread_local", C89},
	KwAlignas:       {"alignas", C23},
	KwAlignof:       {"alignof", C23},
	KwBool:          {"bool", C23},
	KwConstexpr:     {"constexpr", C23},
	KwFalse:         {"false", C23},
	KwNullptr:       {"nullptr", C23},
	KwStaticAssert:  {"static_assert", C23},
	KwThreadLocal:   {"thread_local", C23},
	KwTrue:          {"true", C23},
	KwTypeof:        {"typeof", C23},
	KwTypeofUnqual:  {"typeof_unqual", C23},
	KwBitInt:        {"_BitInt", C23},
}

func (k Keyword) String() string {
	if k != KwNone && int(k) < len(keywords) {
		return keywords[k].text
	}
	return "<none>"
}

// keywordTable returns the keywords of std keyed by their interned
// spelling.
func keywordTable(syms *symbol.Table, std Std) map[symbol.Symbol]Keyword {
	m := make(map[symbol.Symbol]Keyword, len(keywords))
	for k := KwNone + 1; int(k) < len(keywords); k++ {
		if keywords[k].min <= std {
			m[syms.Intern(keywords[k].text)] = k
		}
	}
	return m
}
