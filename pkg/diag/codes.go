package diag

import "fmt"

// Code identifies a diagnostic message template. The prefix letter groups
// codes: L lexical, P directive, M macro expansion, R resource, U user.
type Code string

// Lexical.
const (
	UnterminatedComment Code = "L101"
	UnterminatedLiteral Code = "L102"
	InvalidEscape       Code = "L103"
	EmptyCharConst      Code = "L104"
	IncompleteUCN       Code = "L105"
	StrayCharacter      Code = "L106"
	HexEscapeNoDigits   Code = "L107"
	InvalidUTF8         Code = "L108"
)

// Directives.
const (
	UnknownDirective        Code = "P201"
	MacroNameMissing        Code = "P202"
	DuplicateParameter      Code = "P203"
	BadParameterList        Code = "P204"
	VariadicNotLast         Code = "P205"
	HashNotParameter        Code = "P206"
	PasteAtEdge             Code = "P207"
	MacroRedefined          Code = "P208"
	PreviousDefinition      Code = "P209"
	DefinedAsMacroName      Code = "P210"
	ExtraTokens             Code = "P211"
	ConditionalWithoutIf    Code = "P212"
	ConditionalAfterElse    Code = "P213"
	UnterminatedConditional Code = "P214"
	BadExpression           Code = "P215"
	MissingExpression       Code = "P216"
	BadLineNumber           Code = "P217"
	BadIncludeSyntax        Code = "P218"
	VaArgsOutsideVariadic   Code = "P219"
	MissingWhitespace       Code = "P220"
	ConditionalOpenedHere   Code = "P221"
	BadPragma               Code = "P222"
	IncludeNextInPrimary    Code = "P223"
	DivisionByZero          Code = "P224"
	MacroNameNotIdentifier  Code = "P225"
	IntegerOverflow         Code = "P226"
)

// Macro expansion.
const (
	ArgumentCount         Code = "M301"
	UnterminatedArguments Code = "M302"
	InvalidPaste          Code = "M303"
	ExpansionTooDeep      Code = "M304"
	DirectiveInArguments  Code = "M305"
	InExpansionOf         Code = "M306"
	MacroDefinedHere      Code = "M307"
	BadPragmaOperator     Code = "M308"
	DefinedFromExpansion  Code = "M309"
)

// Resources.
const (
	IncludeTooDeep  Code = "R401"
	IncludeNotFound Code = "R402"
	IncludeRead     Code = "R403"
)

// User directives.
const (
	ErrorDirective   Code = "U501"
	WarningDirective Code = "U502"
)

var templates = map[Code]string{
	UnterminatedComment: "unterminated comment",
	UnterminatedLiteral: "missing terminating %c character",
	InvalidEscape:       "unknown escape sequence '\\%c'",
	EmptyCharConst:      "empty character constant",
	IncompleteUCN:       "incomplete universal character name %s",
	StrayCharacter:      "stray '%s' in program",
	HexEscapeNoDigits:   "\\x used with no following hex digits",
	InvalidUTF8:         "invalid UTF-8 byte 0x%02x",

	UnknownDirective:        "invalid preprocessing directive #%s",
	MacroNameMissing:        "no macro name given in #%s directive",
	DuplicateParameter:      "duplicate macro parameter \"%s\"",
	BadParameterList:        "expected parameter name, found \"%s\"",
	VariadicNotLast:         "missing ')' after \"...\" in macro parameter list",
	HashNotParameter:        "'#' is not followed by a macro parameter",
	PasteAtEdge:             "'##' cannot appear at either end of a macro expansion",
	MacroRedefined:          "\"%s\" redefined",
	PreviousDefinition:      "this is the location of the previous definition",
	DefinedAsMacroName:      "\"defined\" cannot be used as a macro name",
	ExtraTokens:             "extra tokens at end of #%s directive",
	ConditionalWithoutIf:    "#%s without #if",
	ConditionalAfterElse:    "#%s after #else",
	UnterminatedConditional: "unterminated #%s",
	BadExpression:           "invalid preprocessor expression: %s",
	MissingExpression:       "#%s with no expression",
	BadLineNumber:           "\"%s\" after #line is not a positive integer",
	BadIncludeSyntax:        "#%s expects \"FILENAME\" or <FILENAME>",
	VaArgsOutsideVariadic:   "__VA_ARGS__ can only appear in the expansion of a variadic macro",
	MissingWhitespace:       "missing whitespace after the macro name",
	ConditionalOpenedHere:   "conditional started here",
	BadPragma:               "malformed #pragma %s",
	IncludeNextInPrimary:    "#include_next in primary source file",
	DivisionByZero:          "division by zero in #%s",
	IntegerOverflow:         "integer overflow in #%s expression",
	MacroNameNotIdentifier:  "macro names must be identifiers, found \"%s\"",

	ArgumentCount:         "macro \"%s\" expects %d argument(s), but %d given",
	UnterminatedArguments: "unterminated argument list invoking macro \"%s\"",
	InvalidPaste:          "pasting \"%s\" and \"%s\" does not give a valid preprocessing token",
	ExpansionTooDeep:      "macro expansion nested deeper than %d levels",
	DirectiveInArguments:  "#%s directive inside macro arguments",
	InExpansionOf:         "in expansion of macro '%s'",
	MacroDefinedHere:      "macro '%s' defined here",
	BadPragmaOperator:     "_Pragma takes a parenthesized string literal",
	DefinedFromExpansion:  "this use of \"defined\" may not be portable",

	IncludeTooDeep:  "#include nested depth %d exceeds maximum of %d",
	IncludeNotFound: "%s: no such file or directory",
	IncludeRead:     "cannot read %s: %v",

	ErrorDirective:   "#error %s",
	WarningDirective: "#warning %s",
}

// Format renders the template for c with args.
func (c Code) Format(args ...any) string {
	tmpl, ok := templates[c]
	if !ok {
		return fmt.Sprint(args...)
	}
	return fmt.Sprintf(tmpl, args...)
}
