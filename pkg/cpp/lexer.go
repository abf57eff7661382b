package cpp

import (
	"bytes"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/raymyers/ralph-cfront/pkg/diag"
	"github.com/raymyers/ralph-cfront/pkg/source"
	"github.com/raymyers/ralph-cfront/pkg/symbol"
)

// Lexer tokenizes the logical text of a source buffer into preprocessing
// tokens. Trigraphs and line splices are already gone; spans are mapped
// back to raw offsets through the buffer.
//
// White space and comments produce no tokens. They set the Space flag of
// the next token; a newline sets its BOL flag.
type Lexer struct {
	buf   *source.Buffer
	input []byte
	pos   int
	syms  *symbol.Table
	diags *diag.List
	atBOL bool
	space bool
	quiet bool
	fatal bool
}

// NewLexer creates a lexer over buf. Identifiers are interned in syms and
// diagnostics go to diags.
func NewLexer(buf *source.Buffer, syms *symbol.Table, diags *diag.List) *Lexer {
	return &Lexer{
		buf:   buf,
		input: buf.Text(),
		syms:  syms,
		diags: diags,
		atBOL: true,
	}
}

// Buffer returns the buffer being lexed.
func (l *Lexer) Buffer() *source.Buffer { return l.buf }

// Reset rewinds to the start of the buffer.
func (l *Lexer) Reset() {
	l.pos = 0
	l.atBOL = true
	l.space = false
	l.fatal = false
}

// SetQuiet suppresses non-fatal diagnostics, as required inside skipped
// conditional groups.
func (l *Lexer) SetQuiet(quiet bool) { l.quiet = quiet }

// Fatal reports whether lexing stopped on an unrecoverable error.
func (l *Lexer) Fatal() bool { return l.fatal }

// All returns every token up to and including EOF.
func (l *Lexer) All() []Token {
	var tokens []Token
	for {
		tok := l.Next()
		tokens = append(tokens, tok)
		if tok.Kind == TokenEOF {
			return tokens
		}
	}
}

// Next returns the next preprocessing token.
func (l *Lexer) Next() Token {
	if !l.skipSpace() {
		return l.eof()
	}
	if l.pos >= len(l.input) {
		return l.eof()
	}

	start := l.pos
	var flags Flags
	if l.atBOL {
		flags |= BOL
	}
	if l.space {
		flags |= Space
	}
	l.atBOL = false
	l.space = false

	c := l.peek()
	var tok Token
	switch {
	case isDigit(c) || (c == '.' && isDigit(l.peekAt(1))):
		tok = l.scanNumber()
	case c == '"' || c == '\'':
		tok = l.scanQuoted(start, EncNone)
	case c == 'L' || c == 'u' || c == 'U':
		if enc, n := l.literalPrefix(); n > 0 {
			l.pos += n
			tok = l.scanQuoted(start, enc)
		} else {
			tok = l.scanIdentifier()
		}
	case isIdentStart(c) || c == '\\' && (l.peekAt(1) == 'u' || l.peekAt(1) == 'U'):
		tok = l.scanIdentifier()
	case c >= utf8.RuneSelf:
		r, _ := utf8.DecodeRune(l.input[l.pos:])
		if unicode.IsLetter(r) {
			tok = l.scanIdentifier()
		} else {
			tok = l.scanOther()
		}
	default:
		tok = l.scanPunctuator()
	}
	if l.pos == start {
		// A malformed identifier start consumed nothing.
		tok = l.scanOther()
	}
	tok.Flags |= flags
	tok.Span = l.buf.Span(start, l.pos)
	return tok
}

// AtLineEnd reports whether the current line has no more tokens. It skips
// white space and comments but does not scan the next token, so no
// diagnostics for the following line are issued.
func (l *Lexer) AtLineEnd() bool {
	if !l.skipSpace() {
		return true
	}
	return l.atBOL || l.pos >= len(l.input)
}

func (l *Lexer) eof() Token {
	return Token{Kind: TokenEOF, Flags: BOL, Span: l.buf.Span(len(l.input), len(l.input))}
}

var commentEnd = []byte("*/")

// skipSpace skips white space and comments. It returns false after an
// unterminated block comment.
func (l *Lexer) skipSpace() bool {
	for l.pos < len(l.input) {
		switch c := l.peek(); {
		case c == '\n':
			l.pos++
			l.atBOL = true
			l.space = false
		case isSpace(c):
			l.pos++
			l.space = true
		case c == '/' && l.peekAt(1) == '/':
			for l.pos < len(l.input) && l.peek() != '\n' {
				l.pos++
			}
			l.space = true
		case c == '/' && l.peekAt(1) == '*':
			start := l.pos
			end := bytes.Index(l.input[l.pos+2:], commentEnd)
			if end < 0 {
				l.pos = len(l.input)
				l.fatal = true
				l.diags.Fatalf(l.buf.Span(start, start+2), diag.UnterminatedComment)
				return false
			}
			l.pos += 2 + end + 2
			l.space = true
		default:
			return true
		}
	}
	return !l.fatal
}

func (l *Lexer) peek() byte {
	if l.pos >= len(l.input) {
		return 0
	}
	return l.input[l.pos]
}

func (l *Lexer) peekAt(offset int) byte {
	if l.pos+offset >= len(l.input) {
		return 0
	}
	return l.input[l.pos+offset]
}

func (l *Lexer) errorf(lo, hi int, code diag.Code, args ...any) {
	if l.quiet {
		return
	}
	l.diags.Errorf(l.buf.Span(lo, hi), code, args...)
}

func isSpace(c byte) bool {
	return c == ' ' || c == '\t' || c == '\r' || c == '\f' || c == '\v'
}

func isDigit(c byte) bool {
	return c >= '0' && c <= '9'
}

func isHexDigit(c byte) bool {
	return isDigit(c) || (c >= 'a' && c <= 'f') || (c >= 'A' && c <= 'F')
}

func isOctDigit(c byte) bool {
	return c >= '0' && c <= '7'
}

func isIdentStart(c byte) bool {
	return (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') || c == '_' || c == '$'
}

func isIdentContinue(c byte) bool {
	return isIdentStart(c) || isDigit(c)
}

// literalPrefix reports the encoding prefix at the current position and
// its length, or 0 when no string or character literal follows.
func (l *Lexer) literalPrefix() (Encoding, int) {
	enc, n := EncNone, 1
	switch l.peek() {
	case 'L':
		enc = EncWide
	case 'U':
		enc = EncUTF32
	case 'u':
		enc = EncUTF16
		if l.peekAt(1) == '8' {
			enc, n = EncUTF8, 2
		}
	default:
		return EncNone, 0
	}
	if q := l.peekAt(n); q == '"' || q == '\'' {
		return enc, n
	}
	return EncNone, 0
}

// scanNumber scans a preprocessing number. The grammar is deliberately
// loose; classification into integer or floating happens after
// preprocessing.
func (l *Lexer) scanNumber() Token {
	start := l.pos
	l.pos++
	for l.pos < len(l.input) {
		c := l.peek()
		if (c == 'e' || c == 'E' || c == 'p' || c == 'P') && (l.peekAt(1) == '+' || l.peekAt(1) == '-') {
			l.pos += 2
			continue
		}
		if c == '\'' && isIdentContinue(l.peekAt(1)) {
			// C23 digit separator.
			l.pos += 2
			continue
		}
		if !isIdentContinue(c) && c != '.' {
			break
		}
		l.pos++
	}
	return Token{Kind: TokenNumber, Text: string(l.input[start:l.pos])}
}

// scanIdentifier scans an identifier, decoding universal character names
// and normalizing the spelling to NFC before interning.
func (l *Lexer) scanIdentifier() Token {
	start := l.pos
	var ucn []byte // non-nil once a UCN has been decoded
	for l.pos < len(l.input) {
		c := l.peek()
		switch {
		case isIdentContinue(c):
			ucn = appendIf(ucn, c)
			l.pos++
			continue
		case c == '\\' && (l.peekAt(1) == 'u' || l.peekAt(1) == 'U'):
			r, n, ok := l.decodeUCN(l.pos)
			if !ok {
				l.errorf(l.pos, l.pos+n, diag.IncompleteUCN, string(l.input[l.pos:l.pos+n]))
				return l.identToken(start, ucn)
			}
			if ucn == nil {
				ucn = append([]byte{}, l.input[start:l.pos]...)
			}
			ucn = utf8.AppendRune(ucn, r)
			l.pos += n
			continue
		case c >= utf8.RuneSelf:
			r, size := utf8.DecodeRune(l.input[l.pos:])
			if r == utf8.RuneError || !(unicode.IsLetter(r) || unicode.IsDigit(r) || unicode.Is(unicode.Mn, r) || unicode.Is(unicode.Mc, r)) {
				return l.identToken(start, ucn)
			}
			if ucn != nil {
				ucn = append(ucn, l.input[l.pos:l.pos+size]...)
			}
			l.pos += size
			continue
		}
		break
	}
	return l.identToken(start, ucn)
}

func appendIf(b []byte, c byte) []byte {
	if b == nil {
		return nil
	}
	return append(b, c)
}

func (l *Lexer) identToken(start int, ucn []byte) Token {
	if l.pos == start {
		return Token{}
	}
	spelling := string(l.input[start:l.pos])
	if ucn != nil {
		spelling = string(ucn)
	}
	text := symbol.Normalize(spelling)
	return Token{Kind: TokenIdent, Sym: l.syms.Intern(text), Text: text}
}

// decodeUCN decodes \uXXXX or \UXXXXXXXX at i. On failure n is the number
// of bytes that were examined.
func (l *Lexer) decodeUCN(i int) (r rune, n int, ok bool) {
	digits := 4
	if l.input[i+1] == 'U' {
		digits = 8
	}
	n = 2
	var v rune
	for n < 2+digits && i+n < len(l.input) && isHexDigit(l.input[i+n]) {
		v = v<<4 | rune(hexValue(l.input[i+n]))
		n++
	}
	if n != 2+digits || !utf8.ValidRune(v) {
		return 0, n, false
	}
	return v, n, true
}

func hexValue(c byte) int {
	switch {
	case c >= '0' && c <= '9':
		return int(c - '0')
	case c >= 'a' && c <= 'f':
		return int(c-'a') + 10
	default:
		return int(c-'A') + 10
	}
}

// scanQuoted scans a string or character literal whose prefix (if any)
// has been consumed. An unterminated literal ends at the end of the line.
func (l *Lexer) scanQuoted(start int, enc Encoding) Token {
	quote := l.peek()
	kind := TokenString
	if quote == '\'' {
		kind = TokenChar
	}
	open := l.pos
	l.pos++
	for {
		if l.pos >= len(l.input) || l.peek() == '\n' {
			l.errorf(open, l.pos, diag.UnterminatedLiteral, rune(quote))
			break
		}
		c := l.peek()
		if c == quote {
			l.pos++
			if kind == TokenChar && l.pos-open == 2 {
				l.errorf(open, l.pos, diag.EmptyCharConst)
			}
			break
		}
		if c == '\\' {
			l.pos += l.scanEscape()
			continue
		}
		l.pos++
	}
	return Token{Kind: kind, Enc: enc, Text: string(l.input[start:l.pos])}
}

// scanEscape validates the escape sequence at the current backslash and
// returns its length.
func (l *Lexer) scanEscape() int {
	i := l.pos
	c := l.peekAt(1)
	switch {
	case c == 0 || c == '\n':
		return 1
	case strings.IndexByte(`'"?\abfnrtve`, c) >= 0:
		return 2
	case isOctDigit(c):
		n := 2
		for n < 4 && isOctDigit(l.peekAt(n)) {
			n++
		}
		return n
	case c == 'x':
		n := 2
		for isHexDigit(l.peekAt(n)) {
			n++
		}
		if n == 2 {
			l.errorf(i, i+2, diag.HexEscapeNoDigits)
		}
		return n
	case c == 'u' || c == 'U':
		_, n, ok := l.decodeUCN(i)
		if !ok {
			l.errorf(i, i+n, diag.IncompleteUCN, string(l.input[i:i+n]))
		}
		return n
	default:
		r, size := utf8.DecodeRune(l.input[i+1:])
		l.errorf(i, i+1+size, diag.InvalidEscape, r)
		return 1 + size
	}
}

var punctuators = [...][]string{
	4: {"%:%:"},
	3: {"...", "<<=", ">>="},
	2: {"->", "++", "--", "<<", ">>", "<=", ">=", "==", "!=", "&&", "||",
		"*=", "/=", "%=", "+=", "-=", "&=", "^=", "|=", "##",
		"<:", ":>", "<%", "%>", "%:"},
}

const singlePunctuators = "[](){}.&*+-~!/%<>^|?:;=,#"

// scanPunctuator scans the longest punctuator at the current position.
func (l *Lexer) scanPunctuator() Token {
	rest := l.input[l.pos:]
	for n := 4; n >= 2; n-- {
		if len(rest) < n {
			continue
		}
		for _, p := range punctuators[n] {
			if string(rest[:n]) == p {
				l.pos += n
				return Token{Kind: TokenPunct, Text: p}
			}
		}
	}
	if strings.IndexByte(singlePunctuators, rest[0]) >= 0 {
		l.pos++
		return Token{Kind: TokenPunct, Text: string(rest[:1])}
	}
	return l.scanOther()
}

// scanOther consumes one character that starts no other token.
func (l *Lexer) scanOther() Token {
	start := l.pos
	r, size := utf8.DecodeRune(l.input[l.pos:])
	if r == utf8.RuneError && size <= 1 {
		size = 1
		l.errorf(start, start+1, diag.InvalidUTF8, l.input[start])
	}
	l.pos += size
	return Token{Kind: TokenOther, Text: string(l.input[start:l.pos])}
}

// ScanHeaderName scans a header name after #include. It reports false,
// consuming nothing, when the rest of the line is not a <...> or "..."
// header name; the caller then falls back to ordinary tokens.
func (l *Lexer) ScanHeaderName() (Token, bool) {
	save, saveSpace := l.pos, l.space
	for l.pos < len(l.input) && isSpace(l.peek()) {
		l.pos++
	}
	start := l.pos
	var closing byte
	switch l.peek() {
	case '<':
		closing = '>'
	case '"':
		closing = '"'
	default:
		l.pos, l.space = save, saveSpace
		return Token{}, false
	}
	l.pos++
	for l.pos < len(l.input) && l.peek() != closing && l.peek() != '\n' {
		l.pos++
	}
	if l.peek() != closing {
		l.pos, l.space = save, saveSpace
		return Token{}, false
	}
	l.pos++
	l.space = false
	return Token{
		Kind:  TokenHeaderName,
		Flags: Space,
		Text:  string(l.input[start:l.pos]),
		Span:  l.buf.Span(start, l.pos),
	}, true
}

// IsIdentifier checks if a string is a valid C identifier.
func IsIdentifier(s string) bool {
	if len(s) == 0 {
		return false
	}
	for i, r := range s {
		if r == '_' || r == '$' || unicode.IsLetter(r) {
			continue
		}
		if i > 0 && (unicode.IsDigit(r) || unicode.Is(unicode.Mn, r) || unicode.Is(unicode.Mc, r)) {
			continue
		}
		return false
	}
	return true
}
