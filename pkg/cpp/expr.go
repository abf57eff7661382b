package cpp

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"unicode/utf8"

	"modernc.org/mathutil"

	"github.com/raymyers/ralph-cfront/pkg/diag"
	"github.com/raymyers/ralph-cfront/pkg/source"
)

// ppValue is an #if operand: intmax_t or uintmax_t, both held as 64 bits.
type ppValue struct {
	v        uint64
	unsigned bool
}

func signedValue(v int64) ppValue { return ppValue{v: uint64(v)} }

func boolValue(b bool) ppValue {
	if b {
		return ppValue{v: 1}
	}
	return ppValue{}
}

func (a ppValue) isTrue() bool { return a.v != 0 }

// exprError is an #if evaluation failure.
type exprError struct {
	code diag.Code
	args []any
	span source.Span
}

func (e *exprError) Error() string { return e.code.Format(e.args...) }

func badExpr(tok Token, format string, args ...any) error {
	return &exprError{code: diag.BadExpression, args: []any{fmt.Sprintf(format, args...)}, span: tok.Span}
}

// exprParser parses and evaluates preprocessor constant expressions over
// fully macro-expanded tokens. Each level takes an eval flag; operands of
// a short-circuited && || or ?: arm are parsed with eval false, where
// division by zero is not an error.
type exprParser struct {
	tokens    []Token
	pos       int
	std       Std
	directive string
	overflows []source.Span // evaluated signed operations that overflowed
}

// evalExpr evaluates tokens as the controlling expression of #if or #elif.
// It also returns the operators whose signed result overflowed; the value
// wraps in that case.
func evalExpr(tokens []Token, std Std, directive string) (ppValue, []source.Span, error) {
	p := &exprParser{tokens: tokens, std: std, directive: directive}
	v, err := p.parseComma(true)
	if err != nil {
		return ppValue{}, p.overflows, err
	}
	if p.pos < len(p.tokens) {
		tok := p.peek()
		return ppValue{}, p.overflows, badExpr(tok, "missing binary operator before token \"%s\"", tok.Text)
	}
	return v, p.overflows, nil
}

// signed records an overflow of an evaluated signed operation and returns r.
func (p *exprParser) signed(op Token, r int64, ovf, eval bool) ppValue {
	if ovf && eval {
		p.overflows = append(p.overflows, op.Span)
	}
	return signedValue(r)
}

func (p *exprParser) peek() Token {
	if p.pos >= len(p.tokens) {
		if len(p.tokens) > 0 {
			return Token{Kind: TokenEOF, Span: p.tokens[len(p.tokens)-1].Span}
		}
		return Token{Kind: TokenEOF}
	}
	return p.tokens[p.pos]
}

func (p *exprParser) advance() Token {
	tok := p.peek()
	if p.pos < len(p.tokens) {
		p.pos++
	}
	return tok
}

func (p *exprParser) match(op string) bool {
	if p.peek().Is(op) {
		p.advance()
		return true
	}
	return false
}

// matchAny consumes and returns the first of ops found at the current
// position.
func (p *exprParser) matchAny(ops ...string) (Token, bool) {
	tok := p.peek()
	for _, op := range ops {
		if tok.Is(op) {
			p.advance()
			return tok, true
		}
	}
	return tok, false
}

// Precedence: comma -> conditional -> logicalOr -> logicalAnd -> bitwiseOr
//             -> bitwiseXor -> bitwiseAnd -> equality -> relational
//             -> shift -> additive -> multiplicative -> unary -> primary

func (p *exprParser) parseComma(eval bool) (ppValue, error) {
	v, err := p.parseConditional(eval)
	for err == nil && p.match(",") {
		v, err = p.parseConditional(eval)
	}
	return v, err
}

func (p *exprParser) parseConditional(eval bool) (ppValue, error) {
	cond, err := p.parseLogicalOr(eval)
	if err != nil || !p.match("?") {
		return cond, err
	}
	thenVal, err := p.parseComma(eval && cond.isTrue())
	if err != nil {
		return ppValue{}, err
	}
	if !p.match(":") {
		return ppValue{}, badExpr(p.peek(), "expected ':' in conditional expression")
	}
	elseVal, err := p.parseConditional(eval && !cond.isTrue())
	if err != nil {
		return ppValue{}, err
	}
	result := elseVal
	if cond.isTrue() {
		result = thenVal
	}
	result.unsigned = thenVal.unsigned || elseVal.unsigned
	return result, nil
}

func (p *exprParser) parseLogicalOr(eval bool) (ppValue, error) {
	left, err := p.parseLogicalAnd(eval)
	if err != nil {
		return ppValue{}, err
	}
	for p.match("||") {
		right, err := p.parseLogicalAnd(eval && !left.isTrue())
		if err != nil {
			return ppValue{}, err
		}
		left = boolValue(left.isTrue() || right.isTrue())
	}
	return left, nil
}

func (p *exprParser) parseLogicalAnd(eval bool) (ppValue, error) {
	left, err := p.parseBitwiseOr(eval)
	if err != nil {
		return ppValue{}, err
	}
	for p.match("&&") {
		right, err := p.parseBitwiseOr(eval && left.isTrue())
		if err != nil {
			return ppValue{}, err
		}
		left = boolValue(left.isTrue() && right.isTrue())
	}
	return left, nil
}

// binary parses a left-associative level whose operands come from next.
func (p *exprParser) binary(eval bool, next func(bool) (ppValue, error), ops ...string) (ppValue, error) {
	left, err := next(eval)
	if err != nil {
		return ppValue{}, err
	}
	for {
		tok, ok := p.matchAny(ops...)
		if !ok {
			return left, nil
		}
		right, err := next(eval)
		if err != nil {
			return ppValue{}, err
		}
		if left, err = p.apply(tok, left, right, eval); err != nil {
			return ppValue{}, err
		}
	}
}

func (p *exprParser) parseBitwiseOr(eval bool) (ppValue, error) {
	return p.binary(eval, p.parseBitwiseXor, "|")
}

func (p *exprParser) parseBitwiseXor(eval bool) (ppValue, error) {
	return p.binary(eval, p.parseBitwiseAnd, "^")
}

func (p *exprParser) parseBitwiseAnd(eval bool) (ppValue, error) {
	return p.binary(eval, p.parseEquality, "&")
}

func (p *exprParser) parseEquality(eval bool) (ppValue, error) {
	return p.binary(eval, p.parseRelational, "==", "!=")
}

func (p *exprParser) parseRelational(eval bool) (ppValue, error) {
	return p.binary(eval, p.parseShift, "<=", ">=", "<", ">")
}

func (p *exprParser) parseShift(eval bool) (ppValue, error) {
	return p.binary(eval, p.parseAdditive, "<<", ">>")
}

func (p *exprParser) parseAdditive(eval bool) (ppValue, error) {
	return p.binary(eval, p.parseMultiplicative, "+", "-")
}

func (p *exprParser) parseMultiplicative(eval bool) (ppValue, error) {
	return p.binary(eval, p.parseUnary, "*", "/", "%")
}

// apply evaluates a binary operator under the usual arithmetic
// conversions: if either operand is unsigned, both are.
func (p *exprParser) apply(op Token, a, b ppValue, eval bool) (ppValue, error) {
	u := a.unsigned || b.unsigned
	x, y := int64(a.v), int64(b.v)
	switch op.Op() {
	case "*":
		if !u {
			r, ovf := mathutil.MulOverflowInt64(x, y)
			return p.signed(op, r, ovf, eval), nil
		}
		return ppValue{a.v * b.v, true}, nil
	case "/", "%":
		if b.v == 0 {
			if !eval {
				return ppValue{unsigned: u}, nil
			}
			return ppValue{}, &exprError{code: diag.DivisionByZero, args: []any{p.directive}, span: op.Span}
		}
		if u {
			if op.Op() == "/" {
				return ppValue{a.v / b.v, true}, nil
			}
			return ppValue{a.v % b.v, true}, nil
		}
		if x == math.MinInt64 && y == -1 {
			if op.Op() == "/" {
				return p.signed(op, x, true, eval), nil
			}
			return signedValue(0), nil
		}
		if op.Op() == "/" {
			return signedValue(x / y), nil
		}
		return signedValue(x % y), nil
	case "+":
		if !u {
			r, ovf := mathutil.AddOverflowInt64(x, y)
			return p.signed(op, r, ovf, eval), nil
		}
		return ppValue{a.v + b.v, true}, nil
	case "-":
		if !u {
			r, ovf := mathutil.SubOverflowInt64(x, y)
			return p.signed(op, r, ovf, eval), nil
		}
		return ppValue{a.v - b.v, true}, nil
	case "<<", ">>":
		// The result has the type of the left operand.
		n := b.v
		if !b.unsigned && y < 0 {
			n = 64
		}
		if op.Op() == "<<" {
			if n >= 64 {
				return ppValue{0, a.unsigned}, nil
			}
			return ppValue{a.v << n, a.unsigned}, nil
		}
		if a.unsigned {
			if n >= 64 {
				return ppValue{0, true}, nil
			}
			return ppValue{a.v >> n, true}, nil
		}
		if n >= 64 {
			n = 63
		}
		return signedValue(x >> n), nil
	case "<", ">", "<=", ">=":
		var lt, eq bool
		if u {
			lt, eq = a.v < b.v, a.v == b.v
		} else {
			lt, eq = x < y, x == y
		}
		switch op.Op() {
		case "<":
			return boolValue(lt), nil
		case ">":
			return boolValue(!lt && !eq), nil
		case "<=":
			return boolValue(lt || eq), nil
		default:
			return boolValue(!lt), nil
		}
	case "==":
		return boolValue(a.v == b.v), nil
	case "!=":
		return boolValue(a.v != b.v), nil
	case "&":
		return ppValue{a.v & b.v, u}, nil
	case "|":
		return ppValue{a.v | b.v, u}, nil
	case "^":
		return ppValue{a.v ^ b.v, u}, nil
	}
	return ppValue{}, badExpr(op, "token \"%s\" is not valid in preprocessor expressions", op.Text)
}

func (p *exprParser) parseUnary(eval bool) (ppValue, error) {
	tok := p.peek()
	if tok.Kind == TokenPunct {
		switch tok.Op() {
		case "!", "-", "+", "~":
			p.advance()
			val, err := p.parseUnary(eval)
			if err != nil {
				return ppValue{}, err
			}
			switch tok.Op() {
			case "!":
				return boolValue(!val.isTrue()), nil
			case "-":
				if !val.unsigned {
					r, ovf := mathutil.SubOverflowInt64(0, int64(val.v))
					return p.signed(tok, r, ovf, eval), nil
				}
				return ppValue{-val.v, true}, nil
			case "~":
				return ppValue{^val.v, val.unsigned}, nil
			}
			return val, nil
		}
	}
	return p.parsePrimary(eval)
}

func (p *exprParser) parsePrimary(eval bool) (ppValue, error) {
	tok := p.advance()
	switch tok.Kind {
	case TokenPunct:
		if tok.Is("(") {
			val, err := p.parseComma(eval)
			if err != nil {
				return ppValue{}, err
			}
			if !p.match(")") {
				return ppValue{}, badExpr(p.peek(), "missing ')' in expression")
			}
			return val, nil
		}
	case TokenNumber:
		v, err := parseNumber(tok.Text)
		if err != nil {
			return ppValue{}, badExpr(tok, "%v", err)
		}
		return v, nil
	case TokenChar:
		v, err := parseCharConst(tok.Text, tok.Enc)
		if err != nil {
			return ppValue{}, badExpr(tok, "%v", err)
		}
		return signedValue(v), nil
	case TokenIdent:
		if p.std >= C23 {
			switch tok.Text {
			case "true":
				return signedValue(1), nil
			case "false":
				return signedValue(0), nil
			}
		}
		// Identifiers that are not macros evaluate to 0.
		return signedValue(0), nil
	case TokenEOF:
		return ppValue{}, badExpr(tok, "expected value in expression")
	}
	return ppValue{}, badExpr(tok, "token \"%s\" is not valid in preprocessor expressions", tok.Text)
}

// parseNumber parses an integer constant. Values that do not fit intmax_t
// become unsigned.
func parseNumber(s string) (ppValue, error) {
	s = strings.ReplaceAll(s, "'", "")
	body := strings.TrimRight(s, "uUlL")
	suffix := s[len(body):]
	if strings.Count(strings.ToLower(suffix), "u") > 1 || strings.Count(strings.ToLower(suffix), "l") > 2 {
		return ppValue{}, fmt.Errorf("invalid suffix \"%s\" on integer constant", suffix)
	}
	unsigned := strings.ContainsAny(suffix, "uU")

	base, digits := 10, body
	switch {
	case strings.HasPrefix(body, "0x") || strings.HasPrefix(body, "0X"):
		base, digits = 16, body[2:]
		if strings.ContainsAny(digits, ".pP") {
			return ppValue{}, errors.New("floating constant in preprocessor expression")
		}
	case strings.HasPrefix(body, "0b") || strings.HasPrefix(body, "0B"):
		base, digits = 2, body[2:]
	case strings.ContainsAny(body, ".eE"):
		return ppValue{}, errors.New("floating constant in preprocessor expression")
	case len(body) > 1 && body[0] == '0':
		base, digits = 8, body[1:]
	}
	if digits == "" {
		return ppValue{}, fmt.Errorf("invalid integer constant \"%s\"", s)
	}
	v, err := strconv.ParseUint(digits, base, 64)
	if err != nil {
		if errors.Is(err, strconv.ErrRange) {
			return ppValue{}, errors.New("integer constant is too large for its type")
		}
		return ppValue{}, fmt.Errorf("invalid integer constant \"%s\"", s)
	}
	if v > math.MaxInt64 {
		unsigned = true
	}
	return ppValue{v: v, unsigned: unsigned}, nil
}

// parseCharConst evaluates a character constant. A plain constant has type
// int with char signedness; multi-character constants combine bytes.
func parseCharConst(s string, enc Encoding) (int64, error) {
	s = s[len(enc.String()):]
	if len(s) < 2 || s[0] != '\'' || s[len(s)-1] != '\'' {
		return 0, fmt.Errorf("invalid character constant: %s", s)
	}
	inner := s[1 : len(s)-1]
	if len(inner) == 0 {
		return 0, errors.New("empty character constant")
	}

	var units []int64
	for i := 0; i < len(inner); {
		if inner[i] != '\\' {
			r, size := utf8.DecodeRuneInString(inner[i:])
			if enc == EncNone {
				for _, b := range []byte(inner[i : i+size]) {
					units = append(units, int64(b))
				}
			} else {
				units = append(units, int64(r))
			}
			i += size
			continue
		}
		v, n, err := decodeEscape(inner[i:])
		if err != nil {
			return 0, err
		}
		units = append(units, v)
		i += n
	}

	if enc != EncNone {
		return units[len(units)-1], nil
	}
	if len(units) == 1 {
		return int64(int8(units[0])), nil
	}
	var v int64
	for _, u := range units {
		v = v<<8 | u&0xff
	}
	return int64(int32(v)), nil
}

// decodeEscape decodes the escape sequence at the start of s and returns
// its value and length.
func decodeEscape(s string) (int64, int, error) {
	if len(s) < 2 {
		return 0, 0, errors.New("invalid escape sequence")
	}
	switch c := s[1]; c {
	case 'n':
		return '\n', 2, nil
	case 't':
		return '\t', 2, nil
	case 'r':
		return '\r', 2, nil
	case 'a':
		return '\a', 2, nil
	case 'b':
		return '\b', 2, nil
	case 'f':
		return '\f', 2, nil
	case 'v':
		return '\v', 2, nil
	case 'e', 'E':
		return 0x1b, 2, nil
	case '\\', '\'', '"', '?':
		return int64(c), 2, nil
	case 'x':
		n := 2
		for n < len(s) && isHexDigit(s[n]) {
			n++
		}
		if n == 2 {
			return 0, 0, errors.New("\\x used with no following hex digits")
		}
		v, err := strconv.ParseUint(s[2:n], 16, 64)
		if err != nil {
			return 0, 0, errors.New("hex escape sequence out of range")
		}
		return int64(v), n, nil
	case 'u', 'U':
		digits := 4
		if c == 'U' {
			digits = 8
		}
		if len(s) < 2+digits {
			return 0, 0, errors.New("incomplete universal character name")
		}
		v, err := strconv.ParseUint(s[2:2+digits], 16, 32)
		if err != nil {
			return 0, 0, errors.New("incomplete universal character name")
		}
		return int64(v), 2 + digits, nil
	default:
		if isOctDigit(c) {
			n := 1
			for n < 4 && n < len(s) && isOctDigit(s[n]) {
				n++
			}
			v, _ := strconv.ParseUint(s[1:n], 8, 64)
			return int64(v), n, nil
		}
		return 0, 0, fmt.Errorf("unknown escape sequence '\\%c'", c)
	}
}
