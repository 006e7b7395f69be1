package prediction

import (
	"errors"
	"fmt"
	"math/big"
	"strconv"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/shopspring/decimal"
)

var (
	errSyntax = errors.New("invalid literal")

	// errUnhashable is a well-formed literal that cannot be built, such as a
	// list used as a dict key. It is not a reading problem.
	errUnhashable = errors.New("unhashable literal")
)

type literalKind int

const (
	kindString literalKind = iota
	kindBytes
	kindNumber
	kindBool
	kindNone
	kindSequence
	kindDict
	kindSet
)

// literal is a decoded value from the literal grammar the classification
// endpoints answer with, e.g. ('good', 0.97), ["bad", 1] or
// {'label': 'good'}.
type literal struct {
	kind  literalKind
	text  string
	items []literal // sequence and set elements, dict values
	keys  []literal // dict keys, parallel to items
	tuple bool
}

func (l literal) isSequence() bool {
	return l.kind == kindSequence
}

// str renders the value the way the endpoint's runtime would print it.
func (l literal) str() string {
	switch l.kind {
	case kindString, kindNumber, kindBool, kindNone:
		return l.text
	default:
		return l.repr()
	}
}

func (l literal) repr() string {
	switch l.kind {
	case kindString:
		return quoteString(l.text)
	case kindBytes:
		return "b" + quoteBytes(l.text)
	case kindSequence:
		parts := reprAll(l.items)
		if !l.tuple {
			return "[" + strings.Join(parts, ", ") + "]"
		}
		if len(parts) == 1 {
			return "(" + parts[0] + ",)"
		}
		return "(" + strings.Join(parts, ", ") + ")"
	case kindDict:
		parts := make([]string, len(l.keys))
		for i, k := range l.keys {
			parts[i] = k.repr() + ": " + l.items[i].repr()
		}
		return "{" + strings.Join(parts, ", ") + "}"
	case kindSet:
		return "{" + strings.Join(reprAll(l.items), ", ") + "}"
	default:
		return l.text
	}
}

func reprAll(items []literal) []string {
	parts := make([]string, len(items))
	for i, item := range items {
		parts[i] = item.repr()
	}
	return parts
}

// pickQuote prefers single quotes unless only double quotes avoid escaping.
func pickQuote(s string) byte {
	if strings.IndexByte(s, '\'') >= 0 && strings.IndexByte(s, '"') < 0 {
		return '"'
	}
	return '\''
}

func quoteString(s string) string {
	quote := pickQuote(s)
	var b strings.Builder
	b.WriteByte(quote)
	for i := 0; i < len(s); {
		r, size := utf8.DecodeRuneInString(s[i:])
		switch {
		case r == utf8.RuneError && size == 1:
			fmt.Fprintf(&b, `\x%02x`, s[i])
		case r == '\\' || r == rune(quote):
			b.WriteByte('\\')
			b.WriteRune(r)
		case r == '\t':
			b.WriteString(`\t`)
		case r == '\n':
			b.WriteString(`\n`)
		case r == '\r':
			b.WriteString(`\r`)
		case r < 0x20 || r == 0x7f:
			fmt.Fprintf(&b, `\x%02x`, r)
		case !unicode.IsPrint(r):
			switch {
			case r <= 0xff:
				fmt.Fprintf(&b, `\x%02x`, r)
			case r <= 0xffff:
				fmt.Fprintf(&b, `\u%04x`, r)
			default:
				fmt.Fprintf(&b, `\U%08x`, r)
			}
		default:
			b.WriteRune(r)
		}
		i += size
	}
	b.WriteByte(quote)
	return b.String()
}

func quoteBytes(s string) string {
	quote := pickQuote(s)
	var b strings.Builder
	b.WriteByte(quote)
	for i := 0; i < len(s); i++ {
		switch c := s[i]; {
		case c == '\\' || c == quote:
			b.WriteByte('\\')
			b.WriteByte(c)
		case c == '\t':
			b.WriteString(`\t`)
		case c == '\n':
			b.WriteString(`\n`)
		case c == '\r':
			b.WriteString(`\r`)
		case c < 0x20 || c >= 0x7f:
			fmt.Fprintf(&b, `\x%02x`, c)
		default:
			b.WriteByte(c)
		}
	}
	b.WriteByte(quote)
	return b.String()
}

// hashKey identifies values that compare equal, so 1, 1.0 and True share a
// dict slot. ok is false for values that cannot be keys.
func hashKey(l literal) (key string, ok bool) {
	switch l.kind {
	case kindString:
		return "s" + strconv.Quote(l.text), true
	case kindBytes:
		return "b" + strconv.Quote(l.text), true
	case kindNone:
		return "none", true
	case kindBool:
		if l.text == "True" {
			return "#1", true
		}
		return "#0", true
	case kindNumber:
		if d, err := decimal.NewFromString(l.text); err == nil {
			return "#" + d.String(), true
		}
		return "#" + l.text, true
	case kindSequence:
		if !l.tuple {
			return "", false
		}
		parts := make([]string, len(l.items))
		for i, item := range l.items {
			if parts[i], ok = hashKey(item); !ok {
				return "", false
			}
		}
		return "(" + strings.Join(parts, ",") + ")", true
	default:
		return "", false
	}
}

// readLiteral decodes src as a single literal. A bare top-level comma list
// is read as a tuple.
func readLiteral(src string) (literal, error) {
	p := &literalReader{src: src}
	v, err := p.document()
	if err != nil {
		return literal{}, err
	}
	// Building a value only fails once the whole text has been read.
	if p.unhashable != nil {
		return literal{}, p.unhashable
	}
	return v, nil
}

type literalReader struct {
	src        string
	pos        int
	unhashable error
}

func (p *literalReader) document() (literal, error) {
	p.skipSpace()
	if p.eof() {
		return literal{}, fmt.Errorf("%w: empty input", errSyntax)
	}

	first, err := p.value()
	if err != nil {
		return literal{}, err
	}
	p.skipSpace()
	if p.eof() {
		return first, nil
	}
	if p.peek() != ',' {
		return literal{}, p.errorf("unexpected %q", p.peek())
	}

	items := []literal{first}
	for !p.eof() {
		p.pos++ // ','
		p.skipSpace()
		if p.eof() {
			break
		}
		item, err := p.value()
		if err != nil {
			return literal{}, err
		}
		items = append(items, item)
		p.skipSpace()
		if !p.eof() && p.peek() != ',' {
			return literal{}, p.errorf("unexpected %q", p.peek())
		}
	}
	return literal{kind: kindSequence, items: items, tuple: true}, nil
}

func (p *literalReader) eof() bool  { return p.pos >= len(p.src) }
func (p *literalReader) peek() byte { return p.src[p.pos] }

func (p *literalReader) errorf(format string, args ...any) error {
	return fmt.Errorf("%w at offset %d: %s", errSyntax, p.pos, fmt.Sprintf(format, args...))
}

// skipSpace skips whitespace and # comments.
func (p *literalReader) skipSpace() {
	for !p.eof() {
		switch p.peek() {
		case ' ', '\t', '\n', '\r', '\f':
			p.pos++
		case '#':
			for !p.eof() && p.peek() != '\n' {
				p.pos++
			}
		default:
			return
		}
	}
}

func (p *literalReader) value() (literal, error) {
	if p.eof() {
		return literal{}, p.errorf("unexpected end of input")
	}
	if _, ok := p.stringPrefix(); ok {
		return p.stringLiteral()
	}
	switch c := p.peek(); {
	case c == '(':
		return p.sequence('(', ')')
	case c == '[':
		return p.sequence('[', ']')
	case c == '{':
		return p.braced()
	case c == '-' || c == '+' || c == '.' || isDigit(c):
		return p.number()
	case isIdentStart(c):
		return p.keyword()
	default:
		return literal{}, p.errorf("unexpected %q", c)
	}
}

// stringPrefix reports whether a string literal starts at the current
// position, and returns its prefix letters.
func (p *literalReader) stringPrefix() (string, bool) {
	for n := 0; n <= 2 && p.pos+n < len(p.src); n++ {
		if c := p.src[p.pos+n]; c == '\'' || c == '"' {
			prefix := p.src[p.pos : p.pos+n]
			switch strings.ToLower(prefix) {
			case "", "u", "r", "b", "br", "rb":
				return prefix, true
			}
			return "", false
		}
	}
	return "", false
}

// stringLiteral reads one string literal or several adjacent ones, which are
// concatenated.
func (p *literalReader) stringLiteral() (literal, error) {
	var (
		b    strings.Builder
		kind = literalKind(-1)
	)
	for {
		prefix, ok := p.stringPrefix()
		if !ok {
			break
		}
		pieceKind := kindString
		if strings.ContainsAny(prefix, "bB") {
			pieceKind = kindBytes
		}
		if kind >= 0 && pieceKind != kind {
			return literal{}, p.errorf("cannot mix bytes and nonbytes literals")
		}
		kind = pieceKind
		p.pos += len(prefix)
		if err := p.quoted(&b, strings.ContainsAny(prefix, "rR"), kind == kindBytes); err != nil {
			return literal{}, err
		}

		end := p.pos
		p.skipSpace()
		if _, ok := p.stringPrefix(); !ok {
			p.pos = end
			break
		}
	}
	return literal{kind: kind, text: b.String()}, nil
}

func (p *literalReader) quoted(b *strings.Builder, raw, bytes bool) error {
	start := p.pos
	delim := p.src[p.pos : p.pos+1]
	if strings.HasPrefix(p.src[p.pos:], strings.Repeat(delim, 3)) {
		delim = strings.Repeat(delim, 3)
	}
	triple := len(delim) == 3
	p.pos += len(delim)

	for !p.eof() {
		if strings.HasPrefix(p.src[p.pos:], delim) {
			p.pos += len(delim)
			return nil
		}
		c := p.peek()
		switch {
		case c == '\n' && !triple:
			return p.errorf("unterminated string starting at %d", start)
		case c == '\\' && raw:
			if p.pos+1 >= len(p.src) {
				return p.errorf("unterminated string starting at %d", start)
			}
			b.WriteString(p.src[p.pos : p.pos+2])
			p.pos += 2
		case c == '\\':
			if err := p.escape(b, bytes); err != nil {
				return err
			}
		case bytes && c >= utf8.RuneSelf:
			return p.errorf("bytes can only contain ASCII literal characters")
		default:
			b.WriteByte(c)
			p.pos++
		}
	}
	return p.errorf("unterminated string starting at %d", start)
}

// escape decodes one backslash sequence. Unknown sequences keep the
// backslash.
func (p *literalReader) escape(b *strings.Builder, bytes bool) error {
	p.pos++ // '\'
	if p.eof() {
		return p.errorf("unterminated string")
	}
	c := p.peek()
	p.pos++

	switch c {
	case '\n':
	case '\\', '\'', '"':
		b.WriteByte(c)
	case 'a':
		b.WriteByte('\a')
	case 'b':
		b.WriteByte('\b')
	case 'f':
		b.WriteByte('\f')
	case 'n':
		b.WriteByte('\n')
	case 'r':
		b.WriteByte('\r')
	case 't':
		b.WriteByte('\t')
	case 'v':
		b.WriteByte('\v')
	case '0', '1', '2', '3', '4', '5', '6', '7':
		v := rune(c - '0')
		for n := 0; n < 2 && !p.eof() && p.peek() >= '0' && p.peek() <= '7'; n++ {
			v = v*8 + rune(p.peek()-'0')
			p.pos++
		}
		return p.writeCode(b, v, bytes)
	case 'x':
		v, err := p.hex(2)
		if err != nil {
			return err
		}
		return p.writeCode(b, v, bytes)
	case 'u', 'U':
		if bytes {
			b.WriteByte('\\')
			b.WriteByte(c)
			return nil
		}
		width := 4
		if c == 'U' {
			width = 8
		}
		v, err := p.hex(width)
		if err != nil {
			return err
		}
		return p.writeCode(b, v, bytes)
	case 'N':
		if bytes {
			b.WriteString(`\N`)
			return nil
		}
		return p.errorf("named unicode escapes are not supported")
	default:
		if bytes && c >= utf8.RuneSelf {
			return p.errorf("bytes can only contain ASCII literal characters")
		}
		b.WriteByte('\\')
		b.WriteByte(c)
	}
	return nil
}

func (p *literalReader) writeCode(b *strings.Builder, v rune, bytes bool) error {
	switch {
	case bytes && v > 0xff:
		return p.errorf("octal escape value out of range")
	case bytes:
		b.WriteByte(byte(v))
	case v > unicode.MaxRune:
		return p.errorf("illegal unicode character")
	default:
		b.WriteRune(v)
	}
	return nil
}

func (p *literalReader) hex(width int) (rune, error) {
	if p.pos+width > len(p.src) {
		return 0, p.errorf("truncated escape")
	}
	digits := p.src[p.pos : p.pos+width]
	for i := 0; i < width; i++ {
		if !isHexDigit(digits[i]) {
			return 0, p.errorf("truncated escape")
		}
	}
	v, err := strconv.ParseUint(digits, 16, 32)
	if err != nil {
		return 0, p.errorf("truncated escape")
	}
	p.pos += width
	return rune(v), nil
}

func (p *literalReader) sequence(open, closing byte) (literal, error) {
	p.pos++ // open
	tuple := open == '('
	var items []literal
	sawComma := false
	for {
		p.skipSpace()
		if p.eof() {
			return literal{}, p.errorf("missing %q", closing)
		}
		if p.peek() == closing {
			p.pos++
			break
		}
		item, err := p.value()
		if err != nil {
			return literal{}, err
		}
		items = append(items, item)
		if err := p.separator(closing); err != nil {
			return literal{}, err
		}
		if p.peek() == ',' {
			sawComma = true
			p.pos++
		}
	}

	// A parenthesised single value without a comma is grouping, not a tuple.
	if tuple && len(items) == 1 && !sawComma {
		return items[0], nil
	}
	return literal{kind: kindSequence, items: items, tuple: tuple}, nil
}

// separator expects a comma or the closing bracket next and leaves it
// unread.
func (p *literalReader) separator(closing byte) error {
	p.skipSpace()
	if p.eof() {
		return p.errorf("missing %q", closing)
	}
	if c := p.peek(); c != ',' && c != closing {
		return p.errorf("unexpected %q", c)
	}
	return nil
}

// braced reads a dict or a set. "{}" is an empty dict; otherwise the first
// entry decides which one it is.
func (p *literalReader) braced() (literal, error) {
	p.pos++ // '{'
	var (
		keys, values []literal
		slots        = map[string]int{}
		isDict       = true
	)
	for n := 0; ; n++ {
		p.skipSpace()
		if p.eof() {
			return literal{}, p.errorf("missing '}'")
		}
		if p.peek() == '}' {
			p.pos++
			break
		}

		key, err := p.value()
		if err != nil {
			return literal{}, err
		}
		p.skipSpace()
		if n == 0 {
			isDict = !p.eof() && p.peek() == ':'
		}
		var val literal
		if isDict {
			if p.eof() || p.peek() != ':' {
				return literal{}, p.errorf("expected ':'")
			}
			p.pos++
			p.skipSpace()
			if val, err = p.value(); err != nil {
				return literal{}, err
			}
		}
		if err := p.separator('}'); err != nil {
			return literal{}, err
		}
		if p.peek() == ',' {
			p.pos++
		}

		h, ok := hashKey(key)
		switch {
		case !ok:
			if p.unhashable == nil {
				p.unhashable = fmt.Errorf("%w: %s", errUnhashable, key.repr())
			}
		case slots[h] > 0:
			// equal keys keep the first key and the last value
			values[slots[h]-1] = val
		default:
			keys = append(keys, key)
			values = append(values, val)
			slots[h] = len(keys)
		}
	}

	if isDict {
		return literal{kind: kindDict, keys: keys, items: values}, nil
	}
	return literal{kind: kindSet, items: keys}, nil
}

func (p *literalReader) number() (literal, error) {
	start := p.pos
	sign := ""
	if c := p.peek(); c == '-' || c == '+' {
		if c == '-' {
			sign = "-"
		}
		p.pos++
		p.skipSpace()
	}

	if base := p.basePrefix(); base != 0 {
		p.pos += 2
		if !p.eof() && p.peek() == '_' {
			p.pos++
		}
		digits := p.digitRun(func(c byte) bool { return digitValue(c) < base })
		if digits == "" || p.trailingGarbage() {
			return literal{}, p.errorf("malformed number")
		}
		n, _ := new(big.Int).SetString(digits, base)
		if sign == "-" {
			n.Neg(n)
		}
		return literal{kind: kindNumber, text: n.String()}, nil
	}

	intPart := p.digitRun(isDigit)
	frac, hasDot := "", false
	if !p.eof() && p.peek() == '.' {
		hasDot = true
		p.pos++
		frac = p.digitRun(isDigit)
	}
	if intPart == "" && frac == "" {
		p.pos = start
		return literal{}, p.errorf("malformed number")
	}
	exp := ""
	if !p.eof() && (p.peek() == 'e' || p.peek() == 'E') {
		p.pos++
		expSign := ""
		if !p.eof() && (p.peek() == '-' || p.peek() == '+') {
			expSign = string(p.peek())
			p.pos++
		}
		digits := p.digitRun(isDigit)
		if digits == "" {
			return literal{}, p.errorf("malformed exponent")
		}
		exp = "e" + expSign + digits
	}
	if p.trailingGarbage() {
		return literal{}, p.errorf("malformed number")
	}

	if !hasDot && exp == "" {
		if len(intPart) > 1 && intPart[0] == '0' && strings.Trim(intPart, "0") != "" {
			return literal{}, p.errorf("leading zeros in decimal integer literals are not permitted")
		}
		n, _ := new(big.Int).SetString(intPart, 10)
		if sign == "-" {
			n.Neg(n)
		}
		return literal{kind: kindNumber, text: n.String()}, nil
	}

	if intPart == "" {
		intPart = "0"
	}
	text := sign + intPart
	if hasDot {
		if frac == "" {
			frac = "0"
		}
		text += "." + frac
	}
	return literal{kind: kindNumber, text: text + exp}, nil
}

func (p *literalReader) basePrefix() int {
	if p.pos+1 >= len(p.src) || p.peek() != '0' {
		return 0
	}
	switch p.src[p.pos+1] {
	case 'x', 'X':
		return 16
	case 'o', 'O':
		return 8
	case 'b', 'B':
		return 2
	default:
		return 0
	}
}

// digitRun reads digits accepted by valid, allowing single underscores
// between them, and returns the digits alone.
func (p *literalReader) digitRun(valid func(byte) bool) string {
	var b strings.Builder
	for !p.eof() {
		c := p.peek()
		switch {
		case valid(c):
			b.WriteByte(c)
		case c == '_' && b.Len() > 0 && p.pos+1 < len(p.src) && valid(p.src[p.pos+1]):
		default:
			return b.String()
		}
		p.pos++
	}
	return b.String()
}

// trailingGarbage reports a number running straight into a name or digit,
// as in 1j or 0b12.
func (p *literalReader) trailingGarbage() bool {
	return !p.eof() && (isIdentStart(p.peek()) || isDigit(p.peek()))
}

func (p *literalReader) keyword() (literal, error) {
	start := p.pos
	for !p.eof() && (isIdentStart(p.peek()) || isDigit(p.peek())) {
		p.pos++
	}
	switch word := p.src[start:p.pos]; word {
	case "True", "False":
		return literal{kind: kindBool, text: word}, nil
	case "None":
		return literal{kind: kindNone, text: word}, nil
	default:
		p.pos = start
		return literal{}, p.errorf("unsupported name %q", word)
	}
}

func isDigit(c byte) bool { return c >= '0' && c <= '9' }

func isHexDigit(c byte) bool { return digitValue(c) < 16 }

// digitValue is the value of c as a base-36 digit, or 36 when c is not one.
func digitValue(c byte) int {
	switch {
	case isDigit(c):
		return int(c - '0')
	case c >= 'a' && c <= 'z':
		return int(c-'a') + 10
	case c >= 'A' && c <= 'Z':
		return int(c-'A') + 10
	default:
		return 36
	}
}

func isIdentStart(c byte) bool {
	return c == '_' || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')
}
