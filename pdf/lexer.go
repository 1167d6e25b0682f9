package pdf

import (
	"encoding/hex"
	"fmt"
	"strconv"
)

// lexer walks raw PDF bytes and produces Objects. It does not resolve
// indirect references; that is the Document's job.
type lexer struct {
	data []byte
	pos  int
}

var errUnexpectedEOF = fmt.Errorf("pdf: unexpected end of data")

func isWhitespace(ch byte) bool {
	switch ch {
	case 0x00, 0x09, 0x0A, 0x0C, 0x0D, 0x20:
		return true
	}
	return false
}

func isDelimiter(ch byte) bool {
	switch ch {
	case '(', ')', '<', '>', '[', ']', '{', '}', '/', '%':
		return true
	}
	return false
}

func (l *lexer) eof() bool { return l.pos >= len(l.data) }

func (l *lexer) skipWS() {
	for l.pos < len(l.data) {
		ch := l.data[l.pos]
		if isWhitespace(ch) {
			l.pos++
			continue
		}
		if ch == '%' {
			for l.pos < len(l.data) && l.data[l.pos] != '\n' && l.data[l.pos] != '\r' {
				l.pos++
			}
			continue
		}
		return
	}
}

func (l *lexer) peek() byte {
	if l.eof() {
		return 0
	}
	return l.data[l.pos]
}

// readKeyword consumes a run of regular characters (obj, endobj, stream,
// trailer, R, true, false, null, xref).
func (l *lexer) readKeyword() string {
	start := l.pos
	for l.pos < len(l.data) {
		ch := l.data[l.pos]
		if isWhitespace(ch) || isDelimiter(ch) {
			break
		}
		l.pos++
	}
	return string(l.data[start:l.pos])
}

// expectKeyword skips whitespace and consumes the given keyword.
func (l *lexer) expectKeyword(kw string) error {
	l.skipWS()
	save := l.pos
	if got := l.readKeyword(); got != kw {
		l.pos = save
		return fmt.Errorf("pdf: expected %q at offset %d, got %q", kw, save, got)
	}
	return nil
}

// parseValue reads one object. For "N G R" reference syntax it looks
// ahead after an integer and rewinds when the pattern does not match.
func (l *lexer) parseValue() (Object, error) {
	l.skipWS()
	if l.eof() {
		return nil, errUnexpectedEOF
	}
	ch := l.data[l.pos]
	switch {
	case ch == '/':
		return l.parseName()
	case ch == '(':
		return l.parseLiteralString()
	case ch == '<':
		if l.pos+1 < len(l.data) && l.data[l.pos+1] == '<' {
			return l.parseDict()
		}
		return l.parseHexString()
	case ch == '[':
		return l.parseArray()
	case ch == '+' || ch == '-' || ch == '.' || (ch >= '0' && ch <= '9'):
		return l.parseNumberOrRef()
	default:
		save := l.pos
		switch kw := l.readKeyword(); kw {
		case "true":
			return Bool(true), nil
		case "false":
			return Bool(false), nil
		case "null":
			return Null{}, nil
		default:
			l.pos = save
			return nil, fmt.Errorf("pdf: unexpected token %q at offset %d", kw, save)
		}
	}
}

func (l *lexer) parseName() (Object, error) {
	l.pos++ // '/'
	var out []byte
	for l.pos < len(l.data) {
		ch := l.data[l.pos]
		if isWhitespace(ch) || isDelimiter(ch) {
			break
		}
		if ch == '#' && l.pos+2 < len(l.data) {
			if v, err := hex.DecodeString(string(l.data[l.pos+1 : l.pos+3])); err == nil {
				out = append(out, v[0])
				l.pos += 3
				continue
			}
		}
		out = append(out, ch)
		l.pos++
	}
	return Name(out), nil
}

func (l *lexer) parseLiteralString() (Object, error) {
	l.pos++ // '('
	var out []byte
	depth := 1
	for l.pos < len(l.data) {
		ch := l.data[l.pos]
		switch ch {
		case '\\':
			l.pos++
			if l.eof() {
				return nil, errUnexpectedEOF
			}
			esc := l.data[l.pos]
			switch esc {
			case 'n':
				out = append(out, '\n')
			case 'r':
				out = append(out, '\r')
			case 't':
				out = append(out, '\t')
			case 'b':
				out = append(out, '\b')
			case 'f':
				out = append(out, '\f')
			case '\n':
				// line continuation
			case '\r':
				if l.pos+1 < len(l.data) && l.data[l.pos+1] == '\n' {
					l.pos++
				}
			default:
				if esc >= '0' && esc <= '7' {
					v := int(esc - '0')
					for k := 0; k < 2 && l.pos+1 < len(l.data); k++ {
						nx := l.data[l.pos+1]
						if nx < '0' || nx > '7' {
							break
						}
						v = v*8 + int(nx-'0')
						l.pos++
					}
					out = append(out, byte(v))
				} else {
					out = append(out, esc)
				}
			}
			l.pos++
		case '(':
			depth++
			out = append(out, ch)
			l.pos++
		case ')':
			depth--
			l.pos++
			if depth == 0 {
				return String(out), nil
			}
			out = append(out, ch)
		default:
			out = append(out, ch)
			l.pos++
		}
	}
	return nil, errUnexpectedEOF
}

func (l *lexer) parseHexString() (Object, error) {
	l.pos++ // '<'
	var digits []byte
	for l.pos < len(l.data) {
		ch := l.data[l.pos]
		if ch == '>' {
			l.pos++
			if len(digits)%2 == 1 {
				digits = append(digits, '0')
			}
			out := make([]byte, hex.DecodedLen(len(digits)))
			if _, err := hex.Decode(out, digits); err != nil {
				return nil, fmt.Errorf("pdf: bad hex string: %w", err)
			}
			return HexString(out), nil
		}
		if !isWhitespace(ch) {
			digits = append(digits, ch)
		}
		l.pos++
	}
	return nil, errUnexpectedEOF
}

func (l *lexer) parseArray() (Object, error) {
	l.pos++ // '['
	arr := Array{}
	for {
		l.skipWS()
		if l.eof() {
			return nil, errUnexpectedEOF
		}
		if l.data[l.pos] == ']' {
			l.pos++
			return arr, nil
		}
		item, err := l.parseValue()
		if err != nil {
			return nil, err
		}
		arr = append(arr, item)
	}
}

func (l *lexer) parseDict() (Object, error) {
	l.pos += 2 // '<<'
	d := Dict{}
	for {
		l.skipWS()
		if l.pos+1 < len(l.data) && l.data[l.pos] == '>' && l.data[l.pos+1] == '>' {
			l.pos += 2
			return d, nil
		}
		if l.eof() {
			return nil, errUnexpectedEOF
		}
		if l.data[l.pos] != '/' {
			return nil, fmt.Errorf("pdf: dictionary key is not a name at offset %d", l.pos)
		}
		key, err := l.parseName()
		if err != nil {
			return nil, err
		}
		val, err := l.parseValue()
		if err != nil {
			return nil, err
		}
		d[key.(Name)] = val
	}
}

func (l *lexer) parseNumberOrRef() (Object, error) {
	num, isInt, err := l.readNumber()
	if err != nil {
		return nil, err
	}
	if !isInt || num < 0 {
		if isInt {
			return Integer(num), nil
		}
		return Real(num), nil
	}
	save := l.pos
	l.skipWS()
	if l.eof() || l.data[l.pos] < '0' || l.data[l.pos] > '9' {
		l.pos = save
		return Integer(num), nil
	}
	gen, genInt, err := l.readNumber()
	if err != nil || !genInt || gen < 0 {
		l.pos = save
		return Integer(num), nil
	}
	l.skipWS()
	if !l.eof() && l.data[l.pos] == 'R' {
		after := l.pos + 1
		if after >= len(l.data) || isWhitespace(l.data[after]) || isDelimiter(l.data[after]) {
			l.pos = after
			return Ref{Num: int(num), Gen: int(gen)}, nil
		}
	}
	l.pos = save
	return Integer(num), nil
}

func (l *lexer) readNumber() (float64, bool, error) {
	start := l.pos
	if !l.eof() && (l.data[l.pos] == '+' || l.data[l.pos] == '-') {
		l.pos++
	}
	isInt := true
	for l.pos < len(l.data) {
		ch := l.data[l.pos]
		if ch >= '0' && ch <= '9' {
			l.pos++
			continue
		}
		if ch == '.' && isInt {
			isInt = false
			l.pos++
			continue
		}
		break
	}
	text := string(l.data[start:l.pos])
	if text == "" || text == "+" || text == "-" || text == "." {
		return 0, false, fmt.Errorf("pdf: malformed number at offset %d", start)
	}
	v, err := strconv.ParseFloat(text, 64)
	if err != nil {
		return 0, false, fmt.Errorf("pdf: malformed number %q: %w", text, err)
	}
	return v, isInt, nil
}
