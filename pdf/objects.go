// Package pdf reads, mutates and incrementally rewrites PDF documents,
// scoped to what the annotation apply pipeline needs: page-tree access,
// annotation insertion, image placement and append-only serialization.
package pdf

import (
	"bytes"
	"encoding/hex"
	"fmt"
	"sort"
	"strconv"
)

// Object is one PDF value: Name, Integer, Real, String, HexString, Bool,
// Null, Array, Dict, Ref or *Stream.
type Object interface{}

type (
	Name      string
	Integer   int64
	Real      float64
	String    []byte
	HexString []byte
	Bool      bool
	Null      struct{}
	Array     []Object
	Dict      map[Name]Object
)

// Ref is an indirect object reference.
type Ref struct{ Num, Gen int }

func (r Ref) String() string { return fmt.Sprintf("%d %d R", r.Num, r.Gen) }

// Stream is a stream object: its dictionary plus the raw (encoded) data.
type Stream struct {
	Dict Dict
	Data []byte
}

// Rectangle is a rect in PDF user space (origin bottom-left).
type Rectangle struct {
	LLX, LLY, URX, URY float64
}

func (r Rectangle) Array() Array {
	return Array{Real(r.LLX), Real(r.LLY), Real(r.URX), Real(r.URY)}
}

// Point is a location in PDF user space.
type Point struct{ X, Y float64 }

func toFloat(o Object) (float64, bool) {
	switch v := o.(type) {
	case Integer:
		return float64(v), true
	case Real:
		return float64(v), true
	}
	return 0, false
}

func toInt(o Object) (int64, bool) {
	switch v := o.(type) {
	case Integer:
		return int64(v), true
	case Real:
		return int64(v), true
	}
	return 0, false
}

// fmtFloat renders a float in plain decimal form; PDF syntax has no
// exponent notation.
func fmtFloat(f float64) string {
	s := strconv.FormatFloat(f, 'f', -1, 64)
	if len(s) > 12 {
		s = strconv.FormatFloat(f, 'f', 4, 64)
	}
	return s
}

// serializeObject renders one object in PDF syntax. Dictionary keys are
// sorted so output is deterministic.
func serializeObject(buf *bytes.Buffer, o Object) {
	switch v := o.(type) {
	case Name:
		buf.WriteByte('/')
		buf.WriteString(escapeName(string(v)))
	case Integer:
		buf.WriteString(strconv.FormatInt(int64(v), 10))
	case Real:
		buf.WriteString(fmtFloat(float64(v)))
	case Bool:
		if v {
			buf.WriteString("true")
		} else {
			buf.WriteString("false")
		}
	case Null, nil:
		buf.WriteString("null")
	case String:
		escapeLiteralString(buf, v)
	case HexString:
		buf.WriteByte('<')
		dst := make([]byte, hex.EncodedLen(len(v)))
		hex.Encode(dst, v)
		buf.Write(bytes.ToUpper(dst))
		buf.WriteByte('>')
	case Ref:
		fmt.Fprintf(buf, "%d %d R", v.Num, v.Gen)
	case Array:
		buf.WriteByte('[')
		for i, it := range v {
			if i > 0 {
				buf.WriteByte(' ')
			}
			serializeObject(buf, it)
		}
		buf.WriteByte(']')
	case Dict:
		serializeDict(buf, v)
	case *Stream:
		serializeDict(buf, v.Dict)
		buf.WriteString("\nstream\n")
		buf.Write(v.Data)
		buf.WriteString("\nendstream")
	default:
		buf.WriteString("null")
	}
}

func serializeDict(buf *bytes.Buffer, d Dict) {
	keys := make([]string, 0, len(d))
	for k := range d {
		keys = append(keys, string(k))
	}
	sort.Strings(keys)
	buf.WriteString("<<")
	for _, k := range keys {
		buf.WriteByte('/')
		buf.WriteString(escapeName(k))
		buf.WriteByte(' ')
		serializeObject(buf, d[Name(k)])
	}
	buf.WriteString(">>")
}

func escapeLiteralString(b *bytes.Buffer, raw []byte) {
	b.WriteByte('(')
	for _, ch := range raw {
		switch ch {
		case '\\', '(', ')':
			b.WriteByte('\\')
			b.WriteByte(ch)
		case '\n':
			b.WriteString("\\n")
		case '\r':
			b.WriteString("\\r")
		case '\t':
			b.WriteString("\\t")
		default:
			if ch < 0x20 || ch >= 0x80 {
				fmt.Fprintf(b, "\\%03o", ch)
			} else {
				b.WriteByte(ch)
			}
		}
	}
	b.WriteByte(')')
}

func escapeName(value string) string {
	ok := true
	for i := 0; i < len(value); i++ {
		ch := value[i]
		if !((ch >= 'A' && ch <= 'Z') || (ch >= 'a' && ch <= 'z') ||
			(ch >= '0' && ch <= '9') || ch == '-' || ch == '_' || ch == '.' || ch == '+') {
			ok = false
			break
		}
	}
	if ok {
		return value
	}
	var b bytes.Buffer
	for i := 0; i < len(value); i++ {
		ch := value[i]
		if (ch >= 'A' && ch <= 'Z') || (ch >= 'a' && ch <= 'z') ||
			(ch >= '0' && ch <= '9') || ch == '-' || ch == '_' || ch == '.' || ch == '+' {
			b.WriteByte(ch)
		} else {
			fmt.Fprintf(&b, "#%02X", ch)
		}
	}
	return b.String()
}
