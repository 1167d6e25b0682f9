package pdf

import (
	"bytes"
	"compress/zlib"
	"errors"
	"fmt"
	"io"
	"regexp"
	"strconv"
)

var (
	// ErrEncrypted is returned for documents carrying an /Encrypt
	// dictionary; the apply pipeline refuses to touch those.
	ErrEncrypted = errors.New("pdf: document is encrypted")

	ErrNoHeader = errors.New("pdf: missing %PDF header")
)

type xrefEntry struct {
	offset    int64
	gen       int
	inStream  bool
	streamNum int
	streamIdx int
}

var (
	startXRefRE = regexp.MustCompile(`startxref\s+(\d+)`)
	objOffsetRE = regexp.MustCompile(`(?m)^[^\d\n\r]{0,4}(\d+)\s+(\d+)\s+obj\b`)
)

// lastStartXRef finds the final startxref pointer in the file.
func lastStartXRef(data []byte) (int64, bool) {
	matches := startXRefRE.FindAllSubmatch(data, -1)
	if len(matches) == 0 {
		return 0, false
	}
	v, err := strconv.ParseInt(string(matches[len(matches)-1][1]), 10, 64)
	if err != nil {
		return 0, false
	}
	return v, true
}

// loadXRef walks the cross-reference chain starting at offset, filling
// d.xref and d.trailer. Newer sections win, so entries already present
// are never overwritten.
func (d *Document) loadXRef(offset int64) error {
	visited := map[int64]bool{}
	for {
		if offset < 0 || offset >= int64(len(d.data)) {
			return fmt.Errorf("pdf: xref offset %d out of range", offset)
		}
		if visited[offset] {
			return nil
		}
		visited[offset] = true

		l := &lexer{data: d.data, pos: int(offset)}
		l.skipWS()
		var trailer Dict
		var err error
		if bytes.HasPrefix(d.data[l.pos:], []byte("xref")) {
			trailer, err = d.loadXRefTable(l)
		} else {
			trailer, err = d.loadXRefStream(l)
		}
		if err != nil {
			return err
		}
		d.mergeTrailer(trailer)

		// Hybrid-reference files point at an extra xref stream.
		if stm, ok := toInt(trailer["XRefStm"]); ok && !visited[stm] {
			visited[stm] = true
			sl := &lexer{data: d.data, pos: int(stm)}
			sl.skipWS()
			if st, serr := d.loadXRefStream(sl); serr == nil {
				d.mergeTrailer(st)
			}
		}

		prev, ok := toInt(trailer["Prev"])
		if !ok {
			return nil
		}
		offset = prev
	}
}

func (d *Document) mergeTrailer(t Dict) {
	if d.trailer == nil {
		d.trailer = Dict{}
	}
	for k, v := range t {
		if _, exists := d.trailer[k]; !exists {
			d.trailer[k] = v
		}
	}
}

func (d *Document) setEntry(num int, e xrefEntry) {
	if _, exists := d.xref[num]; !exists {
		d.xref[num] = e
	}
	if num > d.maxObjNum {
		d.maxObjNum = num
	}
}

// loadXRefTable parses a classic "xref" section followed by a trailer.
func (d *Document) loadXRefTable(l *lexer) (Dict, error) {
	if err := l.expectKeyword("xref"); err != nil {
		return nil, err
	}
	for {
		l.skipWS()
		if bytes.HasPrefix(d.data[l.pos:], []byte("trailer")) {
			break
		}
		first, firstInt, err := l.readNumber()
		if err != nil || !firstInt {
			return nil, fmt.Errorf("pdf: malformed xref subsection header at %d", l.pos)
		}
		l.skipWS()
		count, countInt, err := l.readNumber()
		if err != nil || !countInt {
			return nil, fmt.Errorf("pdf: malformed xref subsection count at %d", l.pos)
		}
		for i := 0; i < int(count); i++ {
			l.skipWS()
			if l.pos+18 > len(l.data) {
				return nil, errUnexpectedEOF
			}
			line := l.data[l.pos : l.pos+18]
			off, err1 := strconv.ParseInt(string(bytes.TrimSpace(line[0:10])), 10, 64)
			gen, err2 := strconv.Atoi(string(bytes.TrimSpace(line[11:16])))
			kind := line[17]
			if err1 != nil || err2 != nil {
				return nil, fmt.Errorf("pdf: malformed xref entry at %d", l.pos)
			}
			l.pos += 18
			num := int(first) + i
			if kind == 'n' && num > 0 {
				d.setEntry(num, xrefEntry{offset: off, gen: gen})
			}
		}
	}
	if err := l.expectKeyword("trailer"); err != nil {
		return nil, err
	}
	obj, err := l.parseValue()
	if err != nil {
		return nil, err
	}
	trailer, ok := obj.(Dict)
	if !ok {
		return nil, fmt.Errorf("pdf: trailer is not a dictionary")
	}
	return trailer, nil
}

// loadXRefStream parses a cross-reference stream (PDF 1.5+).
func (d *Document) loadXRefStream(l *lexer) (Dict, error) {
	_, _, stm, err := parseIndirectAt(l, d)
	if err != nil {
		return nil, err
	}
	xs, ok := stm.(*Stream)
	if !ok {
		return nil, fmt.Errorf("pdf: xref offset does not point at a stream object")
	}
	if t, _ := xs.Dict["Type"].(Name); t != "XRef" {
		return nil, fmt.Errorf("pdf: expected /Type /XRef stream, got %v", xs.Dict["Type"])
	}
	data, err := decodeStream(xs, d)
	if err != nil {
		return nil, fmt.Errorf("pdf: decoding xref stream: %w", err)
	}

	wArr, ok := xs.Dict["W"].(Array)
	if !ok || len(wArr) < 3 {
		return nil, fmt.Errorf("pdf: xref stream missing /W")
	}
	var w [3]int
	for i := 0; i < 3; i++ {
		v, _ := toInt(wArr[i])
		w[i] = int(v)
	}
	rowLen := w[0] + w[1] + w[2]
	if rowLen == 0 {
		return nil, fmt.Errorf("pdf: zero-width xref stream rows")
	}

	size, _ := toInt(xs.Dict["Size"])
	var index []int64
	if ia, ok := xs.Dict["Index"].(Array); ok {
		for _, it := range ia {
			v, _ := toInt(it)
			index = append(index, v)
		}
	} else {
		index = []int64{0, size}
	}

	pos := 0
	readField := func(width int) int64 {
		var v int64
		for i := 0; i < width; i++ {
			v = v<<8 | int64(data[pos])
			pos++
		}
		return v
	}
	for i := 0; i+1 < len(index); i += 2 {
		start, count := index[i], index[i+1]
		for j := int64(0); j < count; j++ {
			if pos+rowLen > len(data) {
				return nil, fmt.Errorf("pdf: xref stream data truncated")
			}
			typ := int64(1)
			if w[0] > 0 {
				typ = readField(w[0])
			}
			f2 := readField(w[1])
			f3 := readField(w[2])
			num := int(start + j)
			switch typ {
			case 1:
				if num > 0 {
					d.setEntry(num, xrefEntry{offset: f2, gen: int(f3)})
				}
			case 2:
				d.setEntry(num, xrefEntry{inStream: true, streamNum: int(f2), streamIdx: int(f3)})
			}
		}
	}
	return xs.Dict, nil
}

// parseIndirectAt reads "N G obj <object> [stream...endstream] endobj"
// at the lexer position. The document is needed to resolve an indirect
// /Length while reading stream data.
func parseIndirectAt(l *lexer, d *Document) (num, gen int, obj Object, err error) {
	l.skipWS()
	n, nInt, err := l.readNumber()
	if err != nil || !nInt {
		return 0, 0, nil, fmt.Errorf("pdf: expected object number at offset %d", l.pos)
	}
	l.skipWS()
	g, gInt, err := l.readNumber()
	if err != nil || !gInt {
		return 0, 0, nil, fmt.Errorf("pdf: expected generation number at offset %d", l.pos)
	}
	if err := l.expectKeyword("obj"); err != nil {
		return 0, 0, nil, err
	}
	val, err := l.parseValue()
	if err != nil {
		return 0, 0, nil, err
	}
	l.skipWS()
	if dict, ok := val.(Dict); ok && bytes.HasPrefix(l.data[l.pos:], []byte("stream")) {
		l.pos += len("stream")
		if l.pos < len(l.data) && l.data[l.pos] == '\r' {
			l.pos++
		}
		if l.pos < len(l.data) && l.data[l.pos] == '\n' {
			l.pos++
		}
		length := int64(-1)
		switch lv := dict["Length"].(type) {
		case Integer:
			length = int64(lv)
		case Ref:
			if d != nil {
				if lo, lerr := d.object(lv); lerr == nil {
					if v, ok := toInt(lo); ok {
						length = v
					}
				}
			}
		}
		dataStart := l.pos
		var raw []byte
		if length >= 0 && dataStart+int(length) <= len(l.data) {
			raw = l.data[dataStart : dataStart+int(length)]
			l.pos = dataStart + int(length)
			if err := l.expectKeyword("endstream"); err != nil {
				// Length was wrong; fall back to scanning.
				length = -1
			}
		} else {
			length = -1
		}
		if length < 0 {
			end := bytes.Index(l.data[dataStart:], []byte("endstream"))
			if end < 0 {
				return 0, 0, nil, fmt.Errorf("pdf: unterminated stream in object %d", int(n))
			}
			raw = bytes.TrimRight(l.data[dataStart:dataStart+end], "\r\n")
			l.pos = dataStart + end + len("endstream")
		}
		val = &Stream{Dict: dict, Data: raw}
	}
	// endobj is optional in damaged files; consume it when present.
	save := l.pos
	if err := l.expectKeyword("endobj"); err != nil {
		l.pos = save
	}
	return int(n), int(g), val, nil
}

// decodeStream applies the stream's filter chain. Only FlateDecode
// (with optional predictors) and unfiltered data are supported; that
// covers content streams, object streams and xref streams.
func decodeStream(s *Stream, d *Document) ([]byte, error) {
	var filters []Name
	var parms []Dict
	resolve := func(o Object) Object {
		if d != nil {
			return d.resolve(o)
		}
		return o
	}
	switch f := resolve(s.Dict["Filter"]).(type) {
	case Name:
		filters = []Name{f}
		if p, ok := resolve(s.Dict["DecodeParms"]).(Dict); ok {
			parms = []Dict{p}
		} else {
			parms = []Dict{nil}
		}
	case Array:
		pa, _ := resolve(s.Dict["DecodeParms"]).(Array)
		for i, it := range f {
			name, ok := resolve(it).(Name)
			if !ok {
				return nil, fmt.Errorf("pdf: non-name filter entry")
			}
			filters = append(filters, name)
			var p Dict
			if i < len(pa) {
				p, _ = resolve(pa[i]).(Dict)
			}
			parms = append(parms, p)
		}
	case nil, Null:
		return s.Data, nil
	default:
		return nil, fmt.Errorf("pdf: unsupported filter specification %T", f)
	}

	data := s.Data
	for i, f := range filters {
		switch f {
		case "FlateDecode", "Fl":
			zr, err := zlib.NewReader(bytes.NewReader(data))
			if err != nil {
				return nil, fmt.Errorf("pdf: flate: %w", err)
			}
			out, err := io.ReadAll(zr)
			zr.Close()
			if err != nil && len(out) == 0 {
				return nil, fmt.Errorf("pdf: flate: %w", err)
			}
			data = out
			if parms[i] != nil {
				data, err = applyPredictor(data, parms[i], resolve)
				if err != nil {
					return nil, err
				}
			}
		default:
			return nil, fmt.Errorf("pdf: unsupported filter /%s", f)
		}
	}
	return data, nil
}

// applyPredictor undoes TIFF predictor 2 and the PNG predictors
// (10..15) commonly used on xref streams.
func applyPredictor(data []byte, parms Dict, resolve func(Object) Object) ([]byte, error) {
	pred, _ := toInt(resolve(parms["Predictor"]))
	if pred <= 1 {
		return data, nil
	}
	columns := int64(1)
	if v, ok := toInt(resolve(parms["Columns"])); ok {
		columns = v
	}
	colors := int64(1)
	if v, ok := toInt(resolve(parms["Colors"])); ok {
		colors = v
	}
	bpc := int64(8)
	if v, ok := toInt(resolve(parms["BitsPerComponent"])); ok {
		bpc = v
	}
	bpp := int(colors * bpc / 8)
	if bpp < 1 {
		bpp = 1
	}
	rowLen := int(columns) * bpp

	if pred == 2 {
		for r := 0; r+rowLen <= len(data); r += rowLen {
			row := data[r : r+rowLen]
			for i := bpp; i < len(row); i++ {
				row[i] += row[i-bpp]
			}
		}
		return data, nil
	}

	// PNG predictors carry one tag byte per row.
	stride := rowLen + 1
	rows := len(data) / stride
	out := make([]byte, 0, rows*rowLen)
	prev := make([]byte, rowLen)
	for r := 0; r < rows; r++ {
		tag := data[r*stride]
		row := make([]byte, rowLen)
		copy(row, data[r*stride+1:(r+1)*stride])
		switch tag {
		case 0:
		case 1:
			for i := bpp; i < rowLen; i++ {
				row[i] += row[i-bpp]
			}
		case 2:
			for i := 0; i < rowLen; i++ {
				row[i] += prev[i]
			}
		case 3:
			for i := 0; i < rowLen; i++ {
				var left byte
				if i >= bpp {
					left = row[i-bpp]
				}
				row[i] += byte((int(left) + int(prev[i])) / 2)
			}
		case 4:
			for i := 0; i < rowLen; i++ {
				var left, upLeft byte
				if i >= bpp {
					left = row[i-bpp]
					upLeft = prev[i-bpp]
				}
				row[i] += paeth(left, prev[i], upLeft)
			}
		default:
			return nil, fmt.Errorf("pdf: unknown PNG predictor tag %d", tag)
		}
		out = append(out, row...)
		prev = row
	}
	return out, nil
}

func paeth(a, b, c byte) byte {
	p := int(a) + int(b) - int(c)
	pa, pb, pc := abs(p-int(a)), abs(p-int(b)), abs(p-int(c))
	if pa <= pb && pa <= pc {
		return a
	}
	if pb <= pc {
		return b
	}
	return c
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}

// rebuildXRef is the repair path: scan the whole file for object
// headers and reconstruct the table, preferring later occurrences.
func (d *Document) rebuildXRef() error {
	d.xref = map[int]xrefEntry{}
	for _, m := range objOffsetRE.FindAllSubmatchIndex(d.data, -1) {
		numStart := m[2]
		num, err1 := strconv.Atoi(string(d.data[m[2]:m[3]]))
		gen, err2 := strconv.Atoi(string(d.data[m[4]:m[5]]))
		if err1 != nil || err2 != nil {
			continue
		}
		// Later definitions supersede earlier ones.
		d.xref[num] = xrefEntry{offset: int64(numStart), gen: gen}
		if num > d.maxObjNum {
			d.maxObjNum = num
		}
	}
	if len(d.xref) == 0 {
		return fmt.Errorf("pdf: no objects found while rebuilding xref")
	}

	// Recover a trailer: last "trailer" keyword, else hunt the catalog.
	if idx := bytes.LastIndex(d.data, []byte("trailer")); idx >= 0 {
		l := &lexer{data: d.data, pos: idx + len("trailer")}
		if obj, err := l.parseValue(); err == nil {
			if t, ok := obj.(Dict); ok {
				d.mergeTrailer(t)
			}
		}
	}
	if _, ok := d.trailer["Root"]; !ok {
		for num := range d.xref {
			ref := Ref{Num: num, Gen: d.xref[num].gen}
			obj, err := d.object(ref)
			if err != nil {
				continue
			}
			if dict, ok := obj.(Dict); ok {
				if t, _ := dict["Type"].(Name); t == "Catalog" {
					d.mergeTrailer(Dict{"Root": ref, "Size": Integer(d.maxObjNum + 1)})
					break
				}
			}
		}
	}
	if _, ok := d.trailer["Root"]; !ok {
		return fmt.Errorf("pdf: could not locate document catalog")
	}
	return nil
}
