package pdf

import (
	"bytes"
	"fmt"
	"regexp"

	"github.com/pagemark/pagemark/coords"
)

const maxResolveDepth = 32

// Document is a parsed PDF held fully in memory. Mutations accumulate
// as dirty objects and are serialized by MarshalIncremental without
// touching the original bytes.
type Document struct {
	data      []byte
	xref      map[int]xrefEntry
	trailer   Dict
	startXRef int64
	maxObjNum int

	cache map[int]Object
	dirty map[int]bool

	pages  []*Page
	imgSeq int
}

// Page is one leaf of the page tree with its inherited attributes
// already resolved.
type Page struct {
	doc      *Document
	ref      Ref
	dict     Dict
	mediaBox Rectangle
}

// Parse reads a complete PDF from data. Encrypted documents are
// rejected with ErrEncrypted. When the cross-reference chain is
// broken the file is repaired by scanning for object headers.
func Parse(data []byte) (*Document, error) {
	if !bytes.Contains(data[:min(1024, len(data))], []byte("%PDF-")) {
		return nil, ErrNoHeader
	}
	d := &Document{
		data:  data,
		xref:  map[int]xrefEntry{},
		cache: map[int]Object{},
		dirty: map[int]bool{},
	}
	start, ok := lastStartXRef(data)
	if ok {
		d.startXRef = start
		if err := d.loadXRef(start); err != nil {
			d.xref = map[int]xrefEntry{}
			d.trailer = nil
			if rerr := d.rebuildXRef(); rerr != nil {
				return nil, fmt.Errorf("pdf: %v (repair failed: %w)", err, rerr)
			}
		}
	} else {
		if err := d.rebuildXRef(); err != nil {
			return nil, err
		}
	}
	if d.trailer == nil {
		if err := d.rebuildXRef(); err != nil {
			return nil, err
		}
	}
	if _, enc := d.trailer["Encrypt"]; enc {
		return nil, ErrEncrypted
	}
	if err := d.loadPages(); err != nil {
		return nil, err
	}
	return d, nil
}

func min(a, b int) int {
	if a < b {
		return a
	}
	return b
}

// object loads an indirect object by number, via the xref table or the
// containing object stream, caching the result.
func (d *Document) object(ref Ref) (Object, error) {
	if o, ok := d.cache[ref.Num]; ok {
		return o, nil
	}
	e, ok := d.xref[ref.Num]
	if !ok {
		return Null{}, nil
	}
	if e.inStream {
		o, err := d.objectFromStream(e)
		if err != nil {
			return nil, err
		}
		d.cache[ref.Num] = o
		return o, nil
	}
	l := &lexer{data: d.data, pos: int(e.offset)}
	num, _, obj, err := parseIndirectAt(l, d)
	if err != nil {
		return nil, fmt.Errorf("pdf: loading object %d: %w", ref.Num, err)
	}
	if num != ref.Num {
		return nil, fmt.Errorf("pdf: xref points %d at object %d", ref.Num, num)
	}
	d.cache[ref.Num] = obj
	return obj, nil
}

func (d *Document) objectFromStream(e xrefEntry) (Object, error) {
	container, err := d.object(Ref{Num: e.streamNum})
	if err != nil {
		return nil, err
	}
	stm, ok := container.(*Stream)
	if !ok {
		return nil, fmt.Errorf("pdf: object stream %d is not a stream", e.streamNum)
	}
	data, err := decodeStream(stm, d)
	if err != nil {
		return nil, fmt.Errorf("pdf: decoding object stream %d: %w", e.streamNum, err)
	}
	n, _ := toInt(d.resolve(stm.Dict["N"]))
	first, _ := toInt(d.resolve(stm.Dict["First"]))

	hdr := &lexer{data: data, pos: 0}
	var off int64 = -1
	for i := int64(0); i < n; i++ {
		hdr.skipWS()
		_, _, err := hdr.readNumber()
		if err != nil {
			return nil, fmt.Errorf("pdf: malformed object stream header")
		}
		hdr.skipWS()
		o, _, err := hdr.readNumber()
		if err != nil {
			return nil, fmt.Errorf("pdf: malformed object stream header")
		}
		if int(i) == e.streamIdx {
			off = int64(o)
			break
		}
	}
	if off < 0 || first+off >= int64(len(data)) {
		return nil, fmt.Errorf("pdf: object index %d not in stream %d", e.streamIdx, e.streamNum)
	}
	body := &lexer{data: data, pos: int(first + off)}
	return body.parseValue()
}

// resolve follows reference chains until a direct object remains.
func (d *Document) resolve(o Object) Object {
	for depth := 0; depth < maxResolveDepth; depth++ {
		ref, ok := o.(Ref)
		if !ok {
			return o
		}
		next, err := d.object(ref)
		if err != nil {
			return Null{}
		}
		o = next
	}
	return Null{}
}

func (d *Document) resolveDict(o Object) (Dict, bool) {
	v, ok := d.resolve(o).(Dict)
	return v, ok
}

// AddObject registers obj under a fresh object number and returns its
// reference.
func (d *Document) AddObject(obj Object) Ref {
	d.maxObjNum++
	num := d.maxObjNum
	d.cache[num] = obj
	d.dirty[num] = true
	d.xref[num] = xrefEntry{}
	return Ref{Num: num}
}

// touch marks an existing object as modified so the incremental writer
// re-emits it.
func (d *Document) touch(ref Ref) {
	d.dirty[ref.Num] = true
}

func (d *Document) loadPages() error {
	root, ok := d.resolveDict(d.trailer["Root"])
	if !ok {
		return fmt.Errorf("pdf: document catalog missing or invalid")
	}
	pagesRef, _ := root["Pages"].(Ref)
	node := d.resolve(root["Pages"])
	top, ok := node.(Dict)
	if !ok {
		return fmt.Errorf("pdf: /Pages is not a dictionary")
	}
	inherited := Dict{}
	return d.walkPages(pagesRef, top, inherited, 0)
}

var inheritableKeys = []Name{"MediaBox", "Resources", "Rotate", "CropBox"}

func (d *Document) walkPages(ref Ref, node Dict, inherited Dict, depth int) error {
	if depth > 64 {
		return fmt.Errorf("pdf: page tree too deep")
	}
	merged := Dict{}
	for k, v := range inherited {
		merged[k] = v
	}
	for _, k := range inheritableKeys {
		if v, ok := node[k]; ok {
			merged[k] = v
		}
	}
	typ, _ := node["Type"].(Name)
	if typ == "Page" || (typ == "" && node["Kids"] == nil) {
		if len(d.pages) >= 65536 {
			return fmt.Errorf("pdf: page count limit exceeded")
		}
		p := &Page{doc: d, ref: ref, dict: node}
		mb := node["MediaBox"]
		if mb == nil {
			mb = merged["MediaBox"]
		}
		p.mediaBox = d.rectFrom(mb, Rectangle{URX: 612, URY: 792})
		d.pages = append(d.pages, p)
		return nil
	}
	kids, ok := d.resolve(node["Kids"]).(Array)
	if !ok {
		return fmt.Errorf("pdf: page tree node without /Kids")
	}
	for _, kid := range kids {
		kref, _ := kid.(Ref)
		kd, ok := d.resolveDict(kid)
		if !ok {
			continue
		}
		if err := d.walkPages(kref, kd, merged, depth+1); err != nil {
			return err
		}
	}
	return nil
}

func (d *Document) rectFrom(o Object, fallback Rectangle) Rectangle {
	arr, ok := d.resolve(o).(Array)
	if !ok || len(arr) < 4 {
		return fallback
	}
	var v [4]float64
	for i := 0; i < 4; i++ {
		f, ok := toFloat(d.resolve(arr[i]))
		if !ok {
			return fallback
		}
		v[i] = f
	}
	r := Rectangle{LLX: v[0], LLY: v[1], URX: v[2], URY: v[3]}
	if r.LLX > r.URX {
		r.LLX, r.URX = r.URX, r.LLX
	}
	if r.LLY > r.URY {
		r.LLY, r.URY = r.URY, r.LLY
	}
	return r
}

// PageCount reports the number of leaf pages.
func (d *Document) PageCount() int { return len(d.pages) }

// Page returns the zero-based page, or an error when out of range.
func (d *Document) Page(i int) (*Page, error) {
	if i < 0 || i >= len(d.pages) {
		return nil, fmt.Errorf("pdf: page %d out of range (document has %d)", i, len(d.pages))
	}
	return d.pages[i], nil
}

// Size reports the page dimensions in PDF points.
func (p *Page) Size() coords.Size {
	return coords.Size{W: p.mediaBox.URX - p.mediaBox.LLX, H: p.mediaBox.URY - p.mediaBox.LLY}
}

// FromTopLeft converts a rect given in top-left document space to PDF
// user space on this page.
func (p *Page) FromTopLeft(r coords.Rect) Rectangle {
	h := p.mediaBox.URY - p.mediaBox.LLY
	return Rectangle{
		LLX: p.mediaBox.LLX + r.X0,
		LLY: p.mediaBox.LLY + h - r.Y1,
		URX: p.mediaBox.LLX + r.X1,
		URY: p.mediaBox.LLY + h - r.Y0,
	}
}

// PointFromTopLeft converts a single point to PDF user space.
func (p *Page) PointFromTopLeft(pt coords.Point) Point {
	h := p.mediaBox.URY - p.mediaBox.LLY
	return Point{X: p.mediaBox.LLX + pt.X, Y: p.mediaBox.LLY + h - pt.Y}
}

var textOpRE = regexp.MustCompile(`(?s)\bBT\b.*?\bET\b`)

// HasTextLayer reports whether the page's content streams contain text
// showing operators. Undecodable content counts as no text layer.
func (p *Page) HasTextLayer() bool {
	data, err := p.contentBytes()
	if err != nil {
		return false
	}
	return textOpRE.Match(data)
}

func (p *Page) contentBytes() ([]byte, error) {
	var out bytes.Buffer
	appendOne := func(o Object) error {
		stm, ok := p.doc.resolve(o).(*Stream)
		if !ok {
			return fmt.Errorf("pdf: content entry is not a stream")
		}
		data, err := decodeStream(stm, p.doc)
		if err != nil {
			return err
		}
		out.Write(data)
		out.WriteByte('\n')
		return nil
	}
	switch c := p.dict["Contents"].(type) {
	case nil:
		return nil, nil
	case Ref:
		if arr, ok := p.doc.resolve(c).(Array); ok {
			for _, it := range arr {
				if err := appendOne(it); err != nil {
					return nil, err
				}
			}
			return out.Bytes(), nil
		}
		if err := appendOne(c); err != nil {
			return nil, err
		}
		return out.Bytes(), nil
	case Array:
		for _, it := range c {
			if err := appendOne(it); err != nil {
				return nil, err
			}
		}
		return out.Bytes(), nil
	default:
		return nil, fmt.Errorf("pdf: unsupported /Contents type %T", c)
	}
}

// AnnotationSubtypes lists the /Subtype of every annotation on the
// page, in array order.
func (p *Page) AnnotationSubtypes() []string {
	arr, ok := p.doc.resolve(p.dict["Annots"]).(Array)
	if !ok {
		return nil
	}
	var out []string
	for _, it := range arr {
		if ad, ok := p.doc.resolveDict(it); ok {
			if s, ok := ad["Subtype"].(Name); ok {
				out = append(out, string(s))
			}
		}
	}
	return out
}

// addAnnot creates the annotation object and links it into the page's
// /Annots array, copying indirect arrays on write.
func (p *Page) addAnnot(dict Dict) Ref {
	dict["Type"] = Name("Annot")
	dict["P"] = p.ref
	ref := p.doc.AddObject(dict)

	switch annots := p.dict["Annots"].(type) {
	case Ref:
		if arr, ok := p.doc.resolve(annots).(Array); ok {
			p.doc.cache[annots.Num] = append(arr, ref)
			p.doc.touch(annots)
			return ref
		}
		p.dict["Annots"] = Array{ref}
	case Array:
		p.dict["Annots"] = append(annots, ref)
	default:
		p.dict["Annots"] = Array{ref}
	}
	p.doc.touch(p.ref)
	return ref
}

// ensureResources returns the page's direct /Resources dictionary,
// cloning a shared indirect one first so sibling pages are unaffected.
func (p *Page) ensureResources() Dict {
	switch res := p.dict["Resources"].(type) {
	case Dict:
		return res
	case Ref:
		src, _ := p.doc.resolveDict(res)
		clone := Dict{}
		for k, v := range src {
			clone[k] = v
		}
		p.dict["Resources"] = clone
		p.doc.touch(p.ref)
		return clone
	default:
		clone := Dict{}
		p.dict["Resources"] = clone
		p.doc.touch(p.ref)
		return clone
	}
}

// appendContent adds a content stream after the existing ones.
func (p *Page) appendContent(data []byte) {
	stm := &Stream{
		Dict: Dict{"Length": Integer(len(data))},
		Data: data,
	}
	ref := p.doc.AddObject(stm)
	switch c := p.dict["Contents"].(type) {
	case nil:
		p.dict["Contents"] = Array{ref}
	case Ref:
		if arr, ok := p.doc.resolve(c).(Array); ok {
			next := make(Array, len(arr), len(arr)+1)
			copy(next, arr)
			p.dict["Contents"] = append(next, ref)
		} else {
			p.dict["Contents"] = Array{c, ref}
		}
	case Array:
		next := make(Array, len(c), len(c)+1)
		copy(next, c)
		p.dict["Contents"] = append(next, ref)
	}
	p.doc.touch(p.ref)
}
