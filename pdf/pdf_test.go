package pdf

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"strings"
	"testing"

	"github.com/pagemark/pagemark/coords"
)

// buildClassicPDF emits a one-page PDF with a classic xref table.
// withText controls whether the content stream carries BT/ET text.
func buildClassicPDF(withText bool) []byte {
	var buf bytes.Buffer
	offsets := map[int]int{}
	obj := func(num int, body string) {
		offsets[num] = buf.Len()
		fmt.Fprintf(&buf, "%d 0 obj\n%s\nendobj\n", num, body)
	}

	buf.WriteString("%PDF-1.4\n")
	obj(1, "<< /Type /Catalog /Pages 2 0 R >>")
	obj(2, "<< /Type /Pages /Kids [3 0 R] /Count 1 >>")
	obj(3, "<< /Type /Page /Parent 2 0 R /MediaBox [0 0 612 792] /Contents 4 0 R /Resources << /Font << /F1 5 0 R >> >> >>")
	content := "0 0 1 RG 10 10 m 100 100 l S"
	if withText {
		content = "BT /F1 24 Tf 72 720 Td (Hello) Tj ET"
	}
	obj(4, fmt.Sprintf("<< /Length %d >>\nstream\n%s\nendstream", len(content), content))
	obj(5, "<< /Type /Font /Subtype /Type1 /BaseFont /Helvetica >>")

	xrefOff := buf.Len()
	buf.WriteString("xref\n0 6\n")
	buf.WriteString("0000000000 65535 f \n")
	for i := 1; i <= 5; i++ {
		fmt.Fprintf(&buf, "%010d 00000 n \n", offsets[i])
	}
	fmt.Fprintf(&buf, "trailer\n<< /Size 6 /Root 1 0 R >>\nstartxref\n%d\n%%%%EOF\n", xrefOff)
	return buf.Bytes()
}

// buildStreamXRefPDF emits the same document using an xref stream,
// with the font object packed into an object stream.
func buildStreamXRefPDF(t *testing.T) []byte {
	t.Helper()
	var buf bytes.Buffer
	offsets := map[int]int{}
	obj := func(num int, body string) {
		offsets[num] = buf.Len()
		fmt.Fprintf(&buf, "%d 0 obj\n%s\nendobj\n", num, body)
	}

	buf.WriteString("%PDF-1.5\n")
	obj(1, "<< /Type /Catalog /Pages 2 0 R >>")
	obj(2, "<< /Type /Pages /Kids [3 0 R] /Count 1 >>")
	obj(3, "<< /Type /Page /Parent 2 0 R /MediaBox [0 0 612 792] /Contents 4 0 R /Resources << /Font << /F1 5 0 R >> >> >>")
	content := "BT /F1 24 Tf 72 720 Td (Hello) Tj ET"
	obj(4, fmt.Sprintf("<< /Length %d >>\nstream\n%s\nendstream", len(content), content))

	// Object stream holding object 5.
	fontBody := "<< /Type /Font /Subtype /Type1 /BaseFont /Helvetica >>"
	header := "5 0 "
	stmData := flateEncode([]byte(header + fontBody))
	offsets[6] = buf.Len()
	fmt.Fprintf(&buf, "6 0 obj\n<< /Type /ObjStm /N 1 /First %d /Filter /FlateDecode /Length %d >>\nstream\n",
		len(header), len(stmData))
	buf.Write(stmData)
	buf.WriteString("\nendstream\nendobj\n")

	xrefOff := buf.Len()
	var rows bytes.Buffer
	writeRow := func(typ int, f2 int, f3 int) {
		rows.WriteByte(byte(typ))
		rows.WriteByte(byte(f2 >> 16))
		rows.WriteByte(byte(f2 >> 8))
		rows.WriteByte(byte(f2))
		rows.WriteByte(byte(f3))
	}
	writeRow(0, 0, 0)
	for i := 1; i <= 4; i++ {
		writeRow(1, offsets[i], 0)
	}
	writeRow(2, 6, 0)          // object 5 lives in stream 6 at index 0
	writeRow(1, offsets[6], 0) // object stream
	writeRow(1, xrefOff, 0)    // xref stream itself
	xr := flateEncode(rows.Bytes())
	fmt.Fprintf(&buf, "7 0 obj\n<< /Type /XRef /Size 8 /W [1 3 1] /Index [0 8] /Root 1 0 R /Filter /FlateDecode /Length %d >>\nstream\n",
		len(xr))
	buf.Write(xr)
	fmt.Fprintf(&buf, "\nendstream\nendobj\nstartxref\n%d\n%%%%EOF\n", xrefOff)
	return buf.Bytes()
}

func mustParse(t *testing.T, data []byte) *Document {
	t.Helper()
	doc, err := Parse(data)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	return doc
}

func TestParseClassic(t *testing.T) {
	doc := mustParse(t, buildClassicPDF(true))
	if got := doc.PageCount(); got != 1 {
		t.Fatalf("PageCount = %d, want 1", got)
	}
	page, err := doc.Page(0)
	if err != nil {
		t.Fatal(err)
	}
	if size := page.Size(); size.W != 612 || size.H != 792 {
		t.Errorf("page size = %+v, want 612x792", size)
	}
	if !page.HasTextLayer() {
		t.Error("expected text layer on text fixture")
	}
	if _, err := doc.Page(1); err == nil {
		t.Error("Page(1) should be out of range")
	}
}

func TestParseStreamXRef(t *testing.T) {
	doc := mustParse(t, buildStreamXRefPDF(t))
	if got := doc.PageCount(); got != 1 {
		t.Fatalf("PageCount = %d, want 1", got)
	}
	// Object 5 only exists inside the object stream.
	font, err := doc.object(Ref{Num: 5})
	if err != nil {
		t.Fatalf("loading compressed object: %v", err)
	}
	fd, ok := font.(Dict)
	if !ok || fd["BaseFont"] != Name("Helvetica") {
		t.Errorf("compressed font object = %#v", font)
	}
}

func TestRepairAfterBrokenStartXRef(t *testing.T) {
	data := buildClassicPDF(true)
	broken := bytes.Replace(data, []byte("startxref\n"), []byte("startxref\n999999 %"), 1)
	// Force the offset out of range so the repair scan kicks in.
	doc, err := Parse(broken)
	if err != nil {
		t.Fatalf("Parse of damaged file: %v", err)
	}
	if doc.PageCount() != 1 {
		t.Errorf("repaired PageCount = %d, want 1", doc.PageCount())
	}
}

func TestEncryptedRejected(t *testing.T) {
	data := buildClassicPDF(true)
	data = bytes.Replace(data,
		[]byte("/Size 6 /Root 1 0 R"),
		[]byte("/Size 6 /Root 1 0 R /Encrypt 5 0 R"), 1)
	if _, err := Parse(data); err != ErrEncrypted {
		t.Fatalf("Parse = %v, want ErrEncrypted", err)
	}
}

func TestNoHeader(t *testing.T) {
	if _, err := Parse([]byte("not a pdf at all")); err != ErrNoHeader {
		t.Fatalf("Parse = %v, want ErrNoHeader", err)
	}
}

func TestFromTopLeftFlipsY(t *testing.T) {
	doc := mustParse(t, buildClassicPDF(true))
	page, _ := doc.Page(0)
	got := page.FromTopLeft(coords.Rect{X0: 100, Y0: 100, X1: 300, Y1: 150})
	want := Rectangle{LLX: 100, LLY: 642, URX: 300, URY: 692}
	if got != want {
		t.Errorf("FromTopLeft = %+v, want %+v", got, want)
	}
}

func TestAddSquareRoundTrip(t *testing.T) {
	doc := mustParse(t, buildClassicPDF(true))
	page, _ := doc.Page(0)
	page.AddSquare(Rectangle{LLX: 10, LLY: 20, URX: 110, URY: 70}, [3]float64{1, 0, 0}, nil, 2, 1)

	out, err := doc.MarshalIncremental()
	if err != nil {
		t.Fatalf("MarshalIncremental: %v", err)
	}
	if !bytes.HasPrefix(out, buildClassicPDF(true)) {
		t.Error("incremental output must start with the original bytes")
	}

	re := mustParse(t, out)
	page2, _ := re.Page(0)
	annots, ok := re.resolve(page2.dict["Annots"]).(Array)
	if !ok || len(annots) != 1 {
		t.Fatalf("Annots = %#v, want one entry", page2.dict["Annots"])
	}
	ad, ok := re.resolveDict(annots[0])
	if !ok {
		t.Fatal("annotation did not resolve to a dict")
	}
	if ad["Subtype"] != Name("Square") {
		t.Errorf("Subtype = %v, want Square", ad["Subtype"])
	}
	rect := re.rectFrom(ad["Rect"], Rectangle{})
	if rect != (Rectangle{LLX: 10, LLY: 20, URX: 110, URY: 70}) {
		t.Errorf("Rect = %+v", rect)
	}
}

func TestTextMarkupNeedsTextLayer(t *testing.T) {
	doc := mustParse(t, buildClassicPDF(false))
	page, _ := doc.Page(0)
	_, err := page.AddTextMarkup("Highlight", Rectangle{LLX: 0, LLY: 0, URX: 10, URY: 10}, [3]float64{1, 1, 0}, 0.35)
	if err != ErrNoTextLayer {
		t.Fatalf("AddTextMarkup = %v, want ErrNoTextLayer", err)
	}

	withText := mustParse(t, buildClassicPDF(true))
	page2, _ := withText.Page(0)
	if _, err := page2.AddTextMarkup("Highlight", Rectangle{LLX: 0, LLY: 0, URX: 10, URY: 10}, [3]float64{1, 1, 0}, 0.35); err != nil {
		t.Fatalf("AddTextMarkup with text layer: %v", err)
	}
}

func TestAddLineEndings(t *testing.T) {
	doc := mustParse(t, buildClassicPDF(true))
	page, _ := doc.Page(0)
	if _, err := page.AddLine(Point{X: 0, Y: 0}, Point{X: 50, Y: 50},
		[3]float64{0, 0, 0}, 2, 1, [2]string{"None", "Swirl"}); err == nil {
		t.Fatal("expected error for made-up ending style")
	}
	if _, err := page.AddLine(Point{X: 0, Y: 0}, Point{X: 50, Y: 50},
		[3]float64{0, 0, 0}, 2, 1, [2]string{"None", "OpenArrow"}); err != nil {
		t.Fatalf("AddLine: %v", err)
	}
}

func TestInkWriteAndReparse(t *testing.T) {
	doc := mustParse(t, buildClassicPDF(true))
	page, _ := doc.Page(0)
	strokes := [][]Point{
		{{X: 10, Y: 700}, {X: 20, Y: 710}, {X: 30, Y: 700}},
		{{X: 40, Y: 705}, {X: 50, Y: 695}},
	}
	if _, err := page.AddInk(strokes, [3]float64{0, 0, 1}, 2, 1); err != nil {
		t.Fatalf("AddInk: %v", err)
	}
	out, err := doc.MarshalIncremental()
	if err != nil {
		t.Fatal(err)
	}
	re := mustParse(t, out)
	page2, _ := re.Page(0)
	annots, _ := re.resolve(page2.dict["Annots"]).(Array)
	ad, _ := re.resolveDict(annots[0])
	ink, ok := ad["InkList"].(Array)
	if !ok || len(ink) != 2 {
		t.Fatalf("InkList = %#v, want 2 strokes", ad["InkList"])
	}
	first, _ := ink[0].(Array)
	if len(first) != 6 {
		t.Errorf("first stroke has %d coordinates, want 6", len(first))
	}
}

func TestPlaceImageRoundTrip(t *testing.T) {
	img := image.NewNRGBA(image.Rect(0, 0, 8, 4))
	for y := 0; y < 4; y++ {
		for x := 0; x < 8; x++ {
			img.Set(x, y, color.NRGBA{R: 200, G: 10, B: 10, A: 255})
		}
	}
	var pngBuf bytes.Buffer
	if err := png.Encode(&pngBuf, img); err != nil {
		t.Fatal(err)
	}
	decoded, err := DecodeImage(pngBuf.Bytes())
	if err != nil {
		t.Fatal(err)
	}

	doc := mustParse(t, buildClassicPDF(true))
	page, _ := doc.Page(0)
	if _, err := page.PlaceImage(decoded, Rectangle{LLX: 100, LLY: 100, URX: 300, URY: 200}, 1); err != nil {
		t.Fatalf("PlaceImage: %v", err)
	}
	out, err := doc.MarshalIncremental()
	if err != nil {
		t.Fatal(err)
	}
	re := mustParse(t, out)
	page2, _ := re.Page(0)
	res, _ := re.resolveDict(page2.dict["Resources"])
	xobjs, _ := re.resolveDict(res["XObject"])
	if len(xobjs) != 1 {
		t.Fatalf("XObject entries = %d, want 1", len(xobjs))
	}
	content, err := page2.contentBytes()
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Contains(content, []byte("Do")) {
		t.Error("content stream does not invoke the image XObject")
	}
	// 8x4 source in a 200x100 box: width binds, image stays 2:1.
	if !bytes.Contains(content, []byte("200 0 0 100")) {
		t.Errorf("image placement matrix missing, content:\n%s", content)
	}
}

func TestSecondIncrementalRevision(t *testing.T) {
	doc := mustParse(t, buildClassicPDF(true))
	page, _ := doc.Page(0)
	page.AddSquare(Rectangle{LLX: 10, LLY: 10, URX: 50, URY: 50}, [3]float64{1, 0, 0}, nil, 2, 1)
	rev1, err := doc.MarshalIncremental()
	if err != nil {
		t.Fatal(err)
	}

	doc2 := mustParse(t, rev1)
	page2, _ := doc2.Page(0)
	page2.AddSquare(Rectangle{LLX: 60, LLY: 60, URX: 90, URY: 90}, [3]float64{0, 1, 0}, nil, 2, 1)
	rev2, err := doc2.MarshalIncremental()
	if err != nil {
		t.Fatal(err)
	}

	final := mustParse(t, rev2)
	fp, _ := final.Page(0)
	annots, _ := final.resolve(fp.dict["Annots"]).(Array)
	if len(annots) != 2 {
		t.Fatalf("after two revisions Annots = %d entries, want 2", len(annots))
	}
	if !strings.Contains(string(rev2), "/Prev") {
		t.Error("second revision trailer must chain to the first via /Prev")
	}
}

func TestSerializeDeterministic(t *testing.T) {
	d := Dict{
		"Zebra": Integer(1),
		"Alpha": Name("X"),
		"Rect":  Array{Real(1.5), Integer(2)},
	}
	var a, b bytes.Buffer
	serializeObject(&a, d)
	serializeObject(&b, d)
	if a.String() != b.String() {
		t.Error("serialization is not deterministic")
	}
	if a.String() != "<</Alpha /X/Rect [1.5 2]/Zebra 1>>" {
		t.Errorf("unexpected form: %s", a.String())
	}
}

func TestLexerStrings(t *testing.T) {
	l := &lexer{data: []byte(`(a\(b\)c\\d\n) <48656C6C6F> /Nam#20e`)}
	s, err := l.parseValue()
	if err != nil {
		t.Fatal(err)
	}
	if string(s.(String)) != "a(b)c\\d\n" {
		t.Errorf("literal string = %q", s)
	}
	h, err := l.parseValue()
	if err != nil {
		t.Fatal(err)
	}
	if string(h.(HexString)) != "Hello" {
		t.Errorf("hex string = %q", h)
	}
	n, err := l.parseValue()
	if err != nil {
		t.Fatal(err)
	}
	if n.(Name) != "Nam e" {
		t.Errorf("name = %q", n)
	}
}

func TestLexerRefLookahead(t *testing.T) {
	l := &lexer{data: []byte("[1 2 R 3 4 5]")}
	v, err := l.parseValue()
	if err != nil {
		t.Fatal(err)
	}
	arr := v.(Array)
	if len(arr) != 4 {
		t.Fatalf("array = %#v, want ref plus three ints", arr)
	}
	if arr[0] != (Ref{Num: 1, Gen: 2}) {
		t.Errorf("arr[0] = %#v, want 1 2 R", arr[0])
	}
	if arr[3] != Integer(5) {
		t.Errorf("arr[3] = %#v, want 5", arr[3])
	}
}
