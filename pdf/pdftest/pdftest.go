// Package pdftest builds small well-formed PDF fixtures for tests.
package pdftest

import (
	"bytes"
	"fmt"
)

// SinglePage returns a one-page US Letter document with a classic xref
// table. With withText set the content stream carries BT/ET text
// operators; otherwise it only strokes a path.
func SinglePage(withText bool) []byte {
	return MultiPage(1, withText)
}

// MultiPage returns an n-page document. All pages share the layout of
// SinglePage.
func MultiPage(n int, withText bool) []byte {
	var buf bytes.Buffer
	offsets := map[int]int{}
	obj := func(num int, body string) {
		offsets[num] = buf.Len()
		fmt.Fprintf(&buf, "%d 0 obj\n%s\nendobj\n", num, body)
	}

	buf.WriteString("%PDF-1.4\n")
	var kids bytes.Buffer
	for i := 0; i < n; i++ {
		if i > 0 {
			kids.WriteByte(' ')
		}
		fmt.Fprintf(&kids, "%d 0 R", 3+2*i)
	}
	obj(1, "<< /Type /Catalog /Pages 2 0 R >>")
	obj(2, fmt.Sprintf("<< /Type /Pages /Kids [%s] /Count %d >>", kids.String(), n))

	content := "0 0 1 RG 10 10 m 100 100 l S"
	if withText {
		content = "BT /F1 24 Tf 72 720 Td (Hello) Tj ET"
	}
	for i := 0; i < n; i++ {
		pageNum := 3 + 2*i
		obj(pageNum, fmt.Sprintf(
			"<< /Type /Page /Parent 2 0 R /MediaBox [0 0 612 792] /Contents %d 0 R /Resources << >> >>",
			pageNum+1))
		obj(pageNum+1, fmt.Sprintf("<< /Length %d >>\nstream\n%s\nendstream", len(content), content))
	}

	total := 3 + 2*n
	xrefOff := buf.Len()
	fmt.Fprintf(&buf, "xref\n0 %d\n0000000000 65535 f \n", total)
	for i := 1; i < total; i++ {
		fmt.Fprintf(&buf, "%010d 00000 n \n", offsets[i])
	}
	fmt.Fprintf(&buf, "trailer\n<< /Size %d /Root 1 0 R >>\nstartxref\n%d\n%%%%EOF\n", total, xrefOff)
	return buf.Bytes()
}

// Encrypted returns SinglePage output with an /Encrypt entry spliced
// into the trailer, enough to trigger encryption rejection.
func Encrypted() []byte {
	data := SinglePage(true)
	return bytes.Replace(data,
		[]byte("/Root 1 0 R >>"),
		[]byte("/Root 1 0 R /Encrypt 4 0 R >>"), 1)
}
