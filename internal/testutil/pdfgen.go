// Package testutil builds small fixtures shared by package tests.
package testutil

import (
	"bytes"
	"fmt"
	"strings"
)

// TextItem is a string drawn at a position on a page, 12pt Courier.
type TextItem struct {
	X, Y float64
	S    string
}

// Row lays out cells left to right at y, starting at x and step points apart.
func Row(x, y, step float64, cells ...string) []TextItem {
	items := make([]TextItem, 0, len(cells))
	for i, c := range cells {
		items = append(items, TextItem{X: x + float64(i)*step, Y: y, S: c})
	}
	return items
}

// BuildPDF writes an uncompressed PDF with one page per entry in pages.
// The font carries explicit widths so glyph positions advance.
func BuildPDF(pages ...[]TextItem) []byte {
	var objects []string

	kids := make([]string, len(pages))
	for i := range pages {
		kids[i] = fmt.Sprintf("%d 0 R", 4+2*i)
	}

	widths := strings.TrimSpace(strings.Repeat("600 ", 95))
	objects = append(objects,
		"<< /Type /Catalog /Pages 2 0 R >>",
		fmt.Sprintf("<< /Type /Pages /Kids [%s] /Count %d >>", strings.Join(kids, " "), len(pages)),
		fmt.Sprintf("<< /Type /Font /Subtype /Type1 /BaseFont /Courier /Encoding /WinAnsiEncoding /FirstChar 32 /LastChar 126 /Widths [%s] >>", widths),
	)

	for i, items := range pages {
		var content strings.Builder
		for _, it := range items {
			fmt.Fprintf(&content, "BT /F1 12 Tf %.2f %.2f Td (%s) Tj ET\n", it.X, it.Y, escape(it.S))
		}
		stream := content.String()
		objects = append(objects,
			fmt.Sprintf("<< /Type /Page /Parent 2 0 R /MediaBox [0 0 612 792] /Resources << /Font << /F1 3 0 R >> >> /Contents %d 0 R >>", 5+2*i),
			fmt.Sprintf("<< /Length %d >>\nstream\n%sendstream", len(stream), stream),
		)
	}

	var buf bytes.Buffer
	buf.WriteString("%PDF-1.4\n")
	offsets := make([]int, len(objects))
	for i, obj := range objects {
		offsets[i] = buf.Len()
		fmt.Fprintf(&buf, "%d 0 obj\n%s\nendobj\n", i+1, obj)
	}

	xref := buf.Len()
	fmt.Fprintf(&buf, "xref\n0 %d\n", len(objects)+1)
	buf.WriteString("0000000000 65535 f \n")
	for _, off := range offsets {
		fmt.Fprintf(&buf, "%010d 00000 n \n", off)
	}
	fmt.Fprintf(&buf, "trailer\n<< /Size %d /Root 1 0 R >>\nstartxref\n%d\n%%%%EOF\n", len(objects)+1, xref)
	return buf.Bytes()
}

// TablePDF is a one-page document with a title line and a two-column table.
func TablePDF() []byte {
	var items []TextItem
	items = append(items, TextItem{X: 72, Y: 760, S: "Inventory"})
	items = append(items, Row(72, 720, 200, "colA", "colB")...)
	items = append(items, Row(72, 700, 200, "a1", "b1")...)
	return BuildPDF(items)
}

// MultiTablePDF is a one-page document with n two-column tables, each under
// its own single-line caption. Table i holds colA/colB over a<i>/b<i>.
func MultiTablePDF(n int) []byte {
	var items []TextItem
	y := 760.0
	for i := 1; i <= n; i++ {
		items = append(items, TextItem{X: 72, Y: y, S: fmt.Sprintf("Section %d", i)})
		items = append(items, Row(72, y-30, 200, "colA", "colB")...)
		items = append(items, Row(72, y-50, 200, fmt.Sprintf("a%d", i), fmt.Sprintf("b%d", i))...)
		y -= 90
	}
	return BuildPDF(items)
}

// TextOnlyPDF is a one-page document without any table.
func TextOnlyPDF() []byte {
	return BuildPDF([]TextItem{{X: 72, Y: 720, S: "Nothing tabular here"}})
}

func escape(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `(`, `\(`, `)`, `\)`)
	return r.Replace(s)
}
