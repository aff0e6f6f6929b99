// Package pdftest builds small, well-formed PDF documents for tests.
package pdftest

import (
	"bytes"
	"fmt"
	"strconv"
	"strings"

	"github.com/makiuchi-d/gozxing"
	"github.com/makiuchi-d/gozxing/qrcode"
)

// Page is one page of a generated document. Sizes are in points and Content
// is a raw content stream.
type Page struct {
	Width   float64
	Height  float64
	Content string
}

// Blank returns an empty page.
func Blank(width, height float64) Page {
	return Page{Width: width, Height: height}
}

// Filled returns a page with one black rectangle. x and y locate the
// rectangle's top-left corner measured from the page's top-left corner.
func Filled(width, height, x, y, w, h float64) Page {
	return Page{
		Width:   width,
		Height:  height,
		Content: "0 g " + rect(x, height-y-h, w, h) + " f",
	}
}

// QRCode returns a page carrying a QR code for text, drawn as vector modules
// centred on the page.
func QRCode(text string, width, height float64) (Page, error) {
	matrix, err := qrcode.NewQRCodeWriter().Encode(text, gozxing.BarcodeFormat_QR_CODE, 1, 1, nil)
	if err != nil {
		return Page{}, err
	}

	side := min(width, height) * 0.8
	module := side / float64(matrix.GetWidth())
	originX := (width - side) / 2
	originY := (height - side) / 2

	var sb strings.Builder
	sb.WriteString("0 g")
	for y := 0; y < matrix.GetHeight(); y++ {
		for x := 0; x < matrix.GetWidth(); x++ {
			if !matrix.Get(x, y) {
				continue
			}
			top := originY + float64(y)*module
			sb.WriteString(" ")
			sb.WriteString(rect(originX+float64(x)*module, height-top-module, module, module))
		}
	}
	sb.WriteString(" f")

	return Page{Width: width, Height: height, Content: sb.String()}, nil
}

// Build serialises pages into a PDF with a valid cross-reference table.
func Build(pages ...Page) []byte {
	var buf bytes.Buffer
	var offsets []int

	writeObject := func(body string) {
		offsets = append(offsets, buf.Len())
		fmt.Fprintf(&buf, "%d 0 obj\n%s\nendobj\n", len(offsets), body)
	}

	kids := make([]string, len(pages))
	for i := range pages {
		kids[i] = fmt.Sprintf("%d 0 R", 3+2*i)
	}

	buf.WriteString("%PDF-1.4\n")
	writeObject("<< /Type /Catalog /Pages 2 0 R >>")
	writeObject(fmt.Sprintf("<< /Type /Pages /Kids [%s] /Count %d >>", strings.Join(kids, " "), len(pages)))
	for i, p := range pages {
		writeObject(fmt.Sprintf("<< /Type /Page /Parent 2 0 R /MediaBox [0 0 %s %s] /Resources << >> /Contents %d 0 R >>",
			num(p.Width), num(p.Height), 4+2*i))
		writeObject(fmt.Sprintf("<< /Length %d >>\nstream\n%s\nendstream", len(p.Content), p.Content))
	}

	xref := buf.Len()
	fmt.Fprintf(&buf, "xref\n0 %d\n0000000000 65535 f \n", len(offsets)+1)
	for _, off := range offsets {
		fmt.Fprintf(&buf, "%010d 00000 n \n", off)
	}
	fmt.Fprintf(&buf, "trailer\n<< /Size %d /Root 1 0 R >>\nstartxref\n%d\n%%%%EOF\n", len(offsets)+1, xref)

	return buf.Bytes()
}

// WithoutXRef cuts doc just before its cross-reference table, leaving the
// objects intact but no xref, trailer or EOF marker.
func WithoutXRef(doc []byte) []byte {
	i := bytes.LastIndex(doc, []byte("xref\n0 "))
	if i < 0 {
		return doc
	}
	return append([]byte(nil), doc[:i]...)
}

// WithoutEOF drops the trailing %%EOF marker.
func WithoutEOF(doc []byte) []byte {
	return append([]byte(nil), bytes.TrimSuffix(doc, []byte("%%EOF\n"))...)
}

func rect(x, y, w, h float64) string {
	return num(x) + " " + num(y) + " " + num(w) + " " + num(h) + " re"
}

func num(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
