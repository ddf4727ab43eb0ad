package extract

import (
	"archive/zip"
	"bytes"
	"encoding/binary"
	"encoding/xml"
	"fmt"
	"io"
	"strings"
	"unicode"
	"unicode/utf16"

	"github.com/ledongthuc/pdf"
)

// paragraphSeparator joins pages and paragraphs.
const paragraphSeparator = "\n\n"

// PlainText decodes UTF-8, dropping invalid bytes.
func PlainText(data []byte) string {
	return strings.ToValidUTF8(string(data), "")
}

// PDFText returns the text of every page joined by a blank line. A page
// that fails to parse or has no text contributes an empty string.
func PDFText(data []byte) (string, error) {
	r, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", fmt.Errorf("%w: pdf reader: %w", ErrParseFailed, err)
	}

	n := r.NumPage()
	pages := make([]string, 0, n)
	for i := 1; i <= n; i++ {
		pages = append(pages, pdfPageText(r, i))
	}
	return strings.Join(pages, paragraphSeparator), nil
}

func pdfPageText(r *pdf.Reader, i int) (text string) {
	defer func() {
		if recover() != nil {
			text = ""
		}
	}()

	page := r.Page(i)
	if page.V.IsNull() {
		return ""
	}
	text, err := page.GetPlainText(nil)
	if err != nil {
		return ""
	}
	return text
}

// DOCXText returns the paragraphs of word/document.xml joined by a blank
// line.
func DOCXText(data []byte) (string, error) {
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", fmt.Errorf("%w: docx container: %w", ErrParseFailed, err)
	}

	var doc *zip.File
	for _, f := range zr.File {
		if f.Name == "word/document.xml" {
			doc = f
			break
		}
	}
	if doc == nil {
		return "", fmt.Errorf("%w: docx has no word/document.xml", ErrParseFailed)
	}

	rc, err := doc.Open()
	if err != nil {
		return "", fmt.Errorf("%w: open document.xml: %w", ErrParseFailed, err)
	}
	defer func() { _ = rc.Close() }()

	paragraphs, err := docxParagraphs(rc)
	if err != nil {
		return "", fmt.Errorf("%w: document.xml: %w", ErrParseFailed, err)
	}
	return strings.Join(paragraphs, paragraphSeparator), nil
}

// docxParagraphs collects the text runs of every <w:p>, with <w:tab/> as a
// tab and <w:br/> as a newline.
func docxParagraphs(r io.Reader) ([]string, error) {
	dec := xml.NewDecoder(r)
	var paragraphs []string
	var current strings.Builder
	depth := 0

	for {
		tok, err := dec.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}

		switch t := tok.(type) {
		case xml.StartElement:
			switch t.Name.Local {
			case "p":
				if depth == 0 {
					current.Reset()
				}
				depth++
			case "t":
				var s string
				if err := dec.DecodeElement(&s, &t); err != nil {
					return nil, err
				}
				current.WriteString(s)
			case "tab":
				current.WriteByte('\t')
			case "br", "cr":
				current.WriteByte('\n')
			}
		case xml.EndElement:
			if t.Name.Local == "p" && depth > 0 {
				depth--
				if depth == 0 {
					paragraphs = append(paragraphs, current.String())
				}
			}
		}
	}
	return paragraphs, nil
}

// oleSignature starts every OLE2 compound file, the legacy Word container.
var oleSignature = []byte{0xD0, 0xCF, 0x11, 0xE0, 0xA1, 0xB1, 0x1A, 0xE1}

// minRun is the shortest character run kept from a legacy Word file.
const minRun = 4

// MSWordText recovers text from a legacy Word (.doc) file. Word stores body
// text as either UTF-16LE or 8-bit characters inside the container; the
// longer of the two decodings wins. Paragraph marks (\r) split paragraphs.
func MSWordText(data []byte) (string, error) {
	if !bytes.HasPrefix(data, oleSignature) {
		return "", fmt.Errorf("%w: not an OLE2 word document", ErrParseFailed)
	}

	wide := utf16Runs(data)
	narrow := byteRuns(data)
	text := wide
	if len(narrow) > len(wide) {
		text = narrow
	}

	var paragraphs []string
	for _, p := range strings.Split(text, "\r") {
		if p = strings.TrimSpace(p); p != "" {
			paragraphs = append(paragraphs, p)
		}
	}
	return strings.Join(paragraphs, paragraphSeparator), nil
}

func keepRune(r rune) bool {
	return r == '\r' || r == '\t' || (unicode.IsPrint(r) && r != unicode.ReplacementChar)
}

// latinRange limits UTF-16 runs to Latin scripts and general punctuation,
// which keeps binary noise from decoding as CJK text.
func latinRange(r rune) bool {
	return r <= 0x024F || (r >= 0x2000 && r <= 0x206F)
}

func utf16Runs(data []byte) string {
	var out, run strings.Builder
	count := 0
	flush := func() {
		if count >= minRun {
			out.WriteString(run.String())
			out.WriteByte('\r')
		}
		run.Reset()
		count = 0
	}

	for i := 0; i+1 < len(data); i += 2 {
		u := binary.LittleEndian.Uint16(data[i:])
		r := rune(u)
		if utf16.IsSurrogate(r) || !keepRune(r) || !latinRange(r) {
			flush()
			continue
		}
		run.WriteRune(r)
		count++
	}
	flush()
	return out.String()
}

func byteRuns(data []byte) string {
	var out, run strings.Builder
	flush := func() {
		if run.Len() >= minRun {
			out.WriteString(run.String())
			out.WriteByte('\r')
		}
		run.Reset()
	}

	for _, b := range data {
		if b == '\r' || b == '\t' || (b >= 0x20 && b < 0x7F) {
			run.WriteByte(b)
			continue
		}
		flush()
	}
	flush()
	return out.String()
}
