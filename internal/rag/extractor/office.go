package extractor

import (
	"archive/zip"
	"context"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"strings"

	"docqa/internal/rag/schema"

	"github.com/xuri/excelize/v2"
)

// DOCXExtractor joins paragraphs in document order. With a UniDoc license it
// reads through unioffice and falls back to the plain OOXML reader on error.
type DOCXExtractor struct {
	useUnidoc bool
}

func NewDOCXExtractor(useUnidoc bool) *DOCXExtractor {
	return &DOCXExtractor{useUnidoc: useUnidoc}
}

func (d *DOCXExtractor) Extract(ctx context.Context, doc *schema.SourceDocument) (*schema.ExtractedText, error) {
	if d.useUnidoc {
		if text, err := unidocDocxText(doc.Path); err == nil {
			return single(doc, "unioffice", text, nil), nil
		}
	}
	text, err := ooxmlDocxText(doc.Path)
	if err != nil {
		return nil, err
	}
	return single(doc, "ooxml", text, nil), nil
}

// ooxmlDocxText streams word/document.xml and collects w:t runs per w:p.
func ooxmlDocxText(path string) (string, error) {
	zr, err := zip.OpenReader(path)
	if err != nil {
		return "", fmt.Errorf("%w: not a docx archive: %v", ErrUnsupportedFormat, err)
	}
	defer zr.Close()

	var body *zip.File
	for _, f := range zr.File {
		if f.Name == "word/document.xml" {
			body = f
			break
		}
	}
	if body == nil {
		return "", fmt.Errorf("%w: word/document.xml missing", ErrUnsupportedFormat)
	}
	rc, err := body.Open()
	if err != nil {
		return "", err
	}
	defer rc.Close()

	dec := xml.NewDecoder(rc)
	var (
		paragraphs []string
		current    strings.Builder
		inText     bool
	)
	for {
		tok, err := dec.Token()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return "", fmt.Errorf("parse document.xml: %w", err)
		}
		switch t := tok.(type) {
		case xml.StartElement:
			switch t.Name.Local {
			case "t":
				inText = true
			case "tab":
				current.WriteByte('\t')
			case "br", "cr":
				current.WriteByte('\n')
			}
		case xml.EndElement:
			switch t.Name.Local {
			case "t":
				inText = false
			case "p":
				paragraphs = append(paragraphs, current.String())
				current.Reset()
			}
		case xml.CharData:
			if inText {
				current.Write(t)
			}
		}
	}
	if current.Len() > 0 {
		paragraphs = append(paragraphs, current.String())
	}
	return strings.Join(paragraphs, "\n"), nil
}

// XLSXExtractor emits one segment per sheet with rows as " | "-joined cells.
type XLSXExtractor struct{}

func (x *XLSXExtractor) Extract(ctx context.Context, doc *schema.SourceDocument) (*schema.ExtractedText, error) {
	f, err := excelize.OpenFile(doc.Path)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnsupportedFormat, err)
	}
	defer f.Close()

	out := &schema.ExtractedText{Source: doc.Origin, Kind: schema.KindXLSX, Strategy: "excelize"}
	for _, sheet := range f.GetSheetList() {
		rows, err := f.GetRows(sheet)
		if err != nil {
			continue
		}
		lines := make([]string, 0, len(rows))
		for _, row := range rows {
			line := strings.TrimSpace(strings.Join(row, " | "))
			if strings.Trim(line, "| ") == "" {
				continue
			}
			lines = append(lines, line)
		}
		if len(lines) == 0 {
			continue
		}
		out.Segments = append(out.Segments, schema.Segment{
			Text:     sheet + "\n" + strings.Join(lines, "\n"),
			Metadata: map[string]interface{}{schema.MetadataKeySection: sheet},
		})
	}
	return out, nil
}

// single wraps one block of text as an ExtractedText.
func single(doc *schema.SourceDocument, strategy, text string, md map[string]interface{}) *schema.ExtractedText {
	return &schema.ExtractedText{
		Source:   doc.Origin,
		Kind:     doc.Kind,
		Strategy: strategy,
		Segments: []schema.Segment{{Text: text, Metadata: md}},
	}
}
