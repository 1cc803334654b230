package extractor

import (
	"archive/zip"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"docqa/internal/config"
	"docqa/internal/metrics"
	"docqa/internal/rag/schema"
	"docqa/pkg/logger"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
)

type fakeStrategy struct {
	name     string
	segments []schema.Segment
	ok       bool
	panics   bool
	calls    *[]string
}

func (f fakeStrategy) Name() string { return f.name }

func (f fakeStrategy) Attempt(ctx context.Context, doc *schema.SourceDocument) ([]schema.Segment, bool) {
	*f.calls = append(*f.calls, f.name)
	if f.panics {
		panic("corrupt xref")
	}
	return f.segments, f.ok
}

func writeDoc(t *testing.T, name string, data []byte, kind schema.Kind) *schema.SourceDocument {
	t.Helper()
	p := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(p, data, 0o600))
	return schema.NewSourceDocument("https://example.com/"+name, p, filepath.Ext(name), kind, int64(len(data)), "", false)
}

func TestPDFFallbackChain(t *testing.T) {
	page := func(text string) []schema.Segment { return []schema.Segment{{Text: text, Page: 1}} }

	tests := []struct {
		name      string
		chain     func(calls *[]string) []Strategy
		status    Status
		strategy  string
		wantCalls []string
	}{
		{
			name: "first strategy wins",
			chain: func(c *[]string) []Strategy {
				return []Strategy{
					fakeStrategy{name: "layout", segments: page("Clause 1"), ok: true, calls: c},
					fakeStrategy{name: "simple", segments: page("unused"), ok: true, calls: c},
				}
			},
			status: StatusOK, strategy: "layout", wantCalls: []string{"layout"},
		},
		{
			name: "blank text falls through",
			chain: func(c *[]string) []Strategy {
				return []Strategy{
					fakeStrategy{name: "layout", segments: page("  \n "), ok: true, calls: c},
					fakeStrategy{name: "simple", ok: false, calls: c},
					fakeStrategy{name: "ocr", segments: page("Scanned text"), ok: true, calls: c},
				}
			},
			status: StatusOK, strategy: "ocr", wantCalls: []string{"layout", "simple", "ocr"},
		},
		{
			name: "panicking strategy is skipped",
			chain: func(c *[]string) []Strategy {
				return []Strategy{
					fakeStrategy{name: "layout", panics: true, calls: c},
					fakeStrategy{name: "simple", segments: page("Recovered"), ok: true, calls: c},
				}
			},
			status: StatusOK, strategy: "simple", wantCalls: []string{"layout", "simple"},
		},
		{
			name: "all exhausted",
			chain: func(c *[]string) []Strategy {
				return []Strategy{
					fakeStrategy{name: "layout", ok: true, calls: c},
					fakeStrategy{name: "simple", ok: true, calls: c},
					fakeStrategy{name: "ocr", ok: false, calls: c},
				}
			},
			status: StatusEmpty, wantCalls: []string{"layout", "simple", "ocr"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var calls []string
			m := metrics.New()
			e := New(logger.Nop(), m)
			e.Register(schema.KindPDF, NewPDFExtractor(logger.Nop(), tt.chain(&calls)...))

			res := e.Extract(context.Background(), writeDoc(t, "a.pdf", []byte("%PDF-1.4"), schema.KindPDF))

			assert.Equal(t, tt.status, res.Status)
			assert.Equal(t, tt.wantCalls, calls)
			if tt.status == StatusOK {
				require.NotNil(t, res.Text)
				assert.Equal(t, tt.strategy, res.Text.Strategy)
				assert.NoError(t, res.Err())
				assert.Equal(t, 1.0, testutil.ToFloat64(m.ExtractionsTotal.WithLabelValues("pdf", tt.strategy, "ok")))
			} else {
				assert.Contains(t, res.Reason, "no text extracted from PDF")
				assert.ErrorIs(t, res.Err(), ErrNoText)
			}
		})
	}
}

func TestGarbagePDFWithPureGoStrategies(t *testing.T) {
	log := logger.Nop()
	e := New(log, nil)
	e.Register(schema.KindPDF, NewPDFExtractor(log, NewRowLayoutStrategy(log), NewSimpleTextStrategy(log)))

	res := e.Extract(context.Background(), writeDoc(t, "bad.pdf", []byte("this is not a pdf at all"), schema.KindPDF))
	assert.Equal(t, StatusEmpty, res.Status)
}

func TestOCRStrategyWithoutEngineDoesNotRun(t *testing.T) {
	s := NewOCRStrategy(nil, nil, logger.Nop())
	segs, ok := s.Attempt(context.Background(), &schema.SourceDocument{})
	assert.False(t, ok)
	assert.Empty(t, segs)
}

type fakeRasterizer struct{ pages []PageImage }

func (f fakeRasterizer) Rasterize(ctx context.Context, path string) ([]PageImage, error) {
	return f.pages, nil
}

type fakeOCR struct{}

func (fakeOCR) Name() string { return "fake" }

func (fakeOCR) Recognize(ctx context.Context, png []byte) (string, error) {
	if string(png) == "bad" {
		return "", errors.New("unreadable")
	}
	return "text of " + string(png), nil
}

func TestOCRStrategySkipsFailedPages(t *testing.T) {
	s := NewOCRStrategy(fakeRasterizer{pages: []PageImage{
		{Page: 1, PNG: []byte("p1")},
		{Page: 2, PNG: []byte("bad")},
		{Page: 3, PNG: []byte("p3")},
	}}, fakeOCR{}, logger.Nop())

	segs, ok := s.Attempt(context.Background(), &schema.SourceDocument{})
	require.True(t, ok)
	assert.Equal(t, []schema.Segment{{Text: "text of p1", Page: 1}, {Text: "text of p3", Page: 3}}, segs)
}

func TestReadPageImagesOrdersByPageNumber(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"page-10.png", "page-02.png", "page-1.png", "other.txt"} {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(name), 0o600))
	}
	pages, err := readPageImages(dir)
	require.NoError(t, err)
	require.Len(t, pages, 3)
	assert.Equal(t, []int{1, 2, 10}, []int{pages[0].Page, pages[1].Page, pages[2].Page})
}

func buildDocx(t *testing.T, documentXML string) []byte {
	t.Helper()
	p := filepath.Join(t.TempDir(), "x.docx")
	f, err := os.Create(p)
	require.NoError(t, err)
	zw := zip.NewWriter(f)
	w, err := zw.Create("word/document.xml")
	require.NoError(t, err)
	_, err = w.Write([]byte(documentXML))
	require.NoError(t, err)
	require.NoError(t, zw.Close())
	require.NoError(t, f.Close())
	data, err := os.ReadFile(p)
	require.NoError(t, err)
	return data
}

func TestDOCX(t *testing.T) {
	xml := `<?xml version="1.0" encoding="UTF-8"?>
<w:document xmlns:w="http://schemas.openxmlformats.org/wordprocessingml/2006/main">
<w:body>
<w:p><w:r><w:t>Hello </w:t></w:r><w:r><w:t>world</w:t></w:r></w:p>
<w:p><w:r><w:t>Second</w:t><w:tab/><w:t>para</w:t></w:r></w:p>
</w:body></w:document>`

	e := NewDefault(config.ExtractorConfig{}, nil, logger.Nop(), nil)
	res := e.Extract(context.Background(), writeDoc(t, "a.docx", buildDocx(t, xml), schema.KindDOCX))
	require.Equal(t, StatusOK, res.Status, res.Reason)
	assert.Equal(t, "Hello world\nSecond\tpara", res.Text.Text())
	assert.Equal(t, "ooxml", res.Text.Strategy)

	bad := e.Extract(context.Background(), writeDoc(t, "b.docx", []byte("plain bytes"), schema.KindDOCX))
	assert.Equal(t, StatusUnsupported, bad.Status)
}

func TestXLSX(t *testing.T) {
	f := excelize.NewFile()
	require.NoError(t, f.SetCellValue("Sheet1", "A1", "Plan"))
	require.NoError(t, f.SetCellValue("Sheet1", "B1", "Premium"))
	require.NoError(t, f.SetCellValue("Sheet1", "A2", "Gold"))
	require.NoError(t, f.SetCellValue("Sheet1", "B2", 1200))
	p := filepath.Join(t.TempDir(), "plans.xlsx")
	require.NoError(t, f.SaveAs(p))
	require.NoError(t, f.Close())

	doc := schema.NewSourceDocument(p, p, ".xlsx", schema.KindXLSX, 0, "", false)
	res := NewDefault(config.ExtractorConfig{}, nil, logger.Nop(), nil).Extract(context.Background(), doc)
	require.Equal(t, StatusOK, res.Status, res.Reason)
	require.Len(t, res.Text.Segments, 1)
	assert.Equal(t, "Sheet1\nPlan | Premium\nGold | 1200", res.Text.Segments[0].Text)
	assert.Equal(t, "Sheet1", res.Text.Segments[0].Metadata[schema.MetadataKeySection])
}

func TestHTML(t *testing.T) {
	html := `<html><head><title>t</title></head><body><h1>Coverage</h1><p>Knee surgery is <b>covered</b>.</p></body></html>`
	res := NewDefault(config.ExtractorConfig{}, nil, logger.Nop(), nil).
		Extract(context.Background(), writeDoc(t, "a.html", []byte(html), schema.KindHTML))
	require.Equal(t, StatusOK, res.Status, res.Reason)
	assert.Contains(t, res.Text.Text(), "# Coverage")
	assert.Contains(t, res.Text.Text(), "**covered**")
}

func TestEmail(t *testing.T) {
	multipartMail := strings.ReplaceAll(`From: Claims <claims@example.com>
To: you@example.com
Subject: =?UTF-8?Q?Claim_approved?=
MIME-Version: 1.0
Content-Type: multipart/alternative; boundary="XYZ"

--XYZ
Content-Type: text/plain; charset=utf-8
Content-Transfer-Encoding: quoted-printable

Your claim is approved for =E2=82=AC500.
--XYZ
Content-Type: text/html; charset=utf-8

<p>Your claim is <b>approved</b>.</p>
--XYZ--
`, "\n", "\r\n")

	htmlOnly := "Subject: Notice\r\nContent-Type: text/html\r\n\r\n<h2>Waiting period</h2><p>30 days</p>\r\n"

	e := NewDefault(config.ExtractorConfig{}, nil, logger.Nop(), nil)

	res := e.Extract(context.Background(), writeDoc(t, "a.eml", []byte(multipartMail), schema.KindEmail))
	require.Equal(t, StatusOK, res.Status, res.Reason)
	text := res.Text.Text()
	assert.Contains(t, text, "Subject: Claim approved")
	assert.Contains(t, text, "Your claim is approved for €500.")
	assert.NotContains(t, text, "<b>")
	assert.Equal(t, "Claim approved", res.Text.Segments[0].Metadata[schema.MetadataKeySection])

	res = e.Extract(context.Background(), writeDoc(t, "b.eml", []byte(htmlOnly), schema.KindEmail))
	require.Equal(t, StatusOK, res.Status, res.Reason)
	assert.Contains(t, res.Text.Text(), "## Waiting period")
}

func TestText(t *testing.T) {
	e := NewDefault(config.ExtractorConfig{}, nil, logger.Nop(), nil)

	tests := []struct {
		name   string
		data   []byte
		status Status
	}{
		{name: "plain", data: []byte("\xEF\xBB\xBFGrace period is 30 days."), status: StatusOK},
		{name: "binary", data: []byte{0x89, 'P', 'N', 'G', '\r', '\n', 0x1a, '\n', 0, 0, 0, 0x0d, 'I', 'H', 'D', 'R', 0xff, 0xfe}, status: StatusUnsupported},
		{name: "empty", data: []byte("  \n"), status: StatusEmpty},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := e.Extract(context.Background(), writeDoc(t, "doc.txt", tt.data, schema.KindText))
			assert.Equal(t, tt.status, res.Status, res.Reason)
			if tt.status == StatusOK {
				assert.Equal(t, "Grace period is 30 days.", res.Text.Text())
			}
		})
	}
}

type panickingFormat struct{}

func (panickingFormat) Extract(ctx context.Context, doc *schema.SourceDocument) (*schema.ExtractedText, error) {
	panic("boom")
}

func TestExtractNeverPanics(t *testing.T) {
	e := New(logger.Nop(), nil)
	e.Register(schema.KindText, panickingFormat{})

	var res Result
	require.NotPanics(t, func() {
		res = e.Extract(context.Background(), writeDoc(t, "a.txt", []byte("x"), schema.KindText))
	})
	assert.Equal(t, StatusError, res.Status)
	assert.Contains(t, res.Reason, "boom")

	res = e.Extract(context.Background(), writeDoc(t, "a.pdf", []byte("x"), schema.KindPDF))
	assert.Equal(t, StatusUnsupported, res.Status)
	assert.ErrorIs(t, res.Err(), ErrUnsupportedFormat)
}
