package extractor

import (
	"bytes"
	"context"
	"fmt"
	"image/png"
	"os"
	"strings"
	"sync/atomic"

	"docqa/internal/rag/schema"
	"docqa/pkg/logger"

	officelicense "github.com/unidoc/unioffice/v2/common/license"
	"github.com/unidoc/unioffice/v2/document"
	pdflicense "github.com/unidoc/unipdf/v3/common/license"
	pdfextractor "github.com/unidoc/unipdf/v3/extractor"
	"github.com/unidoc/unipdf/v3/model"
	"github.com/unidoc/unipdf/v3/render"
)

var unidocLicensed atomic.Bool

// RegisterUnidocLicense installs a metered UniDoc key for both unipdf and unioffice.
// The license is process wide; without it the pure Go readers are used.
func RegisterUnidocLicense(key string) error {
	if strings.TrimSpace(key) == "" {
		return nil
	}
	if err := pdflicense.SetMeteredKey(key); err != nil {
		return fmt.Errorf("unipdf license: %w", err)
	}
	if err := officelicense.SetMeteredKey(key); err != nil {
		return fmt.Errorf("unioffice license: %w", err)
	}
	unidocLicensed.Store(true)
	return nil
}

// UnidocLicensed reports whether RegisterUnidocLicense succeeded.
func UnidocLicensed() bool {
	return unidocLicensed.Load()
}

// openUnidoc opens doc with unipdf, decrypting documents that use an empty user password.
func openUnidoc(doc *schema.SourceDocument) (*os.File, *model.PdfReader, error) {
	f, err := os.Open(doc.Path)
	if err != nil {
		return nil, nil, err
	}
	reader, err := model.NewPdfReader(f)
	if err != nil {
		f.Close()
		return nil, nil, err
	}
	encrypted, err := reader.IsEncrypted()
	if err != nil {
		f.Close()
		return nil, nil, err
	}
	if encrypted {
		ok, err := reader.Decrypt([]byte(""))
		if err != nil || !ok {
			f.Close()
			return nil, nil, fmt.Errorf("encrypted pdf cannot be opened without a password")
		}
	}
	return f, reader, nil
}

// UnidocLayoutStrategy extracts layout-aware text with unipdf.
type UnidocLayoutStrategy struct {
	log *logger.Logger
}

func NewUnidocLayoutStrategy(log *logger.Logger) *UnidocLayoutStrategy {
	return &UnidocLayoutStrategy{log: log}
}

func (s *UnidocLayoutStrategy) Name() string { return "layout" }

func (s *UnidocLayoutStrategy) Attempt(ctx context.Context, doc *schema.SourceDocument) ([]schema.Segment, bool) {
	f, reader, err := openUnidoc(doc)
	if err != nil {
		s.log.WithError(err).Warn("unipdf cannot open document")
		return nil, false
	}
	defer f.Close()

	numPages, err := reader.GetNumPages()
	if err != nil {
		s.log.WithError(err).Warn("unipdf cannot count pages")
		return nil, false
	}

	var segments []schema.Segment
	for i := 1; i <= numPages; i++ {
		if ctx.Err() != nil {
			break
		}
		text, err := unidocPageText(reader, i)
		if err != nil {
			s.log.WithFields(map[string]interface{}{"page": i}).WithError(err).Warn("skipping page")
			continue
		}
		segments = append(segments, schema.Segment{Text: strings.TrimSpace(text), Page: i})
	}
	return segments, true
}

func unidocPageText(reader *model.PdfReader, i int) (string, error) {
	page, err := reader.GetPage(i)
	if err != nil {
		return "", err
	}
	ex, err := pdfextractor.New(page)
	if err != nil {
		return "", err
	}
	return ex.ExtractText()
}

// UnidocRasterizer renders pages in process with the unipdf renderer.
type UnidocRasterizer struct{}

func NewUnidocRasterizer() *UnidocRasterizer { return &UnidocRasterizer{} }

func (r *UnidocRasterizer) Rasterize(ctx context.Context, pdfPath string) ([]PageImage, error) {
	f, reader, err := openUnidoc(&schema.SourceDocument{Path: pdfPath})
	if err != nil {
		return nil, err
	}
	defer f.Close()

	numPages, err := reader.GetNumPages()
	if err != nil {
		return nil, err
	}
	device := render.NewImageDevice()
	pages := make([]PageImage, 0, numPages)
	for i := 1; i <= numPages; i++ {
		if err := ctx.Err(); err != nil {
			return pages, err
		}
		page, err := reader.GetPage(i)
		if err != nil {
			continue
		}
		img, err := device.Render(page)
		if err != nil {
			continue
		}
		var buf bytes.Buffer
		if err := png.Encode(&buf, img); err != nil {
			continue
		}
		pages = append(pages, PageImage{Page: i, PNG: buf.Bytes()})
	}
	return pages, nil
}

// unidocDocxText joins paragraph runs with unioffice.
func unidocDocxText(path string) (string, error) {
	doc, err := document.Open(path)
	if err != nil {
		return "", err
	}
	paragraphs := doc.Paragraphs()
	lines := make([]string, 0, len(paragraphs))
	for _, p := range paragraphs {
		var sb strings.Builder
		for _, r := range p.Runs() {
			sb.WriteString(r.Text())
		}
		lines = append(lines, sb.String())
	}
	return strings.Join(lines, "\n"), nil
}
