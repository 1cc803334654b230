package extractor

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
)

// PageImage is one rendered page.
type PageImage struct {
	Page int
	PNG  []byte
}

// Rasterizer renders every page of a PDF to PNG, in page order.
type Rasterizer interface {
	Rasterize(ctx context.Context, pdfPath string) ([]PageImage, error)
}

// PdftoppmRasterizer renders pages with poppler's pdftoppm.
type PdftoppmRasterizer struct {
	path string
	dpi  int
}

func NewPdftoppmRasterizer(path string, dpi int) *PdftoppmRasterizer {
	if path == "" {
		path = "pdftoppm"
	}
	if dpi <= 0 {
		dpi = 300
	}
	return &PdftoppmRasterizer{path: path, dpi: dpi}
}

func (r *PdftoppmRasterizer) Rasterize(ctx context.Context, pdfPath string) ([]PageImage, error) {
	dir, err := os.MkdirTemp("", "docqa-raster-")
	if err != nil {
		return nil, fmt.Errorf("create raster dir: %w", err)
	}
	defer os.RemoveAll(dir)

	var stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, r.path, "-r", strconv.Itoa(r.dpi), "-png", pdfPath, filepath.Join(dir, "page"))
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return nil, fmt.Errorf("pdftoppm: %w: %s", err, strings.TrimSpace(stderr.String()))
	}
	return readPageImages(dir)
}

// readPageImages loads page-N.png files; pdftoppm zero-pads N depending on the page count.
func readPageImages(dir string) ([]PageImage, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	var pages []PageImage
	for _, e := range entries {
		name := e.Name()
		if !strings.HasPrefix(name, "page-") || !strings.HasSuffix(name, ".png") {
			continue
		}
		n, err := strconv.Atoi(strings.TrimSuffix(strings.TrimPrefix(name, "page-"), ".png"))
		if err != nil {
			continue
		}
		data, err := os.ReadFile(filepath.Join(dir, name))
		if err != nil {
			return nil, err
		}
		pages = append(pages, PageImage{Page: n, PNG: data})
	}
	sort.Slice(pages, func(i, j int) bool { return pages[i].Page < pages[j].Page })
	return pages, nil
}
