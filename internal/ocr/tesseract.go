package ocr

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"strings"
)

// Tesseract shells out to the tesseract CLI.
type Tesseract struct {
	path string
	lang string
}

// NewTesseract returns a Tesseract engine. Empty values default to "tesseract" on PATH and "eng".
func NewTesseract(path, lang string) *Tesseract {
	if path == "" {
		path = "tesseract"
	}
	if lang == "" {
		lang = "eng"
	}
	return &Tesseract{path: path, lang: lang}
}

func (t *Tesseract) Name() string { return "tesseract" }

// Recognize writes the image to a temporary file and reads the transcription from stdout.
func (t *Tesseract) Recognize(ctx context.Context, png []byte) (string, error) {
	f, err := os.CreateTemp("", "docqa-ocr-*.png")
	if err != nil {
		return "", fmt.Errorf("create image file: %w", err)
	}
	defer os.Remove(f.Name())
	if _, err := f.Write(png); err != nil {
		f.Close()
		return "", fmt.Errorf("write image file: %w", err)
	}
	if err := f.Close(); err != nil {
		return "", fmt.Errorf("close image file: %w", err)
	}

	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, t.path, f.Name(), "stdout", "-l", t.lang, "--psm", "3")
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return "", fmt.Errorf("tesseract: %w: %s", err, strings.TrimSpace(stderr.String()))
	}
	return stdout.String(), nil
}
