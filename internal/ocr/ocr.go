// Package ocr recognizes text in rendered page images.
package ocr

import (
	"context"
	"fmt"
	"strings"

	"docqa/internal/config"
)

// OCR turns a PNG page image into text.
type OCR interface {
	Recognize(ctx context.Context, png []byte) (string, error)
	Name() string
}

const visionPrompt = "Transcribe all text in this document page exactly as written. " +
	"Preserve reading order and line breaks. Output only the transcription."

// New builds the configured OCR engine. Provider "none" (or empty) disables OCR and returns nil.
func New(cfg config.OCRConfig) (OCR, error) {
	switch strings.ToLower(cfg.Provider) {
	case "", "none":
		return nil, nil
	case "tesseract":
		return NewTesseract(cfg.TesseractPath, cfg.Language), nil
	case "gemini":
		return NewGeminiVision(cfg.Model, cfg.APIKey)
	case "ollama":
		return NewOllamaVision(cfg.Model, cfg.BaseURL)
	default:
		return nil, fmt.Errorf("unsupported OCR provider: %q", cfg.Provider)
	}
}
