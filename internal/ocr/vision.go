package ocr

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/generative-ai-go/genai"
	olla "github.com/ollama/ollama/api"
	"google.golang.org/api/option"
)

// GeminiVision transcribes page images with a multimodal Gemini model.
type GeminiVision struct {
	client *genai.Client
	model  *genai.GenerativeModel
}

// NewGeminiVision creates a Gemini-backed OCR engine.
func NewGeminiVision(model, apiKey string) (*GeminiVision, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("gemini OCR requires an API key")
	}
	if model == "" {
		model = "gemini-1.5-flash"
	}
	client, err := genai.NewClient(context.Background(), option.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("failed to create genai client: %w", err)
	}
	m := client.GenerativeModel(model)
	m.SetTemperature(0)
	return &GeminiVision{client: client, model: m}, nil
}

func (g *GeminiVision) Name() string { return "gemini" }

func (g *GeminiVision) Close() error { return g.client.Close() }

func (g *GeminiVision) Recognize(ctx context.Context, png []byte) (string, error) {
	resp, err := g.model.GenerateContent(ctx, genai.ImageData("png", png), genai.Text(visionPrompt))
	if err != nil {
		return "", fmt.Errorf("gemini vision: %w", err)
	}
	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return "", nil
	}
	var sb strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if text, ok := part.(genai.Text); ok {
			sb.WriteString(string(text))
		}
	}
	return sb.String(), nil
}

// OllamaVision transcribes page images with a local multimodal model such as llava.
type OllamaVision struct {
	client *olla.Client
	model  string
}

// NewOllamaVision creates an Ollama-backed OCR engine.
func NewOllamaVision(model, baseURL string) (*OllamaVision, error) {
	if baseURL == "" {
		baseURL = "http://localhost:11434"
	}
	if model == "" {
		model = "llava"
	}
	u, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("invalid base URL: %w", err)
	}
	return &OllamaVision{
		client: olla.NewClient(u, &http.Client{Timeout: 120 * time.Second}),
		model:  model,
	}, nil
}

func (o *OllamaVision) Name() string { return "ollama" }

func (o *OllamaVision) Recognize(ctx context.Context, png []byte) (string, error) {
	stream := false
	var sb strings.Builder
	err := o.client.Generate(ctx, &olla.GenerateRequest{
		Model:  o.model,
		Prompt: visionPrompt,
		Images: []olla.ImageData{png},
		Stream: &stream,
	}, func(resp olla.GenerateResponse) error {
		sb.WriteString(resp.Response)
		return nil
	})
	if err != nil {
		return "", fmt.Errorf("ollama vision: %w", err)
	}
	return sb.String(), nil
}
