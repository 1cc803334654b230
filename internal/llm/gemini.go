package llm

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"
)

// Gemini 通过 Gemini API 生成回答。每次调用都是独立的单轮请求。
type Gemini struct {
	client *genai.Client
	model  *genai.GenerativeModel // Gemini 生成模型实例。
}

// NewGemini 创建一个新的 Gemini 客户端。
//
// 参数:
//
//	model: 要使用的 Gemini 模型名称。
//	apiKey: Gemini API 密钥。
//	opts: 温度、最大输出 token 等生成参数。
func NewGemini(model, apiKey string, opts Options) (*Gemini, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("gemini requires an API key")
	}
	client, err := genai.NewClient(context.Background(), option.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("failed to create genai client: %w", err)
	}

	generativeModel := client.GenerativeModel(model)
	generativeModel.SetTemperature(opts.Temperature)
	if opts.MaxTokens > 0 {
		generativeModel.SetMaxOutputTokens(int32(opts.MaxTokens))
	}
	if opts.JSONMode {
		generativeModel.ResponseMIMEType = "application/json"
	}

	return &Gemini{client: client, model: generativeModel}, nil
}

// Generate 发送提示词并拼接第一个候选回答中的全部文本。
func (g *Gemini) Generate(ctx context.Context, prompt string) (string, error) {
	resp, err := g.model.GenerateContent(ctx, genai.Text(prompt))
	if err != nil {
		return "", fmt.Errorf("gemini generate: %w", err)
	}
	return candidateText(resp)
}

// Close 释放底层客户端。
func (g *Gemini) Close() error {
	return g.client.Close()
}

// candidateText 提取第一个候选回答的文本部分。
func candidateText(resp *genai.GenerateContentResponse) (string, error) {
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return "", fmt.Errorf("gemini response was empty")
	}
	var sb strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if text, ok := part.(genai.Text); ok {
			sb.WriteString(string(text))
		}
	}
	if sb.Len() == 0 {
		return "", fmt.Errorf("gemini response contained no text")
	}
	return sb.String(), nil
}
