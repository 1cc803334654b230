package llm

import (
	"fmt"

	"docqa/internal/config"
	"docqa/internal/rag/interfaces"
)

// Options 是所有提供商共享的生成参数。
type Options struct {
	Temperature float32
	MaxTokens   int
	// JSONMode 要求模型只输出 JSON (仅部分提供商支持)。
	JSONMode bool
}

// NewClient 是一个工厂函数，根据配置创建实现了 interfaces.LLM 的客户端。
func NewClient(cfg config.LLMConfig) (interfaces.LLM, error) {
	opts := Options{Temperature: cfg.Temperature, MaxTokens: cfg.MaxTokens, JSONMode: true}
	switch cfg.Provider {
	case "gemini":
		return NewGemini(cfg.Gemini.Model, cfg.Gemini.APIKey, opts)
	case "openai":
		return NewOpenAI(cfg.OpenAI.Model, cfg.OpenAI.APIKey, cfg.OpenAI.BaseURL, opts)
	case "ollama":
		return NewOllama(cfg.Ollama.Model, cfg.Ollama.BaseURL, opts)
	default:
		return nil, fmt.Errorf("unsupported LLM provider: %q", cfg.Provider)
	}
}
