package embedding

import (
	"fmt"

	"docqa/internal/config"
	"docqa/internal/rag/interfaces"
)

// Provider 是 embedding 模型厂商的名称。
type Provider string

const (
	Gemini      Provider = "gemini"      // Google GenAI
	OpenAI      Provider = "openai"      // OpenAI 及兼容接口
	Ollama      Provider = "ollama"      // 本地 Ollama 服务
	HuggingFace Provider = "huggingface" // Hugging Face Inference API
)

// New 根据配置中选择的提供商创建 Embedder。
// 构建索引和检索问题时必须使用同一个 Embedder，否则向量维度可能不一致。
func New(cfg config.EmbeddingConfig) (interfaces.Embedder, error) {
	switch Provider(cfg.Provider) {
	case Gemini:
		return NewGoogleModel(cfg.Gemini.APIKey, cfg.Gemini.Model)
	case OpenAI:
		return NewOpenAIModel(cfg.OpenAI.APIKey, cfg.OpenAI.Model, cfg.OpenAI.BaseURL)
	case HuggingFace:
		return NewHuggingFaceModel(cfg.HuggingFace.APIKey, cfg.HuggingFace.Model, cfg.HuggingFace.BaseURL)
	case Ollama:
		return NewOllamaModel(cfg.Ollama.Model, cfg.Ollama.BaseURL)
	default:
		return nil, fmt.Errorf("unsupported embedding provider: %q", cfg.Provider)
	}
}

// checkCount 确认每个输入文本都得到了一个向量。
func checkCount(want, got int) error {
	if want != got {
		return fmt.Errorf("embedding count mismatch: sent %d texts, got %d vectors", want, got)
	}
	return nil
}
