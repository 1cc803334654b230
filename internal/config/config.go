package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// AppInfo 对应 'app' 部分，包含应用程序的基本信息。
type AppInfo struct {
	Name        string `yaml:"name"`        // 应用程序名称
	Version     string `yaml:"version"`     // 应用程序版本
	Environment string `yaml:"environment"` // 运行环境 (例如: "development", "production")
}

// AuthConfig 定义了接口鉴权的配置。
type AuthConfig struct {
	// BearerToken 是调用方必须携带的令牌。没有默认值，为空时所有受保护接口都拒绝请求。
	BearerToken string `yaml:"bearerToken"`
}

// ServerConfig 定义了 HTTP 服务的监听地址和超时。
type ServerConfig struct {
	Address        string `yaml:"address"`        // API 监听地址
	MetricsAddress string `yaml:"metricsAddress"` // Prometheus 指标服务地址，为空时不启动
	RequestTimeout string `yaml:"requestTimeout"` // 单个请求的硬超时 (例如: "120s")
}

// FetcherConfig 定义了文档下载的配置。
type FetcherConfig struct {
	Timeout        string               `yaml:"timeout"`        // 下载超时
	MaxBytes       int64                `yaml:"maxBytes"`       // 允许下载的最大字节数
	UserAgent      string               `yaml:"userAgent"`      // 请求使用的 User-Agent
	TempDir        string               `yaml:"tempDir"`        // 临时文件目录，为空时使用系统默认目录
	CircuitBreaker CircuitBreakerConfig `yaml:"circuitBreaker"` // 下载客户端使用的熔断器
}

// OCRConfig 定义了 OCR 能力的配置。
type OCRConfig struct {
	Provider      string `yaml:"provider"`      // "tesseract", "gemini", "ollama" 或 "none"
	Language      string `yaml:"language"`      // tesseract 语言 (例如: "eng")
	TesseractPath string `yaml:"tesseractPath"` // tesseract 可执行文件路径
	Model         string `yaml:"model"`         // 视觉模型名称 (gemini/ollama)
	APIKey        string `yaml:"apiKey"`        // 视觉模型 API 密钥
	BaseURL       string `yaml:"baseURL"`       // ollama 服务地址
}

// ExtractorConfig 定义了文本抽取的配置。
type ExtractorConfig struct {
	UnidocLicenseKey string    `yaml:"unidocLicenseKey"` // UniDoc 计量许可证，为空时使用纯 Go 实现
	Rasterizer       string    `yaml:"rasterizer"`       // "pdftoppm" 或 "unipdf"
	PdftoppmPath     string    `yaml:"pdftoppmPath"`     // pdftoppm 可执行文件路径
	DPI              int       `yaml:"dpi"`              // 光栅化分辨率
	OCR              OCRConfig `yaml:"ocr"`              // OCR 配置
}

// ChunkerConfig 定义了文本切分的配置。
type ChunkerConfig struct {
	Size    int `yaml:"size"`    // 每个分块的最大字符数
	Overlap int `yaml:"overlap"` // 相邻分块的重叠字符数
}

// IndexConfig 定义了向量索引的配置。
type IndexConfig struct {
	Backend     string `yaml:"backend"`     // "flat" 或 "chromem"
	TopK        int    `yaml:"topK"`        // 每个问题检索的分块数
	BatchSize   int    `yaml:"batchSize"`   // 每批 embedding 的文本数
	Concurrency int    `yaml:"concurrency"` // 并发 embedding 的批次数
}

// ProviderConfig 描述一个模型提供商的连接参数。
type ProviderConfig struct {
	APIKey  string `yaml:"apiKey"`  // API 密钥
	Model   string `yaml:"model"`   // 模型名称
	BaseURL string `yaml:"baseURL"` // 服务基础 URL (可选)
}

// LLMConfig 包含了不同LLM提供商的配置。
type LLMConfig struct {
	Provider    string         `yaml:"provider"` // LLM提供商 ("gemini", "openai", "ollama")
	Temperature float32        `yaml:"temperature"`
	MaxTokens   int            `yaml:"maxTokens"`
	Gemini      ProviderConfig `yaml:"gemini"`
	OpenAI      ProviderConfig `yaml:"openai"`
	Ollama      ProviderConfig `yaml:"ollama"`
}

// EmbeddingConfig 包含了不同Embedding提供商的配置。
type EmbeddingConfig struct {
	Provider    string         `yaml:"provider"` // Embedding提供商 ("gemini", "openai", "ollama", "huggingface")
	Gemini      ProviderConfig `yaml:"gemini"`
	OpenAI      ProviderConfig `yaml:"openai"`
	Ollama      ProviderConfig `yaml:"ollama"`
	HuggingFace ProviderConfig `yaml:"huggingface"`
}

// SynthesizerConfig 定义了答案生成的配置。
type SynthesizerConfig struct {
	MaxResponseTime    string `yaml:"maxResponseTime"`    // 超过其 80% 时记录警告
	ContextTokenBudget int    `yaml:"contextTokenBudget"` // 上下文最多占用的 token 数，0 表示不限制
	Encoding           string `yaml:"encoding"`           // tiktoken 编码名称
	AnswerFormat       string `yaml:"answerFormat"`       // "answer", "detailed" 或 "json"
	Concurrency        int    `yaml:"concurrency"`        // 同一请求内并行回答的问题数
}

// RerankConfig 定义了可选的 Cohere 重排序配置。
type RerankConfig struct {
	Enabled bool   `yaml:"enabled"`
	APIKey  string `yaml:"apiKey"`
	Model   string `yaml:"model"`
	BaseURL string `yaml:"baseURL"`
}

// RedisConfig 定义了答案缓存使用的 Redis 连接配置。
type RedisConfig struct {
	Address  string `yaml:"address"`  // Redis 服务器地址 (例如: "localhost:6379")，为空时使用进程内缓存
	Password string `yaml:"password"` // Redis 密码
	DB       int    `yaml:"db"`       // Redis 数据库编号
}

// KafkaConfig 定义了运行事件发布的 Kafka 配置。
type KafkaConfig struct {
	Brokers []string `yaml:"brokers"` // Kafka Broker 地址列表，为空时不发布事件
	Topic   string   `yaml:"topic"`   // 运行事件主题
}

// CacheConfig 定义了答案缓存的行为。
type CacheConfig struct {
	Enabled  bool   `yaml:"enabled"`
	TTL      string `yaml:"ttl"`      // 缓存有效期
	Capacity int    `yaml:"capacity"` // 进程内缓存的最大条目数
}

// DatabaseConfigs 包含所有外部存储的配置。
type DatabaseConfigs struct {
	Redis RedisConfig `yaml:"redis"`
	Kafka KafkaConfig `yaml:"kafka"`
}

// LoggerConfig 定义了日志记录器的配置。
type LoggerConfig struct {
	Level string `yaml:"level"` // 日志级别 (例如: "info", "debug", "warn", "error")
}

// MiddlewareConfig 包含所有中间件的配置。
type MiddlewareConfig struct {
	RateLimiter    RateLimiterConfig    `yaml:"rateLimiter"`
	CircuitBreaker CircuitBreakerConfig `yaml:"circuitBreaker"`
}

// RateLimiterConfig 定义了限流器的配置。
type RateLimiterConfig struct {
	Enabled     bool              `yaml:"enabled"`
	Algorithm   string            `yaml:"algorithm"` // 支持: "tokenBucket", "slidingLog"
	TokenBucket TokenBucketConfig `yaml:"tokenBucket"`
	SlidingLog  SlidingLogConfig  `yaml:"slidingLog"`
}

// TokenBucketConfig 定义了令牌桶算法的配置。
type TokenBucketConfig struct {
	Rate     float64 `yaml:"rate"` // 每秒速率
	Capacity int     `yaml:"capacity"`
}

// SlidingLogConfig 定义了滑动窗口日志算法的配置。
type SlidingLogConfig struct {
	Limit  int    `yaml:"limit"`
	Window string `yaml:"window"` // 例如: "1m", "30s"
}

// CircuitBreakerConfig 定义了熔断器的配置。
type CircuitBreakerConfig struct {
	Enabled          bool   `yaml:"enabled"`
	FailureThreshold uint32 `yaml:"failureThreshold"`
	SuccessThreshold uint32 `yaml:"successThreshold"`
	Timeout          string `yaml:"timeout"` // 例如: "30s"
}

// AppConfig 是整个 YAML 文件的根结构，包含了应用程序的所有配置。
type AppConfig struct {
	App         AppInfo           `yaml:"app"`
	Auth        AuthConfig        `yaml:"auth"`
	Server      ServerConfig      `yaml:"server"`
	Fetcher     FetcherConfig     `yaml:"fetcher"`
	Extractor   ExtractorConfig   `yaml:"extractor"`
	Chunker     ChunkerConfig     `yaml:"chunker"`
	Index       IndexConfig       `yaml:"index"`
	LLM         LLMConfig         `yaml:"llm"`
	Embedding   EmbeddingConfig   `yaml:"embedding"`
	Synthesizer SynthesizerConfig `yaml:"synthesizer"`
	Rerank      RerankConfig      `yaml:"rerank"`
	Cache       CacheConfig       `yaml:"cache"`
	Logger      LoggerConfig      `yaml:"logger"`
	Databases   DatabaseConfigs   `yaml:"databases"`
	Middleware  MiddlewareConfig  `yaml:"middleware"`
}

// LoadConfig 从指定路径加载 YAML 配置文件。
//
// 加载顺序: 先读取工作目录下的 .env (不存在时忽略)，再解析 YAML，
// 然后填充默认值，最后用环境变量覆盖密钥类配置并校验。
func LoadConfig(path string) (*AppConfig, error) {
	_ = godotenv.Load()

	yamlFile, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("无法读取 YAML 文件 '%s': %w", path, err)
	}
	return Parse(yamlFile)
}

// Parse 解析 YAML 内容并完成默认值、环境变量覆盖和校验。
func Parse(data []byte) (*AppConfig, error) {
	var cfg AppConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("解析 YAML 文件失败: %w", err)
	}
	cfg.ApplyDefaults()
	cfg.applyEnv(os.LookupEnv)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Default 返回只包含默认值的配置，供 CLI 在没有配置文件时使用。
func Default() *AppConfig {
	var cfg AppConfig
	cfg.ApplyDefaults()
	cfg.applyEnv(os.LookupEnv)
	return &cfg
}

// ApplyDefaults 为未设置的字段填充默认值。
func (c *AppConfig) ApplyDefaults() {
	if c.App.Name == "" {
		c.App.Name = "docqa"
	}
	if c.Server.Address == "" {
		c.Server.Address = ":8000"
	}
	if c.Server.RequestTimeout == "" {
		c.Server.RequestTimeout = "120s"
	}
	if c.Fetcher.Timeout == "" {
		c.Fetcher.Timeout = "60s"
	}
	if c.Fetcher.MaxBytes == 0 {
		c.Fetcher.MaxBytes = 50 << 20
	}
	if c.Fetcher.UserAgent == "" {
		c.Fetcher.UserAgent = "docqa/1.0"
	}
	if c.Extractor.Rasterizer == "" {
		c.Extractor.Rasterizer = "pdftoppm"
	}
	if c.Extractor.PdftoppmPath == "" {
		c.Extractor.PdftoppmPath = "pdftoppm"
	}
	if c.Extractor.DPI == 0 {
		c.Extractor.DPI = 300
	}
	if c.Extractor.OCR.Provider == "" {
		c.Extractor.OCR.Provider = "tesseract"
	}
	if c.Extractor.OCR.Language == "" {
		c.Extractor.OCR.Language = "eng"
	}
	if c.Extractor.OCR.TesseractPath == "" {
		c.Extractor.OCR.TesseractPath = "tesseract"
	}
	if c.Chunker.Size == 0 {
		c.Chunker.Size = 1000
	}
	if c.Chunker.Overlap == 0 {
		c.Chunker.Overlap = c.Chunker.Size / 5
	}
	if c.Index.Backend == "" {
		c.Index.Backend = "flat"
	}
	if c.Index.TopK == 0 {
		c.Index.TopK = 3
	}
	if c.Index.BatchSize == 0 {
		c.Index.BatchSize = 64
	}
	if c.Index.Concurrency == 0 {
		c.Index.Concurrency = 4
	}
	if c.LLM.Provider == "" {
		c.LLM.Provider = "gemini"
	}
	if c.LLM.Temperature == 0 {
		c.LLM.Temperature = 0.3
	}
	if c.LLM.MaxTokens == 0 {
		c.LLM.MaxTokens = 4096
	}
	if c.LLM.Gemini.Model == "" {
		c.LLM.Gemini.Model = "gemini-1.5-flash"
	}
	if c.LLM.OpenAI.Model == "" {
		c.LLM.OpenAI.Model = "gpt-4-turbo"
	}
	if c.Embedding.Provider == "" {
		c.Embedding.Provider = "gemini"
	}
	if c.Embedding.Gemini.Model == "" {
		c.Embedding.Gemini.Model = "text-embedding-004"
	}
	if c.Embedding.OpenAI.Model == "" {
		c.Embedding.OpenAI.Model = "text-embedding-3-large"
	}
	if c.Embedding.HuggingFace.Model == "" {
		c.Embedding.HuggingFace.Model = "sentence-transformers/all-MiniLM-L6-v2"
	}
	if c.Synthesizer.MaxResponseTime == "" {
		c.Synthesizer.MaxResponseTime = "30s"
	}
	if c.Synthesizer.Encoding == "" {
		c.Synthesizer.Encoding = "cl100k_base"
	}
	if c.Synthesizer.ContextTokenBudget == 0 {
		c.Synthesizer.ContextTokenBudget = 3000
	}
	if c.Synthesizer.AnswerFormat == "" {
		c.Synthesizer.AnswerFormat = "answer"
	}
	if c.Synthesizer.Concurrency == 0 {
		c.Synthesizer.Concurrency = 4
	}
	if c.Rerank.Model == "" {
		c.Rerank.Model = "rerank-english-v3.0"
	}
	if c.Cache.TTL == "" {
		c.Cache.TTL = "1h"
	}
	if c.Cache.Capacity == 0 {
		c.Cache.Capacity = 256
	}
	if c.Databases.Kafka.Topic == "" {
		c.Databases.Kafka.Topic = "docqa.runs"
	}
	if c.Logger.Level == "" {
		c.Logger.Level = "info"
	}
	if c.Middleware.RateLimiter.Algorithm == "" {
		c.Middleware.RateLimiter.Algorithm = "tokenBucket"
	}
}

// applyEnv 用环境变量覆盖密钥和外部地址，密钥不应写入配置文件。
func (c *AppConfig) applyEnv(lookup func(string) (string, bool)) {
	set := func(dst *string, key string) {
		if v, ok := lookup(key); ok && strings.TrimSpace(v) != "" {
			*dst = strings.TrimSpace(v)
		}
	}
	set(&c.Auth.BearerToken, "HACKRX_API_KEY")
	set(&c.LLM.Gemini.APIKey, "GEMINI_API_KEY")
	set(&c.Embedding.Gemini.APIKey, "GEMINI_API_KEY")
	set(&c.LLM.OpenAI.APIKey, "OPENAI_API_KEY")
	set(&c.Embedding.OpenAI.APIKey, "OPENAI_API_KEY")
	set(&c.Embedding.HuggingFace.APIKey, "HF_API_KEY")
	set(&c.Rerank.APIKey, "COHERE_API_KEY")
	set(&c.Extractor.UnidocLicenseKey, "UNIDOC_LICENSE_API_KEY")
	set(&c.Databases.Redis.Address, "REDIS_ADDR")
	if c.Extractor.OCR.Provider == "gemini" {
		set(&c.Extractor.OCR.APIKey, "GEMINI_API_KEY")
	}
	if v, ok := lookup("KAFKA_BROKERS"); ok && strings.TrimSpace(v) != "" {
		c.Databases.Kafka.Brokers = splitList(v)
	}
}

// Validate 检查配置之间的一致性。
func (c *AppConfig) Validate() error {
	var errs []error
	if c.Chunker.Size <= 0 {
		errs = append(errs, fmt.Errorf("chunker.size must be positive, got %d", c.Chunker.Size))
	}
	if c.Chunker.Overlap < 0 || c.Chunker.Overlap >= c.Chunker.Size {
		errs = append(errs, fmt.Errorf("chunker.overlap must be in [0, size), got %d", c.Chunker.Overlap))
	}
	if c.Index.TopK <= 0 {
		errs = append(errs, fmt.Errorf("index.topK must be positive, got %d", c.Index.TopK))
	}
	switch c.Index.Backend {
	case "flat", "chromem":
	default:
		errs = append(errs, fmt.Errorf("unknown index.backend %q", c.Index.Backend))
	}
	switch c.Synthesizer.AnswerFormat {
	case "answer", "detailed", "json":
	default:
		errs = append(errs, fmt.Errorf("unknown synthesizer.answerFormat %q", c.Synthesizer.AnswerFormat))
	}
	durations := map[string]string{
		"server.requestTimeout":       c.Server.RequestTimeout,
		"fetcher.timeout":             c.Fetcher.Timeout,
		"synthesizer.maxResponseTime": c.Synthesizer.MaxResponseTime,
		"cache.ttl":                   c.Cache.TTL,
	}
	for name, raw := range durations {
		if _, err := time.ParseDuration(raw); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", name, err))
		}
	}
	return errors.Join(errs...)
}

// CredentialsConfigured 报告鉴权令牌和所选 LLM 提供商的密钥是否都已配置。
func (c *AppConfig) CredentialsConfigured() bool {
	if c.Auth.BearerToken == "" {
		return false
	}
	switch c.LLM.Provider {
	case "gemini":
		return c.LLM.Gemini.APIKey != ""
	case "openai":
		return c.LLM.OpenAI.APIKey != ""
	default:
		return true
	}
}

// Duration 解析已校验过的时长字符串，解析失败返回 0。
func Duration(raw string) time.Duration {
	d, err := time.ParseDuration(raw)
	if err != nil {
		return 0
	}
	return d
}

func splitList(v string) []string {
	var out []string
	for _, part := range strings.Split(v, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
