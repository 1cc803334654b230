// Package bootstrap assembles the pipeline and service from configuration.
// The HTTP service, the MCP server and the CLI's local mode share it.
package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"io"

	"docqa/internal/config"
	"docqa/internal/database/kafka"
	"docqa/internal/database/redis"
	"docqa/internal/embedding"
	"docqa/internal/llm"
	"docqa/internal/metrics"
	"docqa/internal/ocr"
	"docqa/internal/rag/extractor"
	"docqa/internal/rag/fetcher"
	"docqa/internal/rag/pipeline"
	"docqa/internal/rag/rerankers"
	"docqa/internal/rag/retriever"
	"docqa/internal/rag/splitters"
	"docqa/internal/rag/synthesizer"
	"docqa/internal/rag/vectorstore"
	"docqa/internal/rag_service/cache"
	"docqa/internal/rag_service/service"
	"docqa/pkg/circuitbreaker"
	httpclient "docqa/pkg/http"
	"docqa/pkg/logger"
)

// App holds the assembled components. Close releases external connections.
type App struct {
	Config       *config.AppConfig
	Metrics      *metrics.Metrics
	Fetcher      *fetcher.HTTPFetcher
	Extractor    *extractor.Extractor
	Orchestrator *pipeline.Orchestrator
	Service      *service.Service

	closers []func() error
}

// Build wires every component described by cfg. Clients opened before a
// failure are closed.
func Build(ctx context.Context, cfg *config.AppConfig, log *logger.Logger) (_ *App, err error) {
	app := &App{Config: cfg, Metrics: metrics.New()}
	defer func() {
		if err != nil {
			app.Close()
		}
	}()

	if cfg.Extractor.UnidocLicenseKey != "" {
		if err := extractor.RegisterUnidocLicense(cfg.Extractor.UnidocLicenseKey); err != nil {
			log.WithError(err).Warn("UniDoc license rejected, using pure Go PDF readers")
		}
	}

	client, err := httpclient.NewClient(cfg.Fetcher.CircuitBreaker,
		httpclient.WithTimeout(config.Duration(cfg.Fetcher.Timeout)),
		httpclient.WithBreakerStateChange(app.breakerObserver("fetcher", log)),
	)
	if err != nil {
		return nil, fmt.Errorf("create fetch client: %w", err)
	}
	app.Fetcher = fetcher.New(cfg.Fetcher, client, log)

	engine, err := ocr.New(cfg.Extractor.OCR)
	if err != nil {
		return nil, fmt.Errorf("create OCR engine: %w", err)
	}
	app.addCloser(engine)
	if engine == nil {
		log.Warn("OCR disabled, scanned PDFs will yield no text")
	}
	app.Extractor = extractor.NewDefault(cfg.Extractor, engine, log, app.Metrics)

	splitter, err := splitters.NewRecursiveSplitter(
		splitters.WithChunkSize(cfg.Chunker.Size),
		splitters.WithOverlap(cfg.Chunker.Overlap),
	)
	if err != nil {
		return nil, err
	}

	embedder, err := embedding.New(cfg.Embedding)
	if err != nil {
		return nil, fmt.Errorf("create embedder: %w", err)
	}
	app.addCloser(embedder)
	builder, err := vectorstore.NewBuilder(embedder, cfg.Index.Backend, cfg.Index.BatchSize, cfg.Index.Concurrency, log)
	if err != nil {
		return nil, err
	}

	var retrieverOpts []retriever.Option
	if cfg.Rerank.Enabled {
		reranker, err := rerankers.NewCohereReranker(cfg.Rerank, client)
		if err != nil {
			return nil, fmt.Errorf("create reranker: %w", err)
		}
		retrieverOpts = append(retrieverOpts, retriever.WithReranker(reranker))
	}
	ret := retriever.New(embedder, log, retrieverOpts...)

	model, err := llm.NewClient(cfg.LLM)
	if err != nil {
		return nil, fmt.Errorf("create LLM client: %w", err)
	}
	app.addCloser(model)
	counter, err := synthesizer.NewTokenCounter(cfg.Synthesizer.Encoding)
	if err != nil {
		log.WithError(err).Warn("tokenizer unavailable, estimating context size")
	}
	synth, err := synthesizer.New(model,
		synthesizer.WithTokenCounter(counter),
		synthesizer.WithContextBudget(cfg.Synthesizer.ContextTokenBudget),
		synthesizer.WithMaxResponseTime(config.Duration(cfg.Synthesizer.MaxResponseTime)),
		synthesizer.WithLogger(log),
		synthesizer.WithMetrics(app.Metrics),
	)
	if err != nil {
		return nil, err
	}

	app.Orchestrator, err = pipeline.New(pipeline.Components{
		Fetcher:     app.Fetcher,
		Extractor:   app.Extractor,
		Splitter:    splitter,
		Indexer:     builder,
		Retriever:   ret,
		Synthesizer: synth,
	},
		pipeline.WithTopK(cfg.Index.TopK),
		pipeline.WithConcurrency(cfg.Synthesizer.Concurrency),
		pipeline.WithAnswerFormat(cfg.Synthesizer.AnswerFormat),
		pipeline.WithLogger(log),
		pipeline.WithMetrics(app.Metrics),
	)
	if err != nil {
		return nil, err
	}

	answerCache, err := app.newCache(ctx, cfg, log)
	if err != nil {
		return nil, err
	}
	publisher, err := app.newPublisher(cfg.Databases.Kafka, log)
	if err != nil {
		return nil, err
	}

	app.Service = service.New(app.Orchestrator, service.Options{
		Cache:        answerCache,
		Publisher:    publisher,
		Metrics:      app.Metrics,
		Logger:       log,
		Timeout:      config.Duration(cfg.Server.RequestTimeout),
		AnswerFormat: cfg.Synthesizer.AnswerFormat,
		Health: service.HealthInfo{
			CredentialsConfigured: cfg.CredentialsConfigured(),
			LLMProvider:           cfg.LLM.Provider,
			EmbeddingProvider:     cfg.Embedding.Provider,
			OCRProvider:           cfg.Extractor.OCR.Provider,
			IndexBackend:          cfg.Index.Backend,
		},
	})
	return app, nil
}

// newCache prefers Redis when an address is configured and falls back to the
// in-process LRU. A nil cache disables caching.
func (a *App) newCache(ctx context.Context, cfg *config.AppConfig, log *logger.Logger) (cache.Cache, error) {
	if !cfg.Cache.Enabled {
		return nil, nil
	}
	ttl := config.Duration(cfg.Cache.TTL)
	if cfg.Databases.Redis.Address != "" {
		rdb, err := redis.NewClient(ctx, cfg.Databases.Redis)
		if err == nil {
			a.closers = append(a.closers, rdb.Close)
			log.With("address", cfg.Databases.Redis.Address).Info("answer cache backed by Redis")
			return cache.NewRedisCache(rdb, ttl), nil
		}
		log.WithError(err).Warn("Redis unavailable, using in-process answer cache")
	}
	return cache.NewMemoryCache(cfg.Cache.Capacity, ttl)
}

func (a *App) newPublisher(cfg config.KafkaConfig, log *logger.Logger) (service.Publisher, error) {
	if len(cfg.Brokers) == 0 {
		return kafka.NopPublisher{}, nil
	}
	p, err := kafka.NewRunEventPublisher(cfg)
	if err != nil {
		return nil, fmt.Errorf("create run event publisher: %w", err)
	}
	a.closers = append(a.closers, p.Close)
	log.WithFields(map[string]interface{}{"brokers": cfg.Brokers, "topic": cfg.Topic}).Info("publishing run events to Kafka")
	return p, nil
}

func (a *App) breakerObserver(name string, log *logger.Logger) func(from, to circuitbreaker.State) {
	gauge := a.Metrics.BreakerState.WithLabelValues(name)
	return func(from, to circuitbreaker.State) {
		gauge.Set(float64(to))
		log.WithFields(map[string]interface{}{"breaker": name, "from": from.String(), "to": to.String()}).Warn("circuit breaker state changed")
	}
}

// addCloser registers x for Close when it holds a connection.
func (a *App) addCloser(x any) {
	if c, ok := x.(io.Closer); ok {
		a.closers = append(a.closers, c.Close)
	}
}

// Close releases every external connection opened by Build.
func (a *App) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		errs = append(errs, a.closers[i]())
	}
	a.closers = nil
	return errors.Join(errs...)
}
