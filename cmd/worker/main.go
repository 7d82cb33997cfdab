package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"docgraph/internal/config"
	"docgraph/internal/metrics"
	"docgraph/internal/queue"
	"docgraph/internal/storage"
	"docgraph/internal/util"
	"docgraph/pkg/ai"
	oai "docgraph/pkg/ai/ollama"
	gai "docgraph/pkg/ai/openai"
	"docgraph/pkg/chunk"
	"docgraph/pkg/common"
	"docgraph/pkg/graph"
	"docgraph/pkg/loader"
	ioloader "docgraph/pkg/loader/io"
	s3loader "docgraph/pkg/loader/s3"
	"docgraph/pkg/loader/web"
	"docgraph/pkg/logger"
	"docgraph/pkg/logger/console"
	"docgraph/pkg/store"
	"docgraph/pkg/store/memory"
	"docgraph/pkg/store/neo4j"
)

func main() {
	util.LoadEnv()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		console.NewConsoleLogger(console.ConsoleLoggerParams{}).Fatal("Invalid configuration", "err", err)
	}

	// logger
	logger.Init(console.NewConsoleLogger(console.ConsoleLoggerParams{
		Debug: cfg.Debug,
		JSON:  cfg.JSON,
	}))

	// graph store
	var graphStore store.GraphStore
	switch cfg.GraphAdapter {
	case "memory":
		logger.Warn("Using the in-memory graph store, nothing is persisted")
		graphStore = memory.New()
	default:
		s, err := neo4j.NewNeo4jStore(ctx, neo4j.NewNeo4jStoreParams{
			URI:      cfg.Neo4jURI,
			Username: cfg.Neo4jUser,
			Password: cfg.Neo4jPassword,
			Database: cfg.Neo4jDatabase,
		})
		if err != nil {
			logger.Fatal("Unable to connect to Neo4j", "err", err)
		}
		defer s.Close(context.WithoutCancel(ctx))
		graphStore = s
	}

	// GraphAiClient
	var aiClient ai.GraphAIClient
	switch cfg.AIAdapter {
	case "ollama":
		client, err := oai.NewGraphOllamaClient(oai.NewGraphOllamaClientParams{
			EmbeddingModel:  cfg.EmbedModel,
			ExtractionModel: cfg.ExtractModel,
			EmbeddingDim:    cfg.EmbedDim,

			BaseURL: cfg.ChatURL,
			ApiKey:  cfg.ChatKey,

			MaxConcurrentRequests: int64(cfg.ParallelRequests),
			Timeout:               cfg.AITimeout,
		})
		if err != nil {
			logger.Fatal("Could not create Ollama client", "err", err)
		}
		aiClient = client
	default:
		aiClient = gai.NewGraphOpenAIClient(gai.NewGraphOpenAIClientParams{
			EmbeddingModel:  cfg.EmbedModel,
			ExtractionModel: cfg.ExtractModel,
			EmbeddingDim:    cfg.EmbedDim,

			EmbeddingURL: cfg.EmbedURL,
			EmbeddingKey: cfg.EmbedKey,
			ChatURL:      cfg.ChatURL,
			ChatKey:      cfg.ChatKey,

			MaxConcurrentRequests: int64(cfg.ParallelRequests),
			Timeout:               cfg.AITimeout,
		})
	}

	splitter, err := chunk.NewSplitter(chunk.NewSplitterParams{
		TokenEncoder:  cfg.TokenEncoder,
		MaxTokens:     cfg.ChunkMaxTokens,
		OverlapTokens: cfg.ChunkOverlapTokens,
	})
	if err != nil {
		logger.Fatal("Could not create splitter", "err", err)
	}

	collector := metrics.NewCollector()

	extractOpts := []ai.GenerateOption{ai.WithTemperature(cfg.ExtractTemperature)}
	if cfg.ExtractThinking != "" {
		extractOpts = append(extractOpts, ai.WithThinking(cfg.ExtractThinking))
	}

	var embedder graph.Embedder
	if cfg.EmbeddingsEnabled {
		embedder = aiClient
	}
	pipeline, err := graph.NewPipeline(graph.NewPipelineParams{
		Store:     graphStore,
		Extractor: graph.NewLLMExtractor(aiClient, cfg.ExtractMaxRetries, extractOpts...),
		Embedder:  embedder,
		Splitter:  splitter,
		Schema: graph.ExtractionSchema{
			AllowedNodes:         cfg.AllowedNodes,
			AllowedRelationships: cfg.AllowedRelationships,
		},
		Observer: collector,

		Model:           aiClient.ExtractionModel(),
		EmbeddingDim:    cfg.EmbedDim,
		BatchSize:       cfg.ChunkBatchSize,
		ChunksToCombine: cfg.ChunksToCombine,
		ParallelExtract: cfg.ParallelRequests,
	})
	if err != nil {
		logger.Fatal("Could not create pipeline", "err", err)
	}
	if err := pipeline.Prepare(ctx); err != nil {
		logger.Fatal("Could not prepare graph schema", "err", err)
	}

	// loaders
	loaders := map[common.SourceKind]loader.Loader{
		common.SourceLocal: loader.NewPageLoader(ioloader.NewIOGraphFileLoader(cfg.UploadDir)),
		common.SourceWeb:   loader.NewPageLoader(web.NewWebGraphLoader()),
	}
	if cfg.S3Bucket != "" {
		s3Client, err := storage.NewS3Client(ctx, storage.S3Params{
			Region:    cfg.S3Region,
			Endpoint:  cfg.S3Endpoint,
			AccessKey: cfg.S3AccessKey,
			SecretKey: cfg.S3SecretKey,
		})
		if err != nil {
			logger.Fatal("Could not create S3 client", "err", err)
		}
		loaders[common.SourceS3] = loader.NewPageLoader(s3loader.NewS3GraphFileLoaderWithClient(cfg.S3Bucket, s3Client))
	}

	// Init rabbitmq
	conn, err := queue.Connect(ctx, cfg.RabbitMQURL)
	if err != nil {
		logger.Fatal("Failed to connect to RabbitMQ", "err", err)
	}
	defer conn.Close()

	ch, err := conn.Channel()
	if err != nil {
		logger.Fatal("Failed to open channel", "err", err)
	}
	defer ch.Close()

	if err := queue.SetupQueues(ch, queue.Queues); err != nil {
		logger.Fatal("Failed to set up queues", "err", err)
	}

	worker := queue.NewWorker(queue.NewWorkerParams{
		Store:     graphStore,
		Pipeline:  pipeline,
		Loader:    loader.NewMultiLoader(loaders),
		Publisher: queue.NewChannelPublisher(ch),
	})
	if err := worker.RecoverStale(ctx, cfg.StaleAfter); err != nil {
		logger.Error("Failed to recover stale documents", "err", err)
	}

	metricsServer := &http.Server{
		Addr:              ":" + cfg.MetricsPort,
		Handler:           collector.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		logger.Info("Serving metrics", "addr", metricsServer.Addr)
		if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("Metrics server stopped", "err", err)
		}
	}()
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		defer cancel()
		_ = metricsServer.Shutdown(shutdownCtx)
	}()

	consumer := queue.NewConsumer(conn, worker.Handlers(), func(queueName string, took time.Duration) {
		m := aiClient.GetMetrics()
		collector.RecordAI(m)
		aiClient.ResetMetrics()
		logger.Info(
			"AI Metrics",
			"queue", queueName,
			"took", took.Round(time.Millisecond),
			"input_tokens", m.InputTokens,
			"output_tokens", m.OutputTokens,
			"total_tokens", m.TotalTokens,
			"ai_duration", (time.Duration(m.DurationMs) * time.Millisecond).Round(time.Millisecond),
		)
	})

	logger.Info("Listening for messages", "queues", queue.Queues)
	if err := consumer.Run(ctx); err != nil {
		logger.Error("Consumer stopped", "err", err)
	}
	logger.Info("Worker shut down")
}
