package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"docgraph/internal/config"
	"docgraph/internal/queue"
	"docgraph/internal/server"
	mid "docgraph/internal/server/middleware"
	"docgraph/internal/storage"
	"docgraph/internal/util"
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

	logger.Init(console.NewConsoleLogger(console.ConsoleLoggerParams{
		Debug: cfg.Debug,
		JSON:  cfg.JSON,
	}))

	var graphStore store.GraphStore
	switch cfg.GraphAdapter {
	case "memory":
		// only useful for local testing: the worker holds its own copy
		logger.Warn("Using the in-memory graph store, nothing is shared with the worker")
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

	uploads, err := storage.NewUploads(cfg.UploadDir)
	if err != nil {
		logger.Fatal("Unable to prepare upload directory", "dir", cfg.UploadDir, "err", err)
	}

	app := &mid.App{
		Store:    graphStore,
		Uploads:  uploads,
		S3Bucket: cfg.S3Bucket,
		APIKey:   cfg.APIKey,
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
		app.S3 = s3Client
	}
	if cfg.APIKey == "" {
		logger.Warn("API_KEY is not set, the API is unauthenticated")
	}

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
	app.Publisher = queue.NewChannelPublisher(ch)

	e := server.New(app)
	if err := server.Run(ctx, e, ":"+cfg.Port); err != nil {
		logger.Error("Server stopped", "err", err)
	}
}
