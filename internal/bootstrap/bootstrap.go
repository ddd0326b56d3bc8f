package bootstrap

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/talentsift/talentsift/internal/config"
	"github.com/talentsift/talentsift/internal/core/domain"
	"github.com/talentsift/talentsift/internal/core/ports"
	"github.com/talentsift/talentsift/internal/core/usecase"
	"github.com/talentsift/talentsift/internal/infrastructure/cache/redis"
	"github.com/talentsift/talentsift/internal/infrastructure/extractor"
	"github.com/talentsift/talentsift/internal/infrastructure/llm/ollama"
	"github.com/talentsift/talentsift/internal/infrastructure/queue/nats"
	"github.com/talentsift/talentsift/internal/infrastructure/repository/postgres"
	"github.com/talentsift/talentsift/internal/infrastructure/resilience"
	"github.com/talentsift/talentsift/internal/infrastructure/storage/localfs"
	"github.com/talentsift/talentsift/internal/infrastructure/storage/minio"
	"github.com/talentsift/talentsift/internal/infrastructure/vector/qdrant"
	"github.com/talentsift/talentsift/internal/observability/logging"
)

type App struct {
	Config   config.Config
	Contract domain.EmbeddingContract

	Queue      ports.MessageQueue
	Candidates ports.CandidateRepository
	Runs       ports.RunRepository

	IngestUC  ports.ResumeIngestor
	ProcessUC *usecase.PipelineUseCase
	SearchUC  ports.CandidateSearcher
	AgentUC   ports.QuestionAnswerer
	Reader    ports.CandidateReader

	closeFn func()
}

func New(ctx context.Context, cfg config.Config, logger *slog.Logger) (*App, error) {
	if logger == nil {
		logger = slog.Default()
	}

	contract, err := cfg.EmbeddingContract()
	if err != nil {
		return nil, fmt.Errorf("embedding contract: %w", err)
	}
	fusion, err := cfg.FusionParams()
	if err != nil {
		return nil, fmt.Errorf("fusion params: %w", err)
	}

	db, err := postgres.OpenDB(cfg.PostgresDSN)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	candidates := postgres.NewCandidateRepository(db)
	if err := candidates.EnsureSchema(ctx); err != nil {
		return nil, fmt.Errorf("ensure candidates schema: %w", err)
	}
	runs := postgres.NewRunRepository(db)
	if err := runs.EnsureSchema(ctx); err != nil {
		return nil, fmt.Errorf("ensure runs schema: %w", err)
	}

	storage, err := newObjectStorage(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("init object storage: %w", err)
	}

	executor := resilience.NewExecutor(resilience.DefaultConfig(), logger)
	llmExecutor := resilience.NewExecutor(resilience.LLMConfig(), logging.ForComponent(logger, "ollama"))

	queue, err := nats.NewWithOptions(cfg.NATSURL, cfg.NATSIngestSubject, cfg.NATSProgressSubject, nats.Options{
		ResilienceExecutor: executor,
		Logger:             logging.ForComponent(logger, "nats"),
	})
	if err != nil {
		return nil, fmt.Errorf("init message queue: %w", err)
	}

	resultCache := redis.New(redis.Config{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
		TTL:      time.Duration(cfg.CacheTTLHours) * time.Hour,
	})

	ollamaClient := ollama.New(cfg.OllamaURL, cfg.OllamaGenModel, llmExecutor)
	fields := ollama.NewFieldExtractor(ollamaClient)
	judge := ollama.NewJudge(ollamaClient)
	embedder := ollama.NewEmbedder(ollamaClient)
	generator := ollama.NewGenerator(ollamaClient)

	vectorDB := qdrant.New(cfg.QdrantURL, cfg.QdrantCollection, contract)
	texts := extractor.NewDispatcher()

	ingestUC := usecase.NewIngestResumeUseCase(candidates, runs, storage, queue)
	processUC := usecase.NewPipelineUseCase(
		runs,
		candidates,
		storage,
		texts,
		fields,
		judge,
		embedder,
		vectorDB,
		vectorDB.Lexical(),
		resultCache,
		queue,
		contract,
		usecase.PipelineConfig{MaxStageAttempts: cfg.MaxStageAttempts},
		logging.ForComponent(logger, "pipeline"),
	)
	searchUC := usecase.NewSearchUseCase(
		embedder,
		vectorDB,
		vectorDB.Lexical(),
		contract,
		time.Duration(cfg.SearchBranchTimeoutSeconds)*time.Second,
		logging.ForComponent(logger, "search"),
	)
	agentUC := usecase.NewAgentUseCase(
		searchUC,
		candidates,
		generator,
		fusion,
		usecase.AgentLimits{
			MaxRounds:    cfg.AgentMaxRounds,
			RoundTimeout: time.Duration(cfg.AgentRoundTimeoutSeconds) * time.Second,
			TopK:         cfg.AgentTopK,
			MinResults:   cfg.AgentMinResults,
			MinTopScore:  cfg.AgentMinTopScore,
		},
		logging.ForComponent(logger, "agent"),
	)
	reader := usecase.NewReaderUseCase(candidates, runs, resultCache)

	return &App{
		Config:   cfg,
		Contract: contract,

		Queue:      queue,
		Candidates: candidates,
		Runs:       runs,

		IngestUC:  ingestUC,
		ProcessUC: processUC,
		SearchUC:  searchUC,
		AgentUC:   agentUC,
		Reader:    reader,

		closeFn: func() {
			queue.Close()
			_ = resultCache.Close()
			_ = db.Close()
		},
	}, nil
}

func newObjectStorage(ctx context.Context, cfg config.Config) (ports.ObjectStorage, error) {
	switch cfg.StorageBackend {
	case "minio":
		return minio.New(ctx, minio.Config{
			Endpoint:  cfg.MinioEndpoint,
			AccessKey: cfg.MinioAccessKey,
			SecretKey: cfg.MinioSecretKey,
			Bucket:    cfg.MinioBucket,
			UseSSL:    cfg.MinioUseSSL,
			Region:    cfg.MinioRegion,
		})
	default:
		return localfs.New(cfg.StoragePath)
	}
}

func (a *App) Close() {
	if a.closeFn != nil {
		a.closeFn()
	}
}
