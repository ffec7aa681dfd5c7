package bootstrap

import (
	"context"
	"fmt"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"corpusqa/internal/ai"
	"corpusqa/internal/app"
	"corpusqa/internal/cache"
	"corpusqa/internal/config"
	"corpusqa/internal/model"
	mysqlClient "corpusqa/internal/platform/mysql"
	rabbitmqClient "corpusqa/internal/platform/rabbitmq"
	redisClient "corpusqa/internal/platform/redis"
	"corpusqa/internal/repository"
	"corpusqa/internal/rerank"
	"corpusqa/internal/search"
	"corpusqa/internal/vectorstore"
	"corpusqa/internal/worker"
)

// App wires every subsystem together once at startup.
type App struct {
	Config *config.Config
	Log    *logrus.Logger

	MySQL  *gorm.DB
	Redis  *redis.Client
	MQConn *amqp.Connection
	Vector vectorstore.Provider
	LLM    ai.Provider

	ConfigRepo   *repository.RetrievalConfigRepository
	RecordRepo   *repository.QueryRecordRepository
	ConfigStore  *app.RetrievalConfigStore
	AnswerCache  *cache.AnswerCache
	QueryService *app.QueryService
	RecordWorker *worker.QueryRecordWorker

	StartedAt time.Time
}

func New(ctx context.Context) (*App, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load config failed: %w", err)
	}

	log := newLogger(cfg)

	mysqlDB, err := mysqlClient.New(ctx, cfg.MySQLDSN())
	if err != nil {
		return nil, err
	}
	if err := mysqlDB.AutoMigrate(&model.QueryRecord{}, &model.RetrievalConfig{}); err != nil {
		return nil, fmt.Errorf("auto migrate tables failed: %w", err)
	}

	redisCli, err := redisClient.New(ctx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
	if err != nil {
		return nil, err
	}

	mqConn, err := rabbitmqClient.New(ctx, cfg.RabbitMQ.URL)
	if err != nil {
		return nil, err
	}

	vector, err := vectorstore.NewProvider(vectorstore.FactoryOptions{
		Backend: cfg.Vector.Backend,
		Qdrant: vectorstore.QdrantConfig{
			URL:    cfg.Vector.QdrantURL,
			APIKey: cfg.Vector.QdrantAPIKey,
		},
		SQLitePath: cfg.Vector.SQLitePath,
		Redis:      redisCli,
	}, log)
	if err != nil {
		return nil, fmt.Errorf("create vector provider failed: %w", err)
	}
	for _, collection := range []string{cfg.Vector.DocCollection, cfg.Vector.FigureCollection} {
		if err := vector.EnsureCollection(ctx, collection, cfg.Vector.VectorSize); err != nil {
			return nil, fmt.Errorf("ensure collection %s failed: %w", collection, err)
		}
	}

	llm, router := newLLM(cfg)
	log.WithFields(logrus.Fields{
		"provider": llm.Name(),
		"backend":  vector.Name(),
	}).Info("ai stack ready")

	reranker := rerank.New(rerank.Config{
		Endpoint:  cfg.Rerank.Endpoint,
		Model:     cfg.Rerank.Model,
		APIKey:    cfg.Rerank.APIKey,
		Timeout:   time.Duration(cfg.Rerank.TimeoutSeconds) * time.Second,
		BatchSize: cfg.Rerank.BatchSize,
	}, log)

	configRepo := repository.NewRetrievalConfigRepository(mysqlDB)
	recordRepo := repository.NewQueryRecordRepository(mysqlDB)

	live, err := loadOrSeedRetrievalConfig(configRepo, cfg)
	if err != nil {
		return nil, err
	}
	configStore := app.NewRetrievalConfigStore(live)

	answerCache := cache.NewAnswerCache(redisCli, log)
	publisher := rabbitmqClient.NewEventPublisher(mqConn, cfg.RabbitMQ.QueryEventQueue)

	engine := search.NewEngine(vector, llm, log)
	queryService := app.NewQueryService(
		engine,
		llm,
		reranker,
		router,
		answerCache,
		publisher,
		configStore,
		cfg.Vector.DocCollection,
		cfg.Vector.FigureCollection,
		log,
	)

	recordWorker := worker.NewQueryRecordWorker(mqConn, recordRepo, cfg.RabbitMQ.QueryEventQueue, log)
	if err := recordWorker.Start(ctx); err != nil {
		return nil, fmt.Errorf("start record worker failed: %w", err)
	}

	return &App{
		Config:       cfg,
		Log:          log,
		MySQL:        mysqlDB,
		Redis:        redisCli,
		MQConn:       mqConn,
		Vector:       vector,
		LLM:          llm,
		ConfigRepo:   configRepo,
		RecordRepo:   recordRepo,
		ConfigStore:  configStore,
		AnswerCache:  answerCache,
		QueryService: queryService,
		RecordWorker: recordWorker,
		StartedAt:    time.Now(),
	}, nil
}

func newLogger(cfg *config.Config) *logrus.Logger {
	log := logrus.New()
	if cfg.App.Env == "prod" {
		log.SetFormatter(&logrus.JSONFormatter{})
	} else {
		log.SetLevel(logrus.DebugLevel)
	}
	return log
}

// newLLM picks the hosted provider or the local Ollama fallback. Offline
// mode collapses every tier onto the single local chat model.
func newLLM(cfg *config.Config) (ai.Provider, *ai.ModelRouter) {
	if cfg.Ollama.OfflineMode {
		tiers := map[string]string{
			"small":   cfg.Ollama.ChatModel,
			"default": cfg.Ollama.ChatModel,
			"large":   cfg.Ollama.ChatModel,
		}
		return ai.NewOllamaClient(cfg.Ollama.BaseURL, cfg.Ollama.EmbeddingModel), ai.NewModelRouter(tiers)
	}
	return ai.NewOpenAICompatibleClient(cfg.LLM.BaseURL, cfg.LLM.APIKey, cfg.LLM.EmbeddingModel), ai.NewModelRouter(cfg.LLM.Tiers)
}

// loadOrSeedRetrievalConfig returns the active tuning profile, creating
// version 1 from the static config on first boot.
func loadOrSeedRetrievalConfig(repo *repository.RetrievalConfigRepository, cfg *config.Config) (*model.RetrievalConfig, error) {
	active, err := repo.GetActive()
	if err != nil {
		return nil, fmt.Errorf("load active retrieval config failed: %w", err)
	}
	if active != nil {
		return active, nil
	}

	seed := &model.RetrievalConfig{
		Version:         1,
		Active:          true,
		UseHybrid:       cfg.Retrieval.UseHybrid,
		HybridAlpha:     cfg.Retrieval.HybridAlpha,
		TopK:            cfg.Retrieval.TopK,
		MinScore:        cfg.Retrieval.MinScore,
		UseReranking:    cfg.Retrieval.UseReranking,
		RerankingFactor: cfg.Retrieval.RerankingFactor,
		RecencyBoost:    cfg.Retrieval.RecencyBoost,
	}
	if err := repo.Create(seed); err != nil {
		return nil, fmt.Errorf("seed retrieval config failed: %w", err)
	}
	return seed, nil
}

func (a *App) Close() error {
	var closeErr error
	if a.RecordWorker != nil {
		a.RecordWorker.Close()
	}
	if a.Redis != nil {
		if err := a.Redis.Close(); err != nil {
			closeErr = err
		}
	}
	if a.MQConn != nil {
		if err := a.MQConn.Close(); err != nil {
			closeErr = err
		}
	}
	if a.MySQL != nil {
		sqlDB, err := a.MySQL.DB()
		if err == nil {
			if err := sqlDB.Close(); err != nil {
				closeErr = err
			}
		}
	}
	return closeErr
}
