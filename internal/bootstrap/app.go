package bootstrap

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"

	appsvc "docuchat/internal/app"
	"docuchat/internal/config"
	"docuchat/internal/metrics"
	"docuchat/internal/model"
	mysqlClient "docuchat/internal/platform/mysql"
	rabbitmqClient "docuchat/internal/platform/rabbitmq"
	redisClient "docuchat/internal/platform/redis"
	"docuchat/internal/repository"
	"docuchat/internal/vectorindex"
	"docuchat/internal/worker"
)

type App struct {
	Config         *config.Config
	MySQL          *gorm.DB
	Redis          *redis.Client
	MQConn         *amqp.Connection
	Index          *vectorindex.Index
	DocumentWorker *worker.DocumentWorker

	StartedAt time.Time
}

func New(ctx context.Context) (*App, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load config failed: %w", err)
	}

	mysqlDB, err := mysqlClient.New(ctx, cfg.MySQLDSN())
	if err != nil {
		return nil, err
	}
	if err := mysqlDB.AutoMigrate(
		&model.User{},
		&model.Session{},
		&model.Message{},
		&model.Document{},
		&model.Chunk{},
	); err != nil {
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

	metrics.RegisterCollectors(prometheus.DefaultRegisterer)

	documentRepo := repository.NewDocumentRepository(mysqlDB)
	chunkRepo := repository.NewChunkRepository(mysqlDB)

	index := vectorindex.New()
	if err := rebuildIndex(documentRepo, chunkRepo, index); err != nil {
		return nil, err
	}

	publisher := rabbitmqClient.NewDocumentPublisher(mqConn, cfg.RabbitMQ.DocumentQueue)
	if err := requeueUnfinished(ctx, documentRepo, publisher); err != nil {
		return nil, err
	}

	embedder := appsvc.NewProviderRouter(cfg.Providers, cfg.RAG)
	documentWorker := worker.NewDocumentWorker(
		mqConn,
		documentRepo,
		chunkRepo,
		index,
		embedder,
		cfg.RabbitMQ.DocumentQueue,
		cfg.RAG.EmbedBatchSize,
	)
	if err := documentWorker.Start(ctx); err != nil {
		return nil, fmt.Errorf("start document worker failed: %w", err)
	}

	return &App{
		Config:         cfg,
		MySQL:          mysqlDB,
		Redis:          redisCli,
		MQConn:         mqConn,
		Index:          index,
		DocumentWorker: documentWorker,
		StartedAt:      time.Now(),
	}, nil
}

// rebuildIndex reloads the vectors of every indexed document. The index
// is memory-only, so a restart starts from the chunk rows.
func rebuildIndex(
	documentRepo *repository.DocumentRepository,
	chunkRepo *repository.ChunkRepository,
	index *vectorindex.Index,
) error {
	ids, err := documentRepo.ListIDsByStatus(model.DocumentStatusIndexed)
	if err != nil {
		return fmt.Errorf("list indexed documents failed: %w", err)
	}
	if len(ids) == 0 {
		metrics.IndexVectors.Set(0)
		return nil
	}

	chunks, err := chunkRepo.ListEmbeddedByDocumentIDs(ids)
	if err != nil {
		return fmt.Errorf("load embedded chunks failed: %w", err)
	}
	for i := range chunks {
		vec := chunks[i].EmbeddingVector()
		if len(vec) == 0 {
			continue
		}
		if err := index.Add(chunks[i].ID, chunks[i].DocumentID, vec); err != nil {
			log.Printf("bootstrap skip chunk %d: %v", chunks[i].ID, err)
		}
	}
	metrics.IndexVectors.Set(float64(index.Size()))
	log.Printf("bootstrap restored %d vectors from %d documents", index.Size(), len(ids))
	return nil
}

// requeueUnfinished resets documents stuck in processing and re-publishes
// a job for everything still waiting on embeddings. Runs before the
// worker starts so a crash mid-pipeline cannot strand a document.
func requeueUnfinished(
	ctx context.Context,
	documentRepo *repository.DocumentRepository,
	publisher *rabbitmqClient.DocumentPublisher,
) error {
	stuck, err := documentRepo.ListIDsByStatus(model.DocumentStatusProcessing)
	if err != nil {
		return fmt.Errorf("list processing documents failed: %w", err)
	}
	for _, id := range stuck {
		if err := documentRepo.UpdateStatus(id, model.DocumentStatusPending); err != nil {
			return fmt.Errorf("reset document %d failed: %w", id, err)
		}
	}

	pending, err := documentRepo.ListIDsByStatus(model.DocumentStatusPending)
	if err != nil {
		return fmt.Errorf("list pending documents failed: %w", err)
	}
	for _, id := range pending {
		if err := publisher.PublishDocumentJob(ctx, id); err != nil {
			log.Printf("bootstrap requeue document %d failed: %v", id, err)
		}
	}
	if len(pending) > 0 {
		log.Printf("bootstrap requeued %d unfinished documents", len(pending))
	}
	return nil
}

func (a *App) Close() error {
	var closeErr error
	if a.Redis != nil {
		if err := a.Redis.Close(); err != nil {
			closeErr = err
		}
	}
	if a.DocumentWorker != nil {
		a.DocumentWorker.Close()
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
