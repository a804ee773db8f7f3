// Package worker consumes queued document jobs and turns pending
// documents into searchable ones: embed every chunk, fill the vector
// index, flip the status.
package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"sync"

	amqp "github.com/rabbitmq/amqp091-go"

	"docuchat/internal/metrics"
	"docuchat/internal/model"
	"docuchat/internal/repository"
	"docuchat/internal/vectorindex"
)

const defaultEmbedBatchSize = 32

// ChunkEmbedder embeds a batch of chunk texts.
type ChunkEmbedder interface {
	EmbedTexts(ctx context.Context, texts []string) ([][]float32, error)
}

// DocumentJob is the queue payload: just the document to process.
type DocumentJob struct {
	DocumentID uint `json:"document_id"`
}

type DocumentWorker struct {
	conn         *amqp.Connection
	documentRepo *repository.DocumentRepository
	chunkRepo    *repository.ChunkRepository
	index        *vectorindex.Index
	embedder     ChunkEmbedder
	queueName    string
	batchSize    int

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func NewDocumentWorker(
	conn *amqp.Connection,
	documentRepo *repository.DocumentRepository,
	chunkRepo *repository.ChunkRepository,
	index *vectorindex.Index,
	embedder ChunkEmbedder,
	queueName string,
	batchSize int,
) *DocumentWorker {
	if batchSize <= 0 {
		batchSize = defaultEmbedBatchSize
	}
	return &DocumentWorker{
		conn:         conn,
		documentRepo: documentRepo,
		chunkRepo:    chunkRepo,
		index:        index,
		embedder:     embedder,
		queueName:    queueName,
		batchSize:    batchSize,
	}
}

func (w *DocumentWorker) Start(ctx context.Context) error {
	if w.cancel != nil {
		return nil
	}

	workerCtx, cancel := context.WithCancel(ctx)
	w.cancel = cancel

	ch, err := w.conn.Channel()
	if err != nil {
		cancel()
		return fmt.Errorf("open worker channel failed: %w", err)
	}

	_, err = ch.QueueDeclare(
		w.queueName,
		true,
		false,
		false,
		false,
		nil,
	)
	if err != nil {
		_ = ch.Close()
		cancel()
		return fmt.Errorf("declare worker queue failed: %w", err)
	}

	deliveries, err := ch.Consume(
		w.queueName,
		"",
		false,
		false,
		false,
		false,
		nil,
	)
	if err != nil {
		_ = ch.Close()
		cancel()
		return fmt.Errorf("consume queue failed: %w", err)
	}

	w.wg.Add(1)
	go func() {
		defer w.wg.Done()
		defer ch.Close()

		for {
			select {
			case <-workerCtx.Done():
				return
			case d, ok := <-deliveries:
				if !ok {
					return
				}

				var job DocumentJob
				if err := json.Unmarshal(d.Body, &job); err != nil || job.DocumentID == 0 {
					log.Printf("worker decode job failed: %v", err)
					_ = d.Nack(false, false)
					continue
				}

				if err := w.Process(workerCtx, job.DocumentID); err != nil {
					log.Printf("worker process document %d failed: %v", job.DocumentID, err)
					_ = d.Nack(false, false)
					continue
				}

				_ = d.Ack(false)
			}
		}
	}()

	return nil
}

// Process embeds every chunk of the document and adds the vectors to
// the index. The document ends up indexed, or failed with the partial
// vectors removed again.
func (w *DocumentWorker) Process(ctx context.Context, documentID uint) error {
	doc, err := w.documentRepo.GetByID(documentID)
	if err != nil {
		return err
	}
	if doc == nil {
		// Deleted while queued; nothing left to do.
		log.Printf("worker skip document %d: row is gone", documentID)
		return nil
	}
	if doc.Status != model.DocumentStatusPending && doc.Status != model.DocumentStatusProcessing {
		log.Printf("worker skip document %d: status %s", documentID, doc.Status)
		return nil
	}

	if err := w.documentRepo.UpdateStatus(documentID, model.DocumentStatusProcessing); err != nil {
		return err
	}

	if err := w.embedDocument(ctx, doc); err != nil {
		w.index.RemoveDocument(documentID)
		metrics.IndexVectors.Set(float64(w.index.Size()))
		metrics.DocumentsProcessed.WithLabelValues(model.DocumentStatusFailed).Inc()
		if markErr := w.documentRepo.MarkFailed(documentID, err.Error()); markErr != nil {
			log.Printf("worker mark document %d failed: %v", documentID, markErr)
		}
		return err
	}
	return nil
}

func (w *DocumentWorker) embedDocument(ctx context.Context, doc *model.Document) error {
	chunks, err := w.chunkRepo.ListAllByDocumentID(doc.ID)
	if err != nil {
		return err
	}
	if len(chunks) == 0 {
		return fmt.Errorf("document %d has no chunks", doc.ID)
	}

	for start := 0; start < len(chunks); start += w.batchSize {
		end := start + w.batchSize
		if end > len(chunks) {
			end = len(chunks)
		}
		batch := chunks[start:end]

		texts := make([]string, 0, len(batch))
		for _, c := range batch {
			texts = append(texts, c.Text)
		}
		vectors, err := w.embedder.EmbedTexts(ctx, texts)
		if err != nil {
			return fmt.Errorf("embed batch failed: %w", err)
		}
		if len(vectors) != len(batch) {
			return fmt.Errorf("embed batch returned %d vectors for %d chunks", len(vectors), len(batch))
		}

		for i := range batch {
			batch[i].SetEmbedding(vectors[i])
			if err := w.chunkRepo.UpdateEmbedding(batch[i].ID, batch[i].Embedding); err != nil {
				return err
			}
			if err := w.index.Add(batch[i].ID, doc.ID, vectors[i]); err != nil {
				return fmt.Errorf("index chunk %d failed: %w", batch[i].ID, err)
			}
		}
		metrics.ChunksEmbedded.Add(float64(len(batch)))
	}

	if err := w.documentRepo.MarkIndexed(doc.ID, len(chunks)); err != nil {
		return err
	}
	metrics.DocumentsProcessed.WithLabelValues(model.DocumentStatusIndexed).Inc()
	metrics.IndexVectors.Set(float64(w.index.Size()))
	return nil
}

func (w *DocumentWorker) Close() {
	if w.cancel != nil {
		w.cancel()
	}
	w.wg.Wait()
}
