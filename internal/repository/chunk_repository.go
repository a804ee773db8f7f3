package repository

import (
	"fmt"

	"gorm.io/gorm"

	"docuchat/internal/model"
)

type ChunkRepository struct {
	db *gorm.DB
}

func NewChunkRepository(db *gorm.DB) *ChunkRepository {
	return &ChunkRepository{db: db}
}

func (r *ChunkRepository) CreateBatch(chunks []model.Chunk) error {
	if len(chunks) == 0 {
		return nil
	}
	if err := r.db.CreateInBatches(&chunks, 100).Error; err != nil {
		return fmt.Errorf("create chunks batch failed: %w", err)
	}
	return nil
}

func (r *ChunkRepository) ListByDocumentID(documentID uint, limit, offset int) ([]model.Chunk, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	if offset < 0 {
		offset = 0
	}
	var chunks []model.Chunk
	if err := r.db.Where("document_id = ?", documentID).Order("seq ASC").
		Limit(limit).Offset(offset).Find(&chunks).Error; err != nil {
		return nil, fmt.Errorf("list chunks by document failed: %w", err)
	}
	return chunks, nil
}

// ListAllByDocumentID returns every chunk of a document in sequence order,
// embeddings included. The processing worker iterates these.
func (r *ChunkRepository) ListAllByDocumentID(documentID uint) ([]model.Chunk, error) {
	var chunks []model.Chunk
	if err := r.db.Where("document_id = ?", documentID).Order("seq ASC").Find(&chunks).Error; err != nil {
		return nil, fmt.Errorf("list chunks by document failed: %w", err)
	}
	return chunks, nil
}

// ListEmbeddedByDocumentIDs returns chunks that already carry an embedding,
// for rebuilding the vector index at startup.
func (r *ChunkRepository) ListEmbeddedByDocumentIDs(documentIDs []uint) ([]model.Chunk, error) {
	if len(documentIDs) == 0 {
		return nil, nil
	}
	var chunks []model.Chunk
	if err := r.db.Where("document_id IN ? AND embedding <> ''", documentIDs).
		Order("document_id ASC, seq ASC").Find(&chunks).Error; err != nil {
		return nil, fmt.Errorf("list embedded chunks failed: %w", err)
	}
	return chunks, nil
}

// ListByIDs resolves search hits back to chunk rows.
func (r *ChunkRepository) ListByIDs(ids []uint) ([]model.Chunk, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	var chunks []model.Chunk
	if err := r.db.Where("id IN ?", ids).Find(&chunks).Error; err != nil {
		return nil, fmt.Errorf("list chunks by ids failed: %w", err)
	}
	return chunks, nil
}

func (r *ChunkRepository) UpdateEmbedding(chunkID uint, embedding string) error {
	if err := r.db.Model(&model.Chunk{}).Where("id = ?", chunkID).
		Update("embedding", embedding).Error; err != nil {
		return fmt.Errorf("update chunk embedding failed: %w", err)
	}
	return nil
}

func (r *ChunkRepository) DeleteByDocumentID(documentID uint) error {
	if err := r.db.Where("document_id = ?", documentID).Delete(&model.Chunk{}).Error; err != nil {
		return fmt.Errorf("delete chunks by document failed: %w", err)
	}
	return nil
}

func (r *ChunkRepository) CountByDocumentIDs(documentIDs []uint) (int64, error) {
	if len(documentIDs) == 0 {
		return 0, nil
	}
	var n int64
	if err := r.db.Model(&model.Chunk{}).Where("document_id IN ?", documentIDs).Count(&n).Error; err != nil {
		return 0, fmt.Errorf("count chunks failed: %w", err)
	}
	return n, nil
}
