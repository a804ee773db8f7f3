package repository

import (
	"errors"
	"fmt"

	"gorm.io/gorm"

	"docuchat/internal/model"
)

type DocumentRepository struct {
	db *gorm.DB
}

func NewDocumentRepository(db *gorm.DB) *DocumentRepository {
	return &DocumentRepository{db: db}
}

func (r *DocumentRepository) Create(doc *model.Document) error {
	if err := r.db.Create(doc).Error; err != nil {
		return fmt.Errorf("create document failed: %w", err)
	}
	return nil
}

func (r *DocumentRepository) Save(doc *model.Document) error {
	if err := r.db.Save(doc).Error; err != nil {
		return fmt.Errorf("save document failed: %w", err)
	}
	return nil
}

func (r *DocumentRepository) ListByUserID(userID uint) ([]model.Document, error) {
	var list []model.Document
	if err := r.db.Select("id", "user_id", "name", "source", "source_url", "status", "error",
		"industry", "page_count", "word_count", "chunk_count", "size_bytes", "created_at", "updated_at").
		Where("user_id = ?", userID).Order("created_at DESC").Find(&list).Error; err != nil {
		return nil, fmt.Errorf("list documents failed: %w", err)
	}
	return list, nil
}

func (r *DocumentRepository) GetByIDAndUserID(id, userID uint) (*model.Document, error) {
	var doc model.Document
	if err := r.db.Where("id = ? AND user_id = ?", id, userID).First(&doc).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("get document failed: %w", err)
	}
	return &doc, nil
}

// GetByID is unscoped by user; the processing worker loads jobs with it.
func (r *DocumentRepository) GetByID(id uint) (*model.Document, error) {
	var doc model.Document
	if err := r.db.First(&doc, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("get document failed: %w", err)
	}
	return &doc, nil
}

func (r *DocumentRepository) DeleteByIDAndUserID(id, userID uint) error {
	if err := r.db.Where("id = ? AND user_id = ?", id, userID).Delete(&model.Document{}).Error; err != nil {
		return fmt.Errorf("delete document failed: %w", err)
	}
	return nil
}

func (r *DocumentRepository) UpdateStatus(id uint, status string) error {
	if err := r.db.Model(&model.Document{}).Where("id = ?", id).
		Updates(map[string]interface{}{"status": status, "error": ""}).Error; err != nil {
		return fmt.Errorf("update document status failed: %w", err)
	}
	return nil
}

func (r *DocumentRepository) MarkIndexed(id uint, chunkCount int) error {
	if err := r.db.Model(&model.Document{}).Where("id = ?", id).
		Updates(map[string]interface{}{
			"status":      model.DocumentStatusIndexed,
			"chunk_count": chunkCount,
			"error":       "",
		}).Error; err != nil {
		return fmt.Errorf("mark document indexed failed: %w", err)
	}
	return nil
}

func (r *DocumentRepository) MarkFailed(id uint, reason string) error {
	if err := r.db.Model(&model.Document{}).Where("id = ?", id).
		Updates(map[string]interface{}{"status": model.DocumentStatusFailed, "error": reason}).Error; err != nil {
		return fmt.Errorf("mark document failed failed: %w", err)
	}
	return nil
}

// ListIDsByStatus returns IDs of documents in any of the given states,
// oldest first. Bootstrap uses it to requeue interrupted jobs.
func (r *DocumentRepository) ListIDsByStatus(statuses ...string) ([]uint, error) {
	var ids []uint
	if err := r.db.Model(&model.Document{}).Where("status IN ?", statuses).
		Order("created_at ASC").Pluck("id", &ids).Error; err != nil {
		return nil, fmt.Errorf("list document ids by status failed: %w", err)
	}
	return ids, nil
}

// ListIndexedByUserID returns the user's indexed documents without the
// heavy pages column.
func (r *DocumentRepository) ListIndexedByUserID(userID uint) ([]model.Document, error) {
	var list []model.Document
	if err := r.db.Select("id", "user_id", "name", "status", "industry", "chunk_count").
		Where("user_id = ? AND status = ?", userID, model.DocumentStatusIndexed).
		Find(&list).Error; err != nil {
		return nil, fmt.Errorf("list indexed documents failed: %w", err)
	}
	return list, nil
}

func (r *DocumentRepository) CountByUserID(userID uint) (int64, error) {
	var n int64
	if err := r.db.Model(&model.Document{}).Where("user_id = ?", userID).Count(&n).Error; err != nil {
		return 0, fmt.Errorf("count documents failed: %w", err)
	}
	return n, nil
}
