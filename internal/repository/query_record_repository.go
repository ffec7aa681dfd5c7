package repository

import (
	"fmt"

	"gorm.io/gorm"

	"corpusqa/internal/model"
)

type QueryRecordRepository struct {
	db *gorm.DB
}

func NewQueryRecordRepository(db *gorm.DB) *QueryRecordRepository {
	return &QueryRecordRepository{db: db}
}

func (r *QueryRecordRepository) Create(record *model.QueryRecord) error {
	if err := r.db.Create(record).Error; err != nil {
		return fmt.Errorf("create query record failed: %w", err)
	}
	return nil
}

func (r *QueryRecordRepository) GetByID(id string) (*model.QueryRecord, error) {
	var record model.QueryRecord
	err := r.db.Where("id = ?", id).First(&record).Error
	if err == gorm.ErrRecordNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get query record failed: %w", err)
	}
	return &record, nil
}

// ListRecent returns the newest records first, for the audit endpoint.
func (r *QueryRecordRepository) ListRecent(limit int) ([]model.QueryRecord, error) {
	if limit <= 0 {
		limit = 50
	}
	var records []model.QueryRecord
	if err := r.db.Order("created_at DESC").Limit(limit).Find(&records).Error; err != nil {
		return nil, fmt.Errorf("list query records failed: %w", err)
	}
	return records, nil
}
