package repository

import (
	"errors"
	"fmt"

	"gorm.io/gorm"

	"corpusqa/internal/model"
)

var ErrConfigVersionNotFound = errors.New("retrieval config version not found")

type RetrievalConfigRepository struct {
	db *gorm.DB
}

func NewRetrievalConfigRepository(db *gorm.DB) *RetrievalConfigRepository {
	return &RetrievalConfigRepository{db: db}
}

// Create stores a new immutable version. Versions are never updated in
// place; tuning changes always produce a new row.
func (r *RetrievalConfigRepository) Create(cfg *model.RetrievalConfig) error {
	if err := r.db.Create(cfg).Error; err != nil {
		return fmt.Errorf("create retrieval config failed: %w", err)
	}
	return nil
}

func (r *RetrievalConfigRepository) GetActive() (*model.RetrievalConfig, error) {
	var cfg model.RetrievalConfig
	err := r.db.Where("active = ?", true).First(&cfg).Error
	if err == gorm.ErrRecordNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get active retrieval config failed: %w", err)
	}
	return &cfg, nil
}

func (r *RetrievalConfigRepository) List() ([]model.RetrievalConfig, error) {
	var configs []model.RetrievalConfig
	if err := r.db.Order("version DESC").Find(&configs).Error; err != nil {
		return nil, fmt.Errorf("list retrieval configs failed: %w", err)
	}
	return configs, nil
}

// Activate flips the single active flag to the given version in one
// transaction and returns the newly active config.
func (r *RetrievalConfigRepository) Activate(version int) (*model.RetrievalConfig, error) {
	var activated model.RetrievalConfig
	err := r.db.Transaction(func(tx *gorm.DB) error {
		err := tx.Where("version = ?", version).First(&activated).Error
		if err == gorm.ErrRecordNotFound {
			return ErrConfigVersionNotFound
		}
		if err != nil {
			return err
		}
		if err := tx.Model(&model.RetrievalConfig{}).Where("active = ?", true).
			Update("active", false).Error; err != nil {
			return err
		}
		if err := tx.Model(&activated).Update("active", true).Error; err != nil {
			return err
		}
		activated.Active = true
		return nil
	})
	if err != nil {
		if errors.Is(err, ErrConfigVersionNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("activate retrieval config failed: %w", err)
	}
	return &activated, nil
}
