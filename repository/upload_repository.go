package repository

import (
	"errors"
	"fmt"
	"strings"

	"gorm.io/gorm"

	"github.com/camden-git/entomobackend/models"
)

// UploadRepository handles database operations for Upload entities
type UploadRepository struct {
	DB *gorm.DB
}

// NewUploadRepository creates a new instance of UploadRepository
func NewUploadRepository(db *gorm.DB) *UploadRepository {
	return &UploadRepository{DB: db}
}

// Create registers a new upload
func (r *UploadRepository) Create(upload *models.Upload) error {
	upload.Filename = strings.TrimSpace(upload.Filename)
	if upload.Filename == "" {
		return fmt.Errorf("upload filename must not be empty")
	}
	if upload.Width < 0 || upload.Height < 0 {
		return fmt.Errorf("upload size must not be negative")
	}
	if err := r.DB.Create(upload).Error; err != nil {
		return fmt.Errorf("failed to create upload %s: %w", upload.Filename, err)
	}
	return nil
}

// GetByID retrieves an upload by its ID
func (r *UploadRepository) GetByID(id uint) (*models.Upload, error) {
	var upload models.Upload
	err := r.DB.First(&upload, id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to get upload by ID %d: %w", id, err)
	}
	return &upload, nil
}

// ListAll retrieves every upload, newest first
func (r *UploadRepository) ListAll() ([]models.Upload, error) {
	var uploads []models.Upload
	if err := r.DB.Order("id DESC").Find(&uploads).Error; err != nil {
		return nil, fmt.Errorf("failed to list uploads: %w", err)
	}
	return uploads, nil
}
