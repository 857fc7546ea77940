package repository

import (
	"context"

	"github.com/camden-git/entomobackend/annotation"
	"github.com/camden-git/entomobackend/models"
)

// UploadRepositoryInterface defines the methods for upload data operations
type UploadRepositoryInterface interface {
	Create(upload *models.Upload) error
	GetByID(id uint) (*models.Upload, error)
	ListAll() ([]models.Upload, error)
}

// DetectionRepositoryInterface defines the methods for detection data operations
type DetectionRepositoryInterface interface {
	ListByUpload(uploadID uint) ([]models.Detection, error)
	CreateBatch(detections []models.Detection) error
	ApplyChangeset(ctx context.Context, uploadID uint, cs annotation.Changeset) (annotation.SaveResult, error)
}
