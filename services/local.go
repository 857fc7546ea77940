package services

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"

	"github.com/camden-git/entomobackend/annotation"
	"github.com/camden-git/entomobackend/models"
	"github.com/camden-git/entomobackend/repository"
)

// ErrUploadNotFound is returned when a seed or save names an unknown upload.
var ErrUploadNotFound = errors.New("upload not found")

// SeedSource loads the payload an editor session is opened with.
type SeedSource interface {
	LoadSeed(ctx context.Context, uploadID string) (annotation.Seed, error)
}

// LocalBackend serves seeds from and saves changesets to the local database.
type LocalBackend struct {
	uploads    repository.UploadRepositoryInterface
	detections repository.DetectionRepositoryInterface
}

func NewLocalBackend(uploads repository.UploadRepositoryInterface, detections repository.DetectionRepositoryInterface) *LocalBackend {
	return &LocalBackend{uploads: uploads, detections: detections}
}

// LoadSeed returns the upload and its live detections.
func (b *LocalBackend) LoadSeed(_ context.Context, uploadID string) (annotation.Seed, error) {
	key, err := models.ParseID(uploadID)
	if err != nil {
		return annotation.Seed{}, fmt.Errorf("%w: %v", ErrUploadNotFound, err)
	}
	upload, err := b.uploads.GetByID(key)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return annotation.Seed{}, fmt.Errorf("%w: %s", ErrUploadNotFound, uploadID)
		}
		return annotation.Seed{}, err
	}
	rows, err := b.detections.ListByUpload(key)
	if err != nil {
		return annotation.Seed{}, err
	}
	return annotation.Seed{
		Upload:     upload.ToAnnotation(),
		Detections: models.DetectionsToAnnotation(rows),
	}, nil
}

// SaveChangeset implements annotation.Persister.
func (b *LocalBackend) SaveChangeset(ctx context.Context, uploadID string, cs annotation.Changeset) (annotation.SaveResult, error) {
	key, err := models.ParseID(uploadID)
	if err != nil {
		return annotation.SaveResult{}, fmt.Errorf("%w: %v", ErrUploadNotFound, err)
	}
	res, err := b.detections.ApplyChangeset(ctx, key, cs)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return annotation.SaveResult{}, fmt.Errorf("%w: %s", ErrUploadNotFound, uploadID)
	}
	return res, err
}
