package repository

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"gorm.io/gorm"

	"github.com/camden-git/entomobackend/annotation"
	"github.com/camden-git/entomobackend/models"
)

// DetectionRepository handles database operations for Detection entities
type DetectionRepository struct {
	DB  *gorm.DB
	log *slog.Logger
}

// NewDetectionRepository creates a new instance of DetectionRepository
func NewDetectionRepository(db *gorm.DB, log *slog.Logger) *DetectionRepository {
	if log == nil {
		log = slog.Default()
	}
	return &DetectionRepository{DB: db, log: log.With("component", "detection_repository")}
}

// ListByUpload retrieves the live detections of an upload
func (r *DetectionRepository) ListByUpload(uploadID uint) ([]models.Detection, error) {
	var detections []models.Detection
	err := r.DB.Where("upload_id = ?", uploadID).Order("id ASC").Find(&detections).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list detections for upload %d: %w", uploadID, err)
	}
	return detections, nil
}

// CreateBatch stores model output for an upload in one statement
func (r *DetectionRepository) CreateBatch(detections []models.Detection) error {
	if len(detections) == 0 {
		return nil
	}
	for i := range detections {
		if err := detections[i].ToAnnotation().Box.Validate(); err != nil {
			return fmt.Errorf("detection %d: %w", i, err)
		}
	}
	if err := r.DB.Create(&detections).Error; err != nil {
		return fmt.Errorf("failed to create %d detections: %w", len(detections), err)
	}
	return nil
}

// ApplyChangeset applies deletions, modifications and additions for one
// upload inside a single transaction. Ids that do not belong to the upload
// are skipped. Invalid rows abort the whole changeset with a
// *annotation.ValidationError. It returns gorm.ErrRecordNotFound when the
// upload does not exist.
func (r *DetectionRepository) ApplyChangeset(ctx context.Context, uploadID uint, cs annotation.Changeset) (annotation.SaveResult, error) {
	var res annotation.SaveResult

	err := r.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var upload models.Upload
		if err := tx.Select("id").First(&upload, uploadID).Error; err != nil {
			return err
		}

		deleted, err := r.applyDeletes(tx, uploadID, cs.Deleted)
		if err != nil {
			return err
		}
		res.Deleted = deleted

		for _, m := range cs.Modified {
			verified, ok, err := r.applyModification(tx, uploadID, m)
			if err != nil {
				return err
			}
			if !ok {
				continue
			}
			res.Updated++
			if verified {
				res.Verified++
			}
		}

		for _, n := range cs.Added {
			rec, err := r.applyAddition(tx, uploadID, n)
			if err != nil {
				return err
			}
			res.Created++
			if annotation.Status(rec.Status).IsVerified() {
				res.Verified++
			}
			if n.ClientRef != "" {
				if res.CreatedIDs == nil {
					res.CreatedIDs = make(map[string]string, len(cs.Added))
				}
				res.CreatedIDs[n.ClientRef] = models.FormatID(rec.ID)
			}
		}
		return nil
	})
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return annotation.SaveResult{}, err
		}
		var verr *annotation.ValidationError
		if errors.As(err, &verr) {
			return annotation.SaveResult{}, err
		}
		return annotation.SaveResult{}, fmt.Errorf("failed to apply changeset for upload %d: %w", uploadID, err)
	}

	r.log.Info("changeset applied", "upload_id", uploadID,
		"created", res.Created, "updated", res.Updated, "deleted", res.Deleted, "verified", res.Verified)
	return res, nil
}

func (r *DetectionRepository) applyDeletes(tx *gorm.DB, uploadID uint, ids []string) (int, error) {
	keys := make([]uint, 0, len(ids))
	for _, id := range ids {
		key, err := models.ParseID(id)
		if err != nil {
			r.log.Warn("skipping delete of unknown id", "upload_id", uploadID, "detection_id", id)
			continue
		}
		keys = append(keys, key)
	}
	if len(keys) == 0 {
		return 0, nil
	}
	result := tx.Where("upload_id = ? AND id IN ?", uploadID, keys).Delete(&models.Detection{})
	if result.Error != nil {
		return 0, fmt.Errorf("failed to delete detections: %w", result.Error)
	}
	if int(result.RowsAffected) != len(keys) {
		r.log.Warn("some deletions did not match a detection",
			"upload_id", uploadID, "requested", len(keys), "deleted", result.RowsAffected)
	}
	return int(result.RowsAffected), nil
}

// applyModification reports whether the row was found and whether its new
// status counts as verified.
func (r *DetectionRepository) applyModification(tx *gorm.DB, uploadID uint, m annotation.ModifiedDetection) (verified, ok bool, err error) {
	key, perr := models.ParseID(m.ID)
	if perr != nil {
		r.log.Warn("skipping modification of unknown id", "upload_id", uploadID, "detection_id", m.ID)
		return false, false, nil
	}

	var rec models.Detection
	err = tx.Where("id = ? AND upload_id = ?", key, uploadID).First(&rec).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		r.log.Warn("skipping modification of missing detection", "upload_id", uploadID, "detection_id", m.ID)
		return false, false, nil
	}
	if err != nil {
		return false, false, fmt.Errorf("failed to load detection %s: %w", m.ID, err)
	}

	rec.ApplyModification(m)
	if err := rec.ToAnnotation().Validate(); err != nil {
		return false, false, err
	}
	if err := tx.Save(&rec).Error; err != nil {
		return false, false, fmt.Errorf("failed to update detection %s: %w", m.ID, err)
	}
	return annotation.Status(rec.Status).IsVerified(), true, nil
}

func (r *DetectionRepository) applyAddition(tx *gorm.DB, uploadID uint, n annotation.AddedDetection) (models.Detection, error) {
	rec := models.NewDetectionRecord(uploadID, n)
	candidate := rec.ToAnnotation()
	candidate.ID = "new"
	if err := candidate.Validate(); err != nil {
		return models.Detection{}, err
	}
	if err := tx.Create(&rec).Error; err != nil {
		return models.Detection{}, fmt.Errorf("failed to create detection: %w", err)
	}
	return rec, nil
}
