package models

import (
	"fmt"
	"strconv"

	"gorm.io/gorm"

	"github.com/camden-git/entomobackend/annotation"
)

// Detection is one labelled bounding box on an upload. Coordinates are
// normalized to [0,1]. It corresponds to the 'detections' table.
type Detection struct {
	ID                 uint           `gorm:"primaryKey;autoIncrement" json:"id"`
	UploadID           uint           `gorm:"not null;index" json:"upload_id"`
	Label              string         `gorm:"not null" json:"label"`
	Confidence         float64        `gorm:"not null" json:"confidence"`
	OriginalConfidence float64        `gorm:"not null" json:"original_confidence"`
	XMin               float64        `gorm:"not null" json:"x_min"`
	YMin               float64        `gorm:"not null" json:"y_min"`
	XMax               float64        `gorm:"not null" json:"x_max"`
	YMax               float64        `gorm:"not null" json:"y_max"`
	Status             string         `gorm:"not null;index;default:model_generated" json:"status"`
	CreatedAt          int64          `gorm:"autoCreateTime" json:"created_at"` // Unix timestamp
	UpdatedAt          int64          `gorm:"autoUpdateTime" json:"updated_at"` // Unix timestamp
	DeletedAt          gorm.DeletedAt `gorm:"index" json:"deleted_at,omitempty"`

	Upload *Upload `gorm:"foreignKey:UploadID" json:"upload,omitempty"`
}

// TableName explicitly sets the table name for GORM.
func (Detection) TableName() string {
	return "detections"
}

// ToAnnotation converts the record to the editor's value type.
func (d Detection) ToAnnotation() annotation.Detection {
	return annotation.Detection{
		ID:                 FormatID(d.ID),
		UploadID:           FormatID(d.UploadID),
		Label:              annotation.Label(d.Label),
		Confidence:         d.Confidence,
		OriginalConfidence: d.OriginalConfidence,
		Box: annotation.BoundingBox{
			XMin: d.XMin,
			YMin: d.YMin,
			XMax: d.XMax,
			YMax: d.YMax,
		},
		Status: annotation.Status(d.Status),
	}
}

// NewDetectionRecord builds the row for a detection the client added.
// The original confidence starts equal to the confidence.
func NewDetectionRecord(uploadID uint, n annotation.AddedDetection) Detection {
	return Detection{
		UploadID:           uploadID,
		Label:              string(n.Label),
		Confidence:         n.Confidence,
		OriginalConfidence: n.Confidence,
		XMin:               n.Box.XMin,
		YMin:               n.Box.YMin,
		XMax:               n.Box.XMax,
		YMax:               n.Box.YMax,
		Status:             string(n.Status),
	}
}

// ApplyModification overwrites the editable fields from m.
func (d *Detection) ApplyModification(m annotation.ModifiedDetection) {
	d.Label = string(m.Label)
	d.Confidence = m.Confidence
	d.XMin, d.YMin, d.XMax, d.YMax = m.Box.XMin, m.Box.YMin, m.Box.XMax, m.Box.YMax
	d.Status = string(m.Status)
}

// DetectionsToAnnotation converts a slice of records.
func DetectionsToAnnotation(records []Detection) annotation.DetectionSet {
	out := make(annotation.DetectionSet, 0, len(records))
	for _, r := range records {
		out = append(out, r.ToAnnotation())
	}
	return out
}

// FormatID renders a database key as the string id used on the wire.
func FormatID(id uint) string {
	return strconv.FormatUint(uint64(id), 10)
}

// ParseID parses a wire id back into a database key.
func ParseID(s string) (uint, error) {
	id, err := strconv.ParseUint(s, 10, 0)
	if err != nil || id == 0 {
		return 0, fmt.Errorf("invalid id %q", s)
	}
	return uint(id), nil
}
