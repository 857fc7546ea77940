package models

import (
	"gorm.io/gorm"

	"github.com/camden-git/entomobackend/annotation"
)

// Upload is an image registered for annotation. The file itself lives
// elsewhere; only its identity and pixel size are kept here.
// It corresponds to the 'uploads' table.
type Upload struct {
	ID        uint           `gorm:"primaryKey;autoIncrement" json:"id"`
	Filename  string         `gorm:"not null" json:"filename"`
	Width     int            `gorm:"not null;default:0" json:"width"`
	Height    int            `gorm:"not null;default:0" json:"height"`
	CreatedAt int64          `gorm:"autoCreateTime" json:"created_at"` // Unix timestamp
	UpdatedAt int64          `gorm:"autoUpdateTime" json:"updated_at"` // Unix timestamp
	DeletedAt gorm.DeletedAt `gorm:"index" json:"deleted_at,omitempty"`

	Detections []Detection `gorm:"foreignKey:UploadID" json:"detections,omitempty"`
}

// TableName explicitly sets the table name for GORM.
func (Upload) TableName() string {
	return "uploads"
}

// ToAnnotation converts the record to the editor's upload descriptor.
func (u Upload) ToAnnotation() annotation.Upload {
	return annotation.Upload{
		ID:       FormatID(u.ID),
		Filename: u.Filename,
		Width:    u.Width,
		Height:   u.Height,
	}
}
