package models

import "time"

// ImageStatus Processing state of an uploaded image
type ImageStatus string

const (
	StatusPending   ImageStatus = "pending"
	StatusCompleted ImageStatus = "completed"
	StatusFailed    ImageStatus = "failed"
)

type ImageRecord struct {
	ID            uint         `json:"id" gorm:"primaryKey"`
	Filename      string       `json:"filename" gorm:"index;not null"`
	Path          string       `json:"-" gorm:"not null"`
	ContentType   string       `json:"content_type"`
	Status        ImageStatus  `json:"status" gorm:"type:varchar(16);not null;default:pending"`
	FailureReason string       `json:"failure_reason,omitempty"`
	CreatedAt     time.Time    `json:"timestamp" gorm:"index"`
	Annotations   []Annotation `json:"-" gorm:"foreignKey:ImageID;constraint:OnDelete:CASCADE"`
}

func (ImageRecord) TableName() string {
	return "images"
}

// HistoryEntry An image record with its current annotation count
type HistoryEntry struct {
	ID             uint        `json:"id"`
	Filename       string      `json:"filename"`
	Timestamp      time.Time   `json:"timestamp"`
	Status         ImageStatus `json:"status"`
	DetectionCount int64       `json:"detection_count"`
}
