package models

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"
)

// HistoryLimit Number of records returned by the history listing
const HistoryLimit = 20

var ErrImageNotFound = errors.New("image not found")

type annotationCount struct {
	ImageID uint
	Total   int64
}

// Store Persistence for image records and their annotations. Every multi-statement
// operation runs in its own transaction, committed or rolled back before returning.
type Store struct {
	db *gorm.DB
}

func NewStore(db *gorm.DB) *Store {
	return &Store{db: db}
}

// CreateImage Insert a new image record, its ID is set on success
func (s *Store) CreateImage(ctx context.Context, image *ImageRecord) error {
	if image.Status == "" {
		image.Status = StatusPending
	}
	if err := s.db.WithContext(ctx).Create(image).Error; err != nil {
		return fmt.Errorf("cannot create image record: %w", err)
	}
	return nil
}

// FindImage Find an image record by ID
func (s *Store) FindImage(ctx context.Context, id uint) (*ImageRecord, error) {
	var image ImageRecord
	err := s.db.WithContext(ctx).Where("id = ?", id).First(&image).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrImageNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("cannot find image %d: %w", id, err)
	}
	return &image, nil
}

// History Most recent image records, newest first, with their annotation count
func (s *Store) History(ctx context.Context, limit int) ([]HistoryEntry, error) {
	db := s.db.WithContext(ctx)

	var images []ImageRecord
	if err := db.Order("created_at DESC").Order("id DESC").Limit(limit).Find(&images).Error; err != nil {
		return nil, fmt.Errorf("cannot list images: %w", err)
	}

	entries := make([]HistoryEntry, 0, len(images))
	if len(images) == 0 {
		return entries, nil
	}

	ids := make([]uint, len(images))
	for i, image := range images {
		ids[i] = image.ID
	}

	var counts []annotationCount
	err := db.Model(&Annotation{}).
		Select("image_id, COUNT(*) AS total").
		Where("image_id IN ?", ids).
		Group("image_id").
		Scan(&counts).Error
	if err != nil {
		return nil, fmt.Errorf("cannot count annotations: %w", err)
	}
	totals := make(map[uint]int64, len(counts))
	for _, c := range counts {
		totals[c.ImageID] = c.Total
	}

	for _, image := range images {
		entries = append(entries, HistoryEntry{
			ID:             image.ID,
			Filename:       image.Filename,
			Timestamp:      image.CreatedAt,
			Status:         image.Status,
			DetectionCount: totals[image.ID],
		})
	}
	return entries, nil
}

// Annotations All annotations of an image. Unknown images have no annotations.
func (s *Store) Annotations(ctx context.Context, imageID uint) ([]Annotation, error) {
	annotations := make([]Annotation, 0)
	err := s.db.WithContext(ctx).Where("image_id = ?", imageID).Order("id").Find(&annotations).Error
	if err != nil {
		return nil, fmt.Errorf("cannot list annotations of image %d: %w", imageID, err)
	}
	return annotations, nil
}

// CompleteDetection Store the detector output and mark the image as completed
func (s *Store) CompleteDetection(ctx context.Context, imageID uint, annotations []Annotation) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := insertAnnotations(tx, imageID, annotations); err != nil {
			return err
		}
		return setStatus(tx, imageID, StatusCompleted, "")
	})
}

// MarkFailed Record that detection could not run for an image
func (s *Store) MarkFailed(ctx context.Context, imageID uint, reason string) error {
	return setStatus(s.db.WithContext(ctx), imageID, StatusFailed, reason)
}

// ReplaceAnnotations Delete every annotation of the image and insert the given set
func (s *Store) ReplaceAnnotations(ctx context.Context, imageID uint, annotations []Annotation) (int, error) {
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var count int64
		if err := tx.Model(&ImageRecord{}).Where("id = ?", imageID).Count(&count).Error; err != nil {
			return fmt.Errorf("cannot check image %d: %w", imageID, err)
		}
		if count == 0 {
			return ErrImageNotFound
		}
		if err := tx.Where("image_id = ?", imageID).Delete(&Annotation{}).Error; err != nil {
			return fmt.Errorf("cannot clear annotations of image %d: %w", imageID, err)
		}
		return insertAnnotations(tx, imageID, annotations)
	})
	if err != nil {
		return 0, err
	}
	return len(annotations), nil
}

// DeleteImage Delete an image record together with its annotations
func (s *Store) DeleteImage(ctx context.Context, id uint) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("image_id = ?", id).Delete(&Annotation{}).Error; err != nil {
			return fmt.Errorf("cannot delete annotations of image %d: %w", id, err)
		}
		result := tx.Delete(&ImageRecord{}, id)
		if result.Error != nil {
			return fmt.Errorf("cannot delete image %d: %w", id, result.Error)
		}
		if result.RowsAffected == 0 {
			return ErrImageNotFound
		}
		return nil
	})
}

func insertAnnotations(tx *gorm.DB, imageID uint, annotations []Annotation) error {
	if len(annotations) == 0 {
		return nil
	}
	for i := range annotations {
		annotations[i].ID = 0
		annotations[i].ImageID = imageID
	}
	if err := tx.Create(&annotations).Error; err != nil {
		return fmt.Errorf("cannot insert annotations of image %d: %w", imageID, err)
	}
	return nil
}

func setStatus(tx *gorm.DB, imageID uint, status ImageStatus, reason string) error {
	err := tx.Model(&ImageRecord{}).Where("id = ?", imageID).Updates(map[string]interface{}{
		"status":         status,
		"failure_reason": reason,
	}).Error
	if err != nil {
		return fmt.Errorf("cannot set status of image %d: %w", imageID, err)
	}
	return nil
}
