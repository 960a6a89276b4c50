package pipeline

import (
	"context"
	"fmt"
	"io"
	"math"
	"time"

	log "github.com/sirupsen/logrus"

	"neurolabel/detector"
	"neurolabel/metrics"
	"neurolabel/models"
	"neurolabel/storage"
	"neurolabel/utils"
)

// Upload An image posted for detection
type Upload struct {
	Filename string
	Body     io.Reader
	Enhance  bool
}

// DetectionView A detection as returned to the client
type DetectionView struct {
	Label      string     `json:"label"`
	Confidence float64    `json:"confidence"`
	Box        models.Box `json:"box"`
}

type Result struct {
	Filename   string          `json:"filename"`
	ImageID    uint            `json:"image_id"`
	Detections []DetectionView `json:"detections"`
}

// Ingestor Runs an upload through storage, detection and persistence
type Ingestor struct {
	assets   *storage.AssetStore
	store    *models.Store
	detector detector.Detector
	metrics  *metrics.Metrics
}

func NewIngestor(assets *storage.AssetStore, store *models.Store, det detector.Detector, m *metrics.Metrics) *Ingestor {
	return &Ingestor{
		assets:   assets,
		store:    store,
		detector: det,
		metrics:  m,
	}
}

// Ingest Save the upload, record it, detect objects and store them as annotations.
// The image record is committed before inference, a failed decode or inference leaves it
// with status failed and no annotations.
func (i *Ingestor) Ingest(ctx context.Context, upload Upload) (*Result, error) {
	logger := log.WithField("filename", upload.Filename)

	asset, err := i.assets.Save(upload.Filename, upload.Body)
	if err != nil {
		return nil, err
	}

	record := &models.ImageRecord{
		Filename:    upload.Filename,
		Path:        asset.Path,
		ContentType: asset.ContentType,
	}
	if err := i.store.CreateImage(ctx, record); err != nil {
		return nil, err
	}
	logger = logger.WithFields(log.Fields{"image_id": record.ID, "bytes": asset.Size})

	img, err := utils.DecodeImageFile(asset.Path)
	if err != nil {
		i.fail(ctx, logger, record.ID, err)
		return nil, err
	}

	start := time.Now()
	detections, err := i.detector.Detect(ctx, img, detector.DefaultOptions(upload.Enhance))
	i.metrics.ObserveInference(upload.Enhance, time.Since(start), err)
	if err != nil {
		i.fail(ctx, logger, record.ID, err)
		return nil, err
	}

	annotations := make([]models.Annotation, 0, len(detections))
	views := make([]DetectionView, 0, len(detections))
	for _, det := range detections {
		x1, y1, x2, y2 := det.Box.Round()
		box := models.Box{X1: x1, Y1: y1, X2: x2, Y2: y2}

		annotations = append(annotations, models.Annotation{
			Label:      det.Label,
			Confidence: det.Confidence,
			Box:        box,
		})
		views = append(views, DetectionView{
			Label:      det.Label,
			Confidence: roundConfidence(det.Confidence),
			Box:        box,
		})
		i.metrics.CountDetection(det.Label)
	}

	if err := i.store.CompleteDetection(ctx, record.ID, annotations); err != nil {
		i.fail(ctx, logger, record.ID, err)
		return nil, err
	}
	logger.WithField("detections", len(views)).Info("Image processed")

	return &Result{
		Filename:   upload.Filename,
		ImageID:    record.ID,
		Detections: views,
	}, nil
}

func (i *Ingestor) fail(ctx context.Context, logger *log.Entry, imageID uint, cause error) {
	logger.Warn(fmt.Sprintf("Detection failed: %s", cause.Error()))
	// The request context may already be cancelled, the status must still be written.
	if err := i.store.MarkFailed(context.WithoutCancel(ctx), imageID, cause.Error()); err != nil {
		logger.Error(fmt.Sprintf("Cannot mark image as failed: %s", err.Error()))
	}
}

// roundConfidence Two decimals for display, the stored value keeps full precision
func roundConfidence(c float64) float64 {
	return math.Round(c*100) / 100
}
