// Package detector wraps the external object detection model.
package detector

import (
	"context"
	"errors"
	"image"
	"math"
)

const (
	// ConfidenceFloor Minimum score the service keeps, clients filter further themselves
	ConfidenceFloor = 0.2
	// IoUThreshold Overlap above which the model suppresses duplicate boxes
	IoUThreshold = 0.5
)

var ErrInference = errors.New("inference failed")

// Options Inference parameters passed to the model
type Options struct {
	Augment    bool // test-time augmentation, slower but better recall
	Confidence float64
	IoU        float64
}

// DefaultOptions The fixed thresholds every request uses
func DefaultOptions(augment bool) Options {
	return Options{
		Augment:    augment,
		Confidence: ConfidenceFloor,
		IoU:        IoUThreshold,
	}
}

// Box Sub-pixel box corners as returned by the model
type Box struct {
	X1, Y1, X2, Y2 float64
}

// Round Round every corner to the nearest pixel, no clamping to the image bounds
func (b Box) Round() (x1, y1, x2, y2 int) {
	return RoundPixel(b.X1), RoundPixel(b.Y1), RoundPixel(b.X2), RoundPixel(b.Y2)
}

// RoundPixel Ties go to the even pixel
func RoundPixel(v float64) int {
	return int(math.RoundToEven(v))
}

type Detection struct {
	ClassID    int
	Label      string
	Confidence float64
	Box        Box
}

// Detector Runs object detection on a decoded image. Implementations must be safe for
// concurrent use, a single instance serves every request.
type Detector interface {
	Detect(ctx context.Context, img image.Image, opts Options) ([]Detection, error)
}
