package detector

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"image"
	"io"
	"mime/multipart"
	"net/http"
	"strconv"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"

	"neurolabel/utils"
)

// HTTPDetector Calls an inference server exposing POST /predict and GET /health.
type HTTPDetector struct {
	endpoint string
	client   *http.Client
	labels   Labels
}

type predictResponse struct {
	Detections []struct {
		ClassID    int        `json:"class_id"`
		Label      string     `json:"label"`
		Confidence float64    `json:"confidence"`
		Box        [4]float64 `json:"box"`
	} `json:"detections"`
}

// NewHTTPDetector A zero timeout waits for the model as long as the request context allows.
func NewHTTPDetector(endpoint string, timeout time.Duration, labels Labels) *HTTPDetector {
	if labels == nil {
		labels = COCOLabels
	}
	return &HTTPDetector{
		endpoint: strings.TrimRight(endpoint, "/"),
		client:   &http.Client{Timeout: timeout},
		labels:   labels,
	}
}

// Detect Send the image to the inference server and collect the detections above the floor
func (d *HTTPDetector) Detect(ctx context.Context, img image.Image, opts Options) ([]Detection, error) {
	encoded, err := utils.ImageToPngBuffer(img)
	if err != nil {
		return nil, err
	}

	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)
	part, err := writer.CreateFormFile("file", "image.png")
	if err != nil {
		return nil, fmt.Errorf("create form file: %w", err)
	}
	if _, err := part.Write(encoded); err != nil {
		return nil, fmt.Errorf("write image: %w", err)
	}
	fields := map[string]string{
		"conf":    strconv.FormatFloat(opts.Confidence, 'f', -1, 64),
		"iou":     strconv.FormatFloat(opts.IoU, 'f', -1, 64),
		"augment": strconv.FormatBool(opts.Augment),
	}
	for name, value := range fields {
		if err := writer.WriteField(name, value); err != nil {
			return nil, fmt.Errorf("write field %s: %w", name, err)
		}
	}
	if err := writer.Close(); err != nil {
		return nil, fmt.Errorf("close multipart body: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, d.endpoint+"/predict", body)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())

	start := time.Now()
	resp, err := d.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrInference, err.Error())
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("%w: status %d: %s", ErrInference, resp.StatusCode, strings.TrimSpace(string(msg)))
	}

	var result predictResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("%w: decode response: %s", ErrInference, err.Error())
	}

	detections := make([]Detection, 0, len(result.Detections))
	for _, det := range result.Detections {
		if det.Confidence < opts.Confidence {
			continue
		}
		label := det.Label
		if label == "" {
			label = d.labels.Name(det.ClassID)
		}
		detections = append(detections, Detection{
			ClassID:    det.ClassID,
			Label:      label,
			Confidence: det.Confidence,
			Box:        Box{X1: det.Box[0], Y1: det.Box[1], X2: det.Box[2], Y2: det.Box[3]},
		})
	}

	log.WithFields(log.Fields{
		"augment":    opts.Augment,
		"detections": len(detections),
		"duration":   time.Since(start),
	}).Debug("Inference finished")

	return detections, nil
}

// CheckHealth Probe the inference server
func (d *HTTPDetector) CheckHealth(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, d.endpoint+"/health", nil)
	if err != nil {
		return err
	}
	resp, err := d.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("inference server unhealthy: %d", resp.StatusCode)
	}
	return nil
}
