package detector

import (
	"bufio"
	"fmt"
	"os"
	"strings"
)

// Labels Class names indexed by class ID
type Labels []string

// COCOLabels The 80 COCO classes most pretrained detectors ship with
var COCOLabels = Labels{
	"person", "bicycle", "car", "motorcycle", "airplane", "bus", "train", "truck", "boat",
	"traffic light", "fire hydrant", "stop sign", "parking meter", "bench", "bird", "cat", "dog",
	"horse", "sheep", "cow", "elephant", "bear", "zebra", "giraffe", "backpack", "umbrella",
	"handbag", "tie", "suitcase", "frisbee", "skis", "snowboard", "sports ball", "kite",
	"baseball bat", "baseball glove", "skateboard", "surfboard", "tennis racket", "bottle",
	"wine glass", "cup", "fork", "knife", "spoon", "bowl", "banana", "apple", "sandwich",
	"orange", "broccoli", "carrot", "hot dog", "pizza", "donut", "cake", "chair", "couch",
	"potted plant", "bed", "dining table", "toilet", "tv", "laptop", "mouse", "remote",
	"keyboard", "cell phone", "microwave", "oven", "toaster", "sink", "refrigerator", "book",
	"clock", "vase", "scissors", "teddy bear", "hair drier", "toothbrush",
}

// Name Human readable name of a class
func (l Labels) Name(classID int) string {
	if classID >= 0 && classID < len(l) {
		return l[classID]
	}
	return fmt.Sprintf("class_%d", classID)
}

// LoadLabels Read one class name per line, blank lines are skipped
func LoadLabels(path string) (Labels, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	var labels Labels
	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		if name := strings.TrimSpace(scanner.Text()); name != "" {
			labels = append(labels, name)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("cannot read labels from %s: %w", path, err)
	}
	return labels, nil
}
