package controllers

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	log "github.com/sirupsen/logrus"

	"neurolabel/models"
)

// validate Checks each element of an annotation array against its binding tags
var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	v.SetTagName("binding")
	return v
}

type BoxInput struct {
	X1 *int `json:"x1" binding:"required"`
	Y1 *int `json:"y1" binding:"required"`
	X2 *int `json:"x2" binding:"required"`
	Y2 *int `json:"y2" binding:"required"`
}

type AnnotationInput struct {
	Label      string   `json:"label" binding:"required"`
	Confidence *float64 `json:"confidence" binding:"required,min=0,max=1"`
	Box        BoxInput `json:"box"`
}

// GetAnnotations List the annotations of an image, empty when there are none
func GetAnnotations(store *models.Store) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := parseID(c)
		if !ok {
			return
		}

		annotations, err := store.Annotations(c.Request.Context(), id)
		if err != nil {
			abortWithError(c, err)
			return
		}
		c.JSON(http.StatusOK, annotations)
	}
}

// ReplaceAnnotations Replace the full annotation set of an image
func ReplaceAnnotations(store *models.Store) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := parseID(c)
		if !ok {
			return
		}

		var input []AnnotationInput
		if err := c.ShouldBindJSON(&input); err != nil {
			abortWithError(c, fmt.Errorf("%w: %s", ErrValidation, err.Error()))
			return
		}
		if input == nil {
			abortWithError(c, fmt.Errorf("%w: expected a JSON array of annotations", ErrValidation))
			return
		}

		annotations, err := toAnnotations(input)
		if err != nil {
			abortWithError(c, err)
			return
		}

		count, err := store.ReplaceAnnotations(c.Request.Context(), id, annotations)
		if err != nil {
			abortWithError(c, err)
			return
		}

		log.WithFields(log.Fields{"image_id": id, "count": count}).Info("Annotations replaced")
		c.JSON(http.StatusOK, gin.H{"status": "success", "count": count})
	}
}

func toAnnotations(input []AnnotationInput) ([]models.Annotation, error) {
	annotations := make([]models.Annotation, 0, len(input))
	for i, in := range input {
		if err := validate.Struct(in); err != nil {
			return nil, fmt.Errorf("%w: annotation %d: %s", ErrValidation, i, err.Error())
		}
		if in.Confidence == nil || in.Box.X1 == nil || in.Box.Y1 == nil || in.Box.X2 == nil || in.Box.Y2 == nil {
			return nil, fmt.Errorf("%w: annotation %d is missing confidence or box coordinates", ErrValidation, i)
		}
		box := models.Box{X1: *in.Box.X1, Y1: *in.Box.Y1, X2: *in.Box.X2, Y2: *in.Box.Y2}
		if box.X2 < box.X1 || box.Y2 < box.Y1 {
			return nil, fmt.Errorf("%w: annotation %d has x2 < x1 or y2 < y1", ErrValidation, i)
		}
		annotations = append(annotations, models.Annotation{
			Label:      in.Label,
			Confidence: *in.Confidence,
			Box:        box,
		})
	}
	return annotations, nil
}
