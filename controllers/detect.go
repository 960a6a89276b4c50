package controllers

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"neurolabel/pipeline"
)

// Detect Run object detection on an uploaded image and store the results
func Detect(ingestor *pipeline.Ingestor, maxUploadSize int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		if maxUploadSize > 0 {
			if c.Request.ContentLength > maxUploadSize {
				abortWithError(c, fmt.Errorf("%w: limit is %d bytes", ErrTooLarge, maxUploadSize))
				return
			}
			c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxUploadSize)
		}

		fileHeader, err := c.FormFile("file")
		if err != nil {
			var maxBytesErr *http.MaxBytesError
			if errors.As(err, &maxBytesErr) {
				abortWithError(c, fmt.Errorf("%w: limit is %d bytes", ErrTooLarge, maxBytesErr.Limit))
				return
			}
			abortWithError(c, fmt.Errorf("%w: file is required: %s", ErrValidation, err.Error()))
			return
		}

		enhance, err := parseFormBool(c.PostForm("enhance"))
		if err != nil {
			abortWithError(c, err)
			return
		}

		file, err := fileHeader.Open()
		if err != nil {
			abortWithError(c, err)
			return
		}
		defer file.Close()

		result, err := ingestor.Ingest(c.Request.Context(), pipeline.Upload{
			Filename: fileHeader.Filename,
			Body:     file,
			Enhance:  enhance,
		})
		if err != nil {
			abortWithError(c, err)
			return
		}

		c.JSON(http.StatusOK, result)
	}
}

// parseFormBool Empty means false, also accepts yes/no and on/off
func parseFormBool(value string) (bool, error) {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "":
		return false, nil
	case "yes", "on":
		return true, nil
	case "no", "off":
		return false, nil
	}
	enabled, err := strconv.ParseBool(value)
	if err != nil {
		return false, fmt.Errorf("%w: enhance must be a boolean, got %q", ErrValidation, value)
	}
	return enabled, nil
}
