package controllers

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"

	"neurolabel/detector"
	"neurolabel/models"
	"neurolabel/storage"
	"neurolabel/thumbnail"
	"neurolabel/utils"
)

var (
	// ErrValidation marks a malformed request body or parameter
	ErrValidation = errors.New("invalid request")
	// ErrTooLarge marks an upload over the configured size limit
	ErrTooLarge = errors.New("upload too large")
)

const internalErrorMessage = "internal server error"

// abortWithError Map an error to its HTTP status and write it as {"error": ...}.
// Server side failures are only logged in full, the client gets a generic message.
func abortWithError(c *gin.Context, err error) {
	status := http.StatusInternalServerError
	message := err.Error()

	switch {
	case errors.Is(err, models.ErrImageNotFound):
		status, message = http.StatusNotFound, models.ErrImageNotFound.Error()
	case errors.Is(err, storage.ErrAssetNotFound):
		status, message = http.StatusNotFound, storage.ErrAssetNotFound.Error()
	case errors.Is(err, utils.ErrDecode), errors.Is(err, ErrValidation), errors.Is(err, thumbnail.ErrInvalidSize):
		status = http.StatusBadRequest
	case errors.Is(err, ErrTooLarge):
		status = http.StatusRequestEntityTooLarge
	case errors.Is(err, detector.ErrInference):
		status, message = http.StatusBadGateway, detector.ErrInference.Error()
	default:
		message = internalErrorMessage
	}

	entry := log.WithFields(log.Fields{
		"request_id": c.Writer.Header().Get("X-Request-Id"),
		"path":       c.Request.URL.Path,
		"status":     status,
	})
	if status >= http.StatusInternalServerError {
		entry.Error(err.Error())
	} else {
		entry.Info(err.Error())
	}

	c.AbortWithStatusJSON(status, gin.H{"error": message})
}

// parseID Parse the :id path parameter, writing a 400 when it is not a positive integer
func parseID(c *gin.Context) (uint, bool) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil || id == 0 {
		abortWithError(c, fmt.Errorf("%w: image id %q", ErrValidation, c.Param("id")))
		return 0, false
	}
	return uint(id), true
}
