package controllers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"

	"neurolabel/models"
	"neurolabel/storage"
	"neurolabel/thumbnail"
)

// FindHistory List the most recent images with their detection count
func FindHistory(store *models.Store) gin.HandlerFunc {
	return func(c *gin.Context) {
		entries, err := store.History(c.Request.Context(), models.HistoryLimit)
		if err != nil {
			abortWithError(c, err)
			return
		}
		c.JSON(http.StatusOK, entries)
	}
}

// GetImage Stream the stored bytes of an image with their original content type
func GetImage(store *models.Store, assets *storage.AssetStore) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := parseID(c)
		if !ok {
			return
		}

		image, err := store.FindImage(c.Request.Context(), id)
		if err != nil {
			abortWithError(c, err)
			return
		}

		file, size, err := assets.Open(image.Path)
		if err != nil {
			log.WithField("image_id", id).Warn("Image record exists but its file is missing")
			abortWithError(c, err)
			return
		}
		defer file.Close()

		contentType := image.ContentType
		if contentType == "" {
			contentType = "application/octet-stream"
		}
		c.DataFromReader(http.StatusOK, size, contentType, file, nil)
	}
}

// GetThumbnail Downscaled JPEG preview of an image
func GetThumbnail(store *models.Store, thumbnails *thumbnail.Thumbnailer, defaultSize int) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := parseID(c)
		if !ok {
			return
		}

		size, err := strconv.Atoi(c.DefaultQuery("size", strconv.Itoa(defaultSize)))
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Incorrect value for size."})
			return
		}

		image, err := store.FindImage(c.Request.Context(), id)
		if err != nil {
			abortWithError(c, err)
			return
		}

		data, err := thumbnails.Get(image.ID, image.Path, size)
		if err != nil {
			abortWithError(c, err)
			return
		}
		c.Data(http.StatusOK, "image/jpeg", data)
	}
}

// DeleteImage Delete an image, its file and its annotations
func DeleteImage(store *models.Store, assets *storage.AssetStore, thumbnails *thumbnail.Thumbnailer) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := parseID(c)
		if !ok {
			return
		}

		image, err := store.FindImage(c.Request.Context(), id)
		if err != nil {
			abortWithError(c, err)
			return
		}

		if err := store.DeleteImage(c.Request.Context(), id); err != nil {
			abortWithError(c, err)
			return
		}
		thumbnails.Forget(id)

		logger := log.WithField("image_id", id)
		// The record is gone, a leftover file is only worth a warning.
		if err := assets.Remove(image.Path); err != nil {
			logger.Warn(err.Error())
		}
		logger.Info("Image deleted")
		c.JSON(http.StatusOK, gin.H{"status": "deleted", "id": id})
	}
}
