package controllers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"neurolabel/models"
	"neurolabel/pipeline"
	"neurolabel/storage"
	"neurolabel/thumbnail"
)

const Version = "v1.0.0"

// Env Dependencies shared by the handlers
type Env struct {
	Store                *models.Store
	Assets               *storage.AssetStore
	Ingestor             *pipeline.Ingestor
	Thumbnails           *thumbnail.Thumbnailer
	MaxUploadSize        int64
	DefaultThumbnailSize int
}

// Register Mount every API route on r
func Register(r gin.IRouter, env *Env) {
	r.GET("/", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":  "ok",
			"message": "NeuroLabel API is running.",
		})
	})

	r.GET("/version", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"message": Version,
		})
	})

	r.POST("/detect", Detect(env.Ingestor, env.MaxUploadSize))
	r.GET("/history", FindHistory(env.Store))

	r.GET("/images/:id", GetImage(env.Store, env.Assets))
	r.GET("/images/:id/thumbnail.jpg", GetThumbnail(env.Store, env.Thumbnails, env.DefaultThumbnailSize))
	r.DELETE("/images/:id", DeleteImage(env.Store, env.Assets, env.Thumbnails))

	r.GET("/annotations/:id", GetAnnotations(env.Store))
	r.PUT("/annotations/:id", ReplaceAnnotations(env.Store))
}
