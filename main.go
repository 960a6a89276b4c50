package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-contrib/gzip"
	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"
	uuid "github.com/twinj/uuid"

	"neurolabel/controllers"
	"neurolabel/detector"
	"neurolabel/metrics"
	"neurolabel/models"
	"neurolabel/pipeline"
	"neurolabel/storage"
	"neurolabel/thumbnail"
	"neurolabel/utils"
)

// corsMiddleware CORS for the configured development origins, allowing:
// - the listed methods
// - Credentials share
// - Preflight requests cached for 12 hours
// Requested headers are echoed back by reflectRequestedHeaders.
func corsMiddleware(origins []string) gin.HandlerFunc {
	return cors.New(cors.Config{
		AllowOrigins:     origins,
		AllowMethods:     []string{"GET", "POST", "PUT", "PATCH", "DELETE", "HEAD", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Accept", "Authorization", "X-Requested-With"},
		ExposeHeaders:    []string{"X-Request-Id", "Content-Length", "Content-Type"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	})
}

// preflightWriter Replaces the allowed headers of an accepted preflight with the requested ones
type preflightWriter struct {
	gin.ResponseWriter
	requested string
}

func (w *preflightWriter) WriteHeaderNow() {
	if !w.Written() && w.Header().Get("Access-Control-Allow-Origin") != "" {
		w.Header().Set("Access-Control-Allow-Headers", w.requested)
	}
	w.ResponseWriter.WriteHeaderNow()
}

// reflectRequestedHeaders Allow whatever headers a preflight asks for, a "*" is taken
// literally on credentialed requests. Must run before corsMiddleware.
func reflectRequestedHeaders() gin.HandlerFunc {
	return func(c *gin.Context) {
		requested := c.GetHeader("Access-Control-Request-Headers")
		if c.Request.Method == http.MethodOptions && requested != "" {
			c.Writer = &preflightWriter{ResponseWriter: c.Writer, requested: requested}
		}
		c.Next()
	}
}

// requestIDMiddleware Generate a UUID and attach it to each request
func requestIDMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		_uuid := uuid.NewV4()
		c.Writer.Header().Set("X-Request-Id", _uuid.String())
		c.Next()
	}
}

func setupRouter(config *utils.Config, env *controllers.Env, m *metrics.Metrics) *gin.Engine {
	r := gin.Default()
	r.Use(reflectRequestedHeaders())
	r.Use(corsMiddleware(config.Cors.AllowOrigins))
	r.Use(requestIDMiddleware())
	r.Use(m.Middleware())
	// Image bytes are already compressed.
	r.Use(gzip.Gzip(gzip.DefaultCompression, gzip.WithExcludedPathsRegexs([]string{"^/images/"})))

	r.GET("/metrics", gin.WrapH(m.Handler()))
	controllers.Register(r, env)

	return r
}

func main() {
	log.Info("Starting NeuroLabel...")

	configPath, debugMode, err := utils.ParseFlags()
	if err != nil {
		log.Fatal(err)
	}
	config, err := utils.NewConfig(configPath)
	if err != nil {
		log.Fatal(err)
	}
	utils.SetupLogging(config.Log)

	// Debug mode enables gin-gonic debug mode
	if !debugMode {
		gin.SetMode(gin.ReleaseMode)
	}

	db, err := models.ConnectDataBase(config.Database)
	if err != nil {
		log.Fatal(err)
	}
	store := models.NewStore(db)

	assets, err := storage.NewAssetStore(config.Storage.UploadDir)
	if err != nil {
		log.Fatal(err)
	}

	labels := detector.COCOLabels
	if config.Detector.LabelsFile != "" {
		labels, err = detector.LoadLabels(config.Detector.LabelsFile)
		if err != nil {
			log.Fatal(err)
		}
	}
	det := detector.NewHTTPDetector(config.Detector.Endpoint, config.Detector.Timeout, labels)
	healthCtx, cancelHealth := context.WithTimeout(context.Background(), 5*time.Second)
	if err := det.CheckHealth(healthCtx); err != nil {
		log.Warn(fmt.Sprintf("Detector at %s not available: %s", config.Detector.Endpoint, err.Error()))
	}
	cancelHealth()

	m := metrics.NewMetrics("neurolabel")

	cache := thumbnail.NewLocalCache(config.Thumbnail.TTL, config.Thumbnail.CleanupInterval)
	defer cache.Stop()

	env := &controllers.Env{
		Store:                store,
		Assets:               assets,
		Ingestor:             pipeline.NewIngestor(assets, store, det, m),
		Thumbnails:           thumbnail.NewThumbnailer(cache),
		MaxUploadSize:        config.Server.MaxUploadSize,
		DefaultThumbnailSize: config.Thumbnail.DefaultSize,
	}
	r := setupRouter(config, env, m)

	addr := fmt.Sprintf(":%s", config.Server.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      r,
		ReadTimeout:  config.Server.ReadTimeout,
		WriteTimeout: config.Server.WriteTimeout,
	}

	go func() {
		log.Info(fmt.Sprintf("Listening on %s", addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("listen: %s\n", err)
		}
	}()

	// Wait for interrupt signal to gracefully shutdown the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info("Shutdown Server ...")

	ctx, cancel := context.WithTimeout(context.Background(), config.Server.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Error("Server Shutdown: ", err)
	}

	if sqlDB, err := db.DB(); err == nil {
		sqlDB.Close()
	}

	log.Info("Server exiting")
}
