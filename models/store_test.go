package models

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"neurolabel/utils"
)

func setupTestStore(t *testing.T) *Store {
	t.Helper()

	db, err := ConnectDataBase(utils.DatabaseConfig{
		Driver: "sqlite",
		Sqlite: utils.SqliteConfig{Filename: filepath.Join(t.TempDir(), "test.db")},
	})
	require.NoError(t, err)
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			sqlDB.Close()
		}
	})

	return NewStore(db)
}

func createImage(t *testing.T, store *Store, filename string) *ImageRecord {
	t.Helper()
	image := &ImageRecord{Filename: filename, Path: "/uploads/" + filename, ContentType: "image/jpeg"}
	require.NoError(t, store.CreateImage(context.Background(), image))
	require.NotZero(t, image.ID)
	return image
}

func sampleAnnotations(n int) []Annotation {
	annotations := make([]Annotation, n)
	for i := range annotations {
		annotations[i] = Annotation{
			Label:      fmt.Sprintf("label-%d", i),
			Confidence: 0.5 + float64(i)/100,
			Box:        Box{X1: i, Y1: i, X2: i + 10, Y2: i + 20},
		}
	}
	return annotations
}

func TestConnectDataBase_UnknownDriver(t *testing.T) {
	_, err := ConnectDataBase(utils.DatabaseConfig{Driver: "oracle"})
	assert.Error(t, err)
}

func TestMysqlDSN(t *testing.T) {
	dsn := mysqlDSN(utils.MysqlConfig{Host: "db", Port: 3307, User: "u", Password: "p", Database: "labels"})
	assert.Contains(t, dsn, "u:p@tcp(db:3307)/labels")
	assert.Contains(t, dsn, "parseTime=true")
}

func TestStore_CreateAndFindImage(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	created := createImage(t, store, "cat.jpg")
	assert.Equal(t, StatusPending, created.Status)
	assert.False(t, created.CreatedAt.IsZero())

	found, err := store.FindImage(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, "cat.jpg", found.Filename)
	assert.Equal(t, "/uploads/cat.jpg", found.Path)
	assert.Equal(t, "image/jpeg", found.ContentType)

	_, err = store.FindImage(ctx, created.ID+100)
	assert.ErrorIs(t, err, ErrImageNotFound)
}

func TestStore_CompleteDetection(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()
	image := createImage(t, store, "street.jpg")

	require.NoError(t, store.CompleteDetection(ctx, image.ID, sampleAnnotations(3)))

	found, err := store.FindImage(ctx, image.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, found.Status)

	annotations, err := store.Annotations(ctx, image.ID)
	require.NoError(t, err)
	require.Len(t, annotations, 3)
	assert.Equal(t, "label-0", annotations[0].Label)
	assert.Equal(t, Box{X1: 2, Y1: 2, X2: 12, Y2: 22}, annotations[2].Box)
	assert.InDelta(t, 0.52, annotations[2].Confidence, 1e-9)
}

func TestStore_CompleteDetectionWithoutObjects(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()
	image := createImage(t, store, "empty.jpg")

	require.NoError(t, store.CompleteDetection(ctx, image.ID, nil))

	found, err := store.FindImage(ctx, image.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, found.Status)
}

func TestStore_MarkFailed(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()
	image := createImage(t, store, "broken.jpg")

	require.NoError(t, store.MarkFailed(ctx, image.ID, "model offline"))

	found, err := store.FindImage(ctx, image.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusFailed, found.Status)
	assert.Equal(t, "model offline", found.FailureReason)
}

func TestStore_AnnotationsOfUnknownImageIsEmpty(t *testing.T) {
	store := setupTestStore(t)

	annotations, err := store.Annotations(context.Background(), 42)
	require.NoError(t, err)
	assert.NotNil(t, annotations)
	assert.Empty(t, annotations)
}

func TestStore_ReplaceAnnotations(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()
	image := createImage(t, store, "dog.jpg")
	require.NoError(t, store.CompleteDetection(ctx, image.ID, sampleAnnotations(4)))

	replacement := []Annotation{{Label: "dog", Confidence: 1, Box: Box{X1: 1, Y1: 2, X2: 3, Y2: 4}}}
	count, err := store.ReplaceAnnotations(ctx, image.ID, replacement)
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	annotations, err := store.Annotations(ctx, image.ID)
	require.NoError(t, err)
	require.Len(t, annotations, 1)
	assert.Equal(t, "dog", annotations[0].Label)

	count, err = store.ReplaceAnnotations(ctx, image.ID, []Annotation{})
	require.NoError(t, err)
	assert.Zero(t, count)

	annotations, err = store.Annotations(ctx, image.ID)
	require.NoError(t, err)
	assert.Empty(t, annotations)
}

func TestStore_ReplaceAnnotationsUnknownImage(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	_, err := store.ReplaceAnnotations(ctx, 7, sampleAnnotations(2))
	assert.ErrorIs(t, err, ErrImageNotFound)

	annotations, err := store.Annotations(ctx, 7)
	require.NoError(t, err)
	assert.Empty(t, annotations)
}

func TestStore_ConcurrentReplaceKeepsOneCompleteSet(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()
	image := createImage(t, store, "race.jpg")

	var wg sync.WaitGroup
	for i := 1; i <= 8; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			_, err := store.ReplaceAnnotations(ctx, image.ID, sampleAnnotations(n))
			assert.NoError(t, err)
		}(i)
	}
	wg.Wait()

	annotations, err := store.Annotations(ctx, image.ID)
	require.NoError(t, err)
	require.NotEmpty(t, annotations)
	// Each writer inserts labels label-0..label-(n-1), a complete set has no gaps or repeats.
	for i, annotation := range annotations {
		assert.Equal(t, fmt.Sprintf("label-%d", i), annotation.Label)
	}
}

func TestStore_DeleteImageRemovesAnnotations(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()
	image := createImage(t, store, "gone.jpg")
	other := createImage(t, store, "kept.jpg")
	require.NoError(t, store.CompleteDetection(ctx, image.ID, sampleAnnotations(2)))
	require.NoError(t, store.CompleteDetection(ctx, other.ID, sampleAnnotations(1)))

	require.NoError(t, store.DeleteImage(ctx, image.ID))

	_, err := store.FindImage(ctx, image.ID)
	assert.ErrorIs(t, err, ErrImageNotFound)
	annotations, err := store.Annotations(ctx, image.ID)
	require.NoError(t, err)
	assert.Empty(t, annotations)

	annotations, err = store.Annotations(ctx, other.ID)
	require.NoError(t, err)
	assert.Len(t, annotations, 1)

	assert.ErrorIs(t, store.DeleteImage(ctx, image.ID), ErrImageNotFound)
}

func TestStore_HistoryNewestFirstWithCounts(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()
	base := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

	for i := 0; i < 25; i++ {
		image := &ImageRecord{
			Filename:  fmt.Sprintf("img-%02d.jpg", i),
			Path:      fmt.Sprintf("/uploads/img-%02d.jpg", i),
			CreatedAt: base.Add(time.Duration(i) * time.Minute),
		}
		require.NoError(t, store.CreateImage(ctx, image))
		require.NoError(t, store.CompleteDetection(ctx, image.ID, sampleAnnotations(i%4)))
	}

	history, err := store.History(ctx, HistoryLimit)
	require.NoError(t, err)
	require.Len(t, history, HistoryLimit)

	assert.Equal(t, "img-24.jpg", history[0].Filename)
	assert.Equal(t, int64(0), history[0].DetectionCount)
	assert.Equal(t, "img-23.jpg", history[1].Filename)
	assert.Equal(t, int64(3), history[1].DetectionCount)
	assert.Equal(t, StatusCompleted, history[1].Status)
	assert.Equal(t, "img-05.jpg", history[HistoryLimit-1].Filename)

	for i := 1; i < len(history); i++ {
		assert.False(t, history[i].Timestamp.After(history[i-1].Timestamp))
	}
}

func TestStore_HistoryEmpty(t *testing.T) {
	store := setupTestStore(t)

	history, err := store.History(context.Background(), HistoryLimit)
	require.NoError(t, err)
	assert.NotNil(t, history)
	assert.Empty(t, history)
}
