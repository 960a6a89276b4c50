// Package thumbnail renders and caches downscaled JPEG previews of stored images.
package thumbnail

import (
	"errors"
	"fmt"
	"image"
	"image/jpeg"
	"io/fs"

	"golang.org/x/image/draw"

	"neurolabel/storage"
	"neurolabel/utils"
)

const (
	MaxSize     = 1024
	jpegQuality = 75
)

var ErrInvalidSize = errors.New("invalid thumbnail size")

// Thumbnailer Renders previews and keeps them in a LocalCache
type Thumbnailer struct {
	cache *LocalCache
}

func NewThumbnailer(cache *LocalCache) *Thumbnailer {
	return &Thumbnailer{cache: cache}
}

// Get JPEG preview of the image stored at path whose longest side is at most size
func (t *Thumbnailer) Get(imageID uint, path string, size int) ([]byte, error) {
	if size <= 0 || size > MaxSize {
		return nil, fmt.Errorf("%w: %d", ErrInvalidSize, size)
	}

	key := fmt.Sprintf("%d/%d", imageID, size)
	if data, err := t.cache.Read(key); err == nil {
		return data, nil
	}

	img, err := utils.DecodeImageFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s", storage.ErrAssetNotFound, path)
	}
	if err != nil {
		return nil, err
	}
	data, err := utils.ImageToJpgBuffer(Scale(img, size), &jpeg.Options{Quality: jpegQuality})
	if err != nil {
		return nil, err
	}

	t.cache.Update(key, data)
	return data, nil
}

// Forget Drop the cached previews of an image
func (t *Thumbnailer) Forget(imageID uint) {
	t.cache.Invalidate(imageID)
}

// Scale Downscale so the longest side equals size, smaller images are returned as is
func Scale(img image.Image, size int) image.Image {
	bounds := img.Bounds()
	width, height := bounds.Dx(), bounds.Dy()
	if width <= size && height <= size {
		return img
	}

	if width >= height {
		height = max(1, height*size/width)
		width = size
	} else {
		width = max(1, width*size/height)
		height = size
	}

	dst := image.NewRGBA(image.Rect(0, 0, width, height))
	draw.CatmullRom.Scale(dst, dst.Bounds(), img, bounds, draw.Over, nil)
	return dst
}
