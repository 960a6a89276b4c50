package utils

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	_ "image/gif" // gif decoder
	"image/jpeg"
	"image/png"
	"io"
	"os"

	_ "golang.org/x/image/bmp"  // bmp decoder
	_ "golang.org/x/image/tiff" // tiff decoder
	_ "golang.org/x/image/webp" // webp decoder
)

// ErrDecode is returned when uploaded bytes are not an image any registered decoder accepts.
var ErrDecode = errors.New("cannot decode image")

// DecodeImage Decode an image from a reader and return it with its format name
func DecodeImage(r io.Reader) (image.Image, string, error) {
	img, format, err := image.Decode(r)
	if err != nil {
		return nil, "", fmt.Errorf("%w: %s", ErrDecode, err.Error())
	}
	return img, format, nil
}

// DecodeImageFile Decode the image stored at path
func DecodeImageFile(path string) (image.Image, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	img, _, err := DecodeImage(file)
	return img, err
}

// ImageToJpgBuffer Convert an image to a jpg buffer to write to output
func ImageToJpgBuffer(img image.Image, options *jpeg.Options) ([]byte, error) {
	buf := new(bytes.Buffer)
	if err := jpeg.Encode(buf, img, options); err != nil {
		return nil, fmt.Errorf("jpeg encode error: %w", err)
	}
	return buf.Bytes(), nil
}

// ImageToPngBuffer Convert an image to a png buffer to write to output
func ImageToPngBuffer(img image.Image) ([]byte, error) {
	buf := new(bytes.Buffer)
	if err := png.Encode(buf, img); err != nil {
		return nil, fmt.Errorf("png encode error: %w", err)
	}
	return buf.Bytes(), nil
}
