package storage

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"github.com/gabriel-vasile/mimetype"
	log "github.com/sirupsen/logrus"
	uuid "github.com/twinj/uuid"
)

var ErrAssetNotFound = errors.New("file not found on disk")

// maxKeyLength Longest file name ext4 and NTFS accept
const maxKeyLength = 255

// Asset A stored upload
type Asset struct {
	Path        string
	ContentType string
	Size        int64
}

// AssetStore Flat directory of uploaded files. Every upload gets its own key, so two uploads
// sharing a filename never overwrite each other.
type AssetStore struct {
	dir string
}

// NewAssetStore Create the upload directory when missing
func NewAssetStore(dir string) (*AssetStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("cannot create upload directory %s: %w", dir, err)
	}
	log.Info(fmt.Sprintf("Storing uploads in %s", dir))
	return &AssetStore{dir: dir}, nil
}

// Save Write the upload to disk under a fresh key derived from the filename
func (s *AssetStore) Save(filename string, r io.Reader) (*Asset, error) {
	path := filepath.Join(s.dir, storageKey(filename))

	file, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("cannot create %s: %w", path, err)
	}

	// Keep the head of the upload to sniff its content type.
	head := new(bytes.Buffer)
	size, err := io.Copy(file, io.TeeReader(io.LimitReader(r, 3072), head))
	if err == nil {
		var rest int64
		rest, err = io.Copy(file, r)
		size += rest
	}
	if closeErr := file.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		os.Remove(path)
		return nil, fmt.Errorf("cannot write %s: %w", path, err)
	}

	return &Asset{
		Path:        path,
		ContentType: mimetype.Detect(head.Bytes()).String(),
		Size:        size,
	}, nil
}

// Open Open a stored asset for reading, the caller closes it
func (s *AssetStore) Open(path string) (*os.File, int64, error) {
	file, err := os.Open(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, 0, fmt.Errorf("%w: %s", ErrAssetNotFound, path)
	}
	if err != nil {
		return nil, 0, err
	}
	info, err := file.Stat()
	if err != nil {
		file.Close()
		return nil, 0, err
	}
	return file, info.Size(), nil
}

// Remove Delete a stored asset. A file that is already gone is not an error.
func (s *AssetStore) Remove(path string) error {
	err := os.Remove(path)
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("cannot remove %s: %w", path, err)
	}
	return nil
}

// storageKey Unique file name keeping the base name of the upload for readability.
// Long names are cut before the extension so the key stays a valid file name.
func storageKey(filename string) string {
	base := filepath.Base(strings.ReplaceAll(filename, "\\", "/"))
	if base == "." || base == "/" || base == ".." {
		base = "upload"
	}
	prefix := uuid.NewV4().String() + "-"
	if len(prefix)+len(base) <= maxKeyLength {
		return prefix + base
	}

	ext := filepath.Ext(base)
	budget := maxKeyLength - len(prefix) - len(ext)
	if budget < 1 {
		ext = ""
		budget = maxKeyLength - len(prefix)
	}
	stem := strings.TrimSuffix(base, ext)
	for budget > 0 && !utf8.RuneStart(stem[budget]) {
		budget--
	}
	return prefix + stem[:budget] + ext
}
